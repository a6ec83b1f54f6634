// Package centrality computes normalized node and edge centrality
// metrics over a transaction graph snapshot. All node scores land in
// [0,1], scaled by the theoretical maximum for the metric and graph
// size, so thresholds are comparable across metrics.
package centrality

import (
	"math"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// Scores maps account id to a normalized centrality score.
type Scores map[string]float64

// EdgeKey identifies an undirected edge by its endpoints, lower id first.
type EdgeKey struct {
	A, B string
}

// MakeEdgeKey orders the endpoints.
func MakeEdgeKey(u, v string) EdgeKey {
	if u > v {
		u, v = v, u
	}
	return EdgeKey{A: u, B: v}
}

// Engine computes centrality metrics over one frozen graph snapshot.
// It is read-only over the graph and safe for concurrent use.
type Engine struct {
	g *graph.Graph
}

// NewEngine wraps a graph snapshot.
func NewEngine(g *graph.Graph) *Engine {
	return &Engine{g: g}
}

// simpleDigraph collapses parallel edges into a deduplicated directed
// adjacency, with ids and neighbor lists sorted for reproducible
// iteration.
func (e *Engine) simpleDigraph() (ids []string, succ map[string][]string, pred map[string][]string) {
	ids = e.g.SortedAccountIDs()
	succ = make(map[string][]string, len(ids))
	pred = make(map[string][]string, len(ids))

	seen := make(map[[2]string]struct{})
	for _, tx := range e.g.Transactions() {
		key := [2]string{tx.Source, tx.Target}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		succ[tx.Source] = append(succ[tx.Source], tx.Target)
		pred[tx.Target] = append(pred[tx.Target], tx.Source)
	}
	for _, m := range []map[string][]string{succ, pred} {
		for k := range m {
			sort.Strings(m[k])
		}
	}
	return ids, succ, pred
}

// simpleUndirected collapses edges into an undirected deduplicated
// adjacency.
func (e *Engine) simpleUndirected() (ids []string, adj map[string][]string) {
	ids = e.g.SortedAccountIDs()
	adj = make(map[string][]string, len(ids))

	seen := make(map[EdgeKey]struct{})
	for _, tx := range e.g.Transactions() {
		key := MakeEdgeKey(tx.Source, tx.Target)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		adj[key.A] = append(adj[key.A], key.B)
		adj[key.B] = append(adj[key.B], key.A)
	}
	for k := range adj {
		sort.Strings(adj[k])
	}
	return ids, adj
}

// DegreeCentrality scores each account by its count of distinct in- and
// out-neighbors over the 2(n-1) maximum.
func (e *Engine) DegreeCentrality() Scores {
	ids, succ, pred := e.simpleDigraph()
	scores := make(Scores, len(ids))
	if len(ids) < 2 {
		for _, id := range ids {
			scores[id] = 0
		}
		return scores
	}
	max := float64(2 * (len(ids) - 1))
	for _, id := range ids {
		scores[id] = float64(len(succ[id])+len(pred[id])) / max
	}
	return scores
}

// BetweennessCentrality counts, for each account, the fraction of
// shortest directed paths between other account pairs passing through
// it (Brandes' accumulation; all equal-length paths counted).
// Normalized by (n-1)(n-2), the directed maximum.
func (e *Engine) BetweennessCentrality() Scores {
	ids, succ, _ := e.simpleDigraph()
	scores := make(Scores, len(ids))
	for _, id := range ids {
		scores[id] = 0
	}
	n := len(ids)
	if n < 3 {
		return scores
	}

	for _, s := range ids {
		stack, sigma, _, preds := brandesBFS(s, ids, succ)

		delta := make(map[string]float64, len(ids))
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				scores[w] += delta[w]
			}
		}
	}

	norm := float64((n - 1) * (n - 2))
	for id := range scores {
		scores[id] = clamp01(scores[id] / norm)
	}
	return scores
}

// EdgeBetweenness computes undirected edge betweenness, the fraction of
// shortest paths between account pairs crossing each edge, normalized
// by n(n-1)/2. Used for bridge detection and Girvan-Newman splitting.
func (e *Engine) EdgeBetweenness() map[EdgeKey]float64 {
	ids, adj := e.simpleUndirected()
	return EdgeBetweennessOf(ids, adj)
}

// EdgeBetweennessOf runs the edge-accumulation variant of Brandes over
// an explicit undirected adjacency. Exposed so divisive community
// detection can recompute it on a shrinking edge set.
func EdgeBetweennessOf(ids []string, adj map[string][]string) map[EdgeKey]float64 {
	scores := make(map[EdgeKey]float64)
	n := len(ids)
	if n < 2 {
		return scores
	}

	for _, s := range ids {
		stack, sigma, _, preds := brandesBFS(s, ids, adj)

		delta := make(map[string]float64, n)
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				c := sigma[v] / sigma[w] * (1 + delta[w])
				scores[MakeEdgeKey(v, w)] += c
				delta[v] += c
			}
		}
	}

	// Each undirected pair is visited from both endpoints, so the raw
	// sums are twice the true betweenness; dividing by n(n-1) both
	// halves them and scales by the pair count.
	norm := float64(n * (n - 1))
	for k := range scores {
		scores[k] = clamp01(scores[k] / norm)
	}
	return scores
}

// brandesBFS runs the single-source stage of Brandes' algorithm:
// breadth-first search recording path counts, distances and shortest-path
// predecessors, returning vertices in non-decreasing distance order.
func brandesBFS(s string, ids []string, adj map[string][]string) (stack []string, sigma map[string]float64, dist map[string]int, preds map[string][]string) {
	sigma = make(map[string]float64, len(ids))
	dist = make(map[string]int, len(ids))
	preds = make(map[string][]string, len(ids))
	for _, id := range ids {
		dist[id] = -1
	}
	sigma[s] = 1
	dist[s] = 0

	queue := []string{s}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		stack = append(stack, v)
		for _, w := range adj[v] {
			if dist[w] < 0 {
				dist[w] = dist[v] + 1
				queue = append(queue, w)
			}
			if dist[w] == dist[v]+1 {
				sigma[w] += sigma[v]
				preds[w] = append(preds[w], v)
			}
		}
	}
	return stack, sigma, dist, preds
}

// EigenvectorCentrality runs power iteration over in-links (prestige
// flows along edge direction). The returned vector is L2-normalized,
// so every component is in [0,1]. The flag reports convergence within
// maxIterations at the given L1 tolerance.
func (e *Engine) EigenvectorCentrality(maxIterations int, tolerance float64) (Scores, bool) {
	ids, _, pred := e.simpleDigraph()
	scores := make(Scores, len(ids))
	if len(ids) == 0 {
		return scores, true
	}

	x := make(map[string]float64, len(ids))
	for _, id := range ids {
		x[id] = 1.0 / float64(len(ids))
	}

	converged := false
	for iter := 0; iter < maxIterations; iter++ {
		next := make(map[string]float64, len(ids))
		for _, id := range ids {
			// Small self-weight keeps the iteration from oscillating on
			// bipartite-like structures.
			sum := x[id] * 1e-4
			for _, u := range pred[id] {
				sum += x[u]
			}
			next[id] = sum
		}

		var norm float64
		for _, id := range ids {
			norm += next[id] * next[id]
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			// No in-links anywhere; centrality is undefined, report zeros.
			for _, id := range ids {
				scores[id] = 0
			}
			return scores, true
		}

		var diff float64
		for _, id := range ids {
			next[id] /= norm
			diff += math.Abs(next[id] - x[id])
		}
		x = next
		if diff < tolerance {
			converged = true
			break
		}
	}

	for _, id := range ids {
		scores[id] = clamp01(x[id])
	}
	return scores, converged
}

// PageRank runs power iteration with uniform teleport and dangling-mass
// redistribution until the L1 change between successive rank vectors
// falls below the tolerance or the iteration cap is reached.
// Non-convergence is reported through the flag, not an error; the
// best-effort ranks are still returned. Ranks sum to 1, so each is in
// [0,1] by construction.
func (e *Engine) PageRank(cfg domain.PageRankConfig) (Scores, bool) {
	ids, succ, _ := e.simpleDigraph()
	scores := make(Scores, len(ids))
	n := len(ids)
	if n == 0 {
		return scores, true
	}

	rank := make(map[string]float64, n)
	for _, id := range ids {
		rank[id] = 1.0 / float64(n)
	}

	converged := false
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		var danglingMass float64
		for _, id := range ids {
			if len(succ[id]) == 0 {
				danglingMass += rank[id]
			}
		}

		next := make(map[string]float64, n)
		base := (1-cfg.Damping)/float64(n) + cfg.Damping*danglingMass/float64(n)
		for _, id := range ids {
			next[id] = base
		}
		for _, id := range ids {
			if outs := succ[id]; len(outs) > 0 {
				share := cfg.Damping * rank[id] / float64(len(outs))
				for _, w := range outs {
					next[w] += share
				}
			}
		}

		var diff float64
		for _, id := range ids {
			diff += math.Abs(next[id] - rank[id])
		}
		rank = next
		if diff < cfg.Tolerance {
			converged = true
			break
		}
	}

	for _, id := range ids {
		scores[id] = clamp01(rank[id])
	}
	return scores, converged
}

// Stats returns the mean and population standard deviation of a score
// vector, used for outlier thresholds.
func Stats(s Scores) (mean, std float64) {
	if len(s) == 0 {
		return 0, 0
	}
	for _, v := range s {
		mean += v
	}
	mean /= float64(len(s))
	for _, v := range s {
		std += (v - mean) * (v - mean)
	}
	std = math.Sqrt(std / float64(len(s)))
	return mean, std
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
