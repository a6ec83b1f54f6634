// Package community partitions the transaction graph into communities
// and scores partitions by modularity. Transactions are projected onto
// an undirected weighted graph (weight = transaction count between a
// pair) for partitioning purposes.
package community

import (
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// Result is one partitioning of the graph. Labels are dense ints,
// stable only within one invocation: communities are numbered in order
// of their lowest member account id, so a fixed input yields a fixed
// labeling.
type Result struct {
	Labels     map[string]int
	Modularity float64
}

// Communities groups account ids by label, each group sorted.
func (r Result) Communities() [][]string {
	groups := make(map[int][]string)
	for id, label := range r.Labels {
		groups[label] = append(groups[label], id)
	}
	out := make([][]string, len(groups))
	for label, members := range groups {
		sort.Strings(members)
		out[label] = members
	}
	return out
}

// Engine detects communities over one frozen graph snapshot.
type Engine struct {
	g *graph.Graph
}

// NewEngine wraps a graph snapshot.
func NewEngine(g *graph.Graph) *Engine {
	return &Engine{g: g}
}

// Detect partitions the graph using the configured algorithm.
func (e *Engine) Detect(cfg domain.CommunityConfig) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	u := e.undirected()
	switch cfg.Algorithm {
	case domain.CommunityGirvanNewman:
		return girvanNewman(u), nil
	default:
		return louvain(u, cfg.Epsilon, cfg.MaxPasses), nil
	}
}

// undirectedGraph is the weighted projection the algorithms run on.
type undirectedGraph struct {
	ids []string // sorted
	idx map[string]int

	// adj[i][j] = summed transaction count between i and j (both
	// directions), stored symmetrically.
	adj []map[int]float64

	totalWeight float64 // sum over unordered pairs
}

func (e *Engine) undirected() *undirectedGraph {
	ids := e.g.SortedAccountIDs()
	u := &undirectedGraph{
		ids: ids,
		idx: make(map[string]int, len(ids)),
		adj: make([]map[int]float64, len(ids)),
	}
	for i, id := range ids {
		u.idx[id] = i
		u.adj[i] = make(map[int]float64)
	}
	for _, tx := range e.g.Transactions() {
		i, j := u.idx[tx.Source], u.idx[tx.Target]
		u.adj[i][j]++
		u.adj[j][i]++
		u.totalWeight++
	}
	return u
}

func (u *undirectedGraph) degree(i int) float64 {
	var d float64
	for _, w := range u.adj[i] {
		d += w
	}
	return d
}

// modularityOf computes Newman modularity of a labeling over the
// projection. Higher is better; negative means worse than random.
func (u *undirectedGraph) modularityOf(labels []int) float64 {
	if u.totalWeight == 0 {
		return 0
	}
	m := u.totalWeight

	intra := make(map[int]float64)
	degSum := make(map[int]float64)
	for i := range u.adj {
		degSum[labels[i]] += u.degree(i)
		for j, w := range u.adj[i] {
			if i < j && labels[i] == labels[j] {
				intra[labels[i]] += w
			}
		}
	}

	var q float64
	for _, in := range intra {
		q += in / m
	}
	for _, d := range degSum {
		q -= (d / (2 * m)) * (d / (2 * m))
	}
	return q
}

// relabel converts arbitrary community ids into dense labels ordered by
// each community's lowest member account id.
func (u *undirectedGraph) relabel(labels []int) Result {
	rep := make(map[int]string) // community -> lowest member id
	for i, c := range labels {
		if cur, ok := rep[c]; !ok || u.ids[i] < cur {
			rep[c] = u.ids[i]
		}
	}
	comms := make([]int, 0, len(rep))
	for c := range rep {
		comms = append(comms, c)
	}
	sort.Slice(comms, func(a, b int) bool { return rep[comms[a]] < rep[comms[b]] })

	dense := make(map[int]int, len(comms))
	for newLabel, c := range comms {
		dense[c] = newLabel
	}

	out := make(map[string]int, len(u.ids))
	for i, c := range labels {
		out[u.ids[i]] = dense[c]
	}
	return Result{Labels: out, Modularity: u.modularityOf(labels)}
}

// edgeKeyAdjacency exports the projection in the form the edge
// betweenness routine consumes.
func (u *undirectedGraph) edgeKeyAdjacency() (ids []string, adj map[string][]string) {
	adj = make(map[string][]string, len(u.ids))
	for i, id := range u.ids {
		neigh := make([]int, 0, len(u.adj[i]))
		for j := range u.adj[i] {
			neigh = append(neigh, j)
		}
		sort.Ints(neigh)
		for _, j := range neigh {
			adj[id] = append(adj[id], u.ids[j])
		}
	}
	return u.ids, adj
}
