package community

import (
	"sort"
)

// louvain runs the standard two-phase heuristic: greedy local moves
// maximizing modularity gain, then aggregation of communities into
// supernodes, repeated until a pass improves modularity by less than
// epsilon. Ties between equally good target communities are broken by
// the community holding the lowest account id, which makes the result
// deterministic for a fixed input.
func louvain(u *undirectedGraph, epsilon float64, maxPasses int) Result {
	n := len(u.ids)
	if n == 0 {
		return Result{Labels: map[string]int{}}
	}

	// membership[i] is the final community of original node i, tracked
	// across aggregation levels.
	membership := make([]int, n)
	for i := range membership {
		membership[i] = i
	}

	level := newLevel(u)
	best := u.modularityOf(membership)

	for pass := 0; pass < maxPasses; pass++ {
		moved := level.localMoves()
		if !moved {
			break
		}

		// Project level communities down to original nodes.
		for i := range membership {
			membership[i] = level.community[membership[i]]
		}
		q := u.modularityOf(membership)
		if q-best < epsilon {
			best = q
			break
		}
		best = q

		level = level.aggregate()

		// Renumber membership into the aggregated node space.
		for i := range membership {
			membership[i] = level.nodeOf[membership[i]]
		}
	}

	return u.relabel(membership)
}

// levelGraph is one aggregation level of the Louvain hierarchy.
type levelGraph struct {
	n      int
	adj    []map[int]float64 // symmetric, no self entries
	selfW  []float64         // self-loop weight (intra-supernode edges)
	degree []float64         // weighted degree incl. 2*selfW
	m      float64           // total edge weight incl. self loops

	community []int     // current community per level node
	sumTot    []float64 // total degree per community
	lowID     []string  // lowest original account id per community (tie-break)

	nodeOf map[int]int // community id -> node index in the next level
}

func newLevel(u *undirectedGraph) *levelGraph {
	l := &levelGraph{
		n:     len(u.ids),
		adj:   make([]map[int]float64, len(u.ids)),
		selfW: make([]float64, len(u.ids)),
	}
	for i := range u.adj {
		l.adj[i] = make(map[int]float64, len(u.adj[i]))
		for j, w := range u.adj[i] {
			l.adj[i][j] = w
		}
	}
	l.m = u.totalWeight
	l.finishInit(u.ids)
	return l
}

func (l *levelGraph) finishInit(lowIDs []string) {
	l.degree = make([]float64, l.n)
	l.community = make([]int, l.n)
	l.sumTot = make([]float64, l.n)
	l.lowID = make([]string, l.n)
	for i := 0; i < l.n; i++ {
		var d float64
		for _, w := range l.adj[i] {
			d += w
		}
		d += 2 * l.selfW[i]
		l.degree[i] = d
		l.community[i] = i
		l.sumTot[i] = d
		l.lowID[i] = lowIDs[i]
	}
}

// localMoves greedily reassigns nodes to neighboring communities while
// any move has positive modularity gain. Nodes are visited in index
// order (lowest account id first at level zero).
func (l *levelGraph) localMoves() bool {
	if l.m == 0 {
		return false
	}
	anyMove := false
	for {
		movedThisPass := false
		for i := 0; i < l.n; i++ {
			current := l.community[i]

			// Weights from i to each neighboring community.
			neighW := make(map[int]float64)
			for j, w := range l.adj[i] {
				neighW[l.community[j]] += w
			}

			// Detach i.
			l.sumTot[current] -= l.degree[i]

			bestComm := current
			bestGain := gain(neighW[current], l.sumTot[current], l.degree[i], l.m)

			comms := make([]int, 0, len(neighW))
			for c := range neighW {
				comms = append(comms, c)
			}
			sort.Ints(comms)
			for _, c := range comms {
				if c == current {
					continue
				}
				g := gain(neighW[c], l.sumTot[c], l.degree[i], l.m)
				if g > bestGain || (g == bestGain && bestComm != current && l.lowID[c] < l.lowID[bestComm]) {
					bestGain = g
					bestComm = c
				}
			}

			l.sumTot[bestComm] += l.degree[i]
			if bestComm != current {
				l.community[i] = bestComm
				if l.lowID[i] < l.lowID[bestComm] {
					l.lowID[bestComm] = l.lowID[i]
				}
				movedThisPass = true
				anyMove = true
			}
		}
		if !movedThisPass {
			break
		}
	}
	return anyMove
}

// gain is the modularity delta of placing a node with weighted degree k
// into a community, given the node's edge weight into it and the
// community's total degree (node excluded). Constant terms shared by
// all candidates are dropped.
func gain(wIn, sumTot, k, m float64) float64 {
	return wIn/m - sumTot*k/(2*m*m)
}

// aggregate folds each community into a supernode and rebuilds the
// level graph over them.
func (l *levelGraph) aggregate() *levelGraph {
	// Dense-number surviving communities, ordered by their lowest
	// account id so the next level stays deterministic.
	commSet := make(map[int]struct{})
	for _, c := range l.community {
		commSet[c] = struct{}{}
	}
	comms := make([]int, 0, len(commSet))
	for c := range commSet {
		comms = append(comms, c)
	}
	sort.Slice(comms, func(a, b int) bool { return l.lowID[comms[a]] < l.lowID[comms[b]] })

	nodeOf := make(map[int]int, len(comms))
	lowIDs := make([]string, len(comms))
	for idx, c := range comms {
		nodeOf[c] = idx
		lowIDs[idx] = l.lowID[c]
	}

	next := &levelGraph{
		n:      len(comms),
		adj:    make([]map[int]float64, len(comms)),
		selfW:  make([]float64, len(comms)),
		nodeOf: nodeOf,
	}
	for i := range next.adj {
		next.adj[i] = make(map[int]float64)
	}

	for i := 0; i < l.n; i++ {
		ci := nodeOf[l.community[i]]
		next.selfW[ci] += l.selfW[i]
		for j, w := range l.adj[i] {
			if j < i {
				continue // each undirected pair once
			}
			cj := nodeOf[l.community[j]]
			if ci == cj {
				next.selfW[ci] += w
			} else {
				next.adj[ci][cj] += w
				next.adj[cj][ci] += w
			}
		}
	}

	next.m = l.m
	next.finishInit(lowIDs)
	return next
}
