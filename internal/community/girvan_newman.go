package community

import (
	"sort"

	"github.com/opensource-finance/kestrel/internal/centrality"
)

// girvanNewman removes the highest-betweenness edge until the graph
// falls apart, keeping the intermediate partition with the best
// modularity. Deterministic (ties broken by lowest edge key) but
// recomputes edge betweenness after every removal, so it is only
// suitable for small subgraphs.
func girvanNewman(u *undirectedGraph) Result {
	n := len(u.ids)
	if n == 0 {
		return Result{Labels: map[string]int{}}
	}

	// Mutable copy of the simple undirected adjacency.
	adj := make(map[string]map[string]struct{}, n)
	for i, id := range u.ids {
		adj[id] = make(map[string]struct{}, len(u.adj[i]))
		for j := range u.adj[i] {
			adj[id][u.ids[j]] = struct{}{}
		}
	}
	edgeCount := 0
	for _, neigh := range adj {
		edgeCount += len(neigh)
	}
	edgeCount /= 2

	bestLabels := componentLabels(u, adj)
	bestQ := u.modularityOf(bestLabels)

	for edgeCount > 0 {
		ids, lists := adjacencyLists(u.ids, adj)
		eb := centrality.EdgeBetweennessOf(ids, lists)

		var target centrality.EdgeKey
		var max float64 = -1
		keys := make([]centrality.EdgeKey, 0, len(eb))
		for k := range eb {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(a, b int) bool {
			if keys[a].A != keys[b].A {
				return keys[a].A < keys[b].A
			}
			return keys[a].B < keys[b].B
		})
		for _, k := range keys {
			if eb[k] > max {
				max = eb[k]
				target = k
			}
		}

		delete(adj[target.A], target.B)
		delete(adj[target.B], target.A)
		edgeCount--

		labels := componentLabels(u, adj)
		if q := u.modularityOf(labels); q > bestQ {
			bestQ = q
			bestLabels = labels
		}
	}

	return u.relabel(bestLabels)
}

// componentLabels labels nodes by connected component of the working
// adjacency.
func componentLabels(u *undirectedGraph, adj map[string]map[string]struct{}) []int {
	labels := make([]int, len(u.ids))
	for i := range labels {
		labels[i] = -1
	}
	next := 0
	for i, id := range u.ids {
		if labels[i] >= 0 {
			continue
		}
		queue := []string{id}
		labels[i] = next
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			for w := range adj[v] {
				if wi := u.idx[w]; labels[wi] < 0 {
					labels[wi] = next
					queue = append(queue, w)
				}
			}
		}
		next++
	}
	return labels
}

func adjacencyLists(ids []string, adj map[string]map[string]struct{}) ([]string, map[string][]string) {
	lists := make(map[string][]string, len(adj))
	for id, neigh := range adj {
		out := make([]string, 0, len(neigh))
		for w := range neigh {
			out = append(out, w)
		}
		sort.Strings(out)
		lists[id] = out
	}
	return ids, lists
}
