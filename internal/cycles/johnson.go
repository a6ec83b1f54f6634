package cycles

// enumerator implements Johnson's elementary circuit algorithm over a
// deduplicated directed adjacency: strongly-connected-component
// decomposition, then per-SCC blocked depth-first search. Vertices are
// indexes into a sorted account id slice, so every cycle comes out
// rooted at its lexicographically smallest account and the enumeration
// order is reproducible.
//
// Two bounds keep adversarial graphs from running unbounded: maxLen
// prunes the search past the longest cycle anyone will score, and
// maxCycles caps the total count, flipping the truncated flag instead
// of dropping the fact silently. Pruning at the depth limit unblocks
// conservatively so no shorter cycle through the pruned vertex is lost.
type enumerator struct {
	succ [][]int

	maxLen    int
	maxCycles int

	blocked []bool
	noteset []map[int]struct{}
	stack   []int
	inSCC   []bool

	cycles    [][]int
	truncated bool
}

// enumerate returns all elementary cycles of length <= maxLen, each as
// a vertex sequence starting at its smallest vertex, plus a flag set
// when the maxCycles cap stopped the search early.
func enumerate(succ [][]int, maxLen, maxCycles int) ([][]int, bool) {
	n := len(succ)
	e := &enumerator{
		succ:      succ,
		maxLen:    maxLen,
		maxCycles: maxCycles,
		blocked:   make([]bool, n),
		noteset:   make([]map[int]struct{}, n),
		inSCC:     make([]bool, n),
	}
	for i := range e.noteset {
		e.noteset[i] = make(map[int]struct{})
	}

	for s := 0; s < n && !e.truncated; s++ {
		scc := e.sccContaining(s)
		if len(scc) < 2 {
			continue
		}
		for _, v := range scc {
			e.inSCC[v] = true
			e.blocked[v] = false
			e.noteset[v] = make(map[int]struct{})
		}
		e.circuit(s, s)
		for _, v := range scc {
			e.inSCC[v] = false
		}
	}
	return e.cycles, e.truncated
}

// circuit runs the blocked DFS from v, reporting whether any cycle (or
// a depth-limit prune, treated the same for unblocking purposes) was
// reached below v.
func (e *enumerator) circuit(v, s int) bool {
	if e.truncated {
		return true
	}
	found := false
	e.stack = append(e.stack, v)
	e.blocked[v] = true

	for _, w := range e.succ[v] {
		if !e.inSCC[w] {
			continue
		}
		if w == s {
			cycle := make([]int, len(e.stack))
			copy(cycle, e.stack)
			e.cycles = append(e.cycles, cycle)
			found = true
			if len(e.cycles) >= e.maxCycles {
				e.truncated = true
				break
			}
			continue
		}
		if len(e.stack) >= e.maxLen {
			// Cannot extend without exceeding the length bound. Counting
			// this as found keeps v unblocked for shorter paths.
			found = true
			continue
		}
		if !e.blocked[w] {
			if e.circuit(w, s) {
				found = true
			}
			if e.truncated {
				break
			}
		}
	}

	if found {
		e.unblock(v)
	} else {
		for _, w := range e.succ[v] {
			if e.inSCC[w] {
				e.noteset[w][v] = struct{}{}
			}
		}
	}
	e.stack = e.stack[:len(e.stack)-1]
	return found
}

func (e *enumerator) unblock(v int) {
	e.blocked[v] = false
	for w := range e.noteset[v] {
		delete(e.noteset[v], w)
		if e.blocked[w] {
			e.unblock(w)
		}
	}
}

// sccContaining runs Tarjan's algorithm over the subgraph induced by
// vertices >= s and returns the component holding s.
func (e *enumerator) sccContaining(s int) []int {
	n := len(e.succ)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var stack []int
	next := 0
	var result []int

	var strongconnect func(v int)
	strongconnect = func(v int) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range e.succ[v] {
			if w < s {
				continue
			}
			if index[w] < 0 {
				strongconnect(w)
				if low[w] < low[v] {
					low[v] = low[w]
				}
			} else if onStack[w] && index[w] < low[v] {
				low[v] = index[w]
			}
		}

		if low[v] == index[v] {
			var comp []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			for _, w := range comp {
				if w == s {
					result = comp
					return
				}
			}
		}
	}

	strongconnect(s)
	return result
}
