// Package cycles finds laundering loops: elementary directed cycles of
// transactions that return funds to their origin account within a
// bounded wall-clock span, scored by how deliberate the loop looks.
package cycles

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// Result carries the qualified findings plus run diagnostics. Truncated
// is set when the enumeration safety cap stopped the search early; the
// findings are then a partial view, never silently complete-looking.
type Result struct {
	Findings  []domain.CycleFinding
	Truncated bool

	Enumerated int // raw cycles before any filter
	Qualified  int // cycles surviving length and duration filters
}

// Detector enumerates and scores cycles over a frozen graph snapshot.
type Detector struct {
	cfg domain.CycleConfig
}

// NewDetector validates the configuration up front so Detect never
// starts a traversal with out-of-range thresholds.
func NewDetector(cfg domain.CycleConfig) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

// Detect returns cycle findings sorted by descending suspicion score.
// Identical inputs yield identical ordered results: account ids are
// traversed sorted, each cycle is rooted at its smallest account, and
// finding ids derive from the cycle path.
//
// When enumeration hits the safety cap, the partial findings are
// returned together with an error wrapping domain.ErrCapacityExceeded,
// so callers can degrade instead of discarding the run.
func (d *Detector) Detect(ctx context.Context, g *graph.Graph) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	ids := g.SortedAccountIDs()
	idx := make(map[string]int, len(ids))
	for i, id := range ids {
		idx[id] = i
	}

	succ := make([][]int, len(ids))
	seen := make(map[[2]int]struct{})
	for _, tx := range g.Transactions() {
		key := [2]int{idx[tx.Source], idx[tx.Target]}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		succ[key[0]] = append(succ[key[0]], key[1])
	}
	for i := range succ {
		sort.Ints(succ[i])
	}

	raw, truncated := enumerate(succ, d.cfg.MaxLength, d.cfg.MaxCycles)
	res := Result{Truncated: truncated, Enumerated: len(raw)}

	for _, cycle := range raw {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if len(cycle) < d.cfg.MinLength {
			continue
		}

		finding, ok := d.realize(g, ids, cycle)
		if !ok {
			continue
		}
		res.Qualified++

		finding.SuspicionScore = d.score(&finding)
		if finding.SuspicionScore >= d.cfg.ScoreThreshold {
			res.Findings = append(res.Findings, finding)
		}
	}

	sort.Slice(res.Findings, func(a, b int) bool {
		fa, fb := res.Findings[a], res.Findings[b]
		if fa.SuspicionScore != fb.SuspicionScore {
			return fa.SuspicionScore > fb.SuspicionScore
		}
		return fa.ID < fb.ID
	})

	if res.Truncated {
		return res, fmt.Errorf("%w: stopped after %d cycles", domain.ErrCapacityExceeded, d.cfg.MaxCycles)
	}
	return res, nil
}

// realize picks a concrete transaction for each hop and applies the
// duration filter. Parallel edges between a hop's endpoints are
// resolved to the most recent one; a designed loop moves the latest
// funds, and the choice keeps results deterministic.
func (d *Detector) realize(g *graph.Graph, ids []string, cycle []int) (domain.CycleFinding, bool) {
	path := make([]string, 0, len(cycle)+1)
	for _, v := range cycle {
		path = append(path, ids[v])
	}
	path = append(path, ids[cycle[0]])

	edges := make([]domain.Transaction, 0, len(cycle))
	var total float64
	for i := 0; i < len(path)-1; i++ {
		candidates := g.EdgesBetween(path[i], path[i+1])
		if len(candidates) == 0 {
			return domain.CycleFinding{}, false
		}
		hop := candidates[0]
		for _, tx := range candidates[1:] {
			if tx.Timestamp.After(hop.Timestamp) {
				hop = tx
			}
		}
		edges = append(edges, hop)
		total += hop.Amount
	}

	earliest, latest := edges[0].Timestamp, edges[0].Timestamp
	for _, tx := range edges[1:] {
		if tx.Timestamp.Before(earliest) {
			earliest = tx.Timestamp
		}
		if tx.Timestamp.After(latest) {
			latest = tx.Timestamp
		}
	}
	span := latest.Sub(earliest)
	if span > d.cfg.MaxDuration {
		return domain.CycleFinding{}, false
	}

	return domain.CycleFinding{
		ID:           "cycle:" + strings.Join(path[:len(path)-1], ">"),
		Path:         path,
		Edges:        edges,
		TotalAmount:  total,
		DurationSpan: span,
	}, true
}

// score blends four signals into [0,1]. Amount regularity and tight
// timing dominate: constant pass-through amounts and a short span are
// the laundering signature, while the absolute amount and a preference
// for short loops refine the ranking.
func (d *Detector) score(f *domain.CycleFinding) float64 {
	amounts := make([]float64, len(f.Edges))
	var mean float64
	for i, tx := range f.Edges {
		amounts[i] = tx.Amount
		mean += tx.Amount
	}
	mean /= float64(len(amounts))

	var variance float64
	for _, a := range amounts {
		variance += (a - mean) * (a - mean)
	}
	std := math.Sqrt(variance / float64(len(amounts)))

	regularity := 0.0
	if mean > 0 {
		regularity = clamp01(1 - std/mean)
	}

	timing := clamp01(1 - float64(f.DurationSpan)/float64(d.cfg.MaxDuration))

	amount := clamp01(f.TotalAmount / (10 * d.cfg.MinAmountThreshold))

	length := 1.0
	if d.cfg.MaxLength > d.cfg.MinLength {
		length = float64(d.cfg.MaxLength-f.Length()) / float64(d.cfg.MaxLength-d.cfg.MinLength)
	}

	return clamp01(0.35*regularity + 0.35*timing + 0.2*amount + 0.1*length)
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
