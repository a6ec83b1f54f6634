// Package smurfing finds fan-in fractionation: a large sum split into
// many small transfers from distinct senders converging on one pivot
// account inside a short window, each transfer sitting under the
// reporting threshold it is evading.
package smurfing

import (
	"context"
	"math"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// Detector scans pivot candidates over a frozen graph snapshot.
type Detector struct {
	cfg domain.SmurfingConfig
}

// NewDetector validates the configuration up front.
func NewDetector(cfg domain.SmurfingConfig) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

// Detect returns at most one finding per pivot, the best-scoring
// qualifying window, sorted by descending suspicion score. Pivots are
// visited in sorted account order and finding ids derive from the
// pivot, so identical inputs yield identical ordered results.
func (d *Detector) Detect(ctx context.Context, g *graph.Graph) ([]domain.SmurfingFinding, error) {
	var findings []domain.SmurfingFinding

	for _, pivot := range g.SortedAccountIDs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if g.InDegree(pivot) < d.cfg.MinIncomingTransactions {
			continue
		}

		incoming := make([]domain.Transaction, 0, g.InDegree(pivot))
		for _, tx := range g.Neighbors(pivot, graph.In) {
			if tx.Amount <= d.cfg.MaxTransactionAmount {
				incoming = append(incoming, tx)
			}
		}
		if len(incoming) < d.cfg.MinIncomingTransactions {
			continue
		}
		sort.Slice(incoming, func(a, b int) bool {
			if !incoming[a].Timestamp.Equal(incoming[b].Timestamp) {
				return incoming[a].Timestamp.Before(incoming[b].Timestamp)
			}
			return incoming[a].ID < incoming[b].ID
		})

		if best, ok := d.bestWindow(pivot, incoming); ok {
			findings = append(findings, best)
		}
	}

	sort.Slice(findings, func(a, b int) bool {
		if findings[a].SuspicionScore != findings[b].SuspicionScore {
			return findings[a].SuspicionScore > findings[b].SuspicionScore
		}
		return findings[a].Pivot < findings[b].Pivot
	})
	return findings, nil
}

// bestWindow slides the configured window over the pivot's time-sorted
// incoming transactions and keeps the highest-scoring qualifying
// window. A zero window means all incoming transactions are one
// candidate regardless of time.
func (d *Detector) bestWindow(pivot string, incoming []domain.Transaction) (domain.SmurfingFinding, bool) {
	if d.cfg.Window == 0 {
		return d.evaluate(pivot, incoming)
	}

	var best domain.SmurfingFinding
	found := false
	for start := 0; start <= len(incoming)-d.cfg.MinIncomingTransactions; start++ {
		cutoff := incoming[start].Timestamp.Add(d.cfg.Window)
		end := start
		for end < len(incoming) && !incoming[end].Timestamp.After(cutoff) {
			end++
		}
		candidate, ok := d.evaluate(pivot, incoming[start:end])
		if !ok {
			continue
		}
		if !found || candidate.SuspicionScore > best.SuspicionScore {
			best = candidate
			found = true
		}
	}
	return best, found
}

// evaluate applies the qualification checks to one window and scores
// it. Deliberate splitting reads as many distinct senders sending
// near-equal amounts close to the reporting threshold.
func (d *Detector) evaluate(pivot string, window []domain.Transaction) (domain.SmurfingFinding, bool) {
	if len(window) < d.cfg.MinIncomingTransactions {
		return domain.SmurfingFinding{}, false
	}

	senderSet := make(map[string]struct{}, len(window))
	amounts := make([]float64, len(window))
	var total float64
	for i, tx := range window {
		senderSet[tx.Source] = struct{}{}
		amounts[i] = tx.Amount
		total += tx.Amount
	}
	if len(senderSet) < d.cfg.DistinctSenders {
		return domain.SmurfingFinding{}, false
	}

	mean := total / float64(len(amounts))
	var variance float64
	for _, a := range amounts {
		variance += (a - mean) * (a - mean)
	}
	std := math.Sqrt(variance / float64(len(amounts)))
	cv := 0.0
	if mean > 0 {
		cv = std / mean
	}
	if cv > d.cfg.AmountVarianceThreshold {
		return domain.SmurfingFinding{}, false
	}

	senders := make([]string, 0, len(senderSet))
	for s := range senderSet {
		senders = append(senders, s)
	}
	sort.Strings(senders)

	sendersComp := clamp01(float64(len(senders)) / float64(2*d.cfg.DistinctSenders))
	uniformity := clamp01(1 - cv)
	proximity := clamp01(total / (float64(len(window)) * d.cfg.MaxTransactionAmount))
	score := clamp01(0.35*sendersComp + 0.40*uniformity + 0.25*proximity)
	if score < d.cfg.ScoreThreshold {
		return domain.SmurfingFinding{}, false
	}

	f := domain.SmurfingFinding{
		ID:             "smurf:" + pivot,
		Pivot:          pivot,
		Senders:        senders,
		Transactions:   append([]domain.Transaction(nil), window...),
		Amounts:        amounts,
		TotalAmount:    total,
		MeanAmount:     mean,
		VarianceRatio:  cv,
		WindowStart:    window[0].Timestamp,
		WindowEnd:      window[len(window)-1].Timestamp,
		SuspicionScore: score,
	}
	return f, true
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
