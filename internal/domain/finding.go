package domain

import (
	"time"
)

// FindingKind tags the detector that produced a finding.
type FindingKind string

const (
	KindCycle    FindingKind = "cycle"
	KindSmurfing FindingKind = "smurfing"
	KindAnomaly  FindingKind = "anomaly"
)

// CycleFinding is a closed directed walk of transactions returning funds
// to their origin account. Path holds the account sequence with the first
// and last entries coinciding; Edges holds the transaction realizing each
// hop, in walk order. Read-only once created.
type CycleFinding struct {
	ID   string   `json:"id"`
	Path []string `json:"path"`

	Edges []Transaction `json:"edges"`

	TotalAmount  float64       `json:"totalAmount"`
	DurationSpan time.Duration `json:"durationSpan"`

	SuspicionScore float64 `json:"suspicionScore"`
}

// Length is the number of hops (and distinct accounts) in the cycle.
func (c *CycleFinding) Length() int {
	if len(c.Path) == 0 {
		return 0
	}
	return len(c.Path) - 1
}

// SmurfingFinding is a fan-in fractionation pattern: many near-equal
// small transfers from distinct senders converging on one pivot account.
type SmurfingFinding struct {
	ID    string `json:"id"`
	Pivot string `json:"pivot"`

	Senders      []string      `json:"senders"`
	Transactions []Transaction `json:"transactions"`
	Amounts      []float64     `json:"amounts"`

	TotalAmount   float64 `json:"totalAmount"`
	MeanAmount    float64 `json:"meanAmount"`
	VarianceRatio float64 `json:"varianceRatio"` // std dev / mean

	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`

	SuspicionScore float64 `json:"suspicionScore"`
}

// AnomalyKind identifies the network-anomaly sub-check that fired.
type AnomalyKind string

const (
	AnomalyHub      AnomalyKind = "hub"
	AnomalyBridge   AnomalyKind = "bridge"
	AnomalyIsolated AnomalyKind = "isolated_community"
	AnomalyBurst    AnomalyKind = "burst"
)

// NetworkAnomaly flags a structurally atypical node, edge or community.
// Metric and Value record what triggered the check; Threshold is the
// configured limit it exceeded.
type NetworkAnomaly struct {
	ID   string      `json:"id"`
	Kind AnomalyKind `json:"kind"`

	// Implicated accounts. One entry for hubs and bursts, the whole
	// community for isolated clusters, both endpoints for bridges.
	Accounts []string `json:"accounts"`

	// Set for bridge anomalies only.
	EdgeSource string `json:"edgeSource,omitempty"`
	EdgeTarget string `json:"edgeTarget,omitempty"`

	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`

	SuspicionScore float64 `json:"suspicionScore"`
}

// Finding is the tagged union used to aggregate detector outputs.
// Exactly one of Cycle, Smurfing, Anomaly is non-nil, matching Kind.
type Finding struct {
	Kind     FindingKind      `json:"kind"`
	Cycle    *CycleFinding    `json:"cycle,omitempty"`
	Smurfing *SmurfingFinding `json:"smurfing,omitempty"`
	Anomaly  *NetworkAnomaly  `json:"anomaly,omitempty"`
}

// Score returns the suspicion score of the wrapped finding.
func (f Finding) Score() float64 {
	switch f.Kind {
	case KindCycle:
		return f.Cycle.SuspicionScore
	case KindSmurfing:
		return f.Smurfing.SuspicionScore
	case KindAnomaly:
		return f.Anomaly.SuspicionScore
	}
	return 0
}

// FindingID returns the identifier of the wrapped finding.
func (f Finding) FindingID() string {
	switch f.Kind {
	case KindCycle:
		return f.Cycle.ID
	case KindSmurfing:
		return f.Smurfing.ID
	case KindAnomaly:
		return f.Anomaly.ID
	}
	return ""
}

// Record is the flat serializable projection of a finding consumed by
// reporting, triage rules and evaluation harnesses.
type Record struct {
	FindingID string  `json:"findingId"`
	Kind      string  `json:"kind"`
	SubKind   string  `json:"subKind,omitempty"` // anomaly check name
	Score     float64 `json:"score"`

	Accounts       []string `json:"accounts"`
	TransactionIDs []string `json:"transactionIds,omitempty"`

	TotalAmount     float64 `json:"totalAmount,omitempty"`
	Length          int     `json:"length,omitempty"`
	DurationHours   float64 `json:"durationHours,omitempty"`
	Pivot           string  `json:"pivot,omitempty"`
	DistinctSenders int     `json:"distinctSenders,omitempty"`
	Metric          string  `json:"metric,omitempty"`
	Value           float64 `json:"value,omitempty"`
	Threshold       float64 `json:"threshold,omitempty"`
}

// ToRecord flattens the finding for downstream consumers.
func (f Finding) ToRecord() Record {
	switch f.Kind {
	case KindCycle:
		c := f.Cycle
		rec := Record{
			FindingID:     c.ID,
			Kind:          string(KindCycle),
			Score:         c.SuspicionScore,
			Accounts:      c.Path[:len(c.Path)-1],
			TotalAmount:   c.TotalAmount,
			Length:        c.Length(),
			DurationHours: c.DurationSpan.Hours(),
		}
		for _, e := range c.Edges {
			rec.TransactionIDs = append(rec.TransactionIDs, e.ID)
		}
		return rec
	case KindSmurfing:
		s := f.Smurfing
		rec := Record{
			FindingID:       s.ID,
			Kind:            string(KindSmurfing),
			Score:           s.SuspicionScore,
			Accounts:        s.Senders,
			TotalAmount:     s.TotalAmount,
			Pivot:           s.Pivot,
			DistinctSenders: len(s.Senders),
		}
		for _, tx := range s.Transactions {
			rec.TransactionIDs = append(rec.TransactionIDs, tx.ID)
		}
		return rec
	case KindAnomaly:
		a := f.Anomaly
		return Record{
			FindingID: a.ID,
			Kind:      string(KindAnomaly),
			SubKind:   string(a.Kind),
			Score:     a.SuspicionScore,
			Accounts:  a.Accounts,
			Metric:    a.Metric,
			Value:     a.Value,
			Threshold: a.Threshold,
		}
	}
	return Record{}
}
