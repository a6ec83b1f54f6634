package domain

import (
	"time"
)

// GraphStats describes the analyzed snapshot.
type GraphStats struct {
	Accounts     int `json:"accounts"`
	Transactions int `json:"transactions"`
}

// Summary aggregates per-kind totals for one detection run. High-risk
// counts use the run's HighRiskThreshold.
type Summary struct {
	TotalCycles    int `json:"totalCycles"`
	TotalSmurfing  int `json:"totalSmurfing"`
	TotalAnomalies int `json:"totalAnomalies"`

	HighRiskCycles    int `json:"highRiskCycles"`
	HighRiskSmurfing  int `json:"highRiskSmurfing"`
	HighRiskAnomalies int `json:"highRiskAnomalies"`
}

// RunResult is the complete output of one detection run. Value object;
// not mutated after the run returns it.
type RunResult struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`

	Graph GraphStats `json:"graph"`

	Cycles    []CycleFinding    `json:"cycles"`
	Smurfing  []SmurfingFinding `json:"smurfing"`
	Anomalies []NetworkAnomaly  `json:"anomalies"`

	// CyclesTruncated is set when cycle enumeration hit its safety cap
	// and the cycle list is a partial result.
	CyclesTruncated bool `json:"cyclesTruncated"`

	// CentralityConverged is false when an iterative centrality method
	// stopped at its iteration cap; scores are then best-effort.
	CentralityConverged bool `json:"centralityConverged"`

	Modularity float64 `json:"modularity"`

	Summary Summary `json:"summary"`
}

// AllFindings flattens the run into the tagged union form, preserving
// per-kind order.
func (r *RunResult) AllFindings() []Finding {
	out := make([]Finding, 0, len(r.Cycles)+len(r.Smurfing)+len(r.Anomalies))
	for i := range r.Cycles {
		out = append(out, Finding{Kind: KindCycle, Cycle: &r.Cycles[i]})
	}
	for i := range r.Smurfing {
		out = append(out, Finding{Kind: KindSmurfing, Smurfing: &r.Smurfing[i]})
	}
	for i := range r.Anomalies {
		out = append(out, Finding{Kind: KindAnomaly, Anomaly: &r.Anomalies[i]})
	}
	return out
}
