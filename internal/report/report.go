// Package report renders detection run results for humans and for
// downstream tooling.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Records flattens every finding in the run for export and triage.
func Records(r *domain.RunResult) []domain.Record {
	findings := r.AllFindings()
	records := make([]domain.Record, len(findings))
	for i, f := range findings {
		records[i] = f.ToRecord()
	}
	return records
}

// Export is the machine-readable report shape.
type Export struct {
	Run     *domain.RunResult `json:"run"`
	Records []domain.Record   `json:"records"`
}

// WriteJSON emits the run and its flattened records as indented JSON.
func WriteJSON(w io.Writer, r *domain.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Export{Run: r, Records: Records(r)})
}

// WriteText renders a human-readable report.
func WriteText(w io.Writer, r *domain.RunResult) error {
	fmt.Fprintf(w, "Detection run %s\n", r.ID)
	fmt.Fprintf(w, "  accounts=%d transactions=%d duration=%s modularity=%.3f\n",
		r.Graph.Accounts, r.Graph.Transactions, r.Duration.Round(0), r.Modularity)
	if r.CyclesTruncated {
		fmt.Fprintln(w, "  WARNING: cycle enumeration hit the safety cap, cycle results are partial")
	}
	if !r.CentralityConverged {
		fmt.Fprintln(w, "  WARNING: centrality did not converge, anomaly scores are best-effort")
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)

	fmt.Fprintf(w, "Laundering loops (%d, %d high risk)\n", r.Summary.TotalCycles, r.Summary.HighRiskCycles)
	if len(r.Cycles) > 0 {
		fmt.Fprintln(tw, "  SCORE\tLEN\tAMOUNT\tSPAN\tPATH")
		for _, c := range r.Cycles {
			fmt.Fprintf(tw, "  %.3f\t%d\t%.2f\t%s\t%s\n",
				c.SuspicionScore, c.Length(), c.TotalAmount, c.DurationSpan.Round(0), strings.Join(c.Path, " > "))
		}
		tw.Flush()
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Smurfing patterns (%d, %d high risk)\n", r.Summary.TotalSmurfing, r.Summary.HighRiskSmurfing)
	if len(r.Smurfing) > 0 {
		fmt.Fprintln(tw, "  SCORE\tPIVOT\tSENDERS\tTOTAL\tMEAN\tCV")
		for _, s := range r.Smurfing {
			fmt.Fprintf(tw, "  %.3f\t%s\t%d\t%.2f\t%.2f\t%.3f\n",
				s.SuspicionScore, s.Pivot, len(s.Senders), s.TotalAmount, s.MeanAmount, s.VarianceRatio)
		}
		tw.Flush()
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Network anomalies (%d, %d high risk)\n", r.Summary.TotalAnomalies, r.Summary.HighRiskAnomalies)
	if len(r.Anomalies) > 0 {
		fmt.Fprintln(tw, "  SCORE\tKIND\tMETRIC\tVALUE\tTHRESHOLD\tACCOUNTS")
		for _, a := range r.Anomalies {
			accounts := strings.Join(a.Accounts, ",")
			if len(a.Accounts) > 4 {
				accounts = fmt.Sprintf("%s,... (%d)", strings.Join(a.Accounts[:4], ","), len(a.Accounts))
			}
			fmt.Fprintf(tw, "  %.3f\t%s\t%s\t%.3f\t%.3f\t%s\n",
				a.SuspicionScore, a.Kind, a.Metric, a.Value, a.Threshold, accounts)
		}
		tw.Flush()
	}

	return nil
}
