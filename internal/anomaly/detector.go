// Package anomaly flags structurally atypical accounts, edges and
// communities: hubs with outlying centrality, bridge edges carrying a
// disproportionate share of shortest paths, dense communities nearly
// cut off from the rest of the graph, and bursts of outgoing activity.
package anomaly

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/kestrel/internal/centrality"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// Detector runs the four sub-checks over a frozen graph snapshot.
type Detector struct {
	cfg domain.AnomalyConfig
}

// NewDetector validates the configuration up front.
func NewDetector(cfg domain.AnomalyConfig) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

// Detect returns anomalies sorted by descending suspicion score. A nil
// metrics argument makes the detector compute them itself; the engine
// passes precomputed (possibly cached) metrics instead.
func (d *Detector) Detect(ctx context.Context, g *graph.Graph, m *Metrics) ([]domain.NetworkAnomaly, error) {
	if m == nil {
		var err error
		m, err = ComputeMetrics(ctx, g, d.cfg)
		if err != nil {
			return nil, err
		}
	}

	var out []domain.NetworkAnomaly
	out = append(out, d.hubs(g, m)...)
	out = append(out, d.bridges(g, m)...)
	out = append(out, d.isolated(g, m)...)
	if d.cfg.BurstEnabled {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, d.bursts(g)...)
	}

	sort.Slice(out, func(a, b int) bool {
		if out[a].SuspicionScore != out[b].SuspicionScore {
			return out[a].SuspicionScore > out[b].SuspicionScore
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

// hubs flags accounts whose centrality sits past the configured number
// of standard deviations above the mean, or whose raw degree exceeds
// the hard threshold. One anomaly per account, scored on whichever
// trigger exceeds its threshold the most.
func (d *Detector) hubs(g *graph.Graph, m *Metrics) []domain.NetworkAnomaly {
	mean, std := centrality.Stats(m.Hub)
	metricCutoff := mean + d.cfg.OutlierStdDevs*std

	var out []domain.NetworkAnomaly
	for _, id := range g.SortedAccountIDs() {
		var score float64
		metric := ""
		value, threshold := 0.0, 0.0

		if std > 0 && m.Hub[id] > metricCutoff {
			metric = string(m.HubMetric)
			value, threshold = m.Hub[id], metricCutoff
			score = exceedScore(value, threshold, 1-threshold)
		}
		if deg := g.Degree(id); deg > d.cfg.HubDegreeThreshold {
			if s := exceedScore(float64(deg), float64(d.cfg.HubDegreeThreshold), float64(d.cfg.HubDegreeThreshold)); s > score {
				metric = "degree"
				value, threshold = float64(deg), float64(d.cfg.HubDegreeThreshold)
				score = s
			}
		}
		if metric == "" {
			continue
		}

		out = append(out, domain.NetworkAnomaly{
			ID:             "anomaly:hub:" + id,
			Kind:           domain.AnomalyHub,
			Accounts:       []string{id},
			Metric:         metric,
			Value:          value,
			Threshold:      threshold,
			SuspicionScore: score,
		})
	}
	return out
}

// bridges flags edges whose betweenness exceeds the configured share of
// shortest paths. Edge orientation is recovered from the underlying
// transactions.
func (d *Detector) bridges(g *graph.Graph, m *Metrics) []domain.NetworkAnomaly {
	var out []domain.NetworkAnomaly
	for _, e := range m.Edges {
		if e.Score <= d.cfg.BridgeBetweennessThreshold {
			continue
		}
		src, dst := e.A, e.B
		if len(g.EdgesBetween(src, dst)) == 0 {
			src, dst = dst, src
		}
		out = append(out, domain.NetworkAnomaly{
			ID:             fmt.Sprintf("anomaly:bridge:%s>%s", src, dst),
			Kind:           domain.AnomalyBridge,
			Accounts:       []string{e.A, e.B},
			EdgeSource:     src,
			EdgeTarget:     dst,
			Metric:         "edge_betweenness",
			Value:          e.Score,
			Threshold:      d.cfg.BridgeBetweennessThreshold,
			SuspicionScore: exceedScore(e.Score, d.cfg.BridgeBetweennessThreshold, 1-d.cfg.BridgeBetweennessThreshold),
		})
	}
	return out
}

// isolated flags communities that are internally dense but have almost
// no edges to the rest of the graph, the shape of a closed clearing
// ring. Density and cross-edge counts use distinct undirected pairs.
func (d *Detector) isolated(g *graph.Graph, m *Metrics) []domain.NetworkAnomaly {
	members := make(map[int][]string)
	for id, label := range m.Labels {
		members[label] = append(members[label], id)
	}

	pairSeen := make(map[centrality.EdgeKey]struct{})
	internal := make(map[int]int)
	cross := make(map[int]int)
	for _, tx := range g.Transactions() {
		key := centrality.MakeEdgeKey(tx.Source, tx.Target)
		if _, dup := pairSeen[key]; dup {
			continue
		}
		pairSeen[key] = struct{}{}
		la, lb := m.Labels[key.A], m.Labels[key.B]
		if la == lb {
			internal[la]++
		} else {
			cross[la]++
			cross[lb]++
		}
	}

	labels := make([]int, 0, len(members))
	for label := range members {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	var out []domain.NetworkAnomaly
	for _, label := range labels {
		comm := members[label]
		n := len(comm)
		if n < d.cfg.IsolationMinSize {
			continue
		}
		possible := n * (n - 1) / 2
		density := float64(internal[label]) / float64(possible)
		if density < d.cfg.IsolationMinDensity || cross[label] >= d.cfg.IsolationCrossEdges {
			continue
		}
		sort.Strings(comm)

		out = append(out, domain.NetworkAnomaly{
			ID:             "anomaly:isolated:" + comm[0],
			Kind:           domain.AnomalyIsolated,
			Accounts:       comm,
			Metric:         "internal_density",
			Value:          density,
			Threshold:      d.cfg.IsolationMinDensity,
			SuspicionScore: clamp01(0.6*density + 0.4*clamp01(float64(n)/20)),
		})
	}
	return out
}

// bursts flags accounts firing an unusual number of outgoing
// transactions inside one sliding window.
func (d *Detector) bursts(g *graph.Graph) []domain.NetworkAnomaly {
	var out []domain.NetworkAnomaly
	for _, id := range g.SortedAccountIDs() {
		outgoing := g.Neighbors(id, graph.Out)
		if len(outgoing) < d.cfg.BurstThreshold {
			continue
		}
		sort.Slice(outgoing, func(a, b int) bool {
			return outgoing[a].Timestamp.Before(outgoing[b].Timestamp)
		})

		best := 0
		for start := 0; start < len(outgoing); start++ {
			cutoff := outgoing[start].Timestamp.Add(d.cfg.BurstWindow)
			end := start
			for end < len(outgoing) && !outgoing[end].Timestamp.After(cutoff) {
				end++
			}
			if end-start > best {
				best = end - start
			}
		}
		if best < d.cfg.BurstThreshold {
			continue
		}

		out = append(out, domain.NetworkAnomaly{
			ID:             "anomaly:burst:" + id,
			Kind:           domain.AnomalyBurst,
			Accounts:       []string{id},
			Metric:         "outgoing_burst",
			Value:          float64(best),
			Threshold:      float64(d.cfg.BurstThreshold),
			SuspicionScore: exceedScore(float64(best), float64(d.cfg.BurstThreshold), float64(2*d.cfg.BurstThreshold)),
		})
	}
	return out
}

// exceedScore maps a value past its threshold into [0.5, 1], scaling
// the overshoot by the available headroom.
func exceedScore(value, threshold, scale float64) float64 {
	if scale <= 0 {
		scale = 1
	}
	return clamp01(0.5 + (value-threshold)/scale)
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
