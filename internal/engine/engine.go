// Package engine runs the three structural detectors over one frozen
// graph snapshot and assembles their outputs into a run result.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/anomaly"
	"github.com/opensource-finance/kestrel/internal/cycles"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/smurfing"
)

const metricsTTL = 10 * time.Minute

// Engine owns the detector configuration and the optional metric cache
// and event bus. Safe for concurrent Run calls; each run is independent
// and idempotent for a fixed graph and configuration.
type Engine struct {
	cfg     domain.DetectionConfig
	cfgHash string // anomaly config digest, part of the metric cache key
	cache   domain.MetricCache
	bus     domain.EventBus
	logger  *slog.Logger
	tracer  trace.Tracer

	cycleDet *cycles.Detector
	smurfDet *smurfing.Detector
	anomDet  *anomaly.Detector
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithCache attaches a metric cache keyed by graph content and anomaly
// configuration.
func WithCache(c domain.MetricCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithBus attaches an event bus for run and alert events.
func WithBus(b domain.EventBus) Option {
	return func(e *Engine) { e.bus = b }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New validates the configuration and builds the detectors. Detection
// never starts with out-of-range thresholds.
func New(cfg domain.DetectionConfig, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cycleDet, err := cycles.NewDetector(cfg.Cycle)
	if err != nil {
		return nil, err
	}
	smurfDet, err := smurfing.NewDetector(cfg.Smurfing)
	if err != nil {
		return nil, err
	}
	anomDet, err := anomaly.NewDetector(cfg.Anomaly)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		cfgHash:  hashAnomalyConfig(cfg.Anomaly),
		logger:   slog.Default(),
		tracer:   otel.Tracer("kestrel/engine"),
		cycleDet: cycleDet,
		smurfDet: smurfDet,
		anomDet:  anomDet,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run freezes the graph and executes the three detectors as parallel
// read-only passes over it. Structural errors fail the run; metric
// non-convergence degrades to best-effort scores with a flag on the
// result.
func (e *Engine) Run(ctx context.Context, g *graph.Graph) (*domain.RunResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.run")
	defer span.End()

	g.Freeze()
	started := time.Now()

	metrics, err := e.metrics(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if !metrics.Converged {
		e.logger.Warn("centrality did not converge, scores are best-effort",
			"metric", metrics.HubMetric,
		)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		runErrs  []error
		cycleRes cycles.Result
		smurfRes []domain.SmurfingFinding
		anomRes  []domain.NetworkAnomaly
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		dctx, dspan := e.tracer.Start(ctx, "detect.cycles")
		defer dspan.End()
		res, err := e.cycleDet.Detect(dctx, g)
		mu.Lock()
		defer mu.Unlock()
		// A tripped safety cap still yields usable partial findings.
		if err != nil && !errors.Is(err, domain.ErrCapacityExceeded) {
			runErrs = append(runErrs, fmt.Errorf("cycles: %w", err))
			return
		}
		cycleRes = res
	}()
	go func() {
		defer wg.Done()
		dctx, dspan := e.tracer.Start(ctx, "detect.smurfing")
		defer dspan.End()
		res, err := e.smurfDet.Detect(dctx, g)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			runErrs = append(runErrs, fmt.Errorf("smurfing: %w", err))
			return
		}
		smurfRes = res
	}()
	go func() {
		defer wg.Done()
		dctx, dspan := e.tracer.Start(ctx, "detect.anomalies")
		defer dspan.End()
		res, err := e.anomDet.Detect(dctx, g, metrics)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			runErrs = append(runErrs, fmt.Errorf("anomalies: %w", err))
			return
		}
		anomRes = res
	}()
	wg.Wait()

	if len(runErrs) > 0 {
		return nil, errors.Join(runErrs...)
	}

	result := &domain.RunResult{
		ID:                  uuid.New().String(),
		StartedAt:           started,
		Duration:            time.Since(started),
		Graph:               g.Stats(),
		Cycles:              cycleRes.Findings,
		Smurfing:            smurfRes,
		Anomalies:           anomRes,
		CyclesTruncated:     cycleRes.Truncated,
		CentralityConverged: metrics.Converged,
		Modularity:          metrics.Modularity,
	}
	result.Summary = e.summarize(result)

	if cycleRes.Truncated {
		e.logger.Warn("cycle enumeration hit safety cap, results are partial",
			"cap", e.cfg.Cycle.MaxCycles,
			"enumerated", cycleRes.Enumerated,
		)
	}
	e.logger.Info("detection run completed",
		"run_id", result.ID,
		"accounts", result.Graph.Accounts,
		"transactions", result.Graph.Transactions,
		"cycles", len(result.Cycles),
		"smurfing", len(result.Smurfing),
		"anomalies", len(result.Anomalies),
		"duration_ms", result.Duration.Milliseconds(),
	)

	e.publish(ctx, result)
	return result, nil
}

// hashAnomalyConfig digests the anomaly configuration for the metric
// cache key, so a config change never reuses metrics computed under
// the old settings.
func hashAnomalyConfig(cfg domain.AnomalyConfig) string {
	h := fnv.New64a()
	if data, err := json.Marshal(cfg); err == nil {
		h.Write(data)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// metricsKey identifies a metric vector by snapshot content and the
// configuration that produced it. Revisions only count mutations, so
// two graphs built from different datasets can share one; the content
// fingerprint keeps their entries apart.
func (e *Engine) metricsKey(g *graph.Graph) string {
	return fmt.Sprintf("metrics:%s:%s", e.cfgHash, g.Fingerprint())
}

// metrics loads the centrality and community measurements for the
// snapshot, from cache when the same content was analyzed before under
// the same configuration.
func (e *Engine) metrics(ctx context.Context, g *graph.Graph) (*anomaly.Metrics, error) {
	ctx, span := e.tracer.Start(ctx, "engine.metrics")
	defer span.End()

	key := e.metricsKey(g)
	if e.cache != nil {
		if data, err := e.cache.Get(ctx, key); err == nil && data != nil {
			var m anomaly.Metrics
			if err := json.Unmarshal(data, &m); err == nil {
				return &m, nil
			}
		}
	}

	m, err := anomaly.ComputeMetrics(ctx, g, e.cfg.Anomaly)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if data, err := json.Marshal(m); err == nil {
			if err := e.cache.Set(ctx, key, data, metricsTTL); err != nil {
				e.logger.Warn("metric cache write failed", "key", key, "error", err)
			}
		}
	}
	return m, nil
}

func (e *Engine) summarize(r *domain.RunResult) domain.Summary {
	s := domain.Summary{
		TotalCycles:    len(r.Cycles),
		TotalSmurfing:  len(r.Smurfing),
		TotalAnomalies: len(r.Anomalies),
	}
	for _, f := range r.Cycles {
		if f.SuspicionScore >= e.cfg.HighRiskThreshold {
			s.HighRiskCycles++
		}
	}
	for _, f := range r.Smurfing {
		if f.SuspicionScore >= e.cfg.HighRiskThreshold {
			s.HighRiskSmurfing++
		}
	}
	for _, f := range r.Anomalies {
		if f.SuspicionScore >= e.cfg.HighRiskThreshold {
			s.HighRiskAnomalies++
		}
	}
	return s
}

// publish emits the run summary and one alert per high-risk finding.
// Bus failures are logged, never fatal to the run.
func (e *Engine) publish(ctx context.Context, r *domain.RunResult) {
	if e.bus == nil {
		return
	}

	if payload, err := json.Marshal(r.Summary); err == nil {
		if err := e.bus.Publish(ctx, domain.TopicRunCompleted, payload); err != nil {
			e.logger.Warn("run event publish failed", "error", err)
		}
	}

	for _, f := range r.AllFindings() {
		if f.Score() < e.cfg.HighRiskThreshold {
			continue
		}
		payload, err := json.Marshal(f.ToRecord())
		if err != nil {
			continue
		}
		if err := e.bus.Publish(ctx, domain.TopicFindingAlert, payload); err != nil {
			e.logger.Warn("alert publish failed", "finding", f.FindingID(), "error", err)
		}
	}
}
