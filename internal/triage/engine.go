// Package triage provides the CEL-Go based finding triage engine.
// Findings coming out of a detection run are evaluated against
// operator-defined rules that assign each one a disposition.
package triage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Rule outcomes.
const (
	OutcomeEscalate = "escalate"
	OutcomeReview   = "review"
	OutcomeIgnore   = "ignore"
	OutcomeError    = "error"
)

// Band maps a score range to an outcome. Lower bound inclusive, upper
// exclusive; a nil upper bound means unbounded.
type Band struct {
	LowerLimit *float64 `json:"lowerLimit"`
	UpperLimit *float64 `json:"upperLimit"`
	Outcome    string   `json:"outcome"`
	Reason     string   `json:"reason"`
}

// Rule is one operator-defined triage rule. Expression is a CEL
// expression over finding record fields returning bool, int or double.
type Rule struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Enabled     bool    `json:"enabled"`
	Weight      float64 `json:"weight"`
	Bands       []Band  `json:"bands"`
}

// Decision is the outcome of evaluating one rule against one finding.
type Decision struct {
	RuleID    string  `json:"ruleId"`
	FindingID string  `json:"findingId"`
	Score     float64 `json:"score"`
	Outcome   string  `json:"outcome"`
	Reason    string  `json:"reason"`
	Weight    float64 `json:"weight"`
	ProcessMs int64   `json:"processMs"`
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *Rule
	Program cel.Program
}

// Engine is the CEL-based triage engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// NewEngine creates a triage engine with the finding record fields
// exposed as CEL variables.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("sub_kind", cel.StringType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("total_amount", cel.DoubleType),
		cel.Variable("length", cel.IntType),
		cel.Variable("duration_hours", cel.DoubleType),
		cel.Variable("pivot", cel.StringType),
		cel.Variable("distinct_senders", cel.IntType),
		cel.Variable("metric", cel.StringType),
		cel.Variable("value", cel.DoubleType),
		cel.Variable("threshold", cel.DoubleType),
		cel.Variable("accounts", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(cfg *Rule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads multiple rules, skipping disabled ones.
func (e *Engine) LoadRules(configs []*Rule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules atomically replaces the loaded rule set.
func (e *Engine) ReloadRules(configs []*Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// EvaluateAll evaluates all loaded rules against one finding record in
// parallel.
func (e *Engine) EvaluateAll(ctx context.Context, rec domain.Record) ([]Decision, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	activation := map[string]any{
		"kind":             rec.Kind,
		"sub_kind":         rec.SubKind,
		"score":            rec.Score,
		"total_amount":     rec.TotalAmount,
		"length":           int64(rec.Length),
		"duration_hours":   rec.DurationHours,
		"pivot":            rec.Pivot,
		"distinct_senders": int64(rec.DistinctSenders),
		"metric":           rec.Metric,
		"value":            rec.Value,
		"threshold":        rec.Threshold,
		"accounts":         rec.Accounts,
	}

	// Parallel evaluation using worker pool pattern
	results := make([]Decision, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(r, activation, rec.FindingID)
		}(i, rule)
	}

	wg.Wait()

	return results, nil
}

// evaluateRule evaluates a single rule and returns the decision.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any, findingID string) Decision {
	start := time.Now()

	decision := Decision{
		RuleID:    rule.Config.ID,
		FindingID: findingID,
		Weight:    rule.Config.Weight,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		decision.Outcome = OutcomeError
		decision.Reason = fmt.Sprintf("evaluation error: %v", err)
		decision.ProcessMs = time.Since(start).Milliseconds()
		return decision
	}

	decision.Score = toScore(out)
	decision.Outcome, decision.Reason = matchBand(decision.Score, rule.Config.Bands)
	decision.ProcessMs = time.Since(start).Milliseconds()

	return decision
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the matching band for a score. Bands are evaluated in
// order, lower inclusive, upper exclusive, nil upper meaning unbounded.
func matchBand(score float64, bands []Band) (string, string) {
	for _, band := range bands {
		lower := 0.0
		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if score < lower {
			continue
		}
		if band.UpperLimit == nil || score < *band.UpperLimit {
			return band.Outcome, band.Reason
		}
	}

	// Default to ignore if no band matches
	return OutcomeIgnore, "no matching band"
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*Rule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *Rule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
