// Benchmark tool measuring Kestrel detector quality and latency on
// synthetic datasets with known injected fraud.
//
// Usage:
//   go run cmd/benchmark/main.go -accounts 2000 -transactions 4000
//
// This tool:
//  1. Generates a seeded dataset with injected cycles, smurfing and hubs
//  2. Runs the detection engine in-process
//  3. Compares detected accounts against the ground-truth labels
//  4. Calculates precision, recall and F1 per pattern, plus run latency
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
	"github.com/opensource-finance/kestrel/internal/generator"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// latencyBudget is the target wall-clock time for one detection run at
// benchmark volume.
const latencyBudget = 5 * time.Second

type metrics struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int
}

func (m metrics) precision() float64 {
	if m.TruePositives+m.FalsePositives == 0 {
		return 0
	}
	return float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
}

func (m metrics) recall() float64 {
	if m.TruePositives+m.FalseNegatives == 0 {
		return 0
	}
	return float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
}

func (m metrics) f1() float64 {
	p, r := m.precision(), m.recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func main() {
	accounts := flag.Int("accounts", 2000, "background account pool size")
	transactions := flag.Int("transactions", 4000, "background transaction count")
	seed := flag.Int64("seed", 1, "dataset seed")
	cyclesN := flag.Int("cycles", 5, "injected laundering loops")
	smurfsN := flag.Int("smurfs", 5, "injected smurfing patterns")
	hubsN := flag.Int("hubs", 3, "injected hub accounts")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	cfg := generator.DefaultConfig()
	cfg.Seed = *seed
	cfg.Accounts = *accounts
	cfg.Transactions = *transactions
	cfg.InjectCycles = *cyclesN
	cfg.InjectSmurfing = *smurfsN
	cfg.InjectHubs = *hubsN

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        KESTREL BENCHMARK - Synthetic Fraud Detection          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nAccounts:     %d\n", cfg.Accounts)
	fmt.Printf("Transactions: %d\n", cfg.Transactions)
	fmt.Printf("Seed:         %d\n", cfg.Seed)
	fmt.Printf("Injected:     %d cycles, %d smurfing, %d hubs\n\n", cfg.InjectCycles, cfg.InjectSmurfing, cfg.InjectHubs)

	txs, labels, err := generator.New(cfg).Generate()
	if err != nil {
		fmt.Printf("ERROR: dataset generation failed: %v\n", err)
		os.Exit(1)
	}

	g, err := graph.Build(txs, graph.Filter{})
	if err != nil {
		fmt.Printf("ERROR: graph build failed: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.New(domain.DefaultDetectionConfig())
	if err != nil {
		fmt.Printf("ERROR: engine init failed: %v\n", err)
		os.Exit(1)
	}

	start := time.Now()
	result, err := eng.Run(context.Background(), g)
	if err != nil {
		fmt.Printf("ERROR: detection run failed: %v\n", err)
		os.Exit(1)
	}
	elapsed := time.Since(start)

	// Account-level comparison per pattern.
	cycleTruth := make(map[string]bool)
	for _, ring := range labels.CycleAccounts {
		for _, id := range ring {
			cycleTruth[id] = true
		}
	}
	cyclePred := make(map[string]bool)
	for _, c := range result.Cycles {
		for _, id := range c.Path[:len(c.Path)-1] {
			cyclePred[id] = true
		}
	}

	smurfTruth := make(map[string]bool)
	for _, pivot := range labels.SmurfPivots {
		smurfTruth[pivot] = true
	}
	smurfPred := make(map[string]bool)
	for _, s := range result.Smurfing {
		smurfPred[s.Pivot] = true
	}

	hubTruth := make(map[string]bool)
	for _, id := range labels.HubAccounts {
		hubTruth[id] = true
	}
	hubPred := make(map[string]bool)
	for _, a := range result.Anomalies {
		if a.Kind == domain.AnomalyHub {
			for _, id := range a.Accounts {
				hubPred[id] = true
			}
		}
	}

	fmt.Printf("Run %s: %d accounts, %d transactions in %s\n\n",
		result.ID, result.Graph.Accounts, result.Graph.Transactions, elapsed.Round(time.Millisecond))

	printMetrics("Cycle accounts  ", compare(cyclePred, cycleTruth))
	printMetrics("Smurfing pivots ", compare(smurfPred, smurfTruth))
	printMetrics("Hub accounts    ", compare(hubPred, hubTruth))

	fmt.Printf("\nFindings: %d cycles, %d smurfing, %d anomalies (truncated=%v)\n",
		len(result.Cycles), len(result.Smurfing), len(result.Anomalies), result.CyclesTruncated)

	if elapsed > latencyBudget {
		fmt.Printf("\nLATENCY: %s exceeds the %s budget\n", elapsed.Round(time.Millisecond), latencyBudget)
		os.Exit(1)
	}
	fmt.Printf("\nLatency: %s (budget %s)\n", elapsed.Round(time.Millisecond), latencyBudget)
}

func compare(pred, truth map[string]bool) metrics {
	var m metrics
	for id := range pred {
		if truth[id] {
			m.TruePositives++
		} else {
			m.FalsePositives++
		}
	}
	for id := range truth {
		if !pred[id] {
			m.FalseNegatives++
		}
	}
	return m
}

func printMetrics(name string, m metrics) {
	fmt.Printf("%s precision=%.3f recall=%.3f f1=%.3f (tp=%d fp=%d fn=%d)\n",
		name, m.precision(), m.recall(), m.f1(), m.TruePositives, m.FalsePositives, m.FalseNegatives)
}
