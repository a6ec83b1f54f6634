package cycles

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func tx(id, src, dst string, amount float64, offset time.Duration) domain.Transaction {
	return domain.Transaction{
		ID:        id,
		Source:    src,
		Target:    dst,
		Amount:    amount,
		Timestamp: baseTime.Add(offset),
		Type:      domain.TxTransfer,
	}
}

func buildGraph(t *testing.T, txs ...domain.Transaction) *graph.Graph {
	t.Helper()
	g := graph.New()
	for _, tr := range txs {
		if err := g.AddTransaction(tr); err != nil {
			t.Fatalf("AddTransaction failed: %v", err)
		}
	}
	g.Freeze()
	return g
}

func TestDetectTriangle(t *testing.T) {
	// A -> B -> C -> A, 1000 each, inside one hour.
	g := buildGraph(t,
		tx("t1", "acct-a", "acct-b", 1000, 0),
		tx("t2", "acct-b", "acct-c", 1000, 30*time.Minute),
		tx("t3", "acct-c", "acct-a", 1000, time.Hour),
	)

	det, err := NewDetector(domain.DefaultCycleConfig())
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	res, err := det.Detect(context.Background(), g)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(res.Findings) != 1 {
		t.Fatalf("expected exactly 1 finding, got %d", len(res.Findings))
	}
	f := res.Findings[0]
	if f.Length() != 3 {
		t.Errorf("expected length 3, got %d", f.Length())
	}
	if f.TotalAmount != 3000 {
		t.Errorf("expected total amount 3000, got %v", f.TotalAmount)
	}
	if f.SuspicionScore < 0.7 {
		t.Errorf("expected score >= 0.7, got %v", f.SuspicionScore)
	}
	if f.Path[0] != f.Path[len(f.Path)-1] {
		t.Errorf("path must close on its origin, got %v", f.Path)
	}
	if f.Path[0] != "acct-a" {
		t.Errorf("expected cycle rooted at smallest account, got %v", f.Path)
	}
	if f.ID != "cycle:acct-a>acct-b>acct-c" {
		t.Errorf("unexpected finding id %q", f.ID)
	}
	if res.Truncated {
		t.Error("unexpected truncation")
	}
}

func TestDetectDAGYieldsNothing(t *testing.T) {
	g := buildGraph(t,
		tx("t1", "a", "b", 1000, 0),
		tx("t2", "b", "c", 1000, time.Hour),
		tx("t3", "a", "c", 1000, 2*time.Hour),
	)

	det, _ := NewDetector(domain.DefaultCycleConfig())
	res, err := det.Detect(context.Background(), g)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(res.Findings) != 0 {
		t.Errorf("expected no findings on a DAG, got %d", len(res.Findings))
	}
	if res.Enumerated != 0 {
		t.Errorf("expected no enumerated cycles, got %d", res.Enumerated)
	}
}

func TestDetectExcludesShortCycles(t *testing.T) {
	// A 2-cycle sits below the minimum length.
	g := buildGraph(t,
		tx("t1", "a", "b", 1000, 0),
		tx("t2", "b", "a", 1000, time.Hour),
	)

	det, _ := NewDetector(domain.DefaultCycleConfig())
	res, err := det.Detect(context.Background(), g)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(res.Findings) != 0 {
		t.Errorf("expected 2-cycle to be excluded, got %d findings", len(res.Findings))
	}
	if res.Enumerated != 1 {
		t.Errorf("expected the 2-cycle to be enumerated, got %d", res.Enumerated)
	}
}

func TestDetectDurationFilter(t *testing.T) {
	// The loop closes, but over 100 hours; spread-out cycles do not
	// qualify.
	g := buildGraph(t,
		tx("t1", "a", "b", 1000, 0),
		tx("t2", "b", "c", 1000, 50*time.Hour),
		tx("t3", "c", "a", 1000, 100*time.Hour),
	)

	det, _ := NewDetector(domain.DefaultCycleConfig())
	res, err := det.Detect(context.Background(), g)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(res.Findings) != 0 {
		t.Errorf("expected duration filter to exclude the cycle, got %d findings", len(res.Findings))
	}
	if res.Qualified != 0 {
		t.Errorf("expected no qualified cycles, got %d", res.Qualified)
	}
}

func TestDetectIdempotent(t *testing.T) {
	g := buildGraph(t,
		tx("t1", "a", "b", 1000, 0),
		tx("t2", "b", "c", 1000, 10*time.Minute),
		tx("t3", "c", "a", 1000, 20*time.Minute),
		tx("t4", "c", "d", 900, 30*time.Minute),
		tx("t5", "d", "a", 900, 40*time.Minute),
		tx("t6", "a", "c", 950, 5*time.Minute),
	)

	det, _ := NewDetector(domain.DefaultCycleConfig())
	first, err := det.Detect(context.Background(), g)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	second, err := det.Detect(context.Background(), g)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("expected identical results for identical input")
	}
}

func TestDetectParallelEdgesPickMostRecent(t *testing.T) {
	g := buildGraph(t,
		tx("t1", "a", "b", 500, 0),
		tx("t2", "a", "b", 1000, 30*time.Minute), // later parallel edge wins
		tx("t3", "b", "c", 1000, 40*time.Minute),
		tx("t4", "c", "a", 1000, 50*time.Minute),
	)

	det, _ := NewDetector(domain.DefaultCycleConfig())
	res, err := det.Detect(context.Background(), g)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(res.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(res.Findings))
	}
	f := res.Findings[0]
	if f.Edges[0].ID != "t2" {
		t.Errorf("expected the most recent parallel edge, got %s", f.Edges[0].ID)
	}
	if f.TotalAmount != 3000 {
		t.Errorf("expected total amount 3000, got %v", f.TotalAmount)
	}
}

func TestDetectCapacityCap(t *testing.T) {
	// Three disjoint triangles with a cap of two cycles.
	var txs []domain.Transaction
	for n := 0; n < 3; n++ {
		for i := 0; i < 3; i++ {
			txs = append(txs, tx(
				fmt.Sprintf("t%d-%d", n, i),
				fmt.Sprintf("ring-%d-%d", n, i),
				fmt.Sprintf("ring-%d-%d", n, (i+1)%3),
				1000,
				time.Duration(i)*time.Minute,
			))
		}
	}
	g := buildGraph(t, txs...)

	cfg := domain.DefaultCycleConfig()
	cfg.MaxCycles = 2
	cfg.ScoreThreshold = 0

	det, err := NewDetector(cfg)
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	res, err := det.Detect(context.Background(), g)
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if !res.Truncated {
		t.Error("expected truncated result")
	}
	if len(res.Findings) == 0 {
		t.Error("expected partial findings alongside the capacity error")
	}
	if res.Enumerated != 2 {
		t.Errorf("expected enumeration to stop at the cap, got %d", res.Enumerated)
	}
}

func TestNewDetectorRejectsBadConfig(t *testing.T) {
	cfg := domain.DefaultCycleConfig()
	cfg.MinLength = 2
	if _, err := NewDetector(cfg); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestDetectCancelledContext(t *testing.T) {
	g := buildGraph(t, tx("t1", "a", "b", 1000, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	det, _ := NewDetector(domain.DefaultCycleConfig())
	if _, err := det.Detect(ctx, g); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
