package community

import (
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

func buildGraph(t *testing.T, edges [][2]string) *graph.Graph {
	t.Helper()
	g := graph.New()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, e := range edges {
		tx := domain.Transaction{
			ID:        fmt.Sprintf("t%03d", i),
			Source:    e[0],
			Target:    e[1],
			Amount:    100,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Type:      domain.TxTransfer,
		}
		if err := g.AddTransaction(tx); err != nil {
			t.Fatalf("AddTransaction failed: %v", err)
		}
	}
	g.Freeze()
	return g
}

// twoTriangles is two internally dense groups joined by one bridge.
var twoTriangles = [][2]string{
	{"a1", "a2"}, {"a2", "a3"}, {"a3", "a1"},
	{"b1", "b2"}, {"b2", "b3"}, {"b3", "b1"},
	{"a1", "b1"},
}

func assertTwoTrianglePartition(t *testing.T, res Result) {
	t.Helper()
	for _, id := range []string{"a2", "a3"} {
		if res.Labels[id] != res.Labels["a1"] {
			t.Errorf("expected %s in a1's community, labels: %v", id, res.Labels)
		}
	}
	for _, id := range []string{"b2", "b3"} {
		if res.Labels[id] != res.Labels["b1"] {
			t.Errorf("expected %s in b1's community, labels: %v", id, res.Labels)
		}
	}
	if res.Labels["a1"] == res.Labels["b1"] {
		t.Errorf("expected the triangles in separate communities, labels: %v", res.Labels)
	}
	// Dense labels, ordered by lowest member id.
	if res.Labels["a1"] != 0 || res.Labels["b1"] != 1 {
		t.Errorf("expected labels 0 and 1 ordered by lowest member, got %v", res.Labels)
	}
	if res.Modularity <= 0.3 {
		t.Errorf("expected modularity above 0.3, got %v", res.Modularity)
	}
}

func TestLouvain(t *testing.T) {
	g := buildGraph(t, twoTriangles)
	res, err := NewEngine(g).Detect(domain.DefaultCommunityConfig())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	assertTwoTrianglePartition(t, res)
}

func TestGirvanNewman(t *testing.T) {
	g := buildGraph(t, twoTriangles)
	cfg := domain.DefaultCommunityConfig()
	cfg.Algorithm = domain.CommunityGirvanNewman
	res, err := NewEngine(g).Detect(cfg)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	assertTwoTrianglePartition(t, res)
}

func TestDetectRejectsBadConfig(t *testing.T) {
	g := buildGraph(t, twoTriangles)
	cfg := domain.DefaultCommunityConfig()
	cfg.Algorithm = "label-propagation"
	if _, err := NewEngine(g).Detect(cfg); err == nil {
		t.Error("expected error for unknown algorithm")
	}
}

func TestDetectDeterministic(t *testing.T) {
	g := buildGraph(t, twoTriangles)
	e := NewEngine(g)
	cfg := domain.DefaultCommunityConfig()

	first, err := e.Detect(cfg)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	second, err := e.Detect(cfg)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(first.Labels) != len(second.Labels) {
		t.Fatalf("label count changed between runs: %d vs %d", len(first.Labels), len(second.Labels))
	}
	for id, label := range first.Labels {
		if second.Labels[id] != label {
			t.Errorf("label for %s changed between runs: %d vs %d", id, label, second.Labels[id])
		}
	}
	if first.Modularity != second.Modularity {
		t.Errorf("modularity changed between runs: %v vs %v", first.Modularity, second.Modularity)
	}
}

func TestCommunities(t *testing.T) {
	res := Result{Labels: map[string]int{"c": 0, "a": 0, "b": 1}}
	groups := res.Communities()
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0][0] != "a" || groups[0][1] != "c" {
		t.Errorf("expected sorted members [a c], got %v", groups[0])
	}
}

func TestSingletonGraph(t *testing.T) {
	g := buildGraph(t, [][2]string{{"a", "b"}})
	res, err := NewEngine(g).Detect(domain.DefaultCommunityConfig())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(res.Labels) != 2 {
		t.Errorf("expected labels for both accounts, got %v", res.Labels)
	}
}
