package centrality

import (
	"fmt"
	"math"
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

func approx(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol
}

func TestDegreeCentrality(t *testing.T) {
	// a -> b -> c: b touches both others, a and c touch one each.
	g := buildGraph(t, [][2]string{{"a", "b"}, {"b", "c"}})
	scores := NewEngine(g).DegreeCentrality()

	if !approx(scores["b"], 0.5, 1e-9) {
		t.Errorf("expected b degree centrality 0.5, got %v", scores["b"])
	}
	if !approx(scores["a"], 0.25, 1e-9) {
		t.Errorf("expected a degree centrality 0.25, got %v", scores["a"])
	}
}

func TestDegreeCentralityIgnoresParallelEdges(t *testing.T) {
	g := buildGraph(t, [][2]string{{"a", "b"}, {"a", "b"}, {"b", "c"}})
	scores := NewEngine(g).DegreeCentrality()
	if !approx(scores["a"], 0.25, 1e-9) {
		t.Errorf("parallel edges should not inflate centrality, got %v", scores["a"])
	}
}

func TestBetweennessCentrality(t *testing.T) {
	// Directed path a -> b -> c: only b sits on a shortest path between
	// two other vertices, and only one of the (n-1)(n-2)=2 ordered pairs
	// is connected.
	g := buildGraph(t, [][2]string{{"a", "b"}, {"b", "c"}})
	scores := NewEngine(g).BetweennessCentrality()

	if !approx(scores["b"], 0.5, 1e-9) {
		t.Errorf("expected b betweenness 0.5, got %v", scores["b"])
	}
	if scores["a"] != 0 || scores["c"] != 0 {
		t.Errorf("endpoints should have zero betweenness, got a=%v c=%v", scores["a"], scores["c"])
	}
}

func TestEdgeBetweenness(t *testing.T) {
	// Undirected path a - b - c. Edge (a,b) carries pairs (a,b) and
	// (a,c); counted from both endpoints that is 4 of n(n-1)=6.
	g := buildGraph(t, [][2]string{{"a", "b"}, {"b", "c"}})
	scores := NewEngine(g).EdgeBetweenness()

	want := 4.0 / 6.0
	if got := scores[MakeEdgeKey("a", "b")]; !approx(got, want, 1e-9) {
		t.Errorf("expected edge betweenness %v, got %v", want, got)
	}
}

func TestEdgeBetweennessBridge(t *testing.T) {
	// Two triangles joined by one bridge: the bridge dominates.
	g := buildGraph(t, [][2]string{
		{"a1", "a2"}, {"a2", "a3"}, {"a3", "a1"},
		{"b1", "b2"}, {"b2", "b3"}, {"b3", "b1"},
		{"a1", "b1"},
	})
	scores := NewEngine(g).EdgeBetweenness()

	bridge := scores[MakeEdgeKey("a1", "b1")]
	for k, v := range scores {
		if k != MakeEdgeKey("a1", "b1") && v >= bridge {
			t.Errorf("edge %v betweenness %v should be below bridge %v", k, v, bridge)
		}
	}
}

func TestPageRank(t *testing.T) {
	cfg := domain.DefaultPageRankConfig()

	t.Run("SumsToOne", func(t *testing.T) {
		g := buildGraph(t, [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}, {"a", "c"}})
		scores, converged := NewEngine(g).PageRank(cfg)
		if !converged {
			t.Error("expected convergence on a 3-node graph")
		}
		var sum float64
		for _, v := range scores {
			sum += v
		}
		if !approx(sum, 1.0, 1e-6) {
			t.Errorf("expected ranks to sum to 1, got %v", sum)
		}
	})

	t.Run("SinkAttractsRank", func(t *testing.T) {
		// Everything flows into d.
		g := buildGraph(t, [][2]string{{"a", "d"}, {"b", "d"}, {"c", "d"}})
		scores, _ := NewEngine(g).PageRank(cfg)
		for _, id := range []string{"a", "b", "c"} {
			if scores[id] >= scores["d"] {
				t.Errorf("expected d to outrank %s: %v vs %v", id, scores["d"], scores[id])
			}
		}
	})
}

func TestEigenvectorCentrality(t *testing.T) {
	g := buildGraph(t, [][2]string{{"a", "c"}, {"b", "c"}, {"c", "a"}})
	scores, converged := NewEngine(g).EigenvectorCentrality(200, 1e-8)
	if !converged {
		t.Error("expected convergence")
	}
	if scores["c"] <= scores["b"] {
		t.Errorf("expected c (two in-links) above b (none): %v vs %v", scores["c"], scores["b"])
	}
	for id, v := range scores {
		if v < 0 || v > 1 {
			t.Errorf("score for %s out of [0,1]: %v", id, v)
		}
	}
}

func TestStats(t *testing.T) {
	s := Scores{"a": 0.2, "b": 0.4, "c": 0.6}
	mean, std := Stats(s)
	if !approx(mean, 0.4, 1e-9) {
		t.Errorf("expected mean 0.4, got %v", mean)
	}
	if !approx(std, math.Sqrt(0.08/3), 1e-9) {
		t.Errorf("unexpected std %v", std)
	}
}
