package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
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

func TestGraph(t *testing.T) {
	t.Run("AddTransaction", func(t *testing.T) {
		g := New()
		if err := g.AddTransaction(tx("t1", "a", "b", 100, 0)); err != nil {
			t.Fatalf("AddTransaction failed: %v", err)
		}
		if got := g.NumAccounts(); got != 2 {
			t.Errorf("expected 2 accounts, got %d", got)
		}
		if got := g.NumTransactions(); got != 1 {
			t.Errorf("expected 1 transaction, got %d", got)
		}
	})

	t.Run("DuplicateTransactionID", func(t *testing.T) {
		g := New()
		if err := g.AddTransaction(tx("t1", "a", "b", 100, 0)); err != nil {
			t.Fatalf("AddTransaction failed: %v", err)
		}
		err := g.AddTransaction(tx("t1", "b", "c", 200, time.Hour))
		if !errors.Is(err, domain.ErrInvalidTransaction) {
			t.Errorf("expected ErrInvalidTransaction, got %v", err)
		}
	})

	t.Run("RejectsSelfLoop", func(t *testing.T) {
		g := New()
		err := g.AddTransaction(tx("t1", "a", "a", 100, 0))
		if !errors.Is(err, domain.ErrInvalidTransaction) {
			t.Errorf("expected ErrInvalidTransaction, got %v", err)
		}
	})

	t.Run("RejectsNonPositiveAmount", func(t *testing.T) {
		g := New()
		err := g.AddTransaction(tx("t1", "a", "b", 0, 0))
		if !errors.Is(err, domain.ErrInvalidTransaction) {
			t.Errorf("expected ErrInvalidTransaction, got %v", err)
		}
	})

	t.Run("ParallelEdges", func(t *testing.T) {
		g := New()
		for _, id := range []string{"t1", "t2", "t3"} {
			if err := g.AddTransaction(tx(id, "a", "b", 100, 0)); err != nil {
				t.Fatalf("AddTransaction failed: %v", err)
			}
		}
		if got := len(g.EdgesBetween("a", "b")); got != 3 {
			t.Errorf("expected 3 parallel edges, got %d", got)
		}
		if got := g.NumAccounts(); got != 2 {
			t.Errorf("expected 2 accounts, got %d", got)
		}
	})

	t.Run("FrozenRejectsMutation", func(t *testing.T) {
		g := New()
		if err := g.AddTransaction(tx("t1", "a", "b", 100, 0)); err != nil {
			t.Fatalf("AddTransaction failed: %v", err)
		}
		g.Freeze()
		if !g.Frozen() {
			t.Fatal("expected graph to be frozen")
		}
		if err := g.AddTransaction(tx("t2", "b", "c", 100, 0)); !errors.Is(err, ErrFrozen) {
			t.Errorf("expected ErrFrozen, got %v", err)
		}
		if err := g.UpsertAccount(domain.Account{ID: "a"}); !errors.Is(err, ErrFrozen) {
			t.Errorf("expected ErrFrozen, got %v", err)
		}
	})

	t.Run("Degrees", func(t *testing.T) {
		g := New()
		g.AddTransaction(tx("t1", "a", "b", 100, 0))
		g.AddTransaction(tx("t2", "c", "b", 100, 0))
		g.AddTransaction(tx("t3", "b", "d", 100, 0))

		if got := g.InDegree("b"); got != 2 {
			t.Errorf("expected in-degree 2, got %d", got)
		}
		if got := g.OutDegree("b"); got != 1 {
			t.Errorf("expected out-degree 1, got %d", got)
		}
		if got := g.Degree("b"); got != 3 {
			t.Errorf("expected degree 3, got %d", got)
		}
	})

	t.Run("DerivedAccountAttributes", func(t *testing.T) {
		g := New()
		g.AddTransaction(tx("t1", "a", "b", 300, 0))
		g.AddTransaction(tx("t2", "b", "c", 100, time.Hour))

		acc, ok := g.Account("b")
		if !ok {
			t.Fatal("account b not found")
		}
		if acc.InDegree != 1 || acc.OutDegree != 1 {
			t.Errorf("expected degrees 1/1, got %d/%d", acc.InDegree, acc.OutDegree)
		}
		if acc.CumulativeBalance != 200 {
			t.Errorf("expected cumulative balance 200, got %v", acc.CumulativeBalance)
		}
	})

	t.Run("Neighbors", func(t *testing.T) {
		g := New()
		g.AddTransaction(tx("t1", "a", "b", 100, 0))
		g.AddTransaction(tx("t2", "a", "c", 200, 0))

		out := g.Neighbors("a", Out)
		if len(out) != 2 {
			t.Fatalf("expected 2 outgoing edges, got %d", len(out))
		}
		in := g.Neighbors("b", In)
		if len(in) != 1 || in[0].ID != "t1" {
			t.Errorf("unexpected incoming edges for b: %+v", in)
		}
	})

	t.Run("RevisionIncrements", func(t *testing.T) {
		g := New()
		before := g.Revision()
		g.AddTransaction(tx("t1", "a", "b", 100, 0))
		if g.Revision() <= before {
			t.Error("expected revision to advance after mutation")
		}
	})

	t.Run("FingerprintIdentifiesContent", func(t *testing.T) {
		build := func(txs ...domain.Transaction) *Graph {
			g := New()
			for _, tr := range txs {
				if err := g.AddTransaction(tr); err != nil {
					t.Fatalf("AddTransaction failed: %v", err)
				}
			}
			return g
		}

		first := build(tx("t1", "a", "b", 100, 0), tx("t2", "b", "c", 200, time.Hour))
		same := build(tx("t1", "a", "b", 100, 0), tx("t2", "b", "c", 200, time.Hour))
		other := build(tx("t1", "a", "b", 100, 0), tx("t2", "c", "a", 200, time.Hour))

		if first.Revision() != other.Revision() {
			t.Fatal("fixture graphs must share a revision")
		}
		if first.Fingerprint() != same.Fingerprint() {
			t.Error("equal edge sets must share a fingerprint")
		}
		if first.Fingerprint() == other.Fingerprint() {
			t.Error("different edge sets must not share a fingerprint")
		}
	})

	t.Run("FingerprintIgnoresAccountAttributes", func(t *testing.T) {
		g := New()
		if err := g.AddTransaction(tx("t1", "a", "b", 100, 0)); err != nil {
			t.Fatalf("AddTransaction failed: %v", err)
		}
		before := g.Fingerprint()
		if err := g.UpsertAccount(domain.Account{ID: "a", Owner: "Alice"}); err != nil {
			t.Fatalf("UpsertAccount failed: %v", err)
		}
		if got := g.Fingerprint(); got != before {
			t.Errorf("fingerprint changed on attribute upsert: %s vs %s", before, got)
		}
	})

	t.Run("SortedAccountIDs", func(t *testing.T) {
		g := New()
		g.AddTransaction(tx("t1", "zeta", "alpha", 100, 0))
		g.AddTransaction(tx("t2", "mid", "zeta", 100, 0))

		ids := g.SortedAccountIDs()
		for i := 1; i < len(ids); i++ {
			if ids[i-1] >= ids[i] {
				t.Fatalf("ids not sorted: %v", ids)
			}
		}
	})
}

func TestBuild(t *testing.T) {
	t.Run("AppliesFilter", func(t *testing.T) {
		txs := []domain.Transaction{
			tx("t1", "a", "b", 50, 0),
			tx("t2", "b", "c", 500, time.Hour),
			tx("t3", "c", "d", 5000, 2*time.Hour),
		}
		g, err := Build(txs, Filter{MinAmount: 100, MaxAmount: 1000})
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if got := g.NumTransactions(); got != 1 {
			t.Errorf("expected 1 transaction after filter, got %d", got)
		}
	})

	t.Run("TimeWindow", func(t *testing.T) {
		txs := []domain.Transaction{
			tx("t1", "a", "b", 100, 0),
			tx("t2", "b", "c", 100, 48*time.Hour),
		}
		g, err := Build(txs, Filter{End: baseTime.Add(time.Hour)})
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if got := g.NumTransactions(); got != 1 {
			t.Errorf("expected 1 transaction inside window, got %d", got)
		}
	})

	t.Run("FailsOnInvalidRecord", func(t *testing.T) {
		txs := []domain.Transaction{
			tx("t1", "a", "b", 100, 0),
			tx("", "b", "c", 100, 0),
		}
		if _, err := Build(txs, Filter{}); !errors.Is(err, domain.ErrInvalidTransaction) {
			t.Errorf("expected ErrInvalidTransaction, got %v", err)
		}
	})
}
