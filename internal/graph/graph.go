// Package graph holds the in-memory directed transaction multigraph the
// detection engine operates on.
package graph

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrFrozen rejects mutations after the graph has been handed to the
// detection engine.
var ErrFrozen = errors.New("graph is frozen")

// Direction selects which incident edges Neighbors returns.
type Direction int

const (
	In Direction = iota
	Out
)

// Graph is a directed multigraph of accounts and transactions. It
// exclusively owns its accounts and edges; accessors return copies.
// Mutation is only valid during construction — Freeze marks the
// snapshot immutable, after which any number of readers may traverse
// it concurrently.
type Graph struct {
	mu sync.RWMutex

	accounts map[string]*domain.Account
	ids      []string // account insertion order

	edges []domain.Transaction
	txIDs map[string]struct{}

	out map[string][]int // account id -> indexes into edges, insertion order
	in  map[string][]int

	revision uint64
	frozen   bool

	derivedRev uint64 // revision the derived attributes were computed at

	fp    string // cached content fingerprint
	fpRev uint64 // revision the fingerprint was computed at
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		accounts:   make(map[string]*domain.Account),
		txIDs:      make(map[string]struct{}),
		out:        make(map[string][]int),
		in:         make(map[string][]int),
		derivedRev: ^uint64(0),
		fpRev:      ^uint64(0),
	}
}

// AddTransaction validates the edge and appends it, creating endpoint
// accounts implicitly on first reference. Fails with
// domain.ErrInvalidTransaction on a non-positive amount, identical
// endpoints, or a duplicate transaction id.
func (g *Graph) AddTransaction(tx domain.Transaction) error {
	if err := tx.Valid(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return ErrFrozen
	}
	if _, dup := g.txIDs[tx.ID]; dup {
		return fmt.Errorf("%w: duplicate transaction id %q", domain.ErrInvalidTransaction, tx.ID)
	}

	g.ensureAccountLocked(tx.Source)
	g.ensureAccountLocked(tx.Target)

	idx := len(g.edges)
	g.edges = append(g.edges, tx)
	g.txIDs[tx.ID] = struct{}{}
	g.out[tx.Source] = append(g.out[tx.Source], idx)
	g.in[tx.Target] = append(g.in[tx.Target], idx)

	g.revision++
	return nil
}

// UpsertAccount sets the identity attributes of an account, creating it
// if needed. Derived attributes are ignored; the graph owns those.
func (g *Graph) UpsertAccount(acc domain.Account) error {
	if acc.ID == "" {
		return fmt.Errorf("%w: missing account id", domain.ErrInvalidTransaction)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return ErrFrozen
	}

	existing := g.ensureAccountLocked(acc.ID)
	existing.Owner = acc.Owner
	if acc.Type != "" {
		existing.Type = acc.Type
	}
	g.revision++
	return nil
}

func (g *Graph) ensureAccountLocked(id string) *domain.Account {
	if acc, ok := g.accounts[id]; ok {
		return acc
	}
	acc := &domain.Account{ID: id, Type: domain.AccountOther}
	g.accounts[id] = acc
	g.ids = append(g.ids, id)
	return acc
}

// Freeze marks the snapshot immutable. Further mutations fail with
// ErrFrozen. Idempotent.
func (g *Graph) Freeze() {
	g.mu.Lock()
	g.frozen = true
	g.mu.Unlock()
}

// Frozen reports whether the snapshot has been frozen.
func (g *Graph) Frozen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frozen
}

// Revision increments on every mutation. It orders snapshots of one
// graph; it does not identify content, two graphs built from different
// datasets can share a revision.
func (g *Graph) Revision() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.revision
}

// Fingerprint hashes the edge set, identifying the snapshot by
// content. Anything derived from the topology (metric vectors,
// community labels) must be keyed by fingerprint, not revision.
// Account attribute upserts do not change it.
func (g *Graph) Fingerprint() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.fpRev == g.revision {
		return g.fp
	}
	h := fnv.New64a()
	for _, tx := range g.edges {
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00%x\x00%d\n",
			tx.ID, tx.Source, tx.Target, math.Float64bits(tx.Amount), tx.Timestamp.UnixNano())
	}
	g.fp = fmt.Sprintf("%016x", h.Sum64())
	g.fpRev = g.revision
	return g.fp
}

// NumAccounts returns the node count.
func (g *Graph) NumAccounts() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.ids)
}

// NumTransactions returns the edge count, parallel edges included.
func (g *Graph) NumTransactions() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Account returns a copy of the account with derived attributes
// populated. The cache of derived attributes is rebuilt lazily after
// any mutation.
func (g *Graph) Account(id string) (domain.Account, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	acc, ok := g.accounts[id]
	if !ok {
		return domain.Account{}, false
	}
	g.refreshDerivedLocked()
	return *acc, true
}

// refreshDerivedLocked recomputes per-account degrees and cumulative
// balance when the cached values are stale.
func (g *Graph) refreshDerivedLocked() {
	if g.derivedRev == g.revision {
		return
	}
	for _, acc := range g.accounts {
		acc.InDegree = len(g.in[acc.ID])
		acc.OutDegree = len(g.out[acc.ID])
		var balance float64
		for _, i := range g.in[acc.ID] {
			balance += g.edges[i].Amount
		}
		for _, i := range g.out[acc.ID] {
			balance -= g.edges[i].Amount
		}
		acc.CumulativeBalance = balance
	}
	g.derivedRev = g.revision
}

// AccountIDs returns account ids in insertion order.
func (g *Graph) AccountIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.ids...)
}

// SortedAccountIDs returns account ids in lexicographic order. The
// detectors traverse in this order so results are reproducible for a
// fixed input.
func (g *Graph) SortedAccountIDs() []string {
	ids := g.AccountIDs()
	sort.Strings(ids)
	return ids
}

// Transactions returns a copy of all edges in insertion order.
func (g *Graph) Transactions() []domain.Transaction {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]domain.Transaction(nil), g.edges...)
}

// Neighbors returns the incident edges of an account for the given
// direction, in insertion order.
func (g *Graph) Neighbors(id string, dir Direction) []domain.Transaction {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var idxs []int
	if dir == In {
		idxs = g.in[id]
	} else {
		idxs = g.out[id]
	}
	txs := make([]domain.Transaction, len(idxs))
	for i, idx := range idxs {
		txs[i] = g.edges[idx]
	}
	return txs
}

// EdgesBetween returns every transaction from src to dst in insertion
// order; parallel edges each appear once.
func (g *Graph) EdgesBetween(src, dst string) []domain.Transaction {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var txs []domain.Transaction
	for _, idx := range g.out[src] {
		if g.edges[idx].Target == dst {
			txs = append(txs, g.edges[idx])
		}
	}
	return txs
}

// InDegree counts incoming edges, parallel edges included.
func (g *Graph) InDegree(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.in[id])
}

// OutDegree counts outgoing edges, parallel edges included.
func (g *Graph) OutDegree(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.out[id])
}

// Degree counts all incident edges.
func (g *Graph) Degree(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.in[id]) + len(g.out[id])
}

// Stats describes the snapshot.
func (g *Graph) Stats() domain.GraphStats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return domain.GraphStats{Accounts: len(g.ids), Transactions: len(g.edges)}
}

// Filter restricts which transactions a built graph includes. Zero
// values leave the corresponding bound open.
type Filter struct {
	MinAmount float64
	MaxAmount float64
	Start     time.Time
	End       time.Time
}

func (f Filter) keep(tx domain.Transaction) bool {
	if f.MinAmount > 0 && tx.Amount < f.MinAmount {
		return false
	}
	if f.MaxAmount > 0 && tx.Amount > f.MaxAmount {
		return false
	}
	if !f.Start.IsZero() && tx.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && tx.Timestamp.After(f.End) {
		return false
	}
	return true
}

// Build constructs a graph from transaction records, applying the
// filter. Any invalid record fails the build.
func Build(txs []domain.Transaction, f Filter) (*Graph, error) {
	g := New()
	for i, tx := range txs {
		if !f.keep(tx) {
			continue
		}
		if err := g.AddTransaction(tx); err != nil {
			return nil, fmt.Errorf("transaction %d (%s): %w", i, tx.ID, err)
		}
	}
	return g, nil
}
