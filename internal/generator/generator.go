// Package generator produces synthetic transaction datasets with known
// fraud patterns injected, plus the ground-truth labels needed to
// measure detector precision and recall.
package generator

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Config controls dataset shape. Same seed, same dataset.
type Config struct {
	Seed         int64
	Accounts     int
	Transactions int // background noise volume

	Start time.Time
	Span  time.Duration

	InjectCycles int
	CycleLength  int

	InjectSmurfing int
	SmurfSenders   int

	InjectHubs int
	HubSpokes  int
}

// DefaultConfig returns a mid-size dataset with a few of each pattern.
func DefaultConfig() Config {
	return Config{
		Seed:           1,
		Accounts:       500,
		Transactions:   1000,
		Start:          time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Span:           30 * 24 * time.Hour,
		InjectCycles:   3,
		CycleLength:    4,
		InjectSmurfing: 3,
		SmurfSenders:   6,
		InjectHubs:     2,
		HubSpokes:      30,
	}
}

// Labels is the ground truth for an injected dataset.
type Labels struct {
	CycleAccounts [][]string `json:"cycleAccounts"`
	SmurfPivots   []string   `json:"smurfPivots"`
	HubAccounts   []string   `json:"hubAccounts"`
}

// Generator builds datasets from one seeded random stream.
type Generator struct {
	cfg  Config
	rng  *rand.Rand
	next int // transaction id sequence
}

// New creates a generator. Injected patterns use dedicated accounts so
// labels are unambiguous.
func New(cfg Config) *Generator {
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// Generate produces the dataset and its labels.
func (g *Generator) Generate() ([]domain.Transaction, Labels, error) {
	if g.cfg.Accounts < 2 {
		return nil, Labels{}, fmt.Errorf("generator needs at least 2 accounts, got %d", g.cfg.Accounts)
	}

	var txs []domain.Transaction
	var labels Labels

	// Background noise between the account pool.
	for i := 0; i < g.cfg.Transactions; i++ {
		src := g.rng.Intn(g.cfg.Accounts)
		dst := g.rng.Intn(g.cfg.Accounts)
		for dst == src {
			dst = g.rng.Intn(g.cfg.Accounts)
		}
		txs = append(txs, g.tx(
			fmt.Sprintf("acct-%04d", src),
			fmt.Sprintf("acct-%04d", dst),
			10+g.rng.Float64()*5000,
			g.randomTime(),
		))
	}

	for i := 0; i < g.cfg.InjectCycles; i++ {
		cycle, members := g.injectCycle(i)
		txs = append(txs, cycle...)
		labels.CycleAccounts = append(labels.CycleAccounts, members)
	}
	for i := 0; i < g.cfg.InjectSmurfing; i++ {
		smurf, pivot := g.injectSmurfing(i)
		txs = append(txs, smurf...)
		labels.SmurfPivots = append(labels.SmurfPivots, pivot)
	}
	for i := 0; i < g.cfg.InjectHubs; i++ {
		hub, account := g.injectHub(i)
		txs = append(txs, hub...)
		labels.HubAccounts = append(labels.HubAccounts, account)
	}

	return txs, labels, nil
}

// injectCycle wires a ring of fresh accounts passing a near-constant
// amount around within a two-hour window.
func (g *Generator) injectCycle(n int) ([]domain.Transaction, []string) {
	length := g.cfg.CycleLength
	if length < 3 {
		length = 3
	}

	members := make([]string, length)
	for i := range members {
		members[i] = fmt.Sprintf("ring-%02d-%02d", n, i)
	}

	base := 5000 + g.rng.Float64()*20000
	start := g.randomTime()

	var txs []domain.Transaction
	for i := 0; i < length; i++ {
		// Each hop passes the amount on minus a small skim.
		amount := base * (1 - 0.02*g.rng.Float64())
		ts := start.Add(time.Duration(i) * (2 * time.Hour) / time.Duration(length))
		txs = append(txs, g.tx(members[i], members[(i+1)%length], amount, ts))
	}
	return txs, members
}

// injectSmurfing fans many sub-threshold near-equal transfers from
// fresh sender accounts into one pivot inside a short window.
func (g *Generator) injectSmurfing(n int) ([]domain.Transaction, string) {
	senders := g.cfg.SmurfSenders
	if senders < 5 {
		senders = 5
	}

	pivot := fmt.Sprintf("pivot-%02d", n)
	base := 500 + g.rng.Float64()*4000
	start := g.randomTime()

	var txs []domain.Transaction
	for i := 0; i < senders; i++ {
		amount := base * (0.9 + 0.2*g.rng.Float64())
		ts := start.Add(time.Duration(g.rng.Intn(6*60)) * time.Minute)
		txs = append(txs, g.tx(fmt.Sprintf("smurf-%02d-%02d", n, i), pivot, amount, ts))
	}
	return txs, pivot
}

// injectHub gives one account an outsized spoke count in both
// directions.
func (g *Generator) injectHub(n int) ([]domain.Transaction, string) {
	spokes := g.cfg.HubSpokes
	if spokes < 2 {
		spokes = 2
	}

	hub := fmt.Sprintf("hub-%02d", n)
	var txs []domain.Transaction
	for i := 0; i < spokes; i++ {
		spoke := fmt.Sprintf("spoke-%02d-%02d", n, i)
		amount := 10 + g.rng.Float64()*3000
		if i%2 == 0 {
			txs = append(txs, g.tx(spoke, hub, amount, g.randomTime()))
		} else {
			txs = append(txs, g.tx(hub, spoke, amount, g.randomTime()))
		}
	}
	return txs, hub
}

func (g *Generator) tx(src, dst string, amount float64, ts time.Time) domain.Transaction {
	g.next++
	txType := domain.TxTransfer
	if g.rng.Intn(4) == 0 {
		txType = domain.TxPayment
	}
	return domain.Transaction{
		ID:        fmt.Sprintf("tx-%06d", g.next),
		Source:    src,
		Target:    dst,
		Amount:    amount,
		Currency:  "USD",
		Timestamp: ts,
		Type:      txType,
	}
}

func (g *Generator) randomTime() time.Time {
	return g.cfg.Start.Add(time.Duration(g.rng.Int63n(int64(g.cfg.Span))))
}
