// Package ingest parses transaction datasets from CSV and JSON into
// the domain model, validating every record at the boundary.
package ingest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// csvColumns is the required header, in order.
var csvColumns = []string{"transaction_id", "sender_id", "receiver_id", "amount", "timestamp", "type"}

// ReadFile parses a dataset file, dispatching on extension (.csv or
// .json).
func ReadFile(path string) ([]domain.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(f)
	case ".json":
		return ReadJSON(f)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
}

// ReadCSV parses transactions from CSV. The header row must match
// transaction_id,sender_id,receiver_id,amount,timestamp,type and
// timestamps must be RFC 3339. Errors carry the failing row number.
func ReadCSV(r io.Reader) ([]domain.Transaction, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) != len(csvColumns) {
		return nil, fmt.Errorf("csv header: expected %d columns, got %d", len(csvColumns), len(header))
	}
	for i, col := range csvColumns {
		if strings.TrimSpace(header[i]) != col {
			return nil, fmt.Errorf("csv header: column %d must be %q, got %q", i+1, col, header[i])
		}
	}

	var txs []domain.Transaction
	for row := 2; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		amount, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad amount %q: %w", row, record[3], domain.ErrInvalidTransaction)
		}
		ts, err := time.Parse(time.RFC3339, record[4])
		if err != nil {
			return nil, fmt.Errorf("row %d: bad timestamp %q: %w", row, record[4], domain.ErrInvalidTransaction)
		}

		tx := domain.Transaction{
			ID:        record[0],
			Source:    record[1],
			Target:    record[2],
			Amount:    amount,
			Timestamp: ts,
			Type:      domain.TransactionType(record[5]),
		}
		if err := tx.Valid(); err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// ReadJSON parses a JSON array of transactions, validating each entry.
func ReadJSON(r io.Reader) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	dec := json.NewDecoder(r)
	if err := dec.Decode(&txs); err != nil {
		return nil, fmt.Errorf("decode json dataset: %w", err)
	}
	for i, tx := range txs {
		if err := tx.Valid(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return txs, nil
}
