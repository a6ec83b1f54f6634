package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const validCSV = `transaction_id,sender_id,receiver_id,amount,timestamp,type
t1,acct-a,acct-b,1500.50,2025-03-01T12:00:00Z,transfer
t2,acct-b,acct-c,200,2025-03-01T13:30:00Z,payment
`

func TestReadCSV(t *testing.T) {
	t.Run("ValidDataset", func(t *testing.T) {
		txs, err := ReadCSV(strings.NewReader(validCSV))
		if err != nil {
			t.Fatalf("ReadCSV failed: %v", err)
		}
		if len(txs) != 2 {
			t.Fatalf("expected 2 transactions, got %d", len(txs))
		}
		if txs[0].ID != "t1" || txs[0].Source != "acct-a" || txs[0].Target != "acct-b" {
			t.Errorf("unexpected first transaction: %+v", txs[0])
		}
		if txs[0].Amount != 1500.50 {
			t.Errorf("expected amount 1500.50, got %v", txs[0].Amount)
		}
		if txs[1].Type != domain.TxPayment {
			t.Errorf("expected payment type, got %s", txs[1].Type)
		}
	})

	t.Run("BadHeader", func(t *testing.T) {
		csv := "id,from,to,amount,timestamp,type\nt1,a,b,100,2025-03-01T12:00:00Z,transfer\n"
		if _, err := ReadCSV(strings.NewReader(csv)); err == nil {
			t.Error("expected header error")
		}
	})

	t.Run("BadAmount", func(t *testing.T) {
		csv := "transaction_id,sender_id,receiver_id,amount,timestamp,type\nt1,a,b,lots,2025-03-01T12:00:00Z,transfer\n"
		_, err := ReadCSV(strings.NewReader(csv))
		if !errors.Is(err, domain.ErrInvalidTransaction) {
			t.Errorf("expected ErrInvalidTransaction, got %v", err)
		}
		if err == nil || !strings.Contains(err.Error(), "row 2") {
			t.Errorf("expected the row number in the error, got %v", err)
		}
	})

	t.Run("BadTimestamp", func(t *testing.T) {
		csv := "transaction_id,sender_id,receiver_id,amount,timestamp,type\nt1,a,b,100,yesterday,transfer\n"
		if _, err := ReadCSV(strings.NewReader(csv)); !errors.Is(err, domain.ErrInvalidTransaction) {
			t.Errorf("expected ErrInvalidTransaction, got %v", err)
		}
	})

	t.Run("InvalidRow", func(t *testing.T) {
		// Self-transfer fails domain validation.
		csv := "transaction_id,sender_id,receiver_id,amount,timestamp,type\nt1,a,a,100,2025-03-01T12:00:00Z,transfer\n"
		if _, err := ReadCSV(strings.NewReader(csv)); !errors.Is(err, domain.ErrInvalidTransaction) {
			t.Errorf("expected ErrInvalidTransaction, got %v", err)
		}
	})
}

func TestReadJSON(t *testing.T) {
	t.Run("ValidDataset", func(t *testing.T) {
		data := `[
			{"id":"t1","senderId":"a","receiverId":"b","amount":100,"timestamp":"2025-03-01T12:00:00Z","type":"transfer"}
		]`
		txs, err := ReadJSON(strings.NewReader(data))
		if err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		if len(txs) != 1 || txs[0].Source != "a" {
			t.Errorf("unexpected result: %+v", txs)
		}
	})

	t.Run("InvalidEntry", func(t *testing.T) {
		data := `[{"id":"t1","senderId":"a","receiverId":"b","amount":-5,"timestamp":"2025-03-01T12:00:00Z"}]`
		_, err := ReadJSON(strings.NewReader(data))
		if !errors.Is(err, domain.ErrInvalidTransaction) {
			t.Errorf("expected ErrInvalidTransaction, got %v", err)
		}
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		if _, err := ReadJSON(strings.NewReader("{not json")); err == nil {
			t.Error("expected decode error")
		}
	})
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("DispatchesOnExtension", func(t *testing.T) {
		path := filepath.Join(dir, "dataset.csv")
		if err := os.WriteFile(path, []byte(validCSV), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		txs, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile failed: %v", err)
		}
		if len(txs) != 2 {
			t.Errorf("expected 2 transactions, got %d", len(txs))
		}
	})

	t.Run("UnsupportedExtension", func(t *testing.T) {
		path := filepath.Join(dir, "dataset.xml")
		if err := os.WriteFile(path, []byte("<txs/>"), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		if _, err := ReadFile(path); err == nil {
			t.Error("expected error for unsupported format")
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := ReadFile(filepath.Join(dir, "nope.csv")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}
