package parsing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCSVParseBasicStatement(t *testing.T) {
	data := `Date,Description,Debit,Credit,Balance
2025-01-01,SALARY CREDIT ACME CORP,,60000,75000
2025-01-05,RENT PAYMENT,15000,,60000
`
	txs, err := NewCSVAdapter().Parse(context.Background(), []byte(data), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}

	first := txs[0]
	if first.Credit == nil || *first.Credit != 60000 {
		t.Fatalf("expected credit 60000, got %+v", first)
	}
	if first.Debit != nil {
		t.Fatalf("credit row must not carry a debit: %+v", first)
	}
	if first.Balance != 75000 {
		t.Fatalf("balance = %v, want 75000", first.Balance)
	}
	if first.Date != time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("date = %v", first.Date)
	}

	second := txs[1]
	if second.Debit == nil || *second.Debit != 15000 {
		t.Fatalf("expected debit 15000, got %+v", second)
	}
}

func TestCSVParseHeaderSynonyms(t *testing.T) {
	data := `Txn Date,Narration,Withdrawal,Deposit,Closing Balance
02/01/2025,UPI GROCERY,250.50,,9749.50
`
	txs, err := NewCSVAdapter().Parse(context.Background(), []byte(data), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
	if txs[0].Debit == nil || *txs[0].Debit != 250.50 {
		t.Fatalf("expected debit 250.50, got %+v", txs[0])
	}
	if txs[0].Date != time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("dd/mm/yyyy not honored: %v", txs[0].Date)
	}
}

func TestCSVParseSignedAmountColumn(t *testing.T) {
	data := `Date,Description,Amount,Balance
2025-01-01,SALARY,60000,75000
2025-01-03,BALANCE ENQUIRY,0,75000
2025-01-05,RENT,-15000,60000
`
	txs, err := NewCSVAdapter().Parse(context.Background(), []byte(data), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected the zero-amount row to be skipped, got %d transactions", len(txs))
	}
	if txs[0].Credit == nil || *txs[0].Credit != 60000 {
		t.Fatalf("positive amount must be a credit: %+v", txs[0])
	}
	if txs[1].Debit == nil || *txs[1].Debit != 15000 {
		t.Fatalf("negative amount must become a positive debit: %+v", txs[1])
	}
}

func TestCSVParseMoneyFormats(t *testing.T) {
	data := `Date,Description,Debit,Credit,Balance
2025-01-01,SHOPPING,"1,250.75",,10000
2025-01-02,REFUND,,₹500,10500
`
	txs, err := NewCSVAdapter().Parse(context.Background(), []byte(data), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if txs[0].Debit == nil || *txs[0].Debit != 1250.75 {
		t.Fatalf("thousands separator not stripped: %+v", txs[0])
	}
	if txs[1].Credit == nil || *txs[1].Credit != 500 {
		t.Fatalf("currency symbol not stripped: %+v", txs[1])
	}
}

func TestCSVParseSkipsBlankRows(t *testing.T) {
	data := `Date,Description,Debit,Credit,Balance
2025-01-01,SALARY,,60000,75000
,,,,
2025-01-05,RENT,15000,,60000
`
	txs, err := NewCSVAdapter().Parse(context.Background(), []byte(data), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("blank rows must be skipped, got %d transactions", len(txs))
	}
}

func TestCSVParseEmptyFile(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"zero bytes", ""},
		{"whitespace only", "  \n  "},
		{"header only", "Date,Description,Debit,Credit,Balance\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCSVAdapter().Parse(context.Background(), []byte(tt.data), "")
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
			if parseErr.Kind != KindEmpty {
				t.Fatalf("kind = %s, want %s", parseErr.Kind, KindEmpty)
			}
		})
	}
}

func TestCSVParseUnreadable(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing required columns", "Foo,Bar\n1,2\n"},
		{"bad date", "Date,Description,Debit,Credit,Balance\nnot-a-date,X,10,,0\n"},
		{"debit and credit on one row", "Date,Description,Debit,Credit,Balance\n2025-01-01,X,10,20,0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCSVAdapter().Parse(context.Background(), []byte(tt.data), "")
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
			if parseErr.Kind != KindUnreadable {
				t.Fatalf("kind = %s, want %s", parseErr.Kind, KindUnreadable)
			}
		})
	}
}

func TestRegistryLookupNormalizesMIME(t *testing.T) {
	registry := NewRegistry()
	registry.Register("text/csv", NewCSVAdapter())

	if _, err := registry.Lookup("Text/CSV; charset=utf-8"); err != nil {
		t.Fatalf("Lookup with parameters: %v", err)
	}
	if _, err := registry.Lookup("application/zip"); err == nil {
		t.Fatal("expected unknown MIME type to fail lookup")
	}
}
