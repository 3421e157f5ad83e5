package parsing

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/finsight/statement-pipeline/internal/domain"
)

// CSVAdapter parses comma-separated statement exports. It locates the
// date/description/debit/credit/balance columns by header name and
// tolerates the common date layouts banks emit.
type CSVAdapter struct{}

// NewCSVAdapter creates a CSV statement adapter.
func NewCSVAdapter() *CSVAdapter {
	return &CSVAdapter{}
}

var csvDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02 Jan 2006",
	"Jan 2, 2006",
}

// Parse implements Adapter.
func (a *CSVAdapter) Parse(ctx context.Context, data []byte, password string) ([]domain.Transaction, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, &ParseError{Kind: KindEmpty, Msg: "file is empty"}
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, &ParseError{Kind: KindUnreadable, Msg: fmt.Sprintf("invalid CSV: %v", err)}
	}
	if len(records) < 2 {
		return nil, &ParseError{Kind: KindEmpty, Msg: "no transaction rows found"}
	}

	cols, err := mapColumns(records[0])
	if err != nil {
		return nil, &ParseError{Kind: KindUnreadable, Msg: err.Error()}
	}

	var txs []domain.Transaction
	for i, rec := range records[1:] {
		if isBlankRow(rec) {
			continue
		}
		tx, err := parseRow(rec, cols)
		if err != nil {
			return nil, &ParseError{Kind: KindUnreadable, Msg: fmt.Sprintf("row %d: %v", i+2, err)}
		}
		if tx == nil {
			continue
		}
		txs = append(txs, *tx)
	}

	if len(txs) == 0 {
		return nil, &ParseError{Kind: KindEmpty, Msg: "no transactions extracted"}
	}
	return txs, nil
}

type columnMap struct {
	date, description, debit, credit, balance, amount int
}

func mapColumns(header []string) (columnMap, error) {
	cols := columnMap{date: -1, description: -1, debit: -1, credit: -1, balance: -1, amount: -1}

	for i, h := range header {
		switch key := strings.ToLower(strings.TrimSpace(h)); {
		case key == "date" || key == "txn date" || key == "transaction date" || key == "value date":
			cols.date = i
		case key == "description" || key == "narration" || key == "particulars" || key == "details":
			cols.description = i
		case key == "debit" || key == "withdrawal" || key == "paid out" || key == "dr":
			cols.debit = i
		case key == "credit" || key == "deposit" || key == "paid in" || key == "cr":
			cols.credit = i
		case key == "balance" || key == "closing balance" || key == "running balance":
			cols.balance = i
		case key == "amount":
			cols.amount = i
		}
	}

	if cols.date < 0 || cols.description < 0 {
		return cols, fmt.Errorf("header is missing date or description column")
	}
	if cols.debit < 0 && cols.credit < 0 && cols.amount < 0 {
		return cols, fmt.Errorf("header has no debit/credit or amount column")
	}
	return cols, nil
}

func parseRow(rec []string, cols columnMap) (*domain.Transaction, error) {
	date, err := parseDate(field(rec, cols.date))
	if err != nil {
		return nil, err
	}

	tx := domain.Transaction{
		Date:        date,
		Description: strings.TrimSpace(field(rec, cols.description)),
	}

	debit, err := parseMoney(field(rec, cols.debit))
	if err != nil {
		return nil, fmt.Errorf("debit: %w", err)
	}
	credit, err := parseMoney(field(rec, cols.credit))
	if err != nil {
		return nil, fmt.Errorf("credit: %w", err)
	}
	if debit != nil && *debit == 0 {
		debit = nil
	}
	if credit != nil && *credit == 0 {
		credit = nil
	}

	switch {
	case debit != nil && credit != nil:
		return nil, fmt.Errorf("row has both debit and credit amounts")
	case debit != nil:
		tx.Debit = debit
	case credit != nil:
		tx.Credit = credit
	default:
		// Single signed amount column: positive is a credit.
		amt, err := parseMoney(field(rec, cols.amount))
		if err != nil {
			return nil, fmt.Errorf("amount: %w", err)
		}
		if amt == nil || *amt == 0 {
			return nil, nil // no movement, skip the line
		}
		if *amt > 0 {
			tx.Credit = amt
		} else {
			d := -*amt
			tx.Debit = &d
		}
	}

	if bal, err := parseMoney(field(rec, cols.balance)); err == nil && bal != nil {
		tx.Balance = *bal
	}

	return &tx, nil
}

func field(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return rec[idx]
}

func isBlankRow(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseMoney parses an amount, tolerating currency symbols, thousands
// separators, and accounting-style parentheses for negatives. Returns
// nil for an empty cell.
func parseMoney(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return nil, nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return -1
		}
	}, s)
	if cleaned == "" {
		return nil, fmt.Errorf("not a number: %q", s)
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", s)
	}
	if negative {
		v = -v
	}
	return &v, nil
}

var _ Adapter = (*CSVAdapter)(nil)
