package domain

import (
	"fmt"
	"time"
)

// Transaction represents one ledger line extracted from a statement.
// Exactly one of Debit/Credit is set for a valid line: a line is either
// an inflow or an outflow, never both.
type Transaction struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Debit       *float64  `json:"debit,omitempty"`
	Credit      *float64  `json:"credit,omitempty"`
	Balance     float64   `json:"balance"`
	JobID       string    `json:"job_id"`
	Category    string    `json:"category,omitempty"`
}

// Validate checks the inflow-xor-outflow invariant.
func (t *Transaction) Validate() error {
	hasDebit := t.Debit != nil && *t.Debit > 0
	hasCredit := t.Credit != nil && *t.Credit > 0
	if hasDebit == hasCredit {
		return fmt.Errorf("transaction %q on %s: exactly one of debit/credit must be positive",
			t.Description, t.Date.Format("2006-01-02"))
	}
	return nil
}

// Amount returns the signed amount of the line: positive for credits
// (money in), negative for debits (money out).
func (t *Transaction) Amount() float64 {
	if t.Credit != nil {
		return *t.Credit
	}
	if t.Debit != nil {
		return -*t.Debit
	}
	return 0
}

// IsCredit reports whether the line is an inflow.
func (t *Transaction) IsCredit() bool {
	return t.Credit != nil && *t.Credit > 0
}
