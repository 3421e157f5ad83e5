package analysis

import (
	"testing"

	"github.com/finsight/statement-pipeline/internal/domain"
)

func TestCategorizeByDescription(t *testing.T) {
	tests := []struct {
		description string
		want        string
	}{
		{"SALARY CREDIT ACME CORP", "salary"},
		{"RENT PAYMENT TO LANDLORD", "rent"},
		{"HOME LOAN EMI", "emi"},
		{"ELECTRICITY BILL BESCOM", "utilities"},
		{"UPI GROCERY MART", "groceries"},
		{"SWIGGY ORDER 12345", "dining"},
		{"UBER TRIP", "transport"},
		{"LIC PREMIUM", "insurance"},
		{"SIP MUTUAL FUND", "investment"},
		{"NEFT TO SAVINGS", "transfer"},
		{"PENALTY FEE", "charges"},
		{"ATM CASH WITHDRAWAL", "cash"},
		{"MISC PURCHASE", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			if got := categorize(tt.description); got != tt.want {
				t.Fatalf("categorize(%q) = %s, want %s", tt.description, got, tt.want)
			}
		})
	}
}

func TestCategorizeFirstMatchWins(t *testing.T) {
	// Mentions both a grocery keyword and a transfer rail; the more
	// specific grocery rule is listed first and must win.
	if got := categorize("UPI GROCERY MART"); got != "groceries" {
		t.Fatalf("categorize = %s, want groceries", got)
	}
}

func TestCategorizeEnrichesInPlace(t *testing.T) {
	txs := []domain.Transaction{
		debit(on(2025, 1, 5), "RENT PAYMENT", 15000, 60000),
		debit(on(2025, 1, 10), "MISC PURCHASE", 500, 59500),
	}
	Categorize(txs)

	if txs[0].Category != "rent" {
		t.Fatalf("first category = %s, want rent", txs[0].Category)
	}
	if txs[1].Category != "other" {
		t.Fatalf("second category = %s, want other", txs[1].Category)
	}
}
