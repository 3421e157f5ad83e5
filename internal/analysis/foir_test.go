package analysis

import (
	"testing"

	"github.com/finsight/statement-pipeline/internal/domain"
)

func obligated(category string, amount float64) domain.Transaction {
	tx := debit(on(2025, 1, 5), "OBLIGATION", amount, 0)
	tx.Category = category
	return tx
}

func TestCalculateFOIRStatuses(t *testing.T) {
	tests := []struct {
		name        string
		obligations float64
		wantFOIR    float64
		wantStatus  string
	}{
		{"healthy", 20000, 20, "healthy"},
		{"stretched", 55000, 55, "stretched"},
		{"critical", 70000, 70, "critical"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs := []domain.Transaction{
				credit(on(2025, 1, 1), "SALARY", 100000, 100000),
				obligated("emi", tt.obligations),
			}
			got := CalculateFOIR(txs)
			if got.FOIR != tt.wantFOIR {
				t.Fatalf("FOIR = %v, want %v", got.FOIR, tt.wantFOIR)
			}
			if got.Status != tt.wantStatus {
				t.Fatalf("Status = %s, want %s", got.Status, tt.wantStatus)
			}
		})
	}
}

func TestCalculateFOIRCountsOnlyFixedObligations(t *testing.T) {
	txs := []domain.Transaction{
		credit(on(2025, 1, 1), "SALARY", 100000, 100000),
		obligated("emi", 20000),
		obligated("rent", 15000),
		obligated("insurance", 5000),
		obligated("dining", 30000),
	}
	got := CalculateFOIR(txs)
	if got.FixedObligations != 40000 {
		t.Fatalf("FixedObligations = %v, want 40000 (discretionary spend excluded)", got.FixedObligations)
	}
}

func TestCalculateFOIRAveragesAcrossMonths(t *testing.T) {
	txs := []domain.Transaction{
		credit(on(2025, 1, 1), "SALARY", 100000, 100000),
		credit(on(2025, 2, 1), "SALARY", 100000, 200000),
		obligated("emi", 30000),
	}
	got := CalculateFOIR(txs)
	if got.MonthlyIncome != 100000 {
		t.Fatalf("MonthlyIncome = %v, want 100000", got.MonthlyIncome)
	}
	if got.FixedObligations != 15000 {
		t.Fatalf("FixedObligations = %v, want 15000", got.FixedObligations)
	}
	if got.FOIR != 15 {
		t.Fatalf("FOIR = %v, want 15", got.FOIR)
	}
}

func TestCalculateFOIREmpty(t *testing.T) {
	got := CalculateFOIR(nil)
	if got.Status != "healthy" || got.FOIR != 0 {
		t.Fatalf("empty input must be healthy/zero, got %+v", got)
	}
}
