package analysis

import (
	"testing"

	"github.com/finsight/statement-pipeline/internal/domain"
)

func salaryCredit(year, month int, amount, balance float64) domain.Transaction {
	tx := credit(on(year, month, 1), "SALARY CREDIT", amount, balance)
	tx.Category = "salary"
	return tx
}

func TestVerifyIncomeVerified(t *testing.T) {
	txs := []domain.Transaction{
		salaryCredit(2025, 1, 60000, 60000),
		salaryCredit(2025, 2, 60000, 120000),
		salaryCredit(2025, 3, 60000, 180000),
	}
	got := VerifyIncome(txs)
	if got.VerificationStatus != "verified" {
		t.Fatalf("status = %s, want verified", got.VerificationStatus)
	}
	if got.MonthlyAverage != 60000 {
		t.Fatalf("MonthlyAverage = %v, want 60000", got.MonthlyAverage)
	}
	if got.SalaryCreditCount != 3 {
		t.Fatalf("SalaryCreditCount = %d, want 3", got.SalaryCreditCount)
	}
	if got.Regularity != 100 {
		t.Fatalf("Regularity = %v, want 100", got.Regularity)
	}
}

func TestVerifyIncomePartial(t *testing.T) {
	// One salary credit across two income months is not enough for a
	// verified rating.
	txs := []domain.Transaction{
		salaryCredit(2025, 1, 60000, 60000),
		credit(on(2025, 2, 15), "TRANSFER IN", 5000, 65000),
	}
	got := VerifyIncome(txs)
	if got.VerificationStatus != "partial" {
		t.Fatalf("status = %s, want partial", got.VerificationStatus)
	}
}

func TestVerifyIncomeUnverified(t *testing.T) {
	txs := []domain.Transaction{
		debit(on(2025, 1, 5), "RENT", 15000, 45000),
	}
	got := VerifyIncome(txs)
	if got.VerificationStatus != "unverified" {
		t.Fatalf("status = %s, want unverified", got.VerificationStatus)
	}
	if got.MonthlyAverage != 0 {
		t.Fatalf("MonthlyAverage = %v, want 0", got.MonthlyAverage)
	}
}
