package analysis

import (
	"testing"

	"github.com/finsight/statement-pipeline/internal/domain"
)

func TestScoreBehaviorDigitalAdoption(t *testing.T) {
	txs := []domain.Transaction{
		debit(on(2024, 1, 1), "UPI PAYMENT GROCERY", 500, 10000),
		debit(on(2025, 1, 1), "CHEQUE ISSUED", 2000, 8000),
	}
	got := ScoreBehavior(txs)

	if got.DigitalTransactionPct != 50 {
		t.Fatalf("DigitalTransactionPct = %v, want 50", got.DigitalTransactionPct)
	}
	if got.AccountAgeDays != 366 {
		t.Fatalf("AccountAgeDays = %d, want 366", got.AccountAgeDays)
	}
	if got.MinBalanceBreaches != 0 {
		t.Fatalf("MinBalanceBreaches = %d, want 0", got.MinBalanceBreaches)
	}
	if got.BehaviorRating != "excellent" {
		t.Fatalf("rating = %s, want excellent (score %v)", got.BehaviorRating, got.BehaviorScore)
	}
}

func TestScoreBehaviorBreachesLowerScore(t *testing.T) {
	clean := ScoreBehavior([]domain.Transaction{
		debit(on(2024, 1, 1), "UPI PAYMENT", 500, 10000),
		debit(on(2025, 1, 1), "UPI PAYMENT", 500, 9500),
	})
	breached := ScoreBehavior([]domain.Transaction{
		debit(on(2024, 1, 1), "UPI PAYMENT", 500, 200),
		debit(on(2025, 1, 1), "UPI PAYMENT", 500, 100),
	})

	if breached.MinBalanceBreaches != 2 {
		t.Fatalf("MinBalanceBreaches = %d, want 2", breached.MinBalanceBreaches)
	}
	if breached.BehaviorScore >= clean.BehaviorScore {
		t.Fatalf("breaches must lower the score: %v vs %v",
			breached.BehaviorScore, clean.BehaviorScore)
	}
}

func TestScoreBehaviorEmpty(t *testing.T) {
	got := ScoreBehavior(nil)
	if got.BehaviorRating != "poor" || got.BehaviorScore != 0 {
		t.Fatalf("empty input must rate poor/zero, got %+v", got)
	}
}
