package analysis

import (
	"fmt"
	"math"

	"github.com/finsight/statement-pipeline/internal/domain"
)

// DetectFraud surfaces suspicious patterns: balance arithmetic that does
// not chain, round-amount cash bursts, and same-day in-and-out flows.
func DetectFraud(txs []domain.Transaction) domain.FraudAnalysis {
	var alerts []domain.FraudAlert

	sorted := sortedByDate(txs)

	// Running balance should follow from the prior balance plus the
	// signed amount. Repeated breaks suggest a doctored statement.
	breaks := 0
	for i := 1; i < len(sorted); i++ {
		expected := sorted[i-1].Balance + sorted[i].Amount()
		if math.Abs(expected-sorted[i].Balance) > 1 {
			breaks++
		}
	}
	if breaks > 0 {
		severity := "medium"
		if breaks > 3 {
			severity = "high"
		}
		alerts = append(alerts, domain.FraudAlert{
			Type:     "balance_mismatch",
			Severity: severity,
			Detail:   fmt.Sprintf("%d transactions where the running balance does not follow from the amounts", breaks),
		})
	}

	// Large round-figure cash deposits.
	roundCash := 0
	for _, tx := range sorted {
		if tx.Category == "cash" && tx.IsCredit() && *tx.Credit >= 10000 &&
			math.Mod(*tx.Credit, 1000) == 0 {
			roundCash++
		}
	}
	if roundCash >= 3 {
		alerts = append(alerts, domain.FraudAlert{
			Type:     "round_cash_deposits",
			Severity: "medium",
			Detail:   fmt.Sprintf("%d large round-figure cash deposits", roundCash),
		})
	}

	// Credits reversed by near-identical debits on the same day, a
	// temporary-credit pattern used to inflate balances.
	reversals := 0
	for i, a := range sorted {
		if !a.IsCredit() {
			continue
		}
		for j := i + 1; j < len(sorted) && sorted[j].Date.Equal(a.Date); j++ {
			b := sorted[j]
			if b.Debit != nil && math.Abs(*b.Debit-*a.Credit) < 1 {
				reversals++
				break
			}
		}
	}
	if reversals >= 2 {
		alerts = append(alerts, domain.FraudAlert{
			Type:     "temporary_credits",
			Severity: "high",
			Detail:   fmt.Sprintf("%d credits reversed the same day", reversals),
		})
	}

	var score float64
	for _, a := range alerts {
		switch a.Severity {
		case "high":
			score += 40
		case "medium":
			score += 20
		default:
			score += 10
		}
	}
	if score > 100 {
		score = 100
	}

	level := "low"
	switch {
	case score >= 60:
		level = "high"
	case score >= 30:
		level = "medium"
	}

	return domain.FraudAnalysis{
		FraudScore: score,
		FraudLevel: level,
		Alerts:     alerts,
	}
}
