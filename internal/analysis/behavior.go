package analysis

import (
	"strings"

	"github.com/finsight/statement-pipeline/internal/domain"
)

var digitalRails = []string{"upi", "neft", "rtgs", "imps", "netbanking", "card"}

// ScoreBehavior rates banking hygiene: digital adoption, balance
// discipline, and the span of activity covered by the statement.
func ScoreBehavior(txs []domain.Transaction) domain.BehaviorScore {
	result := domain.BehaviorScore{BehaviorRating: "poor"}
	if len(txs) == 0 {
		return result
	}

	sorted := sortedByDate(txs)

	digital := 0
	breaches := 0
	for _, tx := range sorted {
		desc := strings.ToLower(tx.Description)
		for _, rail := range digitalRails {
			if strings.Contains(desc, rail) {
				digital++
				break
			}
		}
		if tx.Balance < 1000 {
			breaches++
		}
	}

	result.DigitalTransactionPct = float64(digital) / float64(len(sorted)) * 100
	result.MinBalanceBreaches = breaches
	result.AccountAgeDays = int(sorted[len(sorted)-1].Date.Sub(sorted[0].Date).Hours() / 24)

	ageScore := float64(result.AccountAgeDays) / 365 * 100
	if ageScore > 100 {
		ageScore = 100
	}
	breachScore := 100 - float64(breaches)/float64(len(sorted))*100

	result.BehaviorScore = (result.DigitalTransactionPct + ageScore + breachScore) / 3

	switch {
	case result.BehaviorScore >= 70:
		result.BehaviorRating = "excellent"
	case result.BehaviorScore >= 50:
		result.BehaviorRating = "good"
	case result.BehaviorScore >= 30:
		result.BehaviorRating = "fair"
	}
	return result
}
