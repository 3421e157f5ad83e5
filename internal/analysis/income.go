package analysis

import (
	"github.com/finsight/statement-pipeline/internal/domain"
)

// VerifyIncome checks that credited income looks like a regular salary
// rather than ad-hoc inflows.
func VerifyIncome(txs []domain.Transaction) domain.IncomeVerification {
	months := make(map[string]float64)
	salaryCredits := 0

	for _, tx := range txs {
		if !tx.IsCredit() {
			continue
		}
		months[tx.Date.Format("2006-01")] += *tx.Credit
		if tx.Category == "salary" {
			salaryCredits++
		}
	}

	result := domain.IncomeVerification{
		VerificationStatus: "unverified",
		SalaryCreditCount:  salaryCredits,
	}
	if len(months) == 0 {
		return result
	}

	var total float64
	monthsWithIncome := 0
	for _, v := range months {
		total += v
		if v > 0 {
			monthsWithIncome++
		}
	}
	result.MonthlyAverage = total / float64(len(months))
	result.Regularity = float64(monthsWithIncome) / float64(len(months)) * 100

	switch {
	case salaryCredits >= len(months) && result.Regularity >= 90:
		result.VerificationStatus = "verified"
	case salaryCredits > 0:
		result.VerificationStatus = "partial"
	}
	return result
}
