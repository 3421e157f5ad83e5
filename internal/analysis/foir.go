package analysis

import (
	"github.com/finsight/statement-pipeline/internal/domain"
)

// CalculateFOIR computes the fixed-obligation-to-income ratio: recurring
// obligations (EMI, rent, insurance) as a share of monthly income.
func CalculateFOIR(txs []domain.Transaction) domain.FOIRAnalysis {
	months := make(map[string]bool)
	var income, obligations float64

	for _, tx := range txs {
		months[tx.Date.Format("2006-01")] = true
		if tx.IsCredit() {
			income += *tx.Credit
			continue
		}
		if tx.Debit == nil {
			continue
		}
		switch tx.Category {
		case "emi", "rent", "insurance":
			obligations += *tx.Debit
		}
	}

	result := domain.FOIRAnalysis{Status: "healthy"}
	if len(months) == 0 {
		return result
	}

	monthCount := float64(len(months))
	result.MonthlyIncome = income / monthCount
	result.FixedObligations = obligations / monthCount

	if result.MonthlyIncome > 0 {
		result.FOIR = result.FixedObligations / result.MonthlyIncome * 100
	}

	switch {
	case result.FOIR > 65:
		result.Status = "critical"
	case result.FOIR > 50:
		result.Status = "stretched"
	}
	return result
}
