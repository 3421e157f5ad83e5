package analysis

import (
	"fmt"

	"github.com/finsight/statement-pipeline/internal/domain"
)

// AssessRisk scores overall repayment risk from categorized
// transactions and the financial summary. Higher scores are riskier.
func AssessRisk(txs []domain.Transaction, summary domain.FinancialSummary) domain.RiskAssessment {
	var factors []domain.RiskFactor

	if summary.TotalIncome > 0 {
		expenseRatio := summary.TotalExpenses / summary.TotalIncome * 100
		if expenseRatio > 90 {
			factors = append(factors, domain.RiskFactor{
				Name:     "high_expense_ratio",
				Severity: "high",
				Detail:   fmt.Sprintf("expenses are %.0f%% of income", expenseRatio),
				Score:    30,
			})
		} else if expenseRatio > 75 {
			factors = append(factors, domain.RiskFactor{
				Name:     "elevated_expense_ratio",
				Severity: "medium",
				Detail:   fmt.Sprintf("expenses are %.0f%% of income", expenseRatio),
				Score:    15,
			})
		}
	} else {
		factors = append(factors, domain.RiskFactor{
			Name:     "no_income",
			Severity: "high",
			Detail:   "no credit inflows in the statement period",
			Score:    40,
		})
	}

	negativeDays := 0
	for _, tx := range txs {
		if tx.Balance < 0 {
			negativeDays++
		}
	}
	if negativeDays > 0 {
		severity := "medium"
		score := 15.0
		if negativeDays > 5 {
			severity = "high"
			score = 30
		}
		factors = append(factors, domain.RiskFactor{
			Name:     "negative_balance",
			Severity: severity,
			Detail:   fmt.Sprintf("%d transactions posted against a negative balance", negativeDays),
			Score:    score,
		})
	}

	if charges := summary.CategoryTotals["charges"]; charges > 0 && summary.TotalIncome > 0 &&
		charges/summary.TotalIncome > 0.02 {
		factors = append(factors, domain.RiskFactor{
			Name:     "bank_charges",
			Severity: "medium",
			Detail:   "bank charges and penalties exceed 2% of income",
			Score:    10,
		})
	}

	var total float64
	for _, f := range factors {
		total += f.Score
	}
	if total > 100 {
		total = 100
	}

	level := "low"
	switch {
	case total >= 60:
		level = "high"
	case total >= 30:
		level = "medium"
	}

	return domain.RiskAssessment{
		OverallRiskScore: total,
		RiskLevel:        level,
		Factors:          factors,
	}
}
