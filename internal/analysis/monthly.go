package analysis

import (
	"sort"

	"github.com/finsight/statement-pipeline/internal/domain"
)

// SummarizeMonthly breaks activity down per calendar month and tags the
// income trend across the covered period.
func SummarizeMonthly(txs []domain.Transaction) domain.MonthlyBreakdown {
	byMonth := make(map[string][]domain.Transaction)
	for _, tx := range sortedByDate(txs) {
		key := tx.Date.Format("2006-01")
		byMonth[key] = append(byMonth[key], tx)
	}

	keys := make([]string, 0, len(byMonth))
	for k := range byMonth {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := domain.MonthlyBreakdown{Trend: "stable"}
	for _, key := range keys {
		group := byMonth[key]
		m := domain.MonthlySummary{
			Month:       key,
			Transaction: len(group),
			EndBalance:  group[len(group)-1].Balance,
		}
		for _, tx := range group {
			if tx.IsCredit() {
				m.Income += *tx.Credit
			} else if tx.Debit != nil {
				m.Expenses += *tx.Debit
			}
		}
		m.NetFlow = m.Income - m.Expenses
		result.Months = append(result.Months, m)
	}

	if n := len(result.Months); n >= 2 {
		first := result.Months[0].Income
		last := result.Months[n-1].Income
		switch {
		case last > first*1.1:
			result.Trend = "increasing"
		case last < first*0.9:
			result.Trend = "decreasing"
		}
	}
	return result
}
