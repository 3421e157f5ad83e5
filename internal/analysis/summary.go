package analysis

import (
	"sort"

	"github.com/finsight/statement-pipeline/internal/domain"
)

// Summarize computes the financial summary over categorized
// transactions.
func Summarize(txs []domain.Transaction) domain.FinancialSummary {
	s := domain.FinancialSummary{
		CategoryTotals: make(map[string]float64),
	}
	if len(txs) == 0 {
		return s
	}

	sorted := sortedByDate(txs)

	var balanceSum float64
	for _, tx := range sorted {
		if tx.IsCredit() {
			s.TotalIncome += *tx.Credit
			s.CreditCount++
		} else if tx.Debit != nil {
			s.TotalExpenses += *tx.Debit
			s.DebitCount++
			s.CategoryTotals[tx.Category] += *tx.Debit
		}
		balanceSum += tx.Balance
	}

	s.NetCashFlow = s.TotalIncome - s.TotalExpenses
	s.OpeningBalance = sorted[0].Balance - sorted[0].Amount()
	s.ClosingBalance = sorted[len(sorted)-1].Balance
	s.AverageBalance = balanceSum / float64(len(sorted))
	return s
}

func sortedByDate(txs []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
