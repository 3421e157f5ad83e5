package analysis

import (
	"time"

	"github.com/finsight/statement-pipeline/internal/domain"
)

func on(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func credit(date time.Time, desc string, amount, balance float64) domain.Transaction {
	return domain.Transaction{Date: date, Description: desc, Credit: &amount, Balance: balance}
}

func debit(date time.Time, desc string, amount, balance float64) domain.Transaction {
	return domain.Transaction{Date: date, Description: desc, Debit: &amount, Balance: balance}
}
