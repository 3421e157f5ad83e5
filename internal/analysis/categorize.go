package analysis

import (
	"strings"

	"github.com/finsight/statement-pipeline/internal/domain"
)

// categoryRules maps description keywords to categories. First match
// wins; rules are ordered from most to least specific.
var categoryRules = []struct {
	category string
	keywords []string
}{
	{"salary", []string{"salary", "sal credit", "payroll", "wages"}},
	{"rent", []string{"rent", "landlord", "lease"}},
	{"emi", []string{"emi", "loan repay", "instalment", "installment"}},
	{"utilities", []string{"electricity", "water bill", "gas bill", "broadband", "mobile recharge"}},
	{"groceries", []string{"grocery", "supermarket", "mart", "bigbasket"}},
	{"dining", []string{"restaurant", "cafe", "swiggy", "zomato", "food"}},
	{"transport", []string{"uber", "ola", "fuel", "petrol", "metro", "cab"}},
	{"insurance", []string{"insurance", "premium", "lic"}},
	{"investment", []string{"sip", "mutual fund", "brokerage", "zerodha", "dividend"}},
	{"transfer", []string{"neft", "rtgs", "imps", "upi", "transfer"}},
	{"charges", []string{"charges", "fee", "penalty", "interest charged"}},
	{"cash", []string{"atm", "cash withdrawal", "cash deposit"}},
}

const defaultCategory = "other"

// Categorize enriches transactions in place with a category. It must
// run before the summary and risk stages, which consume the labels.
func Categorize(txs []domain.Transaction) []domain.Transaction {
	for i := range txs {
		txs[i].Category = categorize(txs[i].Description)
	}
	return txs
}

func categorize(description string) string {
	desc := strings.ToLower(description)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(desc, kw) {
				return rule.category
			}
		}
	}
	return defaultCategory
}
