package parsing

import (
	"regexp"
	"strings"

	"github.com/finsight/statement-pipeline/internal/domain"
)

// Best-effort source detection from raw statement text. The result is
// enrichment only; the pipeline never depends on it for correctness.

var bankKeywords = map[string][]string{
	"HDFC Bank":            {"hdfc bank", "hdfc"},
	"ICICI Bank":           {"icici bank", "icici"},
	"State Bank of India":  {"state bank of india", "sbi"},
	"Axis Bank":            {"axis bank"},
	"Kotak Mahindra Bank":  {"kotak mahindra", "kotak"},
	"Punjab National Bank": {"punjab national bank", "pnb"},
	"Barclays":             {"barclays"},
}

var businessIndicators = []string{
	"pvt ltd", "private limited", "llp", "proprietor", "enterprises",
	"traders", "current account", "gstin",
}

var personalIndicators = []string{
	"savings account", "salary account", "mr ", "mrs ", "ms ",
}

var accountNumberPattern = regexp.MustCompile(`(?i)a/?c(?:count)?\s*(?:no\.?|number)?\s*[:\-]?\s*([0-9Xx*]{6,20})`)

// DetectSource inspects raw statement text and returns bank/account
// metadata with a 0-100 confidence.
func DetectSource(rawText string) domain.BankDetails {
	text := strings.ToLower(rawText)

	details := domain.BankDetails{
		BankName:    "Unknown Bank",
		AccountType: "unknown",
	}

	bestHits := 0
	for bank, keywords := range bankKeywords {
		hits := 0
		for _, kw := range keywords {
			hits += strings.Count(text, kw)
		}
		if hits > bestHits {
			bestHits = hits
			details.BankName = bank
		}
	}
	if bestHits > 0 {
		confidence := float64(bestHits) * 25
		if confidence > 100 {
			confidence = 100
		}
		details.Confidence = confidence
	}

	businessScore := 0
	for _, ind := range businessIndicators {
		if strings.Contains(text, ind) {
			businessScore++
		}
	}
	personalScore := 0
	for _, ind := range personalIndicators {
		if strings.Contains(text, ind) {
			personalScore++
		}
	}
	switch {
	case businessScore > personalScore:
		details.AccountType = "business"
	case personalScore > 0:
		details.AccountType = "personal"
	}

	if m := accountNumberPattern.FindStringSubmatch(rawText); m != nil {
		details.AccountNumber = m[1]
	}

	return details
}
