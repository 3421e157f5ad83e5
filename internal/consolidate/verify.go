package consolidate

import (
	"math"
	"sort"
	"strings"

	"github.com/finsight/statement-pipeline/internal/domain"
)

// balanceContinuity checks, per account, that adjacent statements chain:
// the opening balance of each statement should match the closing balance
// of the one before it, within the configured tolerance.
func (c *Consolidator) balanceContinuity(members []domain.GroupMember) []BalanceIssue {
	byAccount := make(map[string][]domain.GroupMember)
	for _, m := range members {
		byAccount[m.AccountIdentifier] = append(byAccount[m.AccountIdentifier], m)
	}

	accounts := make([]string, 0, len(byAccount))
	for acct := range byAccount {
		accounts = append(accounts, acct)
	}
	sort.Strings(accounts)

	var issues []BalanceIssue
	for _, acct := range accounts {
		group := byAccount[acct]
		sort.Slice(group, func(i, j int) bool {
			return group[i].PeriodEnd.Before(group[j].PeriodEnd)
		})

		for i := 1; i < len(group); i++ {
			prev, curr := group[i-1], group[i]
			discrepancy := math.Abs(prev.ClosingBalance - curr.OpeningBalance)
			if discrepancy <= c.thresholds.BalanceTolerance {
				continue
			}
			severity := "medium"
			if discrepancy > c.thresholds.HighDiscrepancy {
				severity = "high"
			}
			issues = append(issues, BalanceIssue{
				Account:         curr.AccountIdentifier,
				Date:            curr.PeriodStart,
				ExpectedBalance: prev.ClosingBalance,
				ActualBalance:   curr.OpeningBalance,
				Discrepancy:     discrepancy,
				Severity:        severity,
			})
		}
	}
	return issues
}

// duplicateIncome surfaces an income source whose credits appear across
// more than one account and sum past the materiality threshold.
func (c *Consolidator) duplicateIncome(members []domain.GroupMember) []DuplicateIncome {
	type bucket struct {
		amount   float64
		accounts []string
	}
	sources := make(map[string]*bucket)

	for _, m := range members {
		if m.Metadata == nil || m.Metadata.Summary.TotalIncome <= 0 {
			continue
		}
		name := m.Metadata.BankDetails.BankName
		if name == "" {
			name = m.BankName
		}
		if name == "" {
			name = "Unknown"
		}
		key := strings.ToLower(name)
		b, ok := sources[key]
		if !ok {
			b = &bucket{}
			sources[key] = b
		}
		b.amount += m.Metadata.Summary.TotalIncome
		b.accounts = append(b.accounts, m.AccountIdentifier)
	}

	keys := make([]string, 0, len(sources))
	for k := range sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var duplicates []DuplicateIncome
	for _, key := range keys {
		b := sources[key]
		if len(distinct(b.accounts)) <= 1 || b.amount <= c.thresholds.IncomeMateriality {
			continue
		}
		risk := "medium"
		if len(distinct(b.accounts)) > 2 {
			risk = "high"
		}
		duplicates = append(duplicates, DuplicateIncome{
			Source:   titleCase(key),
			Amount:   b.amount,
			Accounts: b.accounts,
			Risk:     risk,
		})
	}
	return duplicates
}

// consistencyScore maps the coefficient of variation of the members'
// incomes to a 0-100 score. A single member scores 100 by definition.
func consistencyScore(members []domain.GroupMember) float64 {
	var incomes []float64
	for _, m := range members {
		if m.Metadata != nil && m.Metadata.Summary.TotalIncome > 0 {
			incomes = append(incomes, m.Metadata.Summary.TotalIncome)
		}
	}
	if len(incomes) < 2 {
		return 100
	}

	var sum float64
	for _, v := range incomes {
		sum += v
	}
	mean := sum / float64(len(incomes))

	var variance float64
	for _, v := range incomes {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(incomes))
	stddev := math.Sqrt(variance)

	cv := 0.0
	if mean > 0 {
		cv = stddev / mean * 100
	}
	return math.Max(0, math.Min(100, 100-cv))
}

// coverage tiles the declared statement periods over the overall window
// and records every run of uncovered days between adjacent periods.
func coverage(members []domain.GroupMember) AccountCoverage {
	var periods []domain.GroupMember
	for _, m := range members {
		if m.PeriodStart.IsValid() && m.PeriodEnd.IsValid() {
			periods = append(periods, m)
		}
	}
	if len(periods) == 0 {
		return AccountCoverage{}
	}

	sort.Slice(periods, func(i, j int) bool {
		return periods[i].PeriodStart.Before(periods[j].PeriodStart)
	})

	overallStart := periods[0].PeriodStart
	overallEnd := periods[0].PeriodEnd
	for _, p := range periods[1:] {
		if overallEnd.Before(p.PeriodEnd) {
			overallEnd = p.PeriodEnd
		}
	}
	totalDays := overallEnd.DaysSince(overallStart)

	coveredDays := 0
	var gaps []DateRange
	for i, p := range periods {
		coveredDays += p.PeriodEnd.DaysSince(p.PeriodStart)
		if i == len(periods)-1 {
			break
		}
		next := periods[i+1]
		// Endpoints themselves are covered, so the gap is the count of
		// uncovered days strictly between the two periods.
		gapDays := next.PeriodStart.DaysSince(p.PeriodEnd) - 1
		if gapDays > 0 {
			gaps = append(gaps, DateRange{
				Start: p.PeriodEnd,
				End:   next.PeriodStart,
				Days:  gapDays,
			})
		}
	}

	result := AccountCoverage{
		PeriodStart: overallStart,
		PeriodEnd:   overallEnd,
		Gaps:        gaps,
	}
	if totalDays > 0 {
		result.CoveragePercentage = math.Min(100, float64(coveredDays)/float64(totalDays)*100)
	}
	return result
}

func distinct(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
