package consolidate

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/finsight/statement-pipeline/internal/domain"
)

// Consolidator computes consolidated analyses for statement groups.
type Consolidator struct {
	store      GroupStore
	thresholds Thresholds
	log        zerolog.Logger
}

// New creates a consolidator over the given store.
func New(store GroupStore, thresholds Thresholds, log zerolog.Logger) *Consolidator {
	return &Consolidator{store: store, thresholds: thresholds, log: log}
}

// Consolidate reads a point-in-time snapshot of the group's completed
// members and computes the full cross-verified profile. It is safe to
// call repeatedly; nothing is written.
func (c *Consolidator) Consolidate(ctx context.Context, groupID string) (*ConsolidatedAnalysis, error) {
	members, err := c.store.ListCompletedMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	if len(members) == 0 {
		return nil, ErrNoCompletedMembers
	}

	summary := c.financialSummary(members)
	verification := CrossVerification{
		BalanceContinuityIssues: c.balanceContinuity(members),
		DuplicateIncomeSources:  c.duplicateIncome(members),
		IncomeConsistencyScore:  consistencyScore(members),
		AccountCoverage:         coverage(members),
	}
	risk := c.rollUpRisk(summary, verification)
	behavior := bankingBehavior(members)

	c.log.Debug().
		Str("group_id", groupID).
		Int("members", len(members)).
		Str("overall_risk", risk.OverallRisk).
		Msg("Consolidated analysis computed")

	return &ConsolidatedAnalysis{
		FinancialSummary:  summary,
		CrossVerification: verification,
		RiskAssessment:    risk,
		BankingBehavior:   behavior,
	}, nil
}

// financialSummary sums each member's stored totals. Income and expense
// figures come from the members' persisted summaries, balances from the
// declared closing balances.
func (c *Consolidator) financialSummary(members []domain.GroupMember) GroupFinancialSummary {
	out := GroupFinancialSummary{
		AccountCount: len(distinctAccounts(members)),
	}
	for _, m := range members {
		if m.Metadata != nil {
			out.TotalIncome += m.Metadata.Summary.TotalIncome
			out.TotalExpenses += m.Metadata.Summary.TotalExpenses
		}
		out.TotalBalance += m.ClosingBalance
	}
	out.NetCashFlow = out.TotalIncome - out.TotalExpenses
	if out.AccountCount > 0 {
		out.AverageMonthlyIncome = out.TotalIncome / float64(out.AccountCount)
	}
	if out.TotalIncome > 0 {
		out.SavingsRate = out.NetCashFlow / out.TotalIncome * 100
	}
	return out
}

// rollUpRisk converts the verification findings into human-readable
// factors and maps the factor count to an overall rating.
func (c *Consolidator) rollUpRisk(summary GroupFinancialSummary, verification CrossVerification) GroupRiskAssessment {
	var factors, recommendations []string

	if summary.SavingsRate < c.thresholds.SavingsRateFloor {
		factors = append(factors, "Low savings rate indicates poor financial discipline")
		recommendations = append(recommendations, "Aim for at least 20% savings rate for better financial health")
	}
	if n := len(verification.BalanceContinuityIssues); n > 0 {
		factors = append(factors, fmt.Sprintf("%d balance continuity issues detected", n))
		recommendations = append(recommendations, "Verify statement authenticity and account accuracy")
	}
	if len(verification.DuplicateIncomeSources) > 0 {
		factors = append(factors, "Potential duplicate income sources across accounts")
		recommendations = append(recommendations, "Consolidate income sources and verify legitimacy")
	}
	if verification.IncomeConsistencyScore < c.thresholds.ConsistencyFloor {
		factors = append(factors, "Inconsistent income patterns detected")
		recommendations = append(recommendations, "Verify income stability and source reliability")
	}
	if verification.AccountCoverage.CoveragePercentage < c.thresholds.CoverageTarget {
		factors = append(factors, "Incomplete account coverage period")
		recommendations = append(recommendations, "Upload statements covering at least 6-12 months")
	}

	overall := "low"
	switch {
	case len(factors) >= 3:
		overall = "critical"
	case len(factors) == 2:
		overall = "high"
	case len(factors) == 1:
		overall = "medium"
	}

	return GroupRiskAssessment{
		OverallRisk:     overall,
		RiskFactors:     factors,
		Recommendations: recommendations,
	}
}

// bankingBehavior aggregates each member's stored behavior metadata.
func bankingBehavior(members []domain.GroupMember) GroupBankingBehavior {
	accounts := len(distinctAccounts(members))
	diversity := math.Min(100, float64(accounts)*25)

	var ageSum float64
	aged := 0
	var totalTxs, digitalTxs float64
	for _, m := range members {
		if m.Metadata == nil {
			continue
		}
		if m.Metadata.Behavior.AccountAgeDays > 0 {
			ageSum += float64(m.Metadata.Behavior.AccountAgeDays)
			aged++
		}
		count := float64(m.Metadata.TransactionCount)
		totalTxs += count
		digitalTxs += count * m.Metadata.Behavior.DigitalTransactionPct / 100
	}

	avgAge := 0.0
	if aged > 0 {
		avgAge = ageSum / float64(aged)
	}
	strength := "weak"
	switch {
	case avgAge > 365:
		strength = "strong"
	case avgAge > 180:
		strength = "moderate"
	}

	adoption := 0.0
	if totalTxs > 0 {
		adoption = digitalTxs / totalTxs * 100
	}

	ageScore := math.Min(100, avgAge/365*100)
	return GroupBankingBehavior{
		AccountDiversity:     diversity,
		RelationshipStrength: strength,
		DigitalAdoption:      adoption,
		StabilityScore:       (diversity + ageScore + adoption) / 3,
	}
}

func distinctAccounts(members []domain.GroupMember) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.AccountIdentifier)
	}
	return distinct(ids)
}
