package consolidate

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/finsight/statement-pipeline/internal/domain"
)

type stubMembers struct {
	members []domain.GroupMember
	err     error
}

func (s *stubMembers) CreateGroup(ctx context.Context, group *domain.StatementGroup) error {
	return nil
}

func (s *stubMembers) GetGroup(ctx context.Context, groupID string) (*domain.StatementGroup, error) {
	return &domain.StatementGroup{GroupID: groupID}, nil
}

func (s *stubMembers) AddMember(ctx context.Context, member *domain.GroupMember) error {
	return nil
}

func (s *stubMembers) ListCompletedMembers(ctx context.Context, groupID string) ([]domain.GroupMember, error) {
	return s.members, s.err
}

func newTestConsolidator(members ...domain.GroupMember) *Consolidator {
	return New(&stubMembers{members: members}, DefaultThresholds(), zerolog.Nop())
}

func date(y, m, d int) civil.Date {
	return civil.Date{Year: y, Month: time.Month(m), Day: d}
}

func incomeMember(account, bank string, income float64) domain.GroupMember {
	return domain.GroupMember{
		GroupID:           "grp-1",
		AccountIdentifier: account,
		BankName:          bank,
		Metadata: &domain.AnalysisMetadata{
			Summary: domain.FinancialSummary{TotalIncome: income},
		},
	}
}

func TestConsolidateNoCompletedMembers(t *testing.T) {
	c := newTestConsolidator()

	_, err := c.Consolidate(context.Background(), "grp-1")
	if !errors.Is(err, ErrNoCompletedMembers) {
		t.Fatalf("expected ErrNoCompletedMembers, got %v", err)
	}
}

func TestBalanceContinuityFlagsGap(t *testing.T) {
	// Member A closes at 1000, member B opens at 1500 on the same
	// account: exactly one medium issue with discrepancy 500.
	a := domain.GroupMember{
		AccountIdentifier: "ACC-1",
		PeriodStart:       date(2025, 1, 1),
		PeriodEnd:         date(2025, 1, 31),
		OpeningBalance:    500,
		ClosingBalance:    1000,
	}
	b := domain.GroupMember{
		AccountIdentifier: "ACC-1",
		PeriodStart:       date(2025, 2, 1),
		PeriodEnd:         date(2025, 2, 28),
		OpeningBalance:    1500,
		ClosingBalance:    2000,
	}
	c := newTestConsolidator(a, b)

	analysis, err := c.Consolidate(context.Background(), "grp-1")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	issues := analysis.CrossVerification.BalanceContinuityIssues
	if len(issues) != 1 {
		t.Fatalf("expected exactly 1 balance issue, got %d", len(issues))
	}
	if issues[0].Discrepancy != 500 {
		t.Fatalf("discrepancy = %v, want 500", issues[0].Discrepancy)
	}
	if issues[0].Severity != "medium" {
		t.Fatalf("severity = %s, want medium", issues[0].Severity)
	}
	if issues[0].ExpectedBalance != 1000 || issues[0].ActualBalance != 1500 {
		t.Fatalf("unexpected balances: %+v", issues[0])
	}
}

func TestBalanceContinuitySeverityThresholds(t *testing.T) {
	tests := []struct {
		name        string
		nextOpening float64
		wantIssues  int
		wantSev     string
	}{
		{"within tolerance", 1080, 0, ""},
		{"medium", 1500, 1, "medium"},
		{"high", 2500, 1, "high"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := domain.GroupMember{
				AccountIdentifier: "ACC-1",
				PeriodEnd:         date(2025, 1, 31),
				ClosingBalance:    1000,
			}
			b := domain.GroupMember{
				AccountIdentifier: "ACC-1",
				PeriodStart:       date(2025, 2, 1),
				PeriodEnd:         date(2025, 2, 28),
				OpeningBalance:    tt.nextOpening,
			}
			c := newTestConsolidator(a, b)

			analysis, err := c.Consolidate(context.Background(), "grp-1")
			if err != nil {
				t.Fatalf("Consolidate: %v", err)
			}
			issues := analysis.CrossVerification.BalanceContinuityIssues
			if len(issues) != tt.wantIssues {
				t.Fatalf("issues = %d, want %d", len(issues), tt.wantIssues)
			}
			if tt.wantIssues > 0 && issues[0].Severity != tt.wantSev {
				t.Fatalf("severity = %s, want %s", issues[0].Severity, tt.wantSev)
			}
		})
	}
}

func TestDuplicateIncomeAcrossAccounts(t *testing.T) {
	// Two accounts both claiming 60000 from the same payroll source:
	// one entry, summed amount, medium risk.
	c := newTestConsolidator(
		incomeMember("ACC-1", "Acme Payroll", 60000),
		incomeMember("ACC-2", "Acme Payroll", 60000),
	)

	analysis, err := c.Consolidate(context.Background(), "grp-1")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	dups := analysis.CrossVerification.DuplicateIncomeSources
	if len(dups) != 1 {
		t.Fatalf("expected 1 duplicate income entry, got %d", len(dups))
	}
	if dups[0].Amount != 120000 {
		t.Fatalf("amount = %v, want 120000", dups[0].Amount)
	}
	if dups[0].Risk != "medium" {
		t.Fatalf("risk = %s, want medium", dups[0].Risk)
	}
	if len(dups[0].Accounts) != 2 {
		t.Fatalf("accounts = %v, want 2 entries", dups[0].Accounts)
	}
}

func TestDuplicateIncomeHighRiskOverTwoAccounts(t *testing.T) {
	c := newTestConsolidator(
		incomeMember("ACC-1", "Acme Payroll", 30000),
		incomeMember("ACC-2", "Acme Payroll", 30000),
		incomeMember("ACC-3", "Acme Payroll", 30000),
	)

	analysis, err := c.Consolidate(context.Background(), "grp-1")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	dups := analysis.CrossVerification.DuplicateIncomeSources
	if len(dups) != 1 || dups[0].Risk != "high" {
		t.Fatalf("expected one high-risk duplicate, got %+v", dups)
	}
}

func TestDuplicateIncomeBelowMaterialityIgnored(t *testing.T) {
	c := newTestConsolidator(
		incomeMember("ACC-1", "Side Gig", 20000),
		incomeMember("ACC-2", "Side Gig", 20000),
	)

	analysis, err := c.Consolidate(context.Background(), "grp-1")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(analysis.CrossVerification.DuplicateIncomeSources) != 0 {
		t.Fatalf("income below materiality must not be flagged: %+v",
			analysis.CrossVerification.DuplicateIncomeSources)
	}
}

func TestSingleMemberConsistencyIs100(t *testing.T) {
	c := newTestConsolidator(incomeMember("ACC-1", "Acme Payroll", 60000))

	analysis, err := c.Consolidate(context.Background(), "grp-1")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if got := analysis.CrossVerification.IncomeConsistencyScore; got != 100 {
		t.Fatalf("single-member consistency = %v, want 100", got)
	}
}

func TestConsistencyScoreDropsWithVariation(t *testing.T) {
	c := newTestConsolidator(
		incomeMember("ACC-1", "Bank A", 10000),
		incomeMember("ACC-2", "Bank B", 90000),
	)

	analysis, err := c.Consolidate(context.Background(), "grp-1")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if got := analysis.CrossVerification.IncomeConsistencyScore; got >= 70 {
		t.Fatalf("wildly varying incomes should score below 70, got %v", got)
	}
}

func TestCoverageGapDetection(t *testing.T) {
	// [Jan 1 - Jan 31] and [Feb 5 - Feb 28]: one gap of 4 days.
	a := domain.GroupMember{
		AccountIdentifier: "ACC-1",
		PeriodStart:       date(2025, 1, 1),
		PeriodEnd:         date(2025, 1, 31),
	}
	b := domain.GroupMember{
		AccountIdentifier: "ACC-1",
		PeriodStart:       date(2025, 2, 5),
		PeriodEnd:         date(2025, 2, 28),
	}
	c := newTestConsolidator(a, b)

	analysis, err := c.Consolidate(context.Background(), "grp-1")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	coverage := analysis.CrossVerification.AccountCoverage
	if len(coverage.Gaps) != 1 {
		t.Fatalf("expected 1 gap, got %d", len(coverage.Gaps))
	}
	if coverage.Gaps[0].Days != 4 {
		t.Fatalf("gap days = %d, want 4 (Feb 1 through Feb 4 uncovered)", coverage.Gaps[0].Days)
	}
	if coverage.CoveragePercentage >= 100 {
		t.Fatalf("coverage = %v, want < 100", coverage.CoveragePercentage)
	}
	if coverage.PeriodStart != date(2025, 1, 1) || coverage.PeriodEnd != date(2025, 2, 28) {
		t.Fatalf("overall window wrong: %+v", coverage)
	}
}

func TestRiskRollUpFactorCounts(t *testing.T) {
	tests := []struct {
		name    string
		members []domain.GroupMember
		want    string
	}{
		{
			name: "healthy single member is low",
			members: []domain.GroupMember{
				func() domain.GroupMember {
					m := incomeMember("ACC-1", "Acme Payroll", 100000)
					m.Metadata.Summary.TotalExpenses = 50000
					m.PeriodStart = date(2025, 1, 1)
					m.PeriodEnd = date(2025, 1, 31)
					return m
				}(),
			},
			want: "low",
		},
		{
			name: "low savings alone is medium",
			members: []domain.GroupMember{
				func() domain.GroupMember {
					m := incomeMember("ACC-1", "Acme Payroll", 100000)
					m.Metadata.Summary.TotalExpenses = 99000
					m.PeriodStart = date(2025, 1, 1)
					m.PeriodEnd = date(2025, 1, 31)
					return m
				}(),
			},
			want: "medium",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestConsolidator(tt.members...)
			analysis, err := c.Consolidate(context.Background(), "grp-1")
			if err != nil {
				t.Fatalf("Consolidate: %v", err)
			}
			if analysis.RiskAssessment.OverallRisk != tt.want {
				t.Fatalf("overallRisk = %s, want %s (factors %v)",
					analysis.RiskAssessment.OverallRisk, tt.want,
					analysis.RiskAssessment.RiskFactors)
			}
		})
	}
}

func TestRiskRollUpCriticalAtThreeFactors(t *testing.T) {
	// Low savings + continuity break + inconsistent incomes stack past
	// the critical threshold.
	a := incomeMember("ACC-1", "Acme Payroll", 100000)
	a.Metadata.Summary.TotalExpenses = 105000
	a.PeriodStart = date(2025, 1, 1)
	a.PeriodEnd = date(2025, 1, 31)
	a.ClosingBalance = 1000

	b := incomeMember("ACC-2", "Acme Payroll", 10000)
	b.AccountIdentifier = "ACC-1"
	b.PeriodStart = date(2025, 2, 10)
	b.PeriodEnd = date(2025, 2, 28)
	b.OpeningBalance = 5000

	c := newTestConsolidator(a, b)
	analysis, err := c.Consolidate(context.Background(), "grp-1")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if analysis.RiskAssessment.OverallRisk != "critical" {
		t.Fatalf("overallRisk = %s, want critical (factors %v)",
			analysis.RiskAssessment.OverallRisk, analysis.RiskAssessment.RiskFactors)
	}
	if len(analysis.RiskAssessment.Recommendations) != len(analysis.RiskAssessment.RiskFactors) {
		t.Fatalf("each factor should carry a recommendation: %d vs %d",
			len(analysis.RiskAssessment.Recommendations), len(analysis.RiskAssessment.RiskFactors))
	}
}

func TestFinancialSummaryAggregation(t *testing.T) {
	a := incomeMember("ACC-1", "Bank A", 60000)
	a.Metadata.Summary.TotalExpenses = 40000
	a.ClosingBalance = 15000
	b := incomeMember("ACC-2", "Bank B", 40000)
	b.Metadata.Summary.TotalExpenses = 10000
	b.ClosingBalance = 5000

	c := newTestConsolidator(a, b)
	analysis, err := c.Consolidate(context.Background(), "grp-1")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	fs := analysis.FinancialSummary
	if fs.TotalIncome != 100000 || fs.TotalExpenses != 50000 {
		t.Fatalf("totals wrong: %+v", fs)
	}
	if fs.NetCashFlow != 50000 {
		t.Fatalf("NetCashFlow = %v, want 50000", fs.NetCashFlow)
	}
	if fs.TotalBalance != 20000 {
		t.Fatalf("TotalBalance = %v, want 20000", fs.TotalBalance)
	}
	if fs.AccountCount != 2 {
		t.Fatalf("AccountCount = %d, want 2", fs.AccountCount)
	}
	if fs.SavingsRate != 50 {
		t.Fatalf("SavingsRate = %v, want 50", fs.SavingsRate)
	}
}

func TestSavingsRateZeroWhenNoIncome(t *testing.T) {
	m := incomeMember("ACC-1", "Bank A", 0)
	m.Metadata.Summary.TotalExpenses = 5000
	m.Metadata = &domain.AnalysisMetadata{
		Summary: domain.FinancialSummary{TotalExpenses: 5000},
	}

	c := newTestConsolidator(m)
	analysis, err := c.Consolidate(context.Background(), "grp-1")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if analysis.FinancialSummary.SavingsRate != 0 {
		t.Fatalf("SavingsRate = %v, want 0 for zero income", analysis.FinancialSummary.SavingsRate)
	}
}

func TestBankingBehaviorRollUp(t *testing.T) {
	a := incomeMember("ACC-1", "Bank A", 60000)
	a.Metadata.Behavior = domain.BehaviorScore{
		DigitalTransactionPct: 80,
		AccountAgeDays:        400,
	}
	a.Metadata.TransactionCount = 100
	b := incomeMember("ACC-2", "Bank B", 60000)
	b.Metadata.Behavior = domain.BehaviorScore{
		DigitalTransactionPct: 40,
		AccountAgeDays:        500,
	}
	b.Metadata.TransactionCount = 100

	c := newTestConsolidator(a, b)
	analysis, err := c.Consolidate(context.Background(), "grp-1")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	bb := analysis.BankingBehavior
	if bb.AccountDiversity != 50 {
		t.Fatalf("AccountDiversity = %v, want 50", bb.AccountDiversity)
	}
	if bb.RelationshipStrength != "strong" {
		t.Fatalf("RelationshipStrength = %s, want strong", bb.RelationshipStrength)
	}
	if bb.DigitalAdoption != 60 {
		t.Fatalf("DigitalAdoption = %v, want 60", bb.DigitalAdoption)
	}
	if bb.StabilityScore <= 0 || bb.StabilityScore > 100 {
		t.Fatalf("StabilityScore out of range: %v", bb.StabilityScore)
	}
}
