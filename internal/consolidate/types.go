// Package consolidate aggregates the completed members of a statement
// group into a single cross-verified financial profile. Everything here
// is a pure function over already-persisted member metadata; nothing is
// re-parsed or re-scored and no result is persisted.
package consolidate

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"

	"github.com/finsight/statement-pipeline/internal/domain"
)

// ErrNoCompletedMembers is returned when a group has no members whose
// job reached the completed state. Callers get the error rather than a
// zeroed analysis so an operator mistake cannot masquerade as a result.
var ErrNoCompletedMembers = errors.New("NO_COMPLETED_MEMBERS: statement group has no completed members")

// ErrGroupNotFound is returned for an unknown group ID.
var ErrGroupNotFound = errors.New("statement group not found")

// ErrMemberJobNotCompleted rejects adding a member whose job has not
// reached the completed state.
var ErrMemberJobNotCompleted = errors.New("group member must reference a completed job")

// GroupStore is the durable home of statement groups and their members.
type GroupStore interface {
	CreateGroup(ctx context.Context, group *domain.StatementGroup) error
	GetGroup(ctx context.Context, groupID string) (*domain.StatementGroup, error)
	AddMember(ctx context.Context, member *domain.GroupMember) error
	// ListCompletedMembers returns only members whose job completed,
	// with the job's analysis metadata joined onto each member.
	ListCompletedMembers(ctx context.Context, groupID string) ([]domain.GroupMember, error)
}

// Thresholds are the tuning constants of the cross-verification
// algorithms. The defaults match the values the scoring models were
// calibrated against; override individual fields with care.
type Thresholds struct {
	// BalanceTolerance is the allowed closing-to-opening drift between
	// adjacent statements of one account, in currency units.
	BalanceTolerance float64
	// HighDiscrepancy escalates a continuity issue to high severity.
	HighDiscrepancy float64
	// IncomeMateriality is the summed income above which a source seen
	// across several accounts is flagged as duplicate.
	IncomeMateriality float64
	// CoverageTarget is the minimum acceptable coverage percentage.
	CoverageTarget float64
	// ConsistencyFloor is the income-consistency score below which a
	// risk factor is raised.
	ConsistencyFloor float64
	// SavingsRateFloor is the savings-rate percentage below which a
	// risk factor is raised.
	SavingsRateFloor float64
}

// DefaultThresholds returns the calibrated defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BalanceTolerance:  100,
		HighDiscrepancy:   1000,
		IncomeMateriality: 50000,
		CoverageTarget:    80,
		ConsistencyFloor:  70,
		SavingsRateFloor:  10,
	}
}

// ConsolidatedAnalysis is the on-demand view computed from a group's
// completed members. It is never persisted, not even partially.
type ConsolidatedAnalysis struct {
	FinancialSummary  GroupFinancialSummary `json:"financialSummary"`
	CrossVerification CrossVerification     `json:"crossVerification"`
	RiskAssessment    GroupRiskAssessment   `json:"riskAssessment"`
	BankingBehavior   GroupBankingBehavior  `json:"bankingBehavior"`
}

// GroupFinancialSummary sums the members' stored summaries.
type GroupFinancialSummary struct {
	TotalIncome          float64 `json:"totalIncome"`
	TotalExpenses        float64 `json:"totalExpenses"`
	NetCashFlow          float64 `json:"netCashFlow"`
	TotalBalance         float64 `json:"totalBalance"`
	AccountCount         int     `json:"accountCount"`
	AverageMonthlyIncome float64 `json:"averageMonthlyIncome"`
	SavingsRate          float64 `json:"savingsRate"`
}

// CrossVerification carries the results of the cross-account checks.
type CrossVerification struct {
	BalanceContinuityIssues []BalanceIssue    `json:"balanceContinuityIssues"`
	DuplicateIncomeSources  []DuplicateIncome `json:"duplicateIncomeSources"`
	IncomeConsistencyScore  float64           `json:"incomeConsistencyScore"`
	AccountCoverage         AccountCoverage   `json:"accountCoverage"`
}

// BalanceIssue flags two adjacent statements of one account that do not
// chain: the later statement opens at a balance materially different
// from where the earlier one closed.
type BalanceIssue struct {
	Account         string     `json:"account"`
	Date            civil.Date `json:"date"`
	ExpectedBalance float64    `json:"expectedBalance"`
	ActualBalance   float64    `json:"actualBalance"`
	Discrepancy     float64    `json:"discrepancy"`
	Severity        string     `json:"severity"` // medium, high
}

// DuplicateIncome flags one income source claimed across several
// accounts, a pattern used to inflate apparent repayment capacity.
type DuplicateIncome struct {
	Source   string   `json:"source"`
	Amount   float64  `json:"amount"`
	Accounts []string `json:"accounts"`
	Risk     string   `json:"risk"` // medium, high
}

// AccountCoverage describes how completely the declared statement
// periods tile the overall window.
type AccountCoverage struct {
	PeriodStart        civil.Date  `json:"periodStart"`
	PeriodEnd          civil.Date  `json:"periodEnd"`
	Gaps               []DateRange `json:"gaps"`
	CoveragePercentage float64     `json:"coveragePercentage"`
}

// DateRange is one uncovered span between two statement periods.
type DateRange struct {
	Start civil.Date `json:"start"`
	End   civil.Date `json:"end"`
	Days  int        `json:"days"`
}

// GroupRiskAssessment rolls the verification findings into one rating.
type GroupRiskAssessment struct {
	OverallRisk     string   `json:"overallRisk"` // low, medium, high, critical
	RiskFactors     []string `json:"riskFactors"`
	Recommendations []string `json:"recommendations"`
}

// GroupBankingBehavior aggregates per-member behavior metadata.
type GroupBankingBehavior struct {
	AccountDiversity     float64 `json:"accountDiversity"`
	RelationshipStrength string  `json:"relationshipStrength"` // weak, moderate, strong
	DigitalAdoption      float64 `json:"digitalAdoption"`
	StabilityScore       float64 `json:"stabilityScore"`
}
