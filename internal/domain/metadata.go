package domain

import "time"

// Stage result types. Each analytic stage contributes one struct with a
// stable field set; AnalysisMetadata assembles them into the aggregate
// result persisted alongside the completed job.

// FinancialSummary is the output of the summary stage.
type FinancialSummary struct {
	TotalIncome    float64            `json:"total_income"`
	TotalExpenses  float64            `json:"total_expenses"`
	NetCashFlow    float64            `json:"net_cash_flow"`
	OpeningBalance float64            `json:"opening_balance"`
	ClosingBalance float64            `json:"closing_balance"`
	AverageBalance float64            `json:"average_balance"`
	CreditCount    int                `json:"credit_count"`
	DebitCount     int                `json:"debit_count"`
	CategoryTotals map[string]float64 `json:"category_totals,omitempty"`
}

// RiskFactor is one named contributor to the risk assessment.
type RiskFactor struct {
	Name     string  `json:"name"`
	Severity string  `json:"severity"` // low, medium, high
	Detail   string  `json:"detail,omitempty"`
	Score    float64 `json:"score"`
}

// RiskAssessment is the output of the risk stage. It consumes the
// financial summary in addition to the categorized transactions.
type RiskAssessment struct {
	OverallRiskScore float64      `json:"overall_risk_score"` // 0-100, higher is riskier
	RiskLevel        string       `json:"risk_level"`         // low, medium, high
	Factors          []RiskFactor `json:"factors,omitempty"`
}

// FraudAlert is one suspicious pattern surfaced by the fraud stage.
type FraudAlert struct {
	Type     string `json:"type"`
	Severity string `json:"severity"` // low, medium, high
	Detail   string `json:"detail,omitempty"`
}

// FraudAnalysis is the output of the fraud-detection stage.
type FraudAnalysis struct {
	FraudScore float64      `json:"fraud_score"` // 0-100
	FraudLevel string       `json:"fraud_level"`
	Alerts     []FraudAlert `json:"alerts,omitempty"`
}

// FOIRAnalysis is the fixed-obligation-to-income ratio stage output.
type FOIRAnalysis struct {
	FOIR             float64 `json:"foir"` // percentage
	MonthlyIncome    float64 `json:"monthly_income"`
	FixedObligations float64 `json:"fixed_obligations"`
	Status           string  `json:"status"` // healthy, stretched, critical
}

// IncomeVerification is the income-verification stage output.
type IncomeVerification struct {
	VerificationStatus string  `json:"verification_status"` // verified, partial, unverified
	MonthlyAverage     float64 `json:"monthly_average"`
	SalaryCreditCount  int     `json:"salary_credit_count"`
	Regularity         float64 `json:"regularity"` // 0-100
}

// BehaviorScore is the banking-behavior stage output.
type BehaviorScore struct {
	BehaviorScore         float64 `json:"behavior_score"` // 0-100
	BehaviorRating        string  `json:"behavior_rating"`
	DigitalTransactionPct float64 `json:"digital_transaction_pct"`
	AccountAgeDays        int     `json:"account_age_days"`
	MinBalanceBreaches    int     `json:"min_balance_breaches"`
}

// MonthlySummary is the per-month breakdown produced by the monthly stage.
type MonthlySummary struct {
	Month       string  `json:"month"` // YYYY-MM
	Income      float64 `json:"income"`
	Expenses    float64 `json:"expenses"`
	NetFlow     float64 `json:"net_flow"`
	EndBalance  float64 `json:"end_balance"`
	Transaction int     `json:"transaction_count"`
}

// MonthlyBreakdown is the output of the monthly-summary stage.
type MonthlyBreakdown struct {
	Months []MonthlySummary `json:"months"`
	Trend  string           `json:"trend"` // increasing, decreasing, stable
}

// BankDetails is best-effort source metadata detected from the raw
// statement text. Never required for pipeline correctness.
type BankDetails struct {
	BankName      string  `json:"bank_name"`
	Confidence    float64 `json:"confidence"` // 0-100
	AccountType   string  `json:"account_type"`
	AccountNumber string  `json:"account_number,omitempty"`
}

// AnalysisMetadata is the aggregate result bag written atomically with the
// completed transition. Every stage contributes exactly one field.
type AnalysisMetadata struct {
	Summary          FinancialSummary   `json:"summary"`
	Risk             RiskAssessment     `json:"risk"`
	Fraud            FraudAnalysis      `json:"fraud"`
	FOIR             FOIRAnalysis       `json:"foir"`
	Income           IncomeVerification `json:"income"`
	Behavior         BehaviorScore      `json:"behavior"`
	Monthly          MonthlyBreakdown   `json:"monthly"`
	BankDetails      BankDetails        `json:"bank_details"`
	TransactionCount int                `json:"transaction_count"`
	ProcessingTime   time.Duration      `json:"processing_time"`
}
