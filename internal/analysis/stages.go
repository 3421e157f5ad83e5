// Package analysis holds the analytic stages of the pipeline. Every
// stage is a pure, deterministic function from a transaction list to a
// result record; the only ordering constraints are declared in Stages.
package analysis

// Stage names used for checkpoints and error attribution.
const (
	StageCategorize = "categorize"
	StageSummary    = "summary"
	StageRisk       = "risk"
	StageFraud      = "fraud"
	StageFOIR       = "foir"
	StageIncome     = "income"
	StageBehavior   = "behavior"
	StageMonthly    = "monthly"
)

// StageSpec declares one stage and the stages whose output it consumes.
type StageSpec struct {
	Name     string
	Requires []string
}

// Stages is the explicit dependency list: categorization precedes
// summary and risk, risk consumes summary, everything else is
// independent and may run concurrently.
var Stages = []StageSpec{
	{Name: StageCategorize},
	{Name: StageSummary, Requires: []string{StageCategorize}},
	{Name: StageRisk, Requires: []string{StageCategorize, StageSummary}},
	{Name: StageFraud},
	{Name: StageFOIR},
	{Name: StageIncome},
	{Name: StageBehavior},
	{Name: StageMonthly},
}
