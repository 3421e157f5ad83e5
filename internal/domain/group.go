package domain

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// GroupType classifies why statements were grouped together.
type GroupType string

const (
	GroupTypeSingleAccount   GroupType = "single_account"
	GroupTypeMultiAccount    GroupType = "multi_account"
	GroupTypeLoanApplication GroupType = "loan_application"
)

// GroupStatus is the lifecycle state of a statement group.
type GroupStatus string

const (
	GroupStatusActive    GroupStatus = "active"
	GroupStatusCompleted GroupStatus = "completed"
	GroupStatusArchived  GroupStatus = "archived"
)

// StatementGroup is a named collection of analysis jobs believed to
// describe the same borrower.
type StatementGroup struct {
	GroupID             string      `json:"groupId"`
	UserID              string      `json:"userId"`
	GroupName           string      `json:"groupName"`
	GroupType           GroupType   `json:"groupType"`
	ReferenceID         string      `json:"referenceId"`
	Status              GroupStatus `json:"status"`
	TotalStatements     int         `json:"totalStatements"`
	TotalAccounts       int         `json:"totalAccounts"`
	ConsolidatedBalance float64     `json:"consolidatedBalance"`
	CreatedAt           time.Time   `json:"createdAt"`
	UpdatedAt           time.Time   `json:"updatedAt"`
}

// GroupMember links one completed analysis job into a statement group.
// Metadata is the member job's analysis result, joined in at read time.
type GroupMember struct {
	GroupID           string            `json:"groupId"`
	JobID             string            `json:"jobId"`
	AccountIdentifier string            `json:"accountIdentifier"`
	BankName          string            `json:"bankName,omitempty"`
	AccountType       string            `json:"accountType,omitempty"`
	PeriodStart       civil.Date        `json:"periodStart"`
	PeriodEnd         civil.Date        `json:"periodEnd"`
	OpeningBalance    float64           `json:"openingBalance"`
	ClosingBalance    float64           `json:"closingBalance"`
	AddedAt           time.Time         `json:"addedAt"`
	Metadata          *AnalysisMetadata `json:"-"`
}

// Validate rejects members whose declared statement period is inverted.
func (m GroupMember) Validate() error {
	if m.AccountIdentifier == "" {
		return fmt.Errorf("group member requires an account identifier")
	}
	if m.PeriodStart.IsValid() && m.PeriodEnd.IsValid() && m.PeriodEnd.Before(m.PeriodStart) {
		return fmt.Errorf("statement period ends %s before it starts %s", m.PeriodEnd, m.PeriodStart)
	}
	return nil
}
