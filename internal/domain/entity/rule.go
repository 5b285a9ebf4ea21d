package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// RuleApprover is a designated non-manager approver of a rule
type RuleApprover struct {
	UserID   string `json:"user_id"`
	Sequence int    `json:"sequence"`
}

// ApprovalRule is a tenant's approval configuration for expenses at or above AmountThreshold
type ApprovalRule struct {
	ID                       string
	CompanyID                string
	Name                     string
	AmountThreshold          decimal.Decimal
	IsSequential             bool
	IsManagerDefaultApprover bool
	Policy                   Policy
	Approvers                []RuleApprover
	IsActive                 bool
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// Snapshot captures the fields the evaluator reads, detached from later edits
func (r *ApprovalRule) Snapshot() *RuleSnapshot {
	return &RuleSnapshot{
		RuleID:       r.ID,
		Name:         r.Name,
		IsSequential: r.IsSequential,
		Policy:       r.Policy,
	}
}

// ApproverIDs returns the configured approver user ids in stored order
func (r *ApprovalRule) ApproverIDs() []string {
	ids := make([]string, 0, len(r.Approvers))
	for _, a := range r.Approvers {
		ids = append(ids, a.UserID)
	}
	return ids
}
