package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptRef points at a receipt held by the receipt store
type ReceiptRef struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
}

// ApprovalStep is one approver's slot in an expense's flow.
// Steps sharing a Sequence are open in parallel.
type ApprovalStep struct {
	Approver   string        `json:"approver"`
	Sequence   int           `json:"sequence"`
	Status     ExpenseStatus `json:"status"`
	Comments   string        `json:"comments,omitempty"`
	ActionDate *time.Time    `json:"action_date,omitempty"`
}

// Expense is a submitted expense and the state of its approval flow
type Expense struct {
	ID                  string
	EmployeeID          string
	CompanyID           string
	Amount              decimal.Decimal
	Currency            string
	Category            string
	Description         string
	Date                time.Time
	Receipt             *ReceiptRef
	Status              ExpenseStatus
	ApprovalFlow        []ApprovalStep
	CurrentApprovalStep int
	AppliedRule         *RuleSnapshot
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Clone returns a deep copy so a transition can be computed without touching the original
func (e *Expense) Clone() *Expense {
	c := *e
	if e.Receipt != nil {
		r := *e.Receipt
		c.Receipt = &r
	}
	if e.AppliedRule != nil {
		s := *e.AppliedRule
		c.AppliedRule = &s
	}
	c.ApprovalFlow = make([]ApprovalStep, len(e.ApprovalFlow))
	for i, step := range e.ApprovalFlow {
		if step.ActionDate != nil {
			t := *step.ActionDate
			step.ActionDate = &t
		}
		c.ApprovalFlow[i] = step
	}
	return &c
}

// HasStepAt reports whether any step carries the given sequence number
func (e *Expense) HasStepAt(sequence int) bool {
	for _, step := range e.ApprovalFlow {
		if step.Sequence == sequence {
			return true
		}
	}
	return false
}

// ApprovedCount returns how many steps of the whole flow are approved
func (e *Expense) ApprovedCount() int {
	n := 0
	for _, step := range e.ApprovalFlow {
		if step.Status == StatusApproved {
			n++
		}
	}
	return n
}

// InFlow reports whether userID is assigned to any step, regardless of sequence or status
func (e *Expense) InFlow(userID string) bool {
	for _, step := range e.ApprovalFlow {
		if step.Approver == userID {
			return true
		}
	}
	return false
}

// ActiveApprovers returns the approvers with a pending step at the current sequence
func (e *Expense) ActiveApprovers() []string {
	var ids []string
	if e.Status.IsTerminal() || e.CurrentApprovalStep == 0 {
		return ids
	}
	for _, step := range e.ApprovalFlow {
		if step.Sequence == e.CurrentApprovalStep && step.Status == StatusPending {
			ids = append(ids, step.Approver)
		}
	}
	return ids
}
