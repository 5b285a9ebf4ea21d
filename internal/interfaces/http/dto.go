package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const dateLayout = "2006-01-02"

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// RuleRequest is the body of rule create and update calls
type RuleRequest struct {
	Name                     string           `json:"name"`
	AmountThreshold          decimal.Decimal  `json:"amount_threshold"`
	IsSequential             bool             `json:"is_sequential"`
	IsManagerDefaultApprover bool             `json:"is_manager_default_approver"`
	ApprovalType             string           `json:"approval_type"`
	PercentageRequired       *decimal.Decimal `json:"percentage_required,omitempty"`
	SpecificApprover         string           `json:"specific_approver,omitempty"`
	Approvers                []string         `json:"approvers"`
	IsActive                 *bool            `json:"is_active,omitempty"`
}

func (r RuleRequest) input() service.RuleInput {
	return service.RuleInput{
		Name:                     r.Name,
		AmountThreshold:          r.AmountThreshold,
		IsSequential:             r.IsSequential,
		IsManagerDefaultApprover: r.IsManagerDefaultApprover,
		ApprovalType:             entity.ApprovalType(r.ApprovalType),
		PercentageRequired:       r.PercentageRequired,
		SpecificApprover:         r.SpecificApprover,
		Approvers:                r.Approvers,
		IsActive:                 r.IsActive,
	}
}

// RuleResponse represents an approval rule in API responses
type RuleResponse struct {
	ID                       string           `json:"id"`
	Name                     string           `json:"name"`
	AmountThreshold          decimal.Decimal  `json:"amount_threshold"`
	IsSequential             bool             `json:"is_sequential"`
	IsManagerDefaultApprover bool             `json:"is_manager_default_approver"`
	ApprovalType             string           `json:"approval_type"`
	PercentageRequired       *decimal.Decimal `json:"percentage_required,omitempty"`
	SpecificApprover         string           `json:"specific_approver,omitempty"`
	Approvers                []string         `json:"approvers"`
	IsActive                 bool             `json:"is_active"`
	CreatedAt                string           `json:"created_at"`
	UpdatedAt                string           `json:"updated_at"`
}

func toRuleResponse(r *entity.ApprovalRule) RuleResponse {
	policy := entity.FlattenPolicy(r.Policy)
	return RuleResponse{
		ID:                       r.ID,
		Name:                     r.Name,
		AmountThreshold:          r.AmountThreshold,
		IsSequential:             r.IsSequential,
		IsManagerDefaultApprover: r.IsManagerDefaultApprover,
		ApprovalType:             string(policy.ApprovalType),
		PercentageRequired:       policy.PercentageRequired,
		SpecificApprover:         policy.SpecificApprover,
		Approvers:                r.ApproverIDs(),
		IsActive:                 r.IsActive,
		CreatedAt:                r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:                r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// SubmitExpenseRequest is the JSON form of an expense submission
type SubmitExpenseRequest struct {
	Amount      decimal.Decimal `json:"amount" form:"amount"`
	Currency    string          `json:"currency" form:"currency"`
	Category    string          `json:"category" form:"category"`
	Description string          `json:"description" form:"description"`
	Date        string          `json:"date" form:"date"`
}

// ActionRequest is the body of an approve or reject call
type ActionRequest struct {
	Action   string `json:"action"`
	Comments string `json:"comments"`
}

// StepResponse represents one approval step
type StepResponse struct {
	Approver   string  `json:"approver"`
	Sequence   int     `json:"sequence"`
	Status     string  `json:"status"`
	Comments   string  `json:"comments,omitempty"`
	ActionDate *string `json:"action_date,omitempty"`
}

// ExpenseResponse represents an expense in API responses
type ExpenseResponse struct {
	ID                  string          `json:"id"`
	EmployeeID          string          `json:"employee_id"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Category            string          `json:"category"`
	Description         string          `json:"description"`
	Date                string          `json:"date"`
	HasReceipt          bool            `json:"has_receipt"`
	Status              string          `json:"status"`
	ApprovalFlow        []StepResponse  `json:"approval_flow"`
	CurrentApprovalStep int             `json:"current_approval_step"`
	AppliedRule         string          `json:"applied_rule,omitempty"`
	CreatedAt           string          `json:"created_at"`
	UpdatedAt           string          `json:"updated_at"`
}

func toExpenseResponse(e *entity.Expense) ExpenseResponse {
	resp := ExpenseResponse{
		ID:                  e.ID,
		EmployeeID:          e.EmployeeID,
		Amount:              e.Amount,
		Currency:            e.Currency,
		Category:            e.Category,
		Description:         e.Description,
		Date:                e.Date.Format(dateLayout),
		HasReceipt:          e.Receipt != nil,
		Status:              string(e.Status),
		ApprovalFlow:        make([]StepResponse, 0, len(e.ApprovalFlow)),
		CurrentApprovalStep: e.CurrentApprovalStep,
		CreatedAt:           e.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:           e.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if e.AppliedRule != nil {
		resp.AppliedRule = e.AppliedRule.Name
	}
	for _, step := range e.ApprovalFlow {
		s := StepResponse{
			Approver: step.Approver,
			Sequence: step.Sequence,
			Status:   string(step.Status),
			Comments: step.Comments,
		}
		if step.ActionDate != nil {
			formatted := step.ActionDate.UTC().Format(time.RFC3339)
			s.ActionDate = &formatted
		}
		resp.ApprovalFlow = append(resp.ApprovalFlow, s)
	}
	return resp
}

func toExpenseResponses(expenses []*entity.Expense) []ExpenseResponse {
	out := make([]ExpenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpenseResponse(e))
	}
	return out
}

// PendingResponse is an expense awaiting the caller, with the converted amount
type PendingResponse struct {
	ExpenseResponse
	SubmitterName   string          `json:"submitter_name,omitempty"`
	ConvertedAmount decimal.Decimal `json:"converted_amount"`
	TargetCurrency  string          `json:"target_currency"`
}

func toPendingResponses(pending []*service.PendingExpense) []PendingResponse {
	out := make([]PendingResponse, 0, len(pending))
	for _, p := range pending {
		out = append(out, PendingResponse{
			ExpenseResponse: toExpenseResponse(p.Expense),
			SubmitterName:   p.SubmitterName,
			ConvertedAmount: p.ConvertedAmount,
			TargetCurrency:  p.TargetCurrency,
		})
	}
	return out
}

// HistoryResponse represents one recorded action
type HistoryResponse struct {
	ActorID        string `json:"actor_id"`
	Action         string `json:"action"`
	Sequence       int    `json:"sequence"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	Comments       string `json:"comments,omitempty"`
	Timestamp      string `json:"timestamp"`
}

func toHistoryResponses(records []*entity.ActionHistory) []HistoryResponse {
	out := make([]HistoryResponse, 0, len(records))
	for _, h := range records {
		out = append(out, HistoryResponse{
			ActorID:        h.ActorID,
			Action:         string(h.Action),
			Sequence:       h.Sequence,
			PreviousStatus: string(h.PreviousStatus),
			NewStatus:      string(h.NewStatus),
			Comments:       h.Comments,
			Timestamp:      h.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return out
}
