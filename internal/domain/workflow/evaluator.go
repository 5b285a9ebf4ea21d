package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// reasonNoPendingStep is the reason given when the actor has nothing to act on
const reasonNoPendingStep = "actor has no pending step at current sequence"

var hundred = decimal.NewFromInt(100)

// Result describes one recorded approval action
type Result struct {
	Expense        *entity.Expense
	Trigger        Trigger
	Sequence       int
	PreviousStatus entity.ExpenseStatus
}

// Evaluator applies approval actions to an expense's flow and decides the resulting status
type Evaluator struct {
	builder StateMachineBuilder
	now     func() time.Time
}

// EvaluatorOption configures an Evaluator
type EvaluatorOption func(*Evaluator)

// WithClock overrides the action timestamp source
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) {
		e.now = now
	}
}

// NewEvaluator creates an evaluator over the expense lifecycle state machine
func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		builder: NewExpenseBuilder(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecordAction applies action by actorID to exp under rule (nil when no rule applied).
// The input expense is never modified: the returned Result carries an updated copy.
// Terminal expenses and actors without a pending step at the current sequence fail with
// an authorization error.
func (e *Evaluator) RecordAction(
	ctx context.Context,
	exp *entity.Expense,
	rule *entity.RuleSnapshot,
	actorID string,
	action entity.Action,
	comments string,
) (*Result, error) {
	if !action.IsValid() {
		return nil, apperr.Validation("action must be approve or reject, got %q", action)
	}
	if exp.Status.IsTerminal() {
		return nil, apperr.Unauthorized(fmt.Sprintf("expense is already %s", exp.Status))
	}

	idx, ok := PendingStepIndex(exp, actorID)
	if !ok {
		return nil, apperr.Unauthorized(reasonNoPendingStep)
	}

	next := exp.Clone()
	now := e.now()

	step := &next.ApprovalFlow[idx]
	step.Status = entity.StatusApproved
	if action == entity.ActionReject {
		step.Status = entity.StatusRejected
	}
	step.Comments = comments
	step.ActionDate = &now

	trigger := decide(next, rule, actorID, action)

	machine := e.builder.Build(State(next.Status))
	if err := machine.Fire(ctx, trigger); err != nil {
		return nil, fmt.Errorf("record action: %w", err)
	}

	if trigger == TriggerAdvance {
		next.CurrentApprovalStep++
	}
	next.Status = machine.State().Status()
	next.UpdatedAt = now

	return &Result{
		Expense:        next,
		Trigger:        trigger,
		Sequence:       step.Sequence,
		PreviousStatus: exp.Status,
	}, nil
}

// decide runs after the acted step has been updated on exp
func decide(exp *entity.Expense, rule *entity.RuleSnapshot, actorID string, action entity.Action) Trigger {
	if action == entity.ActionReject {
		return TriggerReject
	}

	if rule != nil {
		if approver, ok := entity.SpecificApproverOf(rule.Policy); ok && approver == actorID {
			return TriggerApprove
		}
	}

	if rule != nil && rule.IsSequential && exp.HasStepAt(exp.CurrentApprovalStep+1) {
		return TriggerAdvance
	}

	if rule != nil {
		if required, ok := entity.PercentageOf(rule.Policy); ok {
			if percentageMet(exp, required) {
				return TriggerApprove
			}
			return TriggerAwait
		}
	}

	if allApproved(exp) {
		return TriggerApprove
	}
	return TriggerAwait
}

// percentageMet compares approved/total*100 against required over the whole flow
func percentageMet(exp *entity.Expense, required decimal.Decimal) bool {
	total := len(exp.ApprovalFlow)
	if total == 0 {
		return false
	}
	approved := decimal.NewFromInt(int64(exp.ApprovedCount())).Mul(hundred)
	return approved.GreaterThanOrEqual(required.Mul(decimal.NewFromInt(int64(total))))
}

func allApproved(exp *entity.Expense) bool {
	for _, step := range exp.ApprovalFlow {
		if step.Status != entity.StatusApproved {
			return false
		}
	}
	return len(exp.ApprovalFlow) > 0
}
