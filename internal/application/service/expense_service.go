package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/pkg/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultMaxReceiptBytes caps receipt uploads when no limit is configured
const DefaultMaxReceiptBytes int64 = 5 << 20

// SubmitInput carries a new expense claim
type SubmitInput struct {
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Description string
	Date        time.Time
	Receipt     *ReceiptUpload
}

// ReceiptUpload is an uploaded receipt file
type ReceiptUpload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ReceiptFile is a stored receipt ready to be served
type ReceiptFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// PendingExpense is an expense awaiting the approver, with its amount in the approver's currency
type PendingExpense struct {
	*entity.Expense
	SubmitterName   string          `json:"submitter_name,omitempty"`
	ConvertedAmount decimal.Decimal `json:"converted_amount"`
	TargetCurrency  string          `json:"target_currency"`
}

// Report is a rendered export
type Report struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ExpenseService submits expenses and drives their approval
type ExpenseService interface {
	Submit(ctx context.Context, employee *entity.User, in SubmitInput) (*entity.Expense, error)
	Act(ctx context.Context, expenseID string, actor *entity.User, action entity.Action, comments string) (*entity.Expense, error)
	ListMine(ctx context.Context, actor *entity.User) ([]*entity.Expense, error)
	Get(ctx context.Context, expenseID string, actor *entity.User) (*entity.Expense, error)
	History(ctx context.Context, expenseID string, actor *entity.User) ([]*entity.ActionHistory, error)
	Receipt(ctx context.Context, expenseID string, actor *entity.User) (*ReceiptFile, error)
	ListPending(ctx context.Context, approver *entity.User) ([]*PendingExpense, error)
	Export(ctx context.Context, actor *entity.User) (*Report, error)
}

// ExpenseDeps groups the collaborators of the expense service
type ExpenseDeps struct {
	Expenses  port.ExpenseRepository
	Rules     port.RuleRepository
	Users     port.UserDirectory
	History   port.HistoryRepository
	TxManager port.TransactionManager
	Receipts  port.ReceiptStore
	Converter port.CurrencyConverter
	Reports   port.ReportWriter
	Publisher Publisher
	Metrics   Metrics
	Logger    Logger
}

// ExpenseOption configures the expense service
type ExpenseOption func(*expenseServiceImpl)

// WithMaxReceiptBytes sets the receipt upload limit
func WithMaxReceiptBytes(n int64) ExpenseOption {
	return func(s *expenseServiceImpl) {
		if n > 0 {
			s.maxReceiptBytes = n
		}
	}
}

// WithEvaluator replaces the approval evaluator, mainly to pin its clock in tests
func WithEvaluator(ev *workflow.Evaluator) ExpenseOption {
	return func(s *expenseServiceImpl) {
		s.evaluator = ev
	}
}

type expenseServiceImpl struct {
	deps            ExpenseDeps
	evaluator       *workflow.Evaluator
	maxReceiptBytes int64
	now             func() time.Time
}

// NewExpenseService creates a new ExpenseService
func NewExpenseService(deps ExpenseDeps, opts ...ExpenseOption) ExpenseService {
	s := &expenseServiceImpl{
		deps:            deps,
		evaluator:       workflow.NewEvaluator(),
		maxReceiptBytes: DefaultMaxReceiptBytes,
		now:             time.Now,
	}
	if s.deps.Publisher == nil {
		s.deps.Publisher = nopPublisher{}
	}
	if s.deps.Metrics == nil {
		s.deps.Metrics = NopMetrics()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the claim, selects the governing rule and materializes the approval flow
func (s *expenseServiceImpl) Submit(ctx context.Context, employee *entity.User, in SubmitInput) (*entity.Expense, error) {
	exp, err := s.newExpense(employee, in)
	if err != nil {
		s.deps.Metrics.ObserveSubmission(OutcomeInvalid)
		return nil, err
	}

	rules, err := s.deps.Rules.ListActive(ctx, employee.CompanyID, exp.Amount)
	if err != nil {
		s.deps.Metrics.ObserveSubmission(OutcomeError)
		s.logger().Error("Failed to load rules", "error", err, "company_id", employee.CompanyID)
		return nil, fmt.Errorf("load rules: %w", err)
	}

	rule := workflow.SelectRule(rules, employee.CompanyID, exp.Amount)
	exp.ApprovalFlow, exp.CurrentApprovalStep = workflow.BuildFlow(rule, employee)
	if rule != nil {
		exp.AppliedRule = rule.Snapshot()
	}

	if in.Receipt != nil {
		key, err := s.deps.Receipts.Save(ctx, exp.ID, in.Receipt.Filename, in.Receipt.Content)
		if err != nil {
			s.deps.Metrics.ObserveSubmission(OutcomeError)
			return nil, fmt.Errorf("store receipt: %w", err)
		}
		exp.Receipt = &entity.ReceiptRef{Key: key, ContentType: in.Receipt.ContentType}
	}

	if err := s.deps.Expenses.Create(ctx, exp); err != nil {
		if exp.Receipt != nil {
			if delErr := s.deps.Receipts.Delete(ctx, exp.Receipt.Key); delErr != nil {
				s.logger().Warn("Failed to remove orphaned receipt", "error", delErr, "key", exp.Receipt.Key)
			}
		}
		s.deps.Metrics.ObserveSubmission(OutcomeError)
		s.logger().Error("Failed to create expense", "error", err, "employee_id", employee.ID)
		return nil, fmt.Errorf("create expense: %w", err)
	}

	s.deps.Metrics.ObserveSubmission(OutcomeOK)
	s.logger().Info("Expense submitted",
		"expense_id", exp.ID,
		"employee_id", employee.ID,
		"rule_id", ruleID(exp.AppliedRule),
		"steps", len(exp.ApprovalFlow),
	)

	s.deps.Publisher.DispatchAsync(ctx, event.NewEvent(event.TypeExpenseSubmitted, exp.ID, exp.CompanyID, s.payload(exp, employee.ID, "")))
	return exp, nil
}

func (s *expenseServiceImpl) newExpense(employee *entity.User, in SubmitInput) (*entity.Expense, error) {
	if err := utils.ValidateAmount(in.Amount); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	currency, err := utils.NormalizeCurrency(in.Currency)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	if !entity.IsValidCategory(in.Category) {
		return nil, apperr.Validation("unknown category %q", in.Category)
	}
	description := utils.SanitizeString(in.Description)
	if description == "" {
		return nil, apperr.Validation("description is required")
	}
	if in.Date.IsZero() {
		return nil, apperr.Validation("date is required")
	}
	if err := s.checkReceipt(in.Receipt); err != nil {
		return nil, err
	}

	now := s.now()
	return &entity.Expense{
		ID:          uuid.NewString(),
		EmployeeID:  employee.ID,
		CompanyID:   employee.CompanyID,
		Amount:      in.Amount,
		Currency:    currency,
		Category:    in.Category,
		Description: description,
		Date:        in.Date,
		Status:      entity.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *expenseServiceImpl) checkReceipt(r *ReceiptUpload) error {
	if r == nil {
		return nil
	}
	if len(r.Content) == 0 {
		return apperr.Validation("receipt is empty")
	}
	if int64(len(r.Content)) > s.maxReceiptBytes {
		return apperr.Validation("receipt exceeds %d bytes", s.maxReceiptBytes)
	}
	if !strings.HasPrefix(r.ContentType, "image/") && r.ContentType != "application/pdf" {
		return apperr.Validation("receipt must be an image or a PDF, got %q", r.ContentType)
	}
	return nil
}

// Act records an approve or reject decision. The read-modify-write runs in one transaction
// and the save is conditional on the version read, so a concurrent action on the same
// expense surfaces as a conflict instead of being applied twice.
func (s *expenseServiceImpl) Act(ctx context.Context, expenseID string, actor *entity.User, action entity.Action, comments string) (*entity.Expense, error) {
	var result *workflow.Result
	note := utils.SanitizeString(comments)

	err := s.deps.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		exp, err := s.deps.Expenses.GetByID(txCtx, expenseID)
		if err != nil {
			return err
		}

		res, err := s.evaluator.RecordAction(txCtx, exp, exp.AppliedRule, actor.ID, action, note)
		if err != nil {
			return err
		}

		if err := s.deps.Expenses.Update(txCtx, res.Expense); err != nil {
			return err
		}

		history := &entity.ActionHistory{
			ID:             uuid.NewString(),
			ExpenseID:      exp.ID,
			ActorID:        actor.ID,
			Action:         action,
			Sequence:       res.Sequence,
			PreviousStatus: res.PreviousStatus,
			NewStatus:      res.Expense.Status,
			Comments:       note,
			Timestamp:      res.Expense.UpdatedAt,
		}
		if err := s.deps.History.Create(txCtx, history); err != nil {
			return fmt.Errorf("record history: %w", err)
		}

		result = res
		return nil
	})

	if err != nil {
		s.deps.Metrics.ObserveAction(string(action), outcomeOf(err))
		switch apperr.KindOf(err) {
		case apperr.KindConflict:
			s.logger().Warn("Concurrent action lost the race", "expense_id", expenseID, "actor_id", actor.ID)
		case apperr.KindAuthorization, apperr.KindValidation, apperr.KindNotFound:
			s.logger().Info("Action refused", "expense_id", expenseID, "actor_id", actor.ID, "reason", apperr.Reason(err))
		default:
			s.logger().Error("Failed to record action", "error", err, "expense_id", expenseID, "actor_id", actor.ID)
		}
		return nil, err
	}

	exp := result.Expense
	s.deps.Metrics.ObserveAction(string(action), OutcomeOK)
	s.logger().Info("Action recorded",
		"expense_id", exp.ID,
		"actor_id", actor.ID,
		"action", action,
		"trigger", result.Trigger,
		"status", exp.Status,
		"current_step", exp.CurrentApprovalStep,
	)

	if evtType, ok := eventFor(result.Trigger); ok {
		s.deps.Publisher.DispatchAsync(ctx, event.NewEvent(evtType, exp.ID, exp.CompanyID, s.payload(exp, actor.ID, note)))
	}
	return exp, nil
}

func (s *expenseServiceImpl) ListMine(ctx context.Context, actor *entity.User) ([]*entity.Expense, error) {
	return s.deps.Expenses.ListByEmployee(ctx, actor.ID)
}

func (s *expenseServiceImpl) Get(ctx context.Context, expenseID string, actor *entity.User) (*entity.Expense, error) {
	exp, err := s.deps.Expenses.GetByID(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if !workflow.CanView(actor, exp) {
		return nil, apperr.Unauthorized("not allowed to view this expense")
	}
	return exp, nil
}

func (s *expenseServiceImpl) History(ctx context.Context, expenseID string, actor *entity.User) ([]*entity.ActionHistory, error) {
	if _, err := s.Get(ctx, expenseID, actor); err != nil {
		return nil, err
	}
	return s.deps.History.ListByExpense(ctx, expenseID)
}

func (s *expenseServiceImpl) Receipt(ctx context.Context, expenseID string, actor *entity.User) (*ReceiptFile, error) {
	exp, err := s.deps.Expenses.GetByID(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if !workflow.CanViewReceipt(actor, exp) {
		return nil, apperr.Unauthorized("not allowed to view this receipt")
	}
	if exp.Receipt == nil {
		return nil, apperr.NotFound("receipt for expense", expenseID)
	}

	content, err := s.deps.Receipts.Read(ctx, exp.Receipt.Key)
	if err != nil {
		return nil, err
	}
	return &ReceiptFile{
		Filename:    filepath.Base(exp.Receipt.Key),
		ContentType: exp.Receipt.ContentType,
		Content:     content,
	}, nil
}

// ListPending returns expenses waiting on approver at their current step. Amounts are
// converted to the approver's currency on a best-effort basis.
func (s *expenseServiceImpl) ListPending(ctx context.Context, approver *entity.User) ([]*PendingExpense, error) {
	expenses, err := s.deps.Expenses.ListPendingForApprover(ctx, approver.ID)
	if err != nil {
		s.logger().Error("Failed to list pending expenses", "error", err, "approver_id", approver.ID)
		return nil, err
	}

	names := make(map[string]string)
	out := make([]*PendingExpense, 0, len(expenses))
	for _, exp := range expenses {
		if !workflow.CanAct(exp, approver.ID) {
			continue
		}
		target := approver.Currency
		if target == "" {
			target = exp.Currency
		}
		out = append(out, &PendingExpense{
			Expense:         exp,
			SubmitterName:   s.submitterName(ctx, names, exp.EmployeeID),
			ConvertedAmount: s.convert(ctx, exp.Amount, exp.Currency, target),
			TargetCurrency:  target,
		})
	}
	return out, nil
}

func (s *expenseServiceImpl) convert(ctx context.Context, amount decimal.Decimal, from, to string) decimal.Decimal {
	if from == to || s.deps.Converter == nil {
		return amount
	}
	converted, err := s.deps.Converter.Convert(ctx, amount, from, to)
	if err != nil {
		s.deps.Metrics.ObserveConversion(OutcomeFallback)
		s.logger().Warn("Currency conversion failed, using original amount",
			"error", err, "from", from, "to", to)
		return amount
	}
	s.deps.Metrics.ObserveConversion(OutcomeOK)
	return converted
}

func (s *expenseServiceImpl) submitterName(ctx context.Context, cache map[string]string, id string) string {
	if name, ok := cache[id]; ok {
		return name
	}
	name := ""
	if user, err := s.deps.Users.GetByID(ctx, id); err == nil {
		name = user.Name
	}
	cache[id] = name
	return name
}

func (s *expenseServiceImpl) Export(ctx context.Context, actor *entity.User) (*Report, error) {
	expenses, err := s.deps.Expenses.ListByEmployee(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	content, err := s.deps.Reports.WriteExpenses(ctx, actor, expenses)
	if err != nil {
		s.logger().Error("Failed to render export", "error", err, "employee_id", actor.ID)
		return nil, fmt.Errorf("render export: %w", err)
	}
	return &Report{
		Filename:    fmt.Sprintf("expenses-%s.%s", s.now().Format("20060102"), s.deps.Reports.Extension()),
		ContentType: s.deps.Reports.ContentType(),
		Content:     content,
	}, nil
}

func (s *expenseServiceImpl) payload(exp *entity.Expense, actorID, comments string) map[string]interface{} {
	p := map[string]interface{}{
		event.KeyActorID:     actorID,
		event.KeyEmployeeID:  exp.EmployeeID,
		event.KeyApprovers:   exp.ActiveApprovers(),
		event.KeySequence:    exp.CurrentApprovalStep,
		event.KeyAmount:      exp.Amount.String(),
		event.KeyCurrency:    exp.Currency,
		event.KeyDescription: exp.Description,
	}
	if comments != "" {
		p[event.KeyComments] = comments
	}
	return p
}

// logger tolerates a nil Logger so tests can omit it
func (s *expenseServiceImpl) logger() Logger {
	if s.deps.Logger == nil {
		return nopLogger{}
	}
	return s.deps.Logger
}

func eventFor(trigger workflow.Trigger) (event.Type, bool) {
	switch trigger {
	case workflow.TriggerAdvance:
		return event.TypeExpenseAdvanced, true
	case workflow.TriggerApprove:
		return event.TypeExpenseApproved, true
	case workflow.TriggerReject:
		return event.TypeExpenseRejected, true
	}
	return "", false
}

func outcomeOf(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindConflict:
		return OutcomeConflict
	case apperr.KindAuthorization:
		return OutcomeDenied
	case apperr.KindValidation, apperr.KindNotFound:
		return OutcomeInvalid
	}
	return OutcomeError
}

func ruleID(snap *entity.RuleSnapshot) string {
	if snap == nil {
		return ""
	}
	return snap.RuleID
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
