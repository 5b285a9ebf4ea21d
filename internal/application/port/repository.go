package port

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// RuleRepository defines persistence operations for ApprovalRule
type RuleRepository interface {
	Create(ctx context.Context, rule *entity.ApprovalRule) error
	GetByID(ctx context.Context, companyID, id string) (*entity.ApprovalRule, error)

	// ListByCompany returns every rule of the company ordered by ascending threshold
	ListByCompany(ctx context.Context, companyID string) ([]*entity.ApprovalRule, error)

	// ListActive returns the active rules of the company whose threshold is at most maxThreshold
	ListActive(ctx context.Context, companyID string, maxThreshold decimal.Decimal) ([]*entity.ApprovalRule, error)

	Update(ctx context.Context, rule *entity.ApprovalRule) error
	Delete(ctx context.Context, companyID, id string) error
}

// ExpenseRepository defines persistence operations for Expense
type ExpenseRepository interface {
	Create(ctx context.Context, exp *entity.Expense) error
	GetByID(ctx context.Context, id string) (*entity.Expense, error)

	// ListByEmployee returns the employee's expenses, newest first
	ListByEmployee(ctx context.Context, employeeID string) ([]*entity.Expense, error)

	// ListPendingForApprover returns pending expenses where approverID has a pending
	// step whose sequence equals the expense's current step
	ListPendingForApprover(ctx context.Context, approverID string) ([]*entity.Expense, error)

	// Update stores exp if the stored version still equals exp.Version, then bumps
	// exp.Version. A stale version fails with an apperr conflict.
	Update(ctx context.Context, exp *entity.Expense) error
}

// UserDirectory resolves users by id
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
	Save(ctx context.Context, user *entity.User) error
}

// HistoryRepository records every approval action
type HistoryRepository interface {
	Create(ctx context.Context, h *entity.ActionHistory) error
	ListByExpense(ctx context.Context, expenseID string) ([]*entity.ActionHistory, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
