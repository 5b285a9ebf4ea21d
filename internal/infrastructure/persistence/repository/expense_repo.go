package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const expenseColumns = `
	e.id, e.employee_id, e.company_id, e.amount, e.currency, e.category, e.description,
	e.expense_date, e.receipt_key, e.receipt_content_type, e.status, e.current_approval_step,
	e.applied_rule, e.version, e.created_at, e.updated_at
`

// ExpenseRepository implements port.ExpenseRepository
type ExpenseRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *sqlite.DB, logger *zap.Logger) *ExpenseRepository {
	return &ExpenseRepository{db: db, logger: logger}
}

// Create stores a new expense together with its approval flow.
// The stored version starts at 1.
func (r *ExpenseRepository) Create(ctx context.Context, exp *entity.Expense) error {
	rule, err := encodeSnapshot(exp.AppliedRule)
	if err != nil {
		return err
	}
	key, contentType := receiptColumns(exp.Receipt)

	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		query := `
			INSERT INTO expenses (
				id, employee_id, company_id, amount, currency, category, description,
				expense_date, receipt_key, receipt_content_type, status, current_approval_step,
				applied_rule, version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		`
		_, err := r.db.Executor(txCtx).ExecContext(txCtx, query,
			exp.ID,
			exp.EmployeeID,
			exp.CompanyID,
			exp.Amount,
			exp.Currency,
			exp.Category,
			exp.Description,
			exp.Date,
			key,
			contentType,
			exp.Status,
			exp.CurrentApprovalStep,
			rule,
			exp.CreatedAt,
			exp.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create expense", zap.String("id", exp.ID), zap.Error(err))
			return fmt.Errorf("failed to create expense: %w", err)
		}

		for i, step := range exp.ApprovalFlow {
			_, err := r.db.Executor(txCtx).ExecContext(txCtx, `
				INSERT INTO approval_steps (expense_id, position, approver_id, sequence, status, comments, action_date)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, exp.ID, i, step.Approver, step.Sequence, step.Status, step.Comments, nullTime(step.ActionDate))
			if err != nil {
				return fmt.Errorf("failed to create approval step: %w", err)
			}
		}

		exp.Version = 1
		return nil
	})
}

// GetByID retrieves an expense with its approval flow
func (r *ExpenseRepository) GetByID(ctx context.Context, id string) (*entity.Expense, error) {
	expenses, err := r.query(ctx, `SELECT `+expenseColumns+` FROM expenses e WHERE e.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(expenses) == 0 {
		return nil, apperr.NotFound("expense", id)
	}
	return expenses[0], nil
}

// ListByEmployee returns the employee's expenses, newest first
func (r *ExpenseRepository) ListByEmployee(ctx context.Context, employeeID string) ([]*entity.Expense, error) {
	return r.query(ctx, `
		SELECT `+expenseColumns+` FROM expenses e
		WHERE e.employee_id = ?
		ORDER BY e.created_at DESC, e.id
	`, employeeID)
}

// ListPendingForApprover returns pending expenses waiting on approverID at the current step
func (r *ExpenseRepository) ListPendingForApprover(ctx context.Context, approverID string) ([]*entity.Expense, error) {
	return r.query(ctx, `
		SELECT DISTINCT `+expenseColumns+` FROM expenses e
		JOIN approval_steps s ON s.expense_id = e.id
		WHERE s.approver_id = ?
			AND s.status = ?
			AND s.sequence = e.current_approval_step
			AND e.status = ?
		ORDER BY e.created_at ASC, e.id
	`, approverID, entity.StatusPending, entity.StatusPending)
}

// Update stores exp when the stored version still equals exp.Version
func (r *ExpenseRepository) Update(ctx context.Context, exp *entity.Expense) error {
	rule, err := encodeSnapshot(exp.AppliedRule)
	if err != nil {
		return err
	}
	key, contentType := receiptColumns(exp.Receipt)

	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		res, err := r.db.Executor(txCtx).ExecContext(txCtx, `
			UPDATE expenses SET
				status = ?, current_approval_step = ?, applied_rule = ?,
				receipt_key = ?, receipt_content_type = ?,
				version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?
		`,
			exp.Status,
			exp.CurrentApprovalStep,
			rule,
			key,
			contentType,
			exp.UpdatedAt,
			exp.ID,
			exp.Version,
		)
		if sqlite.IsBusy(err) {
			r.logger.Warn("Expense locked by a concurrent writer", zap.String("id", exp.ID), zap.Int64("version", exp.Version))
			return sqlite.Contention(fmt.Errorf("failed to update expense %s: %w", exp.ID, err))
		}
		if err != nil {
			r.logger.Error("Failed to update expense", zap.String("id", exp.ID), zap.Error(err))
			return fmt.Errorf("failed to update expense: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return r.missOrConflict(txCtx, exp)
		}

		for i, step := range exp.ApprovalFlow {
			_, err := r.db.Executor(txCtx).ExecContext(txCtx, `
				UPDATE approval_steps SET status = ?, comments = ?, action_date = ?
				WHERE expense_id = ? AND position = ?
			`, step.Status, step.Comments, nullTime(step.ActionDate), exp.ID, i)
			if err != nil {
				return fmt.Errorf("failed to update approval step: %w", err)
			}
		}

		exp.Version++
		return nil
	})
}

func (r *ExpenseRepository) missOrConflict(ctx context.Context, exp *entity.Expense) error {
	var stored int64
	err := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT version FROM expenses WHERE id = ?`, exp.ID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("expense", exp.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to read expense version: %w", err)
	}

	r.logger.Warn("Stale expense update",
		zap.String("id", exp.ID),
		zap.Int64("version", exp.Version),
		zap.Int64("stored_version", stored),
	)
	return apperr.Conflict(fmt.Sprintf("expense %s was modified concurrently", exp.ID))
}

func (r *ExpenseRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Expense, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query expenses", zap.Error(err))
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]*entity.Expense, 0)
	for rows.Next() {
		exp, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}
	rows.Close()

	if err := r.loadFlows(ctx, expenses); err != nil {
		return nil, err
	}
	return expenses, nil
}

// loadFlows fills ApprovalFlow for every expense with one query
func (r *ExpenseRepository) loadFlows(ctx context.Context, expenses []*entity.Expense) error {
	if len(expenses) == 0 {
		return nil
	}

	byID := make(map[string]*entity.Expense, len(expenses))
	args := make([]interface{}, 0, len(expenses))
	for _, exp := range expenses {
		exp.ApprovalFlow = make([]entity.ApprovalStep, 0)
		byID[exp.ID] = exp
		args = append(args, exp.ID)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT expense_id, approver_id, sequence, status, comments, action_date
		FROM approval_steps
		WHERE expense_id IN (`+placeholders+`)
		ORDER BY expense_id, position
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to query approval steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var expenseID string
		var step entity.ApprovalStep
		var actionDate sql.NullTime
		if err := rows.Scan(&expenseID, &step.Approver, &step.Sequence, &step.Status, &step.Comments, &actionDate); err != nil {
			return fmt.Errorf("failed to scan approval step: %w", err)
		}
		if actionDate.Valid {
			t := actionDate.Time
			step.ActionDate = &t
		}
		exp := byID[expenseID]
		exp.ApprovalFlow = append(exp.ApprovalFlow, step)
	}
	return rows.Err()
}

func scanExpense(rows *sql.Rows) (*entity.Expense, error) {
	var exp entity.Expense
	var receiptKey, receiptType string
	var rule sql.NullString

	err := rows.Scan(
		&exp.ID,
		&exp.EmployeeID,
		&exp.CompanyID,
		&exp.Amount,
		&exp.Currency,
		&exp.Category,
		&exp.Description,
		&exp.Date,
		&receiptKey,
		&receiptType,
		&exp.Status,
		&exp.CurrentApprovalStep,
		&rule,
		&exp.Version,
		&exp.CreatedAt,
		&exp.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan expense: %w", err)
	}

	if receiptKey != "" {
		exp.Receipt = &entity.ReceiptRef{Key: receiptKey, ContentType: receiptType}
	}
	if rule.Valid && rule.String != "" {
		var snap entity.RuleSnapshot
		if err := json.Unmarshal([]byte(rule.String), &snap); err != nil {
			return nil, fmt.Errorf("expense %s has an unreadable rule snapshot: %w", exp.ID, err)
		}
		exp.AppliedRule = &snap
	}
	return &exp, nil
}

func encodeSnapshot(s *entity.RuleSnapshot) (sql.NullString, error) {
	if s == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode rule snapshot: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func receiptColumns(r *entity.ReceiptRef) (string, string) {
	if r == nil {
		return "", ""
	}
	return r.Key, r.ContentType
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ port.ExpenseRepository = (*ExpenseRepository)(nil)
