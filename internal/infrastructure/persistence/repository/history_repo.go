package repository

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqlite.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, h *entity.ActionHistory) error {
	query := `
		INSERT INTO action_history (
			id, expense_id, actor_id, action, sequence,
			previous_status, new_status, comments, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		h.ID,
		h.ExpenseID,
		h.ActorID,
		h.Action,
		h.Sequence,
		h.PreviousStatus,
		h.NewStatus,
		h.Comments,
		h.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.String("expense_id", h.ExpenseID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}
	return nil
}

// ListByExpense retrieves all history records for an expense, oldest first
func (r *HistoryRepository) ListByExpense(ctx context.Context, expenseID string) ([]*entity.ActionHistory, error) {
	query := `
		SELECT id, expense_id, actor_id, action, sequence,
			previous_status, new_status, comments, created_at
		FROM action_history
		WHERE expense_id = ?
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, expenseID)
	if err != nil {
		r.logger.Error("Failed to get history by expense", zap.String("expense_id", expenseID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	records := make([]*entity.ActionHistory, 0)
	for rows.Next() {
		var h entity.ActionHistory
		err := rows.Scan(
			&h.ID,
			&h.ExpenseID,
			&h.ActorID,
			&h.Action,
			&h.Sequence,
			&h.PreviousStatus,
			&h.NewStatus,
			&h.Comments,
			&h.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		records = append(records, &h)
	}
	return records, rows.Err()
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)
