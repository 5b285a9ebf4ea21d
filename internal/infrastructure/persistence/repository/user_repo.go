package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// UserRepository implements port.UserDirectory
type UserRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlite.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	query := `
		SELECT id, company_id, name, email, role, manager_id, currency, lark_open_id
		FROM users
		WHERE id = ?
	`

	var u entity.User
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, id).Scan(
		&u.ID,
		&u.CompanyID,
		&u.Name,
		&u.Email,
		&u.Role,
		&u.ManagerID,
		&u.Currency,
		&u.LarkOpenID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user", id)
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// Save inserts the user or replaces the stored copy
func (r *UserRepository) Save(ctx context.Context, u *entity.User) error {
	query := `
		INSERT INTO users (id, company_id, name, email, role, manager_id, currency, lark_open_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_id = excluded.company_id,
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			manager_id = excluded.manager_id,
			currency = excluded.currency,
			lark_open_id = excluded.lark_open_id
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		u.ID,
		u.CompanyID,
		u.Name,
		u.Email,
		u.Role,
		u.ManagerID,
		u.Currency,
		u.LarkOpenID,
	)
	if err != nil {
		r.logger.Error("Failed to save user", zap.String("id", u.ID), zap.Error(err))
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

var _ port.UserDirectory = (*UserRepository)(nil)
