// Package sqlite carries the transaction scope shared by the sqlite repositories.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
)

type scopeKey struct{}

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB is the TransactionManager of the sqlite backend.
// The open transaction travels in the context handed to repositories.
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB wraps an open database
func NewDB(sqlDB *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: sqlDB, logger: logger}
}

// WithTransaction runs fn in a transaction; a call made inside fn joins it.
// Losing a write lock to a concurrent transaction surfaces as a conflict.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return Contention(fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		p := recover()
		if p == nil && err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		if p != nil {
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, scopeKey{}, tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return Contention(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// Executor returns the transaction carried by ctx, or the database itself
func (db *DB) Executor(ctx context.Context) Executor {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return db.DB
}

func txFrom(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(scopeKey{}).(*sql.Tx)
	return tx
}

// IsBusy reports whether err is sqlite refusing a lock held by another connection
func IsBusy(err error) bool {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	return sqlErr.Code == sqlite3.ErrBusy || sqlErr.Code == sqlite3.ErrLocked
}

// Contention turns a lock refusal into a conflict the caller can retry; other errors pass through
func Contention(err error) error {
	if !IsBusy(err) {
		return err
	}
	return &apperr.Error{
		Kind:   apperr.KindConflict,
		Reason: "record was modified concurrently, reload and retry",
		Err:    err,
	}
}

var _ port.TransactionManager = (*DB)(nil)
