package repository

import (
	"context"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/migrations"
	"github.com/garyjia/expense-approval/pkg/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	raw, err := database.New(database.Config{Path: database.MemoryPath}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	require.NoError(t, database.NewMigrator(raw, zap.NewNop()).RunMigrations(migrations.FS()))
	return sqlite.NewDB(raw.DB, zap.NewNop())
}

func seedUsers(t *testing.T, db *sqlite.DB, users ...*entity.User) {
	t.Helper()
	repo := NewUserRepository(db, zap.NewNop())
	for _, u := range users {
		require.NoError(t, repo.Save(context.Background(), u))
	}
}

func pct(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func mustPolicy(t *testing.T, typ entity.ApprovalType, required *decimal.Decimal, specific string) entity.Policy {
	t.Helper()
	p, err := entity.NewPolicy(typ, required, specific)
	require.NoError(t, err)
	return p
}
