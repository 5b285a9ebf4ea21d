// Package mongodb is the MongoDB backend for the approval repositories.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Collection names
const (
	CollectionUsers    = "users"
	CollectionRules    = "approval_rules"
	CollectionExpenses = "expenses"
	CollectionHistory  = "action_history"
)

// Config holds MongoDB connection settings
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	// Transactions requires a replica set; without it each write stands alone
	Transactions bool
}

// Store owns the client and database handle shared by the repositories
type Store struct {
	client       *mongo.Client
	db           *mongo.Database
	transactions bool
	logger       *zap.Logger
}

// Connect opens a client, pings the server and returns a Store
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info("Connected to MongoDB", zap.String("database", cfg.Database))

	return &Store{
		client:       client,
		db:           client.Database(cfg.Database),
		transactions: cfg.Transactions,
		logger:       logger,
	}, nil
}

// Collection returns a collection handle by name
func (s *Store) Collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// EnsureIndexes creates the indexes the repositories query by
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		CollectionUsers: {
			{Keys: bson.D{{Key: "company_id", Value: 1}}},
		},
		CollectionRules: {
			{Keys: bson.D{{Key: "company_id", Value: 1}, {Key: "is_active", Value: 1}, {Key: "amount_threshold", Value: 1}}},
		},
		CollectionExpenses: {
			{Keys: bson.D{{Key: "employee_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "approval_flow.approver", Value: 1}, {Key: "status", Value: 1}}},
		},
		CollectionHistory: {
			{Keys: bson.D{{Key: "expense_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		},
	}

	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}

// WithTransaction runs fn inside a session transaction when transactions are enabled.
// Repositories pick the session up from the context they are handed.
// fn runs at most once: a transaction aborted by a concurrent writer
// comes back as a conflict instead of being replayed.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions {
		return fn(ctx)
	}
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	return mongo.WithSession(ctx, session, func(sc mongo.SessionContext) error {
		if err := session.StartTransaction(); err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if err := fn(sc); err != nil {
			if abortErr := session.AbortTransaction(context.WithoutCancel(sc)); abortErr != nil {
				s.logger.Warn("Failed to abort transaction", zap.Error(abortErr))
			}
			return contention(err)
		}

		if err := session.CommitTransaction(sc); err != nil {
			s.logger.Error("Failed to commit transaction", zap.Error(err))
			return contention(fmt.Errorf("failed to commit transaction: %w", err))
		}
		return nil
	})
}

// Server signals of a transaction lost to a concurrent writer
const (
	transientTransactionLabel = "TransientTransactionError"
	writeConflictCode         = 112
)

// contention turns a transaction aborted by a concurrent writer into a conflict
func contention(err error) error {
	var serverErr mongo.ServerError
	if !errors.As(err, &serverErr) {
		return err
	}
	if !serverErr.HasErrorLabel(transientTransactionLabel) && !serverErr.HasErrorCode(writeConflictCode) {
		return err
	}
	return &apperr.Error{
		Kind:   apperr.KindConflict,
		Reason: "record was modified concurrently, reload and retry",
		Err:    err,
	}
}

// Ping checks that the server is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	s.logger.Info("Disconnecting from MongoDB")
	return s.client.Disconnect(ctx)
}

var _ port.TransactionManager = (*Store)(nil)
