package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ExpenseRepository implements port.ExpenseRepository on MongoDB.
// The approval flow is embedded in the expense document, so every update is a
// single-document write guarded by the version field.
type ExpenseRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(store *Store, logger *zap.Logger) *ExpenseRepository {
	return &ExpenseRepository{collection: store.Collection(CollectionExpenses), logger: logger}
}

// Create stores a new expense at version 1
func (r *ExpenseRepository) Create(ctx context.Context, exp *entity.Expense) error {
	doc, err := toExpenseDocument(exp)
	if err != nil {
		return err
	}
	doc.Version = 1

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Conflict(fmt.Sprintf("expense %s already exists", exp.ID))
		}
		r.logger.Error("Failed to create expense", zap.String("id", exp.ID), zap.Error(err))
		return fmt.Errorf("failed to create expense: %w", err)
	}
	exp.Version = 1
	return nil
}

// GetByID retrieves an expense by ID
func (r *ExpenseRepository) GetByID(ctx context.Context, id string) (*entity.Expense, error) {
	var doc expenseDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("expense", id)
	}
	if err != nil {
		r.logger.Error("Failed to get expense", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return doc.entity()
}

// ListByEmployee returns the employee's expenses, newest first
func (r *ExpenseRepository) ListByEmployee(ctx context.Context, employeeID string) ([]*entity.Expense, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	return r.find(ctx, bson.M{"employee_id": employeeID}, opts)
}

// ListPendingForApprover returns pending expenses waiting on approverID at the current step
func (r *ExpenseRepository) ListPendingForApprover(ctx context.Context, approverID string) ([]*entity.Expense, error) {
	filter := bson.M{
		"status": string(entity.StatusPending),
		"approval_flow": bson.M{"$elemMatch": bson.M{
			"approver": approverID,
			"status":   string(entity.StatusPending),
		}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	candidates, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	// $elemMatch cannot compare a step's sequence with a sibling field
	pending := make([]*entity.Expense, 0, len(candidates))
	for _, exp := range candidates {
		for _, step := range exp.ApprovalFlow {
			if step.Approver == approverID && step.Status == entity.StatusPending && step.Sequence == exp.CurrentApprovalStep {
				pending = append(pending, exp)
				break
			}
		}
	}
	return pending, nil
}

// Update stores exp when the stored version still equals exp.Version
func (r *ExpenseRepository) Update(ctx context.Context, exp *entity.Expense) error {
	doc, err := toExpenseDocument(exp)
	if err != nil {
		return err
	}

	update := bson.M{
		"$set": bson.M{
			"status":                doc.Status,
			"approval_flow":         doc.ApprovalFlow,
			"current_approval_step": doc.CurrentApprovalStep,
			"applied_rule":          doc.AppliedRule,
			"receipt":               doc.Receipt,
			"updated_at":            doc.UpdatedAt,
		},
		"$inc": bson.M{"version": 1},
	}

	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": exp.ID, "version": exp.Version}, update)
	if err != nil {
		r.logger.Error("Failed to update expense", zap.String("id", exp.ID), zap.Error(err))
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := r.collection.CountDocuments(ctx, bson.M{"_id": exp.ID})
		if err != nil {
			return fmt.Errorf("failed to check expense: %w", err)
		}
		if n == 0 {
			return apperr.NotFound("expense", exp.ID)
		}
		r.logger.Warn("Stale expense update", zap.String("id", exp.ID), zap.Int64("version", exp.Version))
		return apperr.Conflict(fmt.Sprintf("expense %s was modified concurrently", exp.ID))
	}

	exp.Version++
	return nil
}

func (r *ExpenseRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*entity.Expense, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to query expenses", zap.Error(err))
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}

	var docs []expenseDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode expenses: %w", err)
	}

	expenses := make([]*entity.Expense, 0, len(docs))
	for _, doc := range docs {
		exp, err := doc.entity()
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, exp)
	}
	return expenses, nil
}

var _ port.ExpenseRepository = (*ExpenseRepository)(nil)
