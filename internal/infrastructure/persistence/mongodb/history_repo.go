package mongodb

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository on MongoDB
type HistoryRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(store *Store, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{collection: store.Collection(CollectionHistory), logger: logger}
}

// Create records an approval action
func (r *HistoryRepository) Create(ctx context.Context, h *entity.ActionHistory) error {
	if _, err := r.collection.InsertOne(ctx, toHistoryDocument(h)); err != nil {
		r.logger.Error("Failed to create history record", zap.String("expense_id", h.ExpenseID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}
	return nil
}

// ListByExpense returns the expense's actions, oldest first
func (r *HistoryRepository) ListByExpense(ctx context.Context, expenseID string) ([]*entity.ActionHistory, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"expense_id": expenseID}, opts)
	if err != nil {
		r.logger.Error("Failed to get history by expense", zap.String("expense_id", expenseID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	var docs []historyDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}

	records := make([]*entity.ActionHistory, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc.entity())
	}
	return records, nil
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)
