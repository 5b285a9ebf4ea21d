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

// UserRepository implements port.UserDirectory on MongoDB
type UserRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(store *Store, logger *zap.Logger) *UserRepository {
	return &UserRepository{collection: store.Collection(CollectionUsers), logger: logger}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	var doc userDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("user", id)
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return doc.entity(), nil
}

// Save upserts the user
func (r *UserRepository) Save(ctx context.Context, u *entity.User) error {
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": u.ID}, toUserDocument(u), options.Replace().SetUpsert(true))
	if err != nil {
		r.logger.Error("Failed to save user", zap.String("id", u.ID), zap.Error(err))
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

var _ port.UserDirectory = (*UserRepository)(nil)
