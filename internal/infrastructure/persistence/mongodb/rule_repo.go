package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var thresholdOrder = bson.D{{Key: "amount_threshold", Value: 1}, {Key: "created_at", Value: 1}}

// RuleRepository implements port.RuleRepository on MongoDB
type RuleRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(store *Store, logger *zap.Logger) *RuleRepository {
	return &RuleRepository{collection: store.Collection(CollectionRules), logger: logger}
}

// Create stores a new rule
func (r *RuleRepository) Create(ctx context.Context, rule *entity.ApprovalRule) error {
	doc, err := toRuleDocument(rule)
	if err != nil {
		return err
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Conflict(fmt.Sprintf("rule %s already exists", rule.ID))
		}
		r.logger.Error("Failed to create rule", zap.String("id", rule.ID), zap.Error(err))
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// GetByID retrieves a rule of the company by ID
func (r *RuleRepository) GetByID(ctx context.Context, companyID, id string) (*entity.ApprovalRule, error) {
	var doc ruleDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id, "company_id": companyID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("rule", id)
	}
	if err != nil {
		r.logger.Error("Failed to get rule", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return doc.entity()
}

// ListByCompany returns every rule of the company, lowest threshold first
func (r *RuleRepository) ListByCompany(ctx context.Context, companyID string) ([]*entity.ApprovalRule, error) {
	return r.find(ctx, bson.M{"company_id": companyID})
}

// ListActive returns active rules of the company with a threshold of at most maxThreshold
func (r *RuleRepository) ListActive(ctx context.Context, companyID string, maxThreshold decimal.Decimal) ([]*entity.ApprovalRule, error) {
	limit, err := toDecimal128(maxThreshold)
	if err != nil {
		return nil, err
	}
	return r.find(ctx, bson.M{
		"company_id":       companyID,
		"is_active":        true,
		"amount_threshold": bson.M{"$lte": limit},
	})
}

// Update replaces the stored rule
func (r *RuleRepository) Update(ctx context.Context, rule *entity.ApprovalRule) error {
	doc, err := toRuleDocument(rule)
	if err != nil {
		return err
	}
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": rule.ID, "company_id": rule.CompanyID}, doc)
	if err != nil {
		r.logger.Error("Failed to update rule", zap.String("id", rule.ID), zap.Error(err))
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("rule", rule.ID)
	}
	return nil
}

// Delete removes a rule of the company
func (r *RuleRepository) Delete(ctx context.Context, companyID, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "company_id": companyID})
	if err != nil {
		r.logger.Error("Failed to delete rule", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("rule", id)
	}
	return nil
}

func (r *RuleRepository) find(ctx context.Context, filter bson.M) ([]*entity.ApprovalRule, error) {
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(thresholdOrder))
	if err != nil {
		r.logger.Error("Failed to query rules", zap.Error(err))
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}

	var docs []ruleDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}

	rules := make([]*entity.ApprovalRule, 0, len(docs))
	for _, doc := range docs {
		rule, err := doc.entity()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

var _ port.RuleRepository = (*RuleRepository)(nil)
