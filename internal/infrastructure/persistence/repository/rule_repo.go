package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const ruleColumns = `
	id, company_id, name, amount_threshold, is_sequential, is_manager_default_approver,
	approval_type, percentage_required, specific_approver, is_active, created_at, updated_at
`

// RuleRepository implements port.RuleRepository
type RuleRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *sqlite.DB, logger *zap.Logger) *RuleRepository {
	return &RuleRepository{db: db, logger: logger}
}

// Create stores a rule and its approvers
func (r *RuleRepository) Create(ctx context.Context, rule *entity.ApprovalRule) error {
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		policy := entity.FlattenPolicy(rule.Policy)
		query := `
			INSERT INTO approval_rules (` + ruleColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := r.db.Executor(txCtx).ExecContext(txCtx, query,
			rule.ID,
			rule.CompanyID,
			rule.Name,
			rule.AmountThreshold,
			rule.IsSequential,
			rule.IsManagerDefaultApprover,
			policy.ApprovalType,
			nullDecimal(policy.PercentageRequired),
			policy.SpecificApprover,
			rule.IsActive,
			rule.CreatedAt,
			rule.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create rule", zap.String("id", rule.ID), zap.Error(err))
			return fmt.Errorf("failed to create rule: %w", err)
		}
		return r.insertApprovers(txCtx, rule)
	})
}

// GetByID retrieves a rule of the company by ID
func (r *RuleRepository) GetByID(ctx context.Context, companyID, id string) (*entity.ApprovalRule, error) {
	rules, err := r.query(ctx, `SELECT `+ruleColumns+` FROM approval_rules WHERE id = ? AND company_id = ?`, id, companyID)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, apperr.NotFound("rule", id)
	}
	return rules[0], nil
}

// ListByCompany returns every rule of the company, lowest threshold first
func (r *RuleRepository) ListByCompany(ctx context.Context, companyID string) ([]*entity.ApprovalRule, error) {
	rules, err := r.query(ctx, `SELECT `+ruleColumns+` FROM approval_rules WHERE company_id = ?`, companyID)
	if err != nil {
		return nil, err
	}
	sortByThreshold(rules)
	return rules, nil
}

// ListActive returns active rules of the company with a threshold of at most maxThreshold.
// Thresholds are stored as decimal text, so the comparison happens here rather than in SQL.
func (r *RuleRepository) ListActive(ctx context.Context, companyID string, maxThreshold decimal.Decimal) ([]*entity.ApprovalRule, error) {
	rules, err := r.query(ctx, `SELECT `+ruleColumns+` FROM approval_rules WHERE company_id = ? AND is_active = 1`, companyID)
	if err != nil {
		return nil, err
	}

	out := rules[:0]
	for _, rule := range rules {
		if rule.AmountThreshold.LessThanOrEqual(maxThreshold) {
			out = append(out, rule)
		}
	}
	sortByThreshold(out)
	return out, nil
}

// Update replaces the rule's fields and approver list
func (r *RuleRepository) Update(ctx context.Context, rule *entity.ApprovalRule) error {
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		policy := entity.FlattenPolicy(rule.Policy)
		query := `
			UPDATE approval_rules SET
				name = ?, amount_threshold = ?, is_sequential = ?, is_manager_default_approver = ?,
				approval_type = ?, percentage_required = ?, specific_approver = ?, is_active = ?,
				updated_at = ?
			WHERE id = ? AND company_id = ?
		`
		res, err := r.db.Executor(txCtx).ExecContext(txCtx, query,
			rule.Name,
			rule.AmountThreshold,
			rule.IsSequential,
			rule.IsManagerDefaultApprover,
			policy.ApprovalType,
			nullDecimal(policy.PercentageRequired),
			policy.SpecificApprover,
			rule.IsActive,
			rule.UpdatedAt,
			rule.ID,
			rule.CompanyID,
		)
		if err != nil {
			r.logger.Error("Failed to update rule", zap.String("id", rule.ID), zap.Error(err))
			return fmt.Errorf("failed to update rule: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("rule", rule.ID)
		}

		if _, err := r.db.Executor(txCtx).ExecContext(txCtx, `DELETE FROM rule_approvers WHERE rule_id = ?`, rule.ID); err != nil {
			return fmt.Errorf("failed to clear rule approvers: %w", err)
		}
		return r.insertApprovers(txCtx, rule)
	})
}

// Delete removes a rule of the company; expenses keep their own rule snapshot
func (r *RuleRepository) Delete(ctx context.Context, companyID, id string) error {
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := r.db.Executor(txCtx).ExecContext(txCtx, `DELETE FROM rule_approvers WHERE rule_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete rule approvers: %w", err)
		}
		res, err := r.db.Executor(txCtx).ExecContext(txCtx, `DELETE FROM approval_rules WHERE id = ? AND company_id = ?`, id, companyID)
		if err != nil {
			r.logger.Error("Failed to delete rule", zap.String("id", id), zap.Error(err))
			return fmt.Errorf("failed to delete rule: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("rule", id)
		}
		return nil
	})
}

func (r *RuleRepository) insertApprovers(ctx context.Context, rule *entity.ApprovalRule) error {
	for i, a := range rule.Approvers {
		_, err := r.db.Executor(ctx).ExecContext(ctx,
			`INSERT INTO rule_approvers (rule_id, sequence, user_id) VALUES (?, ?, ?)`,
			rule.ID, i+1, a.UserID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert rule approver: %w", err)
		}
	}
	return nil
}

func (r *RuleRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalRule, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query rules", zap.Error(err))
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []*entity.ApprovalRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	rows.Close()

	for _, rule := range rules {
		if rule.Approvers, err = r.approvers(ctx, rule.ID); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

func (r *RuleRepository) approvers(ctx context.Context, ruleID string) ([]entity.RuleApprover, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx,
		`SELECT user_id, sequence FROM rule_approvers WHERE rule_id = ? ORDER BY sequence`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule approvers: %w", err)
	}
	defer rows.Close()

	approvers := make([]entity.RuleApprover, 0)
	for rows.Next() {
		var a entity.RuleApprover
		if err := rows.Scan(&a.UserID, &a.Sequence); err != nil {
			return nil, fmt.Errorf("failed to scan rule approver: %w", err)
		}
		approvers = append(approvers, a)
	}
	return approvers, rows.Err()
}

func scanRule(rows *sql.Rows) (*entity.ApprovalRule, error) {
	var rule entity.ApprovalRule
	var rec entity.PolicyRecord
	var pct decimal.NullDecimal

	err := rows.Scan(
		&rule.ID,
		&rule.CompanyID,
		&rule.Name,
		&rule.AmountThreshold,
		&rule.IsSequential,
		&rule.IsManagerDefaultApprover,
		&rec.ApprovalType,
		&pct,
		&rec.SpecificApprover,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}
	if pct.Valid {
		rec.PercentageRequired = &pct.Decimal
	}

	if rule.Policy, err = rec.Policy(); err != nil {
		return nil, fmt.Errorf("rule %s has an invalid policy: %w", rule.ID, err)
	}
	return &rule, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func sortByThreshold(rules []*entity.ApprovalRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if c := rules[i].AmountThreshold.Cmp(rules[j].AmountThreshold); c != 0 {
			return c < 0
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
}

var _ port.RuleRepository = (*RuleRepository)(nil)
