package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/pkg/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RuleInput carries the editable fields of an approval rule
type RuleInput struct {
	Name                     string
	AmountThreshold          decimal.Decimal
	IsSequential             bool
	IsManagerDefaultApprover bool
	ApprovalType             entity.ApprovalType
	PercentageRequired       *decimal.Decimal
	SpecificApprover         string
	Approvers                []string
	IsActive                 *bool
}

// RuleService manages the approval rules of the actor's company
type RuleService interface {
	Create(ctx context.Context, actor *entity.User, in RuleInput) (*entity.ApprovalRule, error)
	Get(ctx context.Context, actor *entity.User, id string) (*entity.ApprovalRule, error)
	List(ctx context.Context, actor *entity.User) ([]*entity.ApprovalRule, error)
	Update(ctx context.Context, actor *entity.User, id string, in RuleInput) (*entity.ApprovalRule, error)
	Delete(ctx context.Context, actor *entity.User, id string) error
}

type ruleServiceImpl struct {
	rules     port.RuleRepository
	users     port.UserDirectory
	publisher Publisher
	logger    Logger
	now       func() time.Time
}

// NewRuleService creates a new RuleService
func NewRuleService(rules port.RuleRepository, users port.UserDirectory, publisher Publisher, logger Logger) RuleService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &ruleServiceImpl{
		rules:     rules,
		users:     users,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *ruleServiceImpl) Create(ctx context.Context, actor *entity.User, in RuleInput) (*entity.ApprovalRule, error) {
	now := s.now()
	rule := &entity.ApprovalRule{
		ID:        uuid.NewString(),
		CompanyID: actor.CompanyID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.apply(ctx, rule, in); err != nil {
		return nil, err
	}

	if err := s.rules.Create(ctx, rule); err != nil {
		s.logger.Error("Failed to create rule", "error", err, "company_id", actor.CompanyID)
		return nil, fmt.Errorf("create rule: %w", err)
	}

	s.logger.Info("Rule created", "rule_id", rule.ID, "company_id", rule.CompanyID, "actor_id", actor.ID)
	s.publishChanged(ctx, rule, actor, "created")
	return rule, nil
}

func (s *ruleServiceImpl) Get(ctx context.Context, actor *entity.User, id string) (*entity.ApprovalRule, error) {
	return s.rules.GetByID(ctx, actor.CompanyID, id)
}

func (s *ruleServiceImpl) List(ctx context.Context, actor *entity.User) ([]*entity.ApprovalRule, error) {
	rules, err := s.rules.ListByCompany(ctx, actor.CompanyID)
	if err != nil {
		s.logger.Error("Failed to list rules", "error", err, "company_id", actor.CompanyID)
		return nil, err
	}
	return rules, nil
}

func (s *ruleServiceImpl) Update(ctx context.Context, actor *entity.User, id string, in RuleInput) (*entity.ApprovalRule, error) {
	rule, err := s.rules.GetByID(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, rule, in); err != nil {
		return nil, err
	}
	rule.UpdatedAt = s.now()

	if err := s.rules.Update(ctx, rule); err != nil {
		s.logger.Error("Failed to update rule", "error", err, "rule_id", id)
		return nil, fmt.Errorf("update rule: %w", err)
	}

	s.logger.Info("Rule updated", "rule_id", rule.ID, "actor_id", actor.ID)
	s.publishChanged(ctx, rule, actor, "updated")
	return rule, nil
}

func (s *ruleServiceImpl) Delete(ctx context.Context, actor *entity.User, id string) error {
	rule, err := s.rules.GetByID(ctx, actor.CompanyID, id)
	if err != nil {
		return err
	}
	if err := s.rules.Delete(ctx, actor.CompanyID, id); err != nil {
		s.logger.Error("Failed to delete rule", "error", err, "rule_id", id)
		return fmt.Errorf("delete rule: %w", err)
	}

	s.logger.Info("Rule deleted", "rule_id", id, "actor_id", actor.ID)
	s.publishChanged(ctx, rule, actor, "deleted")
	return nil
}

// apply validates in and copies it onto rule; rule is left untouched on error
func (s *ruleServiceImpl) apply(ctx context.Context, rule *entity.ApprovalRule, in RuleInput) error {
	name := utils.SanitizeString(in.Name)
	if name == "" {
		return apperr.Validation("name is required")
	}
	if err := utils.ValidateThreshold(in.AmountThreshold); err != nil {
		return apperr.Validation("%s", err.Error())
	}

	policy, err := entity.NewPolicy(in.ApprovalType, in.PercentageRequired, in.SpecificApprover)
	if err != nil {
		return apperr.Validation("%s", err.Error())
	}

	if len(in.Approvers) == 0 && !in.IsManagerDefaultApprover {
		return apperr.Validation("approvers are required unless the manager is the default approver")
	}

	approvers := make([]entity.RuleApprover, 0, len(in.Approvers))
	seen := make(map[string]bool, len(in.Approvers))
	for i, id := range in.Approvers {
		if seen[id] {
			return apperr.Validation("approver %s is listed twice", id)
		}
		seen[id] = true
		if err := s.requireColleague(ctx, rule.CompanyID, id); err != nil {
			return err
		}
		approvers = append(approvers, entity.RuleApprover{UserID: id, Sequence: i + 1})
	}
	if approver, ok := entity.SpecificApproverOf(policy); ok {
		if err := s.requireColleague(ctx, rule.CompanyID, approver); err != nil {
			return err
		}
	}

	rule.Name = name
	rule.AmountThreshold = in.AmountThreshold
	rule.IsSequential = in.IsSequential
	rule.IsManagerDefaultApprover = in.IsManagerDefaultApprover
	rule.Policy = policy
	rule.Approvers = approvers
	if in.IsActive != nil {
		rule.IsActive = *in.IsActive
	}
	return nil
}

func (s *ruleServiceImpl) requireColleague(ctx context.Context, companyID, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return apperr.Validation("approver %s does not exist", userID)
	}
	if err != nil {
		return fmt.Errorf("lookup approver: %w", err)
	}
	if user.CompanyID != companyID {
		return apperr.Validation("approver %s belongs to another company", userID)
	}
	return nil
}

func (s *ruleServiceImpl) publishChanged(ctx context.Context, rule *entity.ApprovalRule, actor *entity.User, change string) {
	s.publisher.DispatchAsync(ctx, event.NewEvent(event.TypeRuleChanged, rule.ID, rule.CompanyID, map[string]interface{}{
		event.KeyActorID:   actor.ID,
		event.KeyRuleName:  rule.Name,
		event.KeyChange:    change,
		event.KeyApprovers: ruleRecipients(rule),
	}))
}

// ruleRecipients lists the listed approvers plus a specific approver not among them
func ruleRecipients(rule *entity.ApprovalRule) []string {
	ids := rule.ApproverIDs()
	if specific, ok := entity.SpecificApproverOf(rule.Policy); ok && !slices.Contains(ids, specific) {
		ids = append(ids, specific)
	}
	return ids
}
