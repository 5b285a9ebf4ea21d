package mongodb

import (
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type userDocument struct {
	ID         string `bson:"_id"`
	CompanyID  string `bson:"company_id"`
	Name       string `bson:"name"`
	Email      string `bson:"email"`
	Role       string `bson:"role"`
	ManagerID  string `bson:"manager_id,omitempty"`
	Currency   string `bson:"currency,omitempty"`
	LarkOpenID string `bson:"lark_open_id,omitempty"`
}

type policyDocument struct {
	ApprovalType       string                `bson:"approval_type"`
	PercentageRequired *primitive.Decimal128 `bson:"percentage_required,omitempty"`
	SpecificApprover   string                `bson:"specific_approver,omitempty"`
}

type ruleApproverDocument struct {
	UserID   string `bson:"user_id"`
	Sequence int    `bson:"sequence"`
}

type ruleDocument struct {
	ID                       string                 `bson:"_id"`
	CompanyID                string                 `bson:"company_id"`
	Name                     string                 `bson:"name"`
	AmountThreshold          primitive.Decimal128   `bson:"amount_threshold"`
	IsSequential             bool                   `bson:"is_sequential"`
	IsManagerDefaultApprover bool                   `bson:"is_manager_default_approver"`
	Policy                   policyDocument         `bson:"policy"`
	Approvers                []ruleApproverDocument `bson:"approvers"`
	IsActive                 bool                   `bson:"is_active"`
	CreatedAt                time.Time              `bson:"created_at"`
	UpdatedAt                time.Time              `bson:"updated_at"`
}

type snapshotDocument struct {
	RuleID       string         `bson:"rule_id"`
	Name         string         `bson:"name"`
	IsSequential bool           `bson:"is_sequential"`
	Policy       policyDocument `bson:"policy"`
}

type stepDocument struct {
	Approver   string     `bson:"approver"`
	Sequence   int        `bson:"sequence"`
	Status     string     `bson:"status"`
	Comments   string     `bson:"comments,omitempty"`
	ActionDate *time.Time `bson:"action_date,omitempty"`
}

type receiptDocument struct {
	Key         string `bson:"key"`
	ContentType string `bson:"content_type"`
}

type expenseDocument struct {
	ID                  string               `bson:"_id"`
	EmployeeID          string               `bson:"employee_id"`
	CompanyID           string               `bson:"company_id"`
	Amount              primitive.Decimal128 `bson:"amount"`
	Currency            string               `bson:"currency"`
	Category            string               `bson:"category"`
	Description         string               `bson:"description"`
	Date                time.Time            `bson:"date"`
	Receipt             *receiptDocument     `bson:"receipt,omitempty"`
	Status              string               `bson:"status"`
	ApprovalFlow        []stepDocument       `bson:"approval_flow"`
	CurrentApprovalStep int                  `bson:"current_approval_step"`
	AppliedRule         *snapshotDocument    `bson:"applied_rule,omitempty"`
	Version             int64                `bson:"version"`
	CreatedAt           time.Time            `bson:"created_at"`
	UpdatedAt           time.Time            `bson:"updated_at"`
}

type historyDocument struct {
	ID             string    `bson:"_id"`
	ExpenseID      string    `bson:"expense_id"`
	ActorID        string    `bson:"actor_id"`
	Action         string    `bson:"action"`
	Sequence       int       `bson:"sequence"`
	PreviousStatus string    `bson:"previous_status"`
	NewStatus      string    `bson:"new_status"`
	Comments       string    `bson:"comments,omitempty"`
	Timestamp      time.Time `bson:"timestamp"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("decimal %s does not fit decimal128: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(v.String())
}

func toUserDocument(u *entity.User) userDocument {
	return userDocument{
		ID:         u.ID,
		CompanyID:  u.CompanyID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       string(u.Role),
		ManagerID:  u.ManagerID,
		Currency:   u.Currency,
		LarkOpenID: u.LarkOpenID,
	}
}

func (d userDocument) entity() *entity.User {
	return &entity.User{
		ID:         d.ID,
		CompanyID:  d.CompanyID,
		Name:       d.Name,
		Email:      d.Email,
		Role:       entity.Role(d.Role),
		ManagerID:  d.ManagerID,
		Currency:   d.Currency,
		LarkOpenID: d.LarkOpenID,
	}
}

func toPolicyDocument(p entity.Policy) (policyDocument, error) {
	rec := entity.FlattenPolicy(p)
	doc := policyDocument{
		ApprovalType:     string(rec.ApprovalType),
		SpecificApprover: rec.SpecificApprover,
	}
	if rec.PercentageRequired != nil {
		v, err := toDecimal128(*rec.PercentageRequired)
		if err != nil {
			return policyDocument{}, err
		}
		doc.PercentageRequired = &v
	}
	return doc, nil
}

func (d policyDocument) policy() (entity.Policy, error) {
	rec := entity.PolicyRecord{
		ApprovalType:     entity.ApprovalType(d.ApprovalType),
		SpecificApprover: d.SpecificApprover,
	}
	if d.PercentageRequired != nil {
		pct, err := fromDecimal128(*d.PercentageRequired)
		if err != nil {
			return nil, err
		}
		rec.PercentageRequired = &pct
	}
	return rec.Policy()
}

func toRuleDocument(r *entity.ApprovalRule) (ruleDocument, error) {
	threshold, err := toDecimal128(r.AmountThreshold)
	if err != nil {
		return ruleDocument{}, err
	}
	policy, err := toPolicyDocument(r.Policy)
	if err != nil {
		return ruleDocument{}, err
	}

	approvers := make([]ruleApproverDocument, 0, len(r.Approvers))
	for i, a := range r.Approvers {
		approvers = append(approvers, ruleApproverDocument{UserID: a.UserID, Sequence: i + 1})
	}

	return ruleDocument{
		ID:                       r.ID,
		CompanyID:                r.CompanyID,
		Name:                     r.Name,
		AmountThreshold:          threshold,
		IsSequential:             r.IsSequential,
		IsManagerDefaultApprover: r.IsManagerDefaultApprover,
		Policy:                   policy,
		Approvers:                approvers,
		IsActive:                 r.IsActive,
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
	}, nil
}

func (d ruleDocument) entity() (*entity.ApprovalRule, error) {
	threshold, err := fromDecimal128(d.AmountThreshold)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", d.ID, err)
	}
	policy, err := d.Policy.policy()
	if err != nil {
		return nil, fmt.Errorf("rule %s has an invalid policy: %w", d.ID, err)
	}

	approvers := make([]entity.RuleApprover, 0, len(d.Approvers))
	for _, a := range d.Approvers {
		approvers = append(approvers, entity.RuleApprover{UserID: a.UserID, Sequence: a.Sequence})
	}

	return &entity.ApprovalRule{
		ID:                       d.ID,
		CompanyID:                d.CompanyID,
		Name:                     d.Name,
		AmountThreshold:          threshold,
		IsSequential:             d.IsSequential,
		IsManagerDefaultApprover: d.IsManagerDefaultApprover,
		Policy:                   policy,
		Approvers:                approvers,
		IsActive:                 d.IsActive,
		CreatedAt:                d.CreatedAt,
		UpdatedAt:                d.UpdatedAt,
	}, nil
}

func toStepDocuments(flow []entity.ApprovalStep) []stepDocument {
	steps := make([]stepDocument, 0, len(flow))
	for _, s := range flow {
		steps = append(steps, stepDocument{
			Approver:   s.Approver,
			Sequence:   s.Sequence,
			Status:     string(s.Status),
			Comments:   s.Comments,
			ActionDate: s.ActionDate,
		})
	}
	return steps
}

func toSnapshotDocument(s *entity.RuleSnapshot) (*snapshotDocument, error) {
	if s == nil {
		return nil, nil
	}
	policy, err := toPolicyDocument(s.Policy)
	if err != nil {
		return nil, err
	}
	return &snapshotDocument{
		RuleID:       s.RuleID,
		Name:         s.Name,
		IsSequential: s.IsSequential,
		Policy:       policy,
	}, nil
}

func toExpenseDocument(e *entity.Expense) (expenseDocument, error) {
	amount, err := toDecimal128(e.Amount)
	if err != nil {
		return expenseDocument{}, err
	}
	snapshot, err := toSnapshotDocument(e.AppliedRule)
	if err != nil {
		return expenseDocument{}, err
	}

	doc := expenseDocument{
		ID:                  e.ID,
		EmployeeID:          e.EmployeeID,
		CompanyID:           e.CompanyID,
		Amount:              amount,
		Currency:            e.Currency,
		Category:            e.Category,
		Description:         e.Description,
		Date:                e.Date,
		Status:              string(e.Status),
		ApprovalFlow:        toStepDocuments(e.ApprovalFlow),
		CurrentApprovalStep: e.CurrentApprovalStep,
		AppliedRule:         snapshot,
		Version:             e.Version,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	}
	if e.Receipt != nil {
		doc.Receipt = &receiptDocument{Key: e.Receipt.Key, ContentType: e.Receipt.ContentType}
	}
	return doc, nil
}

func (d expenseDocument) entity() (*entity.Expense, error) {
	amount, err := fromDecimal128(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("expense %s: %w", d.ID, err)
	}

	exp := &entity.Expense{
		ID:                  d.ID,
		EmployeeID:          d.EmployeeID,
		CompanyID:           d.CompanyID,
		Amount:              amount,
		Currency:            d.Currency,
		Category:            d.Category,
		Description:         d.Description,
		Date:                d.Date,
		Status:              entity.ExpenseStatus(d.Status),
		ApprovalFlow:        make([]entity.ApprovalStep, 0, len(d.ApprovalFlow)),
		CurrentApprovalStep: d.CurrentApprovalStep,
		Version:             d.Version,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
	for _, s := range d.ApprovalFlow {
		exp.ApprovalFlow = append(exp.ApprovalFlow, entity.ApprovalStep{
			Approver:   s.Approver,
			Sequence:   s.Sequence,
			Status:     entity.ExpenseStatus(s.Status),
			Comments:   s.Comments,
			ActionDate: s.ActionDate,
		})
	}
	if d.Receipt != nil {
		exp.Receipt = &entity.ReceiptRef{Key: d.Receipt.Key, ContentType: d.Receipt.ContentType}
	}
	if d.AppliedRule != nil {
		policy, err := d.AppliedRule.Policy.policy()
		if err != nil {
			return nil, fmt.Errorf("expense %s has an invalid rule snapshot: %w", d.ID, err)
		}
		exp.AppliedRule = &entity.RuleSnapshot{
			RuleID:       d.AppliedRule.RuleID,
			Name:         d.AppliedRule.Name,
			IsSequential: d.AppliedRule.IsSequential,
			Policy:       policy,
		}
	}
	return exp, nil
}

func toHistoryDocument(h *entity.ActionHistory) historyDocument {
	return historyDocument{
		ID:             h.ID,
		ExpenseID:      h.ExpenseID,
		ActorID:        h.ActorID,
		Action:         string(h.Action),
		Sequence:       h.Sequence,
		PreviousStatus: string(h.PreviousStatus),
		NewStatus:      string(h.NewStatus),
		Comments:       h.Comments,
		Timestamp:      h.Timestamp,
	}
}

func (d historyDocument) entity() *entity.ActionHistory {
	return &entity.ActionHistory{
		ID:             d.ID,
		ExpenseID:      d.ExpenseID,
		ActorID:        d.ActorID,
		Action:         entity.Action(d.Action),
		Sequence:       d.Sequence,
		PreviousStatus: entity.ExpenseStatus(d.PreviousStatus),
		NewStatus:      entity.ExpenseStatus(d.NewStatus),
		Comments:       d.Comments,
		Timestamp:      d.Timestamp,
	}
}
