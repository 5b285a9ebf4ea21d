package entity

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ApprovalType selects how a rule decides that an expense is approved
type ApprovalType string

const (
	ApprovalAll        ApprovalType = "all"
	ApprovalPercentage ApprovalType = "percentage"
	ApprovalSpecific   ApprovalType = "specific"
	ApprovalHybrid     ApprovalType = "hybrid"
)

var hundred = decimal.NewFromInt(100)

// Policy is the approval condition of a rule. Each variant carries only the
// fields its approval type needs: AllPolicy, PercentagePolicy, SpecificPolicy
// and HybridPolicy.
type Policy interface {
	Type() ApprovalType
	isPolicy()
}

// AllPolicy approves once every step is approved
type AllPolicy struct{}

// PercentagePolicy approves once Required percent of all steps are approved
type PercentagePolicy struct {
	Required decimal.Decimal
}

// SpecificPolicy approves as soon as Approver approves
type SpecificPolicy struct {
	Approver string
}

// HybridPolicy approves on the specific approver or the percentage, whichever comes first
type HybridPolicy struct {
	Approver string
	Required decimal.Decimal
}

func (AllPolicy) Type() ApprovalType        { return ApprovalAll }
func (PercentagePolicy) Type() ApprovalType { return ApprovalPercentage }
func (SpecificPolicy) Type() ApprovalType   { return ApprovalSpecific }
func (HybridPolicy) Type() ApprovalType     { return ApprovalHybrid }

func (AllPolicy) isPolicy()        {}
func (PercentagePolicy) isPolicy() {}
func (SpecificPolicy) isPolicy()   {}
func (HybridPolicy) isPolicy()     {}

// NewPolicy builds the variant for approvalType, rejecting missing or out of range fields.
// An empty approvalType defaults to "all".
func NewPolicy(approvalType ApprovalType, percentageRequired *decimal.Decimal, specificApprover string) (Policy, error) {
	switch approvalType {
	case ApprovalAll, "":
		return AllPolicy{}, nil
	case ApprovalPercentage:
		pct, err := requirePercentage(approvalType, percentageRequired)
		if err != nil {
			return nil, err
		}
		return PercentagePolicy{Required: pct}, nil
	case ApprovalSpecific:
		if specificApprover == "" {
			return nil, fmt.Errorf("specificApprover is required for %s rules", approvalType)
		}
		return SpecificPolicy{Approver: specificApprover}, nil
	case ApprovalHybrid:
		pct, err := requirePercentage(approvalType, percentageRequired)
		if err != nil {
			return nil, err
		}
		if specificApprover == "" {
			return nil, fmt.Errorf("specificApprover is required for %s rules", approvalType)
		}
		return HybridPolicy{Approver: specificApprover, Required: pct}, nil
	default:
		return nil, fmt.Errorf("unknown approvalType %q", approvalType)
	}
}

func requirePercentage(t ApprovalType, pct *decimal.Decimal) (decimal.Decimal, error) {
	if pct == nil {
		return decimal.Zero, fmt.Errorf("percentageRequired is required for %s rules", t)
	}
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return decimal.Zero, fmt.Errorf("percentageRequired must be between 0 and 100, got %s", pct.String())
	}
	return *pct, nil
}

// SpecificApproverOf returns the override approver of specific and hybrid policies
func SpecificApproverOf(p Policy) (string, bool) {
	switch v := p.(type) {
	case SpecificPolicy:
		return v.Approver, true
	case HybridPolicy:
		return v.Approver, true
	}
	return "", false
}

// PercentageOf returns the required percentage of percentage and hybrid policies
func PercentageOf(p Policy) (decimal.Decimal, bool) {
	switch v := p.(type) {
	case PercentagePolicy:
		return v.Required, true
	case HybridPolicy:
		return v.Required, true
	}
	return decimal.Zero, false
}

// PolicyRecord is the flat persisted form of a Policy
type PolicyRecord struct {
	ApprovalType       ApprovalType     `json:"approval_type"`
	PercentageRequired *decimal.Decimal `json:"percentage_required,omitempty"`
	SpecificApprover   string           `json:"specific_approver,omitempty"`
}

// FlattenPolicy converts a Policy into its persisted form
func FlattenPolicy(p Policy) PolicyRecord {
	if p == nil {
		return PolicyRecord{ApprovalType: ApprovalAll}
	}
	rec := PolicyRecord{ApprovalType: p.Type()}
	if pct, ok := PercentageOf(p); ok {
		rec.PercentageRequired = &pct
	}
	if approver, ok := SpecificApproverOf(p); ok {
		rec.SpecificApprover = approver
	}
	return rec
}

// Policy rebuilds the variant, validating it again
func (r PolicyRecord) Policy() (Policy, error) {
	return NewPolicy(r.ApprovalType, r.PercentageRequired, r.SpecificApprover)
}

// RuleSnapshot is the part of an ApprovalRule an expense keeps once its flow is built.
// Later edits to the rule do not reach it.
type RuleSnapshot struct {
	RuleID       string
	Name         string
	IsSequential bool
	Policy       Policy
}

type ruleSnapshotJSON struct {
	RuleID       string `json:"rule_id"`
	Name         string `json:"name"`
	IsSequential bool   `json:"is_sequential"`
	PolicyRecord
}

// MarshalJSON flattens the policy variant
func (s RuleSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(ruleSnapshotJSON{
		RuleID:       s.RuleID,
		Name:         s.Name,
		IsSequential: s.IsSequential,
		PolicyRecord: FlattenPolicy(s.Policy),
	})
}

// UnmarshalJSON rebuilds the policy variant
func (s *RuleSnapshot) UnmarshalJSON(data []byte) error {
	var raw ruleSnapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	policy, err := raw.PolicyRecord.Policy()
	if err != nil {
		return fmt.Errorf("invalid rule snapshot policy: %w", err)
	}
	s.RuleID = raw.RuleID
	s.Name = raw.Name
	s.IsSequential = raw.IsSequential
	s.Policy = policy
	return nil
}
