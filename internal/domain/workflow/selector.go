package workflow

import (
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// SelectRule picks the rule that governs an expense of amount submitted in companyID:
// among active rules whose threshold is at most amount, the one with the largest threshold.
// Ties on the threshold go to the earliest created rule, then to name and id, so the result
// never depends on store iteration order. Returns nil when no rule qualifies.
func SelectRule(rules []*entity.ApprovalRule, companyID string, amount decimal.Decimal) *entity.ApprovalRule {
	var best *entity.ApprovalRule
	for _, r := range rules {
		if r == nil || !r.IsActive || r.CompanyID != companyID {
			continue
		}
		if r.AmountThreshold.GreaterThan(amount) {
			continue
		}
		if best == nil || moreSpecific(r, best) {
			best = r
		}
	}
	return best
}

func moreSpecific(a, b *entity.ApprovalRule) bool {
	if c := a.AmountThreshold.Cmp(b.AmountThreshold); c != 0 {
		return c > 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}
