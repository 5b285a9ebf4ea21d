package workflow

import (
	"testing"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/stretchr/testify/assert"
)

func TestCanViewReceipt(t *testing.T) {
	exp := &entity.Expense{
		EmployeeID: "emp",
		CompanyID:  "acme",
		Status:     entity.StatusPending,
		ApprovalFlow: []entity.ApprovalStep{
			{Approver: "m", Sequence: 1, Status: entity.StatusApproved},
			{Approver: "b", Sequence: 2, Status: entity.StatusPending},
			{Approver: "c", Sequence: 3, Status: entity.StatusPending},
		},
		CurrentApprovalStep: 2,
	}

	tests := []struct {
		name  string
		actor *entity.User
		want  bool
	}{
		{"submitter", &entity.User{ID: "emp", CompanyID: "acme", Role: entity.RoleEmployee}, true},
		{"admin of same company", &entity.User{ID: "adm", CompanyID: "acme", Role: entity.RoleAdmin}, true},
		{"admin of other company", &entity.User{ID: "adm2", CompanyID: "globex", Role: entity.RoleAdmin}, false},
		{"approver who already acted", &entity.User{ID: "m", CompanyID: "acme", Role: entity.RoleManager}, true},
		{"approver not yet active", &entity.User{ID: "c", CompanyID: "acme", Role: entity.RoleManager}, true},
		{"unrelated manager", &entity.User{ID: "z", CompanyID: "acme", Role: entity.RoleManager}, false},
		{"nil actor", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanViewReceipt(tt.actor, exp))
		})
	}
}

func TestPendingStepIndex(t *testing.T) {
	exp := &entity.Expense{
		Status: entity.StatusPending,
		ApprovalFlow: []entity.ApprovalStep{
			{Approver: "m", Sequence: 1, Status: entity.StatusApproved},
			{Approver: "b", Sequence: 2, Status: entity.StatusPending},
		},
		CurrentApprovalStep: 2,
	}

	idx, ok := PendingStepIndex(exp, "b")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = PendingStepIndex(exp, "m")
	assert.False(t, ok, "already approved step is not actionable")

	exp.Status = entity.StatusApproved
	assert.False(t, CanAct(exp, "b"), "terminal expense has no actionable step")

	empty := &entity.Expense{Status: entity.StatusPending}
	assert.False(t, CanAct(empty, "b"))
}
