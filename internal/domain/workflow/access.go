package workflow

import "github.com/garyjia/expense-approval/internal/domain/entity"

// PendingStepIndex returns the index of the actor's pending step at the expense's current
// sequence. Terminal expenses and expenses without a flow have no actionable step.
func PendingStepIndex(exp *entity.Expense, actorID string) (int, bool) {
	if exp.Status.IsTerminal() || exp.CurrentApprovalStep == 0 {
		return -1, false
	}
	for i, step := range exp.ApprovalFlow {
		if step.Approver == actorID &&
			step.Sequence == exp.CurrentApprovalStep &&
			step.Status == entity.StatusPending {
			return i, true
		}
	}
	return -1, false
}

// CanAct reports whether the actor may approve or reject the expense right now
func CanAct(exp *entity.Expense, actorID string) bool {
	_, ok := PendingStepIndex(exp, actorID)
	return ok
}

// CanViewReceipt grants access to the submitter, an Admin of the expense's company, and any
// approver assigned anywhere in the flow, whatever the step's sequence or status.
func CanViewReceipt(actor *entity.User, exp *entity.Expense) bool {
	if actor == nil || exp == nil {
		return false
	}
	if actor.ID == exp.EmployeeID {
		return true
	}
	if actor.IsAdminOf(exp.CompanyID) {
		return true
	}
	return exp.InFlow(actor.ID)
}

// CanView applies the receipt rule to the expense record and its history
func CanView(actor *entity.User, exp *entity.Expense) bool {
	return CanViewReceipt(actor, exp)
}
