package workflow

import "github.com/garyjia/expense-approval/internal/domain/entity"

// BuildFlow materializes the approval steps of a new expense and returns them with the
// initial active sequence.
//
// Without a rule the submitter's manager, if any, is the single approver. With a rule the
// manager step comes first when the rule asks for it, followed by the rule's approvers in
// stored order. Sequential rules give every step its own sequence; parallel rules put all
// steps on sequence 1. An empty flow yields initial step 0 and the expense stays Pending
// until handled out of band.
func BuildFlow(rule *entity.ApprovalRule, employee *entity.User) ([]entity.ApprovalStep, int) {
	steps := make([]entity.ApprovalStep, 0)

	if rule == nil {
		if employee.HasManager() {
			steps = append(steps, pendingStep(employee.ManagerID, 1))
		}
		return steps, initialStep(steps)
	}

	sequence := 1
	if rule.IsManagerDefaultApprover && employee.HasManager() {
		steps = append(steps, pendingStep(employee.ManagerID, sequence))
		if rule.IsSequential {
			sequence++
		}
	}

	for _, approver := range rule.Approvers {
		steps = append(steps, pendingStep(approver.UserID, sequence))
		if rule.IsSequential {
			sequence++
		}
	}

	return steps, initialStep(steps)
}

func pendingStep(approver string, sequence int) entity.ApprovalStep {
	return entity.ApprovalStep{
		Approver: approver,
		Sequence: sequence,
		Status:   entity.StatusPending,
	}
}

func initialStep(steps []entity.ApprovalStep) int {
	if len(steps) > 0 {
		return 1
	}
	return 0
}
