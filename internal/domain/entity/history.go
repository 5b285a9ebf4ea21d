package entity

import "time"

// ActionHistory is the audit trail entry written for every recorded approval action
type ActionHistory struct {
	ID             string        `json:"id"`
	ExpenseID      string        `json:"expense_id"`
	ActorID        string        `json:"actor_id"`
	Action         Action        `json:"action"`
	Sequence       int           `json:"sequence"`
	PreviousStatus ExpenseStatus `json:"previous_status"`
	NewStatus      ExpenseStatus `json:"new_status"`
	Comments       string        `json:"comments,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}
