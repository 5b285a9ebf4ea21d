package workflow

// Trigger represents the consequence of one recorded approval action
type Trigger string

const (
	// TriggerApprove completes the flow
	TriggerApprove Trigger = "APPROVE"
	// TriggerReject terminates the flow
	TriggerReject Trigger = "REJECT"
	// TriggerAdvance moves the active step to the next sequence
	TriggerAdvance Trigger = "ADVANCE"
	// TriggerAwait records the action while the flow keeps waiting on the same sequence
	TriggerAwait Trigger = "AWAIT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
