package entity

// ExpenseStatus is the lifecycle status of an expense and of each approval step
type ExpenseStatus string

const (
	StatusPending  ExpenseStatus = "Pending"
	StatusApproved ExpenseStatus = "Approved"
	StatusRejected ExpenseStatus = "Rejected"
)

// IsTerminal returns true once an expense has been approved or rejected
func (s ExpenseStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// String returns the string representation of the status
func (s ExpenseStatus) String() string {
	return string(s)
}

// Role is a user's role within its company
type Role string

const (
	RoleEmployee Role = "Employee"
	RoleManager  Role = "Manager"
	RoleAdmin    Role = "Admin"
)

// Expense categories
const (
	CategoryTravel         = "Travel"
	CategoryFood           = "Food"
	CategoryAccommodation  = "Accommodation"
	CategoryTransport      = "Transport"
	CategoryOfficeSupplies = "Office Supplies"
	CategoryOther          = "Other"
)

var validCategories = map[string]bool{
	CategoryTravel:         true,
	CategoryFood:           true,
	CategoryAccommodation:  true,
	CategoryTransport:      true,
	CategoryOfficeSupplies: true,
	CategoryOther:          true,
}

// IsValidCategory reports whether c is one of the supported expense categories
func IsValidCategory(c string) bool {
	return validCategories[c]
}

// Action is what an approver does with a pending step
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// IsValid returns true for approve and reject
func (a Action) IsValid() bool {
	return a == ActionApprove || a == ActionReject
}
