package entity

// User is the user directory view the approval core needs
type User struct {
	ID         string `json:"id"`
	CompanyID  string `json:"company_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	ManagerID  string `json:"manager_id,omitempty"`
	Currency   string `json:"currency,omitempty"`
	LarkOpenID string `json:"lark_open_id,omitempty"`
}

// HasManager reports whether the user reports to someone
func (u *User) HasManager() bool {
	return u.ManagerID != ""
}

// IsAdminOf reports whether the user administers the given company
func (u *User) IsAdminOf(companyID string) bool {
	return u.Role == RoleAdmin && u.CompanyID == companyID
}

// CanApprove reports whether the user's role may act on approvals at all
func (u *User) CanApprove() bool {
	return u.Role == RoleManager || u.Role == RoleAdmin
}
