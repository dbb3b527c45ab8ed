package models

// Membership statuses as reported by the group directory.
const (
	MembershipActive  = "active"
	MembershipLeft    = "left"
	MembershipRemoved = "removed"
	MembershipBanned  = "banned"
)

// Membership is one user's standing in a group.
type Membership struct {
	GroupID string `db:"group_id" json:"group_id"`
	UserID  string `db:"user_id" json:"user_id"`
	Status  string `db:"status" json:"status"`
	IsAdmin bool   `db:"is_admin" json:"is_admin"`
}

// Active reports whether the membership currently grants delivery.
func (m Membership) Active() bool {
	return m.Status == MembershipActive
}
