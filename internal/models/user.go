package models

import "time"

const (
	RoleUser     = "user"
	RoleApprover = "approver"
	RoleAdmin    = "admin"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	IsFirstLogin bool      `json:"is_first_login"`
	CreatedAt    time.Time `json:"created_at"`
}

// CanApprove reports whether the user may resolve pending requests.
func (u *User) CanApprove() bool {
	return u.Role == RoleApprover || u.Role == RoleAdmin
}

func ValidRole(role string) bool {
	return role == RoleUser || role == RoleApprover || role == RoleAdmin
}

type LogEntry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`

	// Joined actor identity
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}
