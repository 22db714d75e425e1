package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID             string     `json:"id" db:"id"`                           // User ID (UUID)
	Email          string     `json:"email" example:"user@example.com"`     // User email
	Nickname       string     `json:"nickname" example:"johnd"`             // Display name
	Role           string     `json:"role" example:"user"`                  // user or admin
	Points         int64      `json:"points" db:"points"`                   // Current point balance
	TotalRecharged int64      `json:"total_recharged" db:"total_recharged"` // Lifetime recharged points
	Version        int        `json:"-" db:"version"`                       // Optimistic lock version
	AvatarURL      string     `json:"avatar_url,omitempty" db:"avatar_url"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
