package models

import (
	"database/sql"
	"strings"
	"time"
)

// Role is the coarse permission group of a user.
type Role string

// Role constants
const (
	RoleAdmin   Role = "admin"
	RoleCreator Role = "creator"
	RoleUser    Role = "user"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleCreator, RoleUser:
		return true
	}
	return false
}

type User struct {
	ID           int64          `db:"id"`
	Username     string         `db:"username"`
	PasswordHash sql.NullString `db:"password_hash"`
	Role         Role           `db:"role"`
	Email        sql.NullString `db:"email"`
	Avatar       sql.NullString `db:"avatar"`
	CreatedAt    time.Time      `db:"created_at"`
}

// MailAddress returns the trimmed email address, or "" when the user has none.
func (u *User) MailAddress() string {
	if !u.Email.Valid {
		return ""
	}
	return strings.TrimSpace(u.Email.String)
}
