package models

import (
	"time"
)

// Account roles, in ascending order of privilege
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

type User struct {
	ID                string
	Email             string
	PasswordHash      string
	Name              string
	Role              string // "user", "admin", "superadmin"
	TwoFactorEnabled  bool
	TwoFactorAt       *time.Time // When two-factor was confirmed
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
