package domain

import (
	"strings"
	"time"
)

// Role is the coarse permission level of a user account.
type Role string

const (
	RoleApplicant Role = "applicant"
	RoleRecruiter Role = "recruiter"
	RoleAdmin     Role = "admin"
)

// ParseRole normalizes a role name. Empty input yields RoleApplicant.
func ParseRole(raw string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case "":
		return RoleApplicant, true
	case RoleApplicant, RoleRecruiter, RoleAdmin:
		return r, true
	default:
		return "", false
	}
}

// User is the credential record owned by the auth service.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
