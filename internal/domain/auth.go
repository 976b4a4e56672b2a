package domain

// TokenType discriminates the three token kinds sharing the JWT format.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
	TokenTypeService TokenType = "service"
)

// PrincipalKind differentiates human callers from services.
type PrincipalKind string

const (
	PrincipalUser    PrincipalKind = "user"
	PrincipalService PrincipalKind = "service"
)

// Principal is the identity attached to a request once it passes authorization.
type Principal struct {
	Kind    PrincipalKind `json:"-"`
	UserID  string        `json:"id,omitempty"`
	Email   string        `json:"email,omitempty"`
	Role    Role          `json:"role,omitempty"`
	Service string        `json:"service,omitempty"`
}
