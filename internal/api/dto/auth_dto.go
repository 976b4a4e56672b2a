package dto

import (
	"github.com/spec-kit/ats-auth/internal/auth"
	"github.com/spec-kit/ats-auth/internal/domain"
)

// RegisterRequest payload for POST /api/auth/register.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
	Role     string `json:"role"`
}

// LoginRequest payload for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest carries a refresh token for refresh and logout.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ValidateServiceRequest payload for POST /api/auth/validate-service.
type ValidateServiceRequest struct {
	Token string `json:"token"`
}

// GenerateTokenRequest payload for POST /api/auth/generate. ServiceName is
// informational; the token is minted for the authenticated caller.
type GenerateTokenRequest struct {
	ServiceName string `json:"serviceName"`
	UserID      string `json:"userId"`
	Role        string `json:"role"`
}

// UserResponse is the public view of a user. It never carries the hash.
type UserResponse struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         UserResponse `json:"user"`
}

// TokenPairResponse is returned by refresh.
type TokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ValidateResponse is returned by validate.
type ValidateResponse struct {
	Valid bool         `json:"valid"`
	User  *auth.Claims `json:"user"`
}

// ValidateServiceResponse is returned by validate-service.
type ValidateServiceResponse struct {
	Valid   bool   `json:"valid"`
	Service string `json:"service"`
}

// GenerateTokenResponse is returned by generate.
type GenerateTokenResponse struct {
	ServiceToken string `json:"serviceToken"`
	Message      string `json:"message"`
}

// NewUserResponse maps a domain user to its public form.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{ID: user.ID, Email: user.Email, Role: user.Role}
}

// NewAuthResponse builds the register/login body.
func NewAuthResponse(user *domain.User, pair auth.TokenPair) AuthResponse {
	return AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         NewUserResponse(user),
	}
}
