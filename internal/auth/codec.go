package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/ats-auth/internal/domain"
)

// Codec failure kinds. Callers outside this package only ever see the
// collapsed errors returned by TokenManager.
var (
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrMalformed        = errors.New("token malformed")
)

// Claims describes the JWT payload shared by all token kinds.
type Claims struct {
	UserID  string           `json:"id,omitempty"`
	Email   string           `json:"email,omitempty"`
	Role    domain.Role      `json:"role,omitempty"`
	Service string           `json:"service,omitempty"`
	Type    domain.TokenType `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// Sign stamps issue/expiry times and a fresh token id onto a copy of claims
// and signs it with HS256.
func Sign(claims Claims, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if claims.Subject == "" {
		claims.Subject = claims.Service
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	return token.SignedString(secret)
}

// Verify checks signature and expiry and returns the decoded claims.
func Verify(tokenStr string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, classify(err)
	}
	if !parsed.Valid {
		return nil, ErrMalformed
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	default:
		return ErrMalformed
	}
}
