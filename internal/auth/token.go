package auth

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/ats-auth/internal/domain"
)

// Verification errors exposed to callers. Every codec failure reason
// (signature, expiry, structure, wrong token type) collapses into one of these.
var (
	ErrInvalidAccessToken  = errors.New("invalid access token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidServiceToken = errors.New("invalid service token")
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultServiceTTL = 24 * time.Hour
)

// TokenConfig carries the signing secrets and lifetimes. Secrets are injected
// at construction and never read from the environment by this package.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ServiceTTL    time.Duration
}

// TokenPair is the result of login, registration and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenManager issues and verifies access, refresh and service tokens.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	serviceTTL    time.Duration
	denylist      Denylist
}

// NewTokenManager builds a new manager.
func NewTokenManager(cfg TokenConfig) *TokenManager {
	tm := &TokenManager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		serviceTTL:    cfg.ServiceTTL,
	}
	if tm.accessTTL <= 0 {
		tm.accessTTL = defaultAccessTTL
	}
	if tm.refreshTTL <= 0 {
		tm.refreshTTL = defaultRefreshTTL
	}
	if tm.serviceTTL <= 0 {
		tm.serviceTTL = defaultServiceTTL
	}
	return tm
}

// WithDenylist enables refresh token revocation.
func (tm *TokenManager) WithDenylist(d Denylist) *TokenManager {
	tm.denylist = d
	return tm
}

// IssueTokenPair mints an access and refresh token for the user.
func (tm *TokenManager) IssueTokenPair(user *domain.User) (TokenPair, error) {
	return tm.issue(user.ID, user.Email, user.Role)
}

func (tm *TokenManager) issue(userID, email string, role domain.Role) (TokenPair, error) {
	identity := Claims{UserID: userID, Email: email, Role: role}

	access := identity
	access.Type = domain.TokenTypeAccess
	accessToken, err := Sign(access, tm.accessSecret, tm.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}

	refresh := identity
	refresh.Type = domain.TokenTypeRefresh
	refreshToken, err := Sign(refresh, tm.refreshSecret, tm.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// VerifyAccess validates a user access token.
func (tm *TokenManager) VerifyAccess(token string) (*Claims, error) {
	claims, err := Verify(token, tm.accessSecret)
	if err != nil || claims.Type != domain.TokenTypeAccess {
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token, consulting the denylist when one
// is configured. A denylist lookup failure is treated as revoked.
func (tm *TokenManager) VerifyRefresh(ctx context.Context, token string) (*Claims, error) {
	claims, err := Verify(token, tm.refreshSecret)
	if err != nil || claims.Type != domain.TokenTypeRefresh {
		return nil, ErrInvalidRefreshToken
	}
	if tm.denylist != nil {
		revoked, err := tm.denylist.IsRevoked(ctx, claims.ID)
		if err != nil || revoked {
			return nil, ErrInvalidRefreshToken
		}
	}
	return claims, nil
}

// Refresh exchanges a refresh token for a new pair. Only the identity fields
// of the old token are carried over. With a denylist the old token is
// claimed after the new pair is signed; a token that was already claimed,
// even by a concurrent refresh, is rejected.
func (tm *TokenManager) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := tm.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	pair, err := tm.issue(claims.UserID, claims.Email, claims.Role)
	if err != nil {
		return TokenPair{}, err
	}
	if err := tm.claim(ctx, claims); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Revoke denylists a refresh token until its natural expiry. Without a
// denylist it only validates the token.
func (tm *TokenManager) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := tm.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return err
	}
	return tm.claim(ctx, claims)
}

func (tm *TokenManager) claim(ctx context.Context, claims *Claims) error {
	if tm.denylist == nil || claims.ExpiresAt == nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return ErrInvalidRefreshToken
	}
	won, err := tm.denylist.Revoke(ctx, claims.ID, ttl)
	if err != nil {
		return err
	}
	if !won {
		return ErrInvalidRefreshToken
	}
	return nil
}

// GenerateServiceToken mints a token identifying a calling service.
func (tm *TokenManager) GenerateServiceToken(serviceName string) (string, error) {
	return Sign(Claims{Service: serviceName, Type: domain.TokenTypeService}, tm.accessSecret, tm.serviceTTL)
}

// VerifyServiceToken validates a service token and its type tag.
func (tm *TokenManager) VerifyServiceToken(token string) (*Claims, error) {
	claims, err := Verify(token, tm.accessSecret)
	if err != nil || claims.Type != domain.TokenTypeService || claims.Service == "" {
		return nil, ErrInvalidServiceToken
	}
	return claims, nil
}

// Principal converts claims into the request identity.
func (c *Claims) Principal() *domain.Principal {
	if c.Type == domain.TokenTypeService {
		return &domain.Principal{Kind: domain.PrincipalService, Service: c.Service}
	}
	return &domain.Principal{Kind: domain.PrincipalUser, UserID: c.UserID, Email: c.Email, Role: c.Role}
}
