package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ats-auth/internal/domain"
	apperrors "github.com/spec-kit/ats-auth/pkg/util"
)

const principalKey = "auth_principal"

// DefaultCookieName is used in cookie mode when no name is configured.
const DefaultCookieName = "auth_token"

// Verifier turns a raw token into a principal. TokenManager (through
// LocalVerifier) checks signatures in-process; authclient.Client asks the
// auth service over the network.
type Verifier interface {
	VerifyUser(ctx context.Context, token string) (*domain.Principal, error)
	VerifyService(ctx context.Context, token string) (*domain.Principal, error)
}

// TokenSource selects where the middleware reads the token from.
type TokenSource int

const (
	TokenFromHeader TokenSource = iota
	TokenFromCookie
)

// MiddlewareConfig parameterizes a request gate.
type MiddlewareConfig struct {
	AllowedRoles []string
	Source       TokenSource
	CookieName   string
	ServiceAuth  bool
}

// AuthMiddleware validates tokens and enforces the allowed role set.
type AuthMiddleware struct {
	verifier   Verifier
	roles      map[string]struct{}
	source     TokenSource
	cookieName string
	service    bool
}

// NewAuthMiddleware constructs middleware. The config is copied.
func NewAuthMiddleware(verifier Verifier, cfg MiddlewareConfig) *AuthMiddleware {
	roles := make(map[string]struct{}, len(cfg.AllowedRoles))
	for _, role := range cfg.AllowedRoles {
		roles[strings.ToLower(role)] = struct{}{}
	}
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &AuthMiddleware{
		verifier:   verifier,
		roles:      roles,
		source:     cfg.Source,
		cookieName: cookieName,
		service:    cfg.ServiceAuth,
	}
}

// NewMiddleware is shorthand for NewAuthMiddleware(verifier, cfg).Handle.
func NewMiddleware(verifier Verifier, cfg MiddlewareConfig) fiber.Handler {
	return NewAuthMiddleware(verifier, cfg).Handle
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token := m.extract(c)
	if token == "" {
		return apperrors.NewUnauthorized("No token provided")
	}

	var (
		principal *domain.Principal
		err       error
	)
	if m.service {
		principal, err = m.verifier.VerifyService(c.UserContext(), token)
	} else {
		principal, err = m.verifier.VerifyUser(c.UserContext(), token)
	}
	if err != nil {
		if m.source == TokenFromCookie {
			c.ClearCookie(m.cookieName)
		}
		if m.service {
			return apperrors.NewUnauthorized("Invalid service token")
		}
		return apperrors.NewUnauthorized("Invalid token")
	}

	if len(m.roles) > 0 {
		if _, ok := m.roles[strings.ToLower(string(principal.Role))]; !ok {
			return apperrors.NewForbidden("Insufficient permissions")
		}
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

func (m *AuthMiddleware) extract(c *fiber.Ctx) string {
	if m.source == TokenFromCookie {
		return c.Cookies(m.cookieName)
	}
	return BearerToken(c.Get(fiber.HeaderAuthorization))
}

// BearerToken returns the token part of an Authorization header value.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*domain.Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*domain.Principal)
	return principal, ok
}

// LocalVerifier verifies tokens in-process with the shared secret.
type LocalVerifier struct {
	tokens *TokenManager
}

// NewLocalVerifier adapts a TokenManager to Verifier.
func NewLocalVerifier(tokens *TokenManager) *LocalVerifier {
	return &LocalVerifier{tokens: tokens}
}

func (v *LocalVerifier) VerifyUser(_ context.Context, token string) (*domain.Principal, error) {
	claims, err := v.tokens.VerifyAccess(token)
	if err != nil {
		return nil, err
	}
	return claims.Principal(), nil
}

func (v *LocalVerifier) VerifyService(_ context.Context, token string) (*domain.Principal, error) {
	claims, err := v.tokens.VerifyServiceToken(token)
	if err != nil {
		return nil, err
	}
	return claims.Principal(), nil
}
