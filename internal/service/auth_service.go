package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ats-auth/internal/auth"
	"github.com/spec-kit/ats-auth/internal/config"
	"github.com/spec-kit/ats-auth/internal/domain"
	"github.com/spec-kit/ats-auth/internal/events"
	"github.com/spec-kit/ats-auth/internal/observability"
	"github.com/spec-kit/ats-auth/internal/repository"
	apperrors "github.com/spec-kit/ats-auth/pkg/util"
)

// AuthService coordinates registration, login and token flows.
type AuthService struct {
	users          repository.UserRepository
	publisher      events.Publisher
	tokenMgr       *auth.TokenManager
	logger         *zap.Logger
	metrics        *observability.Metrics
	bcryptCost     int
	publishTimeout time.Duration
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo  repository.UserRepository
	Publisher events.Publisher
	Denylist  auth.Denylist
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	tokens := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  cfg.Auth.JWTSecret,
		RefreshSecret: cfg.Auth.JWTRefreshSecret,
		AccessTTL:     cfg.Auth.AccessTTL(),
		RefreshTTL:    cfg.Auth.RefreshTTL(),
		ServiceTTL:    cfg.Auth.ServiceTTL(),
	})
	if deps.Denylist != nil {
		tokens.WithDenylist(deps.Denylist)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:          deps.UserRepo,
		publisher:      deps.Publisher,
		tokenMgr:       tokens,
		logger:         logger,
		metrics:        deps.Metrics,
		bcryptCost:     cfg.Auth.BcryptCost,
		publishTimeout: cfg.Kafka.PublishTimeout(),
	}
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User   *domain.User
	Tokens auth.TokenPair
}

// Register creates a user account, announces it and returns a token pair.
func (s *AuthService) Register(ctx context.Context, email, password, rawRole string) (*AuthResult, error) {
	role, ok := domain.ParseRole(rawRole)
	if !ok {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": rawRole})
	}
	email = domain.NormalizeEmail(email)

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		s.metrics.RecordAuth("register", "conflict")
		return nil, apperrors.NewConflict("User already exists", nil)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewInternalError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			s.metrics.RecordAuth("register", "conflict")
			return nil, apperrors.NewConflict("User already exists", nil)
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.publishUserCreated(user)

	pair, err := s.tokenMgr.IssueTokenPair(user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.metrics.RecordAuth("register", "ok")
	return &AuthResult{User: user, Tokens: pair}, nil
}

// publishUserCreated runs after the user row is committed. It uses its own
// deadline so a cancelled request cannot abort it, and its failure is only
// logged: the user record is the source of truth.
func (s *AuthService) publishUserCreated(user *domain.User) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
	defer cancel()

	err := s.publisher.Publish(ctx, events.Event{
		Key:  user.ID,
		Type: events.EventUserCreated,
		Payload: events.UserCreatedPayload{
			UserID: user.ID,
			Email:  user.Email,
			Role:   user.Role,
		},
	})
	s.metrics.RecordEventPublish(string(events.EventUserCreated), err)
	if err != nil {
		s.logger.Error("failed to publish user event; downstream services will not see this user",
			zap.String("user_id", user.ID),
			zap.String("event_type", string(events.EventUserCreated)),
			zap.Error(err))
	}
}

// CurrentUser loads the account behind an access token. A token whose user
// has since been removed is reported as not found.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": userID})
		}
		return nil, apperrors.NewInternalError(err)
	}
	return user, nil
}

// Login authenticates a user by email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			auth.CompareDummy(password)
			s.metrics.RecordAuth("login", "failed")
			return nil, apperrors.NewAuthenticationFailed()
		}
		return nil, apperrors.NewInternalError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		s.metrics.RecordAuth("login", "failed")
		return nil, apperrors.NewAuthenticationFailed()
	}

	pair, err := s.tokenMgr.IssueTokenPair(user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.metrics.RecordAuth("login", "ok")
	return &AuthResult{User: user, Tokens: pair}, nil
}

// Refresh exchanges a refresh token for a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return auth.TokenPair{}, apperrors.NewBadRequest("Refresh token is required")
	}
	pair, err := s.tokenMgr.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidRefreshToken) {
			s.metrics.RecordAuth("refresh", "invalid")
			return auth.TokenPair{}, apperrors.NewInvalidToken("Invalid Refresh Token")
		}
		return auth.TokenPair{}, apperrors.NewInternalError(err)
	}
	s.metrics.RecordAuth("refresh", "ok")
	return pair, nil
}

// ValidateToken verifies a user access token on behalf of another service.
func (s *AuthService) ValidateToken(token string) (*auth.Claims, error) {
	if token == "" {
		return nil, apperrors.NewUnauthorized("No token provided")
	}
	claims, err := s.tokenMgr.VerifyAccess(token)
	if err != nil {
		s.metrics.RecordAuth("validate", "invalid")
		return nil, apperrors.NewInvalidToken("Invalid Access Token")
	}
	return claims, nil
}

// ValidateServiceToken verifies a service token and returns the service name.
func (s *AuthService) ValidateServiceToken(token string) (string, error) {
	if token == "" {
		return "", apperrors.NewBadRequest("Service token is required")
	}
	claims, err := s.tokenMgr.VerifyServiceToken(token)
	if err != nil {
		s.metrics.RecordAuth("validate_service", "invalid")
		return "", apperrors.NewInvalidToken("Invalid Service Token")
	}
	return claims.Service, nil
}

// GenerateToken mints a fresh service token for an already authenticated
// calling service.
func (s *AuthService) GenerateToken(requestingService, userID, role string) (string, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(role) == "" {
		return "", apperrors.NewBadRequest("userId and role are required")
	}
	if requestingService == "" {
		return "", apperrors.NewUnauthorized("Invalid service token")
	}
	token, err := s.tokenMgr.GenerateServiceToken(requestingService)
	if err != nil {
		return "", apperrors.NewInternalError(err)
	}
	s.logger.Info("service token issued",
		zap.String("service", requestingService),
		zap.String("on_behalf_of", userID),
		zap.String("role", role))
	return token, nil
}

// Logout revokes a refresh token when revocation is enabled. Without a
// denylist tokens are stateless and this only validates the input.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return apperrors.NewBadRequest("Refresh token is required")
	}
	if err := s.tokenMgr.Revoke(ctx, refreshToken); err != nil {
		if errors.Is(err, auth.ErrInvalidRefreshToken) {
			return apperrors.NewInvalidToken("Invalid Refresh Token")
		}
		return apperrors.NewInternalError(err)
	}
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
