package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/ats-auth/internal/config"
	"github.com/spec-kit/ats-auth/internal/domain"
	"github.com/spec-kit/ats-auth/internal/events"
	"github.com/spec-kit/ats-auth/internal/observability"
	"github.com/spec-kit/ats-auth/internal/repository"
	apperrors "github.com/spec-kit/ats-auth/pkg/util"
)

type recordingPublisher struct {
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func testConfig() config.Config {
	return config.Config{Auth: config.AuthConfig{
		JWTSecret:             "access-secret",
		JWTRefreshSecret:      "refresh-secret",
		AccessTokenTTLMinutes: 60,
		RefreshTokenTTLHours:  168,
		ServiceTokenTTLHours:  24,
		BcryptCost:            4,
	}}
}

func newTestService(pub events.Publisher) *AuthService {
	return NewAuthService(testConfig(), AuthDependencies{
		UserRepo:  repository.NewMemoryUserRepository(),
		Publisher: pub,
		Metrics:   observability.NewMetrics(),
	})
}

func domainErr(t *testing.T, err error) *apperrors.DomainError {
	t.Helper()
	require.Error(t, err)
	var de *apperrors.DomainError
	require.True(t, errors.As(err, &de), "expected DomainError, got %T", err)
	return de
}

func TestRegister_PublishesAndIssuesTokens(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(pub)

	res, err := svc.Register(context.Background(), "A@B.com", "secret123", "applicant")
	require.NoError(t, err)
	require.Equal(t, "a@b.com", res.User.Email)
	require.Equal(t, domain.RoleApplicant, res.User.Role)
	require.NotEqual(t, "secret123", res.User.PasswordHash)

	claims, err := svc.TokenManager().VerifyAccess(res.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, res.User.ID, claims.UserID)

	require.Len(t, pub.events, 1)
	require.Equal(t, events.EventUserCreated, pub.events[0].Type)
	require.Equal(t, res.User.ID, pub.events[0].Key)
	require.Equal(t, events.UserCreatedPayload{UserID: res.User.ID, Email: "a@b.com", Role: domain.RoleApplicant}, pub.events[0].Payload)
}

func TestRegister_Duplicate(t *testing.T) {
	svc := newTestService(&recordingPublisher{})
	_, err := svc.Register(context.Background(), "a@b.com", "secret123", "applicant")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "a@b.com", "other", "recruiter")
	de := domainErr(t, err)
	require.Equal(t, apperrors.CodeConflict, de.Code)
	require.Equal(t, http.StatusBadRequest, de.HTTPStatus)
}

func TestRegister_PublishFailureDoesNotFail(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker unavailable")}
	svc := newTestService(pub)

	res, err := svc.Register(context.Background(), "a@b.com", "secret123", "")
	require.NoError(t, err)
	require.Equal(t, domain.RoleApplicant, res.User.Role)
	require.Len(t, pub.events, 1)

	_, err = svc.Login(context.Background(), "a@b.com", "secret123")
	require.NoError(t, err)
}

func TestRegister_PublishIgnoresCancelledRequest(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(pub)

	ctx, cancel := context.WithCancel(context.Background())
	res, err := svc.Register(ctx, "a@b.com", "secret123", "recruiter")
	cancel()
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
	require.Equal(t, res.User.ID, pub.events[0].Key)
}

func TestCurrentUser(t *testing.T) {
	svc := newTestService(&recordingPublisher{})
	res, err := svc.Register(context.Background(), "a@b.com", "secret123", "recruiter")
	require.NoError(t, err)

	user, err := svc.CurrentUser(context.Background(), res.User.ID)
	require.NoError(t, err)
	require.Equal(t, "a@b.com", user.Email)

	_, err = svc.CurrentUser(context.Background(), "missing")
	de := domainErr(t, err)
	require.Equal(t, apperrors.CodeNotFound, de.Code)
	require.Equal(t, http.StatusNotFound, de.HTTPStatus)
	require.Equal(t, "user not found", de.Message)
}

func TestRegister_InvalidRole(t *testing.T) {
	svc := newTestService(nil)
	_, err := svc.Register(context.Background(), "a@b.com", "secret123", "superuser")
	require.Equal(t, apperrors.CodeValidationFailed, domainErr(t, err).Code)
}

func TestLogin_DoesNotRevealWhichCredentialFailed(t *testing.T) {
	svc := newTestService(nil)
	_, err := svc.Register(context.Background(), "a@b.com", "secret123", "applicant")
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "a@b.com", "nope")
	wrongPassword := domainErr(t, err)
	_, err = svc.Login(context.Background(), "x@b.com", "nope")
	unknownEmail := domainErr(t, err)

	require.Equal(t, http.StatusUnauthorized, wrongPassword.HTTPStatus)
	require.Equal(t, apperrors.CodeAuthenticationFailed, wrongPassword.Code)
	require.Equal(t, wrongPassword.Code, unknownEmail.Code)
	require.Equal(t, wrongPassword.Message, unknownEmail.Message)
	require.Equal(t, wrongPassword.HTTPStatus, unknownEmail.HTTPStatus)
}

func TestLogin_CaseInsensitiveEmail(t *testing.T) {
	svc := newTestService(nil)
	_, err := svc.Register(context.Background(), "a@b.com", "secret123", "recruiter")
	require.NoError(t, err)

	res, err := svc.Login(context.Background(), "A@B.COM", "secret123")
	require.NoError(t, err)
	require.Equal(t, domain.RoleRecruiter, res.User.Role)
}

func TestRefresh(t *testing.T) {
	svc := newTestService(nil)
	res, err := svc.Register(context.Background(), "a@b.com", "secret123", "applicant")
	require.NoError(t, err)

	pair, err := svc.Refresh(context.Background(), res.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)

	_, err = svc.Refresh(context.Background(), res.Tokens.AccessToken)
	de := domainErr(t, err)
	require.Equal(t, apperrors.CodeInvalidToken, de.Code)
	require.Equal(t, "Invalid Refresh Token", de.Message)

	_, err = svc.Refresh(context.Background(), "")
	require.Equal(t, http.StatusBadRequest, domainErr(t, err).HTTPStatus)
}

func TestValidateToken(t *testing.T) {
	svc := newTestService(nil)
	res, err := svc.Register(context.Background(), "a@b.com", "secret123", "admin")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(res.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, claims.Role)

	_, err = svc.ValidateToken("")
	require.Equal(t, apperrors.CodeUnauthorized, domainErr(t, err).Code)

	_, err = svc.ValidateToken(res.Tokens.RefreshToken)
	require.Equal(t, apperrors.CodeInvalidToken, domainErr(t, err).Code)
}

func TestServiceTokens(t *testing.T) {
	svc := newTestService(nil)

	_, err := svc.GenerateToken("job-service", "", "recruiter")
	require.Equal(t, apperrors.CodeBadRequest, domainErr(t, err).Code)

	token, err := svc.GenerateToken("job-service", "user-1", "recruiter")
	require.NoError(t, err)

	name, err := svc.ValidateServiceToken(token)
	require.NoError(t, err)
	require.Equal(t, "job-service", name)

	_, err = svc.ValidateServiceToken("")
	require.Equal(t, http.StatusBadRequest, domainErr(t, err).HTTPStatus)

	user, err := svc.Register(context.Background(), "a@b.com", "secret123", "admin")
	require.NoError(t, err)
	_, err = svc.ValidateServiceToken(user.Tokens.AccessToken)
	require.Equal(t, apperrors.CodeInvalidToken, domainErr(t, err).Code)
}

func TestLogout_StatelessIsNoop(t *testing.T) {
	svc := newTestService(nil)
	res, err := svc.Register(context.Background(), "a@b.com", "secret123", "applicant")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), res.Tokens.RefreshToken))
	_, err = svc.Refresh(context.Background(), res.Tokens.RefreshToken)
	require.NoError(t, err)

	err = svc.Logout(context.Background(), "bogus")
	require.Equal(t, apperrors.CodeInvalidToken, domainErr(t, err).Code)
}

func TestNotificationService_ReceivesUserCreated(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, zap.New(core)).RegisterHandlers()

	var seen []string
	dispatcher.Subscribe(events.EventUserCreated, func(_ context.Context, e events.Event) error {
		seen = append(seen, e.Key)
		return nil
	})

	svc := newTestService(dispatcher)
	res, err := svc.Register(context.Background(), "a@b.com", "secret123", "applicant")
	require.NoError(t, err)
	require.Equal(t, []string{res.User.ID}, seen)

	entries := logs.FilterMessage("user created").All()
	require.Len(t, entries, 1)
	require.Equal(t, res.User.ID, entries[0].ContextMap()["user_id"])
	require.Equal(t, "applicant", entries[0].ContextMap()["role"])
}

func TestNotificationService_RejectsForeignPayload(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, nil).RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{Type: events.EventUserCreated, Payload: "nope"})
	require.Error(t, err)
}
