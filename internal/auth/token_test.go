package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ats-auth/internal/domain"
)

func newTestTokenManager() *TokenManager {
	return NewTokenManager(TokenConfig{AccessSecret: "access-secret", RefreshSecret: "refresh-secret"})
}

func testUser() *domain.User {
	return &domain.User{ID: "user-1", Email: "a@b.com", Role: domain.RoleApplicant}
}

func TestIssueTokenPair_AccessRoundTrip(t *testing.T) {
	tm := newTestTokenManager()
	user := testUser()

	pair, err := tm.IssueTokenPair(user)
	require.NoError(t, err)

	claims, err := tm.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.Email, claims.Email)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, user.Role, claims.Role)

	refresh, err := tm.VerifyRefresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, user.Email, refresh.Email)
}

func TestIssueTokenPair_Lifetimes(t *testing.T) {
	tm := newTestTokenManager()
	pair, err := tm.IssueTokenPair(testUser())
	require.NoError(t, err)

	access, err := tm.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), access.ExpiresAt.Time, 5*time.Second)

	refresh, err := tm.VerifyRefresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(7*24*time.Hour), refresh.ExpiresAt.Time, 5*time.Second)
}

func TestSecretIsolation(t *testing.T) {
	tm := newTestTokenManager()
	pair, err := tm.IssueTokenPair(testUser())
	require.NoError(t, err)

	_, err = tm.VerifyAccess(pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidAccessToken)

	_, err = tm.VerifyRefresh(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestVerifyAccess_CollapsesReasons(t *testing.T) {
	tm := newTestTokenManager()
	expired, err := Sign(Claims{UserID: "u", Type: domain.TokenTypeAccess}, tm.accessSecret, -time.Second)
	require.NoError(t, err)

	for _, token := range []string{expired, "garbage", ""} {
		_, err := tm.VerifyAccess(token)
		require.ErrorIs(t, err, ErrInvalidAccessToken)
	}
}

func TestRefresh_IssuesNewPair(t *testing.T) {
	tm := newTestTokenManager()
	pair, err := tm.IssueTokenPair(testUser())
	require.NoError(t, err)

	next, err := tm.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.AccessToken, next.AccessToken)

	claims, err := tm.VerifyAccess(next.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "a@b.com", claims.Email)
	require.Equal(t, domain.RoleApplicant, claims.Role)

	// Stateless by default: the old refresh token keeps working.
	_, err = tm.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	tm := newTestTokenManager()
	pair, err := tm.IssueTokenPair(testUser())
	require.NoError(t, err)

	_, err = tm.Refresh(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestServiceToken_RoundTrip(t *testing.T) {
	tm := newTestTokenManager()
	token, err := tm.GenerateServiceToken("job-service")
	require.NoError(t, err)

	claims, err := tm.VerifyServiceToken(token)
	require.NoError(t, err)
	require.Equal(t, "job-service", claims.Service)
	require.Equal(t, domain.TokenTypeService, claims.Type)
	require.WithinDuration(t, time.Now().Add(24*time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestTypeDiscriminator(t *testing.T) {
	tm := newTestTokenManager()
	serviceToken, err := tm.GenerateServiceToken("job-service")
	require.NoError(t, err)
	pair, err := tm.IssueTokenPair(testUser())
	require.NoError(t, err)

	_, err = tm.VerifyAccess(serviceToken)
	require.ErrorIs(t, err, ErrInvalidAccessToken)

	_, err = tm.VerifyServiceToken(pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidServiceToken)

	// Same secret, no type tag.
	untyped, err := Sign(Claims{Service: "job-service"}, tm.accessSecret, time.Hour)
	require.NoError(t, err)
	_, err = tm.VerifyServiceToken(untyped)
	require.ErrorIs(t, err, ErrInvalidServiceToken)
}

func TestRefresh_WithDenylistRotates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tm := newTestTokenManager().WithDenylist(NewRedisDenylist(client))

	ctx := context.Background()
	pair, err := tm.IssueTokenPair(testUser())
	require.NoError(t, err)

	next, err := tm.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	_, err = tm.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	require.NoError(t, tm.Revoke(ctx, next.RefreshToken))
	_, err = tm.VerifyRefresh(ctx, next.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	claims, err := Verify(next.RefreshToken, tm.refreshSecret)
	require.NoError(t, err)
	require.True(t, mr.Exists(denylistPrefix+claims.ID))
	require.Greater(t, mr.TTL(denylistPrefix+claims.ID), 6*24*time.Hour)
}

func TestRefresh_ConcurrentRotationHasOneWinner(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tm := newTestTokenManager().WithDenylist(NewRedisDenylist(client))
	pair, err := tm.IssueTokenPair(testUser())
	require.NoError(t, err)

	const callers = 20
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := tm.Refresh(context.Background(), pair.RefreshToken); err == nil {
				succeeded.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrInvalidRefreshToken)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 1, succeeded.Load())
}

// flakyDenylist fails the first claim and records every claimed id.
type flakyDenylist struct {
	mu      sync.Mutex
	failed  bool
	claimed map[string]bool
}

func (d *flakyDenylist) Revoke(_ context.Context, tokenID string, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.failed {
		d.failed = true
		return false, errors.New("connection reset")
	}
	if d.claimed[tokenID] {
		return false, nil
	}
	d.claimed[tokenID] = true
	return true, nil
}

func (d *flakyDenylist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.claimed[tokenID], nil
}

func TestRefresh_ClaimFailureLeavesTokenUsable(t *testing.T) {
	d := &flakyDenylist{claimed: map[string]bool{}}
	tm := newTestTokenManager().WithDenylist(d)
	ctx := context.Background()

	pair, err := tm.IssueTokenPair(testUser())
	require.NoError(t, err)

	next, err := tm.Refresh(ctx, pair.RefreshToken)
	require.Error(t, err)
	require.Empty(t, next.AccessToken)
	require.Empty(t, next.RefreshToken)

	next, err = tm.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, next.RefreshToken)

	_, err = tm.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRedisDenylist_RevokeClaimsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	d := NewRedisDenylist(client)
	ctx := context.Background()

	won, err := d.Revoke(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	require.True(t, won)

	won, err = d.Revoke(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	require.False(t, won)

	revoked, err := d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestVerifyRefresh_DenylistUnavailableFailsClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tm := newTestTokenManager().WithDenylist(NewRedisDenylist(client))
	pair, err := tm.IssueTokenPair(testUser())
	require.NoError(t, err)

	mr.Close()
	_, err = tm.VerifyRefresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret123", 4)
	require.NoError(t, err)
	require.NotEqual(t, "secret123", hash)
	require.NoError(t, ComparePassword(hash, "secret123"))
	require.Error(t, ComparePassword(hash, "wrong"))
}
