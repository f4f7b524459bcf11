package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gracechapelhq/gracechapel-backend/internal/users"
	pkgauth "github.com/gracechapelhq/gracechapel-backend/pkg/auth"
	"github.com/gracechapelhq/gracechapel-backend/pkg/config"
	"github.com/gracechapelhq/gracechapel-backend/pkg/db/models"
	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
	pkgerrors "github.com/gracechapelhq/gracechapel-backend/pkg/errors"
	"github.com/gracechapelhq/gracechapel-backend/pkg/security"
)

type stubUsersRepo struct {
	byEmail    map[string]*models.User
	lastLogins []uuid.UUID
}

func (s *stubUsersRepo) WithTx(tx *gorm.DB) users.Repository { return s }

func (s *stubUsersRepo) Create(ctx context.Context, user *models.User) error { return nil }

func (s *stubUsersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return nil, nil
}

func (s *stubUsersRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.byEmail[email], nil
}

func (s *stubUsersRepo) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.lastLogins = append(s.lastLogins, id)
	return nil
}

type stubSessionManager struct {
	generated []string
	revoked   []string
}

func (s *stubSessionManager) Generate(ctx context.Context, accessID string) (string, error) {
	s.generated = append(s.generated, accessID)
	return "refresh-" + accessID, nil
}

func (s *stubSessionManager) Revoke(ctx context.Context, accessID string) error {
	s.revoked = append(s.revoked, accessID)
	return nil
}

type stubRateLimiter struct {
	denyScopes map[string]bool
	calls      []string
}

func (s *stubRateLimiter) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	s.calls = append(s.calls, scope)
	if s.denyScopes[scope] {
		return false, 0, nil
	}
	return true, 1, nil
}

var _ users.Repository = (*stubUsersRepo)(nil)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "gracechapel-test",
		ExpirationMinutes: 15,
	}
}

func testPasswordConfig() config.PasswordConfig {
	return config.PasswordConfig{
		ArgonMemoryKB:    8192,
		ArgonTime:        1,
		ArgonParallelism: 1,
	}
}

func seedUser(t *testing.T, repo *stubUsersRepo, email, password string, role enums.UserRole) *models.User {
	t.Helper()
	hash, err := security.HashPassword(password, testPasswordConfig())
	require.NoError(t, err)
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if repo.byEmail == nil {
		repo.byEmail = map[string]*models.User{}
	}
	repo.byEmail[email] = user
	return user
}

func newAuthService(t *testing.T, repo *stubUsersRepo, sessions *stubSessionManager, limiter *stubRateLimiter) Service {
	t.Helper()
	params := ServiceParams{
		Users:    repo,
		Sessions: sessions,
		JWT:      testJWTConfig(),
		RateLimit: config.AuthRateLimitConfig{
			LoginWindow:     time.Minute,
			LoginEmailLimit: 5,
			LoginIPLimit:    20,
		},
	}
	if limiter != nil {
		params.RateLimiter = limiter
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return svc
}

func TestLoginSuccess(t *testing.T) {
	repo := &stubUsersRepo{}
	user := seedUser(t, repo, "admin@gracechapel.org", "correct horse", enums.UserRoleAdmin)
	sessions := &stubSessionManager{}
	svc := newAuthService(t, repo, sessions, nil)

	result, err := svc.Login(context.Background(), "admin@gracechapel.org", "correct horse", "10.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, result.AccessToken)
	assert.Equal(t, user.ID, result.User.ID)

	claims, err := pkgauth.ParseAccessToken(testJWTConfig(), result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.True(t, claims.IsAdmin())

	require.Len(t, sessions.generated, 1)
	assert.Equal(t, claims.ID, sessions.generated[0])
	assert.Equal(t, []uuid.UUID{user.ID}, repo.lastLogins)
}

func TestLoginWrongPassword(t *testing.T) {
	repo := &stubUsersRepo{}
	seedUser(t, repo, "admin@gracechapel.org", "correct horse", enums.UserRoleAdmin)
	svc := newAuthService(t, repo, &stubSessionManager{}, nil)

	_, err := svc.Login(context.Background(), "admin@gracechapel.org", "battery staple", "")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.As(err).Code())
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	repo := &stubUsersRepo{}
	seedUser(t, repo, "admin@gracechapel.org", "correct horse", enums.UserRoleAdmin)
	svc := newAuthService(t, repo, &stubSessionManager{}, nil)

	_, wrongPass := svc.Login(context.Background(), "admin@gracechapel.org", "nope", "")
	_, unknown := svc.Login(context.Background(), "ghost@gracechapel.org", "nope", "")
	require.Error(t, wrongPass)
	require.Error(t, unknown)
	assert.Equal(t, wrongPass.Error(), unknown.Error())
}

func TestLoginMissingFields(t *testing.T) {
	svc := newAuthService(t, &stubUsersRepo{}, &stubSessionManager{}, nil)

	_, err := svc.Login(context.Background(), "", "secret", "")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestLoginRateLimited(t *testing.T) {
	repo := &stubUsersRepo{}
	seedUser(t, repo, "admin@gracechapel.org", "correct horse", enums.UserRoleAdmin)
	limiter := &stubRateLimiter{denyScopes: map[string]bool{
		"login:email:admin@gracechapel.org": true,
	}}
	svc := newAuthService(t, repo, &stubSessionManager{}, limiter)

	_, err := svc.Login(context.Background(), "admin@gracechapel.org", "correct horse", "10.0.0.1")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeRateLimit, pkgerrors.As(err).Code())
}

func TestLogoutRevokesSession(t *testing.T) {
	sessions := &stubSessionManager{}
	svc := newAuthService(t, &stubUsersRepo{}, sessions, nil)

	require.NoError(t, svc.Logout(context.Background(), "access-123"))
	assert.Equal(t, []string{"access-123"}, sessions.revoked)

	err := svc.Logout(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}
