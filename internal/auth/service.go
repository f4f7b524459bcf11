package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/gracechapelhq/gracechapel-backend/internal/users"
	pkgauth "github.com/gracechapelhq/gracechapel-backend/pkg/auth"
	"github.com/gracechapelhq/gracechapel-backend/pkg/auth/session"
	"github.com/gracechapelhq/gracechapel-backend/pkg/config"
	"github.com/gracechapelhq/gracechapel-backend/pkg/db/models"
	pkgerrors "github.com/gracechapelhq/gracechapel-backend/pkg/errors"
	"github.com/gracechapelhq/gracechapel-backend/pkg/logger"
	"github.com/gracechapelhq/gracechapel-backend/pkg/security"
)

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string) (string, error)
	Revoke(ctx context.Context, accessID string) error
}

// LoginResult carries the minted token and the authenticated user.
type LoginResult struct {
	AccessToken string       `json:"access_token"`
	User        *models.User `json:"user"`
}

// Service authenticates dashboard users and manages their sessions.
type Service interface {
	Login(ctx context.Context, email, password, clientIP string) (*LoginResult, error)
	Logout(ctx context.Context, accessID string) error
}

// ServiceParams wires the auth dependencies. RateLimiter is optional.
type ServiceParams struct {
	Users       users.Repository
	Sessions    sessionManager
	RateLimiter rateLimiter
	JWT         config.JWTConfig
	RateLimit   config.AuthRateLimitConfig
	Logger      *logger.Logger
}

type service struct {
	users       users.Repository
	sessions    sessionManager
	rateLimiter rateLimiter
	jwtCfg      config.JWTConfig
	limits      config.AuthRateLimitConfig
	logg        *logger.Logger
	now         func() time.Time
}

// NewService validates dependencies and returns the auth service.
func NewService(params ServiceParams) (Service, error) {
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repo required")
	}
	if params.Sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session manager required")
	}
	return &service{
		users:       params.Users,
		sessions:    params.Sessions,
		rateLimiter: params.RateLimiter,
		jwtCfg:      params.JWT,
		limits:      params.RateLimit,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

// Login verifies credentials and mints a session-backed access token. Failed
// lookups and bad passwords return the same unauthorized error so the
// endpoint does not leak which emails exist.
func (s *service) Login(ctx context.Context, email, password, clientIP string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and password are required")
	}

	if err := s.checkRateLimits(ctx, email, clientIP); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}

	valid, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}

	accessID := session.NewAccessID()
	token, err := pkgauth.MintAccessToken(s.jwtCfg, s.now(), pkgauth.AccessTokenPayload{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		JTI:    accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}

	if _, err := s.sessions.Generate(ctx, accessID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create session")
	}

	if err := s.users.TouchLastLogin(ctx, user.ID, s.now().UTC()); err != nil && s.logg != nil {
		s.logg.Error(ctx, "update last login", err)
	}

	return &LoginResult{AccessToken: token, User: user}, nil
}

// Logout revokes the server-side session; the JWT dies with it.
func (s *service) Logout(ctx context.Context, accessID string) error {
	if accessID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	if err := s.sessions.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) checkRateLimits(ctx context.Context, email, clientIP string) error {
	if s.rateLimiter == nil {
		return nil
	}
	allowed, _, err := s.rateLimiter.FixedWindowAllow(ctx, fmt.Sprintf("login:email:%s", email), int64(s.limits.LoginEmailLimit), s.limits.LoginWindow)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limit check")
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many login attempts, try again later")
	}
	if clientIP != "" {
		allowed, _, err = s.rateLimiter.FixedWindowAllow(ctx, fmt.Sprintf("login:ip:%s", clientIP), int64(s.limits.LoginIPLimit), s.limits.LoginWindow)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limit check")
		}
		if !allowed {
			return pkgerrors.New(pkgerrors.CodeRateLimit, "too many login attempts, try again later")
		}
	}
	return nil
}
