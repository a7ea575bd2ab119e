package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"auth-serverless/internal/observability"
	"auth-serverless/internal/password"
	"auth-serverless/internal/rbac"
	"auth-serverless/internal/token"
)

const (
	defaultAccessTTL   = 15 * time.Minute
	defaultRefreshTTL  = 7 * 24 * time.Hour
	defaultMaxAttempts = 5
	defaultLockWindow  = 15 * time.Minute
)

type Service struct {
	repo         *Repository
	hasher       *password.Hasher
	tokens       *token.Issuer
	logger       *observability.Logger
	accessTTL    time.Duration
	refreshTTL   time.Duration
	maxAttempts  int
	lockDuration time.Duration

	// dummyHash is a valid hash of a throwaway value. Login attempts for
	// unknown emails verify against it so the rejection path costs the same
	// as a wrong password for a real user.
	dummyHash string
}

func NewService(repo *Repository, hasher *password.Hasher, tokens *token.Issuer, logger *observability.Logger) (*Service, error) {
	dummyHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &Service{
		repo:         repo,
		hasher:       hasher,
		tokens:       tokens,
		logger:       logger,
		accessTTL:    defaultAccessTTL,
		refreshTTL:   defaultRefreshTTL,
		maxAttempts:  defaultMaxAttempts,
		lockDuration: defaultLockWindow,
		dummyHash:    dummyHash,
	}, nil
}

func (s *Service) WithSecurityConfig(maxAttempts int, lockDuration, accessTTL, refreshTTL time.Duration) {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if lockDuration > 0 {
		s.lockDuration = lockDuration
	}
	if accessTTL > 0 {
		s.accessTTL = accessTTL
	}
	if refreshTTL > 0 {
		s.refreshTTL = refreshTTL
	}
}

// Login verifies the email/password pair and, on success, returns a fresh
// credential bundle. Unknown email and wrong password reject identically.
func (s *Service) Login(ctx context.Context, email, plaintext string) (CredentialBundle, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || plaintext == "" {
		return CredentialBundle{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	attempt, err := s.repo.GetLoginAttempt(ctx, email)
	if err != nil {
		return CredentialBundle{}, err
	}
	if attempt.LockedUntil != nil && now.Before(*attempt.LockedUntil) {
		return CredentialBundle{}, ErrLoginLocked{Until: *attempt.LockedUntil}
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Burn a verification anyway so timing cannot reveal whether the
			// email exists.
			s.hasher.Verify(plaintext, s.dummyHash)
			// The cause stays in the logs; the caller sees the same rejection
			// either way.
			s.logger.Warn("login_failed", map[string]any{"email": email, "reason": "unknown email"})
			return CredentialBundle{}, s.rejectLogin(ctx, email, now)
		}
		return CredentialBundle{}, err
	}

	if !s.hasher.Verify(plaintext, user.PasswordHash) {
		s.logger.Warn("login_failed", map[string]any{"email": email, "reason": "password mismatch"})
		return CredentialBundle{}, s.rejectLogin(ctx, email, now)
	}

	if err := s.repo.ResetLoginAttempt(ctx, email); err != nil {
		return CredentialBundle{}, err
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		// Opportunistic upgrade from a deprecated scheme; a failure here must
		// not block an otherwise valid login.
		if upgraded, err := s.hasher.Hash(plaintext); err == nil {
			_ = s.repo.UpdatePasswordHash(ctx, user.ID, upgraded)
		}
	}

	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		return CredentialBundle{}, err
	}
	user.LastLogin = &now

	return s.issueBundle(ctx, user)
}

// Register creates a new user. Duplicate usernames or emails surface as
// ErrDuplicateIdentifier.
func (s *Service) Register(ctx context.Context, username, email, fullName, plaintext string) (User, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	email = strings.TrimSpace(strings.ToLower(email))

	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	return s.repo.CreateUser(ctx, username, email, strings.TrimSpace(fullName), hash)
}

// Refresh exchanges a valid refresh token for a new credential bundle. The
// presented token is single-use: rotation revokes it and links the
// replacement.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (CredentialBundle, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return CredentialBundle{}, ErrInvalidRefreshToken
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return CredentialBundle{}, ErrInvalidRefreshToken
	}

	user, err := s.repo.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CredentialBundle{}, ErrInvalidRefreshToken
		}
		return CredentialBundle{}, err
	}

	access, accessExpiresAt, err := s.tokens.IssueAccess(user.Username, s.accessTTL)
	if err != nil {
		return CredentialBundle{}, err
	}
	newRefresh, refreshExpiresAt, err := s.tokens.IssueRefresh(user.Username, user.Email, s.refreshTTL)
	if err != nil {
		return CredentialBundle{}, err
	}

	ownerID, err := s.repo.RotateRefreshToken(ctx, refreshToken, newRefresh, refreshExpiresAt)
	if err != nil {
		return CredentialBundle{}, err
	}
	if ownerID != user.ID {
		return CredentialBundle{}, ErrInvalidRefreshToken
	}

	return CredentialBundle{
		AccessToken:  access,
		RefreshToken: newRefresh,
		User:         user.View(),
		ExpiresAt:    accessExpiresAt.Unix(),
	}, nil
}

// Logout revokes the presented refresh token. Revoking an unknown token is a
// no-op.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return ErrInvalidRefreshToken
	}

	return s.repo.RevokeRefreshToken(ctx, refreshToken)
}

// Permissions resolves the effective permission set for the subject of a
// verified access token.
func (s *Service) Permissions(ctx context.Context, username string) (rbac.PermissionSet, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rbac.PermissionSet{}, nil
		}
		return nil, err
	}

	return s.repo.GetUserPermissions(ctx, user.ID)
}

func (s *Service) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	return s.repo.ListRoles(ctx)
}

func (s *Service) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// EnsureAdmin creates the bootstrap administrator from environment values if
// it does not exist yet and grants it the admin role. All three values empty
// means no bootstrap admin is configured.
func (s *Service) EnsureAdmin(ctx context.Context, username, email, plaintext string) error {
	username = strings.TrimSpace(strings.ToLower(username))
	email = strings.TrimSpace(strings.ToLower(email))

	if username == "" && email == "" && plaintext == "" {
		return nil
	}
	if username == "" || email == "" || plaintext == "" {
		return errors.New("ADMIN_USERNAME, ADMIN_EMAIL and ADMIN_PASSWORD are required together")
	}

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		user, err = s.Register(ctx, username, email, "", plaintext)
		if err != nil && !errors.Is(err, ErrDuplicateIdentifier) {
			return err
		}
		if errors.Is(err, ErrDuplicateIdentifier) {
			// Email already taken by another account; leave it alone.
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	return s.repo.AssignRole(ctx, user.ID, "admin")
}

func (s *Service) issueBundle(ctx context.Context, user User) (CredentialBundle, error) {
	access, accessExpiresAt, err := s.tokens.IssueAccess(user.Username, s.accessTTL)
	if err != nil {
		return CredentialBundle{}, err
	}

	refresh, refreshExpiresAt, err := s.tokens.IssueRefresh(user.Username, user.Email, s.refreshTTL)
	if err != nil {
		return CredentialBundle{}, err
	}

	if err := s.repo.CreateRefreshToken(ctx, user.ID, refresh, refreshExpiresAt); err != nil {
		return CredentialBundle{}, err
	}

	return CredentialBundle{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user.View(),
		ExpiresAt:    accessExpiresAt.Unix(),
	}, nil
}

func (s *Service) rejectLogin(ctx context.Context, email string, now time.Time) error {
	lockedUntil, err := s.repo.RegisterFailedAttempt(ctx, email, s.maxAttempts, s.lockDuration, now)
	if err != nil {
		return err
	}
	if lockedUntil != nil {
		return ErrLoginLocked{Until: *lockedUntil}
	}

	return ErrInvalidCredentials
}

var ErrInvalidCredentials = errors.New("invalid credentials")

type ErrLoginLocked struct {
	Until time.Time
}

func (e ErrLoginLocked) Error() string {
	return "login temporarily locked"
}
