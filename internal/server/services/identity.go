// Package services contains server-side business logic. IdentityService
// handles signup, login, token refresh and logout, and answers token and
// user lookups for internal callers.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/identity/internal/common"
	"github.com/dmitrijs2005/identity/internal/logging"
	"github.com/dmitrijs2005/identity/internal/server/auth"
	"github.com/dmitrijs2005/identity/internal/server/events"
	"github.com/dmitrijs2005/identity/internal/server/models"
	"github.com/dmitrijs2005/identity/internal/server/password"
	"github.com/google/uuid"
)

// UserInfo is the public view of a user: no email, no password hash.
type UserInfo struct {
	ID        string
	IsActive  bool
	CreatedAt time.Time
}

type IdentityService struct {
	store    CredentialStore
	tokens   TokenEngine
	hasher   PasswordHasher
	notifier Notifier
	log      logging.Logger
	now      func() time.Time

	// dummyHash is verified against when the email is unknown so that a
	// miss costs the same as a wrong password.
	dummyHash string
}

func NewIdentityService(store CredentialStore, tokens TokenEngine, hasher PasswordHasher, notifier Notifier, l logging.Logger) (*IdentityService, error) {
	dummy, err := hasher.Hash("not-a-real-password-0")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &IdentityService{
		store:     store,
		tokens:    tokens,
		hasher:    hasher,
		notifier:  notifier,
		log:       l.With("module", "identity"),
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// Signup registers a new account and returns its id. The password is hashed
// before the availability check so that taken and free emails cost the same.
func (s *IdentityService) Signup(ctx context.Context, email, plain, clientIP string) (string, error) {
	if err := ValidateEmail(email); err != nil {
		return "", err
	}
	if err := ValidatePassword(plain); err != nil {
		return "", err
	}
	email = NormalizeEmail(email)

	hash, err := s.hasher.Hash(plain)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return "", invalid("password must be at most 72 bytes")
		}
		return "", s.infra(ctx, "hash password", err)
	}

	exists, err := s.store.UserExistsByEmail(ctx, email)
	if err != nil {
		return "", s.infra(ctx, "check email", err)
	}
	if exists {
		s.audit(ctx, "", models.AuditSignup, false, clientIP)
		return "", common.ErrAlreadyExists
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", s.infra(ctx, "generate user id", err)
	}
	userID := id.String()

	if err := s.store.CreateUser(ctx, userID, email, hash); err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			s.audit(ctx, "", models.AuditSignup, false, clientIP)
			return "", common.ErrAlreadyExists
		}
		return "", s.infra(ctx, "create user", err)
	}

	s.audit(ctx, userID, models.AuditSignup, true, clientIP)
	s.notifier.Notify(ctx, events.Event{Type: events.UserRegistered, UserID: userID, Timestamp: s.now()})
	s.log.Info(ctx, "user registered", "user_id", userID)

	return userID, nil
}

// Login checks credentials and issues a token pair. Unknown email and wrong
// password return the same error after the same amount of hashing work.
func (s *IdentityService) Login(ctx context.Context, email, plain, clientIP string) (*auth.TokenPair, error) {
	user, err := s.store.FindUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Verify(plain, s.dummyHash)
			s.audit(ctx, "", models.AuditLogin, false, clientIP)
			return nil, common.ErrInvalidCredentials
		}
		return nil, s.infra(ctx, "find user", err)
	}

	if !user.IsActive {
		s.audit(ctx, user.ID, models.AuditLogin, false, clientIP)
		return nil, common.ErrAccountDisabled
	}

	if !s.hasher.Verify(plain, user.PasswordHash) {
		s.audit(ctx, user.ID, models.AuditLogin, false, clientIP)
		return nil, common.ErrInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(ctx, user.ID)
	if err != nil {
		return nil, s.infra(ctx, "issue tokens", err)
	}

	s.audit(ctx, user.ID, models.AuditLogin, true, clientIP)
	s.notifier.Notify(ctx, events.Event{Type: events.UserLogin, UserID: user.ID, Timestamp: s.now()})

	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// spent whether or not the caller receives the response.
func (s *IdentityService) Refresh(ctx context.Context, raw, clientIP string) (*auth.TokenPair, error) {
	pair, err := s.tokens.RotateRefresh(ctx, raw)
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			s.audit(ctx, "", models.AuditRefresh, false, clientIP)
			return nil, common.ErrInvalidToken
		}
		return nil, s.infra(ctx, "rotate refresh token", err)
	}

	s.audit(ctx, pair.UserID, models.AuditRefresh, true, clientIP)
	return pair, nil
}

// Logout revokes a refresh token. Unknown and already revoked tokens succeed
// so that the response does not reveal whether a token existed.
func (s *IdentityService) Logout(ctx context.Context, raw, clientIP string) error {
	userID, err := s.tokens.Revoke(ctx, raw)
	if err != nil {
		return s.infra(ctx, "revoke refresh token", err)
	}
	s.audit(ctx, userID, models.AuditLogout, true, clientIP)
	return nil
}

// ValidateAccessToken touches neither the store nor the audit log.
func (s *IdentityService) ValidateAccessToken(_ context.Context, token string) (string, error) {
	return s.tokens.VerifyAccess(token)
}

func (s *IdentityService) GetUserByID(ctx context.Context, id string) (*UserInfo, error) {
	if id == "" {
		return nil, invalid("user_id is required")
	}
	u, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, s.infra(ctx, "find user", err)
	}
	return &UserInfo{ID: u.ID, IsActive: u.IsActive, CreatedAt: u.CreatedAt}, nil
}

// SetUserActive enables or disables the account registered under email.
// Disabling also revokes every refresh token the user holds.
func (s *IdentityService) SetUserActive(ctx context.Context, email string, active bool) (string, error) {
	u, err := s.store.FindUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorNotFound
		}
		return "", s.infra(ctx, "find user", err)
	}

	if err := s.store.SetUserActive(ctx, u.ID, active); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorNotFound
		}
		return "", s.infra(ctx, "set user active", err)
	}

	if !active {
		if _, err := s.RevokeAllSessions(ctx, u.ID); err != nil {
			return "", err
		}
	}

	s.log.Info(ctx, "user status changed", "user_id", u.ID, "active", active)
	return u.ID, nil
}

// RevokeAllSessions revokes every live refresh token of userID and returns
// how many were revoked. Access tokens already issued stay valid until they
// expire.
func (s *IdentityService) RevokeAllSessions(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, invalid("user_id is required")
	}
	n, err := s.store.RevokeAllUserTokens(ctx, userID)
	if err != nil {
		return 0, s.infra(ctx, "revoke sessions", err)
	}
	s.log.Info(ctx, "sessions revoked", "user_id", userID, "count", n)
	return n, nil
}

// Ready reports whether the store can serve requests.
func (s *IdentityService) Ready(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	return nil
}

// --- helpers below ---

// infra keeps ErrUnavailable recognisable and folds everything else into
// ErrorInternal. The cause is logged here and must not reach a client.
func (s *IdentityService) infra(ctx context.Context, op string, err error) error {
	if errors.Is(err, common.ErrUnavailable) {
		s.log.Warn(ctx, op+" failed", "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Error(ctx, op+" failed", "error", err)
	return fmt.Errorf("%w: %s: %v", common.ErrorInternal, op, err)
}

func (s *IdentityService) audit(ctx context.Context, userID string, ev models.AuditEvent, success bool, ip string) {
	id, err := uuid.NewV7()
	if err != nil {
		s.log.Warn(ctx, "audit id", "error", err)
		return
	}
	entry := &models.AuditEntry{
		ID:        id.String(),
		UserID:    userID,
		EventType: ev,
		Success:   success,
		IPAddress: ip,
		CreatedAt: s.now(),
	}
	if err := s.store.InsertAuditLog(ctx, entry); err != nil {
		s.log.Warn(ctx, "audit write failed", "event", string(ev), "error", err)
	}
}
