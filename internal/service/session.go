package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkurbatov/zayavki-bot/internal/domain"
	"github.com/dkurbatov/zayavki-bot/internal/ops"
	"github.com/dkurbatov/zayavki-bot/internal/vault"
)

// SessionManager owns the authenticated-session lifecycle for every user:
// login, expiry detection through 401s, and re-authentication from the
// encrypted password.
type SessionManager struct {
	store   domain.UserStore
	remote  domain.RemoteClient
	vault   *vault.Vault
	metrics *ops.Metrics
	now     func() time.Time
}

// NewSessionManager creates a SessionManager. metrics may be nil.
func NewSessionManager(store domain.UserStore, remote domain.RemoteClient, v *vault.Vault, metrics *ops.Metrics) *SessionManager {
	return &SessionManager{
		store:   store,
		remote:  remote,
		vault:   v,
		metrics: metrics,
		now:     time.Now,
	}
}

// Authenticate performs a login exchange and returns the resulting session.
func (m *SessionManager) Authenticate(ctx context.Context, email, password string) (domain.Session, error) {
	token, err := m.remote.Login(ctx, email, password)
	if err != nil {
		return domain.Session{}, err
	}
	return domain.NewSession(token, expiresHint(token)), nil
}

// WithSession runs fn with the user's bearer token. When the remote reports
// unauthorized, it re-authenticates with the stored password exactly once and
// retries fn once; a second unauthorized surfaces as an AuthError with the
// session left unauthenticated. A user without a session is authenticated
// first (the restore path), which does not consume the retry.
func (m *SessionManager) WithSession(ctx context.Context, chatID int64, fn func(ctx context.Context, token string) error) error {
	user, ok := m.store.Get(chatID)
	if !ok {
		return domain.ErrNotRegistered
	}

	token := user.Session.Token()
	if !user.Session.Authenticated() {
		restored, err := m.reauthenticate(ctx, chatID)
		if err != nil {
			return err
		}
		token = restored
	}

	err := fn(ctx, token)
	if !errors.Is(err, domain.ErrUnauthorized) {
		return err
	}

	token, rerr := m.reauthenticate(ctx, chatID)
	if rerr != nil {
		return rerr
	}

	err = fn(ctx, token)
	if errors.Is(err, domain.ErrUnauthorized) {
		// A fresh token rejected immediately: treat as bad credentials,
		// never loop.
		m.dropSession(ctx, chatID)
		return &domain.AuthError{Kind: domain.AuthInvalidCredentials, Err: err}
	}
	return err
}

// RestoreAll authenticates every stored user that has no session. Used at
// startup; per-user failures are logged and never abort the batch.
func (m *SessionManager) RestoreAll(ctx context.Context) {
	var ids []int64
	m.store.ForEach(func(user domain.User) bool {
		if !user.Session.Authenticated() {
			ids = append(ids, user.ChatID)
		}
		return true
	})

	restored := 0
	for _, chatID := range ids {
		if _, err := m.reauthenticate(ctx, chatID); err != nil {
			slog.Warn("session restore failed", "chat_id", chatID, "error", err)
			continue
		}
		restored++
	}
	if len(ids) > 0 {
		slog.Info("session restore finished", "attempted", len(ids), "restored", restored)
	}
}

// reauthenticate decrypts the user's password, performs one login and stores
// the new session. On any failure the session is left unauthenticated.
func (m *SessionManager) reauthenticate(ctx context.Context, chatID int64) (string, error) {
	user, ok := m.store.Get(chatID)
	if !ok {
		return "", domain.ErrNotRegistered
	}

	password, err := m.vault.Decrypt(user.EncryptedPassword)
	if err != nil {
		m.dropSession(ctx, chatID)
		return "", fmt.Errorf("recover password for %d: %w", chatID, err)
	}

	session, err := m.Authenticate(ctx, user.Email, password)
	if err != nil {
		m.dropSession(ctx, chatID)
		return "", err
	}

	now := m.now()
	if err := m.store.Update(ctx, chatID, func(u *domain.User) error {
		u.Session = session
		u.LastLogin = &now
		return nil
	}); err != nil {
		slog.Warn("persist refreshed session", "chat_id", chatID, "error", err)
	}

	if m.metrics != nil {
		m.metrics.Reauths.Inc()
	}
	return session.Token(), nil
}

func (m *SessionManager) dropSession(ctx context.Context, chatID int64) {
	if err := m.store.Update(ctx, chatID, func(u *domain.User) error {
		u.Session = domain.Session{}
		return nil
	}); err != nil && !errors.Is(err, domain.ErrNotRegistered) {
		slog.Warn("drop session", "chat_id", chatID, "error", err)
	}
}

// expiresHint extracts the exp claim when the bearer token happens to be a
// JWT. The token is not verified: the hint is advisory, the CRM remains the
// authority on expiry.
func expiresHint(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
