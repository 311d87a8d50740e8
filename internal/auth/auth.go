// Package auth implements account registration and timed login sessions.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kilupskalvis/blockcast/internal/models"
	"github.com/kilupskalvis/blockcast/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// DefaultSessionTTL is how long a login stays valid.
const DefaultSessionTTL = 30 * time.Minute

var (
	ErrMissingCredentials = errors.New("username and password are required")
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidSession     = errors.New("invalid session")
	ErrSessionExpired     = errors.New("session expired")
)

// Clock abstracts time retrieval so session expiry is deterministic in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store is the persistence the manager needs.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, username string) (*models.User, error)
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Config tunes a Manager. Zero values select defaults.
type Config struct {
	SessionTTL time.Duration
	Clock      Clock
	BcryptCost int
	Logger     *slog.Logger
}

// Manager registers users and issues, checks and revokes sessions.
type Manager struct {
	store  Store
	ttl    time.Duration
	clock  Clock
	cost   int
	logger *slog.Logger
}

// NewManager creates a Manager over st.
func NewManager(st Store, cfg Config) *Manager {
	m := &Manager{
		store:  st,
		ttl:    cfg.SessionTTL,
		clock:  cfg.Clock,
		cost:   cfg.BcryptCost,
		logger: cfg.Logger,
	}
	if m.ttl <= 0 {
		m.ttl = DefaultSessionTTL
	}
	if m.clock == nil {
		m.clock = realClock{}
	}
	if m.cost == 0 {
		m.cost = bcrypt.DefaultCost
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// TTL returns the session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Register creates an account.
func (m *Manager) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{Username: username, PasswordHash: string(hash), CreatedAt: m.clock.Now().UTC()}
	if err := m.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	m.logger.Info("user registered", "username", username)
	return u, nil
}

// Login checks credentials and opens a session. The raw token is returned
// once; only its hash is stored.
func (m *Manager) Login(ctx context.Context, username, password string) (*models.Session, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, "", ErrMissingCredentials
	}

	u, err := m.store.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	raw := "bc_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	now := m.clock.Now().UTC()
	sess := &models.Session{
		TokenHash: HashToken(raw),
		Username:  u.Username,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, "", err
	}

	m.logger.Info("user logged in", "username", u.Username, "expires_at", sess.ExpiresAt)
	return sess, raw, nil
}

// Authenticate resolves a raw token to its session. Expired sessions are
// removed and rejected with ErrSessionExpired.
func (m *Manager) Authenticate(ctx context.Context, rawToken string) (*models.Session, error) {
	if rawToken == "" {
		return nil, ErrInvalidSession
	}
	hash := HashToken(rawToken)
	sess, err := m.store.GetSession(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}

	if sess.Expired(m.clock.Now()) {
		if err := m.store.DeleteSession(ctx, hash); err != nil {
			m.logger.Warn("failed to delete expired session", "username", sess.Username, "error", err)
		}
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Logout revokes a session. Unknown tokens are ignored.
func (m *Manager) Logout(ctx context.Context, rawToken string) error {
	return m.store.DeleteSession(ctx, HashToken(rawToken))
}

// Sweep deletes every expired session.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpiredSessions(ctx, m.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Debug("expired sessions removed", "count", n)
	}
	return n, nil
}

// HashToken returns the SHA256 hex digest of a raw token string.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
