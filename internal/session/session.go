// Package session manages the ephemeral proof that the device owner has
// recently authenticated.
//
// A session lives in an ephemeral storage.Store (process memory in the CLI)
// under storage.KeySession. Expiry is detected lazily: every read checks the
// idle time, destroys an expired session and reports it absent, and slides
// lastActivity forward on success. Nothing mutates session state on a timer;
// Watch only polls IsValid.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dmitrijs2005/crmkeeper/internal/cryptox"
	"github.com/dmitrijs2005/crmkeeper/internal/logging"
	"github.com/dmitrijs2005/crmkeeper/internal/storage"
)

// DefaultIdleTimeout is how long a session survives without activity.
const DefaultIdleTimeout = 30 * time.Minute

// Session is the persisted session record. Times are unix milliseconds.
type Session struct {
	UserID       string `json:"userId"`
	LoginTime    int64  `json:"loginTime"`
	LastActivity int64  `json:"lastActivity"`
	Token        string `json:"token"`
}

// Reader is the read side of Manager, used by collaborators that only need to
// know who is logged in.
type Reader interface {
	Get(ctx context.Context) (*Session, bool)
}

type Manager struct {
	mu      sync.Mutex
	store   storage.Store
	log     logging.Logger
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Manager)

// WithIdleTimeout overrides DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(store storage.Store, log logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		log:     log,
		timeout: DefaultIdleTimeout,
		now:     time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// IdleTimeout reports the configured idle timeout.
func (m *Manager) IdleTimeout() time.Duration {
	return m.timeout
}

// Create mints a session for userID, replacing any existing one. A failure to
// persist is logged and the session is still returned. The only error is a
// failing random source.
func (m *Manager) Create(ctx context.Context, userID string) (*Session, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize)
	if err != nil {
		return nil, err
	}

	now := m.now().UnixMilli()
	s := &Session{
		UserID:       userID,
		LoginTime:    now,
		LastActivity: now,
		Token:        token,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.persist(ctx, s)
	return s, nil
}

// Get returns the current session, refreshing its lastActivity. An expired
// or unreadable session is destroyed and reported absent.
func (m *Manager) Get(ctx context.Context) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.load(ctx)
	if !ok {
		return nil, false
	}

	now := m.now()
	if now.Sub(time.UnixMilli(s.LastActivity)) > m.timeout {
		m.log.Info(ctx, "session expired", "user", s.UserID)
		m.remove(ctx)
		return nil, false
	}

	s.LastActivity = now.UnixMilli()
	m.persist(ctx, s)
	return s, true
}

// UpdateActivity marks the session as active now. No-op without a session.
func (m *Manager) UpdateActivity(ctx context.Context) {
	s, ok := m.Get(ctx)
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s.LastActivity = m.now().UnixMilli()
	m.persist(ctx, s)
}

// Destroy removes the session. Idempotent.
func (m *Manager) Destroy(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.remove(ctx)
}

func (m *Manager) IsValid(ctx context.Context) bool {
	_, ok := m.Get(ctx)
	return ok
}

// Watch polls IsValid every interval and calls onExpired once the session is
// gone, then returns. It also returns when ctx is cancelled.
//
// IsValid slides lastActivity like any read, so while the poll runs at an
// interval shorter than the idle timeout the session does not expire from
// inactivity. Only a gap longer than the timeout between polls, such as a
// suspended process, ends it.
func (m *Manager) Watch(ctx context.Context, interval time.Duration, onExpired func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !m.IsValid(ctx) {
				onExpired()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) load(ctx context.Context) (*Session, bool) {
	data, ok, err := m.store.Get(ctx, storage.KeySession)
	if err != nil {
		m.log.Error(ctx, "session read failed", "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil || s.Token == "" {
		m.log.Warn(ctx, "discarding malformed session record", "err", err)
		m.remove(ctx)
		return nil, false
	}
	return &s, true
}

func (m *Manager) persist(ctx context.Context, s *Session) {
	data, err := json.Marshal(s)
	if err != nil {
		m.log.Error(ctx, "session encode failed", "err", err)
		return
	}
	if err := m.store.Set(ctx, storage.KeySession, data); err != nil {
		m.log.Error(ctx, "session persist failed", "err", err)
	}
}

func (m *Manager) remove(ctx context.Context) {
	if err := m.store.Remove(ctx, storage.KeySession); err != nil {
		m.log.Error(ctx, "session destroy failed", "err", err)
	}
}
