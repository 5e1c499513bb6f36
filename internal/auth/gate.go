// Package auth guards access to the vault: it sets and verifies the device
// password, applies the brute-force lockout policy and mints sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/crmkeeper/internal/audit"
	"github.com/dmitrijs2005/crmkeeper/internal/common"
	"github.com/dmitrijs2005/crmkeeper/internal/cryptox"
	"github.com/dmitrijs2005/crmkeeper/internal/logging"
	"github.com/dmitrijs2005/crmkeeper/internal/session"
	"github.com/dmitrijs2005/crmkeeper/internal/storage"
)

const (
	DefaultUserID            = "admin"
	DefaultMaxFailedAttempts = 5
	DefaultLockoutDuration   = 15 * time.Minute
	DefaultMinPasswordLength = 6
)

// Sessions is the part of session.Manager the gate drives.
type Sessions interface {
	Create(ctx context.Context, userID string) (*session.Session, error)
	Destroy(ctx context.Context)
	IsValid(ctx context.Context) bool
}

// Rekeyer re-encrypts stored data around a change of key material.
type Rekeyer interface {
	Rekey(ctx context.Context, commit func(ctx context.Context) error) error
}

type Gate struct {
	store    storage.Store
	sessions Sessions
	audit    audit.Recorder
	log      logging.Logger

	hasher          cryptox.PasswordHasher
	now             func() time.Time
	userID          string
	maxAttempts     int
	lockout         time.Duration
	minLength       int
	persistAttempts bool
	rekeyer         Rekeyer

	mu     sync.Mutex
	failed int
}

type Option func(*Gate)

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func WithHasher(h cryptox.PasswordHasher) Option {
	return func(g *Gate) { g.hasher = h }
}

func WithUserID(id string) Option {
	return func(g *Gate) { g.userID = id }
}

func WithMaxFailedAttempts(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

func WithLockoutDuration(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.lockout = d
		}
	}
}

func WithMinPasswordLength(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.minLength = n
		}
	}
}

// WithPersistFailedAttempts keeps the failure counter in the durable store
// instead of in the Gate, so restarting does not reset it.
func WithPersistFailedAttempts(on bool) Option {
	return func(g *Gate) { g.persistAttempts = on }
}

// WithRekeyer makes ChangePassword re-encrypt stored data under the new
// password record.
func WithRekeyer(r Rekeyer) Option {
	return func(g *Gate) { g.rekeyer = r }
}

func NewGate(store storage.Store, sessions Sessions, rec audit.Recorder, log logging.Logger, opts ...Option) *Gate {
	g := &Gate{
		store:       store,
		sessions:    sessions,
		audit:       rec,
		log:         log,
		hasher:      cryptox.SHA256Hasher{},
		now:         time.Now,
		userID:      DefaultUserID,
		maxAttempts: DefaultMaxFailedAttempts,
		lockout:     DefaultLockoutDuration,
		minLength:   DefaultMinPasswordLength,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// IsRegistered reports whether a password record exists.
func (g *Gate) IsRegistered(ctx context.Context) (bool, error) {
	_, ok, err := g.store.Get(ctx, storage.KeyPasswordHash)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (g *Gate) validate(password, confirm string) error {
	if utf8.RuneCountInString(password) < g.minLength {
		return fmt.Errorf("%w: at least %d characters", common.ErrPasswordTooShort, g.minLength)
	}
	if password != confirm {
		return common.ErrPasswordMismatch
	}
	return nil
}

// Register sets the first password and starts a session.
func (g *Gate) Register(ctx context.Context, password, confirm string) error {
	if err := g.validate(password, confirm); err != nil {
		return err
	}

	registered, err := g.IsRegistered(ctx)
	if err != nil {
		return g.hostFailure(ctx, "register", err)
	}
	if registered {
		return common.ErrAlreadyRegistered
	}

	hash, err := g.hasher.Hash(password)
	if err != nil {
		return g.hostFailure(ctx, "register", err)
	}
	if err := g.store.Set(ctx, storage.KeyPasswordHash, []byte(hash)); err != nil {
		return g.hostFailure(ctx, "register", err)
	}

	if err := g.startSession(ctx); err != nil {
		return g.hostFailure(ctx, "register", err)
	}
	g.audit.Record(ctx, audit.ActionPasswordSet, "")
	g.audit.Record(ctx, audit.ActionSessionStarted, "")
	return nil
}

// Login verifies password and starts a session. It returns
// common.ErrNotRegistered, a *LockedError or a *WrongPasswordError.
func (g *Gate) Login(ctx context.Context, password string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	stored, ok, err := g.store.Get(ctx, storage.KeyPasswordHash)
	if err != nil {
		return g.hostFailure(ctx, "login", err)
	}
	if !ok {
		return common.ErrNotRegistered
	}

	now := g.now()
	until, locked, err := g.lockUntil(ctx)
	if err != nil {
		return g.hostFailure(ctx, "login", err)
	}
	if locked {
		if now.Before(until) {
			return &LockedError{Remaining: until.Sub(now)}
		}
		// The counter is kept: the next failure locks again at once.
		g.clearLock(ctx)
	}

	if !g.hasher.Verify(password, string(stored)) {
		return g.loginFailed(ctx, now)
	}

	g.setAttempts(ctx, 0)
	g.clearLock(ctx)

	if err := g.startSession(ctx); err != nil {
		return g.hostFailure(ctx, "login", err)
	}
	g.audit.Record(ctx, audit.ActionLoginSuccess, "")
	g.audit.Record(ctx, audit.ActionSessionStarted, "")
	return nil
}

func (g *Gate) loginFailed(ctx context.Context, now time.Time) error {
	failed := g.attempts(ctx) + 1
	g.setAttempts(ctx, failed)

	if failed >= g.maxAttempts {
		until := now.Add(g.lockout)
		value := strconv.FormatInt(until.UnixMilli(), 10)
		if err := g.store.Set(ctx, storage.KeyLockUntil, []byte(value)); err != nil {
			g.log.Error(ctx, "persist lockout failed", "err", err)
		}
		g.log.Warn(ctx, "account locked", "until", until)
		g.audit.Record(ctx, audit.ActionAccountLocked, fmt.Sprintf("failed attempts: %d", failed))
		return &LockedError{Remaining: g.lockout}
	}

	left := g.maxAttempts - failed
	g.audit.Record(ctx, audit.ActionLoginFailed, fmt.Sprintf("attempts left: %d", left))
	return &WrongPasswordError{AttemptsLeft: left}
}

// ChangePassword replaces the password record after re-verifying current.
// With a Rekeyer configured the stored collections are re-encrypted under the
// new record; otherwise blobs saved under the old record stop decrypting.
func (g *Gate) ChangePassword(ctx context.Context, current, next, confirm string) error {
	if !g.sessions.IsValid(ctx) {
		return common.ErrNoValidSession
	}

	stored, ok, err := g.store.Get(ctx, storage.KeyPasswordHash)
	if err != nil {
		return g.hostFailure(ctx, "change password", err)
	}
	if !ok {
		return common.ErrNotRegistered
	}
	if !g.hasher.Verify(current, string(stored)) {
		g.audit.Record(ctx, audit.ActionPasswordChangeFailed, "current password incorrect")
		return common.ErrWrongPassword
	}

	if err := g.validate(next, confirm); err != nil {
		g.audit.Record(ctx, audit.ActionPasswordChangeFailed, err.Error())
		return err
	}

	hash, err := g.hasher.Hash(next)
	if err != nil {
		return g.hostFailure(ctx, "change password", err)
	}
	commit := func(ctx context.Context) error {
		return g.store.Set(ctx, storage.KeyPasswordHash, []byte(hash))
	}

	if g.rekeyer != nil {
		err = g.rekeyer.Rekey(ctx, commit)
	} else {
		err = commit(ctx)
	}
	if err != nil {
		g.audit.Record(ctx, audit.ActionPasswordChangeFailed, err.Error())
		return fmt.Errorf("change password: %w", err)
	}

	g.audit.Record(ctx, audit.ActionPasswordChanged, "")
	return nil
}

// Logout destroys the session. The audit entry is written afterwards, so it
// carries the unknown user.
func (g *Gate) Logout(ctx context.Context) {
	g.sessions.Destroy(ctx)
	g.audit.Record(ctx, audit.ActionSessionEnded, "")
}

func (g *Gate) startSession(ctx context.Context) error {
	_, err := g.sessions.Create(ctx, g.userID)
	return err
}

func (g *Gate) hostFailure(ctx context.Context, op string, err error) error {
	g.log.Error(ctx, op+" failed", "err", err)
	g.audit.Record(ctx, audit.ActionAuthError, fmt.Sprintf("%s: %v", op, err))
	return fmt.Errorf("%s: %w", op, err)
}

func (g *Gate) lockUntil(ctx context.Context) (time.Time, bool, error) {
	raw, ok, err := g.store.Get(ctx, storage.KeyLockUntil)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		g.log.Warn(ctx, "malformed lock deadline, clearing", "value", string(raw))
		g.clearLock(ctx)
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (g *Gate) clearLock(ctx context.Context) {
	if err := g.store.Remove(ctx, storage.KeyLockUntil); err != nil {
		g.log.Warn(ctx, "clear lockout failed", "err", err)
	}
}

func (g *Gate) attempts(ctx context.Context) int {
	if !g.persistAttempts {
		return g.failed
	}
	raw, ok, err := g.store.Get(ctx, storage.KeyFailedAttempts)
	if err != nil {
		g.log.Warn(ctx, "read failed attempts", "err", err)
		return g.failed
	}
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0
	}
	return n
}

func (g *Gate) setAttempts(ctx context.Context, n int) {
	g.failed = n
	if !g.persistAttempts {
		return
	}

	var err error
	if n == 0 {
		err = g.store.Remove(ctx, storage.KeyFailedAttempts)
	} else {
		err = g.store.Set(ctx, storage.KeyFailedAttempts, []byte(strconv.Itoa(n)))
	}
	if err != nil {
		g.log.Warn(ctx, "persist failed attempts", "err", err)
	}
}

// Remaining reports the active lockout, if any, without counting an attempt.
func (g *Gate) Remaining(ctx context.Context) (*LockedError, error) {
	until, locked, err := g.lockUntil(ctx)
	if err != nil || !locked {
		return nil, err
	}
	now := g.now()
	if !now.Before(until) {
		return nil, nil
	}
	return &LockedError{Remaining: until.Sub(now)}, nil
}

var _ Sessions = (*session.Manager)(nil)

// IsLocked reports whether err is a lockout.
func IsLocked(err error) (*LockedError, bool) {
	var le *LockedError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
