package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/crmkeeper/internal/audit"
	"github.com/dmitrijs2005/crmkeeper/internal/clockx"
	"github.com/dmitrijs2005/crmkeeper/internal/common"
	"github.com/dmitrijs2005/crmkeeper/internal/cryptox"
	"github.com/dmitrijs2005/crmkeeper/internal/logging"
	"github.com/dmitrijs2005/crmkeeper/internal/models"
	"github.com/dmitrijs2005/crmkeeper/internal/records"
	"github.com/dmitrijs2005/crmkeeper/internal/session"
	"github.com/dmitrijs2005/crmkeeper/internal/storage"
	"github.com/dmitrijs2005/crmkeeper/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type env struct {
	store    *memory.Store
	sessions *session.Manager
	audit    *audit.Log
	clock    *clockx.Fake
}

func newEnv() *env {
	clock := clockx.NewFake(epoch)
	store := memory.New()
	sessions := session.NewManager(memory.New(), logging.Nop(), session.WithClock(clock.Now))
	return &env{
		store:    store,
		sessions: sessions,
		audit:    audit.New(store, sessions, logging.Nop(), audit.WithClock(clock.Now)),
		clock:    clock,
	}
}

func (e *env) gate(opts ...Option) *Gate {
	opts = append([]Option{WithClock(e.clock.Now)}, opts...)
	return NewGate(e.store, e.sessions, e.audit, logging.Nop(), opts...)
}

func (e *env) actions(ctx context.Context) []string {
	var out []string
	for _, entry := range e.audit.List(ctx) {
		out = append(out, entry.Action)
	}
	return out
}

func registered(t *testing.T, e *env, opts ...Option) *Gate {
	t.Helper()
	g := e.gate(opts...)
	require.NoError(t, g.Register(context.Background(), "abc123", "abc123"))
	return g
}

func TestRegister_Validation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		password string
		confirm  string
		want     error
	}{
		{"too short", "abc12", "abc12", common.ErrPasswordTooShort},
		{"mismatch", "abc123", "abc124", common.ErrPasswordMismatch},
		{"multibyte counted as characters", "密碼密碼密", "密碼密碼密", common.ErrPasswordTooShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv()
			err := e.gate().Register(ctx, tt.password, tt.confirm)
			require.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, common.ErrValidation)

			_, ok, _ := e.store.Get(ctx, storage.KeyPasswordHash)
			assert.False(t, ok)
			assert.False(t, e.sessions.IsValid(ctx))
		})
	}
}

func TestRegister_Success(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	g := e.gate()

	ok, err := g.IsRegistered(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, g.Register(ctx, "abc123", "abc123"))

	hash, ok, err := e.store.Get(ctx, storage.KeyPasswordHash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cryptox.HashPassword("abc123"), string(hash))

	s, ok := e.sessions.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, DefaultUserID, s.UserID)

	assert.Equal(t, []string{audit.ActionSessionStarted, audit.ActionPasswordSet}, e.actions(ctx))

	ok, err = g.IsRegistered(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegister_Twice(t *testing.T) {
	e := newEnv()
	g := registered(t, e)

	err := g.Register(context.Background(), "other-pass", "other-pass")
	assert.ErrorIs(t, err, common.ErrAlreadyRegistered)
}

func TestLogin_NotRegistered(t *testing.T) {
	e := newEnv()
	err := e.gate().Login(context.Background(), "abc123")
	assert.ErrorIs(t, err, common.ErrNotRegistered)
}

func TestLogin_Success(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	g := registered(t, e)
	g.Logout(ctx)

	require.NoError(t, g.Login(ctx, "abc123"))
	assert.True(t, e.sessions.IsValid(ctx))
	assert.Equal(t, audit.ActionSessionStarted, e.actions(ctx)[0])
	assert.Equal(t, audit.ActionLoginSuccess, e.actions(ctx)[1])
}

func TestLogin_WrongPassword(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	g := registered(t, e)
	g.Logout(ctx)

	err := g.Login(ctx, "nope!!")
	var wrong *WrongPasswordError
	require.ErrorAs(t, err, &wrong)
	assert.Equal(t, 4, wrong.AttemptsLeft)
	assert.False(t, e.sessions.IsValid(ctx))

	entries := e.audit.List(ctx)
	assert.Equal(t, audit.ActionLoginFailed, entries[0].Action)
	assert.Equal(t, "attempts left: 4", entries[0].Details)
}

func TestLogin_Lockout(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	g := registered(t, e)
	g.Logout(ctx)

	for i := 1; i <= 4; i++ {
		var wrong *WrongPasswordError
		require.ErrorAs(t, g.Login(ctx, "wrong-pass"), &wrong)
		assert.Equal(t, 5-i, wrong.AttemptsLeft)
	}

	err := g.Login(ctx, "wrong-pass")
	locked, ok := IsLocked(err)
	require.True(t, ok)
	assert.Equal(t, int64(15), locked.Minutes())
	assert.Equal(t, audit.ActionAccountLocked, e.actions(ctx)[0])

	raw, ok, err := e.store.Get(ctx, storage.KeyLockUntil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1709288100000", string(raw))

	// sixth attempt, correct password
	err = g.Login(ctx, "abc123")
	require.ErrorIs(t, err, common.ErrLocked)
	assert.False(t, e.sessions.IsValid(ctx))

	e.clock.Advance(14*time.Minute + 30*time.Second)
	locked, ok = IsLocked(g.Login(ctx, "abc123"))
	require.True(t, ok)
	assert.Equal(t, int64(1), locked.Minutes())

	e.clock.Advance(30 * time.Second)
	require.NoError(t, g.Login(ctx, "abc123"))
	assert.True(t, e.sessions.IsValid(ctx))

	_, ok, err = e.store.Get(ctx, storage.KeyLockUntil)
	require.NoError(t, err)
	assert.False(t, ok)

	g.Logout(ctx)
	var wrong *WrongPasswordError
	require.ErrorAs(t, g.Login(ctx, "wrong-pass"), &wrong)
	assert.Equal(t, 4, wrong.AttemptsLeft)
}

func TestLogin_ElapsedLockRelocksOnNextFailure(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	g := registered(t, e)
	g.Logout(ctx)

	for i := 0; i < 5; i++ {
		_ = g.Login(ctx, "wrong-pass")
	}
	e.clock.Advance(16 * time.Minute)

	locked, ok := IsLocked(g.Login(ctx, "wrong-pass"))
	require.True(t, ok, "counter survives the elapsed lock")
	assert.Equal(t, int64(15), locked.Minutes())

	e.clock.Advance(16 * time.Minute)
	require.NoError(t, g.Login(ctx, "abc123"))
	g.Logout(ctx)

	var wrong *WrongPasswordError
	require.ErrorAs(t, g.Login(ctx, "wrong-pass"), &wrong)
	assert.Equal(t, 4, wrong.AttemptsLeft)
}

func TestLogin_LockSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	g := registered(t, e)
	g.Logout(ctx)
	for i := 0; i < 5; i++ {
		_ = g.Login(ctx, "wrong-pass")
	}

	restarted := e.gate()
	assert.ErrorIs(t, restarted.Login(ctx, "abc123"), common.ErrLocked)

	locked, err := restarted.Remaining(ctx)
	require.NoError(t, err)
	require.NotNil(t, locked)
	assert.Equal(t, int64(15), locked.Minutes())
}

func TestLogin_FailedAttemptsVolatileByDefault(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	g := registered(t, e)
	g.Logout(ctx)
	for i := 0; i < 3; i++ {
		_ = g.Login(ctx, "wrong-pass")
	}

	var wrong *WrongPasswordError
	require.ErrorAs(t, e.gate().Login(ctx, "wrong-pass"), &wrong)
	assert.Equal(t, 4, wrong.AttemptsLeft)

	_, ok, err := e.store.Get(ctx, storage.KeyFailedAttempts)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogin_PersistFailedAttempts(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	g := registered(t, e, WithPersistFailedAttempts(true))
	g.Logout(ctx)
	for i := 0; i < 3; i++ {
		_ = g.Login(ctx, "wrong-pass")
	}

	restarted := e.gate(WithPersistFailedAttempts(true))
	var wrong *WrongPasswordError
	require.ErrorAs(t, restarted.Login(ctx, "wrong-pass"), &wrong)
	assert.Equal(t, 1, wrong.AttemptsLeft)

	require.NoError(t, restarted.Login(ctx, "abc123"))
	_, ok, err := e.store.Get(ctx, storage.KeyFailedAttempts)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogin_CustomLimits(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	g := registered(t, e, WithMaxFailedAttempts(2), WithLockoutDuration(time.Minute))
	g.Logout(ctx)

	var wrong *WrongPasswordError
	require.ErrorAs(t, g.Login(ctx, "wrong-pass"), &wrong)
	assert.Equal(t, 1, wrong.AttemptsLeft)

	locked, ok := IsLocked(g.Login(ctx, "wrong-pass"))
	require.True(t, ok)
	assert.Equal(t, int64(1), locked.Minutes())
}

func TestLogin_StorageFailure(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	boom := errors.New("disk gone")
	g := NewGate(brokenStore{err: boom}, e.sessions, e.audit, logging.Nop())

	err := g.Login(ctx, "abc123")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, audit.ActionAuthError, e.actions(ctx)[0])
}

type brokenStore struct{ err error }

func (b brokenStore) Get(context.Context, storage.Key) ([]byte, bool, error) {
	return nil, false, b.err
}
func (b brokenStore) Set(context.Context, storage.Key, []byte) error { return b.err }
func (b brokenStore) Remove(context.Context, storage.Key) error      { return b.err }

func TestLogout(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	g := registered(t, e)

	g.Logout(ctx)
	assert.False(t, e.sessions.IsValid(ctx))

	entries := e.audit.List(ctx)
	assert.Equal(t, audit.ActionSessionEnded, entries[0].Action)
	assert.Equal(t, audit.UnknownUser, entries[0].UserID)

	g.Logout(ctx)
}

func TestChangePassword_RequiresSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	g := registered(t, e)
	g.Logout(ctx)

	err := g.ChangePassword(ctx, "abc123", "n3wpass", "n3wpass")
	assert.ErrorIs(t, err, common.ErrNoValidSession)
}

func TestChangePassword_Failures(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	g := registered(t, e)

	assert.ErrorIs(t, g.ChangePassword(ctx, "abc123", "short", "short"), common.ErrPasswordTooShort)
	assert.ErrorIs(t, g.ChangePassword(ctx, "abc123", "n3wpass", "n3wpasz"), common.ErrPasswordMismatch)
	assert.ErrorIs(t, g.ChangePassword(ctx, "wrong-pass", "n3wpass", "n3wpass"), common.ErrWrongPassword)

	err := g.ChangePassword(ctx, "wrong-pass", "short", "other")
	assert.ErrorIs(t, err, common.ErrWrongPassword, "current password is checked first")
	assert.NotErrorIs(t, err, common.ErrValidation)
	assert.Equal(t, audit.ActionPasswordChangeFailed, e.actions(ctx)[0])

	hash, _, err := e.store.Get(ctx, storage.KeyPasswordHash)
	require.NoError(t, err)
	assert.Equal(t, cryptox.HashPassword("abc123"), string(hash))
}

func TestChangePassword_Success(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	g := registered(t, e)

	require.NoError(t, g.ChangePassword(ctx, "abc123", "n3wpass", "n3wpass"))
	assert.Equal(t, audit.ActionPasswordChanged, e.actions(ctx)[0])

	g.Logout(ctx)
	require.Error(t, g.Login(ctx, "abc123"))
	require.NoError(t, g.Login(ctx, "n3wpass"))
}

func TestArgon2Hasher(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	g := registered(t, e, WithHasher(cryptox.Argon2Hasher{}))

	hash, _, err := e.store.Get(ctx, storage.KeyPasswordHash)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(hash), "argon2id$"))

	g.Logout(ctx)
	require.NoError(t, g.Login(ctx, "abc123"))
}

func contactsFixture() []models.Contact {
	return []models.Contact{{ID: "1", Name: "王"}}
}

func TestEndToEnd_SessionBoundKeys(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	vault := records.NewVault(e.store, records.NewKeySource(e.store, e.sessions, records.BindSession), logging.Nop())
	g := registered(t, e)

	require.NoError(t, vault.Contacts.Save(ctx, contactsFixture()))

	g.Logout(ctx)
	require.NoError(t, g.Login(ctx, "abc123"))

	_, err := vault.Contacts.Load(ctx)
	assert.ErrorIs(t, err, common.ErrDecryption)
}

func TestEndToEnd_PasswordBoundKeys(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	vault := records.NewVault(e.store, records.NewKeySource(e.store, e.sessions, records.BindPassword), logging.Nop())
	g := registered(t, e)

	require.NoError(t, vault.Contacts.Save(ctx, contactsFixture()))

	g.Logout(ctx)
	require.NoError(t, g.Login(ctx, "abc123"))

	got, err := vault.Contacts.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, contactsFixture(), got)
}

func TestChangePassword_WithoutRekeyLosesData(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	vault := records.NewVault(e.store, records.NewKeySource(e.store, e.sessions, records.BindSession), logging.Nop())
	g := registered(t, e)
	require.NoError(t, vault.Contacts.Save(ctx, contactsFixture()))

	require.NoError(t, g.ChangePassword(ctx, "abc123", "n3wpass", "n3wpass"))

	_, err := vault.Contacts.Load(ctx)
	assert.ErrorIs(t, err, common.ErrDecryption)
}

func TestChangePassword_WithRekey(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	vault := records.NewVault(e.store, records.NewKeySource(e.store, e.sessions, records.BindSession), logging.Nop())
	g := registered(t, e, WithRekeyer(vault))
	require.NoError(t, vault.Contacts.Save(ctx, contactsFixture()))

	require.NoError(t, g.ChangePassword(ctx, "abc123", "n3wpass", "n3wpass"))

	got, err := vault.Contacts.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, contactsFixture(), got)
}
