package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/dmitrijs2005/crmkeeper/internal/auth"
	"github.com/dmitrijs2005/crmkeeper/internal/common"
)

func (a *App) password(ctx context.Context, prompt string) (string, error) {
	pw, err := GetPassword(ctx, a.secret, prompt, a.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(pw)
	return string(pw), nil
}

// Register sets the master password on first run and opens a session.
func (a *App) Register(ctx context.Context) error {
	pw, err := a.password(ctx, "Enter new password")
	if err != nil {
		return err
	}
	confirm, err := a.password(ctx, "Confirm password")
	if err != nil {
		return err
	}

	if err := a.gate.Register(ctx, pw, confirm); err != nil {
		return err
	}
	a.loggedIn.Store(true)
	a.success("Password set, you are logged in")
	return a.loadData(ctx)
}

// Login verifies the password and loads the encrypted collections.
func (a *App) Login(ctx context.Context) error {
	if locked, err := a.gate.Remaining(ctx); err == nil && locked != nil {
		return locked
	}

	pw, err := a.password(ctx, "Enter password")
	if err != nil {
		return err
	}

	if err := a.gate.Login(ctx, pw); err != nil {
		var wrong *auth.WrongPasswordError
		if errors.As(err, &wrong) {
			a.failure("Wrong password, %d attempt(s) left", wrong.AttemptsLeft)
			return nil
		}
		return err
	}

	a.loggedIn.Store(true)
	a.success("Login successful")
	return a.loadData(ctx)
}

// loadData loads every collection. Collections that fail to decrypt are
// reported and stay read-only; other load failures are returned.
func (a *App) loadData(ctx context.Context) error {
	if err := a.crm.Load(ctx); err == nil {
		a.log.Debug(ctx, "data loaded", "contacts", len(a.crm.Contacts()))
		return nil
	}

	var (
		undecryptable []string
		errs          []error
	)
	unreadable := a.crm.Unreadable()
	for _, name := range slices.Sorted(maps.Keys(unreadable)) {
		if errors.Is(unreadable[name], common.ErrDecryption) {
			undecryptable = append(undecryptable, name)
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", name, unreadable[name]))
	}

	if len(undecryptable) > 0 {
		a.warn("Stored %s could not be decrypted with this session's key", strings.Join(undecryptable, ", "))
		a.hint("They are read-only until you run %s or %s", color.YellowString("discard <collection>"), color.YellowString("import <file>"))
		a.hint("Set %s to keep data readable across logins", color.YellowString("key_binding = \"password\""))
	}
	return errors.Join(errs...)
}

// Logout ends the session and clears the in-memory data.
func (a *App) Logout(ctx context.Context) error {
	if !a.loggedIn.Swap(false) {
		return nil
	}
	a.gate.Logout(ctx)
	a.crm.Reset()
	a.success("Logged out")
	return nil
}

// ChangePassword asks for the current and the new password.
func (a *App) ChangePassword(ctx context.Context) error {
	current, err := a.password(ctx, "Current password")
	if err != nil {
		return err
	}
	next, err := a.password(ctx, "New password")
	if err != nil {
		return err
	}
	confirm, err := a.password(ctx, "Confirm new password")
	if err != nil {
		return err
	}

	if err := a.gate.ChangePassword(ctx, current, next, confirm); err != nil {
		return err
	}
	a.success("Password changed")
	if !a.config.ReencryptOnPasswordChange {
		a.hint("Existing records keep their old key; enable reencrypt_on_password_change to re-key them")
	}
	return nil
}

// forceLogout drops the user back to the login prompt after the session
// vanished underneath a command or the watcher.
func (a *App) forceLogout(ctx context.Context, reason string) {
	if !a.loggedIn.Swap(false) {
		return
	}
	a.gate.Logout(ctx)
	a.crm.Reset()
	a.println()
	a.warn("%s, please log in again", reason)
}

// watchSession logs the user out when the idle timeout passes without a
// command. It returns when ctx ends.
func (a *App) watchSession(ctx context.Context) error {
	interval := a.config.LivenessInterval
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		a.sessions.Watch(ctx, interval, func() {
			a.forceLogout(ctx, "Session expired")
		})
		if ctx.Err() != nil {
			return nil
		}
	}
}
