package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/crmkeeper/internal/auth"
	"github.com/dmitrijs2005/crmkeeper/internal/common"
	"github.com/dmitrijs2005/crmkeeper/internal/crm"
)

func (a *App) prompt() string {
	if a.isLoggedIn() {
		return color.GreenString("crm (%s)> ", auth.DefaultUserID)
	}
	return "crm> "
}

// handleError prints a failed command. A lost session forces a logout.
func (a *App) handleError(ctx context.Context, err error) {
	if errors.Is(err, common.ErrNoValidSession) {
		a.forceLogout(ctx, "Session is no longer valid")
		return
	}
	if errors.Is(err, crm.ErrUnreadable) {
		a.failure("%v", err)
		a.hint("Run %s to start it empty", color.YellowString("discard <collection>"))
		return
	}
	if locked, ok := auth.IsLocked(err); ok {
		a.failure("Too many failed attempts, locked for %d more minute(s)", locked.Minutes())
		return
	}
	a.log.Debug(ctx, "command failed", "err", err)
	a.failure("%v", err)
}

// touch records activity, or forces a logout when the session has already
// expired.
func (a *App) touch(ctx context.Context) bool {
	if !a.sessions.IsValid(ctx) {
		a.forceLogout(ctx, "Session expired")
		return false
	}
	a.sessions.UpdateActivity(ctx)
	return true
}

func (a *App) greet(ctx context.Context) {
	banner(a.out)

	registered, err := a.gate.IsRegistered(ctx)
	switch {
	case err != nil:
		a.failure("%v", err)
	case registered:
		a.hint("Type %s to unlock, %s for commands", color.YellowString("login"), color.YellowString("help"))
	default:
		a.hint("First run: type %s to set a master password", color.YellowString("register"))
	}
}

// Run starts the REPL and the session watcher. It returns when the user
// exits, input ends or the process is interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.log.Info(ctx, "starting", "storage", a.config.StorageDriver, "key_binding", a.config.KeyBinding)
	a.greet(ctx)

	r := &repl{
		commands: a.commands(),
		loggedIn: a.isLoggedIn,
		prompt:   a.prompt,
		in:       a.in,
		out:      a.out,
		before:   a.touch,
		onError:  a.handleError,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.run(gctx)
	})
	g.Go(func() error {
		return a.watchSession(gctx)
	})

	err := g.Wait()
	if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
		a.log.Error(ctx, "close failed", "err", cerr)
	}
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}
