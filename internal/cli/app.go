package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrijs2005/crmkeeper/internal/audit"
	"github.com/dmitrijs2005/crmkeeper/internal/auth"
	"github.com/dmitrijs2005/crmkeeper/internal/backup"
	"github.com/dmitrijs2005/crmkeeper/internal/completion"
	"github.com/dmitrijs2005/crmkeeper/internal/config"
	"github.com/dmitrijs2005/crmkeeper/internal/crm"
	"github.com/dmitrijs2005/crmkeeper/internal/cryptox"
	"github.com/dmitrijs2005/crmkeeper/internal/logging"
	"github.com/dmitrijs2005/crmkeeper/internal/metrics"
	"github.com/dmitrijs2005/crmkeeper/internal/records"
	"github.com/dmitrijs2005/crmkeeper/internal/session"
	"github.com/dmitrijs2005/crmkeeper/internal/storage"
	"github.com/dmitrijs2005/crmkeeper/internal/storage/memory"
)

// EchoProvider is the built-in offline completion provider.
const EchoProvider = "echo"

type App struct {
	config *config.Config
	log    logging.Logger
	out    io.Writer
	in     *lineReader
	secret passwordFunc
	now    func() time.Time

	store      storage.Store
	closeStore func() error

	sessions    *session.Manager
	audit       *audit.Log
	recorder    audit.Recorder
	registry    *prometheus.Registry
	gate        *auth.Gate
	vault       *records.Vault
	crm         *crm.Service
	completions *completion.Registry
	uploader    *backup.S3Uploader

	loggedIn atomic.Bool
}

type Option func(*appOptions)

type appOptions struct {
	in     io.Reader
	out    io.Writer
	store  storage.Store
	secret func(in *lineReader) passwordFunc
	now    func() time.Time
}

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(o *appOptions) { o.in, o.out = in, out }
}

// WithStore uses s instead of opening the configured driver.
func WithStore(s storage.Store) Option {
	return func(o *appOptions) { o.store = s }
}

// WithPlainPasswords reads passwords as ordinary input lines.
func WithPlainPasswords() Option {
	return func(o *appOptions) { o.secret = linePassword }
}

func WithClock(now func() time.Time) Option {
	return func(o *appOptions) { o.now = now }
}

// NewApp wires storage, session, audit, auth and the CRM service from c.
func NewApp(ctx context.Context, c *config.Config, opts ...Option) (*App, error) {
	o := appOptions{in: os.Stdin, out: os.Stdout, secret: terminalPassword, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	log := logging.New(os.Stderr, c.LogFormat, c.LogLevel)

	store, closeStore := o.store, func() error { return nil }
	if store == nil {
		var err error
		store, closeStore, err = openStore(ctx, c.StorageDriver, c.DatabaseDSN)
		if err != nil {
			return nil, err
		}
	}

	app, err := build(ctx, c, log, store, o)
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	app.closeStore = closeStore
	return app, nil
}

func build(ctx context.Context, c *config.Config, log logging.Logger, store storage.Store, o appOptions) (*App, error) {
	binding, err := records.ParseKeyBinding(c.KeyBinding)
	if err != nil {
		return nil, err
	}
	hasher, err := cryptox.HasherFor(c.PasswordHasher)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(memory.New(), log,
		session.WithIdleTimeout(c.IdleTimeout), session.WithClock(o.now))
	auditLog := audit.New(store, sessions, log,
		audit.WithCapacity(c.AuditCapacity), audit.WithClock(o.now))

	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(auditLog, registry)
	if err != nil {
		return nil, err
	}

	vault := records.NewVault(store, records.NewKeySource(store, sessions, binding), log,
		records.WithRevisionCheck(c.RevisionCheck),
		records.WithPurgeLegacy(c.PurgeLegacy),
		records.WithAudit(recorder),
	)

	gateOpts := []auth.Option{
		auth.WithClock(o.now),
		auth.WithHasher(hasher),
		auth.WithMaxFailedAttempts(c.MaxFailedAttempts),
		auth.WithLockoutDuration(c.LockoutDuration),
		auth.WithMinPasswordLength(c.MinPasswordLength),
		auth.WithPersistFailedAttempts(c.PersistFailedAttempts),
	}
	if c.ReencryptOnPasswordChange {
		gateOpts = append(gateOpts, auth.WithRekeyer(vault))
	}

	completions := completion.NewRegistry()
	completions.Register(EchoProvider, completion.Echo)

	var uploader *backup.S3Uploader
	if c.S3Enabled() {
		uploader, err = backup.NewS3Uploader(ctx, backup.S3Config{
			Endpoint:  c.S3Endpoint,
			Region:    c.S3Region,
			Bucket:    c.S3Bucket,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
	}

	in := newLineReader(o.in)
	return &App{
		config:      c,
		log:         log,
		out:         o.out,
		in:          in,
		secret:      o.secret(in),
		now:         o.now,
		store:       store,
		sessions:    sessions,
		audit:       auditLog,
		recorder:    recorder,
		registry:    registry,
		gate:        auth.NewGate(store, sessions, recorder, log, gateOpts...),
		vault:       vault,
		crm:         crm.NewService(vault, recorder, log, crm.WithClock(o.now)),
		completions: completions,
		uploader:    uploader,
	}, nil
}

func (a *App) isLoggedIn() bool {
	return a.loggedIn.Load()
}

// Close ends the session and releases the store.
func (a *App) Close(ctx context.Context) error {
	if a.loggedIn.Swap(false) {
		a.gate.Logout(ctx)
	}
	a.crm.Reset()
	return a.closeStore()
}
