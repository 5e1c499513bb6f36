// Package logging is the structured logger handed to every crmkeeper
// component. SlogLogger is the log/slog implementation.
package logging

import "context"

// Logger takes a message followed by alternating keys and values:
//
//	log.Warn(ctx, "failed to persist session", "key", storage.KeySession, "err", err)
//
// Secrets (passwords, derived keys, API keys) never go into args.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a logger that adds args to every record.
	With(args ...any) Logger
}
