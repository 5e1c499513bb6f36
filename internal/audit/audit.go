// Package audit keeps the bounded security log: an append-only list of
// security-relevant events stored newest first under storage.KeySecurityLogs.
//
// Recording is best effort. Record never returns an error and never panics
// on storage or encoding failures; those are logged and dropped so that
// business operations are never blocked by the audit trail.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dmitrijs2005/crmkeeper/internal/logging"
	"github.com/dmitrijs2005/crmkeeper/internal/session"
	"github.com/dmitrijs2005/crmkeeper/internal/storage"
)

// MaxLogs is the default number of retained entries.
const MaxLogs = 100

// UnknownUser is recorded when no session is active.
const UnknownUser = "unknown"

// Entry is one audit record. Timestamp is unix milliseconds.
type Entry struct {
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
	UserID    string `json:"userId"`
	Details   string `json:"details,omitempty"`
}

// Time returns the entry timestamp as time.Time.
func (e Entry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Recorder is the write side of the log.
type Recorder interface {
	Record(ctx context.Context, action, details string)
}

type Log struct {
	mu       sync.Mutex
	store    storage.Store
	sessions session.Reader
	log      logging.Logger
	capacity int
	now      func() time.Time
}

type Option func(*Log)

// WithCapacity overrides MaxLogs.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// New returns a Log over store. sessions may be nil, in which case every
// entry is attributed to UnknownUser.
func New(store storage.Store, sessions session.Reader, log logging.Logger, opts ...Option) *Log {
	l := &Log{
		store:    store,
		sessions: sessions,
		log:      log,
		capacity: MaxLogs,
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Record prepends an entry and truncates the log to capacity.
func (l *Log) Record(ctx context.Context, action, details string) {
	defer func() {
		if p := recover(); p != nil {
			l.log.Error(ctx, "audit record panicked", "action", action, "panic", p)
		}
	}()

	userID := UnknownUser
	if l.sessions != nil {
		if s, ok := l.sessions.Get(ctx); ok && s.UserID != "" {
			userID = s.UserID
		}
	}

	entry := Entry{
		Action:    action,
		Timestamp: l.now().UnixMilli(),
		UserID:    userID,
		Details:   details,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.read(ctx)
	entries = append([]Entry{entry}, entries...)
	if len(entries) > l.capacity {
		entries = entries[:l.capacity]
	}

	data, err := json.Marshal(entries)
	if err != nil {
		l.log.Error(ctx, "audit encode failed", "action", action, "err", err)
		return
	}
	if err := l.store.Set(ctx, storage.KeySecurityLogs, data); err != nil {
		l.log.Error(ctx, "audit persist failed", "action", action, "err", err)
	}
}

// List returns the stored entries, newest first. A missing or corrupted log
// reads as empty.
func (l *Log) List(ctx context.Context) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.read(ctx)
}

func (l *Log) read(ctx context.Context) []Entry {
	data, ok, err := l.store.Get(ctx, storage.KeySecurityLogs)
	if err != nil {
		l.log.Error(ctx, "audit read failed", "err", err)
		return []Entry{}
	}
	if !ok {
		return []Entry{}
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		l.log.Warn(ctx, "audit log unreadable, starting over", "err", err)
		return []Entry{}
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries
}
