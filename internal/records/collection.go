// Package records stores the CRM entity collections encrypted at rest.
//
// Each collection is serialized to JSON, encrypted with a password obtained
// from a KeySource, and written as a single blob under its storage.Entity key.
// Loading falls back to the entity's legacy plaintext key and migrates what it
// finds, so Load may write to storage.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/dmitrijs2005/crmkeeper/internal/audit"
	"github.com/dmitrijs2005/crmkeeper/internal/common"
	"github.com/dmitrijs2005/crmkeeper/internal/cryptox"
	"github.com/dmitrijs2005/crmkeeper/internal/logging"
	"github.com/dmitrijs2005/crmkeeper/internal/storage"
)

type options struct {
	revisionCheck bool
	purgeLegacy   bool
	audit         audit.Recorder
}

type Option func(*options)

// WithRevisionCheck makes Save fail with common.ErrVersionConflict when the
// entity was saved by someone else since this collection last read or wrote it.
func WithRevisionCheck(on bool) Option {
	return func(o *options) { o.revisionCheck = on }
}

// WithPurgeLegacy removes the plaintext copy once it has been migrated.
func WithPurgeLegacy(on bool) Option {
	return func(o *options) { o.purgeLegacy = on }
}

// WithAudit records migrations to r.
func WithAudit(r audit.Recorder) Option {
	return func(o *options) { o.audit = r }
}

// Collection is one encrypted entity collection of type T, where T is the
// whole collection value (a slice of entities, or a map for API keys).
type Collection[T any] struct {
	options

	entity storage.Entity
	store  storage.Store
	keys   *KeySource
	log    logging.Logger
	empty  func() T

	mu       sync.Mutex
	rev      uint64
	revRaw   []byte // stored revision as last observed, nil when absent
	revKnown bool
	undoRev  uint64
	undoRaw  []byte
}

func NewCollection[T any](entity storage.Entity, store storage.Store, keys *KeySource, log logging.Logger, empty func() T, opts ...Option) *Collection[T] {
	c := &Collection[T]{
		entity: entity,
		store:  store,
		keys:   keys,
		log:    log.With("entity", entity.Name),
		empty:  empty,
	}
	for _, o := range opts {
		o(&c.options)
	}
	return c
}

func (c *Collection[T]) Entity() storage.Entity {
	return c.entity
}

// Save encrypts v and writes it under the entity key.
func (c *Collection[T]) Save(ctx context.Context, v T) error {
	password, err := c.keys.Password(ctx)
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: serialize %s: %v", common.ErrStorage, c.entity.Name, err)
	}

	blob, err := cryptox.Encrypt(string(plaintext), password)
	if err != nil {
		c.log.Error(ctx, "encryption failed", "err", err)
		return err
	}

	bumped := false
	if c.revisionCheck {
		if bumped, err = c.bumpRevision(ctx); err != nil {
			return err
		}
	}

	if err := c.store.Set(ctx, c.entity.Encrypted, []byte(blob)); err != nil {
		c.log.Error(ctx, "encrypted save failed", "err", err)
		if bumped {
			c.undoRevision(ctx)
		}
		return err
	}
	return nil
}

// Load reads and decrypts the collection. An absent blob with no legacy data
// is an empty collection. When the blob is absent or cannot be decrypted, a
// well-formed legacy plaintext collection is re-saved encrypted and returned.
// Otherwise decryption failure is common.ErrDecryption.
func (c *Collection[T]) Load(ctx context.Context) (T, error) {
	if c.revisionCheck {
		if err := c.observeRevision(ctx); err != nil {
			return c.empty(), err
		}
	}

	blob, ok, err := c.store.Get(ctx, c.entity.Encrypted)
	if err != nil {
		return c.empty(), err
	}
	if !ok {
		if v, migrated := c.migrateLegacy(ctx); migrated {
			return v, nil
		}
		return c.empty(), nil
	}

	password, err := c.keys.Password(ctx)
	if err != nil {
		return c.empty(), err
	}

	v, err := c.decode(string(blob), password)
	if err == nil {
		return v, nil
	}

	c.log.Warn(ctx, "decryption failed, trying legacy data", "err", err)
	if v, migrated := c.migrateLegacy(ctx); migrated {
		return v, nil
	}
	return c.empty(), common.ErrDecryption
}

// decode decrypts blob. A payload of the wrong JSON shape decodes to the
// empty collection; a payload that is not JSON at all is a decryption error.
func (c *Collection[T]) decode(blob, password string) (T, error) {
	plaintext, err := cryptox.Decrypt(blob, password)
	if err != nil {
		return c.empty(), err
	}
	v, err := c.parse([]byte(plaintext))
	if err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.Is(err, errNull) || errors.As(err, &typeErr) {
			return c.empty(), nil
		}
		return c.empty(), fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}
	return v, nil
}

var errNull = errors.New("null collection")

func (c *Collection[T]) parse(data []byte) (T, error) {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return c.empty(), errNull
	}
	v := c.empty()
	if err := json.Unmarshal(data, &v); err != nil {
		return c.empty(), err
	}
	return v, nil
}

// migrateLegacy returns the legacy plaintext collection, if any, after trying
// to re-save it encrypted. A failed re-save is logged; the data is still
// returned.
func (c *Collection[T]) migrateLegacy(ctx context.Context) (T, bool) {
	raw, ok, err := c.store.Get(ctx, c.entity.Legacy)
	if err != nil {
		c.log.Warn(ctx, "legacy read failed", "err", err)
		return c.empty(), false
	}
	if !ok {
		return c.empty(), false
	}

	v, err := c.parse(raw)
	if err != nil {
		c.log.Warn(ctx, "legacy data malformed", "err", err)
		return c.empty(), false
	}

	if err := c.Save(ctx, v); err != nil {
		c.log.Warn(ctx, "legacy migration save failed", "err", err)
		return v, true
	}

	c.log.Info(ctx, "migrated legacy plaintext collection")
	if c.audit != nil {
		c.audit.Record(ctx, audit.ActionDataMigrated, c.entity.Name)
	}
	if c.purgeLegacy {
		if err := c.store.Remove(ctx, c.entity.Legacy); err != nil {
			c.log.Warn(ctx, "legacy purge failed", "err", err)
		}
	}
	return v, true
}

func (c *Collection[T]) readRevision(ctx context.Context) (uint64, []byte, error) {
	raw, ok, err := c.store.Get(ctx, c.entity.Revision())
	if err != nil || !ok {
		return 0, nil, err
	}
	rev, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: bad revision for %s: %v", common.ErrStorage, c.entity.Name, err)
	}
	return rev, raw, nil
}

func (c *Collection[T]) observeRevision(ctx context.Context) error {
	rev, raw, err := c.readRevision(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rev, c.revRaw, c.revKnown = rev, raw, true
	return nil
}

// swapRevision moves the stored revision from the last observed value to
// raw. The caller holds c.mu.
func (c *Collection[T]) swapRevision(ctx context.Context, sw storage.Swapper, rev uint64, raw []byte) (bool, error) {
	swapped, err := sw.CompareAndSwap(ctx, c.entity.Revision(), c.revRaw, raw)
	if err != nil || !swapped {
		return false, err
	}
	c.rev, c.revRaw = rev, raw
	return true, nil
}

// bumpRevision advances the stored revision from the one last observed.
// It reports false when the store cannot compare-and-swap.
func (c *Collection[T]) bumpRevision(ctx context.Context) (bool, error) {
	sw, ok := c.store.(storage.Swapper)
	if !ok {
		c.log.Warn(ctx, "store cannot compare-and-swap, revision check skipped")
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.revKnown {
		rev, raw, err := c.readRevision(ctx)
		if err != nil {
			return false, err
		}
		c.rev, c.revRaw, c.revKnown = rev, raw, true
	}

	prevRev, prevRaw := c.rev, c.revRaw
	next := c.rev + 1
	swapped, err := c.swapRevision(ctx, sw, next, []byte(strconv.FormatUint(next, 10)))
	if err != nil {
		return false, err
	}
	if !swapped {
		return false, fmt.Errorf("%s: %w", c.entity.Name, common.ErrVersionConflict)
	}
	c.undoRev, c.undoRaw = prevRev, prevRaw
	return true, nil
}

// undoRevision restores the revision seen before the last bump after the blob
// write failed, unless another writer has moved it on already.
func (c *Collection[T]) undoRevision(ctx context.Context) {
	sw := c.store.(storage.Swapper)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.swapRevision(ctx, sw, c.undoRev, c.undoRaw); err != nil {
		c.log.Warn(ctx, "revision rollback failed", "err", err)
	}
}
