package records

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/crmkeeper/internal/common"
	"github.com/dmitrijs2005/crmkeeper/internal/session"
	"github.com/dmitrijs2005/crmkeeper/internal/storage"
)

// KeyBinding selects what the per-operation encryption password is built from.
type KeyBinding string

const (
	// BindSession uses hash + "_" + session token. Blobs written in one
	// session cannot be read after logout/login unless re-saved.
	BindSession KeyBinding = "session"
	// BindPassword uses the password record alone, so blobs stay readable
	// across sessions until the password changes.
	BindPassword KeyBinding = "password"
)

// DefaultKeyBinding preserves the session-bound key material.
const DefaultKeyBinding = BindSession

// ParseKeyBinding accepts "session" or "password"; empty means the default.
func ParseKeyBinding(s string) (KeyBinding, error) {
	switch KeyBinding(strings.ToLower(s)) {
	case "":
		return DefaultKeyBinding, nil
	case BindSession:
		return BindSession, nil
	case BindPassword:
		return BindPassword, nil
	default:
		return "", fmt.Errorf("unknown key binding %q", s)
	}
}

// KeySource derives the encryption password for the current session.
type KeySource struct {
	store    storage.Store
	sessions session.Reader
	binding  KeyBinding
}

func NewKeySource(store storage.Store, sessions session.Reader, binding KeyBinding) *KeySource {
	if binding == "" {
		binding = DefaultKeyBinding
	}
	return &KeySource{store: store, sessions: sessions, binding: binding}
}

func (k *KeySource) Binding() KeyBinding {
	return k.binding
}

// Password returns the encryption password. It fails with
// common.ErrNoValidSession without a live session and with
// common.ErrNoEncryptionKey when no password record exists.
func (k *KeySource) Password(ctx context.Context) (string, error) {
	s, ok := k.sessions.Get(ctx)
	if !ok {
		return "", common.ErrNoValidSession
	}

	hash, ok, err := k.store.Get(ctx, storage.KeyPasswordHash)
	if err != nil {
		return "", err
	}
	if !ok || len(hash) == 0 {
		return "", common.ErrNoEncryptionKey
	}

	if k.binding == BindPassword {
		return string(hash), nil
	}
	return string(hash) + "_" + s.Token, nil
}
