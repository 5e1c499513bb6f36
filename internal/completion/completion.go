// Package completion is the seam to external text-completion providers.
// Nothing here talks to a network; providers are plugged in through a
// Registry, and every call that leaves the device goes through WithTimeout.
package completion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/crmkeeper/internal/validate"
)

var (
	ErrUnknownProvider = errors.New("unknown completion provider")
	ErrNoAPIKey        = errors.New("no api key configured for provider")
)

// ConnectionPrompt is sent by TestConnection.
const ConnectionPrompt = "你好，請簡單自我介紹"

const previewLength = 50

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Factory builds a Completer for one API key.
type Factory func(apiKey string) (Completer, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(provider string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[provider] = f
}

// Providers lists registered provider names, sorted.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// For builds the provider's Completer with its key from keys.
func (r *Registry) For(provider string, keys map[string]string) (Completer, error) {
	r.mu.RLock()
	f, ok := r.factories[provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	key := strings.TrimSpace(keys[provider])
	if key == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoAPIKey, provider)
	}
	return f(key)
}

// WithTimeout bounds every Complete call by d.
func WithTimeout(c Completer, d time.Duration) Completer {
	return CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type result struct {
			text string
			err  error
		}
		done := make(chan result, 1)
		go func() {
			text, err := c.Complete(ctx, prompt)
			done <- result{text, err}
		}()

		select {
		case r := <-done:
			return r.text, r.err
		case <-ctx.Done():
			return "", fmt.Errorf("completion: %w", ctx.Err())
		}
	})
}

// TestConnection sends ConnectionPrompt and returns a sanitized preview of
// the reply.
func TestConnection(ctx context.Context, c Completer, timeout time.Duration) (string, error) {
	reply, err := WithTimeout(c, timeout).Complete(ctx, ConnectionPrompt)
	if err != nil {
		return "", err
	}
	return validate.Sanitize(preview(reply)), nil
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLength {
		return s
	}
	return string([]rune(s)[:previewLength])
}

// Echo is an offline provider that replies with the prompt. It needs a
// non-empty key like any other provider.
func Echo(apiKey string) (Completer, error) {
	return CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		return prompt, ctx.Err()
	}), nil
}
