package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/crmkeeper/internal/completion"
)

// apiKey lists configured providers, or prompts for and stores one key.
// An empty key removes the provider.
func (a *App) apiKey(ctx context.Context, args []string) error {
	if len(args) == 0 {
		keys := a.crm.APIKeys()
		providers := make([]string, 0, len(keys))
		for p := range keys {
			providers = append(providers, p)
		}
		sort.Strings(providers)

		if len(providers) == 0 {
			a.println("No API keys stored")
		}
		for _, p := range providers {
			a.printf("  %-10s %s\n", p, maskKey(keys[p]))
		}
		a.hint("Known providers: %s", strings.Join(a.completions.Providers(), ", "))
		return nil
	}
	if len(args) > 1 {
		return usageError("apikey [provider]")
	}

	key, err := a.password(ctx, fmt.Sprintf("API key for %s (empty to remove)", args[0]))
	if err != nil {
		return err
	}
	if err := a.crm.SetAPIKey(ctx, args[0], key); err != nil {
		return err
	}
	a.success("Saved")
	return nil
}

// maskKey shows only the last four characters.
func maskKey(key string) string {
	r := []rune(key)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}

func (a *App) testCompletion(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("testai <provider>")
	}

	c, err := a.completions.For(args[0], a.crm.APIKeys())
	if err != nil {
		return err
	}

	stop := startSpinner(a.out, "Waiting for "+args[0]+"...")
	reply, err := completion.TestConnection(ctx, c, a.config.CompletionTimeout)
	stop()
	if err != nil {
		return err
	}
	a.success("Connected: %s", reply)
	return nil
}
