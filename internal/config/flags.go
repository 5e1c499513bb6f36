package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/crmkeeper/internal/flagx"
)

// parseFlags overlays cfg with -s, -d, -t, -k and -l. Other arguments are
// filtered out first so they do not trip the flag set. Panics on bad values.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-s", "-d", "-t", "-k", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.StorageDriver, "s", cfg.StorageDriver, "storage driver (sqlite, postgres, memory)")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	idleTimeout := fs.Int("t", int(cfg.IdleTimeout.Minutes()), "session idle timeout (in minutes)")
	fs.StringVar(&cfg.KeyBinding, "k", cfg.KeyBinding, "encryption key binding (session, password)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			cfg.IdleTimeout = time.Duration(*idleTimeout) * time.Minute
		}
	})
}
