// Package config loads runtime configuration for crmkeeper.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON or TOML file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-s string   storage driver: sqlite, postgres or memory
//	-d string   database DSN (file path for sqlite)
//	-t int      session idle timeout (minutes)
//	-k string   key binding: session or password
//	-l string   log level: debug, info, warn, error
//
// JSON durations use timex.Duration, so "30m" and integer nanoseconds both
// work:
//
//	{
//	  "storage_driver": "sqlite",
//	  "database_dsn": "crmkeeper.db",
//	  "idle_timeout": "30m",
//	  "key_binding": "password",
//	  "reencrypt_on_password_change": true
//	}
//
// The same keys work in a .toml file:
//
//	storage_driver = "postgres"
//	idle_timeout = "45m"
//	revision_check = true
package config

import "time"

type Config struct {
	StorageDriver string
	DatabaseDSN   string

	IdleTimeout       time.Duration
	LivenessInterval  time.Duration
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	MinPasswordLength int
	PasswordHasher    string

	KeyBinding                string
	ReencryptOnPasswordChange bool
	RevisionCheck             bool
	PersistFailedAttempts     bool
	PurgeLegacy               bool

	AuditCapacity     int
	CompletionTimeout time.Duration
	BackupDir         string

	LogLevel  string
	LogFormat string

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
}

// LoadDefaults populates c with the default settings.
func (c *Config) LoadDefaults() {
	c.StorageDriver = "sqlite"
	c.DatabaseDSN = "crmkeeper.db"
	c.IdleTimeout = 30 * time.Minute
	c.LivenessInterval = 5 * time.Minute
	c.MaxFailedAttempts = 5
	c.LockoutDuration = 15 * time.Minute
	c.MinPasswordLength = 6
	c.PasswordHasher = "sha256"
	c.KeyBinding = "session"
	c.AuditCapacity = 100
	c.CompletionTimeout = 30 * time.Second
	c.BackupDir = "backups"
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.S3Region = "us-east-1"
}

// S3Enabled reports whether offsite backup upload is configured.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// LoadConfig builds a Config from defaults, then the config file, then flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}
