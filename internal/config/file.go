package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/dmitrijs2005/crmkeeper/internal/flagx"
	"github.com/dmitrijs2005/crmkeeper/internal/timex"
)

// FileConfig is the on-disk shape, read from JSON or TOML. Absent fields
// leave the current value untouched, so pointers distinguish "false"/"0"
// from "not set".
type FileConfig struct {
	StorageDriver string `json:"storage_driver" toml:"storage_driver"`
	DatabaseDSN   string `json:"database_dsn" toml:"database_dsn"`

	IdleTimeout       *timex.Duration `json:"idle_timeout" toml:"idle_timeout"`
	LivenessInterval  *timex.Duration `json:"liveness_interval" toml:"liveness_interval"`
	MaxFailedAttempts *int            `json:"max_failed_attempts" toml:"max_failed_attempts"`
	LockoutDuration   *timex.Duration `json:"lockout_duration" toml:"lockout_duration"`
	MinPasswordLength *int            `json:"min_password_length" toml:"min_password_length"`
	PasswordHasher    string          `json:"password_hasher" toml:"password_hasher"`

	KeyBinding                string `json:"key_binding" toml:"key_binding"`
	ReencryptOnPasswordChange *bool  `json:"reencrypt_on_password_change" toml:"reencrypt_on_password_change"`
	RevisionCheck             *bool  `json:"revision_check" toml:"revision_check"`
	PersistFailedAttempts     *bool  `json:"persist_failed_attempts" toml:"persist_failed_attempts"`
	PurgeLegacy               *bool  `json:"purge_legacy" toml:"purge_legacy"`

	AuditCapacity     *int            `json:"audit_capacity" toml:"audit_capacity"`
	CompletionTimeout *timex.Duration `json:"completion_timeout" toml:"completion_timeout"`
	BackupDir         string          `json:"backup_dir" toml:"backup_dir"`

	LogLevel  string `json:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" toml:"log_format"`

	S3Endpoint  string `json:"s3_endpoint" toml:"s3_endpoint"`
	S3Region    string `json:"s3_region" toml:"s3_region"`
	S3Bucket    string `json:"s3_bucket" toml:"s3_bucket"`
	S3AccessKey string `json:"s3_access_key" toml:"s3_access_key"`
	S3SecretKey string `json:"s3_secret_key" toml:"s3_secret_key"`
}

// parseFile overlays cfg with the file named by -c/-config, if any. Files
// ending in .toml are decoded as TOML, anything else as JSON. It panics on
// read or decode errors.
func parseFile(cfg *Config) {
	configFile := flagx.ConfigPath(os.Args[1:])
	if configFile == "" {
		return
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		panic(err)
	}

	var fc FileConfig
	if strings.EqualFold(filepath.Ext(configFile), ".toml") {
		_, err = toml.Decode(string(data), &fc)
	} else {
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		panic(err)
	}
	fc.apply(cfg)
}

func (jc *FileConfig) apply(cfg *Config) {
	setString(&cfg.StorageDriver, jc.StorageDriver)
	setString(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setString(&cfg.PasswordHasher, jc.PasswordHasher)
	setString(&cfg.KeyBinding, jc.KeyBinding)
	setString(&cfg.BackupDir, jc.BackupDir)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)
	setString(&cfg.S3Endpoint, jc.S3Endpoint)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3AccessKey, jc.S3AccessKey)
	setString(&cfg.S3SecretKey, jc.S3SecretKey)

	if jc.IdleTimeout != nil {
		cfg.IdleTimeout = jc.IdleTimeout.Duration
	}
	if jc.LivenessInterval != nil {
		cfg.LivenessInterval = jc.LivenessInterval.Duration
	}
	if jc.LockoutDuration != nil {
		cfg.LockoutDuration = jc.LockoutDuration.Duration
	}
	if jc.CompletionTimeout != nil {
		cfg.CompletionTimeout = jc.CompletionTimeout.Duration
	}
	if jc.MaxFailedAttempts != nil {
		cfg.MaxFailedAttempts = *jc.MaxFailedAttempts
	}
	if jc.MinPasswordLength != nil {
		cfg.MinPasswordLength = *jc.MinPasswordLength
	}
	if jc.AuditCapacity != nil {
		cfg.AuditCapacity = *jc.AuditCapacity
	}
	if jc.ReencryptOnPasswordChange != nil {
		cfg.ReencryptOnPasswordChange = *jc.ReencryptOnPasswordChange
	}
	if jc.RevisionCheck != nil {
		cfg.RevisionCheck = *jc.RevisionCheck
	}
	if jc.PersistFailedAttempts != nil {
		cfg.PersistFailedAttempts = *jc.PersistFailedAttempts
	}
	if jc.PurgeLegacy != nil {
		cfg.PurgeLegacy = *jc.PurgeLegacy
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
