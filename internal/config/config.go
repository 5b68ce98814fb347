// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package config layers defaults, an optional config file, environment
// variables and command-line flags into one Config. Later layers win:
// flag > env > file > default.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/td99/modeldeploy/internal/paths"
	"github.com/td99/modeldeploy/pkg/assetfetch"
)

// Keys as they appear in config files.
const (
	KeyProjectRoot    = "project_root"
	KeyManifest       = "manifest"
	KeyOverride       = "override"
	KeyMaxConcurrent  = "max_concurrent"
	KeyRetries        = "retries"
	KeyConnectTimeout = "connect_timeout"
	KeyReadTimeout    = "read_timeout"
	KeyBackoffInitial = "backoff_initial"
	KeyBackoffMax     = "backoff_max"
	KeyBufferSize     = "buffer_size"
	KeyBeforeCmd      = "before_cmd"
	KeyAfterCmd       = "after_cmd"
	KeyLogLevel       = "log_level"
	KeyLogFormat      = "log_format"
)

// envNames maps keys to the environment variables the deployer has always
// read. They carry no common prefix.
var envNames = map[string]string{
	KeyProjectRoot:    "PROJECT_ROOT",
	KeyManifest:       "MODEL_CONFIG_PATH",
	KeyOverride:       "OVERRIDE_MODELS",
	KeyMaxConcurrent:  "MAX_CONCURRENT_DOWNLOADS",
	KeyRetries:        "TIMEOUT_RETRIES",
	KeyConnectTimeout: "CONNECT_TIMEOUT",
	KeyReadTimeout:    "READ_TIMEOUT",
	KeyBackoffInitial: "BACKOFF_INITIAL",
	KeyBackoffMax:     "BACKOFF_MAX",
	KeyBufferSize:     "BUFFER_SIZE",
	KeyBeforeCmd:      "BEFORE_DEPLOY_CMD",
	KeyAfterCmd:       "AFTER_DEPLOY_CMD",
	KeyLogLevel:       "LOG_LEVEL",
	KeyLogFormat:      "LOG_FORMAT",
}

// flagNames maps keys to command-line flag names.
var flagNames = map[string]string{
	KeyProjectRoot:    "project-root",
	KeyManifest:       "manifest",
	KeyOverride:       "override",
	KeyMaxConcurrent:  "max-active",
	KeyRetries:        "retries",
	KeyConnectTimeout: "connect-timeout",
	KeyReadTimeout:    "read-timeout",
	KeyBackoffInitial: "backoff-initial",
	KeyBackoffMax:     "backoff-max",
	KeyBufferSize:     "buffer-size",
	KeyBeforeCmd:      "before-cmd",
	KeyAfterCmd:       "after-cmd",
	KeyLogLevel:       "log-level",
	KeyLogFormat:      "log-format",
}

// Config is the resolved deployer configuration.
type Config struct {
	ProjectRoot    string
	Manifest       string
	Override       bool
	MaxConcurrent  int
	Retries        int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BufferSize     int64
	BeforeCmd      string
	AfterCmd       string
	LogLevel       string
	LogFormat      string

	// File is the config file that was read, if any.
	File string
}

// DefaultConfig returns the defaults in the shape written by "config init".
func DefaultConfig() map[string]any {
	return map[string]any{
		KeyProjectRoot:    paths.DefaultProjectRoot,
		KeyManifest:       "./config.json",
		KeyOverride:       false,
		KeyMaxConcurrent:  2,
		KeyRetries:        3,
		KeyConnectTimeout: "60s",
		KeyReadTimeout:    "300s",
		KeyBackoffInitial: "400ms",
		KeyBackoffMax:     "10s",
		KeyBufferSize:     "1MiB",
		KeyBeforeCmd:      "",
		KeyAfterCmd:       "",
		KeyLogLevel:       "info",
		KeyLogFormat:      "text",
	}
}

// New returns a viper instance with defaults set and environment variables bound.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range DefaultConfig() {
		v.SetDefault(k, val)
	}
	for k, env := range envNames {
		_ = v.BindEnv(k, env)
	}
	return v
}

// RegisterFlags defines one flag per key on fs. Flag defaults are only
// shown in help; unset flags never override other layers.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.String(flagNames[KeyProjectRoot], d[KeyProjectRoot].(string), "Project root that \"@\" in locations expands to (env PROJECT_ROOT)")
	fs.StringP(flagNames[KeyManifest], "m", d[KeyManifest].(string), "Manifest file, JSON or YAML; may start with \"@\" (env MODEL_CONFIG_PATH)")
	fs.Bool(flagNames[KeyOverride], false, "Download even if the destination exists (env OVERRIDE_MODELS)")
	fs.IntP(flagNames[KeyMaxConcurrent], "c", d[KeyMaxConcurrent].(int), "Maximum number of assets downloading at once (env MAX_CONCURRENT_DOWNLOADS)")
	fs.Int(flagNames[KeyRetries], d[KeyRetries].(int), "Attempts per asset for transient failures (env TIMEOUT_RETRIES)")
	fs.String(flagNames[KeyConnectTimeout], d[KeyConnectTimeout].(string), "Connect timeout, seconds or duration (env CONNECT_TIMEOUT)")
	fs.String(flagNames[KeyReadTimeout], d[KeyReadTimeout].(string), "Abort a transfer after this long without data (env READ_TIMEOUT)")
	fs.String(flagNames[KeyBackoffInitial], d[KeyBackoffInitial].(string), "Initial retry backoff")
	fs.String(flagNames[KeyBackoffMax], d[KeyBackoffMax].(string), "Maximum retry backoff")
	fs.String(flagNames[KeyBufferSize], d[KeyBufferSize].(string), "Copy buffer size, e.g. 256KiB or 4MiB")
	fs.String(flagNames[KeyBeforeCmd], "", "Shell command run before deploying (env BEFORE_DEPLOY_CMD)")
	fs.String(flagNames[KeyAfterCmd], "", "Shell command run after a successful deployment (env AFTER_DEPLOY_CMD)")
	fs.String(flagNames[KeyLogLevel], d[KeyLogLevel].(string), "Log level: debug, info, warn, error")
	fs.String(flagNames[KeyLogFormat], d[KeyLogFormat].(string), "Log format: text or json")
}

// BindFlags binds the flags registered by RegisterFlags that exist in fs.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for k, name := range flagNames {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(k, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// FilePath returns the config file to read: explicit if set, otherwise the
// first of ~/.config/modeldeploy.{yaml,yml,json} that exists. It returns ""
// when there is none.
func FilePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, p := range Candidates() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Candidates lists the default config file locations in lookup order.
func Candidates() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	dir := filepath.Join(home, ".config")
	return []string{
		filepath.Join(dir, "modeldeploy.yaml"),
		filepath.Join(dir, "modeldeploy.yml"),
		filepath.Join(dir, "modeldeploy.json"),
	}
}

// Load resolves the configuration. explicitFile is the --config value; a
// missing explicit file is an error, a missing default file is not.
func Load(v *viper.Viper, explicitFile string) (Config, error) {
	file := FilePath(explicitFile)
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := Config{
		ProjectRoot:   v.GetString(KeyProjectRoot),
		Manifest:      v.GetString(KeyManifest),
		Override:      ParseBool(v.GetString(KeyOverride)),
		MaxConcurrent: v.GetInt(KeyMaxConcurrent),
		Retries:       v.GetInt(KeyRetries),
		BeforeCmd:     v.GetString(KeyBeforeCmd),
		AfterCmd:      v.GetString(KeyAfterCmd),
		LogLevel:      v.GetString(KeyLogLevel),
		LogFormat:     v.GetString(KeyLogFormat),
		File:          file,
	}

	var errs []error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{KeyConnectTimeout, &cfg.ConnectTimeout},
		{KeyReadTimeout, &cfg.ReadTimeout},
		{KeyBackoffInitial, &cfg.BackoffInitial},
		{KeyBackoffMax, &cfg.BackoffMax},
	}
	for _, d := range durations {
		val, err := ParseDuration(v.GetString(d.key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.key, err))
			continue
		}
		*d.dst = val
	}

	size, err := assetfetch.ParseSize(v.GetString(KeyBufferSize), 1<<20)
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyBufferSize, err))
	}
	cfg.BufferSize = size

	if len(errs) > 0 {
		return cfg, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate reports every setting that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", KeyMaxConcurrent, c.MaxConcurrent))
	}
	if c.Retries < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", KeyRetries, c.Retries))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyConnectTimeout))
	}
	if c.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyReadTimeout))
	}
	if c.BackoffInitial <= 0 || c.BackoffMax < c.BackoffInitial {
		errs = append(errs, fmt.Errorf("backoff must satisfy 0 < %s <= %s", KeyBackoffInitial, KeyBackoffMax))
	}
	if c.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyBufferSize))
	}
	if strings.TrimSpace(c.Manifest) == "" {
		errs = append(errs, fmt.Errorf("%s is empty", KeyManifest))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%s must be text or json, got %q", KeyLogFormat, c.LogFormat))
	}
	return errors.Join(errs...)
}

// Settings converts the configuration for assetfetch.New.
func (c Config) Settings() assetfetch.Settings {
	return assetfetch.Settings{
		Overwrite:              c.Override,
		MaxConcurrentTransfers: c.MaxConcurrent,
		MaxRetryAttempts:       c.Retries,
		ConnectTimeout:         c.ConnectTimeout,
		ReadTimeout:            c.ReadTimeout,
		BackoffInitial:         c.BackoffInitial,
		BackoffMax:             c.BackoffMax,
		BufferSize:             int(c.BufferSize),
	}
}

// Resolver returns the project root resolver for this configuration.
func (c Config) Resolver() paths.Resolver {
	return paths.New(c.ProjectRoot)
}

// ParseBool accepts "true", "1" and "yes" in any case. Everything else,
// including the empty string, is false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// ParseDuration accepts a bare number of seconds ("60", "0.5") or a Go
// duration ("1m30s").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}
