// Package config holds the command-line configuration of contentsync.
//
// Values come from, in increasing precedence: built-in defaults, a .env file,
// CONTENTSYNC_* environment variables, and command-line flags. This package
// covers the first three; the CLI uses the result as flag defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "CONTENTSYNC_"

// Shell transports for ssh destinations.
const (
	ShellExternal = "external"
	ShellNative   = "native"
)

// Hash programs for ssh destinations.
const (
	HashSha256Sum = "sha256sum"
	HashSha256    = "sha256"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the full configuration of a CLI run.
type Config struct {
	// Source is the local directory to mirror.
	Source string
	// Destination is a local path, [user@]host:/path, or s3://bucket/prefix.
	Destination string

	// SourceSnapshot and DestinationSnapshot are snapshot file paths. Empty
	// disables the corresponding cache.
	SourceSnapshot      string
	DestinationSnapshot string

	// Include, Exclude and DirExclude filter the source tree by glob pattern.
	Include    []string
	Exclude    []string
	DirExclude []string

	// Shell selects how ssh destinations are reached.
	Shell string
	// SSHProgram and SCPProgram are the external programs to run.
	SSHProgram string
	SCPProgram string
	// SSHPort is the port used by the native shell.
	SSHPort int
	// SSHRetries is how many times the external shell retries a command
	// whose ssh connection failed.
	SSHRetries int
	// SSHIdentity is a private key file for the native shell. Empty means
	// the ssh agent is used.
	SSHIdentity string
	// SSHKnownHosts is the known_hosts file used by the native shell.
	SSHKnownHosts string
	// HashCommand is the program hashing files on ssh destinations.
	HashCommand string

	// S3Region, S3Endpoint and S3PathStyle configure s3 destinations.
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool

	// DryRun plans without executing.
	DryRun bool
	// Full discards both snapshots before syncing.
	Full bool

	// WatchDebounce is the quiet period after the last change before a
	// watch-triggered sync starts.
	WatchDebounce time.Duration

	LogLevel    string
	LogFormat   string
	MetricsFile string
}

// LoadEnvFile loads variables from a .env file into the process
// environment without overriding variables already set. An empty path loads
// ./.env when it exists.
func LoadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// FromEnv returns the defaults overridden by CONTENTSYNC_* variables.
func FromEnv() (*Config, error) {
	c := &Config{
		Source:              getEnv("SOURCE", ""),
		Destination:         getEnv("DESTINATION", ""),
		SourceSnapshot:      getEnv("SOURCE_SNAPSHOT", ""),
		DestinationSnapshot: getEnv("DESTINATION_SNAPSHOT", ""),
		Include:             getEnvList("INCLUDE"),
		Exclude:             getEnvList("EXCLUDE"),
		DirExclude:          getEnvList("DIR_EXCLUDE"),
		Shell:               getEnv("SHELL", ShellExternal),
		SSHProgram:          getEnv("SSH_PROGRAM", "ssh"),
		SCPProgram:          getEnv("SCP_PROGRAM", "scp"),
		SSHIdentity:         getEnv("SSH_IDENTITY", ""),
		SSHKnownHosts:       getEnv("SSH_KNOWN_HOSTS", ""),
		HashCommand:         getEnv("HASH_COMMAND", HashSha256Sum),
		S3Region:            getEnv("S3_REGION", ""),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", LogFormatText),
		MetricsFile:         getEnv("METRICS_FILE", ""),
	}

	var err error
	if c.SSHPort, err = getEnvInt("SSH_PORT", 22); err != nil {
		return nil, err
	}
	if c.SSHRetries, err = getEnvInt("SSH_RETRIES", 0); err != nil {
		return nil, err
	}
	if c.S3PathStyle, err = getEnvBool("S3_PATH_STYLE", false); err != nil {
		return nil, err
	}
	if c.DryRun, err = getEnvBool("DRY_RUN", false); err != nil {
		return nil, err
	}
	if c.Full, err = getEnvBool("FULL", false); err != nil {
		return nil, err
	}
	if c.WatchDebounce, err = getEnvDuration("WATCH_DEBOUNCE", 2*time.Second); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the settings shared by every command.
func (c *Config) Validate() error {
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("invalid log format %q: must be %s or %s", c.LogFormat, LogFormatText, LogFormatJSON)
	}
	return nil
}

// ValidateSync checks the settings needed to run a sync.
func (c *Config) ValidateSync() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Source == "" {
		return fmt.Errorf("source is required")
	}
	if c.Destination == "" {
		return fmt.Errorf("destination is required")
	}
	if c.SourceSnapshot != "" && c.SourceSnapshot == c.DestinationSnapshot {
		return fmt.Errorf("source and destination snapshots must be different files")
	}
	switch c.Shell {
	case ShellExternal, ShellNative:
	default:
		return fmt.Errorf("invalid shell %q: must be %s or %s", c.Shell, ShellExternal, ShellNative)
	}
	switch c.HashCommand {
	case HashSha256Sum, HashSha256:
	default:
		return fmt.Errorf("invalid hash command %q: must be %s or %s", c.HashCommand, HashSha256Sum, HashSha256)
	}
	if c.SSHPort <= 0 || c.SSHPort > 65535 {
		return fmt.Errorf("invalid ssh port %d", c.SSHPort)
	}
	if c.SSHRetries < 0 {
		return fmt.Errorf("invalid ssh retries %d", c.SSHRetries)
	}
	if c.WatchDebounce <= 0 {
		return fmt.Errorf("watch debounce must be positive")
	}
	return nil
}

// NewLogger builds the logger described by LogLevel and LogFormat.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		return val
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(EnvPrefix+key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	val := os.Getenv(EnvPrefix + key)
	if val == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	return b, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	val := os.Getenv(EnvPrefix + key)
	if val == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	val := os.Getenv(EnvPrefix + key)
	if val == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	return d, nil
}
