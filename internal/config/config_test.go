package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSync() *Config {
	return &Config{
		Source:        "/srv/site",
		Destination:   "deploy@web:/var/www",
		Shell:         ShellExternal,
		HashCommand:   HashSha256Sum,
		SSHPort:       22,
		WatchDebounce: time.Second,
		LogLevel:      "info",
		LogFormat:     LogFormatText,
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	c, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ShellExternal, c.Shell)
	assert.Equal(t, "ssh", c.SSHProgram)
	assert.Equal(t, "scp", c.SCPProgram)
	assert.Equal(t, 22, c.SSHPort)
	assert.Equal(t, HashSha256Sum, c.HashCommand)
	assert.Equal(t, 2*time.Second, c.WatchDebounce)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, LogFormatText, c.LogFormat)
	assert.False(t, c.DryRun)
	assert.Empty(t, c.Exclude)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CONTENTSYNC_SOURCE", "/data")
	t.Setenv("CONTENTSYNC_DESTINATION", "s3://bucket/site")
	t.Setenv("CONTENTSYNC_EXCLUDE", "*.tmp, .DS_Store,,")
	t.Setenv("CONTENTSYNC_SSH_PORT", "2222")
	t.Setenv("CONTENTSYNC_SSH_RETRIES", "3")
	t.Setenv("CONTENTSYNC_DRY_RUN", "true")
	t.Setenv("CONTENTSYNC_WATCH_DEBOUNCE", "500ms")
	t.Setenv("CONTENTSYNC_S3_PATH_STYLE", "1")

	c, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/data", c.Source)
	assert.Equal(t, "s3://bucket/site", c.Destination)
	assert.Equal(t, []string{"*.tmp", ".DS_Store"}, c.Exclude)
	assert.Equal(t, 2222, c.SSHPort)
	assert.Equal(t, 3, c.SSHRetries)
	assert.True(t, c.DryRun)
	assert.True(t, c.S3PathStyle)
	assert.Equal(t, 500*time.Millisecond, c.WatchDebounce)
}

func TestFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bool", key: "CONTENTSYNC_FULL", value: "maybe"},
		{name: "int", key: "CONTENTSYNC_SSH_PORT", value: "twenty-two"},
		{name: "duration", key: "CONTENTSYNC_WATCH_DEBOUNCE", value: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestValidateSync(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing source", mutate: func(c *Config) { c.Source = "" }, wantErr: "source is required"},
		{name: "missing destination", mutate: func(c *Config) { c.Destination = "" }, wantErr: "destination is required"},
		{
			name: "shared snapshot",
			mutate: func(c *Config) {
				c.SourceSnapshot = "/state/s.snap"
				c.DestinationSnapshot = "/state/s.snap"
			},
			wantErr: "must be different",
		},
		{name: "unknown shell", mutate: func(c *Config) { c.Shell = "telnet" }, wantErr: "invalid shell"},
		{name: "unknown hash", mutate: func(c *Config) { c.HashCommand = "md5sum" }, wantErr: "invalid hash command"},
		{name: "bad port", mutate: func(c *Config) { c.SSHPort = 70000 }, wantErr: "invalid ssh port"},
		{name: "negative retries", mutate: func(c *Config) { c.SSHRetries = -1 }, wantErr: "invalid ssh retries"},
		{name: "zero debounce", mutate: func(c *Config) { c.WatchDebounce = 0 }, wantErr: "debounce"},
		{name: "bad level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "invalid log level"},
		{name: "bad format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validSync()
			tt.mutate(c)
			err := c.ValidateSync()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	c := validSync()
	c.LogLevel = "warn"
	c.LogFormat = LogFormatJSON

	var buf bytes.Buffer
	logger, err := c.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "path", "a.txt")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"path":"a.txt"`)
}

func TestLoadEnvFile(t *testing.T) {
	const key = "CONTENTSYNC_TEST_ENV_FILE_VALUE"
	const kept = "CONTENTSYNC_TEST_ENV_FILE_KEPT"
	t.Cleanup(func() { _ = os.Unsetenv(key) })
	t.Setenv(kept, "from-process")

	path := filepath.Join(t.TempDir(), "contentsync.env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=from-file\n"+kept+"=from-file\n"), 0o644))

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv(key))
	assert.Equal(t, "from-process", os.Getenv(kept))
}

func TestLoadEnvFile_Missing(t *testing.T) {
	t.Chdir(t.TempDir())
	assert.NoError(t, LoadEnvFile(""))
	assert.Error(t, LoadEnvFile("does-not-exist.env"))
}
