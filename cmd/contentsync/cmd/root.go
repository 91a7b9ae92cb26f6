// Package cmd implements the contentsync command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/internal/config"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/internal/metrics"
)

// app carries the configuration shared by all commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Execute loads the environment and runs the root command.
func Execute() error {
	if err := config.LoadEnvFile(os.Getenv(config.EnvPrefix + "ENV_FILE")); err != nil {
		return err
	}
	root, err := NewRootCommand()
	if err != nil {
		return err
	}
	return root.Execute()
}

// NewRootCommand builds the command tree with flag defaults taken from the
// environment.
func NewRootCommand() (*cobra.Command, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	root := &cobra.Command{
		Use:   "contentsync",
		Short: "Mirror a local directory onto a destination by content hash",
		Long: `contentsync makes a destination directory identical to a local source
directory. Files are compared by the SHA-256 of their content, so only new and
changed files are transferred and files missing from the source are deleted.

The destination may be a local path, an ssh target ([user@]host:/path) or an
S3 prefix (s3://bucket/prefix).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	flags.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile,
		"Write Prometheus metrics to this file after each sync")

	root.AddCommand(
		newSyncCommand(a),
		newWatchCommand(a),
		newShowCommand(a),
		newSnapshotCommand(a),
	)
	return root, nil
}

func (a *app) setup(w io.Writer) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	logger, err := a.cfg.NewLogger(w)
	if err != nil {
		return err
	}
	a.logger = logger
	a.metrics = metrics.New()
	return nil
}

// writeMetrics exports metrics when a metrics file is configured.
func (a *app) writeMetrics() {
	if a.cfg.MetricsFile == "" {
		return
	}
	if err := a.metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
		a.logger.Warn("Failed to write metrics", "path", a.cfg.MetricsFile, "error", err)
	}
}

// bindSyncFlags registers the flags shared by sync and watch.
func bindSyncFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	flags.StringVar(&cfg.Source, "source", cfg.Source, "Local source directory")
	flags.StringVar(&cfg.Destination, "destination", cfg.Destination,
		"Destination: local path, [user@]host:/path or s3://bucket/prefix")
	flags.StringVar(&cfg.SourceSnapshot, "source-snapshot", cfg.SourceSnapshot,
		"Snapshot file caching source hashes")
	flags.StringVar(&cfg.DestinationSnapshot, "destination-snapshot", cfg.DestinationSnapshot,
		"Snapshot file caching the destination listing")
	flags.StringSliceVar(&cfg.Include, "include", cfg.Include, "Only sync files matching these patterns")
	flags.StringSliceVar(&cfg.Exclude, "exclude", cfg.Exclude, "Skip files matching these patterns")
	flags.StringSliceVar(&cfg.DirExclude, "dir-exclude", cfg.DirExclude,
		"Skip directories matching these patterns")
	flags.StringVar(&cfg.Shell, "shell", cfg.Shell, "SSH transport (external, native)")
	flags.StringVar(&cfg.SSHProgram, "ssh-program", cfg.SSHProgram, "ssh program used by the external shell")
	flags.StringVar(&cfg.SCPProgram, "scp-program", cfg.SCPProgram, "scp program used by the external shell")
	flags.IntVar(&cfg.SSHPort, "ssh-port", cfg.SSHPort, "SSH port")
	flags.IntVar(&cfg.SSHRetries, "ssh-retries", cfg.SSHRetries,
		"Retries of external ssh and scp commands that fail to connect")
	flags.StringVar(&cfg.SSHIdentity, "ssh-identity", cfg.SSHIdentity,
		"Private key file (the native shell uses the ssh agent when unset)")
	flags.StringVar(&cfg.SSHKnownHosts, "ssh-known-hosts", cfg.SSHKnownHosts,
		"known_hosts file used by the native shell")
	flags.StringVar(&cfg.HashCommand, "hash-command", cfg.HashCommand,
		"Remote hash program (sha256sum, sha256)")
	flags.StringVar(&cfg.S3Region, "s3-region", cfg.S3Region, "S3 region")
	flags.StringVar(&cfg.S3Endpoint, "s3-endpoint", cfg.S3Endpoint, "S3-compatible endpoint URL")
	flags.BoolVar(&cfg.S3PathStyle, "s3-path-style", cfg.S3PathStyle, "Use path-style S3 addressing")
	flags.BoolVarP(&cfg.DryRun, "dry-run", "n", cfg.DryRun, "Show what would be done without doing it")
	flags.BoolVar(&cfg.Full, "full", cfg.Full, "Discard snapshots and rehash everything")
}

// applyArgs lets the source and destination be given positionally.
func applyArgs(cfg *config.Config, args []string) error {
	switch len(args) {
	case 0:
	case 2:
		cfg.Source, cfg.Destination = args[0], args[1]
	default:
		return fmt.Errorf("expected <source> <destination>, got %d arguments", len(args))
	}
	return cfg.ValidateSync()
}
