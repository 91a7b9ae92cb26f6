package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/executor"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/fs/billy"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/internal/config"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/location"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/location/local"
	s3loc "github.com/input-output-hk/catalyst-forge-libs/contentsync/location/s3"
	sshloc "github.com/input-output-hk/catalyst-forge-libs/contentsync/location/ssh"
)

// DestinationKind identifies the kind of location a destination names.
type DestinationKind string

const (
	DestinationLocal DestinationKind = "local"
	DestinationSSH   DestinationKind = "ssh"
	DestinationS3    DestinationKind = "s3"
)

// Destination is a parsed destination argument.
type Destination struct {
	Kind DestinationKind

	// Path is the directory for local and ssh destinations, and the key
	// prefix for s3.
	Path string

	// User and Host address an ssh destination. User may be empty.
	User string
	Host string

	// Bucket is the s3 bucket.
	Bucket string
}

// Target returns the ssh target, "user@host" or "host".
func (d Destination) Target() string {
	if d.User == "" {
		return d.Host
	}
	return d.User + "@" + d.Host
}

// ParseDestination parses "s3://bucket/prefix", "[user@]host:/path" or a
// local path. A colon only marks an ssh destination when no slash precedes
// it, so "./a:b" stays local.
func ParseDestination(s string) (Destination, error) {
	if s == "" {
		return Destination{}, fmt.Errorf("destination is empty")
	}

	if strings.HasPrefix(s, "s3://") {
		u, err := url.Parse(s)
		if err != nil {
			return Destination{}, fmt.Errorf("invalid s3 destination %q: %w", s, err)
		}
		if u.Host == "" {
			return Destination{}, fmt.Errorf("invalid s3 destination %q: missing bucket", s)
		}
		return Destination{Kind: DestinationS3, Bucket: u.Host, Path: strings.Trim(u.Path, "/")}, nil
	}

	colon := strings.Index(s, ":")
	slash := strings.Index(s, "/")
	if colon > 0 && (slash < 0 || colon < slash) {
		target, remotePath := s[:colon], s[colon+1:]
		d := Destination{Kind: DestinationSSH, Host: target, Path: remotePath}
		if at := strings.LastIndex(target, "@"); at >= 0 {
			d.User, d.Host = target[:at], target[at+1:]
		}
		if d.Host == "" {
			return Destination{}, fmt.Errorf("invalid ssh destination %q: missing host", s)
		}
		if !strings.HasPrefix(remotePath, "/") {
			return Destination{}, fmt.Errorf("invalid ssh destination %q: remote path must be absolute", s)
		}
		return d, nil
	}

	return Destination{Kind: DestinationLocal, Path: s}, nil
}

// openSource returns the local source location.
func (a *app) openSource() (*local.Location, error) {
	base, err := filepath.Abs(a.cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source: %w", err)
	}
	info, err := os.Stat(base)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", base)
	}
	return local.New(billy.NewBaseOSFS(), base,
		local.WithLogger(a.logger),
		local.WithInclude(a.cfg.Include...),
		local.WithExclude(a.cfg.Exclude...),
		local.WithDirExclude(a.cfg.DirExclude...),
	)
}

// openDestination connects to the configured destination.
func (a *app) openDestination(ctx context.Context) (location.Location, error) {
	dest, err := ParseDestination(a.cfg.Destination)
	if err != nil {
		return nil, err
	}

	switch dest.Kind {
	case DestinationS3:
		client, err := s3loc.NewClient(ctx, s3loc.ClientConfig{
			Region:         a.cfg.S3Region,
			Endpoint:       a.cfg.S3Endpoint,
			ForcePathStyle: a.cfg.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return s3loc.New(client, dest.Bucket, dest.Path, s3loc.WithLogger(a.logger))

	case DestinationSSH:
		shell, err := a.openShell(ctx, dest)
		if err != nil {
			return nil, err
		}
		hash := sshloc.Sha256Sum()
		if a.cfg.HashCommand == config.HashSha256 {
			hash = sshloc.Sha256()
		}
		loc, err := sshloc.New(shell, dest.Path, sshloc.WithHashCommand(hash), sshloc.WithLogger(a.logger))
		if err != nil {
			_ = shell.Close()
			return nil, err
		}
		return loc, nil

	default:
		base, err := filepath.Abs(dest.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve destination: %w", err)
		}
		fsys := billy.NewBaseOSFS()
		if err := fsys.MkdirAll(base, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create destination: %w", err)
		}
		return local.New(fsys, base, local.WithLogger(a.logger))
	}
}

func (a *app) openShell(ctx context.Context, dest Destination) (sshloc.Shell, error) {
	if a.cfg.Shell == config.ShellNative {
		auth := sshloc.NewAgentAuth()
		if a.cfg.SSHIdentity != "" {
			auth = sshloc.NewKeyFileAuth(a.cfg.SSHIdentity, os.Getenv(config.EnvPrefix+"SSH_PASSPHRASE"))
		}
		if a.cfg.SSHKnownHosts != "" {
			auth = auth.WithKnownHosts(a.cfg.SSHKnownHosts)
		}
		username := dest.User
		if username == "" {
			u, err := user.Current()
			if err != nil {
				return nil, fmt.Errorf("failed to determine ssh user: %w", err)
			}
			username = u.Username
		}
		return sshloc.Dial(ctx, sshloc.NativeConfig{
			User: username,
			Host: dest.Host,
			Port: a.cfg.SSHPort,
			Auth: auth,
		}, sshloc.WithNativeLogger(a.logger))
	}

	var args []string
	if a.cfg.SSHPort != 22 {
		args = append(args, "-o", "Port="+strconv.Itoa(a.cfg.SSHPort))
	}
	if a.cfg.SSHIdentity != "" {
		args = append(args, "-i", a.cfg.SSHIdentity)
	}
	var runOpts []executor.Option
	if a.cfg.SSHRetries > 0 {
		runOpts = append(runOpts,
			executor.WithRetry(a.cfg.SSHRetries, time.Second),
			executor.WithRetryCondition(sshloc.ConnectionFailed),
		)
	}
	runner := executor.NewExecRunner(a.logger, runOpts...)
	return sshloc.NewExternalShell(runner, dest.Target(),
		sshloc.WithPrograms(a.cfg.SSHProgram, a.cfg.SCPProgram),
		sshloc.WithSSHArgs(args...),
	), nil
}
