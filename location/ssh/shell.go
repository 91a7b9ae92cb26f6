package ssh

import (
	"context"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/executor"
)

// Shell runs commands on, and copies local paths to, one remote host.
type Shell interface {
	// String returns the remote target, e.g. "user@host".
	String() string

	// Run runs command with the remote shell. A non-zero exit yields an
	// *errors.CommandError along with the result.
	Run(ctx context.Context, command string) (*executor.Result, error)

	// CopyFile copies the local file localPath into remoteDir.
	CopyFile(ctx context.Context, localPath, remoteDir string) error

	// CopyDir copies the local directory localPath, recursively, into remoteDir.
	CopyDir(ctx context.Context, localPath, remoteDir string) error

	// Close releases the connection, if any.
	Close() error
}

// quote single-quotes s for a POSIX shell.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
