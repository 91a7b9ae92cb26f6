package ssh

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/executor"
)

// connectionFailedExit is the status ssh exits with when it could not reach
// the remote host, as opposed to the status of the remote command.
const connectionFailedExit = 255

// ExternalShell runs the system ssh and scp programs (or compatible ones such
// as plink and pscp) for every operation.
type ExternalShell struct {
	runner     executor.Runner
	target     string
	sshProgram string
	scpProgram string
	sshArgs    []string
}

// ExternalOption configures an ExternalShell.
type ExternalOption func(*ExternalShell)

// WithPrograms overrides the ssh and scp program names.
func WithPrograms(sshProgram, scpProgram string) ExternalOption {
	return func(s *ExternalShell) {
		s.sshProgram = sshProgram
		s.scpProgram = scpProgram
	}
}

// WithSSHArgs adds arguments passed to both programs before the target,
// e.g. "-i", "~/.ssh/deploy".
func WithSSHArgs(args ...string) ExternalOption {
	return func(s *ExternalShell) {
		s.sshArgs = append(s.sshArgs, args...)
	}
}

var _ Shell = (*ExternalShell)(nil)

// NewExternalShell returns a shell for target ("user@host" or "host").
func NewExternalShell(runner executor.Runner, target string, opts ...ExternalOption) *ExternalShell {
	s := &ExternalShell{
		runner:     runner,
		target:     target,
		sshProgram: "ssh",
		scpProgram: "scp",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// String implements Shell.
func (s *ExternalShell) String() string {
	return s.target
}

// Run implements Shell.
func (s *ExternalShell) Run(ctx context.Context, command string) (*executor.Result, error) {
	args := append(append([]string{}, s.sshArgs...), s.target, command)
	cmd := executor.New(s.sshProgram, args...).
		Describe(fmt.Sprintf("%s %s %s", s.sshProgram, s.target, command))
	return s.runner.Run(ctx, cmd)
}

// CopyFile implements Shell.
func (s *ExternalShell) CopyFile(ctx context.Context, localPath, remoteDir string) error {
	return s.copy(ctx, localPath, remoteDir, false)
}

// CopyDir implements Shell.
func (s *ExternalShell) CopyDir(ctx context.Context, localPath, remoteDir string) error {
	return s.copy(ctx, localPath, remoteDir, true)
}

func (s *ExternalShell) copy(ctx context.Context, localPath, remoteDir string, recursive bool) error {
	args := append([]string{}, s.sshArgs...)
	if recursive {
		args = append(args, "-r")
	}
	// Paths that need quoting go through the legacy protocol, which hands them
	// to the remote shell. The SFTP protocol would take the quotes literally.
	if needsQuoting(remoteDir) {
		args = append(args, "-O")
		remoteDir = quote(remoteDir)
	}
	destination := s.target + ":" + remoteDir
	args = append(args, localPath, destination)

	cmd := executor.New(s.scpProgram, args...)
	_, err := s.runner.Run(ctx, cmd)
	return err
}

// Close implements Shell. Every operation starts its own process.
func (s *ExternalShell) Close() error {
	return nil
}

// ConnectionFailed reports whether err is an ssh run that never reached the
// remote host. Such failures are safe to retry.
func ConnectionFailed(err error) bool {
	var cmdErr *errors.CommandError
	return stderrors.As(err, &cmdErr) && cmdErr.ExitCode == connectionFailedExit
}

func needsQuoting(p string) bool {
	return strings.IndexFunc(p, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		case strings.ContainsRune("/._-+=@%,:", r):
			return false
		}
		return true
	}) >= 0
}
