package ssh

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"sort"
	"strconv"

	gossh "golang.org/x/crypto/ssh"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/executor"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/fs"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/fs/billy"
)

// NativeShell keeps one SSH connection open for the whole run. Commands run
// in their own sessions and uploads speak the SCP protocol to the remote
// "scp -t" sink, so no local ssh or scp programs are needed.
type NativeShell struct {
	client     *gossh.Client
	authCloser io.Closer
	target     string
	fs         fs.Filesystem
	logger     *slog.Logger
}

// NativeConfig describes the remote endpoint.
type NativeConfig struct {
	User string
	Host string
	Port int
	Auth *AuthProvider
}

// NativeOption configures a NativeShell.
type NativeOption func(*NativeShell)

// WithLocalFS sets the filesystem uploads are read from. Defaults to the
// native filesystem.
func WithLocalFS(fsys fs.Filesystem) NativeOption {
	return func(s *NativeShell) {
		s.fs = fsys
	}
}

// WithNativeLogger sets the logger.
func WithNativeLogger(logger *slog.Logger) NativeOption {
	return func(s *NativeShell) {
		s.logger = logger
	}
}

var _ Shell = (*NativeShell)(nil)

// Dial connects and authenticates.
func Dial(ctx context.Context, cfg NativeConfig, opts ...NativeOption) (*NativeShell, error) {
	if cfg.Auth == nil {
		return nil, errors.NewError(errors.CodeInvalidInput, "dial ssh",
			fmt.Errorf("%w: no SSH authentication configured", errors.ErrInvalidInput))
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	clientConfig, authCloser, err := cfg.Auth.ClientConfig(cfg.User)
	if err != nil {
		return nil, err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		_ = authCloser.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	c, chans, reqs, err := gossh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		_ = authCloser.Close()
		return nil, fmt.Errorf("failed to establish SSH connection to %s: %w", addr, err)
	}

	target := cfg.Host
	if cfg.User != "" {
		target = cfg.User + "@" + cfg.Host
	}
	s := &NativeShell{
		client:     gossh.NewClient(c, chans, reqs),
		authCloser: authCloser,
		target:     target,
		fs:         billy.NewBaseOSFS(),
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debug("Connected", "target", target, "addr", addr)
	return s, nil
}

// String implements Shell.
func (s *NativeShell) String() string {
	return s.target
}

// Run implements Shell.
func (s *NativeShell) Run(ctx context.Context, command string) (*executor.Result, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open SSH session: %w", err)
	}
	defer session.Close() //nolint:errcheck // closed after Run

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	stop := closeOnCancel(ctx, session)
	err = session.Run(command)
	stop()

	result := &executor.Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		return result, s.sessionError(ctx, "ssh "+s.target+" "+command, result, err)
	}
	return result, nil
}

// CopyFile implements Shell.
func (s *NativeShell) CopyFile(ctx context.Context, localPath, remoteDir string) error {
	return s.upload(ctx, localPath, remoteDir, false)
}

// CopyDir implements Shell.
func (s *NativeShell) CopyDir(ctx context.Context, localPath, remoteDir string) error {
	return s.upload(ctx, localPath, remoteDir, true)
}

func (s *NativeShell) upload(ctx context.Context, localPath, remoteDir string, recursive bool) error {
	info, err := s.fs.Stat(localPath)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}
	if info.IsDir() != recursive {
		return errors.NewPathError(errors.CodeInvalidInput, "upload", localPath,
			fmt.Errorf("%w: directory flag does not match path type", errors.ErrInvalidInput))
	}

	session, err := s.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to open SSH session: %w", err)
	}
	defer session.Close() //nolint:errcheck // closed after Wait

	stdin, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open scp stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open scp stdout: %w", err)
	}
	var stderr bytes.Buffer
	session.Stderr = &stderr

	command := "scp -t " + quote(remoteDir)
	if recursive {
		command = "scp -r -t " + quote(remoteDir)
	}
	description := fmt.Sprintf("scp %s %s:%s", localPath, s.target, remoteDir)
	if err := session.Start(command); err != nil {
		return fmt.Errorf("failed to start %s: %w", command, err)
	}

	stop := closeOnCancel(ctx, session)
	defer stop()

	src := &scpSource{w: stdin, r: bufio.NewReader(stdout), fs: s.fs}
	sendErr := src.ack()
	if sendErr == nil {
		if recursive {
			sendErr = src.sendDir(ctx, localPath, info)
		} else {
			sendErr = src.sendFile(localPath, info)
		}
	}
	_ = stdin.Close()
	waitErr := session.Wait()

	if sendErr != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%s: %w: %s", description, sendErr, stderr.String())
		}
		return fmt.Errorf("%s: %w", description, sendErr)
	}
	if waitErr != nil {
		return s.sessionError(ctx, description, &executor.Result{Stderr: stderr.String()}, waitErr)
	}
	s.logger.Debug("Uploaded", "source", localPath, "target", remoteDir, "recursive", recursive)
	return nil
}

func (s *NativeShell) sessionError(ctx context.Context, description string, result *executor.Result, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", description, ctxErr)
	}
	var exitErr *gossh.ExitError
	var missingErr *gossh.ExitMissingError
	switch {
	case stderrors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitStatus()
	case stderrors.As(err, &missingErr):
		result.ExitCode = -1
	default:
		return errors.NewError(errors.CodeExecutionFailed, "ssh session", fmt.Errorf("%s: %w", description, err))
	}
	return &errors.CommandError{Description: description, ExitCode: result.ExitCode, Stderr: result.Stderr}
}

// Close implements Shell.
func (s *NativeShell) Close() error {
	err := s.client.Close()
	if closeErr := s.authCloser.Close(); err == nil {
		err = closeErr
	}
	if err != nil && !stderrors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close SSH connection to %s: %w", s.target, err)
	}
	return nil
}

// closeOnCancel closes session when ctx is cancelled before stop is called.
func closeOnCancel(ctx context.Context, session *gossh.Session) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// scpSource sends files to a remote "scp -t" process.
type scpSource struct {
	w  io.Writer
	r  *bufio.Reader
	fs fs.Filesystem
}

func (s *scpSource) ack() error {
	b, err := s.r.ReadByte()
	if err != nil {
		return fmt.Errorf("failed to read scp response: %w", err)
	}
	if b == 0 {
		return nil
	}
	msg, _ := s.r.ReadString('\n')
	return fmt.Errorf("scp: %s", bytes.TrimSpace([]byte(msg)))
}

func (s *scpSource) sendFile(localPath string, info os.FileInfo) error {
	f, err := s.fs.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	if _, err := fmt.Fprintf(s.w, "C%04o %d %s\n", info.Mode().Perm(), info.Size(), path.Base(localPath)); err != nil {
		return err
	}
	if err := s.ack(); err != nil {
		return err
	}
	if _, err := io.CopyN(s.w, f, info.Size()); err != nil {
		return fmt.Errorf("failed to send %s: %w", localPath, err)
	}
	if _, err := s.w.Write([]byte{0}); err != nil {
		return err
	}
	return s.ack()
}

func (s *scpSource) sendDir(ctx context.Context, localPath string, info os.FileInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "D%04o 0 %s\n", info.Mode().Perm(), path.Base(localPath)); err != nil {
		return err
	}
	if err := s.ack(); err != nil {
		return err
	}

	entries, err := s.fs.ReadDir(localPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", localPath, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		child := path.Join(localPath, entry.Name())
		switch {
		case entry.IsDir():
			err = s.sendDir(ctx, child, entry)
		case entry.Mode().IsRegular():
			err = s.sendFile(child, entry)
		default:
			continue
		}
		if err != nil {
			return err
		}
	}

	if _, err := fmt.Fprint(s.w, "E\n"); err != nil {
		return err
	}
	return s.ack()
}
