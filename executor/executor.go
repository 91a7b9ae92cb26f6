// Package executor runs the external commands contentsync delegates to, such
// as remote listing and hashing over ssh, scp copies and remote deletes.
// Commands carry a human-readable description used in diagnostics, and a
// non-zero exit is reported as an *errors.CommandError.
package executor

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/errors"
)

// Command describes one external program invocation.
type Command struct {
	// Program is the executable to run.
	Program string

	// Args are the program arguments.
	Args []string

	// Description identifies the command in logs and errors. When empty the
	// program and arguments are used.
	Description string

	// Stdin, if set, is fed to the process.
	Stdin io.Reader
}

// New returns a Command for program and args.
func New(program string, args ...string) Command {
	return Command{Program: program, Args: args}
}

// Describe returns a copy of c with the given description.
func (c Command) Describe(description string) Command {
	c.Description = description
	return c
}

// String returns the description, falling back to the command line.
func (c Command) String() string {
	if c.Description != "" {
		return c.Description
	}
	return strings.Join(append([]string{c.Program}, c.Args...), " ")
}

// Result holds the output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Lines returns stdout split into lines, without a trailing empty line.
func (r *Result) Lines() []string {
	out := strings.TrimRight(r.Stdout, "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// Runner runs commands to completion.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Options configures command execution behavior.
type Options struct {
	// MaxRetries is the number of extra attempts after a failure.
	MaxRetries int
	RetryDelay time.Duration
	// RetryOn decides whether a failure is retried. Nil retries every failure.
	RetryOn func(error) bool
}

// Option is a function that modifies Options.
type Option func(*Options)

// DefaultOptions returns default execution options.
func DefaultOptions() *Options {
	return &Options{
		RetryDelay: time.Second,
	}
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	options *Options
	logger  *slog.Logger
}

// NewExecRunner creates a runner with the given options.
func NewExecRunner(logger *slog.Logger, opts ...Option) *ExecRunner {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ExecRunner{options: options, logger: logger}
}

// Run implements Runner. A command that exits non-zero yields its Result and
// an *errors.CommandError.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	maxAttempts := r.options.MaxRetries + 1
	var (
		result *Result
		err    error
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		r.logger.Debug("Running command", "command", cmd.String(), "attempt", attempt)
		result, err = r.runOnce(ctx, cmd)

		if err == nil || attempt == maxAttempts {
			break
		}
		if r.options.RetryOn != nil && !r.options.RetryOn(err) {
			break
		}
		// Stdin readers cannot be replayed.
		if cmd.Stdin != nil {
			break
		}

		r.logger.Warn("Command failed, retrying", "command", cmd.String(), "error", err)
		select {
		case <-ctx.Done():
			return result, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(r.options.RetryDelay):
		}
	}

	return result, err
}

func (r *ExecRunner) runOnce(ctx context.Context, cmd Command) (*Result, error) {
	c := exec.CommandContext(ctx, cmd.Program, cmd.Args...)
	c.Stdin = cmd.Stdin

	var stdoutBuf, stderrBuf bytes.Buffer
	c.Stdout = &stdoutBuf
	c.Stderr = &stderrBuf

	err := c.Run()
	result := &Result{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return result, nil
	case stderrors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		return result, &errors.CommandError{
			Description: cmd.String(),
			ExitCode:    result.ExitCode,
			Stderr:      result.Stderr,
		}
	default:
		result.ExitCode = -1
		return result, errors.NewError(errors.CodeExecutionFailed, "run command",
			fmt.Errorf("%s: %w", cmd.String(), err))
	}
}

// WithRetry configures retry behavior.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(o *Options) {
		o.MaxRetries = maxRetries
		o.RetryDelay = delay
	}
}

// WithRetryCondition sets a custom retry condition.
func WithRetryCondition(fn func(error) bool) Option {
	return func(o *Options) {
		o.RetryOn = fn
	}
}
