package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "with path",
			err:  NewPathError(CodeInvalidPath, "add file", "a/b.txt", ErrInvalidPath),
			want: `contentsync.add file "a/b.txt": contentsync: invalid path`,
		},
		{
			name: "without path",
			err:  NewError(CodeMalformedSnapshot, "parse snapshot", ErrMalformedSnapshot),
			want: "contentsync.parse snapshot: contentsync: malformed snapshot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewError(CodeInvalidPath, "add file", ErrInvalidPath).WithPath("x"))

	assert.True(t, IsInvalidPath(err))
	assert.False(t, IsMalformedSnapshot(err))
	assert.Equal(t, CodeInvalidPath, CodeOf(err))
}

func TestCommandError(t *testing.T) {
	err := &CommandError{Description: "ssh user@host rm /tmp/x", ExitCode: 1, Stderr: "no such file\n"}

	assert.Equal(t, "ssh user@host rm /tmp/x: exit status = 1: no such file", err.Error())
	assert.True(t, IsCommandFailed(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, CodeExecutionFailed, CodeOf(err))

	abnormal := &CommandError{Description: "scp", ExitCode: -1}
	assert.Equal(t, "scp: process did not exit normally", abnormal.Error())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
}
