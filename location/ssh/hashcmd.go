package ssh

import (
	"fmt"
	"slices"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/location"
)

// HashCommand describes a remote hashing program and the layout of its
// output lines: a fixed-length hash, a fixed-length spacer and the full path.
type HashCommand struct {
	// Command is the program and its arguments, run by xargs with file paths appended.
	Command string

	// Length is the number of characters of the hash.
	Length int

	// SpacerLength is the number of characters between the hash and the path.
	SpacerLength int

	// Ignored lists paths whose lines are skipped rather than rejected.
	// Hash programs reading an empty stdin report the path "-".
	Ignored []string
}

// Sha256Sum is the GNU coreutils hasher: "<hash>  <path>".
func Sha256Sum() HashCommand {
	return HashCommand{Command: "sha256sum", Length: 64, SpacerLength: 2, Ignored: []string{"-"}}
}

// Sha256 is the BSD hasher in reversed output mode: "<hash> <path>".
func Sha256() HashCommand {
	return HashCommand{Command: "sha256 -r", Length: 64, SpacerLength: 1, Ignored: []string{"-"}}
}

// ParseLine parses one output line. baseDir must end with a slash. It
// returns skip for lines whose path is in the Ignored list.
//
// A line starting with a backslash carries an escaped path, the way GNU
// coreutils reports names containing a backslash or a line break.
func (h HashCommand) ParseLine(baseDir, line string) (fh location.FileHash, skip bool, err error) {
	escaped := strings.HasPrefix(line, `\`)
	if escaped {
		line = line[1:]
	}
	prefixLen := h.Length + h.SpacerLength
	if len(line) <= prefixLen {
		return location.FileHash{}, false, malformedLine("hash line too short", line)
	}

	hash := line[:h.Length]
	fullPath := line[prefixLen:]
	if escaped {
		unescaped, err := unescapePath(fullPath)
		if err != nil {
			return location.FileHash{}, false, malformedLine(err.Error(), line)
		}
		fullPath = unescaped
	}
	if slices.Contains(h.Ignored, fullPath) {
		return location.FileHash{}, true, nil
	}
	if strings.Contains(hash, " ") {
		return location.FileHash{}, false, malformedLine("hash contains a space", line)
	}

	rel, ok := strings.CutPrefix(fullPath, baseDir)
	if !ok || rel == "" {
		return location.FileHash{}, false, malformedLine(fmt.Sprintf("path is not under %s", baseDir), line)
	}
	return location.FileHash{Path: rel, Hash: hash}, false, nil
}

func malformedLine(reason, line string) error {
	return errors.NewError(errors.CodeMalformedOutput, "parse listing",
		fmt.Errorf("%w: %s: %q", errors.ErrMalformedListing, reason, line))
}

// unescapePath reverses the escaping of an escaped hash line. Names holding a
// line break are rejected since snapshots store one path per line.
func unescapePath(p string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		if p[i] != '\\' {
			b.WriteByte(p[i])
			continue
		}
		if i+1 == len(p) {
			return "", fmt.Errorf("dangling escape in path")
		}
		i++
		switch p[i] {
		case '\\':
			b.WriteByte('\\')
		case 'n', 'r':
			return "", fmt.Errorf("file names containing line breaks are not supported")
		default:
			return "", fmt.Errorf("unknown escape \\%c in path", p[i])
		}
	}
	return b.String(), nil
}
