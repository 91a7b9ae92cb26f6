// Package snapshot persists content trees in a flat, line-oriented text form
// and reuses previously persisted hashes to avoid rehashing unchanged files.
//
// A snapshot is written as a depth-first pre-order walk of the tree:
//
//	T 2024-01-15 10:30:00.000 +0000
//	D dir2/
//	D dir2/dir4/
//	F <hash> dir2/dir4/file5.text
//	F <hash> file1.txt
//
// The T line is optional and only ever first. Every D and F line carries a
// full relative path, so a reader may replay lines in any order.
package snapshot

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/contenttree"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/errors"
)

const (
	timePrefix = "T "
	dirPrefix  = "D "
	filePrefix = "F "

	maxLineLength = 1024 * 1024
)

// Codec encodes and decodes content trees. The zero value is not usable;
// construct one with NewCodec. A Codec is immutable and safe to share.
type Codec struct {
	timeLayout string
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithTimeLayout sets the layout used for the capture time line.
func WithTimeLayout(layout string) CodecOption {
	return func(c *Codec) {
		c.timeLayout = layout
	}
}

// NewCodec returns a Codec using contenttree.TimeLayout unless overridden.
func NewCodec(opts ...CodecOption) Codec {
	c := Codec{timeLayout: contenttree.TimeLayout}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Encode writes tree to w.
func (c Codec) Encode(w io.Writer, tree *contenttree.Dir) error {
	bw := bufio.NewWriter(w)
	if tree.CapturedAt != nil {
		if _, err := fmt.Fprintf(bw, "%s%s\n", timePrefix, tree.CapturedAt.Format(c.timeLayout)); err != nil {
			return fmt.Errorf("failed to write time line: %w", err)
		}
	}
	if err := c.encodeDir(bw, tree, ""); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	return nil
}

func (c Codec) encodeDir(w io.Writer, dir *contenttree.Dir, prefix string) error {
	for _, sub := range dir.Dirs {
		path := prefix + sub.Name + "/"
		if _, err := fmt.Fprintf(w, "%s%s\n", dirPrefix, path); err != nil {
			return fmt.Errorf("failed to write directory line for %s: %w", path, err)
		}
		if err := c.encodeDir(w, sub, path); err != nil {
			return err
		}
	}
	for _, f := range dir.Files {
		if _, err := fmt.Fprintf(w, "%s%s %s%s\n", filePrefix, f.Hash, prefix, f.Name); err != nil {
			return fmt.Errorf("failed to write file line for %s%s: %w", prefix, f.Name, err)
		}
	}
	return nil
}

// Decode reads a tree from r. Any line that is not a time, directory or file
// line is a fatal error.
func (c Codec) Decode(r io.Reader) (*contenttree.Dir, error) {
	tree := contenttree.New()
	err := c.scan(r, func(lineNo int, line string) error {
		switch {
		case strings.HasPrefix(line, dirPrefix):
			return tree.AddDir(line[len(dirPrefix):])
		case strings.HasPrefix(line, filePrefix):
			hash, path, err := splitFileLine(line)
			if err != nil {
				return err
			}
			return tree.AddFile(path, hash)
		case strings.HasPrefix(line, timePrefix):
			t, err := c.parseTime(line)
			if err != nil {
				return err
			}
			tree.SetCapturedAt(t)
			return nil
		default:
			return malformed(lineNo, line)
		}
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// DecodeHashes reads only the capture time and the flat path to hash map
// from r, without building a tree. Unparsable lines are still fatal.
func (c Codec) DecodeHashes(r io.Reader) (*Hashes, error) {
	hashes := &Hashes{byPath: make(map[string]string)}
	err := c.scan(r, func(lineNo int, line string) error {
		switch {
		case strings.HasPrefix(line, dirPrefix):
			return nil
		case strings.HasPrefix(line, filePrefix):
			hash, path, err := splitFileLine(line)
			if err != nil {
				return err
			}
			hashes.byPath[path] = hash
			return nil
		case strings.HasPrefix(line, timePrefix):
			t, err := c.parseTime(line)
			if err != nil {
				return err
			}
			hashes.CapturedAt = &t
			return nil
		default:
			return malformed(lineNo, line)
		}
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

func (c Codec) scan(r io.Reader, handle func(lineNo int, line string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if err := handle(lineNo, line); err != nil {
			return errors.NewError(errors.CodeMalformedSnapshot, "parse snapshot",
				fmt.Errorf("line %d: %w", lineNo, err))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return nil
}

func (c Codec) parseTime(line string) (time.Time, error) {
	t, err := time.Parse(c.timeLayout, line[len(timePrefix):])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid time %q: %v", errors.ErrMalformedSnapshot, line, err)
	}
	return t, nil
}

// splitFileLine splits "F <hash> <path>"; the hash runs up to the first space
// and the path is everything after it.
func splitFileLine(line string) (hash, path string, err error) {
	hash, path, ok := strings.Cut(line[len(filePrefix):], " ")
	if !ok || hash == "" {
		return "", "", fmt.Errorf("%w: invalid file line %q", errors.ErrMalformedSnapshot, line)
	}
	return hash, path, nil
}

func malformed(lineNo int, line string) error {
	return fmt.Errorf("%w: invalid line %d: %q", errors.ErrMalformedSnapshot, lineNo, line)
}
