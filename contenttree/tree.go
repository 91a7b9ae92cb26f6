package contenttree

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/errors"
)

// TimeLayout is the layout used to render capture times, e.g.
// "2007-12-23 13:03:09.012 +0000".
const TimeLayout = "2006-01-02 15:04:05.000 -0700"

// Dir is one directory level of a content tree. The root has an empty Name
// and no PathElements.
type Dir struct {
	// Name is the directory name within its parent ("" for the root).
	Name string

	// PathElements holds the directory names from the root to this directory.
	PathElements []string

	// Dirs holds the immediate sub-directories.
	Dirs []*Dir

	// Files holds the files immediately contained in this directory.
	Files []*File

	// CopyDestination is the destination directory this whole directory must
	// be copied into. Only set on directories of a source tree.
	CopyDestination *Dir

	// ToBeDeleted is set on directories of a destination tree absent from the source.
	ToBeDeleted bool

	// CapturedAt is the time the tree was captured. Only set on a root.
	CapturedAt *time.Time

	dirByName  map[string]*Dir
	fileByName map[string]*File
}

// New returns an empty root directory.
func New() *Dir {
	return &Dir{
		dirByName:  make(map[string]*Dir),
		fileByName: make(map[string]*File),
	}
}

func newSubDir(name string, parentPath []string) *Dir {
	elements := make([]string, len(parentPath), len(parentPath)+1)
	copy(elements, parentPath)
	d := New()
	d.Name = name
	d.PathElements = append(elements, name)
	return d
}

// IsRoot reports whether d is the root of its tree.
func (d *Dir) IsRoot() bool {
	return len(d.PathElements) == 0
}

// RelativePath returns the slash-separated path of the directory from the root.
func (d *Dir) RelativePath() string {
	return strings.Join(d.PathElements, "/")
}

// SetCapturedAt records the capture time of the tree.
func (d *Dir) SetCapturedAt(t time.Time) {
	d.CapturedAt = &t
}

// MarkToCopy marks the directory to be copied into the given destination directory.
func (d *Dir) MarkToCopy(destination *Dir) {
	d.CopyDestination = destination
}

// MarkToDelete marks the directory for deletion.
func (d *Dir) MarkToDelete() {
	d.ToBeDeleted = true
}

// Dir returns the named immediate sub-directory, or nil.
func (d *Dir) Dir(name string) *Dir {
	return d.dirByName[name]
}

// File returns the named immediate file, or nil.
func (d *Dir) File(name string) *File {
	return d.fileByName[name]
}

// AddDir adds the directory at the slash-separated relative path, creating
// intermediate directories as needed. An empty path refers to d itself.
func (d *Dir) AddDir(path string) error {
	elements, err := SplitPath(path)
	if err != nil {
		return errors.NewPathError(errors.CodeInvalidPath, "add dir", path, err)
	}
	d.AddDirElements(elements)
	return nil
}

// AddDirElements adds the directory addressed by pre-split path elements.
func (d *Dir) AddDirElements(elements []string) {
	if len(elements) == 0 {
		return
	}
	d.subDir(elements[0]).AddDirElements(elements[1:])
}

// AddFile adds a file with the given hash at the slash-separated relative
// path, creating intermediate directories as needed. Adding the same path
// twice is not supported.
func (d *Dir) AddFile(path, hash string) error {
	elements, err := SplitPath(path)
	if err != nil {
		return errors.NewPathError(errors.CodeInvalidPath, "add file", path, err)
	}
	return d.AddFileElements(elements, hash)
}

// AddFileElements adds a file addressed by pre-split path elements.
func (d *Dir) AddFileElements(elements []string, hash string) error {
	if len(elements) == 0 {
		return errors.NewError(errors.CodeInvalidPath, "add file",
			fmt.Errorf("%w: empty file path", errors.ErrInvalidPath))
	}
	if hash == "" {
		return errors.NewPathError(errors.CodeInvalidInput, "add file",
			strings.Join(elements, "/"), errors.ErrEmptyHash)
	}
	if len(elements) > 1 {
		return d.subDir(elements[0]).AddFileElements(elements[1:], hash)
	}

	name := elements[0]
	parentPath := make([]string, len(d.PathElements))
	copy(parentPath, d.PathElements)
	file := &File{
		Name:       name,
		Hash:       hash,
		ParentPath: parentPath,
	}
	d.Files = append(d.Files, file)
	d.fileByName[name] = file
	return nil
}

// subDir gets or creates the named immediate sub-directory.
func (d *Dir) subDir(name string) *Dir {
	if sub, ok := d.dirByName[name]; ok {
		return sub
	}
	sub := newSubDir(name, d.PathElements)
	d.Dirs = append(d.Dirs, sub)
	d.dirByName[name] = sub
	return sub
}

// Sort recursively orders directories and files by name.
func (d *Dir) Sort() {
	sort.Slice(d.Dirs, func(i, j int) bool { return d.Dirs[i].Name < d.Dirs[j].Name })
	sort.Slice(d.Files, func(i, j int) bool { return d.Files[i].Name < d.Files[j].Name })
	for _, sub := range d.Dirs {
		sub.Sort()
	}
}

// SubDirs returns every directory below d, parents before children.
func (d *Dir) SubDirs() []*Dir {
	var result []*Dir
	for _, sub := range d.Dirs {
		result = append(result, sub)
		result = append(result, sub.SubDirs()...)
	}
	return result
}

// AllFiles returns every file below d, the files of d first.
func (d *Dir) AllFiles() []*File {
	result := append([]*File(nil), d.Files...)
	for _, sub := range d.SubDirs() {
		result = append(result, sub.Files...)
	}
	return result
}

// Hashes returns the flat relative path to hash map of every file below d.
func (d *Dir) Hashes() map[string]string {
	hashes := make(map[string]string)
	for _, f := range d.AllFiles() {
		hashes[f.RelativePath()] = f.Hash
	}
	return hashes
}

// SplitPath splits a slash-separated relative path into its elements. Empty
// elements are dropped, so "" and "/" address the root and "a/b/" equals
// "a/b". "." and ".." elements are rejected.
func SplitPath(path string) ([]string, error) {
	var elements []string
	for _, element := range strings.Split(path, "/") {
		switch element {
		case "":
			continue
		case ".", "..":
			return nil, fmt.Errorf("%w: relative element %q", errors.ErrInvalidPath, element)
		}
		elements = append(elements, element)
	}
	return elements, nil
}
