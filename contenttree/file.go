package contenttree

import (
	"fmt"
	"strings"
)

// File is a file leaf of a content tree.
type File struct {
	// Name is the file name within its directory.
	Name string

	// Hash is the content fingerprint. It is never empty.
	Hash string

	// ParentPath holds the names of the ancestor directories from the root.
	ParentPath []string

	// CopyDestination is the destination directory this file must be copied
	// into. Only set on files of a source tree.
	CopyDestination *Dir

	// ToBeDeleted is set on files of a destination tree absent from the source.
	ToBeDeleted bool
}

// MarkToCopy marks the file to be copied into the given destination directory.
func (f *File) MarkToCopy(destination *Dir) {
	f.CopyDestination = destination
}

// MarkToDelete marks the file for deletion.
func (f *File) MarkToDelete() {
	f.ToBeDeleted = true
}

// RelativePath returns the slash-separated path of the file from the root.
func (f *File) RelativePath() string {
	if len(f.ParentPath) == 0 {
		return f.Name
	}
	return strings.Join(f.ParentPath, "/") + "/" + f.Name
}

func (f *File) String() string {
	return fmt.Sprintf("%s (%s)", f.Name, f.Hash)
}
