package planner

import (
	"fmt"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/contenttree"
)

// OperationType defines the type of sync operation.
type OperationType string

const (
	// OperationCopy copies a source file or directory into a destination directory
	OperationCopy OperationType = "copy"

	// OperationDelete removes a destination file or directory
	OperationDelete OperationType = "delete"
)

// Operation is one marked operation, flattened for reporting.
type Operation struct {
	// Type of operation (copy, delete)
	Type OperationType

	// Path is the path relative to the tree root of the marked entry.
	Path string

	// Destination is the relative path of the directory a copy goes into
	// ("" for the root). Empty for deletes.
	Destination string

	// Recursive is set when the entry is a directory.
	Recursive bool
}

// String renders the operation for logs and dry-run output.
func (o Operation) String() string {
	kind := "file"
	if o.Recursive {
		kind = "dir"
	}
	if o.Type == OperationCopy {
		dest := o.Destination
		if dest == "" {
			dest = "."
		}
		return fmt.Sprintf("copy %s %s -> %s", kind, o.Path, dest)
	}
	return fmt.Sprintf("delete %s %s", kind, o.Path)
}

// Operations lists the copies marked on source followed by the deletes
// marked on destination, each in the order they are executed.
func Operations(source, destination *contenttree.Dir) []Operation {
	var ops []Operation
	Walk(source, func(dir *contenttree.Dir, file *contenttree.File) {
		if dir != nil {
			ops = append(ops, Operation{
				Type:        OperationCopy,
				Path:        dir.RelativePath(),
				Destination: dir.CopyDestination.RelativePath(),
				Recursive:   true,
			})
			return
		}
		ops = append(ops, Operation{
			Type:        OperationCopy,
			Path:        file.RelativePath(),
			Destination: file.CopyDestination.RelativePath(),
		})
	}, func(d *contenttree.Dir) bool { return d.CopyDestination != nil },
		func(f *contenttree.File) bool { return f.CopyDestination != nil })

	Walk(destination, func(dir *contenttree.Dir, file *contenttree.File) {
		if dir != nil {
			ops = append(ops, Operation{Type: OperationDelete, Path: dir.RelativePath(), Recursive: true})
			return
		}
		ops = append(ops, Operation{Type: OperationDelete, Path: file.RelativePath()})
	}, func(d *contenttree.Dir) bool { return d.ToBeDeleted },
		func(f *contenttree.File) bool { return f.ToBeDeleted })
	return ops
}

// Walk visits the marked entries of tree depth-first: sub-directories before
// the files of a directory. A marked directory is visited once with a nil
// file and not descended into; a marked file is visited with a nil dir.
func Walk(
	tree *contenttree.Dir,
	visit func(dir *contenttree.Dir, file *contenttree.File),
	dirMarked func(*contenttree.Dir) bool,
	fileMarked func(*contenttree.File) bool,
) {
	for _, dir := range tree.Dirs {
		if dirMarked(dir) {
			visit(dir, nil)
		} else {
			Walk(dir, visit, dirMarked, fileMarked)
		}
	}
	for _, file := range tree.Files {
		if fileMarked(file) {
			visit(nil, file)
		}
	}
}
