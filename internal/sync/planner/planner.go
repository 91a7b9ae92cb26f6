package planner

import (
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/contenttree"
)

// MarkCopyOperations marks every part of source that destination lacks or
// holds with different content.
func MarkCopyOperations(source, destination *contenttree.Dir) {
	for _, dir := range source.Dirs {
		if destDir := destination.Dir(dir.Name); destDir != nil {
			MarkCopyOperations(dir, destDir)
		} else {
			dir.MarkToCopy(destination)
		}
	}
	for _, file := range source.Files {
		destFile := destination.File(file.Name)
		if destFile == nil || destFile.Hash != file.Hash {
			file.MarkToCopy(destination)
		}
	}
}

// MarkDeleteOperations marks every part of destination that source lacks.
// A file present on both sides with different content is not deleted; the
// copy overwrites it.
func MarkDeleteOperations(destination, source *contenttree.Dir) {
	for _, dir := range destination.Dirs {
		if srcDir := source.Dir(dir.Name); srcDir != nil {
			MarkDeleteOperations(dir, srcDir)
		} else {
			dir.MarkToDelete()
		}
	}
	for _, file := range destination.Files {
		if source.File(file.Name) == nil {
			file.MarkToDelete()
		}
	}
}

// MarkSyncOperations places both copy marks on source and delete marks on
// destination.
func MarkSyncOperations(source, destination *contenttree.Dir) {
	MarkCopyOperations(source, destination)
	MarkDeleteOperations(destination, source)
}
