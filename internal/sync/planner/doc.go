// Package planner marks the operations that bring a destination tree in line
// with a source tree.
//
// Marks are placed on the trees themselves: a source directory or file whose
// CopyDestination is set must be copied into that destination directory, and
// a destination directory or file with ToBeDeleted set must be removed. A
// marked directory is handled as a whole and nothing below it is marked.
//
// Directories and files are matched by exact name; files are equal when their
// hashes are equal as strings. A renamed file is an add plus a delete.
package planner
