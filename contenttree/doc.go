// Package contenttree models a directory hierarchy whose file leaves carry a
// content hash.
//
// A tree is populated by addressing files and directories with relative
// paths, in any order, and then sorted once with Sort so that two trees built
// from the same content iterate identically. Lookups by name use per-directory
// indexes and do not depend on sort order.
//
// Each node carries the markers a sync plan sets: a copy destination on nodes
// of a source tree and a delete flag on nodes of a destination tree.
package contenttree
