// Package executor carries out the operations marked on content trees
// against the source and destination locations.
//
// Operations run one at a time in tree order: all copies first, then all
// deletes. The first failure aborts the run; nothing is rolled back. In dry
// run mode every operation is logged and none is performed.
package executor
