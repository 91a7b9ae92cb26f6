// Package sync groups the stages of a one-way sync run: scanner builds the
// content trees of both locations, planner marks what must be copied and
// deleted, and executor carries the marks out.
package sync
