// Package persistence holds reference implementations of
// capability.ResultPersister (spec.md §6): the engine itself never writes
// an iteration artifact to durable storage, it only calls through this
// interface.
//
// Two implementations are provided: FileResultPersister, which lays out
// runs/<runId>/iterations/<n>/{agent-result,verification}.json under a root
// directory the caller chooses, and SQLResultPersister, which stores the
// same two JSON blobs as rows in a database/sql table across sqlite,
// postgres, and mysql.
package persistence

import "errors"

// ErrInvalidRoot is returned when a FileResultPersister is constructed with
// an empty root directory.
var ErrInvalidRoot = errors.New("persistence: root must not be empty")
