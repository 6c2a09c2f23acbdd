// Package store defines the document store capability the relationship core
// depends on: keyed document reads/writes, bounded multi-document
// transactions, and single-sort-key queries. Production runs on the
// Firestore adapter; tests and local development run on the in-memory one.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no document exists at the path
var ErrNotFound = errors.New("store: document not found")

// ErrAborted is returned by RunTransaction when the conflict retry budget
// is exhausted
var ErrAborted = errors.New("store: transaction aborted")

// ErrUnavailable is returned on transport failure
var ErrUnavailable = errors.New("store: unavailable")

// Document is a raw document snapshot: full path, last path segment, and
// loosely typed field data. Callers decode Data through typed DTOs.
type Document struct {
	Path string
	ID   string
	Data map[string]any
}

// Direction is a sort direction for OrderBy
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Store is the top-level document store handle
type Store interface {
	// Get reads the document at path, or ErrNotFound
	Get(ctx context.Context, path string) (*Document, error)

	// Set writes data at path. With merge, existing fields not named in
	// data are left untouched; otherwise the document is replaced.
	Set(ctx context.Context, path string, data map[string]any, merge bool) error

	// Update applies field updates to an existing document
	Update(ctx context.Context, path string, updates map[string]any) error

	// Delete removes the document at path; deleting a missing document
	// is not an error
	Delete(ctx context.Context, path string) error

	// RunTransaction executes fn atomically over the documents it touches.
	// The store may re-run fn on write conflicts, so fn must be
	// side-effect free outside of txn operations.
	RunTransaction(ctx context.Context, fn func(tx Txn) error) error

	// Query starts a query over the direct documents of a collection
	Query(collection string) Query

	// Close releases the underlying client
	Close() error
}

// Txn exposes the store operations scoped to one transaction. Reads must
// be issued before writes.
type Txn interface {
	Get(path string) (*Document, error)
	Set(path string, data map[string]any, merge bool) error
	Update(path string, updates map[string]any) error
	Delete(path string) error
}

// Query builds a filtered, ordered, bounded collection read
type Query interface {
	Where(field, op string, value any) Query
	OrderBy(field string, dir Direction) Query
	Limit(n int) Query
	Documents(ctx context.Context) ([]*Document, error)
}

// Sentinel write values, resolved by each adapter.

// IncrementValue atomically adds N to a numeric field, treating a missing
// field as 0
type IncrementValue struct{ N int64 }

// DeleteValue removes the field from the document
type DeleteValue struct{}

// Increment returns an atomic-add write value for a numeric field
func Increment(n int64) any { return IncrementValue{N: n} }

// DeleteField returns a write value that removes the field from the document
func DeleteField() any { return DeleteValue{} }
