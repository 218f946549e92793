// Package storage defines the read-only document store contract the query
// engine runs against.
package storage

import (
	"context"

	"github.com/fidde/log_dashboard/pkg/models"
)

// Backend is a document store holding one collection per log category.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Collection returns a handle for the named collection. Handles are
	// cheap and do not own resources.
	Collection(name string) Collection

	// CompareIDs orders two identifiers produced by this backend,
	// returning -1, 0 or +1. Insertion order and identifier order agree.
	CompareIDs(a, b string) int

	// Ping checks connectivity to the store.
	Ping(ctx context.Context) error

	// Close releases connections held by the backend.
	Close() error
}

// Collection is a handle to one collection of schemaless records.
type Collection interface {
	// Name returns the collection name in the store.
	Name() string

	// Sample returns some existing record, with no ordering guarantee.
	// It returns models.ErrNotFound when the collection is empty.
	Sample(ctx context.Context) (*models.Record, error)

	// Count returns the number of records matching filter.
	Count(ctx context.Context, filter Filter) (int64, error)

	// Find returns records matching filter, sorted and windowed by opts.
	Find(ctx context.Context, filter Filter, opts FindOptions) ([]*models.Record, error)

	// FindByID returns the record with the given identifier. It returns
	// models.ErrNotFound when id is not a valid identifier for this
	// backend or no record matches.
	FindByID(ctx context.Context, id string) (*models.Record, error)
}

// Writer is implemented by backends that accept new records. The query
// engine never writes; seed fixtures and tests do.
type Writer interface {
	// Insert stores rec in the named collection and returns its new
	// identifier. Any identifier already on rec is ignored.
	Insert(ctx context.Context, collection string, rec *models.Record) (string, error)
}
