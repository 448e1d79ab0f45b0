package store

import "context"

// Records persists one Record per id. Save and Remove must be atomic: after a
// crash the backend holds either the old or the new record, never a partial
// one. They take no context so a write cannot be abandoned half way.
type Records interface {
	// Load returns the record for id or ErrNotFound.
	Load(ctx context.Context, id string) (*Record, error)
	// Save inserts or replaces the record.
	Save(rec *Record) error
	// Remove deletes the record for id or returns ErrNotFound.
	Remove(id string) error
	// IDs returns every stored id, sorted.
	IDs(ctx context.Context) ([]string, error)
	Close() error
}
