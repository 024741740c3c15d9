package sessions

import "context"

// Repo defines the backend storage operations for the session record.
// Implementations must apply Replace as a single operation so that no reader
// observes a mix of old and new fields.
type Repo interface {
	// Load returns every stored field; an empty map means nothing is stored
	Load(ctx context.Context) (Fields, error)

	// Replace overwrites the whole record with fields
	Replace(ctx context.Context, fields Fields) error

	// Remove deletes the record. Removing a missing record is not an error.
	Remove(ctx context.Context) error
}
