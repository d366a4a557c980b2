package tokenstore

import "context"

// Store reads and writes per-environment credential blobs.
//
// The blob schema is opaque to the store; callers own serialization and
// validation.
type Store interface {
	// Save persists data under name, replacing any previous blob.
	Save(ctx context.Context, name string, data []byte) error

	// Load returns the blob stored under name, or (nil, nil) when the
	// backend has no data for it.
	Load(ctx context.Context, name string) ([]byte, error)

	// Remove deletes the blob stored under name. Removing an absent name
	// is not an error.
	Remove(ctx context.Context, name string) error
}

// Exists reports whether Load returns data for name. Lookup failures
// count as absent.
func Exists(ctx context.Context, s Store, name string) bool {
	data, err := s.Load(ctx, name)
	return err == nil && data != nil
}
