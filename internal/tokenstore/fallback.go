package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// FallbackStore chains a primary (keyring) and a secondary (file) store.
//
// Saves prefer the primary and fall back on any primary failure; a save
// only errors after both backends failed. Loads try the primary first and
// degrade to the secondary on absence or error; a load returns (nil, nil)
// when neither backend has data, logging a warning when the miss was not
// a clean "not found". Removes best-effort both backends.
type FallbackStore struct {
	primary   Store
	secondary Store
}

// Compile-time check to ensure FallbackStore implements Store
var _ Store = (*FallbackStore)(nil)

// NewFallbackStore creates a FallbackStore over the given backends.
func NewFallbackStore(primary, secondary Store) (*FallbackStore, error) {
	if primary == nil {
		return nil, fmt.Errorf("missing primary store")
	}
	if secondary == nil {
		return nil, fmt.Errorf("missing secondary store")
	}

	return &FallbackStore{
		primary:   primary,
		secondary: secondary,
	}, nil
}

// Save writes to the primary store, falling back to the secondary when
// the primary is unavailable (no secret service, permission denied,
// unsupported platform). Errors only when both backends fail.
func (s *FallbackStore) Save(ctx context.Context, name string, data []byte) error {
	primaryErr := s.primary.Save(ctx, name, data)
	if primaryErr == nil {
		return nil
	}

	slog.WarnContext(ctx, "native secret store unavailable, falling back to file storage",
		"name", name, "error", primaryErr)

	if err := s.secondary.Save(ctx, name, data); err != nil {
		return fmt.Errorf("saving credential %q: %w", name, errors.Join(primaryErr, err))
	}
	return nil
}

// Load reads from the primary store first and falls back to the secondary
// on absence or error. Returns (nil, nil) when neither has data; backend
// errors degrade to a logged warning rather than failing the lookup.
func (s *FallbackStore) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, primaryErr := s.primary.Load(ctx, name)
	if primaryErr == nil && data != nil {
		return data, nil
	}

	data, secondaryErr := s.secondary.Load(ctx, name)
	if secondaryErr == nil && data != nil {
		return data, nil
	}

	// A clean miss on both backends is the normal "not logged in" case.
	// Anything else still maps to absent, but is worth a warning.
	if primaryErr != nil || secondaryErr != nil {
		slog.WarnContext(ctx, "credential lookup degraded to absent",
			"name", name, "keyring_error", primaryErr, "file_error", secondaryErr)
	}
	return nil, nil
}

// Remove deletes from both backends. Individual failures are logged;
// the call only errors when both backends failed outright.
func (s *FallbackStore) Remove(ctx context.Context, name string) error {
	primaryErr := s.primary.Remove(ctx, name)
	secondaryErr := s.secondary.Remove(ctx, name)

	if primaryErr != nil {
		slog.WarnContext(ctx, "failed to remove credential from native secret store",
			"name", name, "error", primaryErr)
	}
	if secondaryErr != nil {
		slog.WarnContext(ctx, "failed to remove credential file",
			"name", name, "error", secondaryErr)
	}

	if primaryErr != nil && secondaryErr != nil {
		return fmt.Errorf("removing credential %q: %w", name, errors.Join(primaryErr, secondaryErr))
	}
	return nil
}
