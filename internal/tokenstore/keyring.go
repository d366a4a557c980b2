package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore persists credential blobs in the OS-native credential
// storage under a fixed service namespace, keyed by environment name.
type KeyringStore struct {
	service string
}

// Compile-time check to ensure KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore scoped to the given service
// namespace.
func NewKeyringStore(service string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}

	return &KeyringStore{
		service: service,
	}, nil
}

// Save persists the blob to the system keyring, overwriting any existing
// value for name.
func (k *KeyringStore) Save(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	return keyring.Set(k.service, name, string(data))
}

// Load returns the blob from the system keyring, or (nil, nil) when the
// keyring has no entry for name.
func (k *KeyringStore) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("name cannot be empty")
	}

	secret, err := keyring.Get(k.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading keyring entry %s/%s: %w", k.service, name, err)
	}

	return []byte(secret), nil
}

// Remove deletes the keyring entry for name. An absent entry is not an
// error.
func (k *KeyringStore) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	err := keyring.Delete(k.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
