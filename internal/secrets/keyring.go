package secrets

import (
	"context"
	"errors"
	"fmt"

	zkr "github.com/zalando/go-keyring"
)

// KeyringStore reads secrets from the OS keychain under a single service name.
type KeyringStore struct {
	Service string
}

// Lookup implements [Store].
func (k KeyringStore) Lookup(_ context.Context, name string) (string, error) {
	v, err := zkr.Get(k.Service, name)
	if err != nil {
		if errors.Is(err, zkr.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("secrets: keychain get %q: %w", name, err)
	}
	if v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores a secret in the OS keychain.
func (k KeyringStore) Set(_ context.Context, name, value string) error {
	if err := zkr.Set(k.Service, name, value); err != nil {
		return fmt.Errorf("secrets: keychain set %q: %w", name, err)
	}
	return nil
}

// Delete removes a secret from the OS keychain. Deleting a missing secret is
// a no-op.
func (k KeyringStore) Delete(_ context.Context, name string) error {
	if err := zkr.Delete(k.Service, name); err != nil && !errors.Is(err, zkr.ErrNotFound) {
		return fmt.Errorf("secrets: keychain delete %q: %w", name, err)
	}
	return nil
}

var _ Writer = KeyringStore{}
