// Package secrets resolves provider API keys by name from an ordered chain of
// stores: process environment (optionally seeded from a .env file), a
// PostgreSQL key/value table, and the OS keychain.
//
// Lookups happen per request so rotated keys apply without a restart.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned (wrapped) when no store holds the requested secret.
var ErrNotFound = errors.New("secrets: not found")

// Store looks up a secret by name.
type Store interface {
	// Lookup returns the secret value or an error wrapping [ErrNotFound].
	Lookup(ctx context.Context, name string) (string, error)
}

// Writer is a [Store] whose entries can be edited, used by the
// "spotcraft secrets" command. The environment store is read-only.
type Writer interface {
	Store
	Set(ctx context.Context, name, value string) error
	Delete(ctx context.Context, name string) error
}

// Pinger is implemented by stores that can report their own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Source names accepted in configuration.
const (
	SourceEnv      = "env"
	SourcePostgres = "postgres"
	SourceKeyring  = "keyring"
)

// namedStore pairs a store with the label used in errors and health output.
type namedStore struct {
	name  string
	store Store
}

// Chain tries each store in order; the first non-empty hit wins.
type Chain struct {
	stores []namedStore
}

// NewChain returns an empty chain. Use [Chain.Add] to append stores.
func NewChain() *Chain {
	return &Chain{}
}

// Add appends a store under the given label and returns the chain.
func (c *Chain) Add(name string, s Store) *Chain {
	c.stores = append(c.stores, namedStore{name: name, store: s})
	return c
}

// Sources returns the store labels in lookup order.
func (c *Chain) Sources() []string {
	out := make([]string, len(c.stores))
	for i, s := range c.stores {
		out[i] = s.name
	}
	return out
}

// Lookup implements [Store]. Stores that fail with something other than
// [ErrNotFound] do not stop the search; their errors are reported only when
// no later store has the secret.
func (c *Chain) Lookup(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secrets: empty secret name: %w", ErrNotFound)
	}
	var errs []error
	for _, s := range c.stores {
		v, err := s.store.Lookup(ctx, name)
		if err == nil && v != "" {
			return v, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	if len(errs) > 0 {
		return "", fmt.Errorf("secrets: lookup %q: %w", name, errors.Join(errs...))
	}
	return "", fmt.Errorf("secrets: lookup %q in [%s]: %w", name, strings.Join(c.Sources(), ", "), ErrNotFound)
}

// Ping checks every store that implements [Pinger].
func (c *Chain) Ping(ctx context.Context) error {
	var errs []error
	for _, s := range c.stores {
		if p, ok := s.store.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				errs = append(errs, fmt.Errorf("secrets: %s: %w", s.name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Static is a fixed in-memory store, used for inline keys from configuration
// and in tests.
type Static map[string]string

// Lookup implements [Store].
func (s Static) Lookup(_ context.Context, name string) (string, error) {
	if v, ok := s[name]; ok && v != "" {
		return v, nil
	}
	return "", ErrNotFound
}

var (
	_ Store  = (*Chain)(nil)
	_ Store  = Static(nil)
	_ Pinger = (*Chain)(nil)
)
