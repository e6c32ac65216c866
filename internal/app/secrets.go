package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/spotcraft/internal/config"
	"github.com/MrWong99/spotcraft/internal/secrets"
)

// BuildSecrets assembles the secrets chain in the configured source order.
// The returned closers release the resources the chain opened; they are
// returned even when err is non-nil.
func BuildSecrets(ctx context.Context, sc config.SecretsConfig) (*secrets.Chain, []func() error, error) {
	chain := secrets.NewChain()
	var closers []func() error

	for _, src := range sc.Sources {
		switch src {
		case secrets.SourceEnv:
			if err := secrets.LoadEnvFile(sc.EnvFile); err != nil {
				return nil, closers, err
			}
			chain.Add(src, secrets.EnvStore{})

		case secrets.SourcePostgres:
			pool, err := secrets.Connect(ctx, sc.PostgresDSN)
			if err != nil {
				return nil, closers, err
			}
			closers = append(closers, func() error {
				pool.Close()
				return nil
			})
			store := secrets.NewPostgresStore(pool)
			if sc.Migrate {
				if err := store.Migrate(ctx); err != nil {
					return nil, closers, err
				}
				slog.Info("secrets table migrated")
			}
			chain.Add(src, store)

		case secrets.SourceKeyring:
			chain.Add(src, secrets.KeyringStore{Service: sc.KeyringService})

		default:
			return nil, closers, fmt.Errorf("app: unknown secrets source %q", src)
		}
	}
	return chain, closers, nil
}

// OpenWriter opens the editable store for source. The returned closer must
// be called when done, even on error paths where it is non-nil.
func OpenWriter(ctx context.Context, sc config.SecretsConfig, source string) (secrets.Writer, func() error, error) {
	noop := func() error { return nil }
	switch source {
	case secrets.SourceKeyring:
		return secrets.KeyringStore{Service: sc.KeyringService}, noop, nil

	case secrets.SourcePostgres:
		if sc.PostgresDSN == "" {
			return nil, noop, errors.New("app: secrets.postgres_dsn is not configured")
		}
		pool, err := secrets.Connect(ctx, sc.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		closer := func() error {
			pool.Close()
			return nil
		}
		store := secrets.NewPostgresStore(pool)
		if sc.Migrate {
			if err := store.Migrate(ctx); err != nil {
				return nil, closer, err
			}
		}
		return store, closer, nil

	case secrets.SourceEnv:
		return nil, noop, fmt.Errorf("app: secrets source %q is read-only", source)
	}
	return nil, noop, fmt.Errorf("app: unknown secrets source %q", source)
}

