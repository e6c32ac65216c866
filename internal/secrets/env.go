package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// EnvStore reads secrets from the process environment.
type EnvStore struct {
	// Prefix is prepended to every name before lookup (e.g., "SPOTCRAFT_").
	Prefix string
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an
// error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("secrets: load env file %q: %w", path, err)
	}
	return nil
}

// Lookup implements [Store]. Empty variables count as missing.
func (e EnvStore) Lookup(_ context.Context, name string) (string, error) {
	if v, ok := os.LookupEnv(e.Prefix + name); ok && v != "" {
		return v, nil
	}
	return "", ErrNotFound
}
