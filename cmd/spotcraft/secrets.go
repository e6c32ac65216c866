package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/spotcraft/internal/app"
	"github.com/MrWong99/spotcraft/internal/config"
	"github.com/MrWong99/spotcraft/internal/secrets"
)

type secretsFlags struct {
	config string
	source string
}

func newSecretsCmd() *cobra.Command {
	var f secretsFlags
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Store provider API keys in the keychain or the postgres secrets table",
	}
	cmd.PersistentFlags().StringVar(&f.config, "config", "config.yaml", "configuration file; defaults apply when it is missing")
	cmd.PersistentFlags().StringVar(&f.source, "source", secrets.SourceKeyring, "store to edit: keyring or postgres")

	cmd.AddCommand(&cobra.Command{
		Use:   "set NAME [value|-]",
		Short: "Store a secret; the value is read from stdin when omitted or -",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := secretValue(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}
			return withWriter(cmd, f, func(w secrets.Writer) error {
				if err := w.Set(cmd.Context(), args[0], value); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in %s\n", args[0], f.source)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete NAME",
		Short: "Remove a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWriter(cmd, f, func(w secrets.Writer) error {
				if err := w.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s from %s\n", args[0], f.source)
				return nil
			})
		},
	})
	return cmd
}

func withWriter(cmd *cobra.Command, f secretsFlags, fn func(secrets.Writer) error) error {
	cfg, err := config.Load(f.config)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return err
	}
	w, closeStore, err := app.OpenWriter(cmd.Context(), cfg.Secrets, f.source)
	defer closeStore()
	if err != nil {
		return err
	}
	return fn(w)
}

func secretValue(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	v := strings.TrimRight(string(b), "\r\n")
	if v == "" {
		return "", errors.New("secret value is empty")
	}
	return v, nil
}
