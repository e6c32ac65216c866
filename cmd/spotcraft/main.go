// Command spotcraft is the entry point for the spotcraft radio-ad server and
// its command-line client.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultServer  = "http://localhost:8080"
	envServer      = "SPOTCRAFT_SERVER"
	defaultTimeout = 90 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "spotcraft: %v\n", err)
		return 1
	}
	return 0
}

// clientFlags are shared by the commands that talk to a running server.
type clientFlags struct {
	server  string
	timeout time.Duration
}

func (f *clientFlags) register(cmd *cobra.Command) {
	def := defaultServer
	if v := os.Getenv(envServer); v != "" {
		def = v
	}
	cmd.Flags().StringVar(&f.server, "server", def, "spotcraft server URL (env "+envServer+")")
	cmd.Flags().DurationVar(&f.timeout, "timeout", defaultTimeout, "per-request timeout")
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	root := &cobra.Command{
		Use:   "spotcraft",
		Short: "spotcraft - radio ad builder",
		Long: `spotcraft drafts radio ad scripts with a language model, checks that they
fit the chosen ad length, and renders them with a text-to-speech voice.

Run 'spotcraft' or 'spotcraft serve' to start the HTTP API. The other
commands are clients of a running server, except 'estimate', which works
offline, and 'secrets', which edits the keychain or postgres secrets store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if cmd.Name() == "serve" || cmd.Name() == "spotcraft" {
				return
			}
			lvl := slog.LevelWarn
			if verbose {
				lvl = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: lvl})))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath, true, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose client logging")
	root.Flags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")

	root.AddCommand(newServeCmd(stdout, stderr))
	root.AddCommand(newEstimateCmd())
	root.AddCommand(newVoicesCmd())
	root.AddCommand(newGenerateCmd())
	root.AddCommand(newSecretsCmd())
	return root
}
