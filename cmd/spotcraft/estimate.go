package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/spotcraft/pkg/duration"
)

// errOverflow is returned by estimate --strict when the script is too long.
var errOverflow = errors.New("script does not fit the target duration")

func newEstimateCmd() *cobra.Command {
	var (
		target int
		wpm    float64
		buffer float64
		file   string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "estimate [text|-]",
		Short: "Estimate how long a script takes to read aloud",
		Long: `Estimate counts the words of a script and converts them to seconds at the
given speaking rate. With --duration it also reports whether the script fits.
Text comes from the arguments, from --file, or from stdin when the only
argument is "-" or no argument is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readScript(cmd.InOrStdin(), file, args)
			if err != nil {
				return err
			}
			est := duration.Estimator{WordsPerMinute: wpm, Buffer: buffer}
			seconds := est.Estimate(text)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Words: %d\n", duration.CountWords(text))
			fmt.Fprintf(out, "Estimated duration: %.1f seconds\n", duration.Round(seconds))
			if target <= 0 {
				return nil
			}
			res := duration.Evaluate(seconds, target)
			fmt.Fprintf(out, "Verdict: %s (margin %+.1f s, max %d words)\n", res.Verdict, duration.Round(res.Margin), est.MaxWords(target))
			fmt.Fprintln(out, res.Status(seconds, target))
			if strict && !res.Fits() {
				return errOverflow
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&target, "duration", "d", 0, "target ad length in seconds")
	cmd.Flags().Float64Var(&wpm, "wpm", duration.DefaultWordsPerMinute, "speaking rate in words per minute")
	cmd.Flags().Float64Var(&buffer, "buffer", duration.DefaultBuffer, "pause allowance multiplier (1 for none)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the script from a file")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when the script overflows")
	return cmd
}

// readScript returns the script from file, args, or stdin, in that order.
func readScript(stdin io.Reader, file string, args []string) (string, error) {
	switch {
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read script: %w", err)
		}
		return string(b), nil
	case len(args) > 0 && !(len(args) == 1 && args[0] == "-"):
		return strings.Join(args, " "), nil
	default:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
}
