package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/spotcraft/internal/adbuilder"
	"github.com/MrWong99/spotcraft/internal/voicematch"
	"github.com/MrWong99/spotcraft/pkg/adclient"
)

type generateFlags struct {
	clientFlags
	brand       string
	description string
	duration    int
	voice       string
	out         string
	scriptFile  string
	shorten     int
	preview     bool
}

func newGenerateCmd() *cobra.Command {
	var f generateFlags
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Draft a script and render it as an audio ad",
		Long: `Generate runs the whole ad flow against a spotcraft server: it drafts a
script for the brand (or reads one from --script-file), shortens it until it
fits the chosen length, picks a voice and writes the rendered audio to --out.

--voice accepts a voice ID, a name, or something that sounds like a name.
Without --voice the first voice of the catalogue is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, &f)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&f.brand, "brand", "b", "", "brand name")
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "what the ad should say about the brand")
	cmd.Flags().IntVar(&f.duration, "duration", adbuilder.DefaultDuration, "target ad length in seconds")
	cmd.Flags().StringVar(&f.voice, "voice", "", "voice ID or name")
	cmd.Flags().StringVarP(&f.out, "out", "o", "ad.mp3", "where to write the audio")
	cmd.Flags().StringVar(&f.scriptFile, "script-file", "", "use this script instead of drafting one")
	cmd.Flags().IntVar(&f.shorten, "shorten", 3, "maximum shortening attempts when the script is too long (0 disables)")
	cmd.Flags().BoolVar(&f.preview, "preview", false, "render the voice sample before the ad")
	return cmd
}

func runGenerate(cmd *cobra.Command, f *generateFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	log := slog.Default().With("cmd", "generate")

	if f.scriptFile == "" && (f.brand == "" || f.description == "") {
		return fmt.Errorf("%w: --brand and --description are required without --script-file", adbuilder.ErrMissingInput)
	}

	client, err := adclient.New(f.server, adclient.WithTimeout(f.timeout))
	if err != nil {
		return err
	}
	settings, err := client.Durations(ctx)
	if err != nil {
		return fmt.Errorf("fetch server settings: %w", err)
	}
	if !slices.Contains(settings.Durations, f.duration) {
		return fmt.Errorf("%w: %d seconds (server allows %v)", adbuilder.ErrInvalidDuration, f.duration, settings.Durations)
	}

	opts := []adbuilder.Option{
		adbuilder.WithDurations(settings.Durations...),
		adbuilder.WithPreview(f.preview),
		adbuilder.WithLogger(log),
	}
	if settings.SampleText != "" {
		opts = append(opts, adbuilder.WithSampleText(settings.SampleText))
	}
	ctrl := adbuilder.New(client, nil, opts...)
	defer ctrl.Close()

	ctrl.SetBrand(f.brand)
	ctrl.SetDescription(f.description)
	if err := ctrl.SetDuration(f.duration); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctrl.LoadVoices(gctx) })
	g.Go(func() error {
		if f.scriptFile == "" {
			return ctrl.GenerateScript(gctx)
		}
		b, err := os.ReadFile(f.scriptFile)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		ctrl.SetScript(string(b))
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for attempt := 0; attempt < f.shorten && ctrl.State().CanShorten(); attempt++ {
		log.Info("script too long, shortening", "attempt", attempt+1, "status", ctrl.State().StatusMessage())
		if err := ctrl.Shorten(ctx); err != nil {
			return err
		}
	}

	s := ctrl.State()
	fmt.Fprintf(out, "Script:\n%s\n\n%s\n", s.Script, s.StatusMessage())

	voice, err := pickVoice(f.voice, s.Voices)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Voice: %s (%s)\n", voice.Name, voice.ID)

	if err := ctrl.SelectVoice(ctx, voice.ID); err != nil {
		return err
	}
	if err := ctrl.GenerateAudio(ctx); err != nil {
		return err
	}
	obj, ok := ctrl.Audio()
	if !ok {
		return errors.New("no audio was produced")
	}
	if err := os.WriteFile(f.out, obj.Data, 0o644); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	if n := ctrl.State().Notice; n != nil {
		fmt.Fprintf(out, "%s: %s\n", n.Title, n.Message)
	}
	fmt.Fprintf(out, "Wrote %d bytes (%s) to %s\n", len(obj.Data), obj.ContentType, f.out)
	return nil
}

// pickVoice resolves query against voices. An empty query selects the first
// voice.
func pickVoice(query string, voices []adclient.Voice) (adclient.Voice, error) {
	if len(voices) == 0 {
		return adclient.Voice{}, errors.New("the server offers no voices")
	}
	if query == "" {
		return voices[0], nil
	}
	m, err := voicematch.New().Resolve(query, voices)
	if err != nil {
		return adclient.Voice{}, err
	}
	if m.How != voicematch.ByID && m.How != voicematch.ByName {
		slog.Info("voice matched approximately", "query", query, "voice", m.Voice.Name, "how", m.How, "score", m.Score)
	}
	return m.Voice, nil
}
