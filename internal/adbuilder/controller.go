package adbuilder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/spotcraft/internal/media"
	"github.com/MrWong99/spotcraft/pkg/adclient"
	"github.com/MrWong99/spotcraft/pkg/duration"
)

// DefaultSampleText is spoken by voice previews.
const DefaultSampleText = "Hello! This is a sample of my voice. How do I sound?"

var (
	// ErrBusy is returned when an operation is triggered while the same
	// operation is still in flight. No request is made.
	ErrBusy = errors.New("adbuilder: operation in progress")

	// ErrMissingInput is returned when required fields are empty. No request
	// is made.
	ErrMissingInput = errors.New("adbuilder: missing information")

	// ErrTooLong is returned when audio is requested for a script that
	// overflows the selected duration.
	ErrTooLong = errors.New("adbuilder: script too long")

	// ErrInvalidDuration is returned by [Controller.SetDuration] for a length
	// outside the allowed set.
	ErrInvalidDuration = errors.New("adbuilder: unsupported duration")

	// ErrClosed is returned after [Controller.Close].
	ErrClosed = errors.New("adbuilder: controller closed")
)

// Backend is the remote side of the flow. [*adclient.Client] implements it.
type Backend interface {
	GenerateScript(ctx context.Context, brand, description string, seconds int) (*adclient.Script, error)
	ShortenScript(ctx context.Context, script string, seconds int) (*adclient.Script, error)
	ListVoices(ctx context.Context) ([]adclient.Voice, error)
	Synthesize(ctx context.Context, script, voiceID string) (*adclient.Audio, error)
}

var _ Backend = (*adclient.Client)(nil)

// Option configures a [Controller].
type Option func(*Controller)

// WithEstimator sets the estimator used for the local duration check.
func WithEstimator(e duration.Estimator) Option {
	return func(c *Controller) { c.reducer.Estimator = e }
}

// WithDurations restricts the selectable ad lengths.
func WithDurations(seconds ...int) Option {
	return func(c *Controller) { c.durations = slices.Clone(seconds) }
}

// WithSampleText overrides the preview sentence.
func WithSampleText(text string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(text) != "" {
			c.sampleText = text
		}
	}
}

// WithPreview controls whether selecting a voice renders a sample.
// Enabled by default.
func WithPreview(enabled bool) Option {
	return func(c *Controller) { c.preview = enabled }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// OnChange registers fn to be called with every new state. Callbacks run
// outside the controller lock, in dispatch order per goroutine.
func OnChange(fn func(State)) Option {
	return func(c *Controller) { c.listeners = append(c.listeners, fn) }
}

// Controller runs the ad-building flow against a [Backend]. All exported
// methods are safe for concurrent use.
type Controller struct {
	mu     sync.Mutex
	state  State
	closed bool

	reducer    Reducer
	backend    Backend
	media      *media.Registry
	ownsMedia  bool
	durations  []int
	sampleText string
	preview    bool
	log        *slog.Logger
	listeners  []func(State)
}

// New creates a Controller. Audio is installed into reg as object URLs; a nil
// reg gets a private registry that [Controller.Close] empties.
func New(b Backend, reg *media.Registry, opts ...Option) *Controller {
	owns := reg == nil
	if owns {
		reg = media.NewRegistry()
	}
	c := &Controller{
		ownsMedia:  owns,
		state:      Initial(),
		reducer:    Reducer{Estimator: duration.Default},
		backend:    b,
		media:      reg,
		durations:  []int{15, 30, 45, 60},
		sampleText: DefaultSampleText,
		preview:    true,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if !slices.Contains(c.durations, c.state.Duration) && len(c.durations) > 0 {
		c.state = c.reducer.Reduce(c.state, SetDuration{Seconds: c.durations[0]})
	}
	return c
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Voices = slices.Clone(s.Voices)
	return s
}

// Durations returns the selectable ad lengths.
func (c *Controller) Durations() []int {
	return slices.Clone(c.durations)
}

// Media returns the registry holding the flow's audio.
func (c *Controller) Media() *media.Registry {
	return c.media
}

// SetBrand updates the brand name field.
func (c *Controller) SetBrand(name string) {
	c.dispatch(SetBrand{Name: name})
}

// SetDescription updates the description field.
func (c *Controller) SetDescription(text string) {
	c.dispatch(SetDescription{Text: text})
}

// SetScript replaces the script with a user edit.
func (c *Controller) SetScript(text string) {
	c.dispatch(SetScript{Text: text})
}

// SetDuration selects the target ad length.
func (c *Controller) SetDuration(seconds int) error {
	if !slices.Contains(c.durations, seconds) {
		return fmt.Errorf("%w: %d (allowed %v)", ErrInvalidDuration, seconds, c.durations)
	}
	c.dispatch(SetDuration{Seconds: seconds})
	return nil
}

// DismissNotice clears the current notice.
func (c *Controller) DismissNotice() {
	c.dispatch(DismissNotice{})
}

// LoadVoices fetches the voice catalogue.
func (c *Controller) LoadVoices(ctx context.Context) error {
	if _, err := c.begin(OpVoices, VoicesRequested{}); err != nil {
		return err
	}
	voices, err := c.backend.ListVoices(ctx)
	if err != nil {
		c.log.Error("failed to load voices", "err", err)
		c.dispatch(VoicesFailed{})
		return fmt.Errorf("adbuilder: load voices: %w", err)
	}
	c.dispatch(VoicesLoaded{Voices: voices})
	return nil
}

// GenerateScript drafts a script from the brand, description and duration.
func (c *Controller) GenerateScript(ctx context.Context) error {
	s := c.State()
	if strings.TrimSpace(s.BrandName) == "" || strings.TrimSpace(s.Description) == "" {
		c.dispatch(Notify{Notice: Notice{Kind: NoticeError, Title: TitleMissing, Message: MsgFillAllFields}})
		return fmt.Errorf("%w: %s", ErrMissingInput, MsgFillAllFields)
	}
	s, err := c.begin(OpScript, ScriptRequested{})
	if err != nil {
		return err
	}
	out, err := c.backend.GenerateScript(ctx, s.BrandName, s.Description, s.Duration)
	if err != nil {
		c.log.Error("script generation failed", "brand", s.BrandName, "err", err)
		c.dispatch(ScriptFailed{})
		return fmt.Errorf("adbuilder: generate script: %w", err)
	}
	c.dispatch(ScriptLoaded{Script: out.Script})
	return nil
}

// Shorten asks the backend to cut the current script down to the selected
// duration.
func (c *Controller) Shorten(ctx context.Context) error {
	s := c.State()
	if !s.HasScript() {
		c.dispatch(Notify{Notice: Notice{Kind: NoticeError, Title: TitleMissing, Message: MsgFillAllFields}})
		return fmt.Errorf("%w: script is empty", ErrMissingInput)
	}
	s, err := c.begin(OpScript, ScriptRequested{})
	if err != nil {
		return err
	}
	out, err := c.backend.ShortenScript(ctx, s.Script, s.Duration)
	if err != nil {
		c.log.Error("script shortening failed", "err", err)
		c.dispatch(ScriptFailed{})
		return fmt.Errorf("adbuilder: shorten script: %w", err)
	}
	c.dispatch(ScriptLoaded{Script: out.Script, Shortened: true})
	return nil
}

// SelectVoice selects voiceID. With previews enabled it renders the sample
// sentence; a failed preview clears the selection again.
func (c *Controller) SelectVoice(ctx context.Context, voiceID string) error {
	if !c.preview {
		c.dispatch(SelectVoice{ID: voiceID})
		return nil
	}
	if _, err := c.begin(OpPreview, PreviewRequested{VoiceID: voiceID}); err != nil {
		return err
	}
	audio, err := c.backend.Synthesize(ctx, c.sampleText, voiceID)
	if err != nil {
		unavailable := errors.Is(err, adclient.ErrVoiceUnavailable)
		c.log.Warn("voice preview failed", "voice_id", voiceID, "unavailable", unavailable, "err", err)
		c.dispatch(PreviewFailed{Unavailable: unavailable})
		return fmt.Errorf("adbuilder: preview voice %s: %w", voiceID, err)
	}
	return c.install(audio, func(url string) Action { return PreviewReady{URL: url} })
}

// GenerateAudio renders the current script with the selected voice. It is
// refused without a request when either is missing or the script overflows.
func (c *Controller) GenerateAudio(ctx context.Context) error {
	var refusal *Notice
	s, err := c.begin(OpAudio, AudioRequested{}, func(s State) error {
		n, err := audioReady(s)
		refusal = n
		return err
	})
	if err != nil {
		if refusal != nil {
			c.dispatch(Notify{Notice: *refusal})
		}
		return err
	}
	audio, err := c.backend.Synthesize(ctx, s.Script, s.SelectedVoice)
	if err != nil {
		unavailable := errors.Is(err, adclient.ErrVoiceUnavailable)
		c.log.Error("audio generation failed", "voice_id", s.SelectedVoice, "unavailable", unavailable, "err", err)
		c.dispatch(AudioFailed{Unavailable: unavailable})
		return fmt.Errorf("adbuilder: generate audio: %w", err)
	}
	return c.install(audio, func(url string) Action { return AudioReady{URL: url} })
}

// Audio returns the rendered ad, if any.
func (c *Controller) Audio() (media.Object, bool) {
	url := c.State().AudioURL
	if url == "" {
		return media.Object{}, false
	}
	obj, err := c.media.Get(url)
	return obj, err == nil
}

// Close releases every object URL the flow installed. Later operations fail
// with [ErrClosed]. It returns the number of URLs released.
func (c *Controller) Close() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	c.closed = true
	n := 0
	if c.ownsMedia {
		n = c.media.ReleaseAll()
	} else {
		for _, url := range []string{c.state.SampleURL, c.state.AudioURL} {
			if url != "" && c.media.Release(url) {
				n++
			}
		}
	}
	c.state.SampleURL, c.state.AudioURL = "", ""
	return n
}

// audioReady checks that s has a script that fits and a selected voice.
func audioReady(s State) (*Notice, error) {
	if !s.HasScript() || s.SelectedVoice == "" {
		return &Notice{Kind: NoticeError, Title: TitleMissing, Message: MsgNeedScriptVoice},
			fmt.Errorf("%w: %s", ErrMissingInput, MsgNeedScriptVoice)
	}
	if !s.Result.Fits() {
		msg := duration.BlockedMessage(s.Estimate, s.Duration)
		return &Notice{Kind: NoticeError, Title: TitleTooLong, Message: msg},
			fmt.Errorf("%w: %s", ErrTooLong, msg)
	}
	return nil, nil
}

// begin marks op busy by applying a, or fails with [ErrBusy] if it already is.
// Each check runs against the current state under the same lock and can
// refuse the operation.
func (c *Controller) begin(op Op, a Action, checks ...func(State) error) (State, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return State{}, ErrClosed
	}
	if c.state.Busy.Is(op) {
		c.mu.Unlock()
		return State{}, fmt.Errorf("%w: %s", ErrBusy, op)
	}
	for _, check := range checks {
		if err := check(c.state); err != nil {
			c.mu.Unlock()
			return State{}, err
		}
	}
	s := c.apply(a)
	c.mu.Unlock()
	c.notify(s)
	return s, nil
}

// install creates the object URL for audio and applies the action built from
// it under one lock, so the superseded URL is released at the same moment.
func (c *Controller) install(audio *adclient.Audio, build func(url string) Action) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	url := c.media.Create(audio.Data, audio.ContentType)
	s := c.apply(build(url))
	c.mu.Unlock()
	c.notify(s)
	return nil
}

func (c *Controller) dispatch(a Action) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	s := c.apply(a)
	c.mu.Unlock()
	c.notify(s)
}

// apply reduces a into the live state and releases object URLs that the new
// state no longer references. c.mu must be held.
func (c *Controller) apply(a Action) State {
	prev := c.state
	c.state = c.reducer.Reduce(prev, a)
	for _, url := range []string{prev.SampleURL, prev.AudioURL} {
		if url != "" && url != c.state.SampleURL && url != c.state.AudioURL {
			c.media.Release(url)
		}
	}
	return c.state
}

func (c *Controller) notify(s State) {
	if len(c.listeners) == 0 {
		return
	}
	s.Voices = slices.Clone(s.Voices)
	for _, fn := range c.listeners {
		fn(s)
	}
}
