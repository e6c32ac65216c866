// Package adscript drafts and shortens radio ad scripts with an
// [llm.Provider].
//
// Prompts carry the target length twice: as seconds, and as a word budget
// derived from the [duration.Estimator] so the model aims at a script that the
// duration check will accept.
package adscript

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/spotcraft/pkg/duration"
	"github.com/MrWong99/spotcraft/pkg/provider/llm"
)

const defaultTemperature = 0.7

const (
	generateSystemFmt = "You are an expert copywriter specializing in %d-second radio advertisements. " +
		"Create compelling, concise scripts that fit within the time limit. " +
		"Keep the script under %d words and return only the words to be read aloud."

	generateUserFmt = "Create a %d-second radio ad script for %s. Here's the description: %s"

	shortenSystemFmt = "You are an expert copywriter specializing in %d-second radio advertisements. " +
		"Shorten the script you are given so it can be read aloud in at most %d seconds, which is no more than %d words. " +
		"Keep the brand name and the core message. Return only the revised script."
)

var (
	// ErrInvalidBrief is returned when a required input is missing.
	ErrInvalidBrief = errors.New("adscript: invalid brief")

	// ErrEmptyReply is returned when the model answers with no usable text.
	ErrEmptyReply = errors.New("adscript: empty reply from model")

	// ErrTruncated is returned when the reply stopped at the token limit.
	ErrTruncated = errors.New("adscript: reply cut off at the token limit")
)

// Brief is what the user tells us about the ad.
type Brief struct {
	BrandName   string
	Description string
	// Duration is the target length in seconds.
	Duration int
}

// Validate reports missing fields.
func (b Brief) Validate() error {
	var errs []error
	if strings.TrimSpace(b.BrandName) == "" {
		errs = append(errs, errors.New("brand name is required"))
	}
	if strings.TrimSpace(b.Description) == "" {
		errs = append(errs, errors.New("description is required"))
	}
	if b.Duration <= 0 {
		errs = append(errs, fmt.Errorf("duration must be positive, got %d", b.Duration))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidBrief, errors.Join(errs...))
	}
	return nil
}

// Option is a functional option for configuring a [Writer].
type Option func(*Writer)

// WithTemperature sets the sampling temperature. Default: 0.7.
func WithTemperature(temp float64) Option {
	return func(w *Writer) {
		w.temperature = temp
	}
}

// WithEstimator sets the estimator used to derive word budgets.
func WithEstimator(e duration.Estimator) Option {
	return func(w *Writer) {
		w.estimator = e
	}
}

// WithMaxTokens caps the completion length. Zero leaves it to the provider.
func WithMaxTokens(n int) Option {
	return func(w *Writer) {
		w.maxTokens = n
	}
}

// Writer turns briefs into scripts. It is safe for concurrent use.
type Writer struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
	estimator   duration.Estimator
}

// New returns a Writer backed by provider.
func New(provider llm.Provider, opts ...Option) *Writer {
	w := &Writer{
		llm:         provider,
		temperature: defaultTemperature,
		estimator:   duration.Default,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Generate drafts a new script for b.
func (w *Writer) Generate(ctx context.Context, b Brief) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}
	req := llm.CompletionRequest{
		SystemPrompt: GenerateSystemPrompt(b.Duration, w.estimator.MaxWords(b.Duration)),
		Temperature:  w.temperature,
		MaxTokens:    w.maxTokens,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf(generateUserFmt, b.Duration, strings.TrimSpace(b.BrandName), strings.TrimSpace(b.Description))},
		},
	}
	return w.complete(ctx, "generate", req)
}

// Shorten asks the model to cut script down to targetSeconds.
func (w *Writer) Shorten(ctx context.Context, script string, targetSeconds int) (string, error) {
	if strings.TrimSpace(script) == "" {
		return "", fmt.Errorf("%w: script is required", ErrInvalidBrief)
	}
	if targetSeconds <= 0 {
		return "", fmt.Errorf("%w: duration must be positive, got %d", ErrInvalidBrief, targetSeconds)
	}
	req := llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(shortenSystemFmt, targetSeconds, targetSeconds, w.estimator.MaxWords(targetSeconds)),
		Temperature:  w.temperature,
		MaxTokens:    w.maxTokens,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: script},
		},
	}
	return w.complete(ctx, "shorten", req)
}

func (w *Writer) complete(ctx context.Context, op string, req llm.CompletionRequest) (string, error) {
	resp, err := w.llm.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("adscript: %s: %w", op, err)
	}
	if resp == nil {
		return "", fmt.Errorf("adscript: %s: %w", op, ErrEmptyReply)
	}
	if resp.Truncated() {
		return "", fmt.Errorf("adscript: %s: %w (max_tokens %d)", op, ErrTruncated, req.MaxTokens)
	}
	script := CleanReply(resp.Content)
	if script == "" {
		return "", fmt.Errorf("adscript: %s: %w", op, ErrEmptyReply)
	}
	return script, nil
}

// GenerateSystemPrompt renders the drafting system prompt.
func GenerateSystemPrompt(targetSeconds, maxWords int) string {
	return fmt.Sprintf(generateSystemFmt, targetSeconds, maxWords)
}

// CleanReply strips markdown fences, surrounding whitespace and a single pair
// of wrapping quotes from a model reply.
func CleanReply(s string) string {
	s = strings.TrimSpace(s)
	if after, ok := strings.CutPrefix(s, "```"); ok {
		// Drop an optional language tag on the fence line.
		if i := strings.IndexByte(after, '\n'); i >= 0 {
			after = after[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(after), "```")
		s = strings.TrimSpace(s)
	}
	for _, q := range [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}} {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			inner := s[len(q[0]) : len(s)-len(q[1])]
			if !strings.Contains(inner, q[0]) || q[0] != q[1] {
				s = strings.TrimSpace(inner)
			}
			break
		}
	}
	return s
}
