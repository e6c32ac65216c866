package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MrWong99/spotcraft/internal/adscript"
	"github.com/MrWong99/spotcraft/internal/observe"
	"github.com/MrWong99/spotcraft/internal/resilience"
	"github.com/MrWong99/spotcraft/pkg/provider/tts"
)

// Error codes carried in the "code" field of error bodies.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeConfig              = "CONFIG_ERROR"
	CodeUpstream            = "UPSTREAM_ERROR"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeFreeUserRestricted  = "FREE_USER_RESTRICTED"
)

// VoiceUnavailableMessage is returned with [CodeFreeUserRestricted].
const VoiceUnavailableMessage = "This voice is not available for free users. Please try a different voice or upgrade your ElevenLabs account."

var (
	// errValidation marks request problems the caller can fix.
	errValidation = errors.New("validation failed")

	// errConfig marks a server that cannot reach its provider, usually
	// because an API key is missing.
	errConfig = errors.New("provider not configured")
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// requestError is a validation failure whose text is shown to the caller
// verbatim.
type requestError string

func (e requestError) Error() string { return string(e) }

func (e requestError) Is(target error) bool { return target == errValidation }

func invalid(format string, args ...any) error {
	return requestError(fmt.Sprintf(format, args...))
}

// classify maps err onto a status, code and client-facing message.
func classify(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, errValidation), errors.Is(err, adscript.ErrInvalidBrief):
		return http.StatusBadRequest, CodeValidation, err.Error()
	case errors.Is(err, errConfig):
		return http.StatusInternalServerError, CodeConfig, err.Error()
	case errors.Is(err, tts.ErrVoiceUnavailable):
		return http.StatusForbidden, CodeFreeUserRestricted, VoiceUnavailableMessage
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable, CodeUpstreamUnavailable, "upstream temporarily unavailable, try again shortly"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway, CodeUpstream, "upstream request timed out"
	default:
		return http.StatusBadGateway, CodeUpstream, err.Error()
	}
}

// fail logs err and writes the classified error response. op prefixes the
// message for upstream failures, e.g. "generate audio".
func fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status, code, msg := classify(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	observe.Logger(ctx).Log(ctx, level, "request failed",
		"op", op,
		"code", code,
		"err", err,
	)
	if code == CodeUpstream {
		msg = "failed to " + op + ": " + msg
	}
	writeError(w, status, code, msg)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorBody{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
