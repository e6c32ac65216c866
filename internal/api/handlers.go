package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrWong99/spotcraft/internal/adscript"
	"github.com/MrWong99/spotcraft/internal/config"
	"github.com/MrWong99/spotcraft/pkg/duration"
)

// GenerateScriptRequest is the body of POST /api/generate-script.
type GenerateScriptRequest struct {
	BrandName   string  `json:"brandName"`
	Description string  `json:"description"`
	Duration    Seconds `json:"duration"`
}

// ShortenScriptRequest is the body of POST /api/shorten-script.
type ShortenScriptRequest struct {
	Script   string  `json:"script"`
	Duration Seconds `json:"duration"`
}

// ScriptResponse answers both script endpoints.
type ScriptResponse struct {
	Script            string  `json:"script"`
	EstimatedDuration float64 `json:"estimatedDuration"`
	Verdict           string  `json:"verdict"`
	Margin            float64 `json:"margin"`
	Message           string  `json:"message"`
}

// CheckDurationRequest is the body of POST /api/check-script-duration.
// Duration is optional; without it only the estimate is returned.
type CheckDurationRequest struct {
	Script   string  `json:"script"`
	Duration Seconds `json:"duration,omitempty"`
}

// CheckDurationResponse answers POST /api/check-script-duration.
type CheckDurationResponse struct {
	Duration float64  `json:"duration"`
	Verdict  string   `json:"verdict,omitempty"`
	Margin   *float64 `json:"margin,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// Voice is one catalogue entry as sent on the wire.
type Voice struct {
	VoiceID  string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// VoicesResponse answers GET /api/get-voices.
type VoicesResponse struct {
	Voices []Voice `json:"voices"`
}

// GenerateAudioRequest is the body of POST /api/generate-audio.
type GenerateAudioRequest struct {
	Script  string `json:"script"`
	VoiceID string `json:"voiceId"`
}

// AudioResponse answers POST /api/generate-audio.
type AudioResponse struct {
	AudioContent string `json:"audioContent"`
	ContentType  string `json:"contentType,omitempty"`
}

// DurationsResponse answers GET /api/durations.
type DurationsResponse struct {
	Durations  []int  `json:"durations"`
	SampleText string `json:"sampleText"`
}

func (s *Server) handleGenerateScript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req GenerateScriptRequest
	if err := decode(r, &req); err != nil {
		fail(ctx, w, "generate script", err)
		return
	}
	sc := s.scriptConfig()
	if strings.TrimSpace(req.BrandName) == "" || strings.TrimSpace(req.Description) == "" || req.Duration == 0 {
		fail(ctx, w, "generate script", invalid("brandName, description, and duration are required"))
		return
	}
	if err := checkDuration(sc, req.Duration); err != nil {
		fail(ctx, w, "generate script", err)
		return
	}

	writer, err := s.writer(ctx, sc)
	if err != nil {
		fail(ctx, w, "generate script", err)
		return
	}
	script, err := writer.Generate(ctx, adscript.Brief{
		BrandName:   req.BrandName,
		Description: req.Description,
		Duration:    int(req.Duration),
	})
	if err != nil {
		fail(ctx, w, "generate script", err)
		return
	}
	writeJSON(w, http.StatusOK, s.scriptResponse(ctx, sc, script, int(req.Duration)))
}

func (s *Server) handleShortenScript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ShortenScriptRequest
	if err := decode(r, &req); err != nil {
		fail(ctx, w, "shorten script", err)
		return
	}
	sc := s.scriptConfig()
	if strings.TrimSpace(req.Script) == "" || req.Duration == 0 {
		fail(ctx, w, "shorten script", invalid("script and duration are required"))
		return
	}
	if err := checkDuration(sc, req.Duration); err != nil {
		fail(ctx, w, "shorten script", err)
		return
	}

	writer, err := s.writer(ctx, sc)
	if err != nil {
		fail(ctx, w, "shorten script", err)
		return
	}
	script, err := writer.Shorten(ctx, req.Script, int(req.Duration))
	if err != nil {
		fail(ctx, w, "shorten script", err)
		return
	}
	writeJSON(w, http.StatusOK, s.scriptResponse(ctx, sc, script, int(req.Duration)))
}

func (s *Server) handleCheckDuration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CheckDurationRequest
	if err := decode(r, &req); err != nil {
		fail(ctx, w, "check script duration", err)
		return
	}
	if strings.TrimSpace(req.Script) == "" {
		fail(ctx, w, "check script duration", invalid("script is required"))
		return
	}

	sc := s.scriptConfig()
	est := sc.Estimator().Estimate(req.Script)
	s.metrics.RecordEstimate(ctx, est, int(req.Duration))

	resp := CheckDurationResponse{Duration: duration.Round(est)}
	if req.Duration > 0 {
		res := duration.Evaluate(est, int(req.Duration))
		s.metrics.RecordVerdict(ctx, res.Verdict.String())
		margin := duration.Round(res.Margin)
		resp.Verdict = res.Verdict.String()
		resp.Margin = &margin
		resp.Message = res.Status(est, int(req.Duration))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetVoices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := s.backend.TTS(ctx)
	if err != nil {
		fail(ctx, w, "fetch voices", configError(err))
		return
	}
	voices, err := p.ListVoices(ctx)
	if err != nil {
		fail(ctx, w, "fetch voices", err)
		return
	}

	resp := VoicesResponse{Voices: make([]Voice, 0, len(voices))}
	for _, v := range voices {
		resp.Voices = append(resp.Voices, Voice{VoiceID: v.ID, Name: v.Name, Category: v.Category})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGenerateAudio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req GenerateAudioRequest
	if err := decode(r, &req); err != nil {
		fail(ctx, w, "generate audio", err)
		return
	}
	if strings.TrimSpace(req.Script) == "" || strings.TrimSpace(req.VoiceID) == "" {
		fail(ctx, w, "generate audio", invalid("script and voice ID are required"))
		return
	}

	p, err := s.backend.TTS(ctx)
	if err != nil {
		fail(ctx, w, "generate audio", configError(err))
		return
	}
	audio, err := p.Synthesize(ctx, req.Script, strings.TrimSpace(req.VoiceID))
	if err != nil {
		fail(ctx, w, "generate audio", err)
		return
	}
	writeJSON(w, http.StatusOK, AudioResponse{
		AudioContent: base64.StdEncoding.EncodeToString(audio.Data),
		ContentType:  audio.ContentType,
	})
}

func (s *Server) handleDurations(w http.ResponseWriter, _ *http.Request) {
	sc := s.scriptConfig()
	writeJSON(w, http.StatusOK, DurationsResponse{Durations: sc.Durations, SampleText: sc.SampleText})
}

// writer builds a script writer over the current LLM provider.
func (s *Server) writer(ctx context.Context, sc config.ScriptConfig) (*adscript.Writer, error) {
	p, err := s.backend.LLM(ctx)
	if err != nil {
		return nil, configError(err)
	}
	return adscript.New(p,
		adscript.WithTemperature(sc.Temperature),
		adscript.WithEstimator(sc.Estimator()),
		adscript.WithMaxTokens(sc.MaxTokens),
	), nil
}

func (s *Server) scriptResponse(ctx context.Context, sc config.ScriptConfig, script string, target int) ScriptResponse {
	est := sc.Estimator().Estimate(script)
	res := duration.Evaluate(est, target)
	s.metrics.RecordEstimate(ctx, est, target)
	s.metrics.RecordVerdict(ctx, res.Verdict.String())
	return ScriptResponse{
		Script:            script,
		EstimatedDuration: duration.Round(est),
		Verdict:           res.Verdict.String(),
		Margin:            duration.Round(res.Margin),
		Message:           res.Status(est, target),
	}
}

func checkDuration(sc config.ScriptConfig, d Seconds) error {
	if len(sc.Durations) > 0 && !sc.AllowsDuration(int(d)) {
		return invalid("duration must be one of %v seconds", sc.Durations)
	}
	return nil
}

func configError(err error) error {
	if errors.Is(err, errConfig) {
		return err
	}
	return fmt.Errorf("%w: %w", errConfig, err)
}

// decode reads a JSON body into v. Syntax and type errors are validation
// errors.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return invalid("request body exceeds %d bytes", tooLarge.Limit)
		}
		return invalid("malformed JSON body: %v", err)
	}
	return nil
}
