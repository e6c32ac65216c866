// Package adbuilder drives the ad-building flow: brand and description in,
// drafted script out, duration fit checked locally, then a voice is picked
// and the script rendered to audio.
//
// All flow state lives in a single [State] value that only changes through
// [Reducer.Reduce]. [Controller] owns the live state, issues the remote calls
// through a [Backend], and manages the transient audio object URLs.
package adbuilder

import (
	"slices"

	"github.com/MrWong99/spotcraft/pkg/adclient"
	"github.com/MrWong99/spotcraft/pkg/duration"
)

// DefaultDuration is the ad length selected before the user picks one.
const DefaultDuration = 30

// Op names one asynchronous operation of the flow. Each has its own busy flag.
type Op int

const (
	OpScript Op = iota
	OpAudio
	OpPreview
	OpVoices
)

// String returns the log name of the operation.
func (o Op) String() string {
	switch o {
	case OpScript:
		return "script"
	case OpAudio:
		return "audio"
	case OpPreview:
		return "preview"
	case OpVoices:
		return "voices"
	default:
		return "unknown"
	}
}

// Busy holds one in-flight flag per [Op].
type Busy struct {
	Script  bool
	Audio   bool
	Preview bool
	Voices  bool
}

// Is reports whether op is in flight.
func (b Busy) Is(op Op) bool {
	switch op {
	case OpScript:
		return b.Script
	case OpAudio:
		return b.Audio
	case OpPreview:
		return b.Preview
	case OpVoices:
		return b.Voices
	}
	return false
}

func (b Busy) with(op Op, v bool) Busy {
	switch op {
	case OpScript:
		b.Script = v
	case OpAudio:
		b.Audio = v
	case OpPreview:
		b.Preview = v
	case OpVoices:
		b.Voices = v
	}
	return b
}

// NoticeKind distinguishes success notices from failures.
type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeError
)

// Notice is the last user-facing message raised by the flow.
type Notice struct {
	Kind    NoticeKind
	Title   string
	Message string
}

// Notice texts shown by the flow.
const (
	TitleError            = "Error"
	TitleSuccess          = "Success"
	TitleMissing          = "Missing Information"
	TitleVoiceUnavailable = "Voice Unavailable"
	TitleTooLong          = "Script Too Long"
	TitleAudioGenerated   = "Audio Generated"

	MsgFillAllFields    = "Please fill in all fields"
	MsgNeedScriptVoice  = "Please generate a script and select a voice first"
	MsgScriptGenerated  = "Your script has been generated!"
	MsgScriptShortened  = "Your script has been shortened!"
	MsgAudioGenerated   = "Your audio ad has been created successfully!"
	MsgScriptFailed     = "Failed to generate script. Please try again."
	MsgAudioFailed      = "Failed to generate audio. Please try again."
	MsgPreviewFailed    = "Failed to generate voice sample. Please try again."
	MsgVoicesFailed     = "Failed to load available voices. Please try again later."
	MsgVoiceUnavailable = "This voice is not available for free users. Please try a different voice or upgrade your ElevenLabs account."
)

// State is one immutable snapshot of the flow. Estimate and Result are derived
// from Script and Duration and are never set directly.
type State struct {
	BrandName   string
	Description string
	Duration    int
	Script      string

	Estimate float64
	Result   duration.Result

	Voices        []adclient.Voice
	VoicesLoaded  bool
	SelectedVoice string

	// SampleURL and AudioURL are media object URLs for the voice preview and
	// the rendered ad. Empty when nothing is installed.
	SampleURL string
	AudioURL  string

	Busy   Busy
	Notice *Notice
}

// Initial returns the state of a fresh flow.
func Initial() State {
	return State{
		Duration: DefaultDuration,
		Result:   duration.Evaluate(0, DefaultDuration),
	}
}

// HasScript reports whether a non-blank script is present.
func (s State) HasScript() bool {
	return duration.CountWords(s.Script) > 0
}

// Fits reports whether the current script fits the selected duration.
func (s State) Fits() bool {
	return s.HasScript() && s.Result.Fits()
}

// CanGenerateAudio reports whether the audio control is enabled: a script and
// a voice are present, the script fits, and no render is in flight.
func (s State) CanGenerateAudio() bool {
	return s.Fits() && s.SelectedVoice != "" && !s.Busy.Audio
}

// CanShorten reports whether the flow should offer shortening.
func (s State) CanShorten() bool {
	return s.HasScript() && !s.Result.Fits() && !s.Busy.Script
}

// StatusMessage is the inline duration status. Empty without a script.
func (s State) StatusMessage() string {
	if !s.HasScript() {
		return ""
	}
	return s.Result.Status(s.Estimate, s.Duration)
}

// Voice returns the selected catalogue entry.
func (s State) Voice() (adclient.Voice, bool) {
	i := slices.IndexFunc(s.Voices, func(v adclient.Voice) bool { return v.ID == s.SelectedVoice })
	if i < 0 {
		return adclient.Voice{}, false
	}
	return s.Voices[i], true
}
