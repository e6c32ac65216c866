package adbuilder

import (
	"slices"

	"github.com/MrWong99/spotcraft/pkg/adclient"
	"github.com/MrWong99/spotcraft/pkg/duration"
)

// Action is one state transition accepted by [Reducer.Reduce].
type Action interface {
	action()
}

type (
	// SetBrand replaces the brand name field.
	SetBrand struct{ Name string }

	// SetDescription replaces the description field.
	SetDescription struct{ Text string }

	// SetDuration selects the target ad length in seconds.
	SetDuration struct{ Seconds int }

	// SetScript replaces the script with a user edit.
	SetScript struct{ Text string }

	// SelectVoice changes the selected voice without requesting a preview.
	// The previous preview is dropped.
	SelectVoice struct{ ID string }

	// Notify raises a notice without any other change.
	Notify struct{ Notice Notice }

	// DismissNotice clears the current notice.
	DismissNotice struct{}

	// ScriptRequested marks a generate or shorten call in flight.
	ScriptRequested struct{}

	// ScriptLoaded installs a drafted or shortened script.
	ScriptLoaded struct {
		Script    string
		Shortened bool
	}

	// ScriptFailed ends a failed script call.
	ScriptFailed struct{}

	// VoicesRequested marks a catalogue fetch in flight.
	VoicesRequested struct{}

	// VoicesLoaded installs the voice catalogue.
	VoicesLoaded struct{ Voices []adclient.Voice }

	// VoicesFailed ends a failed catalogue fetch.
	VoicesFailed struct{}

	// PreviewRequested selects a voice and starts rendering its sample.
	PreviewRequested struct{ VoiceID string }

	// PreviewReady installs the sample object URL.
	PreviewReady struct{ URL string }

	// PreviewFailed ends a failed sample render and clears the voice.
	PreviewFailed struct{ Unavailable bool }

	// AudioRequested marks an ad render in flight.
	AudioRequested struct{}

	// AudioReady installs the rendered ad object URL.
	AudioReady struct{ URL string }

	// AudioFailed ends a failed ad render. Unavailable clears the voice.
	AudioFailed struct{ Unavailable bool }
)

func (SetBrand) action()         {}
func (SetDescription) action()   {}
func (SetDuration) action()      {}
func (SetScript) action()        {}
func (SelectVoice) action()      {}
func (Notify) action()           {}
func (DismissNotice) action()    {}
func (ScriptRequested) action()  {}
func (ScriptLoaded) action()     {}
func (ScriptFailed) action()     {}
func (VoicesRequested) action()  {}
func (VoicesLoaded) action()     {}
func (VoicesFailed) action()     {}
func (PreviewRequested) action() {}
func (PreviewReady) action()     {}
func (PreviewFailed) action()    {}
func (AudioRequested) action()   {}
func (AudioReady) action()       {}
func (AudioFailed) action()      {}

// Reducer applies actions to states. It is a pure function of its inputs.
type Reducer struct {
	Estimator duration.Estimator
}

// Reduce returns the state that results from applying a to s. s is not
// modified. The estimate and verdict are recomputed whenever the script or
// the target duration changes.
func (r Reducer) Reduce(s State, a Action) State {
	next := s
	switch a := a.(type) {
	case SetBrand:
		next.BrandName = a.Name
	case SetDescription:
		next.Description = a.Text
	case SetDuration:
		next.Duration = a.Seconds
	case SetScript:
		next.Script = a.Text
	case SelectVoice:
		if a.ID != s.SelectedVoice {
			next.SelectedVoice = a.ID
			next.SampleURL = ""
		}
	case Notify:
		n := a.Notice
		next.Notice = &n
	case DismissNotice:
		next.Notice = nil

	case ScriptRequested:
		next.Busy = s.Busy.with(OpScript, true)
		next.Notice = nil
	case ScriptLoaded:
		next.Busy = s.Busy.with(OpScript, false)
		next.Script = a.Script
		msg := MsgScriptGenerated
		if a.Shortened {
			msg = MsgScriptShortened
		}
		next.Notice = &Notice{Kind: NoticeInfo, Title: TitleSuccess, Message: msg}
	case ScriptFailed:
		next.Busy = s.Busy.with(OpScript, false)
		next.Notice = errorNotice(MsgScriptFailed)

	case VoicesRequested:
		next.Busy = s.Busy.with(OpVoices, true)
	case VoicesLoaded:
		next.Busy = s.Busy.with(OpVoices, false)
		next.Voices = slices.Clone(a.Voices)
		if next.Voices == nil {
			next.Voices = []adclient.Voice{}
		}
		next.VoicesLoaded = true
	case VoicesFailed:
		next.Busy = s.Busy.with(OpVoices, false)
		next.VoicesLoaded = true
		next.Notice = errorNotice(MsgVoicesFailed)

	case PreviewRequested:
		next.Busy = s.Busy.with(OpPreview, true)
		next.SelectedVoice = a.VoiceID
		next.SampleURL = ""
		next.Notice = nil
	case PreviewReady:
		next.Busy = s.Busy.with(OpPreview, false)
		next.SampleURL = a.URL
	case PreviewFailed:
		next.Busy = s.Busy.with(OpPreview, false)
		next.SelectedVoice = ""
		next.SampleURL = ""
		next.Notice = errorNotice(MsgPreviewFailed)
		if a.Unavailable {
			next.Notice = unavailableNotice()
		}

	case AudioRequested:
		next.Busy = s.Busy.with(OpAudio, true)
		next.Notice = nil
	case AudioReady:
		next.Busy = s.Busy.with(OpAudio, false)
		next.AudioURL = a.URL
		next.Notice = &Notice{Kind: NoticeInfo, Title: TitleAudioGenerated, Message: MsgAudioGenerated}
	case AudioFailed:
		next.Busy = s.Busy.with(OpAudio, false)
		next.Notice = errorNotice(MsgAudioFailed)
		if a.Unavailable {
			next.SelectedVoice = ""
			next.SampleURL = ""
			next.Notice = unavailableNotice()
		}
	}

	if next.Script != s.Script || next.Duration != s.Duration {
		next = r.derive(next)
	}
	return next
}

// derive recomputes the estimate and verdict from the script and duration.
func (r Reducer) derive(s State) State {
	s.Estimate = r.Estimator.Estimate(s.Script)
	s.Result = duration.Evaluate(s.Estimate, s.Duration)
	return s
}

func errorNotice(msg string) *Notice {
	return &Notice{Kind: NoticeError, Title: TitleError, Message: msg}
}

func unavailableNotice() *Notice {
	return &Notice{Kind: NoticeError, Title: TitleVoiceUnavailable, Message: MsgVoiceUnavailable}
}
