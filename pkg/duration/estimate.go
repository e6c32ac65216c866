// Package duration estimates how long a radio script takes to read aloud and
// decides whether that estimate fits a target ad length.
//
// Both halves are pure functions: [Estimator.Estimate] turns text into seconds
// and [Evaluate] turns an estimate plus a target into a [Result]. Callers are
// expected to re-run them whenever the script or the target changes; the work
// is linear in the word count so nothing is cached.
package duration

import (
	"math"
	"strings"
	"unicode"
)

const (
	// DefaultWordsPerMinute is the assumed speaking rate of a synthetic voice
	// reading ad copy.
	DefaultWordsPerMinute = 150.0

	// DefaultBuffer stretches the raw estimate to account for pauses and
	// emphasis. A buffer of 1 disables the stretch.
	DefaultBuffer = 1.15
)

// Estimator converts script text into an expected spoken duration.
// The zero value uses [DefaultWordsPerMinute] and [DefaultBuffer].
type Estimator struct {
	// WordsPerMinute is the speaking rate. Values <= 0 select the default.
	WordsPerMinute float64

	// Buffer multiplies the raw estimate. Values <= 0 select the default.
	Buffer float64
}

// Default is the canonical estimator used by [Estimate].
var Default = Estimator{WordsPerMinute: DefaultWordsPerMinute, Buffer: DefaultBuffer}

// Estimate returns the spoken duration of text in seconds using [Default].
func Estimate(text string) float64 {
	return Default.Estimate(text)
}

// Estimate returns the spoken duration of text in seconds. Empty,
// whitespace-only and punctuation-only text estimates to 0.
func (e Estimator) Estimate(text string) float64 {
	return e.seconds(CountWords(text))
}

func (e Estimator) seconds(words int) float64 {
	if words <= 0 {
		return 0
	}
	return float64(words) / e.wpm() * 60 * e.buffer()
}

// MaxWords returns the largest word count whose estimate still fits within
// targetSeconds according to [Evaluate]. It is used to give the language
// model a concrete budget.
func (e Estimator) MaxWords(targetSeconds int) int {
	if targetSeconds <= 0 {
		return 0
	}
	n := int(math.Floor(float64(targetSeconds) / 60 * e.wpm() / e.buffer()))
	for n > 0 && !Evaluate(e.seconds(n), targetSeconds).Fits() {
		n--
	}
	for Evaluate(e.seconds(n+1), targetSeconds).Fits() {
		n++
	}
	return n
}

func (e Estimator) wpm() float64 {
	if e.WordsPerMinute <= 0 {
		return DefaultWordsPerMinute
	}
	return e.WordsPerMinute
}

func (e Estimator) buffer() float64 {
	if e.Buffer <= 0 {
		return DefaultBuffer
	}
	return e.Buffer
}

// CountWords splits text on runs of whitespace and counts the tokens that
// contain at least one letter or digit.
func CountWords(text string) int {
	n := 0
	for _, tok := range strings.Fields(text) {
		if strings.IndexFunc(tok, isWordRune) >= 0 {
			n++
		}
	}
	return n
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Round rounds seconds to one decimal place, the precision reported over the wire.
func Round(seconds float64) float64 {
	return math.Round(seconds*10) / 10
}
