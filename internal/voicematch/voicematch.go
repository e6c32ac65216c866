// Package voicematch resolves a voice the user typed on the command line
// against the provider catalogue.
//
// A query matches, in order of preference: a voice ID exactly, a voice name
// case-insensitively, or the name that sounds most alike. Sounding alike
// means the Double Metaphone codes of some query token and some name token
// overlap and the Jaro-Winkler similarity clears a threshold; without any
// phonetic overlap a stricter similarity threshold applies.
package voicematch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/spotcraft/pkg/adclient"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.88
)

// ErrNoMatch is returned when no voice is close enough to the query.
var ErrNoMatch = errors.New("voicematch: no matching voice")

// How reports which rule produced a [Match].
type How string

const (
	ByID       How = "id"
	ByName     How = "name"
	ByPhonetic How = "phonetic"
	ByFuzzy    How = "fuzzy"
)

// Match is a resolved voice.
type Match struct {
	Voice adclient.Voice
	How   How
	// Score is the Jaro-Winkler similarity for phonetic and fuzzy matches,
	// and 1 otherwise.
	Score float64
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the similarity a phonetically overlapping name
// needs. Default: 0.70.
func WithPhoneticThreshold(v float64) Option {
	return func(m *Matcher) { m.phonetic = v }
}

// WithFuzzyThreshold sets the similarity a name without phonetic overlap
// needs. Default: 0.88.
func WithFuzzyThreshold(v float64) Option {
	return func(m *Matcher) { m.fuzzy = v }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phonetic float64
	fuzzy    float64
}

// New returns a [Matcher].
func New(opts ...Option) *Matcher {
	m := &Matcher{phonetic: defaultPhoneticThreshold, fuzzy: defaultFuzzyThreshold}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Resolve finds the voice query refers to. Ties keep catalogue order.
func (m *Matcher) Resolve(query string, voices []adclient.Voice) (Match, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Match{}, fmt.Errorf("%w: empty query", ErrNoMatch)
	}

	for _, v := range voices {
		if v.ID == q {
			return Match{Voice: v, How: ByID, Score: 1}, nil
		}
	}
	for _, v := range voices {
		if strings.EqualFold(strings.TrimSpace(v.Name), q) {
			return Match{Voice: v, How: ByName, Score: 1}, nil
		}
	}

	lower := strings.ToLower(q)
	qTokens := strings.Fields(lower)
	qCodes := metaphones(qTokens)

	var best Match
	for _, v := range voices {
		name := strings.ToLower(strings.TrimSpace(v.Name))
		if name == "" {
			continue
		}
		nTokens := strings.Fields(name)
		score := similarity(qTokens, nTokens, lower, name)

		if overlaps(qCodes, metaphones(nTokens)) {
			if score >= m.phonetic && (best.How != ByPhonetic || score > best.Score) {
				best = Match{Voice: v, How: ByPhonetic, Score: score}
			}
			continue
		}
		if best.How != ByPhonetic && score >= m.fuzzy && score > best.Score {
			best = Match{Voice: v, How: ByFuzzy, Score: score}
		}
	}
	if best.How == "" {
		return Match{}, fmt.Errorf("%w: %q", ErrNoMatch, q)
	}
	return best, nil
}

func metaphones(tokens []string) map[string]bool {
	codes := make(map[string]bool, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = true
		}
		if s != "" {
			codes[s] = true
		}
	}
	return codes
}

func overlaps(a, b map[string]bool) bool {
	for c := range a {
		if b[c] {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score over the full strings, the
// strings with spaces removed, and every token pair.
func similarity(qTokens, nTokens []string, q, name string) float64 {
	score := matchr.JaroWinkler(q, name, false)
	if s := matchr.JaroWinkler(strings.Join(qTokens, ""), strings.Join(nTokens, ""), false); s > score {
		score = s
	}
	for _, a := range qTokens {
		for _, b := range nTokens {
			if s := matchr.JaroWinkler(a, b, false); s > score {
				score = s
			}
		}
	}
	return score
}
