package duration

import (
	"math"
	"strings"
	"testing"
)

const tolerance = 1e-9

func TestEstimate_EmptyAndWhitespace(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t  \r\n", "... -- !!", " , . ; "} {
		if got := Estimate(in); got != 0 {
			t.Errorf("Estimate(%q) = %f, want 0", in, got)
		}
	}
}

func TestEstimate_140WPMNoBuffer(t *testing.T) {
	e := Estimator{WordsPerMinute: 140, Buffer: 1}
	got := e.Estimate(strings.Repeat("word ", 140))
	if math.Abs(got-60) > tolerance {
		t.Errorf("Estimate = %f, want 60", got)
	}
}

func TestEstimate_DefaultConstants(t *testing.T) {
	got := Estimate(strings.Repeat("word ", 150))
	want := 60 * DefaultBuffer
	if math.Abs(got-want) > tolerance {
		t.Errorf("Estimate = %f, want %f", got, want)
	}
}

func TestEstimate_ZeroValueUsesDefaults(t *testing.T) {
	var e Estimator
	text := "Acme delivers faster than anyone else in town."
	if got, want := e.Estimate(text), Default.Estimate(text); got != want {
		t.Errorf("zero Estimator = %f, Default = %f", got, want)
	}
}

func TestEstimate_Proportional(t *testing.T) {
	texts := []string{
		"Fast shipping from Acme.",
		"Call now!  Operators are standing by.\nLimited time only.",
		"one",
	}
	for _, text := range texts {
		single := Estimate(text)
		double := Estimate(text + " " + text)
		if math.Abs(double-2*single) > 1e-6 {
			t.Errorf("Estimate(%q doubled) = %f, want %f", text, double, 2*single)
		}
	}
}

func TestEstimate_IgnoresPunctuationTokens(t *testing.T) {
	e := Estimator{WordsPerMinute: 60, Buffer: 1}
	// "—" and "..." are not words; three real words at 60 wpm is 3 seconds.
	got := e.Estimate("Buy — now ... please")
	if math.Abs(got-3) > tolerance {
		t.Errorf("Estimate = %f, want 3", got)
	}
}

func TestCountWords(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"hello", 1},
		{"  hello   world  ", 2},
		{"it's 24/7 service", 3},
		{"¡Hola! ¿Qué tal?", 3},
		{"- - -", 0},
	}
	for _, tt := range tests {
		if got := CountWords(tt.in); got != tt.want {
			t.Errorf("CountWords(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMaxWords_FitsTarget(t *testing.T) {
	for _, target := range []int{15, 30, 45, 60} {
		n := Default.MaxWords(target)
		if n <= 0 {
			t.Fatalf("MaxWords(%d) = %d, want > 0", target, n)
		}
		fit := Default.Estimate(strings.Repeat("word ", n))
		if !Evaluate(fit, target).Fits() {
			t.Errorf("MaxWords(%d) = %d estimates to %f, exceeds target", target, n, fit)
		}
		over := Default.Estimate(strings.Repeat("word ", n+1))
		if Evaluate(over, target).Fits() {
			t.Errorf("MaxWords(%d)+1 estimates to %f, expected overflow", target, over)
		}
	}
	if got := Default.MaxWords(0); got != 0 {
		t.Errorf("MaxWords(0) = %d, want 0", got)
	}
}

func TestMaxWords_ConfiguredRates(t *testing.T) {
	for wpm := 100.0; wpm <= 200; wpm++ {
		for _, buf := range []float64{1, 1.1, 1.15, 1.2} {
			e := Estimator{WordsPerMinute: wpm, Buffer: buf}
			for _, target := range []int{15, 30, 45, 60, 99} {
				n := e.MaxWords(target)
				if got := e.Estimate(strings.Repeat("word ", n)); !Evaluate(got, target).Fits() {
					t.Fatalf("wpm=%v buffer=%v: MaxWords(%d) = %d estimates to %v, overflows", wpm, buf, target, n, got)
				}
				if got := e.Estimate(strings.Repeat("word ", n+1)); Evaluate(got, target).Fits() {
					t.Fatalf("wpm=%v buffer=%v: MaxWords(%d) = %d but %d words still fit (%v)", wpm, buf, target, n, n+1, got)
				}
			}
		}
	}
}

func TestEstimate_ExactBoundaryFits(t *testing.T) {
	// 65 words at 143 wpm with a 1.1 buffer is exactly 30 seconds.
	e := Estimator{WordsPerMinute: 143, Buffer: 1.1}
	got := e.Estimate(strings.Repeat("word ", 65))
	if Round(got) != 30 {
		t.Fatalf("Estimate = %v, want 30.0", got)
	}
	if r := Evaluate(got, 30); !r.Fits() {
		t.Errorf("verdict = %v (margin %v), want fits", r.Verdict, r.Margin)
	}
	if n := e.MaxWords(30); n != 65 {
		t.Errorf("MaxWords(30) = %d, want 65", n)
	}
}

func TestRound(t *testing.T) {
	if got := Round(29.96); got != 30.0 {
		t.Errorf("Round(29.96) = %f, want 30.0", got)
	}
	if got := Round(12.34); got != 12.3 {
		t.Errorf("Round(12.34) = %f, want 12.3", got)
	}
}
