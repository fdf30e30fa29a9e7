// Package notes maps between frequencies and sargam notes relative to a
// movable tonic (Sa). Every frequency is computed from the tonic on demand;
// nothing here caches, so retuning Sa retunes everything instantly.
package notes

import (
	"errors"
	"fmt"
	"math"
)

// Errors
var (
	ErrNoMatch  = errors.New("no note matches the given frequency")
	ErrEmptySet = errors.New("allowed note set is empty")
)

// Note is a sargam scale degree: a semitone offset from Sa and its label.
type Note struct {
	Name      string // e.g. "Sa", "Re♭", "Ma#"
	Semitones int    // 0-12 above the tonic
}

// Sargam is the chromatic table from Sa up to the octave Sa'.
var Sargam = []Note{
	{"Sa", 0},
	{"Re♭", 1},
	{"Re", 2},
	{"Ga♭", 3},
	{"Ga", 4},
	{"Ma", 5},
	{"Ma#", 6},
	{"Pa", 7},
	{"Dha♭", 8},
	{"Dha", 9},
	{"Ni♭", 10},
	{"Ni", 11},
	{"Sa'", 12},
}

// Ragas maps raga names to their allowed semitone offsets. Sa and the
// octave Sa' are always included.
var Ragas = map[string][]int{
	"Bilawal":  {0, 2, 4, 5, 7, 9, 11, 12},
	"Yaman":    {0, 2, 4, 6, 7, 9, 11, 12},
	"Kafi":     {0, 2, 3, 5, 7, 9, 10, 12},
	"Bhairavi": {0, 1, 3, 5, 7, 8, 10, 12},
	"Bhairav":  {0, 1, 4, 5, 7, 8, 11, 12},
	"Todi":     {0, 1, 3, 6, 7, 8, 11, 12},
	"Marwa":    {0, 1, 4, 6, 9, 11, 12},
}

// AllOffsets returns every chromatic offset 0-12.
func AllOffsets() []int {
	offs := make([]int, len(Sargam))
	for i, n := range Sargam {
		offs[i] = n.Semitones
	}
	return offs
}

// Name returns the sargam label for a semitone offset, or "" if out of range.
func Name(semitones int) string {
	if semitones < 0 || semitones >= len(Sargam) {
		return ""
	}
	return Sargam[semitones].Name
}

// ByName looks up the semitone offset for a sargam label.
func ByName(name string) (int, bool) {
	for _, n := range Sargam {
		if n.Name == name {
			return n.Semitones, true
		}
	}
	return 0, false
}

// Frequency computes the equal-temperament frequency of a scale degree:
// tonic * 2^(semitones/12). Pure; recomputed on every call.
func Frequency(tonic float64, semitones int) float64 {
	return tonic * math.Pow(2, float64(semitones)/12.0)
}

// Cents returns the signed deviation of freq from target in cents.
func Cents(freq, target float64) float64 {
	return 1200 * math.Log2(freq/target)
}

// Match is the result of snapping a frequency to the nearest allowed note.
type Match struct {
	Semitones int     // matched offset, 0-12
	Cents     float64 // signed deviation from the matched note
}

// Nearest snaps a frequency to the closest note among the allowed semitone
// offsets, octave-folded so a voice singing below or above the tonic's
// octave still matches its scale degree. Offset 12 (Sa') is a distinct
// candidate only when present in allowed.
func Nearest(freq, tonic float64, allowed []int) (Match, error) {
	if len(allowed) == 0 {
		return Match{}, ErrEmptySet
	}
	if freq <= 0 || tonic <= 0 {
		return Match{}, ErrNoMatch
	}

	raw := 12 * math.Log2(freq/tonic)

	best := Match{}
	bestAbs := math.Inf(1)
	bestDist := math.Inf(1)
	found := false
	for _, off := range allowed {
		if off < 0 || off > 12 {
			continue
		}
		// Nearest octave representative of this degree.
		rep := float64(off) + 12*math.Round((raw-float64(off))/12)
		cents := 100 * (raw - rep)
		abs := math.Abs(cents)
		dist := math.Abs(raw - float64(off))
		// Prefer the smaller deviation; on ties (Sa vs Sa') prefer the
		// candidate in its own octave.
		if abs < bestAbs-1e-9 || (math.Abs(abs-bestAbs) <= 1e-9 && dist < bestDist) {
			best = Match{Semitones: off, Cents: cents}
			bestAbs = abs
			bestDist = dist
			found = true
		}
	}
	if !found {
		return Match{}, ErrNoMatch
	}
	return best, nil
}

// westernNames in chromatic order starting at C.
var westernNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// WesternName returns the closest western note name with octave, e.g. "A3".
func WesternName(freq float64) string {
	if freq <= 0 {
		return ""
	}
	// Semitones from C3 (130.81 Hz).
	st := int(math.Round(12 * math.Log2(freq/130.81)))
	idx := ((st % 12) + 12) % 12
	oct := 3 + int(math.Floor(float64(st)/12.0))
	return fmt.Sprintf("%s%d", westernNames[idx], oct)
}

// MIDIToHz converts a MIDI note number to Hz. Equal temperament, A4 = 440 Hz.
func MIDIToHz(midi int) float64 {
	return 440.0 * math.Pow(2, float64(midi-69)/12.0)
}
