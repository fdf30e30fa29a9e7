package session

import (
	"fmt"
	"math/rand"

	"github.com/0xlemi/riyaaz/internal/notes"
)

// Exercises is the built-in catalog of guided sequences, by sargam label.
var Exercises = map[string][]string{
	"Hold Sa":      {"Sa"},
	"Sa-Re-Sa":     {"Sa", "Re", "Sa"},
	"Sa-Ga-Sa":     {"Sa", "Ga", "Sa"},
	"Sa-Pa-Sa":     {"Sa", "Pa", "Sa"},
	"Sa-Ni-Sa":     {"Sa", "Ni", "Sa"},
	"Aaroh":        {"Sa", "Re", "Ga", "Ma", "Pa", "Dha", "Ni", "Sa'"},
	"Avaroh":       {"Sa'", "Ni", "Dha", "Pa", "Ma", "Ga", "Re", "Sa"},
	"Full Saptaka": {"Sa", "Re", "Ga", "Ma", "Pa", "Dha", "Ni", "Sa'", "Ni", "Dha", "Pa", "Ma", "Ga", "Re", "Sa"},
	"Komal Drill":  {"Re♭", "Ga♭", "Ma#", "Dha♭", "Ni♭"},
}

// randomLength is the length of a generated random exercise.
const randomLength = 8

// Sequence resolves an exercise name to semitone offsets. The special
// name "Random" draws notes from the allowed set.
func Sequence(name string, allowed []int) ([]int, error) {
	if name == "Random" {
		return RandomSequence(allowed)
	}
	labels, ok := Exercises[name]
	if !ok {
		return nil, fmt.Errorf("unknown exercise %q", name)
	}
	seq := make([]int, len(labels))
	for i, label := range labels {
		off, ok := notes.ByName(label)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNote, label)
		}
		seq[i] = off
	}
	return seq, nil
}

// RandomSequence draws a practice sequence from the allowed offsets,
// excluding the octave so every draw is a distinct scale degree.
func RandomSequence(allowed []int) ([]int, error) {
	pool := make([]int, 0, len(allowed))
	for _, off := range allowed {
		if off >= 0 && off < 12 {
			pool = append(pool, off)
		}
	}
	if len(pool) == 0 {
		return nil, ErrEmptySequence
	}
	seq := make([]int, randomLength)
	for i := range seq {
		seq[i] = pool[rand.Intn(len(pool))]
	}
	return seq, nil
}
