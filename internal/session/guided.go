package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/0xlemi/riyaaz/internal/notes"
	"github.com/0xlemi/riyaaz/internal/pitch"
)

// Errors
var (
	ErrEmptySequence = errors.New("guided sequence is empty")
	ErrBadTransition = errors.New("invalid guided state transition")
	ErrUnknownNote   = errors.New("unknown sargam note")
)

// State is a guided Riyaaz phase. Transitions are strictly sequential:
// Idle → Announce → Listen → Scored → (Announce | Complete).
type State int

const (
	Idle State = iota
	Announce
	Listen
	Scored
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Announce:
		return "announce"
	case Listen:
		return "listen"
	case Scored:
		return "scored"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// hitThreshold is the accuracy percentage at which a note counts as hit.
const hitThreshold = 55.0

// NoteResult records one scored note of a guided session.
type NoteResult struct {
	Note     string    // sargam label
	Offset   int       // semitones above Sa
	SungAt   time.Time // when the LISTEN phase ended
	Accuracy float64   // on-pitch percentage
	AvgCents float64   // mean signed deviation
	Hit      bool      // accuracy reached the hit threshold
}

// Guided runs one exercise: an ordered sequence of target notes, each
// announced, listened to, and scored in turn. All methods must be called
// from a single goroutine; the engine serializes access.
type Guided struct {
	cfg   Config
	tonic func() float64

	seq     []int
	idx     int
	state   State
	window  *Window
	results []NoteResult
}

// NewGuided creates a session over a sequence of semitone offsets.
func NewGuided(cfg Config, seq []int, tonic func() float64) (*Guided, error) {
	if len(seq) == 0 {
		return nil, ErrEmptySequence
	}
	for _, off := range seq {
		if notes.Name(off) == "" {
			return nil, fmt.Errorf("%w: offset %d", ErrUnknownNote, off)
		}
	}
	return &Guided{
		cfg:   cfg,
		tonic: tonic,
		seq:   append([]int(nil), seq...),
	}, nil
}

// State returns the current phase.
func (g *Guided) State() State {
	return g.state
}

// Target returns the semitone offset currently being exercised.
func (g *Guided) Target() int {
	return g.seq[g.idx]
}

// Progress returns the 1-based step number and the sequence length.
func (g *Guided) Progress() (step, total int) {
	step = g.idx + 1
	if step > len(g.seq) {
		step = len(g.seq)
	}
	return step, len(g.seq)
}

// Begin moves Idle → Announce and returns the first target offset. The
// caller plays its tone and, after the announce delay, starts listening.
func (g *Guided) Begin() (int, error) {
	if g.state != Idle {
		return 0, fmt.Errorf("%w: begin from %s", ErrBadTransition, g.state)
	}
	g.state = Announce
	return g.Target(), nil
}

// StartListening moves Announce → Listen, opening a fresh scoring window
// for the target. Any previous window is discarded atomically.
func (g *Guided) StartListening() error {
	if g.state != Announce {
		return fmt.Errorf("%w: listen from %s", ErrBadTransition, g.state)
	}
	g.window = NewWindow(g.cfg, g.Target(), g.tonic)
	g.state = Listen
	return nil
}

// Observe feeds one pitch sample into the active window. Samples arriving
// outside the LISTEN phase are ignored.
func (g *Guided) Observe(s pitch.Sample) {
	if g.state != Listen {
		return
	}
	g.window.Observe(s)
}

// FinishNote moves Listen → Scored, recording the note's result. An empty
// window (no singing detected) scores zero.
func (g *Guided) FinishNote() (NoteResult, error) {
	if g.state != Listen {
		return NoteResult{}, fmt.Errorf("%w: score from %s", ErrBadTransition, g.state)
	}
	acc := g.window.Accuracy()
	result := NoteResult{
		Note:     notes.Name(g.Target()),
		Offset:   g.Target(),
		SungAt:   time.Now(),
		Accuracy: acc,
		AvgCents: g.window.AvgCents(),
		Hit:      acc >= hitThreshold,
	}
	g.results = append(g.results, result)
	g.window = nil
	g.state = Scored
	return result, nil
}

// Advance moves Scored → Announce for the next note, or → Complete after
// the last one. When done is true the returned offset is meaningless.
func (g *Guided) Advance() (next int, done bool, err error) {
	if g.state != Scored {
		return 0, false, fmt.Errorf("%w: advance from %s", ErrBadTransition, g.state)
	}
	g.idx++
	if g.idx >= len(g.seq) {
		g.idx = len(g.seq) - 1
		g.state = Complete
		return 0, true, nil
	}
	g.state = Announce
	return g.Target(), false, nil
}

// Abort ends the session from any state without finalizing results.
func (g *Guided) Abort() {
	g.window = nil
	g.state = Complete
}

// Results returns the per-note results recorded so far, in sequence order.
func (g *Guided) Results() []NoteResult {
	out := make([]NoteResult, len(g.results))
	copy(out, g.results)
	return out
}

// Hits counts how many notes were hit.
func (g *Guided) Hits() int {
	hits := 0
	for _, r := range g.results {
		if r.Hit {
			hits++
		}
	}
	return hits
}
