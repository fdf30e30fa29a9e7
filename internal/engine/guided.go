package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/0xlemi/riyaaz/internal/log"
	"github.com/0xlemi/riyaaz/internal/notes"
	"github.com/0xlemi/riyaaz/internal/session"
)

// Errors
var (
	ErrSessionActive = errors.New("a guided session is already running")
	ErrNoSession     = errors.New("no such guided session")
)

// GuidedHandle identifies one guided run. Handles from finished sessions
// stay valid for reading results until the next session starts.
type GuidedHandle uint64

// guidedRun is the driver state for one exercise. The session state
// machine itself is guarded by the engine mutex; the channels coordinate
// the driver goroutine with the API surface.
type guidedRun struct {
	handle  GuidedHandle
	session *session.Guided
	advance chan struct{}
	stop    chan struct{}
	done    chan struct{}

	stopOnce sync.Once
}

func (r *guidedRun) signalStop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// StartExercise resolves a named exercise against the current note set
// and starts a guided session over it.
func (e *Engine) StartExercise(name string) (GuidedHandle, error) {
	seq, err := session.Sequence(name, e.Allowed())
	if err != nil {
		return 0, err
	}
	return e.StartGuidedSession(seq)
}

// StartGuidedSession starts a guided run over a sequence of semitone
// offsets. Only one session may run at a time. The driver announces each
// note with its tone, listens for the configured duration, scores it,
// and moves on; on natural completion the results are persisted.
func (e *Engine) StartGuidedSession(seq []int) (GuidedHandle, error) {
	g, err := session.NewGuided(e.scoringConfig(), seq, e.Tonic)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	if e.guided != nil && e.guided.session.State() != session.Complete {
		e.mu.Unlock()
		return 0, ErrSessionActive
	}
	e.nextHandle++
	run := &guidedRun{
		handle:  e.nextHandle,
		session: g,
		advance: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	e.guided = run
	capturing := e.capturing
	e.mu.Unlock()

	if !capturing {
		log.Warn("guided session started without capture; no samples will score")
	}
	go e.runGuided(run)
	return run.handle, nil
}

// runGuided drives the Announce → Listen → Scored cycle for every note in
// the sequence. Observe calls arrive concurrently from the capture loop;
// every state transition happens under the engine mutex.
func (e *Engine) runGuided(run *guidedRun) {
	defer close(run.done)
	g := run.session

	e.mu.Lock()
	target, err := g.Begin()
	e.mu.Unlock()
	if err != nil {
		log.Error("guided begin failed", "error", err)
		return
	}

	for {
		freq := e.NoteFrequency(target)
		log.Info("announcing note", "note", notes.Name(target), "hz", freq)
		if err := e.tones.Play(freq, e.cfg.Synth.ToneSecs); err != nil {
			log.Error("announce tone failed", "error", err)
		}
		if !e.guidedSleep(run, e.cfg.Scoring.AnnounceDelay) {
			e.abortRun(run)
			return
		}

		e.mu.Lock()
		err := g.StartListening()
		e.mu.Unlock()
		if err != nil {
			log.Error("guided listen failed", "error", err)
			e.abortRun(run)
			return
		}
		if !e.guidedListen(run, e.cfg.Scoring.NoteDuration) {
			e.abortRun(run)
			return
		}

		e.mu.Lock()
		result, ferr := g.FinishNote()
		var next int
		var done bool
		if ferr == nil {
			next, done, ferr = g.Advance()
		}
		e.mu.Unlock()
		if ferr != nil {
			log.Error("guided scoring failed", "error", ferr)
			e.abortRun(run)
			return
		}
		log.Info("note scored",
			"note", result.Note,
			"accuracy", result.Accuracy,
			"cents", result.AvgCents,
			"hit", result.Hit)
		if done {
			break
		}
		target = next
	}

	e.persistResults(g.Results())
}

// guidedSleep waits out the announce delay. Returns false if the run was
// stopped while waiting.
func (e *Engine) guidedSleep(run *guidedRun, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-run.stop:
		return false
	case <-timer.C:
		return true
	}
}

// guidedListen waits out the listen phase, ending early on a manual
// advance. Returns false if the run was stopped.
func (e *Engine) guidedListen(run *guidedRun, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-run.stop:
		return false
	case <-run.advance:
		return true
	case <-timer.C:
		return true
	}
}

func (e *Engine) abortRun(run *guidedRun) {
	e.mu.Lock()
	run.session.Abort()
	if e.guided == run {
		e.guided = nil
	}
	e.mu.Unlock()
}

func (e *Engine) persistResults(results []session.NoteResult) {
	if e.results == nil || len(results) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.results.AppendResults(ctx, results); err != nil {
		log.Error("failed to persist session results", "error", err)
	}
}

// lookupRun returns the run for a handle, or nil.
func (e *Engine) lookupRun(h GuidedHandle) *guidedRun {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.guided == nil || e.guided.handle != h {
		return nil
	}
	return e.guided
}

// AdvanceGuidedSession ends the current LISTEN phase early, scoring the
// note with whatever was sung so far.
func (e *Engine) AdvanceGuidedSession(h GuidedHandle) error {
	run := e.lookupRun(h)
	if run == nil {
		return ErrNoSession
	}
	select {
	case run.advance <- struct{}{}:
	default:
	}
	return nil
}

// AbortGuidedSession stops a run and waits for its driver to exit. No
// results are persisted.
func (e *Engine) AbortGuidedSession(h GuidedHandle) error {
	run := e.lookupRun(h)
	if run == nil {
		return ErrNoSession
	}
	run.signalStop()
	<-run.done
	return nil
}

// GuidedState reports the phase, current target offset, and progress of
// a run.
func (e *Engine) GuidedState(h GuidedHandle) (state session.State, target, step, total int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.guided == nil || e.guided.handle != h {
		return session.Idle, 0, 0, 0, ErrNoSession
	}
	g := e.guided.session
	step, total = g.Progress()
	return g.State(), g.Target(), step, total, nil
}

// GuidedResults returns the per-note results recorded so far. Valid for a
// completed session until a new one starts.
func (e *Engine) GuidedResults(h GuidedHandle) ([]session.NoteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.guided == nil || e.guided.handle != h {
		return nil, ErrNoSession
	}
	return e.guided.session.Results(), nil
}

// GuidedDone returns a channel closed when the run's driver exits.
func (e *Engine) GuidedDone(h GuidedHandle) <-chan struct{} {
	run := e.lookupRun(h)
	if run == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return run.done
}
