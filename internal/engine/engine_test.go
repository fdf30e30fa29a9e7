package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/0xlemi/riyaaz/internal/audio"
	"github.com/0xlemi/riyaaz/internal/config"
	"github.com/0xlemi/riyaaz/internal/pitch"
	"github.com/0xlemi/riyaaz/internal/session"
)

// nullSink discards playback so synth voices run without a device.
type nullSink struct{}

func (nullSink) Write([]float32) error { return nil }
func (nullSink) Close() error          { return nil }

func newNullSink() (audio.Sink, error) { return nullSink{}, nil }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Scoring.AnnounceDelay = 20 * time.Millisecond
	cfg.Scoring.NoteDuration = 250 * time.Millisecond
	cfg.Synth.ToneSecs = 0.05
	return cfg
}

func newTestEngine(t *testing.T, mock *audio.MockCapturer) *Engine {
	t.Helper()
	e, err := New(testConfig(), WithCapturer(mock), WithSinkFactory(newNullSink))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := e.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return e
}

func TestRingDropsOldestKeepsOrder(t *testing.T) {
	const capacity = 4
	r := newSampleRing(capacity)
	for i := 1; i <= capacity+1; i++ {
		r.push(pitch.Sample{Frequency: float64(i)})
	}

	// The oldest sample (1) is gone; 2..5 arrive in order.
	want := []float64{2, 3, 4, 5}
	for _, w := range want {
		select {
		case s := <-r.C():
			if s.Frequency != w {
				t.Fatalf("got %.0f, want %.0f", s.Frequency, w)
			}
		default:
			t.Fatalf("ring empty, want %.0f", w)
		}
	}
	select {
	case s := <-r.C():
		t.Fatalf("unexpected extra sample %.0f", s.Frequency)
	default:
	}
}

func TestRingPushNeverBlocks(t *testing.T) {
	r := newSampleRing(2)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			r.push(pitch.Sample{Frequency: float64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push blocked with no consumer")
	}
}

func TestTonicRetune(t *testing.T) {
	e := newTestEngine(t, audio.NewMockCapturer(44100, 2048))

	if got := e.NoteFrequency(12); got != 440 {
		t.Fatalf("Sa' at default tonic = %.2f, want 440", got)
	}
	if err := e.SetTonic(261.63); err != nil {
		t.Fatalf("SetTonic: %v", err)
	}
	if got := e.NoteFrequency(0); got != 261.63 {
		t.Errorf("Sa after retune = %.2f, want 261.63", got)
	}
	if err := e.SetTonic(-5); !errors.Is(err, ErrInvalidTonic) {
		t.Errorf("SetTonic(-5) = %v, want ErrInvalidTonic", err)
	}
}

func TestRagaRestrictsNearest(t *testing.T) {
	e := newTestEngine(t, audio.NewMockCapturer(44100, 2048))

	if err := e.SetRaga("Yaman"); err != nil {
		t.Fatalf("SetRaga: %v", err)
	}
	// Shuddha Ma (offset 5) is not in Yaman; its frequency must snap to a
	// neighboring degree.
	m, err := e.Nearest(e.Tonic() * 1.3348) // ~offset 5
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if m.Semitones == 5 {
		t.Errorf("Nearest snapped to excluded offset 5")
	}
	if err := e.SetRaga("NoSuchRaga"); !errors.Is(err, ErrUnknownRaga) {
		t.Errorf("SetRaga(bogus) = %v, want ErrUnknownRaga", err)
	}
	if err := e.SetRaga(""); err != nil {
		t.Fatalf("SetRaga reset: %v", err)
	}
	if len(e.Allowed()) != 13 {
		t.Errorf("reset allowed len = %d, want 13", len(e.Allowed()))
	}
}

func TestCaptureProducesVoicedSamples(t *testing.T) {
	mock := audio.NewMockCapturer(44100, 2048, audio.WithSine(220, 0.4))
	e := newTestEngine(t, mock)

	if err := e.StartCapture(); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	if err := e.StartCapture(); !errors.Is(err, audio.ErrAlreadyCapturing) {
		t.Fatalf("second StartCapture = %v, want ErrAlreadyCapturing", err)
	}

	samples := e.Subscribe()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case s := <-samples:
			if !s.Voiced() {
				continue
			}
			if s.Frequency < 219 || s.Frequency > 221 {
				t.Fatalf("voiced sample at %.2f Hz, want ~220", s.Frequency)
			}
			if s.Confidence <= 0.5 {
				t.Fatalf("confidence %.2f, want > 0.5", s.Confidence)
			}
			if latest, ok := e.Latest(); !ok || latest.Time.IsZero() {
				t.Fatal("Latest not tracking samples")
			}
			if err := e.StopCapture(); err != nil {
				t.Fatalf("StopCapture: %v", err)
			}
			return
		case <-deadline:
			t.Fatal("no voiced sample within deadline")
		}
	}
}

func TestFreeWindowScoresAgainstTarget(t *testing.T) {
	mock := audio.NewMockCapturer(44100, 2048, audio.WithSine(220, 0.4))
	e := newTestEngine(t, mock)

	if _, err := e.Accuracy(); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("Accuracy without target = %v, want ErrNoTarget", err)
	}
	if err := e.SetActiveTarget(0, 0); err != nil {
		t.Fatalf("SetActiveTarget: %v", err)
	}
	if err := e.StartCapture(); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		acc, err := e.Accuracy()
		if err != nil {
			t.Fatalf("Accuracy: %v", err)
		}
		if acc > 90 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("accuracy stuck at %.1f singing the target", acc)
		case <-time.After(50 * time.Millisecond):
		}
	}

	e.ClearActiveTarget()
	if _, err := e.Accuracy(); !errors.Is(err, ErrNoTarget) {
		t.Errorf("Accuracy after clear = %v, want ErrNoTarget", err)
	}
}

func TestGuidedSessionEndToEnd(t *testing.T) {
	mock := audio.NewMockCapturer(44100, 2048, audio.WithSine(220, 0.4))
	e := newTestEngine(t, mock)

	if err := e.StartCapture(); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}

	// Sing Sa the whole time: Sa should hit, Pa should not.
	h, err := e.StartGuidedSession([]int{0, 7})
	if err != nil {
		t.Fatalf("StartGuidedSession: %v", err)
	}
	if _, err := e.StartGuidedSession([]int{0}); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("concurrent session = %v, want ErrSessionActive", err)
	}

	select {
	case <-e.GuidedDone(h):
	case <-time.After(5 * time.Second):
		t.Fatal("guided session did not complete")
	}

	results, err := e.GuidedResults(h)
	if err != nil {
		t.Fatalf("GuidedResults: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Note != "Sa" || results[1].Note != "Pa" {
		t.Fatalf("result order %q, %q; want Sa, Pa", results[0].Note, results[1].Note)
	}
	if !results[0].Hit {
		t.Errorf("Sa not hit at %.1f%% accuracy", results[0].Accuracy)
	}
	if results[1].Hit {
		t.Errorf("Pa hit at %.1f%% while singing Sa", results[1].Accuracy)
	}

	state, _, _, _, err := e.GuidedState(h)
	if err != nil {
		t.Fatalf("GuidedState: %v", err)
	}
	if state != session.Complete {
		t.Errorf("state %v after completion, want complete", state)
	}
}

func TestGuidedAbort(t *testing.T) {
	mock := audio.NewMockCapturer(44100, 2048)
	e := newTestEngine(t, mock)

	h, err := e.StartGuidedSession([]int{0, 2, 4})
	if err != nil {
		t.Fatalf("StartGuidedSession: %v", err)
	}
	if err := e.AbortGuidedSession(h); err != nil {
		t.Fatalf("AbortGuidedSession: %v", err)
	}
	select {
	case <-e.GuidedDone(h):
	case <-time.After(time.Second):
		t.Fatal("driver did not exit after abort")
	}
	if _, err := e.GuidedResults(h); !errors.Is(err, ErrNoSession) {
		t.Errorf("results after abort = %v, want ErrNoSession", err)
	}
}

func TestGuidedAdvanceSkipsListen(t *testing.T) {
	mock := audio.NewMockCapturer(44100, 2048)
	cfg := testConfig()
	cfg.Scoring.NoteDuration = time.Hour // only a manual advance can end LISTEN
	e, err := New(cfg, WithCapturer(mock), WithSinkFactory(newNullSink))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	h, err := e.StartGuidedSession([]int{0})
	if err != nil {
		t.Fatalf("StartGuidedSession: %v", err)
	}

	// Wait for LISTEN, then cut it short.
	deadline := time.After(2 * time.Second)
	for {
		state, _, _, _, err := e.GuidedState(h)
		if err != nil {
			t.Fatalf("GuidedState: %v", err)
		}
		if state == session.Listen {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("never reached listen, state %v", state)
		case <-time.After(10 * time.Millisecond):
		}
	}
	if err := e.AdvanceGuidedSession(h); err != nil {
		t.Fatalf("AdvanceGuidedSession: %v", err)
	}
	select {
	case <-e.GuidedDone(h):
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish after advance")
	}
}
