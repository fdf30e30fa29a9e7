package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/0xlemi/riyaaz/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "riyaaz.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	results := []session.NoteResult{
		{Note: "Sa", Offset: 0, SungAt: time.Now().Add(-2 * time.Second), Accuracy: 90, AvgCents: 3.5, Hit: true},
		{Note: "Re", Offset: 2, SungAt: time.Now().Add(-1 * time.Second), Accuracy: 40, AvgCents: -22, Hit: false},
	}
	if err := s.AppendResults(ctx, results); err != nil {
		t.Fatalf("AppendResults: %v", err)
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	// Newest first.
	if got[0].Note != "Re" || got[1].Note != "Sa" {
		t.Errorf("order %q, %q; want Re, Sa", got[0].Note, got[1].Note)
	}
	if got[1].Accuracy != 90 || !got[1].Hit {
		t.Errorf("Sa result %+v lost fields", got[1])
	}
}

func TestAppendEmptyIsNoop(t *testing.T) {
	s := openTestStore(t)
	if err := s.AppendResults(context.Background(), nil); err != nil {
		t.Fatalf("AppendResults(nil): %v", err)
	}
	got, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d results, want 0", len(got))
	}
}

func TestSummaryAggregates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	batches := [][]session.NoteResult{
		{{Note: "Sa", SungAt: time.Now(), Accuracy: 80, Hit: true}},
		{{Note: "Sa", SungAt: time.Now(), Accuracy: 40, Hit: false}},
		{{Note: "Pa", SungAt: time.Now(), Accuracy: 100, Hit: true}},
	}
	for _, b := range batches {
		if err := s.AppendResults(ctx, b); err != nil {
			t.Fatalf("AppendResults: %v", err)
		}
	}

	sums, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("got %d summaries, want 2", len(sums))
	}
	for _, n := range sums {
		switch n.Note {
		case "Sa":
			if n.Attempts != 2 || n.Hits != 1 || n.AvgAccuracy != 60 {
				t.Errorf("Sa summary %+v", n)
			}
		case "Pa":
			if n.Attempts != 1 || n.Hits != 1 {
				t.Errorf("Pa summary %+v", n)
			}
		default:
			t.Errorf("unexpected note %q", n.Note)
		}
	}
}
