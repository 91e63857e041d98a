package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"ielts-speaking/internal/speaking"
)

func TestArchive_SaveAndLoad(t *testing.T) {
	a := NewArchive(filepath.Join(t.TempDir(), "results"))

	result := &TestResult{
		Conversation: []speaking.Turn{{Question: "Where are you from?", Answer: "Hanoi."}},
		Report:       &speaking.Report{OverallScore: 6.5, Summary: "Good."},
	}
	if err := a.SaveResult(result); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if result.TestID == "" || result.Timestamp == "" {
		t.Fatalf("id/timestamp not assigned: %+v", result)
	}

	got, err := a.LoadResult(result.TestID)
	if err != nil {
		t.Fatalf("LoadResult: %v", err)
	}
	if got.Report == nil || got.Report.OverallScore != 6.5 || len(got.Conversation) != 1 {
		t.Errorf("loaded %+v", got)
	}
}

func TestArchive_LoadMissing(t *testing.T) {
	a := NewArchive(t.TempDir())
	for _, id := range []string{uuid.NewString(), "../../etc/passwd"} {
		if _, err := a.LoadResult(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadResult(%q) err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestArchive_List(t *testing.T) {
	dir := t.TempDir()
	a := NewArchive(dir)

	empty, err := NewArchive(filepath.Join(dir, "missing")).ListResults()
	if err != nil || len(empty) != 0 {
		t.Fatalf("missing dir: %v, %v", empty, err)
	}

	older := &TestResult{Timestamp: "2026-01-01T10:00:00Z", Report: &speaking.Report{OverallScore: 5}}
	newer := &TestResult{Timestamp: "2026-02-01T10:00:00Z"}
	for _, r := range []*TestResult{older, newer} {
		if err := a.SaveResult(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	list, err := a.ListResults()
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d results, want 2", len(list))
	}
	if list[0].TestID != newer.TestID || list[1].OverallScore != 5 {
		t.Errorf("list = %+v", list)
	}
}

func TestNewResult_DropsUnanswered(t *testing.T) {
	s := speaking.Session{
		ID: uuid.NewString(),
		History: []speaking.Turn{
			{Question: "q1", Answer: "a1"},
			{Question: "q2"},
		},
		Evaluation: &speaking.Evaluation{Error: "boom"},
	}
	r := NewResult(s)
	if r.TestID != s.ID || len(r.Conversation) != 1 || r.Error != "boom" {
		t.Errorf("NewResult = %+v", r)
	}
}
