package telegram

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"ielts-speaking/internal/speaking"
)

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("short", 10); len(got) != 1 || got[0] != "short" {
		t.Errorf("short message = %q", got)
	}

	lines := "line one\nline two\nline three"
	got := splitMessage(lines, 12)
	want := []string{"line one", "line two", "line three"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("split by lines = %q, want %q", got, want)
	}

	cyrillic := strings.Repeat("щ", 10) // two bytes each
	for _, chunk := range splitMessage(cyrillic, 5) {
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %q is not valid UTF-8", chunk)
		}
	}
}

func TestFormatCueCard(t *testing.T) {
	card := &speaking.CueCard{Topic: "Describe a festival.", CuePoints: []string{"what it is", "when it happens"}}
	got := formatCueCard(card, 60)
	for _, w := range []string{"*Describe a festival.*", "• what it is\n• when it happens", "1 minute to prepare"} {
		if !strings.Contains(got, w) {
			t.Errorf("cue card missing %q:\n%s", w, got)
		}
	}
	if strings.Contains(formatCueCard(card, 0), "prepare") {
		t.Error("zero preparation time should not be mentioned")
	}
}

func TestFormatStatus(t *testing.T) {
	if got := formatStatus(speaking.Snapshot{}); !strings.Contains(got, "No test in progress") {
		t.Errorf("idle status = %q", got)
	}
	finished := speaking.Snapshot{Session: speaking.Session{State: speaking.StateFinished, Evaluation: &speaking.Evaluation{}}}
	if got := formatStatus(finished); !strings.Contains(got, "/report") {
		t.Errorf("finished status = %q", got)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Now()
	rl.now = func() time.Time { return now }

	if !rl.IsAllowed(1) || !rl.IsAllowed(1) {
		t.Fatal("first two requests rejected")
	}
	if rl.IsAllowed(1) {
		t.Fatal("third request allowed")
	}
	if !rl.IsAllowed(2) {
		t.Fatal("other user rejected")
	}
	now = now.Add(time.Minute)
	if !rl.IsAllowed(1) {
		t.Fatal("request after the window rejected")
	}
}
