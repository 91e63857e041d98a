package speaking

import (
	"log/slog"
	"testing"
)

func TestRecordingSession_Transcript(t *testing.T) {
	r := &recordingSession{}

	r.add(TranscriptResult{Text: "I grew"})
	if got := r.live(); got != "I grew" {
		t.Errorf("live = %q", got)
	}
	if got := r.answer("fallback"); got != "I grew" {
		t.Errorf("answer with interim only = %q", got)
	}

	r.add(TranscriptResult{Text: "I grew up in Hanoi", Final: true})
	r.add(TranscriptResult{Text: "near the"})
	if got := r.live(); got != "I grew up in Hanoi near the" {
		t.Errorf("live = %q", got)
	}
	if got := r.answer("fallback"); got != "I grew up in Hanoi" {
		t.Errorf("answer = %q, want final text only", got)
	}

	r.add(TranscriptResult{Text: " near the river ", Final: true})
	if got := r.answer("fallback"); got != "I grew up in Hanoi near the river" {
		t.Errorf("answer = %q", got)
	}
	if r.interim != "" {
		t.Errorf("interim = %q, want cleared by final result", r.interim)
	}
}

func TestRecordingSession_AnswerFallback(t *testing.T) {
	r := &recordingSession{}
	if got := r.answer("Could not transcribe audio."); got != "Could not transcribe audio." {
		t.Errorf("answer = %q", got)
	}
}

func TestRecordingSession_ReleaseIsIdempotent(t *testing.T) {
	rec := &fakeRecorder{}
	capture, _ := rec.Start(t.Context())
	stream := &fakeStream{ch: make(chan TranscriptResult)}
	r := &recordingSession{capture: capture, stream: stream}

	r.release(slog.Default())
	r.release(slog.Default())

	if got := rec.stops.Load(); got != 1 {
		t.Errorf("capture stopped %d times, want 1", got)
	}
	if got := stream.stops.Load(); got != 1 {
		t.Errorf("stream stopped %d times, want 1", got)
	}
	if _, open := <-stream.ch; open {
		t.Error("stream channel should be closed")
	}
}
