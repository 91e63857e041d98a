package speaking

import (
	"log/slog"
	"strings"
)

// recordingSession owns the capture and transcript stream of one answer.
type recordingSession struct {
	id       uint64
	key      questionKey
	capture  Capture
	stream   TranscriptStream
	grace    Stopper
	final    string
	interim  string
	stopping bool
}

func (r *recordingSession) add(res TranscriptResult) {
	text := strings.TrimSpace(res.Text)
	if !res.Final {
		r.interim = text
		return
	}
	r.interim = ""
	if text == "" {
		return
	}
	if r.final != "" {
		r.final += " "
	}
	r.final += text
}

// live is the finalized text followed by the current hypothesis.
func (r *recordingSession) live() string {
	switch {
	case r.final == "":
		return r.interim
	case r.interim == "":
		return r.final
	default:
		return r.final + " " + r.interim
	}
}

// answer prefers the finalized transcript, then the last hypothesis.
func (r *recordingSession) answer(fallback string) string {
	if r.final != "" {
		return r.final
	}
	if r.interim != "" {
		return r.interim
	}
	return fallback
}

// release stops the device and halts transcription. Safe to call twice.
func (r *recordingSession) release(log *slog.Logger) {
	if r.capture != nil {
		if err := r.capture.Stop(); err != nil {
			log.Warn("release capture", "recording", r.id, "error", err)
		}
		r.capture = nil
	}
	if r.stream != nil {
		if err := r.stream.Stop(); err != nil {
			log.Warn("stop transcription", "recording", r.id, "error", err)
		}
		r.stream = nil
	}
}

func (r *recordingSession) stopGrace() {
	if r.grace != nil {
		r.grace.Stop()
		r.grace = nil
	}
}
