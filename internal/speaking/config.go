package speaking

import (
	"fmt"
	"time"

	"ielts-speaking/internal/config"
)

// User-facing messages.
const (
	MicrophoneAlert = "This test requires microphone access. Please allow access and try again."
	FetchAlert      = "Error: Could not load data for the test. Please ensure the backend server is running."
	EvaluationError = "Sorry, an error occurred while generating your report."
	NoAnswersError  = "No answers were recorded, so there is nothing to evaluate."
)

// Config holds the timings (in seconds) and texts used by a Controller.
type Config struct {
	Part1Answer      int
	Part2Preparation int
	Part2Answer      int
	Part3Answer      int
	TranscriptGrace  time.Duration
	FallbackAnswer   string
	Parts            map[Part]Status
}

// DefaultConfig returns the standard test timings.
func DefaultConfig() Config {
	return NewConfig(config.Default())
}

// NewConfig maps a loaded test definition onto controller settings.
func NewConfig(cfg *config.Config) Config {
	c := Config{
		Part1Answer:      cfg.Test.Part1AnswerSeconds,
		Part2Preparation: cfg.Test.Part2PreparationSeconds,
		Part2Answer:      cfg.Test.Part2AnswerSeconds,
		Part3Answer:      cfg.Test.Part3AnswerSeconds,
		TranscriptGrace:  cfg.GetTranscriptGrace(),
		FallbackAnswer:   cfg.Test.FallbackAnswer,
		Parts:            make(map[Part]Status, len(cfg.Parts)),
	}
	for _, p := range cfg.Parts {
		c.Parts[Part(p.ID)] = Status{Title: p.Title, Instruction: p.Instruction}
	}
	return c
}

func (c Config) answerSeconds(p Part) int {
	switch p {
	case Part1:
		return c.Part1Answer
	case Part2:
		return c.Part2Answer
	default:
		return c.Part3Answer
	}
}

func (c Config) partStatus(p Part) Status {
	if s, ok := c.Parts[p]; ok {
		return s
	}
	return Status{Title: fmt.Sprintf("Part %d", p)}
}

// humanSeconds renders a duration the way the instructions read it.
func humanSeconds(seconds int) string {
	switch {
	case seconds == 60:
		return "1 minute"
	case seconds > 60 && seconds%60 == 0:
		return fmt.Sprintf("%d minutes", seconds/60)
	default:
		return fmt.Sprintf("%d seconds", seconds)
	}
}
