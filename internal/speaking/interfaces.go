package speaking

import (
	"context"
	"time"
)

// QuestionProvider supplies the question set for each part.
type QuestionProvider interface {
	Part1(ctx context.Context) ([]string, error)
	Part2(ctx context.Context) (*CueCard, error)
	Part3(ctx context.Context, part2Topic string) ([]string, error)
}

// Evaluator scores a finished conversation.
type Evaluator interface {
	Evaluate(ctx context.Context, conversation []Turn) (*Report, error)
}

// Speaker reads text to the candidate. Speak returns once the utterance has
// finished.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Recorder opens the capture device for one answer.
type Recorder interface {
	Start(ctx context.Context) (Capture, error)
}

// Capture is a live capture. Stop releases the device.
type Capture interface {
	Stop() error
}

// Transcriber starts a speech-to-text stream for one answer.
type Transcriber interface {
	Start(ctx context.Context) (TranscriptStream, error)
}

// TranscriptStream delivers results until it ends. After Stop the stream may
// still flush pending results, then closes Results.
type TranscriptStream interface {
	Results() <-chan TranscriptResult
	Stop() error
}

// TranscriptResult is an interim hypothesis or a finalized segment.
type TranscriptResult struct {
	Text  string
	Final bool
}

// Clock abstracts time for the countdown timer and the transcript grace
// period.
type Clock interface {
	NewTicker(d time.Duration) Ticker
	AfterFunc(d time.Duration, f func()) Stopper
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type Stopper interface {
	Stop() bool
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

func (SystemClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }
