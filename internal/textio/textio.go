// Package textio adapts the speaking controller to text drivers: questions
// are delivered as messages and answers are typed instead of spoken.
package textio

import (
	"context"
	"errors"
	"sync"

	"ielts-speaking/internal/speaking"
)

// ErrClosed is returned by Line.Start after Close.
var ErrClosed = errors.New("textio: input closed")

// SpeakerFunc adapts a function to speaking.Speaker.
type SpeakerFunc func(ctx context.Context, text string) error

func (f SpeakerFunc) Speak(ctx context.Context, text string) error { return f(ctx, text) }

// Line is a speaking.Recorder for typed answers. There is no device behind
// it; a capture only marks that an answer is open.
type Line struct {
	mu     sync.Mutex
	open   int
	closed bool
}

var _ speaking.Recorder = (*Line)(nil)

func (l *Line) Start(context.Context) (speaking.Capture, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	l.open++
	return &lineCapture{l: l}, nil
}

// Open reports how many captures have not been stopped.
func (l *Line) Open() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

// Close makes every later Start fail, the way a revoked microphone would.
func (l *Line) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

type lineCapture struct {
	l    *Line
	once sync.Once
}

func (c *lineCapture) Stop() error {
	c.once.Do(func() {
		c.l.mu.Lock()
		c.l.open--
		c.l.mu.Unlock()
	})
	return nil
}

// Keyboard is a speaking.Transcriber fed by typed text. Only the most
// recently started stream receives input.
type Keyboard struct {
	mu     sync.Mutex
	active *keyStream
}

var _ speaking.Transcriber = (*Keyboard)(nil)

const streamBuffer = 32

func (k *Keyboard) Start(context.Context) (speaking.TranscriptStream, error) {
	s := &keyStream{k: k, ch: make(chan speaking.TranscriptResult, streamBuffer)}
	k.mu.Lock()
	if k.active != nil {
		k.active.close()
	}
	k.active = s
	k.mu.Unlock()
	return s, nil
}

// Type delivers a finalized segment of the current answer. It returns false
// when no answer is being taken.
func (k *Keyboard) Type(text string) bool {
	return k.send(speaking.TranscriptResult{Text: text, Final: true})
}

// Draft delivers an interim hypothesis that a later Type replaces.
func (k *Keyboard) Draft(text string) bool {
	return k.send(speaking.TranscriptResult{Text: text})
}

// Listening reports whether an answer stream is open.
func (k *Keyboard) Listening() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active != nil
}

func (k *Keyboard) send(r speaking.TranscriptResult) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.active == nil {
		return false
	}
	select {
	case k.active.ch <- r:
		return true
	default:
		return false
	}
}

type keyStream struct {
	k    *Keyboard
	ch   chan speaking.TranscriptResult
	once sync.Once
}

func (s *keyStream) Results() <-chan speaking.TranscriptResult { return s.ch }

func (s *keyStream) Stop() error {
	s.k.mu.Lock()
	if s.k.active == s {
		s.k.active = nil
	}
	s.close()
	s.k.mu.Unlock()
	return nil
}

// close must be called with k.mu held.
func (s *keyStream) close() {
	s.once.Do(func() { close(s.ch) })
}
