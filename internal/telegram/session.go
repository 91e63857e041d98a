package telegram

import (
	"context"
	"sync"
	"time"

	"ielts-speaking/internal/speaking"
	"ielts-speaking/internal/textio"
)

// chatSession is one chat's speaking test. The controller goroutine renders
// its updates into outbox; deliver sends them in order.
type chatSession struct {
	chatID    int64
	userID    int64
	candidate string

	ctrl     *speaking.Controller
	keyboard *textio.Keyboard
	line     *textio.Line
	ctx      context.Context
	cancel   context.CancelFunc
	outbox   chan outMsg

	mu           sync.Mutex
	lastActivity time.Time
	active       bool
}

type outMsg struct {
	text string
	sent chan struct{}
}

func (s *chatSession) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *chatSession) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// post queues text. With wait it returns only after the message went out.
func (s *chatSession) post(text string, wait bool) error {
	m := outMsg{text: text}
	if wait {
		m.sent = make(chan struct{})
	}
	select {
	case s.outbox <- m:
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
	if !wait {
		return nil
	}
	select {
	case <-m.sent:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *chatSession) deliver(send func(chatID int64, text string)) {
	for {
		select {
		case m := <-s.outbox:
			send(s.chatID, m.text)
			if m.sent != nil {
				close(m.sent)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// setActive flips the "test in progress" flag and reports whether it
// changed.
func (s *chatSession) setActive(v bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == v {
		return false
	}
	s.active = v
	return true
}

func (s *chatSession) running() bool {
	return s.ctrl.Snapshot().State == speaking.StateRunning
}

// close stops the controller and waits for it to release its input.
func (s *chatSession) close() {
	s.cancel()
	<-s.ctrl.Done()
}
