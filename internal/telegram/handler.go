// Package telegram runs IELTS speaking tests in Telegram chats. Each chat
// gets its own test controller; questions arrive as messages and answers
// are typed.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ielts-speaking/internal/metrics"
	"ielts-speaking/internal/speaking"
	"ielts-speaking/internal/storage"
	"ielts-speaking/internal/textio"
)

// Deps configures a Handler. Archive, Metrics and Clock may be nil.
type Deps struct {
	Questions   speaking.QuestionProvider
	Evaluator   speaking.Evaluator
	Test        speaking.Config
	Archive     *storage.Archive
	Metrics     *metrics.Metrics
	Clock       speaking.Clock
	RateLimit   int
	RateWindow  time.Duration
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

type Handler struct {
	bot  Messenger
	deps Deps
	log  *slog.Logger

	partTitles map[string]bool
	partRules  map[speaking.Part][2]int

	sessions      map[int64]*chatSession
	results       map[int64]*storage.TestResult
	sessionsMutex sync.Mutex
	rateLimiter   *RateLimiter

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// PartRange sets the question counts shown by /help.
type PartRange struct {
	Part     speaking.Part
	Min, Max int
}

func NewHandler(bot Messenger, deps Deps, ranges ...PartRange) *Handler {
	if deps.RateLimit <= 0 {
		deps.RateLimit = 20
	}
	if deps.RateWindow <= 0 {
		deps.RateWindow = time.Minute
	}
	if deps.IdleTimeout <= 0 {
		deps.IdleTimeout = 24 * time.Hour
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	ctx, stop := context.WithCancel(context.Background())
	h := &Handler{
		bot:         bot,
		deps:        deps,
		log:         deps.Logger.With("component", "telegram"),
		partTitles:  make(map[string]bool),
		partRules:   map[speaking.Part][2]int{speaking.Part1: {3, 4}, speaking.Part3: {4, 5}},
		sessions:    make(map[int64]*chatSession),
		results:     make(map[int64]*storage.TestResult),
		rateLimiter: NewRateLimiter(deps.RateLimit, deps.RateWindow),
		ctx:         ctx,
		stop:        stop,
	}
	for _, st := range deps.Test.Parts {
		h.partTitles[st.Title] = true
	}
	for _, r := range ranges {
		h.partRules[r.Part] = [2]int{r.Min, r.Max}
	}
	return h
}

// Run removes idle sessions every hour until ctx is cancelled, then closes
// every session.
func (h *Handler) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	defer h.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.cleanupInactiveSessions(time.Now().Add(-h.deps.IdleTimeout))
		}
	}
}

// Close ends every session.
func (h *Handler) Close() {
	h.sessionsMutex.Lock()
	sessions := h.sessions
	h.sessions = make(map[int64]*chatSession)
	h.sessionsMutex.Unlock()

	for _, s := range sessions {
		h.closeSession(s)
	}
	h.stop()
	h.wg.Wait()
}

func (h *Handler) cleanupInactiveSessions(cutoff time.Time) {
	h.sessionsMutex.Lock()
	var stale []*chatSession
	for chatID, s := range h.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, s)
			delete(h.sessions, chatID)
		}
	}
	h.sessionsMutex.Unlock()

	for _, s := range stale {
		h.log.Info("closing idle session", "chat_id", s.chatID)
		h.closeSession(s)
	}
}

func (h *Handler) HandleUpdate(update Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}
	user := update.Message.From
	chatID := update.Message.Chat.ID
	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}

	if !h.rateLimiter.IsAllowed(user.ID) {
		h.send(chatID, "⏳ Too many messages. Please wait a minute.")
		return
	}

	if strings.HasPrefix(text, "/") {
		h.handleCommand(chatID, user, text)
		return
	}
	h.handleUserInput(chatID, text)
}

func (h *Handler) handleCommand(chatID int64, user *User, text string) {
	command, _, _ := strings.Cut(strings.Fields(text)[0], "@")
	switch command {
	case "/start":
		h.handleStartCommand(chatID, user)
	case "/help":
		h.handleHelpCommand(chatID)
	case "/status":
		h.handleStatusCommand(chatID)
	case "/stop":
		h.handleStopCommand(chatID)
	case "/retry":
		h.handleRetryCommand(chatID)
	case "/finish":
		h.handleFinishCommand(chatID)
	case "/restart":
		h.handleRestartCommand(chatID)
	case "/report":
		h.handleReportCommand(chatID)
	default:
		h.send(chatID, "Unknown command. Use /help to see the list of commands.")
	}
}

func (h *Handler) handleStartCommand(chatID int64, user *User) {
	h.sessionsMutex.Lock()
	old := h.sessions[chatID]
	if old != nil && old.running() {
		h.sessionsMutex.Unlock()
		h.send(chatID, "You already have a test in progress. Use /status to check it or /restart to discard it.")
		return
	}
	s, err := h.newSession(chatID, user)
	if err != nil {
		h.sessionsMutex.Unlock()
		h.log.Error("create session", "chat_id", chatID, "error", err)
		h.send(chatID, "❌ Could not start the test. Please try again later.")
		return
	}
	h.sessions[chatID] = s
	h.sessionsMutex.Unlock()

	if old != nil {
		h.closeSession(old)
	}

	if s.setActive(true) && h.deps.Metrics != nil {
		h.deps.Metrics.IncrementTestsStarted()
	}
	_ = s.post(`🎯 *Welcome to your IELTS Speaking practice test!*

The test has three parts and takes about 11 to 14 minutes.

*Rules:*
• Type your answer after each question
• You can answer in several messages
• Send /stop when you finish an answer
• Use /finish to end early and get your report

Let's begin! 🚀`, false)
	s.ctrl.Start()
}

func (h *Handler) handleHelpCommand(chatID int64) {
	p1, p3 := h.partRules[speaking.Part1], h.partRules[speaking.Part3]
	h.send(chatID, fmt.Sprintf(helpText,
		p1[0], p1[1],
		formatDuration(h.deps.Test.Part2Preparation), formatDuration(h.deps.Test.Part2Answer),
		p3[0], p3[1],
	))
}

func (h *Handler) handleStatusCommand(chatID int64) {
	s := h.session(chatID)
	if s == nil {
		h.send(chatID, "No test in progress. Use /start to begin.")
		return
	}
	h.send(chatID, formatStatus(s.ctrl.Snapshot()))
}

func (h *Handler) handleStopCommand(chatID int64) {
	s := h.session(chatID)
	if s == nil || !s.ctrl.Snapshot().Recording {
		h.send(chatID, "No answer is being recorded right now.")
		return
	}
	s.touch()
	s.ctrl.StopRecording()
}

func (h *Handler) handleRetryCommand(chatID int64) {
	s := h.session(chatID)
	if s == nil || !s.running() {
		h.send(chatID, "There is nothing to retry. Use /start to begin a test.")
		return
	}
	s.touch()
	h.send(chatID, "🔁 Trying again...")
	s.ctrl.Retry()
}

func (h *Handler) handleFinishCommand(chatID int64) {
	s := h.session(chatID)
	if s == nil || !s.running() {
		h.send(chatID, "No test in progress. Use /start to begin.")
		return
	}
	s.touch()
	s.ctrl.Finish()
}

func (h *Handler) handleRestartCommand(chatID int64) {
	h.sessionsMutex.Lock()
	s := h.sessions[chatID]
	delete(h.sessions, chatID)
	h.sessionsMutex.Unlock()

	if s != nil {
		h.closeSession(s)
	}
	h.send(chatID, "🔄 Test discarded. Use /start to begin a new one.")
}

func (h *Handler) handleReportCommand(chatID int64) {
	h.sessionsMutex.Lock()
	result := h.results[chatID]
	h.sessionsMutex.Unlock()

	switch {
	case result == nil:
		h.send(chatID, "No report yet. Complete a test with /start first.")
	case result.Report != nil:
		h.send(chatID, formatReport(result.Report))
	default:
		h.send(chatID, "❌ "+result.Error)
	}
}

func validateUserInput(text string) error {
	if len(text) > 4000 {
		return errors.New("message is too long (4000 characters at most)")
	}
	if len(text) > 10 && strings.Count(text, text[:1]) > len(text)*8/10 {
		return errors.New("message contains too many repeated characters")
	}
	return nil
}

func (h *Handler) handleUserInput(chatID int64, text string) {
	s := h.session(chatID)
	if s == nil || !s.keyboard.Listening() {
		h.send(chatID, "Please wait for the next question before answering. Use /start to begin a test or /help for help.")
		return
	}
	if err := validateUserInput(text); err != nil {
		h.send(chatID, "❌ "+err.Error())
		return
	}
	s.touch()
	if !s.keyboard.Type(text) {
		h.send(chatID, "⏳ Please send /stop to finish this answer.")
	}
}

func (h *Handler) session(chatID int64) *chatSession {
	h.sessionsMutex.Lock()
	defer h.sessionsMutex.Unlock()
	return h.sessions[chatID]
}

// newSession must be called with sessionsMutex held.
func (h *Handler) newSession(chatID int64, user *User) (*chatSession, error) {
	ctx, cancel := context.WithCancel(h.ctx)
	s := &chatSession{
		chatID:       chatID,
		userID:       user.ID,
		candidate:    user.Username,
		keyboard:     &textio.Keyboard{},
		line:         &textio.Line{},
		ctx:          ctx,
		cancel:       cancel,
		outbox:       make(chan outMsg, 64),
		lastActivity: time.Now(),
	}

	ctrl, err := speaking.New(speaking.Deps{
		Questions:   h.deps.Questions,
		Evaluator:   h.deps.Evaluator,
		Speaker:     textio.SpeakerFunc(func(_ context.Context, text string) error { return h.speak(s, text) }),
		Recorder:    s.line,
		Transcriber: s.keyboard,
		Notifier:    speaking.NotifierFunc(func(u speaking.Update) { h.onUpdate(s, u) }),
		Clock:       h.deps.Clock,
		Logger:      h.deps.Logger.With("chat_id", chatID),
	}, h.deps.Test)
	if err != nil {
		cancel()
		return nil, err
	}
	s.ctrl = ctrl

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		_ = ctrl.Run(ctx)
	}()
	go func() {
		defer h.wg.Done()
		s.deliver(h.send)
	}()
	return s, nil
}

func (h *Handler) closeSession(s *chatSession) {
	s.close()
	if s.setActive(false) && h.deps.Metrics != nil {
		h.deps.Metrics.TestAbandoned()
	}
}

// speak delivers a question and returns once the candidate can see it, so
// the answer timer starts after the message arrives.
func (h *Handler) speak(s *chatSession, text string) error {
	snap := s.ctrl.Snapshot()
	if h.deps.Metrics != nil {
		h.deps.Metrics.IncrementQuestionsAsked(int(snap.Part))
	}
	return s.post(formatQuestion(snap.Part, snap.QuestionIndex, text), true)
}

func (h *Handler) onUpdate(s *chatSession, u speaking.Update) {
	var msg string
	switch u.Kind {
	case speaking.UpdateStatus:
		if h.partTitles[u.Status.Title] {
			msg = fmt.Sprintf("📋 *%s*\n\n%s", u.Status.Title, u.Status.Instruction)
		}
	case speaking.UpdateCueCard:
		msg = formatCueCard(u.CueCard, h.deps.Test.Part2Preparation)
	case speaking.UpdateRecording:
		msg = formatRecording(u.Timer.Duration)
	case speaking.UpdateAnswer:
		msg = "✅ Answer saved."
		if u.Text == h.deps.Test.FallbackAnswer {
			msg = "⚠️ No answer was received for this question."
		}
	case speaking.UpdateAlert:
		msg = "⚠️ " + u.Text
		if u.Text == speaking.FetchAlert {
			msg = "⚠️ " + fetchFailedText
		}
	case speaking.UpdateFinished:
		if s.setActive(false) && h.deps.Metrics != nil {
			h.deps.Metrics.IncrementTestsCompleted()
		}
		msg = "🎉 Test complete! Generating your evaluation..."
	case speaking.UpdateEvaluation:
		h.recordResult(s)
		if u.Evaluation.Report != nil {
			msg = formatReport(u.Evaluation.Report)
		} else {
			msg = "❌ " + u.Evaluation.Error
		}
	case speaking.UpdateReset:
		if s.setActive(false) && h.deps.Metrics != nil {
			h.deps.Metrics.TestAbandoned()
		}
		msg = "🔄 The test was stopped. Use /start to try again."
	}
	if msg != "" {
		_ = s.post(msg, false)
	}
}

// recordResult keeps the finished test for /report and archives it.
func (h *Handler) recordResult(s *chatSession) {
	result := storage.NewResult(s.ctrl.Snapshot().Session)
	result.Candidate = s.candidate

	if h.deps.Archive != nil {
		if err := h.deps.Archive.SaveResult(result); err != nil {
			h.log.Error("save result", "chat_id", s.chatID, "test_id", result.TestID, "error", err)
		}
	}

	h.sessionsMutex.Lock()
	h.results[s.chatID] = result
	h.sessionsMutex.Unlock()
}

// send delivers text, splitting it when it is too long for one message.
func (h *Handler) send(chatID int64, text string) {
	for _, chunk := range splitMessage(text, maxChunkSize) {
		if err := h.bot.SendMessage(chatID, chunk); err != nil {
			h.log.Error("send message", "chat_id", chatID, "api_error", IsAPIError(err), "error", err)
		}
	}
}
