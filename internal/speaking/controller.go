package speaking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ErrAlreadyRunning is returned by Run when the event loop is already active.
var ErrAlreadyRunning = errors.New("speaking: controller already running")

var (
	errNoQuestions = errors.New("question set is empty")
	errNoCueCard   = errors.New("cue card has no topic")
)

// Deps are the collaborators a Controller drives.
type Deps struct {
	Questions   QuestionProvider
	Evaluator   Evaluator
	Speaker     Speaker
	Recorder    Recorder
	Transcriber Transcriber

	// Optional.
	Notifier Notifier
	Clock    Clock
	Logger   *slog.Logger
}

type phase int

const (
	phaseIdle phase = iota
	phasePreparing
	phaseSpeaking
	phaseOpening
	phaseRecording
	phaseProcessing
)

// questionKey identifies a question within the test. The per-question
// protocol runs at most once per key.
type questionKey struct {
	part  Part
	index int
}

type pendingAnswer struct {
	key     questionKey
	seconds int
}

// Controller runs one speaking test at a time. All state is owned by the Run
// goroutine; the exported methods only enqueue commands.
type Controller struct {
	deps   Deps
	cfg    Config
	log    *slog.Logger
	events chan any
	done   chan struct{}

	mu        sync.RWMutex
	ctx       context.Context
	running   bool
	session   Session
	status    Status
	phase     phase
	gen       uint64
	nextID    uint64
	asked     map[questionKey]bool
	fetching  bool
	current   pendingAnswer
	finishReq bool

	timer      *Timer
	timerID    uint64
	timerState *TimerState
	rec        *recordingSession

	pending []Update
}

// New builds a Controller in the Start state.
func New(deps Deps, cfg Config) (*Controller, error) {
	switch {
	case deps.Questions == nil:
		return nil, fmt.Errorf("speaking: question provider is required")
	case deps.Evaluator == nil:
		return nil, fmt.Errorf("speaking: evaluator is required")
	case deps.Speaker == nil:
		return nil, fmt.Errorf("speaking: speaker is required")
	case deps.Recorder == nil:
		return nil, fmt.Errorf("speaking: recorder is required")
	case deps.Transcriber == nil:
		return nil, fmt.Errorf("speaking: transcriber is required")
	}
	if deps.Notifier == nil {
		deps.Notifier = discardNotifier{}
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.FallbackAnswer == "" {
		cfg.FallbackAnswer = DefaultConfig().FallbackAnswer
	}

	return &Controller{
		deps:    deps,
		cfg:     cfg,
		log:     deps.Logger.With("component", "speaking"),
		events:  make(chan any, 64),
		done:    make(chan struct{}),
		session: Session{State: StateStart},
	}, nil
}

// Commands.
type (
	startCmd  struct{}
	stopCmd   struct{}
	retryCmd  struct{}
	finishCmd struct{}
)

// Completions of asynchronous work. Each carries the identity of whatever
// started it so that late arrivals can be recognised and dropped.
type (
	fetchDone struct {
		gen       uint64
		part      Part
		questions []string
		card      *CueCard
		err       error
	}
	speechDone struct {
		gen uint64
		key questionKey
		err error
	}
	recordingOpened struct {
		gen     uint64
		key     questionKey
		capture Capture
		stream  TranscriptStream
		err     error
	}
	timerTicked struct {
		id   uint64
		left int
	}
	timerExpired struct {
		id uint64
	}
	transcriptReceived struct {
		id     uint64
		result TranscriptResult
	}
	streamClosed struct {
		id uint64
	}
	graceExpired struct {
		id uint64
	}
	evaluationDone struct {
		gen    uint64
		report *Report
		err    error
	}
)

// Start begins a new test. Ignored unless the controller is in Start.
func (c *Controller) Start() { c.post(startCmd{}) }

// StopRecording ends the current answer before its timer runs out.
func (c *Controller) StopRecording() { c.post(stopCmd{}) }

// Retry re-requests the current part's questions after a failed fetch.
func (c *Controller) Retry() { c.post(retryCmd{}) }

// Finish ends the test early and submits the answers given so far.
func (c *Controller) Finish() { c.post(finishCmd{}) }

// Done is closed when Run has returned.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) post(ev any) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Run processes events until ctx is cancelled. Device and transcript
// resources still held at that point are released before it returns.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.ctx = ctx
	c.mu.Unlock()

	defer close(c.done)
	defer c.teardown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Controller) handle(ev any) {
	c.mu.Lock()
	switch e := ev.(type) {
	case startCmd:
		c.onStart()
	case stopCmd:
		c.onStop()
	case retryCmd:
		c.onRetry()
	case finishCmd:
		c.onFinish()
	case fetchDone:
		c.onFetchDone(e)
	case speechDone:
		c.onSpeechDone(e)
	case recordingOpened:
		c.onRecordingOpened(e)
	case timerTicked:
		c.onTimerTicked(e)
	case timerExpired:
		c.onTimerExpired(e)
	case transcriptReceived:
		c.onTranscript(e)
	case streamClosed:
		c.onStreamClosed(e)
	case graceExpired:
		c.onGraceExpired(e)
	case evaluationDone:
		c.onEvaluationDone(e)
	default:
		c.log.Error("unknown event", "type", fmt.Sprintf("%T", ev))
	}
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, u := range pending {
		c.deps.Notifier.Notify(u)
	}
}

func (c *Controller) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelTimer()
	c.releaseRecording()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		Session:    c.session.clone(),
		Status:     c.status,
		Preparing:  c.phase == phasePreparing,
		Recording:  c.phase == phaseRecording,
		Processing: c.phase == phaseProcessing,
	}
	if c.timerState != nil {
		ts := *c.timerState
		snap.Timer = &ts
	}
	if c.rec != nil {
		snap.Transcript = c.rec.live()
	}
	return snap
}

func (c *Controller) onStart() {
	if c.session.State != StateStart {
		c.log.Debug("start ignored", "state", c.session.State)
		return
	}
	c.gen++
	c.session = Session{
		ID:        uuid.NewString(),
		State:     StateRunning,
		Part:      Part1,
		StartedAt: time.Now(),
	}
	c.asked = make(map[questionKey]bool)
	c.finishReq = false
	c.log.Info("test started", "session", c.session.ID)
	c.enterPart(Part1)
}

func (c *Controller) enterPart(p Part) {
	c.session.Part = p
	c.session.QuestionIndex = 0
	c.phase = phaseIdle
	c.setStatus(c.cfg.partStatus(p))
	c.fetch(p)
}

func (c *Controller) fetch(p Part) {
	c.fetching = true
	gen, ctx, q := c.gen, c.ctx, c.deps.Questions
	var topic string
	if p == Part3 && c.session.Data.Part2 != nil {
		topic = c.session.Data.Part2.Topic
	}

	go func() {
		ev := fetchDone{gen: gen, part: p}
		switch p {
		case Part1:
			ev.questions, ev.err = q.Part1(ctx)
		case Part2:
			ev.card, ev.err = q.Part2(ctx)
		case Part3:
			ev.questions, ev.err = q.Part3(ctx, topic)
		}
		c.post(ev)
	}()
}

func (c *Controller) onFetchDone(e fetchDone) {
	if e.gen != c.gen || c.session.State != StateRunning || e.part != c.session.Part {
		return
	}
	c.fetching = false

	err := e.err
	if err == nil {
		switch {
		case e.part == Part2 && (e.card == nil || strings.TrimSpace(e.card.Topic) == ""):
			err = errNoCueCard
		case e.part != Part2 && len(e.questions) == 0:
			err = errNoQuestions
		}
	}
	if err != nil {
		c.log.Error("fetch question set", "session", c.session.ID, "part", e.part, "error", err)
		c.alert(FetchAlert)
		return
	}

	switch e.part {
	case Part1:
		c.session.Data.Part1 = e.questions
	case Part2:
		c.session.Data.Part2 = e.card
	case Part3:
		c.session.Data.Part3 = e.questions
	}
	c.session.QuestionIndex = 0
	c.maybeAsk()
}

// maybeAsk runs the per-question protocol for the current (part, index) if it
// has not run yet and its data is loaded.
func (c *Controller) maybeAsk() {
	if c.session.State != StateRunning || c.phase != phaseIdle {
		return
	}
	key := questionKey{part: c.session.Part, index: c.session.QuestionIndex}
	if c.asked[key] {
		return
	}

	switch key.part {
	case Part1, Part3:
		questions := c.session.Data.Part1
		if key.part == Part3 {
			questions = c.session.Data.Part3
		}
		if key.index >= len(questions) {
			return
		}
		c.asked[key] = true
		c.askQuestion(key, questions[key.index], c.cfg.answerSeconds(key.part))
	case Part2:
		if c.session.Data.Part2 == nil {
			return
		}
		c.asked[key] = true
		c.startPreparation(key)
	}
}

func (c *Controller) askQuestion(key questionKey, text string, seconds int) {
	c.session.History = append(c.session.History, Turn{Question: text})
	c.current = pendingAnswer{key: key, seconds: seconds}
	c.phase = phaseSpeaking
	c.setStatus(Status{Title: "Listening...", Instruction: "Pay attention to the question."})
	c.emit(Update{Kind: UpdateQuestion, Part: key.part, Index: key.index, Text: text})

	gen, ctx, speaker := c.gen, c.ctx, c.deps.Speaker
	go func() {
		err := speaker.Speak(ctx, text)
		c.post(speechDone{gen: gen, key: key, err: err})
	}()
}

func (c *Controller) startPreparation(key questionKey) {
	card := *c.session.Data.Part2
	c.current = pendingAnswer{key: key, seconds: c.cfg.Part2Answer}
	c.phase = phasePreparing
	c.setStatus(Status{
		Title:       "Prepare your talk",
		Instruction: fmt.Sprintf("You have %s to prepare your notes.", humanSeconds(c.cfg.Part2Preparation)),
	})
	c.emit(Update{Kind: UpdateCueCard, Part: Part2, CueCard: &card})
	c.startTimer(c.cfg.Part2Preparation)
}

func (c *Controller) endPreparation() {
	topic := c.session.Data.Part2.Topic
	c.askQuestion(c.current.key, CueCardPrompt(topic), c.cfg.Part2Answer)
}

// CueCardPrompt turns a cue-card topic into the spoken Part 2 instruction.
func CueCardPrompt(topic string) string {
	topic = strings.TrimSpace(topic)
	first, size := utf8.DecodeRuneInString(topic)
	if size == 0 {
		return "Please"
	}
	// Keep acronyms such as "TV" or "I" as written.
	word, _, _ := strings.Cut(topic, " ")
	if strings.ToUpper(word) != word {
		topic = string(unicode.ToLower(first)) + topic[size:]
	}
	return "Please " + topic
}

func (c *Controller) onSpeechDone(e speechDone) {
	if e.gen != c.gen || c.session.State != StateRunning || c.phase != phaseSpeaking || e.key != c.current.key {
		return
	}
	if e.err != nil {
		c.log.Warn("speak question", "session", c.session.ID, "part", e.key.part, "index", e.key.index, "error", e.err)
	}
	c.openRecording()
}

func (c *Controller) openRecording() {
	c.phase = phaseOpening
	gen, key, ctx := c.gen, c.current.key, c.ctx
	recorder, transcriber := c.deps.Recorder, c.deps.Transcriber

	go func() {
		capture, err := recorder.Start(ctx)
		if err != nil {
			c.post(recordingOpened{gen: gen, key: key, err: fmt.Errorf("open recorder: %w", err)})
			return
		}
		stream, err := transcriber.Start(ctx)
		if err != nil {
			_ = capture.Stop()
			c.post(recordingOpened{gen: gen, key: key, err: fmt.Errorf("start transcription: %w", err)})
			return
		}
		c.post(recordingOpened{gen: gen, key: key, capture: capture, stream: stream})
	}()
}

func (c *Controller) onRecordingOpened(e recordingOpened) {
	stale := e.gen != c.gen || c.session.State != StateRunning || c.phase != phaseOpening || e.key != c.current.key
	if stale {
		if e.err == nil {
			orphan := &recordingSession{capture: e.capture, stream: e.stream}
			orphan.release(c.log)
		}
		return
	}
	if e.err != nil {
		c.abort(e.err)
		return
	}

	c.nextID++
	rec := &recordingSession{id: c.nextID, key: e.key, capture: e.capture, stream: e.stream}
	c.rec = rec
	c.phase = phaseRecording

	seconds := c.current.seconds
	c.setStatus(Status{
		Title:       "Recording...",
		Instruction: fmt.Sprintf("You have %d seconds to answer.", seconds),
	})
	c.emit(Update{Kind: UpdateRecording, Part: e.key.part, Index: e.key.index, Timer: TimerState{Duration: seconds, TimeLeft: seconds}})

	go c.pump(rec.id, rec.stream)
	c.startTimer(seconds)
}

func (c *Controller) pump(id uint64, stream TranscriptStream) {
	for res := range stream.Results() {
		c.post(transcriptReceived{id: id, result: res})
	}
	c.post(streamClosed{id: id})
}

func (c *Controller) onStop() {
	if c.phase != phaseRecording {
		c.log.Debug("stop ignored", "phase", c.phase)
		return
	}
	c.stopRecording()
}

// stopRecording releases the device and halts transcription. The answer is
// finalized once the transcript stream closes or the grace period passes.
func (c *Controller) stopRecording() {
	rec := c.rec
	if rec == nil || rec.stopping {
		return
	}
	rec.stopping = true
	c.cancelTimer()
	c.phase = phaseProcessing
	rec.release(c.log)
	c.setStatus(Status{Title: "Processing...", Instruction: "Transcribing your answer."})

	id := rec.id
	rec.grace = c.deps.Clock.AfterFunc(c.cfg.TranscriptGrace, func() {
		c.post(graceExpired{id: id})
	})
}

func (c *Controller) onTranscript(e transcriptReceived) {
	rec := c.rec
	if rec == nil || rec.id != e.id {
		return
	}
	rec.add(e.result)
	c.emit(Update{Kind: UpdateTranscript, Part: rec.key.part, Index: rec.key.index, Text: rec.live()})
}

func (c *Controller) onStreamClosed(e streamClosed) {
	rec := c.rec
	if rec == nil || rec.id != e.id {
		return
	}
	if !rec.stopping {
		c.log.Info("transcription ended before the answer was stopped", "session", c.session.ID)
		c.stopRecording()
	}
	c.finalize(rec)
}

func (c *Controller) onGraceExpired(e graceExpired) {
	rec := c.rec
	if rec == nil || rec.id != e.id {
		return
	}
	c.log.Warn("transcript stream did not close in time", "session", c.session.ID, "recording", rec.id)
	c.finalize(rec)
}

// finalize stores the answer for the last question and moves the test on.
func (c *Controller) finalize(rec *recordingSession) {
	rec.stopGrace()
	c.rec = nil
	c.phase = phaseIdle

	answer := rec.answer(c.cfg.FallbackAnswer)
	if n := len(c.session.History); n > 0 {
		c.session.History[n-1].Answer = answer
	}
	c.emit(Update{Kind: UpdateAnswer, Part: rec.key.part, Index: rec.key.index, Text: answer})

	if c.finishReq {
		c.finish()
		return
	}
	c.advance()
}

func (c *Controller) advance() {
	s := &c.session
	switch s.Part {
	case Part1:
		if s.QuestionIndex+1 < len(s.Data.Part1) {
			s.QuestionIndex++
			c.maybeAsk()
			return
		}
		c.enterPart(Part2)
	case Part2:
		c.enterPart(Part3)
	case Part3:
		if s.QuestionIndex+1 < len(s.Data.Part3) {
			s.QuestionIndex++
			c.maybeAsk()
			return
		}
		c.finish()
	}
}

func (c *Controller) startTimer(seconds int) {
	c.cancelTimer()
	c.nextID++
	id := c.nextID
	c.timerID = id
	c.timerState = &TimerState{Duration: max(seconds, 0), TimeLeft: max(seconds, 0)}
	c.timer = StartTimer(c.deps.Clock, seconds,
		func(left int) { c.post(timerTicked{id: id, left: left}) },
		func() { c.post(timerExpired{id: id}) },
	)
}

func (c *Controller) cancelTimer() {
	if c.timer != nil {
		c.timer.Cancel()
	}
	c.timer = nil
	c.timerID = 0
	c.timerState = nil
}

func (c *Controller) onTimerTicked(e timerTicked) {
	if e.id != c.timerID || c.timerState == nil {
		return
	}
	c.timerState.TimeLeft = max(e.left, 0)
	c.emit(Update{Kind: UpdateTimer, Timer: *c.timerState})
}

func (c *Controller) onTimerExpired(e timerExpired) {
	if e.id != c.timerID {
		return
	}
	c.timer = nil
	c.timerID = 0
	c.timerState = nil

	switch c.phase {
	case phasePreparing:
		c.endPreparation()
	case phaseRecording:
		c.stopRecording()
	}
}

func (c *Controller) onRetry() {
	if c.session.State != StateRunning || c.fetching || c.phase != phaseIdle {
		c.log.Debug("retry ignored", "state", c.session.State, "fetching", c.fetching)
		return
	}
	d := c.session.Data
	loaded := (c.session.Part == Part1 && d.Part1 != nil) ||
		(c.session.Part == Part2 && d.Part2 != nil) ||
		(c.session.Part == Part3 && d.Part3 != nil)
	if loaded {
		return
	}
	c.setStatus(c.cfg.partStatus(c.session.Part))
	c.fetch(c.session.Part)
}

func (c *Controller) onFinish() {
	if c.session.State != StateRunning {
		return
	}
	switch c.phase {
	case phaseRecording, phaseProcessing:
		c.finishReq = true
		c.stopRecording()
	default:
		c.finish()
	}
}

func (c *Controller) finish() {
	c.cancelTimer()
	c.releaseRecording()
	c.session.State = StateFinished
	c.phase = phaseIdle
	c.fetching = false
	c.setStatus(Status{Title: "Test Complete", Instruction: "Please wait while we generate your evaluation."})
	c.emit(Update{Kind: UpdateFinished})

	var conversation []Turn
	for _, t := range c.session.History {
		if t.Answer != "" {
			conversation = append(conversation, t)
		}
	}
	c.log.Info("test finished", "session", c.session.ID, "turns", len(conversation))

	if len(conversation) == 0 {
		c.session.Evaluation = &Evaluation{Error: NoAnswersError}
		c.emit(Update{Kind: UpdateEvaluation, Evaluation: &Evaluation{Error: NoAnswersError}})
		return
	}

	gen, ctx, evaluator := c.gen, c.ctx, c.deps.Evaluator
	go func() {
		report, err := evaluator.Evaluate(ctx, conversation)
		c.post(evaluationDone{gen: gen, report: report, err: err})
	}()
}

func (c *Controller) onEvaluationDone(e evaluationDone) {
	if e.gen != c.gen || c.session.State != StateFinished || c.session.Evaluation != nil {
		return
	}
	ev := &Evaluation{Report: e.report}
	if e.err != nil || e.report == nil {
		c.log.Error("evaluate test", "session", c.session.ID, "error", e.err)
		ev = &Evaluation{Error: EvaluationError}
	}
	c.session.Evaluation = ev
	out := *ev
	c.emit(Update{Kind: UpdateEvaluation, Evaluation: &out})
}

// abort returns to Start after the capture device could not be opened.
func (c *Controller) abort(err error) {
	c.log.Error("recording setup failed", "session", c.session.ID, "error", err)
	c.cancelTimer()
	c.releaseRecording()
	c.gen++
	c.session = Session{State: StateStart}
	c.status = Status{}
	c.phase = phaseIdle
	c.fetching = false
	c.finishReq = false
	c.asked = nil
	c.alert(MicrophoneAlert)
	c.emit(Update{Kind: UpdateReset})
}

func (c *Controller) releaseRecording() {
	if c.rec == nil {
		return
	}
	c.rec.stopGrace()
	c.rec.release(c.log)
	c.rec = nil
}

func (c *Controller) setStatus(s Status) {
	c.status = s
	c.emit(Update{Kind: UpdateStatus, Status: s})
}

func (c *Controller) alert(msg string) {
	c.emit(Update{Kind: UpdateAlert, Text: msg})
}

func (c *Controller) emit(u Update) {
	u.SessionID = c.session.ID
	if u.Part == 0 {
		u.Part = c.session.Part
	}
	c.pending = append(c.pending, u)
}
