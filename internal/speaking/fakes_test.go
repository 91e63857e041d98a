package speaking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// --- clock ---

type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
	afters  []*fakeAfter
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	t := &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) Stopper {
	a := &fakeAfter{f: f}
	c.mu.Lock()
	c.afters = append(c.afters, a)
	c.mu.Unlock()
	return a
}

func (c *fakeClock) latest(t *testing.T) *fakeTicker {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 {
		t.Fatal("no ticker created")
	}
	return c.tickers[len(c.tickers)-1]
}

// fireAfters runs every pending AfterFunc callback.
func (c *fakeClock) fireAfters() {
	c.mu.Lock()
	afters := c.afters
	c.afters = nil
	c.mu.Unlock()
	for _, a := range afters {
		a.fire()
	}
}

type fakeTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() { t.once.Do(func() { close(t.stopped) }) }

// advance delivers n ticks, stopping early if the ticker is stopped.
func (t *fakeTicker) advance(n int) int {
	for i := 0; i < n; i++ {
		select {
		case t.ch <- time.Now():
		case <-t.stopped:
			return i
		}
	}
	return n
}

type fakeAfter struct {
	mu      sync.Mutex
	f       func()
	stopped bool
}

func (a *fakeAfter) Stop() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	was := !a.stopped
	a.stopped = true
	return was
}

func (a *fakeAfter) fire() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.mu.Unlock()
	a.f()
}

// --- collaborators ---

type fakeQuestions struct {
	part1 []string
	card  *CueCard
	part3 []string

	part1Failures atomic.Int32
	part2Err      error

	part1Calls atomic.Int32
	part2Calls atomic.Int32
	part3Calls atomic.Int32

	mu     sync.Mutex
	topics []string
}

func (q *fakeQuestions) Part1(context.Context) ([]string, error) {
	q.part1Calls.Add(1)
	if q.part1Failures.Load() > 0 {
		q.part1Failures.Add(-1)
		return nil, errors.New("status 500")
	}
	return q.part1, nil
}

func (q *fakeQuestions) Part2(context.Context) (*CueCard, error) {
	q.part2Calls.Add(1)
	if q.part2Err != nil {
		return nil, q.part2Err
	}
	return q.card, nil
}

func (q *fakeQuestions) Part3(_ context.Context, topic string) ([]string, error) {
	q.part3Calls.Add(1)
	q.mu.Lock()
	q.topics = append(q.topics, topic)
	q.mu.Unlock()
	return q.part3, nil
}

type fakeEvaluator struct {
	err    error
	report *Report

	mu            sync.Mutex
	conversations [][]Turn
}

func (e *fakeEvaluator) Evaluate(_ context.Context, conversation []Turn) (*Report, error) {
	e.mu.Lock()
	e.conversations = append(e.conversations, conversation)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return e.report, nil
}

func (e *fakeEvaluator) calls() [][]Turn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]Turn(nil), e.conversations...)
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (s *fakeSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
	return nil
}

type fakeRecorder struct {
	err    error
	starts atomic.Int32
	stops  atomic.Int32
}

func (r *fakeRecorder) Start(context.Context) (Capture, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.starts.Add(1)
	return &fakeCapture{r: r}, nil
}

type fakeCapture struct {
	r    *fakeRecorder
	once sync.Once
}

func (c *fakeCapture) Stop() error {
	c.once.Do(func() { c.r.stops.Add(1) })
	return nil
}

// fakeTranscriber plays a scripted set of results for the n-th answer.
type fakeTranscriber struct {
	err    error
	hang   bool
	script func(n int) []TranscriptResult

	mu      sync.Mutex
	streams []*fakeStream
}

func (tr *fakeTranscriber) Start(context.Context) (TranscriptStream, error) {
	if tr.err != nil {
		return nil, tr.err
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	n := len(tr.streams)
	var results []TranscriptResult
	if tr.script != nil {
		results = tr.script(n)
	} else {
		results = []TranscriptResult{{Text: fmt.Sprintf("answer %d", n), Final: true}}
	}
	s := &fakeStream{ch: make(chan TranscriptResult, len(results)+1), hang: tr.hang}
	for _, r := range results {
		s.ch <- r
	}
	tr.streams = append(tr.streams, s)
	return s, nil
}

func (tr *fakeTranscriber) stopped() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	n := 0
	for _, s := range tr.streams {
		if s.stops.Load() > 0 {
			n++
		}
	}
	return n
}

type fakeStream struct {
	ch    chan TranscriptResult
	hang  bool
	once  sync.Once
	stops atomic.Int32
}

func (s *fakeStream) Results() <-chan TranscriptResult { return s.ch }

func (s *fakeStream) Stop() error {
	s.stops.Add(1)
	if !s.hang {
		s.once.Do(func() { close(s.ch) })
	}
	return nil
}

// --- harness ---

type harness struct {
	t           *testing.T
	ctrl        *Controller
	clock       *fakeClock
	questions   *fakeQuestions
	evaluator   *fakeEvaluator
	speaker     *fakeSpeaker
	recorder    *fakeRecorder
	transcriber *fakeTranscriber
	updates     chan Update
	cancel      context.CancelFunc
}

var (
	part1Questions = []string{"Do you work or study?", "What do you like about it?", "Where are you from?"}
	testCard       = &CueCard{Topic: "Describe a place you visited recently.", CuePoints: []string{"where it is", "when you went", "why you liked it"}}
	part3Questions = []string{"Why do people travel?", "Is tourism good for cities?", "How will travel change?", "Should travel be cheaper?"}
	testReport     = &Report{
		FluencyAndCoherence:         Criterion{Score: 7, Feedback: "Fluent."},
		LexicalResource:             Criterion{Score: 6.5, Feedback: "Good range."},
		GrammaticalRangeAndAccuracy: Criterion{Score: 6, Feedback: "Some errors."},
		Pronunciation:               Criterion{Score: 7, Feedback: "Inferred from text."},
		OverallScore:                6.5,
		Summary:                     "A solid performance.",
	}
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Part2Preparation = 0
	return cfg
}

func newHarness(t *testing.T, cfg Config, setup ...func(*harness)) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		clock: &fakeClock{},
		questions: &fakeQuestions{
			part1: part1Questions,
			card:  testCard,
			part3: part3Questions,
		},
		evaluator:   &fakeEvaluator{report: testReport},
		speaker:     &fakeSpeaker{},
		recorder:    &fakeRecorder{},
		transcriber: &fakeTranscriber{},
		updates:     make(chan Update, 4096),
	}
	for _, fn := range setup {
		fn(h)
	}

	ctrl, err := New(Deps{
		Questions:   h.questions,
		Evaluator:   h.evaluator,
		Speaker:     h.speaker,
		Recorder:    h.recorder,
		Transcriber: h.transcriber,
		Notifier:    NotifierFunc(func(u Update) { h.updates <- u }),
		Clock:       h.clock,
	}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.ctrl = ctrl

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { _ = ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-ctrl.Done()
	})
	return h
}

// waitFor returns the next update of kind that satisfies match, skipping
// everything else.
func (h *harness) waitFor(kind UpdateKind, match func(Update) bool) Update {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-h.updates:
			if u.Kind == kind && (match == nil || match(u)) {
				return u
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for %s update", kind)
			return Update{}
		}
	}
}

func at(part Part, index int) func(Update) bool {
	return func(u Update) bool { return u.Part == part && u.Index == index }
}

// answer waits for the recording of (part, index), stops it early and
// returns the finalized answer.
func (h *harness) answer(part Part, index int) string {
	h.t.Helper()
	h.waitFor(UpdateRecording, at(part, index))
	h.ctrl.StopRecording()
	return h.waitFor(UpdateAnswer, at(part, index)).Text
}

func (h *harness) answerAll(part Part, n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		h.answer(part, i)
	}
}
