package speaking

import (
	"errors"
	"testing"
)

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Deps{}, DefaultConfig()); err == nil {
		t.Fatal("expected error for missing collaborators")
	}
}

func TestController_Part1CompletesAndFetchesPart2Once(t *testing.T) {
	h := newHarness(t, testConfig())
	h.ctrl.Start()

	h.answerAll(Part1, len(part1Questions))
	card := h.waitFor(UpdateCueCard, nil)

	if card.CueCard == nil || card.CueCard.Topic != testCard.Topic {
		t.Fatalf("cue card = %+v", card.CueCard)
	}
	snap := h.ctrl.Snapshot()
	if snap.Part != Part2 {
		t.Errorf("Part = %d, want 2", snap.Part)
	}
	if got := h.questions.part2Calls.Load(); got != 1 {
		t.Errorf("Part 2 fetched %d times, want 1", got)
	}
	if len(snap.History) < len(part1Questions) {
		t.Fatalf("history has %d turns, want at least %d", len(snap.History), len(part1Questions))
	}
	for i, q := range part1Questions {
		if snap.History[i].Question != q {
			t.Errorf("history[%d].Question = %q, want %q", i, snap.History[i].Question, q)
		}
		if snap.History[i].Answer == "" {
			t.Errorf("history[%d].Answer is empty", i)
		}
	}
}

func TestController_FullTestEvaluatesAfterPart3(t *testing.T) {
	h := newHarness(t, testConfig())
	h.ctrl.Start()

	h.answerAll(Part1, len(part1Questions))

	rec := h.waitFor(UpdateRecording, at(Part2, 0))
	if rec.Timer.Duration != 120 {
		t.Fatalf("Part 2 answer duration = %d, want 120", rec.Timer.Duration)
	}
	if delivered := h.clock.latest(t).advance(75); delivered != 75 {
		t.Fatalf("delivered %d ticks, want 75", delivered)
	}
	h.waitFor(UpdateTimer, func(u Update) bool { return u.Timer.TimeLeft == 45 })
	h.ctrl.StopRecording()
	h.waitFor(UpdateAnswer, at(Part2, 0))

	h.waitFor(UpdateRecording, at(Part3, 0))
	if got := h.questions.part2Calls.Load(); got != 1 {
		t.Errorf("Part 2 fetched %d times, want 1", got)
	}
	if got := h.questions.part3Calls.Load(); got != 1 {
		t.Errorf("Part 3 fetched %d times, want 1", got)
	}
	if len(h.questions.topics) != 1 || h.questions.topics[0] != testCard.Topic {
		t.Errorf("Part 3 topics = %v, want [%q]", h.questions.topics, testCard.Topic)
	}
	if n := len(h.evaluator.calls()); n != 0 {
		t.Fatalf("evaluation submitted %d times before Part 3", n)
	}

	h.ctrl.StopRecording()
	h.waitFor(UpdateAnswer, at(Part3, 0))
	for i := 1; i < len(part3Questions); i++ {
		h.answer(Part3, i)
	}

	ev := h.waitFor(UpdateEvaluation, nil)
	if ev.Evaluation == nil || ev.Evaluation.Report == nil {
		t.Fatalf("evaluation = %+v, want report", ev.Evaluation)
	}

	calls := h.evaluator.calls()
	if len(calls) != 1 {
		t.Fatalf("evaluation submitted %d times, want 1", len(calls))
	}
	want := len(part1Questions) + 1 + len(part3Questions)
	if len(calls[0]) != want {
		t.Fatalf("evaluated %d turns, want %d", len(calls[0]), want)
	}
	if calls[0][3].Question != "Please describe a place you visited recently." {
		t.Errorf("Part 2 question = %q", calls[0][3].Question)
	}
	for i, q := range part3Questions {
		if calls[0][4+i].Question != q {
			t.Errorf("turn %d = %q, want %q", 4+i, calls[0][4+i].Question, q)
		}
	}

	snap := h.ctrl.Snapshot()
	if snap.State != StateFinished {
		t.Errorf("State = %s, want finished", snap.State)
	}
	if snap.Evaluation == nil || snap.Evaluation.Report.OverallScore != 6.5 {
		t.Errorf("Evaluation = %+v", snap.Evaluation)
	}
	if got, want := h.recorder.stops.Load(), h.recorder.starts.Load(); got != want {
		t.Errorf("released %d captures, opened %d", got, want)
	}
}

func TestController_TimerExpiryFinalizesAnswer(t *testing.T) {
	h := newHarness(t, testConfig())
	h.ctrl.Start()

	h.waitFor(UpdateRecording, at(Part1, 0))
	h.clock.latest(t).advance(60)

	answer := h.waitFor(UpdateAnswer, at(Part1, 0))
	if answer.Text != "answer 0" {
		t.Errorf("answer = %q, want %q", answer.Text, "answer 0")
	}
	h.waitFor(UpdateRecording, at(Part1, 1))
	if snap := h.ctrl.Snapshot(); snap.QuestionIndex != 1 || len(snap.History) != 2 {
		t.Errorf("index = %d, history = %d; want 1 and 2", snap.QuestionIndex, len(snap.History))
	}
}

func TestController_DuplicateStopAdvancesOnce(t *testing.T) {
	h := newHarness(t, testConfig())
	h.ctrl.Start()

	h.waitFor(UpdateRecording, at(Part1, 0))
	h.ctrl.StopRecording()
	h.ctrl.StopRecording()
	h.waitFor(UpdateAnswer, at(Part1, 0))

	h.waitFor(UpdateRecording, at(Part1, 1))
	snap := h.ctrl.Snapshot()
	if snap.QuestionIndex != 1 {
		t.Fatalf("QuestionIndex = %d, want 1", snap.QuestionIndex)
	}
	if len(snap.History) != 2 || snap.History[1].Answer != "" {
		t.Fatalf("history = %+v, want second question still unanswered", snap.History)
	}
	if !snap.Recording {
		t.Error("second question should be recording")
	}
}

func TestController_AnswerFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		results []TranscriptResult
		want    string
	}{
		{name: "final segments joined", results: []TranscriptResult{{Text: "I study", Final: true}, {Text: "law", Final: true}}, want: "I study law"},
		{name: "final wins over interim", results: []TranscriptResult{{Text: "I work", Final: true}, {Text: "as a"}}, want: "I work"},
		{name: "interim when nothing final", results: []TranscriptResult{{Text: "I"}, {Text: "I am a student"}}, want: "I am a student"},
		{name: "placeholder when silent", results: nil, want: "Could not transcribe audio."},
		{name: "placeholder for blank text", results: []TranscriptResult{{Text: "   ", Final: true}}, want: "Could not transcribe audio."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testConfig(), func(h *harness) {
				h.transcriber.script = func(int) []TranscriptResult { return tt.results }
			})
			h.ctrl.Start()
			if got := h.answer(Part1, 0); got != tt.want {
				t.Fatalf("answer = %q, want %q", got, tt.want)
			}
			if got := h.ctrl.Snapshot().History[0].Answer; got != tt.want {
				t.Errorf("stored answer = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestController_EvaluatorFailureStaysFinished(t *testing.T) {
	h := newHarness(t, testConfig(), func(h *harness) {
		h.evaluator.err = errors.New("status 500")
	})
	h.ctrl.Start()

	h.answerAll(Part1, len(part1Questions))
	h.answer(Part2, 0)
	h.answerAll(Part3, len(part3Questions))

	ev := h.waitFor(UpdateEvaluation, nil)
	if ev.Evaluation == nil || ev.Evaluation.Error == "" {
		t.Fatalf("evaluation = %+v, want error", ev.Evaluation)
	}
	snap := h.ctrl.Snapshot()
	if snap.State != StateFinished {
		t.Errorf("State = %s, want finished", snap.State)
	}
	if snap.Evaluation == nil || snap.Evaluation.Error != EvaluationError {
		t.Errorf("Evaluation = %+v", snap.Evaluation)
	}
}

func TestController_RecorderFailureAbortsToStart(t *testing.T) {
	h := newHarness(t, testConfig(), func(h *harness) {
		h.recorder.err = errors.New("permission denied")
	})
	h.ctrl.Start()

	alert := h.waitFor(UpdateAlert, nil)
	if alert.Text != MicrophoneAlert {
		t.Errorf("alert = %q", alert.Text)
	}
	h.waitFor(UpdateReset, nil)

	snap := h.ctrl.Snapshot()
	if snap.State != StateStart || len(snap.History) != 0 || snap.ID != "" {
		t.Errorf("snapshot = %+v, want fresh Start session", snap.Session)
	}
}

func TestController_TranscriberFailureReleasesCapture(t *testing.T) {
	h := newHarness(t, testConfig(), func(h *harness) {
		h.transcriber.err = errors.New("speech recognition unavailable")
	})
	h.ctrl.Start()

	h.waitFor(UpdateReset, nil)
	if h.recorder.starts.Load() != 1 || h.recorder.stops.Load() != 1 {
		t.Errorf("starts = %d, stops = %d; want the capture released", h.recorder.starts.Load(), h.recorder.stops.Load())
	}

	// A new attempt may follow the abort.
	h.transcriber.err = nil
	h.ctrl.Start()
	h.waitFor(UpdateRecording, at(Part1, 0))
}

func TestController_FetchFailureWaitsForRetry(t *testing.T) {
	h := newHarness(t, testConfig(), func(h *harness) {
		h.questions.part1Failures.Store(1)
	})
	h.ctrl.Start()

	alert := h.waitFor(UpdateAlert, nil)
	if alert.Text != FetchAlert {
		t.Errorf("alert = %q", alert.Text)
	}
	snap := h.ctrl.Snapshot()
	if snap.State != StateRunning || snap.Data.Part1 != nil || len(snap.History) != 0 {
		t.Fatalf("snapshot = %+v, want running with no Part 1 data", snap.Session)
	}

	h.ctrl.Retry()
	q := h.waitFor(UpdateQuestion, at(Part1, 0))
	if q.Text != part1Questions[0] {
		t.Errorf("question = %q", q.Text)
	}
	if got := h.questions.part1Calls.Load(); got != 2 {
		t.Errorf("Part 1 fetched %d times, want 2", got)
	}
}

func TestController_PreparationTimerStartsTalk(t *testing.T) {
	cfg := testConfig()
	cfg.Part2Preparation = 60
	h := newHarness(t, cfg)
	h.ctrl.Start()
	h.answerAll(Part1, len(part1Questions))

	h.waitFor(UpdateCueCard, nil)
	snap := h.ctrl.Snapshot()
	if !snap.Preparing || snap.Timer == nil || snap.Timer.Duration != 60 {
		t.Fatalf("snapshot = preparing %v timer %+v", snap.Preparing, snap.Timer)
	}
	if snap.Status.Instruction != "You have 1 minute to prepare your notes." {
		t.Errorf("instruction = %q", snap.Status.Instruction)
	}

	h.clock.latest(t).advance(60)
	q := h.waitFor(UpdateQuestion, at(Part2, 0))
	if q.Text != "Please describe a place you visited recently." {
		t.Errorf("question = %q", q.Text)
	}
}

func TestController_GraceFinalizesStuckStream(t *testing.T) {
	h := newHarness(t, testConfig(), func(h *harness) {
		h.transcriber.hang = true
		h.transcriber.script = func(int) []TranscriptResult {
			return []TranscriptResult{{Text: "still talking"}}
		}
	})
	h.ctrl.Start()

	h.waitFor(UpdateTranscript, func(u Update) bool { return u.Text == "still talking" })
	h.ctrl.StopRecording()
	h.waitFor(UpdateStatus, func(u Update) bool { return u.Status.Title == "Processing..." })
	h.clock.fireAfters()

	answer := h.waitFor(UpdateAnswer, at(Part1, 0))
	if answer.Text != "still talking" {
		t.Errorf("answer = %q", answer.Text)
	}
}

func TestController_FinishDuringRecording(t *testing.T) {
	h := newHarness(t, testConfig())
	h.ctrl.Start()
	h.answer(Part1, 0)

	h.waitFor(UpdateRecording, at(Part1, 1))
	h.ctrl.Finish()
	h.waitFor(UpdateAnswer, at(Part1, 1))
	h.waitFor(UpdateEvaluation, nil)

	calls := h.evaluator.calls()
	if len(calls) != 1 || len(calls[0]) != 2 {
		t.Fatalf("evaluated %v, want one call with 2 turns", calls)
	}
	if snap := h.ctrl.Snapshot(); snap.State != StateFinished {
		t.Errorf("State = %s", snap.State)
	}
}

func TestController_FinishWithoutAnswers(t *testing.T) {
	h := newHarness(t, testConfig(), func(h *harness) {
		h.questions.part1Failures.Store(1)
	})
	h.ctrl.Start()
	h.waitFor(UpdateAlert, nil)

	h.ctrl.Finish()
	ev := h.waitFor(UpdateEvaluation, nil)
	if ev.Evaluation == nil || ev.Evaluation.Error != NoAnswersError {
		t.Fatalf("evaluation = %+v", ev.Evaluation)
	}
	if n := len(h.evaluator.calls()); n != 0 {
		t.Errorf("evaluator called %d times", n)
	}
}

func TestController_CancelReleasesDevices(t *testing.T) {
	h := newHarness(t, testConfig())
	h.ctrl.Start()
	h.waitFor(UpdateRecording, at(Part1, 0))

	h.cancel()
	<-h.ctrl.Done()

	if h.recorder.stops.Load() != 1 {
		t.Errorf("capture stops = %d, want 1", h.recorder.stops.Load())
	}
	if h.transcriber.stopped() != 1 {
		t.Errorf("stopped streams = %d, want 1", h.transcriber.stopped())
	}
}

func TestController_StartIgnoredWhileRunning(t *testing.T) {
	h := newHarness(t, testConfig())
	h.ctrl.Start()
	h.waitFor(UpdateRecording, at(Part1, 0))
	id := h.ctrl.Snapshot().ID

	h.ctrl.Start()
	h.ctrl.StopRecording()
	h.waitFor(UpdateAnswer, at(Part1, 0))

	if got := h.ctrl.Snapshot().ID; got != id {
		t.Errorf("session changed from %s to %s", id, got)
	}
	if got := h.questions.part1Calls.Load(); got != 1 {
		t.Errorf("Part 1 fetched %d times", got)
	}
}

func TestCueCardPrompt(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"Describe a book you enjoyed.", "Please describe a book you enjoyed."},
		{"  Talk about your hometown", "Please talk about your hometown"},
		{"TV programmes you watch", "Please TV programmes you watch"},
		{"", "Please"},
	}
	for _, tt := range tests {
		if got := CueCardPrompt(tt.topic); got != tt.want {
			t.Errorf("CueCardPrompt(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestReport_OverallBand(t *testing.T) {
	r := &Report{
		FluencyAndCoherence:         Criterion{Score: 7},
		LexicalResource:             Criterion{Score: 6},
		GrammaticalRangeAndAccuracy: Criterion{Score: 6},
		Pronunciation:               Criterion{Score: 6},
	}
	if got := r.OverallBand(); got != 6.5 {
		t.Errorf("OverallBand = %v, want 6.5", got)
	}
	if got := RoundBand(6.1); got != 6 {
		t.Errorf("RoundBand(6.1) = %v, want 6", got)
	}
}
