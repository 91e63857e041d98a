// Package speaking runs an IELTS speaking test: it asks the Part 1, 2 and 3
// questions, records and transcribes each answer under a countdown and submits
// the finished transcript for a band-score report.
package speaking

import (
	"math"
	"time"
)

// State is the top-level lifecycle of a test attempt.
type State int

const (
	StateStart State = iota
	StateRunning
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Part identifies a section of the test.
type Part int

const (
	Part1 Part = 1
	Part2 Part = 2
	Part3 Part = 3
)

// Turn is one examiner question and the candidate's transcribed answer.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// CueCard is the Part 2 task: a topic and the points to cover.
type CueCard struct {
	Topic     string   `json:"topic"`
	CuePoints []string `json:"cue_points"`
}

// TestData holds the question sets fetched so far. A nil entry means the
// part has not been loaded.
type TestData struct {
	Part1 []string
	Part2 *CueCard
	Part3 []string
}

// Criterion is a band score with examiner feedback.
type Criterion struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// Report is the evaluation of a finished test.
type Report struct {
	FluencyAndCoherence         Criterion `json:"fluency_and_coherence"`
	LexicalResource             Criterion `json:"lexical_resource"`
	GrammaticalRangeAndAccuracy Criterion `json:"grammatical_range_and_accuracy"`
	Pronunciation               Criterion `json:"pronunciation"`
	OverallScore                float64   `json:"overall_score"`
	Summary                     string    `json:"summary"`
}

// Criteria returns the four criteria in their official order.
func (r *Report) Criteria() []NamedCriterion {
	return []NamedCriterion{
		{Name: "Fluency and Coherence", Criterion: r.FluencyAndCoherence},
		{Name: "Lexical Resource", Criterion: r.LexicalResource},
		{Name: "Grammatical Range and Accuracy", Criterion: r.GrammaticalRangeAndAccuracy},
		{Name: "Pronunciation", Criterion: r.Pronunciation},
	}
}

type NamedCriterion struct {
	Name string
	Criterion
}

// OverallBand averages the four criteria and rounds to the nearest half band,
// the way IELTS reports the overall score.
func (r *Report) OverallBand() float64 {
	sum := 0.0
	for _, c := range r.Criteria() {
		sum += c.Score
	}
	return RoundBand(sum / 4)
}

// RoundBand rounds a score to the nearest 0.5.
func RoundBand(score float64) float64 {
	return math.Round(score*2) / 2
}

// Evaluation is either a report or the error shown in its place.
type Evaluation struct {
	Report *Report `json:"report,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// TimerState is the countdown of the active timed activity, in seconds.
type TimerState struct {
	Duration int `json:"duration"`
	TimeLeft int `json:"time_left"`
}

// Session is the state of one test attempt.
type Session struct {
	ID            string      `json:"id"`
	State         State       `json:"state"`
	Part          Part        `json:"part"`
	QuestionIndex int         `json:"question_index"`
	Data          TestData    `json:"-"`
	History       []Turn      `json:"history"`
	Evaluation    *Evaluation `json:"evaluation,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
}

// Status is the title and instruction shown for the current phase.
type Status struct {
	Title       string `json:"title"`
	Instruction string `json:"instruction"`
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	Session
	Status     Status      `json:"status"`
	Timer      *TimerState `json:"timer,omitempty"`
	Preparing  bool        `json:"preparing"`
	Recording  bool        `json:"recording"`
	Processing bool        `json:"processing"`
	Transcript string      `json:"transcript"`
}

func (s Session) clone() Session {
	c := s
	c.History = append([]Turn(nil), s.History...)
	c.Data.Part1 = append([]string(nil), s.Data.Part1...)
	c.Data.Part3 = append([]string(nil), s.Data.Part3...)
	if s.Data.Part2 != nil {
		card := *s.Data.Part2
		card.CuePoints = append([]string(nil), card.CuePoints...)
		c.Data.Part2 = &card
	}
	if s.Evaluation != nil {
		ev := *s.Evaluation
		c.Evaluation = &ev
	}
	return c
}
