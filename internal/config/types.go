package config

import "time"

// Config describes the speaking test: timings, per-part rules and examiner
// tuning.
type Config struct {
	Test     TestConfig     `yaml:"test" toml:"test"`
	Parts    []PartConfig   `yaml:"parts" toml:"part"`
	Examiner ExaminerConfig `yaml:"examiner" toml:"examiner"`
}

// TestConfig holds timings in seconds.
type TestConfig struct {
	Part1AnswerSeconds      int    `yaml:"part1_answer_seconds" toml:"part1_answer_seconds"`
	Part2PreparationSeconds int    `yaml:"part2_preparation_seconds" toml:"part2_preparation_seconds"`
	Part2AnswerSeconds      int    `yaml:"part2_answer_seconds" toml:"part2_answer_seconds"`
	Part3AnswerSeconds      int    `yaml:"part3_answer_seconds" toml:"part3_answer_seconds"`
	TranscriptGraceSeconds  int    `yaml:"transcript_grace_seconds" toml:"transcript_grace_seconds"`
	FallbackAnswer          string `yaml:"fallback_answer" toml:"fallback_answer"`
}

// PartConfig describes one of the three test parts.
type PartConfig struct {
	ID           int    `yaml:"id" toml:"id"`
	Title        string `yaml:"title" toml:"title"`
	Instruction  string `yaml:"instruction" toml:"instruction"`
	MinQuestions int    `yaml:"min_questions" toml:"min_questions"`
	MaxQuestions int    `yaml:"max_questions" toml:"max_questions"`
}

// ExaminerConfig tunes question generation and evaluation.
type ExaminerConfig struct {
	QuestionTemperature   float64 `yaml:"question_temperature" toml:"question_temperature"`
	EvaluationTemperature float64 `yaml:"evaluation_temperature" toml:"evaluation_temperature"`
	MaxAttempts           int     `yaml:"max_attempts" toml:"max_attempts"`
}

// Default returns the standard IELTS timings and rules.
func Default() *Config {
	return &Config{
		Test: TestConfig{
			Part1AnswerSeconds:      60,
			Part2PreparationSeconds: 60,
			Part2AnswerSeconds:      120,
			Part3AnswerSeconds:      60,
			TranscriptGraceSeconds:  3,
			FallbackAnswer:          "Could not transcribe audio.",
		},
		Parts: []PartConfig{
			{ID: 1, Title: "Part 1: Introduction", Instruction: "The examiner will ask some general questions.", MinQuestions: 3, MaxQuestions: 4},
			{ID: 2, Title: "Part 2: Cue Card", Instruction: "You will be given a topic to talk about.", MinQuestions: 3, MaxQuestions: 4},
			{ID: 3, Title: "Part 3: Discussion", Instruction: "The examiner will ask some follow-up questions.", MinQuestions: 4, MaxQuestions: 5},
		},
		Examiner: ExaminerConfig{
			QuestionTemperature:   1.25,
			EvaluationTemperature: 0.5,
			MaxAttempts:           3,
		},
	}
}

// GetPart returns the rules for part id, or false when it is not configured.
func (c *Config) GetPart(id int) (PartConfig, bool) {
	for _, p := range c.Parts {
		if p.ID == id {
			return p, true
		}
	}
	return PartConfig{}, false
}

func (c *Config) GetTranscriptGrace() time.Duration {
	return time.Duration(c.Test.TranscriptGraceSeconds) * time.Second
}
