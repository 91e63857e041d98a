package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Load reads the test definition from a YAML or TOML file. Keys missing from
// the file keep their Default values.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}

	config := Default()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		err = toml.Unmarshal(data, config)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(config)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}

	applyEnvOverrides(config)

	err = validateConfig(config)
	if err != nil {
		return nil, fmt.Errorf("validating %s: %w", filename, err)
	}

	return config, nil
}

func applyEnvOverrides(config *Config) {
	config.Examiner.QuestionTemperature = getEnvAsFloat("EXAMINER_QUESTION_TEMPERATURE", config.Examiner.QuestionTemperature)
	config.Examiner.EvaluationTemperature = getEnvAsFloat("EXAMINER_EVALUATION_TEMPERATURE", config.Examiner.EvaluationTemperature)
	config.Examiner.MaxAttempts = getEnvAsInt("EXAMINER_MAX_ATTEMPTS", config.Examiner.MaxAttempts)
}

// validateConfig checks that timings and part rules are usable.
func validateConfig(config *Config) error {
	t := config.Test
	if t.Part1AnswerSeconds <= 0 || t.Part2AnswerSeconds <= 0 || t.Part3AnswerSeconds <= 0 {
		return fmt.Errorf("answer durations must be positive")
	}

	if t.Part2PreparationSeconds < 0 {
		return fmt.Errorf("part2_preparation_seconds cannot be negative")
	}

	if t.TranscriptGraceSeconds < 0 {
		return fmt.Errorf("transcript_grace_seconds cannot be negative")
	}

	if strings.TrimSpace(t.FallbackAnswer) == "" {
		return fmt.Errorf("fallback_answer must not be empty")
	}

	if len(config.Parts) != 3 {
		return fmt.Errorf("expected 3 parts, got %d", len(config.Parts))
	}

	for i, part := range config.Parts {
		expectedID := i + 1
		if part.ID != expectedID {
			return fmt.Errorf("part %d has id %d, expected %d", i, part.ID, expectedID)
		}

		if part.Title == "" {
			return fmt.Errorf("part %d must have a title", part.ID)
		}

		if part.MinQuestions <= 0 || part.MaxQuestions < part.MinQuestions {
			return fmt.Errorf("part %d has invalid question range %d-%d",
				part.ID, part.MinQuestions, part.MaxQuestions)
		}
	}

	e := config.Examiner
	if e.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive")
	}

	if e.QuestionTemperature < 0 || e.QuestionTemperature > 2 ||
		e.EvaluationTemperature < 0 || e.EvaluationTemperature > 2 {
		return fmt.Errorf("temperatures must be between 0 and 2")
	}

	return nil
}
