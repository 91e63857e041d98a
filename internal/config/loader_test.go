package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "speaking.yaml", `
test:
  part1_answer_seconds: 30
examiner:
  max_attempts: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Test.Part1AnswerSeconds != 30 {
		t.Errorf("Part1AnswerSeconds = %d, want 30", cfg.Test.Part1AnswerSeconds)
	}
	if cfg.Test.Part2AnswerSeconds != 120 {
		t.Errorf("Part2AnswerSeconds = %d, want default 120", cfg.Test.Part2AnswerSeconds)
	}
	if cfg.Examiner.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Examiner.MaxAttempts)
	}
	if len(cfg.Parts) != 3 {
		t.Fatalf("got %d parts, want 3", len(cfg.Parts))
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "speaking.toml", `
[test]
part2_preparation_seconds = 0
fallback_answer = "No answer."

[[part]]
id = 1
title = "One"
min_questions = 1
max_questions = 2

[[part]]
id = 2
title = "Two"
min_questions = 1
max_questions = 1

[[part]]
id = 3
title = "Three"
min_questions = 2
max_questions = 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Test.Part2PreparationSeconds != 0 {
		t.Errorf("Part2PreparationSeconds = %d, want 0", cfg.Test.Part2PreparationSeconds)
	}
	if cfg.Test.FallbackAnswer != "No answer." {
		t.Errorf("FallbackAnswer = %q", cfg.Test.FallbackAnswer)
	}
	part, ok := cfg.GetPart(3)
	if !ok || part.Title != "Three" || part.MaxQuestions != 3 {
		t.Errorf("GetPart(3) = %+v, %v", part, ok)
	}
}

func TestLoad_RejectsUnknownYAMLKeys(t *testing.T) {
	path := writeFile(t, "speaking.yaml", "test:\n  part4_answer_seconds: 10\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "zero answer time", mutate: func(c *Config) { c.Test.Part3AnswerSeconds = 0 }, wantErr: "answer durations"},
		{name: "negative preparation", mutate: func(c *Config) { c.Test.Part2PreparationSeconds = -1 }, wantErr: "part2_preparation_seconds"},
		{name: "blank fallback", mutate: func(c *Config) { c.Test.FallbackAnswer = "  " }, wantErr: "fallback_answer"},
		{name: "missing part", mutate: func(c *Config) { c.Parts = c.Parts[:2] }, wantErr: "expected 3 parts"},
		{name: "wrong part order", mutate: func(c *Config) { c.Parts[0].ID, c.Parts[1].ID = 2, 1 }, wantErr: "expected 1"},
		{name: "inverted range", mutate: func(c *Config) { c.Parts[2].MaxQuestions = 1 }, wantErr: "invalid question range"},
		{name: "no attempts", mutate: func(c *Config) { c.Examiner.MaxAttempts = 0 }, wantErr: "max_attempts"},
		{name: "hot temperature", mutate: func(c *Config) { c.Examiner.QuestionTemperature = 2.5 }, wantErr: "temperatures"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadAppConfig(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("LLM_MODEL", "gpt-4o-mini")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LLM_FALLBACK_PROVIDER", "ollama")
	t.Setenv("LLM_FALLBACK_MODEL", "llama3")
	t.Setenv("SERVER_PORT", "8081")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("LLM_TIMEOUT", "5s")

	cfg := LoadAppConfig()
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want key resolved from OPENAI_API_KEY", cfg.LLM.APIKey)
	}
	if cfg.LLM.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", cfg.LLM.Timeout)
	}
	if cfg.Fallback == nil || cfg.Fallback.Provider != "ollama" {
		t.Fatalf("Fallback = %+v", cfg.Fallback)
	}
	if err := cfg.Fallback.ValidateConfig(); err != nil {
		t.Errorf("local fallback should validate without a key: %v", err)
	}
	if cfg.Server.Port != 8081 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Telegram.Enabled() {
		t.Error("Telegram should be disabled without a token")
	}
}

func TestLLMConfig_ValidateConfig(t *testing.T) {
	cfg := LLMConfig{Provider: "gemini", Model: "gemini-2.5-flash", MaxTokens: 100}
	if err := cfg.ValidateConfig(); err == nil {
		t.Fatal("expected missing key error")
	}
	cfg.APIKey = "key"
	if err := cfg.ValidateConfig(); err != nil {
		t.Fatalf("ValidateConfig: %v", err)
	}
	if info := cfg.GetModelInfo(); info["model"] != "gemini-2.5-flash" {
		t.Errorf("GetModelInfo = %v", info)
	}
}
