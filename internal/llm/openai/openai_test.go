package openai

import (
	"testing"

	"ielts-speaking/internal/llm"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("sk-test", "gpt-4o-mini", WithBaseURL("http://localhost:1234/v1")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConvertMessage_Roles(t *testing.T) {
	sys, err := convertMessage(llm.Message{Role: llm.RoleSystem, Content: "You are an IELTS examiner."})
	if err != nil || sys.OfSystem == nil {
		t.Fatalf("system: %+v, %v", sys, err)
	}
	user, err := convertMessage(llm.Message{Role: llm.RoleUser, Content: "Generate questions."})
	if err != nil || user.OfUser == nil {
		t.Fatalf("user: %+v, %v", user, err)
	}
	asst, err := convertMessage(llm.Message{Role: llm.RoleAssistant, Content: "[]"})
	if err != nil || asst.OfAssistant == nil {
		t.Fatalf("assistant: %+v, %v", asst, err)
	}
	if _, err := convertMessage(llm.Message{Role: "narrator"}); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestBuildParams(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatal(err)
	}

	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "sys",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature:  1.25,
		MaxTokens:    800,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("system prompt should come first")
	}
	if got := params.Temperature.Value; got != 1.25 {
		t.Errorf("temperature = %v", got)
	}
	if got := params.MaxCompletionTokens.Value; got != 800 {
		t.Errorf("max tokens = %v", got)
	}
	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("model = %q", params.Model)
	}

	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Error("expected error for empty request")
	}
}
