// Package examiner generates IELTS speaking questions and evaluates finished
// tests with an LLM.
package examiner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ielts-speaking/internal/config"
	"ielts-speaking/internal/llm"
	"ielts-speaking/internal/metrics"
	"ielts-speaking/internal/prompts"
	"ielts-speaking/internal/speaking"
)

var (
	// ErrInvalidResponse means the model answered with something that could
	// not be decoded or failed validation.
	ErrInvalidResponse = errors.New("invalid model response")

	// ErrTopicRequired is returned by Part3 for a blank topic.
	ErrTopicRequired = errors.New("part 2 topic is required")

	// ErrEmptyConversation is returned by Evaluate when there is nothing to
	// score.
	ErrEmptyConversation = errors.New("conversation is empty")
)

// Service talks to the LLM on behalf of the examiner. It implements
// speaking.QuestionProvider and speaking.Evaluator.
type Service struct {
	llm     llm.Provider
	cfg     *config.Config
	metrics *metrics.Metrics
	log     *slog.Logger
}

var (
	_ speaking.QuestionProvider = (*Service)(nil)
	_ speaking.Evaluator        = (*Service)(nil)
)

// New creates a Service. m may be nil.
func New(provider llm.Provider, cfg *config.Config, m *metrics.Metrics) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Service{
		llm:     provider,
		cfg:     cfg,
		metrics: m,
		log:     slog.Default().With("component", "examiner"),
	}
}

type questionSet struct {
	Questions []string `json:"questions"`
}

// Part1 generates the introduction questions.
func (s *Service) Part1(ctx context.Context) ([]string, error) {
	n := s.partRange(1)
	var out []string
	err := s.generate(ctx, "part1", prompts.Part1(n), s.cfg.Examiner.QuestionTemperature, func(raw string) error {
		var set questionSet
		if err := decode(raw, &set); err != nil {
			return err
		}
		q, err := cleanList(set.Questions, n.Max)
		if err != nil {
			return fmt.Errorf("questions: %w", err)
		}
		out = q
		return nil
	})
	return out, err
}

// Part2 generates a cue card.
func (s *Service) Part2(ctx context.Context) (*speaking.CueCard, error) {
	n := s.partRange(2)
	var out *speaking.CueCard
	err := s.generate(ctx, "part2", prompts.Part2(n), s.cfg.Examiner.QuestionTemperature, func(raw string) error {
		var card speaking.CueCard
		if err := decode(raw, &card); err != nil {
			return err
		}
		card.Topic = strings.TrimSpace(card.Topic)
		if card.Topic == "" {
			return fmt.Errorf("%w: cue card has no topic", ErrInvalidResponse)
		}
		points, err := cleanList(card.CuePoints, n.Max)
		if err != nil {
			return fmt.Errorf("cue points: %w", err)
		}
		card.CuePoints = points
		out = &card
		return nil
	})
	return out, err
}

// Part3 generates discussion questions that follow from topic.
func (s *Service) Part3(ctx context.Context, topic string) ([]string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrTopicRequired
	}
	n := s.partRange(3)
	var out []string
	err := s.generate(ctx, "part3", prompts.Part3(topic, n), s.cfg.Examiner.QuestionTemperature, func(raw string) error {
		var set questionSet
		if err := decode(raw, &set); err != nil {
			return err
		}
		q, err := cleanList(set.Questions, n.Max)
		if err != nil {
			return fmt.Errorf("questions: %w", err)
		}
		out = q
		return nil
	})
	return out, err
}

// Evaluate scores conversation against the four IELTS criteria.
func (s *Service) Evaluate(ctx context.Context, conversation []speaking.Turn) (*speaking.Report, error) {
	if len(conversation) == 0 {
		return nil, ErrEmptyConversation
	}
	var out *speaking.Report
	err := s.generate(ctx, "evaluate", prompts.Evaluation(conversation), s.cfg.Examiner.EvaluationTemperature, func(raw string) error {
		var report speaking.Report
		if err := decode(raw, &report); err != nil {
			return err
		}
		if err := validateReport(&report); err != nil {
			return err
		}
		out = &report
		return nil
	})
	if err == nil && s.metrics != nil {
		s.metrics.IncrementReportsGenerated()
	}
	return out, err
}

// generate runs prompt through the model until accept succeeds or the
// attempts run out.
func (s *Service) generate(ctx context.Context, op, prompt string, temperature float64, accept func(string) error) error {
	attempts := max(s.cfg.Examiner.MaxAttempts, 1)
	req := llm.UserPrompt(prompt, temperature)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()
		resp, err := s.llm.Complete(ctx, req)
		if err == nil {
			err = accept(resp.Content)
		}
		if s.metrics != nil {
			s.metrics.IncrementAPICall(ctx, op, err == nil, time.Since(start))
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		s.log.Warn("examiner attempt failed", "operation", op, "attempt", attempt, "of", attempts, "error", err)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func (s *Service) partRange(id int) prompts.Range {
	part, ok := s.cfg.GetPart(id)
	if !ok {
		def, _ := config.Default().GetPart(id)
		part = def
	}
	return prompts.Range{Min: part.MinQuestions, Max: part.MaxQuestions}
}
