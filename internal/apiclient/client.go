// Package apiclient implements the speaking-test collaborators on top of the
// REST API, for drivers that run away from the examiner.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ielts-speaking/internal/speaking"
)

// ErrStatus matches every StatusError.
var ErrStatus = errors.New("unexpected response status")

// StatusError is a non-2xx response. Message is the server's {message} body
// when it sent one.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("status %d", e.Code)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// Client calls the speaking endpoints of the API at baseURL.
type Client struct {
	baseURL string
	http    *http.Client
}

var (
	_ speaking.QuestionProvider = (*Client)(nil)
	_ speaking.Evaluator        = (*Client)(nil)
)

type Option func(*Client)

// WithHTTPClient replaces the default client, which times out after two
// minutes.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type questionsBody struct {
	Questions []string `json:"questions"`
}

func (c *Client) Part1(ctx context.Context) ([]string, error) {
	var out questionsBody
	if err := c.do(ctx, http.MethodGet, "/api/speaking/part1", nil, &out); err != nil {
		return nil, fmt.Errorf("part 1: %w", err)
	}
	return out.Questions, nil
}

func (c *Client) Part2(ctx context.Context) (*speaking.CueCard, error) {
	var card speaking.CueCard
	if err := c.do(ctx, http.MethodGet, "/api/speaking/part2", nil, &card); err != nil {
		return nil, fmt.Errorf("part 2: %w", err)
	}
	return &card, nil
}

func (c *Client) Part3(ctx context.Context, topic string) ([]string, error) {
	var out questionsBody
	body := map[string]string{"part2_topic": topic}
	if err := c.do(ctx, http.MethodPost, "/api/speaking/part3", body, &out); err != nil {
		return nil, fmt.Errorf("part 3: %w", err)
	}
	return out.Questions, nil
}

// Evaluate submits the conversation for scoring.
func (c *Client) Evaluate(ctx context.Context, conversation []speaking.Turn) (*speaking.Report, error) {
	var report speaking.Report
	body := map[string][]speaking.Turn{"conversation": conversation}
	if err := c.do(ctx, http.MethodPost, "/api/evaluate/speaking", body, &report); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return &report, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Code: resp.StatusCode}
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &msg) == nil {
			se.Message = msg.Message
		}
		return se
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
