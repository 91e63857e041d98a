// Package mock provides a scripted llm.Provider for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"ielts-speaking/internal/llm"
)

// ErrExhausted is returned once every scripted response has been used.
var ErrExhausted = errors.New("mock: no responses left")

// Response is one scripted reply.
type Response struct {
	Content string
	Err     error
}

// Provider replays Responses in order and records every request.
type Provider struct {
	mu        sync.Mutex
	responses []Response
	requests  []llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

// New returns a Provider that answers with responses in order.
func New(responses ...Response) *Provider {
	return &Provider{responses: responses}
}

// Reply is shorthand for a successful response.
func Reply(content string) Response { return Response{Content: content} }

// Fail is shorthand for a failed response.
func Fail(err error) Response { return Response{Err: err} }

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(p.responses) == 0 {
		return nil, ErrExhausted
	}
	r := p.responses[0]
	p.responses = p.responses[1:]
	if r.Err != nil {
		return nil, r.Err
	}
	return &llm.CompletionResponse{Content: r.Content}, nil
}

// Requests returns a copy of every request received so far.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.requests...)
}
