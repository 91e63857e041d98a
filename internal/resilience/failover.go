package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ielts-speaking/internal/llm"
)

// ErrAllFailed wraps the last error once every backend has been tried.
var ErrAllFailed = errors.New("all providers failed")

type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group tries its members in registration order, skipping those whose
// breaker is open.
type Group[T any] struct {
	cfg     BreakerConfig
	members []member[T]
}

// NewGroup creates a Group whose first member is primary.
func NewGroup[T any](name string, primary T, cfg BreakerConfig) *Group[T] {
	g := &Group[T]{cfg: cfg}
	g.Add(name, primary)
	return g
}

// Add registers a fallback. Not safe to call concurrently with Do.
func (g *Group[T]) Add(name string, value T) {
	cfg := g.cfg
	cfg.Name = name
	g.members = append(g.members, member[T]{name: name, value: value, breaker: NewBreaker(cfg)})
}

// Names lists the members in the order they are tried.
func (g *Group[T]) Names() []string {
	names := make([]string, len(g.members))
	for i, m := range g.members {
		names[i] = m.name
	}
	return names
}

// States reports the breaker state of each member by name.
func (g *Group[T]) States() map[string]State {
	states := make(map[string]State, len(g.members))
	for _, m := range g.members {
		states[m.name] = m.breaker.State()
	}
	return states
}

// Do returns the first successful result of fn across the members.
func Do[T, R any](ctx context.Context, g *Group[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range g.members {
		m := &g.members[i]
		var result R
		err := m.breaker.Execute(func() error {
			var err error
			result, err = fn(m.value)
			return err
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider, circuit open", "provider", m.name)
			continue
		}
		slog.Warn("provider failed, trying next", "provider", m.name, "error", err)
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// LLMFallback is an llm.Provider that fails over between backends.
type LLMFallback struct {
	group *Group[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback wraps primary; register more backends with AddFallback.
func NewLLMFallback(name string, primary llm.Provider, cfg BreakerConfig) *LLMFallback {
	return &LLMFallback{group: NewGroup(name, primary, cfg)}
}

// AddFallback registers another backend.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) {
	f.group.Add(name, p)
}

// Providers lists backend names in failover order.
func (f *LLMFallback) Providers() []string { return f.group.Names() }

// Ready reports whether at least one backend will accept a request.
func (f *LLMFallback) Ready() error {
	states := f.group.States()
	for _, st := range states {
		if st != StateOpen {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", ErrCircuitOpen, states)
}

// Complete implements llm.Provider.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
