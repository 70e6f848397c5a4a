// Package mock provides a deterministic Adapter double used across
// orchestrator/LLM-service tests. The teacher has no such double (it only
// ships a real Gemini adapter); this is written fresh in the teacher's
// plain-struct-with-constructor style.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meridian-ai/agentcore/pkg/domain"
	"github.com/meridian-ai/agentcore/pkg/providers"
)

// Transform produces the assistant content for a request's last user turn.
type Transform func(input string) string

// Adapter is a configurable test double implementing providers.Adapter.
type Adapter struct {
	name      string
	transform Transform

	mu          sync.Mutex
	failNTimes  int
	calls       int
	statusCode  int
	delay       time.Duration
	alwaysFail  bool
}

var _ providers.Adapter = (*Adapter)(nil)

// New creates an adapter that echoes the last user message unchanged.
func New(name string) *Adapter {
	return &Adapter{name: name, transform: func(s string) string { return s }}
}

// WithTransform sets the function applied to the last user turn's content.
func (a *Adapter) WithTransform(t Transform) *Adapter {
	a.transform = t
	return a
}

// WithFailures makes the adapter fail for the first n calls with an error
// classified from statusCode (500 when statusCode is 0), then succeed (grounds spec.md scenario S3's breaker-opens test when
// n is large, and the bounded-retry tests when n is small).
func (a *Adapter) WithFailures(n int, statusCode int) *Adapter {
	a.failNTimes = n
	a.statusCode = statusCode
	return a
}

// WithAlwaysFail makes the adapter fail every call.
func (a *Adapter) WithAlwaysFail(statusCode int) *Adapter {
	a.alwaysFail = true
	a.statusCode = statusCode
	return a
}

// WithDelay adds an artificial per-call delay, for competitive-strategy and
// cancellation tests.
func (a *Adapter) WithDelay(d time.Duration) *Adapter {
	a.delay = d
	return a
}

// CallCount reports how many times Complete was invoked.
func (a *Adapter) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Complete(ctx context.Context, req providers.Request) (*providers.Response, error) {
	a.mu.Lock()
	a.calls++
	call := a.calls
	delay := a.delay
	a.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	a.mu.Lock()
	shouldFail := a.alwaysFail || call <= a.failNTimes
	code := a.statusCode
	a.mu.Unlock()

	if shouldFail {
		if code == 0 {
			code = 500
		}
		return nil, providers.ClassifyHTTPError(a.name, code, fmt.Sprintf("mock failure on call %d", call))
	}

	input := lastUserContent(req.Messages)
	return &providers.Response{
		Content: a.transform(input),
		Usage:   domain.Usage{Prompt: len(input), Completion: len(input), Total: 2 * len(input)},
	}, nil
}

func (a *Adapter) CompleteStreaming(ctx context.Context, req providers.Request) (<-chan providers.StreamDelta, error) {
	resp, err := a.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan providers.StreamDelta, 2)
	ch <- providers.StreamDelta{Text: resp.Content}
	ch <- providers.StreamDelta{Done: true}
	close(ch)
	return ch, nil
}

func lastUserContent(turns []domain.ChatTurn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == domain.RoleUser {
			return turns[i].Content
		}
	}
	return ""
}

// ValidationFailure returns an adapter that always fails with a terminal
// validation error, for tests exercising the non-retry path.
func ValidationFailure(name string) *Adapter {
	a := New(name)
	a.alwaysFail = true
	a.statusCode = 400
	return a
}
