package backend

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// ScriptedBackend is the test double for model backends: swappable func
// fields plus a call counter, same shape as our other mock clients.
type ScriptedBackend struct {
	BackendName  string
	GenerateFunc func(ctx context.Context, req Request) (*Result, error)
	StreamFunc   func(ctx context.Context, req Request, onToken func(string) error) (*Result, error)
	HealthyFunc  func(ctx context.Context) error

	calls atomic.Int64
}

func (s *ScriptedBackend) Name() string {
	if s.BackendName != "" {
		return s.BackendName
	}
	return "scripted"
}

// Calls reports how many Generate/GenerateStream invocations happened.
func (s *ScriptedBackend) Calls() int64 { return s.calls.Load() }

func (s *ScriptedBackend) Generate(ctx context.Context, req Request) (*Result, error) {
	s.calls.Add(1)
	if s.GenerateFunc != nil {
		return s.GenerateFunc(ctx, req)
	}
	return nil, fmt.Errorf("scripted backend: no GenerateFunc set")
}

func (s *ScriptedBackend) GenerateStream(ctx context.Context, req Request, onToken func(string) error) (*Result, error) {
	s.calls.Add(1)
	if s.StreamFunc != nil {
		return s.StreamFunc(ctx, req, onToken)
	}
	if s.GenerateFunc != nil {
		res, err := s.GenerateFunc(ctx, req)
		if err != nil {
			return nil, err
		}
		for _, w := range strings.SplitAfter(res.Content, " ") {
			if err := onToken(w); err != nil {
				return nil, err
			}
		}
		return res, nil
	}
	return nil, fmt.Errorf("scripted backend: no StreamFunc set")
}

func (s *ScriptedBackend) Healthy(ctx context.Context) error {
	if s.HealthyFunc != nil {
		return s.HealthyFunc(ctx)
	}
	return nil
}

// Canned returns a ScriptedBackend that always succeeds with the given
// content. Convenient for single-response tests.
func Canned(content string) *ScriptedBackend {
	return &ScriptedBackend{
		GenerateFunc: func(ctx context.Context, req Request) (*Result, error) {
			return &Result{Content: content, Model: req.Model, Tokens: len(strings.Fields(content)), Latency: time.Millisecond}, nil
		},
	}
}

// Sequenced returns a ScriptedBackend that replays responses in order and
// repeats the last one when exhausted. Used by repair-loop tests.
func Sequenced(contents ...string) *ScriptedBackend {
	var idx atomic.Int64
	return &ScriptedBackend{
		GenerateFunc: func(ctx context.Context, req Request) (*Result, error) {
			i := idx.Add(1) - 1
			if int(i) >= len(contents) {
				i = int64(len(contents) - 1)
			}
			c := contents[i]
			return &Result{Content: c, Model: req.Model, Tokens: len(strings.Fields(c)), Latency: time.Millisecond}, nil
		},
	}
}
