// Package backend defines the model-backend contract the orchestrator
// drives. Real clients live outside this repo; the package ships the
// interface, a registry that routes model ids, and deterministic local
// implementations for offline runs and tests.
package backend

import (
	"context"
	"errors"
	"time"
)

var (
	ErrModelUnknown         = errors.New("model not registered")
	ErrModelUnavailable     = errors.New("model unavailable")
	ErrStreamingUnsupported = errors.New("backend does not support streaming")
)

// Request is one generation call.
type Request struct {
	Model       string
	Prompt      string
	System      string
	Temperature float64
}

// Result is a successful generation.
type Result struct {
	Content string
	Model   string
	Tokens  int
	Latency time.Duration
}

// Backend produces content for the model ids it serves.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Streamer is the optional streaming capability. onToken is called for
// every token in order; returning an error aborts the stream (used for
// cancellation).
type Streamer interface {
	GenerateStream(ctx context.Context, req Request, onToken func(token string) error) (*Result, error)
}

// HealthChecker is the optional liveness capability used by
// EnsureModelAvailable.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}
