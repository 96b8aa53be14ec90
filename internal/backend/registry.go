package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"artificer/internal/logging"
)

// ModelInfo is the external view of one registered model.
type ModelInfo struct {
	ID           string `json:"id"`
	Backend      string `json:"backend"`
	Streaming    bool   `json:"streaming"`
	Calls        int64  `json:"calls"`
	Failures     int64  `json:"failures"`
	AvgLatencyMS int64  `json:"avg_latency_ms"`
}

type modelStats struct {
	calls          atomic.Int64
	failures       atomic.Int64
	totalLatencyMS atomic.Int64
}

// Registry routes model ids to backends and keeps per-model call counters.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	stats    map[string]*modelStats
}

func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
		stats:    make(map[string]*modelStats),
	}
}

// Register binds a model id to a backend. Later registrations win, which
// lets tests shadow the default wiring.
func (r *Registry) Register(modelID string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[modelID] = b
	if _, ok := r.stats[modelID]; !ok {
		r.stats[modelID] = &modelStats{}
	}
	logging.Backend("registered model %q on backend %q", modelID, b.Name())
}

// Resolve returns the backend serving a model id.
func (r *Registry) Resolve(modelID string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[modelID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrModelUnknown, modelID)
	}
	return b, nil
}

// CanStream reports whether a model's backend implements Streamer.
func (r *Registry) CanStream(modelID string) bool {
	b, err := r.Resolve(modelID)
	if err != nil {
		return false
	}
	_, ok := b.(Streamer)
	return ok
}

// EnsureModelAvailable resolves the model and, when the backend exposes a
// health probe, runs it.
func (r *Registry) EnsureModelAvailable(ctx context.Context, modelID string) error {
	b, err := r.Resolve(modelID)
	if err != nil {
		return err
	}
	if hc, ok := b.(HealthChecker); ok {
		if err := hc.Healthy(ctx); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrModelUnavailable, modelID, err)
		}
	}
	return nil
}

// Generate routes one call and records its outcome.
func (r *Registry) Generate(ctx context.Context, req Request) (*Result, error) {
	b, err := r.Resolve(req.Model)
	if err != nil {
		return nil, err
	}
	timer := logging.StartTimer(logging.CategoryBackend, "generate "+req.Model)
	res, err := b.Generate(ctx, req)
	elapsed := timer.Stop()
	r.record(req.Model, elapsed.Milliseconds(), err)
	return res, err
}

// GenerateStream routes one streaming call. Backends without the streaming
// capability return ErrStreamingUnsupported; callers fall back to Generate.
func (r *Registry) GenerateStream(ctx context.Context, req Request, onToken func(string) error) (*Result, error) {
	b, err := r.Resolve(req.Model)
	if err != nil {
		return nil, err
	}
	s, ok := b.(Streamer)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStreamingUnsupported, req.Model)
	}
	timer := logging.StartTimer(logging.CategoryBackend, "stream "+req.Model)
	res, err := s.GenerateStream(ctx, req, onToken)
	elapsed := timer.Stop()
	r.record(req.Model, elapsed.Milliseconds(), err)
	return res, err
}

func (r *Registry) record(modelID string, latencyMS int64, err error) {
	r.mu.RLock()
	st := r.stats[modelID]
	r.mu.RUnlock()
	if st == nil {
		return
	}
	st.calls.Add(1)
	st.totalLatencyMS.Add(latencyMS)
	if err != nil {
		st.failures.Add(1)
		logging.BackendWarn("model %q call failed: %v", modelID, err)
	}
}

// ListModels returns the registered models sorted by id.
func (r *Registry) ListModels() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ModelInfo, 0, len(r.backends))
	for id, b := range r.backends {
		info := ModelInfo{ID: id, Backend: b.Name()}
		if _, ok := b.(Streamer); ok {
			info.Streaming = true
		}
		if st := r.stats[id]; st != nil {
			info.Calls = st.calls.Load()
			info.Failures = st.failures.Load()
			if info.Calls > 0 {
				info.AvgLatencyMS = st.totalLatencyMS.Load() / info.Calls
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
