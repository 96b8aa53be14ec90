// Package generation drives artifact jobs from submission to a terminal
// state: notes resolution, context assembly, the retry/fallback model
// ladder, cleaning, validation, versioning, and event emission.
package generation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"artificer/internal/backend"
	"artificer/internal/config"
	"artificer/internal/contextual"
	"artificer/internal/events"
	"artificer/internal/logging"
	"artificer/internal/quality"
	"artificer/internal/training"
	"artificer/internal/types"
	"artificer/internal/validation"
	"artificer/internal/versions"
)

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Config wires the orchestrator's collaborators. Registry, Bus, Versions,
// and Validator are required. Notes, Contexts, HTML, and Training are
// optional; jobs that need a missing collaborator degrade per operation
// rather than failing construction.
type Config struct {
	Cfg       *config.Config
	Registry  *backend.Registry
	Bus       *events.Bus
	Versions  *versions.Store
	Validator *validation.Validator
	Predictor *quality.Predictor
	Notes     contextual.NotesProvider
	Contexts  contextual.ContextProvider
	HTML      contextual.HTMLGenerator
	Training  *training.Pipeline
}

// Orchestrator owns the job table and the generation workers. One
// goroutine per job; a slot channel bounds how many generate at once.
type Orchestrator struct {
	cfg       *config.Config
	registry  *backend.Registry
	bus       *events.Bus
	store     *versions.Store
	validator *validation.Validator
	predictor *quality.Predictor
	notes     contextual.NotesProvider
	contexts  contextual.ContextProvider
	html      contextual.HTMLGenerator
	training  *training.Pipeline

	slots chan struct{}

	mu   sync.RWMutex
	jobs map[string]*jobEntry

	wg          sync.WaitGroup
	stopCh      chan struct{}
	janitorDone chan struct{}
	closed      atomic.Bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
	evicted   atomic.Int64
}

// jobEntry pairs a job with its worker's cancel handle. done closes when
// the worker goroutine exits, terminal state already recorded.
type jobEntry struct {
	job    *types.Job
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an orchestrator and starts its janitor. The caller owns the
// bus and the version store; Close does not shut them down.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Cfg == nil:
		return nil, errors.New("generation: config is required")
	case cfg.Registry == nil:
		return nil, errors.New("generation: backend registry is required")
	case cfg.Bus == nil:
		return nil, errors.New("generation: event bus is required")
	case cfg.Versions == nil:
		return nil, errors.New("generation: version store is required")
	case cfg.Validator == nil:
		return nil, errors.New("generation: validator is required")
	}
	if cfg.Predictor == nil {
		cfg.Predictor = quality.NewPredictor()
	}

	concurrent := cfg.Cfg.Generation.MaxConcurrentJobs
	if concurrent <= 0 {
		concurrent = 4
	}

	o := &Orchestrator{
		cfg:         cfg.Cfg,
		registry:    cfg.Registry,
		bus:         cfg.Bus,
		store:       cfg.Versions,
		validator:   cfg.Validator,
		predictor:   cfg.Predictor,
		notes:       cfg.Notes,
		contexts:    cfg.Contexts,
		html:        cfg.HTML,
		training:    cfg.Training,
		slots:       make(chan struct{}, concurrent),
		jobs:        make(map[string]*jobEntry),
		stopCh:      make(chan struct{}),
		janitorDone: make(chan struct{}),
	}
	go o.janitor()
	logging.Orchestrator("orchestrator up (max_concurrent=%d max_jobs=%d)", concurrent, cfg.Cfg.Generation.MaxJobs)
	return o, nil
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submit validates a request, inserts the job, and spawns its worker.
// Non-blocking; progress flows through the event bus and GetJob.
func (o *Orchestrator) Submit(req types.GenerateRequest) (string, error) {
	if o.closed.Load() {
		return "", errors.New("orchestrator is closed")
	}
	if strings.TrimSpace(string(req.ArtifactType)) == "" {
		return "", &types.JobError{Kind: types.ErrKindInvalidRequest, Message: "artifact_type is required"}
	}
	if strings.TrimSpace(req.Notes) == "" && req.FolderID == "" && req.ContextID == "" {
		return "", &types.JobError{
			Kind:       types.ErrKindInvalidRequest,
			Message:    "request needs notes, a folder_id, or a context_id",
			Suggestion: "supply meeting notes inline or point at a folder",
		}
	}

	job := &types.Job{
		ID:           uuid.NewString(),
		ArtifactType: req.ArtifactType.Normalize(),
		FolderID:     req.FolderID,
		Notes:        req.Notes,
		ContextID:    req.ContextID,
		Options:      req.Options,
		Status:       types.StatusInProgress,
		CreatedAt:    time.Now().UTC(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := &jobEntry{job: job, cancel: cancel, done: make(chan struct{})}

	o.mu.Lock()
	if max := o.cfg.Generation.MaxJobs; max > 0 && len(o.jobs) >= max {
		if !o.evictOldestTerminalLocked() {
			o.mu.Unlock()
			cancel()
			return "", fmt.Errorf("job table full (%d jobs, none terminal)", max)
		}
	}
	o.jobs[job.ID] = entry
	o.mu.Unlock()

	o.submitted.Add(1)
	logging.Orchestrator("job %s submitted (%s folder=%q context=%q)",
		job.ID, job.ArtifactType, job.FolderID, job.ContextID)

	o.wg.Add(1)
	go o.run(ctx, entry)
	return job.ID, nil
}

// Stream submits and subscribes in one step. The channel replays any
// events published before the subscription landed, so the caller misses
// nothing; it closes after the terminal event. The returned func
// unsubscribes early.
func (o *Orchestrator) Stream(req types.GenerateRequest) (string, <-chan *types.Event, func(), error) {
	jobID, err := o.Submit(req)
	if err != nil {
		return "", nil, nil, err
	}
	ch, unsub := o.bus.Subscribe(jobID)
	return jobID, ch, unsub, nil
}

// run holds the job's slot for the duration of its worker. Jobs
// cancelled while queued go terminal without consuming a slot.
func (o *Orchestrator) run(ctx context.Context, entry *jobEntry) {
	defer o.wg.Done()
	defer close(entry.done)
	defer entry.cancel()

	select {
	case o.slots <- struct{}{}:
		defer func() { <-o.slots }()
	case <-ctx.Done():
		o.finishCancelled(entry.job.ID)
		return
	}

	o.work(ctx, entry.job.ID)
}

// =============================================================================
// QUERIES
// =============================================================================

// GetJob returns a snapshot of one job.
func (o *Orchestrator) GetJob(jobID string) (*types.Job, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	entry, ok := o.jobs[jobID]
	if !ok {
		return nil, false
	}
	return entry.job.Clone(), true
}

// ListJobs returns snapshots of the newest jobs, most recent first.
// limit <= 0 means all.
func (o *Orchestrator) ListJobs(limit int) []*types.Job {
	o.mu.RLock()
	out := make([]*types.Job, 0, len(o.jobs))
	for _, entry := range o.jobs {
		out = append(out, entry.job.Clone())
	}
	o.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Await blocks until the job goes terminal, maxWait elapses, or ctx ends.
// On timeout it returns the current snapshot, still in_progress, so the
// caller can switch to the event stream.
func (o *Orchestrator) Await(ctx context.Context, jobID string, maxWait time.Duration) (*types.Job, error) {
	o.mu.RLock()
	entry, ok := o.jobs[jobID]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown job %q", jobID)
	}

	if maxWait > 0 {
		timer := time.NewTimer(maxWait)
		defer timer.Stop()
		select {
		case <-entry.done:
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	job, ok := o.GetJob(jobID)
	if !ok {
		return nil, fmt.Errorf("unknown job %q", jobID)
	}
	return job, nil
}

// =============================================================================
// CANCELLATION
// =============================================================================

// CancelOutcome is the tri-state result of a cancellation request.
type CancelOutcome string

const (
	CancelOK             CancelOutcome = "ok"
	CancelNotFound       CancelOutcome = "not_found"
	CancelNotCancellable CancelOutcome = "not_cancellable"
)

// Cancel requests cancellation. Best-effort: the worker stops at its
// next suspension point. Terminal jobs are not cancellable.
func (o *Orchestrator) Cancel(jobID string) CancelOutcome {
	o.mu.Lock()
	entry, ok := o.jobs[jobID]
	if !ok {
		o.mu.Unlock()
		return CancelNotFound
	}
	if entry.job.Status.Terminal() {
		o.mu.Unlock()
		return CancelNotCancellable
	}
	cancel := entry.cancel
	o.mu.Unlock()

	cancel()
	logging.Orchestrator("job %s cancellation requested", jobID)
	return CancelOK
}

// =============================================================================
// JOB TABLE MAINTENANCE
// =============================================================================

// updateJob applies a mutation under the table lock. Workers funnel every
// job write through here so reader snapshots never tear.
func (o *Orchestrator) updateJob(jobID string, fn func(*types.Job)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if entry, ok := o.jobs[jobID]; ok {
		fn(entry.job)
	}
}

// evictOldestTerminalLocked frees one table slot. Returns false when
// every job is still running.
func (o *Orchestrator) evictOldestTerminalLocked() bool {
	var oldestID string
	var oldestAt time.Time
	for id, entry := range o.jobs {
		if !entry.job.Status.Terminal() || entry.job.CompletedAt == nil {
			continue
		}
		if oldestID == "" || entry.job.CompletedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = *entry.job.CompletedAt
		}
	}
	if oldestID == "" {
		return false
	}
	delete(o.jobs, oldestID)
	o.bus.ReleaseTopic(oldestID)
	o.evicted.Add(1)
	logging.OrchestratorDebug("evicted job %s to admit a new submission", oldestID)
	return true
}

func (o *Orchestrator) janitor() {
	defer close(o.janitorDone)
	ticker := time.NewTicker(o.cfg.GetJanitorInterval())
	defer ticker.Stop()
	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.sweep(time.Now())
		}
	}
}

// sweep drops terminal jobs older than the retention window and releases
// their event topics.
func (o *Orchestrator) sweep(now time.Time) {
	cutoff := now.Add(-o.cfg.GetJobRetention())

	o.mu.Lock()
	var expired []string
	for id, entry := range o.jobs {
		if entry.job.Status.Terminal() && entry.job.CompletedAt != nil && entry.job.CompletedAt.Before(cutoff) {
			delete(o.jobs, id)
			expired = append(expired, id)
		}
	}
	o.mu.Unlock()

	for _, id := range expired {
		o.bus.ReleaseTopic(id)
		o.evicted.Add(1)
	}
	if len(expired) > 0 {
		logging.Orchestrator("janitor evicted %d jobs past retention", len(expired))
	}
}

// =============================================================================
// LIFECYCLE & STATS
// =============================================================================

// Close cancels every live job and waits for workers up to ctx's
// deadline. Safe to call twice. The bus stays open; the owner closes it
// after draining.
func (o *Orchestrator) Close(ctx context.Context) error {
	if !o.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(o.stopCh)

	o.mu.RLock()
	for _, entry := range o.jobs {
		entry.cancel()
	}
	o.mu.RUnlock()

	workersDone := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(workersDone)
	}()
	select {
	case <-workersDone:
	case <-ctx.Done():
		return fmt.Errorf("close: workers still running: %w", ctx.Err())
	}
	<-o.janitorDone
	logging.Orchestrator("orchestrator closed (completed=%d failed=%d cancelled=%d)",
		o.completed.Load(), o.failed.Load(), o.cancelled.Load())
	return nil
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
	Evicted   int64 `json:"evicted"`
	Active    int   `json:"active"`
	TableSize int   `json:"table_size"`
}

func (o *Orchestrator) Stats() Stats {
	o.mu.RLock()
	table := len(o.jobs)
	active := 0
	for _, entry := range o.jobs {
		if !entry.job.Status.Terminal() {
			active++
		}
	}
	o.mu.RUnlock()

	return Stats{
		Submitted: o.submitted.Load(),
		Completed: o.completed.Load(),
		Failed:    o.failed.Load(),
		Cancelled: o.cancelled.Load(),
		Evicted:   o.evicted.Load(),
		Active:    active,
		TableSize: table,
	}
}
