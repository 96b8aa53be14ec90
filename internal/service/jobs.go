package service

import (
	"context"
	"errors"
	"fmt"

	"artificer/internal/generation"
	"artificer/internal/types"
)

// =============================================================================
// GENERATION & JOBS
// =============================================================================

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrNotCancellable = errors.New("job already terminal")
)

// GenerateResponse is the outcome of a Generate call: a completed
// artifact when the job finished inside the synchronous window, the
// terminal error when it failed inside it, or just the job id when it
// is still running.
type GenerateResponse struct {
	JobID    string          `json:"job_id"`
	Status   types.JobStatus `json:"status"`
	Artifact *types.Artifact `json:"artifact,omitempty"`
	Error    *types.JobError `json:"error,omitempty"`
}

// Generate submits a job and waits the configured sync window for it to
// finish. Quick jobs come back completed with the artifact attached;
// slow ones come back in_progress and the caller follows up with GetJob
// or SubscribeJob. A ctx error aborts the wait, not the job.
func (s *Service) Generate(ctx context.Context, req types.GenerateRequest) (*GenerateResponse, error) {
	jobID, err := s.orch.Submit(req)
	if err != nil {
		return nil, err
	}
	job, err := s.orch.Await(ctx, jobID, s.cfg.GetSyncWait())
	if err != nil {
		return nil, err
	}
	return s.jobResponse(job), nil
}

// GenerateStream submits a job and returns its live event stream. The
// release func detaches the subscriber; the channel closes after the
// terminal event.
func (s *Service) GenerateStream(req types.GenerateRequest) (string, <-chan *types.Event, func(), error) {
	return s.orch.Stream(req)
}

// BulkResult pairs one bulk slot with its outcome. Err carries a
// submission failure; Response everything that got as far as a job.
type BulkResult struct {
	Index    int               `json:"index"`
	Response *GenerateResponse `json:"response,omitempty"`
	Err      string            `json:"error,omitempty"`
}

// BulkGenerate runs requests in order, each with the full synchronous
// window. One bad request does not abort the rest.
func (s *Service) BulkGenerate(ctx context.Context, reqs []types.GenerateRequest) []BulkResult {
	out := make([]BulkResult, 0, len(reqs))
	for i, req := range reqs {
		res := BulkResult{Index: i}
		if err := ctx.Err(); err != nil {
			res.Err = err.Error()
			out = append(out, res)
			continue
		}
		resp, err := s.Generate(ctx, req)
		if err != nil {
			res.Err = err.Error()
		} else {
			res.Response = resp
		}
		out = append(out, res)
	}
	return out
}

// GetJob returns a snapshot of one job.
func (s *Service) GetJob(jobID string) (*types.Job, error) {
	job, ok := s.orch.GetJob(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, nil
}

// ListJobs returns recent jobs, newest first.
func (s *Service) ListJobs(limit int) []*types.Job {
	return s.orch.ListJobs(limit)
}

// CancelJob requests cooperative cancellation of a running job.
func (s *Service) CancelJob(jobID string) error {
	switch s.orch.Cancel(jobID) {
	case generation.CancelOK:
		return nil
	case generation.CancelNotFound:
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	default:
		return fmt.Errorf("%w: %s", ErrNotCancellable, jobID)
	}
}

// SubscribeJob attaches to a job's event stream: recorded history first,
// then live events until the terminal. Unknown job ids are rejected
// rather than subscribed to an empty topic.
func (s *Service) SubscribeJob(jobID string) (<-chan *types.Event, func(), error) {
	if _, ok := s.orch.GetJob(jobID); !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	ch, release := s.bus.Subscribe(jobID)
	return ch, release, nil
}

// jobResponse projects a job snapshot into the Generate response shape,
// attaching the current version's artifact for completed jobs.
func (s *Service) jobResponse(job *types.Job) *GenerateResponse {
	resp := &GenerateResponse{JobID: job.ID, Status: job.Status, Error: job.Error}
	if job.Status == types.StatusCompleted && job.ArtifactID != "" {
		if cur, err := s.store.Current(job.ArtifactID); err == nil {
			resp.Artifact = cur.ToArtifact()
		}
	}
	return resp
}
