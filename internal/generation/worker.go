package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"artificer/internal/backend"
	"artificer/internal/cleaning"
	"artificer/internal/contextual"
	"artificer/internal/events"
	"artificer/internal/logging"
	"artificer/internal/types"
)

// =============================================================================
// GENERATION WORKER
// =============================================================================

// work drives one job to a terminal state: resolve notes, build context,
// forecast quality, climb the model ladder, then clean, validate, and
// persist. Cancellation is checked at every suspension point.
func (o *Orchestrator) work(ctx context.Context, jobID string) {
	job, ok := o.GetJob(jobID)
	if !ok {
		return
	}
	at := job.ArtifactType
	opts := job.Options

	timer := logging.StartTimer(logging.CategoryOrchestrator, "job "+jobID)
	defer timer.Stop()

	if ctx.Err() != nil {
		o.finishCancelled(jobID)
		return
	}
	o.bus.Publish(events.Started(jobID, nil))

	notes, jobErr := o.resolveNotes(ctx, job)
	if jobErr != nil {
		if ctx.Err() != nil {
			o.finishCancelled(jobID)
			return
		}
		o.finishFailed(jobID, jobErr)
		return
	}

	built, jobErr := o.buildContext(ctx, job, notes)
	if jobErr != nil {
		if ctx.Err() != nil {
			o.finishCancelled(jobID)
			return
		}
		o.finishFailed(jobID, jobErr)
		return
	}

	forecast := o.predictor.Predict(at, notes, built)
	o.updateJob(jobID, func(j *types.Job) {
		j.Quality = forecast
		j.Progress = 0.1
		j.Message = "quality_forecast"
	})
	o.bus.Publish(events.QualityForecast(jobID, forecast))
	o.publishProgress(jobID, 0.3, "context_ready")

	out := o.climb(ctx, jobID, at, notes, built.Assembled, opts)
	if out.cancelled {
		o.finishCancelled(jobID)
		return
	}
	if out.accepted == nil {
		o.failLadder(jobID, at, notes, out)
		return
	}
	cand := out.accepted

	// Pool admission and batch emission are side-effects; their failures
	// never demote the job.
	if o.training != nil {
		admitted, reason, err := o.training.AdmitGenerated(at, notes, cand.content, cand.result.Score)
		switch {
		case err != nil:
			logging.OrchestratorWarn("job %s: pool admission failed: %v", jobID, err)
		case admitted:
			if batch, err := o.training.MaybeEmit(at); err != nil {
				logging.OrchestratorWarn("job %s: training batch emission failed: %v", jobID, err)
			} else if batch != nil {
				logging.Orchestrator("training batch %s emitted after job %s", batch.BatchID, jobID)
			}
		default:
			logging.OrchestratorDebug("job %s: output not pooled: %s", jobID, reason)
		}
	}

	htmlContent := ""
	if o.renderHTML(opts) && at.IsMermaid() && o.html != nil {
		if h, err := o.html.FromMermaid(ctx, cand.content, at, notes); err != nil {
			logging.OrchestratorWarn("job %s: html render failed: %v", jobID, err)
		} else {
			htmlContent = h
		}
	}

	if ctx.Err() != nil {
		o.finishCancelled(jobID)
		return
	}
	o.publishProgress(jobID, 0.9, "saving")

	snapshot, _ := o.GetJob(jobID)
	meta := types.VersionMetadata{
		ModelUsed:       cand.model,
		ValidationScore: cand.result.Score,
		IsValid:         cand.result.IsValid,
		Quality:         forecast,
		HTMLContent:     htmlContent,
		SourceNotes:     notes,
		UpdateType:      "generation",
	}
	if snapshot != nil {
		meta.Attempts = snapshot.Attempts
	}
	version, err := o.store.Save(&types.Artifact{
		ArtifactID:   types.MakeArtifactID(job.FolderID, at),
		ArtifactType: at,
		Content:      cand.content,
		FolderID:     job.FolderID,
	}, meta)
	if err != nil {
		o.finishFailed(jobID, &types.JobError{
			Kind:    types.ErrKindPersistence,
			Message: fmt.Sprintf("version write failed: %v", err),
		})
		return
	}

	o.finishCompleted(jobID, version, forecast)
}

// =============================================================================
// INPUT RESOLUTION
// =============================================================================

// resolveNotes returns the effective meeting notes. Folder-only requests
// go through the notes provider; an empty folder is an invalid request.
func (o *Orchestrator) resolveNotes(ctx context.Context, job *types.Job) (string, *types.JobError) {
	notes := strings.TrimSpace(job.Notes)
	if notes != "" || job.FolderID == "" {
		return notes, nil
	}
	if o.notes == nil {
		return "", &types.JobError{
			Kind:       types.ErrKindInvalidRequest,
			Message:    "folder-scoped generation requires a notes provider",
			Suggestion: "pass the notes inline",
		}
	}

	list, err := o.notes.GetNotesByFolder(ctx, job.FolderID)
	if err != nil {
		return "", &types.JobError{
			Kind:    types.ErrKindInvalidRequest,
			Message: fmt.Sprintf("notes lookup for folder %q failed: %v", job.FolderID, err),
		}
	}
	parts := make([]string, 0, len(list))
	for _, n := range list {
		if s := strings.TrimSpace(n.Content); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", &types.JobError{
			Kind:       types.ErrKindInvalidRequest,
			Message:    fmt.Sprintf("folder %q has no notes", job.FolderID),
			Suggestion: "add meeting notes to the folder or pass notes inline",
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// buildContext assembles retrieval context, retrying the provider once.
// A missing provider yields an empty context, not an error.
func (o *Orchestrator) buildContext(ctx context.Context, job *types.Job, notes string) (*contextual.BuiltContext, *types.JobError) {
	if o.contexts == nil {
		return &contextual.BuiltContext{}, nil
	}
	opts := contextual.BuildOptions{
		ContextID:    job.ContextID,
		ArtifactType: job.ArtifactType,
		FolderID:     job.FolderID,
	}

	built, err := o.contexts.BuildContext(ctx, notes, opts)
	if err != nil && ctx.Err() == nil {
		logging.OrchestratorWarn("job %s: context build failed, retrying once: %v", job.ID, err)
		built, err = o.contexts.BuildContext(ctx, notes, opts)
	}
	if err != nil {
		return nil, &types.JobError{
			Kind:    types.ErrKindContextBuildFailed,
			Message: fmt.Sprintf("context build failed: %v", err),
		}
	}
	if built == nil {
		built = &contextual.BuiltContext{}
	}
	return built, nil
}

// =============================================================================
// LADDER CLIMB
// =============================================================================

// candidate is one cleaned, validated output.
type candidate struct {
	content string
	result  *types.ValidationResult
	model   string
}

// climbOutcome is what the ladder hands back to the worker.
type climbOutcome struct {
	accepted  *candidate
	best      *candidate
	lastKind  types.ErrorKind
	lastErr   string
	cancelled bool
}

// climb walks the rungs until a candidate clears the acceptance
// threshold, the attempt budget is spent, or the rungs run out. Every
// model call lands in the job's attempts, successful or not.
func (o *Orchestrator) climb(ctx context.Context, jobID string, at types.ArtifactType, notes, assembled string, opts types.GenerateOptions) climbOutcome {
	var out climbOutcome

	rungs := buildRungs(o.cfg.Models, at, opts.ModelPreference)
	if len(rungs) == 0 {
		out.lastKind = types.ErrKindModelUnavailable
		out.lastErr = fmt.Sprintf("no models configured for %s", at)
		return out
	}

	budget := opts.MaxRetries
	if budget <= 0 {
		budget = o.cfg.Generation.MaxRetries
	}
	if budget <= 0 {
		budget = 3
	}
	acceptance := o.cfg.Generation.AcceptanceThreshold
	if acceptance <= 0 {
		acceptance = 80
	}
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = o.cfg.Models.TemperatureFor(at)
	}
	useValidation := opts.Validation()
	system := SystemPromptFor(at)
	bo := backoff{initial: o.cfg.GetBackoffInitial(), max: o.cfg.GetBackoffMax()}

	var last *candidate
	attempt := 0
	for _, r := range rungs {
		if attempt >= budget {
			logging.Ladder("job %s: attempt budget %d spent with best score %.0f", jobID, budget, bestScore(out.best))
			break
		}
		// A repair rung needs something to repair.
		if r.repair && last == nil {
			continue
		}
		if attempt > 0 {
			if err := sleep(ctx, bo.delayFor(attempt)); err != nil {
				out.cancelled = true
				return out
			}
		}
		if ctx.Err() != nil {
			out.cancelled = true
			return out
		}
		attempt++

		prompt := GenerationPrompt(at, notes, assembled)
		if r.repair {
			findings := last.result.Errors
			if len(findings) == 0 {
				findings = last.result.Warnings
			}
			prompt = RepairPrompt(at, notes, assembled, last.content, findings)
		}

		o.publishProgress(jobID, 0.4, "generating")
		start := time.Now()
		res, err := o.generateOnce(ctx, jobID, r.model, prompt, system, temperature)
		elapsed := time.Since(start).Milliseconds()
		if err == nil && (res == nil || res.Content == "") {
			err = errors.New("backend returned no content")
		}
		if err != nil {
			if ctx.Err() != nil {
				out.cancelled = true
				return out
			}
			kind := classifyModelError(err)
			o.recordAttempt(jobID, types.Attempt{
				Number:     attempt,
				Model:      r.model,
				Repair:     r.repair,
				Errors:     []string{err.Error()},
				ErrorKind:  kind.String(),
				DurationMS: elapsed,
				Timestamp:  time.Now().UTC(),
			})
			out.lastKind = kind
			out.lastErr = fmt.Sprintf("%s: %v", r.model, err)
			logging.Ladder("job %s: rung %s failed (%s), advancing: %v", jobID, r.model, kind, err)
			continue
		}

		cleaned := cleaning.Clean(res.Content, at)
		o.publishProgress(jobID, 0.7, "validating")
		vres := o.validator.Validate(ctx, cleaned, at, notes)
		o.recordAttempt(jobID, types.Attempt{
			Number:          attempt,
			Model:           r.model,
			Repair:          r.repair,
			ValidationScore: vres.Score,
			Errors:          vres.Errors,
			DurationMS:      elapsed,
			Timestamp:       time.Now().UTC(),
		})

		cand := &candidate{content: cleaned, result: vres, model: r.model}
		last = cand
		if out.best == nil || vres.Score > out.best.result.Score {
			out.best = cand
		}

		if !useValidation || vres.Score >= acceptance {
			out.accepted = cand
			logging.Ladder("job %s: %s accepted at score %.0f on attempt %d", jobID, r.model, vres.Score, attempt)
			return out
		}
		logging.Ladder("job %s: %s scored %.0f, below acceptance %.0f", jobID, r.model, vres.Score, acceptance)
	}

	return out
}

// generateOnce runs a single model call under the attempt timeout,
// streaming tokens onto the bus when the backend supports it.
func (o *Orchestrator) generateOnce(ctx context.Context, jobID, model, prompt, system string, temperature float64) (*backend.Result, error) {
	actx, cancel := context.WithTimeout(ctx, o.cfg.GetAttemptTimeout())
	defer cancel()

	if err := o.registry.EnsureModelAvailable(actx, model); err != nil {
		return nil, err
	}

	req := backend.Request{Model: model, Prompt: prompt, System: system, Temperature: temperature}
	if o.registry.CanStream(model) {
		onToken := func(tok string) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			o.bus.Publish(events.Chunk(jobID, tok))
			return nil
		}
		res, err := o.registry.GenerateStream(actx, req, onToken)
		if err == nil || !errors.Is(err, backend.ErrStreamingUnsupported) {
			return res, err
		}
	}
	return o.registry.Generate(actx, req)
}

// =============================================================================
// TERMINAL TRANSITIONS
// =============================================================================

// failLadder turns an exhausted climb into the job's terminal error. A
// best-but-rejected candidate is surfaced with its validator findings and
// captured as a hard-negative failure case.
func (o *Orchestrator) failLadder(jobID string, at types.ArtifactType, notes string, out climbOutcome) {
	if out.best != nil {
		if o.training != nil {
			o.training.CaptureFailure(at, notes, out.best.content, out.best.result.Score, types.ErrKindValidationBelow.String())
		}
		o.finishFailed(jobID, &types.JobError{
			Kind:       types.ErrKindValidationBelow,
			Message:    bestFailureMessage(out.best),
			Suggestion: "raise max_retries or add detail to the notes",
		})
		return
	}

	kind := out.lastKind
	if kind == "" {
		kind = types.ErrKindInternal
	}
	msg := out.lastErr
	if msg == "" {
		msg = "generation produced no candidate"
	}
	jobErr := &types.JobError{Kind: kind, Message: msg}
	if kind == types.ErrKindModelUnavailable {
		jobErr.Suggestion = "no local model responded; configure a cloud backend under models.remotes"
	}
	o.finishFailed(jobID, jobErr)
}

// bestFailureMessage names the best attempt's model, score, and top
// validator errors.
func bestFailureMessage(best *candidate) string {
	msg := fmt.Sprintf("best attempt (%s) scored %.0f", best.model, best.result.Score)
	errs := best.result.Errors
	if len(errs) > 3 {
		errs = errs[:3]
	}
	if len(errs) > 0 {
		msg += ": " + strings.Join(errs, "; ")
	}
	return msg
}

func (o *Orchestrator) finishCompleted(jobID string, version *types.Version, forecast *types.QualityPrediction) {
	now := time.Now().UTC()
	o.updateJob(jobID, func(j *types.Job) {
		j.Status = types.StatusCompleted
		j.Progress = 1
		j.Message = "completed"
		j.ArtifactID = version.ArtifactID
		j.CompletedAt = &now
	})
	o.completed.Add(1)
	o.bus.Publish(events.Complete(jobID, version.ToArtifact(), forecast))
	logging.Orchestrator("job %s completed: %s v%d (model=%s score=%.0f)",
		jobID, version.ArtifactID, version.VersionNumber, version.Metadata.ModelUsed, version.Metadata.ValidationScore)
}

func (o *Orchestrator) finishFailed(jobID string, jobErr *types.JobError) {
	now := time.Now().UTC()
	o.updateJob(jobID, func(j *types.Job) {
		j.Status = types.StatusFailed
		j.Message = string(jobErr.Kind)
		j.Error = jobErr
		j.CompletedAt = &now
	})
	o.failed.Add(1)
	o.bus.Publish(events.Failure(jobID, jobErr))
	logging.OrchestratorError("job %s failed: %v", jobID, jobErr)
}

// finishCancelled records the cancelled terminal without publishing an
// event; releasing the topic closes subscriber channels instead.
func (o *Orchestrator) finishCancelled(jobID string) {
	now := time.Now().UTC()
	transitioned := false
	o.updateJob(jobID, func(j *types.Job) {
		if j.Status.Terminal() {
			return
		}
		j.Status = types.StatusCancelled
		j.Message = "cancelled"
		j.Error = &types.JobError{Kind: types.ErrKindCancelled, Message: "cancelled by caller"}
		j.CompletedAt = &now
		transitioned = true
	})
	if !transitioned {
		return
	}
	o.cancelled.Add(1)
	o.bus.ReleaseTopic(jobID)
	logging.Orchestrator("job %s cancelled", jobID)
}

// =============================================================================
// SMALL HELPERS
// =============================================================================

func (o *Orchestrator) publishProgress(jobID string, progress float64, message string) {
	o.updateJob(jobID, func(j *types.Job) {
		j.Progress = progress
		j.Message = message
	})
	o.bus.Publish(events.Progress(jobID, progress, message))
}

func (o *Orchestrator) recordAttempt(jobID string, a types.Attempt) {
	o.updateJob(jobID, func(j *types.Job) {
		j.Attempts = append(j.Attempts, a)
	})
}

func (o *Orchestrator) renderHTML(opts types.GenerateOptions) bool {
	if opts.RenderHTML != nil {
		return *opts.RenderHTML
	}
	return o.cfg.Generation.RenderHTML
}

func bestScore(c *candidate) float64 {
	if c == nil {
		return 0
	}
	return c.result.Score
}
