package generation

import (
	"context"
	"errors"
	"time"

	"artificer/internal/backend"
	"artificer/internal/config"
	"artificer/internal/types"
)

// =============================================================================
// RETRY / FALLBACK LADDER
// =============================================================================

// rung is one step of the ladder. A repair rung re-prompts the same model
// with the previous candidate and the validator's errors.
type rung struct {
	model  string
	repair bool
	remote bool
}

// buildRungs lays out the ladder for a type: the preferred local model
// plus a repair pass, each fallback model plus a repair pass, then the
// remote backends without one. An explicit model preference replaces the
// configured preferred model.
func buildRungs(models config.ModelsConfig, at types.ArtifactType, preference string) []rung {
	preferred := models.PreferredFor(at)
	if preference != "" {
		preferred = preference
	}

	var rungs []rung
	if preferred != "" {
		rungs = append(rungs, rung{model: preferred}, rung{model: preferred, repair: true})
	}
	for _, fb := range models.Fallbacks {
		if fb == "" || fb == preferred {
			continue
		}
		rungs = append(rungs, rung{model: fb}, rung{model: fb, repair: true})
	}
	for _, rm := range models.Remotes {
		if rm == "" {
			continue
		}
		rungs = append(rungs, rung{model: rm, remote: true})
	}
	return rungs
}

// =============================================================================
// BACKOFF
// =============================================================================

// backoff produces the delay before a given retry: the initial delay
// doubled per attempt, capped at max. Attempt 1 is the first retry.
type backoff struct {
	initial time.Duration
	max     time.Duration
}

func (b backoff) delayFor(attempt int) time.Duration {
	if attempt < 1 || b.initial <= 0 {
		return 0
	}
	d := b.initial << (attempt - 1)
	if b.max > 0 && (d <= 0 || d > b.max) {
		d = b.max
	}
	return d
}

// sleep waits out the delay unless the context ends first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// classifyModelError maps a backend failure onto the job error taxonomy.
// Parent-context cancellation is the caller's concern, not a model error.
func classifyModelError(err error) types.ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.ErrKindModelTimeout
	case errors.Is(err, backend.ErrModelUnknown), errors.Is(err, backend.ErrModelUnavailable):
		return types.ErrKindModelUnavailable
	default:
		return types.ErrKindModelError
	}
}
