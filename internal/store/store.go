// Package store provides the keyed run record store. The default
// implementation is an in-memory map with per-run locking; a PostgreSQL
// implementation is available for deployments that need the record to survive
// a restart.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/voice-autopilot/internal/types"
)

// RunNotFoundError indicates the run id is unknown to the store.
type RunNotFoundError struct {
	ID string
}

func (e *RunNotFoundError) Error() string {
	return fmt.Sprintf("run %s not found", e.ID)
}

// InvalidTransitionError indicates a patch tried to move a run's status
// backwards. Status only advances forward through the pipeline or to error.
type InvalidTransitionError struct {
	ID   string
	From types.Status
	To   types.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("run %s: invalid status transition %s -> %s", e.ID, e.From, e.To)
}

// RunPatch is a partial update to a run. Nil fields are left untouched.
type RunPatch struct {
	Transcript *string
	Extracted  *types.StructuredRecord
	Evidence   []types.EvidenceHit
	ReplyDraft *types.ReplyDraft
	Actions    []types.Action
	Results    []types.ActionResult
	Status     *types.Status
	Error      *string
}

// Store maps run identifiers to run records with atomic read-modify-write
// per run id.
type Store interface {
	// Create inserts a fresh run in status created.
	Create(ctx context.Context, id string, mode types.Mode, rawInput string) (*types.Run, error)
	// Patch applies a partial update and returns the updated run.
	Patch(ctx context.Context, id string, patch RunPatch) (*types.Run, error)
	// Get returns the run or a RunNotFoundError.
	Get(ctx context.Context, id string) (*types.Run, error)
}

// apply merges a patch into a run, enforcing forward-only status movement.
// Shared by the in-memory and PostgreSQL stores.
func apply(run *types.Run, patch RunPatch, now time.Time) error {
	if patch.Status != nil && *patch.Status != run.Status {
		if !types.CanAdvance(run.Status, *patch.Status) {
			return &InvalidTransitionError{ID: run.ID, From: run.Status, To: *patch.Status}
		}
		run.Status = *patch.Status
	}
	if patch.Transcript != nil {
		run.Transcript = *patch.Transcript
	}
	if patch.Extracted != nil {
		run.Extracted = patch.Extracted
	}
	if patch.Evidence != nil {
		run.Evidence = patch.Evidence
	}
	if patch.ReplyDraft != nil {
		run.ReplyDraft = patch.ReplyDraft
	}
	if patch.Actions != nil {
		run.Actions = patch.Actions
	}
	if patch.Results != nil {
		run.Results = patch.Results
	}
	if patch.Error != nil {
		run.Error = types.Truncate(*patch.Error, 1000)
	}
	run.UpdatedAt = now
	return nil
}
