package task

import (
	"time"

	"github.com/google/uuid"
	"github.com/reelforge/server/internal/model"
	apperrors "github.com/reelforge/server/internal/shared/errors"
)

// Status is the lifecycle state of a generation task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Terminal reports whether the status accepts no further work.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// canTransition encodes the legal status moves. Terminal states only leave
// through an explicit redispatch of a failed task.
func (s Status) canTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusGenerating
	case StatusGenerating:
		return to == StatusSuccess || to == StatusError
	case StatusError:
		return to == StatusPending
	}
	return false
}

// Task is one tracked generation job. The registry owns the canonical copy;
// everything handed out is a snapshot.
type Task struct {
	ID       uuid.UUID               `json:"id"`
	Request  model.GenerationRequest `json:"request"`
	Status   Status                  `json:"status"`
	Progress string                  `json:"progress,omitempty"`
	Result   *model.GenerationResult `json:"result,omitempty"`
	Error    string                  `json:"error,omitempty"`

	// Guidance carries operator advice for unrecoverable failures.
	Guidance string `json:"guidance,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// transition moves the task to a new status, rejecting illegal moves.
func (t *Task) transition(to Status) error {
	if !t.Status.canTransition(to) {
		return apperrors.Conflict("task " + t.ID.String() + " cannot move from " + string(t.Status) + " to " + string(to))
	}
	t.Status = to
	return nil
}

// clone returns a snapshot safe to hand outside the registry lock.
func (t *Task) clone() *Task {
	cp := *t
	if t.Result != nil {
		res := *t.Result
		cp.Result = &res
	}
	return &cp
}
