package task

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reelforge/server/internal/model"
	apperrors "github.com/reelforge/server/internal/shared/errors"
)

// Registry is the in-memory source of truth for live tasks. All mutation
// goes through Update so status transitions stay single-writer.
type Registry struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*Task
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[uuid.UUID]*Task)}
}

// Create registers a new pending task for the request and returns a snapshot.
func (r *Registry) Create(req model.GenerationRequest) *Task {
	now := time.Now()
	t := &Task{
		ID:        uuid.New(),
		Request:   req,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.tasks[t.ID] = t
	r.mu.Unlock()

	return t.clone()
}

// Get returns a snapshot of the task, or a not found error.
func (r *Registry) Get(id uuid.UUID) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, apperrors.NotFound("task")
	}
	return t.clone(), nil
}

// List returns snapshots of all tasks, newest first.
func (r *Registry) List() []*Task {
	r.mu.RLock()
	out := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Update applies fn to the task under the registry lock and returns the
// resulting snapshot. fn returning an error leaves the task untouched only
// if fn itself made no changes first; mutators should transition before
// touching other fields.
func (r *Registry) Update(id uuid.UUID, fn func(*Task) error) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, apperrors.NotFound("task")
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	t.UpdatedAt = time.Now()
	return t.clone(), nil
}

// Evict drops terminal tasks whose last update is older than the cutoff and
// returns how many were removed.
func (r *Registry) Evict(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, t := range r.tasks {
		if t.Status.Terminal() && t.UpdatedAt.Before(cutoff) {
			delete(r.tasks, id)
			evicted++
		}
	}
	return evicted
}
