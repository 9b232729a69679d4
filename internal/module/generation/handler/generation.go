package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/reelforge/server/internal/model"
	"github.com/reelforge/server/internal/module/generation/task"
	"github.com/reelforge/server/internal/shared/response"
)

// Historian serves archived task history. *task.Archive implements it.
type Historian interface {
	Recent(ctx context.Context, limit int) ([]task.Record, error)
	Find(ctx context.Context, id uuid.UUID) (*task.Record, error)
}

// GenerationHandler handles generation task API requests.
type GenerationHandler struct {
	orchestrator *task.Orchestrator
	archive      Historian // nil disables the archive endpoints
}

// NewGenerationHandler creates a new generation handler.
func NewGenerationHandler(orchestrator *task.Orchestrator, archive Historian) *GenerationHandler {
	return &GenerationHandler{
		orchestrator: orchestrator,
		archive:      archive,
	}
}

// RegisterRoutes registers generation routes.
func (h *GenerationHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/generations", h.Create)
	r.GET("/generations", h.List)
	r.POST("/generations/batch", h.CreateBatch)
	r.POST("/generations/dispatch", h.DispatchPending)
	r.GET("/generations/:id", h.Get)
	r.POST("/generations/:id/dispatch", h.Dispatch)
	r.GET("/generations/:id/audio", h.Audio)

	if h.archive != nil {
		r.GET("/archive/generations", h.History)
		r.GET("/archive/generations/:id", h.Archived)
	}
}

// Create submits a new generation task.
// POST /api/v1/generations
func (h *GenerationHandler) Create(c *gin.Context) {
	var req model.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	t, err := h.orchestrator.Submit(c.Request.Context(), req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, t)
}

// CreateBatch enqueues several generation tasks without starting them.
// POST /api/v1/generations/batch
func (h *GenerationHandler) CreateBatch(c *gin.Context) {
	var reqs []model.GenerationRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if len(reqs) == 0 {
		response.BadRequest(c, "empty batch")
		return
	}

	// Validate the whole batch before enqueueing anything.
	for i := range reqs {
		if err := reqs[i].Validate(); err != nil {
			response.BadRequest(c, fmt.Sprintf("request %d: %v", i, err))
			return
		}
	}

	tasks := make([]*task.Task, 0, len(reqs))
	for _, req := range reqs {
		t, err := h.orchestrator.Enqueue(c.Request.Context(), req)
		if err != nil {
			response.FromError(c, err)
			return
		}
		tasks = append(tasks, t)
	}

	c.JSON(http.StatusAccepted, gin.H{
		"object": "list",
		"data":   tasks,
	})
}

// DispatchPending starts every pending task.
// POST /api/v1/generations/dispatch
func (h *GenerationHandler) DispatchPending(c *gin.Context) {
	dispatched := h.orchestrator.DispatchPending(c.Request.Context())
	c.JSON(http.StatusAccepted, gin.H{
		"object": "list",
		"data":   dispatched,
	})
}

// List lists all live generation tasks.
// GET /api/v1/generations
func (h *GenerationHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   h.orchestrator.List(),
	})
}

// Get returns one generation task.
// GET /api/v1/generations/:id
func (h *GenerationHandler) Get(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	t, err := h.orchestrator.Get(id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	c.JSON(http.StatusOK, t)
}

// Dispatch re-runs a failed generation task.
// POST /api/v1/generations/:id/dispatch
func (h *GenerationHandler) Dispatch(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	t, err := h.orchestrator.Dispatch(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, t)
}

// Audio streams the narration audio of a finished task.
// GET /api/v1/generations/:id/audio
func (h *GenerationHandler) Audio(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	t, err := h.orchestrator.Get(id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	nar := taskNarration(t)
	if nar == nil || len(nar.Audio) == 0 {
		response.NotFound(c, "task has no narration audio")
		return
	}

	c.Data(http.StatusOK, "audio/wav", nar.Audio)
}

// History lists archived generation tasks.
// GET /api/v1/archive/generations
func (h *GenerationHandler) History(c *gin.Context) {
	recs, err := h.archive.Recent(c.Request.Context(), 50)
	if err != nil {
		response.FromError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   recs,
	})
}

// Archived returns one archived generation task.
// GET /api/v1/archive/generations/:id
func (h *GenerationHandler) Archived(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	rec, err := h.archive.Find(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// taskID parses the id path parameter, responding with 400 on failure.
func taskID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid task id")
		return uuid.Nil, false
	}
	return id, true
}

// taskNarration extracts the narration from a task result, if present.
func taskNarration(t *task.Task) *model.Narration {
	if t.Result == nil {
		return nil
	}
	switch t.Result.Kind {
	case model.ResultSingle:
		if t.Result.Single != nil {
			return t.Result.Single.Narration
		}
	case model.ResultStitched:
		if t.Result.Stitched != nil {
			return &t.Result.Stitched.Narration
		}
	}
	return nil
}
