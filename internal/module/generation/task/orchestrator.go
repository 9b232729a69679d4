package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/reelforge/server/internal/model"
	"github.com/reelforge/server/internal/module/generation/fallback"
	"github.com/reelforge/server/internal/module/generation/narration"
	"github.com/reelforge/server/internal/module/media"
	"github.com/reelforge/server/internal/shared/config"
	apperrors "github.com/reelforge/server/internal/shared/errors"
	"github.com/reelforge/server/internal/shared/logger"
	"github.com/reelforge/server/internal/shared/metrics"
	"github.com/reelforge/server/internal/shared/storage"
)

// ErrNoResult marks a task that reached a terminal state without a result.
var ErrNoResult = errors.New("no result produced")

// reselectCredentialsGuidance is attached to tasks that failed on an
// authentication error. Credential failures never trigger the fallback.
const reselectCredentialsGuidance = "the configured API credentials were rejected; verify the key and select a valid one before retrying"

// Orchestrator drives generation tasks from submission to a terminal state.
type Orchestrator struct {
	generator media.Generator
	fallback  *fallback.Orchestrator
	narration *narration.Service
	registry  *Registry
	archive   *Archive               // nil disables persistence
	store     *storage.ArtifactStore // nil disables artifact upload
	clock     Clock
	cfg       config.GenerationConfig
	log       *logger.Logger
	metrics   *metrics.Metrics
	sem       chan struct{}
}

// NewOrchestrator wires the task orchestrator. archive, store, and m may be
// nil.
func NewOrchestrator(
	generator media.Generator,
	fb *fallback.Orchestrator,
	narrationSvc *narration.Service,
	registry *Registry,
	archive *Archive,
	store *storage.ArtifactStore,
	clock Clock,
	cfg config.GenerationConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *Orchestrator {
	if clock == nil {
		clock = NewClock()
	}
	if log == nil {
		log = logger.New(nil)
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Orchestrator{
		generator: generator,
		fallback:  fb,
		narration: narrationSvc,
		registry:  registry,
		archive:   archive,
		store:     store,
		clock:     clock,
		cfg:       cfg,
		log:       log,
		metrics:   m,
		sem:       make(chan struct{}, maxConcurrent),
	}
}

// Submit validates the request, registers a pending task, and starts it in
// the background. The returned snapshot reflects the pending state.
func (o *Orchestrator) Submit(ctx context.Context, req model.GenerationRequest) (*Task, error) {
	t, err := o.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}

	// The task outlives the submitting request.
	go o.run(context.Background(), t.ID)
	return t, nil
}

// Enqueue validates the request and registers a pending task without
// starting it. Batch imports enqueue first and run via DispatchPending.
func (o *Orchestrator) Enqueue(ctx context.Context, req model.GenerationRequest) (*Task, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.BadRequest(err.Error())
	}

	t := o.registry.Create(req)
	o.log.Info("task enqueued",
		logger.String("task_id", t.ID.String()),
		logger.Int("duration_seconds", req.DurationSeconds),
	)
	return t, nil
}

// DispatchPending starts every pending task on its own goroutine, bounded by
// the concurrency semaphore, and returns their snapshots. A task raced into
// generating by another caller is skipped by the transition guard.
func (o *Orchestrator) DispatchPending(ctx context.Context) []*Task {
	var dispatched []*Task
	for _, t := range o.registry.List() {
		if t.Status != StatusPending {
			continue
		}
		dispatched = append(dispatched, t)
		go o.run(context.Background(), t.ID)
	}

	o.log.Info("pending tasks dispatched", logger.Int("count", len(dispatched)))
	return dispatched
}

// Dispatch re-runs a failed task. Tasks in any other state are rejected.
func (o *Orchestrator) Dispatch(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, err := o.registry.Update(id, func(t *Task) error {
		if err := t.transition(StatusPending); err != nil {
			return err
		}
		t.Result = nil
		t.Error = ""
		t.Guidance = ""
		t.Progress = "queued for retry"
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.log.Info("task redispatched", logger.String("task_id", id.String()))
	go o.run(context.Background(), id)
	return t, nil
}

// Get returns a snapshot of the task.
func (o *Orchestrator) Get(id uuid.UUID) (*Task, error) {
	return o.registry.Get(id)
}

// List returns snapshots of all live tasks, newest first.
func (o *Orchestrator) List() []*Task {
	return o.registry.List()
}

// run drives one task to a terminal state.
func (o *Orchestrator) run(ctx context.Context, id uuid.UUID) {
	o.sem <- struct{}{}
	defer func() { <-o.sem }()

	started := o.clock.Now()

	t, err := o.registry.Update(id, func(t *Task) error {
		if err := t.transition(StatusGenerating); err != nil {
			return err
		}
		t.Progress = "starting video generation"
		return nil
	})
	if err != nil {
		o.log.Error("task start rejected", logger.String("task_id", id.String()), logger.Err(err))
		return
	}

	result, genErr := o.generate(ctx, t)

	terminal, err := o.registry.Update(id, func(t *Task) error {
		if genErr != nil {
			if err := t.transition(StatusError); err != nil {
				return err
			}
			t.Error = genErr.Error()
			if errors.Is(genErr, apperrors.ErrUnauthorized) {
				t.Guidance = reselectCredentialsGuidance
			}
			t.Progress = ""
			return nil
		}
		if result == nil {
			if err := t.transition(StatusError); err != nil {
				return err
			}
			t.Error = ErrNoResult.Error()
			t.Progress = ""
			return nil
		}
		if err := t.transition(StatusSuccess); err != nil {
			return err
		}
		t.Result = result
		t.Progress = ""
		return nil
	})
	if err != nil {
		o.log.Error("task finalization rejected", logger.String("task_id", id.String()), logger.Err(err))
		return
	}

	elapsed := o.clock.Now().Sub(started)
	if genErr != nil {
		o.log.Error("task failed",
			logger.String("task_id", id.String()),
			logger.Err(genErr),
		)
	} else {
		o.log.Info("task finished",
			logger.String("task_id", id.String()),
			logger.String("status", string(terminal.Status)),
		)
	}

	if o.metrics != nil {
		isFallback := terminal.Result != nil && terminal.Result.IsFallback
		o.metrics.RecordTask(string(terminal.Status), isFallback, elapsed)
	}

	if o.archive != nil {
		if err := o.archive.Save(ctx, terminal); err != nil {
			o.log.Error("task archive failed", logger.String("task_id", id.String()), logger.Err(err))
		}
	}
}

// generate runs the primary render and, on a recoverable failure, the
// fallback path.
func (o *Orchestrator) generate(ctx context.Context, t *Task) (*model.GenerationResult, error) {
	req := t.Request

	op, err := o.generator.Start(ctx, &media.RenderRequest{
		Prompt:          req.Prompt,
		AspectRatio:     req.AspectRatio,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		return o.recover(ctx, t, err)
	}
	o.setProgress(t.ID, "rendering started")

	op, err = o.poll(ctx, t, op)
	if err != nil {
		return o.recover(ctx, t, err)
	}

	if op.ErrorMessage != "" {
		return o.recover(ctx, t, errors.New(op.ErrorMessage))
	}
	if op.VideoURI == "" {
		return nil, ErrNoResult
	}

	// The finished render is always fetched; a failed fetch fails the task
	// even when the payload is not kept.
	o.setProgress(t.ID, "downloading render")
	data, err := o.generator.Download(ctx, op.VideoURI)
	if err != nil {
		return nil, fmt.Errorf("download render: %w", err)
	}

	videoURL := op.VideoURI
	if o.store != nil {
		stored, err := o.store.Store(ctx, fmt.Sprintf("videos/%s.mp4", t.ID), "video/mp4", data)
		if err != nil {
			o.log.Warn("artifact upload failed, serving provider URL",
				logger.String("task_id", t.ID.String()),
				logger.Err(err),
			)
		} else {
			videoURL = stored
		}
	}

	o.setProgress(t.ID, "finalizing")
	nar, err := o.narrate(ctx, t)
	if err != nil {
		return o.recover(ctx, t, err)
	}

	return model.NewSingleResult(videoURL, nar, false), nil
}

// setProgress updates the progress message, ignoring registry errors since
// progress is advisory.
func (o *Orchestrator) setProgress(id uuid.UUID, message string) {
	_, _ = o.registry.Update(id, func(t *Task) error {
		t.Progress = message
		return nil
	})
}

// poll refreshes the operation until it completes, the attempt budget runs
// out, or the context ends. Progress reflects elapsed wall time.
func (o *Orchestrator) poll(ctx context.Context, t *Task, op *media.Operation) (*media.Operation, error) {
	started := o.clock.Now()

	for attempt := 0; !op.Done; attempt++ {
		if o.cfg.MaxPollAttempts > 0 && attempt >= o.cfg.MaxPollAttempts {
			return nil, fmt.Errorf("generation timed out after %d poll attempts", attempt)
		}

		if err := o.clock.Sleep(ctx, o.cfg.PollInterval); err != nil {
			return nil, err
		}
		if o.metrics != nil {
			o.metrics.PollAttemptsTotal.Inc()
		}

		refreshed, err := o.generator.Poll(ctx, op)
		if err != nil {
			return nil, err
		}
		op = refreshed

		minutes := int(o.clock.Now().Sub(started).Minutes())
		o.setProgress(t.ID, fmt.Sprintf("generating video (%d min elapsed)", minutes))
	}

	return op, nil
}

// recover classifies a primary failure. Credential failures and other
// unrecoverable errors propagate; quota and billing exhaustion switch to
// the fallback path.
func (o *Orchestrator) recover(ctx context.Context, t *Task, cause error) (*model.GenerationResult, error) {
	if errors.Is(cause, apperrors.ErrUnauthorized) {
		return nil, cause
	}
	if !fallback.Recoverable(cause) {
		return nil, cause
	}

	o.log.Warn("primary generation failed, switching to fallback",
		logger.String("task_id", t.ID.String()),
		logger.Err(cause),
	)
	o.setProgress(t.ID, "primary generation unavailable, building fallback")

	req := t.Request
	result, err := o.fallback.Execute(ctx, &req, "")
	if err != nil {
		return nil, fmt.Errorf("fallback after %q: %w", cause.Error(), err)
	}

	o.uploadNarrationAudio(ctx, t.ID, resultNarration(result))
	return result, nil
}

// narrate attaches narration for voiced requests on the primary path.
func (o *Orchestrator) narrate(ctx context.Context, t *Task) (*model.Narration, error) {
	req := t.Request
	if req.Voice.Silent() {
		return nil, nil
	}

	script := req.Script
	if script == "" {
		generated, err := o.narration.GenerateScript(ctx, req.Prompt, req.DurationSeconds)
		if err != nil {
			return nil, err
		}
		script = generated
	}

	nar, err := o.narration.Synthesize(ctx, script, req.DurationSeconds, req.Voice, req.Language)
	if err != nil {
		return nil, err
	}

	o.uploadNarrationAudio(ctx, t.ID, nar)
	return nar, nil
}

// uploadNarrationAudio publishes narration audio to artifact storage when
// configured. Failure keeps the in-memory audio and only loses the URL.
func (o *Orchestrator) uploadNarrationAudio(ctx context.Context, id uuid.UUID, nar *model.Narration) {
	if o.store == nil || nar == nil || len(nar.Audio) == 0 {
		return
	}
	url, err := o.store.Store(ctx, fmt.Sprintf("audio/%s.wav", id), "audio/wav", nar.Audio)
	if err != nil {
		o.log.Warn("narration audio upload failed",
			logger.String("task_id", id.String()),
			logger.Err(err),
		)
		return
	}
	nar.AudioURL = url
}

// resultNarration returns the narration attached to a result, if any.
func resultNarration(result *model.GenerationResult) *model.Narration {
	if result == nil {
		return nil
	}
	switch result.Kind {
	case model.ResultSingle:
		if result.Single != nil {
			return result.Single.Narration
		}
	case model.ResultStitched:
		if result.Stitched != nil {
			return &result.Stitched.Narration
		}
	}
	return nil
}
