package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/reelforge/server/internal/model"
	"github.com/reelforge/server/internal/module/generation/fallback"
	"github.com/reelforge/server/internal/module/generation/narration"
	"github.com/reelforge/server/internal/module/generation/scene"
	"github.com/reelforge/server/internal/module/generation/stock"
	"github.com/reelforge/server/internal/module/media"
	"github.com/reelforge/server/internal/module/reasoning"
	"github.com/reelforge/server/internal/shared/config"
	apperrors "github.com/reelforge/server/internal/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances instantly on Sleep so poll loops run without waiting.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return nil
}

// fakeGenerator serves canned operations: Poll walks through polls in order
// and sticks on the last one.
type fakeGenerator struct {
	startOp     *media.Operation
	startErr    error
	polls       []*media.Operation
	pollErr     error
	payload     []byte
	downloadErr error

	pollCalls int
	downloads int
}

func (g *fakeGenerator) Start(_ context.Context, _ *media.RenderRequest) (*media.Operation, error) {
	if g.startErr != nil {
		return nil, g.startErr
	}
	if g.startOp != nil {
		return g.startOp, nil
	}
	return &media.Operation{Name: "operations/render-1"}, nil
}

func (g *fakeGenerator) Poll(_ context.Context, _ *media.Operation) (*media.Operation, error) {
	if g.pollErr != nil {
		return nil, g.pollErr
	}
	i := g.pollCalls
	if i >= len(g.polls) {
		i = len(g.polls) - 1
	}
	g.pollCalls++
	return g.polls[i], nil
}

func (g *fakeGenerator) Download(_ context.Context, _ string) ([]byte, error) {
	g.downloads++
	if g.downloadErr != nil {
		return nil, g.downloadErr
	}
	return g.payload, nil
}

// MockReasoning implements reasoning.Client for testing.
type MockReasoning struct {
	completion string
	err        error
}

func (m *MockReasoning) Complete(_ context.Context, _ string) (string, error) {
	return m.completion, m.err
}

func (m *MockReasoning) CompleteJSON(_ context.Context, _ string, _ reasoning.Schema, _ any) error {
	return m.err
}

// MockSynthesizer implements speech.Synthesizer for testing. errs are
// consumed one per call, so a transient failure clears on the next attempt.
type MockSynthesizer struct {
	pcm   []byte
	errs  []error
	calls int
}

func (m *MockSynthesizer) Synthesize(_ context.Context, _ string, _ string) ([]byte, error) {
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	return m.pcm, nil
}

// MockProvider implements stock.Provider for testing.
type MockProvider struct {
	url      string
	searched int
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Search(_ context.Context, _ string) (string, error) {
	m.searched++
	return m.url, nil
}

const testVTT = "WEBVTT\n\n00:00.000 --> 00:02.000\nHello"

type testHarness struct {
	orchestrator *Orchestrator
	registry     *Registry
	clock        *fakeClock
	provider     *MockProvider
	synth        *MockSynthesizer
}

func newHarness(gen media.Generator) *testHarness {
	mr := &MockReasoning{completion: testVTT}
	synth := &MockSynthesizer{pcm: []byte{1, 2}}
	provider := &MockProvider{url: "https://stock.example/v.mp4"}

	resolverReasoning := &MockReasoning{err: errors.New("unavailable")}
	resolver := stock.NewResolver(resolverReasoning, []stock.Provider{provider}, nil, 0, nil, nil)
	narrationSvc := narration.NewService(mr, synth, "Kore", nil)
	fb := fallback.NewOrchestrator(
		scene.NewSegmenter(mr),
		resolver,
		narrationSvc,
		fallback.StrategySingle,
		"https://cdn.example/placeholder.mp4",
		nil,
		nil,
	)

	registry := NewRegistry()
	clock := newFakeClock()
	cfg := config.GenerationConfig{
		PollInterval:    10 * time.Second,
		MaxPollAttempts: 5,
		MaxConcurrent:   2,
	}

	return &testHarness{
		orchestrator: NewOrchestrator(gen, fb, narrationSvc, registry, nil, nil, clock, cfg, nil, nil),
		registry:     registry,
		clock:        clock,
		provider:     provider,
		synth:        synth,
	}
}

// runTask registers a task and drives it synchronously to a terminal state.
func (h *testHarness) runTask(t *testing.T, req model.GenerationRequest) *Task {
	t.Helper()
	created := h.registry.Create(req)
	h.orchestrator.run(context.Background(), created.ID)
	got, err := h.registry.Get(created.ID)
	require.NoError(t, err)
	require.True(t, got.Status.Terminal(), "task did not reach a terminal state")
	return got
}

func TestOrchestrator_Submit(t *testing.T) {
	t.Run("Invalid request is rejected before a task exists", func(t *testing.T) {
		h := newHarness(&fakeGenerator{})
		_, err := h.orchestrator.Submit(context.Background(), model.GenerationRequest{})
		require.Error(t, err)
		assert.Empty(t, h.registry.List())
	})
}

func TestOrchestrator_PrimarySuccess(t *testing.T) {
	t.Run("Render completes after polling", func(t *testing.T) {
		gen := &fakeGenerator{polls: []*media.Operation{
			{Name: "operations/render-1"},
			{Name: "operations/render-1", Done: true, VideoURI: "https://provider.example/out.mp4"},
		}}
		h := newHarness(gen)

		got := h.runTask(t, testRequest())
		assert.Equal(t, StatusSuccess, got.Status)
		require.NotNil(t, got.Result)
		assert.Equal(t, model.ResultSingle, got.Result.Kind)
		assert.False(t, got.Result.IsFallback)
		assert.Equal(t, "https://provider.example/out.mp4", got.Result.Single.VideoURL)
		assert.Nil(t, got.Result.Single.Narration)
		assert.Empty(t, got.Progress)

		// One sleep of the configured interval per poll attempt.
		assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, h.clock.sleeps)

		// The render payload is fetched even without artifact storage.
		assert.Equal(t, 1, gen.downloads)
	})

	t.Run("Voiced request gets narration attached", func(t *testing.T) {
		gen := &fakeGenerator{polls: []*media.Operation{
			{Name: "operations/render-1", Done: true, VideoURI: "https://provider.example/out.mp4"},
		}}
		h := newHarness(gen)

		req := testRequest()
		req.Voice = "Puck"
		req.Script = "Hello"

		got := h.runTask(t, req)
		assert.Equal(t, StatusSuccess, got.Status)
		require.NotNil(t, got.Result.Single.Narration)
		assert.NotEmpty(t, got.Result.Single.Narration.Audio)
		assert.Equal(t, testVTT, got.Result.Single.Narration.Captions)
	})
}

func TestOrchestrator_PrimaryFailure(t *testing.T) {
	t.Run("Poll attempt budget exhaustion fails the task", func(t *testing.T) {
		gen := &fakeGenerator{polls: []*media.Operation{{Name: "operations/render-1"}}}
		h := newHarness(gen)

		got := h.runTask(t, testRequest())
		assert.Equal(t, StatusError, got.Status)
		assert.Contains(t, got.Error, "timed out")
		assert.Nil(t, got.Result)
	})

	t.Run("Done operation without a video yields no result", func(t *testing.T) {
		gen := &fakeGenerator{polls: []*media.Operation{
			{Name: "operations/render-1", Done: true},
		}}
		h := newHarness(gen)

		got := h.runTask(t, testRequest())
		assert.Equal(t, StatusError, got.Status)
		assert.Equal(t, ErrNoResult.Error(), got.Error)
	})

	t.Run("Download failure is fatal without fallback", func(t *testing.T) {
		gen := &fakeGenerator{
			polls: []*media.Operation{
				{Name: "operations/render-1", Done: true, VideoURI: "https://provider.example/out.mp4"},
			},
			downloadErr: errors.New("download failed: status 503"),
		}
		h := newHarness(gen)

		got := h.runTask(t, testRequest())
		assert.Equal(t, StatusError, got.Status)
		assert.Contains(t, got.Error, "status 503")
		assert.Nil(t, got.Result)
		assert.Zero(t, h.provider.searched)
	})

	t.Run("Credential failure is fatal with guidance and no fallback", func(t *testing.T) {
		gen := &fakeGenerator{startErr: fmt.Errorf("render request: %w", apperrors.ErrUnauthorized)}
		h := newHarness(gen)

		got := h.runTask(t, testRequest())
		assert.Equal(t, StatusError, got.Status)
		assert.Contains(t, got.Guidance, "credentials")
		assert.Nil(t, got.Result)
		assert.Zero(t, h.provider.searched)
	})

	t.Run("Quota exhaustion switches to the fallback", func(t *testing.T) {
		gen := &fakeGenerator{startErr: errors.New("RESOURCE_EXHAUSTED: quota exceeded")}
		h := newHarness(gen)

		got := h.runTask(t, testRequest())
		assert.Equal(t, StatusSuccess, got.Status)
		require.NotNil(t, got.Result)
		assert.True(t, got.Result.IsFallback)
		assert.Equal(t, "https://stock.example/v.mp4", got.Result.Single.VideoURL)
	})

	t.Run("Billing failure reported by the operation switches to the fallback", func(t *testing.T) {
		gen := &fakeGenerator{polls: []*media.Operation{
			{Name: "operations/render-1", Done: true, ErrorMessage: "billing account not configured"},
		}}
		h := newHarness(gen)

		got := h.runTask(t, testRequest())
		assert.Equal(t, StatusSuccess, got.Status)
		assert.True(t, got.Result.IsFallback)
	})

	t.Run("Quota failure during narration switches to the fallback", func(t *testing.T) {
		gen := &fakeGenerator{polls: []*media.Operation{
			{Name: "operations/render-1", Done: true, VideoURI: "https://provider.example/out.mp4"},
		}}
		h := newHarness(gen)
		// First synthesis attempt hits the quota; the fallback retry clears.
		h.synth.errs = []error{errors.New("quota exceeded for tts requests")}

		req := testRequest()
		req.Voice = "Puck"
		req.Script = "Hello"

		got := h.runTask(t, req)
		assert.Equal(t, StatusSuccess, got.Status)
		require.NotNil(t, got.Result)
		assert.True(t, got.Result.IsFallback)
		assert.Equal(t, "https://stock.example/v.mp4", got.Result.Single.VideoURL)
		require.NotNil(t, got.Result.Single.Narration)
	})

	t.Run("Unrecoverable failure propagates without fallback", func(t *testing.T) {
		gen := &fakeGenerator{startErr: errors.New("connection reset by peer")}
		h := newHarness(gen)

		got := h.runTask(t, testRequest())
		assert.Equal(t, StatusError, got.Status)
		assert.Contains(t, got.Error, "connection reset")
		assert.Zero(t, h.provider.searched)
	})
}

func TestOrchestrator_DispatchPending(t *testing.T) {
	t.Run("Enqueued tasks stay pending until dispatched", func(t *testing.T) {
		gen := &fakeGenerator{polls: []*media.Operation{
			{Name: "operations/render-1", Done: true, VideoURI: "https://provider.example/out.mp4"},
		}}
		h := newHarness(gen)

		first, err := h.orchestrator.Enqueue(context.Background(), testRequest())
		require.NoError(t, err)
		second, err := h.orchestrator.Enqueue(context.Background(), testRequest())
		require.NoError(t, err)

		for _, id := range []uuid.UUID{first.ID, second.ID} {
			got, err := h.registry.Get(id)
			require.NoError(t, err)
			assert.Equal(t, StatusPending, got.Status)
		}

		dispatched := h.orchestrator.DispatchPending(context.Background())
		assert.Len(t, dispatched, 2)

		for _, id := range []uuid.UUID{first.ID, second.ID} {
			require.Eventually(t, func() bool {
				got, err := h.registry.Get(id)
				return err == nil && got.Status == StatusSuccess
			}, 2*time.Second, 10*time.Millisecond)
		}
	})

	t.Run("Terminal tasks are not redispatched", func(t *testing.T) {
		gen := &fakeGenerator{polls: []*media.Operation{
			{Name: "operations/render-1", Done: true, VideoURI: "https://provider.example/out.mp4"},
		}}
		h := newHarness(gen)

		done := h.runTask(t, testRequest())
		require.Equal(t, StatusSuccess, done.Status)

		assert.Empty(t, h.orchestrator.DispatchPending(context.Background()))
	})
}

func TestOrchestrator_Dispatch(t *testing.T) {
	t.Run("Failed task can be redispatched and succeed", func(t *testing.T) {
		gen := &fakeGenerator{startErr: errors.New("connection reset by peer")}
		h := newHarness(gen)

		failed := h.runTask(t, testRequest())
		require.Equal(t, StatusError, failed.Status)

		// The transient condition clears before the retry.
		gen.startErr = nil
		gen.polls = []*media.Operation{
			{Name: "operations/render-1", Done: true, VideoURI: "https://provider.example/out.mp4"},
		}

		_, err := h.orchestrator.Dispatch(context.Background(), failed.ID)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			got, err := h.registry.Get(failed.ID)
			return err == nil && got.Status == StatusSuccess
		}, 2*time.Second, 10*time.Millisecond)

		got, err := h.registry.Get(failed.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Error)
		assert.Empty(t, got.Guidance)
	})

	t.Run("Successful task cannot be redispatched", func(t *testing.T) {
		gen := &fakeGenerator{polls: []*media.Operation{
			{Name: "operations/render-1", Done: true, VideoURI: "https://provider.example/out.mp4"},
		}}
		h := newHarness(gen)

		done := h.runTask(t, testRequest())
		require.Equal(t, StatusSuccess, done.Status)

		_, err := h.orchestrator.Dispatch(context.Background(), done.ID)
		require.Error(t, err)
	})
}
