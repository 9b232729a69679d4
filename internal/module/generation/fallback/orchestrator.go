package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/reelforge/server/internal/model"
	"github.com/reelforge/server/internal/module/generation/narration"
	"github.com/reelforge/server/internal/module/generation/scene"
	"github.com/reelforge/server/internal/module/generation/stock"
	apperrors "github.com/reelforge/server/internal/shared/errors"
	"github.com/reelforge/server/internal/shared/logger"
	"github.com/reelforge/server/internal/shared/metrics"
	"golang.org/x/sync/errgroup"
)

// Strategy selects the substitute path taken on a recoverable failure.
type Strategy string

const (
	// StrategySingle resolves one stock video for the whole prompt.
	StrategySingle Strategy = "single"
	// StrategyStitched builds a multi-clip video from per-scene stock
	// lookups driven by one narration timeline.
	StrategyStitched Strategy = "stitched"
)

// Recoverable reports whether a primary generation failure can be recovered
// by the fallback path. Only quota and billing exhaustion qualify; every
// other failure propagates unchanged.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperrors.ErrQuotaExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") || strings.Contains(msg, "billing")
}

// Orchestrator executes the substitute path for a failed primary generation.
type Orchestrator struct {
	segmenter      *scene.Segmenter
	resolver       *stock.Resolver
	narration      *narration.Service
	strategy       Strategy
	placeholderURL string
	log            *logger.Logger
	metrics        *metrics.Metrics
}

// NewOrchestrator creates a fallback orchestrator. m may be nil.
func NewOrchestrator(
	segmenter *scene.Segmenter,
	resolver *stock.Resolver,
	narrationSvc *narration.Service,
	strategy Strategy,
	placeholderURL string,
	log *logger.Logger,
	m *metrics.Metrics,
) *Orchestrator {
	if log == nil {
		log = logger.New(nil)
	}
	return &Orchestrator{
		segmenter:      segmenter,
		resolver:       resolver,
		narration:      narrationSvc,
		strategy:       strategy,
		placeholderURL: placeholderURL,
		log:            log,
		metrics:        m,
	}
}

// Execute builds a substitute result for the request. script carries any
// narration script already generated during the primary attempt; it may be
// empty.
func (o *Orchestrator) Execute(ctx context.Context, req *model.GenerationRequest, script string) (*model.GenerationResult, error) {
	needVoice := !req.Voice.Silent()

	if script == "" {
		if req.Script != "" {
			script = req.Script
		} else if needVoice {
			generated, err := o.narration.GenerateScript(ctx, req.Prompt, req.DurationSeconds)
			if err != nil {
				o.record(StrategySingle, "error")
				return nil, fmt.Errorf("cannot build fallback without narration: %w", err)
			}
			script = generated
		}
	}

	// The stitched path needs a script to segment and a voice to carry the
	// shared timeline; without either it degrades to the single-source path.
	if o.strategy == StrategyStitched && needVoice && script != "" {
		result, err := o.stitched(ctx, req, script)
		if err != nil {
			o.record(StrategyStitched, "error")
			return nil, err
		}
		o.record(StrategyStitched, "success")
		return result, nil
	}

	result, err := o.single(ctx, req, script, needVoice)
	if err != nil {
		o.record(StrategySingle, "error")
		return nil, err
	}
	o.record(StrategySingle, "success")
	return result, nil
}

// single resolves one stock video for the whole prompt.
func (o *Orchestrator) single(ctx context.Context, req *model.GenerationRequest, script string, needVoice bool) (*model.GenerationResult, error) {
	url := o.resolver.Resolve(ctx, req.Prompt)
	if url == "" {
		url = o.placeholderURL
	}

	var nar *model.Narration
	if needVoice {
		synthesized, err := o.narration.Synthesize(ctx, script, req.DurationSeconds, req.Voice, req.Language)
		if err != nil {
			return nil, err
		}
		nar = synthesized
	}

	return model.NewSingleResult(url, nar, true), nil
}

// stitched segments the script, synthesizes one narration for the full
// script, and resolves one stock clip per scene concurrently. A scene whose
// lookup finds nothing degrades to the placeholder; the assembled sequence
// preserves scene order regardless of completion order.
func (o *Orchestrator) stitched(ctx context.Context, req *model.GenerationRequest, script string) (*model.GenerationResult, error) {
	scenes, err := o.segmenter.Segment(ctx, script, req.DurationSeconds)
	if err != nil {
		return nil, err
	}

	nar, err := o.narration.Synthesize(ctx, script, req.DurationSeconds, req.Voice, req.Language)
	if err != nil {
		return nil, err
	}

	urls := make([]string, len(scenes))
	g, gctx := errgroup.WithContext(ctx)
	for i, sc := range scenes {
		g.Go(func() error {
			url := o.resolver.Resolve(gctx, sc.Description)
			if url == "" {
				url = o.placeholderURL
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	o.log.Info("stitched fallback assembled",
		logger.Int("scenes", len(scenes)),
	)

	return model.NewStitchedResult(urls, *nar), nil
}

func (o *Orchestrator) record(strategy Strategy, outcome string) {
	if o.metrics != nil {
		o.metrics.FallbacksTotal.WithLabelValues(string(strategy), outcome).Inc()
	}
}
