package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/reelforge/server/internal/module/reasoning"
	"github.com/reelforge/server/internal/shared/logger"
	"github.com/reelforge/server/internal/shared/metrics"
	"github.com/sony/gobreaker/v2"
)

// Resolver finds a single playable stock video URL for a text query. It
// never returns an error: provider failures are logged and skipped so that
// resolution can never abort the surrounding fallback.
type Resolver struct {
	reasoning reasoning.Client
	providers []Provider
	breakers  []*gobreaker.CircuitBreaker[string]
	cache     redis.UniversalClient
	cacheTTL  time.Duration
	log       *logger.Logger
	metrics   *metrics.Metrics
}

// NewResolver creates a resolver that tries providers in the given priority
// order. cache and m may be nil.
func NewResolver(
	client reasoning.Client,
	providers []Provider,
	cache redis.UniversalClient,
	cacheTTL time.Duration,
	log *logger.Logger,
	m *metrics.Metrics,
) *Resolver {
	if log == nil {
		log = logger.New(nil)
	}

	breakers := make([]*gobreaker.CircuitBreaker[string], len(providers))
	for i, p := range providers {
		breakers[i] = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:    "stock-" + p.Name(),
			Timeout: 60 * time.Second,
		})
	}

	return &Resolver{
		reasoning: client,
		providers: providers,
		breakers:  breakers,
		cache:     cache,
		cacheTTL:  cacheTTL,
		log:       log,
		metrics:   m,
	}
}

// Resolve returns a playable URL for the query, or "" when no configured
// provider yields a match.
func (r *Resolver) Resolve(ctx context.Context, query string) string {
	if len(r.providers) == 0 {
		return ""
	}

	keywords := r.keywords(ctx, query)

	cacheKey := "stock:" + keywords
	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, cacheKey).Result(); err == nil && cached != "" {
			return cached
		}
	}

	for i, p := range r.providers {
		url, err := r.breakers[i].Execute(func() (string, error) {
			return p.Search(ctx, keywords)
		})
		if err != nil {
			r.recordLookup(p.Name(), "error")
			r.log.Warn("stock provider lookup failed",
				logger.String("provider", p.Name()),
				logger.String("keywords", keywords),
				logger.Err(err),
			)
			continue
		}
		if url == "" {
			r.recordLookup(p.Name(), "miss")
			continue
		}

		r.recordLookup(p.Name(), "hit")
		if r.cache != nil {
			if err := r.cache.Set(ctx, cacheKey, url, r.cacheTTL).Err(); err != nil {
				r.log.Warn("stock cache write failed", logger.Err(err))
			}
		}
		return url
	}

	return ""
}

// keywords distills the query into 2-3 search keywords. On failure the raw
// query is used as-is.
func (r *Resolver) keywords(ctx context.Context, query string) string {
	instruction := fmt.Sprintf(
		`Extract 2-3 stock footage search keywords from the following description.
Answer with only the keywords separated by spaces, nothing else.

Description: %s`, query)

	kw, err := r.reasoning.Complete(ctx, instruction)
	if err != nil || strings.TrimSpace(kw) == "" {
		r.log.Warn("keyword extraction failed, using raw query", logger.Err(err))
		return query
	}
	return strings.TrimSpace(kw)
}

func (r *Resolver) recordLookup(provider, outcome string) {
	if r.metrics != nil {
		r.metrics.RecordStockLookup(provider, outcome)
	}
}
