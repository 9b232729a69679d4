package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/reelforge/server/internal/module/generation/fallback"
	"github.com/reelforge/server/internal/module/generation/handler"
	"github.com/reelforge/server/internal/module/generation/narration"
	"github.com/reelforge/server/internal/module/generation/scene"
	"github.com/reelforge/server/internal/module/generation/stock"
	"github.com/reelforge/server/internal/module/generation/task"
	"github.com/reelforge/server/internal/module/media"
	"github.com/reelforge/server/internal/module/reasoning"
	"github.com/reelforge/server/internal/module/speech"
	sharedcache "github.com/reelforge/server/internal/shared/cache"
	"github.com/reelforge/server/internal/shared/config"
	"github.com/reelforge/server/internal/shared/database"
	"github.com/reelforge/server/internal/shared/logger"
	"github.com/reelforge/server/internal/shared/metrics"
	"github.com/reelforge/server/internal/shared/middleware"
	"github.com/reelforge/server/internal/shared/storage"
	"gorm.io/gorm"
)

// App wires the generation service together.
type App struct {
	config  *config.Config
	logger  *logger.Logger
	metrics *metrics.Metrics
	db      *gorm.DB
	redis   redis.UniversalClient
	router  *gin.Engine

	registry     *task.Registry
	orchestrator *task.Orchestrator
	archive      *task.Archive

	quit chan struct{}
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	app := &App{
		config:  cfg,
		logger:  log,
		metrics: metrics.New(""),
	}

	// Task archive is optional; clearing the database host runs the
	// service on the in-memory registry alone.
	if cfg.Database.Host != "" {
		db, err := database.New(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		app.db = db

		archive, err := task.NewArchive(db)
		if err != nil {
			return nil, fmt.Errorf("init task archive: %w", err)
		}
		app.archive = archive
	}

	// Redis is optional; without it stock lookups are uncached.
	if cfg.Redis.Address != "" {
		redisClient, err := sharedcache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Warn("redis connection failed, stock cache disabled", logger.Err(err))
		} else {
			app.redis = redisClient
		}
	}

	if err := app.initGeneration(context.Background()); err != nil {
		return nil, err
	}

	app.router = app.setupRouter()
	app.quit = make(chan struct{})
	go app.evictLoop()
	return app, nil
}

// evictLoop drops stale terminal tasks from the registry. Archived history
// survives in the database.
func (a *App) evictLoop() {
	ttl := a.config.Generation.RegistryTTL
	if ttl <= 0 {
		return
	}

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-a.quit:
			return
		case <-ticker.C:
			if n := a.registry.Evict(ttl); n > 0 {
				a.logger.Info("evicted stale tasks", logger.Int("count", n))
			}
		}
	}
}

// initGeneration builds the generation pipeline.
func (a *App) initGeneration(ctx context.Context) error {
	cfg := a.config

	reasoningClient := reasoning.NewGeminiClient(&cfg.Providers.Reasoning)
	synthesizer := speech.NewGeminiSynthesizer(&cfg.Providers.Speech)
	generator := media.NewVeoClient(&cfg.Providers.Video)

	narrationSvc := narration.NewService(reasoningClient, synthesizer, cfg.Providers.Speech.Voice, a.logger)

	var providers []stock.Provider
	if cfg.Providers.Pexels.APIKey != "" {
		providers = append(providers, stock.NewPexelsProvider(&cfg.Providers.Pexels))
	}
	if cfg.Providers.Pixabay.APIKey != "" {
		providers = append(providers, stock.NewPixabayProvider(&cfg.Providers.Pixabay))
	}
	resolver := stock.NewResolver(
		reasoningClient,
		providers,
		a.redis,
		cfg.Generation.StockCacheTTL,
		a.logger,
		a.metrics,
	)

	fb := fallback.NewOrchestrator(
		scene.NewSegmenter(reasoningClient),
		resolver,
		narrationSvc,
		fallback.Strategy(cfg.Generation.FallbackStrategy),
		cfg.Generation.PlaceholderURL,
		a.logger,
		a.metrics,
	)

	var store *storage.ArtifactStore
	if cfg.Storage.Enabled() {
		s, err := storage.NewArtifactStore(ctx, &cfg.Storage)
		if err != nil {
			return fmt.Errorf("init artifact store: %w", err)
		}
		store = s
	}

	a.registry = task.NewRegistry()
	a.orchestrator = task.NewOrchestrator(
		generator,
		fb,
		narrationSvc,
		a.registry,
		a.archive,
		store,
		task.NewClock(),
		cfg.Generation,
		a.logger,
		a.metrics,
	)

	return nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.Metrics(a.metrics))
	r.Use(cors.Default())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// A typed nil archive must not reach the interface-valued handler field.
	var hist handler.Historian
	if a.archive != nil {
		hist = a.archive
	}

	v1 := r.Group("/api/v1")
	handler.NewGenerationHandler(a.orchestrator, hist).RegisterRoutes(v1)

	return r
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop releases application resources.
func (a *App) Stop() {
	if a.quit != nil {
		close(a.quit)
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = database.Close(a.db)
	}
}
