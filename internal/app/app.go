// Package app wires configuration, stores and use cases into one container
// shared by the HTTP server and the MCP server.
package app

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/johnquangdev/timeline-assistant/internal/adapter/repository"
	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
	"github.com/johnquangdev/timeline-assistant/internal/infrastructure/cache"
	"github.com/johnquangdev/timeline-assistant/internal/infrastructure/database"
	"github.com/johnquangdev/timeline-assistant/internal/infrastructure/media"
	"github.com/johnquangdev/timeline-assistant/internal/infrastructure/storage"
	"github.com/johnquangdev/timeline-assistant/internal/usecase/analysis"
	"github.com/johnquangdev/timeline-assistant/internal/usecase/batching"
	"github.com/johnquangdev/timeline-assistant/internal/usecase/chunk"
	"github.com/johnquangdev/timeline-assistant/internal/usecase/reprocess"
	"github.com/johnquangdev/timeline-assistant/internal/usecase/scheduler"
	"github.com/johnquangdev/timeline-assistant/internal/usecase/timeline"
	"github.com/johnquangdev/timeline-assistant/pkg/ai"
	"github.com/johnquangdev/timeline-assistant/pkg/config"
)

// redisKeyPrefix namespaces every key this service writes to Redis
const redisKeyPrefix = "timeline:"

// Container holds the long-lived dependencies of a running process
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *gorm.DB
	Location *time.Location

	Media    storage.MediaStore
	Cache    cache.Store
	Settings *repository.SettingsRepository
	Provider *ai.Resolver

	Chunks      chunk.Service
	Analyzer    analysis.Service
	Scheduler   scheduler.Service
	Reprocessor reprocess.Service
	Runs        *reprocess.RunTracker
	Timeline    timeline.Service

	closers []func()
}

// New opens the database and builds every service from cfg. Close releases
// what New acquired, also when New fails halfway.
func New(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{Config: cfg, Logger: logger}
	if err := c.build(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) build() (err error) {
	cfg, logger := c.Config, c.Logger

	if c.Location, err = cfg.Analysis.Location(); err != nil {
		return err
	}

	logger.Info("📦 Connecting to database...", zap.String("driver", cfg.Database.Driver))
	if c.DB, err = database.NewDB(cfg); err != nil {
		return err
	}
	db := c.DB
	c.closers = append(c.closers, func() { database.CloseDB(db) })

	if err = c.migrate(); err != nil {
		return err
	}

	if c.Media, err = storage.New(&cfg.Storage); err != nil {
		return fmt.Errorf("failed to initialize media storage: %w", err)
	}
	logger.Info("🗄️ Media storage ready", zap.String("type", cfg.Storage.Type))

	if err = c.initCache(); err != nil {
		return err
	}

	categories, err := config.LoadCategories(cfg.Analysis.CategoriesFile)
	if err != nil {
		return err
	}

	chunkRepo := repository.NewChunkRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	observationRepo := repository.NewObservationRepository(db)
	cardRepo := repository.NewTimelineCardRepository(db, c.Location)
	c.Settings = repository.NewSettingsRepository(db)

	ffmpeg := media.NewFFmpeg(&cfg.Media)
	c.Provider = ai.NewResolver(
		c.Settings,
		entities.SettingLLMProvider,
		strings.ToLower(cfg.LLM.Provider),
		ai.NewFactory(&cfg.LLM, ffmpeg),
	)

	c.Analyzer, err = analysis.NewService(analysis.Deps{
		Batches:      batchRepo,
		Observations: observationRepo,
		Cards:        cardRepo,
		Resolver:     c.Provider,
		Media:        c.Media,
		Assembler:    ffmpeg,
		Analysis:     &cfg.Analysis,
		LLM:          &cfg.LLM,
		Categories:   categories,
		Logger:       logger.Named("analysis"),
	})
	if err != nil {
		return err
	}

	c.Chunks = chunk.NewService(chunkRepo, c.Media, logger.Named("chunks"))
	c.Scheduler = scheduler.NewService(
		batching.NewService(chunkRepo, batchRepo, &cfg.Analysis, logger.Named("batching")),
		c.Chunks,
		batchRepo,
		c.Analyzer,
		&cfg.Analysis,
		logger.Named("scheduler"),
	)

	c.Reprocessor, err = reprocess.NewService(
		batchRepo,
		observationRepo,
		cardRepo,
		c.Media,
		c.Analyzer,
		&cfg.Analysis,
		logger.Named("reprocess"),
	)
	if err != nil {
		return err
	}
	c.Runs = reprocess.NewRunTracker(c.Cache, time.Duration(cfg.Server.RunTTL)*time.Hour, logger.Named("runs"))
	c.Timeline = timeline.NewService(cardRepo, batchRepo, c.Location)

	return nil
}

// migrate runs GORM AutoMigrate outside production and sql-migrate otherwise
func (c *Container) migrate() error {
	cfg := c.Config
	if cfg.Database.AutoMigrate {
		if cfg.Server.Environment == "production" {
			return fmt.Errorf("AutoMigrate is enabled in production; disable DB_AUTO_MIGRATE and manage schema with sql-migrate")
		}
		c.Logger.Info("🔄 Running GORM AutoMigrate (development only)...")
		return database.AutoMigrate(c.DB)
	}
	if _, err := database.Migrate(c.DB, cfg.Database.Driver); err != nil {
		return err
	}
	return nil
}

// initCache uses Redis when enabled and an in-process store otherwise
func (c *Container) initCache() error {
	if !c.Config.Redis.Enabled {
		store := cache.NewMemoryStore()
		c.Cache = store
		c.closers = append(c.closers, func() { store.Close() })
		c.Logger.Info("🧠 Using in-memory run store")
		return nil
	}

	c.Logger.Info("📦 Connecting to Redis...", zap.String("addr", c.Config.GetRedisAddr()))
	client, err := cache.NewRedisClient(c.Config)
	if err != nil {
		return err
	}
	c.Cache = cache.NewRedisStore(client, redisKeyPrefix)
	c.closers = append(c.closers, func() { client.Close() })
	return nil
}

// Close releases resources in reverse order of acquisition
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
