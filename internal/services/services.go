package services

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/temcen/reelrank/internal/analytics"
	"github.com/temcen/reelrank/internal/candidates"
	"github.com/temcen/reelrank/internal/catalog"
	"github.com/temcen/reelrank/internal/config"
	"github.com/temcen/reelrank/internal/database"
	"github.com/temcen/reelrank/internal/delivery"
	"github.com/temcen/reelrank/internal/engagement"
	"github.com/temcen/reelrank/internal/messaging"
	"github.com/temcen/reelrank/internal/ranking"
	"github.com/temcen/reelrank/internal/scoring"
	"github.com/temcen/reelrank/internal/tasks"
	"github.com/temcen/reelrank/internal/validation"
)

type Services struct {
	Auth       *AuthService
	Health     *HealthService
	RateLimit  *RateLimitService
	Validator  *validation.SchemaValidator
	Store      ranking.Store
	Catalog    *catalog.PostgresCatalog
	Actions    *catalog.ActionRepository
	Tasks      *tasks.Pool
	Engagement *engagement.Service
	Generator  *candidates.Generator
	Assembler  *delivery.Assembler
	Signals    *analytics.Client
	Worker     *scoring.Worker
	JobBus     *messaging.JobBus
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	validator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}

	store := ranking.NewRedisStore(db.Redis.Ranking)
	reels := catalog.NewPostgresCatalog(db.PG, logger)
	actions := catalog.NewActionRepository(db.PG, logger)
	pool := tasks.NewPool(cfg.Tasks, logger)

	engagementService := engagement.NewService(store, reels, actions, pool, cfg.Ranking, logger)
	generator := candidates.NewGenerator(store, reels, cfg.Ranking, logger)
	assembler := delivery.NewAssembler(
		store, reels, actions, generator, pool,
		delivery.NewLocalizer(cfg.Delivery.DefaultLang),
		delivery.NewBreakpointPolicy(cfg.Delivery, 0),
		cfg.Delivery, logger,
	)

	signals := analytics.NewClient(cfg.Analytics, validator, logger)
	worker := scoring.NewWorker(store, reels, signals, cfg, logger)

	return &Services{
		Auth:       NewAuthService(cfg, logger, db.Redis.Session),
		Health:     NewHealthService(db, logger),
		RateLimit:  NewRateLimitService(cfg, logger, db.Redis.Session),
		Validator:  validator,
		Store:      store,
		Catalog:    reels,
		Actions:    actions,
		Tasks:      pool,
		Engagement: engagementService,
		Generator:  generator,
		Assembler:  assembler,
		Signals:    signals,
		Worker:     worker,
		JobBus:     messaging.NewJobBus(cfg, validator, logger),
	}, nil
}

// Close stops background work and releases the job bus connections.
func (s *Services) Close() error {
	s.Tasks.Stop()
	return s.JobBus.Close()
}
