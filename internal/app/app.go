package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/temcen/reelrank/internal/config"
	"github.com/temcen/reelrank/internal/database"
	"github.com/temcen/reelrank/internal/handlers"
	"github.com/temcen/reelrank/internal/middleware"
	"github.com/temcen/reelrank/internal/services"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine

	cancelConsumer context.CancelFunc
	consumerDone   sync.WaitGroup
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	services, err := services.New(cfg, app.logger, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = services

	app.handlers = handlers.New(app.logger, services)
	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// StartConsumer runs the score job consumer until Shutdown.
func (a *App) StartConsumer() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelConsumer = cancel

	a.consumerDone.Add(1)
	go func() {
		defer a.consumerDone.Done()
		err := a.services.JobBus.Consume(ctx, a.services.Worker.Run)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.WithError(err).Error("Score job consumer stopped")
		}
	}()

	a.logger.WithField("topic", a.config.Kafka.Topics.ScoreJobs).Info("Score job consumer started")
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.cancelConsumer != nil {
		a.cancelConsumer()
	}
	done := make(chan struct{})
	go func() {
		a.consumerDone.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("Score job consumer did not stop before the shutdown deadline")
	}

	var errs []error
	if err := a.services.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing services")
		errs = append(errs, err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	a.router = newRouter(a.config, a.logger, a.handlers, a.services.Auth, a.services.RateLimit)
}

func newRouter(cfg *config.Config, logger *logrus.Logger, h *handlers.Handlers,
	auth middleware.Authenticator, limiter middleware.Limiter) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Metrics())
	router.Use(middleware.CORS(cfg))

	router.GET("/health", h.Health.Check)

	if cfg.Monitoring.Enabled {
		path := cfg.Monitoring.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1")
	{
		api.POST("/auth/token", h.Auth.Token)

		secured := api.Group("")
		secured.Use(middleware.Auth(auth, logger))
		secured.Use(middleware.RateLimit(limiter, logger))

		reels := secured.Group("/reels")
		{
			reels.GET("", h.Reels.GetPage)
			reels.GET("/:itemId", h.Reels.GetItem)
			reels.POST("/:itemId/actions", h.Reels.RecordAction)
			reels.POST("/:itemId/progress", h.Reels.RecordProgress)
		}

		admin := secured.Group("/admin")
		admin.Use(middleware.RequireTier(logger, cfg.Auth.AdminTiers...))
		{
			admin.POST("/jobs/:job", h.Jobs.Trigger)
		}
	}

	return router
}
