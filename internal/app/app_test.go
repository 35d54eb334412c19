package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/temcen/reelrank/internal/config"
	"github.com/temcen/reelrank/internal/handlers"
	"github.com/temcen/reelrank/internal/services"
	"github.com/temcen/reelrank/pkg/models"
)

type stubAuth struct{}

func (stubAuth) ValidateAPIKey(apiKey string) (string, error) {
	switch apiKey {
	case "demo-free-key":
		return "free", nil
	case "demo-enterprise-key":
		return "enterprise", nil
	}
	return "", errors.New("invalid API key")
}

func (stubAuth) ValidateToken(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	return nil, errors.New("invalid token")
}

func (stubAuth) GenerateToken(ctx context.Context, userID, apiKey, userTier string) (*models.AuthResponse, error) {
	return &models.AuthResponse{Token: "t", UserTier: userTier}, nil
}

type stubLimiter struct{}

func (stubLimiter) IsAllowed(ctx context.Context, userID, userTier string) (bool, *models.RateLimitInfo, error) {
	return true, &models.RateLimitInfo{Limit: 10, Remaining: 9}, nil
}

type stubPages struct{}

func (stubPages) GetPage(ctx context.Context, req models.PageRequest) (*models.ReelPage, error) {
	return &models.ReelPage{Items: []models.Reel{}, Dialect: req.Dialect}, nil
}

func (stubPages) GetItemByID(ctx context.Context, itemID, dialect, lang, userID string) (*models.Reel, error) {
	return &models.Reel{ID: itemID}, nil
}

type stubEngagement struct{}

func (stubEngagement) RecordAction(ctx context.Context, userID, itemID, dialect string, action models.Action) (*models.ActionResponse, error) {
	return &models.ActionResponse{ItemID: itemID, Action: action}, nil
}

func (stubEngagement) RecordWatchProgress(ctx context.Context, userID, itemID, dialect string, watchDuration, totalDuration float64, at time.Time) (int, error) {
	return 1, nil
}

type stubPublisher struct{}

func (stubPublisher) Publish(ctx context.Context, name string, dialects []string) (models.ScoreJob, error) {
	return models.ScoreJob{Name: name}, nil
}

type stubHealth struct{}

func (stubHealth) CheckHealth(ctx context.Context) *services.HealthStatus {
	return &services.HealthStatus{Status: services.StatusHealthy}
}

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := &config.Config{}
	cfg.Monitoring.Enabled = true
	cfg.Auth.AdminTiers = []string{"enterprise"}
	cfg.Security.CORS.AllowedOrigins = []string{"*"}
	cfg.Security.CORS.AllowedMethods = []string{"GET", "POST"}

	h := &handlers.Handlers{
		Health: handlers.NewHealthHandler(logger, stubHealth{}),
		Reels:  handlers.NewReelHandler(logger, stubPages{}, stubEngagement{}),
		Jobs:   handlers.NewJobHandler(logger, stubPublisher{}),
		Auth:   handlers.NewAuthHandler(logger, stubAuth{}),
	}
	return newRouter(cfg, logger, h, stubAuth{}, stubLimiter{})
}

func TestRouter(t *testing.T) {
	router := testRouter()

	tests := []struct {
		name     string
		method   string
		path     string
		auth     string
		expected int
	}{
		{name: "health is public", method: http.MethodGet, path: "/health", expected: http.StatusOK},
		{name: "metrics are public", method: http.MethodGet, path: "/metrics", expected: http.StatusOK},
		{name: "reels need auth", method: http.MethodGet, path: "/api/v1/reels?dialect=en", expected: http.StatusUnauthorized},
		{name: "reels with api key", method: http.MethodGet, path: "/api/v1/reels?dialect=en", auth: "Bearer demo-free-key", expected: http.StatusOK},
		{name: "item with api key", method: http.MethodGet, path: "/api/v1/reels/r1?dialect=en", auth: "Bearer demo-free-key", expected: http.StatusOK},
		{name: "admin job", method: http.MethodPost, path: "/api/v1/admin/jobs/" + models.JobSerendipityUpdate, auth: "Bearer demo-enterprise-key", expected: http.StatusAccepted},
		{name: "admin job needs admin tier", method: http.MethodPost, path: "/api/v1/admin/jobs/" + models.JobSimilarityUpdate, auth: "Bearer demo-free-key", expected: http.StatusForbidden},
		{name: "unknown route", method: http.MethodGet, path: "/api/v2/reels", expected: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.expected, w.Code)
		})
	}
}

func TestSetupLogger(t *testing.T) {
	cfg := &config.Config{}
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"

	logger := setupLogger(cfg)
	assert.Equal(t, logrus.DebugLevel, logger.Level)
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	cfg.Logging.Level = "nonsense"
	assert.Equal(t, logrus.InfoLevel, setupLogger(cfg).Level)
}
