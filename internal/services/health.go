package services

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/reelrank/internal/database"
	"github.com/temcen/reelrank/internal/metrics"
)

const healthCheckTimeout = 5 * time.Second

// Health states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

type HealthService struct {
	logger      *logrus.Logger
	critical    map[string]CheckFunc
	nonCritical map[string]CheckFunc
}

type HealthStatus struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Services    map[string]string `json:"services"`
	Critical    []string          `json:"critical_failures,omitempty"`
	NonCritical []string          `json:"non_critical_failures,omitempty"`
	Latency     time.Duration     `json:"latency,omitempty"`
}

// NewHealthService checks Postgres and the ranking Redis as critical, and the
// session Redis as non-critical since auth degrades without it.
func NewHealthService(db *database.Database, logger *logrus.Logger) *HealthService {
	return NewHealthServiceWithChecks(logger,
		map[string]CheckFunc{
			"postgresql":    db.PG.Ping,
			"redis_ranking": func(ctx context.Context) error { return db.Redis.Ranking.Ping(ctx).Err() },
		},
		map[string]CheckFunc{
			"redis_session": func(ctx context.Context) error { return db.Redis.Session.Ping(ctx).Err() },
		},
	)
}

func NewHealthServiceWithChecks(logger *logrus.Logger, critical, nonCritical map[string]CheckFunc) *HealthService {
	return &HealthService{
		logger:      logger,
		critical:    critical,
		nonCritical: nonCritical,
	}
}

func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{
		Timestamp: start,
		Services:  make(map[string]string),
	}

	status.Critical = s.run(ctx, s.critical, status.Services, logrus.ErrorLevel)
	status.NonCritical = s.run(ctx, s.nonCritical, status.Services, logrus.WarnLevel)

	switch {
	case len(status.Critical) > 0:
		status.Status = StatusUnhealthy
	case len(status.NonCritical) > 0:
		status.Status = StatusDegraded
	default:
		status.Status = StatusHealthy
	}
	status.Latency = time.Since(start)

	return status
}

func (s *HealthService) run(ctx context.Context, checks map[string]CheckFunc, results map[string]string, level logrus.Level) []string {
	var failed []string
	for name, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := check(checkCtx)
		cancel()

		if err != nil {
			results[name] = StatusUnhealthy
			failed = append(failed, name)
			s.logger.WithError(err).WithField("dependency", name).Log(level, "Dependency is unhealthy")
			metrics.DependencyHealth.WithLabelValues(name).Set(0)
			continue
		}
		results[name] = StatusHealthy
		metrics.DependencyHealth.WithLabelValues(name).Set(1)
	}
	sort.Strings(failed)
	return failed
}
