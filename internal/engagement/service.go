// Package engagement turns user actions into the per-user ranking state read
// by candidate generation: engagement scores, engagement level and boost
// weights.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/reelrank/internal/catalog"
	"github.com/temcen/reelrank/internal/config"
	"github.com/temcen/reelrank/internal/metrics"
	"github.com/temcen/reelrank/internal/ranking"
	"github.com/temcen/reelrank/internal/tasks"
	"github.com/temcen/reelrank/pkg/models"
)

// ErrInvalidAction is returned for an action outside view, like and share.
var ErrInvalidAction = errors.New("engagement: invalid action")

const defaultEngagementWindow = 5

type Service struct {
	store   ranking.Store
	catalog catalog.Reader
	actions catalog.ActionStore
	tasks   tasks.Submitter
	window  int
	logger  *logrus.Logger
}

func NewService(store ranking.Store, reader catalog.Reader, actions catalog.ActionStore,
	submitter tasks.Submitter, cfg config.RankingConfig, logger *logrus.Logger) *Service {
	window := cfg.EngagementWindow
	if window <= 0 {
		window = defaultEngagementWindow
	}
	return &Service{
		store:   store,
		catalog: reader,
		actions: actions,
		tasks:   submitter,
		window:  window,
		logger:  logger,
	}
}

// RecordWatchProgress appends the item to the watched set and adds the watch
// tier score to the item's engagement. Both writes complete before it
// returns. It returns the engagement increment applied.
func (s *Service) RecordWatchProgress(ctx context.Context, userID, itemID, dialect string,
	watchDuration, totalDuration float64, at time.Time) (int, error) {
	if err := s.ensureItem(ctx, itemID, dialect); err != nil {
		return 0, err
	}
	if at.IsZero() {
		at = time.Now()
	}

	if err := s.store.ZAdd(ctx, ranking.WatchedKey(dialect, userID),
		ranking.Member{ID: itemID, Score: float64(at.Unix())}); err != nil {
		return 0, fmt.Errorf("failed to append watched item: %w", err)
	}

	tier := WatchTier(watchDuration, totalDuration)
	if _, err := s.store.ZIncrBy(ctx, ranking.EngagementKey(dialect, userID), float64(tier), itemID); err != nil {
		return 0, fmt.Errorf("failed to update engagement: %w", err)
	}

	if err := s.actions.SaveProgress(ctx, userID, itemID, dialect, watchDuration, totalDuration, at); err != nil {
		return 0, err
	}

	metrics.ActionsRecorded.WithLabelValues("progress").Inc()
	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"item_id": itemID,
		"dialect": dialect,
		"tier":    tier,
	}).Debug("Watch progress recorded")

	return tier, nil
}

// RecordAction applies a view, like or share. Likes and shares schedule a
// boost-weight recomputation without waiting for it.
func (s *Service) RecordAction(ctx context.Context, userID, itemID, dialect string, action models.Action) (*models.ActionResponse, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if err := s.ensureItem(ctx, itemID, dialect); err != nil {
		return nil, err
	}

	resp := &models.ActionResponse{ItemID: itemID, Action: action}

	switch action {
	case models.ActionView:
		if err := s.actions.IncrementViews(ctx, userID, itemID, dialect); err != nil {
			return nil, err
		}

	case models.ActionLike:
		newLiked, err := s.actions.ToggleLike(ctx, userID, itemID, dialect)
		if err != nil {
			return nil, err
		}
		_, delta := Transition(!newLiked, models.ActionLike)
		if err := s.applyDelta(ctx, userID, itemID, dialect, delta); err != nil {
			return nil, err
		}
		resp.Liked = &newLiked
		s.scheduleBoostRecompute(dialect, userID)

	case models.ActionShare:
		if err := s.actions.IncrementShares(ctx, userID, itemID, dialect); err != nil {
			return nil, err
		}
		_, delta := Transition(false, models.ActionShare)
		if err := s.applyDelta(ctx, userID, itemID, dialect, delta); err != nil {
			return nil, err
		}
		s.scheduleBoostRecompute(dialect, userID)
	}

	metrics.ActionsRecorded.WithLabelValues(string(action)).Inc()
	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"item_id": itemID,
		"dialect": dialect,
		"action":  action,
	}).Debug("Action recorded")

	return resp, nil
}

// RecomputeBoost derives the engagement level from the most recently watched
// items and overwrites the boost weights with the level's row.
func (s *Service) RecomputeBoost(ctx context.Context, dialect, userID string) (Level, error) {
	recent, err := s.store.ZRevRange(ctx, ranking.WatchedKey(dialect, userID), 0, int64(s.window-1))
	if err != nil {
		return "", fmt.Errorf("failed to read watched items: %w", err)
	}

	var total float64
	engagementKey := ranking.EngagementKey(dialect, userID)
	for _, itemID := range recent {
		score, err := ranking.ScoreOrZero(ctx, s.store, engagementKey, itemID)
		if err != nil {
			return "", fmt.Errorf("failed to read engagement of %s: %w", itemID, err)
		}
		total += score
	}

	level := LevelFor(total)
	if err := ranking.WriteBoostWeights(ctx, s.store, dialect, userID, WeightsFor(level)); err != nil {
		return "", err
	}
	if err := s.store.Set(ctx, ranking.EngagementLevelKey(dialect, userID), string(level), 0); err != nil {
		return "", fmt.Errorf("failed to store engagement level: %w", err)
	}

	metrics.EngagementLevels.WithLabelValues(string(level)).Inc()
	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"dialect": dialect,
		"total":   total,
		"level":   level,
	}).Debug("Boost weights recomputed")

	return level, nil
}

func (s *Service) applyDelta(ctx context.Context, userID, itemID, dialect string, delta int) error {
	if delta == 0 {
		return nil
	}
	if _, err := s.store.ZIncrBy(ctx, ranking.EngagementKey(dialect, userID), float64(delta), itemID); err != nil {
		return fmt.Errorf("failed to update engagement: %w", err)
	}
	return nil
}

func (s *Service) scheduleBoostRecompute(dialect, userID string) {
	s.tasks.Submit("boost-recompute", func(ctx context.Context) error {
		_, err := s.RecomputeBoost(ctx, dialect, userID)
		return err
	})
}

func (s *Service) ensureItem(ctx context.Context, itemID, dialect string) error {
	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Dialect != dialect {
		return catalog.ErrItemNotFound
	}
	return nil
}
