package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/reelrank/pkg/models"
)

// ActionStore keeps the per-user action record of each reel.
type ActionStore interface {
	IncrementViews(ctx context.Context, userID, itemID, dialect string) error
	// ToggleLike flips the liked flag and returns the new state.
	ToggleLike(ctx context.Context, userID, itemID, dialect string) (bool, error)
	IncrementShares(ctx context.Context, userID, itemID, dialect string) error
	SaveProgress(ctx context.Context, userID, itemID, dialect string, watchDuration, totalDuration float64, at time.Time) error
	GetStates(ctx context.Context, userID string, itemIDs []string) (map[string]models.UserItemState, error)
}

// ActionRepository implements ActionStore over the reel_user_actions table.
type ActionRepository struct {
	db     Querier
	logger *logrus.Logger
}

func NewActionRepository(db Querier, logger *logrus.Logger) *ActionRepository {
	return &ActionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ActionRepository) IncrementViews(ctx context.Context, userID, itemID, dialect string) error {
	query := `
		INSERT INTO reel_user_actions (user_id, item_id, dialect, views, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (user_id, item_id)
		DO UPDATE SET views = reel_user_actions.views + 1, updated_at = now()`

	if _, err := r.db.Exec(ctx, query, userID, itemID, dialect); err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}
	return nil
}

func (r *ActionRepository) ToggleLike(ctx context.Context, userID, itemID, dialect string) (bool, error) {
	query := `
		INSERT INTO reel_user_actions (user_id, item_id, dialect, liked, updated_at)
		VALUES ($1, $2, $3, true, now())
		ON CONFLICT (user_id, item_id)
		DO UPDATE SET liked = NOT reel_user_actions.liked, updated_at = now()
		RETURNING liked`

	var liked bool
	if err := r.db.QueryRow(ctx, query, userID, itemID, dialect).Scan(&liked); err != nil {
		return false, fmt.Errorf("failed to toggle like: %w", err)
	}
	return liked, nil
}

func (r *ActionRepository) IncrementShares(ctx context.Context, userID, itemID, dialect string) error {
	query := `
		INSERT INTO reel_user_actions (user_id, item_id, dialect, shares, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (user_id, item_id)
		DO UPDATE SET shares = reel_user_actions.shares + 1, updated_at = now()`

	if _, err := r.db.Exec(ctx, query, userID, itemID, dialect); err != nil {
		return fmt.Errorf("failed to increment shares: %w", err)
	}
	return nil
}

func (r *ActionRepository) SaveProgress(ctx context.Context, userID, itemID, dialect string, watchDuration, totalDuration float64, at time.Time) error {
	query := `
		INSERT INTO reel_user_actions (user_id, item_id, dialect, watch_duration, total_duration, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, item_id)
		DO UPDATE SET watch_duration = $4, total_duration = $5, updated_at = $6`

	if _, err := r.db.Exec(ctx, query, userID, itemID, dialect, watchDuration, totalDuration, at); err != nil {
		return fmt.Errorf("failed to save watch progress: %w", err)
	}
	return nil
}

func (r *ActionRepository) GetStates(ctx context.Context, userID string, itemIDs []string) (map[string]models.UserItemState, error) {
	states := make(map[string]models.UserItemState, len(itemIDs))
	if len(itemIDs) == 0 {
		return states, nil
	}

	query := `
		SELECT user_id, item_id, dialect, views, liked, shares, watch_duration, total_duration, updated_at
		FROM reel_user_actions
		WHERE user_id = $1 AND item_id = ANY($2)`

	rows, err := r.db.Query(ctx, query, userID, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query user actions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.UserItemState
		if err := rows.Scan(
			&s.UserID,
			&s.ItemID,
			&s.Dialect,
			&s.Views,
			&s.Liked,
			&s.Shares,
			&s.WatchDuration,
			&s.TotalDuration,
			&s.UpdatedAt,
		); err != nil {
			r.logger.WithError(err).WithField("user_id", userID).Warn("Failed to scan user action row")
			continue
		}
		states[s.ItemID] = s
	}

	return states, rows.Err()
}

var _ ActionStore = (*ActionRepository)(nil)
