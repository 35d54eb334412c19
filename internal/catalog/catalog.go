// Package catalog reads reel metadata from the content store and keeps the
// per-user action record for each reel.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/temcen/reelrank/pkg/models"
)

// ErrItemNotFound is returned for ids that do not resolve to live content.
var ErrItemNotFound = errors.New("catalog: item not found")

// Querier is the subset of pgxpool.Pool used by this package.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Reader is the read-only view of the content catalog.
type Reader interface {
	GetItem(ctx context.Context, itemID string) (*models.Reel, error)
	GetItems(ctx context.Context, itemIDs []string) (map[string]*models.Reel, error)
	ResolveSlug(ctx context.Context, dialect, kind, slug string) (string, error)
	ListActive(ctx context.Context, dialect string) ([]models.Reel, error)
}

const reelColumns = `id, slug, kind, dialect, parent_id, title, genres, duration,
		thumbnail_url, view_count, like_count, share_count, created_at`

// PostgresCatalog implements Reader over the reel_items table.
type PostgresCatalog struct {
	db     Querier
	logger *logrus.Logger
}

func NewPostgresCatalog(db Querier, logger *logrus.Logger) *PostgresCatalog {
	return &PostgresCatalog{
		db:     db,
		logger: logger,
	}
}

func (c *PostgresCatalog) GetItem(ctx context.Context, itemID string) (*models.Reel, error) {
	query := `SELECT ` + reelColumns + `
		FROM reel_items
		WHERE id = $1 AND active = true`

	reel, err := scanReel(c.db.QueryRow(ctx, query, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reel %s: %w", itemID, err)
	}
	return reel, nil
}

// GetItems returns the live subset of itemIDs; ids that do not resolve are
// simply absent from the result.
func (c *PostgresCatalog) GetItems(ctx context.Context, itemIDs []string) (map[string]*models.Reel, error) {
	result := make(map[string]*models.Reel, len(itemIDs))
	if len(itemIDs) == 0 {
		return result, nil
	}

	query := `SELECT ` + reelColumns + `
		FROM reel_items
		WHERE id = ANY($1) AND active = true`

	rows, err := c.db.Query(ctx, query, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query reels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		reel, err := scanReel(rows)
		if err != nil {
			c.logger.WithError(err).Warn("Failed to scan reel row")
			continue
		}
		result[reel.ID] = reel
	}

	return result, rows.Err()
}

func (c *PostgresCatalog) ResolveSlug(ctx context.Context, dialect, kind, slug string) (string, error) {
	query := `SELECT id FROM reel_items
		WHERE dialect = $1 AND kind = $2 AND slug = $3 AND active = true`

	var id string
	err := c.db.QueryRow(ctx, query, dialect, kind, slug).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrItemNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve slug %s/%s: %w", kind, slug, err)
	}
	return id, nil
}

func (c *PostgresCatalog) ListActive(ctx context.Context, dialect string) ([]models.Reel, error) {
	query := `SELECT ` + reelColumns + `
		FROM reel_items
		WHERE dialect = $1 AND active = true
		ORDER BY kind, id`

	rows, err := c.db.Query(ctx, query, dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to list active reels: %w", err)
	}
	defer rows.Close()

	var reels []models.Reel
	for rows.Next() {
		reel, err := scanReel(rows)
		if err != nil {
			c.logger.WithError(err).WithField("dialect", dialect).Warn("Failed to scan reel row")
			continue
		}
		reels = append(reels, *reel)
	}

	return reels, rows.Err()
}

func scanReel(row pgx.Row) (*models.Reel, error) {
	var reel models.Reel
	var thumbnail *string

	err := row.Scan(
		&reel.ID,
		&reel.Slug,
		&reel.Kind,
		&reel.Dialect,
		&reel.ParentID,
		&reel.Title,
		&reel.Genres,
		&reel.Duration,
		&thumbnail,
		&reel.ViewCount,
		&reel.LikeCount,
		&reel.ShareCount,
		&reel.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if thumbnail != nil {
		reel.ThumbnailURL = *thumbnail
	}
	reel.Type = models.ReelTypeVideo
	reel.Playable = true
	reel.Active = true
	return &reel, nil
}

var _ Reader = (*PostgresCatalog)(nil)
