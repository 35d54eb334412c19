// Package delivery assembles the reel pages served to clients from each
// user's candidate list, falling back to the global statistical pool.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/reelrank/internal/candidates"
	"github.com/temcen/reelrank/internal/catalog"
	"github.com/temcen/reelrank/internal/config"
	"github.com/temcen/reelrank/internal/metrics"
	"github.com/temcen/reelrank/internal/ranking"
	"github.com/temcen/reelrank/internal/tasks"
	"github.com/temcen/reelrank/pkg/models"
)

const defaultBatchSize = 7

// Page sources.
const (
	PathCandidates = "candidates"
	PathColdStart  = "cold_start"
)

// Regenerator rebuilds a user's candidate list.
type Regenerator interface {
	Generate(ctx context.Context, dialect, userID string) (*candidates.Result, error)
}

type Assembler struct {
	store       ranking.Store
	catalog     catalog.Reader
	actions     catalog.ActionStore
	generator   Regenerator
	tasks       tasks.Submitter
	localizer   *Localizer
	breakpoints *BreakpointPolicy
	batchSize   int
	logger      *logrus.Logger
}

func NewAssembler(store ranking.Store, reader catalog.Reader, actions catalog.ActionStore,
	generator Regenerator, submitter tasks.Submitter, localizer *Localizer,
	breakpoints *BreakpointPolicy, cfg config.DeliveryConfig, logger *logrus.Logger) *Assembler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Assembler{
		store:       store,
		catalog:     reader,
		actions:     actions,
		generator:   generator,
		tasks:       submitter,
		localizer:   localizer,
		breakpoints: breakpoints,
		batchSize:   batchSize,
		logger:      logger,
	}
}

// GetPage serves the user's current candidate list, or the top of the
// statistical pool when the list is empty, and schedules a regeneration for
// the next page without waiting for it. Only ranking store failures are
// returned as errors.
func (a *Assembler) GetPage(ctx context.Context, req models.PageRequest) (*models.ReelPage, error) {
	dialect, userID := req.Dialect, req.UserID

	counter, err := a.advancePaging(ctx, dialect, userID, req.Cursor)
	if err != nil {
		return nil, err
	}

	ids, err := a.store.SMembers(ctx, ranking.CandidatesKey(dialect, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to read candidates: %w", err)
	}

	coldStart := len(ids) == 0
	if coldStart {
		ids, err = a.store.ZRevRange(ctx, ranking.StatisticalKey(dialect), 0, int64(a.batchSize-1))
		if err != nil {
			return nil, fmt.Errorf("failed to read statistical pool: %w", err)
		}
		if len(ids) > 0 {
			watermark := ids[len(ids)-1]
			if err := a.store.Set(ctx, ranking.StatisticalWatermarkKey(dialect, userID), watermark, 0); err != nil {
				return nil, fmt.Errorf("failed to store statistical watermark: %w", err)
			}
		}
	}

	items, resolved := a.resolve(ctx, dialect, ids)
	a.enrich(ctx, userID, items)

	servedIDs := make([]string, 0, len(items))
	for _, item := range items {
		servedIDs = append(servedIDs, item.ID)
	}

	items = a.injectBreakpoint(ctx, dialect, req.Lang, counter, items)

	if resolved {
		if err := a.store.ReplaceSet(ctx, ranking.PreviousKey(dialect, userID), servedIDs); err != nil {
			return nil, fmt.Errorf("failed to store previous batch: %w", err)
		}
	}

	// regeneration must start after the previous batch is stored
	a.scheduleRegeneration(dialect, userID)

	path := PathCandidates
	if coldStart {
		path = PathColdStart
	}
	metrics.PagesServed.WithLabelValues(dialect, path).Inc()

	a.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"dialect":    dialect,
		"path":       path,
		"items":      len(servedIDs),
		"page_index": counter,
	}).Debug("Page assembled")

	return &models.ReelPage{
		Items:      items,
		HasMore:    len(items) > 0,
		NextCursor: uuid.New().String(),
		Dialect:    dialect,
		ColdStart:  coldStart,
		ServedAt:   time.Now().UTC(),
	}, nil
}

// GetItemByID fetches one reel with the same per-user flags as page items.
// lang is accepted for parity with GetPage; reel metadata is not localized.
func (a *Assembler) GetItemByID(ctx context.Context, itemID, dialect, lang, userID string) (*models.Reel, error) {
	item, err := a.catalog.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Dialect != dialect {
		return nil, catalog.ErrItemNotFound
	}

	result := *item
	if userID != "" {
		items := []models.Reel{result}
		a.enrich(ctx, userID, items)
		result = items[0]
	}
	return &result, nil
}

func (a *Assembler) advancePaging(ctx context.Context, dialect, userID, cursor string) (int64, error) {
	key := ranking.PagingKey(dialect, userID)
	if cursor == "" {
		if err := ranking.WriteCounter(ctx, a.store, key, 0); err != nil {
			return 0, fmt.Errorf("failed to reset paging counter: %w", err)
		}
		return 0, nil
	}
	counter, err := a.store.Incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to advance paging counter: %w", err)
	}
	return counter, nil
}

func (a *Assembler) scheduleRegeneration(dialect, userID string) {
	a.tasks.Submit("candidate-regeneration", func(ctx context.Context) error {
		_, err := a.generator.Generate(ctx, dialect, userID)
		return err
	})
}

// resolve maps ids to live reels in id order, dropping ids that no longer
// resolve. ok is false when the catalog could not be reached at all.
func (a *Assembler) resolve(ctx context.Context, dialect string, ids []string) ([]models.Reel, bool) {
	if len(ids) == 0 {
		return []models.Reel{}, true
	}

	found, err := a.catalog.GetItems(ctx, ids)
	if err != nil {
		a.logger.WithError(err).WithField("dialect", dialect).Error("Catalog lookup failed, serving empty page")
		return []models.Reel{}, false
	}

	items := make([]models.Reel, 0, len(ids))
	for _, id := range ids {
		item, ok := found[id]
		if !ok || item.Dialect != dialect {
			a.logger.WithFields(logrus.Fields{
				"item_id": id,
				"dialect": dialect,
			}).Debug("Dropping unresolvable item")
			continue
		}
		items = append(items, *item)
	}
	return items, true
}

func (a *Assembler) enrich(ctx context.Context, userID string, items []models.Reel) {
	if userID == "" || len(items) == 0 {
		return
	}
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}

	states, err := a.actions.GetStates(ctx, userID, ids)
	if err != nil {
		a.logger.WithError(err).WithField("user_id", userID).Warn("Failed to load user action state")
		return
	}
	for i := range items {
		if state, ok := states[items[i].ID]; ok {
			items[i].Liked = state.Liked
			items[i].ContinueWatching = state.ContinueWatching()
		}
	}
}

func (a *Assembler) injectBreakpoint(ctx context.Context, dialect, lang string, counter int64, items []models.Reel) []models.Reel {
	slot := a.breakpoints.Next(counter)
	if slot <= 0 || slot > len(items) {
		return items
	}

	anchor := items[slot-1]
	genre, parentID := a.parentGenre(ctx, anchor)
	if genre == "" {
		return items
	}

	card := newBreakpointCard(dialect, a.localizer.BreakpointTitle(lang, genre), genre, parentID)
	metrics.BreakpointsInjected.WithLabelValues(dialect).Inc()
	return insertAt(items, slot-1, card)
}

// parentGenre is the dominant genre of the anchor's parent content, or of the
// anchor itself when the parent does not resolve. The catalog stores genres
// ordered by dominance, so the dominant genre is the first one.
func (a *Assembler) parentGenre(ctx context.Context, anchor models.Reel) (string, *string) {
	if anchor.ParentID != nil && *anchor.ParentID != "" {
		parent, err := a.catalog.GetItem(ctx, *anchor.ParentID)
		switch {
		case err == nil && len(parent.Genres) > 0:
			return parent.Genres[0], anchor.ParentID
		case err != nil && !errors.Is(err, catalog.ErrItemNotFound):
			a.logger.WithError(err).WithField("item_id", *anchor.ParentID).Warn("Parent lookup failed")
		}
	}
	if len(anchor.Genres) > 0 {
		return anchor.Genres[0], anchor.ParentID
	}
	return "", nil
}
