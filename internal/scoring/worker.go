// Package scoring recomputes the global statistical, similarity and
// serendipity rankings of every dialect.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/temcen/reelrank/internal/analytics"
	"github.com/temcen/reelrank/internal/catalog"
	"github.com/temcen/reelrank/internal/config"
	"github.com/temcen/reelrank/internal/metrics"
	"github.com/temcen/reelrank/internal/ranking"
	"github.com/temcen/reelrank/pkg/models"
)

// Pass names.
const (
	PassStatistical = "statistical"
	PassSimilarity  = "similarity"
	PassSerendipity = "serendipity"
)

// ErrUnknownJob is returned by Run for a job it has no pass for.
var ErrUnknownJob = errors.New("scoring: unknown job")

type passFunc func(ctx context.Context, dialect string) error

// Worker runs the three scoring passes. Each pass covers every dialect
// concurrently, each dialect under its own timeout; one dialect failing does
// not stop the others.
type Worker struct {
	store         ranking.Store
	catalog       catalog.Reader
	signals       analytics.SignalSource
	dialects      []string
	kinds         []string
	priorStrength float64
	passTimeout   time.Duration
	maxPerShard   int
	logger        *logrus.Logger
}

func NewWorker(store ranking.Store, reader catalog.Reader, signals analytics.SignalSource,
	cfg *config.Config, logger *logrus.Logger) *Worker {
	prior := cfg.Scoring.PriorStrength
	if prior <= 0 {
		prior = DefaultPriorStrength
	}
	return &Worker{
		store:         store,
		catalog:       reader,
		signals:       signals,
		dialects:      cfg.Ranking.Dialects,
		kinds:         cfg.Ranking.ContentKinds,
		priorStrength: prior,
		passTimeout:   cfg.Scoring.PassTimeout,
		maxPerShard:   cfg.Scoring.MaxItemsPerShard,
		logger:        logger,
	}
}

// Run executes the pass named by the job. It fails only when the pass failed
// for every requested dialect.
func (w *Worker) Run(ctx context.Context, job models.ScoreJob) error {
	dialects := job.Dialects
	if len(dialects) == 0 {
		dialects = w.dialects
	}

	switch job.Name {
	case models.JobStatisticalUpdate:
		return w.runPass(ctx, PassStatistical, dialects, w.statisticalPass)
	case models.JobSimilarityUpdate:
		return w.runPass(ctx, PassSimilarity, dialects, w.similarityPass)
	case models.JobSerendipityUpdate:
		return w.runPass(ctx, PassSerendipity, dialects, w.serendipityPass)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, job.Name)
	}
}

func (w *Worker) runPass(ctx context.Context, pass string, dialects []string, fn passFunc) error {
	if len(dialects) == 0 {
		return nil
	}

	var (
		mu       sync.Mutex
		failures int
		g, gctx  = errgroup.WithContext(ctx)
	)

	for _, dialect := range dialects {
		dialect := dialect
		g.Go(func() error {
			passCtx := gctx
			if w.passTimeout > 0 {
				var cancel context.CancelFunc
				passCtx, cancel = context.WithTimeout(gctx, w.passTimeout)
				defer cancel()
			}

			start := time.Now()
			err := fn(passCtx, dialect)
			metrics.ObserveSince(metrics.ScoringPassDuration.WithLabelValues(pass, dialect), start)

			logEntry := w.logger.WithFields(logrus.Fields{
				"pass":     pass,
				"dialect":  dialect,
				"duration": time.Since(start),
			})
			if err != nil {
				metrics.ScoringPassFailures.WithLabelValues(pass, dialect).Inc()
				logEntry.WithError(err).Error("Scoring pass failed")
				mu.Lock()
				failures++
				mu.Unlock()
				return nil
			}
			logEntry.Info("Scoring pass completed")
			return nil
		})
	}

	_ = g.Wait()

	if failures == len(dialects) {
		return fmt.Errorf("%s pass failed for every dialect", pass)
	}
	return nil
}

// statisticalPass scores every item of the feed with Bayesian shrinkage
// toward its batch mean. One failing content kind does not stop the others.
func (w *Worker) statisticalPass(ctx context.Context, dialect string) error {
	var errs []error
	written := 0

	for _, kind := range w.kinds {
		feed, err := w.signals.FetchSignals(ctx, dialect, kind)
		if err != nil {
			w.logger.WithError(err).WithFields(logrus.Fields{
				"pass":    PassStatistical,
				"dialect": dialect,
				"kind":    kind,
			}).Warn("Failed to fetch statistical signals")
			errs = append(errs, err)
			continue
		}

		n, err := w.writeStatistical(ctx, dialect, kind, feed.Items)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		written += n
	}

	if len(errs) > 0 && len(errs) == len(w.kinds) {
		return errors.Join(errs...)
	}

	w.logger.WithFields(logrus.Fields{
		"pass":    PassStatistical,
		"dialect": dialect,
		"items":   written,
	}).Debug("Statistical scores written")
	return nil
}

func (w *Worker) writeStatistical(ctx context.Context, dialect, kind string, signals []analytics.Signal) (int, error) {
	cohortMean := CohortMean(signals)
	members := make([]ranking.Member, 0, len(signals))

	for _, s := range signals {
		itemKind := s.Kind
		if itemKind == "" {
			itemKind = kind
		}
		itemID, err := w.catalog.ResolveSlug(ctx, dialect, itemKind, s.Slug)
		if err != nil {
			reason := "lookup_failed"
			if errors.Is(err, catalog.ErrItemNotFound) {
				reason = "unresolved"
			}
			metrics.ScoringItemsSkipped.WithLabelValues(PassStatistical, reason).Inc()
			w.logger.WithError(err).WithFields(logrus.Fields{
				"dialect": dialect,
				"kind":    itemKind,
				"slug":    s.Slug,
			}).Debug("Skipping unresolvable item")
			continue
		}

		score := ShrunkScore(s.CIW, QualityRate(s), cohortMean, w.priorStrength)
		members = append(members, ranking.Member{ID: itemID, Score: score})
	}

	if len(members) == 0 {
		return 0, nil
	}
	if err := w.store.ZAdd(ctx, ranking.StatisticalKey(dialect), members...); err != nil {
		return 0, fmt.Errorf("failed to write statistical scores: %w", err)
	}
	return len(members), nil
}

// similarityPass writes pairwise genre cosine similarity within each content
// kind and rebuilds the per-genre item sets.
func (w *Worker) similarityPass(ctx context.Context, dialect string) error {
	items, err := w.catalog.ListActive(ctx, dialect)
	if err != nil {
		return fmt.Errorf("failed to list active items: %w", err)
	}

	vocabulary := GenreVocabulary(items)

	shards := make(map[string][]models.Reel)
	var shardOrder []string
	genreMembers := make(map[string][]string)
	for _, item := range items {
		if _, ok := shards[item.Kind]; !ok {
			shardOrder = append(shardOrder, item.Kind)
		}
		shards[item.Kind] = append(shards[item.Kind], item)
		for _, g := range item.Genres {
			genreMembers[g] = append(genreMembers[g], item.ID)
		}
	}

	pairs := 0
	for _, kind := range shardOrder {
		shard := shards[kind]
		if w.maxPerShard > 0 && len(shard) > w.maxPerShard {
			w.logger.WithFields(logrus.Fields{
				"pass":    PassSimilarity,
				"dialect": dialect,
				"kind":    kind,
				"items":   len(shard),
				"limit":   w.maxPerShard,
			}).Warn("Similarity shard truncated")
			shard = shard[:w.maxPerShard]
		}

		n, err := w.writeSimilarityShard(ctx, dialect, shard, vocabulary)
		if err != nil {
			return err
		}
		pairs += n
	}

	for genre, ids := range genreMembers {
		if err := w.store.ReplaceSet(ctx, ranking.GenreKey(dialect, genre), ids); err != nil {
			return fmt.Errorf("failed to write genre set %s: %w", genre, err)
		}
	}

	w.logger.WithFields(logrus.Fields{
		"pass":    PassSimilarity,
		"dialect": dialect,
		"items":   len(items),
		"pairs":   pairs,
		"genres":  len(genreMembers),
	}).Debug("Similarity scores written")
	return nil
}

func (w *Worker) writeSimilarityShard(ctx context.Context, dialect string, shard []models.Reel, vocabulary map[string]int) (int, error) {
	vectors := make([][]float64, len(shard))
	for i, item := range shard {
		vectors[i] = GenreVector(item.Genres, vocabulary)
	}

	neighbors := make(map[string][]ranking.Member)
	pairs := 0
	for i := 0; i < len(shard); i++ {
		if err := ctx.Err(); err != nil {
			return pairs, err
		}
		for j := i + 1; j < len(shard); j++ {
			score := Cosine(vectors[i], vectors[j]) * 100
			if score <= 0 {
				continue
			}
			a, b := shard[i].ID, shard[j].ID
			neighbors[a] = append(neighbors[a], ranking.Member{ID: b, Score: score})
			neighbors[b] = append(neighbors[b], ranking.Member{ID: a, Score: score})
			pairs++
		}
	}

	for itemID, members := range neighbors {
		if err := w.store.ZAdd(ctx, ranking.SimilarityKey(dialect, itemID), members...); err != nil {
			return pairs, fmt.Errorf("failed to write similarity of %s: %w", itemID, err)
		}
	}
	return pairs, nil
}

// serendipityPass scores each item from its closest neighbour. Contributions
// are summed in memory and written as absolute scores, so re-running the pass
// yields the same values.
func (w *Worker) serendipityPass(ctx context.Context, dialect string) error {
	items, err := w.catalog.ListActive(ctx, dialect)
	if err != nil {
		return fmt.Errorf("failed to list active items: %w", err)
	}

	scores := make(map[string]float64)
	var order []string
	statKey := ranking.StatisticalKey(dialect)

	for _, item := range items {
		top, err := w.store.ZRevRangeWithScores(ctx, ranking.SimilarityKey(dialect, item.ID), 0, 0)
		if err != nil {
			return fmt.Errorf("failed to read neighbours of %s: %w", item.ID, err)
		}
		if len(top) == 0 {
			metrics.ScoringItemsSkipped.WithLabelValues(PassSerendipity, "no_neighbor").Inc()
			w.logger.WithFields(logrus.Fields{
				"dialect": dialect,
				"item_id": item.ID,
			}).Debug("Skipping item without neighbours")
			continue
		}

		neighbor := top[0]
		neighborStat, err := w.store.ZScore(ctx, statKey, neighbor.ID)
		if errors.Is(err, ranking.ErrNotFound) {
			metrics.ScoringItemsSkipped.WithLabelValues(PassSerendipity, "no_statistical").Inc()
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read statistical score of %s: %w", neighbor.ID, err)
		}

		if _, ok := scores[item.ID]; !ok {
			order = append(order, item.ID)
		}
		scores[item.ID] += SerendipityContribution(neighbor.Score, neighborStat)
	}

	if len(order) == 0 {
		return nil
	}

	members := make([]ranking.Member, 0, len(order))
	for _, id := range order {
		members = append(members, ranking.Member{ID: id, Score: scores[id]})
	}
	if err := w.store.ZAdd(ctx, ranking.SerendipityKey(dialect), members...); err != nil {
		return fmt.Errorf("failed to write serendipity scores: %w", err)
	}

	w.logger.WithFields(logrus.Fields{
		"pass":    PassSerendipity,
		"dialect": dialect,
		"items":   len(members),
	}).Debug("Serendipity scores written")
	return nil
}
