// Package candidates builds each user's next recommendation batch by blending
// the statistical, serendipity and similarity pools under the user's boost
// weights.
package candidates

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/reelrank/internal/catalog"
	"github.com/temcen/reelrank/internal/config"
	"github.com/temcen/reelrank/internal/engagement"
	"github.com/temcen/reelrank/internal/metrics"
	"github.com/temcen/reelrank/internal/ranking"
)

const (
	defaultListSize = 10

	// maxCandidatePullIterations bounds the batches read from one pool per
	// run, excluded members included.
	maxCandidatePullIterations = 4

	defaultGenreWindow = 5
	engagementScanSize = 50
)

// Pool names used in logs and metrics.
const (
	PoolStatistical = "statistical"
	PoolSerendipity = "serendipity"
	PoolSimilarity  = "similarity"
)

// Result describes one generation run.
type Result struct {
	Candidates []string
	Weights    ranking.BoostWeights
	Seeded     bool

	StatisticalTarget int
	SerendipityTarget int
	SimilarityTarget  int

	StatisticalCount int
	SerendipityCount int
	SimilarityCount  int

	DominantGenre     string
	StatisticalCursor int64
	SerendipityCursor int64
}

type Generator struct {
	store         ranking.Store
	catalog       catalog.Reader
	listSize      int
	maxIterations int
	genreWindow   int
	logger        *logrus.Logger
}

func NewGenerator(store ranking.Store, reader catalog.Reader, cfg config.RankingConfig, logger *logrus.Logger) *Generator {
	g := &Generator{
		store:         store,
		catalog:       reader,
		listSize:      cfg.RecommendationListSize,
		maxIterations: cfg.MaxCandidatePullIterations,
		genreWindow:   cfg.DominantGenreWindow,
		logger:        logger,
	}
	if g.listSize <= 0 {
		g.listSize = defaultListSize
	}
	if g.maxIterations <= 0 {
		g.maxIterations = maxCandidatePullIterations
	}
	if g.genreWindow <= 0 {
		g.genreWindow = defaultGenreWindow
	}
	return g
}

// Generate rebuilds the candidate list of one user. Unmet demand in the
// statistical pool rolls into the serendipity target and unmet serendipity
// demand rolls into the similarity target.
func (g *Generator) Generate(ctx context.Context, dialect, userID string) (*Result, error) {
	start := time.Now()
	defer metrics.ObserveSince(metrics.CandidateGenerationDuration.WithLabelValues(dialect), start)

	weights, seeded, err := g.boostWeights(ctx, dialect, userID)
	if err != nil {
		return nil, err
	}

	acc, err := g.newAccumulator(ctx, dialect, userID)
	if err != nil {
		return nil, err
	}

	res := &Result{Weights: weights, Seeded: seeded}

	res.StatisticalTarget = g.target(weights.Statistical, 0)
	res.StatisticalCount, res.StatisticalCursor, err = g.pullRanked(ctx, acc,
		ranking.StatisticalKey(dialect), ranking.StatisticalCursorKey(dialect, userID), res.StatisticalTarget)
	if err != nil {
		return nil, fmt.Errorf("statistical pull failed: %w", err)
	}

	res.SerendipityTarget = g.target(weights.Serendipity, res.StatisticalTarget-res.StatisticalCount)
	res.SerendipityCount, res.SerendipityCursor, err = g.pullRanked(ctx, acc,
		ranking.SerendipityKey(dialect), ranking.SerendipityCursorKey(dialect, userID), res.SerendipityTarget)
	if err != nil {
		return nil, fmt.Errorf("serendipity pull failed: %w", err)
	}

	res.DominantGenre, err = g.dominantGenre(ctx, dialect, userID, acc.watched)
	if err != nil {
		return nil, err
	}

	res.SimilarityTarget = g.target(weights.Similarity, res.SerendipityTarget-res.SerendipityCount)
	if res.DominantGenre != "" {
		res.SimilarityCount, err = g.pullGenre(ctx, acc, ranking.GenreKey(dialect, res.DominantGenre), res.SimilarityTarget)
		if err != nil {
			return nil, fmt.Errorf("similarity pull failed: %w", err)
		}
	}

	res.Candidates = acc.items
	if err := g.store.ReplaceSet(ctx, ranking.CandidatesKey(dialect, userID), res.Candidates); err != nil {
		return nil, fmt.Errorf("failed to store candidates: %w", err)
	}

	metrics.CandidatePoolFill.WithLabelValues(PoolStatistical).Observe(float64(res.StatisticalCount))
	metrics.CandidatePoolFill.WithLabelValues(PoolSerendipity).Observe(float64(res.SerendipityCount))
	metrics.CandidatePoolFill.WithLabelValues(PoolSimilarity).Observe(float64(res.SimilarityCount))

	g.logger.WithFields(logrus.Fields{
		"user_id":            userID,
		"dialect":            dialect,
		"seeded":             seeded,
		"statistical":        fmt.Sprintf("%d/%d", res.StatisticalCount, res.StatisticalTarget),
		"serendipity":        fmt.Sprintf("%d/%d", res.SerendipityCount, res.SerendipityTarget),
		"similarity":         fmt.Sprintf("%d/%d", res.SimilarityCount, res.SimilarityTarget),
		"dominant_genre":     res.DominantGenre,
		"candidates":         len(res.Candidates),
		"generation_latency": time.Since(start),
	}).Debug("Candidates generated")

	return res, nil
}

// target converts a weight into an item count and adds the shortfall carried
// from the previous pool. Negative results count as met.
func (g *Generator) target(weight, carry int) int {
	t := weight*g.listSize/100 + carry
	if t < 0 {
		return 0
	}
	return t
}

func (g *Generator) boostWeights(ctx context.Context, dialect, userID string) (ranking.BoostWeights, bool, error) {
	weights, ok, err := ranking.ReadBoostWeights(ctx, g.store, dialect, userID)
	if err != nil {
		return ranking.BoostWeights{}, false, err
	}
	if ok {
		return weights, false, nil
	}

	weights = engagement.Baseline()
	if err := ranking.WriteBoostWeights(ctx, g.store, dialect, userID, weights); err != nil {
		return ranking.BoostWeights{}, false, err
	}
	return weights, true, nil
}

// pullRanked reads a sorted pool in descending order from the user's cursor.
// The cursor advances by every member read, accepted or not.
func (g *Generator) pullRanked(ctx context.Context, acc *accumulator, poolKey, cursorKey string, target int) (int, int64, error) {
	cursor, err := ranking.ReadCounter(ctx, g.store, cursorKey)
	if err != nil {
		return 0, 0, err
	}
	if target <= 0 {
		return 0, cursor, nil
	}

	start := cursor
	accepted := 0
	batch := int64(target)

	for iter := 0; iter < g.maxIterations && accepted < target; iter++ {
		members, err := g.store.ZRevRange(ctx, poolKey, cursor, cursor+batch-1)
		if err != nil {
			return 0, start, err
		}
		cursor += int64(len(members))

		for _, id := range members {
			if accepted >= target {
				break
			}
			if acc.add(id) {
				accepted++
			}
		}

		if int64(len(members)) < batch {
			break
		}
	}

	if cursor != start {
		if err := ranking.WriteCounter(ctx, g.store, cursorKey, cursor); err != nil {
			return 0, start, err
		}
	}

	return accepted, cursor, nil
}

// pullGenre reads the unordered genre set in target-sized chunks.
func (g *Generator) pullGenre(ctx context.Context, acc *accumulator, genreKey string, target int) (int, error) {
	if target <= 0 {
		return 0, nil
	}

	members, err := g.store.SMembers(ctx, genreKey)
	if err != nil {
		return 0, err
	}

	accepted := 0
	offset := 0
	for iter := 0; iter < g.maxIterations && offset < len(members); iter++ {
		end := offset + target
		if end > len(members) {
			end = len(members)
		}
		for _, id := range members[offset:end] {
			if accepted >= target || len(acc.items) >= g.listSize {
				return accepted, nil
			}
			if acc.add(id) {
				accepted++
			}
		}
		offset = end
		if accepted >= target || len(acc.items) >= g.listSize {
			break
		}
	}

	return accepted, nil
}

// dominantGenre is the most frequent genre among the user's most engaged
// watched items; ties go to the genre seen first. Empty means cold user.
func (g *Generator) dominantGenre(ctx context.Context, dialect, userID string, watched map[string]struct{}) (string, error) {
	if len(watched) == 0 {
		return "", nil
	}

	engagementKey := ranking.EngagementKey(dialect, userID)
	top := make([]string, 0, g.genreWindow)

	for offset := int64(0); len(top) < g.genreWindow; offset += engagementScanSize {
		ids, err := g.store.ZRevRange(ctx, engagementKey, offset, offset+engagementScanSize-1)
		if err != nil {
			return "", fmt.Errorf("failed to read engagement: %w", err)
		}
		for _, id := range ids {
			if _, ok := watched[id]; ok {
				top = append(top, id)
				if len(top) == g.genreWindow {
					break
				}
			}
		}
		if len(ids) < engagementScanSize {
			break
		}
	}

	if len(top) == 0 {
		return "", nil
	}

	items, err := g.catalog.GetItems(ctx, top)
	if err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"dialect": dialect,
		}).Warn("Genre lookup failed, skipping similarity pool")
		return "", nil
	}

	counts := make(map[string]int)
	var order []string
	for _, id := range top {
		item, ok := items[id]
		if !ok {
			continue
		}
		for _, genre := range item.Genres {
			if _, seen := counts[genre]; !seen {
				order = append(order, genre)
			}
			counts[genre]++
		}
	}

	best, bestCount := "", 0
	for _, genre := range order {
		if counts[genre] > bestCount {
			best, bestCount = genre, counts[genre]
		}
	}
	return best, nil
}

// accumulator is the ordered unique candidate set with the exclusions
// (watched and previously served) loaded once per run.
type accumulator struct {
	watched  map[string]struct{}
	previous map[string]struct{}
	seen     map[string]struct{}
	items    []string
}

func (g *Generator) newAccumulator(ctx context.Context, dialect, userID string) (*accumulator, error) {
	watched, err := g.store.ZRevRange(ctx, ranking.WatchedKey(dialect, userID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to read watched items: %w", err)
	}
	previous, err := g.store.SMembers(ctx, ranking.PreviousKey(dialect, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to read previous batch: %w", err)
	}

	acc := &accumulator{
		watched:  make(map[string]struct{}, len(watched)),
		previous: make(map[string]struct{}, len(previous)),
		seen:     make(map[string]struct{}),
	}
	for _, id := range watched {
		acc.watched[id] = struct{}{}
	}
	for _, id := range previous {
		acc.previous[id] = struct{}{}
	}
	return acc, nil
}

func (a *accumulator) add(id string) bool {
	if _, ok := a.watched[id]; ok {
		return false
	}
	if _, ok := a.previous[id]; ok {
		return false
	}
	if _, ok := a.seen[id]; ok {
		return false
	}
	a.seen[id] = struct{}{}
	a.items = append(a.items, id)
	return true
}
