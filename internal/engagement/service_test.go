package engagement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/reelrank/internal/catalog"
	"github.com/temcen/reelrank/internal/config"
	"github.com/temcen/reelrank/internal/ranking"
	"github.com/temcen/reelrank/internal/tasks"
	"github.com/temcen/reelrank/pkg/models"
)

type fakeCatalog struct {
	items map[string]*models.Reel
}

func (f *fakeCatalog) GetItem(ctx context.Context, itemID string) (*models.Reel, error) {
	item, ok := f.items[itemID]
	if !ok {
		return nil, catalog.ErrItemNotFound
	}
	return item, nil
}

func (f *fakeCatalog) GetItems(ctx context.Context, itemIDs []string) (map[string]*models.Reel, error) {
	out := make(map[string]*models.Reel)
	for _, id := range itemIDs {
		if item, ok := f.items[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

func (f *fakeCatalog) ResolveSlug(ctx context.Context, dialect, kind, slug string) (string, error) {
	return "", catalog.ErrItemNotFound
}

func (f *fakeCatalog) ListActive(ctx context.Context, dialect string) ([]models.Reel, error) {
	return nil, nil
}

type fakeActions struct {
	mu     sync.Mutex
	liked  map[string]bool
	views  map[string]int64
	shares map[string]int64
	saved  int
}

func newFakeActions() *fakeActions {
	return &fakeActions{
		liked:  make(map[string]bool),
		views:  make(map[string]int64),
		shares: make(map[string]int64),
	}
}

func (f *fakeActions) IncrementViews(ctx context.Context, userID, itemID, dialect string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views[userID+"/"+itemID]++
	return nil
}

func (f *fakeActions) ToggleLike(ctx context.Context, userID, itemID, dialect string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := userID + "/" + itemID
	f.liked[k] = !f.liked[k]
	return f.liked[k], nil
}

func (f *fakeActions) IncrementShares(ctx context.Context, userID, itemID, dialect string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shares[userID+"/"+itemID]++
	return nil
}

func (f *fakeActions) SaveProgress(ctx context.Context, userID, itemID, dialect string, watchDuration, totalDuration float64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved++
	return nil
}

func (f *fakeActions) GetStates(ctx context.Context, userID string, itemIDs []string) (map[string]models.UserItemState, error) {
	return map[string]models.UserItemState{}, nil
}

// inlineSubmitter runs tasks on the caller's goroutine.
type inlineSubmitter struct {
	names []string
	errs  []error
}

func (s *inlineSubmitter) Submit(name string, fn tasks.Func) bool {
	s.names = append(s.names, name)
	if err := fn(context.Background()); err != nil {
		s.errs = append(s.errs, err)
	}
	return true
}

type fixture struct {
	service *Service
	store   *ranking.RedisStore
	actions *fakeActions
	tasks   *inlineSubmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := ranking.NewRedisStore(client)
	reader := &fakeCatalog{items: map[string]*models.Reel{
		"r1": {ID: "r1", Dialect: "en", Genres: []string{"drama"}},
		"r2": {ID: "r2", Dialect: "en", Genres: []string{"comedy"}},
		"h1": {ID: "h1", Dialect: "hi", Genres: []string{"drama"}},
	}}
	actions := newFakeActions()
	submitter := &inlineSubmitter{}

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	service := NewService(store, reader, actions, submitter, config.RankingConfig{EngagementWindow: 5}, logger)
	return &fixture{service: service, store: store, actions: actions, tasks: submitter}
}

func (f *fixture) engagement(t *testing.T, itemID string) float64 {
	t.Helper()
	score, err := ranking.ScoreOrZero(context.Background(), f.store, ranking.EngagementKey("en", "u1"), itemID)
	require.NoError(t, err)
	return score
}

func TestWatchThenLike(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tier, err := f.service.RecordWatchProgress(ctx, "u1", "r1", "en", 24, 30, time.Unix(1000, 0))
	require.NoError(t, err)
	assert.Equal(t, WatchHigh, tier)
	assert.Equal(t, float64(WatchHigh), f.engagement(t, "r1"))

	ts, err := f.store.ZScore(ctx, ranking.WatchedKey("en", "u1"), "r1")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, ts)
	assert.Equal(t, 1, f.actions.saved)

	resp, err := f.service.RecordAction(ctx, "u1", "r1", "en", models.ActionLike)
	require.NoError(t, err)
	require.NotNil(t, resp.Liked)
	assert.True(t, *resp.Liked)
	assert.Equal(t, float64(WatchHigh+LikeScore), f.engagement(t, "r1"))

	require.Equal(t, []string{"boost-recompute"}, f.tasks.names)
	require.Empty(t, f.tasks.errs)

	weights, ok, err := ranking.ReadBoostWeights(ctx, f.store, "en", "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, WeightsFor(LevelMedium), weights)

	level, err := f.store.Get(ctx, ranking.EngagementLevelKey("en", "u1"))
	require.NoError(t, err)
	assert.Equal(t, string(LevelMedium), level)
}

func TestLikeToggleIsNetZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.RecordWatchProgress(ctx, "u1", "r1", "en", 12, 30, time.Unix(1000, 0))
	require.NoError(t, err)
	before := f.engagement(t, "r1")
	assert.Equal(t, float64(WatchMedium), before)

	for i := 0; i < 2; i++ {
		resp, err := f.service.RecordAction(ctx, "u1", "r1", "en", models.ActionLike)
		require.NoError(t, err)
		assert.True(t, *resp.Liked)
		assert.Equal(t, before+LikeScore, f.engagement(t, "r1"))

		resp, err = f.service.RecordAction(ctx, "u1", "r1", "en", models.ActionLike)
		require.NoError(t, err)
		assert.False(t, *resp.Liked)
		assert.Equal(t, before, f.engagement(t, "r1"))
	}
}

func TestShareIsCumulative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		resp, err := f.service.RecordAction(ctx, "u1", "r2", "en", models.ActionShare)
		require.NoError(t, err)
		assert.Nil(t, resp.Liked)
	}
	assert.Equal(t, float64(2*ShareScore), f.engagement(t, "r2"))
	assert.Equal(t, int64(2), f.actions.shares["u1/r2"])
	assert.Len(t, f.tasks.names, 2)
}

func TestViewOnlyCountsViews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.RecordAction(ctx, "u1", "r1", "en", models.ActionView)
	require.NoError(t, err)

	assert.Equal(t, int64(1), f.actions.views["u1/r1"])
	_, err = f.store.ZScore(ctx, ranking.EngagementKey("en", "u1"), "r1")
	assert.ErrorIs(t, err, ranking.ErrNotFound)
	assert.Empty(t, f.tasks.names)
}

func TestUnknownItemFailsLoudly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.RecordAction(ctx, "u1", "missing", "en", models.ActionLike)
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)

	_, err = f.service.RecordWatchProgress(ctx, "u1", "missing", "en", 1, 10, time.Now())
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)

	// item exists but in another dialect
	_, err = f.service.RecordAction(ctx, "u1", "h1", "en", models.ActionView)
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)

	_, err = f.service.RecordAction(ctx, "u1", "r1", "en", models.Action("dislike"))
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestRecomputeBoostUsesRecentWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	watchedKey := ranking.WatchedKey("en", "u1")
	engagementKey := ranking.EngagementKey("en", "u1")

	// the oldest item carries all the engagement and falls outside the window
	require.NoError(t, f.store.ZAdd(ctx, watchedKey,
		ranking.Member{ID: "old", Score: 1},
		ranking.Member{ID: "a", Score: 2},
		ranking.Member{ID: "b", Score: 3},
		ranking.Member{ID: "c", Score: 4},
		ranking.Member{ID: "d", Score: 5},
		ranking.Member{ID: "e", Score: 6},
	))
	_, err := f.store.ZIncrBy(ctx, engagementKey, 100, "old")
	require.NoError(t, err)

	level, err := f.service.RecomputeBoost(ctx, "en", "u1")
	require.NoError(t, err)
	assert.Equal(t, LevelLow, level)

	_, err = f.store.ZIncrBy(ctx, engagementKey, -10, "e")
	require.NoError(t, err)
	level, err = f.service.RecomputeBoost(ctx, "en", "u1")
	require.NoError(t, err)
	assert.Equal(t, LevelNil, level)

	weights, ok, err := ranking.ReadBoostWeights(ctx, f.store, "en", "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ranking.BoostWeights{Statistical: 80, Similarity: 0, Serendipity: 20}, weights)
}
