package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/reelrank/internal/candidates"
	"github.com/temcen/reelrank/internal/catalog"
	"github.com/temcen/reelrank/internal/config"
	"github.com/temcen/reelrank/internal/ranking"
	"github.com/temcen/reelrank/internal/tasks"
	"github.com/temcen/reelrank/pkg/models"
)

type fakeCatalog struct {
	items   map[string]*models.Reel
	failAll bool
}

func (f *fakeCatalog) GetItem(ctx context.Context, itemID string) (*models.Reel, error) {
	item, ok := f.items[itemID]
	if !ok {
		return nil, catalog.ErrItemNotFound
	}
	return item, nil
}

func (f *fakeCatalog) GetItems(ctx context.Context, itemIDs []string) (map[string]*models.Reel, error) {
	if f.failAll {
		return nil, errors.New("connection refused")
	}
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
	states map[string]models.UserItemState
	err    error
}

func (f *fakeActions) IncrementViews(ctx context.Context, userID, itemID, dialect string) error {
	return nil
}

func (f *fakeActions) ToggleLike(ctx context.Context, userID, itemID, dialect string) (bool, error) {
	return false, nil
}

func (f *fakeActions) IncrementShares(ctx context.Context, userID, itemID, dialect string) error {
	return nil
}

func (f *fakeActions) SaveProgress(ctx context.Context, userID, itemID, dialect string, watchDuration, totalDuration float64, at time.Time) error {
	return nil
}

func (f *fakeActions) GetStates(ctx context.Context, userID string, itemIDs []string) (map[string]models.UserItemState, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]models.UserItemState)
	for _, id := range itemIDs {
		if state, ok := f.states[id]; ok {
			out[id] = state
		}
	}
	return out, nil
}

// queuedSubmitter records tasks without running them.
type queuedSubmitter struct {
	names []string
	fns   []tasks.Func
}

func (s *queuedSubmitter) Submit(name string, fn tasks.Func) bool {
	s.names = append(s.names, name)
	s.fns = append(s.fns, fn)
	return true
}

// inlineSubmitter runs each task as soon as it is submitted.
type inlineSubmitter struct {
	errs []error
}

func (s *inlineSubmitter) Submit(name string, fn tasks.Func) bool {
	s.errs = append(s.errs, fn(context.Background()))
	return true
}

type fakeGenerator struct {
	calls []string
}

func (g *fakeGenerator) Generate(ctx context.Context, dialect, userID string) (*candidates.Result, error) {
	g.calls = append(g.calls, dialect+"/"+userID)
	return &candidates.Result{}, nil
}

type fixture struct {
	assembler *Assembler
	store     *ranking.RedisStore
	client    *redis.Client
	catalog   *fakeCatalog
	actions   *fakeActions
	tasks     *queuedSubmitter
	generator *fakeGenerator
}

func newFixture(t *testing.T, cfg config.DeliveryConfig) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	items := make(map[string]*models.Reel)
	for i := 1; i <= 10; i++ {
		id := fmt.Sprintf("s%d", i)
		items[id] = &models.Reel{ID: id, Type: models.ReelTypeVideo, Dialect: "en", Genres: []string{"drama"}, Playable: true}
	}
	parent := "show-1"
	items["show-1"] = &models.Reel{ID: "show-1", Dialect: "en", Kind: "show", Genres: []string{"science-fiction"}}
	items["ep1"] = &models.Reel{ID: "ep1", Dialect: "en", ParentID: &parent, Genres: []string{"drama"}, Playable: true}
	items["h1"] = &models.Reel{ID: "h1", Dialect: "hi", Genres: []string{"comedy"}, Playable: true}

	reader := &fakeCatalog{items: items}
	actions := &fakeActions{states: map[string]models.UserItemState{}}
	submitter := &queuedSubmitter{}
	generator := &fakeGenerator{}

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store := ranking.NewRedisStore(client)
	assembler := NewAssembler(store, reader, actions, generator, submitter,
		NewLocalizer("en"), NewBreakpointPolicy(cfg, 42), cfg, logger)

	return &fixture{
		assembler: assembler,
		store:     store,
		client:    client,
		catalog:   reader,
		actions:   actions,
		tasks:     submitter,
		generator: generator,
	}
}

func defaultDelivery() config.DeliveryConfig {
	return config.DeliveryConfig{BatchSize: 7, FirstBreakpoint: 7, BreakpointMin: 8, BreakpointMax: 10, DefaultLang: "en"}
}

func seedStatistical(t *testing.T, store ranking.Store, dialect string, n int) {
	t.Helper()
	members := make([]ranking.Member, 0, n)
	for i := 1; i <= n; i++ {
		members = append(members, ranking.Member{ID: fmt.Sprintf("s%d", i), Score: float64(100 - i)})
	}
	require.NoError(t, store.ZAdd(context.Background(), ranking.StatisticalKey(dialect), members...))
}

func ids(items []models.Reel) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestGetPage_ColdStart(t *testing.T) {
	f := newFixture(t, defaultDelivery())
	ctx := context.Background()
	seedStatistical(t, f.store, "en", 10)

	page, err := f.assembler.GetPage(ctx, models.PageRequest{UserID: "u1", Dialect: "en", Lang: "en"})
	require.NoError(t, err)

	assert.True(t, page.ColdStart)
	assert.True(t, page.HasMore)
	assert.NotEmpty(t, page.NextCursor)
	require.Len(t, page.Items, 8)

	card := page.Items[6]
	assert.True(t, card.IsBreakpoint())
	assert.True(t, strings.HasPrefix(card.ID, "breakpoint-"))
	assert.Equal(t, "suggestion", card.Kind)
	assert.False(t, card.Playable)
	assert.Equal(t, []string{"drama"}, card.Genres)
	assert.Equal(t, "Explore more Drama", card.Title)

	assert.Equal(t, []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7"},
		ids(append(page.Items[:6:6], page.Items[7:]...)))

	watermark, err := f.store.Get(ctx, ranking.StatisticalWatermarkKey("en", "u1"))
	require.NoError(t, err)
	assert.Equal(t, "s7", watermark)

	previous, err := f.store.SMembers(ctx, ranking.PreviousKey("en", "u1"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7"}, previous)

	assert.Equal(t, []string{"candidate-regeneration"}, f.tasks.names)
	require.NoError(t, f.tasks.fns[0](ctx))
	assert.Equal(t, []string{"en/u1"}, f.generator.calls)
}

func servedIDs(items []models.Reel) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if !item.IsBreakpoint() {
			out = append(out, item.ID)
		}
	}
	return out
}

func TestGetPage_RegenerationExcludesServedItems(t *testing.T) {
	f := newFixture(t, defaultDelivery())
	ctx := context.Background()
	for i := 11; i <= 20; i++ {
		id := fmt.Sprintf("s%d", i)
		f.catalog.items[id] = &models.Reel{ID: id, Type: models.ReelTypeVideo, Dialect: "en", Genres: []string{"drama"}, Playable: true}
	}
	seedStatistical(t, f.store, "en", 20)
	require.NoError(t, ranking.WriteBoostWeights(ctx, f.store, "en", "u1",
		ranking.BoostWeights{Statistical: 80, Serendipity: 20}))

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	generator := candidates.NewGenerator(f.store, f.catalog, config.RankingConfig{RecommendationListSize: 10}, logger)
	submitter := &inlineSubmitter{}
	cfg := defaultDelivery()
	assembler := NewAssembler(f.store, f.catalog, f.actions, generator, submitter,
		NewLocalizer("en"), NewBreakpointPolicy(cfg, 42), cfg, logger)

	page1, err := assembler.GetPage(ctx, models.PageRequest{UserID: "u1", Dialect: "en"})
	require.NoError(t, err)
	require.True(t, page1.ColdStart)
	first := servedIDs(page1.Items)
	assert.Equal(t, []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7"}, first)

	next, err := f.store.SMembers(ctx, ranking.CandidatesKey("en", "u1"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s8", "s9", "s10", "s11", "s12", "s13", "s14", "s15"}, next)

	page2, err := assembler.GetPage(ctx, models.PageRequest{UserID: "u1", Dialect: "en", Cursor: page1.NextCursor})
	require.NoError(t, err)
	assert.False(t, page2.ColdStart)
	second := servedIDs(page2.Items)
	assert.ElementsMatch(t, next, second)
	for _, id := range first {
		assert.NotContains(t, second, id)
	}

	third, err := f.store.SMembers(ctx, ranking.CandidatesKey("en", "u1"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s17", "s18", "s19", "s20"}, third)
	for _, id := range second {
		assert.NotContains(t, third, id)
	}

	require.Len(t, submitter.errs, 2)
	for _, err := range submitter.errs {
		assert.NoError(t, err)
	}
}

func TestGetPage_CandidatesWithoutBreakpoint(t *testing.T) {
	f := newFixture(t, defaultDelivery())
	ctx := context.Background()
	require.NoError(t, f.store.ReplaceSet(ctx, ranking.CandidatesKey("en", "u1"), []string{"s1", "s2", "s3"}))
	f.actions.states["s2"] = models.UserItemState{Liked: true, WatchDuration: 10, TotalDuration: 60}

	page, err := f.assembler.GetPage(ctx, models.PageRequest{UserID: "u1", Dialect: "en"})
	require.NoError(t, err)

	assert.False(t, page.ColdStart)
	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, ids(page.Items))
	for _, item := range page.Items {
		assert.False(t, item.IsBreakpoint())
		if item.ID == "s2" {
			assert.True(t, item.Liked)
			assert.True(t, item.ContinueWatching)
		}
	}

	_, err = f.store.Get(ctx, ranking.StatisticalWatermarkKey("en", "u1"))
	assert.ErrorIs(t, err, ranking.ErrNotFound)
	assert.Len(t, f.tasks.names, 1)
}

func TestGetPage_ContinuationBreakpointSlot(t *testing.T) {
	cfg := defaultDelivery()
	cfg.BreakpointMin, cfg.BreakpointMax = 9, 9
	f := newFixture(t, cfg)
	ctx := context.Background()

	members := []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10"}
	require.NoError(t, f.store.ReplaceSet(ctx, ranking.CandidatesKey("en", "u1"), members))

	_, err := f.assembler.GetPage(ctx, models.PageRequest{UserID: "u1", Dialect: "en"})
	require.NoError(t, err)

	page, err := f.assembler.GetPage(ctx, models.PageRequest{UserID: "u1", Dialect: "en", Cursor: "next"})
	require.NoError(t, err)
	require.Len(t, page.Items, 11)
	assert.True(t, page.Items[8].IsBreakpoint())

	counter, err := ranking.ReadCounter(ctx, f.store, ranking.PagingKey("en", "u1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), counter)

	// a request without a cursor starts a new session
	_, err = f.assembler.GetPage(ctx, models.PageRequest{UserID: "u1", Dialect: "en"})
	require.NoError(t, err)
	counter, err = ranking.ReadCounter(ctx, f.store, ranking.PagingKey("en", "u1"))
	require.NoError(t, err)
	assert.Zero(t, counter)
}

func TestGetPage_DropsUnresolvableItems(t *testing.T) {
	f := newFixture(t, defaultDelivery())
	ctx := context.Background()
	require.NoError(t, f.store.ReplaceSet(ctx, ranking.CandidatesKey("en", "u1"), []string{"s1", "gone", "h1"}))

	page, err := f.assembler.GetPage(ctx, models.PageRequest{UserID: "u1", Dialect: "en"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids(page.Items))

	previous, err := f.store.SMembers(ctx, ranking.PreviousKey("en", "u1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, previous)
}

func TestGetPage_EmptyEverywhere(t *testing.T) {
	f := newFixture(t, defaultDelivery())

	page, err := f.assembler.GetPage(context.Background(), models.PageRequest{UserID: "u1", Dialect: "en"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
	assert.True(t, page.ColdStart)
}

func TestGetPage_CatalogOutageKeepsPreviousBatch(t *testing.T) {
	f := newFixture(t, defaultDelivery())
	ctx := context.Background()
	require.NoError(t, f.store.ReplaceSet(ctx, ranking.PreviousKey("en", "u1"), []string{"s9"}))
	require.NoError(t, f.store.ReplaceSet(ctx, ranking.CandidatesKey("en", "u1"), []string{"s1"}))
	f.catalog.failAll = true

	page, err := f.assembler.GetPage(ctx, models.PageRequest{UserID: "u1", Dialect: "en"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	previous, err := f.store.SMembers(ctx, ranking.PreviousKey("en", "u1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"s9"}, previous)
}

func TestGetPage_BreakpointUsesParentGenre(t *testing.T) {
	cfg := defaultDelivery()
	cfg.FirstBreakpoint = 1
	f := newFixture(t, cfg)
	ctx := context.Background()
	require.NoError(t, f.store.ReplaceSet(ctx, ranking.CandidatesKey("en", "u1"), []string{"ep1"}))

	page, err := f.assembler.GetPage(ctx, models.PageRequest{UserID: "u1", Dialect: "en", Lang: "hi-IN"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)

	card := page.Items[0]
	require.True(t, card.IsBreakpoint())
	assert.Equal(t, []string{"science-fiction"}, card.Genres)
	require.NotNil(t, card.ParentID)
	assert.Equal(t, "show-1", *card.ParentID)
	assert.Equal(t, "और Science Fiction देखें", card.Title)
	assert.Equal(t, "ep1", page.Items[1].ID)
}

func TestGetPage_StoreFailure(t *testing.T) {
	f := newFixture(t, defaultDelivery())
	require.NoError(t, f.client.Close())

	_, err := f.assembler.GetPage(context.Background(), models.PageRequest{UserID: "u1", Dialect: "en"})
	assert.Error(t, err)
}

func TestGetItemByID(t *testing.T) {
	f := newFixture(t, defaultDelivery())
	ctx := context.Background()
	f.actions.states["s1"] = models.UserItemState{Liked: true}

	item, err := f.assembler.GetItemByID(ctx, "s1", "en", "en", "u1")
	require.NoError(t, err)
	assert.Equal(t, "s1", item.ID)
	assert.True(t, item.Liked)
	assert.False(t, f.catalog.items["s1"].Liked, "catalog entries must not be mutated")

	item, err = f.assembler.GetItemByID(ctx, "s1", "en", "en", "")
	require.NoError(t, err)
	assert.False(t, item.Liked)

	_, err = f.assembler.GetItemByID(ctx, "h1", "en", "en", "u1")
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)

	_, err = f.assembler.GetItemByID(ctx, "missing", "en", "en", "u1")
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)

	f.actions.err = errors.New("timeout")
	item, err = f.assembler.GetItemByID(ctx, "s1", "en", "en", "u1")
	require.NoError(t, err)
	assert.False(t, item.Liked)
}

func TestBreakpointPolicy(t *testing.T) {
	p := NewBreakpointPolicy(config.DeliveryConfig{FirstBreakpoint: 7, BreakpointMin: 8, BreakpointMax: 10}, 1)
	assert.Equal(t, 7, p.Next(0))
	for i := int64(1); i < 200; i++ {
		slot := p.Next(i)
		assert.GreaterOrEqual(t, slot, 8)
		assert.LessOrEqual(t, slot, 10)
	}

	p = NewBreakpointPolicy(config.DeliveryConfig{}, 1)
	assert.Equal(t, 7, p.Next(0))
	assert.Equal(t, 8, p.Next(3))
}
