package delivery

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/temcen/reelrank/internal/config"
	"github.com/temcen/reelrank/pkg/models"
)

// BreakpointPolicy picks the 1-based slot of the suggestion card: a fixed
// slot on the first page of a session, a uniform draw in [min,max] after.
type BreakpointPolicy struct {
	first int
	min   int
	max   int

	mu  sync.Mutex
	rng *rand.Rand
}

func NewBreakpointPolicy(cfg config.DeliveryConfig, seed int64) *BreakpointPolicy {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	p := &BreakpointPolicy{
		first: cfg.FirstBreakpoint,
		min:   cfg.BreakpointMin,
		max:   cfg.BreakpointMax,
		rng:   rand.New(rand.NewSource(seed)),
	}
	if p.first <= 0 {
		p.first = 7
	}
	if p.min <= 0 {
		p.min = 8
	}
	if p.max < p.min {
		p.max = p.min
	}
	return p
}

// Next returns the slot for the page at the given paging counter.
func (p *BreakpointPolicy) Next(counter int64) int {
	if counter == 0 {
		return p.first
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.min + p.rng.Intn(p.max-p.min+1)
}

func newBreakpointCard(dialect, title, genre string, parentID *string) models.Reel {
	return models.Reel{
		ID:       "breakpoint-" + uuid.New().String(),
		Type:     models.ReelTypeBreakpoint,
		Kind:     "suggestion",
		Dialect:  dialect,
		ParentID: parentID,
		Title:    title,
		Genres:   []string{genre},
		Playable: false,
	}
}

// insertAt splices card into items at index, shifting the tail right.
func insertAt(items []models.Reel, index int, card models.Reel) []models.Reel {
	items = append(items, models.Reel{})
	copy(items[index+1:], items[index:])
	items[index] = card
	return items
}
