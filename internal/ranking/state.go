package ranking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Boost-weight set members.
const (
	BoostStatistical = "statistical"
	BoostSimilarity  = "similarity"
	BoostSerendipity = "serendipity"
)

// BoostWeights is the per-user sampling mix of the three pools. The values
// are percentages of the list size and are not normalised.
type BoostWeights struct {
	Statistical int `json:"statistical"`
	Similarity  int `json:"similarity"`
	Serendipity int `json:"serendipity"`
}

// ReadBoostWeights returns ok=false when any of the three members is missing,
// which callers treat as "no boost state yet".
func ReadBoostWeights(ctx context.Context, s Store, dialect, userID string) (BoostWeights, bool, error) {
	members, err := s.ZRangeWithScores(ctx, BoostKey(dialect, userID), 0, -1)
	if err != nil {
		return BoostWeights{}, false, fmt.Errorf("failed to read boost weights: %w", err)
	}

	scores := make(map[string]float64, len(members))
	for _, m := range members {
		scores[m.ID] = m.Score
	}

	stat, okStat := scores[BoostStatistical]
	sim, okSim := scores[BoostSimilarity]
	ser, okSer := scores[BoostSerendipity]
	if !okStat || !okSim || !okSer {
		return BoostWeights{}, false, nil
	}

	return BoostWeights{
		Statistical: int(stat),
		Similarity:  int(sim),
		Serendipity: int(ser),
	}, true, nil
}

// WriteBoostWeights overwrites all three members.
func WriteBoostWeights(ctx context.Context, s Store, dialect, userID string, w BoostWeights) error {
	err := s.ZAdd(ctx, BoostKey(dialect, userID),
		Member{ID: BoostStatistical, Score: float64(w.Statistical)},
		Member{ID: BoostSimilarity, Score: float64(w.Similarity)},
		Member{ID: BoostSerendipity, Score: float64(w.Serendipity)},
	)
	if err != nil {
		return fmt.Errorf("failed to write boost weights: %w", err)
	}
	return nil
}

// ReadCounter reads an integer key; an absent key reads as zero.
func ReadCounter(ctx context.Context, s Store, key string) (int64, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed counter %s: %w", key, err)
	}
	return n, nil
}

// WriteCounter stores an integer key without expiry.
func WriteCounter(ctx context.Context, s Store, key string, value int64) error {
	return s.Set(ctx, key, strconv.FormatInt(value, 10), 0)
}

// ScoreOrZero reads a sorted-set score, treating a missing member as zero.
func ScoreOrZero(ctx context.Context, s Store, key, member string) (float64, error) {
	score, err := s.ZScore(ctx, key, member)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	return score, err
}
