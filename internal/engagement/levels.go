package engagement

import (
	"github.com/temcen/reelrank/internal/ranking"
	"github.com/temcen/reelrank/pkg/models"
)

// Engagement score increments.
const (
	WatchZero   = 0
	WatchLow    = 1
	WatchMedium = 3
	WatchHigh   = 5

	LikeScore  = 5
	ShareScore = 7
)

// Level is the coarse engagement bucket of a user.
type Level string

const (
	LevelNil    Level = "NIL"
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
	// LevelBaseline seeds users with no boost state; LevelFor never returns it.
	LevelBaseline Level = "BASELINE"
)

var weightTable = map[Level]ranking.BoostWeights{
	LevelNil:      {Statistical: 80, Similarity: 0, Serendipity: 20},
	LevelLow:      {Statistical: 40, Similarity: 20, Serendipity: 40},
	LevelMedium:   {Statistical: 20, Similarity: 30, Serendipity: 50},
	LevelHigh:     {Statistical: 0, Similarity: 40, Serendipity: 60},
	LevelBaseline: {Statistical: 10, Similarity: 30, Serendipity: 60},
}

// WeightsFor maps a level to its boost weights. Unknown levels map to NIL.
func WeightsFor(level Level) ranking.BoostWeights {
	if w, ok := weightTable[level]; ok {
		return w
	}
	return weightTable[LevelNil]
}

// Baseline returns the first-run seed weights.
func Baseline() ranking.BoostWeights {
	return weightTable[LevelBaseline]
}

// LevelFor classifies the engagement total over the most recently watched
// items.
func LevelFor(total float64) Level {
	switch {
	case total >= 20:
		return LevelHigh
	case total >= 5:
		return LevelMedium
	case total >= -4:
		return LevelLow
	default:
		return LevelNil
	}
}

// WatchTier buckets a watch ratio into its engagement increment.
func WatchTier(watchDuration, totalDuration float64) int {
	if totalDuration <= 0 {
		return WatchZero
	}
	ratio := watchDuration / totalDuration
	switch {
	case ratio >= 0.7:
		return WatchHigh
	case ratio >= 0.3:
		return WatchMedium
	case ratio >= 0.1:
		return WatchLow
	default:
		return WatchZero
	}
}

// Transition applies an action to the liked flag and returns the new flag and
// the engagement delta. Like toggles; share is cumulative; view scores nothing.
func Transition(liked bool, action models.Action) (bool, int) {
	switch action {
	case models.ActionLike:
		if liked {
			return false, -LikeScore
		}
		return true, LikeScore
	case models.ActionShare:
		return liked, ShareScore
	default:
		return liked, 0
	}
}
