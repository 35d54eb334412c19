package ranking

import "strings"

// Entity names used in the key layout {dialect}:{entity}[:{userId}][:{itemId}].
const (
	EntityStatistical          = "statistical"
	EntitySimilarity           = "similarity"
	EntitySerendipity          = "serendipity"
	EntityWatched              = "watched"
	EntityEngagement           = "engagement"
	EntityEngagementLevel      = "engagement-level"
	EntityBoost                = "boost"
	EntityCandidates           = "candidates"
	EntityPrevious             = "previous"
	EntityStatisticalCursor    = "cursor-statistical"
	EntitySerendipityCursor    = "cursor-serendipity"
	EntityPaging               = "paging"
	EntityStatisticalWatermark = "statistical-watermark"
	EntityGenre                = "genre"
)

func key(parts ...string) string {
	return strings.Join(parts, ":")
}

// StatisticalKey is the global popularity pool of a dialect.
func StatisticalKey(dialect string) string { return key(dialect, EntityStatistical) }

// SimilarityKey holds the neighbours of one item.
func SimilarityKey(dialect, itemID string) string { return key(dialect, EntitySimilarity, itemID) }

func SerendipityKey(dialect string) string { return key(dialect, EntitySerendipity) }

// GenreKey is the plain set of items tagged with a genre.
func GenreKey(dialect, genre string) string { return key(dialect, EntityGenre, genre) }

func WatchedKey(dialect, userID string) string { return key(dialect, EntityWatched, userID) }

func EngagementKey(dialect, userID string) string { return key(dialect, EntityEngagement, userID) }

func EngagementLevelKey(dialect, userID string) string {
	return key(dialect, EntityEngagementLevel, userID)
}

func BoostKey(dialect, userID string) string { return key(dialect, EntityBoost, userID) }

func CandidatesKey(dialect, userID string) string { return key(dialect, EntityCandidates, userID) }

func PreviousKey(dialect, userID string) string { return key(dialect, EntityPrevious, userID) }

func StatisticalCursorKey(dialect, userID string) string {
	return key(dialect, EntityStatisticalCursor, userID)
}

func SerendipityCursorKey(dialect, userID string) string {
	return key(dialect, EntitySerendipityCursor, userID)
}

func PagingKey(dialect, userID string) string { return key(dialect, EntityPaging, userID) }

func StatisticalWatermarkKey(dialect, userID string) string {
	return key(dialect, EntityStatisticalWatermark, userID)
}
