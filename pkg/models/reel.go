package models

import "time"

// Reel types.
const (
	ReelTypeVideo      = "reel"
	ReelTypeBreakpoint = "breakpoint"
)

// Reel is a short-form video item as served to clients. Breakpoint cards
// reuse the shape with Playable=false and zero counts.
type Reel struct {
	ID               string    `json:"id" db:"id"`
	Type             string    `json:"type"`
	Slug             string    `json:"slug" db:"slug"`
	Kind             string    `json:"kind" db:"kind"`
	Dialect          string    `json:"dialect" db:"dialect"`
	ParentID         *string   `json:"parent_id,omitempty" db:"parent_id"`
	Title            string    `json:"title" db:"title"`
	Genres           []string  `json:"genres" db:"genres"`
	Duration         int       `json:"duration" db:"duration"` // seconds
	ThumbnailURL     string    `json:"thumbnail_url,omitempty" db:"thumbnail_url"`
	ViewCount        int64     `json:"view_count" db:"view_count"`
	LikeCount        int64     `json:"like_count" db:"like_count"`
	ShareCount       int64     `json:"share_count" db:"share_count"`
	Active           bool      `json:"-" db:"active"`
	Playable         bool      `json:"playable"`
	Liked            bool      `json:"liked"`
	ContinueWatching bool      `json:"continue_watching"`
	CreatedAt        time.Time `json:"created_at,omitempty" db:"created_at"`
}

// IsBreakpoint reports whether the reel is a synthetic suggestion card.
func (r *Reel) IsBreakpoint() bool {
	return r.Type == ReelTypeBreakpoint
}

// ReelPage is one page of the personalised feed.
type ReelPage struct {
	Items      []Reel    `json:"items"`
	HasMore    bool      `json:"has_more"`
	NextCursor string    `json:"next_cursor,omitempty"`
	Dialect    string    `json:"dialect"`
	ColdStart  bool      `json:"cold_start"`
	ServedAt   time.Time `json:"served_at"`
}

// PageRequest identifies a feed page request.
type PageRequest struct {
	UserID  string
	Dialect string
	Lang    string
	Cursor  string
}
