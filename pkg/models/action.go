package models

import "time"

// Action is a user action on a reel.
type Action string

const (
	ActionView  Action = "view"
	ActionLike  Action = "like"
	ActionShare Action = "share"
)

// Valid reports whether the action is one of view, like or share.
func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionLike, ActionShare:
		return true
	}
	return false
}

type ActionRequest struct {
	Dialect string `json:"dialect" binding:"required" validate:"required,min=2,max=16"`
	Action  Action `json:"action" binding:"required" validate:"required,oneof=view like share"`
}

type ActionResponse struct {
	ItemID string `json:"item_id"`
	Action Action `json:"action"`
	Liked  *bool  `json:"liked,omitempty"`
}

type WatchProgressRequest struct {
	Dialect       string     `json:"dialect" binding:"required" validate:"required,min=2,max=16"`
	WatchDuration float64    `json:"watch_duration" validate:"gte=0"`
	TotalDuration float64    `json:"total_duration" validate:"gt=0"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
}

// UserItemState is the per-user record kept for one reel.
type UserItemState struct {
	UserID        string    `json:"user_id" db:"user_id"`
	ItemID        string    `json:"item_id" db:"item_id"`
	Dialect       string    `json:"dialect" db:"dialect"`
	Views         int64     `json:"views" db:"views"`
	Liked         bool      `json:"liked" db:"liked"`
	Shares        int64     `json:"shares" db:"shares"`
	WatchDuration float64   `json:"watch_duration" db:"watch_duration"`
	TotalDuration float64   `json:"total_duration" db:"total_duration"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// ContinueWatching is true for a started but unfinished reel.
func (s UserItemState) ContinueWatching() bool {
	return s.TotalDuration > 0 && s.WatchDuration > 0 && s.WatchDuration < 0.9*s.TotalDuration
}

type ProgressResponse struct {
	ItemID          string `json:"item_id"`
	EngagementDelta int    `json:"engagement_delta"`
}
