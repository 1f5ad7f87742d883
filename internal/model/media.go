package model

import "time"

// Media type constants for watch entries.
const (
	MediaMovie  = "movie"
	MediaSeries = "series"
	MediaAnime  = "anime"
)

// WatchEntry records a user's progress through a title. One entry per
// (user, title, season, episode); upserts replace progress in place.
type WatchEntry struct {
	ID              string    `json:"id" db:"id"`
	UserID          string    `json:"user_id" db:"user_id"`
	TitleID         string    `json:"title_id" db:"title_id"`
	MediaType       string    `json:"media_type" db:"media_type"`
	Season          int       `json:"season" db:"season"`
	Episode         int       `json:"episode" db:"episode"`
	ProgressSeconds int       `json:"progress_seconds" db:"progress_seconds"`
	Finished        bool      `json:"finished" db:"finished"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// UpsertWatchRequest is the request body for recording watch progress.
type UpsertWatchRequest struct {
	TitleID         string `json:"title_id" validate:"required"`
	MediaType       string `json:"media_type" validate:"required,oneof=movie series anime"`
	Season          int    `json:"season" validate:"min=0"`
	Episode         int    `json:"episode" validate:"min=0"`
	ProgressSeconds int    `json:"progress_seconds" validate:"min=0"`
	Finished        bool   `json:"finished"`
}

// Comment is a user comment on a title.
type Comment struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	TitleID   string    `json:"title_id" db:"title_id"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CreateCommentRequest is the request body for posting a comment.
type CreateCommentRequest struct {
	TitleID string `json:"title_id" validate:"required"`
	Body    string `json:"body" validate:"required,max=4000"`
}

// Rating is a user's score for a title, 1 through 10. One rating per
// (user, title); later submissions replace the score.
type Rating struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	TitleID   string    `json:"title_id" db:"title_id"`
	Score     int       `json:"score" db:"score"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UpsertRatingRequest is the request body for rating a title.
type UpsertRatingRequest struct {
	TitleID string `json:"title_id" validate:"required"`
	Score   int    `json:"score" validate:"required,min=1,max=10"`
}

// RatingSummary is the aggregate rating for a title.
type RatingSummary struct {
	TitleID string  `json:"title_id" db:"title_id"`
	Count   int     `json:"count" db:"count"`
	Average float64 `json:"average" db:"average"`
}
