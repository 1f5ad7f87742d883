package model

import "time"

// RequestLog is an immutable audit record of one handled HTTP request. It is
// written once after the handler completes and never mutated or deleted by
// the serving path.
type RequestLog struct {
	ID         string    `json:"id" db:"id"`
	RequestID  string    `json:"request_id" db:"request_id"`
	Method     string    `json:"method" db:"method"`
	Path       string    `json:"path" db:"path"`
	Status     int       `json:"status" db:"status"`
	KeyID      *string   `json:"key_id,omitempty" db:"key_id"`
	UserID     *string   `json:"user_id,omitempty" db:"user_id"`
	DurationMs float64   `json:"duration_ms" db:"duration_ms"`
	IP         string    `json:"ip" db:"ip"`
	UserAgent  string    `json:"user_agent" db:"user_agent"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
