package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watchdeck/watchdeck/internal/model"
)

// InsertRequestLog appends one immutable request log row. Nothing in the
// serving path ever updates or deletes these rows.
func (s *Store) InsertRequestLog(ctx context.Context, entry *model.RequestLog) error {
	if entry.ID == "" {
		entry.ID = uuid.Must(uuid.NewV7()).String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	const q = `INSERT INTO request_logs
		(id, request_id, method, path, status, key_id, user_id, duration_ms, ip, user_agent, created_at)
		VALUES
		(:id, :request_id, :method, :path, :status, :key_id, :user_id, :duration_ms, :ip, :user_agent, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, q, entry); err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

// ListRequestLogs pages through request logs, newest first.
func (s *Store) ListRequestLogs(ctx context.Context, limit, offset int) ([]model.RequestLog, error) {
	var logs []model.RequestLog
	if err := s.db.SelectContext(ctx, &logs,
		s.rebind("SELECT * FROM request_logs ORDER BY created_at DESC LIMIT ? OFFSET ?"),
		limit, offset); err != nil {
		return nil, fmt.Errorf("list request logs: %w", err)
	}
	return logs, nil
}

// CountRequestLogs returns the total number of request log rows.
func (s *Store) CountRequestLogs(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM request_logs"); err != nil {
		return 0, fmt.Errorf("count request logs: %w", err)
	}
	return count, nil
}
