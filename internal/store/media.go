package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watchdeck/watchdeck/internal/model"
)

// ---------------------------------------------------------------------------
// Watch entries
// ---------------------------------------------------------------------------

// UpsertWatchEntry records watch progress, replacing any existing entry for
// the same (user, title, season, episode).
func (s *Store) UpsertWatchEntry(ctx context.Context, entry *model.WatchEntry) error {
	now := time.Now().UTC()

	var existing model.WatchEntry
	err := s.db.GetContext(ctx, &existing,
		s.rebind(`SELECT * FROM watch_entries
			WHERE user_id = ? AND title_id = ? AND season = ? AND episode = ?`),
		entry.UserID, entry.TitleID, entry.Season, entry.Episode)
	switch {
	case err == sql.ErrNoRows:
		entry.ID = uuid.Must(uuid.NewV7()).String()
		entry.CreatedAt = now
		entry.UpdatedAt = now
		const q = `INSERT INTO watch_entries
			(id, user_id, title_id, media_type, season, episode, progress_seconds, finished, created_at, updated_at)
			VALUES
			(:id, :user_id, :title_id, :media_type, :season, :episode, :progress_seconds, :finished, :created_at, :updated_at)`
		if _, err := s.db.NamedExecContext(ctx, q, entry); err != nil {
			return fmt.Errorf("insert watch entry: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("get watch entry: %w", err)
	}

	entry.ID = existing.ID
	entry.CreatedAt = existing.CreatedAt
	entry.UpdatedAt = now
	if _, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE watch_entries
			SET media_type = ?, progress_seconds = ?, finished = ?, updated_at = ?
			WHERE id = ?`),
		entry.MediaType, entry.ProgressSeconds, entry.Finished, now, existing.ID); err != nil {
		return fmt.Errorf("update watch entry: %w", err)
	}
	return nil
}

// ListWatchEntries returns a user's watch history, most recently updated
// first.
func (s *Store) ListWatchEntries(ctx context.Context, userID string, limit, offset int) ([]model.WatchEntry, error) {
	var entries []model.WatchEntry
	if err := s.db.SelectContext(ctx, &entries,
		s.rebind(`SELECT * FROM watch_entries WHERE user_id = ?
			ORDER BY updated_at DESC LIMIT ? OFFSET ?`),
		userID, limit, offset); err != nil {
		return nil, fmt.Errorf("list watch entries: %w", err)
	}
	return entries, nil
}

// DeleteWatchEntry removes one of the user's watch entries.
func (s *Store) DeleteWatchEntry(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx,
		s.rebind("DELETE FROM watch_entries WHERE id = ? AND user_id = ?"), id, userID)
	if err != nil {
		return fmt.Errorf("delete watch entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete watch entry rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Comments
// ---------------------------------------------------------------------------

// CreateComment inserts a comment on a title.
func (s *Store) CreateComment(ctx context.Context, c *model.Comment) error {
	if c.ID == "" {
		c.ID = uuid.Must(uuid.NewV7()).String()
	}
	c.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO comments (id, user_id, title_id, body, created_at)
		VALUES (:id, :user_id, :title_id, :body, :created_at)`
	if _, err := s.db.NamedExecContext(ctx, q, c); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// ListCommentsByTitle returns the comments for a title, newest first.
func (s *Store) ListCommentsByTitle(ctx context.Context, titleID string, limit, offset int) ([]model.Comment, error) {
	var comments []model.Comment
	if err := s.db.SelectContext(ctx, &comments,
		s.rebind(`SELECT * FROM comments WHERE title_id = ?
			ORDER BY created_at DESC LIMIT ? OFFSET ?`),
		titleID, limit, offset); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// GetComment returns one comment by ID.
func (s *Store) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	var c model.Comment
	if err := s.db.GetContext(ctx, &c, s.rebind("SELECT * FROM comments WHERE id = ?"), id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return &c, nil
}

// DeleteComment removes a comment by ID.
func (s *Store) DeleteComment(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM comments WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete comment rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Ratings
// ---------------------------------------------------------------------------

// UpsertRating records a user's score for a title, replacing any earlier
// score.
func (s *Store) UpsertRating(ctx context.Context, r *model.Rating) error {
	now := time.Now().UTC()

	var existing model.Rating
	err := s.db.GetContext(ctx, &existing,
		s.rebind("SELECT * FROM ratings WHERE user_id = ? AND title_id = ?"),
		r.UserID, r.TitleID)
	switch {
	case err == sql.ErrNoRows:
		r.ID = uuid.Must(uuid.NewV7()).String()
		r.CreatedAt = now
		r.UpdatedAt = now
		const q = `INSERT INTO ratings (id, user_id, title_id, score, created_at, updated_at)
			VALUES (:id, :user_id, :title_id, :score, :created_at, :updated_at)`
		if _, err := s.db.NamedExecContext(ctx, q, r); err != nil {
			return fmt.Errorf("insert rating: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("get rating: %w", err)
	}

	r.ID = existing.ID
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = now
	if _, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE ratings SET score = ?, updated_at = ? WHERE id = ?"),
		r.Score, now, existing.ID); err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	return nil
}

// GetRating returns a user's rating for a title.
func (s *Store) GetRating(ctx context.Context, userID, titleID string) (*model.Rating, error) {
	var r model.Rating
	if err := s.db.GetContext(ctx, &r,
		s.rebind("SELECT * FROM ratings WHERE user_id = ? AND title_id = ?"),
		userID, titleID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get rating: %w", err)
	}
	return &r, nil
}

// GetRatingSummary returns the aggregate score for a title. A title with no
// ratings yields a zero-count summary, not an error.
func (s *Store) GetRatingSummary(ctx context.Context, titleID string) (*model.RatingSummary, error) {
	var summary model.RatingSummary
	if err := s.db.GetContext(ctx, &summary,
		s.rebind(`SELECT title_id, COUNT(*) AS count, AVG(score) AS average
			FROM ratings WHERE title_id = ? GROUP BY title_id`),
		titleID); err != nil {
		if err == sql.ErrNoRows {
			return &model.RatingSummary{TitleID: titleID}, nil
		}
		return nil, fmt.Errorf("get rating summary: %w", err)
	}
	return &summary, nil
}
