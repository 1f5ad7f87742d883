package store

import (
	"context"
	"errors"
	"testing"

	"github.com/watchdeck/watchdeck/internal/model"
)

func TestWatchEntryUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "alice@example.com", "alice")

	entry := &model.WatchEntry{
		UserID:          user.ID,
		TitleID:         "tt0903747",
		MediaType:       model.MediaSeries,
		Season:          1,
		Episode:         3,
		ProgressSeconds: 1200,
	}
	if err := s.UpsertWatchEntry(ctx, entry); err != nil {
		t.Fatalf("UpsertWatchEntry: %v", err)
	}
	if entry.ID == "" {
		t.Fatal("expected non-empty ID after insert")
	}
	firstID := entry.ID

	// Same (user, title, season, episode) replaces in place.
	update := &model.WatchEntry{
		UserID:          user.ID,
		TitleID:         "tt0903747",
		MediaType:       model.MediaSeries,
		Season:          1,
		Episode:         3,
		ProgressSeconds: 2400,
		Finished:        true,
	}
	if err := s.UpsertWatchEntry(ctx, update); err != nil {
		t.Fatalf("upsert update: %v", err)
	}
	if update.ID != firstID {
		t.Errorf("update created new row: %q != %q", update.ID, firstID)
	}

	entries, err := s.ListWatchEntries(ctx, user.ID, 50, 0)
	if err != nil {
		t.Fatalf("ListWatchEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].ProgressSeconds != 2400 || !entries[0].Finished {
		t.Errorf("progress not replaced: %+v", entries[0])
	}

	// A different episode is a separate entry.
	next := &model.WatchEntry{
		UserID:    user.ID,
		TitleID:   "tt0903747",
		MediaType: model.MediaSeries,
		Season:    1,
		Episode:   4,
	}
	if err := s.UpsertWatchEntry(ctx, next); err != nil {
		t.Fatalf("upsert next episode: %v", err)
	}
	entries, _ = s.ListWatchEntries(ctx, user.ID, 50, 0)
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}

func TestWatchEntryDeleteScopedToUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, s, "alice@example.com", "alice")
	bob := createTestUser(t, s, "bob@example.com", "bob")

	entry := &model.WatchEntry{UserID: alice.ID, TitleID: "m1", MediaType: model.MediaMovie}
	if err := s.UpsertWatchEntry(ctx, entry); err != nil {
		t.Fatalf("UpsertWatchEntry: %v", err)
	}

	// Another user cannot delete it.
	if err := s.DeleteWatchEntry(ctx, bob.ID, entry.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign delete, got %v", err)
	}
	if err := s.DeleteWatchEntry(ctx, alice.ID, entry.ID); err != nil {
		t.Fatalf("DeleteWatchEntry: %v", err)
	}
	entries, _ := s.ListWatchEntries(ctx, alice.ID, 50, 0)
	if len(entries) != 0 {
		t.Errorf("entry survived delete: %d", len(entries))
	}
}

func TestCommentCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "alice@example.com", "alice")

	c := &model.Comment{UserID: user.ID, TitleID: "tt0903747", Body: "great finale"}
	if err := s.CreateComment(ctx, c); err != nil {
		t.Fatalf("CreateComment: %v", err)
	}

	comments, err := s.ListCommentsByTitle(ctx, "tt0903747", 50, 0)
	if err != nil {
		t.Fatalf("ListCommentsByTitle: %v", err)
	}
	if len(comments) != 1 || comments[0].Body != "great finale" {
		t.Errorf("unexpected comments: %+v", comments)
	}

	got, err := s.GetComment(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetComment: %v", err)
	}
	if got.UserID != user.ID {
		t.Errorf("got user %q", got.UserID)
	}

	if err := s.DeleteComment(ctx, c.ID); err != nil {
		t.Fatalf("DeleteComment: %v", err)
	}
	if _, err := s.GetComment(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Other titles are unaffected by listing.
	comments, _ = s.ListCommentsByTitle(ctx, "other-title", 50, 0)
	if len(comments) != 0 {
		t.Errorf("got %d comments for other title", len(comments))
	}
}

func TestRatingUpsertAndSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, s, "alice@example.com", "alice")
	bob := createTestUser(t, s, "bob@example.com", "bob")

	if err := s.UpsertRating(ctx, &model.Rating{UserID: alice.ID, TitleID: "t1", Score: 8}); err != nil {
		t.Fatalf("UpsertRating: %v", err)
	}
	if err := s.UpsertRating(ctx, &model.Rating{UserID: bob.ID, TitleID: "t1", Score: 4}); err != nil {
		t.Fatalf("UpsertRating: %v", err)
	}

	summary, err := s.GetRatingSummary(ctx, "t1")
	if err != nil {
		t.Fatalf("GetRatingSummary: %v", err)
	}
	if summary.Count != 2 {
		t.Errorf("count = %d, want 2", summary.Count)
	}
	if summary.Average != 6.0 {
		t.Errorf("average = %v, want 6.0", summary.Average)
	}

	// Re-rating replaces, never adds.
	if err := s.UpsertRating(ctx, &model.Rating{UserID: alice.ID, TitleID: "t1", Score: 10}); err != nil {
		t.Fatalf("re-rate: %v", err)
	}
	summary, _ = s.GetRatingSummary(ctx, "t1")
	if summary.Count != 2 {
		t.Errorf("count after re-rate = %d, want 2", summary.Count)
	}
	if summary.Average != 7.0 {
		t.Errorf("average after re-rate = %v, want 7.0", summary.Average)
	}

	own, err := s.GetRating(ctx, alice.ID, "t1")
	if err != nil {
		t.Fatalf("GetRating: %v", err)
	}
	if own.Score != 10 {
		t.Errorf("own score = %d, want 10", own.Score)
	}
}

func TestRatingSummaryEmptyTitle(t *testing.T) {
	s := newTestStore(t)

	summary, err := s.GetRatingSummary(context.Background(), "unrated")
	if err != nil {
		t.Fatalf("GetRatingSummary: %v", err)
	}
	if summary.Count != 0 || summary.Average != 0 {
		t.Errorf("expected zero summary, got %+v", summary)
	}
	if summary.TitleID != "unrated" {
		t.Errorf("title id %q", summary.TitleID)
	}
}
