package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), ttl)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url", time.Minute); err == nil {
		t.Fatal("expected error for malformed redis url")
	}
}

func TestSessionLifecycle(t *testing.T) {
	store, _ := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	opened, err := store.OpenSession(ctx, "doc_1", "usr_1", 4)
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	if opened.ID == "" || opened.Version != 4 || opened.OpenedAt.IsZero() {
		t.Fatalf("unexpected session %+v", opened)
	}

	touched, err := store.TouchSession(ctx, opened.ID, 7)
	if err != nil {
		t.Fatalf("TouchSession failed: %v", err)
	}
	if touched.Version != 7 {
		t.Fatalf("expected version 7, got %d", touched.Version)
	}

	looked, err := store.LookupSession(ctx, opened.ID)
	if err != nil {
		t.Fatalf("LookupSession failed: %v", err)
	}
	if looked.Version != 7 || looked.DocumentID != "doc_1" || looked.UserID != "usr_1" {
		t.Fatalf("unexpected session %+v", looked)
	}

	live, err := store.DocumentSessions(ctx, "doc_1")
	if err != nil || len(live) != 1 {
		t.Fatalf("DocumentSessions = %d, %v", len(live), err)
	}

	if err := store.EndSession(ctx, opened.ID); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if _, err := store.LookupSession(ctx, opened.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := store.EndSession(ctx, opened.ID); err != nil {
		t.Fatalf("ending an ended session should not fail: %v", err)
	}
	if live, _ := store.DocumentSessions(ctx, "doc_1"); len(live) != 0 {
		t.Fatalf("expected no live sessions, got %d", len(live))
	}
}

func TestSessionExpires(t *testing.T) {
	store, s := setupTestRedis(t, time.Minute)
	ctx := context.Background()

	opened, err := store.OpenSession(ctx, "doc_1", "usr_1", 1)
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	s.FastForward(2 * time.Minute)

	if _, err := store.LookupSession(ctx, opened.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
	if _, err := store.TouchSession(ctx, opened.ID, 2); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("touching an expired session should fail, got %v", err)
	}
}

func TestDocumentSessionsPrunesExpired(t *testing.T) {
	store, s := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	first, _ := store.OpenSession(ctx, "doc_1", "usr_1", 1)
	second, _ := store.OpenSession(ctx, "doc_1", "usr_2", 1)
	s.Del(store.sessionKey(first.ID))

	live, err := store.DocumentSessions(ctx, "doc_1")
	if err != nil {
		t.Fatalf("DocumentSessions failed: %v", err)
	}
	if len(live) != 1 || live[0].ID != second.ID {
		t.Fatalf("unexpected live sessions %+v", live)
	}
	if ok, _ := s.SIsMember(store.documentSessionsKey("doc_1"), first.ID); ok {
		t.Fatal("expected expired session id pruned from the document set")
	}
}

func TestDraftsAreScopedPerUser(t *testing.T) {
	store, _ := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	if _, err := store.LoadDraft(ctx, "doc_1", "usr_1"); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("expected ErrDraftNotFound, got %v", err)
	}

	if err := store.SaveDraft(ctx, "doc_1", "usr_1", Draft{Content: "unsaved words", BaseVersion: 3}); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}
	draft, err := store.LoadDraft(ctx, "doc_1", "usr_1")
	if err != nil {
		t.Fatalf("LoadDraft failed: %v", err)
	}
	if draft.Content != "unsaved words" || draft.BaseVersion != 3 || draft.SavedAt.IsZero() {
		t.Fatalf("unexpected draft %+v", draft)
	}
	if _, err := store.LoadDraft(ctx, "doc_1", "usr_2"); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("drafts must not leak across users, got %v", err)
	}

	if err := store.DiscardDraft(ctx, "doc_1", "usr_1"); err != nil {
		t.Fatalf("DiscardDraft failed: %v", err)
	}
	if _, err := store.LoadDraft(ctx, "doc_1", "usr_1"); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("expected draft discarded, got %v", err)
	}
}
