package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("MONGODB_TEST_URL")
	if url == "" {
		url = os.Getenv("MONGODB_URL")
	}
	if url == "" {
		t.Skip("MONGODB_TEST_URL or MONGODB_URL not set")
		return nil
	}
	client, err := mongo.Connect(options.Client().ApplyURI(url))
	if err != nil {
		t.Skipf("mongo unavailable: %v", err)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		t.Skipf("mongo unavailable: %v", err)
		return nil
	}

	database := client.Database("kairos_test")
	t.Cleanup(func() {
		_ = database.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return NewStore(database)
}

func TestSessionLifecycle(t *testing.T) {
	store := openTestStore(t)
	if store == nil {
		return
	}
	ctx := context.Background()

	session, err := store.CreateSession(ctx, "pki-1", "127.0.0.1", "go-test", time.Hour)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if session.SessionID == "" || !session.Valid {
		t.Fatalf("unexpected session: %+v", session)
	}

	found, err := store.FindActiveSession(ctx, session.SessionID, "pki-1")
	if err != nil {
		t.Fatalf("find error: %v", err)
	}
	if found.SessionID != session.SessionID {
		t.Fatalf("expected same session back")
	}

	// Wrong owner must be indistinguishable from not found.
	if _, err := store.FindActiveSession(ctx, session.SessionID, "pki-2"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for wrong owner, got %v", err)
	}

	if err := store.InvalidateSession(ctx, session.SessionID); err != nil {
		t.Fatalf("invalidate error: %v", err)
	}
	if _, err := store.FindActiveSession(ctx, session.SessionID, "pki-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after invalidation, got %v", err)
	}

	// Invalidating again stays a no-op.
	if err := store.InvalidateSession(ctx, session.SessionID); err != nil {
		t.Fatalf("second invalidate error: %v", err)
	}
	if err := store.InvalidateSession(ctx, "never-existed"); err != nil {
		t.Fatalf("invalidate of unknown id must not error: %v", err)
	}
}

func TestInvalidateAllSessionsForUser(t *testing.T) {
	store := openTestStore(t)
	if store == nil {
		return
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.CreateSession(ctx, "pki-3", "127.0.0.1", "go-test", time.Hour); err != nil {
			t.Fatalf("create error: %v", err)
		}
	}
	other, err := store.CreateSession(ctx, "pki-4", "127.0.0.1", "go-test", time.Hour)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}

	if err := store.InvalidateAllSessionsForUser(ctx, "pki-3"); err != nil {
		t.Fatalf("invalidate all error: %v", err)
	}

	count, err := store.CountActiveSessions(ctx, "pki-3")
	if err != nil {
		t.Fatalf("count error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 active sessions, got %d", count)
	}

	// Other users stay untouched.
	if _, err := store.FindActiveSession(ctx, other.SessionID, "pki-4"); err != nil {
		t.Fatalf("unrelated session must survive: %v", err)
	}
}

func TestDeleteExpiredSessionsBefore(t *testing.T) {
	store := openTestStore(t)
	if store == nil {
		return
	}
	ctx := context.Background()

	expired, err := store.CreateSession(ctx, "pki-5", "127.0.0.1", "go-test", -2*time.Hour)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	live, err := store.CreateSession(ctx, "pki-5", "127.0.0.1", "go-test", time.Hour)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}

	purged, err := store.DeleteExpiredSessionsBefore(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged session, got %d", purged)
	}

	if _, err := store.FindActiveSession(ctx, expired.SessionID, "pki-5"); err != ErrNotFound {
		t.Fatalf("expected expired session gone, got %v", err)
	}
	if _, err := store.FindActiveSession(ctx, live.SessionID, "pki-5"); err != nil {
		t.Fatalf("live session must survive the sweep: %v", err)
	}
}
