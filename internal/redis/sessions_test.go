package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestSessionStore_CreateAndLookup(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewSessionStore(client, zap.NewNop(), time.Hour)
	ctx := context.Background()
	userID := uuid.New()

	token, err := store.Create(ctx, userID)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	got, err := store.Lookup(ctx, token)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got != userID {
		t.Errorf("user id = %s, want %s", got, userID)
	}
}

func TestSessionStore_UnknownToken(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewSessionStore(client, zap.NewNop(), time.Hour)

	if _, err := store.Lookup(context.Background(), "no-such-token"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got: %v", err)
	}
}

func TestSessionStore_Delete(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewSessionStore(client, zap.NewNop(), time.Hour)
	ctx := context.Background()

	token, err := store.Create(ctx, uuid.New())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := store.Delete(ctx, token); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := store.Lookup(ctx, token); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound after delete, got: %v", err)
	}
}

func TestSessionStore_TokensAreUnique(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewSessionStore(client, zap.NewNop(), time.Hour)
	ctx := context.Background()
	userID := uuid.New()

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		token, err := store.Create(ctx, userID)
		if err != nil {
			t.Fatalf("create %d failed: %v", i, err)
		}
		if seen[token] {
			t.Fatalf("duplicate token generated: %s", token)
		}
		seen[token] = true
	}
}
