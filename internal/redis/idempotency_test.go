package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	return client, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestIdempotencyService_NewTrigger(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	result, err := svc.CheckOrReserve(ctx, "user-1", "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result for new trigger, got: %+v", result)
	}
}

func TestIdempotencyService_DuplicateInFlight(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "user-1", "key-1"); err != nil {
		t.Fatalf("first trigger failed: %v", err)
	}

	// Same key again while still processing
	if _, err := svc.CheckOrReserve(ctx, "user-1", "key-1"); err != ErrDuplicateRequest {
		t.Fatalf("expected ErrDuplicateRequest, got: %v", err)
	}
}

func TestIdempotencyService_ReleaseAllowsRetry(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "user-1", "key-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	// The trigger aborted before an alert was recorded; the key must be
	// reservable again immediately, not after the processing TTL.
	if err := svc.Release(ctx, "user-1", "key-1"); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	result, err := svc.CheckOrReserve(ctx, "user-1", "key-1")
	if err != nil {
		t.Fatalf("retry after release failed: %v", err)
	}
	if result != nil {
		t.Fatalf("expected fresh reservation, got replayed result: %+v", result)
	}
}

func TestIdempotencyService_ReplaysStoredResult(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "user-1", "key-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	stored := &IdempotencyResult{
		AlertID:    "alert-123",
		StatusCode: 202,
		Sent:       2,
		Failed:     1,
	}
	if err := svc.Store(ctx, "user-1", "key-1", stored); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	result, err := svc.CheckOrReserve(ctx, "user-1", "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected cached result, got nil")
	}
	if result.AlertID != "alert-123" {
		t.Errorf("alert id = %q, want alert-123", result.AlertID)
	}
	if result.Sent != 2 || result.Failed != 1 {
		t.Errorf("counts = %d/%d, want 2/1", result.Sent, result.Failed)
	}
	if result.CreatedAt == 0 {
		t.Error("expected CreatedAt to be set on store")
	}
}

func TestIdempotencyService_KeysAreUserScoped(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "user-1", "key-1"); err != nil {
		t.Fatalf("first user failed: %v", err)
	}

	// A different user may reuse the same client-side key.
	result, err := svc.CheckOrReserve(ctx, "user-2", "key-1")
	if err != nil {
		t.Fatalf("second user should not collide: %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result, got: %+v", result)
	}
}

func TestIdempotencyService_ExpiredKeyAllowsRetrigger(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "user-1", "key-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := svc.Store(ctx, "user-1", "key-1", &IdempotencyResult{AlertID: "a1", StatusCode: 202}); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	// Drop the key as if the TTL lapsed.
	if err := client.rdb.Del(ctx, "idempotency:user-1:key-1").Err(); err != nil {
		t.Fatalf("del failed: %v", err)
	}

	result, err := svc.CheckOrReserve(ctx, "user-1", "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("expected fresh reservation after expiry, got: %+v", result)
	}
}

func TestIdempotencyService_StoreSetsCreatedAt(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	before := time.Now().Unix()
	r := &IdempotencyResult{AlertID: "a1", StatusCode: 202}
	if err := svc.Store(ctx, "user-1", "key-x", r); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if r.CreatedAt < before {
		t.Errorf("CreatedAt = %d, want >= %d", r.CreatedAt, before)
	}
}
