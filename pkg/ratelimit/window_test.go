package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hazlamahedich/trade/pkg/ratelimit"
)

func TestWindow_LimitAndReset(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	w := ratelimit.NewWindow(rdb, "test:", 3, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ok, err := w.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !ok {
			t.Fatalf("Hit %d should be allowed", i)
		}
	}

	ok, _ := w.Allow(ctx, "10.0.0.1")
	if ok {
		t.Error("Hit limit+1 should be rejected")
	}

	// Other keys have their own window
	ok, _ = w.Allow(ctx, "10.0.0.2")
	if !ok {
		t.Error("Different key should be allowed")
	}

	if ttl := mr.TTL("test:10.0.0.1"); ttl <= 0 || ttl > time.Minute {
		t.Errorf("Expected expiry armed on first hit, got %s", ttl)
	}

	mr.FastForward(61 * time.Second)

	ok, _ = w.Allow(ctx, "10.0.0.1")
	if !ok {
		t.Error("Counter should reset after the window expires")
	}
}

func TestWindow_RearmsMissingExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	// A counter left over the limit with no expiry.
	mr.Set("test:10.0.0.1", "5")

	w := ratelimit.NewWindow(rdb, "test:", 3, time.Minute)
	ctx := context.Background()

	ok, err := w.Allow(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if ok {
		t.Error("Counter over the limit should reject")
	}
	if ttl := mr.TTL("test:10.0.0.1"); ttl != time.Minute {
		t.Errorf("Expected expiry re-armed to 1m, got %s", ttl)
	}

	// Later hits do not push the expiry back.
	mr.FastForward(30 * time.Second)
	w.Allow(ctx, "10.0.0.1")
	if ttl := mr.TTL("test:10.0.0.1"); ttl != 30*time.Second {
		t.Errorf("Expected expiry untouched at 30s, got %s", ttl)
	}

	mr.FastForward(31 * time.Second)
	ok, _ = w.Allow(ctx, "10.0.0.1")
	if !ok {
		t.Error("Counter should reset once the re-armed window expires")
	}
}

func TestWindow_StoreDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	w := ratelimit.NewWindow(rdb, "test:", 3, time.Minute)
	if _, err := w.Allow(context.Background(), "k"); err == nil {
		t.Error("Expected error when Redis is unreachable")
	}
}
