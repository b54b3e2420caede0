package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*Limiter, *redis.Client) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	prefixes := []string{"rl:conn:test_*", "rl:msg:test_*", "rl:match:test_*"}
	cleanup := func() {
		for _, prefix := range prefixes {
			iter := client.Scan(ctx, 0, prefix, 100).Iterator()
			for iter.Next(ctx) {
				client.Del(ctx, iter.Val())
			}
		}
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		client.Close()
	})
	return NewLimiter(client), client
}

func TestCheck_AllowsUnderLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:msg:", Limit: 3, Window: time.Minute}

	allowed, err := limiter.Check(ctx, "test_user1", rule)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !allowed {
		t.Fatal("expected allowed with no prior increments")
	}
}

func TestIncrement_BlocksAtLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:msg:", Limit: 2, Window: time.Minute}

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Check(ctx, "test_user2", rule)
		if err != nil || !allowed {
			t.Fatalf("expected allowed on attempt %d: allowed=%v err=%v", i, allowed, err)
		}
		if err := limiter.Increment(ctx, "test_user2", rule); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	allowed, err := limiter.Check(ctx, "test_user2", rule)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if allowed {
		t.Fatal("expected blocked after reaching limit")
	}
}

func TestCheck_DoesNotIncrement(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:conn:", Limit: 1, Window: time.Minute}

	for i := 0; i < 5; i++ {
		if _, err := limiter.Check(ctx, "test_user3", rule); err != nil {
			t.Fatalf("check: %v", err)
		}
	}

	remaining, err := limiter.Remaining(ctx, "test_user3", rule)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != rule.Limit {
		t.Fatalf("expected Check alone not to consume quota, remaining=%d want=%d", remaining, rule.Limit)
	}
}

func TestRemaining_ReflectsIncrements(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:match:", Limit: 5, Window: time.Minute}

	if err := limiter.Increment(ctx, "test_user4", rule); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := limiter.Increment(ctx, "test_user4", rule); err != nil {
		t.Fatalf("increment: %v", err)
	}

	remaining, err := limiter.Remaining(ctx, "test_user4", rule)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 3 {
		t.Fatalf("expected 3 remaining after 2 increments of limit 5, got %d", remaining)
	}
}
