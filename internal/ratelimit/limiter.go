// Package ratelimit provides Redis-backed rate limiting using the INCR + EXPIRE
// fixed-window algorithm. It is designed for high-throughput WebSocket servers
// where each action (message, connection) needs per-source-address throttling.
package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:msg:", "rl:conn:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

// Standard rate limiting rules (spec.md §4.9).
var (
	// RuleConnect allows 5 connection admissions per 60s per source address.
	RuleConnect = Rule{Key: "rl:conn:", Limit: 5, Window: 60 * time.Second}

	// RuleMessage allows 20 messages per 60s per source address.
	RuleMessage = Rule{Key: "rl:msg:", Limit: 20, Window: 60 * time.Second}

	// RuleMatch is a supplemental rule (not in spec.md's table) throttling
	// join_queue requests, kept from the teacher's existing match-request
	// limiting to guard the Matchmaker queue against churn.
	RuleMatch = Rule{Key: "rl:match:", Limit: 10, Window: 1 * time.Minute}
)

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Check reports whether identifier is currently within rule's limit, without
// any side effect. Per spec.md §4.9, check must be read-free of side
// effects — callers perform the action only if allowed, then call Increment.
// On Redis errors it fails open (returns true) so an outage doesn't block
// legitimate traffic.
func (l *Limiter) Check(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	count, err := l.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		log.Printf("[ratelimit] redis GET error key=%s: %v (failing open)", key, err)
		return true, err
	}

	return count < rule.Limit, nil
}

// Increment records one occurrence of the action for identifier. It must be
// called only after Check returned allowed and the action was actually
// performed. Sets the window expiry on the first increment.
func (l *Limiter) Increment(ctx context.Context, identifier string, rule Rule) error {
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v", key, err)
		return err
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v", key, err)
			// The key exists but has no TTL — it will persist. Best effort: try
			// to delete it so it doesn't block the identifier forever.
			l.client.Del(ctx, key)
			return err
		}
	}

	return nil
}

// Remaining returns the number of requests the identifier has left in the
// current window for the given rule. Returns the full limit if the key does
// not exist yet. On Redis errors it returns the full limit (fail open).
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) (int, error) {
	key := rule.Key + identifier

	count, err := l.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return rule.Limit, nil
	}
	if err != nil {
		log.Printf("[ratelimit] redis GET error key=%s: %v (failing open)", key, err)
		return rule.Limit, err
	}

	remaining := rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
