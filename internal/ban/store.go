// Package ban provides source-address ban management backed by Redis. Ban
// records are keyed by the server-derived client network address (never a
// client-submitted value) as simple key-value pairs with TTL-based expiry:
//
//	Key:   ban:<sourceAddr>
//	Value: <reason>
//	TTL:   ban duration
package ban

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// BanPrefix is the Redis key prefix for ban records.
	BanPrefix = "ban:"

	// ReportsPrefix is the Redis key prefix for report counters
	// (used by the escalating auto-ban system, spec.md §14).
	ReportsPrefix = "reports:"

	// Escalating ban durations.
	Ban15Min  = 15 * time.Minute // 1st offense
	Ban1Hour  = 1 * time.Hour    // 2nd offense
	Ban24Hour = 24 * time.Hour   // 3rd+ offense

	// ReportsTTL is how long the offense counter lives in Redis.
	// After 24h without new offenses the counter resets to zero.
	ReportsTTL = 24 * time.Hour

	// AutoBanThreshold is the number of reports within ReportsTTL that
	// triggers an automatic ban.
	AutoBanThreshold = 3
)

// Store manages ban records in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a new ban store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// IsBanned checks if a source address is currently banned.
// Returns (isBanned, remainingSeconds, reason, error).
// If the address is not banned, isBanned is false and the other return
// values are zero/empty. Redis errors are returned so callers can decide
// how to handle them (the WebSocket admission gate refuses the connection).
func (s *Store) IsBanned(ctx context.Context, sourceAddr string) (bool, int, string, error) {
	key := BanPrefix + sourceAddr

	reason, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, 0, "", nil
	}
	if err != nil {
		return false, 0, "", err
	}

	// Key exists, get the remaining TTL.
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		// We know the ban exists but can't read the TTL. Report banned
		// with 0 remaining rather than swallowing the ban.
		return true, 0, reason, nil
	}

	remaining := 0
	if ttl > 0 {
		remaining = int(ttl.Seconds())
	}

	return true, remaining, reason, nil
}

// Ban sets a ban on a source address with the given duration and reason.
// The ban automatically expires after the specified duration.
func (s *Store) Ban(ctx context.Context, sourceAddr string, duration time.Duration, reason string) error {
	key := BanPrefix + sourceAddr
	return s.client.Set(ctx, key, reason, duration).Err()
}

// Unban removes a ban from a source address immediately.
func (s *Store) Unban(ctx context.Context, sourceAddr string) error {
	key := BanPrefix + sourceAddr
	return s.client.Del(ctx, key).Err()
}

// ---------------------------------------------------------------------------
// Escalating ban system (spec.md §14)
// ---------------------------------------------------------------------------

// GetOffenseCount returns the current offense/report counter for a source
// address. Returns 0 if the key does not exist (no offenses recorded or
// counter expired).
func (s *Store) GetOffenseCount(ctx context.Context, sourceAddr string) (int, error) {
	key := ReportsPrefix + sourceAddr
	val, err := s.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// escalateScript increments a source address's report counter and, once the
// caller's threshold is met, sets the ban key in the same round trip. A bare
// INCR-then-EXPIRE-then-SET sequence (as a direct Go translation of this
// logic would be) leaves a window between the counter update and the ban
// being applied: two concurrent reports for the same address could each read
// a stale count, or an admin Unban could land between the INCR and the SET
// and be silently overwritten by it. Running the whole sequence as one
// script closes that window the same way claimPairScript does for pairing.
//
// KEYS[1]: reports key, KEYS[2]: ban key
// ARGV[1]: reports TTL (seconds), ARGV[2]: ban reason
// ARGV[3..5]: tier durations for offense counts 1, 2, 3+ (seconds)
// ARGV[6]: threshold; 0 means "ban on every call", >0 means "ban once count reaches this"
// Returns {count, durationApplied} — durationApplied is 0 if no ban was set.
var escalateScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('EXPIRE', KEYS[1], ARGV[1])
end

local threshold = tonumber(ARGV[6])
if threshold > 0 and count < threshold then
	return {count, 0}
end

local duration
if count <= 1 then
	duration = tonumber(ARGV[3])
elseif count == 2 then
	duration = tonumber(ARGV[4])
else
	duration = tonumber(ARGV[5])
end

redis.call('SET', KEYS[2], ARGV[2], 'EX', duration)
return {count, duration}
`)

// runEscalate increments the offense counter for sourceAddr and, once count
// reaches threshold (0 meaning every call), applies the escalating ban
// atomically. It backs both Escalate and ReportAndCheck.
func (s *Store) runEscalate(ctx context.Context, sourceAddr, reason string, threshold int) (int, time.Duration, error) {
	keys := []string{ReportsPrefix + sourceAddr, BanPrefix + sourceAddr}
	res, err := escalateScript.Run(ctx, s.client, keys,
		int(ReportsTTL.Seconds()), reason,
		int(Ban15Min.Seconds()), int(Ban1Hour.Seconds()), int(Ban24Hour.Seconds()),
		threshold,
	).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("ban: escalate script: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, 0, fmt.Errorf("ban: escalate script: unexpected reply %#v", res)
	}
	count, _ := vals[0].(int64)
	durationSeconds, _ := vals[1].(int64)
	return int(count), time.Duration(durationSeconds) * time.Second, nil
}

// Escalate increments the offense counter for a source address and applies
// a ban whose duration escalates with the number of offenses:
//
//	1st offense  -> 15 minutes
//	2nd offense  -> 1 hour
//	3rd+ offense -> 24 hours
//
// The offense counter has a 24h TTL that resets on first increment, so
// counters naturally expire if there is no new activity.
//
// Returns the ban duration that was applied.
func (s *Store) Escalate(ctx context.Context, sourceAddr string, reason string) (time.Duration, error) {
	_, duration, err := s.runEscalate(ctx, sourceAddr, reason, 0)
	return duration, err
}

// ReportAndCheck increments the report counter for a source address and
// checks whether the auto-ban threshold (3 reports in 24h) has been reached.
//
// If the threshold is met or exceeded, the matching escalation-tier duration
// is applied as a ban. Returns (banned, duration, error).
func (s *Store) ReportAndCheck(ctx context.Context, sourceAddr string, reason string) (bool, time.Duration, error) {
	count, duration, err := s.runEscalate(ctx, sourceAddr, "multiple_reports", AutoBanThreshold)
	if err != nil {
		return false, 0, err
	}
	return count >= AutoBanThreshold, duration, nil
}
