package matching

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestQueue creates a Queue connected to a test Redis instance.
// Requires Redis running on localhost:6379. Tests are skipped if unavailable.
func setupTestQueue(t *testing.T) (*Queue, context.Context) {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid conflicts
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: Redis not available: %v", err)
	}

	// Flush test DB before each test.
	rdb.FlushDB(ctx)

	t.Cleanup(func() {
		rdb.FlushDB(ctx)
		rdb.Close()
	})

	return NewQueue(rdb), ctx
}

// enqueueTestUser is a helper that enqueues a user at the current time.
func enqueueTestUser(t *testing.T, q *Queue, ctx context.Context, sessionID string, interests []string) {
	t.Helper()
	if err := q.Enqueue(ctx, sessionID, interests); err != nil {
		t.Fatalf("failed to enqueue %s: %v", sessionID, err)
	}
}

// ---------- TrySingleInterestMatch tests ----------

func TestTrySingleInterestMatch_FindsCandidateWithOneSharedInterest(t *testing.T) {
	q, ctx := setupTestQueue(t)

	enqueueTestUser(t, q, ctx, "alice", []string{"gaming", "music", "cooking"})
	enqueueTestUser(t, q, ctx, "bob", []string{"sports", "music", "travel"})

	match, err := q.TrySingleInterestMatch(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil {
		t.Fatal("expected a match, got nil")
	}

	if match.SessionA != "alice" {
		t.Errorf("expected SessionA=alice, got %s", match.SessionA)
	}
	if match.SessionB != "bob" {
		t.Errorf("expected SessionB=bob, got %s", match.SessionB)
	}
	// They share "music".
	if len(match.SharedInterests) == 0 {
		t.Fatal("expected at least one shared interest")
	}
	found := false
	for _, interest := range match.SharedInterests {
		if interest == "music" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected 'music' in shared interests, got %v", match.SharedInterests)
	}
}

func TestTrySingleInterestMatch_NoOverlap(t *testing.T) {
	q, ctx := setupTestQueue(t)

	enqueueTestUser(t, q, ctx, "alice", []string{"gaming", "music"})
	enqueueTestUser(t, q, ctx, "bob", []string{"sports", "cooking"})

	match, err := q.TrySingleInterestMatch(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match != nil {
		t.Errorf("expected no match when no interests overlap, got %+v", match)
	}
}

func TestTrySingleInterestMatch_SkipsSelf(t *testing.T) {
	q, ctx := setupTestQueue(t)

	enqueueTestUser(t, q, ctx, "alice", []string{"gaming"})

	match, err := q.TrySingleInterestMatch(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match != nil {
		t.Errorf("expected no match when only self is queued, got %+v", match)
	}
}

func TestTrySingleInterestMatch_EmptyQueue(t *testing.T) {
	q, ctx := setupTestQueue(t)

	// Only alice is queued, so every interest set holds nobody but her.
	enqueueTestUser(t, q, ctx, "alice", []string{"gaming"})

	// No other users in queue.
	match, err := q.TrySingleInterestMatch(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match != nil {
		t.Errorf("expected no match with no other users, got %+v", match)
	}
}

func TestTrySingleInterestMatch_MultipleSharedInterests(t *testing.T) {
	q, ctx := setupTestQueue(t)

	enqueueTestUser(t, q, ctx, "alice", []string{"gaming", "music", "anime"})
	enqueueTestUser(t, q, ctx, "bob", []string{"gaming", "anime", "cooking"})

	match, err := q.TrySingleInterestMatch(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil {
		t.Fatal("expected a match, got nil")
	}

	// They share "gaming" and "anime" — Tier 3 accepts any overlap >= 1,
	// but still returns all shared interests.
	if len(match.SharedInterests) < 1 {
		t.Errorf("expected at least 1 shared interest, got %d", len(match.SharedInterests))
	}
}

func TestTrySingleInterestMatch_SkipsDequeuedCandidate(t *testing.T) {
	q, ctx := setupTestQueue(t)

	enqueueTestUser(t, q, ctx, "alice", []string{"gaming"})
	enqueueTestUser(t, q, ctx, "bob", []string{"gaming"})

	// Dequeue bob so he's no longer valid.
	if err := q.Dequeue(ctx, "bob"); err != nil {
		t.Fatalf("failed to dequeue bob: %v", err)
	}

	match, err := q.TrySingleInterestMatch(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match != nil {
		t.Errorf("expected no match after candidate dequeued, got %+v", match)
	}
}

func TestTrySingleInterestMatch_NonExistentSession(t *testing.T) {
	q, ctx := setupTestQueue(t)

	match, err := q.TrySingleInterestMatch(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match != nil {
		t.Errorf("expected nil for nonexistent session, got %+v", match)
	}
}

func TestTrySingleInterestMatch_SharedInterestsAreSorted(t *testing.T) {
	q, ctx := setupTestQueue(t)

	enqueueTestUser(t, q, ctx, "alice", []string{"zumba", "anime", "gaming"})
	enqueueTestUser(t, q, ctx, "bob", []string{"zumba", "gaming", "anime"})

	match, err := q.TrySingleInterestMatch(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil {
		t.Fatal("expected a match, got nil")
	}

	// Verify shared interests are sorted alphabetically.
	for i := 1; i < len(match.SharedInterests); i++ {
		if match.SharedInterests[i] < match.SharedInterests[i-1] {
			t.Errorf("shared interests not sorted: %v", match.SharedInterests)
			break
		}
	}
}

// ---------- TryFIFOMatch tests ----------

func TestTryFIFOMatch_FindsAnyCandidate(t *testing.T) {
	q, ctx := setupTestQueue(t)

	enqueueTestUser(t, q, ctx, "alice", []string{"gaming"})
	enqueueTestUser(t, q, ctx, "bob", []string{"cooking"})

	match, err := q.TryFIFOMatch(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil {
		t.Fatal("expected a match, got nil")
	}

	if match.SessionA != "alice" {
		t.Errorf("expected SessionA=alice, got %s", match.SessionA)
	}
	if match.SessionB != "bob" {
		t.Errorf("expected SessionB=bob, got %s", match.SessionB)
	}
	if match.SharedInterests != nil {
		t.Errorf("expected nil SharedInterests for random match, got %v", match.SharedInterests)
	}
}

func TestTryFIFOMatch_NoOtherUsers(t *testing.T) {
	q, ctx := setupTestQueue(t)

	enqueueTestUser(t, q, ctx, "alice", []string{"gaming"})

	match, err := q.TryFIFOMatch(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match != nil {
		t.Errorf("expected no match when alone in queue, got %+v", match)
	}
}

func TestTryFIFOMatch_EmptyQueue(t *testing.T) {
	q, ctx := setupTestQueue(t)

	match, err := q.TryFIFOMatch(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match != nil {
		t.Errorf("expected no match with empty queue, got %+v", match)
	}
}

func TestTryFIFOMatch_SkipsSelf(t *testing.T) {
	q, ctx := setupTestQueue(t)

	enqueueTestUser(t, q, ctx, "alice", []string{"gaming"})

	match, err := q.TryFIFOMatch(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match != nil {
		t.Errorf("expected no match when only self is queued, got %+v", match)
	}
}

func TestTryFIFOMatch_SkipsDequeuedCandidate(t *testing.T) {
	q, ctx := setupTestQueue(t)

	enqueueTestUser(t, q, ctx, "alice", []string{"gaming"})
	enqueueTestUser(t, q, ctx, "bob", []string{"cooking"})

	if err := q.Dequeue(ctx, "bob"); err != nil {
		t.Fatalf("failed to dequeue bob: %v", err)
	}

	match, err := q.TryFIFOMatch(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match != nil {
		t.Errorf("expected no match after candidate dequeued, got %+v", match)
	}
}

func TestTryFIFOMatch_OldestFirstFairness(t *testing.T) {
	q, ctx := setupTestQueue(t)

	// Enqueue in order: bob, charlie, alice requests match.
	enqueueTestUser(t, q, ctx, "bob", []string{"sports"})
	time.Sleep(10 * time.Millisecond) // ensure ordering
	enqueueTestUser(t, q, ctx, "charlie", []string{"music"})
	time.Sleep(10 * time.Millisecond)
	enqueueTestUser(t, q, ctx, "alice", []string{"gaming"})

	match, err := q.TryFIFOMatch(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil {
		t.Fatal("expected a match, got nil")
	}

	// Bob joined first, so he should be the match (oldest-first fairness).
	if match.SessionB != "bob" {
		t.Errorf("expected oldest user 'bob' as match, got %s", match.SessionB)
	}
}

func TestTryFIFOMatch_PairsUsersWithNoSharedInterests(t *testing.T) {
	q, ctx := setupTestQueue(t)

	enqueueTestUser(t, q, ctx, "alice", []string{"gaming", "music"})
	enqueueTestUser(t, q, ctx, "bob", []string{"cooking", "travel"})

	match, err := q.TryFIFOMatch(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil {
		t.Fatal("expected a random match even without shared interests")
	}
	if match.SharedInterests != nil {
		t.Errorf("random match should have nil SharedInterests, got %v", match.SharedInterests)
	}
}

func TestTryFIFOMatch_MultipleCandidates(t *testing.T) {
	q, ctx := setupTestQueue(t)

	// Add several users.
	for i := 0; i < 5; i++ {
		enqueueTestUser(t, q, ctx, fmt.Sprintf("user-%d", i), []string{fmt.Sprintf("interest-%d", i)})
		time.Sleep(5 * time.Millisecond)
	}

	match, err := q.TryFIFOMatch(ctx, "user-4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil {
		t.Fatal("expected a match with multiple users")
	}
	if match.SessionA != "user-4" {
		t.Errorf("expected SessionA=user-4, got %s", match.SessionA)
	}
	// Should get the oldest user (user-0).
	if match.SessionB != "user-0" {
		t.Errorf("expected oldest user 'user-0' as match, got %s", match.SessionB)
	}
}

// ---------- Tier timing constant tests ----------

// There is no give-up timeout: the Matchmaker never stops trying to pair a
// session (spec.md's FIFO invariant requires every session is eventually
// paired). interestWindow only bounds how long tiers 1-3 are attempted
// before tier 4 (strict FIFO) becomes mandatory; it never gates tier 4 off.
func TestInterestWindowBoundsOnlyTheTieredAttempt(t *testing.T) {
	if interestWindow != 8*time.Second {
		t.Errorf("interestWindow should be 8s, got %v", interestWindow)
	}
	if matchInterval >= interestWindow {
		t.Error("matchInterval should be smaller than interestWindow so several ticks fall inside the window")
	}
}

// ---------- ClaimPair tests ----------

func TestClaimPair_RemovesBothSessions(t *testing.T) {
	q, ctx := setupTestQueue(t)

	enqueueTestUser(t, q, ctx, "alice", []string{"gaming"})
	enqueueTestUser(t, q, ctx, "bob", []string{"gaming"})

	claimed, err := q.ClaimPair(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("ClaimPair() error: %v", err)
	}
	if !claimed {
		t.Fatal("expected ClaimPair to succeed for two queued sessions")
	}

	for _, sid := range []string{"alice", "bob"} {
		queued, err := q.IsQueued(ctx, sid)
		if err != nil {
			t.Fatalf("IsQueued(%s) error: %v", sid, err)
		}
		if queued {
			t.Errorf("expected %s to be removed from the queue after ClaimPair", sid)
		}
		entry, err := q.GetEntry(ctx, sid)
		if err != nil {
			t.Fatalf("GetEntry(%s) error: %v", sid, err)
		}
		if entry != nil {
			t.Errorf("expected %s's session hash to be deleted after ClaimPair, got %+v", sid, entry)
		}
	}

	// The interest set backing tier-1/2/3 lookups must be cleaned up too.
	candidates, err := q.GetInterestCandidates(ctx, "gaming")
	if err != nil {
		t.Fatalf("GetInterestCandidates() error: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("expected no remaining interest-set members, got %v", candidates)
	}
}

func TestClaimPair_FailsIfOneSideAlreadyLeft(t *testing.T) {
	q, ctx := setupTestQueue(t)

	enqueueTestUser(t, q, ctx, "alice", []string{"music"})
	enqueueTestUser(t, q, ctx, "bob", []string{"music"})

	if err := q.Dequeue(ctx, "bob"); err != nil {
		t.Fatalf("Dequeue(bob) error: %v", err)
	}

	claimed, err := q.ClaimPair(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("ClaimPair() error: %v", err)
	}
	if claimed {
		t.Fatal("expected ClaimPair to fail once bob already left the queue")
	}

	// alice must be left untouched — a failed claim must not half-commit.
	queued, err := q.IsQueued(ctx, "alice")
	if err != nil {
		t.Fatalf("IsQueued(alice) error: %v", err)
	}
	if !queued {
		t.Error("expected alice to remain queued after a failed claim")
	}
}

func TestClaimPair_FailsForUnknownSessions(t *testing.T) {
	q, ctx := setupTestQueue(t)

	claimed, err := q.ClaimPair(ctx, "nobody-a", "nobody-b")
	if err != nil {
		t.Fatalf("ClaimPair() error: %v", err)
	}
	if claimed {
		t.Fatal("expected ClaimPair to fail for sessions that were never queued")
	}
}
