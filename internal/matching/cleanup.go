package matching

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const cleanupInterval = 5 * time.Second

// StartCleanup runs a background loop that removes stale entries from the
// matching queue — sessions whose Redis session record has expired or been
// deleted (disconnect without a clean LEAVE_QUEUE).
func StartCleanup(ctx context.Context, queue *Queue, rdb *redis.Client) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[matcher] cleanup loop stopped")
			return
		case <-ticker.C:
			cleanStaleEntries(ctx, queue, rdb)
		}
	}
}

// cleanStaleEntries removes users from the match queue whose sessions
// no longer exist in Redis (disconnected or expired).
func cleanStaleEntries(ctx context.Context, queue *Queue, rdb *redis.Client) {
	sessionIDs, err := queue.GetAllQueued(ctx)
	if err != nil {
		log.Printf("[matcher] cleanup: failed to get queue: %v", err)
		return
	}

	removed := 0
	for _, sid := range sessionIDs {
		exists, err := rdb.Exists(ctx, "session:"+sid).Result()
		if err != nil {
			continue
		}
		if exists == 0 {
			if err := queue.Dequeue(ctx, sid); err != nil {
				log.Printf("[matcher] cleanup: failed to dequeue %s: %v", sid, err)
			} else {
				removed++
			}
		}
	}

	if removed > 0 {
		log.Printf("[matcher] cleanup: removed %d stale entries", removed)
	}
}
