package matching

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/haven-chat/signalroom/internal/chat"
	"github.com/haven-chat/signalroom/internal/messaging"
)

const (
	matchInterval     = 2 * time.Second
	interestWindow    = 8 * time.Second // tiers 1-3 attempted only within this window of enqueuedAt
)

// MatchRequest is the NATS payload sent by wsserver when a user joins the queue.
type MatchRequest struct {
	SessionID string   `json:"session_id"`
	Interests []string `json:"interests"`
}

// CancelRequest is the NATS payload sent by wsserver when a user leaves the queue.
type CancelRequest struct {
	SessionID string `json:"session_id"`
}

// Service is the background Matchmaker that pairs Waiting sessions. It
// attempts the interest-tag tiers (exact, best-overlap, any-overlap) as an
// additive enrichment for a short escalation window, then falls back to
// strict FIFO so the spec's FIFO pairing invariant always eventually holds.
type Service struct {
	queue     *Queue
	nats      *messaging.NATSClient
	rdb       *redis.Client
	chatStore *chat.Store
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewService creates a new matching service.
func NewService(rdb *redis.Client, nats *messaging.NATSClient) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		queue:     NewQueue(rdb),
		nats:      nats,
		rdb:       rdb,
		chatStore: chat.NewStore(rdb),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to NATS subjects and starts the matching loop.
func (s *Service) Start() error {
	if err := s.nats.SubscribeMatchRequest(s.handleMatchRequest); err != nil {
		return err
	}
	if err := s.nats.SubscribeMatchCancel(s.handleCancelRequest); err != nil {
		return err
	}

	go s.matchLoop()
	go StartCleanup(s.ctx, s.queue, s.rdb)

	log.Println("[matcher] service started")
	return nil
}

// Stop gracefully shuts down the matching service.
func (s *Service) Stop() {
	s.cancel()
	log.Println("[matcher] service stopped")
}

func (s *Service) handleMatchRequest(data []byte) {
	var req MatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[matcher] invalid match request: %v", err)
		return
	}

	if err := s.queue.Enqueue(s.ctx, req.SessionID, req.Interests); err != nil {
		log.Printf("[matcher] enqueue %s: %v", req.SessionID, err)
		return
	}

	size, _ := s.queue.QueueSize(s.ctx)
	log.Printf("[matcher] enqueued %s with interests %v (queue size: %d)",
		req.SessionID, req.Interests, size)
}

func (s *Service) handleCancelRequest(data []byte) {
	var req CancelRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[matcher] invalid cancel request: %v", err)
		return
	}

	if err := s.queue.Dequeue(s.ctx, req.SessionID); err != nil {
		log.Printf("[matcher] dequeue %s: %v", req.SessionID, err)
		return
	}

	log.Printf("[matcher] dequeued %s (cancelled)", req.SessionID)
}

// matchLoop runs the core matching algorithm every 2 seconds.
func (s *Service) matchLoop() {
	ticker := time.NewTicker(matchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			log.Println("[matcher] match loop stopped")
			return
		case <-ticker.C:
			s.processQueue()
		}
	}
}

// processQueue iterates through all queued sessions and attempts to pair
// them. Tiers 1-3 (exact, best-overlap, any-overlap interest match) are
// tried only within interestWindow of the session's own enqueuedAt; once
// that window elapses, or for sessions with no interests at all, tier 4
// (strict FIFO, oldest two waiting sessions) is mandatory — there is no
// give-up timeout, matching spec.md's Matchmaker which never stops trying.
func (s *Service) processQueue() {
	ctx := s.ctx
	sessionIDs, err := s.queue.GetAllQueued(ctx)
	if err != nil {
		log.Printf("[matcher] failed to get queue: %v", err)
		return
	}

	for _, sid := range sessionIDs {
		// Re-check: session may have been matched earlier in this cycle.
		queued, err := s.queue.IsQueued(ctx, sid)
		if err != nil || !queued {
			continue
		}

		entry, err := s.queue.GetEntry(ctx, sid)
		if err != nil || entry == nil {
			continue
		}

		waitMs := float64(time.Now().UnixMilli()) - entry.JoinedAt
		withinWindow := time.Duration(waitMs)*time.Millisecond < interestWindow

		var match *MatchCandidate

		if withinWindow && len(entry.Interests) > 0 {
			match, err = s.queue.TryExactMatch(ctx, sid)
			if err != nil {
				log.Printf("[matcher] exact match error for %s: %v", sid, err)
			}
			if match == nil {
				match, err = s.queue.TryOverlapMatch(ctx, sid)
				if err != nil {
					log.Printf("[matcher] overlap match error for %s: %v", sid, err)
				}
			}
			if match == nil {
				match, err = s.queue.TrySingleInterestMatch(ctx, sid)
				if err != nil {
					log.Printf("[matcher] single-interest match error for %s: %v", sid, err)
				}
			}
		}

		// Tier 4: mandatory strict-FIFO fallback. Guarantees every session
		// is eventually paired — no session is skipped past permanently.
		if match == nil {
			match, err = s.queue.TryFIFOMatch(ctx, sid)
			if err != nil {
				log.Printf("[matcher] fifo match error for %s: %v", sid, err)
			}
		}

		if match != nil {
			s.handleMatch(ctx, match)
		}
	}
}

// handleMatch commits a candidate pairing. ClaimPair is the single atomic
// step that replaces the teacher's two separate Dequeue calls: it removes
// both sessions from every matching structure in one Redis-side script, so a
// concurrent leave_queue cancellation (handleCancelRequest, driven by its own
// NATS subscription goroutine) can never race the matcher's ticker into
// pairing a session that has already cancelled, or double-pairing a session
// two tiers picked in the same tick.
func (s *Service) handleMatch(ctx context.Context, match *MatchCandidate) {
	claimed, err := s.queue.ClaimPair(ctx, match.SessionA, match.SessionB)
	if err != nil {
		log.Printf("[matcher] claim pair %s/%s: %v", match.SessionA, match.SessionB, err)
		return
	}
	if !claimed {
		log.Printf("[matcher] stale candidate %s/%s, one side already left the queue", match.SessionA, match.SessionB)
		return
	}

	roomID := uuid.New().String()
	if err := s.chatStore.Create(ctx, roomID, match.SessionA, match.SessionB); err != nil {
		log.Printf("[matcher] create room: %v", err)
		return
	}

	if err := PublishMatchFound(s.nats, roomID, match); err != nil {
		log.Printf("[matcher] publish match: %v", err)
	}
}
