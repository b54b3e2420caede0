package chat

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ChatPrefix    = "chat:"
	ChatTTLActive = 2 * time.Hour

	StatusActive = "active"
	StatusEnded  = "ended"
)

// ChatSession represents an active Room pairing two sessions (spec.md §4.2).
// Rooms are created already active — the Matchmaker pairs two Waiting
// sessions under a single critical section and the Room exists from that
// instant; there is no accept/decline handshake.
type ChatSession struct {
	ChatID       string
	UserA        string
	UserB        string
	Status       string
	CreatedAt    int64
	MessageCount int64
}

// GetPartner returns the partner's session ID.
func (cs *ChatSession) GetPartner(sessionID string) string {
	if sessionID == cs.UserA {
		return cs.UserB
	}
	if sessionID == cs.UserB {
		return cs.UserA
	}
	return ""
}

// IsParticipant checks if a session is part of this chat.
func (cs *ChatSession) IsParticipant(sessionID string) bool {
	return sessionID == cs.UserA || sessionID == cs.UserB
}

// Store manages chat session (Room) state in Redis.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a new chat store backed by Redis.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Create creates a new Room, active immediately, pairing userA and userB.
// Called by the Matchmaker within the pairing critical section.
func (s *Store) Create(ctx context.Context, chatID, userA, userB string) error {
	key := ChatPrefix + chatID
	now := time.Now().Unix()

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"user_a":        userA,
		"user_b":        userB,
		"status":        StatusActive,
		"created_at":    now,
		"message_count": 0,
	})
	pipe.Expire(ctx, key, ChatTTLActive)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves a chat session. Returns nil if not found.
func (s *Store) Get(ctx context.Context, chatID string) (*ChatSession, error) {
	key := ChatPrefix + chatID
	result, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}

	createdAt, _ := strconv.ParseInt(result["created_at"], 10, 64)
	messageCount, _ := strconv.ParseInt(result["message_count"], 10, 64)

	return &ChatSession{
		ChatID:       chatID,
		UserA:        result["user_a"],
		UserB:        result["user_b"],
		Status:       result["status"],
		CreatedAt:    createdAt,
		MessageCount: messageCount,
	}, nil
}

// IncrementMessageCount bumps the room's message counter (spec.md §4.4 step 8).
func (s *Store) IncrementMessageCount(ctx context.Context, chatID string) error {
	key := ChatPrefix + chatID
	return s.rdb.HIncrBy(ctx, key, "message_count", 1).Err()
}

// Delete removes a chat session.
func (s *Store) Delete(ctx context.Context, chatID string) error {
	return s.rdb.Del(ctx, ChatPrefix+chatID).Err()
}

// ListActive scans Redis for all live Rooms, for AdminView's point-in-time
// "chats" accessor (spec.md §10 GET /api/admin/chats). A Room only becomes
// a durable chat_sessions row on close, so this is the only place to see
// in-flight chats.
func (s *Store) ListActive(ctx context.Context) ([]ChatSession, error) {
	var sessions []ChatSession
	iter := s.rdb.Scan(ctx, 0, ChatPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		chatID := iter.Val()[len(ChatPrefix):]
		cs, err := s.Get(ctx, chatID)
		if err != nil || cs == nil {
			continue
		}
		sessions = append(sessions, *cs)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}
