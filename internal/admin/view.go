// Package admin implements the read-mostly operator surface named in
// spec.md §1 as an external collaborator ("Administrative CRUD over bans
// and appeals") and specified concretely by SPEC_FULL.md §10: a chi-routed
// JSON API over live Redis state (queue/chats) and durable Postgres tables
// (bans/appeals/stats).
package admin

import (
	"context"

	"github.com/haven-chat/signalroom/internal/chat"
	"github.com/haven-chat/signalroom/internal/database"
	"github.com/haven-chat/signalroom/internal/matching"
)

// Stats is the point-in-time operational snapshot for GET /api/admin/stats.
type Stats struct {
	QueueSize     int64 `json:"queueSize"`
	ActiveChats   int   `json:"activeChats"`
	MessagesToday int   `json:"messagesToday"`
}

// ChatSummary is the admin-facing read-only view of a live Room. It never
// exposes message content, only metadata (spec.md §1's "read-only" scope).
type ChatSummary struct {
	ChatID       string `json:"chatId"`
	UserA        string `json:"userA"`
	UserB        string `json:"userB"`
	CreatedAt    int64  `json:"createdAt"`
	MessageCount int64  `json:"messageCount"`
}

// QueueEntry is the admin-facing view of one waiting session.
type QueueEntry struct {
	SessionID string   `json:"sessionId"`
	Interests []string `json:"interests"`
	QueuedAt  int64    `json:"queuedAt"`
}

// View aggregates read accessors across Redis and Postgres for the admin
// HTTP surface. It holds no write methods of its own: mutations go through
// database.BansStore / appeal.Store / internal/ban directly so the admin
// handlers keep the same transactional boundaries those stores already own.
type View struct {
	chatStore  *chat.Store
	queue      *matching.Queue
	statsStore *database.StatsStore
}

// NewView constructs a View over the given stores.
func NewView(chatStore *chat.Store, queue *matching.Queue, statsStore *database.StatsStore) *View {
	return &View{chatStore: chatStore, queue: queue, statsStore: statsStore}
}

// Stats returns the current operational snapshot.
func (v *View) Stats(ctx context.Context) (Stats, error) {
	queueSize, err := v.queue.QueueSize(ctx)
	if err != nil {
		return Stats{}, err
	}
	chats, err := v.chatStore.ListActive(ctx)
	if err != nil {
		return Stats{}, err
	}
	messagesToday, err := v.statsStore.MessagesToday(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{QueueSize: queueSize, ActiveChats: len(chats), MessagesToday: messagesToday}, nil
}

// Chats returns a read-only summary of every currently active Room.
func (v *View) Chats(ctx context.Context) ([]ChatSummary, error) {
	sessions, err := v.chatStore.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ChatSummary, 0, len(sessions))
	for _, cs := range sessions {
		out = append(out, ChatSummary{
			ChatID:       cs.ChatID,
			UserA:        cs.UserA,
			UserB:        cs.UserB,
			CreatedAt:    cs.CreatedAt,
			MessageCount: cs.MessageCount,
		})
	}
	return out, nil
}

// Queue returns every session currently waiting for a match, oldest first.
func (v *View) Queue(ctx context.Context) ([]QueueEntry, error) {
	sessionIDs, err := v.queue.GetAllQueued(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]QueueEntry, 0, len(sessionIDs))
	for _, sid := range sessionIDs {
		entry, err := v.queue.GetEntry(ctx, sid)
		if err != nil || entry == nil {
			continue
		}
		out = append(out, QueueEntry{
			SessionID: entry.SessionID,
			Interests: entry.Interests,
			QueuedAt:  int64(entry.JoinedAt),
		})
	}
	return out, nil
}
