package database

import (
	"context"
	"testing"
)

func TestStatsStore_RecordMessageIncrementsToday(t *testing.T) {
	db := newTestDB(t)
	store := NewStatsStore(db)
	ctx := context.Background()

	before, err := store.MessagesToday(ctx)
	if err != nil {
		t.Fatalf("messages today before: %v", err)
	}

	if err := store.RecordMessage(ctx); err != nil {
		t.Fatalf("record message: %v", err)
	}
	if err := store.RecordMessage(ctx); err != nil {
		t.Fatalf("record message: %v", err)
	}

	after, err := store.MessagesToday(ctx)
	if err != nil {
		t.Fatalf("messages today after: %v", err)
	}
	if after != before+2 {
		t.Fatalf("expected messages today to increase by 2, got before=%d after=%d", before, after)
	}
}

func TestStatsStore_RecordSentMessageLogsAndCounts(t *testing.T) {
	db := newTestDB(t)
	store := NewStatsStore(db)
	ctx := context.Background()

	before, err := store.MessagesToday(ctx)
	if err != nil {
		t.Fatalf("messages today before: %v", err)
	}

	if err := store.RecordSentMessage(ctx, "chat-2", "session-a", "hello there"); err != nil {
		t.Fatalf("record sent message: %v", err)
	}

	after, err := store.MessagesToday(ctx)
	if err != nil {
		t.Fatalf("messages today after: %v", err)
	}
	if after != before+1 {
		t.Fatalf("expected messages today to increase by 1, got before=%d after=%d", before, after)
	}

	var count int
	var content string
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages WHERE chat_id = $1 AND flagged = 0`, "chat-2").Scan(&count)
	if err != nil {
		t.Fatalf("query count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 non-flagged chat_messages row, got %d", count)
	}
	err = db.QueryRowContext(ctx, `SELECT content FROM chat_messages WHERE chat_id = $1 AND flagged = 0`, "chat-2").Scan(&content)
	if err != nil {
		t.Fatalf("query content: %v", err)
	}
	if content != "hello there" {
		t.Fatalf("expected content to be stored verbatim, got %q", content)
	}
}

func TestStatsStore_RecordFlaggedMessage(t *testing.T) {
	db := newTestDB(t)
	store := NewStatsStore(db)
	ctx := context.Background()

	if err := store.RecordFlaggedMessage(ctx, "chat-1", "session-a", "bad text", "profanity"); err != nil {
		t.Fatalf("record flagged message: %v", err)
	}

	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages WHERE chat_id = $1 AND flagged = 1`, "chat-1").Scan(&count)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 flagged message, got %d", count)
	}
}

func TestStatsStore_RecordChatEndedUpserts(t *testing.T) {
	db := newTestDB(t)
	store := NewStatsStore(db)
	ctx := context.Background()

	if err := store.RecordChatEnded(ctx, "room-1", "session-a", "session-b", 1000, 5); err != nil {
		t.Fatalf("record chat ended: %v", err)
	}
	// Re-recording the same room_id should update, not duplicate.
	if err := store.RecordChatEnded(ctx, "room-1", "session-a", "session-b", 1000, 8); err != nil {
		t.Fatalf("record chat ended again: %v", err)
	}

	var count, messageCount int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(message_count) FROM chat_sessions WHERE room_id = $1`, "room-1").Scan(&count, &messageCount)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one row for room-1, got %d", count)
	}
	if messageCount != 8 {
		t.Fatalf("expected message_count to update to 8, got %d", messageCount)
	}
}

func TestStatsStore_RecordPeakConcurrentRoomsKeepsMax(t *testing.T) {
	db := newTestDB(t)
	store := NewStatsStore(db)
	ctx := context.Background()

	if err := store.RecordPeakConcurrentRooms(ctx, 3); err != nil {
		t.Fatalf("record peak: %v", err)
	}
	if err := store.RecordPeakConcurrentRooms(ctx, 1); err != nil {
		t.Fatalf("record lower peak: %v", err)
	}

	var peak int
	err := db.QueryRowContext(ctx, `SELECT peak_concurrent_rooms FROM daily_stats WHERE date = to_char(now(), 'YYYY-MM-DD')`).Scan(&peak)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if peak != 3 {
		t.Fatalf("expected peak to stay at 3 after a lower sample, got %d", peak)
	}
}
