package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// StatsStore persists durable operational counters and session-close
// records. Hot-path counters (active rooms, waiting queue) live in Redis;
// this store only receives the values that must survive past a session's
// lifetime — daily/hourly aggregates, ended chat_sessions rows, and
// chat_messages rows for both relayed and flagged messages.
type StatsStore struct {
	db *sql.DB
}

// NewStatsStore creates a StatsStore backed by the given database handle.
func NewStatsStore(db *sql.DB) *StatsStore {
	return &StatsStore{db: db}
}

// RecordMessage bumps today's and this hour's message counters.
func (s *StatsStore) RecordMessage(ctx context.Context) error {
	now := time.Now().UTC()
	date := now.Format("2006-01-02")
	hour := now.Format("2006-01-02T15")

	const dailyQuery = `
		INSERT INTO daily_stats (date, messages_today)
		VALUES ($1, 1)
		ON CONFLICT (date) DO UPDATE SET messages_today = daily_stats.messages_today + 1`
	if _, err := s.db.ExecContext(ctx, dailyQuery, date); err != nil {
		return fmt.Errorf("database: record daily message: %w", err)
	}

	const hourlyQuery = `
		INSERT INTO hourly_stats (hour, messages)
		VALUES ($1, 1)
		ON CONFLICT (hour) DO UPDATE SET messages = hourly_stats.messages + 1`
	if _, err := s.db.ExecContext(ctx, hourlyQuery, hour); err != nil {
		return fmt.Errorf("database: record hourly message: %w", err)
	}
	return nil
}

// RecordSentMessage bumps the daily/hourly counters and appends a
// non-flagged chat_messages row for a message that was actually relayed to
// its partner (spec.md §4.4 step 8). Every attempted send gets a
// chat_messages row one way or another: RecordFlaggedMessage for the
// blocked path, this for the relayed one.
func (s *StatsStore) RecordSentMessage(ctx context.Context, chatID, senderID, content string) error {
	if err := s.RecordMessage(ctx); err != nil {
		return err
	}

	const query = `
		INSERT INTO chat_messages (chat_id, sender_id, content, flagged, reason, created_at)
		VALUES ($1, $2, $3, 0, '', $4)`
	if _, err := s.db.ExecContext(ctx, query, chatID, senderID, content, time.Now().Unix()); err != nil {
		return fmt.Errorf("database: record sent message: %w", err)
	}
	return nil
}

// RecordFlaggedMessage appends a flagged chat_messages row for moderator
// review (spec.md §4.4 step 5/6: spam or profanity, no relay).
func (s *StatsStore) RecordFlaggedMessage(ctx context.Context, chatID, senderID, content, reason string) error {
	const query = `
		INSERT INTO chat_messages (chat_id, sender_id, content, flagged, reason, created_at)
		VALUES ($1, $2, $3, 1, $4, $5)`
	_, err := s.db.ExecContext(ctx, query, chatID, senderID, content, reason, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("database: record flagged message: %w", err)
	}
	return nil
}

// RecordChatEnded writes the durable chat_sessions row for a Room that just
// closed — a Room only becomes a chat_sessions record at close, per
// SPEC_FULL.md §3.1 (Redis holds the live state while the Room is open).
func (s *StatsStore) RecordChatEnded(ctx context.Context, roomID, userA, userB string, startedAt, messageCount int64) error {
	const query = `
		INSERT INTO chat_sessions (room_id, user_a, user_b, started_at, ended_at, is_active, message_count)
		VALUES ($1, $2, $3, $4, $5, 0, $6)
		ON CONFLICT (room_id) DO UPDATE SET
			ended_at      = EXCLUDED.ended_at,
			is_active     = 0,
			message_count = EXCLUDED.message_count`
	_, err := s.db.ExecContext(ctx, query, roomID, userA, userB, startedAt, time.Now().Unix(), messageCount)
	if err != nil {
		return fmt.Errorf("database: record chat ended: %w", err)
	}
	return nil
}

// RecordPeakConcurrentRooms raises today's peak-concurrent-rooms watermark
// if the given count exceeds what is already stored.
func (s *StatsStore) RecordPeakConcurrentRooms(ctx context.Context, count int) error {
	date := time.Now().UTC().Format("2006-01-02")
	const query = `
		INSERT INTO daily_stats (date, peak_concurrent_rooms)
		VALUES ($1, $2)
		ON CONFLICT (date) DO UPDATE SET
			peak_concurrent_rooms = GREATEST(daily_stats.peak_concurrent_rooms, EXCLUDED.peak_concurrent_rooms)`
	_, err := s.db.ExecContext(ctx, query, date, count)
	if err != nil {
		return fmt.Errorf("database: record peak concurrent rooms: %w", err)
	}
	return nil
}

// MessagesToday returns today's message count for AdminView.stats().
func (s *StatsStore) MessagesToday(ctx context.Context) (int, error) {
	date := time.Now().UTC().Format("2006-01-02")
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT messages_today FROM daily_stats WHERE date = $1`, date).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("database: messages today: %w", err)
	}
	return count, nil
}
