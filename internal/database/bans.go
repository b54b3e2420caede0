package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BanRecord is a durable row in banned_ips, the authoritative store behind
// admin ban CRUD (spec.md §6 Admin HTTP surface).
type BanRecord struct {
	ID        int64
	IPAddress string
	Reason    string
	BannedAt  int64
	ExpiresAt *int64
}

// BansStore manages the banned_ips table.
type BansStore struct {
	db *sql.DB
}

// NewBansStore creates a BansStore backed by the given database handle.
func NewBansStore(db *sql.DB) *BansStore {
	return &BansStore{db: db}
}

// ErrAlreadyBanned is returned by Create when ipAddress already has a row.
var ErrAlreadyBanned = fmt.Errorf("database: ip already banned")

// Create inserts a new ban record. expiresAt of nil means indefinite.
// Returns ErrAlreadyBanned (mapped by callers to HTTP 409) on a duplicate IP.
func (s *BansStore) Create(ctx context.Context, ipAddress, reason string, expiresAt *int64) (*BanRecord, error) {
	const query = `
		INSERT INTO banned_ips (ip_address, reason, banned_at, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	var id int64
	bannedAt := time.Now().Unix()
	err := s.db.QueryRowContext(ctx, query, ipAddress, reason, bannedAt, expiresAt).Scan(&id)
	if isUniqueViolation(err) {
		return nil, ErrAlreadyBanned
	}
	if err != nil {
		return nil, fmt.Errorf("database: create ban: %w", err)
	}
	return &BanRecord{ID: id, IPAddress: ipAddress, Reason: reason, BannedAt: bannedAt, ExpiresAt: expiresAt}, nil
}

// List returns all ban records, most recently banned first.
func (s *BansStore) List(ctx context.Context) ([]BanRecord, error) {
	const query = `SELECT id, ip_address, reason, banned_at, expires_at FROM banned_ips ORDER BY banned_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("database: list bans: %w", err)
	}
	defer rows.Close()

	var out []BanRecord
	for rows.Next() {
		var b BanRecord
		if err := rows.Scan(&b.ID, &b.IPAddress, &b.Reason, &b.BannedAt, &b.ExpiresAt); err != nil {
			return nil, fmt.Errorf("database: scan ban: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Get returns a single ban record by ID, or nil if absent.
func (s *BansStore) Get(ctx context.Context, id int64) (*BanRecord, error) {
	const query = `SELECT id, ip_address, reason, banned_at, expires_at FROM banned_ips WHERE id = $1`
	var b BanRecord
	err := s.db.QueryRowContext(ctx, query, id).Scan(&b.ID, &b.IPAddress, &b.Reason, &b.BannedAt, &b.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database: get ban: %w", err)
	}
	return &b, nil
}

// Delete removes a ban record by ID. Returns false if no row matched.
func (s *BansStore) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM banned_ips WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("database: delete ban: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("database: delete ban rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteByIP removes a ban record by IP address (used on appeal approval).
func (s *BansStore) DeleteByIP(ctx context.Context, ipAddress string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM banned_ips WHERE ip_address = $1`, ipAddress)
	if err != nil {
		return fmt.Errorf("database: delete ban by ip: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), matched on the lib/pq error text since we avoid an
// additional import for one error code.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return containsPQCode(err.Error(), "23505")
}

func containsPQCode(msg, code string) bool {
	for i := 0; i+len(code) <= len(msg); i++ {
		if msg[i:i+len(code)] == code {
			return true
		}
	}
	return false
}
