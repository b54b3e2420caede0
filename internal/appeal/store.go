// Package appeal implements the ban-appeal workflow: a banned source submits
// an appeal, an admin approves or rejects it (spec.md §6 POST /api/appeals,
// PATCH /api/admin/appeals/:id).
package appeal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Appeal is a durable ban_appeals row.
type Appeal struct {
	ID        int64
	IPAddress string
	Email     string
	Reason    string
	Status    string
	Notes     string
	CreatedAt int64
}

// Store manages ban_appeals.
type Store struct {
	db *sql.DB
}

// NewStore creates an appeal Store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new pending appeal.
func (s *Store) Create(ctx context.Context, ipAddress, email, reason string) (*Appeal, error) {
	const query = `
		INSERT INTO ban_appeals (ip_address, email, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	a := &Appeal{
		IPAddress: ipAddress,
		Email:     email,
		Reason:    reason,
		Status:    StatusPending,
		CreatedAt: time.Now().Unix(),
	}
	err := s.db.QueryRowContext(ctx, query, ipAddress, email, reason, a.Status, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		return nil, fmt.Errorf("appeal: create: %w", err)
	}
	return a, nil
}

// Get returns a single appeal by ID, or nil if absent.
func (s *Store) Get(ctx context.Context, id int64) (*Appeal, error) {
	const query = `SELECT id, ip_address, email, reason, status, notes, created_at FROM ban_appeals WHERE id = $1`
	var a Appeal
	var notes sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.IPAddress, &a.Email, &a.Reason, &a.Status, &notes, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("appeal: get: %w", err)
	}
	a.Notes = notes.String
	return &a, nil
}

// List returns appeals, optionally filtered by status ("" for all), newest first.
func (s *Store) List(ctx context.Context, status string) ([]Appeal, error) {
	query := `SELECT id, ip_address, email, reason, status, notes, created_at FROM ban_appeals`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appeal: list: %w", err)
	}
	defer rows.Close()

	var out []Appeal
	for rows.Next() {
		var a Appeal
		var notes sql.NullString
		if err := rows.Scan(&a.ID, &a.IPAddress, &a.Email, &a.Reason, &a.Status, &notes, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("appeal: scan: %w", err)
		}
		a.Notes = notes.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateStatus transitions an appeal to approved or rejected, recording an
// optional admin note. Returns false if no row matched.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status, notes string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE ban_appeals SET status = $1, notes = $2 WHERE id = $3`, status, notes, id)
	if err != nil {
		return false, fmt.Errorf("appeal: update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("appeal: rows affected: %w", err)
	}
	return n > 0, nil
}
