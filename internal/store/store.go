// Package store persists quest session snapshots as JSONB documents in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/playperu/photoquest/internal/photoquest"
	"github.com/playperu/photoquest/internal/session"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

type SessionStore struct {
	db *sql.DB
}

// New expects the quest_sessions table to exist; see package migrations.
func New(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Save(ctx context.Context, snap session.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", snap.ID, err)
	}
	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quest_sessions (id, status, updated_at, data) VALUES (?, ?, ?, jsonb(?))
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at, data = excluded.data`,
		snap.ID, string(snap.Status), updated.UTC().Format(timeLayout), string(data),
	)
	return err
}

func (s *SessionStore) Load(ctx context.Context, id string) (session.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT json(data) FROM quest_sessions WHERE id = ?`, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Snapshot{}, photoquest.ErrNotFound
	}
	if err != nil {
		return session.Snapshot{}, err
	}

	var snap session.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return session.Snapshot{}, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return snap, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM quest_sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return photoquest.ErrNotFound
	}
	return nil
}

// PurgeBefore deletes sessions not touched since cutoff and reports how
// many went away.
func (s *SessionStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM quest_sessions WHERE updated_at < ?`, cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountByStatus reports how many stored sessions are in each status.
func (s *SessionStore) CountByStatus(ctx context.Context) (map[session.Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM quest_sessions GROUP BY status`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[session.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[session.Status(status)] = n
	}
	return counts, rows.Err()
}
