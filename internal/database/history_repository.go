package database

import (
	"context"
	"database/sql"
	"time"
)

const historyRepoTimeout = 2 * time.Second

// HistoryEntry is one finished performance: a queue item that reached a
// terminal state.
type HistoryEntry struct {
	SessionID string    `json:"sessionId"`
	SongID    string    `json:"songId"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	AddedBy   string    `json:"addedBy"`
	Status    string    `json:"status"`
	PlayedAt  time.Time `json:"playedAt"`
}

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{db: GetDB()}
}

// Record appends one entry. A nil repository or db is a no-op so the server
// keeps working when postgres is not configured.
func (r *HistoryRepository) Record(entry HistoryEntry) error {
	if r == nil || r.db == nil {
		return nil
	}
	if entry.SessionID == "" || entry.SongID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyRepoTimeout)
	defer cancel()

	const query = `
		INSERT INTO play_history (session_id, song_id, title, artist, added_by, status, played_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`

	playedAt := entry.PlayedAt
	if playedAt.IsZero() {
		playedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, query,
		entry.SessionID, entry.SongID, entry.Title, entry.Artist,
		entry.AddedBy, entry.Status, playedAt,
	)
	return err
}

func (r *HistoryRepository) Recent(limit int) ([]HistoryEntry, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	if limit < 1 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyRepoTimeout)
	defer cancel()

	const query = `
		SELECT session_id, song_id, title, artist, added_by, status, played_at
		FROM play_history
		ORDER BY played_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.SessionID, &e.SongID, &e.Title, &e.Artist, &e.AddedBy, &e.Status, &e.PlayedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
