package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SyncState is the per-source synchronization bookkeeping record.
//
// ChangeCursor is the opaque change-feed position; empty means the source has
// never completed a sync pass. BackfillCursor marks the oldest listing point
// not yet fetched; empty means the historical backfill is complete.
type SyncState struct {
	Source         string
	ChangeCursor   string
	LastSyncAt     time.Time
	TotalItems     int64
	BackfillCursor string
}

// GetSyncState returns the sync state for a source, or nil if the source has
// never been synced.
func (s *Store) GetSyncState(source string) (*SyncState, error) {
	row := s.db.QueryRow(`
		SELECT source, change_cursor, last_sync_at, total_items, backfill_cursor
		FROM sync_state WHERE source = ?
	`, source)

	var st SyncState
	var lastSyncAt sql.NullString
	err := row.Scan(&st.Source, &st.ChangeCursor, &lastSyncAt, &st.TotalItems, &st.BackfillCursor)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lastSyncAt.Valid {
		st.LastSyncAt, _ = time.Parse("2006-01-02 15:04:05", lastSyncAt.String)
	}
	return &st, nil
}

// PutSyncState upserts the sync state for a source and stamps last_sync_at.
func (s *Store) PutSyncState(st *SyncState) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_state (source, change_cursor, last_sync_at, total_items, backfill_cursor)
		VALUES (?, ?, datetime('now'), ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			change_cursor = excluded.change_cursor,
			last_sync_at = excluded.last_sync_at,
			total_items = excluded.total_items,
			backfill_cursor = excluded.backfill_cursor
	`, st.Source, st.ChangeCursor, st.TotalItems, st.BackfillCursor)
	if err != nil {
		return fmt.Errorf("put sync state: %w", err)
	}
	return nil
}

// ClearSource deletes all items for a source together with its sync state in
// one transaction. Either both disappear or neither does, so a partial clear
// can never leave items without bookkeeping or vice versa. Contacts are kept:
// they are a durable address book, not derived state.
func (s *Store) ClearSource(source string) error {
	return s.withTx(func(tx *sql.Tx) error {
		// item_labels rows go with their items via ON DELETE CASCADE
		if _, err := tx.Exec(`DELETE FROM items WHERE source = ?`, source); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM sync_state WHERE source = ?`, source); err != nil {
			return fmt.Errorf("delete sync state: %w", err)
		}
		return nil
	})
}

// ListSources returns all sources known to the replica.
func (s *Store) ListSources() ([]*SyncState, error) {
	rows, err := s.db.Query(`
		SELECT source, change_cursor, last_sync_at, total_items, backfill_cursor
		FROM sync_state ORDER BY source
	`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var states []*SyncState
	for rows.Next() {
		var st SyncState
		var lastSyncAt sql.NullString
		if err := rows.Scan(&st.Source, &st.ChangeCursor, &lastSyncAt, &st.TotalItems, &st.BackfillCursor); err != nil {
			return nil, err
		}
		if lastSyncAt.Valid {
			st.LastSyncAt, _ = time.Parse("2006-01-02 15:04:05", lastSyncAt.String)
		}
		states = append(states, &st)
	}
	return states, rows.Err()
}
