package store

import (
	"bytes"
	"compress/zlib"
	"database/sql"
	"fmt"
	"io"
	"time"
)

// Item represents a normalized message record in the replica.
type Item struct {
	ID           string // composite: Source + ":" + SourceItemID
	Source       string
	SourceItemID string
	ThreadKey    string
	From         string
	To           string
	Cc           string
	Subject      string
	Snippet      string
	BodyText     string
	BodyHTML     string
	Date         int64 // epoch milliseconds
	MessageID    string
	InReplyTo    string
	References   string
	Labels       []string
	Raw          []byte // original remote payload, verbatim
	SyncedAt     time.Time
}

// ItemID builds the composite identity for a remote message.
func ItemID(source, sourceItemID string) string {
	return source + ":" + sourceItemID
}

// UpsertItems writes a batch of items in a single transaction. Existing rows
// with the same identity are overwritten, never duplicated, and their label
// set is replaced. Raw payloads are stored zlib-compressed.
func (s *Store) UpsertItems(items []*Item) error {
	if len(items) == 0 {
		return nil
	}

	return s.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO items (
				id, source, source_item_id, thread_key,
				from_addrs, to_addrs, cc_addrs,
				subject, snippet, body_text, body_html,
				date, message_id, in_reply_to, refs, raw, synced_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
			ON CONFLICT(id) DO UPDATE SET
				thread_key = excluded.thread_key,
				from_addrs = excluded.from_addrs,
				to_addrs = excluded.to_addrs,
				cc_addrs = excluded.cc_addrs,
				subject = excluded.subject,
				snippet = excluded.snippet,
				body_text = excluded.body_text,
				body_html = excluded.body_html,
				date = excluded.date,
				message_id = excluded.message_id,
				in_reply_to = excluded.in_reply_to,
				refs = excluded.refs,
				raw = excluded.raw,
				synced_at = excluded.synced_at
		`)
		if err != nil {
			return fmt.Errorf("prepare item upsert: %w", err)
		}
		defer stmt.Close()

		labelDel, err := tx.Prepare(`DELETE FROM item_labels WHERE item_id = ?`)
		if err != nil {
			return fmt.Errorf("prepare label delete: %w", err)
		}
		defer labelDel.Close()

		labelIns, err := tx.Prepare(`INSERT OR IGNORE INTO item_labels (item_id, label) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare label insert: %w", err)
		}
		defer labelIns.Close()

		for _, item := range items {
			if item.ID == "" {
				item.ID = ItemID(item.Source, item.SourceItemID)
			}

			raw, err := compressRaw(item.Raw)
			if err != nil {
				return fmt.Errorf("compress raw for %s: %w", item.ID, err)
			}

			if _, err := stmt.Exec(
				item.ID, item.Source, item.SourceItemID, item.ThreadKey,
				item.From, item.To, item.Cc,
				item.Subject, item.Snippet, item.BodyText, item.BodyHTML,
				item.Date, item.MessageID, item.InReplyTo, item.References, raw,
			); err != nil {
				return fmt.Errorf("upsert item %s: %w", item.ID, err)
			}

			if _, err := labelDel.Exec(item.ID); err != nil {
				return fmt.Errorf("clear labels for %s: %w", item.ID, err)
			}
			for _, label := range item.Labels {
				if _, err := labelIns.Exec(item.ID, label); err != nil {
					return fmt.Errorf("insert label %q for %s: %w", label, item.ID, err)
				}
			}
		}
		return nil
	})
}

// DeleteItems removes items for a source by their remote IDs. Missing IDs are
// ignored. Returns the number of rows actually deleted.
func (s *Store) DeleteItems(source string, sourceItemIDs []string) (int64, error) {
	if len(sourceItemIDs) == 0 {
		return 0, nil
	}

	var deleted int64
	err := s.withTx(func(tx *sql.Tx) error {
		n, err := execInChunks(tx, sourceItemIDs, []interface{}{source},
			`DELETE FROM items WHERE source = ? AND source_item_id IN (%s)`)
		deleted = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete items: %w", err)
	}
	return deleted, nil
}

// CountItems returns the number of items stored for a source.
func (s *Store) CountItems(source string) (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM items WHERE source = ?`, source).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

const itemColumns = `
	id, source, source_item_id, thread_key,
	from_addrs, to_addrs, cc_addrs,
	subject, snippet, body_text, body_html,
	date, message_id, in_reply_to, refs, raw, synced_at`

// GetItem returns a single item by its composite ID, or nil if absent.
func (s *Store) GetItem(id string) (*Item, error) {
	row := s.db.QueryRow(`SELECT`+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadLabels(item); err != nil {
		return nil, err
	}
	return item, nil
}

// ListItemsByDate returns items for a source ordered newest first.
func (s *Store) ListItemsByDate(source string, limit, offset int) ([]*Item, error) {
	rows, err := s.db.Query(`
		SELECT`+itemColumns+`
		FROM items
		WHERE source = ?
		ORDER BY date DESC, id
		LIMIT ? OFFSET ?
	`, source, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	return s.collectItems(rows)
}

// ListItemsByLabel returns items for a source carrying the given label,
// ordered newest first.
func (s *Store) ListItemsByLabel(source, label string, limit int) ([]*Item, error) {
	rows, err := s.db.Query(`
		SELECT`+itemColumns+`
		FROM items
		WHERE source = ?
		  AND id IN (SELECT item_id FROM item_labels WHERE label = ?)
		ORDER BY date DESC, id
		LIMIT ?
	`, source, label, limit)
	if err != nil {
		return nil, fmt.Errorf("list items by label: %w", err)
	}
	defer rows.Close()
	return s.collectItems(rows)
}

// ListItemIDs returns all remote IDs stored for a source, unordered.
func (s *Store) ListItemIDs(source string) ([]string, error) {
	rows, err := s.db.Query(`SELECT source_item_id FROM items WHERE source = ?`, source)
	if err != nil {
		return nil, fmt.Errorf("list item ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) collectItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, item := range items {
		if err := s.loadLabels(item); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (s *Store) loadLabels(item *Item) error {
	rows, err := s.db.Query(`SELECT label FROM item_labels WHERE item_id = ? ORDER BY label`, item.ID)
	if err != nil {
		return fmt.Errorf("load labels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return err
		}
		item.Labels = append(item.Labels, label)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	var raw []byte
	var syncedAt string

	err := row.Scan(
		&item.ID, &item.Source, &item.SourceItemID, &item.ThreadKey,
		&item.From, &item.To, &item.Cc,
		&item.Subject, &item.Snippet, &item.BodyText, &item.BodyHTML,
		&item.Date, &item.MessageID, &item.InReplyTo, &item.References,
		&raw, &syncedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(raw) > 0 {
		decompressed, err := decompressRaw(raw)
		if err != nil {
			return nil, fmt.Errorf("decompress raw for %s: %w", item.ID, err)
		}
		item.Raw = decompressed
	}
	item.SyncedAt, _ = time.Parse("2006-01-02 15:04:05", syncedAt)

	return &item, nil
}

// compressRaw zlib-compresses a raw payload. Nil input stays nil.
func compressRaw(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressRaw(compressed []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
