package store

import (
	"database/sql"
	"fmt"
)

// Contact is a participant extracted from item fields. Contacts form a
// durable address book: they are never deleted, even when the items that
// produced them are.
type Contact struct {
	Email     string // case-normalized, primary key
	Name      string // best-known display name
	FirstSeen int64  // epoch milliseconds
	LastSeen  int64
}

// ContactSeen is one observation of an address on an ingested item.
type ContactSeen struct {
	Email string
	Name  string
	Date  int64
}

// UpsertContacts applies a batch of observations in one transaction.
// For a new address, first_seen = last_seen = observation date. For an
// existing one, last_seen only moves forward and the name is only filled in
// when the stored name is empty; a known name is never downgraded.
func (s *Store) UpsertContacts(seen []ContactSeen) error {
	if len(seen) == 0 {
		return nil
	}

	return s.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO contacts (email, name, first_seen, last_seen)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(email) DO UPDATE SET
				last_seen = MAX(last_seen, excluded.last_seen),
				name = CASE WHEN name = '' THEN excluded.name ELSE name END
		`)
		if err != nil {
			return fmt.Errorf("prepare contact upsert: %w", err)
		}
		defer stmt.Close()

		for _, c := range seen {
			if c.Email == "" {
				continue
			}
			if _, err := stmt.Exec(c.Email, c.Name, c.Date, c.Date); err != nil {
				return fmt.Errorf("upsert contact %s: %w", c.Email, err)
			}
		}
		return nil
	})
}

// GetContact returns a contact by email, or nil if absent.
func (s *Store) GetContact(email string) (*Contact, error) {
	row := s.db.QueryRow(`
		SELECT email, name, first_seen, last_seen
		FROM contacts WHERE email = ?
	`, email)

	var c Contact
	err := row.Scan(&c.Email, &c.Name, &c.FirstSeen, &c.LastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContacts returns contacts ordered by most recently seen.
func (s *Store) ListContacts(limit int) ([]*Contact, error) {
	rows, err := s.db.Query(`
		SELECT email, name, first_seen, last_seen
		FROM contacts
		ORDER BY last_seen DESC, email
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.Email, &c.Name, &c.FirstSeen, &c.LastSeen); err != nil {
			return nil, err
		}
		contacts = append(contacts, &c)
	}
	return contacts, rows.Err()
}
