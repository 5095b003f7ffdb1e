package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// changeEntry is one recorded mailbox change in the mock's change log.
type changeEntry struct {
	added   []string
	deleted []string
}

// Mock is an in-memory implementation of the remote API for testing.
//
// The change feed is modeled as an append-only log. Cursors are "cursor_N"
// where N is a log position; GetMailboxInfo returns the cursor at the current
// tail, and ListChanges replays entries recorded after the given position.
// Positions older than TruncateBefore return CursorExpiredError, simulating
// the remote discarding old history.
type Mock struct {
	mu sync.Mutex

	// Messages indexed by ID
	Messages map[string]*Message

	// ListOrder fixes the listing order (newest first). When nil, message IDs
	// are listed in sorted order.
	ListOrder []string

	// ListPageSize caps IDs per listing page before the caller's max applies
	// (default: 100).
	ListPageSize int

	// ChangePageSize is the max change entries per feed page (default: all).
	ChangePageSize int

	// TruncateBefore marks log positions before it as expired.
	TruncateBefore int

	changeLog []changeEntry

	// Error injection
	MailboxInfoError error
	ListError        error
	FetchError       map[string]error // per-message errors
	ChangesError     error

	// Call tracking for assertions
	MailboxInfoCalls int
	ListCalls        int
	FetchCalls       []string
	ChangesCalls     []string // sinceCursor values
}

// NewMock creates a mock remote with empty state.
func NewMock() *Mock {
	return &Mock{
		Messages:   make(map[string]*Message),
		FetchError: make(map[string]error),
	}
}

// AddMessage adds a message to the mock mailbox without recording a change.
// Use this to seed the initial mailbox state before a full sync.
func (m *Mock) AddMessage(msg *Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages[msg.ID] = msg
}

// RecordAdd adds a message and appends an "added" entry to the change log.
func (m *Mock) RecordAdd(msg *Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages[msg.ID] = msg
	m.changeLog = append(m.changeLog, changeEntry{added: []string{msg.ID}})
}

// RecordDelete removes a message and appends a "deleted" entry to the change log.
func (m *Mock) RecordDelete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Messages, id)
	m.changeLog = append(m.changeLog, changeEntry{deleted: []string{id}})
}

// RecordChange appends an arbitrary change entry without touching Messages.
// Useful for feeds that report the same ID added more than once.
func (m *Mock) RecordChange(added, deleted []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeLog = append(m.changeLog, changeEntry{added: added, deleted: deleted})
}

// CurrentCursor returns the cursor at the tail of the change log.
func (m *Mock) CurrentCursor() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cursorAt(len(m.changeLog))
}

func cursorAt(pos int) string {
	return fmt.Sprintf("cursor_%d", pos)
}

func parseCursor(cursor string) (int, error) {
	var pos int
	if _, err := fmt.Sscanf(cursor, "cursor_%d", &pos); err != nil {
		return 0, fmt.Errorf("invalid cursor: %s", cursor)
	}
	return pos, nil
}

// GetMailboxInfo returns the message count and current change cursor.
func (m *Mock) GetMailboxInfo(ctx context.Context) (*MailboxInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MailboxInfoCalls++

	if m.MailboxInfoError != nil {
		return nil, m.MailboxInfoError
	}

	return &MailboxInfo{
		ApproxTotal:   int64(len(m.Messages)),
		CurrentCursor: cursorAt(len(m.changeLog)),
	}, nil
}

// ListMessageIDs returns mock message IDs with pagination. Page tokens encode
// an offset into the listing order, so callers can stop and resume at any
// point, as the backfill cursor does.
func (m *Mock) ListMessageIDs(ctx context.Context, pageToken string, max int) (*ListPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++

	if m.ListError != nil {
		return nil, m.ListError
	}

	order := m.ListOrder
	if order == nil {
		order = make([]string, 0, len(m.Messages))
		for id := range m.Messages {
			order = append(order, id)
		}
		sort.Strings(order)
	}

	offset := 0
	if pageToken != "" {
		if _, err := fmt.Sscanf(pageToken, "off_%d", &offset); err != nil {
			return nil, fmt.Errorf("invalid page token: %s", pageToken)
		}
	}
	if offset > len(order) {
		offset = len(order)
	}

	size := m.ListPageSize
	if size <= 0 {
		size = 100
	}
	if max > 0 && max < size {
		size = max
	}

	end := offset + size
	if end > len(order) {
		end = len(order)
	}

	page := &ListPage{IDs: append([]string(nil), order[offset:end]...)}
	if end < len(order) {
		page.NextPageToken = fmt.Sprintf("off_%d", end)
	}
	return page, nil
}

// FetchMessage returns a mock message.
func (m *Mock) FetchMessage(ctx context.Context, id string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCalls = append(m.FetchCalls, id)

	if err, ok := m.FetchError[id]; ok && err != nil {
		return nil, err
	}

	msg, ok := m.Messages[id]
	if !ok {
		return nil, &NotFoundError{Path: "/messages/" + id}
	}
	return msg, nil
}

// ListChanges replays change-log entries recorded after sinceCursor.
func (m *Mock) ListChanges(ctx context.Context, sinceCursor, pageToken string) (*ChangePage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChangesCalls = append(m.ChangesCalls, sinceCursor)

	if m.ChangesError != nil {
		return nil, m.ChangesError
	}

	start, err := parseCursor(sinceCursor)
	if err != nil {
		return nil, &CursorExpiredError{Cursor: sinceCursor}
	}
	if start < m.TruncateBefore {
		return nil, &CursorExpiredError{Cursor: sinceCursor}
	}

	// Page tokens continue from an absolute log position.
	if pageToken != "" {
		if _, err := fmt.Sscanf(pageToken, "chpage_%d", &start); err != nil {
			return nil, fmt.Errorf("invalid change page token: %s", pageToken)
		}
	}
	if start > len(m.changeLog) {
		start = len(m.changeLog)
	}

	end := len(m.changeLog)
	if m.ChangePageSize > 0 && start+m.ChangePageSize < end {
		end = start + m.ChangePageSize
	}

	page := &ChangePage{NextCursor: cursorAt(end)}
	for _, entry := range m.changeLog[start:end] {
		for _, id := range entry.added {
			page.Added = append(page.Added, ChangeRef{ID: id})
		}
		for _, id := range entry.deleted {
			page.Deleted = append(page.Deleted, ChangeRef{ID: id})
		}
	}
	if end < len(m.changeLog) {
		page.NextPageToken = fmt.Sprintf("chpage_%d", end)
	}

	return page, nil
}

// Close is a no-op for the mock.
func (m *Mock) Close() error {
	return nil
}

// Reset clears all state and call tracking.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Messages = make(map[string]*Message)
	m.ListOrder = nil
	m.ListPageSize = 0
	m.changeLog = nil
	m.ChangePageSize = 0
	m.TruncateBefore = 0
	m.FetchError = make(map[string]error)

	m.MailboxInfoCalls = 0
	m.ListCalls = 0
	m.FetchCalls = nil
	m.ChangesCalls = nil
}

// TestMessage builds a minimal Message for tests.
func TestMessage(id, from, to, subject string, dateMillis int64) *Message {
	return &Message{
		ID:       id,
		ThreadID: "thread_" + id,
		Headers: []Header{
			{Name: "From", Value: from},
			{Name: "To", Value: to},
			{Name: "Subject", Value: subject},
			{Name: "Message-ID", Value: "<" + id + "@example.com>"},
		},
		Labels:            []string{"INBOX"},
		Snippet:           strings.TrimSpace("snippet for " + subject),
		Parts:             []BodyPart{{MimeType: "text/plain", Content: "body of " + id}},
		InternalTimestamp: dateMillis,
		Payload:           []byte(`{"id":"` + id + `"}`),
	}
}

// Ensure Mock implements API interface.
var _ API = (*Mock)(nil)
