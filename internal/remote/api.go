// Package remote provides a client for the remote message-store API with
// rate limiting and retry logic.
package remote

import (
	"context"
	"fmt"
)

// MailboxReader provides read access to mailbox-level data.
type MailboxReader interface {
	// GetMailboxInfo returns the approximate message total and the current
	// change-feed cursor for the mailbox.
	GetMailboxInfo(ctx context.Context) (*MailboxInfo, error)
}

// MessageReader provides read access to messages and the change feed.
type MessageReader interface {
	// ListMessageIDs returns a page of message IDs, newest first.
	// Use pageToken for pagination; max caps the page size when > 0.
	// Returns next page token if more results exist.
	ListMessageIDs(ctx context.Context, pageToken string, max int) (*ListPage, error)

	// FetchMessage fetches a single message with its full payload.
	FetchMessage(ctx context.Context, id string) (*Message, error)

	// ListChanges returns changes recorded after sinceCursor.
	// Returns a CursorExpiredError when sinceCursor is no longer retained.
	ListChanges(ctx context.Context, sinceCursor, pageToken string) (*ChangePage, error)
}

// API defines the interface for remote message-store operations.
// This interface enables mocking for tests without hitting the real service.
type API interface {
	MailboxReader
	MessageReader

	// Close releases any resources held by the client.
	Close() error
}

// MailboxInfo describes the remote mailbox.
type MailboxInfo struct {
	ApproxTotal   int64
	CurrentCursor string
}

// ListPage contains a page of message IDs.
type ListPage struct {
	IDs           []string
	NextPageToken string
}

// Header is a single message header as returned by the remote.
type Header struct {
	Name  string
	Value string
}

// BodyPart is one decoded body part of a message.
type BodyPart struct {
	MimeType string
	Content  string
}

// Message is a full message as fetched from the remote store.
type Message struct {
	ID                string
	ThreadID          string
	Headers           []Header
	Labels            []string
	Snippet           string
	Parts             []BodyPart
	InternalTimestamp int64  // server-assigned, Unix milliseconds
	Payload           []byte // original response body, preserved verbatim
}

// Header returns the value of the first header with the given name
// (case-insensitive per RFC 5322), or "" if absent.
func (m *Message) Header(name string) string {
	for _, h := range m.Headers {
		if equalFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// equalFold is an ASCII-only case-insensitive comparison.
// Header names are ASCII so this avoids the full Unicode machinery.
func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// ChangeRef references a message in a change record.
type ChangeRef struct {
	ID string
}

// ChangePage contains one page of the change feed.
type ChangePage struct {
	Added         []ChangeRef
	Deleted       []ChangeRef
	NextCursor    string
	NextPageToken string
}

// NotFoundError indicates a 404 response for a specific resource.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Path)
}

// CursorExpiredError indicates the remote no longer retains the requested
// change-feed cursor and a full resynchronization is required.
type CursorExpiredError struct {
	Cursor string
}

func (e *CursorExpiredError) Error() string {
	return fmt.Sprintf("change cursor %q expired", e.Cursor)
}
