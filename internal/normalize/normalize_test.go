package normalize

import (
	"testing"

	"mailmirror/internal/remote"
	"mailmirror/internal/store"
	"mailmirror/internal/testutil"
)

const testSource = "acct@example.com"

func testMessage() *remote.Message {
	return &remote.Message{
		ID:       "msg1",
		ThreadID: "thread1",
		Headers: []remote.Header{
			{Name: "From", Value: `"Ann Archer" <Ann@Example.com>`},
			{Name: "To", Value: "bob@example.com, carol@example.com"},
			{Name: "Cc", Value: "dave@example.com"},
			{Name: "Subject", Value: "Meeting notes"},
			{Name: "Date", Value: "Mon, 01 Jan 2024 12:00:00 +0000"},
			{Name: "Message-ID", Value: "<msg1@example.com>"},
			{Name: "In-Reply-To", Value: "<msg0@example.com>"},
			{Name: "References", Value: "<msg0@example.com>"},
		},
		Labels:  []string{"INBOX"},
		Snippet: "Meeting notes...",
		Parts: []remote.BodyPart{
			{MimeType: "text/plain; charset=utf-8", Content: "plain body"},
			{MimeType: "text/html", Content: "<p>html body</p>"},
		},
		InternalTimestamp: 1700000000000,
		Payload:           []byte(`{"id":"msg1"}`),
	}
}

func TestItem(t *testing.T) {
	item := Item(testSource, testMessage())

	if item.ID != "acct@example.com:msg1" {
		t.Errorf("unexpected id: %q", item.ID)
	}
	if item.ThreadKey != "thread1" {
		t.Errorf("unexpected thread key: %q", item.ThreadKey)
	}
	if item.Subject != "Meeting notes" {
		t.Errorf("unexpected subject: %q", item.Subject)
	}
	// Date header wins over the internal timestamp: 2024-01-01T12:00:00Z.
	if item.Date != 1704110400000 {
		t.Errorf("unexpected date: %d", item.Date)
	}
	if item.BodyText != "plain body" {
		t.Errorf("unexpected body text: %q", item.BodyText)
	}
	if item.BodyHTML != "<p>html body</p>" {
		t.Errorf("unexpected body html: %q", item.BodyHTML)
	}
	if item.MessageID != "<msg1@example.com>" || item.InReplyTo != "<msg0@example.com>" {
		t.Errorf("threading headers mismatch: %q / %q", item.MessageID, item.InReplyTo)
	}
	if string(item.Raw) != `{"id":"msg1"}` {
		t.Errorf("payload not carried through: %q", item.Raw)
	}
	testutil.AssertStrings(t, item.Labels, "INBOX")
}

func TestItemDateFallback(t *testing.T) {
	msg := testMessage()
	msg.Headers = []remote.Header{
		{Name: "From", Value: "ann@example.com"},
		{Name: "Date", Value: "not a date"},
	}
	if got := Item(testSource, msg).Date; got != msg.InternalTimestamp {
		t.Errorf("expected internal timestamp fallback, got %d", got)
	}

	msg.Headers = nil
	if got := Item(testSource, msg).Date; got != msg.InternalTimestamp {
		t.Errorf("expected internal timestamp without headers, got %d", got)
	}
}

func TestItemHeaderCaseInsensitive(t *testing.T) {
	msg := testMessage()
	msg.Headers = []remote.Header{
		{Name: "from", Value: "ann@example.com"},
		{Name: "SUBJECT", Value: "Shouting"},
	}
	item := Item(testSource, msg)
	if item.From != "ann@example.com" || item.Subject != "Shouting" {
		t.Errorf("header lookup should be case-insensitive: %+v", item)
	}
}

func TestItemFirstBodyPartWins(t *testing.T) {
	msg := testMessage()
	msg.Parts = []remote.BodyPart{
		{MimeType: "text/plain", Content: "first"},
		{MimeType: "text/plain", Content: "second"},
	}
	if got := Item(testSource, msg).BodyText; got != "first" {
		t.Errorf("expected first text part, got %q", got)
	}
}

func TestContacts(t *testing.T) {
	item := Item(testSource, testMessage())
	seen := Contacts(item)

	var emails []string
	for _, c := range seen {
		emails = append(emails, c.Email)
	}
	testutil.AssertStrings(t, emails,
		"ann@example.com", "bob@example.com", "carol@example.com", "dave@example.com")

	if seen[0].Name != "Ann Archer" {
		t.Errorf("expected display name, got %q", seen[0].Name)
	}
	if seen[1].Name != "" {
		t.Errorf("expected empty name for bare address, got %q", seen[1].Name)
	}
	for _, c := range seen {
		if c.Date != item.Date {
			t.Errorf("observation date mismatch for %s: %d", c.Email, c.Date)
		}
	}
}

func TestContactsDedupWithinItem(t *testing.T) {
	item := &store.Item{
		From: "ann@example.com",
		To:   `"Ann Archer" <ann@example.com>`,
		Date: 1000,
	}
	seen := Contacts(item)
	if len(seen) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(seen))
	}
	// The non-empty name wins regardless of field order.
	if seen[0].Name != "Ann Archer" {
		t.Errorf("expected name filled from later field, got %q", seen[0].Name)
	}
}

func TestContactsEmptyFields(t *testing.T) {
	if seen := Contacts(&store.Item{}); len(seen) != 0 {
		t.Errorf("expected no observations, got %v", seen)
	}
}

func TestParseAddressesSalvage(t *testing.T) {
	// One malformed fragment must not drop the parseable rest.
	addrs := parseAddresses("ann@example.com, <<broken, bob@example.com")
	var emails []string
	for _, a := range addrs {
		emails = append(emails, a.Email)
	}
	testutil.AssertStrings(t, emails, "ann@example.com", "bob@example.com")
}

func TestCleanAddress(t *testing.T) {
	addr, ok := cleanAddress(" Ann@Example.COM ", `"Ann"`)
	if !ok {
		t.Fatal("expected valid address")
	}
	if addr.Email != "ann@example.com" {
		t.Errorf("expected lowercased email, got %q", addr.Email)
	}
	if addr.Name != "Ann" {
		t.Errorf("expected quotes stripped, got %q", addr.Name)
	}

	if _, ok := cleanAddress("not-an-email", ""); ok {
		t.Error("expected rejection of address without @")
	}
}
