// Package normalize maps remote messages into the replica's canonical item
// shape. Everything here is pure: no I/O, no clocks, no store access.
package normalize

import (
	"net/mail"
	"strings"

	"mailmirror/internal/remote"
	"mailmirror/internal/store"
)

// Item converts a fetched remote message into a store.Item for the given
// source. The message date comes from the Date header, falling back to the
// server-assigned internal timestamp when the header is missing or malformed.
// The original payload is carried through verbatim.
func Item(source string, msg *remote.Message) *store.Item {
	item := &store.Item{
		ID:           store.ItemID(source, msg.ID),
		Source:       source,
		SourceItemID: msg.ID,
		ThreadKey:    msg.ThreadID,
		From:         msg.Header("From"),
		To:           msg.Header("To"),
		Cc:           msg.Header("Cc"),
		Subject:      msg.Header("Subject"),
		Snippet:      msg.Snippet,
		Date:         messageDate(msg),
		MessageID:    msg.Header("Message-ID"),
		InReplyTo:    msg.Header("In-Reply-To"),
		References:   msg.Header("References"),
		Labels:       append([]string(nil), msg.Labels...),
		Raw:          msg.Payload,
	}

	for _, part := range msg.Parts {
		mimeType := strings.ToLower(part.MimeType)
		switch {
		case strings.HasPrefix(mimeType, "text/plain") && item.BodyText == "":
			item.BodyText = part.Content
		case strings.HasPrefix(mimeType, "text/html") && item.BodyHTML == "":
			item.BodyHTML = part.Content
		}
	}

	return item
}

// messageDate resolves the item date in epoch milliseconds.
func messageDate(msg *remote.Message) int64 {
	if raw := msg.Header("Date"); raw != "" {
		if t, err := mail.ParseDate(raw); err == nil {
			return t.UnixMilli()
		}
	}
	return msg.InternalTimestamp
}

// Contacts extracts participant observations from an item's address fields.
// Each field may hold multiple comma-separated addresses. Emails are
// lowercased; display names have surrounding quotes stripped. Duplicate
// addresses within one item collapse to a single observation, preferring a
// non-empty name.
func Contacts(item *store.Item) []store.ContactSeen {
	byEmail := make(map[string]int)
	var seen []store.ContactSeen

	for _, field := range []string{item.From, item.To, item.Cc} {
		for _, addr := range parseAddresses(field) {
			if idx, ok := byEmail[addr.Email]; ok {
				if seen[idx].Name == "" && addr.Name != "" {
					seen[idx].Name = addr.Name
				}
				continue
			}
			byEmail[addr.Email] = len(seen)
			seen = append(seen, store.ContactSeen{
				Email: addr.Email,
				Name:  addr.Name,
				Date:  item.Date,
			})
		}
	}

	return seen
}

// Address is one parsed (email, display name) pair.
type Address struct {
	Email string
	Name  string
}

// parseAddresses parses an address-list header value. RFC 5322 parsing is
// tried first; on failure each comma-separated fragment is salvaged
// individually so one malformed entry doesn't drop the rest.
func parseAddresses(field string) []Address {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil
	}

	if list, err := mail.ParseAddressList(field); err == nil {
		out := make([]Address, 0, len(list))
		for _, a := range list {
			if addr, ok := cleanAddress(a.Address, a.Name); ok {
				out = append(out, addr)
			}
		}
		return out
	}

	var out []Address
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if a, err := mail.ParseAddress(part); err == nil {
			if addr, ok := cleanAddress(a.Address, a.Name); ok {
				out = append(out, addr)
			}
			continue
		}
		// Bare address without angle brackets or display name
		if strings.Contains(part, "@") {
			if addr, ok := cleanAddress(part, ""); ok {
				out = append(out, addr)
			}
		}
	}
	return out
}

func cleanAddress(email, name string) (Address, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return Address{}, false
	}
	name = strings.Trim(strings.TrimSpace(name), `"'`)
	return Address{Email: email, Name: name}, true
}
