package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	maxRetries     = 12  // Covers ~10 minutes of network outages
	maxBackoff     = 600 // Max backoff in seconds
	defaultTimeout = 30 * time.Second
)

// Client implements the remote message-store API over HTTP/JSON.
type Client struct {
	httpClient  *http.Client
	rateLimiter *RateLimiter
	logger      *slog.Logger
	baseURL     string
	pageSize    int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimiter sets a custom rate limiter.
func WithRateLimiter(rl *RateLimiter) ClientOption {
	return func(c *Client) {
		c.rateLimiter = rl
	}
}

// WithPageSize sets the maximum number of IDs requested per listing page.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		c.pageSize = n
	}
}

// NewClient creates a remote API client. The token source is supplied by the
// external OAuth collaborator; expired tokens are refreshed transparently by
// the oauth2 transport, including mid-sync.
func NewClient(baseURL string, tokenSource oauth2.TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: oauth2.NewClient(context.Background(), tokenSource),
		baseURL:    strings.TrimRight(baseURL, "/"),
		pageSize:   500,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.rateLimiter == nil {
		c.rateLimiter = NewRateLimiter(5.0)
	}

	return c
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	// HTTP client doesn't need explicit closing
	return nil
}

// request makes a GET request with rate limiting and retry logic.
func (c *Client) request(ctx context.Context, op Operation, path string) ([]byte, error) {
	// Acquire rate limit tokens
	if err := c.rateLimiter.Acquire(ctx, op); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	reqURL := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debug("retrying request", "attempt", attempt, "backoff", backoff, "path", path)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue // Retry on network errors
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return respBody, nil
		}

		switch resp.StatusCode {
		case 429: // Rate limited
			// Debug level since throttling is expected during high-volume
			// syncs and the retry logic handles it automatically
			c.logger.Debug("rate limited, backing off 30s", "path", path, "attempt", attempt)
			c.rateLimiter.Throttle(30 * time.Second)
			lastErr = fmt.Errorf("rate limited (429)")
			continue

		case 403: // Could be rate limit or permission error
			if isRateLimitError(respBody) {
				c.logger.Debug("quota exceeded, backing off 60s", "path", path, "attempt", attempt)
				c.rateLimiter.Throttle(60 * time.Second)
				lastErr = fmt.Errorf("quota exceeded (403)")
				continue
			}
			// Actual permission error - don't retry
			return nil, fmt.Errorf("forbidden (403): %s", string(respBody))

		case 500, 502, 503, 504: // Server errors
			lastErr = fmt.Errorf("server error (%d)", resp.StatusCode)
			continue

		case 401: // Unauthorized - token might be expired
			// oauth2.Client should auto-refresh, but if it fails, don't retry
			return nil, fmt.Errorf("unauthorized (401): token may be invalid")

		case 404: // Not found
			return nil, &NotFoundError{Path: path}

		case 410: // Gone - used by the change feed for expired cursors
			return nil, &NotFoundError{Path: path}

		default: // Other client errors - don't retry
			return nil, fmt.Errorf("request failed (%d): %s", resp.StatusCode, string(respBody))
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// calculateBackoff returns the backoff duration for a retry attempt.
// Uses exponential backoff with full jitter.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	// Exponential: 1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 600, 600...
	base := float64(uint(1) << uint(attempt))
	if base > maxBackoff {
		base = maxBackoff
	}

	// Full jitter: random value between 0 and base
	jittered := rand.Float64() * base
	return time.Duration(jittered * float64(time.Second))
}

// isRateLimitError checks if a 403 response is actually a rate limit error.
// Some deployments return 403 with a rate-limit reason instead of 429.
func isRateLimitError(body []byte) bool {
	return bytes.Contains(body, []byte("rateLimitExceeded")) ||
		bytes.Contains(body, []byte("RATE_LIMIT_EXCEEDED")) ||
		bytes.Contains(body, []byte("Quota exceeded")) ||
		bytes.Contains(body, []byte("userRateLimitExceeded"))
}

// Remote JSON response types (unexported, used only for JSON unmarshaling).

type mailboxInfoResponse struct {
	ApproxTotal   int64  `json:"approxTotal"`
	CurrentCursor string `json:"currentCursor"`
}

type listMessagesResponse struct {
	IDs           []string `json:"ids"`
	NextPageToken string   `json:"nextPageToken"`
}

type headerJSON struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type bodyPartJSON struct {
	MimeType string `json:"mimeType"`
	Content  string `json:"content"`
}

type messageResponse struct {
	ID                string         `json:"id"`
	ThreadID          string         `json:"threadId"`
	Headers           []headerJSON   `json:"headers"`
	Labels            []string       `json:"labels"`
	Snippet           string         `json:"snippet"`
	Parts             []bodyPartJSON `json:"bodyParts"`
	InternalTimestamp int64          `json:"internalTimestamp"`
}

type changeRefJSON struct {
	ID string `json:"id"`
}

type listChangesResponse struct {
	Added         []changeRefJSON `json:"added"`
	Deleted       []changeRefJSON `json:"deleted"`
	NextCursor    string          `json:"nextCursor"`
	NextPageToken string          `json:"nextPageToken"`
}

// GetMailboxInfo returns the mailbox total estimate and current change cursor.
func (c *Client) GetMailboxInfo(ctx context.Context) (*MailboxInfo, error) {
	data, err := c.request(ctx, OpMailboxInfo, "/mailbox")
	if err != nil {
		return nil, err
	}

	var resp mailboxInfoResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse mailbox info: %w", err)
	}

	return &MailboxInfo{
		ApproxTotal:   resp.ApproxTotal,
		CurrentCursor: resp.CurrentCursor,
	}, nil
}

// ListMessageIDs returns one page of message IDs.
func (c *Client) ListMessageIDs(ctx context.Context, pageToken string, max int) (*ListPage, error) {
	size := c.pageSize
	if max > 0 && max < size {
		size = max
	}

	params := url.Values{}
	params.Set("maxResults", fmt.Sprintf("%d", size))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	data, err := c.request(ctx, OpMessagesList, "/messages?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp listMessagesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse message list: %w", err)
	}

	return &ListPage{
		IDs:           resp.IDs,
		NextPageToken: resp.NextPageToken,
	}, nil
}

// FetchMessage fetches a single message with its full payload.
func (c *Client) FetchMessage(ctx context.Context, id string) (*Message, error) {
	path := "/messages/" + url.PathEscape(id)
	data, err := c.request(ctx, OpMessagesGet, path)
	if err != nil {
		return nil, err
	}

	var resp messageResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	headers := make([]Header, len(resp.Headers))
	for i, h := range resp.Headers {
		headers[i] = Header(h)
	}
	parts := make([]BodyPart, len(resp.Parts))
	for i, p := range resp.Parts {
		parts[i] = BodyPart(p)
	}

	return &Message{
		ID:                resp.ID,
		ThreadID:          resp.ThreadID,
		Headers:           headers,
		Labels:            resp.Labels,
		Snippet:           resp.Snippet,
		Parts:             parts,
		InternalTimestamp: resp.InternalTimestamp,
		Payload:           data,
	}, nil
}

// ListChanges returns changes recorded after sinceCursor. The cursor and page
// token are opaque values handed back from earlier responses; they are never
// constructed or inspected here.
func (c *Client) ListChanges(ctx context.Context, sinceCursor, pageToken string) (*ChangePage, error) {
	params := url.Values{}
	params.Set("cursor", sinceCursor)
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	data, err := c.request(ctx, OpChangesList, "/changes?"+params.Encode())
	if err != nil {
		// The feed signals an unretained cursor with 404/410; everything
		// else propagates as-is.
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			return nil, &CursorExpiredError{Cursor: sinceCursor}
		}
		return nil, err
	}

	var resp listChangesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse changes: %w", err)
	}

	page := &ChangePage{
		NextCursor:    resp.NextCursor,
		NextPageToken: resp.NextPageToken,
	}
	for _, r := range resp.Added {
		page.Added = append(page.Added, ChangeRef(r))
	}
	for _, r := range resp.Deleted {
		page.Deleted = append(page.Deleted, ChangeRef(r))
	}
	return page, nil
}

// Ensure Client implements API interface.
var _ API = (*Client)(nil)
