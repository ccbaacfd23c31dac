// Package parlant is a minimal REST client for the Parlant conversational-agent
// platform.
package parlant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/errdefs/pkg/errhttp"
)

const maxResponseBytes = 4 << 20

// ErrNotConfigured is returned when no server URL is set.
var ErrNotConfigured = errors.New("parlant server url not configured")

// StatusError is a non-2xx response from the platform. It unwraps to the
// errdefs class matching the status code.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("parlant status %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

func (e *StatusError) Unwrap() error {
	return errhttp.ToNative(e.StatusCode)
}

// IsTimeout reports whether err means a long-poll wait elapsed upstream
// rather than a genuine failure.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusGatewayTimeout {
		return true
	}
	if errdefs.IsDeadlineExceeded(err) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

// Client talks to one platform server.
type Client struct {
	baseURL string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.client = c
	}
}

// NewClient creates a client. timeout bounds every request and must exceed
// the longest wait passed to ListEvents.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a server URL is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// CreateSession opens a new session with the given agent.
func (c *Client) CreateSession(ctx context.Context, p CreateSessionParams) (*SessionResource, error) {
	var out SessionResource
	if err := c.do(ctx, http.MethodPost, "/sessions", nil, p, &out); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("create session: response has no session id")
	}
	return &out, nil
}

// CreateEvent appends an event to a session.
func (c *Client) CreateEvent(ctx context.Context, sessionID string, p CreateEventParams) (*EventResource, error) {
	var out EventResource
	path := "/sessions/" + url.PathEscape(sessionID) + "/events"
	if err := c.do(ctx, http.MethodPost, path, nil, p, &out); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return &out, nil
}

// ListEvents returns events at or after MinOffset, blocking up to WaitForData
// for new ones. An elapsed wait surfaces as an error satisfying IsTimeout.
func (c *Client) ListEvents(ctx context.Context, sessionID string, p ListEventsParams) ([]EventResource, error) {
	q := url.Values{}
	q.Set("min_offset", strconv.FormatInt(p.MinOffset, 10))
	q.Set("wait_for_data", strconv.Itoa(int(p.WaitForData/time.Second)))

	var out []EventResource
	path := "/sessions/" + url.PathEscape(sessionID) + "/events"
	if err := c.do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
