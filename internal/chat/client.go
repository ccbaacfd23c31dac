package chat

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

	"github.com/containerd/errdefs/pkg/errhttp"
	"github.com/curhatin/companion/internal/domain"
)

const defaultClientTimeout = 45 * time.Second

// APIError is an error response from the companion HTTP surface. It unwraps
// to the errdefs class of its status code.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Title      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Title
	}
	if e.Code != "" {
		return fmt.Sprintf("status %d (%s): %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, msg)
}

func (e *APIError) Unwrap() error {
	return errhttp.ToNative(e.StatusCode)
}

// HTTPClient is a Backend that talks to the companion HTTP surface, the same
// way the web widget does.
type HTTPClient struct {
	baseURL    string
	customerID string
	client     *http.Client
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithCustomerID sets the customer id sent on session creation.
func WithCustomerID(id string) ClientOption {
	return func(c *HTTPClient) {
		c.customerID = id
	}
}

// WithHTTPClient replaces the default HTTP client. Its timeout must exceed
// the poll wait.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = hc
	}
}

// NewHTTPClient creates a backend rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultClientTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type createSessionBody struct {
	Language       string `json:"language"`
	TurnstileToken string `json:"turnstileToken"`
	CustomerID     string `json:"customerId,omitempty"`
}

type sessionResponse struct {
	SessionID  string    `json:"sessionId"`
	AgentID    string    `json:"agentId"`
	CustomerID string    `json:"customerId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CreateSession opens a session for lang.
func (c *HTTPClient) CreateSession(ctx context.Context, lang domain.Language, token string) (*domain.Session, error) {
	var out sessionResponse
	body := createSessionBody{Language: string(lang), TurnstileToken: token, CustomerID: c.customerID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/parlant/sessions", nil, body, &out); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if out.SessionID == "" {
		return nil, fmt.Errorf("create session: response has no session id")
	}
	return &domain.Session{
		ID:         out.SessionID,
		AgentID:    out.AgentID,
		Language:   lang,
		CustomerID: out.CustomerID,
		CreatedAt:  out.CreatedAt,
	}, nil
}

// SendMessage relays one visitor message.
func (c *HTTPClient) SendMessage(ctx context.Context, sessionID, text string) error {
	body := map[string]string{"message": text}
	if err := c.do(ctx, http.MethodPost, eventsPath(sessionID), nil, body, nil); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

type eventsResponse struct {
	Events  []domain.Event `json:"events"`
	Count   int            `json:"count"`
	Timeout bool           `json:"timeout"`
}

// PollEvents fetches events at or after minOffset.
func (c *HTTPClient) PollEvents(ctx context.Context, sessionID string, minOffset int64, wait time.Duration) (Batch, error) {
	q := url.Values{}
	q.Set("minOffset", strconv.FormatInt(minOffset, 10))
	q.Set("waitForData", strconv.Itoa(int(wait/time.Second)))

	var out eventsResponse
	err := c.do(ctx, http.MethodGet, eventsPath(sessionID), q, nil, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusGatewayTimeout {
			return Batch{TimedOut: true}, nil
		}
		return Batch{}, fmt.Errorf("poll events: %w", err)
	}
	return Batch{Events: out.Events, TimedOut: out.Timeout}, nil
}

func eventsPath(sessionID string) string {
	return "/api/v1/parlant/sessions/" + url.PathEscape(sessionID) + "/events"
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
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
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
