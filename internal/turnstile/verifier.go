// Package turnstile verifies bot-challenge tokens with Cloudflare Turnstile.
package turnstile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultVerifyURL is the siteverify endpoint.
	DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

	formContentType = "application/x-www-form-urlencoded"
	defaultTimeout  = 10 * time.Second
)

// ErrNotConfigured is returned when no secret key is available.
var ErrNotConfigured = errors.New("turnstile secret key not configured")

// Result is the decoded siteverify response.
type Result struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
	Hostname   string   `json:"hostname,omitempty"`
	Action     string   `json:"action,omitempty"`
}

// Verifier calls the siteverify endpoint.
type Verifier struct {
	secret    string
	verifyURL string
	client    *http.Client
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) {
		v.client = c
	}
}

// NewVerifier creates a verifier. An empty verifyURL selects DefaultVerifyURL.
func NewVerifier(secret, verifyURL string, opts ...Option) *Verifier {
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	v := &Verifier{
		secret:    strings.TrimSpace(secret),
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Configured reports whether a secret key is set.
func (v *Verifier) Configured() bool {
	return v.secret != ""
}

// Verify checks token with the verification service. It returns false with a
// nil error when the service rejects the token, and an error only when the
// outcome could not be determined.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if !v.Configured() {
		return false, ErrNotConfigured
	}

	res, err := v.siteverify(ctx, token, remoteIP)
	if err != nil {
		return false, err
	}
	return res.Success, nil
}

func (v *Verifier) siteverify(ctx context.Context, token, remoteIP string) (*Result, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" && remoteIP != "unknown" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", formContentType)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("siteverify request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read siteverify response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("siteverify status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var res Result
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("parse siteverify response: %w", err)
	}
	return &res, nil
}
