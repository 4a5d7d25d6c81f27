// Package client calls the advisor HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
)

// ErrStreamInterrupted means a chat reply ended without a clean close.
var ErrStreamInterrupted = errors.New("chat stream interrupted")

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// Client calls the advisor API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends a bearer token with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a client for the API at baseURL. get-response may wait for the
// whole poll budget, so the default client sets no overall timeout.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateThread calls POST /api/create-thread.
func (c *Client) CreateThread(ctx context.Context, prefs model.Preferences) (*model.CreateThreadResponse, error) {
	req := model.CreateThreadRequest{
		City:        prefs.City,
		Expertise:   prefs.Expertise,
		Preferences: prefs.Preferences,
	}
	var resp model.CreateThreadResponse
	if err := c.do(ctx, http.MethodPost, "/api/create-thread", nil, &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitPreferences calls POST /api/submit-preferences.
func (c *Client) SubmitPreferences(ctx context.Context, threadID string, prefs model.Preferences) (*model.CreateThreadResponse, error) {
	req := model.SubmitPreferencesRequest{
		ThreadID: threadID,
		CreateThreadRequest: model.CreateThreadRequest{
			City:        prefs.City,
			Expertise:   prefs.Expertise,
			Preferences: prefs.Preferences,
		},
	}
	var resp model.CreateThreadResponse
	if err := c.do(ctx, http.MethodPost, "/api/submit-preferences", nil, &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetResponse calls GET /api/get-response.
func (c *Client) GetResponse(ctx context.Context, threadID string) (*model.GetResponseResponse, error) {
	var resp model.GetResponseResponse
	q := url.Values{"threadId": {threadID}}
	if err := c.do(ctx, http.MethodGet, "/api/get-response", q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckStatus calls GET /api/check-status.
func (c *Client) CheckStatus(ctx context.Context, threadID, runID string) (*model.CheckStatusResponse, error) {
	var resp model.CheckStatusResponse
	q := url.Values{"threadId": {threadID}, "runId": {runID}}
	if err := c.do(ctx, http.MethodGet, "/api/check-status", q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Chat calls POST /api/chat and hands each received chunk of the reply to
// onToken as it arrives. A reply cut off by the server yields
// ErrStreamInterrupted.
func (c *Client) Chat(ctx context.Context, threadID, message string, onToken func(string)) error {
	body, err := json.Marshal(&model.ChatRequest{ThreadID: threadID, Message: message})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat", nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	buf := make([]byte, 4096)
	var pending []byte
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			// Hold back a trailing partial rune until the next read.
			cut := completeRunes(pending)
			if cut > 0 && onToken != nil {
				onToken(string(pending[:cut]))
			}
			pending = pending[cut:]
		}
		if readErr == io.EOF {
			if len(pending) > 0 && onToken != nil {
				onToken(string(pending))
			}
			return nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", ErrStreamInterrupted, readErr)
		}
	}
}

// completeRunes returns the length of the longest prefix of p that does not
// end inside a multi-byte character.
func completeRunes(p []byte) int {
	for i := len(p); i > 0 && i > len(p)-utf8.UTFMax; i-- {
		if utf8.RuneStart(p[i-1]) {
			if utf8.FullRune(p[i-1:]) {
				return len(p)
			}
			return i - 1
		}
	}
	return len(p)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body model.ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Details = body.Details
	} else if msg := strings.TrimSpace(string(data)); msg != "" {
		apiErr.Message = msg
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
