package monitor

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
)

// ErrNotFound is returned when the server does not know an intent id.
var ErrNotFound = errors.New("intent not found")

// Client talks to the helmd operator API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health returns the server's reported status.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/health", nil, &out, http.StatusOK); err != nil {
		return "", err
	}
	return out.Status, nil
}

// Dashboard fetches the operator dashboard.
func (c *Client) Dashboard(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	_, err := c.do(ctx, http.MethodGet, "/api/v1/dashboard", nil, &snap, http.StatusOK)
	return snap, err
}

// Decide approves or rejects the pending intent id.
func (c *Client) Decide(ctx context.Context, id, decision, actor, reason string) (DecisionOutcome, error) {
	body, err := json.Marshal(map[string]string{
		"decision": decision,
		"actor":    actor,
		"reason":   reason,
	})
	if err != nil {
		return DecisionOutcome{}, fmt.Errorf("encode decision: %w", err)
	}

	var out DecisionOutcome
	status, err := c.do(ctx, http.MethodPost, "/api/v1/intents/"+url.PathEscape(id)+"/decision", body, &out,
		http.StatusOK, http.StatusNotFound)
	if err != nil {
		return out, err
	}
	if status == http.StatusNotFound {
		return out, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return out, nil
}

// Submit posts a raw proposal document. Validation failures come back as
// an outcome with Accepted false, not as an error.
func (c *Client) Submit(ctx context.Context, proposal []byte, source string) (SubmitOutcome, error) {
	path := "/api/v1/proposals"
	if source != "" {
		path += "?source=" + url.QueryEscape(source)
	}
	var out SubmitOutcome
	_, err := c.do(ctx, http.MethodPost, path, proposal, &out, http.StatusAccepted, http.StatusUnprocessableEntity)
	return out, err
}

// do sends a request and decodes the JSON reply into out when the status is
// one of accept.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any, accept ...int) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	ok := false
	for _, code := range accept {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}
	if !ok {
		return resp.StatusCode, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, errorMessage(resp.Body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

// errorMessage pulls echo's {"message": ...} out of an error body.
func errorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &e) == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(data))
}
