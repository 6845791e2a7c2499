package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// registerRequest is the body of POST /sync/register-client.
type registerRequest struct {
	ClientID string `json:"client_id"`
	Platform string `json:"platform,omitempty"`
	Name     string `json:"name,omitempty"`
}

// ackRequest is the body of POST /sync/ack.
type ackRequest struct {
	ClientID string `json:"client_id"`
	Cursor   int64  `json:"cursor"`
}

// pushRequest is the body of POST /sync/push.
type pushRequest struct {
	ClientID   string          `json:"client_id"`
	Operations []PushOperation `json:"operations"`
}

// RegisterClient registers (or re-registers) this client with the server.
// Registration is idempotent; re-registering an existing client id returns
// its stored state including the server's last acknowledged cursor.
func (c *Client) RegisterClient(ctx context.Context, clientID, platform, name string) (*RegisterResponse, error) {
	var resp RegisterResponse

	body := registerRequest{ClientID: clientID, Platform: platform, Name: name}
	if err := c.postJSON(ctx, "/sync/register-client", body, &resp); err != nil {
		return nil, fmt.Errorf("registering client: %w", err)
	}

	return &resp, nil
}

// Push uploads queued local operations. The server processes them in order
// and returns one result per operation plus its current cursor.
func (c *Client) Push(ctx context.Context, clientID string, ops []PushOperation) (*PushResponse, error) {
	var resp PushResponse

	body := pushRequest{ClientID: clientID, Operations: ops}
	if err := c.postJSON(ctx, "/sync/push", body, &resp); err != nil {
		return nil, fmt.Errorf("pushing %d operations: %w", len(ops), err)
	}

	if len(resp.Results) != len(ops) {
		return nil, fmt.Errorf("api: push returned %d results for %d operations", len(resp.Results), len(ops))
	}

	return &resp, nil
}

// Pull fetches one page of server change events with cursor strictly greater
// than since. HasMore indicates another page should be fetched immediately.
func (c *Client) Pull(ctx context.Context, since int64, limit int) (*PullPage, error) {
	var resp PullPage

	q := url.Values{}
	q.Set("since", strconv.FormatInt(since, 10))

	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	if err := c.getJSON(ctx, "/sync/pull?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("pulling events since %d: %w", since, err)
	}

	return &resp, nil
}

// Ack reports the highest cursor this client has durably applied. The server
// uses it for bookkeeping only; cursor state remains client-owned.
func (c *Client) Ack(ctx context.Context, clientID string, cursor int64) error {
	body := ackRequest{ClientID: clientID, Cursor: cursor}
	if err := c.postJSON(ctx, "/sync/ack", body, nil); err != nil {
		return fmt.Errorf("acking cursor %d: %w", cursor, err)
	}

	return nil
}
