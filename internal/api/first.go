package api

import (
	"context"
	"fmt"
)

// FirstPreflight asks the server to evaluate a first-sync mode against the
// supplied local snapshot. It mutates nothing server-side and returns the
// warning text, impact estimate, and a single-use confirmation token.
func (c *Client) FirstPreflight(ctx context.Context, req *FirstSyncRequest) (*PreflightResponse, error) {
	var resp PreflightResponse

	if err := c.postJSON(ctx, "/sync/first/preflight", req, &resp); err != nil {
		return nil, fmt.Errorf("first-sync preflight (%s): %w", req.Mode, err)
	}

	return &resp, nil
}

// FirstApply executes a confirmed first-sync. The request must carry the
// preflight's confirmation token plus the typed phrase and checkbox
// confirmation; the server rejects stale or mismatched confirmations.
func (c *Client) FirstApply(ctx context.Context, req *FirstSyncRequest) (*ApplyResponse, error) {
	var resp ApplyResponse

	if err := c.postJSON(ctx, "/sync/first/apply", req, &resp); err != nil {
		return nil, fmt.Errorf("first-sync apply (%s): %w", req.Mode, err)
	}

	return &resp, nil
}
