package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

type searchResponse struct {
	Query   string       `json:"query"`
	Results []SearchItem `json:"results"`
}

// Search runs a ranked server-side bookmark search. limit <= 0 uses the
// server default.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchItem, error) {
	var resp searchResponse

	q := url.Values{}
	q.Set("q", query)

	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	if err := c.getJSON(ctx, "/search?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}

	return resp.Results, nil
}
