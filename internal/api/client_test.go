package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient returns a client pointed at a test server with sleeps
// disabled so retry tests run instantly.
func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "test-token", srv.Client(), nil)
	c.sleepFunc = func(ctx context.Context, d time.Duration) error { return nil }

	return c, srv
}

func TestClientSendsAuthAndPrefix(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"events":[],"cursor":0,"has_more":false}`))
	}))

	_, err := c.Pull(context.Background(), 0, 100)
	require.NoError(t, err)
	assert.Equal(t, "/api/sync/pull", gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)
}

func TestClientRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.Write([]byte(`{"events":[],"cursor":7,"has_more":false}`))
	}))

	page, err := c.Pull(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), page.Cursor)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.Pull(context.Background(), 0, 0)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestClientHonorsRetryAfter(t *testing.T) {
	t.Parallel()

	var slept time.Duration
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", srv.Client(), nil)
	c.sleepFunc = func(ctx context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	err := c.Ack(context.Background(), "client-1", 5)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, slept)
}

func TestPushResultCountMismatch(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","results":[],"cursor":1}`))
	}))

	ops := []PushOperation{{OpID: "op-1", EntityType: EntityBookmark, Op: OpCreate}}
	_, err := c.Push(context.Background(), "client-1", ops)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0 results for 1 operations")
}

func TestCalcBackoffBounds(t *testing.T) {
	t.Parallel()

	c := NewClient("http://localhost", "", nil, nil)

	for attempt := 0; attempt < 8; attempt++ {
		d := c.calcBackoff(attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, maxBackoff+maxBackoff/4)
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusTooManyRequests, ErrThrottled},
		{http.StatusBadGateway, ErrServerError},
		{http.StatusOK, nil},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, classifyStatus(tc.code), "code %d", tc.code)
	}
}
