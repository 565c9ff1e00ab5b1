package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingToken is a test TokenSource that always returns an error.
type failingToken struct{}

func (failingToken) Token() (string, error) {
	return "", errors.New("token error")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()

	return NewClient(url, http.DefaultClient, StaticToken("test-token"), discardLogger(), "test-agent")
}

func TestDoJSON_SetsHeaders(t *testing.T) {
	var got http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(t, srv.URL).Probe(context.Background()))
	assert.Equal(t, "Bearer test-token", got.Get("Authorization"))
	assert.Equal(t, "test-agent", got.Get("User-Agent"))
	assert.Empty(t, got.Get("Content-Type"))
}

func TestDoJSON_NoTokenNoAuthorization(t *testing.T) {
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", nil, nil, nil, "")
	require.NoError(t, c.Probe(context.Background()))
	assert.Empty(t, auth)
	assert.Equal(t, srv.URL, c.BaseURL())
}

func TestDoJSON_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"bad request", http.StatusBadRequest, ErrBadRequest},
		{"unprocessable", http.StatusUnprocessableEntity, ErrBadRequest},
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrForbidden},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"conflict", http.StatusConflict, ErrConflict},
		{"throttled", http.StatusTooManyRequests, ErrThrottled},
		{"server error", http.StatusInternalServerError, ErrServerError},
		{"bad gateway", http.StatusBadGateway, ErrServerError},
		{"redirect", http.StatusNotModified, ErrUnexpectedStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("boom"))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL).GetEvent(context.Background(), "evt-1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "/events/landing/evt-1", apiErr.Path)
		})
	}
}

func TestDoJSON_NotConfigured(t *testing.T) {
	c := NewClient("  ", nil, nil, discardLogger(), "")

	assert.False(t, c.Configured())
	assert.ErrorIs(t, c.Probe(context.Background()), ErrNotConfigured)
	assert.False(t, c.Reachable(context.Background()))

	_, err := c.UploadAttendees(context.Background(), "evt", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDoJSON_TokenError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("request must not be sent without a token")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, failingToken{}, discardLogger(), "")
	err := c.Probe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "obtaining token")
}

func TestProbe_Timeout(t *testing.T) {
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL)
	c.SetTimeouts(Timeouts{Probe: 20 * time.Millisecond})

	start := time.Now()
	assert.False(t, c.Reachable(context.Background()))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSetTimeouts_KeepsUnsetFields(t *testing.T) {
	c := newTestClient(t, "http://example.invalid")
	c.SetTimeouts(Timeouts{Upload: time.Minute})

	assert.Equal(t, Timeouts{Probe: DefaultProbeTimeout, Fetch: DefaultFetchTimeout, Upload: time.Minute}, c.timeouts)
}

func TestDoJSON_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).ListAttendees(context.Background(), "evt-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestAPIError_Message(t *testing.T) {
	err := &APIError{StatusCode: 500, Method: "POST", Path: "/x", Message: "down", Err: ErrServerError}
	assert.Equal(t, "cloud: POST /x: HTTP 500: down", err.Error())

	data, jerr := json.Marshal(map[string]string{"e": err.Error()})
	require.NoError(t, jerr)
	assert.Contains(t, string(data), "HTTP 500")
}
