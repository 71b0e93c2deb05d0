package adapter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *RealHTTPClient {
	return &RealHTTPClient{
		client:        &http.Client{Timeout: time.Second},
		maxElapsed:    time.Second,
		retryInterval: time.Millisecond,
	}
}

func TestRealHTTPClient_PostResendsBodyOnRetry(t *testing.T) {
	var mu sync.Mutex
	var bodies []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		failFirst := len(bodies) == 1
		mu.Unlock()

		if failFirst {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient()
	_, err := c.Post(context.Background(), server.URL, "application/json", strings.NewReader(`{"payload":true}`))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	// The retried attempt must carry the full payload again
	assert.Equal(t, `{"payload":true}`, bodies[0])
	assert.Equal(t, `{"payload":true}`, bodies[1])
}

func TestRealHTTPClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	}))
	defer server.Close()

	c := newTestClient()
	var result struct {
		Value string `json:"value"`
	}
	require.NoError(t, c.Get(context.Background(), server.URL, &result))
	assert.Equal(t, "ok", result.Value)
}

func TestRealHTTPClient_GetNotFound(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient()
	var result map[string]interface{}
	err := c.Get(context.Background(), server.URL, &result)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	// Not-found is definitive, not a retryable failure
	assert.Equal(t, 1, requests)
}
