package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planlab/evalplan-api/internal/core"
	"github.com/planlab/evalplan-api/internal/domain/model"
)

func successBody(text string) string {
	padding := strings.Repeat(" ", 600)
	return fmt.Sprintf(`{"choices":[{"message":{"content":%q}}],"padding":%q}`, text, padding)
}

func testRequest() core.CompletionRequest {
	return core.CompletionRequest{
		Model:       "plan-writer-large",
		Messages:    []model.Message{{Role: "user", Content: "hello"}},
		MaxTokens:   4096,
		Temperature: 0.4,
	}
}

func newTestClient(t *testing.T, endpoint string, opts Options) *Client {
	t.Helper()
	opts.Endpoint = endpoint
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Millisecond
	}
	client, err := NewClient(opts)
	require.NoError(t, err)
	return client
}

func TestClient_CompleteSuccess(t *testing.T) {
	var gotAuth string
	var gotPayload completionPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotPayload))
		_, _ = io.WriteString(w, successBody("the evaluation plan"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, Options{APIKey: "sk-test"})

	text, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "the evaluation plan", text)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "plan-writer-large", gotPayload.Model)
	assert.Equal(t, 4096, gotPayload.MaxTokens)
	require.NotNil(t, gotPayload.Temperature)
	assert.InDelta(t, 0.4, *gotPayload.Temperature, 0.0001)
	require.Len(t, gotPayload.Messages, 1)
	assert.Equal(t, "user", gotPayload.Messages[0].Role)
}

func TestClient_ShortBodyRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			// 200 with a 10-character body must never be accepted.
			_, _ = io.WriteString(w, `{"ok":"y"}`)
			return
		}
		_, _ = io.WriteString(w, successBody("ok"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, Options{})

	text, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ShortBodyExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"ok":"y"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, Options{})

	_, err := client.Complete(context.Background(), testRequest())
	require.Error(t, err)
	var truncated *TruncatedResponseError
	require.ErrorAs(t, err, &truncated)
	assert.Equal(t, 10, truncated.Length)
	assert.Equal(t, defaultTruncationFloor, truncated.Floor)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_MalformedBodyIsRetryable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = io.WriteString(w, strings.Repeat("not json ", 100))
			return
		}
		_, _ = io.WriteString(w, successBody("recovered"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, Options{})

	text, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_TimeoutRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			time.Sleep(200 * time.Millisecond)
			return
		}
		_, _ = io.WriteString(w, successBody("third attempt"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, Options{
		AttemptTimeout: 50 * time.Millisecond,
		BackoffBase:    10 * time.Millisecond,
	})

	start := time.Now()
	text, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "third attempt", text)
	assert.Equal(t, int32(3), calls.Load())

	// Two retries waited roughly base + 2*base between attempts.
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestClient_TimeoutExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, Options{
		AttemptTimeout: 20 * time.Millisecond,
		BackoffBase:    time.Millisecond,
	})

	_, err := client.Complete(context.Background(), testRequest())
	require.Error(t, err)
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 20*time.Millisecond, timeout.Timeout)
}

func TestClient_ServerErrorIsRetryable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, successBody("after 502"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, Options{})

	text, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "after 502", text)
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"bad key"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, Options{})

	_, err := client.Complete(context.Background(), testRequest())
	require.Error(t, err)
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusUnauthorized, upstream.StatusCode)
	assert.Contains(t, upstream.Body, "bad key")
	assert.Equal(t, int32(1), calls.Load(), "4xx responses must not be retried")
}

func TestClient_ContextCancellationStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, Options{BackoffBase: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.Complete(ctx, testRequest())
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewClient_RequiresEndpoint(t *testing.T) {
	_, err := NewClient(Options{})
	require.Error(t, err)
}
