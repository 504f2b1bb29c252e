package inference

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oerrors "github.com/p-blackswan/opsengine/internal/errors"
	"github.com/p-blackswan/opsengine/internal/prompt"
	"github.com/p-blackswan/opsengine/internal/retry"
)

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func testPrompt() prompt.Prompt {
	return prompt.Prompt{System: "system text", User: "user text"}
}

func TestAnalyze_Success(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq analyzeRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(RawResult{
			Suggestions: []RawSuggestion{{Title: "Expedite welding", Confidence: 0.8}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", zerolog.Nop(),
		WithModel("test-model"), WithRetryConfig(fastRetry()))

	result, err := c.Analyze(context.Background(), testPrompt())
	require.NoError(t, err)
	require.Len(t, result.Suggestions, 1)
	assert.Equal(t, "Expedite welding", result.Suggestions[0].Title)

	assert.Equal(t, "/v1/analyze", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "system text", gotReq.SystemPrompt)
	assert.Equal(t, "user text", gotReq.UserMessage)
	assert.Equal(t, "test-model", gotReq.Model)
}

func TestAnalyze_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(RawResult{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", zerolog.Nop(), WithRetryConfig(fastRetry()))

	_, err := c.Analyze(context.Background(), testPrompt())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAnalyze_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad schema"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", zerolog.Nop(), WithRetryConfig(fastRetry()))

	_, err := c.Analyze(context.Background(), testPrompt())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")

	var apiErr *oerrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "inference", apiErr.Service)
}

func TestAnalyze_NetworkFailureMapsToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(srv.URL, "", zerolog.Nop(), WithRetryConfig(retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}))

	_, err := c.Analyze(context.Background(), testPrompt())
	assert.ErrorIs(t, err, oerrors.ErrUnavailable)
}

func TestAnalyze_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server only watches for client disconnect once the request
		// body is consumed; without this drain the handler never observes
		// cancellation and srv.Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", zerolog.Nop(), WithRetryConfig(fastRetry()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Analyze(ctx, testPrompt())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnconfigured(t *testing.T) {
	_, err := Unconfigured{}.Analyze(context.Background(), testPrompt())
	assert.ErrorIs(t, err, oerrors.ErrUnavailable)
}
