package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:   baseURL,
		APIKey:    "key",
		APISecret: "secret",
	}, NewRateLimiterWithRate(1000, 1000, zerolog.Nop()), RetryConfig{MaxAttempts: 3, Backoff: time.Millisecond}, zerolog.Nop())
}

func TestClient_RequestExport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bridge/connection/conn-1/export", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"pending","task_id":"task-42"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	task, err := client.RequestExport(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "task-42", task.TaskID)
	assert.Equal(t, "pending", task.Status)
}

func TestClient_RequestExport_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"pending","task_id":"task-42"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	task, err := client.RequestExport(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "task-42", task.TaskID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RequestExport_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.RequestExport(context.Background(), "conn-1")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RequestExport_NotConfigured(t *testing.T) {
	client := NewClient(Config{}, NewRateLimiter(zerolog.Nop()), DefaultRetryConfig(), zerolog.Nop())

	_, err := client.RequestExport(context.Background(), "conn-1")
	assert.ErrorIs(t, err, ports.ErrProviderNotConfigured)
}

func TestClient_ConnectionStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/bridge/connection/conn-1", r.URL.Path)
		w.Write([]byte(`{"status":"connected"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	status, err := client.ConnectionStatus(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "connected", status)
}

func TestClient_ConnectionStatus_SingleAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.ConnectionStatus(context.Background(), "conn-1")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Download(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{\"resourceType\":\"Patient\",\"id\":\"p1\"}\n"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	stream, err := client.Download(context.Background(), server.URL+"/download/abc")
	require.NoError(t, err)
	defer stream.Close()

	body, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Patient")
}

func TestClient_Download_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Download(context.Background(), server.URL+"/download/abc")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}
