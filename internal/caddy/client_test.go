package caddy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_LoadSuccess(t *testing.T) {
	var gotPath, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.Load(context.Background(), &Config{})
	require.NoError(t, err)
	require.Equal(t, "/load", gotPath)
	require.Equal(t, "application/json", gotContentType)
}

func TestClient_LoadRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("unknown module"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.LoadRaw(context.Background(), []byte(`{}`))

	var rejection *EngineRejectionError
	require.ErrorAs(t, err, &rejection)
	require.Equal(t, http.StatusBadRequest, rejection.Status)
	require.Contains(t, rejection.Body, "unknown module")
	require.False(t, IsTransient(err))
}

func TestClient_LoadServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.LoadRaw(context.Background(), []byte(`{}`))
	require.True(t, IsTransient(err))
}

func TestClient_TransportErrorIsTransient(t *testing.T) {
	// Nothing listens here; the connection itself fails.
	client := NewClient("http://127.0.0.1:1")
	err := client.LoadRaw(context.Background(), []byte(`{}`))
	require.True(t, IsTransient(err))
}

func TestClient_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/config/", r.URL.Path)
		_, _ = w.Write([]byte(`{"apps":{}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	require.NoError(t, client.Ping(context.Background()))
}

func TestClient_GetConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"apps":{"http":{"servers":{"aegis":{"listen":[":80"],"routes":[]}}}}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	cfg, err := client.GetConfig(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cfg.Apps.HTTP)
	require.Contains(t, cfg.Apps.HTTP.Servers, "aegis")
}
