package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-news/ingest/internal/ingest"
)

func newTestClient(t *testing.T, dim int, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIToken: "tok", Dimension: dim})
}

func TestEmbedSuccess(t *testing.T) {
	t.Parallel()
	var captured embedRequest
	client := newTestClient(t, 3, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "tok", r.Header.Get("X-API-Token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.1, 0.2, 0.3}}})
	})

	vec, err := client.Embed(context.Background(), "Port strike ends.")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	require.Equal(t, []string{"Port strike ends."}, captured.Texts)
}

func TestEmbedWrongDimension(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, 4, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.1, 0.2}}})
	})

	_, err := client.Embed(context.Background(), "text")
	require.ErrorIs(t, err, ingest.ErrValidation)
}

func TestEmbedHTTPError(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, 3, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	})

	_, err := client.Embed(context.Background(), "text")
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
}

func TestEmbedDefaultDimension(t *testing.T) {
	t.Parallel()
	c := New(Config{BaseURL: "http://localhost"})
	require.Equal(t, ingest.EmbeddingDim, c.cfg.Dimension)
}
