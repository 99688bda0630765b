// Package embed calls the embeddings service that vectorizes search text.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meridian-news/ingest/internal/ingest"
)

// Config points the client at the embeddings service.
type Config struct {
	BaseURL   string
	APIToken  string
	Dimension int
	Timeout   time.Duration
}

// Client implements ingest.Embedder over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Dimension <= 0 {
		cfg.Dimension = ingest.EmbeddingDim
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed vectorizes one text and validates the returned dimensionality.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embedRequest{Texts: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshal embeddings request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Token", c.cfg.APIToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embeddings service returned %s: %s",
			resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode embeddings response: %v", ingest.ErrValidation, err)
	}
	if len(decoded.Embeddings) != 1 {
		return nil, fmt.Errorf("%w: expected 1 embedding, got %d", ingest.ErrValidation, len(decoded.Embeddings))
	}
	vec := decoded.Embeddings[0]
	if len(vec) != c.cfg.Dimension {
		return nil, fmt.Errorf("%w: expected %d-dimensional embedding, got %d",
			ingest.ErrValidation, c.cfg.Dimension, len(vec))
	}
	return vec, nil
}
