package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meridian-news/ingest/internal/ingest"
)

// ServiceConfig points the client at a hosted browser-rendering account.
type ServiceConfig struct {
	BaseURL   string
	AccountID string
	APIToken  string
	Timeout   time.Duration
	// QPS throttles calls to the rendering service; the browser pool behind
	// it is a shared, metered resource.
	QPS float64
}

// ServiceClient implements ingest.Fetcher against a hosted headless-browser
// rendering endpoint.
type ServiceClient struct {
	cfg     ServiceConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewServiceClient creates a ServiceClient.
func NewServiceClient(cfg ServiceConfig, logger *zap.Logger) *ServiceClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	limit := rate.Inf
	if cfg.QPS > 0 {
		limit = rate.Limit(cfg.QPS)
	}
	return &ServiceClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

type scriptTag struct {
	Content string `json:"content"`
}

type renderRequest struct {
	URL             string      `json:"url"`
	UserAgent       string      `json:"userAgent"`
	AddScriptTag    []scriptTag `json:"addScriptTag"`
	WaitForSelector struct {
		Selector string `json:"selector"`
		Timeout  int    `json:"timeout"`
	} `json:"waitForSelector"`
}

type renderResponse struct {
	Status bool `json:"status"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result string `json:"result"`
}

// Fetch posts the URL to the rendering service, injecting the shared cleanup
// scripts, and returns the rendered HTML.
func (c *ServiceClient) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("render rate wait: %w", err)
	}

	reqBody := renderRequest{
		URL:       pageURL,
		UserAgent: ingest.RandomUserAgent(),
	}
	for _, script := range Scripts() {
		reqBody.AddScriptTag = append(reqBody.AddScriptTag, scriptTag{Content: script})
	}
	reqBody.WaitForSelector.Selector = WaitSelector
	reqBody.WaitForSelector.Timeout = WaitSelectorTimeoutMs

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal render request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/browser-rendering/content",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.AccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: render request: %v", ingest.ErrRender, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: render service returned %s: %s",
			ingest.ErrRender, resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode render response: %v", ingest.ErrValidation, err)
	}
	if !decoded.Status {
		msgs := make([]string, 0, len(decoded.Errors))
		for _, e := range decoded.Errors {
			msgs = append(msgs, fmt.Sprintf("%d: %s", e.Code, e.Message))
		}
		return nil, fmt.Errorf("%w: render service rejected request: %s",
			ingest.ErrRender, strings.Join(msgs, "; "))
	}
	if decoded.Result == "" {
		return nil, fmt.Errorf("%w: render response has empty result", ingest.ErrValidation)
	}

	c.logger.Debug("rendered page",
		zap.String("url", pageURL), zap.Int("bytes", len(decoded.Result)))
	return []byte(decoded.Result), nil
}
