// Package fetcher implements the plain HTTP strategy for article retrieval.
package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/meridian-news/ingest/internal/ingest"
)

// Config controls collector behavior.
type Config struct {
	Timeout time.Duration
}

// Plain implements ingest.Fetcher with a direct HTTP GET through Colly,
// presenting a randomized mobile identity. Rendering-hostile hosts go through
// the render package instead.
type Plain struct {
	cfg           Config
	baseCollector *colly.Collector
}

// NewPlain builds a Plain fetcher.
func NewPlain(cfg Config) *Plain {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &Plain{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single GET and returns the raw body. Any transport failure
// or non-2xx response is ingest.ErrFetch.
func (f *Plain) Fetch(ctx context.Context, url string) ([]byte, error) {
	collector := f.baseCollector.Clone()
	collector.UserAgent = ingest.RandomUserAgent()
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Referer", ingest.ScrapeReferer)
	})
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: fetch canceled: %v", ingest.ErrFetch, ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("%w: visit %s: %v", ingest.ErrFetch, url, err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("%w: response from %s: %v", ingest.ErrFetch, url, fetchErr)
		}
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body from %s", ingest.ErrFetch, url)
	}
	return body, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
