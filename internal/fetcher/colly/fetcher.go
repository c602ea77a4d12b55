// Package collyfetcher implements backfill.LogoLookup using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/product-directory/internal/backfill"
	"github.com/JakeFAU/product-directory/internal/metrics"
)

// Defaults used when Config leaves a field empty.
const (
	DefaultBaseURL   = "https://logo.clearbit.com"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultTimeout = 10 * time.Second
)

// Config controls collector behavior.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Fetcher resolves a domain to its logo image through the logo lookup service.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Lookup downloads the logo for domain. Non-2xx responses surface as
// *backfill.StatusError so callers can tell a missing logo from throttling.
func (f *Fetcher) Lookup(ctx context.Context, domain string) (backfill.Image, error) {
	if domain == "" {
		return backfill.Image{}, backfill.ErrNoDomain
	}
	var (
		result   backfill.Image
		fetchErr error
	)
	collector := f.buildCollector(&result, &fetchErr)
	if err := f.runCollector(ctx, collector, f.logoURL(domain), &fetchErr); err != nil {
		return backfill.Image{}, err
	}
	return result, nil
}

func (f *Fetcher) logoURL(domain string) string {
	return f.cfg.BaseURL + "/" + domain
}

func (f *Fetcher) buildCollector(result *backfill.Image, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.SetRequestTimeout(f.cfg.Timeout)
	f.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *backfill.Image, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		metrics.ObserveExternalRequest(backfill.ServiceLookup, r.StatusCode)
		*result = backfill.Image{
			Body:        append([]byte(nil), r.Body...),
			ContentType: r.Headers.Get("Content-Type"),
			SourceURL:   r.Request.URL.String(),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			metrics.ObserveExternalRequest(backfill.ServiceLookup, r.StatusCode)
			*fetchErr = &backfill.StatusError{
				Service:    backfill.ServiceLookup,
				StatusCode: r.StatusCode,
				Body:       snippet(r.Body),
			}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("logo lookup canceled: %w", ctx.Err())
	case err := <-done:
		var statusErr *backfill.StatusError
		if errors.As(*fetchErr, &statusErr) {
			return statusErr
		}
		if *fetchErr != nil {
			return fmt.Errorf("logo lookup failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("logo visit failed: %w", err)
		}
		return nil
	}
}

func snippet(body []byte) string {
	const limit = 256
	if len(body) > limit {
		body = body[:limit]
	}
	return strings.TrimSpace(string(body))
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
