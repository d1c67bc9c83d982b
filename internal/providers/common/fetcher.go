package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// DefaultUserAgent is a desktop browser string; storefronts reject obvious
// bots outright.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

const maxBodyBytes = 4 * 1024 * 1024

var ErrUnexpectedStatus = errors.New("unexpected upstream status")

type FetcherConfig struct {
	Client    *http.Client
	UserAgent string
	// RequestsPerSecond limits requests per upstream host. Zero disables it.
	RequestsPerSecond float64
	Burst             int
}

// Fetcher issues browser-like GET requests for the scraping adapters.
type Fetcher struct {
	client    *http.Client
	userAgent string
	limit     rate.Limit
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPClient returns a client whose transport carries tracing and the
// Cloudflare TLS fingerprint workaround.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ForceAttemptHTTP2 = true
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(cloudflarebp.AddCloudFlareByPass(transport)),
	}
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		limit:     limit,
		burst:     burst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Get fetches rawURL and returns at most 4 MiB of body.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if err := f.limiterFor(target.Host).Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, target.Host, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

// Document fetches rawURL and parses it as HTML.
func (f *Fetcher) Document(ctx context.Context, rawURL string) (*goquery.Document, error) {
	body, err := f.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func (f *Fetcher) limiterFor(host string) *rate.Limiter {
	key := strings.ToLower(host)
	f.mu.Lock()
	defer f.mu.Unlock()
	limiter, ok := f.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(f.limit, f.burst)
		f.limiters[key] = limiter
	}
	return limiter
}
