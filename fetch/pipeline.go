// Package fetch executes the crawl of a single URL: transport selection,
// GET, HTML extraction, hashing, persistence, media enqueue, frontier
// offer, and politeness pacing — the eight-step sequence the crawler
// manager drives per dispatched site.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/use-agent/noctipede/models"
	"github.com/use-agent/noctipede/queue"
	"github.com/use-agent/noctipede/sinks"
	"github.com/use-agent/noctipede/transport"
)

// Per-plane timeouts, spec.md §5: "Connect ≤5s, request total ≤45s for
// clearnet/Tor, ≤90s for I2P (eepsites are slow)."
const (
	TorTimeout = 45 * time.Second
	I2PTimeout = 90 * time.Second
)

// Pipeline executes fetches and owns the per-site politeness limiters,
// the same per-identity rate.Limiter map shape as
// api/middleware/ratelimit.go's RateLimit, keyed by site instead of API
// key.
type Pipeline struct {
	selector       *transport.Selector
	pageSink       sinks.PageSink
	mediaQueue     sinks.MediaQueue
	crawlDelay     time.Duration
	useI2PFallback bool
	limitersMu     sync.Mutex
	limiters       map[string]*rate.Limiter
}

// NewPipeline builds a Pipeline over selector, pageSink, and mediaQueue.
func NewPipeline(selector *transport.Selector, pageSink sinks.PageSink, mediaQueue sinks.MediaQueue, crawlDelay time.Duration, useI2PFallback bool) *Pipeline {
	return &Pipeline{
		selector:       selector,
		pageSink:       pageSink,
		mediaQueue:     mediaQueue,
		crawlDelay:     crawlDelay,
		useI2PFallback: useI2PFallback,
		limiters:       make(map[string]*rate.Limiter),
	}
}

// Fetch executes the eight steps of the fetch pipeline for one URL
// belonging to site, offering newly discovered links into frontier under
// the depth/size caps for (depth, offsiteDepth).
func (p *Pipeline) Fetch(ctx context.Context, site *models.Site, targetURL string, frontier *queue.Frontier, depth, offsiteDepth int) (*models.Page, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return nil, models.NewCrawlError(models.ErrParseError, "invalid URL", err)
	}

	fetcher := p.selector.Select(u.Host)
	timeout := TorTimeout
	if strings.HasSuffix(strings.ToLower(u.Host), ".i2p") {
		timeout = I2PTimeout
	}

	result, transportLabel, err := p.get(ctx, fetcher, u, targetURL, timeout)
	if err != nil {
		return nil, err
	}

	page := &models.Page{
		SiteURL:    site.URL,
		URL:        targetURL,
		FetchedAt:  time.Now(),
		FinalURL:   result.FinalURL,
		StatusCode: result.StatusCode,
		Transport:  transportLabel,
		ElapsedMs:  result.Elapsed.Milliseconds(),
		Truncated:  result.Truncated,
	}

	isDuplicate := false
	if isHTML(result.Headers.Get("Content-Type")) {
		body := string(result.Body)
		page.Title = extractTitle(body, result.FinalURL)
		links, media := extractLinksAndMedia(body, result.FinalURL)
		page.Links = links
		page.Media = media

		if frontier != nil {
			plainText := extractPlainText(body, result.FinalURL)
			isDuplicate = frontier.IsNearDuplicate(plainText, body)
		}
	}

	page.ContentHash = hashBody(result.Body)

	if err := p.pageSink.Store(ctx, page); err != nil {
		return nil, models.NewCrawlError(models.ErrSinkUnavailable, "page sink store failed", err)
	}
	for _, m := range page.Media {
		m.DiscoveredAt = page.FetchedAt
		if err := p.mediaQueue.Enqueue(ctx, m); err != nil {
			// Dropped on overflow is expected behavior, not fatal per spec.md §4.H.
			continue
		}
	}
	// A near-duplicate page's links are not offered into the frontier:
	// expanding them would chase the same crawl trap's template pages
	// indefinitely instead of terminating once the pattern repeats.
	if frontier != nil && !isDuplicate {
		frontier.OfferPage(page.Links, depth, offsiteDepth)
	}

	p.limiterFor(site.URL).Wait(ctx)
	return page, nil
}

// get issues the primary GET, retrying exactly once through the I2P
// internal-proxy fallback chain on a primary-proxy failure for .i2p
// hosts, per spec.md §4.E's "single retry... no further retries".
func (p *Pipeline) get(ctx context.Context, fetcher transport.Fetcher, u *url.URL, targetURL string, timeout time.Duration) (*transport.FetchResult, string, error) {
	result, err := fetcher.GET(ctx, targetURL, timeout)
	if err == nil {
		label := "tor_socks"
		if strings.HasSuffix(strings.ToLower(u.Host), ".i2p") {
			label = "i2p_http"
		}
		return result, label, nil
	}

	if errors.Is(err, transport.ErrTooManyRedirects) {
		return nil, "", models.NewCrawlError(models.ErrHTTPError, "redirect chain exceeded cap or crossed network planes", err)
	}

	if !strings.HasSuffix(strings.ToLower(u.Host), ".i2p") || !p.useI2PFallback {
		return nil, "", models.NewCrawlError(models.ErrTransportUnavailable, "primary fetch failed", err)
	}

	fallback := p.selector.Fallback()
	if fallback == nil {
		return nil, "", models.NewCrawlError(models.ErrTransportUnavailable, "primary I2P fetch failed, no fallback configured", err)
	}

	fallbackResult, endpoint, fbErr := fallback.Try(ctx, targetURL, timeout)
	if fbErr != nil {
		return nil, "", models.NewCrawlError(models.ErrAllI2PProxiesExhausted, "all i2p internal proxies exhausted", fbErr)
	}
	return fallbackResult, fmt.Sprintf("i2p_internal:%s", endpoint), nil
}

func (p *Pipeline) limiterFor(siteURL string) *rate.Limiter {
	p.limitersMu.Lock()
	defer p.limitersMu.Unlock()
	l, ok := p.limiters[siteURL]
	if !ok {
		// One token per CrawlDelay interval, burst 1: each Wait blocks
		// roughly CrawlDelay since the previous fetch for this site.
		interval := p.crawlDelay
		if interval <= 0 {
			interval = time.Millisecond
		}
		l = rate.NewLimiter(rate.Every(interval), 1)
		p.limiters[siteURL] = l
	}
	return l
}

func isHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
