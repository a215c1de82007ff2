package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EndpointHealth is queried by I2PFallbackChain to skip endpoints the
// Readiness Oracle currently marks failed. Implemented by
// readiness.Oracle in production and a fake in tests.
type EndpointHealth interface {
	IsFailed(endpoint string) bool
}

// Order picks the trial sequence for an I2PFallbackChain. InsertionOrder
// is the only implementation today; the interface exists so a
// least-recently-failed or weighted strategy can be added later without
// changing callers, per the resolved fallback-ordering open question.
type Order interface {
	Sequence(endpoints []string) []string
}

// InsertionOrder tries endpoints in the order they were configured.
type InsertionOrder struct{}

func (InsertionOrder) Sequence(endpoints []string) []string {
	out := make([]string, len(endpoints))
	copy(out, endpoints)
	return out
}

// ErrAllExhausted is returned when every fallback endpoint is either
// marked failed or itself failed the GET.
var ErrAllExhausted = errors.New("transport: all i2p internal proxies exhausted")

// I2PFallbackChain walks the internal-proxy fleet sequentially, skipping
// any endpoint EndpointHealth currently marks failed, and returns the
// first result that succeeds. This adapts the teacher's Dispatcher.race,
// which launches every engine concurrently and keeps the first to
// answer; spec requires a deterministic, order-preserving trial instead
// of a race, so only one endpoint is attempted at a time.
type I2PFallbackChain struct {
	endpoints    []string
	order        Order
	health       EndpointHealth
	maxRedirects int
	maxBodyBytes int64
}

// NewI2PFallbackChain builds a fallback chain over endpoints, using order
// to pick the trial sequence and health to skip endpoints currently
// marked failed.
func NewI2PFallbackChain(endpoints []string, order Order, health EndpointHealth, maxRedirects int, maxBodyBytes int64) *I2PFallbackChain {
	if order == nil {
		order = InsertionOrder{}
	}
	return &I2PFallbackChain{
		endpoints:    endpoints,
		order:        order,
		health:       health,
		maxRedirects: maxRedirects,
		maxBodyBytes: maxBodyBytes,
	}
}

// Try attempts each non-failed endpoint in sequence order and returns the
// first successful result along with the endpoint it came from. Returns
// ErrAllExhausted if every endpoint is skipped or fails.
func (c *I2PFallbackChain) Try(ctx context.Context, rawURL string, timeout time.Duration) (*FetchResult, string, error) {
	var lastErr error
	for _, endpoint := range c.order.Sequence(c.endpoints) {
		if c.health != nil && c.health.IsFailed(endpoint) {
			continue
		}
		fetcher := newI2PInternalFetcher(endpoint, c.maxRedirects, c.maxBodyBytes)
		result, err := fetcher.GET(ctx, rawURL, timeout)
		if err != nil {
			lastErr = err
			continue
		}
		return result, endpoint, nil
	}
	if lastErr != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrAllExhausted, lastErr)
	}
	return nil, "", ErrAllExhausted
}

// selectorRule is one routing rule: suffix matched against the request
// host, first match wins.
type selectorRule struct {
	suffix  string
	fetcher Fetcher
}

// Selector implements spec.md's routing rules, first-match-wins on host
// suffix, grounded on the Dispatcher's Engine-selection role but
// realized as a deterministic lookup table instead of a race. Clearnet
// hosts are never fetched directly — policy requires every non-I2P host,
// onion or otherwise, to be tunneled through the Tor SOCKS5 fetcher.
type Selector struct {
	rules    []selectorRule
	tor      Fetcher
	fallback *I2PFallbackChain
}

// NewSelector builds the standard routing table: .onion and every other
// host -> Tor SOCKS5; .i2p -> I2P HTTP proxy (with internal-proxy
// fallback on failure).
func NewSelector(tor, i2pHTTP Fetcher, fallback *I2PFallbackChain) *Selector {
	s := &Selector{tor: tor, fallback: fallback}
	s.rules = []selectorRule{
		{suffix: ".i2p", fetcher: i2pHTTP},
	}
	return s
}

// Select returns the Fetcher for rawURL's host, first routing rule whose
// suffix matches, falling back to the Tor SOCKS5 fetcher for every other
// host (including .onion and clearnet).
func (s *Selector) Select(host string) Fetcher {
	host = strings.ToLower(host)
	for _, r := range s.rules {
		if strings.HasSuffix(host, r.suffix) {
			return r.fetcher
		}
	}
	return s.tor
}

// Fallback returns the configured I2P internal-proxy fallback chain, or
// nil if none was configured.
func (s *Selector) Fallback() *I2PFallbackChain {
	return s.fallback
}
