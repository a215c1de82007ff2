package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// i2pHTTPFetcher routes GETs through a configured I2P HTTP proxy, the
// same http.Transport.Proxy wiring the teacher uses for its optional
// default proxy, but mandatory here rather than an override.
type i2pHTTPFetcher struct {
	proxyHostPort string
	maxRedirects  int
	maxBodyBytes  int64
}

func newI2PHTTPFetcher(proxyHostPort string, maxRedirects int, maxBodyBytes int64) *i2pHTTPFetcher {
	return &i2pHTTPFetcher{proxyHostPort: proxyHostPort, maxRedirects: maxRedirects, maxBodyBytes: maxBodyBytes}
}

// NewI2PHTTPFetcher builds the Fetcher that routes GETs through the
// primary I2P HTTP proxy, for composition roots wiring a Selector.
func NewI2PHTTPFetcher(proxyHostPort string, maxRedirects int, maxBodyBytes int64) Fetcher {
	return newI2PHTTPFetcher(proxyHostPort, maxRedirects, maxBodyBytes)
}

func (f *i2pHTTPFetcher) GET(ctx context.Context, rawURL string, timeout time.Duration) (*FetchResult, error) {
	proxyURL, err := url.Parse("http://" + f.proxyHostPort)
	if err != nil {
		return nil, fmt.Errorf("i2p: parse proxy address: %w", err)
	}
	tr := &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	return doGET(ctx, tr, rawURL, timeout, f.maxRedirects, f.maxBodyBytes)
}

// i2pInternalFetcher routes GETs through one eepsite-hosted fallback
// proxy from the internal-proxy fleet. Identical wiring to
// i2pHTTPFetcher; kept as a distinct type so callers and logs can tell
// the primary I2P proxy apart from a fallback endpoint.
type i2pInternalFetcher struct {
	endpoint     string
	maxRedirects int
	maxBodyBytes int64
}

func newI2PInternalFetcher(endpoint string, maxRedirects int, maxBodyBytes int64) *i2pInternalFetcher {
	return &i2pInternalFetcher{endpoint: endpoint, maxRedirects: maxRedirects, maxBodyBytes: maxBodyBytes}
}

func (f *i2pInternalFetcher) GET(ctx context.Context, rawURL string, timeout time.Duration) (*FetchResult, error) {
	proxyURL, err := url.Parse("http://" + f.endpoint)
	if err != nil {
		return nil, fmt.Errorf("i2p_internal: parse endpoint %s: %w", f.endpoint, err)
	}
	tr := &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	return doGET(ctx, tr, rawURL, timeout, f.maxRedirects, f.maxBodyBytes)
}
