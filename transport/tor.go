package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/proxy"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// torFetcher routes GETs through a Tor SOCKS5 endpoint, dialing TLS with a
// Chrome fingerprint (utls) on top of the SOCKS5 connection, adapted from
// the HTTP engine's direct-dial chrome handshake to dial through the proxy
// connection instead.
type torFetcher struct {
	socksAddr    string
	maxRedirects int
	maxBodyBytes int64
}

func newTorFetcher(socksAddr string, maxRedirects int, maxBodyBytes int64) *torFetcher {
	return &torFetcher{socksAddr: socksAddr, maxRedirects: maxRedirects, maxBodyBytes: maxBodyBytes}
}

// NewTorFetcher builds the Fetcher that routes GETs through a Tor SOCKS5
// endpoint, for composition roots wiring a Selector.
func NewTorFetcher(socksAddr string, maxRedirects int, maxBodyBytes int64) Fetcher {
	return newTorFetcher(socksAddr, maxRedirects, maxBodyBytes)
}

func (f *torFetcher) GET(ctx context.Context, rawURL string, timeout time.Duration) (*FetchResult, error) {
	socksDialer, err := proxy.SOCKS5("tcp", f.socksAddr, nil, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("tor: build socks5 dialer: %w", err)
	}

	tr := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return socksDialer.Dial(network, addr)
		},
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			rawConn, err := socksDialer.Dial(network, addr)
			if err != nil {
				return nil, fmt.Errorf("tor: socks5 dial for tls: %w", err)
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := utls.UClient(rawConn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				rawConn.Close()
				return nil, fmt.Errorf("tor: tls handshake: %w", err)
			}
			return tlsConn, nil
		},
	}

	return doGET(ctx, tr, rawURL, timeout, f.maxRedirects, f.maxBodyBytes)
}

// checkRedirect enforces spec.md §4.A's redirect cap and same-plane rule:
// a chain longer than maxRedirects, or one whose target crosses a
// .onion/.i2p/clearnet boundary, is rejected with ErrTooManyRedirects so
// callers classify it as an HttpError rather than a transport failure.
func checkRedirect(maxRedirects int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: stopped after %d redirects", ErrTooManyRedirects, maxRedirects)
		}
		if planeOf(req.URL.Hostname()) != planeOf(via[0].URL.Hostname()) {
			return fmt.Errorf("%w: redirect from %s crossed network planes to %s", ErrTooManyRedirects, via[0].URL.Host, req.URL.Host)
		}
		return nil
	}
}

func doGET(ctx context.Context, tr *http.Transport, rawURL string, timeout time.Duration, maxRedirects int, maxBodyBytes int64) (*FetchResult, error) {
	client := &http.Client{
		Transport:     tr,
		Timeout:       timeout,
		CheckRedirect: checkRedirect(maxRedirects),
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: request failed: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("transport: read body: %w", err)
	}
	truncated := false
	if int64(len(body)) > maxBodyBytes {
		body = body[:maxBodyBytes]
		truncated = true
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &FetchResult{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		FinalURL:   finalURL,
		Elapsed:    time.Since(start),
		Truncated:  truncated,
	}, nil
}
