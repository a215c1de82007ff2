package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// defaultCanaryURL is a well-known IP-echo service reachable over Tor.
// HTTP-layer success (any 2xx) is treated as sufficient — the probe does
// not parse the response to verify the reported IP belongs to a
// published Tor exit list, per spec.md §4.B's escape hatch.
const defaultCanaryURL = "https://check.torproject.org"

// connectTimeout and totalTimeout bound a single probe per spec.md §5:
// "Probe total ≤15 s".
const (
	connectTimeout = 5 * time.Second
	totalTimeout   = 15 * time.Second
)

// NetworkProber implements Prober against a live Tor SOCKS5 endpoint and
// I2P HTTP proxy/internal-proxy fleet, grounded on torgo's
// proxy.SOCKS5-then-http.Transport pattern.
type NetworkProber struct {
	torSocksAddr   string
	i2pProxyAddr   string
	canaryURL      string
	auxiliarySites []string
	httpClient     func(tr *http.Transport, timeout time.Duration) *http.Client
}

// NewNetworkProber builds a Prober over the given Tor SOCKS5 address and
// I2P HTTP proxy address. canaryURL and auxiliarySites default to the
// values spec.md §4.B names when left empty/nil.
func NewNetworkProber(torSocksAddr, i2pProxyAddr, canaryURL string, auxiliarySites []string) *NetworkProber {
	if canaryURL == "" {
		canaryURL = defaultCanaryURL
	}
	if len(auxiliarySites) == 0 {
		auxiliarySites = defaultAuxiliarySites
	}
	return &NetworkProber{
		torSocksAddr:   torSocksAddr,
		i2pProxyAddr:   i2pProxyAddr,
		canaryURL:      canaryURL,
		auxiliarySites: auxiliarySites,
		httpClient:     defaultHTTPClient,
	}
}

func defaultHTTPClient(tr *http.Transport, timeout time.Duration) *http.Client {
	return &http.Client{Transport: tr, Timeout: timeout}
}

func (p *NetworkProber) ProbeTorSOCKS(ctx context.Context) Verdict {
	ctx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	socksDialer, err := proxy.SOCKS5("tcp", p.torSocksAddr, nil, &net.Dialer{Timeout: connectTimeout})
	if err != nil {
		return Verdict{OK: false, Detail: fmt.Sprintf("build socks5 dialer: %v", err)}
	}

	tr := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return socksDialer.Dial(network, addr)
		},
	}
	client := p.httpClient(tr, totalTimeout)
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.canaryURL, nil)
	if err != nil {
		return Verdict{OK: false, Detail: fmt.Sprintf("build request: %v", err)}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Verdict{OK: false, Detail: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Verdict{OK: false, Detail: fmt.Sprintf("canary returned HTTP %d", resp.StatusCode)}
	}
	return Verdict{OK: true, Detail: fmt.Sprintf("canary HTTP %d via %s", resp.StatusCode, p.torSocksAddr)}
}

// proxyHTTPClient builds an http.Client that tunnels through proxyAddr as
// a plain HTTP proxy, the same http.ProxyURL wiring transport.i2pHTTPFetcher
// uses for live fetches.
func (p *NetworkProber) proxyHTTPClient(proxyAddr string) (*http.Client, error) {
	proxyURL, err := url.Parse("http://" + proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("parse proxy address: %w", err)
	}
	tr := &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	return p.httpClient(tr, totalTimeout), nil
}
