package probe

import (
	"context"
	"fmt"
	"net/http"
)

// defaultAuxiliarySites are the five eepsites probe_i2p_internal checks
// against each candidate internal proxy: the stats site, the registry,
// the project site, the forum, and the lead developer's site, per
// spec.md §4.B.
var defaultAuxiliarySites = []string{
	"http://stats.i2p",
	"http://reg.i2p",
	"http://i2p-projekt.i2p",
	"http://forum.i2p",
	"http://zzz.i2p",
}

func (p *NetworkProber) ProbeI2PHTTP(ctx context.Context) Verdict {
	ctx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	client, err := p.proxyHTTPClient(p.i2pProxyAddr)
	if err != nil {
		return Verdict{OK: false, Detail: err.Error()}
	}
	defer client.CloseIdleConnections()

	ok, detail := probeAuxiliarySites(ctx, client, p.auxiliarySites)
	return Verdict{OK: ok, Detail: detail}
}

func (p *NetworkProber) ProbeI2PInternal(ctx context.Context, endpoint string) Verdict {
	ctx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	client, err := p.proxyHTTPClient(endpoint)
	if err != nil {
		return Verdict{OK: false, Detail: err.Error()}
	}
	defer client.CloseIdleConnections()

	succeeded := make([]string, 0, len(p.auxiliarySites))
	for _, site := range p.auxiliarySites {
		if getsOK(ctx, client, site) {
			succeeded = append(succeeded, site)
		}
	}

	return Verdict{
		OK:     len(succeeded) > 0,
		Detail: fmt.Sprintf("%d/%d auxiliary sites reachable via %s", len(succeeded), len(p.auxiliarySites), endpoint),
		Sites:  succeeded,
	}
}

// probeAuxiliarySites returns true (sufficient) if at least one
// auxiliary site answered with a 2xx.
func probeAuxiliarySites(ctx context.Context, client *http.Client, sites []string) (bool, string) {
	for _, site := range sites {
		if getsOK(ctx, client, site) {
			return true, fmt.Sprintf("reached %s", site)
		}
	}
	return false, "no auxiliary site reachable"
}

func getsOK(ctx context.Context, client *http.Client, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
