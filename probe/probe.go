// Package probe issues lightweight connectivity checks against the Tor
// SOCKS5 endpoint, the I2P HTTP proxy, and the I2P internal-proxy fleet,
// never mutating shared state and never panicking — every failure mode
// folds into a Verdict the Readiness Oracle can cache.
package probe

import "context"

// Prober is the capability the Readiness Oracle depends on (spec.md
// §9's ProxyProber), kept as an interface so tests can substitute a
// fake that never touches the network.
type Prober interface {
	ProbeTorSOCKS(ctx context.Context) Verdict
	ProbeI2PHTTP(ctx context.Context) Verdict
	ProbeI2PInternal(ctx context.Context, endpoint string) Verdict
}

// Verdict is the outcome of a single probe.
type Verdict struct {
	OK     bool
	Detail string
	// Sites is populated only by ProbeI2PInternal: which of the
	// auxiliary eepsites the endpoint successfully reached.
	Sites []string
}
