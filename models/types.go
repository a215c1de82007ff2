package models

import "time"

// Network identifies which plane a Site is reached through.
type Network string

const (
	NetworkClearnet Network = "clearnet"
	NetworkTor      Network = "tor"
	NetworkI2P      Network = "i2p"
)

// SiteStatus tracks a Site's position in the Gate's dispatch lifecycle.
type SiteStatus string

const (
	SitePending    SiteStatus = "pending"
	SiteInProgress SiteStatus = "in_progress"
	SiteDone       SiteStatus = "done"
	SiteFailed     SiteStatus = "failed"
)

// Site is the crawl unit the Gate dispatches. URL is normalized and is
// the identity used for dedup across the whole run.
type Site struct {
	URL            string
	Network        Network
	LastCrawledAt  *time.Time
	Status         SiteStatus
	ErrorCount     int
	ConsecutiveErr int
}

// Page is one fetched document, recorded after the Fetch Pipeline
// completes extraction, before it is handed to a PageSink.
type Page struct {
	SiteURL     string
	URL         string
	FetchedAt   time.Time
	FinalURL    string
	StatusCode  int
	ContentHash string
	Title       string
	Links       []string
	Media       []MediaRef
	Transport   string // "tor_socks" | "i2p_http" | "i2p_internal:<endpoint>"
	ElapsedMs   int64
	Truncated   bool
}

// MediaKind classifies a MediaRef for the MediaQueue.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaOther MediaKind = "other"
)

// MediaRef is a media asset discovered on a Page. URL is its identity.
type MediaRef struct {
	URL          string
	Kind         MediaKind
	ParentPage   string
	DiscoveredAt time.Time
}

// ProxyKind identifies which proxy family a ProxyEndpoint belongs to.
type ProxyKind string

const (
	ProxyTorSOCKS    ProxyKind = "tor_socks"
	ProxyI2PHTTP     ProxyKind = "i2p_http"
	ProxyI2PInternal ProxyKind = "i2p_internal"
)

// ProbeOutcome is the verdict recorded against a ProxyEndpoint after its
// most recent probe.
type ProbeOutcome string

const (
	ProbeOK    ProbeOutcome = "ok"
	ProbeError ProbeOutcome = "error"
)

// ProxyEndpoint is one probeable transport endpoint tracked by the
// Readiness Oracle's ttlcache.Store.
type ProxyEndpoint struct {
	ID              string // host:port or eepsite name
	Kind            ProxyKind
	LastOutcome     ProbeOutcome
	LastProbedAt    time.Time
	SuccessCount    int
	FailureCount    int
	SuccessfulDests []string // i2p_internal only
}

// ReadinessSnapshot is the immutable document published by the Oracle and
// served, unmodified, by the readiness HTTP surface.
type ReadinessSnapshot struct {
	TorReady              bool
	TorDetail             string
	I2PProxyWorking       bool
	I2PConnectivity       bool
	ActiveI2PInternal     int
	MinActiveI2P          int
	I2PSufficient         bool
	ReadyForCrawling      bool
	BootstrapMode         bool
	SystemAgeSeconds      float64
	BootstrapRemaining    float64
	ExpectedFullReadiness int
	ProducedAt            time.Time
	EndpointDetails       map[string]EndpointDetail
}

// EndpointDetail is the per-endpoint slice of a ReadinessSnapshot exposed
// on the /api/readiness/endpoints surface.
type EndpointDetail struct {
	Status          ProbeOutcome
	SuccessfulSites []string
}
