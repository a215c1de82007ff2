// Package readiness maintains the current ReadinessSnapshot: whether it
// is safe to crawl at all. It fuses a bootstrap-aware TTL cache per
// transport endpoint with concurrent, coalesced probe fan-out, and
// publishes immutable snapshots for the crawler manager and the
// readiness HTTP surface to read without blocking on network I/O.
package readiness

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/use-agent/noctipede/models"
	"github.com/use-agent/noctipede/probe"
	"github.com/use-agent/noctipede/ttlcache"
)

const (
	bootstrapSuccessTTL = 60 * time.Second
	bootstrapFailedTTL  = 120 * time.Second
	operationalTTL      = 300 * time.Second

	// refreshFanoutDeadline bounds one refresh cycle, per spec.md §5
	// "Readiness refresh fan-out deadline ≤30s".
	refreshFanoutDeadline = 30 * time.Second

	torEndpointID    = "tor_socks"
	i2pHTTPEndpoint  = "i2p_http"
	refreshCacheSlot = "refresh"
)

// Config controls the Oracle's quorum and bootstrap behavior.
type Config struct {
	BootstrapDuration time.Duration
	MinActiveI2P      int

	// RequireI2PConjunction keeps ready_for_crawling a strict
	// conjunction of (tor_ready, i2p_http_ready, i2p_sufficient) when
	// true. Resolved Open Question #1: adopted as specified but made
	// configurable rather than silently weakened.
	RequireI2PConjunction bool

	// RefreshPollInterval bounds how often the background ticker
	// forces a refresh, separate from reader-triggered refreshes.
	RefreshPollInterval time.Duration
}

// Oracle owns the current ReadinessSnapshot and the per-endpoint TTL
// cache that feeds it.
type Oracle struct {
	prober        probe.Prober
	cfg           Config
	i2pInternal   []string
	startTime     time.Time
	store         *ttlcache.Store[string, models.EndpointDetail]
	snapshot      atomic.Pointer[models.ReadinessSnapshot]
	sf            singleflight.Group
	refreshSignal chan struct{}
}

// NewOracle builds an Oracle over prober, probing i2pInternal endpoints
// in addition to the Tor SOCKS and I2P HTTP planes. bootstrap_start_time
// is captured here as time.Now() and never persisted, per spec.md §4.C.
func NewOracle(prober probe.Prober, cfg Config, i2pInternal []string) *Oracle {
	o := &Oracle{
		prober:        prober,
		cfg:           cfg,
		i2pInternal:   i2pInternal,
		startTime:     time.Now(),
		refreshSignal: make(chan struct{}, 1),
	}
	o.store = ttlcache.New[string, models.EndpointDetail](o.ttlFor, time.Minute)
	o.snapshot.Store(o.emptySnapshot())
	return o
}

func (o *Oracle) emptySnapshot() *models.ReadinessSnapshot {
	return &models.ReadinessSnapshot{
		BootstrapMode:   true,
		ProducedAt:      time.Now(),
		EndpointDetails: map[string]models.EndpointDetail{},
	}
}

// ttlFor computes an entry's TTL from its own last outcome and the
// current bootstrap mode — the per-entry-outcome-dependent caching that
// is "the bug fix at the heart of the design".
func (o *Oracle) ttlFor(detail models.EndpointDetail) time.Duration {
	if !o.inBootstrap() {
		return operationalTTL
	}
	if detail.Status == models.ProbeOK {
		return bootstrapSuccessTTL
	}
	return bootstrapFailedTTL
}

func (o *Oracle) inBootstrap() bool {
	return time.Since(o.startTime) < o.cfg.BootstrapDuration
}

// Snapshot returns the currently published snapshot without triggering a
// refresh, for hot-path readers (the HTTP surface) that must never
// block.
func (o *Oracle) Snapshot() *models.ReadinessSnapshot {
	return o.snapshot.Load()
}

// SnapshotFresh returns the current snapshot, triggering a refresh first
// if any tracked endpoint's cache entry is missing or expired. The
// refresh itself is bounded by refreshFanoutDeadline regardless of ctx.
func (o *Oracle) SnapshotFresh(ctx context.Context) *models.ReadinessSnapshot {
	if o.isStale() {
		o.refresh(ctx)
	}
	return o.snapshot.Load()
}

// NudgeRefresh signals the background refresh loop to run early if the
// snapshot is currently stale. It never blocks: if a nudge is already
// pending or no background loop is draining the channel, the signal is
// dropped, matching spec.md §4.G's "must not block the response … beyond
// a short deadline".
func (o *Oracle) NudgeRefresh() {
	if !o.isStale() {
		return
	}
	select {
	case o.refreshSignal <- struct{}{}:
	default:
	}
}

func (o *Oracle) isStale() bool {
	if _, ok := o.store.Get(torEndpointID); !ok {
		return true
	}
	if _, ok := o.store.Get(i2pHTTPEndpoint); !ok {
		return true
	}
	for _, ep := range o.i2pInternal {
		if _, ok := o.store.Get(ep); !ok {
			return true
		}
	}
	return false
}

// WaitReady blocks until the published snapshot reports
// ready_for_crawling, polling at pollInterval (capped at 30s per spec.md
// §4.F), refreshing on each poll whose cached verdicts are stale, and
// logging the current readiness state while not ready.
func (o *Oracle) WaitReady(ctx context.Context, pollInterval time.Duration) error {
	if pollInterval <= 0 || pollInterval > 30*time.Second {
		pollInterval = 30 * time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		snap := o.SnapshotFresh(ctx)
		if snap.ReadyForCrawling {
			return nil
		}
		slog.Info("waiting for readiness",
			"tor_ready", snap.TorReady,
			"i2p_http_ready", snap.I2PProxyWorking,
			"active_i2p_internal", snap.ActiveI2PInternal,
			"min_active_i2p", snap.MinActiveI2P,
			"bootstrap_mode", snap.BootstrapMode,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// IsFailed implements transport.EndpointHealth: an endpoint is
// considered failed when its cached verdict is error. An endpoint with
// no unexpired cached verdict is not considered failed.
func (o *Oracle) IsFailed(endpoint string) bool {
	detail, ok := o.store.Get(endpoint)
	if !ok {
		return false // unknown endpoints are tried, not assumed failed
	}
	return detail.Status == models.ProbeError
}

// refresh fans out probes for every configured internal-proxy endpoint
// plus the two plane-level probes, bounded by refreshFanoutDeadline, then builds and
// publishes a new snapshot. Concurrent callers coalesce onto one
// in-flight fan-out via singleflight.
func (o *Oracle) refresh(ctx context.Context) {
	_, _, _ = o.sf.Do(refreshCacheSlot, func() (interface{}, error) {
		fanoutCtx, cancel := context.WithTimeout(context.Background(), refreshFanoutDeadline)
		defer cancel()
		o.doRefresh(fanoutCtx)
		return nil, nil
	})
}

func (o *Oracle) doRefresh(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(o.i2pInternal) + 2)

	g.Go(func() error {
		v := o.prober.ProbeTorSOCKS(gctx)
		o.store.Set(torEndpointID, verdictToDetail(v))
		return nil
	})
	g.Go(func() error {
		v := o.prober.ProbeI2PHTTP(gctx)
		o.store.Set(i2pHTTPEndpoint, verdictToDetail(v))
		return nil
	})
	for _, ep := range o.i2pInternal {
		ep := ep
		g.Go(func() error {
			v := o.prober.ProbeI2PInternal(gctx, ep)
			o.store.Set(ep, verdictToDetail(v))
			return nil
		})
	}
	_ = g.Wait()

	o.snapshot.Store(o.buildSnapshot())
}

func verdictToDetail(v probe.Verdict) models.EndpointDetail {
	status := models.ProbeError
	if v.OK {
		status = models.ProbeOK
	}
	return models.EndpointDetail{Status: status, SuccessfulSites: v.Sites}
}

func (o *Oracle) buildSnapshot() *models.ReadinessSnapshot {
	now := time.Now()
	age := time.Since(o.startTime)
	bootstrapMode := o.inBootstrap()
	remaining := (o.cfg.BootstrapDuration - age).Seconds()
	if remaining < 0 {
		remaining = 0
	}

	details := map[string]models.EndpointDetail{}
	torDetailRec, torOK := o.store.Get(torEndpointID)
	if torOK {
		details[torEndpointID] = torDetailRec
	}
	i2pHTTPRec, i2pHTTPOK := o.store.Get(i2pHTTPEndpoint)
	if i2pHTTPOK {
		details[i2pHTTPEndpoint] = i2pHTTPRec
	}

	activeInternal := 0
	for _, ep := range o.i2pInternal {
		rec, ok := o.store.Get(ep)
		if !ok {
			continue
		}
		details[ep] = rec
		if rec.Status == models.ProbeOK {
			activeInternal++
		}
	}

	torReady := torOK && torDetailRec.Status == models.ProbeOK
	i2pHTTPReady := i2pHTTPOK && i2pHTTPRec.Status == models.ProbeOK
	i2pSufficient := activeInternal >= o.cfg.MinActiveI2P

	ready := torReady
	if o.cfg.RequireI2PConjunction {
		ready = torReady && i2pHTTPReady && i2pSufficient
	}

	torDetail := ""
	if torOK {
		torDetail = string(torDetailRec.Status)
	}

	return &models.ReadinessSnapshot{
		TorReady:              torReady,
		TorDetail:             torDetail,
		I2PProxyWorking:       i2pHTTPReady,
		I2PConnectivity:       i2pHTTPReady,
		ActiveI2PInternal:     activeInternal,
		MinActiveI2P:          o.cfg.MinActiveI2P,
		I2PSufficient:         i2pSufficient,
		ReadyForCrawling:      ready,
		BootstrapMode:         bootstrapMode,
		SystemAgeSeconds:      age.Seconds(),
		BootstrapRemaining:    remaining,
		ExpectedFullReadiness: int(o.cfg.BootstrapDuration.Seconds()),
		ProducedAt:            now,
		EndpointDetails:       details,
	}
}

// Age reports how long ago the currently published snapshot was
// produced, surfaced by the HTTP handler as the cache age.
func (o *Oracle) Age() time.Duration {
	return time.Since(o.Snapshot().ProducedAt)
}

// RunBackgroundRefresh is the second of the two refresh triggers spec.md
// §4.C requires: a ticker at the shortest TTL in use, independent of any
// reader observing a stale snapshot. It blocks until ctx is cancelled, so
// callers run it in its own goroutine from the composition root.
func (o *Oracle) RunBackgroundRefresh(ctx context.Context) {
	interval := o.cfg.RefreshPollInterval
	if interval <= 0 {
		interval = bootstrapSuccessTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.refresh(ctx)
		case <-o.refreshSignal:
			o.refresh(ctx)
		}
	}
}

// Close stops background goroutines owned by the Oracle.
func (o *Oracle) Close() {
	o.store.Stop()
}
