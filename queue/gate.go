// Package queue holds the seed set as Sites and dispatches them with
// at-most-one-worker-per-Site exclusivity, plus a bounded per-site link
// frontier for intra-site discovery.
package queue

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/noctipede/models"
)

// Gate holds the seed set as an ordered collection of Sites and
// dispatches them in insertion order, generalizing the teacher's
// crawl-job sync.Map store (api/handler/crawl.go's crawlStore) from a
// job store into a per-site pending/in_progress/done/failed state
// machine with a single mutex plus an ordered dispatch list, per
// spec.md §5's "single mutex; O(1) lookups ... plus an ordered list for
// dispatch".
type Gate struct {
	mu           sync.Mutex
	cond         *sync.Cond
	sites        map[string]*models.Site
	order        []string
	skipRecent   bool
	recentWindow time.Duration
}

// NewGate builds an empty Gate. skipRecent and recentWindow implement
// the recency dispatch gate from spec.md §4.D.
func NewGate(skipRecent bool, recentWindow time.Duration) *Gate {
	g := &Gate{
		sites:        make(map[string]*models.Site),
		skipRecent:   skipRecent,
		recentWindow: recentWindow,
	}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// NetworkOf derives a Site's Network from its host suffix.
func NetworkOf(rawURL string) models.Network {
	u, err := url.Parse(rawURL)
	if err != nil {
		return models.NetworkClearnet
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.HasSuffix(host, ".onion"):
		return models.NetworkTor
	case strings.HasSuffix(host, ".i2p"):
		return models.NetworkI2P
	default:
		return models.NetworkClearnet
	}
}

// Seed adds a Site for each URL not already known, in order. Re-seeding
// an already-known URL is a no-op — the Gate never deletes a Site
// (spec.md §3's Site lifecycle).
func (g *Gate) Seed(urls []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, raw := range urls {
		if _, exists := g.sites[raw]; exists {
			continue
		}
		g.sites[raw] = &models.Site{
			URL:     raw,
			Network: NetworkOf(raw),
			Status:  models.SitePending,
		}
		g.order = append(g.order, raw)
	}
}

// Dispatch returns the first dispatchable Site in insertion order and
// marks it in_progress, or (nil, false) if none qualify right now. A
// Site is dispatchable per spec.md §4.D: status in {pending, failed},
// not currently held, and either never crawled or past the recency
// window when recency-skip is enabled.
func (g *Gate) Dispatch() (*models.Site, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, u := range g.order {
		site := g.sites[u]
		if g.dispatchable(site) {
			site.Status = models.SiteInProgress
			return site, true
		}
	}
	return nil, false
}

func (g *Gate) dispatchable(site *models.Site) bool {
	if site.Status != models.SitePending && site.Status != models.SiteFailed {
		return false
	}
	if !g.skipRecent || site.LastCrawledAt == nil {
		return true
	}
	return time.Since(*site.LastCrawledAt) >= g.recentWindow
}

// WaitForWork blocks until a Site is released, ctx is cancelled, or
// timeout elapses, whichever comes first; the caller re-checks Dispatch
// afterwards, since a release does not guarantee a dispatchable Site —
// bounded per
// spec.md §4.F's "wait on a condition bounded by a short timeout".
func (g *Gate) WaitForWork(ctx context.Context, timeout time.Duration) {
	done := make(chan struct{})
	timer := time.AfterFunc(timeout, func() { close(done) })
	defer timer.Stop()

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	}()

	g.mu.Lock()
	g.cond.Wait()
	g.mu.Unlock()
}

// Release marks a Site done or failed, stamps LastCrawledAt, and wakes
// any worker blocked in WaitForWork.
func (g *Gate) Release(siteURL string, status models.SiteStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	site, ok := g.sites[siteURL]
	if !ok {
		return
	}
	now := time.Now()
	site.Status = status
	site.LastCrawledAt = &now
	if status == models.SiteFailed {
		site.ErrorCount++
		site.ConsecutiveErr++
	} else {
		site.ConsecutiveErr = 0
	}
	g.cond.Broadcast()
}

// Len reports the total number of known Sites.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sites)
}
