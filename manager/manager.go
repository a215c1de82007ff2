// Package manager drives the crawl: it waits for the Readiness Oracle to
// clear the bootstrap quorum, then runs a fixed pool of workers that pull
// Sites from the Gate, walk each Site's Frontier via the Fetch Pipeline,
// and release the Site back to the Gate — the fixed-size analogue of the
// teacher's AdaptivePool, minus the memory-pressure resizing this
// domain has no equivalent signal for.
package manager

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/use-agent/noctipede/fetch"
	"github.com/use-agent/noctipede/models"
	"github.com/use-agent/noctipede/queue"
	"github.com/use-agent/noctipede/readiness"
)

// gateWaitTimeout bounds how long a worker blocks in WaitForWork before
// re-checking the Gate, per spec.md §4.F.
const gateWaitTimeout = 5 * time.Second

// Config controls pool size and readiness gating.
type Config struct {
	WorkerCount  int
	ReadyTimeout time.Duration // 0 disables the deadline; WaitReady blocks on ctx only
}

// Manager owns the worker pool and coordinates the Gate, Frontier set,
// and Fetch Pipeline for one crawl run.
type Manager struct {
	gate     *queue.Gate
	pipeline *fetch.Pipeline
	oracle   *readiness.Oracle
	cfg      Config
	fcfg     FrontierConfig

	frontiersMu sync.Mutex
	frontiers   map[string]*queue.Frontier

	health []*workerHealth
}

// FrontierConfig carries the per-site Frontier caps a Manager applies
// when it lazily creates one per dispatched Site.
type FrontierConfig struct {
	MaxQueueSize    int
	MaxLinksPerPage int
	MaxCrawlDepth   int
	MaxOffsiteDepth int
}

// New builds a Manager. gate must already be seeded before Run is called.
func New(gate *queue.Gate, pipeline *fetch.Pipeline, oracle *readiness.Oracle, cfg Config, fcfg FrontierConfig) *Manager {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	return &Manager{
		gate:      gate,
		pipeline:  pipeline,
		oracle:    oracle,
		cfg:       cfg,
		fcfg:      fcfg,
		frontiers: make(map[string]*queue.Frontier),
	}
}

// Run blocks until the Oracle reports ready_for_crawling, then launches
// the worker pool and blocks until ctx is cancelled, at which point every
// worker finishes its in-flight fetch and returns.
func (m *Manager) Run(ctx context.Context) error {
	slog.Info("manager waiting for readiness quorum")
	waitCtx := ctx
	if m.cfg.ReadyTimeout > 0 {
		var cancelWait context.CancelFunc
		waitCtx, cancelWait = context.WithTimeout(ctx, m.cfg.ReadyTimeout)
		defer cancelWait()
	}
	if err := m.oracle.WaitReady(waitCtx, 2*time.Second); err != nil {
		return models.NewFatalCrawlError(models.ErrCancelled, "readiness wait aborted", err)
	}
	slog.Info("readiness quorum reached, starting workers", "workers", m.cfg.WorkerCount)

	var wg sync.WaitGroup
	for i := 0; i < m.cfg.WorkerCount; i++ {
		h := newWorkerHealth(i)
		m.health = append(m.health, h)
		wg.Add(1)
		go func(id int, health *workerHealth) {
			defer wg.Done()
			m.worker(ctx, id, health)
		}(i, h)
	}

	<-ctx.Done()
	slog.Info("manager shutting down, draining workers")
	wg.Wait()
	slog.Info("manager stopped")
	return nil
}

func (m *Manager) worker(ctx context.Context, id int, health *workerHealth) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// spec.md §8: "the Manager never dispatches while
		// ready_for_crawling is false and s is current" is a continuous
		// invariant, not a one-time startup gate — re-checked before
		// every dispatch, not just once in Run.
		if !m.oracle.Snapshot().ReadyForCrawling {
			select {
			case <-ctx.Done():
				return
			case <-time.After(gateWaitTimeout):
			}
			continue
		}

		site, ok := m.gate.Dispatch()
		if !ok {
			m.gate.WaitForWork(ctx, gateWaitTimeout)
			continue
		}

		m.crawlSite(ctx, site, health)

		if health.ShouldRetire() {
			errScore, useCount := health.snapshot()
			slog.Warn("worker health degraded", "worker", id, "errScore", errScore, "useCount", useCount)
		}
	}
}

// crawlSite fetches the Site's own URL at depth 0, then drains the Site's
// Frontier to completion (or ctx cancellation), and releases the Site
// back to the Gate. The Site is released failed if any fetch returns a
// fatal error or if a fetch fails before any fetch has succeeded;
// otherwise it is released done.
func (m *Manager) crawlSite(ctx context.Context, site *models.Site, health *workerHealth) {
	frontier := m.frontierFor(site)

	current := site.URL
	depth, offsiteDepth := 0, 0
	status := models.SiteDone
	fetchedAny := false

	for {
		select {
		case <-ctx.Done():
			m.gate.Release(site.URL, status)
			return
		default:
		}

		_, err := m.pipeline.Fetch(ctx, site, current, frontier, depth, offsiteDepth)
		if err != nil {
			slog.Warn("fetch failed", "site", site.URL, "url", current, "error", err)
			health.RecordFailure()
			if ce, ok := err.(*models.CrawlError); ok && ce.Severity() == models.SeverityFatal {
				status = models.SiteFailed
				break
			}
			if !fetchedAny {
				status = models.SiteFailed
			}
		} else {
			health.RecordSuccess()
			fetchedAny = true
		}

		next, nextDepth, nextOffsite, ok := frontier.Next()
		if !ok {
			break
		}
		current, depth, offsiteDepth = next, nextDepth, nextOffsite
	}

	m.gate.Release(site.URL, status)
}

func (m *Manager) frontierFor(site *models.Site) *queue.Frontier {
	m.frontiersMu.Lock()
	defer m.frontiersMu.Unlock()
	if f, ok := m.frontiers[site.URL]; ok {
		return f
	}
	host := hostOf(site.URL)
	f := queue.NewFrontier(host, m.fcfg.MaxQueueSize, m.fcfg.MaxLinksPerPage, m.fcfg.MaxCrawlDepth, m.fcfg.MaxOffsiteDepth)
	m.frontiers[site.URL] = f
	return f
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
