// Command noctipede is the composition root: it loads configuration,
// wires the transport/probe/readiness/queue/fetch/sinks layers, seeds the
// Gate, and runs the crawl until a shutdown signal arrives — the same
// load-config/init-logger/build-dependencies/serve/graceful-shutdown
// shape as purify/cmd/purify/main.go.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/noctipede/api"
	"github.com/use-agent/noctipede/config"
	"github.com/use-agent/noctipede/fetch"
	"github.com/use-agent/noctipede/manager"
	"github.com/use-agent/noctipede/models"
	"github.com/use-agent/noctipede/probe"
	"github.com/use-agent/noctipede/queue"
	"github.com/use-agent/noctipede/readiness"
	"github.com/use-agent/noctipede/seed"
	"github.com/use-agent/noctipede/sinks"
	"github.com/use-agent/noctipede/transport"
)

// discardPageBackend and discardMediaBackend stand in for the
// out-of-scope relational-store, object-store, and analyzer integrations
// (spec.md §1) until those services are wired in. They log and drop —
// they are not a persistence layer.
type discardPageBackend struct{}

func (discardPageBackend) StorePage(ctx context.Context, p *models.Page) error {
	slog.Debug("page backend (discard)", "url", p.URL, "title", p.Title, "links", len(p.Links))
	return nil
}

type discardMediaBackend struct{}

func (discardMediaBackend) AcceptMedia(ctx context.Context, m models.MediaRef) error {
	slog.Debug("media backend (discard)", "url", m.URL)
	return nil
}

func queueGate(cfg *config.Config) *queue.Gate {
	return queue.NewGate(cfg.Crawl.SkipRecentCrawls, cfg.Crawl.RecentCrawlWindow)
}

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("noctipede starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxConcurrentCrawlers", cfg.Crawl.MaxConcurrentCrawlers,
	)

	ctx, cancel := context.WithCancel(context.Background())

	// ── 3. Build the probe layer and the Readiness Oracle ───────────
	prober := probe.NewNetworkProber(cfg.Transport.TorProxyHostPort, cfg.Transport.I2PProxyHostPort, "", nil)
	oracle := readiness.NewOracle(prober, readiness.Config{
		BootstrapDuration:     cfg.Readiness.BootstrapDuration,
		MinActiveI2P:          cfg.Readiness.MinActiveI2P,
		RequireI2PConjunction: cfg.Readiness.RequireI2PConjunction,
		RefreshPollInterval:   cfg.Readiness.RefreshPollInterval,
	}, cfg.Transport.I2PInternalProxies)
	defer oracle.Close()
	go oracle.RunBackgroundRefresh(ctx)

	// ── 4. Build the transport Selector ──────────────────────────────
	torFetcher := transport.NewTorFetcher(cfg.Transport.TorProxyHostPort, cfg.Transport.MaxRedirects, cfg.Transport.MaxBodyBytes)
	i2pFetcher := transport.NewI2PHTTPFetcher(cfg.Transport.I2PProxyHostPort, cfg.Transport.MaxRedirects, cfg.Transport.MaxBodyBytes)

	var fallback *transport.I2PFallbackChain
	if cfg.Transport.UseI2PInternalProxies && len(cfg.Transport.I2PInternalProxies) > 0 {
		fallback = transport.NewI2PFallbackChain(cfg.Transport.I2PInternalProxies, transport.InsertionOrder{}, oracle, cfg.Transport.MaxRedirects, cfg.Transport.MaxBodyBytes)
	}
	selector := transport.NewSelector(torFetcher, i2pFetcher, fallback)

	// ── 5. Build the sinks and the Fetch Pipeline ────────────────────
	pageSink := sinks.NewChannelPageSink(&discardPageBackend{}, 1000)
	defer pageSink.Close()
	mediaQueue := sinks.NewChannelMediaQueue(&discardMediaBackend{}, cfg.Analysis.MediaQueueMaxSize)
	defer mediaQueue.Close()

	pipeline := fetch.NewPipeline(selector, pageSink, mediaQueue, cfg.Crawl.CrawlDelay, cfg.Transport.UseI2PInternalProxies)

	// ── 6. Load the seed list and build the Gate ──────────────────────
	seedPath := os.Getenv("NOCTIPEDE_SEED_FILE")
	if seedPath == "" {
		seedPath = "seeds.txt"
	}
	urls, err := seed.Load(seedPath)
	if err != nil {
		slog.Error("failed to load seed file", "path", seedPath, "error", err)
		os.Exit(1)
	}
	gate := queueGate(cfg)
	gate.Seed(urls)
	slog.Info("seed list loaded", "path", seedPath, "count", len(urls))

	// ── 7. Build and run the Manager ──────────────────────────────────
	mgr := manager.New(gate, pipeline, oracle, manager.Config{
		WorkerCount: cfg.Crawl.MaxConcurrentCrawlers,
	}, manager.FrontierConfig{
		MaxQueueSize:    cfg.Frontier.MaxQueueSize,
		MaxLinksPerPage: cfg.Frontier.MaxLinksPerPage,
		MaxCrawlDepth:   cfg.Frontier.MaxCrawlDepth,
		MaxOffsiteDepth: cfg.Frontier.MaxOffsiteDepth,
	})

	managerDone := make(chan struct{})
	go func() {
		defer close(managerDone)
		if err := mgr.Run(ctx); err != nil {
			slog.Error("manager stopped with error", "error", err)
		}
	}()

	// ── 8. Setup the readiness HTTP surface ───────────────────────────
	router := api.NewRouter(oracle, cfg)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// ── 9. Graceful shutdown ───────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	cancel()
	<-managerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("noctipede stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
