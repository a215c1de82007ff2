package manager

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/noctipede/fetch"
	"github.com/use-agent/noctipede/models"
	"github.com/use-agent/noctipede/probe"
	"github.com/use-agent/noctipede/queue"
	"github.com/use-agent/noctipede/readiness"
	"github.com/use-agent/noctipede/sinks"
	"github.com/use-agent/noctipede/transport"
)

type alwaysReadyProber struct{}

func (alwaysReadyProber) ProbeTorSOCKS(ctx context.Context) probe.Verdict {
	return probe.Verdict{OK: true}
}
func (alwaysReadyProber) ProbeI2PHTTP(ctx context.Context) probe.Verdict {
	return probe.Verdict{OK: true}
}
func (alwaysReadyProber) ProbeI2PInternal(ctx context.Context, endpoint string) probe.Verdict {
	return probe.Verdict{OK: true}
}

// recordingFetcher counts GETs per URL and tracks, per host, the highest
// number of concurrently in-flight GETs observed — the concurrent-holder
// counter that exercises the Gate's at-most-one-worker-per-site property.
type recordingFetcher struct {
	mu        sync.Mutex
	hits      map[string]int
	active    map[string]int
	maxActive map[string]int
}

func newRecordingFetcher() *recordingFetcher {
	return &recordingFetcher{
		hits:      make(map[string]int),
		active:    make(map[string]int),
		maxActive: make(map[string]int),
	}
}

func (f *recordingFetcher) GET(ctx context.Context, rawURL string, timeout time.Duration) (*transport.FetchResult, error) {
	host := hostOf(rawURL)

	f.mu.Lock()
	f.hits[rawURL]++
	f.active[host]++
	if f.active[host] > f.maxActive[host] {
		f.maxActive[host] = f.active[host]
	}
	f.mu.Unlock()

	// Hold the "connection" open briefly to widen the window in which a
	// second worker dispatching the same site would overlap, if the Gate
	// ever allowed it.
	time.Sleep(10 * time.Millisecond)

	f.mu.Lock()
	f.active[host]--
	f.mu.Unlock()

	return &transport.FetchResult{
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": []string{"text/plain"}},
		Body:       []byte("ok"),
		FinalURL:   rawURL,
	}, nil
}

func (f *recordingFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.hits {
		total += n
	}
	return total
}

// maxConcurrentPerSite reports the highest concurrency observed for any
// single host across the run.
func (f *recordingFetcher) maxConcurrentPerSite() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := 0
	for _, n := range f.maxActive {
		if n > max {
			max = n
		}
	}
	return max
}

type noopPageSink struct{}

func (noopPageSink) Store(ctx context.Context, p *models.Page) error { return nil }

type noopMediaQueue struct{}

func (noopMediaQueue) Enqueue(ctx context.Context, m models.MediaRef) error { return nil }

var _ sinks.PageSink = noopPageSink{}
var _ sinks.MediaQueue = noopMediaQueue{}

func TestManager_DispatchesEverySeededSite(t *testing.T) {
	gate := queue.NewGate(false, 0)
	gate.Seed([]string{
		"http://one.onion",
		"http://two.onion",
		"http://three.onion",
	})

	tor := newRecordingFetcher()
	selector := transport.NewSelector(tor, tor, nil)
	pipeline := fetch.NewPipeline(selector, noopPageSink{}, noopMediaQueue{}, time.Millisecond, false)

	oracle := readiness.NewOracle(alwaysReadyProber{}, readiness.Config{
		BootstrapDuration:     time.Millisecond,
		MinActiveI2P:          0,
		RequireI2PConjunction: false,
	}, nil)
	defer oracle.Close()

	mgr := New(gate, pipeline, oracle, Config{WorkerCount: 3}, FrontierConfig{
		MaxQueueSize:    10,
		MaxLinksPerPage: 5,
		MaxCrawlDepth:   2,
		MaxOffsiteDepth: 0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		mgr.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) && tor.count() < 3 {
		time.Sleep(5 * time.Millisecond)
	}
	if tor.count() < 3 {
		t.Fatalf("fetcher saw %d GETs, want at least 3 (one per seeded site)", tor.count())
	}
	if max := tor.maxConcurrentPerSite(); max > 1 {
		t.Errorf("maxConcurrentPerSite() = %d, want at most 1 (Gate must never dispatch a site to two workers at once)", max)
	}

	cancel()
	<-done
}
