package sinks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/noctipede/models"
)

type fakePageBackend struct {
	mu    sync.Mutex
	pages []*models.Page
	fail  int // number of initial calls to fail before succeeding
}

func (b *fakePageBackend) StorePage(ctx context.Context, p *models.Page) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail > 0 {
		b.fail--
		return context.DeadlineExceeded
	}
	b.pages = append(b.pages, p)
	return nil
}

func (b *fakePageBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pages)
}

type fakeMediaBackend struct {
	mu   sync.Mutex
	refs []models.MediaRef
}

func (b *fakeMediaBackend) AcceptMedia(ctx context.Context, m models.MediaRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refs = append(b.refs, m)
	return nil
}

func (b *fakeMediaBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.refs)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition not met before timeout")
	}
}

func TestChannelPageSink_StoresToBackend(t *testing.T) {
	backend := &fakePageBackend{}
	sink := NewChannelPageSink(backend, 4)
	defer sink.Close()

	page := &models.Page{URL: "http://example.com"}
	if err := sink.Store(context.Background(), page); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	waitFor(t, time.Second, func() bool { return backend.count() == 1 })
}

func TestChannelPageSink_BufferFullBlocksUntilRoomFrees(t *testing.T) {
	backend := &fakePageBackend{}
	sink := &ChannelPageSink{
		backend: backend,
		ch:      make(chan *models.Page), // unbuffered: Store must block
		done:    make(chan struct{}),
	}
	defer close(sink.done)

	stored := make(chan error, 1)
	go func() {
		stored <- sink.Store(context.Background(), &models.Page{URL: "http://example.com"})
	}()

	select {
	case err := <-stored:
		t.Fatalf("Store() returned %v before the channel was drained, want it to block", err)
	case <-time.After(50 * time.Millisecond):
	}

	p := <-sink.ch // drain, simulating the background goroutine freeing room
	if p.URL != "http://example.com" {
		t.Errorf("drained page URL = %q, want http://example.com", p.URL)
	}
	if err := <-stored; err != nil {
		t.Errorf("Store() error = %v, want nil once room freed", err)
	}
}

func TestChannelPageSink_BufferFullReturnsErrorOnContextCancel(t *testing.T) {
	backend := &fakePageBackend{}
	sink := &ChannelPageSink{
		backend: backend,
		ch:      make(chan *models.Page), // unbuffered, never drained
		done:    make(chan struct{}),
	}
	defer close(sink.done)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := sink.Store(ctx, &models.Page{URL: "http://example.com"})
	if err == nil {
		t.Fatal("expected ErrSinkUnavailable, got nil")
	}
	ce, ok := err.(*models.CrawlError)
	if !ok || ce.Code != models.ErrSinkUnavailable {
		t.Errorf("err = %v, want CrawlError(ErrSinkUnavailable)", err)
	}
}

func TestChannelPageSink_StoreReturnsErrorWhenClosed(t *testing.T) {
	backend := &fakePageBackend{}
	sink := &ChannelPageSink{
		backend: backend,
		ch:      make(chan *models.Page), // unbuffered, never drained
		done:    make(chan struct{}),
	}
	close(sink.done)

	err := sink.Store(context.Background(), &models.Page{URL: "http://example.com"})
	if err == nil {
		t.Fatal("expected ErrSinkUnavailable, got nil")
	}
	ce, ok := err.(*models.CrawlError)
	if !ok || ce.Code != models.ErrSinkUnavailable {
		t.Errorf("err = %v, want CrawlError(ErrSinkUnavailable)", err)
	}
}

func TestChannelPageSink_RetriesOnFailure(t *testing.T) {
	backend := &fakePageBackend{fail: 1}
	sink := &ChannelPageSink{
		backend: backend,
		ch:      make(chan *models.Page, 1),
		done:    make(chan struct{}),
	}
	go sink.drain()
	defer sink.Close()

	sink.storeWithRetry(&models.Page{URL: "http://example.com"})
	if backend.count() != 1 {
		t.Errorf("backend.count() = %d, want 1 after retry", backend.count())
	}
}

func TestChannelMediaQueue_Enqueues(t *testing.T) {
	backend := &fakeMediaBackend{}
	q := NewChannelMediaQueue(backend, 4)
	defer q.Close()

	if err := q.Enqueue(context.Background(), models.MediaRef{URL: "http://example.com/a.jpg"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	waitFor(t, time.Second, func() bool { return backend.count() == 1 })
}

func TestChannelMediaQueue_DropsOldestOnOverflow(t *testing.T) {
	backend := &fakeMediaBackend{}
	q := &ChannelMediaQueue{
		backend: backend,
		ch:      make(chan models.MediaRef, 1),
		done:    make(chan struct{}),
	}
	defer close(q.done)

	if err := q.Enqueue(context.Background(), models.MediaRef{URL: "a"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := q.Enqueue(context.Background(), models.MediaRef{URL: "b"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if q.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", q.Dropped())
	}
	select {
	case m := <-q.ch:
		if m.URL != "b" {
			t.Errorf("surviving entry URL = %q, want %q", m.URL, "b")
		}
	default:
		t.Fatal("expected one entry remaining in channel")
	}
}
