package fetch

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/use-agent/noctipede/models"
	"github.com/use-agent/noctipede/queue"
	"github.com/use-agent/noctipede/transport"
)

type fakeFetcher struct {
	result *transport.FetchResult
	err    error
}

func (f *fakeFetcher) GET(ctx context.Context, url string, timeout time.Duration) (*transport.FetchResult, error) {
	return f.result, f.err
}

type fakePageSink struct {
	pages []*models.Page
}

func (s *fakePageSink) Store(ctx context.Context, p *models.Page) error {
	s.pages = append(s.pages, p)
	return nil
}

type fakeMediaQueue struct {
	refs []models.MediaRef
}

func (q *fakeMediaQueue) Enqueue(ctx context.Context, m models.MediaRef) error {
	q.refs = append(q.refs, m)
	return nil
}

func TestPipeline_Fetch_HappyPath(t *testing.T) {
	tor := &fakeFetcher{result: &transport.FetchResult{
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte(`<html><head><title>Hi</title></head><body><a href="/a">A</a></body></html>`),
		FinalURL:   "http://example.com/",
	}}
	i2p := &fakeFetcher{}
	selector := transport.NewSelector(tor, i2p, nil)

	pageSink := &fakePageSink{}
	mediaQueue := &fakeMediaQueue{}
	pipeline := NewPipeline(selector, pageSink, mediaQueue, time.Millisecond, false)

	site := &models.Site{URL: "http://example.com"}
	frontier := queue.NewFrontier("example.com", 100, 10, 5, 1)

	page, err := pipeline.Fetch(context.Background(), site, "http://example.com", frontier, 0, 0)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if page.Title != "Hi" {
		t.Errorf("page.Title = %q, want Hi", page.Title)
	}
	if page.Transport != "tor_socks" {
		t.Errorf("page.Transport = %q, want tor_socks", page.Transport)
	}
	if len(pageSink.pages) != 1 {
		t.Errorf("pageSink stored %d pages, want 1", len(pageSink.pages))
	}
	if frontier.Len() != 1 {
		t.Errorf("frontier.Len() = %d, want 1", frontier.Len())
	}
}

func TestPipeline_Fetch_I2PFallback(t *testing.T) {
	tor := &fakeFetcher{}
	i2pPrimary := &fakeFetcher{err: context.DeadlineExceeded}
	selector := transport.NewSelector(tor, i2pPrimary, nil)

	pageSink := &fakePageSink{}
	mediaQueue := &fakeMediaQueue{}
	pipeline := NewPipeline(selector, pageSink, mediaQueue, time.Millisecond, true)

	site := &models.Site{URL: "http://reg.i2p"}
	_, err := pipeline.Fetch(context.Background(), site, "http://reg.i2p", nil, 0, 0)
	if err == nil {
		t.Fatal("expected an error with no fallback chain configured")
	}

	ce, ok := err.(*models.CrawlError)
	if !ok {
		t.Fatalf("error = %v (%T), want *models.CrawlError", err, err)
	}
	if ce.Code != models.ErrTransportUnavailable {
		t.Errorf("Code = %q, want ErrTransportUnavailable", ce.Code)
	}
}

func TestPipeline_Fetch_RedirectCapClassifiedAsHTTPError(t *testing.T) {
	tor := &fakeFetcher{err: fmt.Errorf("%w: stopped after 5 redirects", transport.ErrTooManyRedirects)}
	i2p := &fakeFetcher{}
	selector := transport.NewSelector(tor, i2p, nil)

	pageSink := &fakePageSink{}
	mediaQueue := &fakeMediaQueue{}
	pipeline := NewPipeline(selector, pageSink, mediaQueue, time.Millisecond, false)

	site := &models.Site{URL: "http://example.com"}
	page, err := pipeline.Fetch(context.Background(), site, "http://example.com", nil, 0, 0)
	if page != nil {
		t.Errorf("page = %+v, want nil (no Page body stored on redirect-cap failure)", page)
	}

	ce, ok := err.(*models.CrawlError)
	if !ok {
		t.Fatalf("error = %v (%T), want *models.CrawlError", err, err)
	}
	if ce.Code != models.ErrHTTPError {
		t.Errorf("Code = %q, want ErrHTTPError", ce.Code)
	}
	if len(pageSink.pages) != 0 {
		t.Errorf("pageSink stored %d pages, want 0", len(pageSink.pages))
	}
}
