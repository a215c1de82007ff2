package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeFetcher struct {
	name string
	err  error
}

func (f *fakeFetcher) GET(ctx context.Context, url string, timeout time.Duration) (*FetchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &FetchResult{StatusCode: 200, FinalURL: url}, nil
}

func TestSelector_RoutesBySuffix(t *testing.T) {
	tor := &fakeFetcher{name: "tor"}
	i2p := &fakeFetcher{name: "i2p"}
	s := NewSelector(tor, i2p, nil)

	tests := []struct {
		host string
		want Fetcher
	}{
		{"example.com", tor},
		{"duckduckgogg42xjoc72x3sjasowoarfbgcmvfimaftt6twagswzczad.onion", tor},
		{"stats.i2p", i2p},
		{"STATS.I2P", i2p},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			got := s.Select(tt.host)
			if got != tt.want {
				t.Errorf("Select(%q) picked wrong fetcher", tt.host)
			}
		})
	}
}

type fakeHealth struct {
	failed map[string]bool
}

func (h *fakeHealth) IsFailed(endpoint string) bool {
	return h.failed[endpoint]
}

func TestI2PFallbackChain_InsertionOrder(t *testing.T) {
	health := &fakeHealth{failed: map[string]bool{"a.i2p": true}}
	chain := NewI2PFallbackChain([]string{"a.i2p", "b.i2p", "c.i2p"}, InsertionOrder{}, health, 5, 1024)

	seq := chain.order.Sequence(chain.endpoints)
	if seq[0] != "a.i2p" || seq[1] != "b.i2p" || seq[2] != "c.i2p" {
		t.Fatalf("Sequence() = %v, want insertion order", seq)
	}
}

func TestI2PFallbackChain_AllExhausted(t *testing.T) {
	health := &fakeHealth{failed: map[string]bool{"a.i2p": true, "b.i2p": true}}
	chain := NewI2PFallbackChain([]string{"a.i2p", "b.i2p"}, nil, health, 5, 1024)

	_, _, err := chain.Try(context.Background(), "http://reg.i2p", time.Second)
	if !errors.Is(err, ErrAllExhausted) {
		t.Errorf("Try() error = %v, want ErrAllExhausted", err)
	}
}
