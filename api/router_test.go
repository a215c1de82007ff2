package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/use-agent/noctipede/config"
	"github.com/use-agent/noctipede/models"
	"github.com/use-agent/noctipede/probe"
	"github.com/use-agent/noctipede/readiness"
)

type stubProber struct{}

func (stubProber) ProbeTorSOCKS(ctx context.Context) probe.Verdict {
	return probe.Verdict{OK: true, Detail: "ok"}
}
func (stubProber) ProbeI2PHTTP(ctx context.Context) probe.Verdict {
	return probe.Verdict{OK: true, Detail: "ok"}
}
func (stubProber) ProbeI2PInternal(ctx context.Context, endpoint string) probe.Verdict {
	return probe.Verdict{OK: true, Detail: "ok"}
}

func TestRouter_ReadinessEndpoint(t *testing.T) {
	oracle := readiness.NewOracle(stubProber{}, readiness.Config{
		BootstrapDuration:     time.Minute,
		MinActiveI2P:          1,
		RequireI2PConjunction: false,
	}, nil)
	defer oracle.Close()

	cfg := &config.Config{Server: config.ServerConfig{Mode: "test"}}
	r := NewRouter(oracle, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/readiness", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var snap models.ReadinessSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestRouter_ReadinessEndpointsEndpoint(t *testing.T) {
	oracle := readiness.NewOracle(stubProber{}, readiness.Config{
		BootstrapDuration:     time.Minute,
		MinActiveI2P:          1,
		RequireI2PConjunction: false,
	}, nil)
	defer oracle.Close()

	cfg := &config.Config{Server: config.ServerConfig{Mode: "test"}}
	r := NewRouter(oracle, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/readiness/endpoints", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
