package manager

import (
	"math"
	"sync"
	"time"
)

// workerHealth is an observational adaptation of engine.PageHandle's
// error-score tracking: the same RecordSuccess/RecordFailure scoring and
// ShouldRetire thresholds, but a worker here is a permanent goroutine
// slot in a fixed-size pool, not a pooled resource the manager destroys
// and recreates. ShouldRetire only flags a worker as unhealthy for
// logging/metrics; the manager keeps it running regardless.
type workerHealth struct {
	id       int
	mu       sync.Mutex
	errScore float64
	useCount int
	created  time.Time
}

func newWorkerHealth(id int) *workerHealth {
	return &workerHealth{id: id, created: time.Now()}
}

// RecordSuccess decreases the error score (min 0), mirroring
// engine.PageHandle.RecordSuccess.
func (h *workerHealth) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
}

// RecordFailure increases the error score, mirroring
// engine.PageHandle.RecordFailure.
func (h *workerHealth) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore += 1.0
}

// ShouldRetire reports whether this worker's error score or dispatch
// count crossed engine.PageHandle's retirement thresholds. The manager
// surfaces this as a log line, not an actual goroutine replacement.
func (h *workerHealth) ShouldRetire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.errScore >= 3.0 {
		return true
	}
	if h.useCount >= 500 {
		return true
	}
	return false
}

func (h *workerHealth) snapshot() (errScore float64, useCount int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errScore, h.useCount
}
