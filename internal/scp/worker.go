package scp

import (
	"time"

	"github.com/draw-health/gateway/internal/cos"
)

// workerQueueDepth bounds the background writer pool described in
// spec.md §5: "Publishing to this pool MUST be non-blocking; if the
// queue is full the message is dropped with a warning rather than
// stalling DICOM transfers."
const workerQueueDepth = 4096

const (
	maxRetries   = 3
	retryBackoff = 50 * time.Millisecond
)

// backgroundWriter absorbs transaction-log inserts and the catalog upsert
// for each stored instance off the association hot path, grounded on the teacher's hk housekeeping goroutines and the
// notifications listener's async Callback dispatch
// (notifications/listener.go).
type backgroundWriter struct {
	jobs chan func() error
	done chan struct{}
}

func newBackgroundWriter(workers int) *backgroundWriter {
	w := &backgroundWriter{
		jobs: make(chan func() error, workerQueueDepth),
		done: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go w.loop()
	}
	return w
}

func (w *backgroundWriter) loop() {
	for {
		select {
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			runWithRetry(job)
		case <-w.done:
			return
		}
	}
}

func runWithRetry(job func() error) {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = job(); err == nil {
			return
		}
		time.Sleep(retryBackoff)
	}
	cos.Warningf("scp: background job failed after %d attempts: %v", maxRetries+1, err)
}

// submit enqueues job without blocking; if the queue is full the job is
// dropped (with a warning) rather than stalling the calling association.
func (w *backgroundWriter) submit(job func() error) {
	select {
	case w.jobs <- job:
	default:
		cos.Warningf("scp: background queue full, dropping job")
	}
}

func (w *backgroundWriter) stop() {
	close(w.done)
}
