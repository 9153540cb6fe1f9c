package scp

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestBackgroundWriterRunsSubmittedJobs(t *testing.T) {
	w := newBackgroundWriter(2)
	defer w.stop()

	var mu sync.Mutex
	ran := 0
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		w.submit(func() error {
			mu.Lock()
			ran++
			mu.Unlock()
			wg.Done()
			return nil
		})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs did not run within timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	if ran != 3 {
		t.Errorf("ran = %d, want 3", ran)
	}
}

func TestBackgroundWriterDropsWhenQueueFull(t *testing.T) {
	// No workers draining: every submit either lands in the buffer or is
	// dropped once it fills, but submit itself must never block.
	w := &backgroundWriter{jobs: make(chan func() error, 1), done: make(chan struct{})}
	defer close(w.done)

	block := make(chan struct{})
	w.jobs <- func() error { <-block; return nil } // fills the one slot
	close(block)

	done := make(chan struct{})
	go func() {
		w.submit(func() error { return nil }) // must not block even though the queue is full
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("submit() blocked on a full queue instead of dropping the job")
	}
}

func TestRunWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	runWithRetry(func() error {
		attempts++
		return fmt.Errorf("always fails")
	})
	if attempts != maxRetries+1 {
		t.Errorf("attempts = %d, want %d", attempts, maxRetries+1)
	}
}
