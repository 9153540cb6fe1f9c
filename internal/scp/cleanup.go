package scp

import (
	"container/heap"
	"os"
	"path/filepath"
	"time"

	"github.com/karrick/godirwalk"

	"github.com/draw-health/gateway/internal/cos"
	"github.com/draw-health/gateway/internal/model"
)

// fileEntry is one candidate for eviction: a stored .dcm file and its
// modification time.
type fileEntry struct {
	path  string
	mtime time.Time
	size  int64
}

// oldestFirstHeap keeps fileEntry sorted with the oldest mtime on top,
// generalizing the teacher's lru.minHeap (lru/lru.go) from "evict least-
// recently-accessed objects" to "delete .dcm files older than
// retention_days, oldest mtime first, until target bytes are freed."
type oldestFirstHeap []fileEntry

func (h oldestFirstHeap) Len() int            { return len(h) }
func (h oldestFirstHeap) Less(i, j int) bool  { return h[i].mtime.Before(h[j].mtime) }
func (h oldestFirstHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *oldestFirstHeap) Push(x interface{}) { *h = append(*h, x.(fileEntry)) }
func (h *oldestFirstHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// CleanupResult summarizes one cleanup pass, logged as a single
// TxCleanup transaction row per spec.md §6.
type CleanupResult struct {
	FilesDeleted   int
	BytesFreed     int64
	DirsRemoved    int
}

// runCleanup deletes .dcm files older than cfg.RetentionDays, oldest
// mtime first, until either retention alone is satisfied or targetFree
// additional bytes have been reclaimed - whichever condition the caller
// cares about; C-STORE callers pass a non-zero targetFree to push usage
// back under the configured limit, a scheduled sweep passes 0 to apply
// retention alone.
func runCleanup(cfg *model.SCPConfiguration, targetFree int64, now time.Time) (*CleanupResult, error) {
	cutoff := now.AddDate(0, 0, -cfg.RetentionDays)

	h := &oldestFirstHeap{}
	err := godirwalk.Walk(cfg.StorageRoot, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() || filepath.Ext(path) != ".dcm" {
				return nil
			}
			info, err := os.Lstat(path)
			if err != nil {
				return nil
			}
			if info.ModTime().Before(cutoff) {
				heap.Push(h, fileEntry{path: path, mtime: info.ModTime(), size: info.Size()})
			}
			return nil
		},
		ErrorCallback: func(_ string, _ error) godirwalk.ErrorAction { return godirwalk.SkipNode },
		Unsorted:      true,
	})
	if err != nil {
		return nil, cos.Wrap(cos.StorageExhausted, cfg.StorageRoot, err, "scan storage root for cleanup")
	}

	res := &CleanupResult{}
	for h.Len() > 0 && (targetFree <= 0 || res.BytesFreed < targetFree) {
		entry := heap.Pop(h).(fileEntry)
		if err := cos.RemoveFile(entry.path); err != nil {
			cos.Warningf("cleanup: %s: %v", entry.path, err)
			continue
		}
		res.FilesDeleted++
		res.BytesFreed += entry.size
	}

	res.DirsRemoved = removeEmptyDirs(cfg.StorageRoot)
	return res, nil
}

// removeEmptyDirs prunes directories left behind by cleanup, walking
// bottom-up so parents become eligible after their children are removed.
func removeEmptyDirs(root string) int {
	var dirs []string
	_ = godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() && path != root {
				dirs = append(dirs, path)
			}
			return nil
		},
		ErrorCallback: func(_ string, _ error) godirwalk.ErrorAction { return godirwalk.SkipNode },
		Unsorted:      true,
	})

	removed := 0
	// Reverse walk order: the walk visits a directory before its children,
	// so children are pruned before their parents are reconsidered in the
	// same pass.
	for i := len(dirs) - 1; i >= 0; i-- {
		if isEmptyDir(dirs[i]) {
			if os.Remove(dirs[i]) == nil {
				removed++
			}
		}
	}
	return removed
}

func isEmptyDir(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	return err != nil
}
