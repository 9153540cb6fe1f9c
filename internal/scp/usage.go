package scp

import (
	"os"
	"sync"
	"time"

	"github.com/karrick/godirwalk"

	"github.com/draw-health/gateway/internal/cos"
)

// cacheFreshness is the 30s window spec.md §4.10 gives readers before a
// rescan is warranted.
const cacheFreshness = 30 * time.Second

// rescanInterval is the ≤5min upper bound spec.md §4.10 places on letting
// the incrementally-maintained cache drift from the real filesystem size.
const rescanInterval = 5 * time.Minute

// storageUsageCache is the single process-wide cached byte count spec.md
// §4.10 describes: readers prefer it when fresh, C-STORE increments it
// atomically on every successful write, and a periodic full rescan
// corrects drift without ever walking the filesystem on the hot path.
type storageUsageCache struct {
	mu          sync.Mutex
	bytes       int64
	updatedAt   time.Time
	lastRescan  time.Time
}

func newStorageUsageCache() *storageUsageCache {
	return &storageUsageCache{}
}

// bytesUsed returns the cached value, rescanning root first if the cache
// is stale (older than cacheFreshness) or has never been populated.
func (c *storageUsageCache) bytesUsed(root string, now time.Time) (int64, error) {
	c.mu.Lock()
	fresh := !c.updatedAt.IsZero() && now.Sub(c.updatedAt) < cacheFreshness
	b := c.bytes
	c.mu.Unlock()
	if fresh {
		return b, nil
	}
	return c.rescan(root, now)
}

// rescan walks root and replaces the cached value unconditionally - used
// both by bytesUsed on a stale cache and by the periodic drift-correction
// pass described in spec.md §4.10.
func (c *storageUsageCache) rescan(root string, now time.Time) (int64, error) {
	var total int64
	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			info, err := os.Lstat(path)
			if err != nil {
				return nil // soft error, keep walking
			}
			total += info.Size()
			return nil
		},
		ErrorCallback: func(_ string, _ error) godirwalk.ErrorAction { return godirwalk.SkipNode },
		Unsorted:      true,
	})
	if err != nil {
		return 0, cos.Wrap(cos.StorageExhausted, root, err, "rescan storage usage")
	}
	c.mu.Lock()
	c.bytes = total
	c.updatedAt = now
	c.lastRescan = now
	c.mu.Unlock()
	return total, nil
}

// addBytes is the hot-path increment a successful C-STORE performs: no
// filesystem access, just an atomic add and cache-timestamp bump so the
// next reader within cacheFreshness sees the new total.
func (c *storageUsageCache) addBytes(n int64, now time.Time) {
	c.mu.Lock()
	c.bytes += n
	c.updatedAt = now
	c.mu.Unlock()
}

// needsRescan reports whether rescanInterval has elapsed since the last
// full walk, for a caller driving the periodic drift-correction pass.
func (c *storageUsageCache) needsRescan(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRescan.IsZero() || now.Sub(c.lastRescan) >= rescanInterval
}
