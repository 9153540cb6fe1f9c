package scp

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStorageUsageCacheRescanSumsFileSizes(t *testing.T) {
	dir, err := ioutil.TempDir("", "scp-usage")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	if err := ioutil.WriteFile(filepath.Join(dir, "a.dcm"), make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir, "b.dcm"), make([]byte, 250), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newStorageUsageCache()
	now := time.Now()
	got, err := c.bytesUsed(dir, now)
	if err != nil {
		t.Fatal(err)
	}
	if got != 350 {
		t.Errorf("bytesUsed() = %d, want 350", got)
	}
}

func TestStorageUsageCacheServesFreshValueWithoutRescan(t *testing.T) {
	c := newStorageUsageCache()
	now := time.Now()
	c.addBytes(1000, now)

	// A bogus root would make rescan fail; bytesUsed must not call it
	// while the cache is still fresh.
	got, err := c.bytesUsed("/does/not/exist", now.Add(1*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if got != 1000 {
		t.Errorf("bytesUsed() = %d, want the cached 1000 without rescanning", got)
	}
}

func TestStorageUsageCacheNeedsRescan(t *testing.T) {
	c := newStorageUsageCache()
	now := time.Now()
	if !c.needsRescan(now) {
		t.Error("needsRescan() = false on a never-scanned cache, want true")
	}
	if _, err := c.rescan(os.TempDir(), now); err != nil {
		t.Fatal(err)
	}
	if c.needsRescan(now.Add(1 * time.Minute)) {
		t.Error("needsRescan() = true one minute after a rescan, want false (below the 5-minute interval)")
	}
	if !c.needsRescan(now.Add(6 * time.Minute)) {
		t.Error("needsRescan() = false six minutes after a rescan, want true")
	}
}
