package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/model"
)

func TestZipAndChecksumArchivesStagedFiles(t *testing.T) {
	store, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	stageDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(stageDir, "a.dcm"), []byte("contents-a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stageDir, "b.dcm"), []byte("contents-b"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &Pipeline{store: store, stagingRoot: t.TempDir()}
	se := &model.Series{SeriesUID: "series-1"}

	exp, zipBytes, err := p.zipAndChecksum(se, stageDir)
	if err != nil {
		t.Fatal(err)
	}
	if exp.SeriesUID != "series-1" {
		t.Errorf("Export.SeriesUID = %q, want series-1", exp.SeriesUID)
	}
	if exp.TransferStatus != model.TransferPending {
		t.Errorf("Export.TransferStatus = %q, want PENDING", exp.TransferStatus)
	}
	if exp.ZipPath == "" {
		t.Error("Export.ZipPath must not be empty")
	}
	if len(zipBytes) == 0 {
		t.Error("zipAndChecksum must return non-empty archive bytes")
	}
	if exp.ZipSHA256 == "" {
		t.Error("Export.ZipSHA256 must not be empty")
	}

	if _, err := os.Stat(exp.ZipPath); err != nil {
		t.Errorf("zip file not written to disk: %v", err)
	}

	persisted, err := store.GetExport(exp.ID)
	if err != nil {
		t.Fatalf("Export row not persisted: %v", err)
	}
	if persisted.ZipSHA256 != exp.ZipSHA256 {
		t.Error("persisted Export row checksum mismatch")
	}
}

func TestZipAndChecksumEmptyStageDir(t *testing.T) {
	store, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	stageDir := t.TempDir()
	p := &Pipeline{store: store, stagingRoot: t.TempDir()}
	se := &model.Series{SeriesUID: "series-empty"}

	exp, _, err := p.zipAndChecksum(se, stageDir)
	if err != nil {
		t.Fatal(err)
	}
	if exp.ZipSHA256 == "" {
		t.Error("even an empty archive must produce a checksum")
	}
}
