package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"io/ioutil"
	"testing"
	"time"

	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/model"
)

func openTestStore(t *testing.T) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

type fakeBackend struct {
	uploadedKey string
	uploadedRaw []byte
	failWith    error
}

func (f *fakeBackend) Provider() model.ArchivalProvider { return model.ArchivalProviderS3 }

func (f *fakeBackend) Upload(_ context.Context, key string, r io.Reader, _ int64) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.uploadedKey = key
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return err
	}
	f.uploadedRaw = data
	return nil
}

func TestObjectKeyShape(t *testing.T) {
	got := objectKey("PAT1", "SER1", "export.zip.gz")
	want := "PAT1/SER1/export.zip.gz"
	if got != want {
		t.Errorf("objectKey = %q, want %q", got, want)
	}
}

func TestNewBackendDisabledReturnsNil(t *testing.T) {
	b, err := NewBackend(&model.ArchivalConfiguration{Enabled: false})
	if err != nil || b != nil {
		t.Fatalf("disabled config should yield (nil, nil), got (%v, %v)", b, err)
	}
}

func TestNewBackendUnknownProviderErrors(t *testing.T) {
	_, err := NewBackend(&model.ArchivalConfiguration{Enabled: true, Provider: "nope"})
	if err == nil {
		t.Fatal("expected an error for an unrecognized provider")
	}
}

func TestUploaderGzipsAndUploadsExport(t *testing.T) {
	store := openTestStore(t)
	fb := &fakeBackend{}
	u := NewUploader(store, fb)

	se := &model.Series{SeriesUID: "SER1"}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	payload := []byte("fake zip bytes")
	u.UploadExport(context.Background(), se, "PAT1", payload, now)

	if fb.uploadedKey != "PAT1/SER1/export.zip.gz" {
		t.Fatalf("uploaded key = %q", fb.uploadedKey)
	}
	gr, err := gzip.NewReader(bytes.NewReader(fb.uploadedRaw))
	if err != nil {
		t.Fatalf("uploaded bytes are not valid gzip: %v", err)
	}
	decoded, err := ioutil.ReadAll(gr)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Errorf("round-tripped payload mismatch: got %q want %q", decoded, payload)
	}
}

func TestUploaderNilBackendIsNoop(t *testing.T) {
	store := openTestStore(t)
	u := NewUploader(store, nil)
	se := &model.Series{SeriesUID: "SER1"}
	u.UploadExport(context.Background(), se, "PAT1", []byte("x"), time.Now())
	// no panic, nothing uploaded - success is simply "didn't blow up".
}

func TestUploaderLogsFailureTransaction(t *testing.T) {
	store := openTestStore(t)
	fb := &fakeBackend{failWith: io.ErrClosedPipe}
	u := NewUploader(store, fb)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	u.UploadReidentified(context.Background(), "PAT1", "SER1", []byte("x"), now)

	all, err := store.ListTransactions()
	if err != nil {
		t.Fatal(err)
	}
	var archiveTxs []*model.TransactionLog
	for _, tx := range all {
		if tx.Type == model.TxArchive {
			archiveTxs = append(archiveTxs, tx)
		}
	}
	if len(archiveTxs) != 1 || archiveTxs[0].Status != model.TxFailure {
		t.Fatalf("expected one failed TxArchive row, got %+v", archiveTxs)
	}
}
