package comparison

import (
	"testing"

	"github.com/draw-health/gateway/internal/catalog"
)

func openTestStore(t *testing.T) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Every call must fail fast on an unconfigured catalog rather than attempt
// a network round trip - mirroring remoteapi.Client's EnsureToken
// short-circuit on an empty base_url.
func TestCallsFailFastWithoutComparisonBaseURL(t *testing.T) {
	store := openTestStore(t)
	client := NewClient(store)

	if _, err := client.Upload("series-1", []byte("not a real dicom")); err == nil {
		t.Error("Upload() with no comparison_base_url configured, want an error")
	}
	if _, err := client.Compute("cmp-1"); err == nil {
		t.Error("Compute() with no comparison_base_url configured, want an error")
	}
	if _, err := client.BulkComputeAsync([]string{"cmp-1", "cmp-2"}); err == nil {
		t.Error("BulkComputeAsync() with no comparison_base_url configured, want an error")
	}
	if _, err := client.BulkComputeStatus("task-1"); err == nil {
		t.Error("BulkComputeStatus() with no comparison_base_url configured, want an error")
	}
}
