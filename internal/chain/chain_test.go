package chain

import (
	"testing"
	"time"

	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/model"
	"github.com/draw-health/gateway/internal/pipeline/export"
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

func TestPendingImportSkipsAlreadyReidentified(t *testing.T) {
	imports := []*model.Import{
		{ID: "im1", SeriesUID: "s1", ReidentifiedPath: "/archive/RS_already_done.dcm"},
		{ID: "im2", SeriesUID: "s1"},
	}
	got := pendingImport(imports)
	if got == nil || got.ID != "im2" {
		t.Errorf("pendingImport() = %v, want im2 (the one not yet reidentified)", got)
	}
}

func TestPendingImportNoneLeft(t *testing.T) {
	imports := []*model.Import{{ID: "im1", SeriesUID: "s1", ReidentifiedPath: "/archive/RS_done.dcm"}}
	if got := pendingImport(imports); got != nil {
		t.Errorf("pendingImport() = %v, want nil when every import is already reidentified", got)
	}
}

func TestLastSampleAtEmpty(t *testing.T) {
	if got := lastSampleAt(nil); !got.IsZero() {
		t.Errorf("lastSampleAt(nil) = %v, want zero time", got)
	}
}

func TestLastSampleAtPicksMostRecent(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	samples := []*model.StatisticsSample{
		{ID: "a", CreatedAt: older},
		{ID: "b", CreatedAt: newer},
	}
	if got := lastSampleAt(samples); !got.Equal(newer) {
		t.Errorf("lastSampleAt() = %v, want %v", got, newer)
	}
}

func TestSeriesStatusCounts(t *testing.T) {
	store := openTestStore(t)
	o := &Orchestrator{store: store}

	series := []*model.Series{
		{SeriesUID: "s1", ProcessingStatus: model.StatusUnprocessed},
		{SeriesUID: "s2", ProcessingStatus: model.StatusUnprocessed},
		{SeriesUID: "s3", ProcessingStatus: model.StatusRuleMatched},
	}
	for _, se := range series {
		if err := store.PutSeries(se); err != nil {
			t.Fatal(err)
		}
	}

	counts, err := o.seriesStatusCounts()
	if err != nil {
		t.Fatal(err)
	}
	if counts["series_status_UNPROCESSED"] != 2 {
		t.Errorf("series_status_UNPROCESSED = %v, want 2", counts["series_status_UNPROCESSED"])
	}
	if counts["series_status_RULE_MATCHED"] != 1 {
		t.Errorf("series_status_RULE_MATCHED = %v, want 1", counts["series_status_RULE_MATCHED"])
	}
}

func TestMaybeRecordStatisticsSkipsWhenSampleFresh(t *testing.T) {
	store := openTestStore(t)
	o := &Orchestrator{store: store}

	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	if err := store.AppendStatSample(&model.StatisticsSample{ID: "fresh", ParameterName: "x", CreatedAt: now.Add(-5 * time.Minute)}); err != nil {
		t.Fatal(err)
	}
	if err := store.PutSeries(&model.Series{SeriesUID: "s1", ProcessingStatus: model.StatusUnprocessed}); err != nil {
		t.Fatal(err)
	}

	if err := o.maybeRecordStatistics(now); err != nil {
		t.Fatal(err)
	}

	samples, err := store.ListStatSamples()
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1 {
		t.Errorf("ListStatSamples() returned %d samples, want 1 (no new sample within the 30-minute window)", len(samples))
	}
}

func TestMaybeRecordStatisticsSamplesWhenStale(t *testing.T) {
	store := openTestStore(t)
	o := &Orchestrator{store: store}

	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	if err := store.AppendStatSample(&model.StatisticsSample{ID: "stale", ParameterName: "x", CreatedAt: now.Add(-45 * time.Minute)}); err != nil {
		t.Fatal(err)
	}
	if err := store.PutSeries(&model.Series{SeriesUID: "s1", ProcessingStatus: model.StatusUnprocessed}); err != nil {
		t.Fatal(err)
	}

	if err := o.maybeRecordStatistics(now); err != nil {
		t.Fatal(err)
	}

	samples, err := store.ListStatSamples()
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) <= 1 {
		t.Errorf("ListStatSamples() returned %d samples, want a new sample appended past the 30-minute window", len(samples))
	}
}

// TestRunExportIncludesMultipleRulesMatchedByDefault covers spec.md's open
// question on ambiguous matches: since remoteapi.Client.Upload carries no
// per-template parameter, the wire-level "export" is the same no matter how
// many templates matched, so a MULTIPLE_RULES_MATCHED series must export
// exactly like a RULE_MATCHED one unless the operator opted into
// disambiguation. Both candidates fail at the deidentify step (no
// instances), which is enough to prove runExport selected and attempted
// them: their status flips to DEIDENTIFICATION_FAILED instead of staying
// untouched.
func TestRunExportIncludesMultipleRulesMatchedByDefault(t *testing.T) {
	store := openTestStore(t)
	o := &Orchestrator{store: store, export: export.NewPipeline(store, nil, t.TempDir(), nil)}

	single := &model.Series{SeriesUID: "s1", ProcessingStatus: model.StatusRuleMatched}
	multi := &model.Series{SeriesUID: "s2", ProcessingStatus: model.StatusMultipleRulesMatched}
	for _, se := range []*model.Series{single, multi} {
		if err := store.PutSeries(se); err != nil {
			t.Fatal(err)
		}
	}

	if err := o.runExport(time.Now()); err != nil {
		t.Fatal(err)
	}

	for _, uid := range []string{"s1", "s2"} {
		got, err := store.GetSeries(uid)
		if err != nil {
			t.Fatal(err)
		}
		if got.ProcessingStatus != model.StatusDeidentificationFailed {
			t.Errorf("series %s status = %s, want %s (runExport should have attempted it)", uid, got.ProcessingStatus, model.StatusDeidentificationFailed)
		}
	}
}

// TestRunExportSkipsMultipleRulesMatchedWhenDisambiguationRequired covers
// the opt-in policy: with require_disambiguation set, MULTIPLE_RULES_MATCHED
// series are left untouched for `drawctl series choose-template`.
func TestRunExportSkipsMultipleRulesMatchedWhenDisambiguationRequired(t *testing.T) {
	store := openTestStore(t)
	o := &Orchestrator{store: store, export: export.NewPipeline(store, nil, t.TempDir(), nil)}

	cfg := model.DefaultSystemConfiguration()
	cfg.RequireDisambiguation = true
	if err := store.PutSystemConfiguration(cfg); err != nil {
		t.Fatal(err)
	}

	multi := &model.Series{SeriesUID: "s2", ProcessingStatus: model.StatusMultipleRulesMatched}
	if err := store.PutSeries(multi); err != nil {
		t.Fatal(err)
	}

	if err := o.runExport(time.Now()); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetSeries("s2")
	if err != nil {
		t.Fatal(err)
	}
	if got.ProcessingStatus != model.StatusMultipleRulesMatched {
		t.Errorf("series s2 status = %s, want unchanged %s", got.ProcessingStatus, model.StatusMultipleRulesMatched)
	}
}

func TestRunSkipsWhenLockHeld(t *testing.T) {
	store := openTestStore(t)
	o := &Orchestrator{store: store, hostname: "host-a"}

	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	if err := store.AcquireChainLock(lockName, "other-chain-id", "host-b", lockTTL, now); err != nil {
		t.Fatal(err)
	}

	// A nil scanner/export/poll/reident would panic if Run ever got past
	// the lock check, so a clean nil error here proves the early return.
	if err := o.Run(now); err != nil {
		t.Errorf("Run() = %v, want nil (lock held by another chain, should no-op)", err)
	}
}
