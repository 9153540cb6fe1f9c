package catalog_test

import (
	"testing"

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

func TestPatientRoundTrip(t *testing.T) {
	store := openTestStore(t)
	p := &model.Patient{PatientID: "P1", Name: "Doe^Jane", DOB: "19700101"}
	if err := store.PutPatient(p); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetPatient("P1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != p.Name {
		t.Fatalf("got name %q, want %q", got.Name, p.Name)
	}

	if _, err := store.GetPatient("missing"); err == nil {
		t.Fatal("expected ErrNotFound for missing patient")
	}
}

func TestListSeriesByStatus(t *testing.T) {
	store := openTestStore(t)
	series := []*model.Series{
		{SeriesUID: "1", StudyUID: "s", ProcessingStatus: model.StatusUnprocessed},
		{SeriesUID: "2", StudyUID: "s", ProcessingStatus: model.StatusUnprocessed},
		{SeriesUID: "3", StudyUID: "s", ProcessingStatus: model.StatusRuleMatched},
	}
	for _, se := range series {
		if err := store.PutSeries(se); err != nil {
			t.Fatal(err)
		}
	}

	unprocessed, err := store.ListSeriesByStatus(model.StatusUnprocessed)
	if err != nil {
		t.Fatal(err)
	}
	if len(unprocessed) != 2 {
		t.Fatalf("got %d unprocessed series, want 2", len(unprocessed))
	}

	matched, err := store.ListSeriesByStatus(model.StatusRuleMatched)
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 1 || matched[0].SeriesUID != "3" {
		t.Fatalf("got %+v, want single series 3", matched)
	}
}

func TestSCPConfigurationDefaultsAndExists(t *testing.T) {
	store := openTestStore(t)

	exists, err := store.SCPConfigurationExists()
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("expected SCPConfigurationExists to be false before any row is written")
	}

	cfg, err := store.GetSCPConfiguration()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AETitle == "" {
		t.Fatal("expected GetSCPConfiguration to fill in a default AETitle even with no row")
	}

	if err := store.PutSCPConfiguration(cfg); err != nil {
		t.Fatal(err)
	}
	exists, err = store.SCPConfigurationExists()
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("expected SCPConfigurationExists to be true after PutSCPConfiguration")
	}
}

func TestArchivalConfigurationDefaultsToDisabled(t *testing.T) {
	store := openTestStore(t)

	cfg, err := store.GetArchivalConfiguration()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Enabled {
		t.Fatal("expected a fresh catalog's archival configuration to default to disabled")
	}

	cfg.Enabled = true
	cfg.Provider = model.ArchivalProviderS3
	cfg.S3Bucket = "drawbucket"
	if err := store.PutArchivalConfiguration(cfg); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetArchivalConfiguration()
	if err != nil {
		t.Fatal(err)
	}
	if !got.Enabled || got.Provider != model.ArchivalProviderS3 || got.S3Bucket != "drawbucket" {
		t.Fatalf("got %+v, want enabled s3 backend for drawbucket", got)
	}
}

func TestAppendTransactionAndList(t *testing.T) {
	store := openTestStore(t)

	if err := store.AppendTransaction(&model.TransactionLog{ID: "t1", Type: model.TxCStore, Status: model.TxSuccess}); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendTransaction(&model.TransactionLog{ID: "t2", Type: model.TxArchive, Status: model.TxFailure}); err != nil {
		t.Fatal(err)
	}

	txs, err := store.ListTransactions()
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txs))
	}
}

func TestGetServiceStatusDefaultsWhenUnset(t *testing.T) {
	store := openTestStore(t)

	st, err := store.GetServiceStatus()
	if err != nil {
		t.Fatal(err)
	}
	if st.ID != 1 || st.IsRunning {
		t.Fatalf("got %+v, want a fresh default status row", st)
	}

	st.IsRunning = true
	st.PID = 4242
	if err := store.PutServiceStatus(st); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetServiceStatus()
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsRunning || got.PID != 4242 {
		t.Fatalf("got %+v, want IsRunning=true PID=4242", got)
	}
}

func TestComparisonResultRoundTripAndListBySeries(t *testing.T) {
	store := openTestStore(t)

	a := &model.ComparisonResult{ID: "cmp-1", SeriesUID: "s1", Status: model.ComparisonPending}
	b := &model.ComparisonResult{ID: "cmp-2", SeriesUID: "s1", Status: model.ComparisonComputed, Metrics: map[string]float64{"dice": 0.91}}
	c := &model.ComparisonResult{ID: "cmp-3", SeriesUID: "s2", Status: model.ComparisonPending}
	for _, cr := range []*model.ComparisonResult{a, b, c} {
		if err := store.PutComparisonResult(cr); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.GetComparisonResult("cmp-2")
	if err != nil {
		t.Fatal(err)
	}
	if got.Metrics["dice"] != 0.91 {
		t.Fatalf("got metrics %+v, want dice=0.91", got.Metrics)
	}

	bySeries, err := store.ListComparisonResultsBySeries("s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(bySeries) != 2 {
		t.Fatalf("ListComparisonResultsBySeries(s1) returned %d rows, want 2", len(bySeries))
	}
}
