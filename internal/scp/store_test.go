package scp

import (
	"strings"
	"testing"
	"time"

	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/dicomio"
	"github.com/draw-health/gateway/internal/model"
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

func TestNeedsDecode(t *testing.T) {
	cases := []struct {
		name string
		cfg  *model.SCPConfiguration
		want bool
	}{
		{"flat, sop_uid, no validation", &model.SCPConfiguration{StorageLayout: model.LayoutFlat, FilenameConvention: model.FilenameSOPUID}, false},
		{"flat with validation on", &model.SCPConfiguration{StorageLayout: model.LayoutFlat, ValidateOnReceive: true}, true},
		{"by_patient layout", &model.SCPConfiguration{StorageLayout: model.LayoutByPatient}, true},
		{"instance_number filename", &model.SCPConfiguration{StorageLayout: model.LayoutFlat, FilenameConvention: model.FilenameInstanceNumber}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := needsDecode(tc.cfg); got != tc.want {
				t.Errorf("needsDecode() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDestinationFilenameConventions(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	cfg := &model.SCPConfiguration{FilenameConvention: model.FilenameInstanceNumber}
	if got := destinationFilename(cfg, nil, now, 7); got != "0007.dcm" {
		t.Errorf("destinationFilename() = %q, want 0007.dcm", got)
	}

	cfg.FilenameConvention = model.FilenameTimestamp
	if got := destinationFilename(cfg, nil, now, 0); !strings.HasPrefix(got, "20260731_100000") {
		t.Errorf("destinationFilename() = %q, want a timestamp-prefixed name", got)
	}
}

func TestFirstMissingTagReportsEarliestGap(t *testing.T) {
	ds := dicomio.NewDataset()
	ds.Set(dicomio.TagPatientID, "LO", "PAT1")
	if got := firstMissingTag(ds); got == "" {
		t.Error("firstMissingTag() = \"\", want a missing tag since only PatientID is set")
	}
}
