package chain

import (
	"testing"

	"github.com/draw-health/gateway/internal/dicomio"
	"github.com/draw-health/gateway/internal/model"
	"github.com/draw-health/gateway/internal/rules"
)

func TestRepresentativeInstancePicksFirstByFilePath(t *testing.T) {
	instances := []*model.Instance{
		{SOPInstanceUID: "b", FilePath: "/data/b.dcm"},
		{SOPInstanceUID: "a", FilePath: "/data/a.dcm"},
		{SOPInstanceUID: "c", FilePath: "/data/c.dcm"},
	}
	got := representativeInstance(instances)
	if got.SOPInstanceUID != "a" {
		t.Errorf("representativeInstance() = %q, want a (lowest file path)", got.SOPInstanceUID)
	}
}

func TestRepresentativeInstanceEmpty(t *testing.T) {
	if got := representativeInstance(nil); got != nil {
		t.Errorf("representativeInstance(nil) = %v, want nil", got)
	}
}

func TestBuildTagMapDualKeysKnownTags(t *testing.T) {
	ds := dicomio.NewDataset()
	ds.Set(dicomio.TagPatientID, "LO", "PAT1")
	ds.Set(dicomio.Tag{Group: 0x0009, Element: 0x0001}, "LO", "private-value")

	tm := buildTagMap(ds)

	if tv, ok := tm["PatientID"]; !ok || tv.Value != "PAT1" {
		t.Errorf("tag map missing canonical-name key for PatientID, got %+v", tm)
	}
	if tv, ok := tm["(0010,0020)"]; !ok || tv.Value != "PAT1" {
		t.Errorf("tag map missing (gggg,eeee) key for PatientID, got %+v", tm)
	}
	if tv, ok := tm["(0009,0001)"]; !ok || tv.Value != "private-value" {
		t.Errorf("tag map missing (gggg,eeee) key for an unnamed private tag, got %+v", tm)
	}
}

func TestTemplatesForCollectsKnownGroups(t *testing.T) {
	groups := []rules.GroupInput{
		{Group: &model.RuleGroup{ID: "g1", TemplateID: "tpl-1"}},
		{Group: &model.RuleGroup{ID: "g2", TemplateID: "tpl-2"}},
		{Group: &model.RuleGroup{ID: "g3", TemplateID: ""}},
	}
	got := templatesFor(groups, []string{"g1", "g3", "g2"})
	want := []string{"tpl-1", "tpl-2"}
	if len(got) != len(want) {
		t.Fatalf("templatesFor() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("templatesFor()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
