package scp

import (
	"testing"

	"github.com/draw-health/gateway/internal/model"
)

func TestMatchFieldEmptyPatternMatchesEverything(t *testing.T) {
	if !matchField("", "anything") {
		t.Error("empty pattern should match universally")
	}
}

func TestMatchFieldWildcard(t *testing.T) {
	if !matchField("SM?TH", "SMITH") {
		t.Error("? should match a single character")
	}
	if matchField("SM?TH", "SMYTHE") {
		t.Error("? should not match more than one character")
	}
}

func TestMatchFieldDateRange(t *testing.T) {
	cases := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"20260101-20261231", "20260615", true},
		{"20260101-20261231", "20250101", false},
		{"20260101-", "20300101", true},
		{"-20260101", "20200101", true},
		{"-20260101", "20300101", false},
	}
	for _, tc := range cases {
		if got := matchField(tc.pattern, tc.value); got != tc.want {
			t.Errorf("matchField(%q, %q) = %v, want %v", tc.pattern, tc.value, got, tc.want)
		}
	}
}

func TestMatchFieldExact(t *testing.T) {
	if !matchField("1.2.3", "1.2.3") {
		t.Error("identical UIDs should match")
	}
	if matchField("1.2.3", "1.2.4") {
		t.Error("different UIDs should not match")
	}
}

func TestHandleFindCapsAtMaxQueryResults(t *testing.T) {
	store := openTestStore(t)
	cfg := testSCPConfig()
	cfg.MaxQueryResults = 2
	s := &Server{store: store, scpCfg: cfg}

	for i := 0; i < 5; i++ {
		id := string(rune('A' + i))
		if err := store.PutPatient(&model.Patient{PatientID: id}); err != nil {
			t.Fatal(err)
		}
	}

	results, err := s.handleFind(&Command{Identifier: map[string]string{"QueryRetrieveLevel": "PATIENT"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) > cfg.MaxQueryResults {
		t.Errorf("handleFind() returned %d results, want at most %d", len(results), cfg.MaxQueryResults)
	}
}
