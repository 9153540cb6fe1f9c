package dicomvr

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		vr      string
		value   string
		wantErr bool
	}{
		{"DA", "20240102", false},
		{"DA", "20241302", true}, // month 13
		{"DA", "2024010", true}, // too short
		{"CS", "ORIGINAL_PRIMARY", false},
		{"CS", "bad\\value", true},
		{"UI", "1.2.840.10008.5.1.4.1.1.481.3", false},
		{"UI", "1.2.abc", true},
		{"IS", "2147483647", false},
		{"IS", "2147483648", true}, // overflows 32-bit signed
		{"SS", "-32768", false},
		{"SS", "32768", true},
		{"DS", "3.14", false},
		{"DS", "abc", true},
		{"AE", "GATEWAY", false},
		{"AE", "this_ae_title_is_way_too_long", true},
		{"PN", "Doe^John", false},
		{"PN", "Doe\\John", true},
		// A component-group (delimited by "=") longer than 64 chars must be
		// rejected even when no individual "^"-separated component exceeds
		// 64 on its own.
		{"PN", strings.Repeat("A", 60) + "^" + strings.Repeat("B", 60), true},
		{"XX", "anything under 1024 chars", false}, // unknown VR
	}
	for _, tc := range tests {
		err := Validate(tc.vr, tc.value)
		if (err != nil) != tc.wantErr {
			t.Errorf("Validate(%q, %q) err=%v, wantErr=%v", tc.vr, tc.value, err, tc.wantErr)
		}
	}
}

func TestValidateIdempotent(t *testing.T) {
	cases := []struct{ vr, value string }{
		{"DA", "20240102"}, {"UI", "1.2.3"}, {"CS", "bad value"},
	}
	for _, c := range cases {
		first := Validate(c.vr, c.value)
		second := Validate(c.vr, c.value)
		if (first == nil) != (second == nil) {
			t.Errorf("Validate(%q,%q) not idempotent: %v vs %v", c.vr, c.value, first, second)
		}
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		vr   string
		want Category
	}{
		{"FL", CategoryNumeric}, {"DS", CategoryNumeric},
		{"CS", CategoryString}, {"UI", CategoryString},
		{"DA", CategoryDatetime}, {"TM", CategoryDatetime},
		{"AT", CategorySpecial}, {"SQ", CategorySpecial},
	}
	for _, tc := range tests {
		if got := CategoryOf(tc.vr); got != tc.want {
			t.Errorf("CategoryOf(%q) = %v, want %v", tc.vr, got, tc.want)
		}
	}
}
