package dicomio

import "testing"

func TestSanitizePatientID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"12345", "12345"},
		{"John Doe", "John_Doe"},
		{"a//b\\\\c", "a_b_c"},
		{"___", "UNKNOWN"},
		{"", "UNKNOWN"},
		{"_leading_and_trailing_", "leading_and_trailing"},
		{"MR#2024-01", "MR_2024-01"},
	}
	for _, tc := range tests {
		if got := SanitizePatientID(tc.in); got != tc.want {
			t.Errorf("SanitizePatientID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
