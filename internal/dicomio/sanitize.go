package dicomio

import (
	"regexp"
	"strings"
)

var reUnsafeFilenameChar = regexp.MustCompile(`[^A-Za-z0-9_-]`)
var reRepeatedUnderscore = regexp.MustCompile(`_+`)

// SanitizePatientID replaces any character outside [A-Za-z0-9_-] with "_",
// collapses runs of "_", strips leading/trailing "_", and falls back to
// "UNKNOWN" if nothing is left - spec.md §4.8 step 4's exact recipe, used
// by the reidentify pipeline (RT Structure filenames) and the SCP's storage
// layouts (patient-id directory names).
func SanitizePatientID(id string) string {
	s := reUnsafeFilenameChar.ReplaceAllString(id, "_")
	s = reRepeatedUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "UNKNOWN"
	}
	return s
}
