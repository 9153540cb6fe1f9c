// Package dicomvr implements spec.md §4.1: per-VR literal format checks and
// the operator/VR compatibility tables the rule engine evaluates against.
//
// Following the teacher's table-of-functions idiom (see the per-field
// validator table in cmn/config.go), every VR gets a named validator
// function in a map rather than a type switch, and every operator a named
// comparator closure in a second map. Both tables are built once at
// package init and never mutated, so Validate and Compare are safe for
// concurrent use without locking.
package dicomvr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/draw-health/gateway/internal/cos"
)

var (
	errFormat    = errors.New("value does not match the VR's format")
	errBackslash = errors.New(`value contains a literal backslash`)
	errControl   = errors.New("value contains a control character")
)

func errTooLong(max int) error {
	return fmt.Errorf("value exceeds max length %d", max)
}

// Category groups VR codes for operator-compatibility purposes (spec.md
// §4.1 "VR categories").
type Category int

const (
	CategoryNumeric Category = iota
	CategoryString
	CategoryDatetime
	CategorySpecial
)

var numericVRs = map[string]bool{
	"FL": true, "FD": true, "SL": true, "SS": true,
	"UL": true, "US": true, "IS": true, "DS": true,
}

var stringVRs = map[string]bool{
	"AE": true, "CS": true, "LO": true, "LT": true, "PN": true,
	"SH": true, "ST": true, "UT": true, "UI": true,
}

var datetimeVRs = map[string]bool{
	"DA": true, "DT": true, "TM": true,
}

// CategoryOf classifies a VR code; anything not in the numeric/string/
// datetime sets is SPECIAL (spec.md §4.1).
func CategoryOf(vr string) Category {
	switch {
	case numericVRs[vr]:
		return CategoryNumeric
	case stringVRs[vr]:
		return CategoryString
	case datetimeVRs[vr]:
		return CategoryDatetime
	default:
		return CategorySpecial
	}
}

var (
	reAS = regexp.MustCompile(`^\d{3}[DWMY]$`)
	reAT = regexp.MustCompile(`^\([0-9A-Fa-f]{4},[0-9A-Fa-f]{4}\)$`)
	reCS = regexp.MustCompile(`^[A-Za-z0-9 _]*$`)
	reDS = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
	reDT = regexp.MustCompile(`^\d{4}(\d{2}(\d{2}(\d{2}(\d{2}(\d{2}(\.\d{1,6})?)?)?)?)?)?([+-]\d{4})?$`)
	reTM = regexp.MustCompile(`^\d{2}(\d{2}(\d{2}(\.\d{1,6})?)?)?$`)
)

// validators is the per-VR literal format check table (spec.md §4.1).
var validators = map[string]func(string) error{
	"AE": func(v string) error { return checkLen(v, 16, noBackslashOrControl) },
	"AS": func(v string) error { return checkMatch(v, reAS) },
	"AT": func(v string) error { return checkMatch(v, reAT) },
	"CS": func(v string) error { return checkLenMatch(v, 16, reCS) },
	"DA": validateDA,
	"DS": func(v string) error { return checkLenMatch(v, 16, reDS) },
	"DT": func(v string) error { return checkLenMatch(v, 26, reDT) },
	"FL": func(v string) error { return validateFloat(v, 3.4e38) },
	"FD": func(v string) error { return validateFloat(v, 0) },
	"IS": validateIS,
	"LO": func(v string) error { return checkLen(v, 64, noBackslash) },
	"LT": func(v string) error { return checkLen(v, 10240, nil) },
	"PN": validatePN,
	"SH": func(v string) error { return checkLen(v, 16, noBackslash) },
	"SL": func(v string) error { return validateSignedBits(v, 32) },
	"SS": func(v string) error { return validateSignedBits(v, 16) },
	"ST": func(v string) error { return checkLen(v, 1024, nil) },
	"TM": func(v string) error { return checkLenMatch(v, 16, reTM) },
	"UI": validateUI,
	"UL": func(v string) error { return validateUnsignedBits(v, 32) },
	"US": func(v string) error { return validateUnsignedBits(v, 16) },
	"UT": func(v string) error { return checkLen(v, 1<<32-2, nil) },
}

// Validate runs the per-VR literal format check for vr against value.
// Unknown VRs fall back to the ≤1024-byte-length-only rule (spec.md §4.1
// "Unknown VRs: ≤1024").
func Validate(vr, value string) error {
	if fn, ok := validators[vr]; ok {
		return fn(value)
	}
	return checkLen(value, 1024, nil)
}

func checkLen(v string, max int, extra func(string) error) error {
	if len(v) > max {
		return cos.NewError(cos.ValidationError, subjectOf(v), errTooLong(max))
	}
	if extra != nil {
		return extra(v)
	}
	return nil
}

func checkMatch(v string, re *regexp.Regexp) error {
	if !re.MatchString(v) {
		return cos.NewError(cos.ValidationError, subjectOf(v), errFormat)
	}
	return nil
}

func checkLenMatch(v string, max int, re *regexp.Regexp) error {
	if len(v) > max {
		return cos.NewError(cos.ValidationError, subjectOf(v), errTooLong(max))
	}
	return checkMatch(v, re)
}

func noBackslash(v string) error {
	if strings.Contains(v, `\`) {
		return cos.NewError(cos.ValidationError, subjectOf(v), errBackslash)
	}
	return nil
}

func noBackslashOrControl(v string) error {
	if err := noBackslash(v); err != nil {
		return err
	}
	for _, r := range v {
		if r < 0x20 && r != 0x09 {
			return cos.NewError(cos.ValidationError, subjectOf(v), errControl)
		}
	}
	return nil
}

func validateDA(v string) error {
	if len(v) != 8 {
		return cos.NewError(cos.ValidationError, subjectOf(v), errFormat)
	}
	if _, err := time.Parse("20060102", v); err != nil {
		return cos.NewError(cos.ValidationError, subjectOf(v), errFormat)
	}
	return nil
}

func validateFloat(v string, maxAbs float64) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return cos.NewError(cos.ValidationError, subjectOf(v), errFormat)
	}
	if maxAbs > 0 {
		abs := f
		if abs < 0 {
			abs = -abs
		}
		if abs > maxAbs {
			return cos.NewError(cos.ValidationError, subjectOf(v), errFormat)
		}
	}
	return nil
}

func validateIS(v string) error {
	if len(v) > 12 {
		return cos.NewError(cos.ValidationError, subjectOf(v), errTooLong(12))
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < -(1<<31) || n > (1<<31-1) {
		return cos.NewError(cos.ValidationError, subjectOf(v), errFormat)
	}
	return nil
}

func validateSignedBits(v string, bits int) error {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return cos.NewError(cos.ValidationError, subjectOf(v), errFormat)
	}
	lo := -(int64(1) << (bits - 1))
	hi := int64(1)<<(bits-1) - 1
	if n < lo || n > hi {
		return cos.NewError(cos.ValidationError, subjectOf(v), errFormat)
	}
	return nil
}

func validateUnsignedBits(v string, bits int) error {
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return cos.NewError(cos.ValidationError, subjectOf(v), errFormat)
	}
	if n > uint64(1)<<bits-1 {
		return cos.NewError(cos.ValidationError, subjectOf(v), errFormat)
	}
	return nil
}

func validatePN(v string) error {
	for _, group := range strings.Split(v, "=") {
		if len(group) > 64 {
			return cos.NewError(cos.ValidationError, subjectOf(v), errTooLong(64))
		}
		if strings.Contains(group, `\`) {
			return cos.NewError(cos.ValidationError, subjectOf(v), errBackslash)
		}
	}
	return nil
}

func validateUI(v string) error {
	if len(v) > 64 {
		return cos.NewError(cos.ValidationError, subjectOf(v), errTooLong(64))
	}
	for _, part := range strings.Split(v, ".") {
		if part == "" {
			return cos.NewError(cos.ValidationError, subjectOf(v), errFormat)
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return cos.NewError(cos.ValidationError, subjectOf(v), errFormat)
			}
		}
	}
	return nil
}

func subjectOf(v string) string {
	if len(v) > 32 {
		return v[:32] + "..."
	}
	return v
}
