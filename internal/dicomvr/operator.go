package dicomvr

import (
	"strconv"
	"strings"

	"github.com/draw-health/gateway/internal/model"
)

var numericOps = map[model.Operator]bool{
	model.OpEQ: true, model.OpNEQ: true, model.OpGT: true,
	model.OpLT: true, model.OpGTE: true, model.OpLTE: true,
}

var stringOps = map[model.Operator]bool{
	model.OpContainsCS: true, model.OpContainsCI: true,
	model.OpNContainsCS: true, model.OpNContainsCI: true,
	model.OpExactCI: true, model.OpNExactCI: true,
	model.OpEQ: true, model.OpNEQ: true,
}

// Compatible reports whether operator op may be used against a tag of the
// given VR, per spec.md §4.1's compatibility table:
//   - NUMERIC VRs accept NUMERIC operators only.
//   - STRING VRs accept STRING operators plus {EQ, NEQ}.
//   - DATETIME VRs accept both sets.
//   - SPECIAL VRs accept only {EQ, NEQ}.
func Compatible(vr string, op model.Operator) bool {
	switch CategoryOf(vr) {
	case CategoryNumeric:
		return numericOps[op]
	case CategoryString:
		return stringOps[op]
	case CategoryDatetime:
		return numericOps[op] || stringOps[op]
	default: // SPECIAL
		return op == model.OpEQ || op == model.OpNEQ
	}
}

// comparators is the operator -> comparator table (spec.md §4.1
// "Evaluation"). tagValue is empty string when the tag is absent from the
// instance; present is false in that case, and NEQ/EQ have a special rule
// for missing tags that the plain comparator body can't express, so those
// two are handled in Compare before falling through to this table.
var comparators = map[model.Operator]func(tagValue, literal string) bool{
	model.OpEQ:  func(a, b string) bool { return a == b },
	model.OpNEQ: func(a, b string) bool { return a != b },
	model.OpGT:  numericCompare(func(a, b float64) bool { return a > b }),
	model.OpLT:  numericCompare(func(a, b float64) bool { return a < b }),
	model.OpGTE: numericCompare(func(a, b float64) bool { return a >= b }),
	model.OpLTE: numericCompare(func(a, b float64) bool { return a <= b }),

	model.OpContainsCS:  func(a, b string) bool { return strings.Contains(a, b) },
	model.OpContainsCI:  func(a, b string) bool { return strings.Contains(strings.ToLower(a), strings.ToLower(b)) },
	model.OpNContainsCS: func(a, b string) bool { return !strings.Contains(a, b) },
	model.OpNContainsCI: func(a, b string) bool { return !strings.Contains(strings.ToLower(a), strings.ToLower(b)) },
	model.OpExactCI:     func(a, b string) bool { return strings.EqualFold(a, b) },
	model.OpNExactCI:    func(a, b string) bool { return !strings.EqualFold(a, b) },
}

func numericCompare(cmp func(a, b float64) bool) func(a, b string) bool {
	return func(a, b string) bool {
		af, aerr := strconv.ParseFloat(strings.TrimSpace(a), 64)
		bf, berr := strconv.ParseFloat(strings.TrimSpace(b), 64)
		if aerr != nil || berr != nil {
			return false // "if either fails to parse, the rule fails"
		}
		return cmp(af, bf)
	}
}

// Compare evaluates one rule's operator against the tag's actual value
// (tagValue, present) and the rule's literal. present=false models a tag
// absent from the instance: spec.md §4.1 says "NEQ on missing tag returns
// true iff the literal is non-empty; EQ on missing tag returns false".
func Compare(op model.Operator, tagValue string, present bool, literal string) bool {
	if !present {
		switch op {
		case model.OpEQ:
			return false
		case model.OpNEQ:
			return literal != ""
		default:
			return false
		}
	}
	fn, ok := comparators[op]
	if !ok {
		return false
	}
	return fn(tagValue, literal)
}
