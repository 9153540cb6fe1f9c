// Package rules implements spec.md §4.2: the pure left-fold evaluator over
// the catalog's RuleGroup -> RuleSet -> Rule tree.
//
// Evaluation is a pure function of (tree, tag map) - no catalog or network
// access happens here, the same separation the teacher draws between
// cmn/config.go's validation (pure) and the code that persists the result.
package rules

import (
	"sort"

	"github.com/OneOfOne/xxhash"

	"github.com/draw-health/gateway/internal/dicomvr"
	"github.com/draw-health/gateway/internal/model"
)

// TagMap is metadata for one representative instance, keyed by both the
// canonical tag name and its "(gggg,eeee)" form (spec.md §4.2
// "Representative instance"). A Value carries the VR alongside the string
// form so the engine can run format validation and VR-aware comparisons.
type TagMap map[string]TagValue

type TagValue struct {
	Value string
	VR    string
}

// Fingerprint returns a stable hash of the tag map's contents, used by
// callers that want to detect whether re-evaluating a series is even
// necessary (the representative instance hasn't changed since the last
// match pass). Grounded on the teacher's pervasive use of OneOfOne/xxhash
// for cheap, non-cryptographic content fingerprints (e.g. object
// checksums in fs/, version tags in cluster bmd/smap).
func (m TagMap) Fingerprint() uint64 {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := xxhash.New64()
	for _, k := range keys {
		v := m[k]
		h.WriteString(k)
		h.WriteString("=")
		h.WriteString(v.Value)
		h.WriteString(";")
	}
	return h.Sum64()
}

// EvalRule evaluates a single Rule against the tag map. A missing tag
// yields TagValue{} with present=false, which Compare's missing-tag rule
// in dicomvr handles.
func EvalRule(r *model.Rule, tags TagMap) bool {
	tv, present := tags[r.TagName]
	return dicomvr.Compare(r.Operator, tv.Value, present, r.LiteralValue)
}

// EvalRuleSetWithTags left-folds a RuleSet's ordered rules using each
// rule's combinator-with-next (spec.md §4.2 "Rule combination"): no
// operator precedence, the last rule's combinator is ignored.
func EvalRuleSetWithTags(rules []*model.Rule, tags TagMap) bool {
	if len(rules) == 0 {
		return false
	}
	acc := EvalRule(rules[0], tags)
	for i := 1; i < len(rules); i++ {
		v := EvalRule(rules[i], tags)
		switch rules[i-1].CombinatorNext {
		case model.CombinatorOR:
			acc = acc || v
		default: // AND, and any unset value defaults to AND
			acc = acc && v
		}
	}
	return acc
}

// MatchOutcome is the per-series result of evaluating every RuleGroup
// (spec.md §4.2 "Series outcome").
type MatchOutcome struct {
	Status          model.ProcessingStatus
	MatchedGroups   []string // RuleGroup IDs that evaluated true
	MatchedRuleSets map[string][]string // group ID -> matched ruleset IDs within it
}

// GroupInput bundles one RuleGroup with its ordered rulesets and, within
// each, its ordered rules - the shape EvaluateGroups needs, already
// resolved from the catalog by the caller (this package never talks to
// internal/catalog directly, keeping it a pure function like the teacher's
// cmn validation helpers).
type GroupInput struct {
	Group    *model.RuleGroup
	RuleSets []RuleSetInput
}

type RuleSetInput struct {
	RuleSet *model.RuleSet
	Rules   []*model.Rule
}

// EvaluateGroup left-folds a RuleGroup's ordered rulesets using each
// ruleset's combinator-with-next (spec.md §4.2 "RuleSet combination") and
// returns whether the group matched plus which of its rulesets evaluated
// true.
func EvaluateGroup(g GroupInput, tags TagMap) (matched bool, matchedRuleSetIDs []string) {
	if len(g.RuleSets) == 0 {
		return false, nil
	}
	values := make([]bool, len(g.RuleSets))
	for i, rs := range g.RuleSets {
		v := EvalRuleSetWithTags(rs.Rules, tags)
		values[i] = v
		if v {
			matchedRuleSetIDs = append(matchedRuleSetIDs, rs.RuleSet.ID)
		}
	}
	acc := values[0]
	for i := 1; i < len(values); i++ {
		switch g.RuleSets[i-1].RuleSet.CombinatorNext {
		case model.CombinatorOR:
			acc = acc || values[i]
		default:
			acc = acc && values[i]
		}
	}
	return acc, matchedRuleSetIDs
}

// EvaluateGroups implements spec.md §4.2 "Series outcome": evaluate every
// RuleGroup and classify the series by how many matched.
func EvaluateGroups(groups []GroupInput, tags TagMap) MatchOutcome {
	out := MatchOutcome{MatchedRuleSets: map[string][]string{}}
	for _, g := range groups {
		matched, ruleSetIDs := EvaluateGroup(g, tags)
		if matched {
			out.MatchedGroups = append(out.MatchedGroups, g.Group.ID)
			out.MatchedRuleSets[g.Group.ID] = ruleSetIDs
		}
	}
	switch len(out.MatchedGroups) {
	case 0:
		out.Status = model.StatusRuleNotMatched
	case 1:
		out.Status = model.StatusRuleMatched
	default:
		out.Status = model.StatusMultipleRulesMatched
	}
	return out
}
