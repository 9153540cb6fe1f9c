package rules

import (
	"testing"

	"github.com/draw-health/gateway/internal/model"
)

func rule(tag string, op model.Operator, lit string, next model.Combinator) *model.Rule {
	return &model.Rule{TagName: tag, Operator: op, LiteralValue: lit, CombinatorNext: next}
}

func TestEvalRuleSetWithTagsLeftFoldNoPrecedence(t *testing.T) {
	// (true OR false) AND false = false, NOT true OR (false AND false) = true
	// left-fold has no precedence: evaluates strictly left to right.
	tags := TagMap{
		"A": {Value: "1"},
		"B": {Value: "0"},
		"C": {Value: "0"},
	}
	rules := []*model.Rule{
		rule("A", model.OpEQ, "1", model.CombinatorOR),  // true OR
		rule("B", model.OpEQ, "1", model.CombinatorAND), // false AND
		rule("C", model.OpEQ, "1", model.CombinatorAND), // false, combinator ignored
	}
	// fold: acc=true; acc = acc OR eval(B)=false -> true; acc = acc AND eval(C)=false -> false
	got := EvalRuleSetWithTags(rules, tags)
	if got {
		t.Errorf("EvalRuleSetWithTags = %v, want false (strict left fold)", got)
	}
}

func TestEvalRuleSetEmpty(t *testing.T) {
	if EvalRuleSetWithTags(nil, TagMap{}) {
		t.Error("empty ruleset must evaluate false")
	}
}

func TestEvalRuleMissingTagEQNEQ(t *testing.T) {
	tags := TagMap{}
	if EvalRule(rule("Modality", model.OpEQ, "CT", model.CombinatorAND), tags) {
		t.Error("EQ against a missing tag must be false")
	}
	if !EvalRule(rule("Modality", model.OpNEQ, "CT", model.CombinatorAND), tags) {
		t.Error("NEQ against a missing tag with non-empty literal must be true")
	}
}

func TestEvaluateGroupsOutcome(t *testing.T) {
	tags := TagMap{"Modality": {Value: "CT"}}

	matchingGroup := GroupInput{
		Group: &model.RuleGroup{ID: "g1"},
		RuleSets: []RuleSetInput{
			{
				RuleSet: &model.RuleSet{ID: "rs1"},
				Rules:   []*model.Rule{rule("Modality", model.OpEQ, "CT", model.CombinatorAND)},
			},
		},
	}
	nonMatchingGroup := GroupInput{
		Group: &model.RuleGroup{ID: "g2"},
		RuleSets: []RuleSetInput{
			{
				RuleSet: &model.RuleSet{ID: "rs2"},
				Rules:   []*model.Rule{rule("Modality", model.OpEQ, "MR", model.CombinatorAND)},
			},
		},
	}

	t.Run("zero matches", func(t *testing.T) {
		out := EvaluateGroups([]GroupInput{nonMatchingGroup}, tags)
		if out.Status != model.StatusRuleNotMatched {
			t.Errorf("status = %v, want RULE_NOT_MATCHED", out.Status)
		}
	})

	t.Run("exactly one match", func(t *testing.T) {
		out := EvaluateGroups([]GroupInput{matchingGroup, nonMatchingGroup}, tags)
		if out.Status != model.StatusRuleMatched {
			t.Errorf("status = %v, want RULE_MATCHED", out.Status)
		}
		if len(out.MatchedGroups) != 1 || out.MatchedGroups[0] != "g1" {
			t.Errorf("matched groups = %v, want [g1]", out.MatchedGroups)
		}
	})

	t.Run("multiple matches", func(t *testing.T) {
		dup := matchingGroup
		dup.Group = &model.RuleGroup{ID: "g3"}
		out := EvaluateGroups([]GroupInput{matchingGroup, dup}, tags)
		if out.Status != model.StatusMultipleRulesMatched {
			t.Errorf("status = %v, want MULTIPLE_RULES_MATCHED", out.Status)
		}
		if len(out.MatchedGroups) != 2 {
			t.Errorf("matched groups = %v, want 2 entries", out.MatchedGroups)
		}
	})
}

func TestFingerprintDeterministic(t *testing.T) {
	tags := TagMap{"Modality": {Value: "CT"}, "SeriesDescription": {Value: "Axial"}}
	if tags.Fingerprint() != tags.Fingerprint() {
		t.Error("Fingerprint must be deterministic for the same map")
	}
}
