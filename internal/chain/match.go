package chain

import (
	"sort"

	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/dicomio"
	"github.com/draw-health/gateway/internal/model"
	"github.com/draw-health/gateway/internal/rules"
)

// reverseNameToTag inverts dicomio.NameToTag so buildTagMap can populate
// the canonical-name key alongside the "(gggg,eeee)" key for every
// element the representative instance actually carries (spec.md §4.2
// "Tag lookup uses either the canonical tag name or the (gggg,eeee)
// form; both keys must be populated in the metadata map").
var reverseNameToTag = func() map[dicomio.Tag]string {
	out := make(map[dicomio.Tag]string, len(dicomio.NameToTag))
	for name, t := range dicomio.NameToTag {
		out[t] = name
	}
	return out
}()

// representativeInstance returns the first-by-file-path instance of a
// series (spec.md §4.2 "Representative instance").
func representativeInstance(instances []*model.Instance) *model.Instance {
	if len(instances) == 0 {
		return nil
	}
	sorted := make([]*model.Instance, len(instances))
	copy(sorted, instances)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FilePath < sorted[j].FilePath })
	return sorted[0]
}

// buildTagMap reads every element of ds into a rules.TagMap, dual-keyed by
// "(gggg,eeee)" and, where known, canonical name.
func buildTagMap(ds *dicomio.Dataset) rules.TagMap {
	tm := make(rules.TagMap, len(ds.Elements)*2)
	for _, e := range ds.Elements {
		if len(e.Value) == 0 {
			continue
		}
		tv := rules.TagValue{Value: e.Value[0], VR: e.VR}
		tm[e.Tag.String()] = tv
		if name, ok := reverseNameToTag[e.Tag]; ok {
			tm[name] = tv
		}
	}
	return tm
}

// loadRuleTree resolves the full RuleGroup -> RuleSet -> Rule tree from
// the catalog into the shape rules.EvaluateGroups needs. internal/rules
// never talks to the catalog itself, so this glue lives here.
func loadRuleTree(store *catalog.Store) ([]rules.GroupInput, error) {
	groups, err := store.ListRuleGroups()
	if err != nil {
		return nil, err
	}
	inputs := make([]rules.GroupInput, 0, len(groups))
	for _, g := range groups {
		ruleSets, err := store.ListRuleSetsByGroup(g.ID)
		if err != nil {
			return nil, err
		}
		rsInputs := make([]rules.RuleSetInput, 0, len(ruleSets))
		for _, rs := range ruleSets {
			rws, err := store.ListRulesBySet(rs.ID)
			if err != nil {
				return nil, err
			}
			rsInputs = append(rsInputs, rules.RuleSetInput{RuleSet: rs, Rules: rws})
		}
		inputs = append(inputs, rules.GroupInput{Group: g, RuleSets: rsInputs})
	}
	return inputs, nil
}

// matchOne evaluates one fully-read, UNPROCESSED series against the rule
// tree and persists the outcome (spec.md §4.2 "Series outcome").
func matchOne(store *catalog.Store, groups []rules.GroupInput, se *model.Series) error {
	instances, err := store.ListInstancesBySeries(se.SeriesUID)
	if err != nil {
		return err
	}
	rep := representativeInstance(instances)
	if rep == nil {
		return nil
	}
	ds, err := dicomio.ReadFile(rep.FilePath)
	if err != nil {
		return err
	}
	outcome := rules.EvaluateGroups(groups, buildTagMap(ds))

	se.ProcessingStatus = outcome.Status
	se.MatchedRuleSets = nil
	for _, rsIDs := range outcome.MatchedRuleSets {
		se.MatchedRuleSets = append(se.MatchedRuleSets, rsIDs...)
	}
	se.MatchedTemplates = templatesFor(groups, outcome.MatchedGroups)
	return store.PutSeries(se)
}

func templatesFor(groups []rules.GroupInput, matchedGroupIDs []string) []string {
	byID := make(map[string]string, len(groups))
	for _, g := range groups {
		byID[g.Group.ID] = g.Group.TemplateID
	}
	var templates []string
	for _, id := range matchedGroupIDs {
		if t := byID[id]; t != "" {
			templates = append(templates, t)
		}
	}
	return templates
}
