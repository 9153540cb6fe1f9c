package main

import (
	"fmt"

	"github.com/urfave/cli"
)

var rulesCmds = cli.Command{
	Name:  "rules",
	Usage: "inspect the rule tree",
	Subcommands: []cli.Command{
		{
			Name:   "template-status",
			Usage:  "show which templates are referenced by rule groups vs. matched by series",
			Action: rulesTemplateStatus,
		},
	},
}

// rulesTemplateStatus reports, for every template a rule group refers to,
// how many series have so far matched it - a supplemented feature (see
// SPEC_FULL's SUPPLEMENTED FEATURES) giving an operator visibility into
// whether a configured template is actually being exercised.
func rulesTemplateStatus(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	groups, err := store.ListRuleGroups()
	if err != nil {
		return err
	}
	series, err := store.ListSeries()
	if err != nil {
		return err
	}

	matchCounts := make(map[string]int)
	for _, se := range series {
		for _, tmpl := range se.MatchedTemplates {
			matchCounts[tmpl]++
		}
	}

	configured := make(map[string]bool)
	for _, g := range groups {
		if g.TemplateID != "" {
			configured[g.TemplateID] = true
		}
	}

	for tmpl := range configured {
		fmt.Fprintf(c.App.Writer, "%s\tconfigured\tmatched_series=%d\n", tmpl, matchCounts[tmpl])
	}
	for tmpl, n := range matchCounts {
		if !configured[tmpl] {
			fmt.Fprintf(c.App.Writer, "%s\tmatched-but-unconfigured\tmatched_series=%d\n", tmpl, n)
		}
	}
	return nil
}
