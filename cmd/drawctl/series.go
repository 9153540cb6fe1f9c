package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"

	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/model"
)

var seriesCmds = cli.Command{
	Name:  "series",
	Usage: "inspect and reset series",
	Subcommands: []cli.Command{
		{
			Name:  "list",
			Usage: "list series, optionally filtered by processing status",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "status", Usage: "filter by processing_status"},
			},
			Action: seriesList,
		},
		{
			Name:      "reset",
			Usage:     "reset one series to UNPROCESSED so the chain re-evaluates it",
			ArgsUsage: "SERIES_UID",
			Action:    seriesReset,
		},
		{
			Name:  "reset-all",
			Usage: "reset every series in a terminal-but-retryable status to UNPROCESSED",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "status", Usage: "required: the status to reset from"},
			},
			Action: seriesResetAll,
		},
		{
			Name:      "choose-template",
			Usage:     "resolve a MULTIPLE_RULES_MATCHED series down to one template so the chain can export it",
			ArgsUsage: "SERIES_UID TEMPLATE_ID",
			Action:    seriesChooseTemplate,
		},
	},
}

func seriesList(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	var list []*model.Series
	if status := c.String("status"); status != "" {
		list, err = store.ListSeriesByStatus(model.ProcessingStatus(status))
	} else {
		list, err = store.ListSeries()
	}
	if err != nil {
		return err
	}
	for _, se := range list {
		fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", se.SeriesUID, se.ProcessingStatus, se.Description)
	}
	return nil
}

// resetSeries implements the operator reset SPEC_FULL carries forward from
// spec.md §4.4 ("orchestrator MAY reset a failed series to UNPROCESSED on
// operator request"): clear the terminal status and matched-rule bookkeeping
// so the chain's match stage re-evaluates it from scratch next pass.
func resetSeries(store *catalog.Store, se *model.Series) error {
	se.ProcessingStatus = model.StatusUnprocessed
	se.MatchedRuleSets = nil
	se.MatchedTemplates = nil
	return store.PutSeries(se)
}

func seriesReset(c *cli.Context) error {
	uid := c.Args().First()
	if uid == "" {
		return cli.NewExitError("series reset: missing SERIES_UID argument", 1)
	}
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	se, err := store.GetSeries(uid)
	if err != nil {
		return err
	}
	if err := resetSeries(store, se); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "series %s reset to %s\n", uid, model.StatusUnprocessed)
	return nil
}

// chooseTemplate implements the opt-in disambiguation path
// (system.require_disambiguation=true): a series parked at
// MULTIPLE_RULES_MATCHED never exports on its own, so an operator picks one
// of its MatchedTemplates and this trims the series down to that single
// template and moves it to RULE_MATCHED, where the next chain pass exports
// it normally.
func chooseTemplate(store *catalog.Store, se *model.Series, templateID string) error {
	if se.ProcessingStatus != model.StatusMultipleRulesMatched {
		return fmt.Errorf("series %s is %s, not %s", se.SeriesUID, se.ProcessingStatus, model.StatusMultipleRulesMatched)
	}
	if !containsString(se.MatchedTemplates, templateID) {
		return fmt.Errorf("series %s did not match template %s (matched: %v)", se.SeriesUID, templateID, se.MatchedTemplates)
	}

	se.MatchedTemplates = []string{templateID}
	se.ProcessingStatus = model.StatusRuleMatched
	return store.PutSeries(se)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func seriesChooseTemplate(c *cli.Context) error {
	uid := c.Args().Get(0)
	templateID := c.Args().Get(1)
	if uid == "" || templateID == "" {
		return cli.NewExitError("series choose-template: usage is SERIES_UID TEMPLATE_ID", 1)
	}
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	se, err := store.GetSeries(uid)
	if err != nil {
		return err
	}
	if err := chooseTemplate(store, se, templateID); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Fprintf(c.App.Writer, "series %s resolved to template %s, moved to %s\n", uid, templateID, model.StatusRuleMatched)
	return nil
}

// seriesResetAll is the bulk form, rendering a progress bar the way the
// teacher's long CLI-driven operations do (cf. aisloader's own run-time
// progress output) via vbauerster/mpb.
func seriesResetAll(c *cli.Context) error {
	status := c.String("status")
	if status == "" {
		return cli.NewExitError("series reset-all: --status is required", 1)
	}
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	candidates, err := store.ListSeriesByStatus(model.ProcessingStatus(status))
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Fprintln(c.App.Writer, "no matching series")
		return nil
	}

	progress := mpb.New(mpb.WithWidth(64), mpb.WithOutput(c.App.Writer))
	bar := progress.AddBar(int64(len(candidates)),
		mpb.PrependDecorators(decor.Name("resetting series")),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)

	start := time.Now()
	var failed int
	for _, se := range candidates {
		if err := resetSeries(store, se); err != nil {
			failed++
		}
		bar.Increment()
	}
	progress.Wait()

	fmt.Fprintf(c.App.Writer, "reset %d/%d series in %s (%d failed)\n",
		len(candidates)-failed, len(candidates), time.Since(start).Round(time.Millisecond), failed)
	return nil
}
