package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli"

	"github.com/draw-health/gateway/internal/comparison"
	"github.com/draw-health/gateway/internal/model"
)

var comparisonCmds = cli.Command{
	Name:  "comparison",
	Usage: "inspect and drive spatial-overlap comparisons against a series",
	Subcommands: []cli.Command{
		{
			Name:      "list",
			Usage:     "list comparison results recorded for a series",
			ArgsUsage: "SERIES_UID",
			Action:    comparisonList,
		},
		{
			Name:      "compute",
			Usage:     "request synchronous metric computation for one comparison",
			ArgsUsage: "COMPARISON_ID",
			Action:    comparisonCompute,
		},
	},
}

func comparisonList(c *cli.Context) error {
	uid := c.Args().First()
	if uid == "" {
		return cli.NewExitError("comparison list: missing SERIES_UID argument", 1)
	}
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.ListComparisonResultsBySeries(uid)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintf(c.App.Writer, "%s\t%s\t%v\n", r.ID, r.Status, r.Metrics)
	}
	return nil
}

func comparisonCompute(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return cli.NewExitError("comparison compute: missing COMPARISON_ID argument", 1)
	}
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	cr, err := store.GetComparisonResult(id)
	if err != nil {
		return err
	}

	client := comparison.NewClient(store)
	result, err := client.Compute(id)
	if err != nil {
		cr.Status = model.ComparisonFailed
		store.PutComparisonResult(cr)
		return err
	}

	now := time.Now()
	cr.Status = model.ComparisonComputed
	cr.Metrics = result.Metrics
	cr.ComputedAt = &now
	if err := store.PutComparisonResult(cr); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "comparison %s computed: %v\n", id, result.Metrics)
	return nil
}
