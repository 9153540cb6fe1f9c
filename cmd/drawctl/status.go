package main

import (
	"fmt"
	"sort"

	"github.com/urfave/cli"

	"github.com/draw-health/gateway/internal/model"
)

var statusCmd = cli.Command{
	Name:   "status",
	Usage:  "show service status, catalog counts and the latest statistics samples",
	Action: statusAction,
}

func statusAction(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	st, err := store.GetServiceStatus()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "service: running=%t pid=%d total_errors=%d\n", st.IsRunning, st.PID, st.TotalErrors)

	series, err := store.ListSeries()
	if err != nil {
		return err
	}
	counts := make(map[model.ProcessingStatus]int)
	for _, se := range series {
		counts[se.ProcessingStatus]++
	}
	fmt.Fprintln(c.App.Writer, "series by status:")
	for status, n := range counts {
		fmt.Fprintf(c.App.Writer, "  %-36s %d\n", status, n)
	}

	samples, err := store.ListStatSamples()
	if err != nil {
		return err
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].CreatedAt.After(samples[j].CreatedAt) })

	fmt.Fprintln(c.App.Writer, "latest statistics samples:")
	seen := make(map[string]bool)
	shown := 0
	for _, s := range samples {
		if seen[s.ParameterName] {
			continue
		}
		seen[s.ParameterName] = true
		fmt.Fprintf(c.App.Writer, "  %-30s %.2f  (%s)\n", s.ParameterName, s.ParameterValue, s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
		shown++
		if shown >= 20 {
			break
		}
	}
	return nil
}
