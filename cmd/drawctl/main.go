// Command drawctl is the operator CLI for a DRAW gateway catalog: viewing
// and editing configuration, inspecting rule coverage, resetting stuck
// series and checking service status - mirroring the teacher's
// cmd/cli/commands command-tree shape, just pointed at the local catalog
// file instead of a cluster HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/draw-health/gateway/internal/catalog"
)

var catalogPathFlag = cli.StringFlag{
	Name:  "catalog",
	Usage: "path to the buntdb catalog file",
	Value: "/var/lib/drawnode/catalog.db",
}

func main() {
	app := cli.NewApp()
	app.Name = "drawctl"
	app.Usage = "operate a DRAW gateway catalog"
	app.Flags = []cli.Flag{catalogPathFlag}
	app.Commands = []cli.Command{
		configCmds,
		seriesCmds,
		rulesCmds,
		statusCmd,
		comparisonCmds,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "drawctl: %v\n", err)
		os.Exit(1)
	}
}

// openStore is the common prelude every command action runs: open the
// catalog named by the global --catalog flag against its containing app.
func openStore(c *cli.Context) (*catalog.Store, error) {
	path := c.GlobalString(catalogPathFlag.Name)
	return catalog.Open(path)
}
