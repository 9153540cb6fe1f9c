package main

import (
	"fmt"

	"github.com/urfave/cli"
)

var configCmds = cli.Command{
	Name:  "config",
	Usage: "view and edit system/SCP/archival configuration",
	Subcommands: []cli.Command{
		{
			Name:   "show",
			Usage:  "print the current configuration singletons",
			Action: configShow,
		},
		{
			Name:  "set-system",
			Usage: "update the remote auto-segmentation service configuration",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "base-url"},
				cli.StringFlag{Name: "client-id"},
				cli.StringFlag{Name: "ingest-root"},
			},
			Action: configSetSystem,
		},
		{
			Name:  "set-scp",
			Usage: "update the DICOM SCP configuration",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "ae-title"},
				cli.IntFlag{Name: "port"},
				cli.StringFlag{Name: "storage-root"},
				cli.Float64Flag{Name: "max-storage-gb"},
			},
			Action: configSetSCP,
		},
	},
}

func configShow(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	sys, err := store.GetSystemConfiguration()
	if err != nil {
		return err
	}
	scp, err := store.GetSCPConfiguration()
	if err != nil {
		return err
	}
	arch, err := store.GetArchivalConfiguration()
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "system:\n  base_url=%s\n  client_id=%s\n  ingest_root=%s\n",
		sys.BaseURL, sys.ClientID, sys.IngestRoot)
	fmt.Fprintf(c.App.Writer, "scp:\n  ae_title=%s\n  port=%d\n  storage_root=%s\n  max_storage_gb=%.1f\n",
		scp.AETitle, scp.Port, scp.StorageRoot, scp.MaxStorageGB)
	fmt.Fprintf(c.App.Writer, "archival:\n  enabled=%t\n  provider=%s\n",
		arch.Enabled, arch.Provider)
	return nil
}

func configSetSystem(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	sys, err := store.GetSystemConfiguration()
	if err != nil {
		return err
	}
	if v := c.String("base-url"); v != "" {
		sys.BaseURL = v
	}
	if v := c.String("client-id"); v != "" {
		sys.ClientID = v
	}
	if v := c.String("ingest-root"); v != "" {
		sys.IngestRoot = v
	}
	if err := store.PutSystemConfiguration(sys); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "system configuration updated")
	return nil
}

func configSetSCP(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	scpCfg, err := store.GetSCPConfiguration()
	if err != nil {
		return err
	}
	if v := c.String("ae-title"); v != "" {
		scpCfg.AETitle = v
	}
	if v := c.Int("port"); v != 0 {
		scpCfg.Port = v
	}
	if v := c.String("storage-root"); v != "" {
		scpCfg.StorageRoot = v
	}
	if v := c.Float64("max-storage-gb"); v != 0 {
		scpCfg.MaxStorageGB = v
	}
	if err := store.PutSCPConfiguration(scpCfg); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "SCP configuration updated")
	return nil
}
