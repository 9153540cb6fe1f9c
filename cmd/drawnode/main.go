// Command drawnode is the long-running DRAW gateway daemon: it wires the
// catalog, ingest scanner, export/poll/reidentify pipelines, the chain
// orchestrator and the DICOM SCP together, the way the teacher's node
// process wires its storage target, transport and housekeeping workers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/draw-health/gateway/internal/archive"
	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/chain"
	"github.com/draw-health/gateway/internal/cos"
	"github.com/draw-health/gateway/internal/ingest"
	"github.com/draw-health/gateway/internal/pipeline/export"
	"github.com/draw-health/gateway/internal/pipeline/poll"
	"github.com/draw-health/gateway/internal/pipeline/reident"
	"github.com/draw-health/gateway/internal/remoteapi"
	"github.com/draw-health/gateway/internal/scp"
)

// chainTickInterval is the cadence Run is invoked on; well under lockTTL,
// so a run already in progress just no-ops the next tick rather than
// queuing up (chain.Orchestrator.Run's documented behavior).
const chainTickInterval = time.Minute

func main() {
	var (
		catalogPath = flag.String("catalog", "/var/lib/drawnode/catalog.db", "path to the buntdb catalog file")
		configPath  = flag.String("config", "", "optional YAML bootstrap file for first-run configuration")
		stagingRoot = flag.String("staging-root", "/var/lib/drawnode/staging", "directory export builds deidentified staging copies in")
		tokenSecret = flag.String("token-secret", "", "passphrase used to encrypt/decrypt the stored bearer/refresh tokens")
		foreground  = flag.Bool("foreground", false, "run in the foreground instead of daemonizing")
		daemon      = flag.Bool("daemon", false, "detach into the background on startup (re-execs with --foreground)")
	)
	flag.Parse()

	if *daemon && !*foreground {
		if err := daemonizeSelf(); err != nil {
			fmt.Fprintf(os.Stderr, "drawnode: daemonize: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*catalogPath, *configPath, *stagingRoot, *tokenSecret, *daemon); err != nil {
		signalStartupOutcome(err)
		cos.Errorf("drawnode: %v", err)
		os.Exit(1)
	}
}

func run(catalogPath, configPath, stagingRoot, tokenSecret string, wasDaemonized bool) error {
	boot, err := loadBootstrapConfig(configPath)
	if err != nil {
		return fmt.Errorf("load bootstrap config: %w", err)
	}

	store, err := catalog.Open(catalogPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer store.Close()

	if err := bootstrapIfEmpty(store, boot); err != nil {
		return fmt.Errorf("bootstrap configuration: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "drawnode"
	}

	scanner := ingest.NewScanner(store)
	client := remoteapi.NewClient(store, remoteapi.NewTokenCipher(tokenSecret))

	archivalCfg, err := store.GetArchivalConfiguration()
	if err != nil {
		return fmt.Errorf("load archival configuration: %w", err)
	}
	backend, err := archive.NewBackend(archivalCfg)
	if err != nil {
		cos.Warningf("drawnode: archival backend disabled: %v", err)
		backend = nil
	}
	archiver := archive.NewUploader(store, backend)

	exportPipeline := export.NewPipeline(store, client, stagingRoot, archiver)
	pollPipeline := poll.NewPipeline(store, client)
	reidentPipeline := reident.NewPipeline(store, archiver)
	orchestrator := chain.NewOrchestrator(store, scanner, exportPipeline, pollPipeline, reidentPipeline, client, hostname)

	scpCfg, err := store.GetSCPConfiguration()
	if err != nil {
		return fmt.Errorf("load scp configuration: %w", err)
	}
	server := scp.NewServer(store, scpCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cos.Infof("drawnode: shutdown signal received")
		cancel()
	}()

	go runChainLoop(ctx, orchestrator)

	// The DICOM SCP's wire-level transport is a conforming DIMSE library's
	// job, not this gateway's (spec.md Non-goals) - internal/scp.Transport
	// is the seam a real implementation plugs into. Until one is wired in,
	// the SCP has policy and command handling ready but nothing listening.
	transport := &unimplementedTransport{}

	if wasDaemonized {
		signalStartupOutcome(nil)
	}

	return server.Serve(ctx, transport)
}

func runChainLoop(ctx context.Context, o *chain.Orchestrator) {
	ticker := time.NewTicker(chainTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := o.Run(now); err != nil {
				cos.Warningf("drawnode: chain run: %v", err)
			}
		}
	}
}

// bootstrapIfEmpty seeds the catalog's configuration singletons from the
// YAML bootstrap file the first time drawnode runs against a fresh
// catalog; subsequent runs leave whatever drawctl has since written alone.
func bootstrapIfEmpty(store *catalog.Store, boot *bootstrapConfig) error {
	exists, err := store.SCPConfigurationExists()
	if err != nil {
		return err
	}
	freshCatalog := !exists

	if boot.System != nil && freshCatalog {
		if err := store.PutSystemConfiguration(boot.System); err != nil {
			return err
		}
	}
	if boot.SCP != nil && freshCatalog {
		if err := store.PutSCPConfiguration(boot.SCP); err != nil {
			return err
		}
	}
	if boot.Archival != nil && freshCatalog {
		if err := store.PutArchivalConfiguration(boot.Archival); err != nil {
			return err
		}
	}
	return nil
}
