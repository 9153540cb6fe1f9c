// Package chain implements spec.md §4.9: the orchestrator that runs
// ingest -> rule match -> export -> poll -> reidentify under an exclusive,
// expiring catalog lock, plus a periodic statistics sample.
package chain

import (
	"sync"
	"time"

	"github.com/teris-io/shortid"

	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/ingest"
	"github.com/draw-health/gateway/internal/model"
	"github.com/draw-health/gateway/internal/pipeline/export"
	"github.com/draw-health/gateway/internal/pipeline/poll"
	"github.com/draw-health/gateway/internal/pipeline/reident"
	"github.com/draw-health/gateway/internal/remoteapi"
)

const (
	lockName      = "dicom_processing_chain"
	lockTTL       = 2 * time.Hour
	statsInterval = 30 * time.Minute

	// chainIDAlphabet mirrors the teacher's cmn.uuidABC: a shortid
	// alphabet of exactly 64 distinct characters, the length shortid
	// requires.
	chainIDAlphabet = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"
)

// Orchestrator sequences one full chain run. Each stage is resumable
// because all state lives in the catalog - the orchestrator itself keeps
// no state across runs beyond the chain lock row.
type Orchestrator struct {
	store   *catalog.Store
	scanner *ingest.Scanner
	export  *export.Pipeline
	poll    *poll.Pipeline
	reident *reident.Pipeline
	client  *remoteapi.Client // used only for the periodic health sample

	hostname string
}

func NewOrchestrator(store *catalog.Store, scanner *ingest.Scanner, exp *export.Pipeline, pl *poll.Pipeline, ri *reident.Pipeline, client *remoteapi.Client, hostname string) *Orchestrator {
	return &Orchestrator{store: store, scanner: scanner, export: exp, poll: pl, reident: ri, client: client, hostname: hostname}
}

var (
	sidOnce sync.Once
	sid     *shortid.Shortid
)

// newChainID mints a short, human-readable run identifier, grounded on
// the teacher's cmn.GenUUID/teris-io/shortid usage for transient object
// and xaction ids.
func newChainID() string {
	sidOnce.Do(func() {
		sid = shortid.MustNew(1, chainIDAlphabet, uint64(time.Now().UnixNano()))
	})
	return sid.MustGenerate()
}

// Run attempts one full chain pass. If another run already holds the
// lock and hasn't expired, Run returns nil without doing anything - this
// is the expected outcome when Run is invoked on a fixed cadence shorter
// than a full chain's duration.
func (o *Orchestrator) Run(now time.Time) error {
	chainID := newChainID()
	if err := o.store.AcquireChainLock(lockName, chainID, o.hostname, lockTTL, now); err != nil {
		if _, held := err.(*catalog.ErrLockHeld); held {
			return nil
		}
		return err
	}
	defer o.store.ReleaseChainLock(lockName, chainID)

	if err := o.runIngest(now); err != nil {
		return err
	}
	if err := o.store.RenewChainLock(lockName, chainID, lockTTL, time.Now()); err != nil {
		return err
	}

	if err := o.runMatch(); err != nil {
		return err
	}
	if err := o.store.RenewChainLock(lockName, chainID, lockTTL, time.Now()); err != nil {
		return err
	}

	if err := o.runExport(now); err != nil {
		return err
	}
	if err := o.store.RenewChainLock(lockName, chainID, lockTTL, time.Now()); err != nil {
		return err
	}

	if err := o.runPoll(now); err != nil {
		return err
	}
	if err := o.store.RenewChainLock(lockName, chainID, lockTTL, time.Now()); err != nil {
		return err
	}

	if err := o.runReident(now); err != nil {
		return err
	}

	return o.maybeRecordStatistics(now)
}

func (o *Orchestrator) runIngest(now time.Time) error {
	cfg, err := o.store.GetSystemConfiguration()
	if err != nil {
		return err
	}
	_, err = o.scanner.Scan(cfg, now)
	return err
}

// runMatch evaluates every UNPROCESSED, fully-read series against the
// rule tree (spec.md §4.2).
func (o *Orchestrator) runMatch() error {
	groups, err := loadRuleTree(o.store)
	if err != nil {
		return err
	}
	candidates, err := o.store.ListSeriesByStatus(model.StatusUnprocessed)
	if err != nil {
		return err
	}
	for _, se := range candidates {
		if !se.FullyRead {
			continue
		}
		if err := matchOne(o.store, groups, se); err != nil {
			return err
		}
	}
	return nil
}

// runExport exports every RULE_MATCHED series, plus - unless the operator
// has opted into disambiguation - every MULTIPLE_RULES_MATCHED series too.
// The upload itself (remoteapi.Client.Upload) carries no per-template
// parameter: the deidentified zip is identical no matter how many
// RuleGroups matched, so there is no wire-level "export once per matched
// template" to fan out into multiple uploads. A series that matched several
// templates therefore still exports exactly once; which templates matched
// is preserved on the Series row (MatchedTemplates) purely for audit.
// Setting system.require_disambiguation=true instead parks such series at
// MULTIPLE_RULES_MATCHED until an operator resolves the ambiguity with
// `drawctl series choose-template`.
func (o *Orchestrator) runExport(now time.Time) error {
	cfg, err := o.store.GetSystemConfiguration()
	if err != nil {
		return err
	}

	matched, err := o.store.ListSeriesByStatus(model.StatusRuleMatched)
	if err != nil {
		return err
	}
	exportable := matched

	if !cfg.RequireDisambiguation {
		multi, err := o.store.ListSeriesByStatus(model.StatusMultipleRulesMatched)
		if err != nil {
			return err
		}
		exportable = append(exportable, multi...)
	}

	for _, se := range exportable {
		// Best-effort: one series's export failure must not stop the rest
		// of the batch, since each series is an independent unit of work.
		_ = o.export.RunOne(se, now)
	}
	return nil
}

func (o *Orchestrator) runPoll(now time.Time) error {
	inFlight, err := o.poll.InFlight()
	if err != nil {
		return err
	}
	for _, exp := range inFlight {
		_ = o.poll.RunOne(exp, now)
	}
	return nil
}

func (o *Orchestrator) runReident(now time.Time) error {
	received, err := o.store.ListSeriesByStatus(model.StatusRTStructureReceived)
	if err != nil {
		return err
	}
	for _, se := range received {
		imports, err := o.store.ListImportsBySeries(se.SeriesUID)
		if err != nil {
			return err
		}
		im := pendingImport(imports)
		if im == nil {
			continue
		}
		_ = o.reident.RunOne(se, im, now)
	}
	return nil
}

// pendingImport picks the first Import row not yet reidentified. Normally
// there is exactly one Import per RTSTRUCTURE_RECEIVED series.
func pendingImport(imports []*model.Import) *model.Import {
	for _, im := range imports {
		if im.ReidentifiedPath == "" {
			return im
		}
	}
	return nil
}

// maybeRecordStatistics implements spec.md §4.9's "separate periodic job
// (every 30 min) collects statistics deltas since the last sample" -
// skipping the sample entirely if the last one is still fresh, so a chain
// run invoked more often than every 30 minutes doesn't flood the
// statistics collection with redundant points.
func (o *Orchestrator) maybeRecordStatistics(now time.Time) error {
	samples, err := o.store.ListStatSamples()
	if err != nil {
		return err
	}
	if lastSampleAt(samples).Add(statsInterval).After(now) {
		return nil
	}

	counts, err := o.seriesStatusCounts()
	if err != nil {
		return err
	}
	for name, value := range counts {
		s := &model.StatisticsSample{
			ID:             newChainID(),
			ParameterName:  name,
			ParameterValue: value,
			CreatedAt:      now,
		}
		if err := o.store.AppendStatSample(s); err != nil {
			return err
		}
	}
	return o.recordHealthSample(now)
}

// recordHealthSample polls GET {base_url}api/health (spec.md §6) and
// records it alongside the series-status counts, so an operator can see
// remote-service reachability on the same timeline as catalog state
// (`drawctl status`). A failed poll still produces a sample (value 0) -
// "the remote side is unreachable" is itself a statistic worth keeping.
func (o *Orchestrator) recordHealthSample(now time.Time) error {
	if o.client == nil {
		return nil
	}
	value := 0.0
	if _, err := o.client.Health(); err == nil {
		value = 1.0
	}
	return o.store.AppendStatSample(&model.StatisticsSample{
		ID:             newChainID(),
		ParameterName:  "remote_health",
		ParameterValue: value,
		CreatedAt:      now,
	})
}

func lastSampleAt(samples []*model.StatisticsSample) time.Time {
	var latest time.Time
	for _, s := range samples {
		if s.CreatedAt.After(latest) {
			latest = s.CreatedAt
		}
	}
	return latest
}

// seriesStatusCounts snapshots how many series currently sit in each
// lifecycle state - the raw material a consumer diffs against the
// previous sample to get the "statistics delta" spec.md asks for.
func (o *Orchestrator) seriesStatusCounts() (map[string]float64, error) {
	all, err := o.store.ListSeries()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]float64)
	for _, se := range all {
		counts["series_status_"+string(se.ProcessingStatus)]++
	}
	return counts, nil
}
