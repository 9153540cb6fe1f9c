// Package poll implements spec.md §4.7: periodically check remote
// segmentation task status for every in-flight Export, download the RT
// Structure once segmentation completes, verify it, and record an Import
// row. Every step keys off stable identifiers so a crash mid-poll just
// means the next pass repeats the same idempotent work.
package poll

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/cos"
	"github.com/draw-health/gateway/internal/dicomio"
	"github.com/draw-health/gateway/internal/model"
	"github.com/draw-health/gateway/internal/remoteapi"
)

const segmentationCompleted = "SEGMENTATION COMPLETED"

// Pipeline polls every Export row still in flight.
type Pipeline struct {
	store  *catalog.Store
	client *remoteapi.Client
}

func NewPipeline(store *catalog.Store, client *remoteapi.Client) *Pipeline {
	return &Pipeline{store: store, client: client}
}

// InFlight returns Export rows with transfer_status=COMPLETED whose
// server_segmentation_status is not yet terminal (spec.md §4.7 scope).
func (p *Pipeline) InFlight() ([]*model.Export, error) {
	all, err := p.store.ListExports()
	if err != nil {
		return nil, err
	}
	var out []*model.Export
	for _, e := range all {
		if e.TransferStatus != model.TransferCompleted {
			continue
		}
		if model.TerminalSegmentationStatuses[e.ServerSegmentationStatus] {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// RunOne executes a single poll pass over one Export row.
func (p *Pipeline) RunOne(exp *model.Export, now time.Time) error {
	status, err := p.client.Status(exp.ServerTaskID)
	if err != nil {
		return cos.Wrap(cos.NetworkTransient, exp.ServerTaskID, err, "poll status")
	}
	exp.ServerSegmentationStatus = status.Status
	exp.ServerStatusUpdatedAt = timePtr(now)
	if err := p.store.PutExport(exp); err != nil {
		return err
	}
	if status.Status != segmentationCompleted {
		return nil
	}
	return p.download(exp, now)
}

func (p *Pipeline) download(exp *model.Export, now time.Time) error {
	se, err := p.store.GetSeries(exp.SeriesUID)
	if err != nil {
		return err
	}

	// An Import row for this export already means a prior pass downloaded
	// and verified the RT Structure - only the server-side notify may still
	// be outstanding. Retrying the whole download here would fetch the file
	// again under a new timestamped filename and mint a second Import row
	// for work already done (spec.md §4.7's idempotent-retry requirement).
	existing, err := p.store.ListImportsByExport(exp.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return p.finishImport(exp, se, now)
	}

	result, err := p.client.Download(exp.ServerTaskID)
	if err != nil {
		return cos.Wrap(cos.NetworkTransient, exp.ServerTaskID, err, "download rtstruct")
	}

	dir := filepath.Join(filepath.Dir(exp.ZipPath), "downloaded_rtstruct")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	downloadedPath := filepath.Join(dir, fmt.Sprintf("rtstruct_%s_%s.dcm", exp.ServerTaskID, now.UTC().Format("20060102_150405")))
	if err := cos.SaveAtomic(downloadedPath, result.Body); err != nil {
		return err
	}

	sum, err := cos.SHA256File(downloadedPath)
	if err != nil {
		return err
	}
	if checksumMismatch(result.FileChecksum, sum) {
		cos.RemoveFile(downloadedPath)
		exp.TransferStatus = model.TransferChecksumMismatch
		p.store.PutExport(exp)
		se.ProcessingStatus = model.StatusInvalidRTStructureReceived
		p.store.PutSeries(se)
		return cos.NewError(cos.IntegrityFailure, exp.ServerTaskID, fmt.Errorf("checksum mismatch: server %s, computed %s", result.FileChecksum, sum))
	}

	ds, err := dicomio.ReadFile(downloadedPath)
	if err != nil {
		cos.RemoveFile(downloadedPath)
		exp.TransferStatus = model.TransferInvalidRTStruct
		p.store.PutExport(exp)
		se.ProcessingStatus = model.StatusInvalidRTStructureReceived
		p.store.PutSeries(se)
		return cos.Wrap(cos.FormatInvalid, exp.ServerTaskID, err, "parse downloaded rtstruct")
	}
	modality, _ := ds.GetString(dicomio.TagModality)
	if modality != "RTSTRUCT" {
		cos.RemoveFile(downloadedPath)
		exp.TransferStatus = model.TransferInvalidRTStruct
		p.store.PutExport(exp)
		se.ProcessingStatus = model.StatusInvalidRTStructureReceived
		p.store.PutSeries(se)
		return cos.NewError(cos.FormatInvalid, exp.ServerTaskID, fmt.Errorf("modality %q, want RTSTRUCT", modality))
	}

	if refUID, found := dicomio.ReferencedSeriesUID(ds); found {
		if refUID != se.DeidentifiedSeriesUID {
			cos.RemoveFile(downloadedPath)
			exp.TransferStatus = model.TransferInvalidRTStruct
			p.store.PutExport(exp)
			se.ProcessingStatus = model.StatusInvalidRTStructureReceived
			p.store.PutSeries(se)
			return cos.NewError(cos.FormatInvalid, exp.ServerTaskID, fmt.Errorf("referenced series uid %s does not match export's deidentified series %s", refUID, se.DeidentifiedSeriesUID))
		}
	}
	// Absent Referenced Series Instance UID: spec.md §4.7 step e says warn
	// and proceed, so no error branch here.

	sopUID, _ := ds.GetString(dicomio.TagSOPInstanceUID)
	im := &model.Import{
		ID:                     uuid.NewString(),
		SeriesUID:              se.SeriesUID,
		ExportID:               exp.ID,
		ReceivedSOPInstanceUID: sopUID,
		DownloadedPath:         downloadedPath,
		ReceivedSHA256:         sum,
		ReceivedAt:             timePtr(now),
	}
	if err := p.store.PutImport(im); err != nil {
		return err
	}

	return p.finishImport(exp, se, now)
}

// finishImport notifies the remote server that the RT Structure was
// received and advances the Export/Series statuses. It is the only part of
// download retried on a subsequent poll pass once an Import row for exp
// already exists - the download and verification above never repeat.
func (p *Pipeline) finishImport(exp *model.Export, se *model.Series, now time.Time) error {
	if err := p.client.Notify(exp.ServerTaskID, "received", now); err != nil {
		// Not advancing statuses here is deliberate: the Import row already
		// exists and is keyed by the export, so the next poll retries notify
		// without re-downloading or duplicating the row.
		return cos.Wrap(cos.NetworkTransient, exp.ServerTaskID, err, "notify server of receipt")
	}

	exp.ServerSegmentationStatus = "RTStructure Received"
	exp.TransferStatus = model.TransferRTStructReceived
	if err := p.store.PutExport(exp); err != nil {
		return err
	}
	se.ProcessingStatus = model.StatusRTStructureReceived
	return p.store.PutSeries(se)
}

// checksumMismatch compares the server-supplied X-File-Checksum header
// against the locally computed SHA-256. An absent server checksum is not
// a mismatch: spec.md §4.7 step c only compares "if the server checksum
// was provided".
func checksumMismatch(serverChecksum, computed string) bool {
	return serverChecksum != "" && serverChecksum != computed
}

func timePtr(t time.Time) *time.Time { return &t }
