package archive

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/cos"
	"github.com/draw-health/gateway/internal/model"
)

// Uploader wraps a Backend with the gzip-streaming and transaction-logging
// SPEC_FULL requires of every archived object. A nil Backend (archival
// disabled or unconfigured) makes every upload a no-op, so callers never
// need to branch on whether archival is turned on.
type Uploader struct {
	store   *catalog.Store
	backend Backend
}

func NewUploader(store *catalog.Store, backend Backend) *Uploader {
	return &Uploader{store: store, backend: backend}
}

// UploadExport best-effort-archives a series' export zip under
// "<patient_id>/<series_uid>/export.zip.gz". Errors are logged as a
// TxArchive transaction row and swallowed - archival never joins the
// Series/Export state machine (spec.md §4.4).
func (u *Uploader) UploadExport(ctx context.Context, se *model.Series, patientID string, zipBytes []byte, now time.Time) {
	u.upload(ctx, patientID, se.SeriesUID, "export.zip.gz", zipBytes, se.SeriesUID, now)
}

// UploadReidentified best-effort-archives a reidentified RT Structure
// under "<patient_id>/<series_uid>/rtstruct.dcm.gz".
func (u *Uploader) UploadReidentified(ctx context.Context, patientID, seriesUID string, dcmBytes []byte, now time.Time) {
	u.upload(ctx, patientID, seriesUID, "rtstruct.dcm.gz", dcmBytes, seriesUID, now)
}

func (u *Uploader) upload(ctx context.Context, patientID, seriesUID, name string, data []byte, logSeriesUID string, now time.Time) {
	if u == nil || u.backend == nil {
		return
	}

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write(data); err != nil {
		u.logFailure(patientID, logSeriesUID, now, err)
		return
	}
	if err := zw.Close(); err != nil {
		u.logFailure(patientID, logSeriesUID, now, err)
		return
	}

	key := objectKey(patientID, seriesUID, name)
	if err := u.backend.Upload(ctx, key, bytes.NewReader(gz.Bytes()), int64(gz.Len())); err != nil {
		cos.Warningf("archive: upload %s: %v", key, err)
		u.logFailure(patientID, logSeriesUID, now, err)
		return
	}

	u.logSuccess(patientID, logSeriesUID, key, int64(gz.Len()), now)
}

func (u *Uploader) logSuccess(patientID, seriesUID, key string, size int64, now time.Time) {
	u.append(&model.TransactionLog{
		ID: uuid.NewString(), Type: model.TxArchive, Status: model.TxSuccess,
		PatientID: patientID, SeriesUID: seriesUID, FilePath: key, FileSize: size,
		Timestamp: now,
	})
}

func (u *Uploader) logFailure(patientID, seriesUID string, now time.Time, cause error) {
	u.append(&model.TransactionLog{
		ID: uuid.NewString(), Type: model.TxArchive, Status: model.TxFailure,
		PatientID: patientID, SeriesUID: seriesUID, Error: cause.Error(),
		Timestamp: now,
	})
}

func (u *Uploader) append(tx *model.TransactionLog) {
	if err := u.store.AppendTransaction(tx); err != nil {
		cos.Warningf("archive: append transaction log: %v", err)
	}
}
