// Package export implements spec.md §4.5: for each Series in
// RULE_MATCHED, deidentify, zip, checksum and upload the result to the
// remote auto-segmentation service, advancing the Series/Export state as
// each step succeeds or fails.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/draw-health/gateway/internal/archive"
	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/cos"
	"github.com/draw-health/gateway/internal/dicomio"
	"github.com/draw-health/gateway/internal/model"
	"github.com/draw-health/gateway/internal/remoteapi"
)

// Pipeline runs the per-series export steps; StagingRoot is where
// deidentified copies are assembled before zipping, grounded on the
// teacher's jsp.Save convention of writing to a temp location before the
// artifact is considered durable. archiver is optional (nil when archival
// is disabled) - see internal/archive.Uploader.
type Pipeline struct {
	store       *catalog.Store
	client      *remoteapi.Client
	stagingRoot string
	archiver    *archive.Uploader
}

func NewPipeline(store *catalog.Store, client *remoteapi.Client, stagingRoot string, archiver *archive.Uploader) *Pipeline {
	return &Pipeline{store: store, client: client, stagingRoot: stagingRoot, archiver: archiver}
}

// RunOne executes the full export sequence for one RULE_MATCHED series.
func (p *Pipeline) RunOne(se *model.Series, now time.Time) error {
	stageDir, _, err := p.deidentify(se, now)
	if err != nil {
		se.ProcessingStatus = model.StatusDeidentificationFailed
		p.store.PutSeries(se)
		return cos.Wrap(cos.DeidentificationFailed, se.SeriesUID, err, "deidentify series")
	}
	se.ProcessingStatus = model.StatusDeidentifiedSuccessfully
	if err := p.store.PutSeries(se); err != nil {
		return err
	}

	exp, zipBytes, err := p.zipAndChecksum(se, stageDir)
	if err != nil {
		return cos.Wrap(cos.DeidentificationFailed, se.SeriesUID, err, "zip deidentified set")
	}

	result, err := p.client.Upload(exp.ZipPath, zipBytes, exp.ZipSHA256)
	if err != nil {
		exp.TransferStatus = model.TransferFailed
		p.store.PutExport(exp)
		se.ProcessingStatus = model.StatusFailedTransferToDrawServer
		p.store.PutSeries(se)
		return cos.Wrap(cos.NetworkTransient, se.SeriesUID, err, "upload export")
	}

	exp.ServerTaskID = result.TaskID
	exp.TransferStatus = model.TransferCompleted
	exp.TransferredAt = timePtr(now)
	if err := p.store.PutExport(exp); err != nil {
		return err
	}
	se.ProcessingStatus = model.StatusSentToDrawServer
	if err := p.store.PutSeries(se); err != nil {
		return err
	}

	p.archiveExport(se, zipBytes, now)
	return nil
}

// archiveExport best-effort-archives the export zip off-site; archival
// never gates the Series state machine, so this runs after the transfer
// is already durably recorded and swallows its own errors.
func (p *Pipeline) archiveExport(se *model.Series, zipBytes []byte, now time.Time) {
	if p.archiver == nil {
		return
	}
	study, err := p.store.GetStudy(se.StudyUID)
	if err != nil {
		return
	}
	p.archiver.UploadExport(context.Background(), se, study.PatientID, zipBytes, now)
}

// uidMapping is the deidentified -> original mapping persisted alongside
// the rewrite so reidentify (spec.md §4.8) can reverse it later.
type uidMapping struct {
	PatientID, DeidPatientID               string
	StudyUID, DeidStudyUID                 string
	SeriesUID, DeidSeriesUID               string
	FrameOfReferenceUID, DeidFrameOfRefUID string
	InstanceUIDs                           map[string]string // original SOP -> deidentified SOP
}

// deidentify allocates fresh UIDs for Patient/Study/Series/Instance and
// Frame-of-Reference, persists the mapping in the catalog, and writes a
// deidentified .dcm set to the staging directory (spec.md §4.5 step 1).
// It returns the staging directory so zipAndChecksum can archive it.
func (p *Pipeline) deidentify(se *model.Series, now time.Time) (string, *uidMapping, error) {
	instances, err := p.store.ListInstancesBySeries(se.SeriesUID)
	if err != nil {
		return "", nil, err
	}
	if len(instances) == 0 {
		return "", nil, fmt.Errorf("series %s has no instances", se.SeriesUID)
	}
	study, err := p.store.GetStudy(se.StudyUID)
	if err != nil {
		return "", nil, err
	}
	patient, err := p.store.GetPatient(study.PatientID)
	if err != nil {
		return "", nil, err
	}

	mapping := &uidMapping{
		PatientID: patient.PatientID, DeidPatientID: dicomio.NewUID(),
		StudyUID: study.StudyUID, DeidStudyUID: dicomio.NewUID(),
		SeriesUID: se.SeriesUID, DeidSeriesUID: dicomio.NewUID(),
		FrameOfReferenceUID: se.FrameOfReferenceUID, DeidFrameOfRefUID: dicomio.NewUID(),
		InstanceUIDs: make(map[string]string, len(instances)),
	}

	stageDir := filepath.Join(p.stagingRoot, se.SeriesUID+"-"+uuid.NewString())
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return "", nil, err
	}

	for _, in := range instances {
		deidSOP := dicomio.NewUID()
		mapping.InstanceUIDs[in.SOPInstanceUID] = deidSOP

		ds, err := dicomio.ReadFile(in.FilePath)
		if err != nil {
			return "", nil, err
		}
		ds.Set(dicomio.TagPatientID, "LO", mapping.DeidPatientID)
		ds.Set(dicomio.TagPatientName, "PN", "")
		ds.Set(dicomio.TagStudyInstanceUID, "UI", mapping.DeidStudyUID)
		ds.Set(dicomio.TagSeriesInstanceUID, "UI", mapping.DeidSeriesUID)
		ds.Set(dicomio.TagSOPInstanceUID, "UI", deidSOP)
		if mapping.FrameOfReferenceUID != "" {
			ds.Set(dicomio.TagFrameOfReferenceUID, "UI", mapping.DeidFrameOfRefUID)
		}

		dest := filepath.Join(stageDir, deidSOP+".dcm")
		if err := dicomio.WriteFile(dest, ds); err != nil {
			return "", nil, err
		}
		in.DeidentifiedSOPInstanceUID = deidSOP
		if err := p.store.PutInstance(in); err != nil {
			return "", nil, err
		}
	}

	patient.DeidentifiedID = mapping.DeidPatientID
	study.DeidentifiedStudyUID = mapping.DeidStudyUID
	se.DeidentifiedSeriesUID = mapping.DeidSeriesUID
	se.DeidFrameOfReferenceUID = mapping.DeidFrameOfRefUID
	if err := p.store.PutPatient(patient); err != nil {
		return "", nil, err
	}
	if err := p.store.PutStudy(study); err != nil {
		return "", nil, err
	}

	return stageDir, mapping, nil
}

// zipAndChecksum implements spec.md §4.5 step 2: zip the staging
// directory, compute SHA-256, create the Export row.
func (p *Pipeline) zipAndChecksum(se *model.Series, stageDir string) (*model.Export, []byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries, err := os.ReadDir(stageDir)
	if err != nil {
		return nil, nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(stageDir, entry.Name()))
		if err != nil {
			return nil, nil, err
		}
		w, err := zw.Create(entry.Name())
		if err != nil {
			return nil, nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, nil, err
	}

	zipPath := stageDir + ".zip"
	if err := cos.SaveAtomic(zipPath, buf.Bytes()); err != nil {
		return nil, nil, err
	}
	sum, err := cos.SHA256File(zipPath)
	if err != nil {
		return nil, nil, err
	}

	exp := &model.Export{
		ID:             uuid.NewString(),
		SeriesUID:      se.SeriesUID,
		ZipPath:        zipPath,
		ZipSHA256:      sum,
		TransferStatus: model.TransferPending,
	}
	if err := p.store.PutExport(exp); err != nil {
		return nil, nil, err
	}
	return exp, buf.Bytes(), nil
}

func timePtr(t time.Time) *time.Time { return &t }
