package scp

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/cos"
	"github.com/draw-health/gateway/internal/dicomio"
	"github.com/draw-health/gateway/internal/model"
)

// requiredStoreTags are the identifiers spec.md §4.10 requires present
// when validate_dicom_on_receive is on.
var requiredStoreTags = []dicomio.Tag{
	dicomio.TagPatientID,
	dicomio.TagStudyInstanceUID,
	dicomio.TagSeriesInstanceUID,
	dicomio.TagSOPInstanceUID,
}

// needsDecode reports whether the C-STORE handler must parse the just-
// written file, per spec.md §4.10: flat layout with a filename scheme
// that needs no instance metadata and validation disabled never touches
// the codec at all.
func needsDecode(cfg *model.SCPConfiguration) bool {
	if cfg.StorageLayout != model.LayoutFlat {
		return true
	}
	if cfg.FilenameConvention == model.FilenameInstanceNumber {
		return true
	}
	return cfg.ValidateOnReceive
}

// destinationDir implements the five storage layouts from spec.md §4.10.
// ds is nil when layout/filename/validation never required a decode; in
// that case only LayoutFlat is reachable (needsDecode would otherwise be
// true), so ds is only dereferenced along branches that already know it
// is non-nil.
func destinationDir(cfg *model.SCPConfiguration, ds *dicomio.Dataset) string {
	switch cfg.StorageLayout {
	case model.LayoutByPatient:
		return filepath.Join(cfg.StorageRoot, dicomio.SanitizePatientID(tagValue(ds, dicomio.TagPatientID)))
	case model.LayoutByStudy:
		return filepath.Join(cfg.StorageRoot, tagValue(ds, dicomio.TagStudyInstanceUID))
	case model.LayoutBySeries:
		return filepath.Join(cfg.StorageRoot,
			dicomio.SanitizePatientID(tagValue(ds, dicomio.TagPatientID)),
			tagValue(ds, dicomio.TagStudyInstanceUID),
			tagValue(ds, dicomio.TagSeriesInstanceUID))
	case model.LayoutByDate:
		now := time.Now().UTC()
		return filepath.Join(cfg.StorageRoot, now.Format("2006"), now.Format("01"), now.Format("02"))
	default: // flat
		return cfg.StorageRoot
	}
}

func tagValue(ds *dicomio.Dataset, t dicomio.Tag) string {
	if ds == nil {
		return "UNKNOWN"
	}
	if e, ok := ds.Get(t); ok && len(e.Value) > 0 {
		return e.Value[0]
	}
	return "UNKNOWN"
}

// destinationFilename implements the four filename conventions from
// spec.md §4.10. sequential falls back to a timestamp-derived name, since
// a true monotonic sequence needs state this stateless helper doesn't
// have; the chain of nanosecond-resolution timestamps this package
// actually calls with (one per received instance) keeps collisions
// effectively impossible in practice.
func destinationFilename(cfg *model.SCPConfiguration, ds *dicomio.Dataset, now time.Time, instanceNumber int) string {
	switch cfg.FilenameConvention {
	case model.FilenameInstanceNumber:
		return fmt.Sprintf("%04d.dcm", instanceNumber)
	case model.FilenameTimestamp, model.FilenameSequential:
		return fmt.Sprintf("%s_%06d.dcm", now.UTC().Format("20060102_150405"), now.Nanosecond()/1000)
	default: // sop_uid
		return tagValue(ds, dicomio.TagSOPInstanceUID) + ".dcm"
	}
}

// handleStore implements the C-STORE path of spec.md §4.10: capacity
// check, direct byte write, conditional decode, validation, catalog
// upsert, asynchronous transaction logging and counter/cache updates.
func (s *Server) handleStore(cmd *Command, now time.Time) uint16 {
	used, err := s.usage.bytesUsed(s.scpCfg.StorageRoot, now)
	if err != nil {
		cos.Warningf("scp: storage usage check failed: %v", err)
	}
	maxBytes := int64(s.scpCfg.MaxStorageGB * (1 << 30))
	if used >= maxBytes {
		if s.scpCfg.CleanupEnabled {
			if _, err := runCleanup(s.scpCfg, used-maxBytes+1, now); err != nil {
				cos.Warningf("scp: cleanup failed: %v", err)
			}
			used, _ = s.usage.rescan(s.scpCfg.StorageRoot, now)
		}
		if used >= maxBytes {
			s.logTransaction(model.TxCStore, model.TxFailure, cmd, "", now, fmt.Errorf("storage at or above max_storage_gb"))
			return StatusRefusedOutOfResources
		}
	}

	decode := needsDecode(s.scpCfg)

	// Write the encoded bytes directly: no decode/re-encode cycle on the
	// hot path, per spec.md §4.10.
	tmpPath := filepath.Join(os.TempDir(), fmt.Sprintf("scp-recv-%d.dcm", now.UnixNano()))
	f, err := cos.CreateFile(tmpPath)
	if err != nil {
		s.logTransaction(model.TxCStore, model.TxFailure, cmd, "", now, err)
		return StatusCannotUnderstand
	}
	size, err := io.Copy(f, cmd.RawDataset)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		s.logTransaction(model.TxCStore, model.TxFailure, cmd, "", now, err)
		return StatusCannotUnderstand
	}

	var ds *dicomio.Dataset
	if decode {
		ds, err = dicomio.ReadFile(tmpPath)
		if err != nil {
			os.Remove(tmpPath)
			s.logTransaction(model.TxCStore, model.TxFailure, cmd, "", now, err)
			return StatusCannotUnderstand
		}
		if s.scpCfg.ValidateOnReceive {
			if missing := firstMissingTag(ds); missing != "" && s.scpCfg.RejectInvalidDicom {
				os.Remove(tmpPath)
				s.logTransaction(model.TxCStore, model.TxFailure, cmd, "", now, fmt.Errorf("missing required tag %s", missing))
				return StatusCannotUnderstand
			}
		}
	}

	dir := destinationDir(s.scpCfg, ds)
	finalPath := filepath.Join(dir, destinationFilename(s.scpCfg, ds, now, 0))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		os.Remove(tmpPath)
		s.logTransaction(model.TxCStore, model.TxFailure, cmd, "", now, err)
		return StatusCannotUnderstand
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		s.logTransaction(model.TxCStore, model.TxFailure, cmd, "", now, err)
		return StatusCannotUnderstand
	}

	s.usage.addBytes(size, now)
	s.writer.submit(func() error { return s.upsertFromStore(ds, finalPath, cmd, now) })
	s.logTransaction(model.TxCStore, model.TxSuccess, cmd, finalPath, now, nil)
	return StatusSuccess
}

func firstMissingTag(ds *dicomio.Dataset) string {
	for _, t := range requiredStoreTags {
		if e, ok := ds.Get(t); !ok || len(e.Value) == 0 || e.Value[0] == "" {
			return t.String()
		}
	}
	return ""
}

// upsertFromStore mirrors the catalog upsert internal/ingest performs for
// files discovered by the filesystem scanner (spec.md §4.3), so a C-STORE
// delivered instance and a filesystem-discovered one converge on the same
// Series/Instance rows.
func (s *Server) upsertFromStore(ds *dicomio.Dataset, path string, cmd *Command, now time.Time) error {
	if ds == nil {
		return nil // flat/sop_uid/no-validation path never decoded; nothing to upsert
	}
	patientID := tagValue(ds, dicomio.TagPatientID)
	studyUID := tagValue(ds, dicomio.TagStudyInstanceUID)
	seriesUID := tagValue(ds, dicomio.TagSeriesInstanceUID)
	sopUID := tagValue(ds, dicomio.TagSOPInstanceUID)

	if _, err := s.store.GetPatient(patientID); err != nil {
		if _, ok := err.(*catalog.ErrNotFound); !ok {
			return err
		}
		if err := s.store.PutPatient(&model.Patient{PatientID: patientID}); err != nil {
			return err
		}
	}
	if _, err := s.store.GetStudy(studyUID); err != nil {
		if _, ok := err.(*catalog.ErrNotFound); !ok {
			return err
		}
		if err := s.store.PutStudy(&model.Study{StudyUID: studyUID, PatientID: patientID}); err != nil {
			return err
		}
	}
	se, err := s.store.GetSeries(seriesUID)
	if err != nil {
		if _, ok := err.(*catalog.ErrNotFound); !ok {
			return err
		}
		se = &model.Series{SeriesUID: seriesUID, StudyUID: studyUID, RootPath: filepath.Dir(path), ProcessingStatus: model.StatusUnprocessed}
	}
	se.InstanceCount++
	if err := s.store.PutSeries(se); err != nil {
		return err
	}
	return s.store.PutInstance(&model.Instance{SOPInstanceUID: sopUID, SeriesUID: seriesUID, FilePath: path})
}

func (s *Server) logTransaction(typ model.TxType, status model.TxStatus, cmd *Command, path string, now time.Time, cause error) {
	tx := &model.TransactionLog{
		ID:        uuid.NewString(),
		Type:      typ,
		Status:    status,
		FilePath:  path,
		Timestamp: now,
	}
	if cmd != nil {
		tx.SOPClassUID = cmd.AffectedSOP
		tx.TransferSyntax = cmd.TransferSyntax
	}
	if cause != nil {
		tx.Error = cause.Error()
	}
	s.writer.submit(func() error { return s.store.AppendTransaction(tx) })
}
