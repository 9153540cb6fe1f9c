// Package ingest implements spec.md §4.3: walk ingest_root, identify and
// read DICOM files (no pixels), upsert Patient/Study/Series/Instance rows,
// and decide when a Series has become "fully read".
//
// Grounded on the teacher's fs.Walk (fs/walk.go): godirwalk-driven,
// error-threshold halting rather than abort-on-first-error, one callback
// per directory entry. The cuckoofilter pre-check generalizes the
// teacher's "already resolved, skip" idiom seen in `lru`'s candidate
// pre-filtering, applied here to file paths instead of object fqns.
package ingest

import (
	"os"
	"path/filepath"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/seiflotfy/cuckoofilter"

	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/cos"
	"github.com/draw-health/gateway/internal/dicomio"
	"github.com/draw-health/gateway/internal/model"
)

const errThreshold = 1000

// Scanner walks SystemConfiguration.ingest_root once per Scan call; callers
// (the chain orchestrator) invoke it on a schedule.
type Scanner struct {
	store *catalog.Store
	seen  *cuckoo.Filter // path-level idempotence pre-check; catalog remains the source of truth
}

func NewScanner(store *catalog.Store) *Scanner {
	return &Scanner{
		store: store,
		seen:  cuckoo.NewFilter(1 << 20),
	}
}

// Result summarizes one scan pass for logging/statistics.
type Result struct {
	FilesVisited   int
	FilesIngested  int
	FilesSkipped   int
	Errors         int
	SeriesBecameFullyRead []string
}

// Scan walks cfg.IngestRoot and upserts catalog rows. now is injected so
// callers (and tests) control the instant used for stability comparisons
// and filtering, rather than Scan calling time.Now() itself.
func (s *Scanner) Scan(cfg *model.SystemConfiguration, now time.Time) (*Result, error) {
	res := &Result{}
	errCount := 0

	err := godirwalk.Walk(cfg.IngestRoot, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			res.FilesVisited++
			ingested, err := s.ingestFile(cfg, path, now)
			if err != nil {
				cos.Warningf("ingest: %s: %v", path, err)
				res.Errors++
				return nil // soft error, keep walking
			}
			if ingested {
				res.FilesIngested++
			} else {
				res.FilesSkipped++
			}
			return nil
		},
		ErrorCallback: func(_ string, err error) godirwalk.ErrorAction {
			errCount++
			if errCount > errThreshold {
				return godirwalk.Halt
			}
			return godirwalk.SkipNode
		},
		Unsorted: true,
	})
	if err != nil {
		return res, cos.Wrap(cos.FormatInvalid, cfg.IngestRoot, err, "walk ingest root")
	}

	becameFullyRead, err := s.checkStability(now)
	if err != nil {
		return res, err
	}
	res.SeriesBecameFullyRead = becameFullyRead
	return res, nil
}

// ingestFile reads one file's metadata and upserts the catalog. Returns
// false (no error) when the file is filtered out or already known.
func (s *Scanner) ingestFile(cfg *model.SystemConfiguration, path string, now time.Time) (bool, error) {
	if s.seen.Lookup([]byte(path)) {
		return false, nil // spec.md §4.3 "Idempotence": re-ingesting the same path is a no-op
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	ds, err := dicomio.ReadFile(path)
	if err != nil {
		// not a DICOM file, or malformed - counted as an error and skipped,
		// without aborting the walk (spec.md §4.3 "Filtering").
		return false, err
	}

	if !cfg.StudyDateBasedFiltering && info.ModTime().Before(cfg.PullStartDateTime) {
		return false, nil
	}

	patientID, _ := ds.GetString(dicomio.TagPatientID)
	studyUID, _ := ds.GetString(dicomio.TagStudyInstanceUID)
	seriesUID, _ := ds.GetString(dicomio.TagSeriesInstanceUID)
	sopUID, _ := ds.GetString(dicomio.TagSOPInstanceUID)
	studyDate, _ := ds.GetString(dicomio.TagStudyDate)

	if cfg.StudyDateBasedFiltering {
		cutoff := cfg.PullStartDateTime.Format("20060102")
		if studyDate != "" && studyDate < cutoff {
			return false, nil
		}
	}

	if err := s.upsertPatient(patientID, ds); err != nil {
		return false, err
	}
	if err := s.upsertStudy(studyUID, patientID, studyDate, ds); err != nil {
		return false, err
	}
	if err := s.upsertSeries(seriesUID, studyUID, path, now, ds); err != nil {
		return false, err
	}
	if err := s.upsertInstance(sopUID, seriesUID, path); err != nil {
		return false, err
	}

	s.seen.Insert([]byte(path))
	return true, nil
}

func (s *Scanner) upsertPatient(patientID string, ds *dicomio.Dataset) error {
	if patientID == "" {
		return nil
	}
	if _, err := s.store.GetPatient(patientID); err == nil {
		return nil // already present; idempotent
	}
	name, _ := ds.GetString(dicomio.TagPatientName)
	sex, _ := ds.GetString(dicomio.TagPatientSex)
	dob, _ := ds.GetString(dicomio.TagPatientBirthDate)
	return s.store.PutPatient(&model.Patient{
		PatientID: patientID, Name: name, Sex: sex, DOB: dob,
	})
}

func (s *Scanner) upsertStudy(studyUID, patientID, studyDate string, ds *dicomio.Dataset) error {
	if studyUID == "" {
		return nil
	}
	if _, err := s.store.GetStudy(studyUID); err == nil {
		return nil
	}
	return s.store.PutStudy(&model.Study{
		StudyUID: studyUID, PatientID: patientID,
	})
}

func (s *Scanner) upsertSeries(seriesUID, studyUID, path string, now time.Time, ds *dicomio.Dataset) error {
	if seriesUID == "" {
		return nil
	}
	desc, _ := ds.GetString(dicomio.TagSeriesDescription)
	existing, err := s.store.GetSeries(seriesUID)
	if _, ok := err.(*catalog.ErrNotFound); ok {
		existing = &model.Series{
			SeriesUID:   seriesUID,
			StudyUID:    studyUID,
			RootPath:    filepath.Dir(path),
			Description: desc,
		}
	} else if err != nil {
		return err
	}
	existing.LastSeenMaxMtime = maxTime(existing.LastSeenMaxMtime, modTimeOf(path))
	existing.LastScanPass = now
	return s.store.PutSeries(existing)
}

func (s *Scanner) upsertInstance(sopUID, seriesUID, path string) error {
	if sopUID == "" {
		return nil
	}
	if _, err := s.store.GetInstance(sopUID); err == nil {
		return nil
	}
	return s.store.PutInstance(&model.Instance{
		SOPInstanceUID: sopUID, SeriesUID: seriesUID, FilePath: path,
	})
}

// checkStability implements spec.md §4.3 "Stability (fully-read decision)":
// a Series becomes fully read when, across two consecutive scan passes
// separated by at least one scan interval, its instance count and max
// instance mtime are both unchanged.
func (s *Scanner) checkStability(now time.Time) ([]string, error) {
	all, err := s.store.ListSeries()
	if err != nil {
		return nil, err
	}
	var becameFullyRead []string
	for _, se := range all {
		if se.FullyRead {
			continue
		}
		instances, err := s.store.ListInstancesBySeries(se.SeriesUID)
		if err != nil {
			return nil, err
		}
		count := len(instances)
		var maxMtime time.Time
		for _, in := range instances {
			maxMtime = maxTime(maxMtime, modTimeOf(in.FilePath))
		}
		stable := count > 0 && count == se.LastSeenInstanceCount &&
			maxMtime.Equal(se.LastSeenMaxMtime) && !se.LastScanPass.IsZero()
		se.LastSeenInstanceCount = count
		se.LastSeenMaxMtime = maxMtime
		se.LastScanPass = now
		if stable {
			se.FullyRead = true
			se.FullyReadAt = timePtr(now)
			se.InstanceCount = count
			if se.ProcessingStatus == "" {
				se.ProcessingStatus = model.StatusUnprocessed
			}
			becameFullyRead = append(becameFullyRead, se.SeriesUID)
		}
		if err := s.store.PutSeries(se); err != nil {
			return nil, err
		}
	}
	return becameFullyRead, nil
}

func modTimeOf(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func timePtr(t time.Time) *time.Time { return &t }
