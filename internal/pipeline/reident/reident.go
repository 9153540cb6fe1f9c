// Package reident implements spec.md §4.8: rewrite a downloaded RT
// Structure's demographics and UIDs back to the values the original
// series carried, write it alongside the original series, and record the
// VOIs it contains.
package reident

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/draw-health/gateway/internal/archive"
	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/cos"
	"github.com/draw-health/gateway/internal/dicomio"
	"github.com/draw-health/gateway/internal/model"
)

// FixedAccessionNumber is the customer-specified literal accession number
// stamped onto every reidentified RT Structure (spec.md §4.8 step 2).
const FixedAccessionNumber = "202514789"

const referringPhysician = "DRAW"

// Pipeline reidentifies downloaded RT Structures for RTSTRUCTURE_RECEIVED
// series with an associated Import row.
type Pipeline struct {
	store    *catalog.Store
	archiver *archive.Uploader // optional, nil when archival is disabled
}

func NewPipeline(store *catalog.Store, archiver *archive.Uploader) *Pipeline {
	return &Pipeline{store: store, archiver: archiver}
}

// RunOne reidentifies the RT Structure recorded by im, belonging to se.
func (p *Pipeline) RunOne(se *model.Series, im *model.Import, now time.Time) error {
	if err := p.runOne(se, im, now); err != nil {
		se.ProcessingStatus = model.StatusRTStructureExportFailed
		p.store.PutSeries(se)
		return cos.Wrap(cos.ReidentificationFailed, se.SeriesUID, err, "reidentify rtstruct")
	}
	return nil
}

func (p *Pipeline) runOne(se *model.Series, im *model.Import, now time.Time) error {
	study, err := p.store.GetStudy(se.StudyUID)
	if err != nil {
		return err
	}
	patient, err := p.store.GetPatient(study.PatientID)
	if err != nil {
		return err
	}
	instances, err := p.store.ListInstancesBySeries(se.SeriesUID)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		return fmt.Errorf("series %s has no instances to build a uid map from", se.SeriesUID)
	}

	ds, err := dicomio.ReadFile(im.DownloadedPath)
	if err != nil {
		return err
	}

	rewriteDemographics(ds, patient, study, se)

	uidMap := make(map[string]string, len(instances)+2)
	for _, in := range instances {
		if in.DeidentifiedSOPInstanceUID != "" {
			uidMap[in.DeidentifiedSOPInstanceUID] = in.SOPInstanceUID
		}
	}
	if se.DeidentifiedSeriesUID != "" {
		uidMap[se.DeidentifiedSeriesUID] = se.SeriesUID
	}
	if study.DeidentifiedStudyUID != "" {
		uidMap[study.DeidentifiedStudyUID] = study.StudyUID
	}

	if err := substituteUIDs(ds, se.FrameOfReferenceUID, uidMap); err != nil {
		return err
	}

	dest := destinationPath(se.RootPath, patient.PatientID, now)
	if err := dicomio.WriteFile(dest, ds); err != nil {
		return err
	}

	im.ReidentifiedPath = dest
	im.ReidentifiedAt = timePtr(now)
	if err := p.store.PutImport(im); err != nil {
		return err
	}

	if err := p.insertVOIs(ds, im); err != nil {
		return err
	}

	se.ProcessingStatus = model.StatusRTStructureExported
	if err := p.store.PutSeries(se); err != nil {
		return err
	}

	p.archiveReidentified(patient.PatientID, se.SeriesUID, dest, now)

	return cos.RemoveFile(im.DownloadedPath)
}

// archiveReidentified best-effort-archives the reidentified RT Structure
// off-site; a read failure here is logged and swallowed, never surfaced
// to the caller - archival never gates reidentification (spec.md §4.8).
func (p *Pipeline) archiveReidentified(patientID, seriesUID, path string, now time.Time) {
	if p.archiver == nil {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		cos.Warningf("reident: read %s for archival: %v", path, err)
		return
	}
	p.archiver.UploadReidentified(context.Background(), patientID, seriesUID, data, now)
}

// rewriteDemographics implements spec.md §4.8 step 2: overwrite plain-text
// identifiers from the catalog's originals. The RT Structure's own
// SeriesInstanceUID is left untouched, per spec.
func rewriteDemographics(ds *dicomio.Dataset, patient *model.Patient, study *model.Study, se *model.Series) {
	ds.Set(dicomio.TagPatientID, "LO", patient.PatientID)
	ds.Set(dicomio.TagPatientName, "PN", patient.Name)
	ds.Set(dicomio.TagPatientBirthDate, "DA", patient.DOB)
	ds.Set(dicomio.TagPatientSex, "CS", patient.Sex)

	ds.Set(dicomio.TagStudyInstanceUID, "UI", study.StudyUID)
	ds.Set(dicomio.TagStudyDescription, "LO", study.Description)
	ds.Set(dicomio.TagStudyDate, "DA", study.StudyDate)

	ds.Set(dicomio.TagSeriesDescription, "LO", se.Description)

	ds.Set(dicomio.TagReferringPhysicianName, "PN", referringPhysician)
	ds.Set(dicomio.TagAccessionNumber, "SH", FixedAccessionNumber)
}

// substituteUIDs implements spec.md §4.8 step 3: walk every element,
// substituting the Frame-of-Reference UID at (0020,0052)/(3006,0024) and
// UID-mapped values at (0008,1155)/(0020,000E). Unmapped values are left
// untouched; misses are logged rather than treated as errors.
func substituteUIDs(ds *dicomio.Dataset, frameOfReferenceUID string, uidMap map[string]string) error {
	return ds.Walk(func(e *dicomio.Element) error {
		switch e.Tag {
		case dicomio.TagFrameOfReferenceUID, dicomio.TagRTFrameOfReferenceUID:
			if frameOfReferenceUID != "" && len(e.Value) > 0 {
				e.Value = []string{frameOfReferenceUID}
			}
		case dicomio.TagReferencedSOPInstanceUID, dicomio.TagSeriesInstanceUID:
			if len(e.Value) == 0 {
				return nil
			}
			for i, v := range e.Value {
				if mapped, ok := uidMap[v]; ok {
					e.Value[i] = mapped
				} else {
					cos.Warningf("reident: unmapped uid %s at %s, left untouched", v, e.Tag)
				}
			}
		}
		return nil
	})
}

func destinationPath(seriesRoot, patientID string, now time.Time) string {
	filename := fmt.Sprintf("RS_%s_DRAW_%s.dcm", dicomio.SanitizePatientID(patientID), now.UTC().Format("20060102_150405"))
	return seriesRoot + "/" + filename
}

// insertVOIs implements spec.md §4.8 step 6: one VOI row per ROI name.
func (p *Pipeline) insertVOIs(ds *dicomio.Dataset, im *model.Import) error {
	for _, name := range dicomio.ROINames(ds) {
		voi := &model.VOI{
			ID:         uuid.NewString(),
			ImportID:   im.ID,
			VolumeName: name,
		}
		if err := p.store.PutVOI(voi); err != nil {
			return err
		}
	}
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }
