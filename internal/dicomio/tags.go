package dicomio

// Well-known tags the pipelines reference by name. Kept as a small,
// hand-maintained table rather than pulling in the full DICOM data
// dictionary, since every spec operation only ever touches this fixed set
// (spec.md §4.7, §4.8, §4.10).
var (
	TagPatientID              = Tag{0x0010, 0x0020}
	TagPatientName             = Tag{0x0010, 0x0010}
	TagPatientBirthDate        = Tag{0x0010, 0x0030}
	TagPatientSex              = Tag{0x0010, 0x0040}
	TagStudyInstanceUID        = Tag{0x0020, 0x000D}
	TagStudyDescription        = Tag{0x0008, 0x1030}
	TagStudyDate               = Tag{0x0008, 0x0020}
	TagSeriesInstanceUID       = Tag{0x0020, 0x000E}
	TagSeriesDescription       = Tag{0x0008, 0x103E}
	TagSOPInstanceUID          = Tag{0x0008, 0x0018}
	TagSOPClassUID             = Tag{0x0008, 0x0016}
	TagModality                = Tag{0x0008, 0x0060}
	TagReferringPhysicianName  = Tag{0x0008, 0x0090}
	TagAccessionNumber         = Tag{0x0008, 0x0050}
	TagFrameOfReferenceUID     = Tag{0x0020, 0x0052}
	TagReferencedFrameOfRefSeq = Tag{0x3006, 0x0010}
	TagRTReferencedStudySeq    = Tag{0x3006, 0x0012}
	TagRTReferencedSeriesSeq   = Tag{0x3006, 0x0014}
	TagReferencedSOPClassUID   = Tag{0x0008, 0x1150}
	TagReferencedSOPInstanceUID = Tag{0x0008, 0x1155}
	TagRTFrameOfReferenceUID   = Tag{0x3006, 0x0024}
	TagStructureSetROISeq      = Tag{0x3006, 0x0020}
	TagROIName                 = Tag{0x3006, 0x0026}
)

// NameToTag is the canonical-name -> Tag half of spec.md §4.2's dual-key
// requirement ("Tag lookup uses either the canonical tag name or the
// (gggg,eeee) form; both keys must be populated in the metadata map.").
var NameToTag = map[string]Tag{
	"PatientID":                TagPatientID,
	"PatientName":              TagPatientName,
	"PatientBirthDate":         TagPatientBirthDate,
	"PatientSex":               TagPatientSex,
	"StudyInstanceUID":         TagStudyInstanceUID,
	"StudyDescription":         TagStudyDescription,
	"StudyDate":                TagStudyDate,
	"SeriesInstanceUID":        TagSeriesInstanceUID,
	"SeriesDescription":        TagSeriesDescription,
	"SOPInstanceUID":           TagSOPInstanceUID,
	"SOPClassUID":              TagSOPClassUID,
	"Modality":                 TagModality,
	"ReferringPhysicianName":   TagReferringPhysicianName,
	"AccessionNumber":          TagAccessionNumber,
	"FrameOfReferenceUID":      TagFrameOfReferenceUID,
}

// ROINames enumerates StructureSetROISequence's ROIName values (spec.md
// §4.8 step 6).
func ROINames(ds *Dataset) []string {
	seq, ok := ds.Get(TagStructureSetROISeq)
	if !ok {
		return nil
	}
	var names []string
	for _, item := range seq.Sequence {
		if name, ok := item.GetString(TagROIName); ok {
			names = append(names, name)
		}
	}
	return names
}

// ReferencedSeriesUID extracts the single Referenced Series Instance UID
// by walking (0x3006,0x0010) -> (0x3006,0x0012) -> (0x3006,0x0014) ->
// (0x0020,0x000E), per spec.md §4.7 step e.
func ReferencedSeriesUID(ds *Dataset) (string, bool) {
	refFrameSeq, ok := ds.Get(TagReferencedFrameOfRefSeq)
	if !ok {
		return "", false
	}
	for _, frame := range refFrameSeq.Sequence {
		studySeq, ok := frame.Get(TagRTReferencedStudySeq)
		if !ok {
			continue
		}
		for _, study := range studySeq.Sequence {
			seriesSeq, ok := study.Get(TagRTReferencedSeriesSeq)
			if !ok {
				continue
			}
			for _, series := range seriesSeq.Sequence {
				if uid, ok := series.GetString(TagSeriesInstanceUID); ok {
					return uid, true
				}
			}
		}
	}
	return "", false
}
