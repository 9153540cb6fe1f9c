package scp

import (
	"strings"
)

// queryLevel is one of the four C-FIND information-model levels spec.md
// §4.10 supports.
type queryLevel string

const (
	levelPatient queryLevel = "PATIENT"
	levelStudy   queryLevel = "STUDY"
	levelSeries  queryLevel = "SERIES"
	levelImage   queryLevel = "IMAGE"
)

const defaultMaxQueryResults = 10000

// matchField reports whether value satisfies pattern: DICOM wildcards
// ("*"/"?") become a case-insensitive regex, a "YYYYMMDD-YYYYMMDD" range
// is treated as an inclusive date range, otherwise an exact (DICOM
// date queries also allow exact and open-ended "-YYYYMMDD"/"YYYYMMDD-")
// comparison applies. An empty pattern always matches (universal
// matching, per the C-FIND protocol).
func matchField(pattern, value string) bool {
	if pattern == "" {
		return true
	}
	if strings.Contains(pattern, "-") && isDatePattern(pattern) {
		return matchDateRange(pattern, value)
	}
	if strings.ContainsAny(pattern, "*?") {
		re, err := wildcardToRegexp(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	}
	return strings.EqualFold(pattern, value)
}

func isDatePattern(s string) bool {
	for _, r := range s {
		if r != '-' && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// matchDateRange handles "YYYYMMDD-YYYYMMDD", "YYYYMMDD-" (open end) and
// "-YYYYMMDD" (open start), the three range forms DICOM date matching
// allows.
func matchDateRange(pattern, value string) bool {
	if value == "" {
		return false
	}
	parts := strings.SplitN(pattern, "-", 2)
	lo, hi := parts[0], parts[1]
	if lo != "" && value < lo {
		return false
	}
	if hi != "" && value > hi {
		return false
	}
	return true
}

// emptyForUnknown fills in an empty string for identifier fields the
// catalog doesn't have, since spec.md §4.10 requires presence ("clients
// require presence") even when the value itself is unknown.
func emptyForUnknown(v string) string {
	return v
}

// handleFind implements the C-FIND path: query the catalog (never the
// filesystem), cap results at cfg.MaxQueryResults (default 10000).
func (s *Server) handleFind(cmd *Command) ([]map[string]string, error) {
	level := queryLevel(cmd.Identifier["QueryRetrieveLevel"])
	limit := s.scpCfg.MaxQueryResults
	if limit <= 0 {
		limit = defaultMaxQueryResults
	}

	var results []map[string]string
	switch level {
	case levelPatient:
		patients, err := s.store.ListPatients()
		if err != nil {
			return nil, err
		}
		for _, p := range patients {
			if !matchField(cmd.Identifier["PatientID"], p.PatientID) {
				continue
			}
			if !matchField(cmd.Identifier["PatientName"], p.Name) {
				continue
			}
			results = append(results, map[string]string{
				"PatientID":   p.PatientID,
				"PatientName": emptyForUnknown(p.Name),
			})
			if len(results) >= limit {
				return results, nil
			}
		}
	case levelStudy:
		studies, err := s.store.ListStudies()
		if err != nil {
			return nil, err
		}
		for _, st := range studies {
			if !matchField(cmd.Identifier["PatientID"], st.PatientID) ||
				!matchField(cmd.Identifier["StudyInstanceUID"], st.StudyUID) ||
				!matchField(cmd.Identifier["StudyDate"], st.StudyDate) {
				continue
			}
			results = append(results, map[string]string{
				"PatientID":        st.PatientID,
				"StudyInstanceUID": st.StudyUID,
				"StudyDate":        emptyForUnknown(st.StudyDate),
				"StudyDescription": emptyForUnknown(st.Description),
				"AccessionNumber":  emptyForUnknown(st.Accession),
			})
			if len(results) >= limit {
				return results, nil
			}
		}
	case levelSeries:
		series, err := s.store.ListSeries()
		if err != nil {
			return nil, err
		}
		for _, se := range series {
			if !matchField(cmd.Identifier["StudyInstanceUID"], se.StudyUID) ||
				!matchField(cmd.Identifier["SeriesInstanceUID"], se.SeriesUID) {
				continue
			}
			results = append(results, map[string]string{
				"StudyInstanceUID":  se.StudyUID,
				"SeriesInstanceUID": se.SeriesUID,
				"SeriesDescription": emptyForUnknown(se.Description),
				"Modality":          "",
			})
			if len(results) >= limit {
				return results, nil
			}
		}
	case levelImage:
		series, err := s.store.ListSeries()
		if err != nil {
			return nil, err
		}
		for _, se := range series {
			if !matchField(cmd.Identifier["SeriesInstanceUID"], se.SeriesUID) {
				continue
			}
			instances, err := s.store.ListInstancesBySeries(se.SeriesUID)
			if err != nil {
				return nil, err
			}
			for _, in := range instances {
				if !matchField(cmd.Identifier["SOPInstanceUID"], in.SOPInstanceUID) {
					continue
				}
				results = append(results, map[string]string{
					"SeriesInstanceUID": se.SeriesUID,
					"SOPInstanceUID":    in.SOPInstanceUID,
				})
				if len(results) >= limit {
					return results, nil
				}
			}
		}
	}
	return results, nil
}
