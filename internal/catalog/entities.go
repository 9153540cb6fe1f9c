package catalog

import (
	"github.com/draw-health/gateway/internal/cos"
	"github.com/draw-health/gateway/internal/model"
)

// singletonKey is the fixed row key used for the two configuration
// singletons, the service status row and the chain lock row - spec.md §3
// pins their ID to 1 so there is never more than one row per collection.
const singletonKey = "1"

// Collection names - one buntdb "namespace" per entity, mirroring the
// teacher's one-bucket-per-kind layout.
const (
	colPatients       = "patients"
	colStudies        = "studies"
	colSeries         = "series"
	colInstances      = "instances"
	colTagTypes       = "tagtypes"
	colRuleGroups     = "rulegroups"
	colRuleSets       = "rulesets"
	colRules          = "rules"
	colExports        = "exports"
	colImports        = "imports"
	colVOIs           = "vois"
	colComparisons    = "comparisons"
	colSysConfig      = "sysconfig"
	colSCPConfig      = "scpconfig"
	colArchivalConfig = "archivalconfig"
	colRemoteNodes    = "remotenodes"
	colTxLog          = "txlog"
	colSvcStatus      = "svcstatus"
	colChainLock      = "chainlock"
	colStats          = "stats"
)

func (s *Store) PutPatient(p *model.Patient) error { return s.Set(colPatients, p.PatientID, p) }
func (s *Store) GetPatient(id string) (*model.Patient, error) {
	var p model.Patient
	if err := s.Get(colPatients, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPatients() ([]*model.Patient, error) {
	raws, err := s.List(colPatients, "")
	if err != nil {
		return nil, err
	}
	out := make([]*model.Patient, 0, len(raws))
	for _, raw := range raws {
		p := &model.Patient{}
		if err := unmarshalInto(raw, p); err == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) PutStudy(st *model.Study) error { return s.Set(colStudies, st.StudyUID, st) }
func (s *Store) GetStudy(uid string) (*model.Study, error) {
	var st model.Study
	if err := s.Get(colStudies, uid, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) ListStudies() ([]*model.Study, error) {
	raws, err := s.List(colStudies, "")
	if err != nil {
		return nil, err
	}
	out := make([]*model.Study, 0, len(raws))
	for _, raw := range raws {
		st := &model.Study{}
		if err := unmarshalInto(raw, st); err == nil {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *Store) ListStudiesByPatient(patientID string) ([]*model.Study, error) {
	all, err := s.ListStudies()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, st := range all {
		if st.PatientID == patientID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *Store) ListSeriesByStudy(studyUID string) ([]*model.Series, error) {
	all, err := s.ListSeries()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, se := range all {
		if se.StudyUID == studyUID {
			out = append(out, se)
		}
	}
	return out, nil
}

func (s *Store) PutSeries(se *model.Series) error { return s.Set(colSeries, se.SeriesUID, se) }
func (s *Store) GetSeries(uid string) (*model.Series, error) {
	var se model.Series
	if err := s.Get(colSeries, uid, &se); err != nil {
		return nil, err
	}
	return &se, nil
}

// GetSeriesByDeidentifiedUID resolves a deidentified series UID back to its
// original Series row (spec.md invariant 1 - this is the reconciliation
// path the poll/reidentify pipelines depend on).
func (s *Store) GetSeriesByDeidentifiedUID(deidUID string) (*model.Series, error) {
	raws, err := s.List(colSeries, "")
	if err != nil {
		return nil, err
	}
	for _, raw := range raws {
		var se model.Series
		if err := unmarshalInto(raw, &se); err != nil {
			continue
		}
		if se.DeidentifiedSeriesUID == deidUID {
			return &se, nil
		}
	}
	return nil, &ErrNotFound{Collection: colSeries, Key: deidUID}
}

func (s *Store) ListSeries() ([]*model.Series, error) {
	raws, err := s.List(colSeries, "")
	if err != nil {
		return nil, err
	}
	out := make([]*model.Series, 0, len(raws))
	for _, raw := range raws {
		se := &model.Series{}
		if err := unmarshalInto(raw, se); err != nil {
			continue
		}
		out = append(out, se)
	}
	return out, nil
}

func (s *Store) ListSeriesByStatus(status model.ProcessingStatus) ([]*model.Series, error) {
	all, err := s.ListSeries()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, se := range all {
		if se.ProcessingStatus == status {
			out = append(out, se)
		}
	}
	return out, nil
}

func (s *Store) PutInstance(in *model.Instance) error {
	return s.Set(colInstances, in.SOPInstanceUID, in)
}
func (s *Store) GetInstance(uid string) (*model.Instance, error) {
	var in model.Instance
	if err := s.Get(colInstances, uid, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

func (s *Store) ListInstancesBySeries(seriesUID string) ([]*model.Instance, error) {
	raws, err := s.List(colInstances, "")
	if err != nil {
		return nil, err
	}
	var out []*model.Instance
	for _, raw := range raws {
		in := &model.Instance{}
		if err := unmarshalInto(raw, in); err != nil {
			continue
		}
		if in.SeriesUID == seriesUID {
			out = append(out, in)
		}
	}
	return out, nil
}

func (s *Store) PutRuleGroup(g *model.RuleGroup) error { return s.Set(colRuleGroups, g.ID, g) }
func (s *Store) ListRuleGroups() ([]*model.RuleGroup, error) {
	raws, err := s.List(colRuleGroups, "")
	if err != nil {
		return nil, err
	}
	out := make([]*model.RuleGroup, 0, len(raws))
	for _, raw := range raws {
		g := &model.RuleGroup{}
		if err := unmarshalInto(raw, g); err == nil {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Store) PutRuleSet(rs *model.RuleSet) error { return s.Set(colRuleSets, rs.ID, rs) }
func (s *Store) ListRuleSetsByGroup(groupID string) ([]*model.RuleSet, error) {
	raws, err := s.List(colRuleSets, "")
	if err != nil {
		return nil, err
	}
	var out []*model.RuleSet
	for _, raw := range raws {
		rs := &model.RuleSet{}
		if err := unmarshalInto(raw, rs); err != nil {
			continue
		}
		if rs.RuleGroupID == groupID {
			out = append(out, rs)
		}
	}
	return out, nil
}

func (s *Store) PutRule(r *model.Rule) error { return s.Set(colRules, r.ID, r) }
func (s *Store) ListRulesBySet(ruleSetID string) ([]*model.Rule, error) {
	raws, err := s.List(colRules, "")
	if err != nil {
		return nil, err
	}
	var out []*model.Rule
	for _, raw := range raws {
		r := &model.Rule{}
		if err := unmarshalInto(raw, r); err != nil {
			continue
		}
		if r.RuleSetID == ruleSetID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) PutExport(e *model.Export) error { return s.Set(colExports, e.ID, e) }
func (s *Store) GetExport(id string) (*model.Export, error) {
	var e model.Export
	if err := s.Get(colExports, id, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
func (s *Store) ListExports() ([]*model.Export, error) {
	raws, err := s.List(colExports, "")
	if err != nil {
		return nil, err
	}
	out := make([]*model.Export, 0, len(raws))
	for _, raw := range raws {
		e := &model.Export{}
		if err := unmarshalInto(raw, e); err == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) PutImport(im *model.Import) error { return s.Set(colImports, im.ID, im) }
func (s *Store) ListImportsByExport(exportID string) ([]*model.Import, error) {
	raws, err := s.List(colImports, "")
	if err != nil {
		return nil, err
	}
	var out []*model.Import
	for _, raw := range raws {
		im := &model.Import{}
		if err := unmarshalInto(raw, im); err != nil {
			continue
		}
		if im.ExportID == exportID {
			out = append(out, im)
		}
	}
	return out, nil
}

// ListImportsBySeries returns every Import row for a series, most recent
// first not guaranteed - callers needing "the" import for a series (there
// is normally exactly one per successful poll) should pick by ReceivedAt.
func (s *Store) ListImportsBySeries(seriesUID string) ([]*model.Import, error) {
	raws, err := s.List(colImports, "")
	if err != nil {
		return nil, err
	}
	var out []*model.Import
	for _, raw := range raws {
		im := &model.Import{}
		if err := unmarshalInto(raw, im); err != nil {
			continue
		}
		if im.SeriesUID == seriesUID {
			out = append(out, im)
		}
	}
	return out, nil
}

func (s *Store) PutVOI(v *model.VOI) error { return s.Set(colVOIs, v.ID, v) }

func (s *Store) PutComparisonResult(cr *model.ComparisonResult) error {
	return s.Set(colComparisons, cr.ID, cr)
}

func (s *Store) GetComparisonResult(id string) (*model.ComparisonResult, error) {
	var cr model.ComparisonResult
	if err := s.Get(colComparisons, id, &cr); err != nil {
		return nil, err
	}
	return &cr, nil
}

// ListComparisonResultsBySeries backs `drawctl` comparison inspection and
// the bulk-async poller's "which of mine are still PENDING" check.
func (s *Store) ListComparisonResultsBySeries(seriesUID string) ([]*model.ComparisonResult, error) {
	raws, err := s.List(colComparisons, "")
	if err != nil {
		return nil, err
	}
	var out []*model.ComparisonResult
	for _, raw := range raws {
		cr := &model.ComparisonResult{}
		if err := unmarshalInto(raw, cr); err != nil {
			continue
		}
		if cr.SeriesUID == seriesUID {
			out = append(out, cr)
		}
	}
	return out, nil
}

func (s *Store) PutRemoteNode(n *model.RemoteDicomNode) error {
	return s.Set(colRemoteNodes, n.AETitle, n)
}
func (s *Store) ListRemoteNodes() ([]*model.RemoteDicomNode, error) {
	raws, err := s.List(colRemoteNodes, "")
	if err != nil {
		return nil, err
	}
	out := make([]*model.RemoteDicomNode, 0, len(raws))
	for _, raw := range raws {
		n := &model.RemoteDicomNode{}
		if err := unmarshalInto(raw, n); err == nil {
			out = append(out, n)
		}
	}
	return out, nil
}

// AppendTransaction inserts a row; spec.md invariant 8 forbids ever
// rewriting one, so there is deliberately no corresponding Update method.
func (s *Store) AppendTransaction(t *model.TransactionLog) error {
	return s.Set(colTxLog, t.ID, t)
}

func (s *Store) ListTransactions() ([]*model.TransactionLog, error) {
	raws, err := s.List(colTxLog, "")
	if err != nil {
		return nil, err
	}
	out := make([]*model.TransactionLog, 0, len(raws))
	for _, raw := range raws {
		t := &model.TransactionLog{}
		if err := unmarshalInto(raw, t); err == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) AppendStatSample(st *model.StatisticsSample) error {
	return s.Set(colStats, st.ID, st)
}

func (s *Store) ListStatSamples() ([]*model.StatisticsSample, error) {
	raws, err := s.List(colStats, "")
	if err != nil {
		return nil, err
	}
	out := make([]*model.StatisticsSample, 0, len(raws))
	for _, raw := range raws {
		st := &model.StatisticsSample{}
		if err := unmarshalInto(raw, st); err == nil {
			out = append(out, st)
		}
	}
	return out, nil
}

// GetSystemConfiguration and GetSCPConfiguration return the teacher's
// "fill in defaults if missing" pattern (cf. the bootstrap config the
// teacher loads via jsp on first run) rather than erroring on a cold
// catalog, since both configurations are required for the daemon to run.
func (s *Store) GetSystemConfiguration() (*model.SystemConfiguration, error) {
	var c model.SystemConfiguration
	err := s.Get(colSysConfig, singletonKey, &c)
	if _, ok := err.(*ErrNotFound); ok {
		return model.DefaultSystemConfiguration(), nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) PutSystemConfiguration(c *model.SystemConfiguration) error {
	return s.Set(colSysConfig, singletonKey, c)
}

func (s *Store) GetSCPConfiguration() (*model.SCPConfiguration, error) {
	var c model.SCPConfiguration
	err := s.Get(colSCPConfig, singletonKey, &c)
	if _, ok := err.(*ErrNotFound); ok {
		return model.DefaultSCPConfiguration(), nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) PutSCPConfiguration(c *model.SCPConfiguration) error {
	return s.Set(colSCPConfig, singletonKey, c)
}

// SCPConfigurationExists reports whether an SCP configuration row has
// ever been written, distinguishing a genuinely fresh catalog from one
// that happens to match the defaults GetSCPConfiguration would return.
func (s *Store) SCPConfigurationExists() (bool, error) {
	var c model.SCPConfiguration
	err := s.Get(colSCPConfig, singletonKey, &c)
	if _, ok := err.(*ErrNotFound); ok {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) GetArchivalConfiguration() (*model.ArchivalConfiguration, error) {
	var c model.ArchivalConfiguration
	err := s.Get(colArchivalConfig, singletonKey, &c)
	if _, ok := err.(*ErrNotFound); ok {
		return model.DefaultArchivalConfiguration(), nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) PutArchivalConfiguration(c *model.ArchivalConfiguration) error {
	return s.Set(colArchivalConfig, singletonKey, c)
}

func (s *Store) GetServiceStatus() (*model.ServiceStatus, error) {
	var st model.ServiceStatus
	err := s.Get(colSvcStatus, singletonKey, &st)
	if _, ok := err.(*ErrNotFound); ok {
		return &model.ServiceStatus{ID: 1}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) PutServiceStatus(st *model.ServiceStatus) error {
	return s.Set(colSvcStatus, singletonKey, st)
}

func unmarshalInto(raw string, v interface{}) error {
	return cos.Unmarshal([]byte(raw), v)
}
