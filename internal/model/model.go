// Package model defines the catalog's entity types (spec.md §3). Every
// type here is a plain, JSON-taggable struct persisted through
// internal/catalog; none of them does I/O itself.
package model

import "time"

// Patient is created on first sight of any instance bearing patient_id.
type Patient struct {
	PatientID         string `json:"patient_id"`
	DeidentifiedID    string `json:"deidentified_id"`
	Name              string `json:"name"`
	Sex               string `json:"sex"`
	DOB               string `json:"dob"` // YYYYMMDD
}

type Study struct {
	StudyUID             string `json:"study_uid"`
	PatientID            string `json:"patient_id"`
	DeidentifiedStudyUID string `json:"deidentified_study_uid"`
	StudyDate            string `json:"study_date"`
	Description          string `json:"description"`
	Modality             string `json:"modality"`
	Accession            string `json:"accession"`
	StudyID              string `json:"study_id"`
}

// ProcessingStatus is the Series lifecycle state (spec.md §4.4).
type ProcessingStatus string

const (
	StatusUnprocessed                 ProcessingStatus = "UNPROCESSED"
	StatusRuleMatched                 ProcessingStatus = "RULE_MATCHED"
	StatusRuleNotMatched              ProcessingStatus = "RULE_NOT_MATCHED"
	StatusMultipleRulesMatched        ProcessingStatus = "MULTIPLE_RULES_MATCHED"
	StatusDeidentifiedSuccessfully    ProcessingStatus = "DEIDENTIFIED_SUCCESSFULLY"
	StatusDeidentificationFailed      ProcessingStatus = "DEIDENTIFICATION_FAILED"
	StatusPendingTransferToDrawServer ProcessingStatus = "PENDING_TRANSFER_TO_DRAW_SERVER"
	StatusSentToDrawServer            ProcessingStatus = "SENT_TO_DRAW_SERVER"
	StatusFailedTransferToDrawServer  ProcessingStatus = "FAILED_TRANSFER_TO_DRAW_SERVER"
	StatusRTStructureReceived         ProcessingStatus = "RTSTRUCTURE_RECEIVED"
	StatusInvalidRTStructureReceived  ProcessingStatus = "INVALID_RTSTRUCTURE_RECEIVED"
	StatusRTStructureExported         ProcessingStatus = "RTSTRUCTURE_EXPORTED"
	StatusRTStructureExportFailed     ProcessingStatus = "RTSTRUCTURE_EXPORT_FAILED"
)

// Terminal reports whether status is a success/failure sink with no further
// automatic transition (spec.md §4.4: RTSTRUCTURE_EXPORTED is the only
// terminal success; *_FAILED / INVALID_* are terminal-but-retryable).
func (s ProcessingStatus) Terminal() bool {
	switch s {
	case StatusRTStructureExported,
		StatusDeidentificationFailed,
		StatusFailedTransferToDrawServer,
		StatusInvalidRTStructureReceived,
		StatusRTStructureExportFailed:
		return true
	}
	return false
}

func (s ProcessingStatus) Retryable() bool {
	switch s {
	case StatusDeidentificationFailed,
		StatusFailedTransferToDrawServer,
		StatusInvalidRTStructureReceived,
		StatusRTStructureExportFailed:
		return true
	}
	return false
}

type Series struct {
	SeriesUID              string           `json:"series_uid"`
	StudyUID               string           `json:"study_uid"`
	DeidentifiedSeriesUID  string           `json:"deidentified_series_uid"`
	FrameOfReferenceUID    string           `json:"frame_of_reference_uid"`
	DeidFrameOfReferenceUID string          `json:"deidentified_frame_of_reference_uid"`
	RootPath               string           `json:"root_path"`
	Description            string           `json:"description"`
	Date                   string           `json:"date"`
	InstanceCount          int              `json:"instance_count"`
	FullyRead              bool             `json:"fully_read_flag"`
	FullyReadAt            *time.Time       `json:"fully_read_at,omitempty"`
	ProcessingStatus       ProcessingStatus `json:"processing_status"`
	MatchedRuleSets        []string         `json:"matched_rulesets,omitempty"`
	MatchedTemplates       []string         `json:"matched_templates,omitempty"`

	// scanner bookkeeping used by the stability check (spec.md §4.3); not
	// part of the public data model, but persisted alongside the row since
	// the scanner has no other durable state to consult across passes.
	LastSeenInstanceCount int       `json:"last_seen_instance_count"`
	LastSeenMaxMtime      time.Time `json:"last_seen_max_mtime"`
	LastScanPass          time.Time `json:"last_scan_pass"`
}

type Instance struct {
	SOPInstanceUID           string `json:"sop_instance_uid"`
	SeriesUID                string `json:"series_uid"`
	DeidentifiedSOPInstanceUID string `json:"deidentified_sop_instance_uid"`
	FilePath                 string `json:"file_path"`
}

type DicomTagType struct {
	Name        string `json:"name"`
	Tag         string `json:"tag"` // "(gggg,eeee)"
	Description string `json:"description"`
	VR          string `json:"value_representation"`
}

type Combinator string

const (
	CombinatorAND Combinator = "AND"
	CombinatorOR  Combinator = "OR"
)

type Operator string

const (
	OpEQ       Operator = "EQ"
	OpNEQ      Operator = "NEQ"
	OpGT       Operator = "GT"
	OpLT       Operator = "LT"
	OpGTE      Operator = "GTE"
	OpLTE      Operator = "LTE"
	OpContainsCS  Operator = "CONTAINS_CS"  // contains, case-sensitive
	OpContainsCI  Operator = "CONTAINS_CI"  // contains, case-insensitive
	OpNContainsCS Operator = "NOT_CONTAINS_CS"
	OpNContainsCI Operator = "NOT_CONTAINS_CI"
	OpExactCI     Operator = "EXACT_CI" // exact, case-insensitive (EQ covers exact+case-sensitive)
	OpNExactCI    Operator = "NOT_EXACT_CI"
)

type Rule struct {
	ID             string     `json:"id"`
	RuleSetID      string     `json:"ruleset_id"`
	Order          int        `json:"order"`
	TagName        string     `json:"tag_name"`
	Operator       Operator   `json:"operator"`
	LiteralValue   string     `json:"literal_value"`
	CombinatorNext Combinator `json:"combinator_with_next"`
}

type RuleSet struct {
	ID                string     `json:"id"`
	RuleGroupID       string     `json:"rulegroup_id"`
	Order             int        `json:"order"`
	Name              string     `json:"name"`
	CombinatorNext    Combinator `json:"combinator_with_next_ruleset"`
}

type RuleGroup struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	TemplateID   string `json:"template_id"`
}

type TransferStatus string

const (
	TransferPending           TransferStatus = "PENDING"
	TransferCompleted         TransferStatus = "COMPLETED"
	TransferFailed            TransferStatus = "FAILED"
	TransferRTStructReceived  TransferStatus = "RTSTRUCT_RECEIVED"
	TransferChecksumMismatch  TransferStatus = "CHECKSUM_MATCH_FAILED"
	TransferInvalidRTStruct   TransferStatus = "INVALID_RTSTRUCT_FILE"
)

type Export struct {
	ID                      string         `json:"id"`
	SeriesUID               string         `json:"series_uid"`
	ZipPath                 string         `json:"zip_path"`
	ZipSHA256               string         `json:"zip_sha256"`
	TransferStatus          TransferStatus `json:"transfer_status"`
	TransferredAt           *time.Time     `json:"transferred_at,omitempty"`
	ServerTaskID            string         `json:"server_task_id"`
	ServerSegmentationStatus string        `json:"server_segmentation_status"`
	ServerStatusUpdatedAt   *time.Time     `json:"server_status_updated_at,omitempty"`
}

// TerminalSegmentationStatuses are the remote-side statuses that take an
// Export row out of poll scope (spec.md §4.7).
var TerminalSegmentationStatuses = map[string]bool{
	"Delivered to Client": true,
	"Transfer Completed":  true,
}

type Import struct {
	ID                     string     `json:"id"`
	SeriesUID              string     `json:"series_uid"`
	ExportID               string     `json:"export_id"`
	ReceivedSOPInstanceUID string     `json:"received_sop_instance_uid"`
	DownloadedPath         string     `json:"downloaded_path"`
	ReceivedSHA256         string     `json:"received_sha256"`
	ReceivedAt             *time.Time `json:"received_at,omitempty"`
	ReidentifiedPath       string     `json:"reidentified_path,omitempty"`
	ReidentifiedAt         *time.Time `json:"reidentified_at,omitempty"`

	AssessorName   string     `json:"assessor_name,omitempty"`
	DateReviewed   *time.Time `json:"date_reviewed,omitempty"`
	TimeRequiredS  int        `json:"time_required_s,omitempty"`
	OverallRating  int        `json:"overall_rating,omitempty"` // 0..10
}

type VOIModificationClass string

type VOI struct {
	ID                string                `json:"id"`
	ImportID          string                `json:"import_id"`
	VolumeName        string                `json:"volume_name"`
	ModificationClass VOIModificationClass  `json:"modification_class,omitempty"`
	ModificationTypes []string              `json:"modification_types,omitempty"`
	Comments          string                `json:"comments,omitempty"`
}

type StorageLayout string

const (
	LayoutFlat      StorageLayout = "flat"
	LayoutByPatient StorageLayout = "by_patient"
	LayoutByStudy   StorageLayout = "by_study"
	LayoutBySeries  StorageLayout = "by_series"
	LayoutByDate    StorageLayout = "by_date"
)

type FilenameConvention string

const (
	FilenameSOPUID         FilenameConvention = "sop_uid"
	FilenameInstanceNumber FilenameConvention = "instance_number"
	FilenameTimestamp      FilenameConvention = "timestamp"
	FilenameSequential     FilenameConvention = "sequential"
)

// SystemConfiguration is a singleton (primary key fixed to 1, spec.md §9).
// SystemConfiguration's json tags double as its cmd/drawnode bootstrap YAML
// keys (gopkg.in/yaml.v2 lowercases untagged field names instead of
// snake-casing them, so an explicit yaml tag is needed wherever a bootstrap
// file may set the field).
type SystemConfiguration struct {
	ID                      int       `json:"id" yaml:"id"` // always 1
	BaseURL                 string    `json:"base_url" yaml:"base_url"` // must end with "/"
	ClientID                string    `json:"client_id" yaml:"client_id"`
	UploadEndpoint          string    `json:"upload_endpoint" yaml:"upload_endpoint"`
	StatusEndpoint          string    `json:"status_endpoint" yaml:"status_endpoint"`     // contains {task_id}
	DownloadEndpoint        string    `json:"download_endpoint" yaml:"download_endpoint"` // contains {task_id}
	NotifyEndpoint          string    `json:"notify_endpoint" yaml:"notify_endpoint"`
	TokenRefreshEndpoint    string    `json:"token_refresh_endpoint" yaml:"token_refresh_endpoint"`
	BearerTokenEncrypted    []byte    `json:"bearer_token_encrypted,omitempty" yaml:"-"`
	RefreshTokenEncrypted   []byte    `json:"refresh_token_encrypted,omitempty" yaml:"-"`
	TokenExpiry             time.Time `json:"token_expiry" yaml:"-"`
	IngestRoot              string    `json:"ingest_root" yaml:"ingest_root"`
	PullStartDateTime       time.Time `json:"pull_start_datetime" yaml:"-"`
	StudyDateBasedFiltering bool      `json:"study_date_based_filtering" yaml:"study_date_based_filtering"`

	// RequireDisambiguation governs how the chain orchestrator handles a
	// series that matches more than one RuleGroup (spec.md §9 Open
	// Question). False (default): the series exports once regardless of
	// how many templates matched - the upload itself carries no
	// per-template parameter, so every matched template is recorded on the
	// Series row for audit but doesn't change what's sent. True: the
	// series is left at MULTIPLE_RULES_MATCHED until an operator resolves
	// it with `drawctl series choose-template`.
	RequireDisambiguation bool `json:"require_disambiguation" yaml:"require_disambiguation"`

	// Comparison-engine collaborator endpoints (spec.md §1's spatial-overlap
	// comparison engine; its interface, not its metric internals, is in
	// scope - see SPEC_FULL.md SUPPLEMENTED FEATURES). Empty ComparisonBaseURL
	// means the collaborator isn't configured and internal/comparison.Client
	// calls fail fast the same way remoteapi.Client does on an empty BaseURL.
	ComparisonBaseURL          string `json:"comparison_base_url" yaml:"comparison_base_url"`
	ComparisonUploadEndpoint   string `json:"comparison_upload_endpoint" yaml:"comparison_upload_endpoint"`
	ComparisonComputeEndpoint  string `json:"comparison_compute_endpoint" yaml:"comparison_compute_endpoint"`   // contains {comparison_id}
	ComparisonBulkAsyncEndpoint string `json:"comparison_bulk_async_endpoint" yaml:"comparison_bulk_async_endpoint"`
	ComparisonBulkStatusEndpoint string `json:"comparison_bulk_status_endpoint" yaml:"comparison_bulk_status_endpoint"` // contains {task_id}
}

// ComparisonResult is the persisted outcome of one spatial-overlap
// comparison between an auto-segmented RT Structure Set and a reference one
// (named after the ComparisonResult type spatial_overlap/views.py imports
// from its own models module - not itself retrieved into this pack, so only
// the interface views.py exercises is modeled here, not its schema; the
// metric formulas are a Non-goal regardless).
type ComparisonResult struct {
	ID               string             `json:"id"`
	SeriesUID        string             `json:"series_uid"`
	ImportID         string             `json:"import_id"`         // auto-segmented side
	ReferenceUploadID string            `json:"reference_upload_id"` // uploaded reference side
	TaskID           string             `json:"task_id,omitempty"` // set once bulk-async compute is requested
	Status           ComparisonStatus   `json:"status"`
	Metrics          map[string]float64 `json:"metrics,omitempty"` // e.g. "dice", "hausdorff_mm", keyed by VOI name
	ComputedAt       *time.Time         `json:"computed_at,omitempty"`
}

type ComparisonStatus string

const (
	ComparisonPending  ComparisonStatus = "PENDING"
	ComparisonComputed ComparisonStatus = "COMPUTED"
	ComparisonFailed   ComparisonStatus = "FAILED"
)

type SCPConfiguration struct {
	ID                   int                  `json:"id" yaml:"id"` // always 1
	AETitle              string               `json:"ae_title" yaml:"ae_title"`
	BindHost             string               `json:"bind_host" yaml:"bind_host"`
	Port                 int                  `json:"port" yaml:"port"`
	MaxAssociations      int                  `json:"max_associations" yaml:"max_associations"`
	PDUSize              int                  `json:"pdu_size" yaml:"pdu_size"`
	NetworkTimeoutS      int                  `json:"network_timeout_s" yaml:"network_timeout_s"`
	ACSETimeoutS         int                  `json:"acse_timeout_s" yaml:"acse_timeout_s"`
	DIMSETimeoutS        int                  `json:"dimse_timeout_s" yaml:"dimse_timeout_s"`
	SOPClasses           []string             `json:"sop_classes" yaml:"sop_classes"`
	TransferSyntaxes     []string             `json:"transfer_syntaxes" yaml:"transfer_syntaxes"`
	StorageLayout        StorageLayout        `json:"storage_layout" yaml:"storage_layout"`
	FilenameConvention   FilenameConvention   `json:"filename_convention" yaml:"filename_convention"`
	MaxStorageGB         float64              `json:"max_storage_gb" yaml:"max_storage_gb"`
	CleanupEnabled       bool                 `json:"cleanup_enabled" yaml:"cleanup_enabled"`
	RetentionDays        int                  `json:"retention_days" yaml:"retention_days"`
	AEAllowList          []string             `json:"ae_allow_list" yaml:"ae_allow_list"`
	IPAllowList          []string             `json:"ip_allow_list" yaml:"ip_allow_list"` // plain IPs or CIDRs
	ValidateAE           bool                 `json:"validate_ae" yaml:"validate_ae"`
	ValidateIP           bool                 `json:"validate_ip" yaml:"validate_ip"`
	EnableCEcho          bool                 `json:"enable_cecho" yaml:"enable_cecho"`
	EnableCStore         bool                 `json:"enable_cstore" yaml:"enable_cstore"`
	EnableCFind          bool                 `json:"enable_cfind" yaml:"enable_cfind"`
	EnableCMove          bool                 `json:"enable_cmove" yaml:"enable_cmove"`
	EnableCGet           bool                 `json:"enable_cget" yaml:"enable_cget"`
	LogLevel             string               `json:"log_level" yaml:"log_level"`
	ValidateOnReceive    bool                 `json:"validate_dicom_on_receive" yaml:"validate_dicom_on_receive"`
	RejectInvalidDicom   bool                 `json:"reject_invalid_dicom" yaml:"reject_invalid_dicom"`
	MaxQueryResults      int                  `json:"max_query_results" yaml:"max_query_results"`
	StorageRoot          string               `json:"storage_root" yaml:"storage_root"`
}

// DefaultSystemConfiguration is what a freshly initialized catalog reports
// before an operator runs `drawctl config set-system` - every endpoint empty,
// nothing scheduled, matching the teacher's "zero-value cluster config
// until bootstrapped" convention.
func DefaultSystemConfiguration() *SystemConfiguration {
	return &SystemConfiguration{
		ID:         1,
		IngestRoot: "/data/ingest",
	}
}

// DefaultSCPConfiguration mirrors the teacher's compiled-in defaults
// (cf. cmn.Config defaults) rather than leaving zero-value timeouts that
// would make the SCP refuse every association.
func DefaultSCPConfiguration() *SCPConfiguration {
	return &SCPConfiguration{
		ID:                 1,
		AETitle:            "DRAWGATEWAY",
		BindHost:           "0.0.0.0",
		Port:               11112,
		MaxAssociations:    8,
		PDUSize:            16384,
		NetworkTimeoutS:    30,
		ACSETimeoutS:       30,
		DIMSETimeoutS:      30,
		SOPClasses:         []string{"1.2.840.10008.5.1.4.1.1.481.3"}, // RT Structure Set Storage
		TransferSyntaxes:   []string{"1.2.840.10008.1.2", "1.2.840.10008.1.2.1"},
		MaxStorageGB:       500,
		CleanupEnabled:     true,
		RetentionDays:      30,
		ValidateAE:         true,
		ValidateIP:         false,
		EnableCEcho:        true,
		EnableCStore:       true,
		EnableCFind:        true,
		EnableCMove:        true,
		EnableCGet:         true,
		LogLevel:           "INFO",
		ValidateOnReceive:  true,
		RejectInvalidDicom: true,
		MaxQueryResults:    10000,
		StorageRoot:        "/data/scp-store",
	}
}

type ArchivalProvider string

const (
	ArchivalProviderNone  ArchivalProvider = ""
	ArchivalProviderS3    ArchivalProvider = "s3"
	ArchivalProviderGCS   ArchivalProvider = "gcs"
	ArchivalProviderAzure ArchivalProvider = "azure"
)

// ArchivalConfiguration is a singleton (primary key fixed to 1) describing
// the optional off-site copy of export zips / reidentified RT Structures
// (SPEC_FULL component K). Archival is best-effort: a misconfigured or
// unreachable backend never blocks the Series state machine.
type ArchivalConfiguration struct {
	ID       int              `json:"id" yaml:"id"` // always 1
	Enabled  bool             `json:"enabled" yaml:"enabled"`
	Provider ArchivalProvider `json:"provider" yaml:"provider"`

	// S3 / MinIO
	S3Bucket   string `json:"s3_bucket,omitempty" yaml:"s3_bucket,omitempty"`
	S3Region   string `json:"s3_region,omitempty" yaml:"s3_region,omitempty"`
	S3Endpoint string `json:"s3_endpoint,omitempty" yaml:"s3_endpoint,omitempty"` // non-empty selects a MinIO-style custom endpoint

	// GCS
	GCSBucket    string `json:"gcs_bucket,omitempty" yaml:"gcs_bucket,omitempty"`
	GCSProjectID string `json:"gcs_project_id,omitempty" yaml:"gcs_project_id,omitempty"`

	// Azure Blob
	AzureAccount   string `json:"azure_account,omitempty" yaml:"azure_account,omitempty"`
	AzureContainer string `json:"azure_container,omitempty" yaml:"azure_container,omitempty"`
}

// DefaultArchivalConfiguration leaves archival off until an operator
// configures a provider, matching the teacher's "no cloud backend until
// the operator registers one" convention (cf. cmn.Config.Backend).
func DefaultArchivalConfiguration() *ArchivalConfiguration {
	return &ArchivalConfiguration{ID: 1}
}

type RemoteDicomNode struct {
	AETitle               string     `json:"ae_title"`
	Host                   string     `json:"host"`
	Port                   int        `json:"port"`
	AllowIncoming          bool       `json:"allow_incoming"`
	IsActive               bool       `json:"is_active"`
	LastIncomingAt         *time.Time `json:"last_incoming_at,omitempty"`
	LastSuccessfulOutgoing *time.Time `json:"last_successful_outgoing_at,omitempty"`
}

type TxType string

const (
	TxCEcho       TxType = "C-ECHO"
	TxCStore      TxType = "C-STORE"
	TxCFind       TxType = "C-FIND"
	TxCMove       TxType = "C-MOVE"
	TxCGet        TxType = "C-GET"
	TxAssociation TxType = "ASSOCIATION"
	TxCleanup     TxType = "CLEANUP"
	TxArchive     TxType = "ARCHIVE"
)

type TxStatus string

const (
	TxSuccess  TxStatus = "SUCCESS"
	TxFailure  TxStatus = "FAILURE"
	TxRejected TxStatus = "REJECTED"
	TxTimeout  TxStatus = "TIMEOUT"
	TxAborted  TxStatus = "ABORTED"
)

// TransactionLog is append-only (spec.md invariant 8): never update a row
// once written, only insert.
type TransactionLog struct {
	ID              string    `json:"id"`
	Type            TxType    `json:"type"`
	Status          TxStatus  `json:"status"`
	CallingAE       string    `json:"calling_ae,omitempty"`
	CalledAE        string    `json:"called_ae,omitempty"`
	RemoteIP        string    `json:"remote_ip,omitempty"`
	RemotePort      int       `json:"remote_port,omitempty"`
	PatientID       string    `json:"patient_id,omitempty"`
	StudyUID        string    `json:"study_uid,omitempty"`
	SeriesUID       string    `json:"series_uid,omitempty"`
	SOPInstanceUID  string    `json:"sop_instance_uid,omitempty"`
	SOPClassUID     string    `json:"sop_class_uid,omitempty"`
	FilePath        string    `json:"file_path,omitempty"`
	FileSize        int64     `json:"file_size,omitempty"`
	TransferSyntax  string    `json:"transfer_syntax,omitempty"`
	DurationS       float64   `json:"duration_s,omitempty"`
	TransferSpeedMbps float64 `json:"transfer_speed_mbps,omitempty"`
	Error           string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// ServiceStatus is a singleton (primary key fixed to 1).
type ServiceStatus struct {
	ID                     int        `json:"id"`
	IsRunning              bool       `json:"is_running"`
	PID                    int        `json:"pid"`
	StartedAt              *time.Time `json:"started_at,omitempty"`
	StoppedAt              *time.Time `json:"stopped_at,omitempty"`
	TotalConnections       int64      `json:"total_connections"`
	ActiveConnections      int64      `json:"active_connections"`
	TotalFilesReceived     int64      `json:"total_files_received"`
	TotalBytesReceived     int64      `json:"total_bytes_received"`
	TotalErrors            int64      `json:"total_errors"`
	LastConnectionAt       *time.Time `json:"last_connection_at,omitempty"`
	LastFileReceivedAt     *time.Time `json:"last_file_received_at,omitempty"`
	CachedStorageBytes     int64      `json:"cached_storage_bytes"`
	CachedStorageUpdatedAt *time.Time `json:"cached_storage_updated_at,omitempty"`
}

type LockStatus string

const (
	LockHeld    LockStatus = "HELD"
	LockExpired LockStatus = "EXPIRED"
)

// ChainLock implements spec.md invariant 6 (mutual exclusion over the
// ingest->match->export->poll->reidentify chain).
type ChainLock struct {
	Name      string    `json:"name"` // unique, e.g. "dicom_processing_chain"
	ChainID   string    `json:"chain_id"`
	StartedAt time.Time `json:"started_at"`
	StartedBy string    `json:"started_by"`
	ExpiresAt time.Time `json:"expires_at"`
	Status    LockStatus `json:"status"`
}

type StatisticsSample struct {
	ID             string    `json:"id"`
	ParameterName  string    `json:"parameter_name"`
	ParameterValue float64   `json:"parameter_value"`
	CreatedAt      time.Time `json:"created_at"`
}
