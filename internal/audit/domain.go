package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/sentra-sec/sentra/internal/shared"
)

// Result classifies the outcome of the recorded operation.
type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultFailure Result = "FAILURE"
	ResultError   Result = "ERROR"
)

// Event types accepted by the ingestor.
const (
	EventAuthentication = "authentication"
	EventAuthorization  = "authorization"
	EventDataAccess     = "data_access"
	EventAdminAction    = "admin_action"
	EventSystemChange   = "system_change"
)

// ComplianceTag marks an event as relevant to a compliance regime.
type ComplianceTag string

const (
	TagGDPR             ComplianceTag = "gdpr"
	TagSOC2Security     ComplianceTag = "soc2_security"
	TagSOC2Availability ComplianceTag = "soc2_availability"
	TagPCIDSS           ComplianceTag = "pci_dss"
	TagHIPAA            ComplianceTag = "hipaa"
)

// DataClassification is the sensitivity class of the touched resource.
type DataClassification string

const (
	ClassPublic       DataClassification = "public"
	ClassInternal     DataClassification = "internal"
	ClassConfidential DataClassification = "confidential"
	ClassRestricted   DataClassification = "restricted"
)

// RawSecurityEvent is the ingestion input as produced by callers.
type RawSecurityEvent struct {
	EventType string         `json:"event_type"`
	UserID    string         `json:"user_id"`
	Resource  string         `json:"resource"`
	Action    string         `json:"action"`
	Result    Result         `json:"result"`
	Context   map[string]any `json:"context_data,omitempty"`
}

// AuditEvent is the append-only persisted record. Once written it is never
// updated; deletion happens only through partition drops by the retention
// manager, and never while LegalHold is set.
type AuditEvent struct {
	EventID            string
	Seq                int64
	Timestamp          time.Time
	EventType          string
	UserID             string
	Resource           string
	Action             string
	Result             Result
	RiskScore          int
	ComplianceTags     []ComplianceTag
	DataClassification DataClassification
	RetentionDays      int
	LegalHold          bool
	Payload            map[string]any
	PrevHash           string
	Hash               string
}

// Validate checks the raw event is well formed.
func (e RawSecurityEvent) Validate() error {
	switch e.EventType {
	case EventAuthentication, EventAuthorization, EventDataAccess, EventAdminAction, EventSystemChange:
	default:
		return fmt.Errorf("audit: unknown event type %q: %w", e.EventType, shared.ErrValidation)
	}
	switch e.Result {
	case ResultSuccess, ResultFailure, ResultError:
	default:
		return fmt.Errorf("audit: unknown result %q: %w", e.Result, shared.ErrValidation)
	}
	if strings.TrimSpace(e.Action) == "" {
		return fmt.Errorf("audit: action required: %w", shared.ErrValidation)
	}
	return nil
}
