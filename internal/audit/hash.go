package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// GenesisHash is the previous-hash value of the first record in the chain.
var GenesisHash = strings.Repeat("0", 64)

// canonicalEvent fixes the field order for hashing. All fields are scalars or
// slices of scalars so json.Marshal produces deterministic bytes; the free-form
// payload is folded in through its own deterministic marshal.
type canonicalEvent struct {
	EventID        string   `json:"event_id"`
	Seq            int64    `json:"seq"`
	Timestamp      string   `json:"ts"`
	EventType      string   `json:"event_type"`
	UserID         string   `json:"user_id"`
	Resource       string   `json:"resource"`
	Action         string   `json:"action"`
	Result         string   `json:"result"`
	RiskScore      int      `json:"risk_score"`
	ComplianceTags []string `json:"compliance_tags"`
	Classification string   `json:"data_classification"`
	RetentionDays  int      `json:"retention_period_days"`
	LegalHold      bool     `json:"legal_hold"`
	Payload        string   `json:"payload"`
	PrevHash       string   `json:"prev_hash"`
}

// ComputeHash returns the SHA-256 hex digest linking the event to its
// predecessor. The verifier recomputes this from stored fields, so any change
// to the canonical layout is a breaking change to existing chains.
func ComputeHash(e AuditEvent) string {
	tags := make([]string, len(e.ComplianceTags))
	for i, tag := range e.ComplianceTags {
		tags[i] = string(tag)
	}
	payload := ""
	if len(e.Payload) > 0 {
		// map keys marshal in sorted order, keeping the digest stable.
		if data, err := json.Marshal(e.Payload); err == nil {
			payload = string(data)
		}
	}
	canonical := canonicalEvent{
		EventID:        e.EventID,
		Seq:            e.Seq,
		Timestamp:      e.Timestamp.UTC().Format(time.RFC3339Nano),
		EventType:      e.EventType,
		UserID:         e.UserID,
		Resource:       e.Resource,
		Action:         e.Action,
		Result:         string(e.Result),
		RiskScore:      e.RiskScore,
		ComplianceTags: tags,
		Classification: string(e.DataClassification),
		RetentionDays:  e.RetentionDays,
		LegalHold:      e.LegalHold,
		Payload:        payload,
		PrevHash:       e.PrevHash,
	}
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
