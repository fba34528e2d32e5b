package audit

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WriteCSV renders events as a CSV document for compliance export.
func WriteCSV(rows []AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{
		"seq", "event_id", "timestamp", "event_type", "user_id", "resource",
		"action", "result", "risk_score", "compliance_tags",
		"data_classification", "retention_days", "legal_hold", "prev_hash", "hash",
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, row := range rows {
		tags := make([]string, 0, len(row.ComplianceTags))
		for _, tag := range row.ComplianceTags {
			tags = append(tags, string(tag))
		}
		record := []string{
			strconv.FormatInt(row.Seq, 10),
			row.EventID,
			row.Timestamp.UTC().Format(time.RFC3339Nano),
			row.EventType,
			row.UserID,
			row.Resource,
			row.Action,
			string(row.Result),
			strconv.Itoa(row.RiskScore),
			strings.Join(tags, ";"),
			string(row.DataClassification),
			strconv.Itoa(row.RetentionDays),
			strconv.FormatBool(row.LegalHold),
			row.PrevHash,
			row.Hash,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("audit: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
