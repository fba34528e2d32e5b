// Package audithttp exposes the audit ingestion and reporting API.
package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sentra-sec/sentra/internal/audit"
	"github.com/sentra-sec/sentra/internal/platform/httpx"
	"github.com/sentra-sec/sentra/internal/shared"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

// Ingestor accepts raw security events.
type Ingestor interface {
	Ingest(ctx context.Context, raw audit.RawSecurityEvent) (audit.AuditEvent, error)
}

// ReportService serves filtered audit reports.
type ReportService interface {
	Query(ctx context.Context, filters audit.ReportFilters) (audit.Report, error)
	Export(ctx context.Context, filters audit.ReportFilters) ([]audit.AuditEvent, error)
}

// Handler serves the audit API.
type Handler struct {
	logger    *slog.Logger
	ingestor  Ingestor
	service   ReportService
	validator *validator.Validate
	now       func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, ingestor Ingestor, service ReportService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		ingestor:  ingestor,
		service:   service,
		validator: validator.New(),
		now:       time.Now,
	}
}

type ingestRequest struct {
	EventType string         `json:"event_type" validate:"required"`
	UserID    string         `json:"user_id"`
	Resource  string         `json:"resource"`
	Action    string         `json:"action" validate:"required"`
	Result    string         `json:"result" validate:"required,oneof=SUCCESS FAILURE ERROR"`
	Context   map[string]any `json:"context_data"`
}

type eventResponse struct {
	EventID            string         `json:"event_id"`
	Seq                int64          `json:"seq"`
	Timestamp          time.Time      `json:"timestamp"`
	EventType          string         `json:"event_type"`
	UserID             string         `json:"user_id,omitempty"`
	Resource           string         `json:"resource,omitempty"`
	Action             string         `json:"action"`
	Result             string         `json:"result"`
	RiskScore          int            `json:"risk_score"`
	ComplianceTags     []string       `json:"compliance_tags"`
	DataClassification string         `json:"data_classification"`
	RetentionDays      int            `json:"retention_days"`
	LegalHold          bool           `json:"legal_hold"`
	Context            map[string]any `json:"context_data,omitempty"`
	PrevHash           string         `json:"prev_hash"`
	Hash               string         `json:"hash"`
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	ev, err := h.ingestor.Ingest(r.Context(), audit.RawSecurityEvent{
		EventType: req.EventType,
		UserID:    req.UserID,
		Resource:  req.Resource,
		Action:    req.Action,
		Result:    audit.Result(req.Result),
		Context:   req.Context,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	// The id is the only field callers get back. Sequence numbers and chain
	// hashes stay internal; exposing the head would aid targeted tampering.
	httpx.JSON(w, http.StatusCreated, map[string]string{"event_id": ev.EventID})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	report, err := h.service.Query(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit report query", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	rows := make([]eventResponse, 0, len(report.Rows))
	for _, row := range report.Rows {
		rows = append(rows, toEventResponse(row))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"events":     rows,
		"aggregates": report.Aggregates,
		"paging":     report.Paging,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	csvBytes, err := audit.WriteCSV(rows)
	if err != nil {
		h.logger.Error("encode csv", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-events.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(r *http.Request) (audit.ReportFilters, error) {
	q := r.URL.Query()
	now := h.now().UTC()

	filters := audit.ReportFilters{
		From:     now.Add(-defaultDateRange),
		To:       now,
		UserID:   strings.TrimSpace(q.Get("user_id")),
		Resource: strings.TrimSpace(q.Get("resource")),
		Tag:      audit.ComplianceTag(strings.TrimSpace(q.Get("tag"))),
	}

	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.ReportFilters{}, shared.ErrValidation
		}
		filters.From = ts
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.ReportFilters{}, shared.ErrValidation
		}
		filters.To = ts
	}
	if filters.To.Before(filters.From) {
		return audit.ReportFilters{}, shared.ErrValidation
	}
	if filters.To.Sub(filters.From) > maxDateRange {
		filters.From = filters.To.Add(-maxDateRange)
	}

	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return audit.ReportFilters{}, shared.ErrValidation
		}
		filters.Page = page
	}
	if raw := q.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return audit.ReportFilters{}, shared.ErrValidation
		}
		filters.PageSize = size
	}
	return filters, nil
}

func toEventResponse(ev audit.AuditEvent) eventResponse {
	tags := make([]string, 0, len(ev.ComplianceTags))
	for _, tag := range ev.ComplianceTags {
		tags = append(tags, string(tag))
	}
	return eventResponse{
		EventID:            ev.EventID,
		Seq:                ev.Seq,
		Timestamp:          ev.Timestamp,
		EventType:          ev.EventType,
		UserID:             ev.UserID,
		Resource:           ev.Resource,
		Action:             ev.Action,
		Result:             string(ev.Result),
		RiskScore:          ev.RiskScore,
		ComplianceTags:     tags,
		DataClassification: string(ev.DataClassification),
		RetentionDays:      ev.RetentionDays,
		LegalHold:          ev.LegalHold,
		Context:            ev.Payload,
		PrevHash:           ev.PrevHash,
		Hash:               ev.Hash,
	}
}
