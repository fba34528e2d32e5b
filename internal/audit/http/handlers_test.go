package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sentra-sec/sentra/internal/audit"
)

type stubIngestor struct {
	last audit.RawSecurityEvent
	err  error
}

func (s *stubIngestor) Ingest(ctx context.Context, raw audit.RawSecurityEvent) (audit.AuditEvent, error) {
	if s.err != nil {
		return audit.AuditEvent{}, s.err
	}
	s.last = raw
	return audit.AuditEvent{
		EventID:   "ev-1",
		Seq:       1,
		Timestamp: time.Now().UTC(),
		EventType: raw.EventType,
		UserID:    raw.UserID,
		Resource:  raw.Resource,
		Action:    raw.Action,
		Result:    raw.Result,
		RiskScore: audit.RiskScore(raw),
		PrevHash:  audit.GenesisHash,
		Hash:      "abc",
	}, nil
}

type stubReportService struct {
	filters audit.ReportFilters
	report  audit.Report
}

func (s *stubReportService) Query(ctx context.Context, filters audit.ReportFilters) (audit.Report, error) {
	s.filters = filters
	return s.report, nil
}

func (s *stubReportService) Export(ctx context.Context, filters audit.ReportFilters) ([]audit.AuditEvent, error) {
	s.filters = filters
	return s.report.Rows, nil
}

type openGuard struct{}

func (openGuard) Require(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}

func newTestRouter(ingestor Ingestor, service ReportService) http.Handler {
	h := NewHandler(nil, ingestor, service)
	r := chi.NewRouter()
	h.MountRoutes(r, openGuard{})
	return r
}

func TestHandleIngest(t *testing.T) {
	ingestor := &stubIngestor{}
	router := newTestRouter(ingestor, &stubReportService{})

	body := `{"event_type":"data_access","user_id":"u1","resource":"tickets","action":"read","result":"SUCCESS"}`
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "u1", ingestor.last.UserID)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ev-1", resp["event_id"])
	// Chain head state never leaves the service on the ingest path.
	require.NotContains(t, resp, "seq")
	require.NotContains(t, resp, "hash")
	require.NotContains(t, resp, "prev_hash")
}

func TestHandleIngestRejectsBadResult(t *testing.T) {
	router := newTestRouter(&stubIngestor{}, &stubReportService{})

	body := `{"event_type":"data_access","action":"read","result":"MAYBE"}`
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListDefaultRange(t *testing.T) {
	service := &stubReportService{}
	router := newTestRouter(&stubIngestor{}, service)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.InDelta(t, 7*24*time.Hour, service.filters.To.Sub(service.filters.From), float64(time.Minute))
}

func TestHandleListClampsRange(t *testing.T) {
	service := &stubReportService{}
	router := newTestRouter(&stubIngestor{}, service)

	req := httptest.NewRequest(http.MethodGet,
		"/events?from=2025-01-01T00:00:00Z&to=2025-12-31T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 90*24*time.Hour, service.filters.To.Sub(service.filters.From))
}

func TestHandleListRejectsInvalidFilters(t *testing.T) {
	router := newTestRouter(&stubIngestor{}, &stubReportService{})

	for _, query := range []string{
		"?from=notatime",
		"?from=2025-02-01T00:00:00Z&to=2025-01-01T00:00:00Z",
		"?page=0",
		"?page_size=-5",
	} {
		req := httptest.NewRequest(http.MethodGet, "/events"+query, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestHandleExportCSV(t *testing.T) {
	service := &stubReportService{report: audit.Report{Rows: []audit.AuditEvent{{
		EventID:   "ev-1",
		Seq:       1,
		Timestamp: time.Now().UTC(),
		EventType: audit.EventDataAccess,
		Resource:  "tickets",
		Action:    "read",
		Result:    audit.ResultSuccess,
	}}}}
	router := newTestRouter(&stubIngestor{}, service)

	req := httptest.NewRequest(http.MethodGet, "/events/export", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "audit-events.csv")
	require.Contains(t, rec.Body.String(), "ev-1")
}
