package audit

import (
	"context"
	"fmt"
	"time"
)

// ReportFilters narrows the reporting queries.
type ReportFilters struct {
	From     time.Time
	To       time.Time
	UserID   string
	Resource string
	Tag      ComplianceTag
	Page     int
	PageSize int
}

// PagingInfo describes the paging state of a report.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Report bundles filtered events with aggregate counts.
type Report struct {
	Rows       []AuditEvent
	Aggregates Aggregates
	Paging     PagingInfo
}

// Service provides read-only reporting over the audit log. It exposes no
// mutation path.
type Service struct {
	repo Repository
}

// NewService constructs a reporting service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Query returns a page of events plus aggregates for the filter.
func (s *Service) Query(ctx context.Context, filters ReportFilters) (Report, error) {
	if s.repo == nil {
		return Report{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	filter := Filter{
		From:     filters.From,
		To:       filters.To,
		UserID:   filters.UserID,
		Resource: filters.Resource,
		Tag:      filters.Tag,
		Limit:    pageSize + 1,
		Offset:   (page - 1) * pageSize,
	}
	rows, err := s.repo.Query(ctx, filter)
	if err != nil {
		return Report{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}

	agg, err := s.repo.Aggregates(ctx, filter)
	if err != nil {
		return Report{}, err
	}

	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Report{Rows: rows, Aggregates: agg, Paging: paging}, nil
}

// Export returns all events matching the filter without paging.
func (s *Service) Export(ctx context.Context, filters ReportFilters) ([]AuditEvent, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	const exportCap = 100000
	filter := Filter{
		From:     filters.From,
		To:       filters.To,
		UserID:   filters.UserID,
		Resource: filters.Resource,
		Tag:      filters.Tag,
		Limit:    exportCap,
	}
	return s.repo.Query(ctx, filter)
}
