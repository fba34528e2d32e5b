package audit

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func seedEvents(t *testing.T, repo *memoryAuditRepo, n int) {
	t.Helper()
	ing := newTestIngestor(repo, nil)
	for i := 0; i < n; i++ {
		_, err := ing.Ingest(context.Background(),
			rawEvent(fmt.Sprintf("u%d", i%3), "tickets", "read", ResultSuccess))
		require.NoError(t, err)
	}
}

func TestQueryPaging(t *testing.T) {
	repo := &memoryAuditRepo{}
	seedEvents(t, repo, 7)
	svc := NewService(repo)
	ctx := context.Background()

	report, err := svc.Query(ctx, ReportFilters{Page: 1, PageSize: 3})
	require.NoError(t, err)
	require.Len(t, report.Rows, 3)
	require.True(t, report.Paging.HasNext)
	require.Equal(t, 2, report.Paging.NextPage)
	require.Zero(t, report.Paging.PrevPage)

	report, err = svc.Query(ctx, ReportFilters{Page: 3, PageSize: 3})
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	require.False(t, report.Paging.HasNext)
	require.Equal(t, 2, report.Paging.PrevPage)
}

func TestQueryAggregates(t *testing.T) {
	repo := &memoryAuditRepo{}
	seedEvents(t, repo, 5)
	svc := NewService(repo)

	report, err := svc.Query(context.Background(), ReportFilters{})
	require.NoError(t, err)
	require.Equal(t, int64(5), report.Aggregates.Total)
	require.Equal(t, int64(5), report.Aggregates.ByResult[ResultSuccess])
}

func TestQueryDefaultsPageSize(t *testing.T) {
	repo := &memoryAuditRepo{}
	seedEvents(t, repo, 2)
	svc := NewService(repo)

	report, err := svc.Query(context.Background(), ReportFilters{Page: -1, PageSize: 0})
	require.NoError(t, err)
	require.Equal(t, 1, report.Paging.Page)
	require.Equal(t, 50, report.Paging.PageSize)
}

func TestExportUnpaged(t *testing.T) {
	repo := &memoryAuditRepo{}
	seedEvents(t, repo, 7)
	svc := NewService(repo)

	rows, err := svc.Export(context.Background(), ReportFilters{})
	require.NoError(t, err)
	require.Len(t, rows, 7)
}

func TestWriteCSV(t *testing.T) {
	repo := &memoryAuditRepo{}
	seedEvents(t, repo, 2)
	svc := NewService(repo)

	rows, err := svc.Export(context.Background(), ReportFilters{})
	require.NoError(t, err)

	out, err := WriteCSV(rows)
	require.NoError(t, err)
	require.Contains(t, string(out), "event_id")
	require.Contains(t, string(out), "tickets")
}
