package pit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ashare-data-lab/internal/dataservice"
	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/storage/memory"
)

func f(v float64) *float64 { return &v }

func stmt(code, ann, end, report string, revenue float64, flag int, seq int64) *domain.StatementRow {
	return &domain.StatementRow{
		TSCode:     code,
		AnnDate:    ann,
		EndDate:    end,
		ReportType: report,
		Revenue:    f(revenue),
		UpdateFlag: flag,
		IngestSeq:  seq,
	}
}

func TestReconstruct_LatestAnnouncementWins(t *testing.T) {
	rows := []*domain.StatementRow{
		stmt("000001.SZ", "20240315", "20231231", "1", 100, 0, 1),
		stmt("000001.SZ", "20240420", "20231231", "1", 110, 1, 2), // restatement
		stmt("000001.SZ", "20231030", "20230930", "1", 80, 0, 3),
	}

	winners := Reconstruct(rows, nil)
	require.Len(t, winners, 2)

	// Sorted by (ts_code, end_date, report_type): Q3 first, then FY.
	assert.Equal(t, "20230930", winners[0].EndDate)
	assert.InDelta(t, 80, *winners[0].Revenue, 1e-9)

	assert.Equal(t, "20231231", winners[1].EndDate)
	assert.Equal(t, "20240420", winners[1].AnnDate, "later announcement wins")
	assert.InDelta(t, 110, *winners[1].Revenue, 1e-9)
	assert.Equal(t, 1, winners[1].UpdateFlag)
}

func TestReconstruct_TieBreaks(t *testing.T) {
	// Same ann_date: the restatement (update_flag 1) wins.
	rows := []*domain.StatementRow{
		stmt("000001.SZ", "20240315", "20231231", "1", 100, 0, 1),
		stmt("000001.SZ", "20240315", "20231231", "1", 105, 1, 2),
	}
	winners := Reconstruct(rows, nil)
	require.Len(t, winners, 1)
	assert.InDelta(t, 105, *winners[0].Revenue, 1e-9)

	// Same ann_date and flag: the later ingest wins.
	rows = []*domain.StatementRow{
		stmt("000001.SZ", "20240315", "20231231", "1", 100, 0, 9),
		stmt("000001.SZ", "20240315", "20231231", "1", 101, 0, 3),
	}
	winners = Reconstruct(rows, nil)
	require.Len(t, winners, 1)
	assert.InDelta(t, 100, *winners[0].Revenue, 1e-9)
}

func TestReconstruct_InputOrderIrrelevant(t *testing.T) {
	a := []*domain.StatementRow{
		stmt("000001.SZ", "20240315", "20231231", "1", 100, 0, 1),
		stmt("000001.SZ", "20240420", "20231231", "1", 110, 1, 2),
	}
	b := []*domain.StatementRow{a[1], a[0]}

	assert.Equal(t, Reconstruct(a, nil), Reconstruct(b, nil))
}

func TestReconstruct_DropsNullKeysAndFilters(t *testing.T) {
	rows := []*domain.StatementRow{
		stmt("", "20240315", "20231231", "1", 100, 0, 1),
		stmt("000001.SZ", "20240315", "", "1", 100, 0, 2),
		stmt("000001.SZ", "20240315", "20231231", "1", 100, 0, 3),
		stmt("600519.SH", "20240402", "20231231", "1", 150, 0, 4),
	}

	winners := Reconstruct(rows, []string{"000001.SZ"})
	require.Len(t, winners, 1)
	assert.Equal(t, "000001.SZ", winners[0].TSCode)
}

type pitFixture struct {
	statements *memory.StatementStore
	pitStore   *memory.PITStore
	watermarks *memory.WatermarkStore
	svc        *DataService
}

func newPitFixture(t *testing.T) *pitFixture {
	t.Helper()
	fx := &pitFixture{
		statements: memory.NewStatementStore(),
		pitStore:   memory.NewPITStore(),
		watermarks: memory.NewWatermarkStore(),
	}
	fx.svc = New(dataservice.Config{}, nil, fx.statements, fx.pitStore, fx.watermarks)
	return fx
}

func TestFullRebuild_ReconstructsAllPeriods(t *testing.T) {
	ctx := context.Background()
	fx := newPitFixture(t)
	require.NoError(t, fx.statements.InsertBulk(ctx, []*domain.StatementRow{
		stmt("000001.SZ", "20240315", "20231231", "1", 100, 0, 1),
		stmt("000001.SZ", "20240420", "20231231", "1", 110, 1, 2),
		stmt("600519.SH", "20240402", "20231231", "1", 150, 0, 3),
	}))

	res, err := fx.svc.FullRebuild(ctx, dataservice.RebuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.Equal(t, int64(2), res.RowsInserted)

	rows, err := fx.pitStore.GetByCode(ctx, "000001.SZ")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "20240420", rows[0].AnnDate)

	mark, err := fx.watermarks.Get(ctx, DomainName, "raw_statements")
	require.NoError(t, err)
	assert.Equal(t, "20240420", mark)
}

func TestIncrementalUpdate_ReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fx := newPitFixture(t)
	require.NoError(t, fx.statements.InsertBulk(ctx, []*domain.StatementRow{
		stmt("000001.SZ", "20240315", "20231231", "1", 100, 0, 1),
	}))

	first, err := fx.svc.IncrementalUpdate(ctx, dataservice.UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, first.Status)
	assert.Equal(t, int64(1), first.RowsInserted)

	second, err := fx.svc.IncrementalUpdate(ctx, dataservice.UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSkipped, second.Status)
	assert.Zero(t, second.RowsInserted)
	assert.Zero(t, second.RowsUpdated)
}

func TestIncrementalUpdate_RestatementReplacesOriginal(t *testing.T) {
	ctx := context.Background()
	fx := newPitFixture(t)
	require.NoError(t, fx.statements.InsertBulk(ctx, []*domain.StatementRow{
		stmt("000001.SZ", "20240315", "20231231", "1", 100, 0, 1),
	}))

	_, err := fx.svc.IncrementalUpdate(ctx, dataservice.UpdateOptions{})
	require.NoError(t, err)

	require.NoError(t, fx.statements.InsertBulk(ctx, []*domain.StatementRow{
		stmt("000001.SZ", "20240420", "20231231", "1", 110, 1, 2),
	}))

	res, err := fx.svc.IncrementalUpdate(ctx, dataservice.UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.Equal(t, int64(1), res.RowsUpdated)

	rows, err := fx.pitStore.GetByCode(ctx, "000001.SZ")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 110, *rows[0].Revenue, 1e-9)
}

// A stale replay (earlier ann_date than the stored winner) must not
// overwrite the reconstructed row.
func TestIncrementalUpdate_StaleReplayDoesNotRegress(t *testing.T) {
	ctx := context.Background()
	fx := newPitFixture(t)
	require.NoError(t, fx.statements.InsertBulk(ctx, []*domain.StatementRow{
		stmt("000001.SZ", "20240315", "20231231", "1", 100, 0, 1),
		stmt("000001.SZ", "20240420", "20231231", "1", 110, 1, 2),
	}))

	_, err := fx.svc.IncrementalUpdate(ctx, dataservice.UpdateOptions{})
	require.NoError(t, err)

	// Rewind the watermark and replay the full announcement history.
	res, err := fx.svc.IncrementalUpdate(ctx, dataservice.UpdateOptions{Since: "20240301"})
	require.NoError(t, err)
	assert.Zero(t, res.RowsUpdated, "replayed announcements must lose to the stored winner")

	rows, err := fx.pitStore.GetByCode(ctx, "000001.SZ")
	require.NoError(t, err)
	assert.InDelta(t, 110, *rows[0].Revenue, 1e-9)
}

func TestValidate_PitWorld(t *testing.T) {
	ctx := context.Background()
	fx := newPitFixture(t)
	require.NoError(t, fx.statements.InsertBulk(ctx, []*domain.StatementRow{
		stmt("000001.SZ", "20240315", "20231231", "1", 100, 0, 1),
	}))

	_, err := fx.svc.FullRebuild(ctx, dataservice.RebuildOptions{})
	require.NoError(t, err)

	res, err := fx.svc.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.True(t, res.AllChecksPassed())
}

func TestValidate_DetectsMissingReconstruction(t *testing.T) {
	ctx := context.Background()
	fx := newPitFixture(t)
	require.NoError(t, fx.statements.InsertBulk(ctx, []*domain.StatementRow{
		stmt("000001.SZ", "20240315", "20231231", "1", 100, 0, 1),
	}))

	// No rebuild ran: the pit table is missing the implied period.
	res, err := fx.svc.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, res.Status)
}
