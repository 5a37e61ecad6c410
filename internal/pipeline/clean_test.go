package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ashare-data-lab/internal/domain"
)

func f(v float64) *float64 { return &v }

func rawBar(code, date string, close *float64, seq int64) *domain.DailyBar {
	return &domain.DailyBar{TSCode: code, TradeDate: date, Close: close, IngestSeq: seq}
}

func TestCleanBars_DropsMalformedRows(t *testing.T) {
	raw := []*domain.DailyBar{
		rawBar("000001.SZ", "20240102", f(9.40), 1),
		rawBar("", "20240102", f(9.40), 2),         // empty code
		rawBar("000001.SZ", "", f(9.40), 3),        // empty date
		rawBar("000001.SZ", "20240103", nil, 4),    // missing close
	}

	cleaned, dropped := cleanBars(raw)
	assert.Len(t, cleaned, 1)
	assert.Equal(t, 3, dropped)
}

func TestCleanBars_DuplicateKeyLatestWins(t *testing.T) {
	raw := []*domain.DailyBar{
		rawBar("000001.SZ", "20240102", f(9.10), 5),
		rawBar("000001.SZ", "20240102", f(9.40), 9),
		rawBar("000001.SZ", "20240102", f(9.20), 7),
	}

	cleaned, dropped := cleanBars(raw)
	require.Len(t, cleaned, 1)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, 9.40, cleaned[0].Close, "highest ingest_seq must win")
}

func TestCleanBars_Deterministic(t *testing.T) {
	raw := []*domain.DailyBar{
		rawBar("600519.SH", "20240103", f(1729.90), 4),
		rawBar("000001.SZ", "20240103", f(9.35), 3),
		rawBar("600519.SH", "20240102", f(1720.00), 2),
		rawBar("000001.SZ", "20240102", f(9.40), 1),
	}

	first, _ := cleanBars(raw)
	second, _ := cleanBars(raw)
	require.Equal(t, first, second)

	// Output sorted by (code, date).
	require.Len(t, first, 4)
	assert.Equal(t, "000001.SZ", first[0].TSCode)
	assert.Equal(t, "20240102", first[0].TradeDate)
	assert.Equal(t, "600519.SH", first[3].TSCode)
	assert.Equal(t, "20240103", first[3].TradeDate)
}

func TestCleanBars_Defaults(t *testing.T) {
	raw := []*domain.DailyBar{
		rawBar("000001.SZ", "20240102", f(9.40), 1),
		rawBar("000001.SZ", "20240103", f(9.35), 2),
	}

	cleaned, _ := cleanBars(raw)
	require.Len(t, cleaned, 2)

	// Missing OHLC falls back to close, volume/amount to zero.
	assert.Equal(t, 9.40, cleaned[0].Open)
	assert.Equal(t, 9.40, cleaned[0].High)
	assert.Equal(t, 9.40, cleaned[0].Low)
	assert.Equal(t, 0.0, cleaned[0].Volume)
	assert.Equal(t, 0.0, cleaned[0].Amount)

	// First bar's pre_close is its own close; later bars use the previous
	// close.
	assert.Equal(t, 9.40, cleaned[0].PreClose)
	assert.Equal(t, 9.40, cleaned[1].PreClose)
}

func TestCleanBars_PreCloseFromVendorPreferred(t *testing.T) {
	bar := rawBar("000001.SZ", "20240103", f(9.35), 1)
	bar.PreClose = f(9.41)

	cleaned, _ := cleanBars([]*domain.DailyBar{bar})
	require.Len(t, cleaned, 1)
	assert.Equal(t, 9.41, cleaned[0].PreClose)
}
