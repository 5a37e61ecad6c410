package main

import (
	"context"

	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/storage/memory"
)

// seedFixtures loads a small but realistic slice of market data so the
// binary can exercise every operation without a live database: two
// instruments with a week of daily bars and an announcement history that
// includes a restatement.
func seedFixtures(ctx context.Context, bars *memory.BarStore, statements *memory.StatementStore) error {
	var rawBars []*domain.DailyBar
	seq := int64(1)

	add := func(code, date string, open, high, low, close, volume, amount float64) {
		rawBars = append(rawBars, &domain.DailyBar{
			TSCode:    code,
			TradeDate: date,
			Open:      f(open),
			High:      f(high),
			Low:       f(low),
			Close:     f(close),
			Volume:    f(volume),
			Amount:    f(amount),
			IngestSeq: seq,
		})
		seq++
	}

	add("000001.SZ", "20240102", 9.31, 9.42, 9.25, 9.40, 1_562_300, 14_632_800)
	add("000001.SZ", "20240103", 9.40, 9.48, 9.33, 9.35, 1_381_900, 13_002_400)
	add("000001.SZ", "20240104", 9.35, 9.39, 9.17, 9.20, 1_694_100, 15_688_200)
	add("000001.SZ", "20240105", 9.20, 9.30, 9.14, 9.28, 1_420_700, 13_119_600)
	add("000001.SZ", "20240108", 9.28, 9.35, 9.21, 9.24, 1_287_400, 11_946_100)

	add("600519.SH", "20240102", 1715.00, 1728.88, 1701.01, 1720.00, 27_400, 4_703_900)
	add("600519.SH", "20240103", 1720.00, 1735.50, 1712.30, 1729.90, 24_800, 4_281_300)
	add("600519.SH", "20240104", 1729.90, 1731.00, 1690.00, 1694.00, 31_200, 5_337_200)
	add("600519.SH", "20240105", 1694.00, 1711.11, 1688.00, 1705.50, 26_500, 4_509_800)
	add("600519.SH", "20240108", 1705.50, 1709.00, 1670.20, 1676.00, 29_900, 5_046_700)

	if err := bars.InsertBulk(ctx, rawBars); err != nil {
		return err
	}

	// FY2023 annuals: 000001.SZ announces once, 600519.SH restates a week
	// after its original announcement.
	rawStatements := []*domain.StatementRow{
		{
			TSCode: "000001.SZ", AnnDate: "20240315", EndDate: "20231231", ReportType: "1",
			Revenue: f(164_699_000_000), NetProfit: f(46_455_000_000),
			TotalAssets: f(5_587_000_000_000), TotalEquity: f(462_100_000_000),
			IngestSeq: seq,
		},
		{
			TSCode: "600519.SH", AnnDate: "20240402", EndDate: "20231231", ReportType: "1",
			Revenue: f(150_560_000_000), NetProfit: f(74_734_000_000),
			TotalAssets: f(272_700_000_000), TotalEquity: f(221_500_000_000),
			IngestSeq: seq + 1,
		},
		{
			TSCode: "600519.SH", AnnDate: "20240409", EndDate: "20231231", ReportType: "1",
			Revenue: f(150_560_000_000), NetProfit: f(74_753_000_000),
			TotalAssets: f(272_880_000_000), TotalEquity: f(221_540_000_000),
			UpdateFlag: 1, IngestSeq: seq + 2,
		},
	}
	return statements.InsertBulk(ctx, rawStatements)
}

func f(v float64) *float64 { return &v }
