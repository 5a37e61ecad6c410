package domain

// DailyBar represents one raw daily quote row as ingested from the vendor.
// Corresponds to the raw_daily_bars table in PostgreSQL, owned by the
// ingestion layer and read-only for this repo.
type DailyBar struct {
	TSCode    string   // instrument code, e.g. "000001.SZ"
	TradeDate string   // trading day, YYYYMMDD
	Open      *float64 // opening price, NULL if vendor omitted it
	High      *float64
	Low       *float64
	Close     *float64
	PreClose  *float64 // previous close as reported by the vendor
	Volume    *float64 // traded volume in lots
	Amount    *float64 // traded amount in thousand CNY
	IngestSeq int64    // monotonically increasing ingest ordering column
}

// CleanBar represents one normalized daily quote row.
// Corresponds to the clean_daily_bars table owned by the features domain.
// Duplicate (ts_code, trade_date) raw rows are resolved latest-wins on
// IngestSeq before a CleanBar is produced.
type CleanBar struct {
	TSCode    string
	TradeDate string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	PreClose  float64 // filled from the previous bar's close when missing
	Volume    float64
	Amount    float64
}
