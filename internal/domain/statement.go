package domain

// StatementRow represents one raw financial statement row as announced.
// Corresponds to the raw_statements table, owned by the ingestion layer.
// The same (ts_code, end_date, report_type) may be announced several times;
// each announcement is a distinct row keyed by ann_date.
type StatementRow struct {
	TSCode      string   // instrument code
	AnnDate     string   // announcement date, YYYYMMDD
	EndDate     string   // reporting period end date, YYYYMMDD
	ReportType  string   // vendor report type code ("1" consolidated, ...)
	Revenue     *float64 // total operating revenue
	NetProfit   *float64 // net profit attributable to parent
	TotalAssets *float64
	TotalEquity *float64
	UpdateFlag  int   // 0 original, 1 restated
	IngestSeq   int64 // ingest ordering column
}

// PITStatement represents the point-in-time winner for one reporting period:
// the statement from the latest announcement, restatements preferred on ties.
// Corresponds to the pit_statements table owned by the pit domain.
type PITStatement struct {
	TSCode      string
	EndDate     string
	ReportType  string
	AnnDate     string // announcement date of the winning row
	Revenue     *float64
	NetProfit   *float64
	TotalAssets *float64
	TotalEquity *float64
	UpdateFlag  int
}
