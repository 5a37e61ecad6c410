package matview

// Builtin returns the view specs maintained by the stock CLI. Both read the
// cleaned bar table, so they are refreshed after feature runs.
func Builtin() []Spec {
	return []Spec{
		{
			Name:    "instrument_summary",
			Schema:  "features",
			Sources: []string{"features.clean_daily_bars"},
			Columns: []Column{
				{Name: "ts_code", Expr: "b.ts_code"},
				{Name: "bar_count", Expr: "count(*)"},
				{Name: "first_trade_date", Expr: "min(b.trade_date)"},
				{Name: "last_trade_date", Expr: "max(b.trade_date)"},
				{Name: "avg_volume", Expr: "avg(b.volume)"},
				{Name: "avg_amount", Expr: "avg(b.amount)"},
			},
			From:     "features.clean_daily_bars b",
			GroupBy:  []string{"b.ts_code"},
			Strategy: StrategyFull,
			UniqueBy: []string{"ts_code"},
			Indexes:  []string{"last_trade_date"},
		},
		{
			Name:    "market_daily_activity",
			Schema:  "features",
			Sources: []string{"features.clean_daily_bars"},
			Columns: []Column{
				{Name: "trade_date", Expr: "b.trade_date"},
				{Name: "instrument_count", Expr: "count(DISTINCT b.ts_code)"},
				{Name: "total_volume", Expr: "sum(b.volume)"},
				{Name: "total_amount", Expr: "sum(b.amount)"},
			},
			From:            "features.clean_daily_bars b",
			GroupBy:         []string{"b.trade_date"},
			Strategy:        StrategyIncremental,
			PartitionColumn: "trade_date",
			UniqueBy:        []string{"trade_date"},
		},
	}
}
