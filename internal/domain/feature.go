package domain

// FeatureRow represents one computed feature value for one instrument-day.
// Corresponds to the daily_features table owned by the features domain,
// keyed by (ts_code, trade_date, feature).
type FeatureRow struct {
	TSCode    string
	TradeDate string
	Feature   string   // registered feature name, e.g. "ma3"
	Value     *float64 // NULL while the feature's warm-up window is unmet
}
