// Package reporting defines the daily performance-metrics shapes produced
// by the metrics aggregator (SPEC_FULL.md §2.3's supplemented feature,
// grounded on original_source/.../agents/metrics_aggregator.rs).
package reporting

// TradeHighlight names one standout trade within a period.
type TradeHighlight struct {
	Token       string
	PnLSol      float64
	TxSignature string
}

// VenueMetrics aggregates trades by venue within a period.
type VenueMetrics struct {
	Trades  int
	PnLSol  float64
	WinRate float64 // 0..100
}

// StrategyMetrics aggregates trades by strategy within a period.
type StrategyMetrics struct {
	Trades  int
	PnLSol  float64
	WinRate float64 // 0..100
}

// DailyMetrics is one day's aggregated trading performance.
type DailyMetrics struct {
	Period             string // "YYYY-MM-DD"
	TotalTrades        int
	WinningTrades      int
	WinRate            float64 // 0..100
	TotalPnLSol        float64
	AvgTradePnL        float64
	MaxDrawdownPercent float64
	BestTrade          *TradeHighlight
	WorstTrade         *TradeHighlight
	ByVenue            map[string]VenueMetrics
	ByStrategy         map[string]StrategyMetrics
}
