package model

import "time"

// InsightType classifies a derived anomaly.
type InsightType string

const (
	InsightOverpriced  InsightType = "overpriced"
	InsightUnderpriced InsightType = "underpriced"

	// Defined for extensibility; generated by external curation workflows,
	// not by the pipeline.
	InsightStockOpportunity InsightType = "stock_opportunity"
	InsightAttributeGap     InsightType = "attribute_gap"
)

// Severity grades an insight.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Insight is a derived anomaly for one (retailer sku, canonical sku,
// benchmark) triple. Recomputed each run, superseding the prior insight for
// the same triple.
type Insight struct {
	ID            string      `json:"id"`
	RetailerSkuID string      `json:"retailer_sku_id"`
	CanonicalID   string      `json:"canonical_id"`
	RunID         string      `json:"run_id"`
	Type          InsightType `json:"type"`
	Severity      Severity    `json:"severity"`
	Price         float64     `json:"price"`
	MedianPrice   float64     `json:"median_price"`
	Deviation     float64     `json:"deviation"` // (price - median) / median
	CreatedAt     time.Time   `json:"created_at"`
}
