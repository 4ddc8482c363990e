package model

import "time"

// ConfidenceTier labels how many independent price observations back a
// benchmark. Tiers below Medium must not drive insight generation.
type ConfidenceTier string

const (
	ConfidenceNone   ConfidenceTier = "none"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceHigh   ConfidenceTier = "high"
)

// TierFor returns the confidence tier for a given observation count.
func TierFor(observations int) ConfidenceTier {
	switch {
	case observations >= 5:
		return ConfidenceHigh
	case observations >= 3:
		return ConfidenceMedium
	default:
		return ConfidenceNone
	}
}

// Benchmark is the per-canonical-sku summary of prices observed across all
// retailers currently selling it. Recomputed wholesale each run.
type Benchmark struct {
	CanonicalID  string         `json:"canonical_id"`
	RunID        string         `json:"run_id"`
	MinPrice     float64        `json:"min_price"`
	MedianPrice  float64        `json:"median_price"`
	MaxPrice     float64        `json:"max_price"`
	AvgPrice     float64        `json:"avg_price"`
	SellerCount  int            `json:"seller_count"`
	Observations int            `json:"observations"`
	Confidence   ConfidenceTier `json:"confidence"`
	ComputedAt   time.Time      `json:"computed_at"`
}
