package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ammosight/catalog-cli/internal/model"
	"github.com/ammosight/catalog-cli/internal/store"
)

// observation is one retailer's price contribution to a benchmark.
type observation struct {
	retailerID string
	price      float64
}

// BenchmarkStage recomputes every benchmark from the current set of active,
// matched skus. The recompute is wholesale: stale benchmarks are overwritten
// rather than incrementally patched, trading redundant computation for
// immunity to partial-update drift.
//
// Entries with fewer than 2 observed prices get no benchmark row at all (no
// meaningful spread exists). Rows with 2 observations are recorded with
// confidence None for transparency but are never used for insights.
func BenchmarkStage(ctx context.Context, st store.Store, runID string) ([]model.Benchmark, error) {
	skus, err := st.ListActiveSkus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "benchmark: list active skus")
	}

	grouped := make(map[string][]observation)
	for _, sku := range skus {
		if sku.CanonicalID == "" || sku.Price <= 0 {
			continue
		}
		grouped[sku.CanonicalID] = append(grouped[sku.CanonicalID], observation{
			retailerID: sku.RetailerID,
			price:      sku.Price,
		})
	}

	now := time.Now().UTC()
	benchmarks := make([]model.Benchmark, 0, len(grouped))
	for canonicalID, obs := range grouped {
		if len(obs) < 2 {
			continue
		}
		benchmarks = append(benchmarks, summarize(canonicalID, runID, obs, now))
	}

	// Deterministic write order for reproducible runs.
	sort.Slice(benchmarks, func(i, j int) bool {
		return benchmarks[i].CanonicalID < benchmarks[j].CanonicalID
	})

	if err := st.ReplaceBenchmarks(ctx, runID, benchmarks); err != nil {
		return nil, eris.Wrap(err, "benchmark: replace")
	}

	zap.L().Debug("benchmark: recompute complete",
		zap.String("run_id", runID),
		zap.Int("benchmarks", len(benchmarks)),
		zap.Int("canonical_entries_seen", len(grouped)),
	)
	return benchmarks, nil
}

func summarize(canonicalID, runID string, obs []observation, now time.Time) model.Benchmark {
	prices := make([]float64, len(obs))
	sellers := make(map[string]struct{}, len(obs))
	var sum float64
	for i, o := range obs {
		prices[i] = o.price
		sum += o.price
		sellers[o.retailerID] = struct{}{}
	}
	sort.Float64s(prices)

	return model.Benchmark{
		CanonicalID:  canonicalID,
		RunID:        runID,
		MinPrice:     prices[0],
		MedianPrice:  median(prices),
		MaxPrice:     prices[len(prices)-1],
		AvgPrice:     sum / float64(len(prices)),
		SellerCount:  len(sellers),
		Observations: len(prices),
		Confidence:   model.TierFor(len(prices)),
		ComputedAt:   now,
	}
}

// median returns the middle element of a sorted price list; for even-length
// lists the lower-middle element, not an interpolation.
func median(sorted []float64) float64 {
	return sorted[(len(sorted)-1)/2]
}
