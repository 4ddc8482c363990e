package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ammosight/catalog-cli/internal/model"
	"github.com/ammosight/catalog-cli/internal/store"
)

// Deviation thresholds, relative to the benchmark median. A listing more than
// 25% away is a high-severity anomaly, more than 15% a medium one. Anything
// inside the 15% band is normal market spread and produces nothing.
const (
	deviationHigh   = 0.25
	deviationMedium = 0.15
)

// InsightStage compares every active, matched sku against its benchmark's
// median and records an insight for each listing priced outside the normal
// band. Benchmarks with confidence None are skipped: two data points cannot
// distinguish an outlier from a thin market.
func InsightStage(ctx context.Context, st store.Store, runID string, benchmarks []model.Benchmark) ([]model.Insight, error) {
	skus, err := st.ListActiveSkus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "insight: list active skus")
	}

	byCanonical := make(map[string]model.Benchmark, len(benchmarks))
	for _, b := range benchmarks {
		byCanonical[b.CanonicalID] = b
	}

	now := time.Now().UTC()
	var insights []model.Insight
	for _, sku := range skus {
		if sku.CanonicalID == "" || sku.Price <= 0 {
			continue
		}
		bench, ok := byCanonical[sku.CanonicalID]
		if !ok || bench.Confidence == model.ConfidenceNone || bench.MedianPrice <= 0 {
			continue
		}
		ins, ok := evaluate(sku, bench, runID, now)
		if !ok {
			continue
		}
		insights = append(insights, ins)
	}

	if err := st.UpsertInsights(ctx, insights); err != nil {
		return nil, eris.Wrap(err, "insight: upsert")
	}

	zap.L().Debug("insight: generation complete",
		zap.String("run_id", runID),
		zap.Int("insights", len(insights)),
		zap.Int("skus_considered", len(skus)),
	)
	return insights, nil
}

func evaluate(sku model.RetailerSku, bench model.Benchmark, runID string, now time.Time) (model.Insight, bool) {
	deviation := (sku.Price - bench.MedianPrice) / bench.MedianPrice
	if math.Abs(deviation) <= deviationMedium {
		return model.Insight{}, false
	}

	typ := model.InsightOverpriced
	if deviation < 0 {
		typ = model.InsightUnderpriced
	}
	severity := model.SeverityMedium
	if math.Abs(deviation) > deviationHigh {
		severity = model.SeverityHigh
	}

	return model.Insight{
		RetailerSkuID: sku.ID,
		CanonicalID:   sku.CanonicalID,
		RunID:         runID,
		Type:          typ,
		Severity:      severity,
		Price:         sku.Price,
		MedianPrice:   bench.MedianPrice,
		Deviation:     deviation,
		CreatedAt:     now,
	}, true
}
