package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ammosight/catalog-cli/internal/model"
	"github.com/ammosight/catalog-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsQueued   int     `json:"runs_queued"`
	RunsActive   int     `json:"runs_active"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Aggregate stage outcomes (within lookback window).
	RowsIndexable   int `json:"rows_indexable"`
	RowsQuarantined int `json:"rows_quarantined"`
	RowsRejected    int `json:"rows_rejected"`
	AutoCreated     int `json:"auto_created"`
	Insights        int `json:"insights"`

	// Avg stage durations in ms, keyed by stage name.
	StageAvgMs map[string]int64 `json:"stage_avg_ms"`

	// Quarantine backlog across all retailers (not window scoped).
	QuarantineBacklog int `json:"quarantine_backlog"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of system metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		StageAvgMs:    make(map[string]int64),
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	stageTotals := make(map[string]int64)
	stageCounts := make(map[string]int64)

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed, model.RunStatusPartialFailure:
			snap.RunsFailed++
		case model.RunStatusQueued:
			snap.RunsQueued++
		default:
			snap.RunsActive++
		}
		if r.Result == nil {
			continue
		}
		snap.RowsIndexable += r.Result.Indexable
		snap.RowsQuarantined += r.Result.Quarantined
		snap.RowsRejected += r.Result.Rejected
		snap.AutoCreated += r.Result.AutoCreated
		snap.Insights += r.Result.Insights
		for _, st := range r.Result.Stages {
			stageTotals[st.Name] += st.Duration
			stageCounts[st.Name]++
		}
	}

	finished := snap.RunsComplete + snap.RunsFailed
	if finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	for name, total := range stageTotals {
		snap.StageAvgMs[name] = total / stageCounts[name]
	}

	// Quarantine backlog across all retailers.
	quarantined, err := c.store.ListQuarantined(ctx, "")
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list quarantined")
	}
	for _, q := range quarantined {
		if q.Status == model.QuarantineStatusPending {
			snap.QuarantineBacklog++
		}
	}

	return snap, nil
}
