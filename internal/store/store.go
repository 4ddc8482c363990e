// Package store defines the persistence contracts for the reconciliation
// pipeline and provides Postgres and SQLite backends.
package store

import (
	"context"
	"time"

	"github.com/ammosight/catalog-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	RetailerID   string          `json:"retailer_id,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the reconciliation pipeline.
// All writes are idempotent under retry: skus key on (feed_id, sku_key),
// quarantine on (feed_id, match_key), canonical creation on the attribute
// natural key, insights on their (sku, canonical, type) triple.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, retailerID, feedID string, format model.FeedFormat) (*model.FeedRun, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.FeedRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.FeedRun, error)

	// Stages
	CreateStage(ctx context.Context, runID string, name string) (*model.RunStage, error)
	CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error

	// Retailer skus
	UpsertRetailerSkus(ctx context.Context, skus []model.RetailerSku) error
	DeactivateMissing(ctx context.Context, feedID, runID string) (int, error)
	AssignCanonicals(ctx context.Context, feedID string, byKey map[string]string) error
	ListActiveSkus(ctx context.Context) ([]model.RetailerSku, error)

	// Quarantine
	CreateQuarantined(ctx context.Context, records []model.QuarantinedRecord) error
	ListQuarantined(ctx context.Context, retailerID string) ([]model.QuarantinedRecord, error)

	// Canonical catalog
	ListCanonical(ctx context.Context) ([]model.CanonicalSku, error)
	FindCanonicalByUPC(ctx context.Context, upc string) (*model.CanonicalSku, error)
	FindCanonicalByAttrs(ctx context.Context, caliber, brand string) ([]model.CanonicalSku, error)
	CreateCanonical(ctx context.Context, attrs model.Attributes, upc string, prov model.Provenance) (*model.CanonicalSku, error)

	// Benchmarks and insights
	ReplaceBenchmarks(ctx context.Context, runID string, benchmarks []model.Benchmark) error
	ListBenchmarks(ctx context.Context) ([]model.Benchmark, error)
	UpsertInsights(ctx context.Context, insights []model.Insight) error
	ListInsights(ctx context.Context, runID string) ([]model.Insight, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
