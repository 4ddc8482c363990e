package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ammosight/catalog-cli/internal/model"
	"github.com/ammosight/catalog-cli/internal/store"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateRun(ctx context.Context, retailerID, feedID string, format model.FeedFormat) (*model.FeedRun, error) {
	args := m.Called(ctx, retailerID, feedID, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FeedRun), args.Error(1)
}

func (m *mockStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	args := m.Called(ctx, runID, status)
	return args.Error(0)
}

func (m *mockStore) UpdateRunResult(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error {
	args := m.Called(ctx, runID, status, result)
	return args.Error(0)
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (*model.FeedRun, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FeedRun), args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.FeedRun, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FeedRun), args.Error(1)
}

func (m *mockStore) CreateStage(ctx context.Context, runID string, name string) (*model.RunStage, error) {
	args := m.Called(ctx, runID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RunStage), args.Error(1)
}

func (m *mockStore) CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error {
	args := m.Called(ctx, stageID, result)
	return args.Error(0)
}

func (m *mockStore) UpsertRetailerSkus(ctx context.Context, skus []model.RetailerSku) error {
	args := m.Called(ctx, skus)
	return args.Error(0)
}

func (m *mockStore) DeactivateMissing(ctx context.Context, feedID, runID string) (int, error) {
	args := m.Called(ctx, feedID, runID)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) AssignCanonicals(ctx context.Context, feedID string, byKey map[string]string) error {
	args := m.Called(ctx, feedID, byKey)
	return args.Error(0)
}

func (m *mockStore) ListActiveSkus(ctx context.Context) ([]model.RetailerSku, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RetailerSku), args.Error(1)
}

func (m *mockStore) CreateQuarantined(ctx context.Context, records []model.QuarantinedRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *mockStore) ListQuarantined(ctx context.Context, retailerID string) ([]model.QuarantinedRecord, error) {
	args := m.Called(ctx, retailerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.QuarantinedRecord), args.Error(1)
}

func (m *mockStore) ListCanonical(ctx context.Context) ([]model.CanonicalSku, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CanonicalSku), args.Error(1)
}

func (m *mockStore) FindCanonicalByUPC(ctx context.Context, upc string) (*model.CanonicalSku, error) {
	args := m.Called(ctx, upc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CanonicalSku), args.Error(1)
}

func (m *mockStore) FindCanonicalByAttrs(ctx context.Context, caliber, brand string) ([]model.CanonicalSku, error) {
	args := m.Called(ctx, caliber, brand)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CanonicalSku), args.Error(1)
}

func (m *mockStore) CreateCanonical(ctx context.Context, attrs model.Attributes, upc string, prov model.Provenance) (*model.CanonicalSku, error) {
	args := m.Called(ctx, attrs, upc, prov)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CanonicalSku), args.Error(1)
}

func (m *mockStore) ReplaceBenchmarks(ctx context.Context, runID string, benchmarks []model.Benchmark) error {
	args := m.Called(ctx, runID, benchmarks)
	return args.Error(0)
}

func (m *mockStore) ListBenchmarks(ctx context.Context) ([]model.Benchmark, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Benchmark), args.Error(1)
}

func (m *mockStore) UpsertInsights(ctx context.Context, insights []model.Insight) error {
	args := m.Called(ctx, insights)
	return args.Error(0)
}

func (m *mockStore) ListInsights(ctx context.Context, runID string) ([]model.Insight, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Insight), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
