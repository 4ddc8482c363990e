package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammosight/catalog-cli/internal/model"
	"github.com/ammosight/catalog-cli/internal/store"
)

// mockStore implements store.Store for testing.
type mockStore struct {
	runs          []model.FeedRun
	quarantined   []model.QuarantinedRecord
	listErr       error
	quarantineErr error
}

func (m *mockStore) ListRuns(_ context.Context, filter store.RunFilter) ([]model.FeedRun, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []model.FeedRun
	for _, r := range m.runs {
		if !filter.CreatedAfter.IsZero() && r.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

func (m *mockStore) ListQuarantined(_ context.Context, _ string) ([]model.QuarantinedRecord, error) {
	if m.quarantineErr != nil {
		return nil, m.quarantineErr
	}
	return m.quarantined, nil
}

// Unused store methods satisfy the interface.
func (m *mockStore) CreateRun(context.Context, string, string, model.FeedFormat) (*model.FeedRun, error) {
	return nil, nil
}
func (m *mockStore) UpdateRunStatus(context.Context, string, model.RunStatus) error { return nil }
func (m *mockStore) UpdateRunResult(context.Context, string, model.RunStatus, *model.RunResult) error {
	return nil
}
func (m *mockStore) GetRun(context.Context, string) (*model.FeedRun, error) { return nil, nil }
func (m *mockStore) CreateStage(context.Context, string, string) (*model.RunStage, error) {
	return nil, nil
}
func (m *mockStore) CompleteStage(context.Context, string, *model.StageResult) error { return nil }
func (m *mockStore) UpsertRetailerSkus(context.Context, []model.RetailerSku) error   { return nil }
func (m *mockStore) DeactivateMissing(context.Context, string, string) (int, error)  { return 0, nil }
func (m *mockStore) AssignCanonicals(context.Context, string, map[string]string) error {
	return nil
}
func (m *mockStore) ListActiveSkus(context.Context) ([]model.RetailerSku, error) { return nil, nil }
func (m *mockStore) CreateQuarantined(context.Context, []model.QuarantinedRecord) error {
	return nil
}
func (m *mockStore) ListCanonical(context.Context) ([]model.CanonicalSku, error) { return nil, nil }
func (m *mockStore) FindCanonicalByUPC(context.Context, string) (*model.CanonicalSku, error) {
	return nil, nil
}
func (m *mockStore) FindCanonicalByAttrs(context.Context, string, string) ([]model.CanonicalSku, error) {
	return nil, nil
}
func (m *mockStore) CreateCanonical(context.Context, model.Attributes, string, model.Provenance) (*model.CanonicalSku, error) {
	return nil, nil
}
func (m *mockStore) ReplaceBenchmarks(context.Context, string, []model.Benchmark) error {
	return nil
}
func (m *mockStore) ListBenchmarks(context.Context) ([]model.Benchmark, error) { return nil, nil }
func (m *mockStore) UpsertInsights(context.Context, []model.Insight) error     { return nil }
func (m *mockStore) ListInsights(context.Context, string) ([]model.Insight, error) {
	return nil, nil
}
func (m *mockStore) Migrate(context.Context) error { return nil }
func (m *mockStore) Close() error                  { return nil }

func runWithResult(status model.RunStatus, result *model.RunResult, age time.Duration) model.FeedRun {
	return model.FeedRun{
		Status:    status,
		Result:    result,
		CreatedAt: time.Now().UTC().Add(-age),
	}
}

func TestCollector_PartialFailureCountsAsFailed(t *testing.T) {
	st := &mockStore{
		runs: []model.FeedRun{
			runWithResult(model.RunStatusComplete, nil, time.Hour),
			runWithResult(model.RunStatusFailed, nil, time.Hour),
			runWithResult(model.RunStatusPartialFailure, nil, time.Hour),
		},
	}

	snap, err := NewCollector(st).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.RunsFailed)
	assert.InDelta(t, 2.0/3.0, snap.RunFailRate, 0.0001)
}

func TestCollector_Collect(t *testing.T) {
	st := &mockStore{
		runs: []model.FeedRun{
			runWithResult(model.RunStatusComplete, &model.RunResult{
				Indexable: 100, Quarantined: 10, Rejected: 5, AutoCreated: 3, Insights: 7,
				Stages: []model.StageResult{
					{Name: "1_classify", Duration: 100},
					{Name: "2_match", Duration: 300},
				},
			}, time.Hour),
			runWithResult(model.RunStatusComplete, &model.RunResult{
				Indexable: 50,
				Stages: []model.StageResult{
					{Name: "1_classify", Duration: 200},
				},
			}, 2*time.Hour),
			runWithResult(model.RunStatusFailed, nil, time.Hour),
			runWithResult(model.RunStatusQueued, nil, time.Hour),
			runWithResult(model.RunStatusMatching, nil, time.Hour),
		},
		quarantined: []model.QuarantinedRecord{
			{Status: model.QuarantineStatusPending},
			{Status: model.QuarantineStatusPending},
			{Status: model.QuarantineStatusResolved},
		},
	}

	snap, err := NewCollector(st).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsQueued)
	assert.Equal(t, 1, snap.RunsActive)
	assert.InDelta(t, 1.0/3.0, snap.RunFailRate, 0.001)

	assert.Equal(t, 150, snap.RowsIndexable)
	assert.Equal(t, 10, snap.RowsQuarantined)
	assert.Equal(t, 5, snap.RowsRejected)
	assert.Equal(t, 3, snap.AutoCreated)
	assert.Equal(t, 7, snap.Insights)

	assert.Equal(t, int64(150), snap.StageAvgMs["1_classify"])
	assert.Equal(t, int64(300), snap.StageAvgMs["2_match"])

	assert.Equal(t, 2, snap.QuarantineBacklog)
	assert.Equal(t, 24, snap.LookbackHours)
}

func TestCollector_WindowExcludesOldRuns(t *testing.T) {
	st := &mockStore{
		runs: []model.FeedRun{
			runWithResult(model.RunStatusComplete, nil, time.Hour),
			runWithResult(model.RunStatusFailed, nil, 48*time.Hour),
		},
	}

	snap, err := NewCollector(st).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.RunsTotal)
	assert.Zero(t, snap.RunsFailed)
}

func TestCollector_EmptyStore(t *testing.T) {
	snap, err := NewCollector(&mockStore{}).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.RunFailRate)
	assert.Empty(t, snap.StageAvgMs)
}

func TestCollector_StoreErrors(t *testing.T) {
	_, err := NewCollector(&mockStore{listErr: errors.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)

	_, err = NewCollector(&mockStore{quarantineErr: errors.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
}
