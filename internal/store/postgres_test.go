package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ammosight/catalog-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewPostgresFromPool(pool), pool
}

func TestPostgres_CreateRun(t *testing.T) {
	st, pool := newMockStore(t)

	pool.ExpectExec("INSERT INTO runs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := st.CreateRun(context.Background(), "acme-ammo", "feed-1", model.FeedFormatCSV)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_UpdateRunStatusNotFound(t *testing.T) {
	st, pool := newMockStore(t)

	pool.ExpectExec("UPDATE runs SET status").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.UpdateRunStatus(context.Background(), "no-such-run", model.RunStatusComplete)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_GetRun(t *testing.T) {
	st, pool := newMockStore(t)
	now := time.Now().UTC()

	pool.ExpectQuery("SELECT id, retailer_id, feed_id, format, status, result, created_at, updated_at FROM runs").
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "retailer_id", "feed_id", "format", "status", "result", "created_at", "updated_at",
		}).AddRow(
			"run-1", "acme-ammo", "feed-1", model.FeedFormatCSV, model.RunStatusComplete,
			[]byte(`{"indexable":10,"quarantined":2}`), now, now,
		))

	run, err := st.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "acme-ammo", run.RetailerID)
	require.NotNil(t, run.Result)
	assert.Equal(t, 10, run.Result.Indexable)
	assert.Equal(t, 2, run.Result.Quarantined)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_UpsertRetailerSkus(t *testing.T) {
	st, pool := newMockStore(t)

	pool.ExpectBegin()
	pool.ExpectExec("CREATE TEMP TABLE").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	pool.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_retailer_skus"}, skuColumns).
		WillReturnResult(2)
	pool.ExpectExec("INSERT INTO").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	pool.ExpectCommit()

	err := st.UpsertRetailerSkus(context.Background(), []model.RetailerSku{
		{RetailerID: "acme-ammo", FeedID: "feed-1", RunID: "run-1", SkuKey: "k1", ContentHash: "h1", Title: "Federal 9mm", Price: 12.99},
		{RetailerID: "acme-ammo", FeedID: "feed-1", RunID: "run-1", SkuKey: "k2", ContentHash: "h2", Title: "CCI 22 LR", Price: 5.99},
	})
	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_DeactivateMissing(t *testing.T) {
	st, pool := newMockStore(t)

	pool.ExpectExec("UPDATE retailer_skus SET active = false").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := st.DeactivateMissing(context.Background(), "feed-1", "run-2")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_AssignCanonicals(t *testing.T) {
	st, pool := newMockStore(t)

	pool.ExpectExec("UPDATE retailer_skus AS r SET canonical_id").
		WithArgs([]string{"k1"}, []string{"canon-1"}, "feed-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.AssignCanonicals(context.Background(), "feed-1", map[string]string{"k1": "canon-1"})
	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_FindCanonicalByUPCNoRows(t *testing.T) {
	st, pool := newMockStore(t)

	pool.ExpectQuery("FROM canonical_skus WHERE upc").
		WithArgs("000000000000").
		WillReturnError(pgx.ErrNoRows)

	entry, err := st.FindCanonicalByUPC(context.Background(), "000000000000")
	require.NoError(t, err)
	assert.Nil(t, entry)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_CreateCanonical(t *testing.T) {
	st, pool := newMockStore(t)
	now := time.Now().UTC()
	attrs := model.Attributes{Caliber: "9mm Luger", Brand: "Federal"}

	pool.ExpectExec("INSERT INTO canonical_skus").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0)) // lost the race
	pool.ExpectQuery("FROM canonical_skus WHERE natural_key").
		WithArgs(attrs.NaturalKey()).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "caliber", "brand", "grain_weight", "pack_size", "upc", "provenance", "created_at",
		}).AddRow("winner-id", "9mm Luger", "Federal", 0, 0, "", model.ProvenanceAutoCreated, now))

	entry, err := st.CreateCanonical(context.Background(), attrs, "", model.ProvenanceAutoCreated)
	require.NoError(t, err)
	assert.Equal(t, "winner-id", entry.ID)
	assert.Equal(t, "9mm Luger", entry.Attrs.Caliber)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_CreateCanonicalUPCKey(t *testing.T) {
	st, pool := newMockStore(t)
	now := time.Now().UTC()

	pool.ExpectExec("INSERT INTO canonical_skus").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectQuery("FROM canonical_skus WHERE natural_key").
		WithArgs("upc:604544617375").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "caliber", "brand", "grain_weight", "pack_size", "upc", "provenance", "created_at",
		}).AddRow("c1", "9mm Luger", "Federal", 0, 0, "604544617375", model.ProvenanceCurated, now))

	entry, err := st.CreateCanonical(context.Background(),
		model.Attributes{Caliber: "9mm Luger", Brand: "Federal"},
		"604544617375", model.ProvenanceCurated,
	)
	require.NoError(t, err)
	assert.Equal(t, "604544617375", entry.UPC)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_ReplaceBenchmarks(t *testing.T) {
	st, pool := newMockStore(t)
	now := time.Now().UTC()

	pool.ExpectBegin()
	pool.ExpectExec("DELETE FROM benchmarks").
		WillReturnResult(pgxmock.NewResult("DELETE", 5))
	pool.ExpectCopyFrom(pgx.Identifier{"benchmarks"}, []string{
		"canonical_id", "run_id", "min_price", "median_price", "max_price", "avg_price",
		"seller_count", "observations", "confidence", "computed_at",
	}).WillReturnResult(1)
	pool.ExpectCommit()

	err := st.ReplaceBenchmarks(context.Background(), "run-1", []model.Benchmark{
		{CanonicalID: "c1", MinPrice: 10, MedianPrice: 12, MaxPrice: 14, AvgPrice: 12, SellerCount: 3, Observations: 3, Confidence: model.ConfidenceMedium, ComputedAt: now},
	})
	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_ReplaceBenchmarksEmptyStillClears(t *testing.T) {
	st, pool := newMockStore(t)

	pool.ExpectBegin()
	pool.ExpectExec("DELETE FROM benchmarks").
		WillReturnResult(pgxmock.NewResult("DELETE", 5))
	pool.ExpectCommit()

	require.NoError(t, st.ReplaceBenchmarks(context.Background(), "run-1", nil))
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_UpsertInsights(t *testing.T) {
	st, pool := newMockStore(t)
	now := time.Now().UTC()

	pool.ExpectExec("INSERT INTO insights").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.UpsertInsights(context.Background(), []model.Insight{
		{RetailerSkuID: "sku-1", CanonicalID: "c1", RunID: "run-1", Type: model.InsightOverpriced, Severity: model.SeverityHigh, Price: 130, MedianPrice: 100, Deviation: 0.30, CreatedAt: now},
	})
	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_ListQuarantined(t *testing.T) {
	st, pool := newMockStore(t)
	now := time.Now().UTC()

	pool.ExpectQuery("FROM quarantine WHERE status").
		WithArgs(string(model.QuarantineStatusPending), "acme-ammo").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "retailer_id", "feed_id", "run_id", "match_key", "title", "price", "payload", "status", "created_at",
		}).AddRow(
			"q1", "acme-ammo", "feed-1", "run-1", "mk-1", "Surplus mystery pack", 19.99,
			[]byte(`{"ordinal":7,"fields":{"title":"Surplus mystery pack"}}`),
			model.QuarantineStatusPending, now,
		))

	records, err := st.ListQuarantined(context.Background(), "acme-ammo")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "mk-1", records[0].MatchKey)
	assert.Equal(t, 7, records[0].Payload.Ordinal)
	require.NoError(t, pool.ExpectationsWereMet())
}
