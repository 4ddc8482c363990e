package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/ammosight/catalog-cli/internal/db"
	"github.com/ammosight/catalog-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, retailer_id, feed_id, format, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"update_run_result": `UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_run":           `SELECT id, retailer_id, feed_id, format, status, result, created_at, updated_at FROM runs WHERE id = $1`,
	"insert_stage":      `INSERT INTO run_stages (id, run_id, name, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
	"complete_stage":    `UPDATE run_stages SET status = $1, result = $2 WHERE id = $3`,
	"find_canonical_upc": `SELECT id, caliber, brand, grain_weight, pack_size, COALESCE(upc, ''), provenance, created_at
		FROM canonical_skus WHERE upc = $1 LIMIT 1`,
	"find_canonical_attrs": `SELECT id, caliber, brand, grain_weight, pack_size, COALESCE(upc, ''), provenance, created_at
		FROM canonical_skus WHERE caliber = $1 AND brand = $2 ORDER BY created_at, id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	retailer_id TEXT NOT NULL,
	feed_id     TEXT NOT NULL,
	format      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	result      JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_stages (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS retailer_skus (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	retailer_id  TEXT NOT NULL,
	feed_id      TEXT NOT NULL,
	run_id       TEXT NOT NULL,
	canonical_id TEXT,
	sku_key      TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	title        TEXT NOT NULL,
	price        DOUBLE PRECISION NOT NULL,
	upc          TEXT,
	in_stock     BOOLEAN NOT NULL DEFAULT false,
	active       BOOLEAN NOT NULL DEFAULT true,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(feed_id, sku_key)
);

CREATE TABLE IF NOT EXISTS quarantine (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	retailer_id TEXT NOT NULL,
	feed_id     TEXT NOT NULL,
	run_id      TEXT NOT NULL,
	match_key   TEXT NOT NULL,
	title       TEXT NOT NULL,
	price       DOUBLE PRECISION NOT NULL,
	payload     JSONB NOT NULL,
	status      TEXT NOT NULL DEFAULT 'quarantined',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(feed_id, match_key)
);

CREATE TABLE IF NOT EXISTS canonical_skus (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	natural_key  TEXT NOT NULL UNIQUE,
	caliber      TEXT NOT NULL,
	brand        TEXT NOT NULL,
	grain_weight INTEGER NOT NULL DEFAULT 0,
	pack_size    INTEGER NOT NULL DEFAULT 0,
	upc          TEXT,
	provenance   TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS benchmarks (
	canonical_id TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	min_price    DOUBLE PRECISION NOT NULL,
	median_price DOUBLE PRECISION NOT NULL,
	max_price    DOUBLE PRECISION NOT NULL,
	avg_price    DOUBLE PRECISION NOT NULL,
	seller_count INTEGER NOT NULL,
	observations INTEGER NOT NULL,
	confidence   TEXT NOT NULL,
	computed_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS insights (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	retailer_sku_id TEXT NOT NULL,
	canonical_id    TEXT NOT NULL,
	run_id          TEXT NOT NULL,
	type            TEXT NOT NULL,
	severity        TEXT NOT NULL,
	price           DOUBLE PRECISION NOT NULL,
	median_price    DOUBLE PRECISION NOT NULL,
	deviation       DOUBLE PRECISION NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	UNIQUE(retailer_sku_id, canonical_id, type)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_retailer ON runs(retailer_id);
CREATE INDEX IF NOT EXISTS idx_run_stages_run_id ON run_stages(run_id);
CREATE INDEX IF NOT EXISTS idx_skus_feed ON retailer_skus(feed_id);
CREATE INDEX IF NOT EXISTS idx_skus_canonical ON retailer_skus(canonical_id);
CREATE INDEX IF NOT EXISTS idx_skus_active ON retailer_skus(active);
CREATE INDEX IF NOT EXISTS idx_quarantine_retailer ON quarantine(retailer_id);
CREATE INDEX IF NOT EXISTS idx_canonical_attrs ON canonical_skus(caliber, brand);
CREATE INDEX IF NOT EXISTS idx_canonical_upc ON canonical_skus(upc);
CREATE INDEX IF NOT EXISTS idx_insights_run ON insights(run_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, retailerID, feedID string, format model.FeedFormat) (*model.FeedRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, retailer_id, feed_id, format, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, retailerID, feedID, string(format), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.FeedRun{
		ID:         id,
		RetailerID: retailerID,
		FeedID:     feedID,
		Format:     format,
		Status:     model.RunStatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run result %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.FeedRun, error) {
	var r model.FeedRun
	var resultJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, retailer_id, feed_id, format, status, result, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.RetailerID, &r.FeedID, &r.Format, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if len(resultJSON) > 0 {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.FeedRun, error) {
	query := `SELECT id, retailer_id, feed_id, format, status, result, created_at, updated_at FROM runs WHERE true`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.RetailerID != "" {
		args = append(args, filter.RetailerID)
		query += fmt.Sprintf(` AND retailer_id = $%d`, len(args))
	}
	if !filter.CreatedAfter.IsZero() {
		args = append(args, filter.CreatedAfter)
		query += fmt.Sprintf(` AND created_at > $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.FeedRun
	for rows.Next() {
		var r model.FeedRun
		var resultJSON []byte
		if err := rows.Scan(&r.ID, &r.RetailerID, &r.FeedID, &r.Format, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(resultJSON) > 0 {
			r.Result = &model.RunResult{}
			if err := json.Unmarshal(resultJSON, r.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal result")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) CreateStage(ctx context.Context, runID string, name string) (*model.RunStage, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_stages (id, run_id, name, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, runID, name, string(model.StageStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert stage %s", name)
	}

	return &model.RunStage{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.StageStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stage result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE run_stages SET status = $1, result = $2 WHERE id = $3`,
		string(result.Status), resultJSON, stageID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete stage %s", stageID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("stage not found: %s", stageID)
	}
	return nil
}

// skuColumns mirrors the retailer_skus insert column order for BulkUpsert.
var skuColumns = []string{
	"id", "retailer_id", "feed_id", "run_id", "sku_key", "content_hash",
	"title", "price", "upc", "in_stock", "active", "created_at", "updated_at",
}

func (s *PostgresStore) UpsertRetailerSkus(ctx context.Context, skus []model.RetailerSku) error {
	if len(skus) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(skus))
	for _, sku := range skus {
		id := sku.ID
		if id == "" {
			id = uuid.New().String()
		}
		var upc any
		if sku.UPC != "" {
			upc = sku.UPC
		}
		rows = append(rows, []any{
			id, sku.RetailerID, sku.FeedID, sku.RunID, sku.SkuKey, sku.ContentHash,
			sku.Title, sku.Price, upc, sku.InStock, true, now, now,
		})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "retailer_skus",
		Columns:      skuColumns,
		ConflictKeys: []string{"feed_id", "sku_key"},
		// id, created_at, and any matcher-assigned canonical survive for
		// pre-existing rows.
		UpdateCols: []string{"run_id", "content_hash", "title", "price", "upc", "in_stock", "active", "updated_at"},
	}, rows)
	return eris.Wrap(err, "postgres: upsert retailer skus")
}

func (s *PostgresStore) DeactivateMissing(ctx context.Context, feedID, runID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE retailer_skus SET active = false, updated_at = $1 WHERE feed_id = $2 AND run_id != $3 AND active`,
		time.Now().UTC(), feedID, runID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: deactivate missing for feed %s", feedID)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) AssignCanonicals(ctx context.Context, feedID string, byKey map[string]string) error {
	if len(byKey) == 0 {
		return nil
	}

	keys := make([]string, 0, len(byKey))
	ids := make([]string, 0, len(byKey))
	for key, canonicalID := range byKey {
		keys = append(keys, key)
		ids = append(ids, canonicalID)
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE retailer_skus AS r SET canonical_id = a.canonical_id, updated_at = now()
		FROM (SELECT unnest($1::text[]) AS sku_key, unnest($2::text[]) AS canonical_id) AS a
		WHERE r.feed_id = $3 AND r.sku_key = a.sku_key`,
		keys, ids, feedID,
	)
	return eris.Wrapf(err, "postgres: assign canonicals for feed %s", feedID)
}

func (s *PostgresStore) ListActiveSkus(ctx context.Context) ([]model.RetailerSku, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, retailer_id, feed_id, run_id, COALESCE(canonical_id, ''), sku_key, content_hash, title, price, COALESCE(upc, ''), in_stock, active, created_at, updated_at
		FROM retailer_skus WHERE active`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active skus")
	}
	defer rows.Close()

	var skus []model.RetailerSku
	for rows.Next() {
		var sku model.RetailerSku
		if err := rows.Scan(
			&sku.ID, &sku.RetailerID, &sku.FeedID, &sku.RunID, &sku.CanonicalID, &sku.SkuKey,
			&sku.ContentHash, &sku.Title, &sku.Price, &sku.UPC, &sku.InStock, &sku.Active,
			&sku.CreatedAt, &sku.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sku")
		}
		skus = append(skus, sku)
	}
	return skus, eris.Wrap(rows.Err(), "postgres: iterate skus")
}

func (s *PostgresStore) CreateQuarantined(ctx context.Context, records []model.QuarantinedRecord) error {
	if len(records) == 0 {
		return nil
	}

	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = uuid.New().String()
		}
		payloadJSON, err := json.Marshal(rec.Payload)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal quarantine payload")
		}
		_, err = s.pool.Exec(ctx, `
			INSERT INTO quarantine (id, retailer_id, feed_id, run_id, match_key, title, price, payload, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (feed_id, match_key) DO UPDATE SET
				run_id = EXCLUDED.run_id,
				title = EXCLUDED.title,
				price = EXCLUDED.price,
				payload = EXCLUDED.payload`,
			id, rec.RetailerID, rec.FeedID, rec.RunID, rec.MatchKey,
			rec.Title, rec.Price, payloadJSON, string(model.QuarantineStatusPending), time.Now().UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert quarantine %s", rec.MatchKey)
		}
	}
	return nil
}

func (s *PostgresStore) ListQuarantined(ctx context.Context, retailerID string) ([]model.QuarantinedRecord, error) {
	query := `SELECT id, retailer_id, feed_id, run_id, match_key, title, price, payload, status, created_at FROM quarantine WHERE status = $1`
	args := []any{string(model.QuarantineStatusPending)}
	if retailerID != "" {
		args = append(args, retailerID)
		query += fmt.Sprintf(` AND retailer_id = $%d`, len(args))
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list quarantine")
	}
	defer rows.Close()

	var records []model.QuarantinedRecord
	for rows.Next() {
		var rec model.QuarantinedRecord
		var payloadJSON []byte
		if err := rows.Scan(
			&rec.ID, &rec.RetailerID, &rec.FeedID, &rec.RunID, &rec.MatchKey,
			&rec.Title, &rec.Price, &payloadJSON, &rec.Status, &rec.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan quarantine")
		}
		if err := json.Unmarshal(payloadJSON, &rec.Payload); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal quarantine payload")
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate quarantine")
}

func (s *PostgresStore) ListCanonical(ctx context.Context) ([]model.CanonicalSku, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, caliber, brand, grain_weight, pack_size, COALESCE(upc, ''), provenance, created_at
		FROM canonical_skus ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list canonical")
	}
	defer rows.Close()

	var entries []model.CanonicalSku
	for rows.Next() {
		var entry model.CanonicalSku
		if err := rows.Scan(
			&entry.ID, &entry.Attrs.Caliber, &entry.Attrs.Brand, &entry.Attrs.GrainWeight,
			&entry.Attrs.PackSize, &entry.UPC, &entry.Provenance, &entry.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan canonical")
		}
		entries = append(entries, entry)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: iterate canonical")
}

func (s *PostgresStore) FindCanonicalByUPC(ctx context.Context, upc string) (*model.CanonicalSku, error) {
	var entry model.CanonicalSku
	err := s.pool.QueryRow(ctx, `
		SELECT id, caliber, brand, grain_weight, pack_size, COALESCE(upc, ''), provenance, created_at
		FROM canonical_skus WHERE upc = $1 LIMIT 1`, upc,
	).Scan(
		&entry.ID, &entry.Attrs.Caliber, &entry.Attrs.Brand, &entry.Attrs.GrainWeight,
		&entry.Attrs.PackSize, &entry.UPC, &entry.Provenance, &entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: find canonical by upc %s", upc)
	}
	return &entry, nil
}

func (s *PostgresStore) FindCanonicalByAttrs(ctx context.Context, caliber, brand string) ([]model.CanonicalSku, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, caliber, brand, grain_weight, pack_size, COALESCE(upc, ''), provenance, created_at
		FROM canonical_skus WHERE caliber = $1 AND brand = $2 ORDER BY created_at, id`, caliber, brand)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find canonical by attrs")
	}
	defer rows.Close()

	var entries []model.CanonicalSku
	for rows.Next() {
		var entry model.CanonicalSku
		if err := rows.Scan(
			&entry.ID, &entry.Attrs.Caliber, &entry.Attrs.Brand, &entry.Attrs.GrainWeight,
			&entry.Attrs.PackSize, &entry.UPC, &entry.Provenance, &entry.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan canonical")
		}
		entries = append(entries, entry)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: iterate canonical by attrs")
}

func (s *PostgresStore) CreateCanonical(ctx context.Context, attrs model.Attributes, upc string, prov model.Provenance) (*model.CanonicalSku, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	naturalKey := attrs.NaturalKey()
	if upc != "" {
		naturalKey = "upc:" + upc
	}
	var upcVal any
	if upc != "" {
		upcVal = upc
	}

	// ON CONFLICT DO NOTHING plus a follow-up fetch makes creation idempotent:
	// a concurrent run creating the same signature yields the winner's row.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO canonical_skus (id, natural_key, caliber, brand, grain_weight, pack_size, upc, provenance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (natural_key) DO NOTHING`,
		id, naturalKey, attrs.Caliber, attrs.Brand, attrs.GrainWeight, attrs.PackSize,
		upcVal, string(prov), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert canonical")
	}

	var entry model.CanonicalSku
	err = s.pool.QueryRow(ctx, `
		SELECT id, caliber, brand, grain_weight, pack_size, COALESCE(upc, ''), provenance, created_at
		FROM canonical_skus WHERE natural_key = $1`, naturalKey,
	).Scan(
		&entry.ID, &entry.Attrs.Caliber, &entry.Attrs.Brand, &entry.Attrs.GrainWeight,
		&entry.Attrs.PackSize, &entry.UPC, &entry.Provenance, &entry.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch canonical after insert")
	}
	return &entry, nil
}

func (s *PostgresStore) ReplaceBenchmarks(ctx context.Context, runID string, benchmarks []model.Benchmark) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin benchmark replace")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM benchmarks`); err != nil {
		return eris.Wrap(err, "postgres: clear benchmarks")
	}

	if len(benchmarks) > 0 {
		rows := make([][]any, 0, len(benchmarks))
		for _, b := range benchmarks {
			rows = append(rows, []any{
				b.CanonicalID, runID, b.MinPrice, b.MedianPrice, b.MaxPrice, b.AvgPrice,
				b.SellerCount, b.Observations, string(b.Confidence), b.ComputedAt,
			})
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"benchmarks"}, []string{
			"canonical_id", "run_id", "min_price", "median_price", "max_price", "avg_price",
			"seller_count", "observations", "confidence", "computed_at",
		}, pgx.CopyFromRows(rows))
		if err != nil {
			return eris.Wrap(err, "postgres: copy benchmarks")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit benchmark replace")
}

func (s *PostgresStore) ListBenchmarks(ctx context.Context) ([]model.Benchmark, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT canonical_id, run_id, min_price, median_price, max_price, avg_price, seller_count, observations, confidence, computed_at
		FROM benchmarks`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list benchmarks")
	}
	defer rows.Close()

	var benchmarks []model.Benchmark
	for rows.Next() {
		var b model.Benchmark
		if err := rows.Scan(
			&b.CanonicalID, &b.RunID, &b.MinPrice, &b.MedianPrice, &b.MaxPrice, &b.AvgPrice,
			&b.SellerCount, &b.Observations, &b.Confidence, &b.ComputedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan benchmark")
		}
		benchmarks = append(benchmarks, b)
	}
	return benchmarks, eris.Wrap(rows.Err(), "postgres: iterate benchmarks")
}

func (s *PostgresStore) UpsertInsights(ctx context.Context, insights []model.Insight) error {
	for _, in := range insights {
		id := in.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := s.pool.Exec(ctx, `
			INSERT INTO insights (id, retailer_sku_id, canonical_id, run_id, type, severity, price, median_price, deviation, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (retailer_sku_id, canonical_id, type) DO UPDATE SET
				run_id = EXCLUDED.run_id,
				severity = EXCLUDED.severity,
				price = EXCLUDED.price,
				median_price = EXCLUDED.median_price,
				deviation = EXCLUDED.deviation,
				created_at = EXCLUDED.created_at`,
			id, in.RetailerSkuID, in.CanonicalID, in.RunID, string(in.Type), string(in.Severity),
			in.Price, in.MedianPrice, in.Deviation, in.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert insight %s/%s", in.RetailerSkuID, in.Type)
		}
	}
	return nil
}

func (s *PostgresStore) ListInsights(ctx context.Context, runID string) ([]model.Insight, error) {
	query := `SELECT id, retailer_sku_id, canonical_id, run_id, type, severity, price, median_price, deviation, created_at FROM insights`
	var args []any
	if runID != "" {
		args = append(args, runID)
		query += ` WHERE run_id = $1`
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list insights")
	}
	defer rows.Close()

	var insights []model.Insight
	for rows.Next() {
		var in model.Insight
		if err := rows.Scan(
			&in.ID, &in.RetailerSkuID, &in.CanonicalID, &in.RunID, &in.Type, &in.Severity,
			&in.Price, &in.MedianPrice, &in.Deviation, &in.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan insight")
		}
		insights = append(insights, in)
	}
	return insights, eris.Wrap(rows.Err(), "postgres: iterate insights")
}
