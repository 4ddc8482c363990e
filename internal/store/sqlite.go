package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ammosight/catalog-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	retailer_id TEXT NOT NULL,
	feed_id     TEXT NOT NULL,
	format      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	result      TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_stages (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	started_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS retailer_skus (
	id           TEXT PRIMARY KEY,
	retailer_id  TEXT NOT NULL,
	feed_id      TEXT NOT NULL,
	run_id       TEXT NOT NULL,
	canonical_id TEXT,
	sku_key      TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	title        TEXT NOT NULL,
	price        REAL NOT NULL,
	upc          TEXT,
	in_stock     INTEGER NOT NULL DEFAULT 0,
	active       INTEGER NOT NULL DEFAULT 1,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(feed_id, sku_key)
);

CREATE TABLE IF NOT EXISTS quarantine (
	id          TEXT PRIMARY KEY,
	retailer_id TEXT NOT NULL,
	feed_id     TEXT NOT NULL,
	run_id      TEXT NOT NULL,
	match_key   TEXT NOT NULL,
	title       TEXT NOT NULL,
	price       REAL NOT NULL,
	payload     TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'quarantined',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(feed_id, match_key)
);

CREATE TABLE IF NOT EXISTS canonical_skus (
	id          TEXT PRIMARY KEY,
	natural_key TEXT NOT NULL UNIQUE,
	caliber     TEXT NOT NULL,
	brand       TEXT NOT NULL,
	grain_weight INTEGER NOT NULL DEFAULT 0,
	pack_size   INTEGER NOT NULL DEFAULT 0,
	upc         TEXT,
	provenance  TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS benchmarks (
	canonical_id TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	min_price    REAL NOT NULL,
	median_price REAL NOT NULL,
	max_price    REAL NOT NULL,
	avg_price    REAL NOT NULL,
	seller_count INTEGER NOT NULL,
	observations INTEGER NOT NULL,
	confidence   TEXT NOT NULL,
	computed_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS insights (
	id              TEXT PRIMARY KEY,
	retailer_sku_id TEXT NOT NULL,
	canonical_id    TEXT NOT NULL,
	run_id          TEXT NOT NULL,
	type            TEXT NOT NULL,
	severity        TEXT NOT NULL,
	price           REAL NOT NULL,
	median_price    REAL NOT NULL,
	deviation       REAL NOT NULL,
	created_at      DATETIME NOT NULL,
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, retailerID, feedID string, format model.FeedFormat) (*model.FeedRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, retailer_id, feed_id, format, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, retailerID, feedID, string(format), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run result %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.FeedRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, retailer_id, feed_id, format, status, result, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.FeedRun, error) {
	query := `SELECT id, retailer_id, feed_id, format, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.RetailerID != "" {
		query += ` AND retailer_id = ?`
		args = append(args, filter.RetailerID)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.FeedRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) CreateStage(ctx context.Context, runID string, name string) (*model.RunStage, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_stages (id, run_id, name, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, runID, name, string(model.StageStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert stage %s", name)
	}

	return &model.RunStage{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.StageStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stage result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE run_stages SET status = ?, result = ? WHERE id = ?`,
		string(result.Status), string(resultJSON), stageID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete stage %s", stageID)
	}
	return checkRowsAffected(res, "stage", stageID)
}

func (s *SQLiteStore) UpsertRetailerSkus(ctx context.Context, skus []model.RetailerSku) error {
	if len(skus) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin sku upsert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO retailer_skus (id, retailer_id, feed_id, run_id, sku_key, content_hash, title, price, upc, in_stock, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(feed_id, sku_key) DO UPDATE SET
			run_id = excluded.run_id,
			content_hash = excluded.content_hash,
			title = excluded.title,
			price = excluded.price,
			upc = excluded.upc,
			in_stock = excluded.in_stock,
			active = 1,
			updated_at = excluded.updated_at`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare sku upsert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, sku := range skus {
		id := sku.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := stmt.ExecContext(ctx,
			id, sku.RetailerID, sku.FeedID, sku.RunID, sku.SkuKey, sku.ContentHash,
			sku.Title, sku.Price, nullable(sku.UPC), boolToInt(sku.InStock), now, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert sku %s", sku.SkuKey)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit sku upsert")
}

func (s *SQLiteStore) DeactivateMissing(ctx context.Context, feedID, runID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE retailer_skus SET active = 0, updated_at = ? WHERE feed_id = ? AND run_id != ? AND active = 1`,
		time.Now().UTC(), feedID, runID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: deactivate missing for feed %s", feedID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: deactivate rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) AssignCanonicals(ctx context.Context, feedID string, byKey map[string]string) error {
	if len(byKey) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin assign")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE retailer_skus SET canonical_id = ?, updated_at = ? WHERE feed_id = ? AND sku_key = ?`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare assign")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for key, canonicalID := range byKey {
		if _, err := stmt.ExecContext(ctx, canonicalID, now, feedID, key); err != nil {
			return eris.Wrapf(err, "sqlite: assign canonical for %s", key)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit assign")
}

func (s *SQLiteStore) ListActiveSkus(ctx context.Context) ([]model.RetailerSku, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, retailer_id, feed_id, run_id, COALESCE(canonical_id, ''), sku_key, content_hash, title, price, COALESCE(upc, ''), in_stock, active, created_at, updated_at
		FROM retailer_skus WHERE active = 1`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active skus")
	}
	defer rows.Close()

	var skus []model.RetailerSku
	for rows.Next() {
		var sku model.RetailerSku
		var inStock, active int
		if err := rows.Scan(
			&sku.ID, &sku.RetailerID, &sku.FeedID, &sku.RunID, &sku.CanonicalID, &sku.SkuKey,
			&sku.ContentHash, &sku.Title, &sku.Price, &sku.UPC, &inStock, &active,
			&sku.CreatedAt, &sku.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sku")
		}
		sku.InStock = inStock != 0
		sku.Active = active != 0
		skus = append(skus, sku)
	}
	return skus, eris.Wrap(rows.Err(), "sqlite: iterate skus")
}

func (s *SQLiteStore) CreateQuarantined(ctx context.Context, records []model.QuarantinedRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin quarantine insert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO quarantine (id, retailer_id, feed_id, run_id, match_key, title, price, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_id, match_key) DO UPDATE SET
			run_id = excluded.run_id,
			title = excluded.title,
			price = excluded.price,
			payload = excluded.payload`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare quarantine insert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = uuid.New().String()
		}
		payloadJSON, err := json.Marshal(rec.Payload)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal quarantine payload")
		}
		_, err = stmt.ExecContext(ctx,
			id, rec.RetailerID, rec.FeedID, rec.RunID, rec.MatchKey,
			rec.Title, rec.Price, string(payloadJSON), string(model.QuarantineStatusPending), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert quarantine %s", rec.MatchKey)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit quarantine insert")
}

func (s *SQLiteStore) ListQuarantined(ctx context.Context, retailerID string) ([]model.QuarantinedRecord, error) {
	query := `SELECT id, retailer_id, feed_id, run_id, match_key, title, price, payload, status, created_at FROM quarantine WHERE status = ?`
	args := []any{string(model.QuarantineStatusPending)}
	if retailerID != "" {
		query += ` AND retailer_id = ?`
		args = append(args, retailerID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list quarantine")
	}
	defer rows.Close()

	var records []model.QuarantinedRecord
	for rows.Next() {
		var rec model.QuarantinedRecord
		var payloadJSON string
		if err := rows.Scan(
			&rec.ID, &rec.RetailerID, &rec.FeedID, &rec.RunID, &rec.MatchKey,
			&rec.Title, &rec.Price, &payloadJSON, &rec.Status, &rec.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan quarantine")
		}
		if err := json.Unmarshal([]byte(payloadJSON), &rec.Payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal quarantine payload")
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: iterate quarantine")
}

func (s *SQLiteStore) ListCanonical(ctx context.Context) ([]model.CanonicalSku, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, caliber, brand, grain_weight, pack_size, COALESCE(upc, ''), provenance, created_at
		FROM canonical_skus ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list canonical")
	}
	defer rows.Close()

	var entries []model.CanonicalSku
	for rows.Next() {
		entry, err := scanCanonical(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate canonical")
}

func (s *SQLiteStore) FindCanonicalByUPC(ctx context.Context, upc string) (*model.CanonicalSku, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, caliber, brand, grain_weight, pack_size, COALESCE(upc, ''), provenance, created_at
		FROM canonical_skus WHERE upc = ? LIMIT 1`, upc)
	entry, err := scanCanonical(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

func (s *SQLiteStore) FindCanonicalByAttrs(ctx context.Context, caliber, brand string) ([]model.CanonicalSku, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, caliber, brand, grain_weight, pack_size, COALESCE(upc, ''), provenance, created_at
		FROM canonical_skus WHERE caliber = ? AND brand = ? ORDER BY created_at, id`, caliber, brand)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find canonical by attrs")
	}
	defer rows.Close()

	var entries []model.CanonicalSku
	for rows.Next() {
		entry, err := scanCanonical(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate canonical by attrs")
}

func (s *SQLiteStore) CreateCanonical(ctx context.Context, attrs model.Attributes, upc string, prov model.Provenance) (*model.CanonicalSku, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	naturalKey := attrs.NaturalKey()
	if upc != "" {
		// A UPC-bearing entry is its own product identity even when the
		// extracted attributes collide with an existing signature.
		naturalKey = "upc:" + upc
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO canonical_skus (id, natural_key, caliber, brand, grain_weight, pack_size, upc, provenance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(natural_key) DO NOTHING`,
		id, naturalKey, attrs.Caliber, attrs.Brand, attrs.GrainWeight, attrs.PackSize,
		nullable(upc), string(prov), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert canonical")
	}

	// Fetch whichever row owns the natural key now; on a concurrent create
	// race this returns the winner, which is what the matcher should use.
	row := s.db.QueryRowContext(ctx, `
		SELECT id, caliber, brand, grain_weight, pack_size, COALESCE(upc, ''), provenance, created_at
		FROM canonical_skus WHERE natural_key = ?`, naturalKey)
	return scanCanonical(row)
}

func (s *SQLiteStore) ReplaceBenchmarks(ctx context.Context, runID string, benchmarks []model.Benchmark) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin benchmark replace")
	}
	defer tx.Rollback()

	// Wholesale recompute: stale rows are dropped, not incrementally patched.
	if _, err := tx.ExecContext(ctx, `DELETE FROM benchmarks`); err != nil {
		return eris.Wrap(err, "sqlite: clear benchmarks")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO benchmarks (canonical_id, run_id, min_price, median_price, max_price, avg_price, seller_count, observations, confidence, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare benchmark insert")
	}
	defer stmt.Close()

	for _, b := range benchmarks {
		_, err := stmt.ExecContext(ctx,
			b.CanonicalID, runID, b.MinPrice, b.MedianPrice, b.MaxPrice, b.AvgPrice,
			b.SellerCount, b.Observations, string(b.Confidence), b.ComputedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert benchmark %s", b.CanonicalID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit benchmark replace")
}

func (s *SQLiteStore) ListBenchmarks(ctx context.Context) ([]model.Benchmark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT canonical_id, run_id, min_price, median_price, max_price, avg_price, seller_count, observations, confidence, computed_at
		FROM benchmarks`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list benchmarks")
	}
	defer rows.Close()

	var benchmarks []model.Benchmark
	for rows.Next() {
		var b model.Benchmark
		if err := rows.Scan(
			&b.CanonicalID, &b.RunID, &b.MinPrice, &b.MedianPrice, &b.MaxPrice, &b.AvgPrice,
			&b.SellerCount, &b.Observations, &b.Confidence, &b.ComputedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan benchmark")
		}
		benchmarks = append(benchmarks, b)
	}
	return benchmarks, eris.Wrap(rows.Err(), "sqlite: iterate benchmarks")
}

func (s *SQLiteStore) UpsertInsights(ctx context.Context, insights []model.Insight) error {
	if len(insights) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insight upsert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO insights (id, retailer_sku_id, canonical_id, run_id, type, severity, price, median_price, deviation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(retailer_sku_id, canonical_id, type) DO UPDATE SET
			run_id = excluded.run_id,
			severity = excluded.severity,
			price = excluded.price,
			median_price = excluded.median_price,
			deviation = excluded.deviation,
			created_at = excluded.created_at`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insight upsert")
	}
	defer stmt.Close()

	for _, in := range insights {
		id := in.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := stmt.ExecContext(ctx,
			id, in.RetailerSkuID, in.CanonicalID, in.RunID, string(in.Type), string(in.Severity),
			in.Price, in.MedianPrice, in.Deviation, in.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert insight %s/%s", in.RetailerSkuID, in.Type)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit insight upsert")
}

func (s *SQLiteStore) ListInsights(ctx context.Context, runID string) ([]model.Insight, error) {
	query := `SELECT id, retailer_sku_id, canonical_id, run_id, type, severity, price, median_price, deviation, created_at FROM insights`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list insights")
	}
	defer rows.Close()

	var insights []model.Insight
	for rows.Next() {
		var in model.Insight
		if err := rows.Scan(
			&in.ID, &in.RetailerSkuID, &in.CanonicalID, &in.RunID, &in.Type, &in.Severity,
			&in.Price, &in.MedianPrice, &in.Deviation, &in.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan insight")
		}
		insights = append(insights, in)
	}
	return insights, eris.Wrap(rows.Err(), "sqlite: iterate insights")
}

// scanner abstracts sql.Row and sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.FeedRun, error) {
	var run model.FeedRun
	var resultJSON sql.NullString
	if err := row.Scan(
		&run.ID, &run.RetailerID, &run.FeedID, &run.Format, &run.Status,
		&resultJSON, &run.CreatedAt, &run.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrap(err, "sqlite: run not found")
		}
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result model.RunResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run result")
		}
		run.Result = &result
	}
	return &run, nil
}

func scanCanonical(row scanner) (*model.CanonicalSku, error) {
	var entry model.CanonicalSku
	if err := row.Scan(
		&entry.ID, &entry.Attrs.Caliber, &entry.Attrs.Brand, &entry.Attrs.GrainWeight,
		&entry.Attrs.PackSize, &entry.UPC, &entry.Provenance, &entry.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan canonical")
	}
	return &entry, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s %s not found", entity, id)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
