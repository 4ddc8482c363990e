package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ammosight/catalog-cli/internal/feed"
	"github.com/ammosight/catalog-cli/internal/pipeline"
	"github.com/ammosight/catalog-cli/internal/store"
	"github.com/ammosight/catalog-cli/internal/vocab"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "catalog.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initVocab() (*vocab.Vocabulary, error) {
	if cfg.Vocab.Path == "" {
		return vocab.Default(), nil
	}
	v, err := vocab.Load(cfg.Vocab.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load vocabulary overlay")
	}
	return v, nil
}

func initFetcher() *feed.Fetcher {
	return feed.NewFetcher(feed.FetchOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		RatePerSec: cfg.Fetch.RatePerSec,
	})
}

// pipelineEnv holds the initialized store, vocabulary, and pipeline
// needed by the ingest/batch/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Vocab    *vocab.Vocabulary
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store, loads the vocabulary, and builds the
// Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	v, err := initVocab()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	zap.L().Info("vocabulary loaded",
		zap.Int("calibers", v.CaliberCount()),
		zap.Int("brands", v.BrandCount()),
	)

	return &pipelineEnv{
		Store:    st,
		Vocab:    v,
		Pipeline: pipeline.New(cfg, st, v),
	}, nil
}
