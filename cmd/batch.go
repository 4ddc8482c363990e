package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ammosight/catalog-cli/internal/feed"
	"github.com/ammosight/catalog-cli/internal/model"
	"github.com/ammosight/catalog-cli/internal/pipeline"
)

var (
	batchManifest string
	batchLimit    int
)

// feedManifest is the YAML shape of a batch manifest file.
type feedManifest struct {
	Feeds []manifestEntry `yaml:"feeds"`
}

// manifestEntry describes one retailer feed to ingest.
type manifestEntry struct {
	RetailerID string `yaml:"retailer_id"`
	FeedID     string `yaml:"feed_id"`
	Format     string `yaml:"format"`
	Source     string `yaml:"source"` // file path or URL
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Ingest all feeds listed in a manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		entries, err := loadManifest(batchManifest)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return processBatch(ctx, entries, batchLimit, cfg.Batch.MaxConcurrentRetailers, env.Pipeline)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchManifest, "manifest", "feeds.yaml", "path to the feed manifest")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of feeds to process (0 = all)")
	rootCmd.AddCommand(batchCmd)
}

// loadManifest parses and validates the manifest file.
func loadManifest(path string) ([]manifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read manifest")
	}
	var m feedManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "parse manifest")
	}
	for i, e := range m.Feeds {
		if e.RetailerID == "" || e.FeedID == "" || e.Source == "" {
			return nil, eris.Errorf("manifest entry %d: retailer_id, feed_id, and source are required", i)
		}
		if !model.ValidFormat(model.FeedFormat(e.Format)) {
			return nil, eris.Errorf("manifest entry %d: unsupported format %q", i, e.Format)
		}
	}
	return m.Feeds, nil
}

// processBatch applies limit, then ingests feeds concurrently. Individual
// feed failures are logged, not fatal: one retailer's broken snapshot must
// not block the rest of the batch.
func processBatch(ctx context.Context, entries []manifestEntry, limit, concurrency int, p *pipeline.Pipeline) error {
	if len(entries) == 0 {
		zap.L().Info("manifest lists no feeds")
		return nil
	}

	// Apply limit
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	zap.L().Info("processing batch",
		zap.Int("feeds", len(entries)),
		zap.Int("concurrency", concurrency),
	)

	fetcher := initFetcher()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, entry := range entries {
		g.Go(func() error {
			log := zap.L().With(
				zap.String("retailer", entry.RetailerID),
				zap.String("feed", entry.FeedID),
			)

			run, err := ingestOne(gctx, entry, fetcher, p)
			if err != nil {
				failed.Add(1)
				log.Error("feed ingest failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("feed ingest complete",
				zap.String("run_id", run.ID),
				zap.Int("indexable", run.Result.Indexable),
				zap.Int("quarantined", run.Result.Quarantined),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}

// ingestOne fetches, parses, and runs the pipeline for a single manifest entry.
func ingestOne(ctx context.Context, entry manifestEntry, fetcher *feed.Fetcher, p *pipeline.Pipeline) (*model.FeedRun, error) {
	format := model.FeedFormat(entry.Format)

	var src io.ReadCloser
	var err error
	if isRemote(entry.Source) {
		src, err = fetcher.Fetch(ctx, entry.Source)
	} else {
		src, err = os.Open(entry.Source)
	}
	if err != nil {
		return nil, eris.Wrap(err, "open feed source")
	}
	defer src.Close() //nolint:errcheck

	rowCh, errCh := feed.Rows(ctx, format, src)
	rows, err := feed.Collect(ctx, rowCh, errCh)
	if err != nil {
		return nil, eris.Wrap(err, "parse feed")
	}

	fd := model.Feed{
		ID:         entry.FeedID,
		RetailerID: entry.RetailerID,
		Format:     format,
		Source:     entry.Source,
	}
	return p.Run(ctx, fd, rows)
}

func isRemote(source string) bool {
	for _, prefix := range []string{"http://", "https://", "ftp://"} {
		if len(source) >= len(prefix) && source[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
