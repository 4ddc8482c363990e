package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ammosight/catalog-cli/internal/feed"
	"github.com/ammosight/catalog-cli/internal/model"
)

var (
	ingestRetailer string
	ingestFeedID   string
	ingestFormat   string
	ingestFile     string
	ingestURL      string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a single retailer feed snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		format := model.FeedFormat(ingestFormat)
		if !model.ValidFormat(format) {
			return eris.Errorf("unsupported feed format: %s", ingestFormat)
		}
		if (ingestFile == "") == (ingestURL == "") {
			return eris.New("exactly one of --file or --url is required")
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var src io.ReadCloser
		source := ingestFile
		if ingestURL != "" {
			source = ingestURL
			src, err = initFetcher().Fetch(ctx, ingestURL)
			if err != nil {
				return eris.Wrap(err, "fetch feed")
			}
		} else {
			src, err = os.Open(ingestFile)
			if err != nil {
				return eris.Wrap(err, "open feed file")
			}
		}
		defer src.Close() //nolint:errcheck

		rowCh, errCh := feed.Rows(ctx, format, src)
		rows, err := feed.Collect(ctx, rowCh, errCh)
		if err != nil {
			return eris.Wrap(err, "parse feed")
		}

		fd := model.Feed{
			ID:         ingestFeedID,
			RetailerID: ingestRetailer,
			Format:     format,
			Source:     source,
		}

		run, err := env.Pipeline.Run(ctx, fd, rows)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("ingest complete",
			zap.String("run_id", run.ID),
			zap.Int("indexable", run.Result.Indexable),
			zap.Int("quarantined", run.Result.Quarantined),
			zap.Int("rejected", run.Result.Rejected),
		)

		// Print run JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestRetailer, "retailer", "", "retailer identifier (required)")
	ingestCmd.Flags().StringVar(&ingestFeedID, "feed", "", "feed identifier (required)")
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "csv", "feed format (csv, xml, json, xlsx)")
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "path to a feed snapshot file")
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "http(s) or ftp URL of the feed snapshot")
	_ = ingestCmd.MarkFlagRequired("retailer")
	_ = ingestCmd.MarkFlagRequired("feed")
	rootCmd.AddCommand(ingestCmd)
}
