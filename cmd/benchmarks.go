package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var benchmarksRetailer string

var benchmarksCmd = &cobra.Command{
	Use:   "benchmarks",
	Short: "Price benchmark operations",
}

var benchmarksRecomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute benchmarks and insights from the current catalog",
	Long:  "Re-runs the analytics stages against the active catalog state without re-ingesting any feed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Pipeline.Recompute(ctx, benchmarksRetailer)
		if err != nil {
			return eris.Wrap(err, "recompute")
		}

		zap.L().Info("recompute complete",
			zap.String("run_id", run.ID),
			zap.Int("benchmarks", run.Result.Benchmarks),
			zap.Int("insights", run.Result.Insights),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

var benchmarksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List current price benchmarks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		benchmarks, err := st.ListBenchmarks(ctx)
		if err != nil {
			return eris.Wrap(err, "list benchmarks")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(benchmarks)
	},
}

func init() {
	benchmarksRecomputeCmd.Flags().StringVar(&benchmarksRetailer, "retailer", "ops", "retailer ID to attribute the recompute run to")
	benchmarksCmd.AddCommand(benchmarksRecomputeCmd)
	benchmarksCmd.AddCommand(benchmarksListCmd)
	rootCmd.AddCommand(benchmarksCmd)
}
