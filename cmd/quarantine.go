package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ammosight/catalog-cli/internal/model"
)

var quarantineRetailer string

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Inspect quarantined feed records",
}

var quarantineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List quarantined records awaiting resolution",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		records, err := st.ListQuarantined(ctx, quarantineRetailer)
		if err != nil {
			return eris.Wrap(err, "list quarantined")
		}

		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No quarantined records found.")
			return nil
		}

		formatQuarantineList(os.Stdout, records)
		return nil
	},
}

func init() {
	quarantineListCmd.Flags().StringVar(&quarantineRetailer, "retailer", "", "filter by retailer ID")
	quarantineCmd.AddCommand(quarantineListCmd)
	rootCmd.AddCommand(quarantineCmd)
}

func formatQuarantineList(out io.Writer, records []model.QuarantinedRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tRETAILER\tTITLE\tPRICE\tSTATUS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t-----\t-----\t------\t-------")

	for _, r := range records {
		title := r.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
			truncateID(r.ID),
			r.RetailerID,
			title,
			r.Price,
			r.Status,
			r.CreatedAt.Format(time.DateOnly),
		)
	}
	_ = w.Flush()
}
