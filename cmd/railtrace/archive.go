package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/railtrace/railtrace/pkg/config"
	"github.com/railtrace/railtrace/pkg/storage"
)

var (
	archiveLimit  int
	parquetOutput string
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Query the violation archive",
	Long: `Query the archive database: list recent runs, summarise violations by
kind and export the violation table to Parquet.

Examples:
  railtrace archive
  railtrace archive --limit 50
  railtrace archive --parquet violations.parquet`,
	RunE: runArchive,
}

func init() {
	archiveCmd.Flags().IntVar(&archiveLimit, "limit", 20, "number of recent runs to list")
	archiveCmd.Flags().StringVar(&parquetOutput, "parquet", "", "export the violation table to this Parquet file")
}

func runArchive(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg := config.Global().Get()
	store, err := storage.Open(cfg.Storage.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	if parquetOutput != "" {
		if err := store.ExportParquet(ctx, parquetOutput); err != nil {
			return err
		}
		fmt.Printf("exported violations to %s\n", parquetOutput)
		return nil
	}

	runs, err := store.RecentRuns(ctx, archiveLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tTRAIN\tTYPE\tVIOLATIONS\tEVALUATED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			r.RunID, r.TrainNumber, r.TrainType, r.ViolationCount,
			r.EvaluatedAt.Format("2006-01-02 15:04"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	kinds, err := store.SummaryByKind(ctx)
	if err != nil {
		return err
	}
	if len(kinds) > 0 {
		fmt.Println()
		for _, k := range kinds {
			fmt.Printf("%-15s %d\n", k.Kind, k.Count)
		}
	}
	return nil
}
