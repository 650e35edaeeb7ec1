package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/railtrace/railtrace/internal/model"
	"github.com/railtrace/railtrace/pkg/config"
	"github.com/railtrace/railtrace/pkg/engine"
	"github.com/railtrace/railtrace/pkg/tui"
)

var reportDir string

var batchCmd = &cobra.Command{
	Use:   "batch [rtis-dir]",
	Short: "Evaluate every RTIS file in a directory",
	Long: `Evaluate all RTIS CSV exports in a directory concurrently. Each file
becomes one run; a file that fails to load or evaluate is reported and
does not stop the batch.

Examples:
  railtrace batch ./exports -s sections/GZB-NDLS -t COACHING -d DOWN
  railtrace batch ./exports -s sections/GZB-NDLS -t FREIGHT --report-dir ./reports`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&trainType, "train-type", "t", "", "train type for all runs")
	batchCmd.Flags().StringVarP(&direction, "direction", "d", "DOWN", "direction of travel (UP or DOWN)")
	batchCmd.Flags().Float64Var(&maxSpeed, "max-speed", 0, "maximum permissible speed (km/h)")
	batchCmd.Flags().StringVar(&windowStart, "from", "", "analysis window start (YYYY-MM-DD HH:MM:SS)")
	batchCmd.Flags().StringVar(&windowEnd, "to", "", "analysis window end (YYYY-MM-DD HH:MM:SS)")
	batchCmd.Flags().StringVar(&reportDir, "report-dir", "", "write one XLSX report per run to this directory")
	batchCmd.Flags().BoolVar(&archiveRun, "archive", false, "store results in the archive database")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg := config.Global().Get()
	flush := initTelemetry(cfg)
	defer flush()

	tui.PrintHeader(version)

	dir, _ := model.ParseDirection(direction)
	eng, _, _, err := buildEngine(cfg, dir)
	if err != nil {
		tui.PrintError(err)
		return err
	}

	files, err := listRTISFiles(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no CSV files in %s", args[0])
	}

	// Load all runs first so file-level failures surface before the
	// expensive evaluation starts.
	bar := tui.NewProgressBar(len(files), "loading")
	var runs []*model.Run
	loadErrs := map[string]error{}
	for _, path := range files {
		run, _, err := loadRun(path)
		if err != nil {
			loadErrs[path] = err
		} else {
			runs = append(runs, run)
		}
		bar.Add(1)
	}
	bar.Finish()

	start := time.Now()
	items, err := eng.EvaluateBatch(ctx, runs)
	if err != nil {
		return err
	}

	for _, it := range items {
		if it.Err != nil {
			continue
		}
		tui.PrintRunSummary(it.Run, it.Result)
		if err := writeBatchOutputs(ctx, cfg, it); err != nil {
			return err
		}
	}

	tui.PrintBatchSummary(items, time.Since(start))
	for path, err := range loadErrs {
		fmt.Printf("  skipped %s: %v\n", filepath.Base(path), err)
	}
	return nil
}

func writeBatchOutputs(ctx context.Context, cfg *config.Config, it engine.BatchItem) error {
	if reportDir != "" {
		if err := os.MkdirAll(reportDir, 0o755); err != nil {
			return err
		}
		outputXLSX = filepath.Join(reportDir, it.Run.TrainNumber+".xlsx")
	} else {
		outputXLSX = ""
	}
	outputJSON = ""
	return writeOutputs(ctx, cfg, it.Run, it.Result, nil)
}

func listRTISFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
