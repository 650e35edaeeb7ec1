package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/railtrace/railtrace/internal/model"
	"github.com/railtrace/railtrace/pkg/config"
	"github.com/railtrace/railtrace/pkg/tui"
)

var crewIDs []string

var analyzeCmd = &cobra.Command{
	Use:   "analyze [rtis-file]",
	Short: "Evaluate one RTIS telemetry file",
	Long: `Evaluate a single RTIS CSV export against the section's signal data
and speed rules.

Examples:
  railtrace analyze run.csv -s sections/GZB-NDLS -t "VANDE BHARAT" -d UP
  railtrace analyze run.csv -s sections/GZB-NDLS -t FREIGHT --max-speed 55 -o report.xlsx
  railtrace analyze run.csv -s sections/GZB-NDLS -t COACHING --from "2026-08-01 06:00:00"`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&trainType, "train-type", "t", "", "train type (VANDE BHARAT, COACHING, FREIGHT)")
	analyzeCmd.Flags().StringVarP(&direction, "direction", "d", "DOWN", "direction of travel (UP or DOWN)")
	analyzeCmd.Flags().StringVar(&trainNumber, "train", "", "train number (default: file name)")
	analyzeCmd.Flags().StringVar(&locoNumber, "loco", "", "locomotive number")
	analyzeCmd.Flags().Float64Var(&maxSpeed, "max-speed", 0, "maximum permissible speed for this run (km/h)")
	analyzeCmd.Flags().StringVar(&windowStart, "from", "", "analysis window start (YYYY-MM-DD HH:MM:SS)")
	analyzeCmd.Flags().StringVar(&windowEnd, "to", "", "analysis window end (YYYY-MM-DD HH:MM:SS)")
	analyzeCmd.Flags().StringVarP(&outputXLSX, "output", "o", "", "write XLSX report to this path")
	analyzeCmd.Flags().StringVar(&outputJSON, "json", "", "write JSON report to this path")
	analyzeCmd.Flags().BoolVar(&archiveRun, "archive", false, "store the result in the archive database")
	analyzeCmd.Flags().BoolVar(&uploadReport, "upload", false, "upload the XLSX report to object storage")
	analyzeCmd.Flags().StringSliceVar(&crewIDs, "crew-id", nil, "crew ids to attach to the report")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg := config.Global().Get()
	flush := initTelemetry(cfg)
	defer flush()

	tui.PrintHeader(version)

	dir, _ := model.ParseDirection(direction)
	eng, data, loadDiag, err := buildEngine(cfg, dir)
	if err != nil {
		tui.PrintError(err)
		return err
	}
	if verbose && loadDiag.Total() > 0 {
		for _, rec := range loadDiag.Records() {
			fmt.Printf("  section data: %s\n", rec.Message)
		}
	}

	run, stats, err := loadRun(args[0])
	if err != nil {
		tui.PrintError(err)
		return err
	}
	if verbose {
		fmt.Printf("  %s: %d rows read, %d skipped, %d filtered, %d deduped, device %s\n",
			data.Name, stats.RowsRead, stats.RowsSkipped, stats.RowsFiltered, stats.RowsDeduped, stats.DeviceID)
	}

	res, err := eng.EvaluateRun(ctx, run)
	if err != nil {
		tui.PrintError(err)
		return err
	}

	tui.PrintRunSummary(run, res)
	if verbose {
		for _, rec := range res.Diagnostics {
			fmt.Printf("    %s sample=%d section=%s %s\n", rec.Code, rec.SampleIndex, rec.SectionID, rec.Message)
		}
	}

	crew, err := runCrew(crewIDs)
	if err != nil {
		return err
	}
	return writeOutputs(ctx, cfg, run, res, crew)
}
