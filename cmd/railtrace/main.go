// RailTrace - Section-based signal violation engine for locomotive
// telemetry. Evaluates RTIS runs against signal aspects and speed rules.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/railtrace/railtrace/pkg/config"
	"github.com/railtrace/railtrace/pkg/telemetry"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Shared CLI flags
var (
	sectionDir   string
	rulesFile    string
	crewFile     string
	trainType    string
	direction    string
	trainNumber  string
	locoNumber   string
	maxSpeed     float64
	windowStart  string
	windowEnd    string
	outputXLSX   string
	outputJSON   string
	archiveRun   bool
	uploadReport bool
	verbose      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "railtrace",
	Short: "RailTrace - signal violation engine for locomotive telemetry",
	Long: `RailTrace evaluates locomotive telemetry runs against block-section
signal aspects and train-type speed rules.

It aligns RTIS samples to block sections, resolves the signal aspect in
force at each sample, applies the speed-rule table and reports
overspeed and signal-aspect violations with severity grading.`,
	Version:       fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&sectionDir, "section-dir", "s", "", "directory with the section signal workbooks")
	rootCmd.PersistentFlags().StringVarP(&rulesFile, "rules", "r", "", "speed rule overrides (YAML, optional)")
	rootCmd.PersistentFlags().StringVar(&crewFile, "crew", "", "crew master CSV (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print per-sample diagnostics")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(archiveCmd)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// initTelemetry starts OTLP export when enabled and returns a flush
// function that is always safe to call.
func initTelemetry(cfg *config.Config) func() {
	if !cfg.Telemetry.Enabled {
		return func() {}
	}

	otlpCfg := telemetry.DefaultOTLPConfig("railtrace")
	otlpCfg.ServiceVersion = version
	if cfg.Telemetry.Endpoint != "" {
		otlpCfg.Endpoint = cfg.Telemetry.Endpoint
	}

	shutdown, err := telemetry.InitOTLP(otlpCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
		return func() {}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdown(ctx)
	}
}
