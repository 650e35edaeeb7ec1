package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/railtrace/railtrace/internal/model"
	"github.com/railtrace/railtrace/pkg/checkpoint"
	"github.com/railtrace/railtrace/pkg/config"
	"github.com/railtrace/railtrace/pkg/engine"
	"github.com/railtrace/railtrace/pkg/tui"
)

// settleDelay gives the recorder time to finish writing a file before
// we pick it up.
const settleDelay = 2 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch [drop-dir]",
	Short: "Watch a directory and evaluate new RTIS files as they arrive",
	Long: `Watch a drop directory for new RTIS CSV exports and evaluate each one
as it lands. When a Redis address is configured, files are claimed
atomically so several workers can watch the same directory.

Examples:
  railtrace watch /data/incoming -s sections/GZB-NDLS -t COACHING
  RAILTRACE_REDIS=localhost:6379 railtrace watch /data/incoming -s sections/GZB-NDLS -t FREIGHT`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&trainType, "train-type", "t", "", "train type for incoming runs")
	watchCmd.Flags().StringVarP(&direction, "direction", "d", "DOWN", "direction of travel (UP or DOWN)")
	watchCmd.Flags().Float64Var(&maxSpeed, "max-speed", 0, "maximum permissible speed (km/h)")
	watchCmd.Flags().BoolVar(&archiveRun, "archive", false, "store results in the archive database")
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	var registry *checkpoint.Registry
	if cfg.Watch.RedisAddress != "" {
		rcfg := checkpoint.DefaultRedisConfig(cfg.Watch.RedisAddress)
		rcfg.Prefix = cfg.Watch.RedisPrefix
		rcfg.ClaimTTL = cfg.Watch.ClaimTTL
		registry, err = checkpoint.NewRegistry(rcfg)
		if err != nil {
			return err
		}
		defer registry.Close()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dropDir := args[0]
	if err := watcher.Add(dropDir); err != nil {
		return fmt.Errorf("watch %s: %w", dropDir, err)
	}
	fmt.Printf("  watching %s\n", dropDir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Printf("  watch error: %v\n", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".csv") {
				continue
			}
			handleDrop(ctx, cfg, eng, registry, event.Name)
		}
	}
}

// handleDrop claims, evaluates and records one dropped file. Failures
// release the claim so the file can be retried.
func handleDrop(ctx context.Context, cfg *config.Config, eng *engine.Engine, registry *checkpoint.Registry, path string) {
	if registry != nil {
		if err := registry.Claim(ctx, path); err != nil {
			if !errors.Is(err, checkpoint.ErrAlreadyClaimed) {
				fmt.Printf("  claim %s: %v\n", filepath.Base(path), err)
			}
			return
		}
	}

	// Let the writer finish before reading.
	select {
	case <-ctx.Done():
		return
	case <-time.After(settleDelay):
	}

	run, _, err := loadRun(path)
	if err == nil {
		var res *engine.Result
		res, err = eng.EvaluateRun(ctx, run)
		if err == nil {
			tui.PrintRunSummary(run, res)
			outputXLSX = ""
			outputJSON = ""
			err = writeOutputs(ctx, cfg, run, res, nil)
		}
	}

	if err != nil {
		fmt.Printf("  %s: %v\n", filepath.Base(path), err)
		if registry != nil {
			registry.Release(ctx, path)
		}
		return
	}
	if registry != nil {
		if err := registry.MarkDone(ctx, path); err != nil {
			fmt.Printf("  mark done %s: %v\n", filepath.Base(path), err)
		}
	}
}
