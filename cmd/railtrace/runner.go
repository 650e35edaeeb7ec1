package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/railtrace/railtrace/internal/model"
	"github.com/railtrace/railtrace/pkg/aggregate"
	"github.com/railtrace/railtrace/pkg/archive"
	"github.com/railtrace/railtrace/pkg/config"
	"github.com/railtrace/railtrace/pkg/detect"
	"github.com/railtrace/railtrace/pkg/diag"
	"github.com/railtrace/railtrace/pkg/engine"
	"github.com/railtrace/railtrace/pkg/ingest"
	"github.com/railtrace/railtrace/pkg/report"
	"github.com/railtrace/railtrace/pkg/rules"
	"github.com/railtrace/railtrace/pkg/stops"
	"github.com/railtrace/railtrace/pkg/storage"
)

const windowLayout = "2006-01-02 15:04:05"

// engineConfig maps the loaded configuration onto engine tunables.
func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		Detect: detect.Config{
			StopSpeedTolerance: cfg.Engine.StopSpeedTolerance,
		},
		Aggregate: aggregate.Config{
			MergeGap:       cfg.Engine.MergeGap,
			MajorExcess:    cfg.Severity.MajorExcess,
			CriticalExcess: cfg.Severity.CriticalExcess,
		},
		Stops: stops.Config{
			SpeedThreshold: cfg.Stops.SpeedThreshold,
			MinDuration:    cfg.Stops.MinDuration,
			SignalRadius:   cfg.Stops.SignalRadiusM,
		},
		MaxConcurrentRuns: cfg.Engine.MaxConcurrentRuns,
	}
}

// buildEngine loads section data and the rule table, then constructs
// the engine. Load-time diagnostics land in the returned collector.
func buildEngine(cfg *config.Config, dir model.Direction) (*engine.Engine, *ingest.SectionData, *diag.Collector, error) {
	if sectionDir == "" {
		return nil, nil, nil, fmt.Errorf("--section-dir is required")
	}

	loadDiag := diag.NewCollector()
	data, err := ingest.LoadSectionDir(sectionDir, dir, loadDiag)
	if err != nil {
		return nil, nil, nil, err
	}

	table := rules.Builtin()
	if rulesFile != "" {
		table, err = rules.LoadFile(rulesFile)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	eng, err := engine.New(data.Sections, table, data.Signals, engineConfig(cfg))
	if err != nil {
		return nil, nil, nil, err
	}
	return eng, data, loadDiag, nil
}

// parseWindow parses the optional --from/--to analysis window.
func parseWindow() (start, end time.Time, err error) {
	if windowStart != "" {
		start, err = time.Parse(windowLayout, windowStart)
		if err != nil {
			return start, end, fmt.Errorf("bad --from value: %w", err)
		}
	}
	if windowEnd != "" {
		end, err = time.Parse(windowLayout, windowEnd)
		if err != nil {
			return start, end, fmt.Errorf("bad --to value: %w", err)
		}
	}
	return start, end, nil
}

// loadRun reads one RTIS file and builds the run from the CLI flags.
func loadRun(path string) (*model.Run, ingest.RTISStats, error) {
	start, end, err := parseWindow()
	if err != nil {
		return nil, ingest.RTISStats{}, err
	}

	samples, stats, err := ingest.LoadRTISFile(path, start, end)
	if err != nil {
		return nil, stats, fmt.Errorf("load %s: %w", path, err)
	}

	tt, _ := model.ParseTrainType(trainType)
	dir, ok := model.ParseDirection(direction)
	if !ok {
		dir = model.DirectionDown
	}

	number := trainNumber
	if number == "" {
		number = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return &model.Run{
		ID:                  uuid.New(),
		TrainNumber:         number,
		LocoNumber:          locoNumber,
		TrainType:           tt,
		Direction:           dir,
		MaxPermissibleSpeed: maxSpeed,
		Samples:             samples,
	}, stats, nil
}

// runCrew resolves the crew entries for reports, if a crew master and
// crew ids were supplied.
func runCrew(ids []string) ([]ingest.Crew, error) {
	if crewFile == "" || len(ids) == 0 {
		return nil, nil
	}
	master, err := ingest.LoadCrewFile(crewFile)
	if err != nil {
		return nil, err
	}
	var out []ingest.Crew
	for _, id := range ids {
		if c, ok := master.Get(id); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// writeOutputs writes the requested report files and pushes the run
// into the archive database and object store when enabled.
func writeOutputs(ctx context.Context, cfg *config.Config, run *model.Run, res *engine.Result, crew []ingest.Crew) error {
	rep := report.Build(run, res, crew)

	if outputJSON != "" {
		f, err := os.Create(outputJSON)
		if err != nil {
			return err
		}
		if err := report.WriteJSON(f, rep); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}

	if outputXLSX != "" {
		if err := report.WriteXLSX(outputXLSX, rep); err != nil {
			return err
		}
		if uploadReport && cfg.Archive.Enabled {
			up, err := archive.NewUploader(ctx, archive.Config{
				Region:   cfg.Archive.Region,
				Bucket:   cfg.Archive.Bucket,
				Prefix:   cfg.Archive.Prefix,
				Endpoint: cfg.Archive.Endpoint,
			})
			if err != nil {
				return err
			}
			key, err := up.UploadFile(ctx, outputXLSX, filepath.Base(outputXLSX))
			if err != nil {
				return err
			}
			fmt.Printf("  uploaded s3://%s/%s\n", cfg.Archive.Bucket, key)
		}
	}

	if archiveRun {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Database), 0o755); err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.Database)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Archive(ctx, run, res); err != nil {
			return err
		}
	}

	return nil
}
