// Package ingest loads the external datasets the engine consumes:
// RTIS telemetry, section signal workbooks and the crew master.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/railtrace/railtrace/internal/model"
)

// Required RTIS columns, as exported by the recorder.
var rtisColumns = []string{
	"Device Id",
	"Logging Time",
	"Latitude",
	"Longitude",
	"Speed",
	"distFromSpeed",
}

// ErrNoSamples means no telemetry rows survived cleaning and filtering.
var ErrNoSamples = errors.New("no RTIS samples in the selected window")

// RTISStats summarises what the loader did with the raw file.
type RTISStats struct {
	RowsRead     int
	RowsSkipped  int // malformed or out of physical bounds
	RowsFiltered int // outside the analysis window or secondary device
	RowsDeduped  int
	DeviceID     string
}

var rtisTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"02-01-2006 15:04:05",
	time.RFC3339,
}

func parseRTISTime(s string) (time.Time, error) {
	for _, layout := range rtisTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// LoadRTIS reads and cleans an RTIS CSV export. Rows are validated,
// filtered to the analysis window, restricted to the dominant device,
// sorted by timestamp, deduplicated and given a cumulative chainage.
// A zero windowStart/windowEnd disables window filtering.
func LoadRTIS(r io.Reader, windowStart, windowEnd time.Time) ([]model.TelemetrySample, RTISStats, error) {
	var stats RTISStats

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("read RTIS header: %w", err)
	}

	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, name := range rtisColumns {
		if _, ok := colIdx[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, stats, fmt.Errorf("RTIS file missing required columns: %v", missing)
	}

	type rawSample struct {
		s    model.TelemetrySample
		dist float64
	}
	var rows []rawSample
	deviceCounts := make(map[string]int)

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.RowsSkipped++
			continue
		}
		stats.RowsRead++

		get := func(name string) string {
			i := colIdx[name]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		ts, err := parseRTISTime(get("Logging Time"))
		if err != nil {
			stats.RowsSkipped++
			continue
		}
		lat, err1 := strconv.ParseFloat(get("Latitude"), 64)
		lon, err2 := strconv.ParseFloat(get("Longitude"), 64)
		speed, err3 := strconv.ParseFloat(get("Speed"), 64)
		if err1 != nil || err2 != nil || err3 != nil {
			stats.RowsSkipped++
			continue
		}
		dist, err := strconv.ParseFloat(get("distFromSpeed"), 64)
		if err != nil {
			dist = 0
		}

		// Physical sanity checks.
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 || speed < 0 {
			stats.RowsSkipped++
			continue
		}

		if !windowStart.IsZero() && ts.Before(windowStart) {
			stats.RowsFiltered++
			continue
		}
		if !windowEnd.IsZero() && ts.After(windowEnd) {
			stats.RowsFiltered++
			continue
		}

		device := get("Device Id")
		deviceCounts[device]++
		rows = append(rows, rawSample{
			s: model.TelemetrySample{
				Timestamp: ts,
				Latitude:  lat,
				Longitude: lon,
				Speed:     speed,
				DeviceID:  device,
			},
			dist: dist,
		})
	}

	if len(rows) == 0 {
		return nil, stats, ErrNoSamples
	}

	// Keep only the dominant device; a swapped recorder mid-run shows
	// up as a minority device id.
	primary := ""
	for id, n := range deviceCounts {
		if n > deviceCounts[primary] || primary == "" {
			primary = id
		}
	}
	stats.DeviceID = primary

	kept := rows[:0]
	for _, row := range rows {
		if row.s.DeviceID != primary {
			stats.RowsFiltered++
			continue
		}
		kept = append(kept, row)
	}
	rows = kept

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].s.Timestamp.Before(rows[j].s.Timestamp)
	})

	// Deduplicate by timestamp, keeping the first, then accumulate
	// chainage. Negative travel marks an explicit back-movement.
	samples := make([]model.TelemetrySample, 0, len(rows))
	chainage := 0.0
	var lastTS time.Time
	for i, row := range rows {
		if i > 0 && row.s.Timestamp.Equal(lastTS) {
			stats.RowsDeduped++
			continue
		}
		lastTS = row.s.Timestamp

		chainage += row.dist
		row.s.Chainage = chainage
		row.s.BackMovement = row.dist < 0
		samples = append(samples, row.s)
	}

	if len(samples) == 0 {
		return nil, stats, ErrNoSamples
	}
	return samples, stats, nil
}

// LoadRTISFile opens and loads an RTIS CSV export from disk.
func LoadRTISFile(path string, windowStart, windowEnd time.Time) ([]model.TelemetrySample, RTISStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, RTISStats{}, err
	}
	defer f.Close()
	return LoadRTIS(f, windowStart, windowEnd)
}
