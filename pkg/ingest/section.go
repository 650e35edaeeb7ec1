package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/railtrace/railtrace/internal/model"
	"github.com/railtrace/railtrace/pkg/diag"
	"github.com/railtrace/railtrace/pkg/stops"
)

// Section dataset workbook names, one directory per section corridor.
const (
	oheWorkbook    = "ohe_coordinates.xlsx"
	masterWorkbook = "signal_master.xlsx"
	fsdWorkbook    = "fsd_signals.xlsx" // optional, overrides OHE coordinates
	eventsWorkbook = "signal_events.xlsx"
)

// SectionData is the engine's reference data for one corridor.
type SectionData struct {
	Name     string
	Sections []model.Section
	Signals  []stops.SignalLocation
}

type coord struct {
	lat, lon float64
}

type masterRow struct {
	station    string
	signalName string
	signalType string
	oheID      string
	sequence   int
	chainage   float64
	lat, lon   float64
}

// LoadSectionDir loads a corridor's signal datasets. Coordinates are
// resolved FSD-first with OHE fallback. For UP direction the signal
// sequence and chainage datum are reversed so both follow the direction
// of travel. Malformed aspect strings in the event workbook become
// UNKNOWN_SIGNAL_ASPECT diagnostics, not load failures.
func LoadSectionDir(dir string, direction model.Direction, c *diag.Collector) (*SectionData, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("section directory: %w", err)
	}

	ohe, err := loadCoordSheet(filepath.Join(dir, oheWorkbook), "OHE_ID")
	if err != nil {
		return nil, fmt.Errorf("load OHE coordinates: %w", err)
	}

	fsd := map[string]coord{}
	fsdPath := filepath.Join(dir, fsdWorkbook)
	if _, err := os.Stat(fsdPath); err == nil {
		fsd, err = loadCoordSheet(fsdPath, "SIGNAL_NAME")
		if err != nil {
			return nil, fmt.Errorf("load FSD signals: %w", err)
		}
	}

	master, err := loadSignalMaster(filepath.Join(dir, masterWorkbook), ohe, fsd)
	if err != nil {
		return nil, err
	}
	if len(master) < 2 {
		return nil, fmt.Errorf("signal master has %d signals; need at least 2", len(master))
	}

	applyDirection(master, direction)

	sections, signals := buildSections(master)

	if err := attachEvents(filepath.Join(dir, eventsWorkbook), sections, c); err != nil {
		return nil, err
	}

	return &SectionData{
		Name:     filepath.Base(dir),
		Sections: sections,
		Signals:  signals,
	}, nil
}

// loadCoordSheet reads a workbook keyed by keyCol with LATITUDE and
// LONGITUDE columns.
func loadCoordSheet(path, keyCol string) (map[string]coord, error) {
	rows, header, err := readSheet(path)
	if err != nil {
		return nil, err
	}

	keyIdx, ok := header[keyCol]
	latIdx, ok2 := header["LATITUDE"]
	lonIdx, ok3 := header["LONGITUDE"]
	if !ok || !ok2 || !ok3 {
		return nil, fmt.Errorf("%s: need columns %s, LATITUDE, LONGITUDE", filepath.Base(path), keyCol)
	}

	out := make(map[string]coord, len(rows))
	for _, row := range rows {
		key := cell(row, keyIdx)
		lat, err1 := strconv.ParseFloat(cell(row, latIdx), 64)
		lon, err2 := strconv.ParseFloat(cell(row, lonIdx), 64)
		if key == "" || err1 != nil || err2 != nil {
			continue
		}
		out[key] = coord{lat: lat, lon: lon}
	}
	return out, nil
}

// loadSignalMaster reads the master workbook and resolves coordinates.
func loadSignalMaster(path string, ohe, fsd map[string]coord) ([]masterRow, error) {
	rows, header, err := readSheet(path)
	if err != nil {
		return nil, fmt.Errorf("load signal master: %w", err)
	}

	need := []string{"STATION", "SIGNAL_NAME", "SIGNAL_TYPE", "OHE_ID", "SEQUENCE_NO", "CHAINAGE_M"}
	idx := make(map[string]int, len(need))
	for _, col := range need {
		i, ok := header[col]
		if !ok {
			return nil, fmt.Errorf("signal master missing column %s", col)
		}
		idx[col] = i
	}

	out := make([]masterRow, 0, len(rows))
	for n, row := range rows {
		m := masterRow{
			station:    cell(row, idx["STATION"]),
			signalName: cell(row, idx["SIGNAL_NAME"]),
			signalType: cell(row, idx["SIGNAL_TYPE"]),
			oheID:      cell(row, idx["OHE_ID"]),
		}
		if m.signalName == "" {
			continue
		}

		seq, err := strconv.Atoi(cell(row, idx["SEQUENCE_NO"]))
		if err != nil {
			return nil, fmt.Errorf("signal master row %d: bad sequence number", n+2)
		}
		m.sequence = seq

		ch, err := strconv.ParseFloat(cell(row, idx["CHAINAGE_M"]), 64)
		if err != nil {
			return nil, fmt.Errorf("signal master row %d: bad chainage", n+2)
		}
		m.chainage = ch

		// FSD coordinates win; OHE is the fallback.
		if c, ok := fsd[m.signalName]; ok {
			m.lat, m.lon = c.lat, c.lon
		} else if c, ok := ohe[m.oheID]; ok {
			m.lat, m.lon = c.lat, c.lon
		} else {
			return nil, fmt.Errorf("coordinates not found for signal %s", m.signalName)
		}

		out = append(out, m)
	}
	return out, nil
}

// applyDirection reverses sequence numbers and the chainage datum for
// UP traversals so both follow the direction of travel.
func applyDirection(master []masterRow, direction model.Direction) {
	if direction == model.DirectionUp {
		maxSeq := 0
		maxCh := 0.0
		for _, m := range master {
			if m.sequence > maxSeq {
				maxSeq = m.sequence
			}
			if m.chainage > maxCh {
				maxCh = m.chainage
			}
		}
		for i := range master {
			master[i].sequence = maxSeq - master[i].sequence + 1
			master[i].chainage = maxCh - master[i].chainage
		}
	}

	sort.Slice(master, func(i, j int) bool {
		return master[i].sequence < master[j].sequence
	})
}

// buildSections derives block sections from consecutive signal pairs.
func buildSections(master []masterRow) ([]model.Section, []stops.SignalLocation) {
	sections := make([]model.Section, 0, len(master)-1)
	signals := make([]stops.SignalLocation, 0, len(master))

	for i := range master {
		sig := stops.SignalLocation{
			Name:      master[i].signalName,
			Station:   master[i].station,
			Latitude:  master[i].lat,
			Longitude: master[i].lon,
		}
		if i+1 < len(master) {
			sec := model.Section{
				ID:            master[i].signalName + "-" + master[i+1].signalName,
				Name:          master[i].station,
				StartChainage: master[i].chainage,
				EndChainage:   master[i+1].chainage,
			}
			sections = append(sections, sec)
			sig.SectionID = sec.ID
		}
		signals = append(signals, sig)
	}
	return sections, signals
}

// attachEvents reads the signal-event workbook and attaches events to
// their sections, ordered by timestamp.
func attachEvents(path string, sections []model.Section, c *diag.Collector) error {
	rows, header, err := readSheet(path)
	if err != nil {
		return fmt.Errorf("load signal events: %w", err)
	}

	secIdx, ok := header["SECTION_ID"]
	tsIdx, ok2 := header["TIMESTAMP"]
	aspIdx, ok3 := header["ASPECT"]
	if !ok || !ok2 || !ok3 {
		return fmt.Errorf("signal events: need columns SECTION_ID, TIMESTAMP, ASPECT")
	}

	byID := make(map[string]*model.Section, len(sections))
	for i := range sections {
		byID[sections[i].ID] = &sections[i]
	}

	for n, row := range rows {
		sectionID := cell(row, secIdx)
		sec, ok := byID[sectionID]
		if !ok {
			continue
		}

		ts, err := parseRTISTime(cell(row, tsIdx))
		if err != nil {
			c.Recordf(diag.CodeUnknownSignalAspect, -1, sectionID, time.Time{},
				"event row %d: %v", n+2, err)
			continue
		}

		aspectStr := cell(row, aspIdx)
		aspect, ok := model.ParseAspect(aspectStr)
		if !ok {
			c.Recordf(diag.CodeUnknownSignalAspect, -1, sectionID, ts,
				"event row %d: unknown aspect %q", n+2, aspectStr)
			continue
		}

		sec.Events = append(sec.Events, model.SignalEvent{
			Timestamp: ts,
			SectionID: sectionID,
			Aspect:    aspect,
		})
	}

	for i := range sections {
		ev := sections[i].Events
		sort.SliceStable(ev, func(a, b int) bool {
			return ev[a].Timestamp.Before(ev[b].Timestamp)
		})
	}
	return nil
}

// readSheet opens a workbook's first sheet and returns its data rows
// plus an upper-cased header index.
func readSheet(path string) ([][]string, map[string]int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, nil, fmt.Errorf("%s: no sheets", filepath.Base(path))
		}
		sheet = list[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%s: empty sheet", filepath.Base(path))
	}

	header := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		header[strings.ToUpper(strings.TrimSpace(name))] = i
	}
	return rows[1:], header, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
