// Package report renders evaluation results as XLSX workbooks and JSON
// documents for operational review.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/railtrace/railtrace/internal/model"
	"github.com/railtrace/railtrace/pkg/engine"
	"github.com/railtrace/railtrace/pkg/ingest"
)

const timeFormat = "2006-01-02 15:04:05"

// RunReport is the serialisable view of one evaluated run.
type RunReport struct {
	RunID       string          `json:"run_id"`
	TrainNumber string          `json:"train_number"`
	LocoNumber  string          `json:"loco_number"`
	TrainType   string          `json:"train_type"`
	Direction   string          `json:"direction"`
	Crew        []CrewEntry     `json:"crew,omitempty"`
	Summary     SummaryJSON     `json:"summary"`
	Violations  []ViolationJSON `json:"violations"`
	Stops       []StopJSON      `json:"stops"`
	Diagnostics []DiagJSON      `json:"diagnostics"`
	EvaluatedAt time.Time       `json:"evaluated_at"`
	ElapsedMS   int64           `json:"elapsed_ms"`
}

// CrewEntry names a crew member attached to the run.
type CrewEntry struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	Name     string `json:"name"`
	GroupCLI string `json:"group_cli,omitempty"`
}

// SummaryJSON mirrors model.Summary with string keys.
type SummaryJSON struct {
	Total      int            `json:"total"`
	ByKind     map[string]int `json:"by_kind"`
	BySeverity map[string]int `json:"by_severity"`
}

// ViolationJSON is one violation row.
type ViolationJSON struct {
	Kind        string    `json:"kind"`
	SectionID   string    `json:"section_id"`
	Severity    string    `json:"severity"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	DurationSec float64   `json:"duration_sec"`
	PeakExcess  float64   `json:"peak_excess_kmph"`
	SampleCount int       `json:"sample_count"`
}

// StopJSON is one stop event row.
type StopJSON struct {
	SignalName  string    `json:"signal_name"`
	SectionID   string    `json:"section_id,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	DurationSec float64   `json:"duration_sec"`
	DistanceM   float64   `json:"distance_m"`
}

// DiagJSON is one diagnostic row.
type DiagJSON struct {
	Code        string `json:"code"`
	SampleIndex int    `json:"sample_index"`
	SectionID   string `json:"section_id,omitempty"`
	Message     string `json:"message"`
}

// Build assembles the report document for one run. crew may be nil.
func Build(run *model.Run, res *engine.Result, crew []ingest.Crew) *RunReport {
	rep := &RunReport{
		RunID:       run.ID.String(),
		TrainNumber: run.TrainNumber,
		LocoNumber:  run.LocoNumber,
		TrainType:   run.TrainType.String(),
		Direction:   run.Direction.String(),
		EvaluatedAt: time.Now().UTC(),
		ElapsedMS:   res.Elapsed.Milliseconds(),
		Summary: SummaryJSON{
			Total:      res.Summary.Total,
			ByKind:     map[string]int{},
			BySeverity: map[string]int{},
		},
	}
	for k, n := range res.Summary.ByKind {
		rep.Summary.ByKind[k.String()] = n
	}
	for s, n := range res.Summary.BySeverity {
		rep.Summary.BySeverity[s.String()] = n
	}
	for _, c := range crew {
		rep.Crew = append(rep.Crew, CrewEntry{ID: c.ID, Role: c.Role, Name: c.Name, GroupCLI: c.GroupCLI})
	}
	for _, v := range res.Violations {
		rep.Violations = append(rep.Violations, ViolationJSON{
			Kind:        v.Kind.String(),
			SectionID:   v.SectionID,
			Severity:    v.Severity.String(),
			Start:       v.Start,
			End:         v.End,
			DurationSec: v.Duration().Seconds(),
			PeakExcess:  v.PeakExcess,
			SampleCount: v.SampleCount,
		})
	}
	for _, s := range res.Stops {
		rep.Stops = append(rep.Stops, StopJSON{
			SignalName:  s.SignalName,
			SectionID:   s.SectionID,
			Start:       s.Start,
			End:         s.End,
			DurationSec: s.Duration.Seconds(),
			DistanceM:   s.DistanceM,
		})
	}
	for _, d := range res.Diagnostics {
		rep.Diagnostics = append(rep.Diagnostics, DiagJSON{
			Code:        d.Code.String(),
			SampleIndex: d.SampleIndex,
			SectionID:   d.SectionID,
			Message:     d.Message,
		})
	}
	return rep
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, rep *RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// WriteXLSX writes the report as a workbook with Summary, Violations,
// Stops and Diagnostics sheets.
func WriteXLSX(path string, rep *RunReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeSummarySheet(f, rep); err != nil {
		return err
	}
	if err := writeViolationsSheet(f, rep); err != nil {
		return err
	}
	if err := writeStopsSheet(f, rep); err != nil {
		return err
	}
	if err := writeDiagnosticsSheet(f, rep); err != nil {
		return err
	}

	// Drop the default sheet.
	f.DeleteSheet("Sheet1")

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, rep *RunReport) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"Run ID", rep.RunID},
		{"Train Number", rep.TrainNumber},
		{"Loco Number", rep.LocoNumber},
		{"Train Type", rep.TrainType},
		{"Direction", rep.Direction},
		{"Total Violations", rep.Summary.Total},
		{"Evaluated At", rep.EvaluatedAt.Format(timeFormat)},
	}
	for _, c := range rep.Crew {
		rows = append(rows, []interface{}{"Crew (" + c.Role + ")", c.Name})
	}
	for _, kind := range sortedKeys(rep.Summary.ByKind) {
		rows = append(rows, []interface{}{"Violations: " + kind, rep.Summary.ByKind[kind]})
	}
	for _, sev := range sortedKeys(rep.Summary.BySeverity) {
		rows = append(rows, []interface{}{"Severity: " + sev, rep.Summary.BySeverity[sev]})
	}

	return writeRows(f, sheet, rows)
}

// sortedKeys fixes the summary row order across writes.
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeViolationsSheet(f *excelize.File, rep *RunReport) error {
	const sheet = "Violations"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"Kind", "Section", "Severity", "Start", "End", "Duration (s)", "Peak Excess (km/h)", "Samples"},
	}
	for _, v := range rep.Violations {
		rows = append(rows, []interface{}{
			v.Kind, v.SectionID, v.Severity,
			v.Start.Format(timeFormat), v.End.Format(timeFormat),
			v.DurationSec, v.PeakExcess, v.SampleCount,
		})
	}
	return writeRows(f, sheet, rows)
}

func writeStopsSheet(f *excelize.File, rep *RunReport) error {
	const sheet = "Stops"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"Signal", "Section", "Start", "End", "Duration (s)", "Distance (m)"},
	}
	for _, s := range rep.Stops {
		rows = append(rows, []interface{}{
			s.SignalName, s.SectionID,
			s.Start.Format(timeFormat), s.End.Format(timeFormat),
			s.DurationSec, s.DistanceM,
		})
	}
	return writeRows(f, sheet, rows)
}

func writeDiagnosticsSheet(f *excelize.File, rep *RunReport) error {
	const sheet = "Diagnostics"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"Code", "Sample Index", "Section", "Message"},
	}
	for _, d := range rep.Diagnostics {
		rows = append(rows, []interface{}{d.Code, d.SampleIndex, d.SectionID, d.Message})
	}
	return writeRows(f, sheet, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
