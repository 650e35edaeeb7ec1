package aggregate

import (
	"reflect"
	"testing"
	"time"

	"github.com/railtrace/railtrace/internal/model"
)

var base = time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)

func interval(kind model.ViolationKind, sectionID string, startSec, endSec int, peak float64) model.Violation {
	return model.Violation{
		Kind:        kind,
		SectionID:   sectionID,
		Start:       base.Add(time.Duration(startSec) * time.Second),
		End:         base.Add(time.Duration(endSec) * time.Second),
		PeakExcess:  peak,
		SampleCount: (endSec - startSec) + 1,
	}
}

func TestAggregate_MergesWithinGap(t *testing.T) {
	cfg := Config{MergeGap: 30 * time.Second, MajorExcess: 10, CriticalExcess: 20}

	raw := []model.Violation{
		interval(model.KindOverspeed, "A-B", 0, 20, 5),
		interval(model.KindOverspeed, "A-B", 40, 60, 12), // gap 20s < 30s: merge
		interval(model.KindOverspeed, "A-B", 200, 210, 3),
	}

	out, summary := Aggregate(raw, cfg)
	if len(out) != 2 {
		t.Fatalf("got %d violations, want 2", len(out))
	}

	merged := out[0]
	if !merged.Start.Equal(base) || !merged.End.Equal(base.Add(60*time.Second)) {
		t.Errorf("merged span = %v..%v", merged.Start, merged.End)
	}
	if merged.PeakExcess != 12 {
		t.Errorf("merged peak = %.0f, want max of parts", merged.PeakExcess)
	}
	if merged.Severity != model.SeverityMajor {
		t.Errorf("merged severity = %v, want MAJOR from merged peak", merged.Severity)
	}
	if summary.Total != 2 {
		t.Errorf("summary total = %d", summary.Total)
	}
}

func TestAggregate_GapBoundaries(t *testing.T) {
	cfg := Config{MergeGap: 20 * time.Second}

	tests := []struct {
		name      string
		secondAt  int // start second of the second interval
		wantCount int
	}{
		{"gap shorter than window merges", 25, 1},
		{"gap equal to window merges", 30, 1},
		{"gap beyond window stays separate", 31, 2},
	}

	for _, tc := range tests {
		raw := []model.Violation{
			interval(model.KindOverspeed, "A-B", 0, 10, 5),
			interval(model.KindOverspeed, "A-B", tc.secondAt, tc.secondAt+10, 5),
		}
		out, _ := Aggregate(raw, cfg)
		if len(out) != tc.wantCount {
			t.Errorf("%s: got %d intervals, want %d", tc.name, len(out), tc.wantCount)
		}
	}
}

func TestAggregate_AdjacentIntervalsMergeWithMinimalWindow(t *testing.T) {
	// Two intervals one timestamp-unit apart coalesce under any window
	// of at least that unit.
	cfg := Config{MergeGap: time.Second}

	raw := []model.Violation{
		interval(model.KindOverspeed, "A-B", 10, 12, 5),
		interval(model.KindOverspeed, "A-B", 13, 15, 8),
	}

	out, _ := Aggregate(raw, cfg)
	if len(out) != 1 {
		t.Fatalf("got %d intervals, want 1 merged", len(out))
	}
	v := out[0]
	if !v.Start.Equal(base.Add(10*time.Second)) || !v.End.Equal(base.Add(15*time.Second)) {
		t.Errorf("merged span = %v..%v, want 10s..15s", v.Start, v.End)
	}
	if v.PeakExcess != 8 {
		t.Errorf("merged peak = %.0f, want 8", v.PeakExcess)
	}
}

func TestAggregate_ZeroGapDisablesMerging(t *testing.T) {
	raw := []model.Violation{
		interval(model.KindOverspeed, "A-B", 0, 10, 5),
		interval(model.KindOverspeed, "A-B", 11, 20, 5),
	}

	out, _ := Aggregate(raw, Config{})
	if len(out) != 2 {
		t.Errorf("zero MergeGap should disable merging, got %d", len(out))
	}
}

func TestAggregate_DifferentKindOrSectionNeverMerge(t *testing.T) {
	cfg := Config{MergeGap: time.Hour}

	raw := []model.Violation{
		interval(model.KindOverspeed, "A-B", 0, 10, 5),
		interval(model.KindSignalAspect, "A-B", 12, 20, 5),
		interval(model.KindOverspeed, "B-C", 22, 30, 5),
	}

	out, _ := Aggregate(raw, cfg)
	if len(out) != 3 {
		t.Errorf("cross-kind or cross-section merge happened, got %d", len(out))
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	cfg := Config{MergeGap: 30 * time.Second, MajorExcess: 10, CriticalExcess: 20}

	raw := []model.Violation{
		interval(model.KindOverspeed, "A-B", 0, 20, 25),
		interval(model.KindOverspeed, "A-B", 40, 60, 12),
		interval(model.KindSignalAspect, "B-C", 10, 30, 8),
	}

	once, _ := Aggregate(raw, cfg)
	twice, _ := Aggregate(once, cfg)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("aggregation is not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestAggregate_OrderedByStartThenKind(t *testing.T) {
	raw := []model.Violation{
		interval(model.KindSignalAspect, "B-C", 50, 60, 5),
		interval(model.KindOverspeed, "A-B", 0, 10, 5),
		interval(model.KindSignalAspect, "A-B", 0, 10, 5),
	}

	out, _ := Aggregate(raw, Config{})
	if len(out) != 3 {
		t.Fatalf("got %d", len(out))
	}
	if out[0].Kind != model.KindOverspeed || out[1].Kind != model.KindSignalAspect {
		t.Errorf("equal starts should order by kind: %v then %v", out[0].Kind, out[1].Kind)
	}
	if !out[2].Start.After(out[1].Start) {
		t.Error("output not ordered by start")
	}
}

func TestClassify(t *testing.T) {
	cfg := Config{MajorExcess: 10, CriticalExcess: 20}

	tests := []struct {
		peak     float64
		expected model.Severity
	}{
		{0, model.SeverityMinor},
		{9.9, model.SeverityMinor},
		{10, model.SeverityMajor},
		{19.9, model.SeverityMajor},
		{20, model.SeverityCritical},
		{50, model.SeverityCritical},
	}

	for _, tc := range tests {
		if got := classify(tc.peak, cfg); got != tc.expected {
			t.Errorf("classify(%.1f) = %v, want %v", tc.peak, got, tc.expected)
		}
	}

	// Unset thresholds leave everything MINOR.
	if got := classify(100, Config{}); got != model.SeverityMinor {
		t.Errorf("unset thresholds: got %v", got)
	}
}

func TestAggregate_SummaryCounts(t *testing.T) {
	cfg := Config{MajorExcess: 10, CriticalExcess: 20}

	raw := []model.Violation{
		interval(model.KindOverspeed, "A-B", 0, 10, 25),
		interval(model.KindOverspeed, "B-C", 20, 30, 5),
		interval(model.KindSignalAspect, "A-B", 40, 50, 12),
	}

	_, summary := Aggregate(raw, cfg)
	if summary.Total != 3 {
		t.Errorf("total = %d", summary.Total)
	}
	if summary.ByKind[model.KindOverspeed] != 2 || summary.ByKind[model.KindSignalAspect] != 1 {
		t.Errorf("by kind = %v", summary.ByKind)
	}
	if summary.BySeverity[model.SeverityCritical] != 1 ||
		summary.BySeverity[model.SeverityMajor] != 1 ||
		summary.BySeverity[model.SeverityMinor] != 1 {
		t.Errorf("by severity = %v", summary.BySeverity)
	}
}
