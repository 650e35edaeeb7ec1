package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/railtrace/railtrace/internal/model"
	"github.com/railtrace/railtrace/pkg/aggregate"
	"github.com/railtrace/railtrace/pkg/detect"
	"github.com/railtrace/railtrace/pkg/diag"
	"github.com/railtrace/railtrace/pkg/rules"
	"github.com/railtrace/railtrace/pkg/stops"
)

var base = time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)

// testSections is a two-section route. A-B turns SINGLE_YELLOW at
// +5min; B-C turns STOP at +10min.
func testSections() []model.Section {
	return []model.Section{
		{
			ID: "A-B", StartChainage: 0, EndChainage: 5000,
			Events: []model.SignalEvent{
				{Timestamp: base, SectionID: "A-B", Aspect: model.AspectClear},
				{Timestamp: base.Add(5 * time.Minute), SectionID: "A-B", Aspect: model.AspectSingleYellow},
			},
		},
		{
			ID: "B-C", StartChainage: 5000, EndChainage: 10000,
			Events: []model.SignalEvent{
				{Timestamp: base, SectionID: "B-C", Aspect: model.AspectClear},
				{Timestamp: base.Add(10 * time.Minute), SectionID: "B-C", Aspect: model.AspectStop},
			},
		},
	}
}

func testEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	eng, err := New(testSections(), rules.Builtin(), nil, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return eng
}

func testRun(tt model.TrainType, maxSpeed float64, samples ...model.TelemetrySample) *model.Run {
	return &model.Run{
		ID:                  uuid.New(),
		TrainNumber:         "12345",
		TrainType:           tt,
		MaxPermissibleSpeed: maxSpeed,
		Samples:             samples,
	}
}

// at builds a sample at the given minute offset.
func at(min int, chainage, speed float64) model.TelemetrySample {
	return model.TelemetrySample{
		Timestamp: base.Add(time.Duration(min) * time.Minute),
		Chainage:  chainage,
		Speed:     speed,
	}
}

func TestEvaluateRun_EmptyRun(t *testing.T) {
	eng := testEngine(t, Config{})
	_, err := eng.EvaluateRun(context.Background(), testRun(model.TrainTypeCoaching, 110))
	if !errors.Is(err, ErrEmptyRun) {
		t.Errorf("got %v, want ErrEmptyRun", err)
	}
}

func TestEvaluateRun_CleanTraversal(t *testing.T) {
	eng := testEngine(t, Config{Detect: detect.Config{StopSpeedTolerance: 2}})

	run := testRun(model.TrainTypeCoaching, 110,
		at(0, 1000, 80),
		at(2, 3000, 100),
		at(6, 4000, 55), // SINGLE_YELLOW in force, ceiling 60
		at(8, 6000, 90), // B-C still CLEAR, default 110
	)

	res, err := eng.EvaluateRun(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary.Total != 0 {
		t.Errorf("clean run produced %d violations: %+v", res.Summary.Total, res.Violations)
	}
	if len(res.Annotated) != 4 {
		t.Errorf("annotated %d samples", len(res.Annotated))
	}
}

func TestEvaluateRun_OverspeedUnderCaution(t *testing.T) {
	eng := testEngine(t, Config{
		Aggregate: aggregate.Config{MajorExcess: 10, CriticalExcess: 20},
	})

	// COACHING under SINGLE_YELLOW: ceiling 60. 75 km/h is +15 (MAJOR).
	run := testRun(model.TrainTypeCoaching, 110,
		at(6, 1000, 75),
		at(7, 2000, 78),
		at(8, 3000, 50),
	)

	res, err := eng.EvaluateRun(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("got %d violations, want 1", len(res.Violations))
	}
	v := res.Violations[0]
	if v.Kind != model.KindOverspeed || v.SectionID != "A-B" {
		t.Errorf("violation = %+v", v)
	}
	if v.PeakExcess != 18 {
		t.Errorf("peak excess = %.0f, want 18", v.PeakExcess)
	}
	if v.Severity != model.SeverityMajor {
		t.Errorf("severity = %v, want MAJOR", v.Severity)
	}
}

func TestEvaluateRun_MovementPastStop(t *testing.T) {
	eng := testEngine(t, Config{Detect: detect.Config{StopSpeedTolerance: 2}})

	// B-C is at STOP from +10min.
	run := testRun(model.TrainTypeCoaching, 110,
		at(11, 6000, 1), // within tolerance
		at(12, 6200, 25),
		at(13, 6400, 30),
	)

	res, err := eng.EvaluateRun(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}

	var aspectViolations []model.Violation
	for _, v := range res.Violations {
		if v.Kind == model.KindSignalAspect {
			aspectViolations = append(aspectViolations, v)
		}
	}
	if len(aspectViolations) != 1 {
		t.Fatalf("got %d SIGNAL_ASPECT violations, want 1", len(aspectViolations))
	}
	if aspectViolations[0].PeakExcess != 28 {
		t.Errorf("peak = %.0f, want 30 - tolerance", aspectViolations[0].PeakExcess)
	}
}

func TestEvaluateRun_UnknownAspectUsesDefaultCeiling(t *testing.T) {
	// Sample before the section's first event: aspect UNKNOWN, so only
	// the run's max permissible speed applies.
	eng := testEngine(t, Config{})

	run := testRun(model.TrainTypeCoaching, 110,
		model.TelemetrySample{Timestamp: base.Add(-time.Minute), Chainage: 1000, Speed: 120},
	)

	res, err := eng.EvaluateRun(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Kind != model.KindOverspeed {
		t.Fatalf("violations = %+v", res.Violations)
	}
	if res.Violations[0].PeakExcess != 10 {
		t.Errorf("peak = %.0f, want excess over the run default", res.Violations[0].PeakExcess)
	}
	if res.Annotated[0].Aspect != model.AspectUnknown {
		t.Errorf("aspect = %v, want UNKNOWN before first event", res.Annotated[0].Aspect)
	}
}

func TestEvaluateRun_UnknownTrainType(t *testing.T) {
	eng := testEngine(t, Config{Detect: detect.Config{StopSpeedTolerance: 2}})

	// Unknown train type: no ceilings resolve, so no OVERSPEED, but the
	// SIGNAL_ASPECT check is independent of the rule table.
	run := testRun(model.TrainTypeUnknown, 0,
		at(11, 6200, 40), // B-C at STOP
	)

	res, err := eng.EvaluateRun(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}

	var runLevel int
	for _, d := range res.Diagnostics {
		if d.Code == diag.CodeUnknownTrainType {
			runLevel++
			if d.SampleIndex != -1 {
				t.Errorf("UNKNOWN_TRAIN_TYPE should be run-level, got sample %d", d.SampleIndex)
			}
		}
	}
	if runLevel != 1 {
		t.Errorf("UNKNOWN_TRAIN_TYPE recorded %d times, want once", runLevel)
	}

	for _, v := range res.Violations {
		if v.Kind == model.KindOverspeed {
			t.Error("overspeed detected without a resolvable ceiling")
		}
	}
	if len(res.Violations) != 1 || res.Violations[0].Kind != model.KindSignalAspect {
		t.Errorf("violations = %+v, want only SIGNAL_ASPECT", res.Violations)
	}
}

func TestEvaluateRun_RuleNotFoundDiagnostic(t *testing.T) {
	eng := testEngine(t, Config{})

	// No default installed (max speed 0) and CLEAR has no builtin rule:
	// each affected sample yields RULE_NOT_FOUND and skips overspeed.
	run := testRun(model.TrainTypeCoaching, 0,
		at(1, 1000, 150),
	)

	res, err := eng.EvaluateRun(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Violations) != 0 {
		t.Errorf("violations without a ceiling: %+v", res.Violations)
	}

	var found bool
	for _, d := range res.Diagnostics {
		if d.Code == diag.CodeRuleNotFound && d.SampleIndex == 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("missing RULE_NOT_FOUND diagnostic: %+v", res.Diagnostics)
	}
}

func TestEvaluateRun_StopsDetected(t *testing.T) {
	signals := []stops.SignalLocation{
		{Name: "SIG-B", SectionID: "A-B", Latitude: 28.6139, Longitude: 77.2090},
	}
	eng, err := New(testSections(), rules.Builtin(), signals, Config{
		Stops: stops.Config{SpeedThreshold: 0, MinDuration: 10 * time.Second, SignalRadius: 150},
	})
	if err != nil {
		t.Fatal(err)
	}

	halt := model.TelemetrySample{
		Timestamp: base.Add(time.Minute), Chainage: 4900, Speed: 0,
		Latitude: 28.6139, Longitude: 77.2090,
	}
	halt2 := halt
	halt2.Timestamp = halt.Timestamp.Add(30 * time.Second)

	run := testRun(model.TrainTypeCoaching, 110, at(0, 4000, 40), halt, halt2)

	res, err := eng.EvaluateRun(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Stops) != 1 || res.Stops[0].SignalName != "SIG-B" {
		t.Errorf("stops = %+v", res.Stops)
	}
}

func TestEvaluateBatch_IsolatesRunFailures(t *testing.T) {
	eng := testEngine(t, Config{MaxConcurrentRuns: 2})

	runs := []*model.Run{
		testRun(model.TrainTypeCoaching, 110, at(0, 1000, 80)),
		testRun(model.TrainTypeCoaching, 110), // empty
		testRun(model.TrainTypeFreight, 55, at(1, 2000, 40)),
	}

	items, err := eng.EvaluateBatch(context.Background(), runs)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items", len(items))
	}

	if items[0].Err != nil || items[2].Err != nil {
		t.Errorf("healthy runs failed: %v, %v", items[0].Err, items[2].Err)
	}
	if !errors.Is(items[1].Err, ErrEmptyRun) {
		t.Errorf("empty run error = %v, want ErrEmptyRun", items[1].Err)
	}
	if items[0].Result == nil || items[2].Result == nil {
		t.Error("healthy runs missing results")
	}
}

func TestEvaluateBatch_Cancellation(t *testing.T) {
	eng := testEngine(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runs := []*model.Run{
		testRun(model.TrainTypeCoaching, 110, at(0, 1000, 80)),
	}
	_, err := eng.EvaluateBatch(ctx, runs)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestNew_RejectsInvalidSections(t *testing.T) {
	bad := []model.Section{{ID: "A-B", StartChainage: 0, EndChainage: 1000}} // no events
	if _, err := New(bad, rules.Builtin(), nil, Config{}); err == nil {
		t.Error("expected construction to fail on invalid section data")
	}
}
