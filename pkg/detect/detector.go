// Package detect scans annotated telemetry for rule violations.
//
// The detector walks the sample sequence exactly once in timestamp
// order, keeping one open-interval tracker per violation kind. Kinds
// trigger independently; intervals per kind are maximal and
// non-overlapping by construction.
package detect

import (
	"github.com/railtrace/railtrace/internal/model"
)

// Config holds the detector's tunables.
type Config struct {
	// StopSpeedTolerance is the speed (km/h) up to which movement under
	// a STOP aspect is not treated as a violation.
	StopSpeedTolerance float64
}

// tracker is the open-interval state for one violation kind.
// Instantiated fresh per run; never shared.
type tracker struct {
	kind model.ViolationKind

	open      bool
	sectionID string
	start     model.AnnotatedSample
	last      model.AnnotatedSample
	peak      float64
	count     int
}

func (t *tracker) openAt(s model.AnnotatedSample, excess float64) {
	t.open = true
	t.sectionID = s.SectionID
	t.start = s
	t.last = s
	t.peak = excess
	t.count = 1
}

func (t *tracker) extend(s model.AnnotatedSample, excess float64) {
	t.last = s
	t.count++
	if excess > t.peak {
		t.peak = excess
	}
}

// close finalises the interval at the last triggering sample, not the
// clearing sample, so the interval is exactly the span of the condition.
func (t *tracker) close() model.Violation {
	v := model.Violation{
		Kind:        t.kind,
		SectionID:   t.sectionID,
		Start:       t.start.Timestamp,
		End:         t.last.Timestamp,
		PeakExcess:  t.peak,
		FirstSample: t.start.Index,
		LastSample:  t.last.Index,
		SampleCount: t.count,
	}
	t.open = false
	return v
}

// Detect emits raw violation intervals from the annotated sequence.
// Purely functional over its input: no state survives the call.
func Detect(annotated []model.AnnotatedSample, cfg Config) []model.Violation {
	trackers := map[model.ViolationKind]*tracker{
		model.KindOverspeed:    {kind: model.KindOverspeed},
		model.KindSignalAspect: {kind: model.KindSignalAspect},
	}

	var out []model.Violation
	for _, s := range annotated {
		for _, kind := range model.ViolationKinds() {
			tr := trackers[kind]
			excess, triggered := trigger(kind, s, cfg)

			switch {
			case triggered && !tr.open:
				tr.openAt(s, excess)
			case triggered && tr.open && s.SectionID != tr.sectionID:
				// Condition persists across a section boundary: the
				// interval belongs to one section, so split it.
				out = append(out, tr.close())
				tr.openAt(s, excess)
			case triggered && tr.open:
				tr.extend(s, excess)
			case !triggered && tr.open:
				out = append(out, tr.close())
			}
		}
	}

	// A run ending mid-condition closes at the final triggering sample.
	for _, kind := range model.ViolationKinds() {
		if tr := trackers[kind]; tr.open {
			out = append(out, tr.close())
		}
	}
	return out
}

// trigger evaluates one kind's condition for one sample.
func trigger(kind model.ViolationKind, s model.AnnotatedSample, cfg Config) (excess float64, ok bool) {
	switch kind {
	case model.KindOverspeed:
		// Samples without a resolved ceiling were already flagged via
		// diagnostics and are excluded from this check.
		if !s.HasCeiling {
			return 0, false
		}
		if s.Speed > s.Ceiling {
			return s.Speed - s.Ceiling, true
		}
	case model.KindSignalAspect:
		if s.Aspect.Restrictive() && s.Speed > cfg.StopSpeedTolerance {
			return s.Speed - cfg.StopSpeedTolerance, true
		}
	}
	return 0, false
}
