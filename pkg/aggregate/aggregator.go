// Package aggregate merges raw violation intervals into report-ready
// records and classifies their severity.
package aggregate

import (
	"sort"
	"time"

	"github.com/railtrace/railtrace/internal/model"
)

// Config holds the aggregator's tunables. The merge gap and severity
// thresholds are deliberately configuration, not constants: their
// operational values come from the reporting authority.
type Config struct {
	// MergeGap merges same-kind, same-section intervals separated by a
	// gap no longer than this window. Zero disables merging.
	MergeGap time.Duration

	// MajorExcess and CriticalExcess are peak-excess thresholds (km/h)
	// for severity classification. Below MajorExcess is MINOR.
	MajorExcess    float64
	CriticalExcess float64
}

// Aggregate merges and classifies raw intervals, returning the final
// violation set ordered by start timestamp plus summary counts.
// Running it twice over its own output yields the identical set.
func Aggregate(raw []model.Violation, cfg Config) ([]model.Violation, model.Summary) {
	merged := merge(raw, cfg.MergeGap)

	summary := model.NewSummary()
	for i := range merged {
		merged[i].Severity = classify(merged[i].PeakExcess, cfg)
		summary.Total++
		summary.ByKind[merged[i].Kind]++
		summary.BySeverity[merged[i].Severity]++
	}
	return merged, summary
}

type groupKey struct {
	kind      model.ViolationKind
	sectionID string
}

// merge coalesces intervals of the same kind and section whose gap is
// within the tolerance window. Peak severity is the max; the span
// extends to cover both; sample references widen accordingly.
func merge(raw []model.Violation, gap time.Duration) []model.Violation {
	if len(raw) == 0 {
		return nil
	}

	groups := make(map[groupKey][]model.Violation)
	for _, v := range raw {
		k := groupKey{v.Kind, v.SectionID}
		groups[k] = append(groups[k], v)
	}

	out := make([]model.Violation, 0, len(raw))
	for _, vs := range groups {
		sort.Slice(vs, func(i, j int) bool { return vs[i].Start.Before(vs[j].Start) })

		cur := vs[0]
		for _, next := range vs[1:] {
			if gap > 0 && next.Start.Sub(cur.End) <= gap {
				if next.End.After(cur.End) {
					cur.End = next.End
				}
				if next.PeakExcess > cur.PeakExcess {
					cur.PeakExcess = next.PeakExcess
				}
				if next.LastSample > cur.LastSample {
					cur.LastSample = next.LastSample
				}
				cur.SampleCount += next.SampleCount
				continue
			}
			out = append(out, cur)
			cur = next
		}
		out = append(out, cur)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func classify(peakExcess float64, cfg Config) model.Severity {
	switch {
	case cfg.CriticalExcess > 0 && peakExcess >= cfg.CriticalExcess:
		return model.SeverityCritical
	case cfg.MajorExcess > 0 && peakExcess >= cfg.MajorExcess:
		return model.SeverityMajor
	default:
		return model.SeverityMinor
	}
}
