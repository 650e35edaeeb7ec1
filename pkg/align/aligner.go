// Package align maps raw telemetry samples onto track sections.
package align

import (
	"sort"

	"github.com/railtrace/railtrace/internal/model"
	"github.com/railtrace/railtrace/pkg/diag"
)

// Aligned is a telemetry sample resolved to a section.
type Aligned struct {
	Sample    model.TelemetrySample
	Index     int
	SectionID string
}

// Aligner resolves sample positions against an ordered section list.
// Sections are read-only; one Aligner may serve concurrent runs.
type Aligner struct {
	sections []model.Section
}

// New builds an aligner over the given sections, ordered by start
// chainage. The input slice is not mutated.
func New(sections []model.Section) *Aligner {
	ordered := make([]model.Section, len(sections))
	copy(ordered, sections)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].StartChainage < ordered[j].StartChainage
	})
	return &Aligner{sections: ordered}
}

// Align resolves every sample of the run to a section, preserving
// timestamp order. Resolution is monotonic along the route: a position
// regression that is not flagged as back-movement is treated as
// telemetry noise and kept in the current section. Samples that map to
// no section get an UNRESOLVED_SECTION diagnostic and are excluded from
// the returned sequence, never silently dropped.
func (a *Aligner) Align(run *model.Run, c *diag.Collector) []Aligned {
	out := make([]Aligned, 0, len(run.Samples))
	if len(a.sections) == 0 {
		for i, s := range run.Samples {
			c.Recordf(diag.CodeUnresolvedSection, i, "", s.Timestamp,
				"no sections loaded (chainage %.0fm)", s.Chainage)
		}
		return out
	}

	cursor := 0
	for i, s := range run.Samples {
		idx, ok := a.resolve(s, &cursor)
		if !ok {
			c.Recordf(diag.CodeUnresolvedSection, i, "", s.Timestamp,
				"chainage %.0fm outside all known sections", s.Chainage)
			continue
		}
		out = append(out, Aligned{
			Sample:    s,
			Index:     i,
			SectionID: a.sections[idx].ID,
		})
	}
	return out
}

// resolve finds the section index for one sample, advancing the cursor.
func (a *Aligner) resolve(s model.TelemetrySample, cursor *int) (int, bool) {
	cur := &a.sections[*cursor]

	if s.BackMovement {
		// Explicit back-movement: re-resolve against the full route.
		idx := a.search(s.Chainage)
		if idx < 0 {
			return 0, false
		}
		*cursor = idx
		return idx, true
	}

	if cur.Contains(s.Chainage) {
		return *cursor, true
	}

	if s.Chainage < cur.StartChainage {
		// Unflagged regression: noise. Keep the current section unless
		// the sample precedes the whole route.
		if *cursor == 0 && s.Chainage < cur.StartChainage {
			if idx := a.search(s.Chainage); idx >= 0 {
				return idx, true
			}
			return 0, false
		}
		return *cursor, true
	}

	// Advance forward along the route.
	for i := *cursor + 1; i < len(a.sections); i++ {
		sec := &a.sections[i]
		if sec.Contains(s.Chainage) {
			*cursor = i
			return i, true
		}
		if s.Chainage < sec.StartChainage {
			// Fell into a gap between sections.
			return 0, false
		}
	}
	return 0, false
}

// search finds the section containing the chainage, or -1.
func (a *Aligner) search(chainage float64) int {
	i := sort.Search(len(a.sections), func(i int) bool {
		return a.sections[i].EndChainage > chainage
	})
	if i < len(a.sections) && a.sections[i].Contains(chainage) {
		return i
	}
	return -1
}

// Sections returns the route-ordered section list.
func (a *Aligner) Sections() []model.Section {
	return a.sections
}
