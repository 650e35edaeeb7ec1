// Package signalstate reconstructs the time-varying signal aspect per
// section from ordered signal-event sequences.
package signalstate

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/railtrace/railtrace/internal/model"
)

var (
	// ErrNoEvents means a section carries no signal events at all;
	// aspect lookups against it would always guess, so construction
	// fails (structurally invalid input).
	ErrNoEvents = errors.New("section has no signal events")
	// ErrEventOrder means a section's events are not ordered by timestamp.
	ErrEventOrder = errors.New("signal events out of timestamp order")
	// ErrDuplicateSection means two sections share an ID.
	ErrDuplicateSection = errors.New("duplicate section id")
)

// Resolver answers point-in-time aspect queries. It is a pure lookup
// over read-only data and safe to share across concurrent runs.
type Resolver struct {
	sections map[string]*model.Section
}

// NewResolver validates the section set and builds the lookup index.
// Event sequences must be non-decreasing in timestamp per section.
func NewResolver(sections []model.Section) (*Resolver, error) {
	idx := make(map[string]*model.Section, len(sections))
	for i := range sections {
		sec := &sections[i]
		if _, dup := idx[sec.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSection, sec.ID)
		}
		if len(sec.Events) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoEvents, sec.ID)
		}
		for j := 1; j < len(sec.Events); j++ {
			if sec.Events[j].Timestamp.Before(sec.Events[j-1].Timestamp) {
				return nil, fmt.Errorf("%w: section %s event %d", ErrEventOrder, sec.ID, j)
			}
		}
		idx[sec.ID] = sec
	}
	return &Resolver{sections: idx}, nil
}

// AspectAt returns the aspect in effect for the section at time t: the
// aspect of the latest event with timestamp <= t. Returns AspectUnknown
// when t precedes the section's first event or the section is unknown;
// the caller decides what UNKNOWN means for its check.
func (r *Resolver) AspectAt(sectionID string, t time.Time) model.Aspect {
	sec, ok := r.sections[sectionID]
	if !ok {
		return model.AspectUnknown
	}

	events := sec.Events
	// First event strictly after t; the one before it governs.
	i := sort.Search(len(events), func(i int) bool {
		return events[i].Timestamp.After(t)
	})
	if i == 0 {
		return model.AspectUnknown
	}
	return events[i-1].Aspect
}

// Section returns the section definition for an ID.
func (r *Resolver) Section(id string) (*model.Section, bool) {
	sec, ok := r.sections[id]
	return sec, ok
}

// SectionCount returns the number of indexed sections.
func (r *Resolver) SectionCount() int {
	return len(r.sections)
}
