// Package model defines the core data structures for RailTrace.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Aspect is the indicated state of a block signal.
type Aspect int

const (
	// AspectUnknown means no signal event covers the queried time.
	AspectUnknown Aspect = iota
	// AspectClear permits full permissible speed.
	AspectClear
	// AspectDoubleYellow warns of a caution two blocks ahead.
	AspectDoubleYellow
	// AspectSingleYellow warns of a stop in the next block.
	AspectSingleYellow
	// AspectStop forbids movement past the signal.
	AspectStop
)

func (a Aspect) String() string {
	switch a {
	case AspectClear:
		return "CLEAR"
	case AspectDoubleYellow:
		return "DOUBLE_YELLOW"
	case AspectSingleYellow:
		return "SINGLE_YELLOW"
	case AspectStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// ParseAspect parses a string into an Aspect.
// Returns false for strings outside the closed enumeration.
func ParseAspect(s string) (Aspect, bool) {
	switch s {
	case "CLEAR", "GREEN":
		return AspectClear, true
	case "DOUBLE_YELLOW", "ATTENTION":
		return AspectDoubleYellow, true
	case "SINGLE_YELLOW", "CAUTION":
		return AspectSingleYellow, true
	case "STOP", "RED", "DANGER":
		return AspectStop, true
	default:
		return AspectUnknown, false
	}
}

// Restrictive reports whether the aspect forbids movement.
func (a Aspect) Restrictive() bool {
	return a == AspectStop
}

// TrainType is the closed classification of a consist.
// It determines which speed policy applies.
type TrainType int

const (
	TrainTypeUnknown TrainType = iota
	TrainTypeVandeBharat
	TrainTypeCoaching
	TrainTypeFreight
)

func (t TrainType) String() string {
	switch t {
	case TrainTypeVandeBharat:
		return "VANDE BHARAT"
	case TrainTypeCoaching:
		return "COACHING"
	case TrainTypeFreight:
		return "FREIGHT"
	default:
		return "UNKNOWN"
	}
}

// ParseTrainType parses a string into a TrainType.
func ParseTrainType(s string) (TrainType, bool) {
	switch s {
	case "VANDE BHARAT", "VANDE_BHARAT":
		return TrainTypeVandeBharat, true
	case "COACHING":
		return TrainTypeCoaching, true
	case "FREIGHT":
		return TrainTypeFreight, true
	default:
		return TrainTypeUnknown, false
	}
}

// TrainTypes returns all valid train types.
func TrainTypes() []TrainType {
	return []TrainType{TrainTypeVandeBharat, TrainTypeCoaching, TrainTypeFreight}
}

// Direction of traversal over a section.
type Direction int

const (
	DirectionDown Direction = iota
	DirectionUp
)

func (d Direction) String() string {
	if d == DirectionUp {
		return "UP"
	}
	return "DOWN"
}

// ParseDirection parses "UP" or "DOWN".
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "UP":
		return DirectionUp, true
	case "DOWN":
		return DirectionDown, true
	default:
		return DirectionDown, false
	}
}

// TelemetrySample is a single RTIS record. Immutable once ingested.
// Speed is in km/h, Chainage in metres from the route origin.
type TelemetrySample struct {
	Timestamp time.Time
	Latitude  float64
	Longitude float64
	Speed     float64
	Chainage  float64
	DeviceID  string

	// BackMovement marks a sample where the recorder reported negative
	// travel, i.e. the locomotive genuinely moved backwards rather than
	// the position reference merely jittering.
	BackMovement bool
}

// Run is the full ordered telemetry sequence for one traversal,
// plus the metadata resolved externally (crew roster, user input).
type Run struct {
	ID          uuid.UUID
	TrainNumber string
	LocoNumber  string
	TrainType   TrainType
	Direction   Direction

	// MaxPermissibleSpeed is the absolute ceiling for this run in km/h.
	// It installs the (train type, DEFAULT) speed rule.
	MaxPermissibleSpeed float64

	Samples []TelemetrySample
}

// Span returns the timespan covered by the run's telemetry.
func (r *Run) Span() (start, end time.Time, ok bool) {
	if len(r.Samples) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return r.Samples[0].Timestamp, r.Samples[len(r.Samples)-1].Timestamp, true
}

// SignalEvent is one aspect change for a section. Events per section
// form a step function of aspect over time.
type SignalEvent struct {
	Timestamp time.Time
	SectionID string
	Aspect    Aspect
}

// Section is a bounded segment of track with its own signal history.
// Chainage bounds are half-open: [StartChainage, EndChainage).
type Section struct {
	ID            string
	Name          string
	StartChainage float64
	EndChainage   float64

	// Attribute is an optional section attribute (e.g. a permanent
	// speed restriction tag) consulted at the highest rule precedence.
	Attribute string

	// Events are ordered by timestamp, non-decreasing.
	Events []SignalEvent
}

// Contains reports whether the chainage falls within the section bounds.
func (s *Section) Contains(chainage float64) bool {
	return chainage >= s.StartChainage && chainage < s.EndChainage
}

// AnnotatedSample is a telemetry sample resolved against section,
// signal state and speed rules. Derived, never persisted on its own.
type AnnotatedSample struct {
	TelemetrySample

	// Index is the sample's position within its run.
	Index     int
	SectionID string
	Aspect    Aspect

	// Ceiling is the applicable speed ceiling in km/h.
	// HasCeiling is false when no rule could be resolved; such samples
	// are excluded from overspeed detection.
	Ceiling    float64
	HasCeiling bool
}

// ViolationKind enumerates detectable rule-breaking conditions.
type ViolationKind int

const (
	KindOverspeed ViolationKind = iota
	KindSignalAspect
)

func (k ViolationKind) String() string {
	switch k {
	case KindOverspeed:
		return "OVERSPEED"
	case KindSignalAspect:
		return "SIGNAL_ASPECT"
	default:
		return "UNKNOWN"
	}
}

// ViolationKinds returns all violation kinds in detection order.
func ViolationKinds() []ViolationKind {
	return []ViolationKind{KindOverspeed, KindSignalAspect}
}

// Severity classifies a violation by its peak excess.
type Severity int

const (
	SeverityMinor Severity = iota
	SeverityMajor
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityMajor:
		return "MAJOR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "MINOR"
	}
}

// Violation is a maximal contiguous interval during which one
// rule-breaking condition held. Immutable once emitted.
type Violation struct {
	Kind      ViolationKind
	SectionID string
	Start     time.Time
	End       time.Time

	// PeakExcess is the maximum speed excess (km/h) observed inside
	// the interval: speed minus ceiling for OVERSPEED, speed minus the
	// stop tolerance for SIGNAL_ASPECT.
	PeakExcess float64

	Severity Severity

	// FirstSample and LastSample are run sample indices bounding the
	// contributing samples; SampleCount is how many samples triggered.
	FirstSample int
	LastSample  int
	SampleCount int
}

// Duration returns the violation interval length.
func (v Violation) Duration() time.Duration {
	return v.End.Sub(v.Start)
}

// Summary holds per-run headline counts for reporting.
type Summary struct {
	Total      int
	ByKind     map[ViolationKind]int
	BySeverity map[Severity]int
}

// NewSummary returns an empty summary with initialised maps.
func NewSummary() Summary {
	return Summary{
		ByKind:     make(map[ViolationKind]int),
		BySeverity: make(map[Severity]int),
	}
}
