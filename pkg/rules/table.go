// Package rules holds the train-type-specific permissible-speed policies.
//
// Lookup precedence: a rule keyed by (train type, section attribute)
// overrides a rule keyed by (train type, aspect), which overrides the
// (train type, DEFAULT) rule.
package rules

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/railtrace/railtrace/internal/model"
)

var (
	// ErrRuleNotFound means no rule matched at any precedence level
	// for a known train type.
	ErrRuleNotFound = errors.New("no speed rule matches")
	// ErrUnknownTrainType means the train type is outside the closed
	// enumeration.
	ErrUnknownTrainType = errors.New("unknown train type")
)

// Rule is one permissible-speed policy entry. Ceiling and Floor are km/h.
type Rule struct {
	TrainType   model.TrainType
	Aspect      model.Aspect
	SectionAttr string
	Ceiling     float64
	Floor       float64
	HasFloor    bool
}

type aspectKey struct {
	tt     model.TrainType
	aspect model.Aspect
}

type attrKey struct {
	tt   model.TrainType
	attr string
}

// Table is the static rule reference data. Read-only after construction,
// safe to share across concurrent runs.
type Table struct {
	byAttr    map[attrKey]Rule
	byAspect  map[aspectKey]Rule
	byDefault map[model.TrainType]Rule
}

// NewTable returns an empty rule table.
func NewTable() *Table {
	return &Table{
		byAttr:    make(map[attrKey]Rule),
		byAspect:  make(map[aspectKey]Rule),
		byDefault: make(map[model.TrainType]Rule),
	}
}

// Builtin returns the table of locked aspect rules from the railway
// operating rules. Any change here represents a change in operating
// rules, not a tuning knob.
func Builtin() *Table {
	t := NewTable()
	for _, r := range []Rule{
		{TrainType: model.TrainTypeVandeBharat, Aspect: model.AspectSingleYellow, Ceiling: 90},
		{TrainType: model.TrainTypeVandeBharat, Aspect: model.AspectDoubleYellow, Ceiling: 110},
		{TrainType: model.TrainTypeCoaching, Aspect: model.AspectSingleYellow, Ceiling: 60},
		{TrainType: model.TrainTypeCoaching, Aspect: model.AspectDoubleYellow, Ceiling: 100},
		{TrainType: model.TrainTypeFreight, Aspect: model.AspectSingleYellow, Ceiling: 40},
		{TrainType: model.TrainTypeFreight, Aspect: model.AspectDoubleYellow, Ceiling: 55},
	} {
		t.mustAdd(r)
	}
	return t
}

// Add inserts a rule at the precedence level implied by its keys.
func (t *Table) Add(r Rule) error {
	if r.TrainType == model.TrainTypeUnknown {
		return fmt.Errorf("%w: rule has no train type", ErrUnknownTrainType)
	}
	switch {
	case r.SectionAttr != "":
		t.byAttr[attrKey{r.TrainType, r.SectionAttr}] = r
	case r.Aspect != model.AspectUnknown:
		t.byAspect[aspectKey{r.TrainType, r.Aspect}] = r
	default:
		t.byDefault[r.TrainType] = r
	}
	return nil
}

func (t *Table) mustAdd(r Rule) {
	if err := t.Add(r); err != nil {
		panic(err)
	}
}

// WithDefault returns a shallow per-run view of the table with the
// (train type, DEFAULT) rule set to the given ceiling. The attribute
// and aspect maps are shared; the receiver is not mutated, so the base
// table stays safe for concurrent runs.
func (t *Table) WithDefault(tt model.TrainType, ceiling float64) *Table {
	view := &Table{
		byAttr:    t.byAttr,
		byAspect:  t.byAspect,
		byDefault: make(map[model.TrainType]Rule, len(t.byDefault)+1),
	}
	for k, v := range t.byDefault {
		view.byDefault[k] = v
	}
	if tt != model.TrainTypeUnknown && ceiling > 0 {
		view.byDefault[tt] = Rule{TrainType: tt, Ceiling: ceiling}
	}
	return view
}

// Lookup returns the applicable rule for the given train type, resolved
// signal aspect and section attribute. An UNKNOWN aspect skips the
// aspect precedence level: no signal-based rule applies, but attribute
// and default rules still do.
func (t *Table) Lookup(tt model.TrainType, aspect model.Aspect, sectionAttr string) (Rule, error) {
	if tt == model.TrainTypeUnknown {
		return Rule{}, ErrUnknownTrainType
	}

	if sectionAttr != "" {
		if r, ok := t.byAttr[attrKey{tt, sectionAttr}]; ok {
			return r, nil
		}
	}
	if aspect != model.AspectUnknown {
		if r, ok := t.byAspect[aspectKey{tt, aspect}]; ok {
			return r, nil
		}
	}
	if r, ok := t.byDefault[tt]; ok {
		return r, nil
	}
	return Rule{}, fmt.Errorf("%w: train type %s, aspect %s, attr %q",
		ErrRuleNotFound, tt, aspect, sectionAttr)
}

// ruleFile is the YAML representation of a rule set.
type ruleFile struct {
	Rules []struct {
		TrainType   string  `yaml:"train_type"`
		Aspect      string  `yaml:"aspect"`
		SectionAttr string  `yaml:"section_attr"`
		Ceiling     float64 `yaml:"ceiling"`
		Floor       float64 `yaml:"floor"`
	} `yaml:"rules"`
}

// FromYAML parses rule entries and layers them over the builtin table.
func FromYAML(data []byte) (*Table, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rule file: %w", err)
	}

	t := Builtin()
	for i, e := range rf.Rules {
		tt, ok := model.ParseTrainType(e.TrainType)
		if !ok {
			return nil, fmt.Errorf("rule %d: %w: %q", i, ErrUnknownTrainType, e.TrainType)
		}
		aspect := model.AspectUnknown
		if e.Aspect != "" {
			aspect, ok = model.ParseAspect(e.Aspect)
			if !ok {
				return nil, fmt.Errorf("rule %d: unknown aspect %q", i, e.Aspect)
			}
		}
		if e.Ceiling <= 0 {
			return nil, fmt.Errorf("rule %d: ceiling must be positive", i)
		}
		r := Rule{
			TrainType:   tt,
			Aspect:      aspect,
			SectionAttr: e.SectionAttr,
			Ceiling:     e.Ceiling,
		}
		if e.Floor > 0 {
			r.Floor = e.Floor
			r.HasFloor = true
		}
		if err := t.Add(r); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return t, nil
}

// LoadFile reads a YAML rule file and layers it over the builtin table.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Rules returns all entries in the table, attribute rules first.
// Used for display only; order within a precedence level is unspecified.
func (t *Table) Rules() []Rule {
	out := make([]Rule, 0, len(t.byAttr)+len(t.byAspect)+len(t.byDefault))
	for _, r := range t.byAttr {
		out = append(out, r)
	}
	for _, r := range t.byAspect {
		out = append(out, r)
	}
	for _, r := range t.byDefault {
		out = append(out, r)
	}
	return out
}
