package rules

import (
	"errors"
	"testing"

	"github.com/railtrace/railtrace/internal/model"
)

func TestBuiltin_AspectCeilings(t *testing.T) {
	table := Builtin()

	tests := []struct {
		tt      model.TrainType
		aspect  model.Aspect
		ceiling float64
	}{
		{model.TrainTypeVandeBharat, model.AspectSingleYellow, 90},
		{model.TrainTypeVandeBharat, model.AspectDoubleYellow, 110},
		{model.TrainTypeCoaching, model.AspectSingleYellow, 60},
		{model.TrainTypeCoaching, model.AspectDoubleYellow, 100},
		{model.TrainTypeFreight, model.AspectSingleYellow, 40},
		{model.TrainTypeFreight, model.AspectDoubleYellow, 55},
	}

	for _, tc := range tests {
		r, err := table.Lookup(tc.tt, tc.aspect, "")
		if err != nil {
			t.Errorf("Lookup(%v, %v): %v", tc.tt, tc.aspect, err)
			continue
		}
		if r.Ceiling != tc.ceiling {
			t.Errorf("Lookup(%v, %v).Ceiling = %.0f, want %.0f", tc.tt, tc.aspect, r.Ceiling, tc.ceiling)
		}
	}
}

func TestLookup_Precedence(t *testing.T) {
	table := Builtin()
	table.Add(Rule{TrainType: model.TrainTypeCoaching, SectionAttr: "TSR", Ceiling: 30})

	// Attribute rule beats the aspect rule.
	r, err := table.Lookup(model.TrainTypeCoaching, model.AspectSingleYellow, "TSR")
	if err != nil {
		t.Fatal(err)
	}
	if r.Ceiling != 30 {
		t.Errorf("attribute rule should win: got ceiling %.0f, want 30", r.Ceiling)
	}

	// Without the attribute, the aspect rule applies.
	r, err = table.Lookup(model.TrainTypeCoaching, model.AspectSingleYellow, "")
	if err != nil {
		t.Fatal(err)
	}
	if r.Ceiling != 60 {
		t.Errorf("aspect rule: got ceiling %.0f, want 60", r.Ceiling)
	}
}

func TestLookup_UnknownAspectSkipsAspectLevel(t *testing.T) {
	table := Builtin().WithDefault(model.TrainTypeFreight, 75)

	// UNKNOWN aspect: no aspect rule applies, the default still does.
	r, err := table.Lookup(model.TrainTypeFreight, model.AspectUnknown, "")
	if err != nil {
		t.Fatal(err)
	}
	if r.Ceiling != 75 {
		t.Errorf("default rule under UNKNOWN aspect: ceiling %.0f, want 75", r.Ceiling)
	}
}

func TestLookup_NoMatch(t *testing.T) {
	table := Builtin()

	// CLEAR has no aspect rule and no default is installed.
	_, err := table.Lookup(model.TrainTypeFreight, model.AspectClear, "")
	if !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("want ErrRuleNotFound, got %v", err)
	}
}

func TestLookup_UnknownTrainType(t *testing.T) {
	_, err := Builtin().Lookup(model.TrainTypeUnknown, model.AspectClear, "")
	if !errors.Is(err, ErrUnknownTrainType) {
		t.Errorf("want ErrUnknownTrainType, got %v", err)
	}
}

func TestWithDefault_DoesNotMutateBase(t *testing.T) {
	base := Builtin()
	view := base.WithDefault(model.TrainTypeVandeBharat, 130)

	if _, err := view.Lookup(model.TrainTypeVandeBharat, model.AspectClear, ""); err != nil {
		t.Errorf("view should resolve the default: %v", err)
	}
	if _, err := base.Lookup(model.TrainTypeVandeBharat, model.AspectClear, ""); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("base table must stay untouched, got %v", err)
	}

	// A zero ceiling installs nothing.
	noop := base.WithDefault(model.TrainTypeVandeBharat, 0)
	if _, err := noop.Lookup(model.TrainTypeVandeBharat, model.AspectClear, ""); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("zero ceiling should not install a default, got %v", err)
	}
}

func TestFromYAML(t *testing.T) {
	data := []byte(`
rules:
  - train_type: FREIGHT
    aspect: CLEAR
    ceiling: 75
  - train_type: COACHING
    section_attr: TSR
    ceiling: 30
    floor: 10
`)
	table, err := FromYAML(data)
	if err != nil {
		t.Fatal(err)
	}

	r, err := table.Lookup(model.TrainTypeFreight, model.AspectClear, "")
	if err != nil || r.Ceiling != 75 {
		t.Errorf("yaml aspect rule: %+v, %v", r, err)
	}

	r, err = table.Lookup(model.TrainTypeCoaching, model.AspectClear, "TSR")
	if err != nil || r.Ceiling != 30 || !r.HasFloor || r.Floor != 10 {
		t.Errorf("yaml attr rule: %+v, %v", r, err)
	}

	// Builtin rules survive layering.
	r, err = table.Lookup(model.TrainTypeFreight, model.AspectSingleYellow, "")
	if err != nil || r.Ceiling != 40 {
		t.Errorf("builtin rule lost after layering: %+v, %v", r, err)
	}
}

func TestFromYAML_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad train type", "rules:\n  - train_type: EMU\n    ceiling: 50\n"},
		{"bad aspect", "rules:\n  - train_type: FREIGHT\n    aspect: PURPLE\n    ceiling: 50\n"},
		{"zero ceiling", "rules:\n  - train_type: FREIGHT\n    aspect: CLEAR\n    ceiling: 0\n"},
	}
	for _, tc := range tests {
		if _, err := FromYAML([]byte(tc.data)); err == nil {
			t.Errorf("%s: want error, got nil", tc.name)
		}
	}
}
