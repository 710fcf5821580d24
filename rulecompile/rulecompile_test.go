package rulecompile

import (
	"testing"

	"github.com/eventruler/eventruler/pattern"
)

func TestCompileFlatRule(t *testing.T) {
	raw := []byte(`{"detail":{"state":["running","stopped"]}}`)
	cr, err := Compile("r1", raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(cr.SubRules) != 1 {
		t.Fatalf("expected 1 sub-rule, got %d", len(cr.SubRules))
	}
	sr := cr.SubRules[0]
	if len(sr.Fields) != 1 || sr.Fields[0].Path != "detail.state" {
		t.Fatalf("unexpected fields: %+v", sr.Fields)
	}
	if len(sr.Fields[0].Patterns) != 2 {
		t.Fatalf("expected 2 alternatives, got %d", len(sr.Fields[0].Patterns))
	}
}

func TestCompileOrExpandsCartesian(t *testing.T) {
	raw := []byte(`{
		"a": ["x"],
		"$or": [
			{"b": ["1"]},
			{"c": ["2"]}
		]
	}`)
	cr, err := Compile("r2", raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(cr.SubRules) != 2 {
		t.Fatalf("expected 2 sub-rules from $or, got %d", len(cr.SubRules))
	}
	for _, sr := range cr.SubRules {
		if len(sr.Fields) != 2 {
			t.Fatalf("expected base field 'a' plus one $or field, got %+v", sr.Fields)
		}
	}
}

func TestCompileNestedOrMultipliesCombinations(t *testing.T) {
	raw := []byte(`{
		"$or": [
			{"a": ["1"]},
			{"a": ["2"]}
		],
		"detail": {
			"$or": [
				{"b": ["x"]},
				{"b": ["y"]}
			]
		}
	}`)
	cr, err := Compile("r3", raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(cr.SubRules) != 4 {
		t.Fatalf("expected 2x2=4 sub-rules, got %d", len(cr.SubRules))
	}
}

func TestCompileExists(t *testing.T) {
	raw := []byte(`{"a": [{"exists": true}]}`)
	cr, err := Compile("r4", raw)
	if err != nil {
		t.Fatal(err)
	}
	p := cr.SubRules[0].Fields[0].Patterns[0]
	if p.Kind != pattern.Exists {
		t.Fatalf("expected Exists pattern, got %v", p.Kind)
	}
}

func TestCompileAbsent(t *testing.T) {
	raw := []byte(`{"a": [{"exists": false}]}`)
	cr, err := Compile("r5", raw)
	if err != nil {
		t.Fatal(err)
	}
	p := cr.SubRules[0].Fields[0].Patterns[0]
	if p.Kind != pattern.Absent {
		t.Fatalf("expected Absent pattern, got %v", p.Kind)
	}
}

func TestCompileNumericRange(t *testing.T) {
	raw := []byte(`{"n": [{"numeric": [">", 0, "<=", 5]}]}`)
	cr, err := Compile("r6", raw)
	if err != nil {
		t.Fatal(err)
	}
	p := cr.SubRules[0].Fields[0].Patterns[0]
	if p.Kind != pattern.NumericRange {
		t.Fatalf("expected NumericRange, got %v", p.Kind)
	}
}

func TestCompileCIDR(t *testing.T) {
	raw := []byte(`{"ip": [{"cidr": "10.0.0.0/24"}]}`)
	cr, err := Compile("r7", raw)
	if err != nil {
		t.Fatal(err)
	}
	p := cr.SubRules[0].Fields[0].Patterns[0]
	if p.Kind != pattern.NumericRange || !p.IsCIDR {
		t.Fatalf("expected CIDR-tagged NumericRange, got %+v", p)
	}
}

func TestCompileNumberLeafAddsNumericEQCompanion(t *testing.T) {
	raw := []byte(`{"n": [3]}`)
	cr, err := Compile("r11", raw)
	if err != nil {
		t.Fatal(err)
	}
	ps := cr.SubRules[0].Fields[0].Patterns
	if len(ps) != 2 {
		t.Fatalf("expected a bare-text EXACT plus a NumericEQ companion, got %+v", ps)
	}
	var sawExact, sawNumericEQ bool
	for _, p := range ps {
		switch p.Kind {
		case pattern.Exact:
			sawExact = true
			if p.Text != "3" {
				t.Errorf("expected unquoted bare-number EXACT text, got %q", p.Text)
			}
		case pattern.NumericEQ:
			sawNumericEQ = true
		}
	}
	if !sawExact || !sawNumericEQ {
		t.Fatalf("expected both Exact and NumericEQ, got %+v", ps)
	}
}

func TestCompileBoolAndNullLeavesAreBareText(t *testing.T) {
	raw := []byte(`{"a": [true], "b": [null]}`)
	cr, err := Compile("r12", raw)
	if err != nil {
		t.Fatal(err)
	}
	for _, fp := range cr.SubRules[0].Fields {
		p := fp.Patterns[0]
		if p.Kind != pattern.Exact {
			t.Fatalf("expected Exact, got %v", p.Kind)
		}
		switch fp.Path {
		case "a":
			if p.Text != "true" {
				t.Errorf("expected bare %q, got %q", "true", p.Text)
			}
		case "b":
			if p.Text != "null" {
				t.Errorf("expected bare %q, got %q", "null", p.Text)
			}
		}
	}
}

func TestCompileAnythingBut(t *testing.T) {
	raw := []byte(`{"a": [{"anything-but": ["x", "y"]}]}`)
	cr, err := Compile("r8", raw)
	if err != nil {
		t.Fatal(err)
	}
	p := cr.SubRules[0].Fields[0].Patterns[0]
	if p.Kind != pattern.AnythingBut || len(p.Forbidden) != 2 {
		t.Fatalf("unexpected pattern: %+v", p)
	}
}

func TestCompileUnknownKeyErrors(t *testing.T) {
	raw := []byte(`{"a": [{"bogus": "z"}]}`)
	if _, err := Compile("r9", raw); err == nil {
		t.Fatalf("expected error for unknown match key")
	}
}

func TestCompileEmptyArrayErrors(t *testing.T) {
	raw := []byte(`{"a": []}`)
	if _, err := Compile("r10", raw); err == nil {
		t.Fatalf("expected error for empty match array")
	}
}
