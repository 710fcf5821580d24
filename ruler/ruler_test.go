package ruler

import "testing"

func TestAddRuleAndMatchSimple(t *testing.T) {
	m := NewMachine()
	if err := m.AddRule("ec2-running", []byte(`{"detail":{"state":["running"]}}`)); err != nil {
		t.Fatal(err)
	}

	got, err := m.RulesForJSONEvent([]byte(`{"detail":{"state":"running"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "ec2-running" {
		t.Fatalf("expected match on ec2-running, got %v", got)
	}

	got, err = m.RulesForJSONEvent([]byte(`{"detail":{"state":"stopped"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no match, got %v", got)
	}
}

func TestAddRuleWithOr(t *testing.T) {
	m := NewMachine()
	rule := []byte(`{"$or": [{"a": ["1"]}, {"b": ["2"]}]}`)
	if err := m.AddRule("r1", rule); err != nil {
		t.Fatal(err)
	}

	got, err := m.RulesForJSONEvent([]byte(`{"a":"1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected match via first $or branch, got %v", got)
	}

	got, err = m.RulesForJSONEvent([]byte(`{"b":"2"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected match via second $or branch, got %v", got)
	}

	got, err = m.RulesForJSONEvent([]byte(`{"c":"3"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no match, got %v", got)
	}
}

func TestDeleteRuleRemovesMatches(t *testing.T) {
	m := NewMachine()
	if err := m.AddRule("r1", []byte(`{"a": ["x"]}`)); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteRule("r1"); err != nil {
		t.Fatal(err)
	}
	got, err := m.RulesForJSONEvent([]byte(`{"a":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no match after delete, got %v", got)
	}
}

func TestDeleteUnknownRuleErrors(t *testing.T) {
	m := NewMachine()
	if err := m.DeleteRule("nope"); err != ErrUnknownRule {
		t.Fatalf("expected ErrUnknownRule, got %v", err)
	}
}

func TestAddDuplicateRuleNameErrors(t *testing.T) {
	m := NewMachine()
	if err := m.AddRule("r1", []byte(`{"a": ["x"]}`)); err != nil {
		t.Fatal(err)
	}
	if err := m.AddRule("r1", []byte(`{"a": ["y"]}`)); err == nil {
		t.Fatalf("expected error adding duplicate rule name")
	}
}

func TestMatchesRule(t *testing.T) {
	m := NewMachine()
	if err := m.AddRule("r1", []byte(`{"a": ["x"]}`)); err != nil {
		t.Fatal(err)
	}
	ok, err := m.MatchesRule([]byte(`{"a":"x"}`), "r1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("expected MatchesRule to report true")
	}
	ok, err = m.MatchesRule([]byte(`{"a":"y"}`), "r1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("expected MatchesRule to report false")
	}
}

func TestEvaluateComplexity(t *testing.T) {
	m := NewMachine()
	if err := m.AddRule("r1", []byte(`{"a": [{"wildcard": "*x*"}]}`)); err != nil {
		t.Fatal(err)
	}
	cost, err := m.EvaluateComplexity()
	if err != nil {
		t.Fatal(err)
	}
	if cost <= 0 {
		t.Fatalf("expected positive complexity, got %d", cost)
	}
}

func TestAddRuleRejectedByComplexityLeavesMachineUnchanged(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxComplexity = 1
	m, err := NewMachineWithConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.AddRule("r1", []byte(`{"a": [{"wildcard": "*a*b*c*"}]}`)); err == nil {
		t.Fatalf("expected complexity rejection")
	}
	got, err := m.RulesForJSONEvent([]byte(`{"a":"xaybzc"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("rejected rule should not have been wired in, got %v", got)
	}
}

func TestConfigValidateRejectsOutOfRange(t *testing.T) {
	cfg := Config{MaxComplexity: 0, MaxNameStates: 10}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for MaxComplexity=0")
	}
}

func TestAddRuleMatchesNumericEquality(t *testing.T) {
	m := NewMachine()
	if err := m.AddRule("r1", []byte(`{"n": [{"numeric": ["=", 3]}]}`)); err != nil {
		t.Fatal(err)
	}
	got, err := m.RulesForJSONEvent([]byte(`{"n":3}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected numeric equality to match bare number event value, got %v", got)
	}
	got, err = m.RulesForJSONEvent([]byte(`{"n":4}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no match for a different number, got %v", got)
	}
}

func TestAddRuleMatchesBareNumberEquality(t *testing.T) {
	m := NewMachine()
	if err := m.AddRule("r1", []byte(`{"n": [3]}`)); err != nil {
		t.Fatal(err)
	}
	got, err := m.RulesForJSONEvent([]byte(`{"n":3}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected a bare numeral leaf to match the same number, got %v", got)
	}
}

func TestAddRuleMatchesBareBoolAndNullEquality(t *testing.T) {
	m := NewMachine()
	if err := m.AddRule("r1", []byte(`{"a": [true], "b": [null]}`)); err != nil {
		t.Fatal(err)
	}
	got, err := m.RulesForJSONEvent([]byte(`{"a":true,"b":null}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected bool/null leaves to match bare event values, got %v", got)
	}
	got, err = m.RulesForJSONEvent([]byte(`{"a":false,"b":null}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no match when bool value differs, got %v", got)
	}
}

func TestAddRuleMatchesCIDR(t *testing.T) {
	m := NewMachine()
	if err := m.AddRule("r1", []byte(`{"ip": [{"cidr": "10.0.0.0/24"}]}`)); err != nil {
		t.Fatal(err)
	}
	got, err := m.RulesForJSONEvent([]byte(`{"ip":"10.0.0.17"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected address inside the CIDR block to match, got %v", got)
	}
	got, err = m.RulesForJSONEvent([]byte(`{"ip":"10.0.1.1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected address outside the CIDR block not to match, got %v", got)
	}
}

func TestLegacyRulesForEventIgnoresArrayConsistency(t *testing.T) {
	m := NewMachine()
	// r1 needs a=1 and b=2, which sit in different elements of items: only
	// the legacy mode lets it match.
	if err := m.AddRule("r1", []byte(`{"items": {"a": ["1"], "b": ["2"]}}`)); err != nil {
		t.Fatal(err)
	}
	if err := m.AddRule("r2", []byte(`{"items": {"b": ["2"]}}`)); err != nil {
		t.Fatal(err)
	}
	got, err := m.RulesForEvent([]byte(`{"items":[{"a":"1"},{"b":"2"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both rules to match, r1 across array elements, got %v", got)
	}
}
