// Package ruler provides the public API: a Machine that compiles JSON
// rules into a shared name machine and matches flattened JSON events
// against them.
package ruler

import (
	"errors"
	"sort"
	"sync"

	"github.com/eventruler/eventruler/complexity"
	"github.com/eventruler/eventruler/event"
	"github.com/eventruler/eventruler/match"
	"github.com/eventruler/eventruler/namematch"
	"github.com/eventruler/eventruler/pattern"
	"github.com/eventruler/eventruler/rulecompile"
	"github.com/eventruler/eventruler/subrule"
)

// ErrUnknownRule is returned by DeleteRule for a name that was never
// added (or already deleted).
var ErrUnknownRule = errors.New("ruler: no such rule")

// wireRecord is one (state, field, pattern) edge namematch.Machine was
// given for a specific sub-rule, kept so DeleteRule can undo it later.
type wireRecord struct {
	state     namematch.StateID
	field     string
	pattern   pattern.Pattern
	isAbsence bool
}

// Machine compiles rules and matches events against them. The zero value
// is not usable; construct with NewMachine or NewMachineWithConfig. A
// Machine is safe for concurrent AddRule/DeleteRule/RulesForJSONEvent
// calls.
type Machine struct {
	mu sync.RWMutex

	cfg Config
	nm  *namematch.Machine

	nextRuleIndex uint32
	subToRule     map[subrule.ID]string
	ruleSubs      map[string][]subrule.ID
	wires         map[subrule.ID][]wireRecord
}

// NewMachine builds a Machine with DefaultConfig().
func NewMachine() *Machine {
	m, _ := NewMachineWithConfig(DefaultConfig())
	return m
}

// NewMachineWithConfig builds a Machine with cfg, validating it first.
func NewMachineWithConfig(cfg Config) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Machine{
		cfg:       cfg,
		nm:        namematch.New(),
		subToRule: make(map[subrule.ID]string),
		ruleSubs:  make(map[string][]subrule.ID),
		wires:     make(map[subrule.ID][]wireRecord),
	}, nil
}

// AddRule compiles a rule's JSON body and wires its sub-rules into the
// shared name machine. If the resulting machine would exceed the
// configured MaxComplexity, the rule is rolled back and an error is
// returned; the Machine is left exactly as it was before the call.
func (m *Machine) AddRule(name string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.ruleSubs[name]; exists {
		return &RuleError{Name: name, Err: errors.New("rule already exists")}
	}

	compiled, err := rulecompile.Compile(name, raw)
	if err != nil {
		return &RuleError{Name: name, Err: err}
	}

	// wireSubRule allocates one name state per field of every sub-rule.
	nameStates := 0
	for _, sr := range compiled.SubRules {
		nameStates += len(sr.Fields)
	}
	if nameStates > m.cfg.MaxNameStates {
		return &RuleError{Name: name, Err: errors.New("rule needs more name states than MaxNameStates allows")}
	}

	ruleIndex := m.nextRuleIndex
	var ids []subrule.ID

	for expansion, sr := range compiled.SubRules {
		id := subrule.New(ruleIndex, uint32(expansion))
		ids = append(ids, id)
		if err := m.wireSubRule(id, sr); err != nil {
			m.unwire(ids)
			return &RuleError{Name: name, Err: err}
		}
	}

	if _, err := complexity.Evaluate(m.nm, m.cfg.MaxComplexity); err != nil {
		m.unwire(ids)
		return &RuleError{Name: name, Err: err}
	}

	m.nextRuleIndex++
	m.ruleSubs[name] = ids
	for _, id := range ids {
		m.subToRule[id] = name
	}
	return nil
}

// wireSubRule chains sr's fields into the name machine as a sequence of
// states, the last field's transition marked terminal.
func (m *Machine) wireSubRule(id subrule.ID, sr rulecompile.SubRule) error {
	state := m.nm.Start()
	for i, fp := range sr.Fields {
		terminal := i == len(sr.Fields)-1
		next := m.nm.NewState()
		for _, p := range fp.Patterns {
			if p.Kind == pattern.Absent {
				m.nm.AddAbsence(state, fp.Path, next, id, terminal)
				m.wires[id] = append(m.wires[id], wireRecord{state: state, field: fp.Path, isAbsence: true})
				continue
			}
			if err := m.nm.AddPattern(state, fp.Path, p, next, id, terminal); err != nil {
				return err
			}
			m.wires[id] = append(m.wires[id], wireRecord{state: state, field: fp.Path, pattern: p})
		}
		state = next
	}
	return nil
}

func (m *Machine) unwire(ids []subrule.ID) {
	for _, id := range ids {
		for _, w := range m.wires[id] {
			if w.isAbsence {
				m.nm.DeleteAbsence(w.state, w.field, id)
			} else {
				m.nm.DeletePattern(w.state, w.field, w.pattern, id)
			}
		}
		delete(m.wires, id)
		delete(m.subToRule, id)
	}
}

// DeleteRule removes every sub-rule a previously-added rule compiled
// into, leaving the name machine's remaining rules unaffected.
func (m *Machine) DeleteRule(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids, ok := m.ruleSubs[name]
	if !ok {
		return ErrUnknownRule
	}
	m.unwire(ids)
	delete(m.ruleSubs, name)
	return nil
}

// RulesForJSONEvent flattens raw as a JSON event and returns the sorted,
// deduplicated names of every rule it matches, enforcing array
// consistency across a rule's fields.
func (m *Machine) RulesForJSONEvent(raw []byte) ([]string, error) {
	ev, err := event.Flatten(raw)
	if err != nil {
		return nil, err
	}
	return m.rulesForEvent(ev), nil
}

// RulesForEvent is the legacy, non-array-consistent match mode: fields
// are matched independently of which array element they came from. It
// exists for callers migrating from rule sets authored before array
// consistency was enforced; see the project's design doc for why this
// mode is kept rather than removed.
func (m *Machine) RulesForEvent(raw []byte) ([]string, error) {
	ev, err := event.Flatten(raw)
	if err != nil {
		return nil, err
	}
	stripped := &event.Event{Fields: make([]event.Field, len(ev.Fields))}
	for i, f := range ev.Fields {
		stripped.Fields[i] = event.Field{Path: f.Path, Value: f.Value}
	}
	return m.rulesForEvent(stripped), nil
}

func (m *Machine) rulesForEvent(ev *event.Event) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := match.Walk(m.nm, ev)
	seen := make(map[string]bool, len(results))
	var names []string
	for _, r := range results {
		name, ok := m.subToRule[r.SubRule]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MatchesRule reports whether raw, as a JSON event, satisfies the named
// rule.
func (m *Machine) MatchesRule(raw []byte, ruleName string) (bool, error) {
	names, err := m.RulesForJSONEvent(raw)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == ruleName {
			return true, nil
		}
	}
	return false, nil
}

// EvaluateComplexity returns the current machine's wildcard-induced NFA
// breadth bound, per package complexity.
func (m *Machine) EvaluateComplexity() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return complexity.Evaluate(m.nm, m.cfg.MaxComplexity)
}
