// Package namematch implements the name machine: the higher-level
// automaton that sequences field-name/field-value transitions across a
// flattened event, wrapping one byte machine (package bytematch) per
// (name state, field name) pair.
package namematch

import (
	"github.com/eventruler/eventruler/bytematch"
	"github.com/eventruler/eventruler/pattern"
	"github.com/eventruler/eventruler/subrule"
)

// StateID addresses a name state inside a Machine's arena.
type StateID int

// Invalid marks an unset state reference.
const Invalid StateID = -1

// valueMatcher is a field's value matcher at one name state: a forward
// machine for every kind except SUFFIX, and a dedicated suffix machine
// fed the reversed value (see bytematch.Machine.Add's SUFFIX note).
type valueMatcher struct {
	forward *bytematch.Machine
	suffix  *bytematch.Machine
}

func newValueMatcher() *valueMatcher {
	return &valueMatcher{forward: bytematch.New()}
}

func (v *valueMatcher) add(p pattern.Pattern, next int) error {
	if p.Kind == pattern.Suffix {
		if v.suffix == nil {
			v.suffix = bytematch.New()
		}
		return v.suffix.Add(p, next)
	}
	return v.forward.Add(p, next)
}

func (v *valueMatcher) delete(p pattern.Pattern) {
	if p.Kind == pattern.Suffix {
		if v.suffix != nil {
			v.suffix.Delete(p)
		}
		return
	}
	v.forward.Delete(p)
}

// TransitionOn returns every bytematch.Match this field's value matcher
// produces for value, across both the forward and suffix sub-machines.
func (v *valueMatcher) TransitionOn(value string) []bytematch.Match {
	out := v.forward.TransitionOn(value)
	if v.suffix != nil {
		out = append(out, v.suffix.TransitionOn(pattern.ReverseString(value))...)
	}
	return out
}

func (v *valueMatcher) empty() bool {
	return v.forward.Empty() && (v.suffix == nil || v.suffix.Empty())
}

type absenceEntry struct {
	next StateID
}

// State is one node of the name machine: "which fields have been matched
// so far" for every sub-rule currently alive.
type State struct {
	id      StateID
	values  map[string]*valueMatcher
	absence map[string]absenceEntry

	// nonTerminal/terminal are keyed by field+"\x00"+pattern.Key(), since
	// the same pattern text can recur under different field names at the
	// same state and each occurrence tracks its own sub-rules.
	nonTerminal map[string]subrule.Set
	terminal    map[string]subrule.Set
}

func newState(id StateID) *State {
	return &State{
		id:          id,
		values:      make(map[string]*valueMatcher),
		absence:     make(map[string]absenceEntry),
		nonTerminal: make(map[string]subrule.Set),
		terminal:    make(map[string]subrule.Set),
	}
}

func matchKey(field string, p pattern.Pattern) string {
	return field + "\x00" + p.Key()
}

// Machine is the compiled name automaton shared by every rule added to
// one ruler.Machine.
type Machine struct {
	states []*State
	start  StateID
}

// New returns a machine with a single (empty) start state.
func New() *Machine {
	m := &Machine{}
	m.start = m.newState()
	return m
}

// Start returns the machine's unique start state.
func (m *Machine) Start() StateID { return m.start }

func (m *Machine) newState() StateID {
	id := StateID(len(m.states))
	m.states = append(m.states, newState(id))
	return id
}

// NewState allocates a fresh name state reachable only via a match
// transition the caller is about to wire up.
func (m *Machine) NewState() StateID { return m.newState() }

// State returns the state for id.
func (m *Machine) State(id StateID) *State { return m.states[id] }

// AddPattern ensures a value matcher exists for field at state `at`,
// inserts p into it targeting `next`, and records sub in the
// terminal/non-terminal bookkeeping for this (field, pattern) occurrence.
func (m *Machine) AddPattern(at StateID, field string, p pattern.Pattern, next StateID, sub subrule.ID, terminal bool) error {
	s := m.states[at]
	vm, ok := s.values[field]
	if !ok {
		vm = newValueMatcher()
		s.values[field] = vm
	}
	if err := vm.add(p, int(next)); err != nil {
		return err
	}
	key := matchKey(field, p)
	if terminal {
		s.terminal[key] = s.terminal[key].Add(sub)
	} else {
		s.nonTerminal[key] = s.nonTerminal[key].Add(sub)
	}
	return nil
}

// AddAbsence registers field as required-absent at state `at`: if field
// never appears in the event, the matcher may transition to `next`.
func (m *Machine) AddAbsence(at StateID, field string, next StateID, sub subrule.ID, terminal bool) {
	s := m.states[at]
	s.absence[field] = absenceEntry{next: next}
	key := field + "\x00absent"
	if terminal {
		s.terminal[key] = s.terminal[key].Add(sub)
	} else {
		s.nonTerminal[key] = s.nonTerminal[key].Add(sub)
	}
}

// DeletePattern best-effort removes p from field's value matcher at
// state `at`, and drops sub from the bookkeeping sets. It never fails.
func (m *Machine) DeletePattern(at StateID, field string, p pattern.Pattern, sub subrule.ID) {
	s := m.states[at]
	if vm, ok := s.values[field]; ok {
		vm.delete(p)
	}
	key := matchKey(field, p)
	delete(s.nonTerminal[key], sub)
	delete(s.terminal[key], sub)
}

// DeleteAbsence best-effort removes field's absence registration at
// state `at` for sub.
func (m *Machine) DeleteAbsence(at StateID, field string, sub subrule.ID) {
	s := m.states[at]
	key := field + "\x00absent"
	delete(s.nonTerminal[key], sub)
	delete(s.terminal[key], sub)
	if len(s.nonTerminal[key]) == 0 && len(s.terminal[key]) == 0 {
		delete(s.absence, field)
	}
}

// ValueTransitions returns the bytematch.Match list field's value matcher
// produces for value at state `at`, or nil if the state has no matcher
// for field.
func (s *State) ValueTransitions(field, value string) []bytematch.Match {
	vm, ok := s.values[field]
	if !ok {
		return nil
	}
	return vm.TransitionOn(value)
}

// AbsenceTransitions returns, among the field names registered absent at
// s, those that do not appear in present (the set of field paths the
// event actually has), paired with the state to transition to.
func (s *State) AbsenceTransitions(present map[string]bool) []struct {
	Field string
	Next  StateID
} {
	var out []struct {
		Field string
		Next  StateID
	}
	for field, entry := range s.absence {
		if !present[field] {
			out = append(out, struct {
				Field string
				Next  StateID
			}{Field: field, Next: entry.next})
		}
	}
	return out
}

// NonTerminal returns the sub-rule ids that reach state `at` via
// (field, pattern) but still have more fields to satisfy.
func (m *Machine) NonTerminal(at StateID, field string, p pattern.Pattern) subrule.Set {
	return m.states[at].nonTerminal[matchKey(field, p)]
}

// Terminal returns the sub-rule ids for which (field, pattern) at state
// `at` completes the sub-rule.
func (m *Machine) Terminal(at StateID, field string, p pattern.Pattern) subrule.Set {
	return m.states[at].terminal[matchKey(field, p)]
}

// NonTerminalAbsence/TerminalAbsence mirror NonTerminal/Terminal for
// absence transitions.
func (m *Machine) NonTerminalAbsence(at StateID, field string) subrule.Set {
	return m.states[at].nonTerminal[field+"\x00absent"]
}

func (m *Machine) TerminalAbsence(at StateID, field string) subrule.Set {
	return m.states[at].terminal[field+"\x00absent"]
}

// Empty reports whether the machine has no patterns at all: the start
// state has no value matchers and no absence registrations.
func (m *Machine) Empty() bool {
	s := m.states[m.start]
	if len(s.absence) != 0 {
		return false
	}
	for _, vm := range s.values {
		if !vm.empty() {
			return false
		}
	}
	return true
}

// Fields returns the field names state `at` has a value matcher for, used
// by the matcher to know which byte machine to consult and by the
// complexity evaluator to recurse.
func (s *State) Fields() []string {
	out := make([]string, 0, len(s.values))
	for f := range s.values {
		out = append(out, f)
	}
	return out
}

// ValueMatcher exposes the raw bytematch.Machine(s) for field at s, for
// the complexity evaluator's recursion; ok is false if field has no
// matcher here.
func (s *State) ValueMatcher(field string) (forward, suffix *bytematch.Machine, ok bool) {
	vm, exists := s.values[field]
	if !exists {
		return nil, nil, false
	}
	return vm.forward, vm.suffix, true
}
