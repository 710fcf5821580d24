// Package bytematch implements the byte-level NFA (the "byte machine")
// that, for one field name, compiles every associated pattern into a
// single automaton and reports which patterns a value satisfies in one
// pass over its bytes.
//
// States live in an arena (a []state slice addressed by StateID) rather
// than being linked by pointer, so that a Machine can be copied, counted,
// and walked without reference-counting cycles back to its owner (see the
// cyclic-reference note in the project's design doc).
package bytematch

import (
	"encoding/hex"
	"encoding/json"
	"math"
	"net/netip"
	"strings"

	"github.com/eventruler/eventruler/numeric"
	"github.com/eventruler/eventruler/pattern"
)

// StateID addresses a state inside a Machine's arena.
type StateID uint32

// invalidState marks an unset transition target.
const invalidState StateID = math.MaxUint32

// Match is a terminal reached while walking the NFA: the pattern that
// fired, and the opaque "next name state" identifier the caller
// associated with it at Add time. bytematch does not interpret Next; it
// is namematch.StateID in practice, passed through as an int to avoid an
// import cycle between the two packages.
type Match struct {
	Pattern pattern.Pattern
	Next    int
}

type state struct {
	// trans is a Compound byte map: for each byte value it lists every
	// state reachable on that byte, since two patterns that share a
	// byte at this position fork into parallel transitions (NFA union)
	// rather than being merged into one.
	trans [256][]StateID

	// wildcardSelf marks a state reached by a WILDCARD's '*' sentinel:
	// it consumes any byte and stays active (self-loop), and also
	// admits the zero-bytes-consumed continuation at wildcardNext. It is
	// also set on PREFIX/SUFFIX terminals, whose wildcardNext is the state
	// itself.
	wildcardSelf  bool
	wildcardNext  StateID
	indeterminate bool

	matches []Match
}

// negMatch is the side-table entry for ANYTHING_BUT family patterns,
// checked by direct set membership against the value's quoted or
// canonical-numeric form rather than walked byte-by-byte; see DESIGN.md
// for why this machinery is special-cased rather than built as literal
// negated NFA transitions.
type negMatch struct {
	pattern   pattern.Pattern
	forbidden map[string]bool
	foldCase  bool
	numeric   bool
	next      int
}

type rangeMatch struct {
	pattern pattern.Pattern
	low     pattern.Bound
	high    pattern.Bound
	next    int
}

// Machine is one field's compiled byte-level NFA.
type Machine struct {
	states  []state
	start   StateID
	ranges  []rangeMatch
	negs    []negMatch
	exists  []Match
	byKey   map[string]StateID // pattern key -> terminal state, for Delete
}

// New returns an empty byte machine with a single start state.
func New() *Machine {
	m := &Machine{}
	m.start = m.newState()
	m.byKey = make(map[string]StateID)
	return m
}

func (m *Machine) newState() StateID {
	id := StateID(len(m.states))
	m.states = append(m.states, state{wildcardNext: invalidState})
	return id
}

// Add compiles p into the machine, wiring its terminal to next (an
// opaque caller-chosen identifier, typically a namematch.StateID). Every
// call registers p anew; TransitionOn reports each (pattern, next) pair
// once however often it was added, and Delete removes the most recently
// added chain for a pattern built as a byte chain.
//
// SUFFIX patterns are stored byte-reversed (see pattern.SuffixText): a
// machine holding any SUFFIX pattern must be queried with
// pattern.ReverseString(value), not value itself. Callers that mix
// SUFFIX with other kinds for the same field name keep SUFFIX patterns
// in a dedicated Machine for this reason (see namematch.valueMatcher).
func (m *Machine) Add(p pattern.Pattern, next int) error {
	match := Match{Pattern: p, Next: next}

	switch p.Kind {
	case pattern.Exists:
		m.exists = append(m.exists, match)
		return nil

	case pattern.NumericRange:
		m.ranges = append(m.ranges, rangeMatch{pattern: p, low: p.Low, high: p.High, next: next})
		return nil

	case pattern.NumericEQ:
		// Side-tracked like NumericRange (a degenerate [Text, Text]
		// range) rather than walked as a literal byte chain, so the
		// event value goes through the same canonicalize step a range
		// comparison gets: "=3" must match both "3" and "3.0".
		m.ranges = append(m.ranges, rangeMatch{
			pattern: p,
			low:     pattern.Bound{Value: p.Text, Open: false},
			high:    pattern.Bound{Value: p.Text, Open: false},
			next:    next,
		})
		return nil

	case pattern.AnythingBut, pattern.AnythingButIgnoreCase, pattern.AnythingButPrefix, pattern.AnythingButSuffix:
		forbidden := make(map[string]bool, len(p.Forbidden))
		for _, f := range p.Forbidden {
			key := f
			if p.Kind == pattern.AnythingButIgnoreCase {
				key = strings.ToLower(f)
			}
			forbidden[key] = true
		}
		m.negs = append(m.negs, negMatch{
			pattern:   p,
			forbidden: forbidden,
			foldCase:  p.Kind == pattern.AnythingButIgnoreCase,
			numeric:   isNumericForbidden(p.Forbidden),
			next:      next,
		})
		return nil
	}

	chars, err := inputChars(p)
	if err != nil {
		return err
	}

	cur := m.start
	for _, ch := range chars {
		cur = m.extend(cur, ch)
	}
	m.states[cur].matches = append(m.states[cur].matches, match)
	m.byKey[p.Key()] = cur

	// PREFIX's terminal accepts any trailing bytes; SUFFIX's terminal
	// (reached after consuming the reversed value) accepts any
	// remaining reversed bytes, i.e. any leading bytes of the original
	// value. Both get a self-loop at the match state.
	if p.Kind == pattern.Prefix || p.Kind == pattern.Suffix {
		m.states[cur].wildcardSelf = true
		m.states[cur].wildcardNext = cur
	}
	return nil
}

func isNumericForbidden(vals []string) bool {
	if len(vals) == 0 {
		return false
	}
	for _, v := range vals {
		if len(v) != 14 || !isHex(v) {
			return false
		}
	}
	return true
}

// inputChars parses a pattern's stored text into the byte machine's input
// character sequence according to its kind.
func inputChars(p pattern.Pattern) ([]patternInputChar, error) {
	switch p.Kind {
	case pattern.Exact, pattern.Prefix:
		return literalChars(p.Text), nil
	case pattern.Suffix:
		return literalChars(pattern.ReverseString(p.Text)), nil
	case pattern.EqualsIgnoreCase:
		return foldChars(p.Text), nil
	case pattern.Wildcard:
		raw, err := wildcardChars(p.Text)
		if err != nil {
			return nil, err
		}
		return raw, nil
	default:
		return literalChars(p.Text), nil
	}
}

// patternInputChar mirrors pattern.InputChar but stays local to avoid
// re-exporting the parser's vocabulary from this package's public API.
type patternInputChar = pattern.InputChar

func literalChars(s string) []patternInputChar { return pattern.ParseLiteral(s) }
func foldChars(s string) []patternInputChar    { return pattern.ParseCaseFold(s) }
func wildcardChars(s string) ([]patternInputChar, error) { return pattern.ParseWildcard(s) }

// extend advances cur by one input character, creating new states as
// needed. A CharByteSet input character forks into parallel byte
// transitions that converge on one successor state; a CharWildcard input
// character installs a self-loop at cur and returns a fresh continuation
// state reachable once the wildcard stops consuming.
func (m *Machine) extend(cur StateID, ch patternInputChar) StateID {
	switch ch.Kind {
	case pattern.CharWildcard:
		m.states[cur].wildcardSelf = true
		next := m.newState()
		m.states[cur].wildcardNext = next
		m.states[next].indeterminate = true
		return next
	default:
		next := m.newState()
		for _, alt := range ch.Bytes {
			m.wireChain(cur, alt, next)
		}
		return next
	}
}

// wireChain creates a chain of states for a (possibly multi-byte) literal
// sequence from cur to target, reusing no existing states: every pattern
// addition gets its own linear chain, and shared bytes simply add a
// parallel edge (Compound transition) rather than merging into an
// existing chain. See DESIGN.md on why state sharing (an optimisation the
// spec explicitly allows omitting) is skipped here.
func (m *Machine) wireChain(cur StateID, bytes []byte, target StateID) {
	for i, b := range bytes {
		var next StateID
		if i == len(bytes)-1 {
			next = target
		} else {
			next = m.newState()
		}
		m.states[cur].trans[b] = append(m.states[cur].trans[b], next)
		cur = next
	}
}

// Delete removes p's match edge. Patterns absent from the machine are a
// no-op; deletion never fails. Orphaned states are not reclaimed (the
// spec permits a delete to "leave garbage states but never corrupt
// behaviour").
func (m *Machine) Delete(p pattern.Pattern) {
	switch p.Kind {
	case pattern.Exists:
		m.exists = removeExists(m.exists, p)
		return
	case pattern.NumericRange, pattern.NumericEQ:
		m.ranges = removeRange(m.ranges, p)
		return
	case pattern.AnythingBut, pattern.AnythingButIgnoreCase, pattern.AnythingButPrefix, pattern.AnythingButSuffix:
		m.negs = removeNeg(m.negs, p)
		return
	}
	sid, ok := m.byKey[p.Key()]
	if !ok {
		return
	}
	s := &m.states[sid]
	kept := s.matches[:0]
	for _, mt := range s.matches {
		if mt.Pattern.Key() != p.Key() {
			kept = append(kept, mt)
		}
	}
	s.matches = kept
	delete(m.byKey, p.Key())
}

func removeExists(in []Match, p pattern.Pattern) []Match {
	out := in[:0]
	for _, m := range in {
		if m.Pattern.Key() != p.Key() {
			out = append(out, m)
		}
	}
	return out
}

func removeRange(in []rangeMatch, p pattern.Pattern) []rangeMatch {
	out := in[:0]
	for _, r := range in {
		if r.pattern.Key() != p.Key() {
			out = append(out, r)
		}
	}
	return out
}

func removeNeg(in []negMatch, p pattern.Pattern) []negMatch {
	out := in[:0]
	for _, n := range in {
		if n.pattern.Key() != p.Key() {
			out = append(out, n)
		}
	}
	return out
}

// WildcardStates returns the number of states in this machine that carry a
// WILDCARD '*' sentinel, used by the complexity evaluator to bound
// wildcard-induced NFA breadth (see package complexity). The self-loops on
// PREFIX/SUFFIX terminals are not counted.
func (m *Machine) WildcardStates() int {
	n := 0
	for i := range m.states {
		if m.states[i].wildcardSelf && m.states[i].wildcardNext != StateID(i) {
			n++
		}
	}
	return n
}

// AllMatches returns every match this machine can produce, across the
// trie, numeric ranges, anything-but side table and exists list. Used by
// the complexity evaluator to recurse into next name states.
func (m *Machine) AllMatches() []Match {
	var out []Match
	for i := range m.states {
		out = append(out, m.states[i].matches...)
	}
	for _, r := range m.ranges {
		out = append(out, Match{Pattern: r.pattern, Next: r.next})
	}
	for _, n := range m.negs {
		out = append(out, Match{Pattern: n.pattern, Next: n.next})
	}
	out = append(out, m.exists...)
	return out
}

// Empty reports whether the machine has no patterns at all.
func (m *Machine) Empty() bool {
	return len(m.byKey) == 0 && len(m.ranges) == 0 && len(m.negs) == 0 && len(m.exists) == 0
}

// TransitionOn walks value's UTF-8 bytes through the NFA and returns
// every match it reaches, plus every side-tracked numeric-range,
// anything-but and exists match the value satisfies, each (pattern, next)
// pair reported once. value must be in
// the Field's stored textual form (quoted for strings, bare for
// numbers/literals).
func (m *Machine) TransitionOn(value string) []Match {
	active := m.epsilonClosure(map[StateID]bool{m.start: true})
	b := []byte(value)
	for _, c := range b {
		next := make(map[StateID]bool)
		for sid := range active {
			s := &m.states[sid]
			for _, t := range s.trans[c] {
				next[t] = true
			}
			if s.wildcardSelf {
				next[sid] = true
			}
		}
		active = m.epsilonClosure(next)
	}

	type seenKey struct {
		pattern string
		next    int
	}
	seen := make(map[seenKey]bool)
	var out []Match
	add := func(mt Match) {
		k := seenKey{pattern: mt.Pattern.Key(), next: mt.Next}
		if !seen[k] {
			seen[k] = true
			out = append(out, mt)
		}
	}

	for sid := range active {
		for _, mt := range m.states[sid].matches {
			add(mt)
		}
	}
	for _, mt := range m.exists {
		if len(value) > 0 {
			add(mt)
		}
	}
	for _, r := range m.ranges {
		canon, ok := canonicalizeForRange(value, r.pattern)
		if !ok {
			continue
		}
		if inRange(canon, r.low, r.high) {
			add(Match{Pattern: r.pattern, Next: r.next})
		}
	}
	for _, n := range m.negs {
		if negMatches(n, value) {
			add(Match{Pattern: n.pattern, Next: n.next})
		}
	}
	return out
}

func (m *Machine) epsilonClosure(set map[StateID]bool) map[StateID]bool {
	for changed := true; changed; {
		changed = false
		for sid := range set {
			s := &m.states[sid]
			if s.wildcardSelf && s.wildcardNext != invalidState && !set[s.wildcardNext] {
				set[s.wildcardNext] = true
				changed = true
			}
		}
	}
	return set
}

// canonicalize extracts the canonical numeric encoding from a value's
// textual form, whether it is a bare number ("3.5") or one produced by
// NUMERIC_EQ ("already canonical, 14 hex digits").
func canonicalize(value string) (string, bool) {
	if len(value) == 14 && isHex(value) {
		return value, true
	}
	if len(value) == 0 || value[0] == '"' || value == "true" || value == "false" || value == "null" {
		return "", false
	}
	var f float64
	if err := json.Unmarshal([]byte(value), &f); err != nil {
		return "", false
	}
	c, err := numeric.Canon(f)
	if err != nil {
		return "", false
	}
	return c, true
}

// canonicalizeForRange canonicalizes value the way r's range needs it
// compared: as an IP literal decoded to fixed-width hex for a CIDR-tagged
// range, or as a plain canonical numeral otherwise.
func canonicalizeForRange(value string, p pattern.Pattern) (string, bool) {
	if p.IsCIDR {
		return canonicalizeIP(value, p.CIDRWidth)
	}
	return canonicalize(value)
}

// canonicalizeIP decodes value (the event's quoted textual form) as an
// IPv4/IPv6 literal and returns its width*2-hex-digit encoding, the same
// form cidr.Decode produces for a CIDR pattern's bounds. Reports ok=false
// for anything that isn't a quoted string holding a literal of the
// expected address width.
func canonicalizeIP(value string, width int) (string, bool) {
	if len(value) < 2 || value[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return "", false
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	addr = addr.Unmap()
	switch {
	case width == 4 && addr.Is4():
		b := addr.As4()
		return strings.ToUpper(hex.EncodeToString(b[:])), true
	case width == 16 && addr.Is6():
		b := addr.As16()
		return strings.ToUpper(hex.EncodeToString(b[:])), true
	default:
		return "", false
	}
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

func inRange(canon string, low, high pattern.Bound) bool {
	if low.Open {
		if canon <= low.Value {
			return false
		}
	} else if canon < low.Value {
		return false
	}
	if high.Open {
		if canon >= high.Value {
			return false
		}
	} else if canon > high.Value {
		return false
	}
	return true
}

func negMatches(n negMatch, value string) bool {
	if n.numeric {
		canon, ok := canonicalize(value)
		if !ok {
			return false
		}
		return !n.forbidden[canon]
	}

	cmp := value
	if n.foldCase {
		cmp = strings.ToLower(value)
	}
	switch n.pattern.Kind {
	case pattern.AnythingButPrefix:
		for f := range n.forbidden {
			if strings.HasPrefix(cmp, f) {
				return false
			}
		}
		return true
	case pattern.AnythingButSuffix:
		for f := range n.forbidden {
			if strings.HasSuffix(cmp, f) {
				return false
			}
		}
		return true
	default:
		return !n.forbidden[cmp]
	}
}

