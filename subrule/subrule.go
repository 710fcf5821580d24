// Package subrule defines the sub-rule identifier: a numeric id assigned
// to one conjunctive expansion of a rule (rules with "$or" expand into
// several), and the set type the matcher intersects as it walks the
// compiled machine.
//
// The source this is ported from packs (ruleIndex, expansionIndex) into a
// single double and uses the integer/fractional parts as two independent
// counters. Go has no equivalent implicit-precision trick worth
// preserving, so this packs the pair into a uint64 instead: the upper 32
// bits are the rule index (assigned when a rule is first added), the
// lower 32 bits are the expansion index within that rule's "$or"
// Cartesian product.
package subrule

import "fmt"

// ID identifies one conjunctive expansion of one rule.
type ID uint64

// New packs a rule index and expansion index into a sub-rule ID.
func New(ruleIndex, expansion uint32) ID {
	return ID(uint64(ruleIndex)<<32 | uint64(expansion))
}

// RuleIndex extracts the rule-index half of the id.
func (id ID) RuleIndex() uint32 { return uint32(id >> 32) }

// Expansion extracts the expansion-index half of the id.
func (id ID) Expansion() uint32 { return uint32(id) }

func (id ID) String() string {
	return fmt.Sprintf("%d.%d", id.RuleIndex(), id.Expansion())
}

// Set is an unordered collection of sub-rule ids. The zero value is an
// empty set ready to use.
type Set map[ID]struct{}

// NewSet builds a Set from the given ids.
func NewSet(ids ...ID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id into the set, allocating the underlying map if needed,
// and returns the (possibly newly-allocated) set.
func (s Set) Add(id ID) Set {
	if s == nil {
		s = make(Set, 1)
	}
	s[id] = struct{}{}
	return s
}

// Contains reports whether id is a member.
func (s Set) Contains(id ID) bool {
	_, ok := s[id]
	return ok
}

// Intersect returns the intersection of s and other. Neither input is
// mutated.
func (s Set) Intersect(other Set) Set {
	if len(s) == 0 || len(other) == 0 {
		return nil
	}
	small, big := s, other
	if len(other) < len(s) {
		small, big = other, s
	}
	out := make(Set, len(small))
	for id := range small {
		if _, ok := big[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// Union returns the union of s and other. Neither input is mutated.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Remove deletes id from the set in place.
func (s Set) Remove(id ID) { delete(s, id) }

// Len reports the number of members.
func (s Set) Len() int { return len(s) }

// Slice returns the members in unspecified order.
func (s Set) Slice() []ID {
	out := make([]ID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}
