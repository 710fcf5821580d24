// Package complexity bounds the NFA breadth a compiled rule set can
// induce via WILDCARD patterns, so a machine can refuse to compile a rule
// whose wildcard fan-out would make matching pathological.
package complexity

import (
	"errors"

	"github.com/eventruler/eventruler/bytematch"
	"github.com/eventruler/eventruler/namematch"
)

// ErrExceeded is returned when a rule set's wildcard-induced breadth
// would exceed the configured maximum.
var ErrExceeded = errors.New("complexity: exceeds configured maximum")

// Evaluate walks nm from its start state and returns a conservative bound
// on the NFA breadth its wildcard patterns can induce, erroring as soon as
// the running multiplier would exceed max. A machine with no wildcard
// patterns at all is cheap to evaluate: every branch factor is 1.
func Evaluate(nm *namematch.Machine, max int) (int, error) {
	visited := make(map[namematch.StateID]int)
	total := 0

	var walk func(id namematch.StateID, multiplier int) error
	walk = func(id namematch.StateID, multiplier int) error {
		if multiplier > max {
			return ErrExceeded
		}
		if cost, ok := visited[id]; ok {
			total += cost
			return nil
		}
		// Mark visited before recursing so a diamond-shaped chain (two
		// sub-rules converging on a shared next state) is walked once;
		// every later visit adds its cached cost to the total again.
		visited[id] = 0

		s := nm.State(id)
		stateCost := 0
		for _, field := range s.Fields() {
			fwd, suf, _ := s.ValueMatcher(field)
			branch := 1
			var matches []bytematch.Match
			if fwd != nil {
				branch += fwd.WildcardStates()
				matches = append(matches, fwd.AllMatches()...)
			}
			if suf != nil {
				branch += suf.WildcardStates()
				matches = append(matches, suf.AllMatches()...)
			}
			stateCost += branch

			next := multiplier * branch
			if next > max {
				return ErrExceeded
			}
			for _, mt := range matches {
				if err := walk(namematch.StateID(mt.Next), next); err != nil {
					return err
				}
			}
		}
		visited[id] = stateCost
		total += stateCost
		return nil
	}

	if err := walk(nm.Start(), 1); err != nil {
		return 0, err
	}
	return total, nil
}
