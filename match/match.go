// Package match implements the array-consistent matching algorithm: it
// walks a namematch.Machine against a flattened event, narrowing a
// candidate set of sub-rule ids at each transition and rejecting any path
// whose fields could only be simultaneously true by reaching into
// different elements of the same source array.
package match

import (
	"github.com/eventruler/eventruler/event"
	"github.com/eventruler/eventruler/namematch"
	"github.com/eventruler/eventruler/subrule"
)

// Result is one sub-rule that fired while matching an event.
type Result struct {
	SubRule subrule.ID
}

// context is one live path through the name machine during a walk.
type context struct {
	state         namematch.StateID
	candidates    subrule.Set
	hasCandidates bool // false at the root: the first narrowing seeds rather than intersects
	membership    []event.ArrayMembership
}

// Walk runs the array-consistent matching algorithm over ev against nm,
// returning every sub-rule id whose full conjunction of fields was
// satisfied by mutually array-consistent event values.
func Walk(nm *namematch.Machine, ev *event.Event) []Result {
	w := &walker{nm: nm, ev: ev, present: ev.PresentPaths()}
	w.visit(context{state: nm.Start()})
	return w.results
}

type walker struct {
	nm      *namematch.Machine
	ev      *event.Event
	present map[string]bool
	results []Result
	seen    map[subrule.ID]bool
}

func (w *walker) record(ids subrule.Set) {
	if w.seen == nil {
		w.seen = make(map[subrule.ID]bool)
	}
	for id := range ids {
		if !w.seen[id] {
			w.seen[id] = true
			w.results = append(w.results, Result{SubRule: id})
		}
	}
}

// narrow applies the seed-then-intersect rule: the first narrowing along
// a path replaces the (absent) candidate set outright, every subsequent
// one intersects against it. This asymmetry is essential: a context with
// zero candidates after its second transition is genuinely dead, but a
// context that simply hasn't narrowed yet is not.
func narrow(ctx context, next subrule.Set) subrule.Set {
	if !ctx.hasCandidates {
		return next
	}
	return ctx.candidates.Intersect(next)
}

func mergeMembership(acc, add []event.ArrayMembership) []event.ArrayMembership {
	out := make([]event.ArrayMembership, len(acc), len(acc)+len(add))
	copy(out, acc)
	seen := make(map[int]bool, len(acc))
	for _, m := range acc {
		seen[m.ArrayID] = true
	}
	for _, m := range add {
		if !seen[m.ArrayID] {
			out = append(out, m)
			seen[m.ArrayID] = true
		}
	}
	return out
}

func (w *walker) visit(ctx context) {
	s := w.nm.State(ctx.state)

	for _, field := range w.ev.Fields {
		matches := s.ValueTransitions(field.Path, field.Value)
		if len(matches) == 0 {
			continue
		}
		if !event.SameArrayElement(ctx.membership, field.Membership) {
			continue
		}
		mergedMembership := mergeMembership(ctx.membership, field.Membership)

		for _, mt := range matches {
			nt := w.nm.NonTerminal(ctx.state, field.Path, mt.Pattern)
			term := w.nm.Terminal(ctx.state, field.Path, mt.Pattern)

			if fired := narrow(ctx, term); fired.Len() > 0 {
				w.record(fired)
			}

			next := narrow(ctx, nt)
			if next.Len() == 0 {
				continue
			}
			w.visit(context{
				state:         namematch.StateID(mt.Next),
				candidates:    next,
				hasCandidates: true,
				membership:    mergedMembership,
			})
		}
	}

	for _, at := range s.AbsenceTransitions(w.present) {
		nt := w.nm.NonTerminalAbsence(ctx.state, at.Field)
		term := w.nm.TerminalAbsence(ctx.state, at.Field)

		if fired := narrow(ctx, term); fired.Len() > 0 {
			w.record(fired)
		}

		next := narrow(ctx, nt)
		if next.Len() == 0 {
			continue
		}
		w.visit(context{
			state:         at.Next,
			candidates:    next,
			hasCandidates: true,
			membership:    ctx.membership,
		})
	}
}
