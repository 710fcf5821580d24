// Package event flattens a JSON event into the sorted list of (path,
// value) fields the name machine walks, tracking which array elements
// each field descended through so the matcher can enforce array
// consistency (see package match).
package event

import (
	"fmt"
	"sort"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/eventruler/eventruler/pattern"
)

// ArrayMembership records one ancestor array a field descended through:
// ArrayID is a per-event counter identifying the array instance, Index is
// the element position within it.
type ArrayMembership struct {
	ArrayID int
	Index   int
}

// Field is one flattened (path, value) pair together with the chain of
// array memberships it passed through on the way from the event root.
type Field struct {
	Path       string
	Value      string // quoted for strings, bare JSON text for numbers/bool/null
	Membership []ArrayMembership
}

// SameArrayElement reports whether a and b could have come from the same
// conjunction of array elements: for every array the two fields share an
// ancestor membership in, the element index must agree.
func SameArrayElement(a, b []ArrayMembership) bool {
	for _, ma := range a {
		for _, mb := range b {
			if ma.ArrayID == mb.ArrayID && ma.Index != mb.Index {
				return false
			}
		}
	}
	return true
}

// Event is a flattened JSON event: Fields is sorted by Path, ties broken
// by first array appearance, matching the order the name machine expects
// to walk them in.
type Event struct {
	Fields []Field
}

// Flatten parses raw as a JSON object and flattens it into an Event.
func Flatten(raw []byte) (*Event, error) {
	var root interface{}
	if err := jsoniter.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("event: invalid JSON: %w", err)
	}
	obj, ok := root.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("event: root must be a JSON object")
	}

	w := &walker{}
	w.walkObject(obj, "", nil)

	sort.SliceStable(w.fields, func(i, j int) bool {
		return w.fields[i].Path < w.fields[j].Path
	})

	return &Event{Fields: w.fields}, nil
}

// PresentPaths returns the set of distinct dotted paths the event has a
// value at, for the name machine's absence checks ({"exists": false}).
func (e *Event) PresentPaths() map[string]bool {
	out := make(map[string]bool, len(e.Fields))
	for _, f := range e.Fields {
		out[f.Path] = true
	}
	return out
}

type walker struct {
	fields     []Field
	arrayCount int
}

func (w *walker) walkObject(obj map[string]interface{}, prefix string, membership []ArrayMembership) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		w.walkValue(obj[k], path, membership)
	}
}

func (w *walker) walkValue(v interface{}, path string, membership []ArrayMembership) {
	switch t := v.(type) {
	case map[string]interface{}:
		w.walkObject(t, path, membership)
	case []interface{}:
		id := w.arrayCount
		w.arrayCount++
		for idx, elem := range t {
			next := make([]ArrayMembership, len(membership), len(membership)+1)
			copy(next, membership)
			next = append(next, ArrayMembership{ArrayID: id, Index: idx})
			w.walkValue(elem, path, next)
		}
	case string:
		w.emit(path, pattern.Quote(t), membership)
	case float64:
		w.emit(path, formatNumber(t), membership)
	case bool:
		w.emit(path, fmt.Sprint(t), membership)
	case nil:
		w.emit(path, "null", membership)
	}
}

func (w *walker) emit(path, value string, membership []ArrayMembership) {
	w.fields = append(w.fields, Field{Path: path, Value: value, Membership: membership})
}

// formatNumber renders a decoded JSON numeral back to text, the form
// bytematch.Machine.TransitionOn expects for values (it canonicalizes
// numerics itself when a NUMERIC_EQ/NUMERIC_RANGE pattern is present).
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
