// Package rulecompile turns a rule's JSON body into a set of conjunctive
// sub-rules, each a sorted (dotted path -> pattern list) map ready for
// namematch.Machine to wire up. A rule containing "$or" expands into the
// Cartesian product of its branches; nested "$or" blocks compound this
// recursively.
package rulecompile

import (
	"sort"

	jsoniter "github.com/json-iterator/go"

	"github.com/eventruler/eventruler/pattern"
)

// FieldPattern is one field's compiled alternatives within a sub-rule: the
// field matches if the event value satisfies any entry in Patterns.
type FieldPattern struct {
	Path     string
	Patterns []pattern.Pattern
}

// SubRule is one conjunctive expansion: the event must satisfy every
// FieldPattern, in Fields' order (sorted by Path for a deterministic
// compile across runs).
type SubRule struct {
	Fields []FieldPattern
}

// CompiledRule is a rule compiled into its (possibly several, via $or)
// sub-rules.
type CompiledRule struct {
	Name     string
	SubRules []SubRule
}

// fieldMap accumulates pattern alternatives per dotted path while
// flattening one JSON object (and its $or branches).
type fieldMap map[string][]pattern.Pattern

func (f fieldMap) merge(other fieldMap) fieldMap {
	out := make(fieldMap, len(f)+len(other))
	for k, v := range f {
		out[k] = append(out[k], v...)
	}
	for k, v := range other {
		out[k] = append(out[k], v...)
	}
	return out
}

// Compile parses raw as a JSON object and compiles it into name's
// CompiledRule.
func Compile(name string, raw []byte) (*CompiledRule, error) {
	var root map[string]interface{}
	if err := jsoniter.Unmarshal(raw, &root); err != nil {
		return nil, fieldErr("", err)
	}

	base, branches, err := flatten(root, "")
	if err != nil {
		return nil, err
	}

	combos := []fieldMap{base}
	for _, group := range branches {
		var next []fieldMap
		for _, existing := range combos {
			for _, branch := range group {
				next = append(next, existing.merge(branch))
			}
		}
		combos = next
	}

	subRules := make([]SubRule, 0, len(combos))
	for _, fm := range combos {
		subRules = append(subRules, toSubRule(fm))
	}

	return &CompiledRule{Name: name, SubRules: subRules}, nil
}

func toSubRule(fm fieldMap) SubRule {
	paths := make([]string, 0, len(fm))
	for p := range fm {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	sr := SubRule{Fields: make([]FieldPattern, 0, len(paths))}
	for _, p := range paths {
		sr.Fields = append(sr.Fields, FieldPattern{Path: p, Patterns: fm[p]})
	}
	return sr
}

// flatten walks one JSON object, returning the fields it defines directly
// (base) and, for every "$or" key encountered (at this level or nested
// under a plain object key), one branches group: a list of fieldMaps, one
// per $or array element, each itself fully flattened (including any of
// its own nested $or).
func flatten(node map[string]interface{}, prefix string) (fieldMap, []branchGroup, error) {
	base := make(fieldMap)
	var groups []branchGroup

	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := node[key]
		if key == "$or" {
			group, err := flattenOr(prefix, val)
			if err != nil {
				return nil, nil, err
			}
			groups = append(groups, group)
			continue
		}

		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		switch v := val.(type) {
		case []interface{}:
			if len(v) == 0 {
				return nil, nil, fieldErr(path, ErrEmptyArray)
			}
			for _, item := range v {
				ps, err := compileMatchExpr(path, item)
				if err != nil {
					return nil, nil, err
				}
				base[path] = append(base[path], ps...)
			}
		case map[string]interface{}:
			sub, subGroups, err := flatten(v, path)
			if err != nil {
				return nil, nil, err
			}
			base = base.merge(sub)
			groups = append(groups, subGroups...)
		default:
			return nil, nil, fieldErr(path, ErrNotArray)
		}
	}

	return base, groups, nil
}

// branchGroup is one $or's set of alternative fieldMaps; a SubRule picks
// exactly one branch from each group in the Cartesian product.
type branchGroup []fieldMap

func flattenOr(prefix string, val interface{}) (branchGroup, error) {
	arr, ok := val.([]interface{})
	if !ok || len(arr) == 0 {
		return nil, fieldErr(prefix, ErrEmptyOr)
	}

	var group branchGroup
	for _, elem := range arr {
		obj, ok := elem.(map[string]interface{})
		if !ok {
			return nil, fieldErr(prefix, ErrEmptyOr)
		}
		base, subGroups, err := flatten(obj, prefix)
		if err != nil {
			return nil, err
		}
		// Expand this branch's own nested $or groups into the set of
		// fully-resolved branch field maps before it joins the parent
		// group's alternatives.
		branches := []fieldMap{base}
		for _, sg := range subGroups {
			var next []fieldMap
			for _, existing := range branches {
				for _, b := range sg {
					next = append(next, existing.merge(b))
				}
			}
			branches = next
		}
		group = append(group, branches...)
	}
	return group, nil
}
