package rulecompile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/eventruler/eventruler/cidr"
	"github.com/eventruler/eventruler/pattern"
)

// compileMatchExpr turns one element of a field's match-list array into
// the Patterns it stands for. Strings, bools and null compile to one EXACT
// match against their JSON text; a number compiles to a bare-text EXACT
// plus a NUMERIC_EQ companion; objects select a match kind by their
// single key, per the matcher-key grammar in the project's design doc
// (prefix, suffix, equals-ignore-case, wildcard, exists, cidr, numeric,
// anything-but).
func compileMatchExpr(path string, v interface{}) ([]pattern.Pattern, error) {
	switch t := v.(type) {
	case string:
		return []pattern.Pattern{pattern.NewExact(t)}, nil
	case float64:
		// A number leaf matches both a bare-text EXACT (the event
		// flattener emits numbers unquoted) and its canonical numeric
		// form, so "=" comparisons against differently-formatted
		// literals of the same value still match (spec §4.6).
		eq, err := pattern.NewNumericEQ(t)
		if err != nil {
			return nil, fieldErr(path, err)
		}
		return []pattern.Pattern{pattern.NewExactRaw(formatNumber(t)), eq}, nil
	case bool:
		return []pattern.Pattern{pattern.NewExactRaw(fmt.Sprint(t))}, nil
	case nil:
		return []pattern.Pattern{pattern.NewExactRaw("null")}, nil
	case map[string]interface{}:
		p, err := compileMatchObject(path, t)
		if err != nil {
			return nil, err
		}
		return []pattern.Pattern{p}, nil
	default:
		return nil, fieldErr(path, ErrMalformedValue)
	}
}

func compileMatchObject(path string, obj map[string]interface{}) (pattern.Pattern, error) {
	if len(obj) != 1 {
		return pattern.Pattern{}, fieldErr(path, ErrMalformedValue)
	}
	for key, val := range obj {
		switch key {
		case "prefix":
			s, ok := val.(string)
			if !ok {
				return pattern.Pattern{}, fieldErr(path, ErrMalformedValue)
			}
			return pattern.NewPrefix(s), nil
		case "suffix":
			s, ok := val.(string)
			if !ok {
				return pattern.Pattern{}, fieldErr(path, ErrMalformedValue)
			}
			return pattern.NewSuffix(s), nil
		case "equals-ignore-case":
			s, ok := val.(string)
			if !ok {
				return pattern.Pattern{}, fieldErr(path, ErrMalformedValue)
			}
			return pattern.NewEqualsIgnoreCase(s), nil
		case "wildcard":
			s, ok := val.(string)
			if !ok {
				return pattern.Pattern{}, fieldErr(path, ErrMalformedValue)
			}
			return pattern.NewWildcard(s), nil
		case "exists":
			b, ok := val.(bool)
			if !ok {
				return pattern.Pattern{}, fieldErr(path, ErrMalformedValue)
			}
			if b {
				return pattern.NewExists(), nil
			}
			return pattern.NewAbsent(), nil
		case "cidr":
			s, ok := val.(string)
			if !ok {
				return pattern.Pattern{}, fieldErr(path, ErrMalformedValue)
			}
			return compileCIDR(path, s)
		case "numeric":
			arr, ok := val.([]interface{})
			if !ok {
				return pattern.Pattern{}, fieldErr(path, ErrMalformedValue)
			}
			return compileNumeric(path, arr)
		case "anything-but":
			return compileAnythingBut(path, val)
		default:
			return pattern.Pattern{}, fieldErr(path, ErrUnknownMatchKey)
		}
	}
	panic("unreachable")
}

// formatNumber renders a bare JSON numeral the way its source text would
// have appeared, for EXACT comparison against event values of the same
// literal form.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func compileCIDR(path, s string) (pattern.Pattern, error) {
	r, err := cidr.Decode(s)
	if err != nil {
		return pattern.Pattern{}, fieldErr(path, err)
	}
	p := pattern.Pattern{
		Kind:      pattern.NumericRange,
		Low:       pattern.Bound{Value: r.Floor, Open: r.FloorOpen},
		High:      pattern.Bound{Value: r.Ceiling, Open: r.CeilingOpen},
		IsCIDR:    true,
		CIDRWidth: r.Width,
	}
	return p, nil
}

// compileNumeric handles the ["=", n], [">", lo], ["<=", hi],
// [">", lo, "<=", hi] operator-pair forms.
func compileNumeric(path string, arr []interface{}) (pattern.Pattern, error) {
	if len(arr) == 2 {
		op, ok := arr[0].(string)
		n, nok := arr[1].(float64)
		if !ok || !nok {
			return pattern.Pattern{}, fieldErr(path, ErrMalformedValue)
		}
		if op == "=" {
			return pattern.NewNumericEQ(n)
		}
		return numericBound(path, op, n)
	}
	if len(arr) == 4 {
		lop, lok := arr[0].(string)
		lv, lvok := arr[1].(float64)
		hop, hok := arr[2].(string)
		hv, hvok := arr[3].(float64)
		if !lok || !lvok || !hok || !hvok {
			return pattern.Pattern{}, fieldErr(path, ErrMalformedValue)
		}
		loOpen, err := isOpenLow(lop)
		if err != nil {
			return pattern.Pattern{}, fieldErr(path, err)
		}
		hiOpen, err := isOpenHigh(hop)
		if err != nil {
			return pattern.Pattern{}, fieldErr(path, err)
		}
		return pattern.NewNumericRange(lv, loOpen, true, hv, hiOpen, true)
	}
	return pattern.Pattern{}, fieldErr(path, ErrMalformedValue)
}

func numericBound(path, op string, n float64) (pattern.Pattern, error) {
	switch op {
	case ">":
		return pattern.NewNumericRange(n, true, true, 0, false, false)
	case ">=":
		return pattern.NewNumericRange(n, false, true, 0, false, false)
	case "<":
		return pattern.NewNumericRange(0, false, false, n, true, true)
	case "<=":
		return pattern.NewNumericRange(0, false, false, n, false, true)
	default:
		return pattern.Pattern{}, fieldErr(path, ErrMalformedValue)
	}
}

func isOpenLow(op string) (bool, error) {
	switch op {
	case ">":
		return true, nil
	case ">=":
		return false, nil
	default:
		return false, ErrMalformedValue
	}
}

func isOpenHigh(op string) (bool, error) {
	switch op {
	case "<":
		return true, nil
	case "<=":
		return false, nil
	default:
		return false, ErrMalformedValue
	}
}

func compileAnythingBut(path string, val interface{}) (pattern.Pattern, error) {
	switch t := val.(type) {
	case []interface{}:
		forbidden, err := anythingButValues(path, t)
		if err != nil {
			return pattern.Pattern{}, err
		}
		return pattern.Pattern{Kind: pattern.AnythingBut, Forbidden: forbidden}, nil
	case string:
		return pattern.Pattern{Kind: pattern.AnythingBut, Forbidden: []string{pattern.Quote(t)}}, nil
	case float64:
		c, err := numericCanonText(t)
		if err != nil {
			return pattern.Pattern{}, fieldErr(path, err)
		}
		return pattern.Pattern{Kind: pattern.AnythingBut, Forbidden: []string{c}}, nil
	case map[string]interface{}:
		if len(t) != 1 {
			return pattern.Pattern{}, fieldErr(path, ErrMalformedValue)
		}
		for key, inner := range t {
			arr, ok := inner.([]interface{})
			if !ok {
				return pattern.Pattern{}, fieldErr(path, ErrMalformedValue)
			}
			forbidden, err := anythingButValues(path, arr)
			if err != nil {
				return pattern.Pattern{}, err
			}
			switch key {
			case "equals-ignore-case":
				return pattern.Pattern{Kind: pattern.AnythingButIgnoreCase, Forbidden: forbidden}, nil
			case "prefix":
				// PREFIX's unbalanced form (see pattern.PrefixText).
				for i, f := range forbidden {
					forbidden[i] = strings.TrimSuffix(f, `"`)
				}
				return pattern.Pattern{Kind: pattern.AnythingButPrefix, Forbidden: forbidden}, nil
			case "suffix":
				// SUFFIX's unbalanced form (see pattern.SuffixText).
				for i, f := range forbidden {
					forbidden[i] = strings.TrimPrefix(f, `"`)
				}
				return pattern.Pattern{Kind: pattern.AnythingButSuffix, Forbidden: forbidden}, nil
			default:
				return pattern.Pattern{}, fieldErr(path, ErrUnknownMatchKey)
			}
		}
	}
	return pattern.Pattern{}, fieldErr(path, ErrMalformedValue)
}

// numericCanonText returns a numeral's canonical 14-hex-digit text, the
// form ANYTHING_BUT's forbidden set stores numeric entries in.
func numericCanonText(f float64) (string, error) {
	p, err := pattern.NewNumericEQ(f)
	if err != nil {
		return "", err
	}
	return p.Text, nil
}

func anythingButValues(path string, arr []interface{}) ([]string, error) {
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		switch t := v.(type) {
		case string:
			out = append(out, pattern.Quote(t))
		case float64:
			c, err := numericCanonText(t)
			if err != nil {
				return nil, fieldErr(path, err)
			}
			out = append(out, c)
		default:
			return nil, fieldErr(path, ErrMalformedValue)
		}
	}
	return out, nil
}

