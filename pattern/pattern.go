// Package pattern defines the tagged pattern variants the byte machine
// compiles against, and the input-character parser that turns a pattern's
// value string into the sequence the byte machine walks.
package pattern

import (
	"encoding/json"
	"fmt"

	"github.com/eventruler/eventruler/numeric"
)

// Kind identifies one of the pattern variants the automaton admits.
type Kind uint8

const (
	Exact Kind = iota
	Prefix
	Suffix
	EqualsIgnoreCase
	Wildcard
	NumericEQ
	NumericRange
	AnythingBut
	AnythingButIgnoreCase
	AnythingButPrefix
	AnythingButSuffix
	Exists
	Absent
	numKinds
)

func (k Kind) String() string {
	switch k {
	case Exact:
		return "Exact"
	case Prefix:
		return "Prefix"
	case Suffix:
		return "Suffix"
	case EqualsIgnoreCase:
		return "EqualsIgnoreCase"
	case Wildcard:
		return "Wildcard"
	case NumericEQ:
		return "NumericEQ"
	case NumericRange:
		return "NumericRange"
	case AnythingBut:
		return "AnythingBut"
	case AnythingButIgnoreCase:
		return "AnythingButIgnoreCase"
	case AnythingButPrefix:
		return "AnythingButPrefix"
	case AnythingButSuffix:
		return "AnythingButSuffix"
	case Exists:
		return "Exists"
	case Absent:
		return "Absent"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Bound is one end of a NumericRange pattern.
type Bound struct {
	Value string // canonical 14-hex-digit form, or CIDRWidth*2 hex digits for a CIDR range
	Open  bool   // true = exclusive
}

// Pattern is an immutable, hashable tagged variant. Two Patterns
// constructed from logically-equal inputs produce the same Key(), which
// the byte machine uses to dedup match nodes.
type Pattern struct {
	Kind Kind

	// Text holds the JSON-quoted payload for Exact (bare JSON text when
	// built by NewExactRaw), EqualsIgnoreCase and Wildcard; the unbalanced
	// quoted fragment for Prefix/Suffix (see PrefixText/SuffixText); or the
	// canonical numeric form for NumericEQ.
	Text string

	// Low/High bound NumericRange patterns; IsCIDR marks ranges decoded
	// from a CIDR literal, whose bounds are CIDRWidth*2 hex digits (4 or
	// 16 bytes) rather than the 14-digit numeric canonical form, and
	// whose event-side value must be decoded as an IP literal rather than
	// a number before comparison (see bytematch.inRange/canonicalizeIP).
	Low, High Bound
	IsCIDR    bool
	CIDRWidth int // address width in bytes (4 or 16), set iff IsCIDR

	// Forbidden holds the payload set for AnythingBut and its variants:
	// each entry is in the same textual form as the corresponding
	// positive kind (quoted strings, or canonical numeric forms).
	Forbidden []string
}

// Key returns a string that is equal for two Patterns iff they are
// logically equal, used by the byte machine to canonicalize match nodes.
func (p Pattern) Key() string {
	switch p.Kind {
	case NumericRange:
		lo := "(" + p.Low.Value
		if !p.Low.Open {
			lo = "[" + p.Low.Value
		}
		hi := p.High.Value + ")"
		if !p.High.Open {
			hi = p.High.Value + "]"
		}
		return fmt.Sprintf("%s:%s,%s", p.Kind, lo, hi)
	case AnythingBut, AnythingButIgnoreCase, AnythingButPrefix, AnythingButSuffix:
		b, _ := json.Marshal(p.Forbidden)
		return fmt.Sprintf("%s:%s", p.Kind, b)
	case Exists, Absent:
		return p.Kind.String()
	default:
		return fmt.Sprintf("%s:%s", p.Kind, p.Text)
	}
}

// Quote renders a raw string value in the JSON-quoted form patterns store
// string payloads in.
func Quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// PrefixText renders value as the leading fragment of a quoted string
// that a PREFIX pattern matches against: an opening quote followed by
// value's quoted-escaped body, with no closing quote (a prefix of a
// quoted string is not itself balanced).
func PrefixText(value string) string {
	q := Quote(value)
	return q[:len(q)-1]
}

// SuffixText renders value as the trailing fragment of a quoted string a
// SUFFIX pattern matches against: value's quoted-escaped body followed by
// a closing quote, with no opening quote. Callers reverse this (and the
// candidate value) before walking the byte machine.
func SuffixText(value string) string {
	q := Quote(value)
	return q[1:]
}

// NewExact builds an EXACT pattern from a raw (unquoted) string value.
func NewExact(value string) Pattern {
	return Pattern{Kind: Exact, Text: Quote(value)}
}

// NewExactRaw builds an EXACT pattern whose Text is text verbatim, with no
// JSON quoting. Used for non-string scalar leaves (numbers, booleans,
// null), whose event-side Field.Value is the bare JSON text, not a quoted
// string (see event.Flatten).
func NewExactRaw(text string) Pattern {
	return Pattern{Kind: Exact, Text: text}
}

// NewPrefix builds a PREFIX pattern from a raw string value.
func NewPrefix(value string) Pattern {
	return Pattern{Kind: Prefix, Text: PrefixText(value)}
}

// NewSuffix builds a SUFFIX pattern from a raw string value.
func NewSuffix(value string) Pattern {
	return Pattern{Kind: Suffix, Text: SuffixText(value)}
}

// NewEqualsIgnoreCase builds an EQUALS_IGNORE_CASE pattern.
func NewEqualsIgnoreCase(value string) Pattern {
	return Pattern{Kind: EqualsIgnoreCase, Text: Quote(value)}
}

// NewWildcard builds a WILDCARD pattern; value is the raw (unescaped at
// the JSON layer, still carrying '*' and '\*'/'\\' escapes) wildcard text.
func NewWildcard(value string) Pattern {
	return Pattern{Kind: Wildcard, Text: Quote(value)}
}

// NewNumericEQ builds a NUMERIC_EQ pattern from a double, canonicalizing
// it per the numeric package's contract.
func NewNumericEQ(x float64) (Pattern, error) {
	c, err := numeric.Canon(x)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{Kind: NumericEQ, Text: c}, nil
}

// NewNumericRange builds a NUMERIC_RANGE pattern from two doubles and
// their openness. Either bound may be omitted by passing hasLow/hasHigh
// false, in which case the omitted bound is treated as unbounded.
func NewNumericRange(lo float64, loOpen, hasLow bool, hi float64, hiOpen, hasHigh bool) (Pattern, error) {
	p := Pattern{Kind: NumericRange}
	if hasLow {
		c, err := numeric.Canon(lo)
		if err != nil {
			return Pattern{}, err
		}
		p.Low = Bound{Value: c, Open: loOpen}
	} else {
		p.Low = Bound{Value: fmt.Sprintf("%014X", 0), Open: false}
	}
	if hasHigh {
		c, err := numeric.Canon(hi)
		if err != nil {
			return Pattern{}, err
		}
		p.High = Bound{Value: c, Open: hiOpen}
	} else {
		p.High = Bound{Value: fmt.Sprintf("%014X", uint64(1)<<56-1), Open: false}
	}
	return p, nil
}

// NewExists builds an EXISTS pattern (no payload).
func NewExists() Pattern { return Pattern{Kind: Exists} }

// NewAbsent builds an ABSENT pattern (no payload); the name machine, not
// the byte machine, registers this kind.
func NewAbsent() Pattern { return Pattern{Kind: Absent} }

// IsNumeric reports whether a pattern kind is matched against the
// canonical numeric encoding of the event value rather than its raw
// string form.
func (k Kind) IsNumeric() bool {
	return k == NumericEQ || k == NumericRange
}
