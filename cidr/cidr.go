// Package cidr decodes IPv4/IPv6 literals and CIDR blocks into the fixed
// width hex ranges the byte machine's numeric-range machinery expects.
package cidr

import (
	"fmt"
	"math/big"
	"net/netip"
)

// Range is a pair of canonical hex bounds, each independently open or
// closed, describing the set of addresses a CIDR or bare-address pattern
// admits. Floor and Ceiling are upper-case hex strings of Width*2 digits
// (Width is 4 for IPv4, 16 for IPv6).
type Range struct {
	Floor        string
	Ceiling      string
	FloorOpen    bool
	CeilingOpen  bool
	Width        int // address width in bytes: 4 (IPv4) or 16 (IPv6)
}

// Error reports a malformed CIDR or IP literal.
type Error struct {
	Input string
	Cause string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cidr: malformed address %q: %s", e.Input, e.Cause)
}

// Decode parses an IPv4/IPv6 literal with an optional "/prefix" suffix and
// returns the hex range it denotes.
//
// A bare address (no "/prefix") decodes to the half-open range
// [addr, successor(addr)) so that only the exact address matches.
func Decode(s string) (Range, error) {
	prefix, err := parsePrefix(s)
	if err != nil {
		return Range{}, err
	}

	width := 4
	if prefix.Addr().Is6() {
		width = 16
	}

	bits := width * 8
	if prefix.Bits() < 0 || prefix.Bits() > bits {
		return Range{}, &Error{Input: s, Cause: "prefix length exceeds address width"}
	}

	addrInt := addrToBig(prefix.Addr())
	maskedBits := bits - prefix.Bits()

	floor := new(big.Int).Set(addrInt)
	ceil := new(big.Int).Set(addrInt)
	if maskedBits > 0 {
		mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(maskedBits)), big.NewInt(1))
		notMask := new(big.Int).Not(mask)
		floor.And(floor, notMask)
		ceil.Or(ceil, mask)
	}

	isBareAddress := !hasExplicitPrefix(s)
	if isBareAddress {
		succ := new(big.Int).Add(addrInt, big.NewInt(1))
		return Range{
			Floor:       formatHex(floor, width),
			Ceiling:     formatHex(succ, width),
			FloorOpen:   false,
			CeilingOpen: true,
			Width:       width,
		}, nil
	}

	return Range{
		Floor:       formatHex(floor, width),
		Ceiling:     formatHex(ceil, width),
		FloorOpen:   false,
		CeilingOpen: false,
		Width:       width,
	}, nil
}

func hasExplicitPrefix(s string) bool {
	for _, c := range s {
		if c == '/' {
			return true
		}
	}
	return false
}

func parsePrefix(s string) (netip.Prefix, error) {
	if hasExplicitPrefix(s) {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, &Error{Input: s, Cause: err.Error()}
		}
		return p, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, &Error{Input: s, Cause: err.Error()}
	}
	bits := 32
	if addr.Is6() {
		bits = 128
	}
	return netip.PrefixFrom(addr, bits), nil
}

func addrToBig(a netip.Addr) *big.Int {
	b := a.As16()
	if a.Is4() {
		b4 := a.As4()
		return new(big.Int).SetBytes(b4[:])
	}
	return new(big.Int).SetBytes(b[:])
}

func formatHex(n *big.Int, width int) string {
	return fmt.Sprintf("%0*X", width*2, n)
}
