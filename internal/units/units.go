// Package units converts between human-readable token amounts and the
// 18-decimal base units the ledgers account in.
package units

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Decimals is the number of fractional digits of every accounted asset.
const Decimals = 18

var (
	// One is 10^18, a single whole token in base units.
	One = uint256.NewInt(1_000_000_000_000_000_000)

	ErrMalformed      = errors.New("units: malformed amount")
	ErrTooManyDecimal = errors.New("units: too many decimal places")
	ErrOverflow       = errors.New("units: amount overflows 256 bits")
)

// Tokens returns n whole tokens in base units.
func Tokens(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), One)
}

// ParseTokens parses a decimal amount such as "7242898.88" into base units.
func ParseTokens(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrMalformed
	}
	whole, frac, hasDot := strings.Cut(s, ".")
	if hasDot && frac == "" || whole == "" && frac == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	if len(frac) > Decimals {
		return nil, fmt.Errorf("%w: %q", ErrTooManyDecimal, s)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", Decimals-len(frac))
	for _, c := range digits {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, s)
		}
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrOverflow, s)
	}
	return v, nil
}

// ParseBaseUnits parses an integer amount already expressed in base units.
func ParseBaseUnits(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrMalformed
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return v, nil
}

// FormatTokens renders base units as a decimal token amount with trailing
// fractional zeros trimmed.
func FormatTokens(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	whole, rem := new(uint256.Int).DivMod(v, One, new(uint256.Int))
	if rem.IsZero() {
		return whole.Dec()
	}
	frac := rem.Dec()
	frac = strings.Repeat("0", Decimals-len(frac)) + frac
	return whole.Dec() + "." + strings.TrimRight(frac, "0")
}
