// Package fixedn provides the fixed-point numeric type used throughout the
// billing engine. All contract pricing is computed in 64.64 fixed point
// (64 integer bits, 64 fractional bits) so that costs in milli-USD and their
// conversion to native token amounts never touch a float.
package fixedn

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Fractional is the number of fractional bits of a Fixed64 value.
const Fractional = 64

// Fixed64 is an unsigned 64.64 fixed-point number backed by a 256-bit
// integer. All quantities priced by this engine (USD costs, token amounts,
// resource units) are non-negative, so no sign bit is carried; arithmetic
// that would otherwise underflow saturates to zero, mirroring the
// checked_sub(...).unwrap_or(0) pattern the original pallet uses throughout
// billing.rs.
type Fixed64 struct {
	val uint256.Int
}

// Zero returns the additive identity.
func Zero() Fixed64 {
	return Fixed64{}
}

// FromUint64 builds a Fixed64 out of an integer value with no fractional part.
func FromUint64(v uint64) Fixed64 {
	var f Fixed64
	f.val.SetUint64(v)
	f.val.Lsh(&f.val, Fractional)
	return f
}

// FromRatio builds a Fixed64 representing num/den, truncating any
// precision lost beyond 64 fractional bits.
func FromRatio(num, den uint64) Fixed64 {
	if den == 0 {
		return Zero()
	}
	n := new(big.Int).SetUint64(num)
	n.Lsh(n, Fractional)
	n.Div(n, new(big.Int).SetUint64(den))
	var f Fixed64
	f.val.SetFromBig(n)
	return f
}

// Add returns a+b.
func (a Fixed64) Add(b Fixed64) Fixed64 {
	var out Fixed64
	if out.val.AddOverflow(&a.val, &b.val) {
		out.val = *uint256.NewInt(0).Not(uint256.NewInt(0)) // saturate to max
	}
	return out
}

// Sub returns a-b, saturating to zero when b > a (checked_sub(...).unwrap_or(0)
// in the original pallet).
func (a Fixed64) Sub(b Fixed64) Fixed64 {
	if a.val.Lt(&b.val) {
		return Zero()
	}
	var out Fixed64
	out.val.Sub(&a.val, &b.val)
	return out
}

// Mul returns a*b, rounded down to the nearest representable 64.64 value.
// Intermediate products are computed with arbitrary precision to avoid the
// 256-bit overflow a naive uint256 multiply would hit once both operands
// carry a 64-bit fractional part.
func (a Fixed64) Mul(b Fixed64) Fixed64 {
	x := a.val.ToBig()
	y := b.val.ToBig()
	p := new(big.Int).Mul(x, y)
	p.Rsh(p, Fractional)
	var out Fixed64
	out.val.SetFromBig(p)
	return out
}

// MulUint64 returns a*n where n has no fractional part.
func (a Fixed64) MulUint64(n uint64) Fixed64 {
	return a.Mul(FromUint64(n))
}

// DivUint64 returns a/n, truncated.
func (a Fixed64) DivUint64(n uint64) Fixed64 {
	if n == 0 {
		return Zero()
	}
	var out Fixed64
	out.val.Div(&a.val, uint256.NewInt(n))
	return out
}

// Div returns a/b, truncated, in 64.64 fixed point. Dividing by zero
// returns Zero rather than panicking, since every caller in this engine
// treats "no price" as its own explicit error path before reaching here.
func (a Fixed64) Div(b Fixed64) Fixed64 {
	if b.IsZero() {
		return Zero()
	}
	x := a.val.ToBig()
	x.Lsh(x, Fractional)
	y := b.val.ToBig()
	x.Div(x, y)
	var out Fixed64
	out.val.SetFromBig(x)
	return out
}

// MulPercent returns a scaled by pct/100 (pct in [0,100]).
func (a Fixed64) MulPercent(pct uint8) Fixed64 {
	return a.MulUint64(uint64(pct)).DivUint64(100)
}

// Cmp compares a and b, returning -1, 0 or 1.
func (a Fixed64) Cmp(b Fixed64) int {
	return a.val.Cmp(&b.val)
}

// IsZero reports whether the value is exactly zero.
func (a Fixed64) IsZero() bool {
	return a.val.IsZero()
}

// GreaterThan reports whether a > b.
func (a Fixed64) GreaterThan(b Fixed64) bool {
	return a.Cmp(b) > 0
}

// GreaterOrEqual reports whether a >= b.
func (a Fixed64) GreaterOrEqual(b Fixed64) bool {
	return a.Cmp(b) >= 0
}

// Min returns the smaller of a and b.
func Min(a, b Fixed64) Fixed64 {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Ceil rounds the value up to the nearest integer and returns it as a
// uint64. The billing engine uses it where a fixed-point cost becomes an
// integer amount; the conversion to token units truncates with Floor instead.
func (a Fixed64) Ceil() uint64 {
	one := new(big.Int).Lsh(big.NewInt(1), Fractional)
	v := a.val.ToBig()
	sum := new(big.Int).Add(v, new(big.Int).Sub(one, big.NewInt(1)))
	sum.Rsh(sum, Fractional)
	if !sum.IsUint64() {
		return ^uint64(0)
	}
	return sum.Uint64()
}

// Floor truncates the fractional part and returns the integer value.
func (a Fixed64) Floor() uint64 {
	v := new(big.Int).Rsh(a.val.ToBig(), Fractional)
	if !v.IsUint64() {
		return ^uint64(0)
	}
	return v.Uint64()
}

// String renders the value as an integer.fractional decimal string, mainly
// for logging.
func (a Fixed64) String() string {
	v := a.val.ToBig()
	denom := new(big.Int).Lsh(big.NewInt(1), Fractional)
	intPart := new(big.Int).Div(v, denom)
	fracPart := new(big.Int).Mod(v, denom)
	if fracPart.Sign() == 0 {
		return intPart.String()
	}
	frac := new(big.Rat).SetFrac(fracPart, denom)
	return fmt.Sprintf("%s.%s", intPart.String(), frac.FloatString(8)[2:])
}
