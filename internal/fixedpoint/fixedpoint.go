// Package fixedpoint implements deterministic unsigned 18-decimal fixed-point
// arithmetic on math/big integers, bounded to 256 bits. All operations truncate
// toward zero and are bit-for-bit reproducible for identical inputs.
package fixedpoint

import (
	"errors"
	"math/big"
)

// Decimals is the canonical fixed-point precision.
const Decimals = 18

var (
	// ErrOverflow reports a result or intermediate exceeding 256 bits.
	ErrOverflow = errors.New("fixedpoint: overflow")
	// ErrDivisionByZero reports a zero divisor.
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
	// ErrInvalidDomain reports an input outside an operation's domain.
	ErrInvalidDomain = errors.New("fixedpoint: invalid domain")
)

var (
	// One is the fixed-point representation of 1 (10^18).
	One = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

	two    = big.NewInt(2)
	twoOne = new(big.Int).Mul(One, two)

	// ln2 = 0.693147180559945309 scaled by 10^18.
	ln2 = big.NewInt(693_147_180_559_945_309)

	guard    = big.NewInt(1_000_000_000)
	guardOne = new(big.Int).Mul(One, guard)
	guardTwo = new(big.Int).Mul(twoOne, guard)

	// expInputCap bounds Exp inputs; e^136 already exceeds the representable
	// range, so anything above is rejected before the series is evaluated.
	expInputCap = new(big.Int).Mul(big.NewInt(136), One)
)

const maxBits = 256

func fits(x *big.Int) bool { return x.BitLen() <= maxBits }

// Mul returns a*b truncated to fixed-point precision. The raw product must fit
// in 256 bits, matching unsigned on-ledger multiplication semantics.
func Mul(a, b *big.Int) (*big.Int, error) {
	if a.Sign() < 0 || b.Sign() < 0 {
		return nil, ErrInvalidDomain
	}
	raw := new(big.Int).Mul(a, b)
	if !fits(raw) {
		return nil, ErrOverflow
	}
	return raw.Quo(raw, One), nil
}

// Div returns a/b at fixed-point precision with truncating division.
func Div(a, b *big.Int) (*big.Int, error) {
	if a.Sign() < 0 || b.Sign() < 0 {
		return nil, ErrInvalidDomain
	}
	if b.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	raw := new(big.Int).Mul(a, One)
	if !fits(raw) {
		return nil, ErrOverflow
	}
	return raw.Quo(raw, b), nil
}

// Sqrt returns the fixed-point square root of x.
func Sqrt(x *big.Int) (*big.Int, error) {
	if x.Sign() < 0 {
		return nil, ErrInvalidDomain
	}
	scaled := new(big.Int).Mul(x, One)
	if !fits(scaled) {
		return nil, ErrOverflow
	}
	return scaled.Sqrt(scaled), nil
}

// GeometricMean returns sqrt(a*b). The product of two 18-decimal values is
// 36-decimal scaled, so the integer square root lands back on 18 decimals
// exactly; no log/exp round-trip error is introduced.
func GeometricMean(a, b *big.Int) (*big.Int, error) {
	if a.Sign() < 0 || b.Sign() < 0 {
		return nil, ErrInvalidDomain
	}
	raw := new(big.Int).Mul(a, b)
	if !fits(raw) {
		return nil, ErrOverflow
	}
	return raw.Sqrt(raw), nil
}

// Ln returns the natural logarithm of x. The result is a signed fixed-point
// value: inputs below One yield negative logarithms. Domain is x > 0.
func Ln(x *big.Int) (*big.Int, error) {
	if x.Sign() <= 0 {
		return nil, ErrInvalidDomain
	}
	l2 := log2(x)
	l2.Mul(l2, ln2)
	return l2.Quo(l2, One), nil
}

// log2 computes the base-2 logarithm of a positive fixed-point value using
// iterated squaring on the mantissa. The mantissa loop runs with nine extra
// guard digits so truncation noise stays below the last returned bit.
func log2(x *big.Int) *big.Int {
	y := new(big.Int).Set(x)
	n := int64(0)
	for y.Cmp(twoOne) >= 0 {
		y.Quo(y, two)
		n++
	}
	for y.Cmp(One) < 0 {
		y.Mul(y, two)
		n--
	}

	// Lift the mantissa from 10^18 to 10^27 scale for the squaring loop.
	y.Mul(y, guard)
	result := new(big.Int).Mul(big.NewInt(n), One)
	delta := new(big.Int).Quo(One, two)
	for i := 0; i < 60 && delta.Sign() > 0; i++ {
		y.Mul(y, y)
		y.Quo(y, guardOne)
		if y.Cmp(guardTwo) >= 0 {
			y.Quo(y, two)
			result.Add(result, delta)
		}
		delta.Quo(delta, two)
	}
	return result
}

// Exp returns e^x for a signed fixed-point exponent. Results that would not
// fit the 256-bit unsigned range fail with ErrInvalidDomain.
func Exp(x *big.Int) (*big.Int, error) {
	neg := x.Sign() < 0
	ax := new(big.Int).Abs(x)
	if ax.Cmp(expInputCap) > 0 {
		if neg {
			// e^-x underflows below one representable unit.
			return big.NewInt(0), nil
		}
		return nil, ErrInvalidDomain
	}

	// Range reduction: x = k*ln2 + r with 0 <= r < ln2, then e^x = 2^k * e^r.
	k := new(big.Int).Quo(ax, ln2)
	r := new(big.Int).Rem(ax, ln2)
	er := expSeries(r)

	res := er.Lsh(er, uint(k.Uint64()))
	if neg {
		inv := new(big.Int).Mul(One, One)
		return inv.Quo(inv, res), nil
	}
	if !fits(res) {
		return nil, ErrInvalidDomain
	}
	return res, nil
}

// expSeries evaluates the Maclaurin series of e^r for 0 <= r < ln2. Terms
// shrink by at least ~0.7/i per step, so the loop terminates quickly once a
// term truncates to zero.
func expSeries(r *big.Int) *big.Int {
	sum := new(big.Int).Set(One)
	term := new(big.Int).Set(One)
	for i := int64(1); term.Sign() > 0; i++ {
		term.Mul(term, r)
		term.Quo(term, One)
		term.Quo(term, big.NewInt(i))
		sum.Add(sum, term)
	}
	return sum
}
