// Package raymath implements ray (1e27) and wad (1e18) fixed-point
// arithmetic for interest calculations, following standard lending-protocol
// conventions: half-up rounding on multiply/divide and a three-term Taylor
// expansion for compounded interest.
package raymath

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Scale constants.
var (
	Ray = new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)
	Wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	halfRay = new(big.Int).Rsh(new(big.Int).Set(Ray), 1)
	halfWad = new(big.Int).Rsh(new(big.Int).Set(Wad), 1)

	// wadRayRatio converts between the two scales.
	wadRayRatio = new(big.Int).Exp(big.NewInt(10), big.NewInt(9), nil)

	// SecondsPerYear is the interest-rate denominator.
	SecondsPerYear = big.NewInt(31536000)
)

// RayMul returns round(a*b / RAY), half-up. Returns 0 if either operand is
// nil or zero.
func RayMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil || a.Sign() == 0 || b.Sign() == 0 {
		return new(big.Int)
	}
	r := new(big.Int).Mul(a, b)
	r.Add(r, halfRay)
	return r.Div(r, Ray)
}

// RayDiv returns round(a*RAY / b), half-up. Returns 0 if a is nil or zero,
// or if b is nil or zero.
func RayDiv(a, b *big.Int) *big.Int {
	if a == nil || b == nil || a.Sign() == 0 || b.Sign() == 0 {
		return new(big.Int)
	}
	half := new(big.Int).Rsh(b, 1)
	r := new(big.Int).Mul(a, Ray)
	r.Add(r, half)
	return r.Div(r, b)
}

// WadToRay rescales a wad value to ray precision.
func WadToRay(a *big.Int) *big.Int {
	if a == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(a, wadRayRatio)
}

// RayToWad rescales a ray value to wad precision, half-up.
func RayToWad(a *big.Int) *big.Int {
	if a == nil {
		return new(big.Int)
	}
	half := new(big.Int).Rsh(wadRayRatio, 1)
	r := new(big.Int).Add(a, half)
	return r.Div(r, wadRayRatio)
}

// LinearInterest returns rate * (t1-t0) / SecondsPerYear in ray units.
// Returns 0 when t1 <= t0.
func LinearInterest(rate *big.Int, t0, t1 int64) *big.Int {
	if rate == nil || t1 <= t0 {
		return new(big.Int)
	}
	r := new(big.Int).Mul(rate, big.NewInt(t1-t0))
	return r.Div(r, SecondsPerYear)
}

// CompoundedInterest approximates e^(rate*t) in ray units with a
// three-term Taylor expansion: 1 + rt + (rt)^2/2 + (rt)^3/6.
// Returns RAY (1.0) when t1 <= t0.
func CompoundedInterest(rate *big.Int, t0, t1 int64) *big.Int {
	if rate == nil || t1 <= t0 {
		return new(big.Int).Set(Ray)
	}
	exp := big.NewInt(t1 - t0)

	ratePerSecond := new(big.Int).Div(rate, SecondsPerYear)

	basePowerTwo := RayMul(ratePerSecond, ratePerSecond)
	basePowerThree := RayMul(basePowerTwo, ratePerSecond)

	expMinusOne := new(big.Int).Sub(exp, big.NewInt(1))
	expMinusTwo := new(big.Int).Sub(exp, big.NewInt(2))
	if expMinusTwo.Sign() < 0 {
		expMinusTwo.SetInt64(0)
	}

	secondTerm := new(big.Int).Mul(exp, expMinusOne)
	secondTerm.Mul(secondTerm, basePowerTwo)
	secondTerm.Div(secondTerm, big.NewInt(2))

	thirdTerm := new(big.Int).Mul(exp, expMinusOne)
	thirdTerm.Mul(thirdTerm, expMinusTwo)
	thirdTerm.Mul(thirdTerm, basePowerThree)
	thirdTerm.Div(thirdTerm, big.NewInt(6))

	result := new(big.Int).Set(Ray)
	result.Add(result, new(big.Int).Mul(ratePerSecond, exp))
	result.Add(result, secondTerm)
	return result.Add(result, thirdTerm)
}

// Growth returns the interest earned by a wad principal over [t0, t1] at a
// ray yearly rate, in wad units.
func Growth(principal, rate *big.Int, t0, t1 int64) *big.Int {
	if principal == nil || principal.Sign() == 0 {
		return new(big.Int)
	}
	interest := LinearInterest(rate, t0, t1)
	return RayToWad(RayMul(WadToRay(principal), interest))
}

// ToDecimal converts a scaled integer with an implied decimal count into a
// decimal value, preserving sign. Trailing zero fraction digits are not
// rendered.
func ToDecimal(scaled *big.Int, decimals int32) decimal.Decimal {
	if scaled == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(scaled, -decimals)
}

// BigFromString parses a base-10 integer string. Empty or malformed input
// yields zero, matching the conservative fallback for optional fields.
func BigFromString(s string) *big.Int {
	if s == "" {
		return new(big.Int)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// CurrentBalance projects a scaled balance to its current token amount
// using a ray index, returned in the reserve's decimal units.
func CurrentBalance(scaled, index *big.Int, decimals int32) float64 {
	amount := RayMul(scaled, index)
	f, _ := ToDecimal(amount, decimals).Float64()
	return f
}
