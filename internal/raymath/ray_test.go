package raymath

import (
	"math/big"
	"testing"
)

func ray(f int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(f), Ray)
}

func TestRayMul_Basic(t *testing.T) {
	// 2.0 * 3.0 = 6.0 in ray units
	got := RayMul(ray(2), ray(3))
	if got.Cmp(ray(6)) != 0 {
		t.Errorf("expected 6 ray, got %s", got)
	}
}

func TestRayMul_ZeroOperand(t *testing.T) {
	if got := RayMul(ray(5), new(big.Int)); got.Sign() != 0 {
		t.Errorf("expected 0 for zero operand, got %s", got)
	}
	if got := RayMul(nil, ray(5)); got.Sign() != 0 {
		t.Errorf("expected 0 for nil operand, got %s", got)
	}
}

func TestRayMul_HalfUpRounding(t *testing.T) {
	// 1 * 0.5 ray-units of the smallest step: (1 * halfRay + halfRay) / RAY = 1
	half := new(big.Int).Rsh(new(big.Int).Set(Ray), 1)
	got := RayMul(big.NewInt(1), half)
	if got.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("expected half-up to 1, got %s", got)
	}
}

func TestRayDiv_Basic(t *testing.T) {
	// 6.0 / 3.0 = 2.0
	got := RayDiv(ray(6), ray(3))
	if got.Cmp(ray(2)) != 0 {
		t.Errorf("expected 2 ray, got %s", got)
	}
}

func TestRayDiv_ZeroDivisor(t *testing.T) {
	if got := RayDiv(ray(6), new(big.Int)); got.Sign() != 0 {
		t.Errorf("expected 0 for zero divisor, got %s", got)
	}
}

func TestWadRayConversion(t *testing.T) {
	wad := new(big.Int).Mul(big.NewInt(7), Wad)
	asRay := WadToRay(wad)
	if asRay.Cmp(ray(7)) != 0 {
		t.Errorf("expected 7 ray, got %s", asRay)
	}
	back := RayToWad(asRay)
	if back.Cmp(wad) != 0 {
		t.Errorf("expected round trip to 7 wad, got %s", back)
	}
}

func TestLinearInterest(t *testing.T) {
	// 10% yearly over half a year → 5% in ray units.
	rate := new(big.Int).Div(ray(1), big.NewInt(10))
	halfYear := int64(31536000 / 2)

	got := LinearInterest(rate, 0, halfYear)
	want := new(big.Int).Div(ray(1), big.NewInt(20))
	if got.Cmp(want) != 0 {
		t.Errorf("expected 0.05 ray, got %s", got)
	}
}

func TestLinearInterest_NoElapsedTime(t *testing.T) {
	rate := ray(1)
	if got := LinearInterest(rate, 100, 100); got.Sign() != 0 {
		t.Errorf("expected 0 for t1 == t0, got %s", got)
	}
	if got := LinearInterest(rate, 100, 50); got.Sign() != 0 {
		t.Errorf("expected 0 for t1 < t0, got %s", got)
	}
}

func TestCompoundedInterest_NoElapsedTime(t *testing.T) {
	got := CompoundedInterest(ray(1), 100, 100)
	if got.Cmp(Ray) != 0 {
		t.Errorf("expected RAY (1.0) for t1 <= t0, got %s", got)
	}
}

func TestCompoundedInterest_ExceedsLinear(t *testing.T) {
	// Compounding over a year at 10% must beat simple interest.
	rate := new(big.Int).Div(ray(1), big.NewInt(10))
	year := int64(31536000)

	compounded := CompoundedInterest(rate, 0, year)
	linear := new(big.Int).Add(Ray, LinearInterest(rate, 0, year))
	if compounded.Cmp(linear) <= 0 {
		t.Errorf("expected compounded %s > linear %s", compounded, linear)
	}
}

func TestGrowth(t *testing.T) {
	// 1000 wad at 10% yearly for a full year → 100 wad interest.
	principal := new(big.Int).Mul(big.NewInt(1000), Wad)
	rate := new(big.Int).Div(ray(1), big.NewInt(10))

	got := Growth(principal, rate, 0, 31536000)
	want := new(big.Int).Mul(big.NewInt(100), Wad)
	if got.Cmp(want) != 0 {
		t.Errorf("expected 100 wad, got %s", got)
	}
}

func TestToDecimal(t *testing.T) {
	// 1234500 with 6 implied decimals → 1.2345
	got := ToDecimal(big.NewInt(1234500), 6)
	if got.String() != "1.2345" {
		t.Errorf("expected 1.2345, got %s", got)
	}

	neg := ToDecimal(big.NewInt(-500000), 6)
	if neg.String() != "-0.5" {
		t.Errorf("expected -0.5, got %s", neg)
	}
}

func TestBigFromString_Malformed(t *testing.T) {
	for _, s := range []string{"", "abc", "12.5", "0x10"} {
		if got := BigFromString(s); got.Sign() != 0 {
			t.Errorf("expected 0 for %q, got %s", s, got)
		}
	}
	if got := BigFromString("1000000000000000000000000000"); got.Cmp(Ray) != 0 {
		t.Errorf("expected RAY, got %s", got)
	}
}

func TestCurrentBalance(t *testing.T) {
	// 900 scaled units (6 decimals) at index 1.1 → 990.0 tokens.
	scaled := big.NewInt(900_000_000)
	index := new(big.Int).Add(Ray, new(big.Int).Div(Ray, big.NewInt(10)))

	got := CurrentBalance(scaled, index, 6)
	if got != 990 {
		t.Errorf("expected 990, got %f", got)
	}
}
