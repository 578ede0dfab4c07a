package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// ErrPowOutOfBounds is returned when a base, exponent or x*ln(y) product falls
// outside the domain of the log/exp power function.
var ErrPowOutOfBounds = errors.New("fixed point pow out of bounds")

// Natural log and exponent over signed fixed point, with the vault's constants
// and truncating division, so results match settlement to the wei. Values are
// 18-decimal unless noted; the series run at 20 and 36 decimals.
var (
	one18 = bigPow10(18)
	one20 = bigPow10(20)
	one36 = bigPow10(36)

	maxNaturalExponent = bigMul(big.NewInt(130), one18)
	minNaturalExponent = bigMul(big.NewInt(-41), one18)

	// ln is evaluated at 36 decimals for bases in (0.9, 1.1).
	ln36LowerBound = new(big.Int).Sub(one18, bigPow10(17))
	ln36UpperBound = new(big.Int).Add(one18, bigPow10(17))

	// 2^254 / 1e20
	mildExponentBound = new(big.Int).Quo(new(big.Int).Lsh(big.NewInt(1), 254), one20)

	maxBase = new(big.Int).Lsh(big.NewInt(1), 255)

	// x0 and x1 are 18 decimal with undecimaled e^x; the rest are 20 decimal.
	x0 = bigDec("128000000000000000000")
	a0 = bigDec("38877084059945950922200000000000000000000000000000000000")
	x1 = bigDec("64000000000000000000")
	a1 = bigDec("6235149080811616882910000000")

	expTable = []struct{ x, a *big.Int }{
		{bigDec("3200000000000000000000"), bigDec("7896296018268069516100000000000000")},
		{bigDec("1600000000000000000000"), bigDec("888611052050787263676000000")},
		{bigDec("800000000000000000000"), bigDec("298095798704172827474000")},
		{bigDec("400000000000000000000"), bigDec("5459815003314423907810")},
		{bigDec("200000000000000000000"), bigDec("738905609893065022723")},
		{bigDec("100000000000000000000"), bigDec("271828182845904523536")},
		{bigDec("50000000000000000000"), bigDec("164872127070012814685")},
		{bigDec("25000000000000000000"), bigDec("128402541668774148407")},
		{bigDec("12500000000000000000"), bigDec("113314845306682631683")},
		{bigDec("6250000000000000000"), bigDec("106449445891785942956")},
	}
)

func bigDec(s string) *big.Int {
	z, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("fixedpoint: bad constant " + s)
	}
	return z
}

func bigPow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func bigMul(a, b *big.Int) *big.Int { return new(big.Int).Mul(a, b) }

// quo truncates toward zero.
func quo(a, b *big.Int) *big.Int { return new(big.Int).Quo(a, b) }

// logExpPow returns x^y for 18-decimal x and y.
func logExpPow(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return new(uint256.Int).Set(One), nil
	}
	if x.IsZero() {
		return new(uint256.Int), nil
	}
	bx, by := x.ToBig(), y.ToBig()
	if bx.Cmp(maxBase) >= 0 {
		return nil, fmt.Errorf("%w: base %s", ErrPowOutOfBounds, x.Dec())
	}
	if by.Cmp(mildExponentBound) >= 0 {
		return nil, fmt.Errorf("%w: exponent %s", ErrPowOutOfBounds, y.Dec())
	}

	var logXTimesY *big.Int
	if bx.Cmp(ln36LowerBound) > 0 && bx.Cmp(ln36UpperBound) < 0 {
		l := ln36(bx)
		// (l / 1e18) * y + ((l % 1e18) * y) / 1e18, keeping the extra precision
		logXTimesY = bigMul(quo(l, one18), by)
		logXTimesY.Add(logXTimesY, quo(bigMul(new(big.Int).Rem(l, one18), by), one18))
	} else {
		logXTimesY = bigMul(ln(bx), by)
	}
	logXTimesY = quo(logXTimesY, one18)

	e, err := exp(logXTimesY)
	if err != nil {
		return nil, err
	}
	z, overflow := uint256.FromBig(e)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

func exp(x *big.Int) (*big.Int, error) {
	if x.Cmp(minNaturalExponent) < 0 || x.Cmp(maxNaturalExponent) > 0 {
		return nil, fmt.Errorf("%w: exponent product %s", ErrPowOutOfBounds, x)
	}
	if x.Sign() < 0 {
		// e^-x = 1/e^x
		pos, err := exp(new(big.Int).Neg(x))
		if err != nil {
			return nil, err
		}
		return quo(bigMul(one18, one18), pos), nil
	}

	x = new(big.Int).Set(x)
	firstAN := big.NewInt(1)
	switch {
	case x.Cmp(x0) >= 0:
		x.Sub(x, x0)
		firstAN = a0
	case x.Cmp(x1) >= 0:
		x.Sub(x, x1)
		firstAN = a1
	}

	x.Mul(x, big.NewInt(100))
	product := new(big.Int).Set(one20)
	// x10 and x11 are left to the series.
	for _, c := range expTable[:8] {
		if x.Cmp(c.x) >= 0 {
			x.Sub(x, c.x)
			product = quo(bigMul(product, c.a), one20)
		}
	}

	seriesSum := new(big.Int).Add(one20, x)
	term := new(big.Int).Set(x)
	for k := int64(2); k <= 12; k++ {
		term = quo(quo(bigMul(term, x), one20), big.NewInt(k))
		seriesSum.Add(seriesSum, term)
	}

	z := quo(bigMul(product, seriesSum), one20)
	return quo(z.Mul(z, firstAN), big.NewInt(100)), nil
}

// ln returns the natural log of a positive 18-decimal value.
func ln(a *big.Int) *big.Int {
	if a.Cmp(one18) < 0 {
		return new(big.Int).Neg(ln(quo(bigMul(one18, one18), a)))
	}

	a = new(big.Int).Set(a)
	sum := new(big.Int)
	if a.Cmp(bigMul(a0, one18)) >= 0 {
		a = quo(a, a0)
		sum.Add(sum, x0)
	}
	if a.Cmp(bigMul(a1, one18)) >= 0 {
		a = quo(a, a1)
		sum.Add(sum, x1)
	}

	sum.Mul(sum, big.NewInt(100))
	a.Mul(a, big.NewInt(100))
	for _, c := range expTable {
		if a.Cmp(c.a) >= 0 {
			a = quo(bigMul(a, one20), c.a)
			sum.Add(sum, c.x)
		}
	}

	// ln(a) = 2 * atanh(z), z = (a-1)/(a+1)
	z := quo(bigMul(new(big.Int).Sub(a, one20), one20), new(big.Int).Add(a, one20))
	zSquared := quo(bigMul(z, z), one20)
	num := new(big.Int).Set(z)
	seriesSum := new(big.Int).Set(num)
	for _, k := range []int64{3, 5, 7, 9, 11} {
		num = quo(bigMul(num, zSquared), one20)
		seriesSum.Add(seriesSum, quo(num, big.NewInt(k)))
	}
	seriesSum.Mul(seriesSum, big.NewInt(2))

	return quo(sum.Add(sum, seriesSum), big.NewInt(100))
}

// ln36 returns ln(x) at 36 decimals for x close to one.
func ln36(x *big.Int) *big.Int {
	x = bigMul(x, one18)
	z := quo(bigMul(new(big.Int).Sub(x, one36), one36), new(big.Int).Add(x, one36))
	zSquared := quo(bigMul(z, z), one36)
	num := new(big.Int).Set(z)
	seriesSum := new(big.Int).Set(num)
	for _, k := range []int64{3, 5, 7, 9, 11, 13, 15} {
		num = quo(bigMul(num, zSquared), one36)
		seriesSum.Add(seriesSum, quo(num, big.NewInt(k)))
	}
	return seriesSum.Mul(seriesSum, big.NewInt(2))
}
