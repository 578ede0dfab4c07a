// Package fixedpoint implements 18-decimal fixed point arithmetic on uint256 with
// explicit rounding direction, matching the vault-side math that settles swaps.
package fixedpoint

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/holiman/uint256"
)

// Decimals is the precision of every fixed point value.
const Decimals = 18

var (
	// One is 1.0 in fixed point.
	One = uint256.NewInt(1e18)
	// MaxPowRelativeError bounds the relative error of Pow, in fixed point (1e-14).
	MaxPowRelativeError = uint256.NewInt(10000)

	scales [Decimals + 1]*uint256.Int

	// ErrOverflow is returned when an intermediate value does not fit in 256 bits.
	ErrOverflow = errors.New("fixed point overflow")
	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("fixed point underflow")
	// ErrZeroDivision is returned on division by zero.
	ErrZeroDivision = errors.New("fixed point division by zero")
	// ErrUnsupportedDecimals is returned for tokens with more than 18 decimals.
	ErrUnsupportedDecimals = errors.New("unsupported token decimals")
)

func init() {
	scales[0] = uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := 1; i < len(scales); i++ {
		scales[i] = new(uint256.Int).Mul(scales[i-1], ten)
	}
}

func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	if a.Lt(b) {
		return nil, fmt.Errorf("%w: %s - %s", ErrUnderflow, a.Dec(), b.Dec())
	}
	return new(uint256.Int).Sub(a, b), nil
}

// MulDown returns a*b rounded down.
func MulDown(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return z.Div(z, One), nil
}

// MulUp returns a*b rounded up.
func MulUp(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	if z.IsZero() {
		return z, nil
	}
	z.SubUint64(z, 1)
	z.Div(z, One)
	return z.AddUint64(z, 1), nil
}

// DivDown returns a/b rounded down.
func DivDown(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrZeroDivision
	}
	z, overflow := new(uint256.Int).MulOverflow(a, One)
	if overflow {
		return nil, ErrOverflow
	}
	return z.Div(z, b), nil
}

// DivUp returns a/b rounded up.
func DivUp(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrZeroDivision
	}
	if a.IsZero() {
		return new(uint256.Int), nil
	}
	z, overflow := new(uint256.Int).MulOverflow(a, One)
	if overflow {
		return nil, ErrOverflow
	}
	z.SubUint64(z, 1)
	z.Div(z, b)
	return z.AddUint64(z, 1), nil
}

// Complement returns 1-x, clamped at zero.
func Complement(x *uint256.Int) *uint256.Int {
	if x.Cmp(One) >= 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(One, x)
}

var (
	two  = uint256.NewInt(2e18)
	four = uint256.NewInt(4e18)
)

// PowDown returns x^y rounded down. Exponents of one, two and four are exact;
// anything else goes through the log/exp series and is lowered by its maximum
// relative error.
func PowDown(x, y *uint256.Int) (*uint256.Int, error) {
	switch {
	case y.Eq(One):
		return new(uint256.Int).Set(x), nil
	case y.Eq(two):
		return MulDown(x, x)
	case y.Eq(four):
		square, err := MulDown(x, x)
		if err != nil {
			return nil, err
		}
		return MulDown(square, square)
	}
	raw, maxErr, err := pow(x, y)
	if err != nil {
		return nil, err
	}
	if raw.Lt(maxErr) {
		return new(uint256.Int), nil
	}
	return raw.Sub(raw, maxErr), nil
}

// PowUp returns x^y rounded up, the mirror of PowDown.
func PowUp(x, y *uint256.Int) (*uint256.Int, error) {
	switch {
	case y.Eq(One):
		return new(uint256.Int).Set(x), nil
	case y.Eq(two):
		return MulUp(x, x)
	case y.Eq(four):
		square, err := MulUp(x, x)
		if err != nil {
			return nil, err
		}
		return MulUp(square, square)
	}
	raw, maxErr, err := pow(x, y)
	if err != nil {
		return nil, err
	}
	return Add(raw, maxErr)
}

func pow(x, y *uint256.Int) (raw, maxErr *uint256.Int, err error) {
	if raw, err = logExpPow(x, y); err != nil {
		return nil, nil, err
	}
	if maxErr, err = MulUp(raw, MaxPowRelativeError); err != nil {
		return nil, nil, err
	}
	return raw, maxErr.AddUint64(maxErr, 1), nil
}

// SqrtUp returns the square root of a fixed point value, rounded up.
func SqrtUp(x *uint256.Int) (*uint256.Int, error) {
	scaled, overflow := new(uint256.Int).MulOverflow(x, One)
	if overflow {
		return nil, ErrOverflow
	}
	root := new(uint256.Int).Sqrt(scaled)
	if new(uint256.Int).Mul(root, root).Lt(scaled) {
		root.AddUint64(root, 1)
	}
	return root, nil
}

// FromFloat converts a float to fixed point, truncating below 1e-18.
func FromFloat(v float64) (*uint256.Int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return nil, fmt.Errorf("%w: cannot represent %g", ErrOverflow, v)
	}
	f := new(big.Float).SetFloat64(v)
	f.Mul(f, new(big.Float).SetInt(One.ToBig()))
	i, _ := f.Int(nil)
	z, overflow := uint256.FromBig(i)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// ToFloat converts a fixed point value to float.
func ToFloat(x *uint256.Int) float64 {
	f := new(big.Float).SetInt(x.ToBig())
	f.Quo(f, new(big.Float).SetInt(One.ToBig()))
	v, _ := f.Float64()
	return v
}

// Upscale converts a raw token amount with the given decimals to fixed point.
func Upscale(raw *big.Int, decimals uint8) (*uint256.Int, error) {
	if decimals > Decimals {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDecimals, decimals)
	}
	if raw == nil || raw.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative or nil amount", ErrUnderflow)
	}
	z, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, ErrOverflow
	}
	z, overflow = z.MulOverflow(z, scales[Decimals-decimals])
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// DownscaleDown converts a fixed point value back to raw token units, rounding down.
func DownscaleDown(x *uint256.Int, decimals uint8) *big.Int {
	z := new(uint256.Int).Div(x, scales[Decimals-decimals])
	return z.ToBig()
}

// DownscaleUp converts a fixed point value back to raw token units, rounding up.
func DownscaleUp(x *uint256.Int, decimals uint8) *big.Int {
	scale := scales[Decimals-decimals]
	z, rem := new(uint256.Int).DivMod(x, scale, new(uint256.Int))
	if !rem.IsZero() {
		z.AddUint64(z, 1)
	}
	return z.ToBig()
}

// Calc chains fixed point operations and keeps the first error, so formulas
// read top to bottom. Once an error is recorded every operation returns zero.
type Calc struct {
	err error
}

// Err returns the first error encountered.
func (c *Calc) Err() error { return c.err }

func (c *Calc) apply(f func(a, b *uint256.Int) (*uint256.Int, error), a, b *uint256.Int) *uint256.Int {
	if c.err != nil {
		return new(uint256.Int)
	}
	z, err := f(a, b)
	if err != nil {
		c.err = err
		return new(uint256.Int)
	}
	return z
}

func (c *Calc) Add(a, b *uint256.Int) *uint256.Int     { return c.apply(Add, a, b) }
func (c *Calc) Sub(a, b *uint256.Int) *uint256.Int     { return c.apply(Sub, a, b) }
func (c *Calc) MulDown(a, b *uint256.Int) *uint256.Int { return c.apply(MulDown, a, b) }
func (c *Calc) MulUp(a, b *uint256.Int) *uint256.Int   { return c.apply(MulUp, a, b) }
func (c *Calc) DivDown(a, b *uint256.Int) *uint256.Int { return c.apply(DivDown, a, b) }
func (c *Calc) DivUp(a, b *uint256.Int) *uint256.Int   { return c.apply(DivUp, a, b) }
func (c *Calc) PowDown(a, b *uint256.Int) *uint256.Int { return c.apply(PowDown, a, b) }
func (c *Calc) PowUp(a, b *uint256.Int) *uint256.Int   { return c.apply(PowUp, a, b) }

// MulInt multiplies a fixed point value by a plain integer.
func (c *Calc) MulInt(a *uint256.Int, n uint64) *uint256.Int {
	return c.apply(func(a, b *uint256.Int) (*uint256.Int, error) {
		z, overflow := new(uint256.Int).MulOverflow(a, b)
		if overflow {
			return nil, ErrOverflow
		}
		return z, nil
	}, a, uint256.NewInt(n))
}

// Div divides rounding up or down.
func (c *Calc) Div(a, b *uint256.Int, roundUp bool) *uint256.Int {
	if roundUp {
		return c.DivUp(a, b)
	}
	return c.DivDown(a, b)
}

// Mul multiplies rounding up or down.
func (c *Calc) Mul(a, b *uint256.Int, roundUp bool) *uint256.Int {
	if roundUp {
		return c.MulUp(a, b)
	}
	return c.MulDown(a, b)
}

// SqrtUp is the chained form of SqrtUp.
func (c *Calc) SqrtUp(a *uint256.Int) *uint256.Int {
	return c.apply(func(a, _ *uint256.Int) (*uint256.Int, error) { return SqrtUp(a) }, a, nil)
}
