package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}

func TestRounding(t *testing.T) {
	testCases := []struct {
		name string
		op   func(a, b *uint256.Int) (*uint256.Int, error)
		a, b string
		want string
	}{
		{name: "MulDown exact", op: MulDown, a: "2000000000000000000", b: "3000000000000000000", want: "6000000000000000000"},
		{name: "MulDown truncates", op: MulDown, a: "1", b: "500000000000000000", want: "0"},
		{name: "MulUp rounds up", op: MulUp, a: "1", b: "500000000000000000", want: "1"},
		{name: "MulUp zero", op: MulUp, a: "0", b: "500000000000000000", want: "0"},
		{name: "DivDown truncates", op: DivDown, a: "1000000000000000000", b: "3000000000000000000", want: "333333333333333333"},
		{name: "DivUp rounds up", op: DivUp, a: "1000000000000000000", b: "3000000000000000000", want: "333333333333333334"},
		{name: "DivUp zero numerator", op: DivUp, a: "0", b: "3", want: "0"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.op(fp(tc.a), fp(tc.b))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Dec())
		})
	}
}

func TestErrors(t *testing.T) {
	_, err := DivDown(One, new(uint256.Int))
	assert.ErrorIs(t, err, ErrZeroDivision)

	max := new(uint256.Int).SetAllOne()
	_, err = MulDown(max, max)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Sub(uint256.NewInt(1), uint256.NewInt(2))
	assert.ErrorIs(t, err, ErrUnderflow)

	var c Calc
	z := c.DivUp(One, new(uint256.Int))
	assert.True(t, z.IsZero())
	c.Add(One, One)
	assert.ErrorIs(t, c.Err(), ErrZeroDivision, "the first error must be kept")
}

func TestPow(t *testing.T) {
	testCases := []struct {
		name     string
		x, y     string
		raw      string
		down, up string
	}{
		{
			// true floor is 2755675960631075360
			name: "Wide base",
			x:    "1500000000000000000", y: "2500000000000000000",
			raw:  "2755675960631075352",
			down: "2755675960631047794", up: "2755675960631102910",
		},
		{
			name: "Near one base",
			x:    "950000000000000000", y: "250000000000000000",
			raw:  "987258544901433807",
			down: "987258544901423933", up: "987258544901443681",
		},
		{
			name: "Below one base",
			x:    "900000000000000000", y: "250000000000000000",
			raw:  "974003746425296764",
			down: "974003746425287022", up: "974003746425306506",
		},
		{
			name: "Square root",
			x:    "2000000000000000000", y: "500000000000000000",
			raw:  "1414213562373095047",
			down: "1414213562373080903", up: "1414213562373109191",
		},
		{
			name: "Zero exponent",
			x:    "2000000000000000000", y: "0",
			raw:  "1000000000000000000",
			down: "999999999999989999", up: "1000000000000010001",
		},
		{
			name: "Zero base",
			x:    "0", y: "300000000000000000",
			raw:  "0",
			down: "0", up: "1",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := logExpPow(fp(tc.x), fp(tc.y))
			require.NoError(t, err)
			assert.Equal(t, tc.raw, raw.Dec())

			down, err := PowDown(fp(tc.x), fp(tc.y))
			require.NoError(t, err)
			assert.Equal(t, tc.down, down.Dec())

			up, err := PowUp(fp(tc.x), fp(tc.y))
			require.NoError(t, err)
			assert.Equal(t, tc.up, up.Dec())
		})
	}
}

func TestPowIntegerExponents(t *testing.T) {
	x := fp("1200000000000000000")

	got, err := PowDown(x, One)
	require.NoError(t, err)
	assert.Equal(t, x.Dec(), got.Dec())

	got, err = PowDown(x, fp("2000000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "1440000000000000000", got.Dec())

	// 0.8/0.2 weight ratio
	got, err = PowDown(x, fp("4000000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "2073600000000000000", got.Dec())

	got, err = PowUp(fp("1000000000000000001"), fp("4000000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000007", got.Dec())
}

func TestPowOutOfBounds(t *testing.T) {
	testCases := []struct {
		name string
		x, y string
	}{
		{name: "Exponent product too large", x: "1000000000000000000000", y: "100000000000000000000"},
		{name: "Exponent product too small", x: "1", y: "3000000000000000000"},
		{name: "Exponent too large", x: "2000000000000000000", y: new(uint256.Int).Lsh(uint256.NewInt(1), 250).Dec()},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := PowDown(fp(tc.x), fp(tc.y))
			assert.ErrorIs(t, err, ErrPowOutOfBounds)
		})
	}
}

func TestScaling(t *testing.T) {
	raw := big.NewInt(1_234_567) // 1.234567 at 6 decimals
	x, err := Upscale(raw, 6)
	require.NoError(t, err)
	assert.Equal(t, "1234567000000000000", x.Dec())

	assert.Equal(t, raw, DownscaleDown(x, 6))
	assert.Equal(t, raw, DownscaleUp(x, 6))

	x.AddUint64(x, 1)
	assert.Equal(t, raw, DownscaleDown(x, 6))
	assert.Equal(t, big.NewInt(1_234_568), DownscaleUp(x, 6))

	_, err = Upscale(raw, 19)
	assert.ErrorIs(t, err, ErrUnsupportedDecimals)
}

func TestSqrtUp(t *testing.T) {
	got, err := SqrtUp(fp("4000000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", got.Dec())

	got, err = SqrtUp(fp("2000000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "1414213562373095049", got.Dec())
}
