package bitset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitSet_SetAndIsSet(t *testing.T) {
	bs := NewBitSet(100)

	bs.Set(0)
	bs.Set(63)
	bs.Set(64)
	bs.Set(99)

	for _, i := range []uint64{0, 63, 64, 99} {
		assert.True(t, bs.IsSet(i), "expected bit %d to be set", i)
	}
	assert.False(t, bs.IsSet(1))
	assert.Equal(t, 4, bs.Count())

	bs.Unset(63)
	assert.False(t, bs.IsSet(63))
	assert.Equal(t, []uint64{0, 64, 99}, bs.Members())

	bs.Clear()
	assert.Zero(t, bs.Count())
}

func TestBitSet_SetFrom(t *testing.T) {
	src := BitSet{0b1010, 0b1111}
	dst := BitSet{0, 0}
	dst.SetFrom(src)
	assert.Equal(t, src, dst)

	assert.Panics(t, func() {
		shortDst := BitSet{0}
		shortDst.SetFrom(src)
	})
}

func TestBitSet_Equal(t *testing.T) {
	testCases := []struct {
		name string
		a, b BitSet
		want bool
	}{
		{name: "both empty", a: BitSet{}, b: BitSet{0}, want: true},
		{name: "same members", a: BitSet{0b101}, b: BitSet{0b101}, want: true},
		{name: "different members", a: BitSet{0b101}, b: BitSet{0b100}, want: false},
		{name: "longer with empty tail", a: BitSet{0b1}, b: BitSet{0b1, 0}, want: true},
		{name: "longer with member in tail", a: BitSet{0b1}, b: BitSet{0b1, 0b1}, want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.Equal(tc.b))
			assert.Equal(t, tc.want, tc.b.Equal(tc.a))
		})
	}
}

func TestBitSet_CloneIsIndependent(t *testing.T) {
	a := NewBitSet(10)
	a.Set(3)
	b := a.Clone()
	b.Set(4)

	assert.True(t, a.IsSet(3))
	assert.False(t, a.IsSet(4))
	assert.True(t, b.IsSet(4))
}
