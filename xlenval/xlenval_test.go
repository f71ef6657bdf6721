package xlenval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/newhook/riscv-unwind/xlenval"
)

func TestAddSub(t *testing.T) {
	a := xlenval.FromU64(10)
	b := xlenval.FromU64(3)
	assert.Equal(t, uint64(13), xlenval.Add(a, b).Lo())
	assert.Equal(t, uint64(7), xlenval.Sub(a, b).Lo())
}

func TestAddIWrapsNegative(t *testing.T) {
	v := xlenval.FromU64(0x2000)
	r := xlenval.AddI(v, -4)
	assert.Equal(t, uint64(0x1FFC), r.Lo())
}

func TestSllMasksToWidth(t *testing.T) {
	v := xlenval.FromU64(1)
	r := xlenval.Sll(v, 31, xlenval.XLen32)
	assert.Equal(t, uint64(0x80000000), r.Lo())
	// the shift amount is taken modulo the width: 32 at 32-bit width
	// is a shift by 0
	r2 := xlenval.Sll(v, 32, xlenval.XLen32)
	assert.Equal(t, uint64(1), r2.Lo())
}

func TestSraSignExtendsAtSelectedWidth(t *testing.T) {
	// 0x80000000 is negative at XLen32 even though upper 96 bits are 0.
	v := xlenval.FromU64(0x80000000)
	r := xlenval.Sra(v, 4, xlenval.XLen32)
	assert.Equal(t, uint64(0xF8000000), r.Lo())
}

func TestSraAt64And128(t *testing.T) {
	v := xlenval.FromI64(-16)
	r := xlenval.Sra(v, 2, xlenval.XLen64)
	assert.Equal(t, int64(-4), int64(r.Lo()))

	v128 := xlenval.FromU2(0, 0x8000000000000000) // most negative 128-bit value
	r128 := xlenval.Sra(v128, 1, xlenval.XLen128)
	assert.Equal(t, uint64(0xC000000000000000), r128.Hi())
	assert.Equal(t, uint64(0), r128.Lo())
}

func TestSrlShiftAcrossHalves(t *testing.T) {
	v := xlenval.FromU2(0, 1) // bit 64 set
	r := xlenval.Srl(v, 1, xlenval.XLen128)
	assert.Equal(t, uint64(0x8000000000000000), r.Lo())
	assert.Equal(t, uint64(0), r.Hi())
}

func TestCmpUnsignedRespectsWidth(t *testing.T) {
	a := xlenval.FromU2(0x1, 0x1) // high half only matters at XLen128
	b := xlenval.FromU2(0x2, 0)
	assert.Equal(t, -1, xlenval.CmpUnsigned(a, b, xlenval.XLen64)) // hi ignored: 1 < 2
	assert.Equal(t, 1, xlenval.CmpUnsigned(a, b, xlenval.XLen128)) // hi counts: a > b
}

func TestCmpSignedAcrossSign(t *testing.T) {
	neg := xlenval.FromI64(-1)
	pos := xlenval.FromU64(1)
	assert.Equal(t, -1, xlenval.CmpSigned(neg, pos, xlenval.XLen64))
	assert.Equal(t, 1, xlenval.CmpSigned(pos, neg, xlenval.XLen64))
	assert.Equal(t, 0, xlenval.CmpSigned(neg, neg, xlenval.XLen64))
}

func TestEqualMasksAboveWidth(t *testing.T) {
	a := xlenval.FromU2(5, 0xDEAD)
	b := xlenval.FromU2(5, 0)
	assert.True(t, xlenval.Equal(a, b, xlenval.XLen64))
	assert.False(t, xlenval.Equal(a, b, xlenval.XLen128))
}
