package unwind_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newhook/riscv-unwind/locexpr"
	"github.com/newhook/riscv-unwind/memio"
	"github.com/newhook/riscv-unwind/regfile"
	"github.com/newhook/riscv-unwind/uerr"
	"github.com/newhook/riscv-unwind/unwind"
)

type fakeCollab struct {
	regs            []*unwind.RegisterDefinition
	values          map[string][]byte
	mem             map[uint64]byte
	top             bool
	locationCapable bool
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return b
}

func (f *fakeCollab) putWord(addr uint64, w uint32) {
	if f.mem == nil {
		f.mem = map[uint64]byte{}
	}
	f.mem[addr] = byte(w)
	f.mem[addr+1] = byte(w >> 8)
	f.mem[addr+2] = byte(w >> 16)
	f.mem[addr+3] = byte(w >> 24)
}

func (f *fakeCollab) Registers() []*unwind.RegisterDefinition { return f.regs }
func (f *fakeCollab) IsTopFrame() bool                        { return f.top }
func (f *fakeCollab) Logger() logrus.FieldLogger              { return nil }
func (f *fakeCollab) Memory() memio.Collaborator              { return memCollab{f} }

// SupportsLocationExpressions makes fakeCollab satisfy unwind.LocationCapable
// so individual tests can opt into (or out of) location-expression results.
func (f *fakeCollab) SupportsLocationExpressions() bool { return f.locationCapable }

func (f *fakeCollab) ReadRegisterBytes(def *unwind.RegisterDefinition, buf []byte) error {
	v, ok := f.values[def.Name]
	if !ok {
		return uerr.New(uerr.KindOther, "register has no saved value")
	}
	copy(buf, v)
	return nil
}

type memCollab struct{ f *fakeCollab }

func (m memCollab) ReadMemory(addr uint64, length int) ([]byte, error) {
	out := make([]byte, 0, length)
	for a := addr; a < addr+uint64(length); a++ {
		b, ok := m.f.mem[a]
		if !ok {
			break
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, uerr.New(uerr.KindMemoryRead, "unmapped")
	}
	return out, nil
}

func raDef() *unwind.RegisterDefinition { return &unwind.RegisterDefinition{Name: "ra", DwarfID: regfile.RA, Size: 8} }
func spDef() *unwind.RegisterDefinition {
	return &unwind.RegisterDefinition{Name: "sp", DwarfID: regfile.SP, Size: 8}
}
func pcDef() *unwind.RegisterDefinition { return &unwind.RegisterDefinition{Name: "pc", DwarfID: -1, Size: 8} }
func gpDef(name string, id int) *unwind.RegisterDefinition {
	return &unwind.RegisterDefinition{Name: name, DwarfID: id, Size: 8}
}

func TestCrawlReturnsNilWhenSPIsZero(t *testing.T) {
	c := &fakeCollab{
		regs: []*unwind.RegisterDefinition{pcDef(), spDef()},
		values: map[string][]byte{
			"pc": le64(0x1000),
			"sp": le64(0),
		},
		top: true,
	}
	f, err := unwind.CrawlStackFrameRISCV64(c)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestCrawlLeafFunctionSingleReturn(t *testing.T) {
	// c.jr ra at 0x1000.
	const jr = (1 << 7) | 0x8002
	c := &fakeCollab{
		regs: []*unwind.RegisterDefinition{pcDef(), spDef(), raDef(), gpDef("x8", 8)},
		values: map[string][]byte{
			"pc": le64(0x1000),
			"sp": le64(0x8000_0100),
			"ra": le64(0xDEAD_BEEF),
		},
		top:             true,
		locationCapable: true,
	}
	c.putWord(0x1000, jr)

	f, err := unwind.CrawlStackFrameRISCV64(c)
	require.NoError(t, err)
	require.NotNil(t, f)

	require.True(t, f.PC.Materialized)
	assert.Equal(t, uint64(0xDEAD_BEEF), f.PC.Value.Lo())
	assert.True(t, f.HasFramePointer)
	assert.Equal(t, uint64(0x8000_0100), f.FramePointer)

	// x8 was never touched: reported as a location expression into the
	// saved frame context, not a materialized value.
	x8, ok := f.Registers[8]
	require.True(t, ok)
	assert.False(t, x8.Materialized)
	assert.Equal(t, locexpr.FrameRegister(3).String(), x8.Expr.String())
}

func TestCrawlMaterializesWhenLocationExpressionsUnsupported(t *testing.T) {
	// Same shape as TestCrawlLeafFunctionSingleReturn, but the
	// collaborator does not implement location expressions: x8 must
	// come back as a materialized value read straight from the saved
	// frame context instead of a *locexpr.Expr the caller would have
	// to evaluate itself.
	const jr = (1 << 7) | 0x8002
	c := &fakeCollab{
		regs: []*unwind.RegisterDefinition{pcDef(), spDef(), raDef(), gpDef("x8", 8)},
		values: map[string][]byte{
			"pc": le64(0x1000),
			"sp": le64(0x8000_0100),
			"ra": le64(0xDEAD_BEEF),
			"x8": le64(0x2222_3333),
		},
		top: true,
	}
	c.putWord(0x1000, jr)

	f, err := unwind.CrawlStackFrameRISCV64(c)
	require.NoError(t, err)
	require.NotNil(t, f)

	x8, ok := f.Registers[8]
	require.True(t, ok)
	assert.True(t, x8.Materialized)
	assert.Nil(t, x8.Expr)
	assert.Equal(t, uint64(0x2222_3333), x8.Value.Lo())
}

func TestCrawlLeafFallbackWhenBudgetExhausted(t *testing.T) {
	// 200 instructions of c.nop never touch RA or SP; the fallback
	// heuristic should adopt the incoming RA as the caller's PC.
	c := &fakeCollab{
		regs: []*unwind.RegisterDefinition{pcDef(), spDef(), raDef()},
		values: map[string][]byte{
			"pc": le64(0x4000),
			"sp": le64(0x8000_0200),
			"ra": le64(0xCAFE_F00D),
		},
		top: true,
	}
	for n := 0; n < 150; n++ {
		c.putWord(0x4000+uint64(n*4), 0x00010001) // two c.nop halfwords per word
	}

	f, err := unwind.CrawlStackFrameRISCV64(c)
	require.NoError(t, err)
	require.NotNil(t, f)
	require.True(t, f.PC.Materialized)
	assert.Equal(t, uint64(0xCAFE_F00D), f.PC.Value.Lo())
}

func TestCrawlFatalOnTopFrameRegisterReadFailure(t *testing.T) {
	// PC and RA are both unreadable: the interpreter never even starts
	// (PC unavailable), and the fallback's chk_reg_loaded(org RA) then
	// hits a top-frame read failure, which is fatal to the whole
	// attempt rather than silently demoted.
	c := &fakeCollab{
		regs:   []*unwind.RegisterDefinition{pcDef(), spDef(), raDef()},
		values: map[string][]byte{"sp": le64(0x8000_0100)},
		top:    true,
	}

	_, err := unwind.CrawlStackFrameRISCV64(c)
	require.Error(t, err)
}
