package cpu

import (
	"testing"

	"github.com/gba-emu/goadvance/internal/bus"
	"github.com/gba-emu/goadvance/internal/dma"
	"github.com/gba-emu/goadvance/internal/gamepak"
	"github.com/gba-emu/goadvance/internal/interrupt"
	"github.com/gba-emu/goadvance/internal/io"
	"github.com/gba-emu/goadvance/internal/ppu"
	"github.com/gba-emu/goadvance/internal/scheduler"
	"github.com/gba-emu/goadvance/internal/video"
)

// newTestCPU wires a full bus stack around a fresh CPU, executing directly
// out of a ROM image placed at the cartridge base, entry point already
// skipping BIOS boot.
func newTestCPU(rom []byte) *CPU {
	s := scheduler.New()
	intr := interrupt.New(s)
	v := video.New()
	pak := gamepak.New(rom)
	d := dma.New(s, intr, 0x040000A0, 0x040000A4)
	p := ppu.New(s, intr, v)
	ioDisp := io.New(p, d, intr)
	b := bus.New(s, nil, pak, v, d, ioDisp)
	c := New(b, intr, s)
	c.ResetSkipBIOS(0x08000000)
	return c
}

func putARM(rom []byte, addr uint32, instr uint32) {
	off := addr - 0x08000000
	rom[off] = uint8(instr)
	rom[off+1] = uint8(instr >> 8)
	rom[off+2] = uint8(instr >> 16)
	rom[off+3] = uint8(instr >> 24)
}

func putThumb(rom []byte, addr uint32, instr uint16) {
	off := addr - 0x08000000
	rom[off] = uint8(instr)
	rom[off+1] = uint8(instr >> 8)
}

// --- pipeline invariants ---

func TestARMPipelinePCReadsExecutePlus8(t *testing.T) {
	rom := make([]byte, 0x1000)
	// MOV R0, PC at 0x08000000; PC should read as 0x08000008.
	putARM(rom, 0x08000000, 0xE1A0000F)
	c := newTestCPU(rom)
	c.Step()
	if got := c.Regs.R(0); got != 0x08000008 {
		t.Fatalf("MOV R0,PC = %08X, want 08000008", got)
	}
}

func TestThumbPipelinePCReadsExecutePlus4(t *testing.T) {
	rom := make([]byte, 0x1000)
	// In THUMB format 12 (ADR), PC reads as (execute+4) & ~3.
	putThumb(rom, 0x08000000, 0xA000) // ADD R0, PC, #0
	c := newTestCPU(rom)
	c.Regs.SetPC(0x08000000)
	c.Regs.SetFlag(flagThumb, true)
	c.flushPipeline()
	c.Step()
	if got := c.Regs.R(0); got != 0x08000004 {
		t.Fatalf("ADR R0,PC = %08X, want 08000004", got)
	}
}

// --- banked register round trip ---

func TestBankedRegistersRoundTripThroughModeSwitch(t *testing.T) {
	r := NewRegisters()
	r.SwitchMode(ModeSVC)
	r.SetR(13, 0x03007FE0)
	r.SetR(14, 0xAAAAAAAA)
	r.SwitchMode(ModeIRQ)
	r.SetR(13, 0x03007FA0)
	r.SwitchMode(ModeSVC)
	if got := r.R(13); got != 0x03007FE0 {
		t.Fatalf("SVC SP after round trip = %08X, want 03007FE0", got)
	}
	if got := r.R(14); got != 0xAAAAAAAA {
		t.Fatalf("SVC LR after round trip = %08X, want AAAAAAAA", got)
	}
}

func TestFIQBankSwapsR8ThroughR12(t *testing.T) {
	r := NewRegisters()
	r.SwitchMode(ModeUser)
	r.SetR(8, 0x11111111)
	r.SwitchMode(ModeFIQ)
	if got := r.R(8); got == 0x11111111 {
		t.Fatalf("R8 should be the FIQ-banked shadow, not the USER value")
	}
	r.SetR(8, 0x22222222)
	r.SwitchMode(ModeUser)
	if got := r.R(8); got != 0x11111111 {
		t.Fatalf("R8 after returning to USER = %08X, want 11111111", got)
	}
}

// --- barrel shifter edge cases ---

func TestBarrelShiftLSLBy32ClearsResultKeepsCarryFromBit0(t *testing.T) {
	result, carry := barrelShift(LSL, 0x1, 32, false, true)
	if result != 0 || !carry {
		t.Fatalf("LSL #32 = %08X carry=%v, want 0 true", result, carry)
	}
}

func TestBarrelShiftLSRImmediateZeroTreatedAs32(t *testing.T) {
	result, carry := barrelShift(LSR, 0x80000000, 0, false, true)
	if result != 0 || !carry {
		t.Fatalf("LSR #0(->32) = %08X carry=%v, want 0 true", result, carry)
	}
}

func TestBarrelShiftASRSignExtendsPastBit31(t *testing.T) {
	result, carry := barrelShift(ASR, 0x80000000, 40, false, true)
	if result != 0xFFFFFFFF || !carry {
		t.Fatalf("ASR #40 of negative = %08X carry=%v, want FFFFFFFF true", result, carry)
	}
}

func TestBarrelShiftRORImmediateZeroIsRRX(t *testing.T) {
	result, carry := barrelShift(ROR, 1, 0, true, true)
	if result != 0x80000000 || !carry {
		t.Fatalf("RRX of 1 with carry-in=1 = %08X carry=%v, want 80000000 true", result, carry)
	}
}

// --- S1: ALU flag setting ---

func TestScenarioADDSOverflowIntoNegative(t *testing.T) {
	rom := make([]byte, 0x1000)
	// ADDS R2, R0, R1
	putARM(rom, 0x08000000, 0xE0902001)
	c := newTestCPU(rom)
	c.Regs.SetR(0, 0x7FFFFFFF)
	c.Regs.SetR(1, 1)
	c.Step()
	if got := c.Regs.R(2); got != 0x80000000 {
		t.Fatalf("R2 = %08X, want 80000000", got)
	}
	if !c.Regs.Flag(flagNegative) || c.Regs.Flag(flagZero) || c.Regs.Flag(flagCarry) || !c.Regs.Flag(flagOverflow) {
		t.Fatalf("flags N=%v Z=%v C=%v V=%v, want N=1 Z=0 C=0 V=1",
			c.Regs.Flag(flagNegative), c.Regs.Flag(flagZero), c.Regs.Flag(flagCarry), c.Regs.Flag(flagOverflow))
	}
}

// --- S2: barrel shifter RRX scenario ---

func TestScenarioMOVSRRXProducesSignBitFromCarry(t *testing.T) {
	rom := make([]byte, 0x1000)
	// MOVS R1, R0, RRX
	putARM(rom, 0x08000000, 0xE1B01060)
	c := newTestCPU(rom)
	c.Regs.SetR(0, 1)
	c.Regs.SetFlag(flagCarry, true)
	c.Step()
	if got := c.Regs.R(1); got != 0x80000000 {
		t.Fatalf("R1 = %08X, want 80000000", got)
	}
	if !c.Regs.Flag(flagCarry) || !c.Regs.Flag(flagNegative) || c.Regs.Flag(flagZero) {
		t.Fatalf("flags C=%v N=%v Z=%v, want C=1 N=1 Z=0",
			c.Regs.Flag(flagCarry), c.Regs.Flag(flagNegative), c.Regs.Flag(flagZero))
	}
}

// --- S3: Branch-with-Link ---

func TestScenarioBranchWithLinkSetsLRToNextInstruction(t *testing.T) {
	rom := make([]byte, 0x1000)
	// BL with offset field 2 -> +8 displacement from PC_execute (entry+8).
	putARM(rom, 0x08000100, 0xEB000002)
	c := newTestCPU(rom)
	c.Regs.SetPC(0x08000100)
	c.flushPipeline()
	c.Step()
	// After the pipeline refill R15 holds target+8, so the next instruction
	// to execute is at the branch target 0x08000110.
	if got := c.Regs.PC(); got != 0x08000110+8 {
		t.Fatalf("PC after BL = %08X, want 08000118 (target 08000110 + 8)", got)
	}
	if got := c.Regs.R(14); got != 0x08000104 {
		t.Fatalf("LR after BL = %08X, want 08000104", got)
	}
}

// --- S4: THUMB long branch with link ---

func TestScenarioThumbLongBranchLinkTwoOpcodePair(t *testing.T) {
	rom := make([]byte, 0x1000)
	// BL target = PC_execute_of_first_opcode + 4 + offset; offset encoded across
	// both halves. First half sets LR = PC+4+(upper<<12); second half
	// computes PC = LR+(lower<<1), LR = (nextInstr)|1.
	putThumb(rom, 0x08000000, 0xF000) // BL first half, upper offset bits = 0
	putThumb(rom, 0x08000002, 0xF800) // BL second half, lower offset bits = 0
	c := newTestCPU(rom)
	c.Regs.SetPC(0x08000000)
	c.Regs.SetFlag(flagThumb, true)
	c.flushPipeline()
	c.Step() // first half: sets LR
	pcAfterFirst := c.Regs.PC()
	c.Step() // second half: branches, sets LR to return address|1
	if c.Regs.PC() == pcAfterFirst {
		t.Fatalf("PC did not change after second BL half")
	}
	if c.Regs.R(14)&1 == 0 {
		t.Fatalf("LR after long BL must have bit0 set, got %08X", c.Regs.R(14))
	}
}

// --- Format 13: ADD/SUB SP,#imm must not be misrouted to push/pop ---

func TestThumbFormat13AddToSPAdjustsSPNotRegisterList(t *testing.T) {
	rom := make([]byte, 0x1000)
	putThumb(rom, 0x08000000, 0xB001) // ADD SP, #4 (top byte 0xB0, S=0, off7=1)
	c := newTestCPU(rom)
	c.Regs.SetPC(0x08000000)
	c.Regs.SetFlag(flagThumb, true)
	c.flushPipeline()
	c.Regs.SetR(13, 0x03007F00)
	c.Step()
	if got := c.Regs.R(13); got != 0x03007F04 {
		t.Fatalf("SP after ADD SP,#4 = %08X, want 03007F04", got)
	}
}

func TestThumbFormat13SubFromSPAdjustsSPNotRegisterList(t *testing.T) {
	rom := make([]byte, 0x1000)
	putThumb(rom, 0x08000000, 0xB081) // SUB SP, #4 (top byte 0xB0, S=1, off7=1)
	c := newTestCPU(rom)
	c.Regs.SetPC(0x08000000)
	c.Regs.SetFlag(flagThumb, true)
	c.flushPipeline()
	c.Regs.SetR(13, 0x03007F00)
	c.Step()
	if got := c.Regs.R(13); got != 0x03007EFC {
		t.Fatalf("SP after SUB SP,#4 = %08X, want 03007EFC", got)
	}
}

// --- fatal decoder-miss conditions (§7/§10.2) ---

func expectFatal(t *testing.T, step func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected a panic, got none")
		}
		if _, ok := r.(*FatalError); !ok {
			t.Fatalf("expected *FatalError, got %T (%v)", r, r)
		}
	}()
	step()
}

func TestReservedARMConditionNVPanicsFatal(t *testing.T) {
	rom := make([]byte, 0x1000)
	// MOV R0,R0 with cond field forced to NV (0xF) instead of AL.
	putARM(rom, 0x08000000, 0xF1A00000)
	c := newTestCPU(rom)
	expectFatal(t, c.Step)
}

func TestCoprocessorInstructionPanicsFatalInsteadOfUndefined(t *testing.T) {
	rom := make([]byte, 0x1000)
	// Coprocessor data transfer shape: cond=AL, bits 27-25=110.
	putARM(rom, 0x08000000, 0xEC000000)
	c := newTestCPU(rom)
	expectFatal(t, c.Step)
}

func TestReservedThumbCondBranchConditionPanicsFatal(t *testing.T) {
	rom := make([]byte, 0x1000)
	putThumb(rom, 0x08000000, 0xDE00) // Format 16 with cond=0xE (reserved)
	c := newTestCPU(rom)
	c.Regs.SetPC(0x08000000)
	c.Regs.SetFlag(flagThumb, true)
	c.flushPipeline()
	expectFatal(t, c.Step)
}

// --- empty-list LDM/STM ---

func TestARMEmptyListLDMTransfersPCOnlyAndAdjustsBaseBy0x40(t *testing.T) {
	rom := make([]byte, 0x1000)
	// LDM R0!, {} with empty register list encoded as 0x0000; using LDMIA R0!
	// base=IA(up), writeback. Encoding: cond=1110 100 P U S W L Rn list
	// P=0 U=1 S=0 W=1 L=1, Rn=0, list=0
	instr := uint32(0xE8B00000)
	putARM(rom, 0x08000000, instr)
	c := newTestCPU(rom)
	c.Regs.SetR(0, 0x02000000)
	c.Step()
	if got := c.Regs.R(0); got != 0x02000040 {
		t.Fatalf("base after empty-list LDM = %08X, want 02000040", got)
	}
}
