// Package cpu implements the ARM7TDMI: the three-stage pipeline, banked
// register file, ARM and THUMB decoders, and exception vectoring (§4.7-4.9).
// The teacher's CPU (internal/cpu/cpu.go) is a flat switch-on-opcode
// interpreter over an 8-bit SM83 core with no pipeline and no privilege
// modes; the shape — a Step() driving fetch/decode/execute against a bus
// pointer, with small per-instruction handler functions — carries over, but
// ARM7TDMI's pipelining, conditional execution and banked state are new.
package cpu

import (
	"fmt"

	"github.com/gba-emu/goadvance/internal/bus"
	"github.com/gba-emu/goadvance/internal/interrupt"
	"github.com/gba-emu/goadvance/internal/scheduler"
)

// FatalError is what Step panics with when it decodes a condition §7 says
// well-formed GBA software never produces: a reserved condition code, a
// coprocessor instruction, or a reserved LDRD/STRD-class encoding. Front
// ends recover it at the frame-loop boundary and report PC/Opcode.
type FatalError struct {
	PC     uint32
	Opcode uint32
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s (pc=%#08x opcode=%#08x)", e.Reason, e.PC, e.Opcode)
}

// fatal panics with a FatalError identifying the current PC and the opcode
// that triggered it, per §7/§10.2.
func (c *CPU) fatal(opcode uint32, reason string) {
	panic(&FatalError{PC: c.Regs.PC(), Opcode: opcode, Reason: reason})
}

// FetchAccess classifies the next instruction fetch.
type FetchAccess = bus.Access

const (
	Seq    = bus.Sequential
	NonSeq = bus.NonSequential
)

// Exception vector offsets, per §4.9.
const (
	vecReset          = 0x00000000
	vecUndefined      = 0x00000004
	vecSWI            = 0x00000008
	vecPrefetchAbort  = 0x0000000C
	vecDataAbort      = 0x00000010
	vecIRQ            = 0x00000018
	vecFIQ            = 0x0000001C
)

// condNV is the reserved ARM condition code (0b1111); per §7 it must not
// occur in well-formed code and is a fatal condition rather than a no-op.
const condNV = 0xF

// CPU wires the register file to the memory bus and interrupt controller
// and drives the fetch/decode/execute loop.
type CPU struct {
	Regs *Registers
	bus  *bus.Bus
	intr *interrupt.Controller
	sched *scheduler.Scheduler

	pipeline        [2]uint32
	nextFetchAccess bus.Access
	branched        bool
}

// New constructs a CPU. Call Reset (or ResetSkipBIOS) before stepping.
func New(b *bus.Bus, intr *interrupt.Controller, sched *scheduler.Scheduler) *CPU {
	c := &CPU{Regs: NewRegisters(), bus: b, intr: intr, sched: sched}
	b.AttachCPU(c)
	return c
}

// --- bus.CPUState ---

func (c *CPU) PC() uint32         { return c.Regs.PC() }
func (c *CPU) Pipeline() (uint32, uint32) { return c.pipeline[0], c.pipeline[1] }
func (c *CPU) ThumbMode() bool    { return c.Regs.Thumb() }

// Reset vectors the CPU to the RESET exception, entering SVC mode with
// interrupts disabled. ResetSkipBIOS instead jumps straight past the BIOS boot
// sequence to the GamePak entry point in USER/SYSTEM mode with a typical
// post-boot register snapshot — the same shortcut the teacher's
// ResetNoBoot took for the DMG boot ROM.
func (c *CPU) Reset() {
	c.Regs = NewRegisters()
	c.Regs.SetPC(vecReset)
	c.flushPipeline()
}

// ResetSkipBIOS sets up registers as if BIOS had already run and jumped to
// the cartridge entry point, for ROMs run without a BIOS image.
func (c *CPU) ResetSkipBIOS(entry uint32) {
	c.Regs = NewRegisters()
	c.Regs.SwitchMode(ModeSystem)
	c.Regs.SetR(13, 0x03007F00)
	c.Regs.bankedSP[bankIRQ] = 0x03007FA0
	c.Regs.bankedSP[bankSVC] = 0x03007FE0
	c.Regs.bankedSP[bankAbort] = 0x03007F00
	c.Regs.bankedSP[bankUndefined] = 0x03007F00
	c.Regs.bankedSP[bankFIQ] = 0x03007F00
	c.Regs.SetPC(entry)
	c.flushPipeline()
}

func (c *CPU) flushPipeline() {
	pc := c.Regs.PC()
	if c.Regs.Thumb() {
		c.pipeline[0] = uint32(c.fetch16(pc, NonSeq))
		c.pipeline[1] = uint32(c.fetch16(pc+2, Seq))
		c.Regs.SetPC(pc + 4)
	} else {
		c.pipeline[0] = c.fetch32(pc, NonSeq)
		c.pipeline[1] = c.fetch32(pc+4, Seq)
		c.Regs.SetPC(pc + 8)
	}
	c.nextFetchAccess = Seq
}

func (c *CPU) fetch32(addr uint32, access bus.Access) uint32 { return c.bus.Read32(addr, access) }
func (c *CPU) fetch16(addr uint32, access bus.Access) uint16 { return c.bus.Read16(addr, access) }

// Step executes §4.9's per-step algorithm: IRQ check, HALT fast-forward, or
// one fetch/decode/execute cycle.
func (c *CPU) Step() {
	if c.intr.IRQLine() && !c.Regs.IRQDisabled() {
		c.enterException(ModeIRQ, vecIRQ, 4, 0, false)
		return
	}
	if c.intr.PowerDownMode() == interrupt.Halt {
		c.sched.IdleUntilNextEvent()
		return
	}
	if c.intr.PowerDownMode() == interrupt.Stop {
		c.sched.IdleUntilNextEvent()
		return
	}

	if c.Regs.Thumb() {
		c.stepThumb()
	} else {
		c.stepARM()
	}
}

// stepARM fetches the word two instructions ahead of the one it executes,
// leaving PC at fetchAddr (= this instruction's address + 8) for the whole
// handler call, matching the value the instruction itself would read from
// R15. PC only advances to fetchAddr+4 afterward, and only if the handler
// didn't already redirect it via branchTo.
func (c *CPU) stepARM() {
	fetchAddr := c.Regs.PC()
	instr := c.pipeline[0]
	c.pipeline[0] = c.pipeline[1]
	c.pipeline[1] = c.fetch32(fetchAddr, c.nextFetchAccess)

	cond := instr >> 28
	if cond == condNV {
		c.fatal(instr, "reserved condition code NV")
	}
	if !checkCondition(c.Regs, cond) {
		c.Regs.SetPC(fetchAddr + 4)
		c.nextFetchAccess = Seq
		return
	}
	c.branched = false
	handler := armDispatch[armKey(instr)]
	handler(c, instr)
	if !c.branched {
		c.Regs.SetPC(fetchAddr + 4)
	}
}

func (c *CPU) stepThumb() {
	fetchAddr := c.Regs.PC()
	instr := uint16(c.pipeline[0])
	c.pipeline[0] = uint32(c.pipeline[1])
	c.pipeline[1] = uint32(c.fetch16(fetchAddr, c.nextFetchAccess))

	c.branched = false
	handler := thumbDispatch[instr>>8]
	handler(c, instr)
	if !c.branched {
		c.Regs.SetPC(fetchAddr + 2)
	}
}

// branchTo writes PC and flushes the pipeline, the common tail of every
// instruction that changes control flow.
func (c *CPU) branchTo(addr uint32) {
	if c.Regs.Thumb() {
		addr &^= 1
	} else {
		addr &^= 3
	}
	c.Regs.SetPC(addr)
	c.flushPipeline()
	c.branched = true
}

// enterException vectors into an exception mode. armCorrection/thumbCorrection
// give the LR adjustment (PC-correction) in each pre-exception instruction
// set state, per §4.9: SWI/UNDEF use {4,2}; PREFETCH_ABORT/DATA_ABORT/IRQ/FIQ
// use {4,0}.
func (c *CPU) enterException(mode Mode, vector uint32, armCorrection, thumbCorrection uint32, disableFIQ bool) {
	thumb := c.Regs.Thumb()
	pc := c.Regs.PC()
	correction := armCorrection
	if thumb {
		correction = thumbCorrection
	}
	savedCPSR := c.Regs.CPSR()
	c.Regs.SwitchMode(mode)
	c.Regs.SetSPSR(savedCPSR)
	c.Regs.SetFlag(flagThumb, false)
	c.Regs.SetFlag(flagIRQDis, true)
	if disableFIQ {
		c.Regs.SetFlag(flagFIQDis, true)
	}
	c.Regs.SetR(14, pc-correction)
	c.branchTo(vector)
}

func (c *CPU) raiseSWI()       { c.enterException(ModeSVC, vecSWI, 4, 2, false) }
func (c *CPU) raiseUndefined() { c.enterException(ModeUndefined, vecUndefined, 4, 2, false) }

// checkCondition evaluates one of the 15 non-reserved ARM condition codes
// against CPSR. Callers must reject condNV (0xF) before calling this, per
// §7 — it is fatal, not a silent no-op.
func checkCondition(r *Registers, cond uint32) bool {
	n := r.Flag(flagNegative)
	z := r.Flag(flagZero)
	cf := r.Flag(flagCarry)
	v := r.Flag(flagOverflow)
	switch cond & 0xF {
	case 0x0:
		return z
	case 0x1:
		return !z
	case 0x2:
		return cf
	case 0x3:
		return !cf
	case 0x4:
		return n
	case 0x5:
		return !n
	case 0x6:
		return v
	case 0x7:
		return !v
	case 0x8:
		return cf && !z
	case 0x9:
		return !cf || z
	case 0xA:
		return n == v
	case 0xB:
		return n != v
	case 0xC:
		return !z && n == v
	case 0xD:
		return z || n != v
	case 0xE:
		return true
	default:
		return false
	}
}
