// Package io maps the 1 KiB memory-mapped register window at 0x0400_0000 to
// the PPU, DMA, interrupt controller and keypad fields that back it. The
// teacher's bus answered IO reads/writes with a single big switch inlined
// directly in Bus.Read/Write; the GBA's register set is wide enough, and
// shared with enough components, that it is split out into its own
// dispatcher the bus delegates to (§4.5).
package io

import (
	"github.com/gba-emu/goadvance/internal/dma"
	"github.com/gba-emu/goadvance/internal/interrupt"
	"github.com/gba-emu/goadvance/internal/ppu"
)

// Register offsets within the IO window, aligned to halfwords.
const (
	regDISPCNT  = 0x000
	regDISPSTAT = 0x004
	regVCOUNT   = 0x006
	regBG0CNT   = 0x008
	regBG1CNT   = 0x00A
	regBG2CNT   = 0x00C
	regBG3CNT   = 0x00E
	regBG0HOFS  = 0x010
	regBG0VOFS  = 0x012
	regBG1HOFS  = 0x014
	regBG1VOFS  = 0x016
	regBG2HOFS  = 0x018
	regBG2VOFS  = 0x01A
	regBG3HOFS  = 0x01C
	regBG3VOFS  = 0x01E
	regWIN0H    = 0x040
	regWIN1H    = 0x042
	regWIN0V    = 0x044
	regWIN1V    = 0x046
	regWININ    = 0x048
	regWINOUT   = 0x04A
	regSOUNDBIAS = 0x088
	dmaBase     = 0x0B0 // DMA0SAD_L; each channel occupies 0x0C bytes
	regKEYINPUT = 0x130
	regKEYCNT   = 0x132
	regIE       = 0x200
	regIF       = 0x202
	regWAITCNT  = 0x204
	regIME      = 0x208
	regHALTCNT  = 0x301
)

const (
	dmaOffSADL = 0x0
	dmaOffSADH = 0x2
	dmaOffDADL = 0x4
	dmaOffDADH = 0x6
	dmaOffCNTL = 0x8
	dmaOffCNTH = 0xA
	dmaStride  = 0x0C
)

// Dispatcher implements the IO region of the memory bus: a halfword-keyed
// switch over PPU/DMA/interrupt/keypad fields, plus the handful of
// registers (SOUNDBIAS, WAITCNT) that are only ever stored. HALTCNT writes
// are forwarded to the interrupt controller.
type Dispatcher struct {
	ppu  *ppu.PPU
	dma  *dma.Controller
	intr *interrupt.Controller

	// Shadow halves for the 32-bit DMA source/dest registers, which the CPU
	// only ever writes as two independent 16-bit halves.
	dmaSAD [4]uint32
	dmaDAD [4]uint32

	soundbias uint16
	waitcnt   uint16

	keypad Keypad
}

func New(p *ppu.PPU, d *dma.Controller, intr *interrupt.Controller) *Dispatcher {
	return &Dispatcher{ppu: p, dma: d, intr: intr, keypad: newKeypad()}
}

// PressKey and ReleaseKey drive KEYINPUT from the host's keypad state and
// evaluate the KEYCNT IRQ condition.
func (d *Dispatcher) PressKey(bit int)   { d.keypad.Press(bit, d.intr) }
func (d *Dispatcher) ReleaseKey(bit int) { d.keypad.Release(bit, d.intr) }

// ReadHalf returns the recognized register at the given IO-relative,
// halfword-aligned offset, or 0 for anything unrecognized.
func (d *Dispatcher) ReadHalf(off uint32) uint16 {
	off &^= 1
	if off >= dmaBase && off < dmaBase+4*dmaStride {
		return d.readDMA(off)
	}
	switch off {
	case regDISPCNT:
		return d.ppu.DISPCNT()
	case regDISPSTAT:
		return d.ppu.DISPSTAT()
	case regVCOUNT:
		return d.ppu.VCount()
	case regBG0CNT:
		return d.ppu.BGCNT(0)
	case regBG1CNT:
		return d.ppu.BGCNT(1)
	case regBG2CNT:
		return d.ppu.BGCNT(2)
	case regBG3CNT:
		return d.ppu.BGCNT(3)
	case regWIN0H:
		return d.ppu.WIN0H()
	case regWIN1H:
		return d.ppu.WIN1H()
	case regWIN0V:
		return d.ppu.WIN0V()
	case regWIN1V:
		return d.ppu.WIN1V()
	case regWININ:
		return d.ppu.WININ()
	case regWINOUT:
		return d.ppu.WINOUT()
	case regSOUNDBIAS:
		return d.soundbias
	case regKEYINPUT:
		return d.keypad.input
	case regKEYCNT:
		return d.keypad.cnt
	case regIE:
		return d.intr.IE()
	case regIF:
		return d.intr.IF()
	case regWAITCNT:
		return d.waitcnt
	case regIME:
		return d.intr.IME()
	default:
		// BGxHOFS/VOFS and HALTCNT are write-only on real hardware; reads
		// fall through to the unrecognized case (0) same as anything else
		// this table doesn't name.
		return 0
	}
}

// WriteHalf writes the recognized register at the given offset; writes to
// anything unrecognized are silently dropped.
func (d *Dispatcher) WriteHalf(off uint32, v uint16) {
	off &^= 1
	if off >= dmaBase && off < dmaBase+4*dmaStride {
		d.writeDMA(off, v)
		return
	}
	switch off {
	case regDISPCNT:
		d.ppu.SetDISPCNT(v)
	case regDISPSTAT:
		d.ppu.SetDISPSTAT(v)
	case regBG0CNT:
		d.ppu.SetBGCNT(0, v)
	case regBG1CNT:
		d.ppu.SetBGCNT(1, v)
	case regBG2CNT:
		d.ppu.SetBGCNT(2, v)
	case regBG3CNT:
		d.ppu.SetBGCNT(3, v)
	case regBG0HOFS:
		d.ppu.SetBGHOFS(0, v)
	case regBG0VOFS:
		d.ppu.SetBGVOFS(0, v)
	case regBG1HOFS:
		d.ppu.SetBGHOFS(1, v)
	case regBG1VOFS:
		d.ppu.SetBGVOFS(1, v)
	case regBG2HOFS:
		d.ppu.SetBGHOFS(2, v)
	case regBG2VOFS:
		d.ppu.SetBGVOFS(2, v)
	case regBG3HOFS:
		d.ppu.SetBGHOFS(3, v)
	case regBG3VOFS:
		d.ppu.SetBGVOFS(3, v)
	case regWIN0H:
		d.ppu.SetWIN0H(v)
	case regWIN1H:
		d.ppu.SetWIN1H(v)
	case regWIN0V:
		d.ppu.SetWIN0V(v)
	case regWIN1V:
		d.ppu.SetWIN1V(v)
	case regWININ:
		d.ppu.SetWININ(v)
	case regWINOUT:
		d.ppu.SetWINOUT(v)
	case regSOUNDBIAS:
		d.soundbias = v
	case regKEYCNT:
		d.keypad.cnt = v
		d.keypad.checkIRQ(d.intr)
	case regIE:
		d.intr.WriteIE(v)
	case regIF:
		d.intr.WriteIF(v)
	case regWAITCNT:
		d.waitcnt = v
	case regIME:
		d.intr.WriteIME(v)
	}
	// HALTCNT lives at the odd byte address 0x301 and is only ever reached
	// through Write8.
}

func (d *Dispatcher) readDMA(off uint32) uint16 {
	ch := int((off - dmaBase) / dmaStride)
	local := (off - dmaBase) % dmaStride
	switch local {
	case dmaOffCNTL:
		return d.dma.CountL(ch)
	case dmaOffCNTH:
		return d.dma.Control(ch)
	default:
		return 0 // SAD/DAD halves are write-only
	}
}

func (d *Dispatcher) writeDMA(off uint32, v uint16) {
	ch := int((off - dmaBase) / dmaStride)
	local := (off - dmaBase) % dmaStride
	switch local {
	case dmaOffSADL:
		d.dmaSAD[ch] = (d.dmaSAD[ch] &^ 0xFFFF) | uint32(v)
		d.dma.SetSAD(ch, d.dmaSAD[ch])
	case dmaOffSADH:
		d.dmaSAD[ch] = (d.dmaSAD[ch] & 0xFFFF) | uint32(v)<<16
		d.dma.SetSAD(ch, d.dmaSAD[ch])
	case dmaOffDADL:
		d.dmaDAD[ch] = (d.dmaDAD[ch] &^ 0xFFFF) | uint32(v)
		d.dma.SetDAD(ch, d.dmaDAD[ch])
	case dmaOffDADH:
		d.dmaDAD[ch] = (d.dmaDAD[ch] & 0xFFFF) | uint32(v)<<16
		d.dma.SetDAD(ch, d.dmaDAD[ch])
	case dmaOffCNTL:
		d.dma.SetCountL(ch, v)
	case dmaOffCNTH:
		d.dma.SetControl(ch, v)
	}
}

// Read8 performs the containing halfword's read and returns the requested
// byte, except for HALTCNT which is a genuine byte register.
func (d *Dispatcher) Read8(addr uint32) uint8 {
	if addr&^1 == regHALTCNT&^1 && addr&1 == 1 {
		return 0 // HALTCNT is write-only
	}
	v := d.ReadHalf(addr &^ 1)
	if addr&1 != 0 {
		return uint8(v >> 8)
	}
	return uint8(v)
}

// Write8 read-modifies-writes the containing halfword, except HALTCNT which
// is written directly.
func (d *Dispatcher) Write8(addr uint32, v uint8) {
	if addr == regHALTCNT {
		d.intr.WriteHaltCnt(v)
		return
	}
	half := addr &^ 1
	cur := d.ReadHalf(half)
	if addr&1 != 0 {
		cur = (cur & 0x00FF) | uint16(v)<<8
	} else {
		cur = (cur & 0xFF00) | uint16(v)
	}
	d.WriteHalf(half, cur)
}

// Read32/Write32 split a 32-bit access into two 16-bit ones, per §4.5.
func (d *Dispatcher) Read32(addr uint32) uint32 {
	lo := d.ReadHalf(addr)
	hi := d.ReadHalf(addr + 2)
	return uint32(lo) | uint32(hi)<<16
}

func (d *Dispatcher) Write32(addr uint32, v uint32) {
	d.WriteHalf(addr, uint16(v))
	d.WriteHalf(addr+2, uint16(v>>16))
}
