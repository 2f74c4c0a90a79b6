// Package ppu implements the GBA's scanline picture processing unit: the
// HDRAW/HBLANK timing state machine, background/object compositing across
// the six video modes, and windowing. The teacher's PPU (internal/ppu in
// the source repo) advanced a dot counter one cycle at a time inside
// Bus.Tick and fired mode-change IRQs inline; here the same "dot counter
// driving a small state machine that requests interrupts" idea is kept; but
// drives it via two scheduler callbacks (hblankStart/hblankEnd) instead of
// a per-cycle Tick loop, since the GBA core is scheduler-driven rather than
// Tick-driven (see internal/scheduler).
package ppu

import (
	"github.com/gba-emu/goadvance/internal/interrupt"
	"github.com/gba-emu/goadvance/internal/scheduler"
	"github.com/gba-emu/goadvance/internal/video"
)

const (
	ScreenWidth  = 240
	ScreenHeight = 160

	cyclesPerPixel = 4
	hdrawCycles    = ScreenWidth * cyclesPerPixel  // 960
	hblankCycles   = 272
	totalLines     = 228
)

// VRAMReader lists the VRAM read methods of video.Memory that the rendering
// code calls. The PPU itself holds a concrete *video.Memory.
type VRAMReader interface {
	ReadVRAM8(addr uint32) uint8
	ReadVRAM16(addr uint32) uint16
}

// PPU owns display registers, the VRAM/PALRAM/OAM store, scanline work
// buffers, and the front/back framebuffers.
type PPU struct {
	mem   *video.Memory
	sched *scheduler.Scheduler
	intr  *interrupt.Controller

	// Registers.
	dispcnt uint16
	dispstat uint16
	vcount   uint16
	bgcnt    [4]uint16
	bghofs   [4]uint16
	bgvofs   [4]uint16
	win0h, win1h uint16
	win0v, win1v uint16
	winin, winout uint16

	// Scanline work buffers, re-used every line.
	bgLine  [4][ScreenWidth]uint16 // per-BG colour, the transparent sentinel marks empty pixels
	objLine [4][ScreenWidth]uint16 // per-priority object colour buffer
	objSemiTransparent [ScreenWidth]bool
	win0Mask, win1Mask [ScreenWidth]bool
	winObjMask         [ScreenWidth]bool

	back  [ScreenWidth * ScreenHeight]uint16
	front [ScreenWidth * ScreenHeight]uint16

	frameReady bool
}

const transparent = uint16(0x8000) // bit15 never set by real 15-bit colour data we store

func New(sched *scheduler.Scheduler, intr *interrupt.Controller, mem *video.Memory) *PPU {
	p := &PPU{sched: sched, intr: intr, mem: mem}
	p.scheduleHblankStart()
	return p
}

// Framebuffer returns the most recently completed frame: 240x160 halfwords,
// 15-bit BGR, row-major.
func (p *PPU) Framebuffer() []uint16 { return p.front[:] }

// FrameReady reports (and does not clear) whether a new frame has been
// swapped in since construction or the last call to ClearFrameReady.
func (p *PPU) FrameReady() bool  { return p.frameReady }
func (p *PPU) ClearFrameReady()  { p.frameReady = false }

// VCount returns the current scanline for IO reads.
func (p *PPU) VCount() uint16 { return p.vcount }

func (p *PPU) scheduleHblankStart() {
	p.sched.Schedule(hdrawCycles, scheduler.Immediate, p.hblankStart)
}

func (p *PPU) hblankStart() {
	p.dispstat |= 1 << 1 // HBlank flag
	if p.vcount < ScreenHeight {
		p.renderScanline()
		p.sched.Trigger(scheduler.HBlank)
	}
	if p.dispstat&(1<<4) != 0 {
		p.intr.Signal(interrupt.HBlank)
	}
	p.sched.Schedule(hblankCycles, scheduler.Immediate, p.hblankEnd)
}

func (p *PPU) hblankEnd() {
	p.dispstat &^= 1 << 1
	p.vcount++
	if p.vcount >= totalLines {
		p.vcount = 0
	}

	if p.vcount >= ScreenHeight {
		p.dispstat |= 1 // VBlank flag
	} else {
		p.dispstat &^= 1
	}

	if p.vcount == ScreenHeight {
		p.front = p.back
		p.frameReady = true
		p.sched.Trigger(scheduler.VBlank)
		if p.dispstat&(1<<3) != 0 {
			p.intr.Signal(interrupt.VBlank)
		}
	}

	vcountSetting := uint16(p.dispstat >> 8)
	if p.vcount == vcountSetting {
		p.dispstat |= 1 << 2
		if p.dispstat&(1<<5) != 0 {
			p.intr.Signal(interrupt.VCount)
		}
	} else {
		p.dispstat &^= 1 << 2
	}

	p.scheduleHblankStart()
}

// --- register IO, used by internal/io's dispatch table ---

func (p *PPU) DISPCNT() uint16 { return p.dispcnt }
func (p *PPU) SetDISPCNT(v uint16) {
	p.dispcnt = v
	mode := v & 7
	p.mem.SetBitmapMode(mode >= 3)
}

func (p *PPU) DISPSTAT() uint16 {
	// Bits 0-2 are live status; the rest is whatever was last written.
	return p.dispstat
}
func (p *PPU) SetDISPSTAT(v uint16) {
	p.dispstat = (p.dispstat & 0x0007) | (v &^ 0x0007)
}

func (p *PPU) BGCNT(i int) uint16     { return p.bgcnt[i] }
func (p *PPU) SetBGCNT(i int, v uint16) { p.bgcnt[i] = v }

func (p *PPU) SetBGHOFS(i int, v uint16) { p.bghofs[i] = v & 0x1FF }
func (p *PPU) SetBGVOFS(i int, v uint16) { p.bgvofs[i] = v & 0x1FF }

func (p *PPU) WIN0H() uint16       { return p.win0h }
func (p *PPU) SetWIN0H(v uint16)   { p.win0h = v }
func (p *PPU) WIN1H() uint16       { return p.win1h }
func (p *PPU) SetWIN1H(v uint16)   { p.win1h = v }
func (p *PPU) WIN0V() uint16       { return p.win0v }
func (p *PPU) SetWIN0V(v uint16)   { p.win0v = v }
func (p *PPU) WIN1V() uint16       { return p.win1v }
func (p *PPU) SetWIN1V(v uint16)   { p.win1v = v }
func (p *PPU) WININ() uint16       { return p.winin }
func (p *PPU) SetWININ(v uint16)   { p.winin = v }
func (p *PPU) WINOUT() uint16      { return p.winout }
func (p *PPU) SetWINOUT(v uint16)  { p.winout = v }

func (p *PPU) forceBlank() bool { return p.dispcnt&(1<<7) != 0 }
func (p *PPU) videoMode() int   { return int(p.dispcnt & 7) }
func (p *PPU) bgEnabled(i int) bool { return p.dispcnt&(1<<(8+uint(i))) != 0 }
func (p *PPU) objEnabled() bool     { return p.dispcnt&(1<<12) != 0 }
func (p *PPU) win0Enabled() bool    { return p.dispcnt&(1<<13) != 0 }
func (p *PPU) win1Enabled() bool    { return p.dispcnt&(1<<14) != 0 }
func (p *PPU) winObjEnabled() bool  { return p.dispcnt&(1<<15) != 0 }
func (p *PPU) windowingEnabled() bool {
	return p.win0Enabled() || p.win1Enabled() || p.winObjEnabled()
}
func (p *PPU) obj1D() bool { return p.dispcnt&(1<<6) != 0 }
