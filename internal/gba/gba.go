// Package gba wires the scheduler, interrupt controller, GamePak, video
// memory, PPU, DMA controller, IO dispatcher, memory bus and CPU into one
// runnable system, and drives the per-frame loop (§4.9).
package gba

import (
	"github.com/gba-emu/goadvance/internal/bus"
	"github.com/gba-emu/goadvance/internal/cpu"
	"github.com/gba-emu/goadvance/internal/dma"
	"github.com/gba-emu/goadvance/internal/gamepak"
	"github.com/gba-emu/goadvance/internal/interrupt"
	"github.com/gba-emu/goadvance/internal/io"
	"github.com/gba-emu/goadvance/internal/ppu"
	"github.com/gba-emu/goadvance/internal/scheduler"
	"github.com/gba-emu/goadvance/internal/video"
)

// cyclesPerFrame is 1232 cycles/scanline × 228 scanlines (§4.9, §4.6).
const cyclesPerFrame = 280896

const (
	fifoAAddr = 0x040000A0
	fifoBAddr = 0x040000A4
)

// Key identifies one of the ten GBA keypad bits.
type Key int

const (
	KeyA Key = iota
	KeyB
	KeySelect
	KeyStart
	KeyRight
	KeyLeft
	KeyUp
	KeyDown
	KeyR
	KeyL
)

// System is the top-level emulator object: one GamePak image in, one
// framebuffer out per frame.
type System struct {
	sched *scheduler.Scheduler
	intr  *interrupt.Controller
	video *video.Memory
	ppu   *ppu.PPU
	dma   *dma.Controller
	io    *io.Dispatcher
	bus   *bus.Bus
	cpu   *cpu.CPU

	cycleBase uint64
}

// New constructs a system from a GamePak ROM image and an optional BIOS
// image. If skipBIOS is true the CPU starts at the cartridge entry point
// with the post-boot register snapshot instead of running through RESET.
func New(rom, biosROM []byte, skipBIOS bool) *System {
	sched := scheduler.New()
	intr := interrupt.New(sched)
	vid := video.New()
	pak := gamepak.New(rom)
	dmaCtrl := dma.New(sched, intr, fifoAAddr, fifoBAddr)
	p := ppu.New(sched, intr, vid)
	ioDisp := io.New(p, dmaCtrl, intr)
	b := bus.New(sched, biosROM, pak, vid, dmaCtrl, ioDisp)
	c := cpu.New(b, intr, sched)

	if skipBIOS {
		c.ResetSkipBIOS(0x08000000)
	} else {
		c.Reset()
	}

	return &System{
		sched: sched,
		intr:  intr,
		video: vid,
		ppu:   p,
		dma:   dmaCtrl,
		io:    ioDisp,
		bus:   b,
		cpu:   c,
	}
}

// Frame runs the system for exactly one 280,896-cycle frame, per §4.9's
// main loop: DMA transfers preempt the CPU whenever a channel is pending.
func (s *System) Frame() {
	target := s.cycleBase + cyclesPerFrame
	for s.sched.Now() < target {
		if s.dma.AnyPending() {
			s.dma.PerformTransfers()
		} else {
			s.cpu.Step()
		}
		s.sched.ProcessEvents()
	}
	s.cycleBase = s.sched.Now()
	s.ppu.ClearFrameReady()
}

// Framebuffer returns the most recently completed 240x160 frame of 15-bit
// BGR pixels. The slice is owned by the PPU and is read-only to callers.
func (s *System) Framebuffer() []uint16 { return s.ppu.Framebuffer() }

// PressKey and ReleaseKey forward keypad transitions to the IO dispatcher,
// which tracks KEYINPUT and raises the KEYPAD interrupt per KEYCNT.
func (s *System) PressKey(k Key)   { s.io.PressKey(int(k)) }
func (s *System) ReleaseKey(k Key) { s.io.ReleaseKey(int(k)) }
