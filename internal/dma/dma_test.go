package dma

import (
	"testing"

	"github.com/gba-emu/goadvance/internal/interrupt"
	"github.com/gba-emu/goadvance/internal/scheduler"
)

type memBus struct {
	mem map[uint32]uint32
}

func newMemBus() *memBus { return &memBus{mem: make(map[uint32]uint32)} }

func (m *memBus) DMARead16(addr uint32, seq bool) uint16 { return uint16(m.mem[addr]) }
func (m *memBus) DMARead32(addr uint32, seq bool) uint32 { return m.mem[addr] }
func (m *memBus) DMAWrite16(addr uint32, v uint16, seq bool) { m.mem[addr] = uint32(v) }
func (m *memBus) DMAWrite32(addr uint32, v uint32, seq bool) { m.mem[addr] = v }

func TestImmediateWordCopy(t *testing.T) {
	s := scheduler.New()
	intr := interrupt.New(s)
	ctl := New(s, intr, 0x040000A0, 0x040000A4)
	bus := newMemBus()
	ctl.AttachBus(bus)

	bus.mem[0x02000000] = 0xDEADBEEF
	bus.mem[0x02000004] = 1
	bus.mem[0x02000008] = 2
	bus.mem[0x0200000C] = 3

	ctl.SetSAD(0, 0x02000000)
	ctl.SetDAD(0, 0x03000000)
	ctl.SetCountL(0, 4)
	// enable, word size, start timing immediate
	ctl.SetControl(0, (1<<15)|(1<<10))

	if !ctl.AnyPending() {
		// not yet: transferDelay cycles must elapse first
	}
	s.Idle(3)
	s.ProcessEvents()

	if !ctl.AnyPending() {
		t.Fatal("expected channel pending after activation delay")
	}
	ctl.PerformTransfers()
	if ctl.AnyPending() {
		t.Fatal("expected pending cleared after transfer")
	}

	want := []uint32{0xDEADBEEF, 1, 2, 3}
	for i, w := range want {
		got := bus.mem[0x03000000+uint32(i*4)]
		if got != w {
			t.Fatalf("word %d: got %08X want %08X", i, got, w)
		}
	}
}

func TestIRQOnDoneSignalsInterrupt(t *testing.T) {
	s := scheduler.New()
	intr := interrupt.New(s)
	ctl := New(s, intr, 0x040000A0, 0x040000A4)
	bus := newMemBus()
	ctl.AttachBus(bus)

	intr.WriteIE(1 << interrupt.DMA0)
	intr.WriteIME(1)
	s.Idle(5)
	s.ProcessEvents()

	ctl.SetSAD(0, 0x02000000)
	ctl.SetDAD(0, 0x03000000)
	ctl.SetCountL(0, 1)
	ctl.SetControl(0, (1<<15)|(1<<10)|(1<<14)) // enable, word, irq-on-done
	s.Idle(3)
	s.ProcessEvents()
	ctl.PerformTransfers()

	s.Idle(1)
	s.ProcessEvents()
	if intr.IF()&(1<<interrupt.DMA0) == 0 {
		t.Fatal("DMA0 IF bit not set")
	}
	s.Idle(2)
	s.ProcessEvents()
	if !intr.IRQLine() {
		t.Fatal("IRQ line not raised after DMA completion")
	}
}

func TestDisableCancelsPendingActivation(t *testing.T) {
	s := scheduler.New()
	intr := interrupt.New(s)
	ctl := New(s, intr, 0x040000A0, 0x040000A4)
	bus := newMemBus()
	ctl.AttachBus(bus)

	ctl.SetCountL(0, 1)
	ctl.SetControl(0, 1<<15)
	ctl.SetControl(0, 0) // disable before the activation delay elapses
	s.Idle(5)
	s.ProcessEvents()
	if ctl.AnyPending() {
		t.Fatal("disabled channel should not become pending")
	}
}

func TestCountZeroTreatedAsMaxPlusOne(t *testing.T) {
	s := scheduler.New()
	intr := interrupt.New(s)
	ctl := New(s, intr, 0x040000A0, 0x040000A4)
	bus := newMemBus()
	ctl.AttachBus(bus)

	ctl.SetSAD(3, 0x02000000)
	ctl.SetDAD(3, 0x03000000)
	ctl.SetCountL(3, 0)
	ctl.SetControl(3, (1<<15)|(1<<10))
	s.Idle(3)
	s.ProcessEvents()
	ctl.PerformTransfers()

	if ctl.ch[3].curCount != 0x10000 {
		t.Fatalf("expected mask+1 (0x10000) got %X", ctl.ch[3].curCount)
	}
}
