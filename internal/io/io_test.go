package io

import (
	"testing"

	"github.com/gba-emu/goadvance/internal/dma"
	"github.com/gba-emu/goadvance/internal/interrupt"
	"github.com/gba-emu/goadvance/internal/ppu"
	"github.com/gba-emu/goadvance/internal/scheduler"
	"github.com/gba-emu/goadvance/internal/video"
)

func newTestDispatcher() (*Dispatcher, *scheduler.Scheduler) {
	s := scheduler.New()
	intr := interrupt.New(s)
	mem := video.New()
	p := ppu.New(s, intr, mem)
	d := dma.New(s, intr, 0x040000A0, 0x040000A4)
	return New(p, d, intr), s
}

func drain(s *scheduler.Scheduler, cycles uint64) {
	target := s.Now() + cycles
	for s.Now() < target {
		s.IdleUntilNextEvent()
		s.ProcessEvents()
	}
}

func TestDISPCNTRoundTrip(t *testing.T) {
	disp, _ := newTestDispatcher()
	disp.WriteHalf(regDISPCNT, 0x0403)
	if got := disp.ReadHalf(regDISPCNT); got != 0x0403 {
		t.Fatalf("DISPCNT = %04X, want 0403", got)
	}
}

func TestDMAAddressAssembledFromHalves(t *testing.T) {
	disp, _ := newTestDispatcher()
	disp.WriteHalf(dmaBase+dmaOffSADL, 0x5678)
	disp.WriteHalf(dmaBase+dmaOffSADH, 0x0200)
	if got := disp.dma.SAD(0); got != 0x02005678 {
		t.Fatalf("DMA0 SAD = %08X, want 02005678", got)
	}
}

func TestWrite8ReadModifiesContainingHalfword(t *testing.T) {
	disp, _ := newTestDispatcher()
	disp.WriteHalf(regDISPCNT, 0x1234)
	disp.Write8(regDISPCNT+1, 0xAB) // high byte only
	if got := disp.ReadHalf(regDISPCNT); got != 0xAB34 {
		t.Fatalf("DISPCNT = %04X, want AB34", got)
	}
}

func TestWrite32SplitsIntoTwoHalfwordWrites(t *testing.T) {
	disp, _ := newTestDispatcher()
	disp.Write32(regWIN0H, 0x00AA00BB) // WIN0H low half, WIN1H high half
	if got := disp.ReadHalf(regWIN0H); got != 0x00BB {
		t.Fatalf("WIN0H = %04X, want 00BB", got)
	}
	if got := disp.ReadHalf(regWIN1H); got != 0x00AA {
		t.Fatalf("WIN1H = %04X, want 00AA", got)
	}
}

func TestKeyInputDefaultsToAllReleased(t *testing.T) {
	disp, _ := newTestDispatcher()
	if got := disp.ReadHalf(regKEYINPUT); got != allKeysReleased {
		t.Fatalf("KEYINPUT = %04X, want %04X", got, uint16(allKeysReleased))
	}
}

func TestPressKeySetsActiveLowBit(t *testing.T) {
	disp, _ := newTestDispatcher()
	disp.PressKey(KeyA)
	got := disp.ReadHalf(regKEYINPUT)
	if got&1 != 0 {
		t.Fatalf("KEYINPUT bit0 (A) should be clear when pressed, got %04X", got)
	}
	disp.ReleaseKey(KeyA)
	if disp.ReadHalf(regKEYINPUT)&1 != 1 {
		t.Fatal("KEYINPUT bit0 (A) should be set when released")
	}
}

func TestKeypadIRQFiresOnORCondition(t *testing.T) {
	disp, s := newTestDispatcher()
	disp.WriteHalf(regKEYCNT, (1<<14)|(1<<KeyStart)) // IRQ enabled, OR, select Start
	disp.PressKey(KeyStart)
	drain(s, 4) // let the staged IF write commit

	if disp.intr.IF()&(1<<uint(interrupt.Keypad)) == 0 {
		t.Fatal("expected keypad interrupt to be pending in IF after commit")
	}
}

func TestKeypadIRQDoesNotFireWhenDisabled(t *testing.T) {
	disp, s := newTestDispatcher()
	disp.WriteHalf(regKEYCNT, 1<<KeyStart) // selected but IRQ not enabled
	disp.PressKey(KeyStart)
	drain(s, 4)

	if disp.intr.IF()&(1<<uint(interrupt.Keypad)) != 0 {
		t.Fatal("keypad interrupt should not fire when KEYCNT IRQ-enable bit is clear")
	}
}

func TestIECommitsAfterWriteDelay(t *testing.T) {
	disp, s := newTestDispatcher()
	disp.WriteHalf(regIE, 0x3FFF)
	if got := disp.intr.IE(); got != 0 {
		t.Fatalf("IE should still be pending before commit, got %04X", got)
	}
	drain(s, 4)
	if got := disp.intr.IE(); got != 0x3FFF {
		t.Fatalf("IE = %04X after commit, want 3FFF", got)
	}
}

func TestUnrecognizedReadsReturnZero(t *testing.T) {
	disp, _ := newTestDispatcher()
	if got := disp.ReadHalf(0x0FE); got != 0 {
		t.Fatalf("unrecognized register read = %04X, want 0", got)
	}
}
