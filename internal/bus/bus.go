// Package bus implements the GBA's region-dispatched, waitstate-charging
// memory bus (§4.4). The teacher's Bus (internal/bus in the source repo) was
// a flat Game Boy address space with a handful of special cases (echo RAM,
// boot ROM overlay, OAM DMA); the GBA's bus additionally charges cycles per
// access and must reconstruct open-bus values, so every read/write routes
// through accessTime before touching a region, and BIOS reads are gated on
// the CPU's current PC the way the teacher's boot ROM overlay was gated on
// bootEnabled.
package bus

import (
	"github.com/gba-emu/goadvance/internal/bits"
	"github.com/gba-emu/goadvance/internal/dma"
	"github.com/gba-emu/goadvance/internal/gamepak"
	"github.com/gba-emu/goadvance/internal/io"
	"github.com/gba-emu/goadvance/internal/scheduler"
	"github.com/gba-emu/goadvance/internal/video"
)

// Access classifies a bus cycle as sequential (continuing a burst) or
// non-sequential (the first access of a new one); it changes GamePak and
// 32-bit access timing.
type Access bool

const (
	NonSequential Access = false
	Sequential    Access = true
)

const (
	biosSize  = 16 * 1024
	ewramSize = 256 * 1024
	iwramSize = 32 * 1024
)

// CPUState is the subset of the CPU the bus needs for BIOS-read protection
// and open-bus reconstruction. Implemented by internal/cpu.CPU.
type CPUState interface {
	PC() uint32
	Pipeline() (uint32, uint32)
	ThumbMode() bool
}

// Bus wires every memory region together behind one read/write surface and
// implements dma.Bus so the DMA controller can move bytes through it.
type Bus struct {
	sched *scheduler.Scheduler
	cpu   CPUState

	bios  []byte
	ewram [ewramSize]byte
	iwram [iwramSize]byte

	video *video.Memory
	io    *io.Dispatcher
	dma   *dma.Controller
	pak   *gamepak.GamePak
	sram  *gamepak.SRAM

	waitcntShadow uint16 // mirrors io.Dispatcher's WAITCNT for the timing table

	lastBiosOpcode uint32
}

// New constructs the bus. bios may be nil (skip-BIOS boot): the BIOS image
// is then all zeros, so BIOS reads return zero (lastBiosOpcode stays 0).
func New(sched *scheduler.Scheduler, bios []byte, pak *gamepak.GamePak, v *video.Memory, d *dma.Controller, ioDisp *io.Dispatcher) *Bus {
	b := &Bus{
		sched: sched,
		video: v,
		io:    ioDisp,
		dma:   d,
		pak:   pak,
		sram:  gamepak.NewSRAM(),
	}
	n := len(bios)
	if n > biosSize {
		n = biosSize
	}
	b.bios = make([]byte, biosSize)
	copy(b.bios, bios[:n])
	d.AttachBus(b)
	return b
}

// AttachCPU supplies the CPU used for BIOS gating and open-bus
// reconstruction, wired after construction to break the bus<->cpu cycle.
func (b *Bus) AttachCPU(cpu CPUState) { b.cpu = cpu }

func inBIOS(addr uint32) bool { return addr>>24 == 0x00 }

// region classifies the top byte of an address into one of the table rows
// from §3's memory map.
type region int

const (
	regionBIOS region = iota
	regionEWRAM
	regionIWRAM
	regionIO
	regionPALRAM
	regionVRAM
	regionOAM
	regionGamePakWS0
	regionGamePakWS1
	regionGamePakWS2
	regionSRAM
	regionOpenBus
)

func classify(addr uint32) region {
	switch addr >> 24 {
	case 0x00:
		return regionBIOS
	case 0x02:
		return regionEWRAM
	case 0x03:
		return regionIWRAM
	case 0x04:
		return regionIO
	case 0x05:
		return regionPALRAM
	case 0x06:
		return regionVRAM
	case 0x07:
		return regionOAM
	case 0x08, 0x09:
		return regionGamePakWS0
	case 0x0A, 0x0B:
		return regionGamePakWS1
	case 0x0C, 0x0D:
		return regionGamePakWS2
	case 0x0E, 0x0F:
		return regionSRAM
	default:
		return regionOpenBus
	}
}

// nonSeqTable decodes one of WAITCNT's 2-bit wait-control fields into a
// cycle count, shared by Wait State 0/1/2 and SRAM.
var nonSeqTable = [4]uint64{4, 3, 2, 8}

func (b *Bus) gamePakTiming(r region, access Access, width int) uint64 {
	var nonSeqField uint64
	var seqCycles uint64
	switch r {
	case regionGamePakWS0:
		nonSeqField = uint64(b.waitcntShadow>>2) & 3
		if b.waitcntShadow&(1<<4) != 0 {
			seqCycles = 1
		} else {
			seqCycles = 2
		}
	case regionGamePakWS1:
		nonSeqField = uint64(b.waitcntShadow>>5) & 3
		if b.waitcntShadow&(1<<7) != 0 {
			seqCycles = 1
		} else {
			seqCycles = 4
		}
	case regionGamePakWS2:
		nonSeqField = uint64(b.waitcntShadow>>8) & 3
		if b.waitcntShadow&(1<<10) != 0 {
			seqCycles = 1
		} else {
			seqCycles = 8
		}
	}
	nonSeq := nonSeqTable[nonSeqField]

	switch width {
	case 32:
		if access == NonSequential {
			return nonSeq + seqCycles
		}
		return 2 * seqCycles
	default:
		if access == NonSequential {
			return nonSeq
		}
		return seqCycles
	}
}

func (b *Bus) sramCycles() uint64 {
	field := uint64(b.waitcntShadow) & 3
	return nonSeqTable[field]
}

// accessTime charges the scheduler per §4.4 step 1 before the region
// dispatch happens.
func (b *Bus) accessTime(addr uint32, access Access, width int) uint64 {
	r := classify(addr)
	switch r {
	case regionEWRAM:
		switch width {
		case 16:
			return 3
		case 32:
			return 6
		default:
			return 1
		}
	case regionPALRAM, regionVRAM, regionOAM:
		if width == 32 {
			return 2
		}
		return 1
	case regionGamePakWS0, regionGamePakWS1, regionGamePakWS2:
		return b.gamePakTiming(r, access, width)
	case regionSRAM:
		return b.sramCycles()
	default:
		return 1
	}
}

func alignDown(addr uint32, width int) uint32 {
	switch width {
	case 32:
		return addr &^ 3
	case 16:
		return addr &^ 1
	default:
		return addr
	}
}

// openBusARM returns the pipeline's next-fetched instruction, the open-bus
// value for any unmapped read while the CPU is in ARM state.
func (b *Bus) openBusARM() uint32 {
	if b.cpu == nil {
		return 0
	}
	_, p1 := b.cpu.Pipeline()
	return p1
}

// openBusThumb reconstructs the 32-bit open-bus value for THUMB state per
// §4.4's per-region table, then the caller narrows it to the access width.
func (b *Bus) openBusThumb() uint32 {
	if b.cpu == nil {
		return 0
	}
	p0, p1 := b.cpu.Pipeline()
	pc := b.cpu.PC()
	wordAligned := pc&3 == 0

	switch classify(pc) {
	case regionBIOS, regionOAM:
		if wordAligned {
			return p1<<16 | p1
		}
		return p1<<16 | p0
	case regionIWRAM:
		if wordAligned {
			return p0<<16 | p1
		}
		return p1<<16 | p0
	default:
		return p1<<16 | p1
	}
}

func (b *Bus) openBus(width int, addr uint32) uint32 {
	var v uint32
	if b.cpu != nil && b.cpu.ThumbMode() {
		v = b.openBusThumb()
	} else {
		v = b.openBusARM()
	}
	switch width {
	case 8:
		return (v >> ((addr & 3) * 8)) & 0xFF
	case 16:
		return (v >> ((addr & 2) * 8)) & 0xFFFF
	default:
		return v
	}
}

// --- BIOS read protection ---

func (b *Bus) biosRead32(addr uint32) uint32 {
	if b.cpu != nil && inBIOS(b.cpu.PC()) {
		v := bits.Read32(b.bios, addr&(biosSize-1)&^3)
		b.lastBiosOpcode = v
		return v
	}
	return b.lastBiosOpcode
}

// --- public read/write entry points, §4.4 ---

func (b *Bus) Read8(addr uint32, access Access) uint8 {
	b.sched.Idle(b.accessTime(addr, access, 8))
	return b.read8(addr)
}

func (b *Bus) Read16(addr uint32, access Access) uint16 {
	b.sched.Idle(b.accessTime(addr, access, 16))
	return b.read16(alignDown(addr, 16))
}

func (b *Bus) Read32(addr uint32, access Access) uint32 {
	b.sched.Idle(b.accessTime(addr, access, 32))
	return b.read32(alignDown(addr, 32))
}

func (b *Bus) Write8(addr uint32, v uint8, access Access) {
	b.sched.Idle(b.accessTime(addr, access, 8))
	b.write8(addr, v)
}

func (b *Bus) Write16(addr uint32, v uint16, access Access) {
	b.sched.Idle(b.accessTime(addr, access, 16))
	b.write16(alignDown(addr, 16), v)
}

func (b *Bus) Write32(addr uint32, v uint32, access Access) {
	b.sched.Idle(b.accessTime(addr, access, 32))
	b.write32(alignDown(addr, 32), v)
}

// read_32_ror et al: LDR/LDRH/LDRSH/LDRSB helpers that rotate or sign-extend
// an unaligned read, per §4.4.
func (b *Bus) Read32Rotated(addr uint32, access Access) uint32 {
	v := b.Read32(addr, access)
	rot := (addr & 3) * 8
	if rot == 0 {
		return v
	}
	return v>>rot | v<<(32-rot)
}

func (b *Bus) Read16Rotated(addr uint32, access Access) uint16 {
	v := b.Read16(addr, access)
	if addr&1 == 0 {
		return v
	}
	return v>>8 | v<<8
}

func (b *Bus) Read16Signed(addr uint32, access Access) int32 {
	if addr&1 != 0 {
		// LDRSH with an odd address degrades to LDRSB semantics.
		return int32(int8(b.Read8(addr, access)))
	}
	return int32(int16(b.Read16(addr, access)))
}

func (b *Bus) Read8Signed(addr uint32, access Access) int32 {
	return int32(int8(b.Read8(addr, access)))
}

func (b *Bus) read8(addr uint32) uint8 {
	switch classify(addr) {
	case regionBIOS:
		return uint8(b.biosRead32(addr) >> ((addr & 3) * 8))
	case regionEWRAM:
		return b.ewram[addr&(ewramSize-1)]
	case regionIWRAM:
		return b.iwram[addr&(iwramSize-1)]
	case regionIO:
		return b.io.Read8(addr & 0x3FF)
	case regionPALRAM:
		return b.video.ReadPalram8(addr)
	case regionVRAM:
		return b.video.ReadVRAM8(addr)
	case regionOAM:
		return b.video.ReadOAM8(addr)
	case regionGamePakWS0, regionGamePakWS1, regionGamePakWS2:
		return b.pak.Read8(addr)
	case regionSRAM:
		return b.sram.Read8(addr)
	default:
		return uint8(b.openBus(8, addr))
	}
}

func (b *Bus) read16(addr uint32) uint16 {
	switch classify(addr) {
	case regionBIOS:
		return uint16(b.biosRead32(addr) >> ((addr & 2) * 8))
	case regionEWRAM:
		return bits.Read16(b.ewram[:], addr&(ewramSize-1))
	case regionIWRAM:
		return bits.Read16(b.iwram[:], addr&(iwramSize-1))
	case regionIO:
		return b.io.ReadHalf(addr & 0x3FF)
	case regionPALRAM:
		return b.video.ReadPalram16(addr)
	case regionVRAM:
		return b.video.ReadVRAM16(addr)
	case regionOAM:
		return b.video.ReadOAM16(addr)
	case regionGamePakWS0, regionGamePakWS1, regionGamePakWS2:
		return b.pak.Read16(addr)
	case regionSRAM:
		v := b.sram.Read8(addr)
		return uint16(v) | uint16(v)<<8
	default:
		return uint16(b.openBus(16, addr))
	}
}

func (b *Bus) read32(addr uint32) uint32 {
	switch classify(addr) {
	case regionBIOS:
		return b.biosRead32(addr)
	case regionEWRAM:
		return bits.Read32(b.ewram[:], addr&(ewramSize-1))
	case regionIWRAM:
		return bits.Read32(b.iwram[:], addr&(iwramSize-1))
	case regionIO:
		return b.io.Read32(addr & 0x3FF)
	case regionPALRAM:
		return b.video.ReadPalram32(addr)
	case regionVRAM:
		return b.video.ReadVRAM32(addr)
	case regionOAM:
		return b.video.ReadOAM32(addr)
	case regionGamePakWS0, regionGamePakWS1, regionGamePakWS2:
		return b.pak.Read32(addr)
	case regionSRAM:
		v := uint32(b.sram.Read8(addr))
		return v | v<<8 | v<<16 | v<<24
	default:
		return b.openBus(32, addr)
	}
}

func (b *Bus) write8(addr uint32, v uint8) {
	switch classify(addr) {
	case regionEWRAM:
		b.ewram[addr&(ewramSize-1)] = v
	case regionIWRAM:
		b.iwram[addr&(iwramSize-1)] = v
	case regionIO:
		b.io.Write8(addr&0x3FF, v)
		if addr&0x3FF == 0x204 || addr&0x3FF == 0x205 {
			b.waitcntShadow = b.io.ReadHalf(0x204)
		}
	case regionPALRAM:
		b.video.WritePalram8(addr, v)
	case regionVRAM:
		b.video.WriteVRAM8(addr, v)
	case regionOAM:
		b.video.WriteOAM8(addr, v)
	case regionSRAM:
		b.sram.Write8(addr, v)
	}
	// BIOS and GamePak ROM writes are always ignored (§4.4).
}

func (b *Bus) write16(addr uint32, v uint16) {
	switch classify(addr) {
	case regionEWRAM:
		bits.Write16(b.ewram[:], addr&(ewramSize-1), v)
	case regionIWRAM:
		bits.Write16(b.iwram[:], addr&(iwramSize-1), v)
	case regionIO:
		b.io.WriteHalf(addr&0x3FF, v)
		if addr&0x3FF == 0x204 {
			b.waitcntShadow = v
		}
	case regionPALRAM:
		b.video.WritePalram16(addr, v)
	case regionVRAM:
		b.video.WriteVRAM16(addr, v)
	case regionOAM:
		b.video.WriteOAM16(addr, v)
	case regionSRAM:
		b.sram.Write8(addr, uint8(v))
	}
}

func (b *Bus) write32(addr uint32, v uint32) {
	switch classify(addr) {
	case regionEWRAM:
		bits.Write32(b.ewram[:], addr&(ewramSize-1), v)
	case regionIWRAM:
		bits.Write32(b.iwram[:], addr&(iwramSize-1), v)
	case regionIO:
		b.io.Write32(addr & 0x3FF, v)
		b.waitcntShadow = b.io.ReadHalf(0x204)
	case regionPALRAM:
		b.video.WritePalram32(addr, v)
	case regionVRAM:
		b.video.WriteVRAM32(addr, v)
	case regionOAM:
		b.video.WriteOAM32(addr, v)
	case regionSRAM:
		b.sram.Write8(addr, uint8(v))
	}
}

// --- dma.Bus ---

func (b *Bus) DMARead16(addr uint32, seq bool) uint16 { return b.Read16(addr, Access(seq)) }
func (b *Bus) DMARead32(addr uint32, seq bool) uint32 { return b.Read32(addr, Access(seq)) }
func (b *Bus) DMAWrite16(addr uint32, v uint16, seq bool) { b.Write16(addr, v, Access(seq)) }
func (b *Bus) DMAWrite32(addr uint32, v uint32, seq bool) { b.Write32(addr, v, Access(seq)) }
