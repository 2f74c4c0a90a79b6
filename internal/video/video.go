// Package video owns PALRAM, VRAM and OAM. The teacher's PPU folded this
// storage directly into the PPU struct because the Game Boy has one small
// VRAM bank and no sprite-attribute byte-write quirks worth separating out;
// the GBA's three regions have independent mirroring and byte-write rules
// (§4.4) that are cleaner as their own package the bus and PPU both import.
package video

import "github.com/gba-emu/goadvance/internal/bits"

const (
	PalramSize = 1 * 1024
	VRAMSize   = 96 * 1024
	// VRAM is addressed within a 128 KiB window; its upper 64 KiB (bit 16
	// set) map onto the last 32 KiB of the 96 KiB bank (mask A), and its
	// lower 64 KiB map onto the 64 KiB base block (mask B).
	vramWindow        = 128 * 1024
	vramMaskABoundary = 0x10000
	vramUpperMask     = 0x8000 - 1 // mask A: 32 KiB upper block
	vramBaseMask      = 0x10000 - 1 // mask B: 64 KiB base block
	OAMSize           = 1 * 1024

	// ObjBitmapCutoff and ObjTileCutoff mark where BG-region VRAM ends and
	// OBJ-region VRAM starts, depending on whether the video mode is
	// bitmapped (modes 3/4/5) or tile-based (modes 0/1/2).
	ObjTileCutoff   = 0x10000
	ObjBitmapCutoff = 0x14000
)

// Memory holds PALRAM, VRAM and OAM plus the one piece of PPU state
// (bitmap-mode flag) needed to resolve the VRAM byte-write quirk.
type Memory struct {
	palram [PalramSize]byte
	vram   [VRAMSize]byte
	oam    [OAMSize]byte

	bitmapMode bool
}

func New() *Memory { return &Memory{} }

// SetBitmapMode records whether the current video mode is 3, 4 or 5, which
// changes where the BG/OBJ byte-write cutoff in VRAM falls.
func (m *Memory) SetBitmapMode(bitmap bool) { m.bitmapMode = bitmap }

func (m *Memory) objCutoff() uint32 {
	if m.bitmapMode {
		return ObjBitmapCutoff
	}
	return ObjTileCutoff
}

// vramOffset maps a raw VRAM-relative address to its mirrored offset within
// the 96 KiB bank per §4.4's dual mirror rule.
func (m *Memory) vramOffset(addr uint32) uint32 {
	addr &= vramWindow - 1
	if addr&vramMaskABoundary != 0 {
		// Upper 64 KiB of the window mirror the last 32 KiB of VRAM.
		return vramMaskABoundary + (addr & vramUpperMask)
	}
	return addr & vramBaseMask
}

// --- PALRAM ---

func (m *Memory) ReadPalram8(addr uint32) uint8 {
	return m.palram[addr&(PalramSize-1)]
}

func (m *Memory) ReadPalram16(addr uint32) uint16 {
	return bits.Read16(m.palram[:], addr&(PalramSize-1)&^1)
}

func (m *Memory) ReadPalram32(addr uint32) uint32 {
	return bits.Read32(m.palram[:], addr&(PalramSize-1)&^3)
}

// WritePalram8 duplicates the written byte to both halves of the containing
// halfword: PALRAM has no true byte-write path.
func (m *Memory) WritePalram8(addr uint32, v uint8) {
	a := addr & (PalramSize - 1) &^ 1
	m.palram[a] = v
	m.palram[a+1] = v
}

func (m *Memory) WritePalram16(addr uint32, v uint16) {
	bits.Write16(m.palram[:], addr&(PalramSize-1)&^1, v)
}

func (m *Memory) WritePalram32(addr uint32, v uint32) {
	bits.Write32(m.palram[:], addr&(PalramSize-1)&^3, v)
}

// --- VRAM ---

func (m *Memory) ReadVRAM8(addr uint32) uint8 {
	return m.vram[m.vramOffset(addr)]
}

func (m *Memory) ReadVRAM16(addr uint32) uint16 {
	return bits.Read16(m.vram[:], m.vramOffset(addr)&^1)
}

func (m *Memory) ReadVRAM32(addr uint32) uint32 {
	return bits.Read32(m.vram[:], m.vramOffset(addr)&^3)
}

// WriteVRAM8 implements the BG/OBJ byte-write quirk: a byte write landing in
// the BG-region duplicates to both halves of the halfword; a byte write
// landing in the OBJ region is dropped entirely.
func (m *Memory) WriteVRAM8(addr uint32, v uint8) {
	off := m.vramOffset(addr)
	if off >= m.objCutoff() {
		return
	}
	a := off &^ 1
	m.vram[a] = v
	m.vram[a+1] = v
}

func (m *Memory) WriteVRAM16(addr uint32, v uint16) {
	bits.Write16(m.vram[:], m.vramOffset(addr)&^1, v)
}

func (m *Memory) WriteVRAM32(addr uint32, v uint32) {
	bits.Write32(m.vram[:], m.vramOffset(addr)&^3, v)
}

// VRAMBytes exposes the backing VRAM array directly. The PPU's decoders
// read through ReadVRAM8/ReadVRAM16 instead.
func (m *Memory) VRAMBytes() []byte { return m.vram[:] }

// --- OAM ---

func (m *Memory) ReadOAM8(addr uint32) uint8 {
	return m.oam[addr&(OAMSize-1)]
}

func (m *Memory) ReadOAM16(addr uint32) uint16 {
	return bits.Read16(m.oam[:], addr&(OAMSize-1)&^1)
}

func (m *Memory) ReadOAM32(addr uint32) uint32 {
	return bits.Read32(m.oam[:], addr&(OAMSize-1)&^3)
}

// WriteOAM8 is always dropped: OAM has no byte-write path at all.
func (m *Memory) WriteOAM8(addr uint32, v uint8) {}

func (m *Memory) WriteOAM16(addr uint32, v uint16) {
	bits.Write16(m.oam[:], addr&(OAMSize-1)&^1, v)
}

func (m *Memory) WriteOAM32(addr uint32, v uint32) {
	bits.Write32(m.oam[:], addr&(OAMSize-1)&^3, v)
}

func (m *Memory) OAMBytes() []byte { return m.oam[:] }
func (m *Memory) PalramBytes() []byte { return m.palram[:] }
