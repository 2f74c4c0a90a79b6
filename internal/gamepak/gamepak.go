// Package gamepak models the cartridge ROM image. Unlike the teacher's
// internal/cart package, which dispatches across MBC1/MBC3/MBC5 bank
// switching, the GBA maps the whole GamePak linearly: save-file persistence
// (SRAM/Flash/EEPROM write-back) is explicitly out of scope, so there is no
// banking state to own, only a flat, fixed-size, zero-padded byte store.
package gamepak

import "github.com/gba-emu/goadvance/internal/bits"

const (
	// Size is the address-mask size GamePak reads are wrapped to.
	Size = 32 * 1024 * 1024
	// AddrMask is applied to any address before indexing into the ROM.
	AddrMask = Size - 1
)

// GamePak is a read-only byte store. Writes are ignored: cartridge save
// hardware emulation is a non-goal of this core.
type GamePak struct {
	rom [Size]byte
	len int
}

// New pads or truncates data to Size bytes, per the address mask.
func New(data []byte) *GamePak {
	g := &GamePak{}
	n := len(data)
	if n > Size {
		n = Size
	}
	copy(g.rom[:n], data[:n])
	g.len = n
	return g
}

// Len reports the number of bytes actually supplied at construction
// (before zero-padding), useful for header parsing.
func (g *GamePak) Len() int { return g.len }

func (g *GamePak) Read8(addr uint32) uint8 {
	return g.rom[addr&AddrMask]
}

func (g *GamePak) Read16(addr uint32) uint16 {
	return bits.Read16(g.rom[:], addr&(AddrMask&^1))
}

func (g *GamePak) Read32(addr uint32) uint32 {
	return bits.Read32(g.rom[:], addr&(AddrMask&^3))
}

// Write is a no-op: GamePak ROM writes are always ignored.
func (g *GamePak) Write8(addr uint32, v uint8)   {}
func (g *GamePak) Write16(addr uint32, v uint16) {}
func (g *GamePak) Write32(addr uint32, v uint32) {}

// SRAMSize is the byte-addressable save-RAM window at 0x0E00_0000. The core
// backs it with volatile bytes only: write-back to a save file is explicitly
// out of scope, so SRAM content does not outlive the process.
const SRAMSize = 64 * 1024

// SRAM is the 8-bit-wide save RAM window.
type SRAM struct {
	data [SRAMSize]byte
}

func NewSRAM() *SRAM { return &SRAM{} }

func (s *SRAM) Read8(addr uint32) uint8    { return s.data[addr%SRAMSize] }
func (s *SRAM) Write8(addr uint32, v uint8) { s.data[addr%SRAMSize] = v }
