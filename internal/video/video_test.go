package video

import "testing"

func TestPalramByteWriteDuplicatesToHalfword(t *testing.T) {
	m := New()
	m.WritePalram8(4, 0x55)
	if m.ReadPalram16(4) != 0x5555 {
		t.Fatalf("got %04X want 5555", m.ReadPalram16(4))
	}
}

func TestVRAMByteWriteDroppedInObjRegionTileMode(t *testing.T) {
	m := New()
	m.SetBitmapMode(false)
	m.WriteVRAM16(ObjTileCutoff, 0xAAAA)
	m.WriteVRAM8(ObjTileCutoff, 0x11)
	if m.ReadVRAM16(ObjTileCutoff) != 0xAAAA {
		t.Fatal("OBJ-region byte write should have been dropped")
	}
}

func TestVRAMByteWriteDuplicatesInBGRegion(t *testing.T) {
	m := New()
	m.SetBitmapMode(false)
	m.WriteVRAM8(2, 0x77)
	if m.ReadVRAM16(2) != 0x7777 {
		t.Fatal("BG-region byte write should duplicate to both halves")
	}
}

func TestVRAMCutoffMovesInBitmapMode(t *testing.T) {
	m := New()
	m.SetBitmapMode(true)
	// In bitmap modes the cutoff is 0x14000, so a byte write just below
	// ObjBitmapCutoff but at/after ObjTileCutoff is still BG-region.
	m.WriteVRAM16(ObjTileCutoff, 0xBEEF)
	m.WriteVRAM8(ObjTileCutoff, 0x11)
	if m.ReadVRAM16(ObjTileCutoff) != 0x1111 {
		t.Fatal("expected byte write below bitmap cutoff to duplicate")
	}
}

func TestOAMByteWritesAlwaysDropped(t *testing.T) {
	m := New()
	m.WriteOAM16(0, 0x1234)
	m.WriteOAM8(0, 0xFF)
	if m.ReadOAM16(0) != 0x1234 {
		t.Fatal("OAM byte write should be dropped")
	}
}

func TestVRAMMirroring(t *testing.T) {
	m := New()
	m.WriteVRAM16(0x18000, 0xCAFE) // bit16 set -> mask A, folds into last 32K
	if m.ReadVRAM16(0x10000) != 0xCAFE {
		t.Fatal("upper 32K mirror not aliased as expected")
	}
}
