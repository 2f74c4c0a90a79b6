package bits

import "testing"

func TestSignExtend(t *testing.T) {
	if got := SignExtend(0x7F, 8); got != 0x0000007F {
		t.Fatalf("got %08X want 0000007F", got)
	}
	if got := SignExtend(0x80, 8); got != 0xFFFFFF80 {
		t.Fatalf("got %08X want FFFFFF80", got)
	}
	if got := SignExtend(0xFFFFFF, 24); got != 0xFFFFFFFF {
		t.Fatalf("got %08X want FFFFFFFF", got)
	}
}

func TestRotateRight32(t *testing.T) {
	if got := RotateRight32(0x00000001, 0); got != 0x00000001 {
		t.Fatalf("ror0 got %08X", got)
	}
	if got := RotateRight32(0x00000001, 1); got != 0x80000000 {
		t.Fatalf("ror1 got %08X want 80000000", got)
	}
	if got := RotateRight32(0x12345678, 8); got != 0x78123456 {
		t.Fatalf("ror8 got %08X want 78123456", got)
	}
}

func TestReadWrite16_32(t *testing.T) {
	b := make([]byte, 8)
	Write16(b, 0, 0xBEEF)
	if got := Read16(b, 0); got != 0xBEEF {
		t.Fatalf("got %04X want BEEF", got)
	}
	Write32(b, 2, 0xDEADBEEF)
	if got := Read32(b, 2); got != 0xDEADBEEF {
		t.Fatalf("got %08X want DEADBEEF", got)
	}
	// little-endian byte order
	if b[2] != 0xEF || b[5] != 0xDE {
		t.Fatalf("unexpected byte order: % X", b)
	}
}

func TestOutOfRangeReadsReturnZero(t *testing.T) {
	b := make([]byte, 2)
	if got := Read32(b, 0); got != uint32(b[0])|uint32(b[1])<<8 {
		t.Fatalf("got %08X", got)
	}
}
