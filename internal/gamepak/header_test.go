package gamepak

import "testing"

func buildROM(title, gameCode, makerCode string, version byte) []byte {
	rom := make([]byte, 0x1000)
	copy(rom[headerTitleStart:headerTitleEnd], title)
	copy(rom[headerGameCode:headerMakerCode], gameCode)
	copy(rom[headerMakerCode:headerFixedValue], makerCode)
	rom[headerFixedValue] = 0x96
	rom[headerSoftwareVer] = version

	var sum byte
	for addr := headerTitleStart; addr <= headerSoftwareVer; addr++ {
		sum -= rom[addr]
	}
	sum -= 0x19
	rom[headerChecksum] = sum
	return rom
}

func TestParseHeaderReadsFixedFields(t *testing.T) {
	rom := buildROM("TESTGAME", "ABCE", "01", 1)
	h := ParseHeader(rom)
	if h.Title != "TESTGAME" {
		t.Fatalf("Title = %q, want %q", h.Title, "TESTGAME")
	}
	if h.GameCode != "ABCE" {
		t.Fatalf("GameCode = %q, want %q", h.GameCode, "ABCE")
	}
	if h.MakerCode != "01" {
		t.Fatalf("MakerCode = %q, want %q", h.MakerCode, "01")
	}
	if h.FixedValue != 0x96 {
		t.Fatalf("FixedValue = %#02x, want 0x96", h.FixedValue)
	}
	if h.SoftwareVer != 1 {
		t.Fatalf("SoftwareVer = %d, want 1", h.SoftwareVer)
	}
}

func TestChecksumOKValidatesComplementSum(t *testing.T) {
	rom := buildROM("OK", "OKAE", "01", 0)
	if !ChecksumOK(rom) {
		t.Fatalf("ChecksumOK = false, want true for freshly computed checksum")
	}
	rom[headerTitleStart] ^= 0xFF
	if ChecksumOK(rom) {
		t.Fatalf("ChecksumOK = true, want false after corrupting a header byte")
	}
}

func TestParseHeaderOnShortROMReadsZeros(t *testing.T) {
	short := make([]byte, 0x10)
	h := ParseHeader(short)
	if h.Title != "" {
		t.Fatalf("Title = %q, want empty on truncated ROM", h.Title)
	}
	if h.FixedValue != 0 {
		t.Fatalf("FixedValue = %#02x, want 0 on truncated ROM", h.FixedValue)
	}
}
