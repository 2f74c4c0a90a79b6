package main

import (
	"flag"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gba-emu/goadvance/internal/cpu"
	"github.com/gba-emu/goadvance/internal/gba"
)

type cliFlags struct {
	ROMPath  string
	BIOSPath string
	SkipBIOS bool
	Frames   int
	PNGOut   string
	Expect   string
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.ROMPath, "rom", "", "path to GamePak ROM image")
	flag.StringVar(&f.BIOSPath, "bios", "", "optional BIOS image")
	flag.BoolVar(&f.SkipBIOS, "skip-bios", true, "jump straight to the cartridge entry point")
	flag.IntVar(&f.Frames, "frames", 60, "frames to run")
	flag.StringVar(&f.PNGOut, "outpng", "", "write the final framebuffer to PNG at this path")
	flag.StringVar(&f.Expect, "expect", "", "assert framebuffer CRC32 (hex)")
	flag.Parse()
	return f
}

func mustRead(path string) []byte {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	return data
}

// bgr555RGBA expands the core's 15-bit BGR framebuffer into 8-bit RGBA for
// PNG output; 5-bit channels are shifted into the top bits of each byte,
// leaving the low three bits zero.
func bgr555RGBA(fb []uint16, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, px := range fb {
		r := uint8(px&0x1F) << 3
		g := uint8((px>>5)&0x1F) << 3
		b := uint8((px>>10)&0x1F) << 3
		off := i * 4
		img.Pix[off] = r
		img.Pix[off+1] = g
		img.Pix[off+2] = b
		img.Pix[off+3] = 0xFF
	}
	return img
}

// runFrames drives the system for n frames, recovering a *cpu.FatalError
// panic (§7, §10.2) into a diagnostic log.Fatalf naming the PC and opcode
// that triggered it instead of letting it crash with a bare Go stack trace.
func runFrames(sys *gba.System, n int) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(*cpu.FatalError); ok {
				log.Fatalf("goadvance: fatal: %v", fe)
			}
			panic(r)
		}
	}()
	for i := 0; i < n; i++ {
		sys.Frame()
	}
}

func main() {
	f := parseFlags()
	if f.ROMPath == "" {
		log.Fatal("-rom is required")
	}
	rom := mustRead(f.ROMPath)
	bios := mustRead(f.BIOSPath)

	skipBIOS := f.SkipBIOS || len(bios) == 0
	sys := gba.New(rom, bios, skipBIOS)

	frames := f.Frames
	if frames <= 0 {
		frames = 1
	}

	start := time.Now()
	runFrames(sys, frames)
	elapsed := time.Since(start)

	fb := sys.Framebuffer()
	rawBytes := make([]byte, len(fb)*2)
	for i, px := range fb {
		rawBytes[i*2] = uint8(px)
		rawBytes[i*2+1] = uint8(px >> 8)
	}
	crc := crc32.ChecksumIEEE(rawBytes)
	fps := float64(frames) / elapsed.Seconds()

	log.Printf("goadvance: frames=%d elapsed=%s fps=%.2f fb_crc32=%08x",
		frames, elapsed.Truncate(time.Millisecond), fps, crc)

	if f.PNGOut != "" {
		img := bgr555RGBA(fb, 240, 160)
		out, err := os.Create(f.PNGOut)
		if err != nil {
			log.Fatalf("create %s: %v", f.PNGOut, err)
		}
		defer out.Close()
		if err := png.Encode(out, img); err != nil {
			log.Fatalf("encode PNG: %v", err)
		}
		log.Printf("wrote %s", f.PNGOut)
	}

	if f.Expect != "" {
		want := strings.TrimPrefix(strings.ToLower(f.Expect), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			log.Fatalf("checksum mismatch: got %s, want %s", got, want)
		}
	}
}
