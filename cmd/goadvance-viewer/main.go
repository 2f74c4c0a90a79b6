// Command goadvance-viewer is a minimal windowed front-end: an ebiten.Game
// that drives one gba.System frame per Update and blits the framebuffer
// into the window texture each Draw. Host windowing/input and audio are
// explicitly outside the emulation core (see internal/gba); this command is
// the thin presentation layer the core's PressKey/ReleaseKey/Framebuffer
// contract is built for, in the spirit of the teacher's internal/ui.App but
// stripped to display and keypad forwarding only — no menu, no save
// states, no audio.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/gba-emu/goadvance/internal/cpu"
	"github.com/gba-emu/goadvance/internal/gba"
)

const (
	screenW = 240
	screenH = 160
)

type keyBinding struct {
	ebitenKey ebiten.Key
	gbaKey    gba.Key
}

var bindings = []keyBinding{
	{ebiten.KeyZ, gba.KeyA},
	{ebiten.KeyX, gba.KeyB},
	{ebiten.KeyShiftRight, gba.KeySelect},
	{ebiten.KeyEnter, gba.KeyStart},
	{ebiten.KeyRight, gba.KeyRight},
	{ebiten.KeyLeft, gba.KeyLeft},
	{ebiten.KeyUp, gba.KeyUp},
	{ebiten.KeyDown, gba.KeyDown},
	{ebiten.KeyA, gba.KeyL},
	{ebiten.KeyS, gba.KeyR},
}

type viewer struct {
	sys     *gba.System
	tex     *ebiten.Image
	rgba    []byte
	pressed map[gba.Key]bool
}

func newViewer(sys *gba.System) *viewer {
	return &viewer{
		sys:     sys,
		rgba:    make([]byte, screenW*screenH*4),
		pressed: make(map[gba.Key]bool),
	}
}

// Update recovers a *cpu.FatalError panic (§7, §10.2) into a returned error
// instead of crashing the window with a bare stack trace; ebiten.RunGame
// stops and returns it, and main reports the PC/opcode via log.Fatal.
func (v *viewer) Update() (err error) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(*cpu.FatalError); ok {
				err = fe
				return
			}
			panic(r)
		}
	}()
	for _, b := range bindings {
		down := ebiten.IsKeyPressed(b.ebitenKey)
		if down && !v.pressed[b.gbaKey] {
			v.sys.PressKey(b.gbaKey)
		} else if !down && v.pressed[b.gbaKey] {
			v.sys.ReleaseKey(b.gbaKey)
		}
		v.pressed[b.gbaKey] = down
	}
	v.sys.Frame()
	return nil
}

// bgr555ToRGBA expands the core's 15-bit BGR framebuffer into the 8-bit
// RGBA buffer ebiten's WritePixels expects.
func (v *viewer) bgr555ToRGBA() {
	fb := v.sys.Framebuffer()
	for i, px := range fb {
		off := i * 4
		v.rgba[off] = uint8(px&0x1F) << 3
		v.rgba[off+1] = uint8((px>>5)&0x1F) << 3
		v.rgba[off+2] = uint8((px>>10)&0x1F) << 3
		v.rgba[off+3] = 0xFF
	}
}

func (v *viewer) Draw(screen *ebiten.Image) {
	if v.tex == nil {
		v.tex = ebiten.NewImage(screenW, screenH)
	}
	v.bgr555ToRGBA()
	v.tex.WritePixels(v.rgba)
	screen.DrawImage(v.tex, nil)
}

func (v *viewer) Layout(outW, outH int) (int, int) { return screenW, screenH }

func main() {
	romPath := flag.String("rom", "", "path to GamePak ROM image")
	biosPath := flag.String("bios", "", "optional BIOS image")
	scale := flag.Int("scale", 3, "integer window upscaling factor")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("-rom is required")
	}
	rom, err := os.ReadFile(*romPath)
	if err != nil {
		log.Fatalf("read %s: %v", *romPath, err)
	}
	var bios []byte
	if *biosPath != "" {
		bios, err = os.ReadFile(*biosPath)
		if err != nil {
			log.Fatalf("read %s: %v", *biosPath, err)
		}
	}

	sys := gba.New(rom, bios, len(bios) == 0)

	ebiten.SetWindowTitle("goadvance")
	ebiten.SetWindowSize(screenW*(*scale), screenH*(*scale))
	if err := ebiten.RunGame(newViewer(sys)); err != nil {
		log.Fatal(err)
	}
}
