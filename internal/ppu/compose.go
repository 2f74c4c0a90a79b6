package ppu

// renderScanline implements the seven-step pipeline from spec §4.6 for the
// current VCOUNT: initialise to backdrop, clear work buffers, compute
// windows, render backgrounds per video mode, render objects, merge by
// priority respecting windows, then copy into the back buffer.
func (p *PPU) renderScanline() {
	var composite [ScreenWidth]uint16

	backdrop := p.mem.ReadPalram16(0) & 0x7FFF
	if p.forceBlank() {
		backdrop = 0
	}
	for x := range composite {
		composite[x] = backdrop
	}

	for bg := range p.bgLine {
		for x := range p.bgLine[bg] {
			p.bgLine[bg][x] = transparent
		}
	}

	p.computeWindowMasks()

	if !p.forceBlank() {
		p.renderBackgrounds()
		p.renderObjects()
		p.merge(&composite)
	}

	base := int(p.vcount) * ScreenWidth
	for x := 0; x < ScreenWidth; x++ {
		p.back[base+x] = composite[x]
	}
}

func (p *PPU) renderBackgrounds() {
	switch p.videoMode() {
	case 0:
		for i := 0; i < 4; i++ {
			if p.bgEnabled(i) {
				p.renderText(i)
			}
		}
	case 1:
		if p.bgEnabled(0) {
			p.renderText(0)
		}
		if p.bgEnabled(1) {
			p.renderText(1)
		}
		if p.bgEnabled(2) {
			p.renderAffineStub(2)
		}
	case 2:
		if p.bgEnabled(2) {
			p.renderAffineStub(2)
		}
		if p.bgEnabled(3) {
			p.renderAffineStub(3)
		}
	case 3:
		if p.bgEnabled(2) {
			p.renderBitmapDirect(240, 160, 0)
		}
	case 4:
		if p.bgEnabled(2) {
			page := uint32(0)
			if p.dispcnt&(1<<4) != 0 {
				page = 0xA000
			}
			p.renderBitmap8bpp(page)
		}
	case 5:
		if p.bgEnabled(2) {
			page := uint32(0)
			if p.dispcnt&(1<<4) != 0 {
				page = 0xA000
			}
			p.renderBitmapDirect(160, 128, page)
		}
	}
}

// merge composites bgLine/objLine into out, processing priority 3 down to
// 0: at each priority, every enabled background at that priority merges
// first, then objects at that priority, with windowing gating which layer
// types are visible per pixel.
func (p *PPU) merge(out *[ScreenWidth]uint16) {
	activeBGs := p.activeBackgroundsForMode(p.videoMode())

	for pr := 3; pr >= 0; pr-- {
		for _, bg := range activeBGs {
			if !p.bgEnabled(bg) || int(p.bgcnt[bg]&3) != pr {
				continue
			}
			for x := 0; x < ScreenWidth; x++ {
				c := p.bgLine[bg][x]
				if c == transparent {
					continue
				}
				if !p.windowAllows(bg, x) {
					continue
				}
				out[x] = c
			}
		}
		for x := 0; x < ScreenWidth; x++ {
			c := p.objLine[pr][x]
			if c == transparent {
				continue
			}
			if !p.windowAllows(4, x) {
				continue
			}
			out[x] = c
		}
	}
}

func (p *PPU) activeBackgroundsForMode(mode int) []int {
	switch mode {
	case 0:
		return []int{0, 1, 2, 3}
	case 1:
		return []int{0, 1, 2}
	case 2:
		return []int{2, 3}
	default:
		return []int{2}
	}
}

// windowAllows reports whether the given layer (0-3 = BG0-3, 4 = OBJ) is
// visible at column x, per the first matching window among
// {WIN0, WIN1, WIN_OBJ, WIN_OUT}.
func (p *PPU) windowAllows(layer int, x int) bool {
	if !p.windowingEnabled() {
		return true
	}
	if p.win0Enabled() && p.win0Mask[x] {
		return layerBit(p.winin, layer)
	}
	if p.win1Enabled() && p.win1Mask[x] {
		return layerBit(p.winin>>8, layer)
	}
	if p.winObjEnabled() && p.winObjMask[x] {
		return layerBit(p.winout>>8, layer)
	}
	return layerBit(p.winout, layer)
}

func layerBit(ctrl uint16, layer int) bool {
	if layer < 4 {
		return ctrl&(1<<uint(layer)) != 0
	}
	return ctrl&(1<<4) != 0
}
