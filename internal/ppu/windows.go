package ppu

// computeWindowMasks fills win0Mask/win1Mask for the current scanline from
// the WIN0H/V and WIN1H/V rectangles. Each register packs X1/Y1 (left/top,
// inclusive) in the high byte and X2/Y2 (right/bottom, exclusive) in the
// low byte; when the left/top bound is greater than the right/bottom one
// the rectangle wraps around the screen.
func (p *PPU) computeWindowMasks() {
	p.fillWindowMask(&p.win0Mask, p.win0h, p.win0v)
	p.fillWindowMask(&p.win1Mask, p.win1h, p.win1v)
}

func (p *PPU) fillWindowMask(mask *[ScreenWidth]bool, h, v uint16) {
	x1, x2 := int(h>>8), int(h&0xFF)
	y1, y2 := int(v>>8), int(v&0xFF)

	inV := withinWrapped(int(p.vcount), y1, y2, ScreenHeight)
	for x := 0; x < ScreenWidth; x++ {
		mask[x] = inV && withinWrapped(x, x1, x2, ScreenWidth)
	}
}

// withinWrapped reports whether v lies in [lo, hi) on a ring of the given
// size, wrapping when lo > hi.
func withinWrapped(v, lo, hi, size int) bool {
	lo %= size
	if hi > size {
		hi = size
	}
	if lo <= hi {
		return v >= lo && v < hi
	}
	return v >= lo || v < hi
}
