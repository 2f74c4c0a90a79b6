package ppu

const (
	objTileBase = 0x10000 // OBJ tile set lives in the upper half of VRAM
	objPalBase  = 0x200   // OBJ palette lives in the upper half of PALRAM
)

const (
	objModeNormal = 0
	objModeBlend  = 1
	objModeWindow = 2
)

// objSizeW/objSizeH are indexed [shape][size], per the ARM7TDMI/GBA OBJ
// attribute size matrix.
var objSizeW = [3][4]int{
	{8, 16, 32, 64},  // square
	{16, 32, 32, 64}, // horizontal
	{8, 8, 16, 32},   // vertical
}
var objSizeH = [3][4]int{
	{8, 16, 32, 64},
	{8, 8, 16, 32},
	{16, 32, 32, 64},
}

// renderObjects scans OAM back-to-front (127..0, so a lower index wins any
// overlap) and fills p.objLine[priority] and, for WINDOW-mode objects,
// p.winObjMask for the current scanline.
func (p *PPU) renderObjects() {
	for pr := range p.objLine {
		for x := range p.objLine[pr] {
			p.objLine[pr][x] = transparent
		}
	}
	for x := range p.winObjMask {
		p.winObjMask[x] = false
	}
	if !p.objEnabled() {
		return
	}

	bitmapMode := p.videoMode() >= 3
	line := int(p.vcount)

	for i := 127; i >= 0; i-- {
		base := uint32(i) * 8
		attr0 := p.mem.ReadOAM16(base)
		affine := attr0&(1<<8) != 0
		if !affine && attr0&(1<<9) != 0 {
			continue // disabled
		}
		attr1 := p.mem.ReadOAM16(base + 2)
		attr2 := p.mem.ReadOAM16(base + 4)

		shape := int(attr0>>14) & 3
		if shape == 3 {
			continue // prohibited shape
		}
		size := int(attr1>>14) & 3
		w, h := objSizeW[shape][size], objSizeH[shape][size]

		objY := int(attr0 & 0xFF)
		if objY+h > 256 {
			objY -= 256
		}
		if line < objY || line >= objY+h {
			continue
		}

		objX := int(attr1 & 0x1FF)
		if objX >= 240 {
			objX -= 512
		}

		mode := int(attr0>>10) & 3
		colour256 := attr0&(1<<13) != 0
		tileIndex := uint32(attr2 & 0x3FF)
		if bitmapMode && tileIndex < 512 {
			continue // overlaps the BG bitmap region
		}
		priority := int(attr2>>10) & 3
		paletteNum := uint8(attr2>>12) & 0xF

		flipH, flipV := false, false
		if !affine {
			flipH = attr1&(1<<12) != 0
			flipV = attr1&(1<<13) != 0
		}

		rowStride := 32
		if p.obj1D() {
			rowStride = w / 8
			if colour256 {
				rowStride *= 2
			}
		}

		for lx := 0; lx < w; lx++ {
			screenX := objX + lx
			if screenX < 0 || screenX >= ScreenWidth {
				continue
			}
			px, py := lx, line-objY
			if flipH {
				px = w - 1 - px
			}
			if flipV {
				py = h - 1 - py
			}
			tileCol, pixX := px/8, px%8
			tileRow, pixY := py/8, py%8

			var colourIdx uint8
			if colour256 {
				tileNum := tileIndex + uint32(tileRow*rowStride+tileCol*2)
				addr := objTileBase + tileNum*32 + uint32(pixY*8+pixX)
				colourIdx = p.mem.ReadVRAM8(addr)
			} else {
				tileNum := tileIndex + uint32(tileRow*rowStride+tileCol)
				addr := objTileBase + tileNum*32 + uint32(pixY*4+pixX/2)
				b := p.mem.ReadVRAM8(addr)
				if pixX%2 == 0 {
					colourIdx = b & 0xF
				} else {
					colourIdx = b >> 4
				}
			}
			if colourIdx == 0 {
				continue
			}

			if mode == objModeWindow {
				p.winObjMask[screenX] = true
				continue
			}
			p.objLine[priority][screenX] = p.objLookupColour(colourIdx, paletteNum, colour256)
		}
	}
}
