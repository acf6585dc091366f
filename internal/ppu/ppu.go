// Package ppu implements the picture processing unit: the scanline/dot
// raster engine, the loopy address registers, sprite evaluation, and the
// register file at $2000-$2007.
//
// The PPU runs on the catch-up discipline: it remembers the master time of
// the last dot it processed and advances dot by dot to any requested time.
// Register accesses from the CPU catch the PPU up to the access time
// first, so CPU and PPU observe each other with sub-instruction precision.
package ppu

import "nescore/internal/cartridge"

// Memory is the PPU's view of the cartridge: pattern tables, the mirroring
// pad, and the address-bus observation hook. cartridge.Mapper satisfies it.
type Memory interface {
	PPURead(address uint16) uint8
	PPUWrite(address uint16, value uint8)
	Mirroring() cartridge.MirrorMode
	OnPPUAddress(address uint16)
}

// VideoSink receives one palette-index pixel per visible dot, left to
// right, top to bottom, then a frame-done notification.
type VideoSink interface {
	PutPixel(paletteIndex uint8, tint uint8)
	FrameDone()
}

// Params carries the per-TV-system timing constants.
type Params struct {
	Divider       int64 // master ticks per dot
	VisibleLines  int
	PostRender    int
	VBlankLines   int
	OddFrameSkip  bool
}

// ParamsFor returns the timing table for a TV system.
func ParamsFor(tv cartridge.TVSystem) Params {
	switch tv {
	case cartridge.PAL:
		return Params{Divider: 5, VisibleLines: 240, PostRender: 1, VBlankLines: 70, OddFrameSkip: false}
	case cartridge.Dendy:
		return Params{Divider: 5, VisibleLines: 240, PostRender: 1, VBlankLines: 70, OddFrameSkip: false}
	default:
		return Params{Divider: 4, VisibleLines: 240, PostRender: 1, VBlankLines: 20, OddFrameSkip: true}
	}
}

const dotsPerLine = 341

// spritePixel is one entry of the prerendered sprite line. owner tracks
// which OAM index claimed the pixel so the two pattern planes of one
// sprite merge while later sprites lose conflicts; -1 means unclaimed.
type spritePixel struct {
	pattern uint8 // 2-bit pattern, 0 = transparent
	palette uint8 // sprite palette select
	behind  bool  // priority bit: behind opaque background
	sprite0 bool
	owner   int
}

// PPU is the raster engine.
type PPU struct {
	mem    Memory
	params Params

	// Loopy registers.
	v     uint16
	t     uint16
	fineX uint8
	w     bool

	// Control register ($2000).
	incrementStride  uint16
	spriteTableBase  uint16
	bgTableBase      uint16
	tallSprites      bool
	nmiEnable        bool

	// Mask register ($2001).
	greyscale bool
	clipBG    bool // show background in the left 8 pixels when false
	clipSpr   bool
	showBG    bool
	showSpr   bool
	tint      uint8 // red/green/blue emphasis bits

	// Status register ($2002).
	vblank         bool
	sprite0Hit     bool
	spriteOverflow bool

	oamAddr uint8
	oam     [256]uint8

	vram    [0x1000]uint8 // four nametables; mirroring folds them
	palette [32]uint8

	readBuffer uint8

	// Raster position. Scanline -1 is the pre-render line.
	scanline int
	dot      int
	odd      bool

	// Background fetch pipeline.
	ntLatch      uint8
	atLatch      uint8
	patternLow   uint8
	patternHigh  uint8
	shiftLow     uint16
	shiftHigh    uint16
	attrShiftLow uint16
	attrShiftHigh uint16

	// Sprite line prepared during the previous scanline.
	spriteLine [256]spritePixel
	spriteCount int
	spriteUnits [8]spriteUnit

	time        int64
	dots        int64 // monotonic processed-dot counter, never rebased
	frameStart  int64
	vblankSetAt int64

	video     VideoSink
	nmi       func(time int64)
	nmiCancel func()
	frameFn   func(duration int64)
}

// spriteUnit holds one evaluated sprite while its pattern is fetched.
type spriteUnit struct {
	y, tile, attr, x uint8
	index            int
}

// New creates a PPU against the given memory with the given timing table.
func New(mem Memory, params Params) *PPU {
	p := &PPU{mem: mem, params: params, incrementStride: 1}
	p.Reset()
	return p
}

// Reset returns the raster to the pre-render line. Palette and VRAM
// contents persist, matching hardware reset behaviour.
func (p *PPU) Reset() {
	p.scanline = -1
	p.dot = 0
	p.odd = false
	p.w = false
	p.vblank = false
	p.sprite0Hit = false
	p.spriteOverflow = false
	p.frameStart = p.time
}

// SetVideoSink wires the video front-end.
func (p *PPU) SetVideoSink(sink VideoSink) { p.video = sink }

// SetNMICallback wires the NMI line toward the CPU. The callback receives
// the master time of the edge.
func (p *PPU) SetNMICallback(fn func(time int64)) { p.nmi = fn }

// SetNMICancel wires the callback that revokes a not-yet-serviced NMI,
// used by the VBlank-read suppression race.
func (p *PPU) SetNMICancel(fn func()) { p.nmiCancel = fn }

// SetFrameCallback wires the frame-timing callback; it receives the
// master-tick duration of each completed frame.
func (p *PPU) SetFrameCallback(fn func(duration int64)) { p.frameFn = fn }

// Time returns the master time of the last processed dot.
func (p *PPU) Time() int64 { return p.time }

// SetTime aligns the PPU's clock, used at power-up.
func (p *PPU) SetTime(t int64) {
	p.time = t
	p.frameStart = t
}

// ShiftTime rebases the PPU clock when the scheduler rebases the timeline.
func (p *PPU) ShiftTime(delta int64) {
	p.time -= delta
	p.frameStart -= delta
	p.vblankSetAt -= delta
}

// OAM exposes object attribute memory for snapshotting.
func (p *PPU) OAM() []uint8 { return p.oam[:] }

// VRAM exposes nametable memory for snapshotting.
func (p *PPU) VRAM() []uint8 { return p.vram[:] }

// Palette exposes palette memory for snapshotting.
func (p *PPU) Palette() []uint8 { return p.palette[:] }

// Scanline returns the current scanline, -1 for pre-render.
func (p *PPU) Scanline() int { return p.scanline }

// Dot returns the current dot within the scanline.
func (p *PPU) Dot() int { return p.dot }

// Sprite0Hit reports the sprite-0 collision flag.
func (p *PPU) Sprite0Hit() bool { return p.sprite0Hit }

// VBlank reports the vertical-blank flag.
func (p *PPU) VBlank() bool { return p.vblank }

func (p *PPU) renderingEnabled() bool { return p.showBG || p.showSpr }

func (p *PPU) totalLines() int {
	return 1 + p.params.VisibleLines + p.params.PostRender + p.params.VBlankLines
}

// CatchUp advances the raster until processing one more dot would pass the
// target master time.
func (p *PPU) CatchUp(target int64) {
	for p.time+p.params.Divider <= target {
		p.time += p.params.Divider
		p.dots++
		p.tickDot()
	}
}

// Dots returns the count of processed dots since power-up. Unlike master
// time it is never rebased, so dot-distance filters can rely on it.
func (p *PPU) Dots() int64 { return p.dots }

// linearDot converts a raster position to a dot index from the start of
// the pre-render line.
func (p *PPU) linearDot(scanline, dot int) int64 {
	return int64(scanline+1)*dotsPerLine + int64(dot)
}

// timeOf returns the master time at which the given raster position is
// next processed, ignoring the odd-frame skip. The position at
// (p.scanline, p.dot) is the next unprocessed dot, due at time+Divider.
func (p *PPU) timeOf(scanline, dot int) int64 {
	total := int64(p.totalLines()) * dotsPerLine
	delta := (p.linearDot(scanline, dot) - p.linearDot(p.scanline, p.dot) + total) % total
	return p.time + (delta+1)*p.params.Divider
}

// NextVBlankTime returns the master time VBlank is next set.
func (p *PPU) NextVBlankTime() int64 {
	return p.timeOf(p.params.VisibleLines+p.params.PostRender, 1)
}

// NextFrameTime returns the master time the current frame is next
// completed (entry to the post-render line). The odd-frame skip may
// complete it one dot sooner.
func (p *PPU) NextFrameTime() int64 {
	return p.timeOf(p.params.VisibleLines, 0)
}

// tickDot processes the dot at the current raster position, then advances.
func (p *PPU) tickDot() {
	visible := p.scanline >= 0 && p.scanline < p.params.VisibleLines
	prerender := p.scanline == -1
	vblankLine := p.params.VisibleLines + p.params.PostRender

	if p.scanline == vblankLine && p.dot == 1 {
		p.vblank = true
		p.vblankSetAt = p.time
		if p.nmiEnable && p.nmi != nil {
			p.nmi(p.time)
		}
	}

	if prerender && p.dot == 1 {
		p.vblank = false
		p.sprite0Hit = false
		p.spriteOverflow = false
	}

	if p.renderingEnabled() && (visible || prerender) {
		p.renderDot(visible, prerender)
	} else if visible && p.dot >= 1 && p.dot <= 256 {
		// Rendering disabled: the backdrop colour leaks through. The
		// palette entry at V shows when V points into palette space.
		idx := uint16(0)
		if p.v&0x3F00 == 0x3F00 {
			idx = p.v & 0x1F
		}
		p.emitPixel(p.readPaletteIndex(idx))
	}

	p.advanceDot()
}

// renderDot runs the fetch pipeline and pixel output for one dot of a
// visible or pre-render scanline.
func (p *PPU) renderDot(visible, prerender bool) {
	dot := p.dot

	fetching := (dot >= 1 && dot <= 256) || (dot >= 321 && dot <= 336)

	if visible && dot >= 1 && dot <= 256 {
		p.producePixel(dot - 1)
	}

	if fetching {
		p.shiftRegisters()
		p.backgroundFetch(dot)
		if dot%8 == 0 {
			p.incrementCoarseX()
		}
	}

	switch {
	case dot == 256:
		p.incrementY()
	case dot == 257:
		p.copyX()
		if visible {
			p.evaluateSprites()
		} else {
			p.spriteCount = 0
			p.clearSpriteLine()
		}
	}

	if prerender && dot >= 280 && dot <= 304 {
		p.copyY()
	}

	// Sprite pattern fetches for the next scanline occupy dots 257-320,
	// eight dots per sprite slot. The pattern-table reads land on the
	// bus so A12 observers see them.
	if dot >= 257 && dot <= 320 {
		p.spriteFetch(dot)
	}

	// Dummy nametable fetches close the line.
	if dot == 337 || dot == 339 {
		p.read(0x2000 | p.v&0x0FFF)
	}
}

// backgroundFetch performs the 8-dot tile fetch cadence: nametable,
// attribute, pattern low, pattern high, each on the second dot of its pair.
func (p *PPU) backgroundFetch(dot int) {
	switch dot % 8 {
	case 2:
		p.ntLatch = p.read(0x2000 | p.v&0x0FFF)
	case 4:
		attrAddr := 0x23C0 | p.v&0x0C00 | p.v >> 4 & 0x38 | p.v >> 2 & 0x07
		shift := (p.v >> 4 & 0x04) | (p.v & 0x02)
		p.atLatch = p.read(attrAddr) >> shift & 0x03
	case 6:
		p.patternLow = p.read(p.bgTableBase + uint16(p.ntLatch)*16 + p.fineY())
	case 0:
		p.patternHigh = p.read(p.bgTableBase + uint16(p.ntLatch)*16 + p.fineY() + 8)
		p.reloadShifters()
	}
}

func (p *PPU) fineY() uint16 { return p.v >> 12 & 0x07 }

func (p *PPU) shiftRegisters() {
	p.shiftLow <<= 1
	p.shiftHigh <<= 1
	p.attrShiftLow <<= 1
	p.attrShiftHigh <<= 1
}

// reloadShifters loads the latched tile into the low half of the shift
// registers once its pattern fetch completes; eight shifts later it is in
// sampling position.
func (p *PPU) reloadShifters() {
	p.shiftLow = p.shiftLow&0xFF00 | uint16(p.patternLow)
	p.shiftHigh = p.shiftHigh&0xFF00 | uint16(p.patternHigh)
	if p.atLatch&0x01 != 0 {
		p.attrShiftLow = p.attrShiftLow&0xFF00 | 0x00FF
	} else {
		p.attrShiftLow &= 0xFF00
	}
	if p.atLatch&0x02 != 0 {
		p.attrShiftHigh = p.attrShiftHigh&0xFF00 | 0x00FF
	} else {
		p.attrShiftHigh &= 0xFF00
	}
}

// producePixel multiplexes background and sprite for screen column x and
// emits the palette index.
func (p *PPU) producePixel(x int) {
	var bgPattern uint8
	var bgPalette uint8
	if p.showBG && (x >= 8 || !p.clipBG) {
		bit := 15 - p.fineX
		bgPattern = uint8(p.shiftLow>>bit&1) | uint8(p.shiftHigh>>bit&1)<<1
		bgPalette = uint8(p.attrShiftLow>>bit&1) | uint8(p.attrShiftHigh>>bit&1)<<1
	}

	var spr spritePixel
	if p.showSpr && (x >= 8 || !p.clipSpr) {
		spr = p.spriteLine[x]
	}

	// Sprite-0 hit: both pixels opaque, both planes unclipped here,
	// never on the last column, and only once per frame.
	if spr.sprite0 && spr.pattern != 0 && bgPattern != 0 && x < 255 &&
		p.showBG && p.showSpr && !p.sprite0Hit {
		p.sprite0Hit = true
	}

	var index uint16
	switch {
	case bgPattern == 0 && spr.pattern == 0:
		index = 0
	case spr.pattern != 0 && (bgPattern == 0 || !spr.behind):
		index = 0x10 | uint16(spr.palette)<<2 | uint16(spr.pattern)
	default:
		index = uint16(bgPalette)<<2 | uint16(bgPattern)
	}

	p.emitPixel(p.readPaletteIndex(index))
}

// emitPixel applies greyscale masking and pushes the pixel to the sink.
func (p *PPU) emitPixel(palette uint8) {
	if p.greyscale {
		palette &= 0x30
	}
	if p.video != nil {
		p.video.PutPixel(palette, p.tint)
	}
}

// evaluateSprites builds the sprite line for the next scanline from OAM:
// the first eight sprites in range go to the line buffer, a ninth sets the
// overflow flag.
func (p *PPU) evaluateSprites() {
	p.clearSpriteLine()
	p.spriteCount = 0

	height := 8
	if p.tallSprites {
		height = 16
	}
	next := p.scanline + 1

	for i := 0; i < 64; i++ {
		y := int(p.oam[i*4])
		if next < y || next >= y+height {
			continue
		}
		if p.spriteCount == 8 {
			p.spriteOverflow = true
			break
		}
		p.spriteUnits[p.spriteCount] = spriteUnit{
			y:     p.oam[i*4],
			tile:  p.oam[i*4+1],
			attr:  p.oam[i*4+2],
			x:     p.oam[i*4+3],
			index: i,
		}
		p.spriteCount++
	}
}

func (p *PPU) clearSpriteLine() {
	for i := range p.spriteLine {
		p.spriteLine[i] = spritePixel{owner: -1}
	}
}

// spriteFetch performs the pattern reads for one sprite slot and writes
// the decoded pixels into the sprite line. Empty slots fetch tile $FF from
// the sprite table, as the hardware does.
func (p *PPU) spriteFetch(dot int) {
	slot := (dot - 257) / 8
	phase := (dot - 257) % 8

	var unit spriteUnit
	present := slot < p.spriteCount
	if present {
		unit = p.spriteUnits[slot]
	} else {
		unit = spriteUnit{y: 0xFF, tile: 0xFF, x: 0xFF}
	}

	switch phase {
	case 5:
		lo := p.read(p.spritePatternAddr(unit))
		if present {
			p.decodeSpriteRow(unit, lo, false)
		}
	case 7:
		hi := p.read(p.spritePatternAddr(unit) + 8)
		if present {
			p.decodeSpriteRow(unit, hi, true)
		}
	}
}

// spritePatternAddr resolves the pattern-low address for the sprite's row
// on the next scanline, honouring flips and 8x16 banking.
func (p *PPU) spritePatternAddr(unit spriteUnit) uint16 {
	row := p.scanline + 1 - int(unit.y)
	if row < 0 {
		row = 0
	}

	if !p.tallSprites {
		if unit.attr&0x80 != 0 {
			row = 7 - row
		}
		return p.spriteTableBase + uint16(unit.tile)*16 + uint16(row)
	}

	if unit.attr&0x80 != 0 {
		row = 15 - row
	}
	base := uint16(unit.tile&0x01) * 0x1000
	tile := uint16(unit.tile &^ 0x01)
	if row >= 8 {
		tile++
		row -= 8
	}
	return base + tile*16 + uint16(row)
}

// decodeSpriteRow merges one pattern plane into the sprite line buffer.
// Earlier (lower-index) sprites win pixel conflicts.
func (p *PPU) decodeSpriteRow(unit spriteUnit, plane uint8, high bool) {
	for px := 0; px < 8; px++ {
		x := int(unit.x) + px
		if x >= 256 {
			break
		}
		bitPos := 7 - px
		if unit.attr&0x40 != 0 { // horizontal flip
			bitPos = px
		}
		bit := plane >> bitPos & 1
		if bit == 0 {
			continue
		}

		cur := &p.spriteLine[x]
		if cur.owner != -1 && cur.owner != unit.index {
			continue // an earlier sprite already owns this pixel
		}
		if high {
			cur.pattern |= bit << 1
		} else {
			cur.pattern |= bit
		}
		cur.palette = unit.attr & 0x03
		cur.behind = unit.attr&0x20 != 0
		cur.sprite0 = unit.index == 0
		cur.owner = unit.index
	}
}

// advanceDot moves to the next raster position, handling the odd-frame
// skipped dot and frame completion.
func (p *PPU) advanceDot() {
	p.dot++

	// On odd frames with rendering enabled the pre-render line loses its
	// last dot.
	if p.params.OddFrameSkip && p.scanline == -1 && p.dot == 340 &&
		p.odd && p.renderingEnabled() {
		p.dot = dotsPerLine
	}

	if p.dot >= dotsPerLine {
		p.dot = 0
		p.scanline++

		switch {
		case p.scanline == p.params.VisibleLines:
			// End of the visible region.
			if p.video != nil {
				p.video.FrameDone()
			}
			if p.frameFn != nil {
				p.frameFn(p.time - p.frameStart)
			}
			p.frameStart = p.time
		case p.scanline >= p.params.VisibleLines+p.params.PostRender+p.params.VBlankLines:
			p.scanline = -1
			p.odd = !p.odd
		}
	}
}

// read performs one PPU-bus read, reporting the address to the mapper's
// bus observer first.
func (p *PPU) read(address uint16) uint8 {
	address &= 0x3FFF
	p.mem.OnPPUAddress(address)
	switch {
	case address < 0x2000:
		return p.mem.PPURead(address)
	case address < 0x3F00:
		return p.vram[p.nametableIndex(address)]
	default:
		return p.readPaletteIndex(address & 0x1F)
	}
}

func (p *PPU) writeBus(address uint16, value uint8) {
	address &= 0x3FFF
	p.mem.OnPPUAddress(address)
	switch {
	case address < 0x2000:
		p.mem.PPUWrite(address, value)
	case address < 0x3F00:
		p.vram[p.nametableIndex(address)] = value
	default:
		p.writePaletteIndex(address&0x1F, value)
	}
}

// nametableIndex folds a $2000-$3EFF address into the 4KB nametable store
// according to the cartridge mirroring pad.
func (p *PPU) nametableIndex(address uint16) uint16 {
	address &= 0x0FFF
	table := address / 0x400
	offset := address & 0x3FF

	switch p.mem.Mirroring() {
	case cartridge.MirrorHorizontal:
		// Tables 0,1 share the first bank; 2,3 the second.
		return table/2*0x400 + offset
	case cartridge.MirrorVertical:
		return table%2*0x400 + offset
	case cartridge.MirrorSingleScreenA:
		return offset
	case cartridge.MirrorSingleScreenB:
		return 0x400 + offset
	default: // four screen
		return address
	}
}

// paletteIndex canonicalises palette addresses: the backdrop entries of
// the sprite palette alias the background palette.
func paletteIndex(address uint16) uint16 {
	address &= 0x1F
	if address&0x13 == 0x10 {
		address &= 0x0F
	}
	return address
}

func (p *PPU) readPaletteIndex(address uint16) uint8 {
	return p.palette[paletteIndex(address)]
}

func (p *PPU) writePaletteIndex(address uint16, value uint8) {
	p.palette[paletteIndex(address)] = value
}

// Loopy helpers.

func (p *PPU) incrementCoarseX() {
	if p.v&0x001F == 31 {
		p.v &^= 0x001F
		p.v ^= 0x0400
	} else {
		p.v++
	}
}

func (p *PPU) incrementY() {
	if p.v&0x7000 != 0x7000 {
		p.v += 0x1000
	} else {
		p.v &^= 0x7000
		y := p.v >> 5 & 0x1F
		switch y {
		case 29:
			y = 0
			p.v ^= 0x0800
		case 31:
			y = 0
		default:
			y++
		}
		p.v = p.v&^0x03E0 | y<<5
	}
}

func (p *PPU) copyX() {
	p.v = p.v&^0x041F | p.t&0x041F
}

func (p *PPU) copyY() {
	p.v = p.v&^0x7BE0 | p.t&0x7BE0
}
