package graphics

// nesColorPalette is the canonical 64-entry NES master palette in ARGB.
var nesColorPalette = [64]uint32{
	// Row 0 (0x00-0x0F)
	0xFF666666, 0xFF002A88, 0xFF1412A7, 0xFF3B00A4, 0xFF5C007E, 0xFF6E0040, 0xFF6C0600, 0xFF561D00,
	0xFF333500, 0xFF0B4800, 0xFF005200, 0xFF004F08, 0xFF00404D, 0xFF000000, 0xFF000000, 0xFF000000,
	// Row 1 (0x10-0x1F)
	0xFFADADAD, 0xFF155FD9, 0xFF4240FF, 0xFF7527FE, 0xFFA01ACC, 0xFFB71E7B, 0xFFB53120, 0xFF994E00,
	0xFF6B6D00, 0xFF388700, 0xFF0C9300, 0xFF008F32, 0xFF007C8D, 0xFF000000, 0xFF000000, 0xFF000000,
	// Row 2 (0x20-0x2F)
	0xFFFFFEFF, 0xFF64B0FF, 0xFF9290FF, 0xFFC676FF, 0xFFF36AFF, 0xFFFE6ECC, 0xFFFE8170, 0xFFEA9E22,
	0xFFBCBE00, 0xFF88D800, 0xFF5CE430, 0xFF45E082, 0xFF48CDDE, 0xFF4F4F4F, 0xFF000000, 0xFF000000,
	// Row 3 (0x30-0x3F)
	0xFFFFFEFF, 0xFFC0DFFF, 0xFFD3D2FF, 0xFFE8C8FF, 0xFFFBC2FF, 0xFFFEC4EA, 0xFFFECCC5, 0xFFF7D8A5,
	0xFFE4E594, 0xFFCFF29B, 0xFFBEFBB3, 0xFFB8F8D8, 0xFFB8F8F8, 0xFF000000, 0xFF000000, 0xFF000000,
}

// tintAttenuation dims the non-emphasised channels when a tint bit is set.
const tintAttenuation = 0.746

// VideoProcessor converts (palette index, tint bits) pairs to ARGB with
// brightness and contrast baked into a precomputed table, one 64-colour
// row per tint combination.
type VideoProcessor struct {
	table [8][64]uint32
}

// NewVideoProcessor builds the conversion table. Brightness and contrast
// of 1.0 reproduce the master palette.
func NewVideoProcessor(brightness, contrast float32) *VideoProcessor {
	vp := &VideoProcessor{}
	for tint := 0; tint < 8; tint++ {
		for index := 0; index < 64; index++ {
			vp.table[tint][index] = adjust(nesColorPalette[index], uint8(tint), brightness, contrast)
		}
	}
	return vp
}

func adjust(argb uint32, tint uint8, brightness, contrast float32) uint32 {
	channels := [3]float32{
		float32(argb >> 16 & 0xFF),
		float32(argb >> 8 & 0xFF),
		float32(argb & 0xFF),
	}

	// Emphasis bits: red, green, blue attenuate the other channels.
	for bit := 0; bit < 3; bit++ {
		if tint&(1<<bit) == 0 {
			continue
		}
		for ch := 0; ch < 3; ch++ {
			if ch != bit {
				channels[ch] *= tintAttenuation
			}
		}
	}

	for ch := range channels {
		v := channels[ch] * brightness
		v = ((v/255.0-0.5)*contrast + 0.5) * 255.0
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		channels[ch] = v
	}

	return 0xFF000000 |
		uint32(channels[0]+0.5)<<16 |
		uint32(channels[1]+0.5)<<8 |
		uint32(channels[2]+0.5)
}

// Convert maps one pixel.
func (vp *VideoProcessor) Convert(paletteIndex uint8, tint uint8) uint32 {
	return vp.table[tint&0x07][paletteIndex&0x3F]
}
