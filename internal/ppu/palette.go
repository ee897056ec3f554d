package ppu

// base holds the 64 NTSC colours the 2C02 can produce before emphasis
// attenuation, carried over from the reference implementation's lookup
// table (itself the commonly-circulated Dendy-derived NTSC palette).
var base = [64]uint32{
	0x666666, 0x002A88, 0x1412A7, 0x3B00A4, 0x5C007E, 0x6E0040, 0x6C0600, 0x561D00,
	0x333500, 0x0B4800, 0x005200, 0x004F08, 0x00404D, 0x000000, 0x000000, 0x000000,
	0xADADAD, 0x155FD9, 0x4240FF, 0x7527FE, 0xA01ACC, 0xB71E7B, 0xB53120, 0x994E00,
	0x6B6D00, 0x388700, 0x0C9300, 0x008F32, 0x007C8D, 0x000000, 0x000000, 0x000000,
	0xFFFEFF, 0x64B0FF, 0x9290FF, 0xC676FF, 0xF36AFF, 0xFE6ECC, 0xFE8170, 0xEA9E22,
	0xBCBE00, 0x88D800, 0x5CE430, 0x45E082, 0x48CDDE, 0x4F4F4F, 0x000000, 0x000000,
	0xFFFEFF, 0xC0DFFF, 0xD3D2FF, 0xE8C8FF, 0xFBC2FF, 0xFEC4EA, 0xFECCC5, 0xF7D8A5,
	0xE4E594, 0xCFF29B, 0xBEFBB3, 0xB8F8D8, 0xB8F8F8, 0x000000, 0x000000, 0x000000,
}

// Table holds the full 512-entry palette spec.md §9 calls for: eight
// 64-colour banks, one per combination of the three PPUMASK emphasis
// bits, indexed as emphasis<<6 | colour. Emphasis attenuates the two
// channels NOT being emphasized to about 3/4 strength, which is the
// commonly-used approximation of the 2C02's analog emphasis behaviour
// (the real chip's attenuation is a continuous NTSC-decoder artifact,
// not a simple per-channel scalar, but no ecosystem PPU library exists
// to borrow a more exact model from).
var Table [512]uint32

func init() {
	for emphasis := 0; emphasis < 8; emphasis++ {
		attenuateR := emphasis&0x2 != 0 || emphasis&0x4 != 0
		attenuateG := emphasis&0x1 != 0 || emphasis&0x4 != 0
		attenuateB := emphasis&0x1 != 0 || emphasis&0x2 != 0
		for color := 0; color < 64; color++ {
			c := base[color]
			r := uint8(c >> 16)
			g := uint8(c >> 8)
			b := uint8(c)
			if attenuateR {
				r = uint8(uint32(r) * 3 / 4)
			}
			if attenuateG {
				g = uint8(uint32(g) * 3 / 4)
			}
			if attenuateB {
				b = uint8(uint32(b) * 3 / 4)
			}
			Table[emphasis<<6|color] = uint32(r)<<16 | uint32(g)<<8 | uint32(b)
		}
	}
}

// ColorForIndex converts one of the 512 palette-table entries into its
// RGB triple. A frontend's palette function has this exact shape.
func ColorForIndex(index uint16) (r, g, b uint8) {
	c := Table[index&0x1FF]
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}
