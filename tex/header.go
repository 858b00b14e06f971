package tex

// Header is the fixed TEX header. Every field is a little-endian uint32.
// Version 1 files stop before Unknown11.
type Header struct {
	Version             uint32 // 1 or 2
	Unknown1            uint32
	HasColorKey         uint32
	Unknown2            uint32 // set when the texture has alpha
	Unknown3            uint32
	MinBitsPerColor     uint32
	MaxBitsPerColor     uint32
	MinAlphaBits        uint32
	MaxAlphaBits        uint32
	MinBitsPerPixel     uint32
	MaxBitsPerPixel     uint32
	Unknown4            uint32
	NbPalettes          uint32
	NbColorsPerPalette1 uint32
	BitDepth            uint32
	ImageWidth          uint32
	ImageHeight         uint32
	Pitch               uint32
	Unknown5            uint32
	HasPal              uint32
	BitsPerIndex        uint32
	IndexedTo8bit       uint32
	PaletteSize         uint32 // colours across every palette
	NbColorsPerPalette2 uint32
	RuntimeData1        uint32
	BitsPerPixel        uint32
	BytesPerPixel       uint32

	// Pixel format, only meaningful for direct colour
	NbRedBits1    uint32
	NbGreenBits1  uint32
	NbBlueBits1   uint32
	NbAlphaBits1  uint32
	RedBitmask    uint32
	GreenBitmask  uint32
	BlueBitmask   uint32
	AlphaBitmask  uint32
	RedShift      uint32
	GreenShift    uint32
	BlueShift     uint32
	AlphaShift    uint32
	NbRedBits2    uint32
	NbGreenBits2  uint32
	NbBlueBits2   uint32
	NbAlphaBits2  uint32
	RedMax        uint32
	GreenMax      uint32
	BlueMax       uint32
	AlphaMax      uint32

	HasColorKeyArray uint32
	RuntimeData2     uint32
	ReferenceAlpha   uint32
	RuntimeData3     uint32
	Unknown6         uint32
	PaletteIndex     uint32
	RuntimeData4     uint32
	RuntimeData5     uint32
	Unknown7         uint32
	Unknown8         uint32
	Unknown9         uint32
	Unknown10        uint32
	Unknown11        uint32 // version 2 only
}

const (
	headerSizeV2 = 60 * 4
	headerSizeV1 = headerSizeV2 - 4
)

// Size returns the encoded size of the header for its version
func (h *Header) Size() int {
	if h.Version >= 2 {
		return headerSizeV2
	}
	return headerSizeV1
}

// PaletteSectionSize returns the number of bytes of palette data that
// follow the header.
func (h *Header) PaletteSectionSize() int {
	if h.NbPalettes == 0 {
		return 0
	}
	return int(h.PaletteSize) * 4
}

// ImageSectionSize returns the number of bytes of pixel data
func (h *Header) ImageSectionSize() int {
	return int(h.ImageWidth) * int(h.ImageHeight) * int(h.BytesPerPixel)
}

// ColorKeySectionSize returns the number of colour key bytes at the end of
// the file.
func (h *Header) ColorKeySectionSize() int {
	if h.HasColorKeyArray == 0 {
		return 0
	}
	return int(h.NbPalettes)
}

// FileSize returns the expected total size of a file with this header
func (h *Header) FileSize() int {
	return h.Size() + h.PaletteSectionSize() + h.ImageSectionSize() + h.ColorKeySectionSize()
}

type field struct {
	name string
	ptr  func(*Header) *uint32
}

// fields lists, in header order, every field that is carried through
// metadata. The image dimensions always come from the raster and
// unknown11 is handled separately as it only exists from version 2.
var fields = []field{
	{"version", func(h *Header) *uint32 { return &h.Version }},
	{"unknown1", func(h *Header) *uint32 { return &h.Unknown1 }},
	{"hasColorKey", func(h *Header) *uint32 { return &h.HasColorKey }},
	{"unknown2", func(h *Header) *uint32 { return &h.Unknown2 }},
	{"unknown3", func(h *Header) *uint32 { return &h.Unknown3 }},
	{"minBitsPerColor", func(h *Header) *uint32 { return &h.MinBitsPerColor }},
	{"maxBitsPerColor", func(h *Header) *uint32 { return &h.MaxBitsPerColor }},
	{"minAlphaBits", func(h *Header) *uint32 { return &h.MinAlphaBits }},
	{"maxAlphaBits", func(h *Header) *uint32 { return &h.MaxAlphaBits }},
	{"minBitsPerPixel", func(h *Header) *uint32 { return &h.MinBitsPerPixel }},
	{"maxBitsPerPixel", func(h *Header) *uint32 { return &h.MaxBitsPerPixel }},
	{"unknown4", func(h *Header) *uint32 { return &h.Unknown4 }},
	{"nbPalettes", func(h *Header) *uint32 { return &h.NbPalettes }},
	{"nbColorsPerPalette1", func(h *Header) *uint32 { return &h.NbColorsPerPalette1 }},
	{"bitDepth", func(h *Header) *uint32 { return &h.BitDepth }},
	{"pitch", func(h *Header) *uint32 { return &h.Pitch }},
	{"unknown5", func(h *Header) *uint32 { return &h.Unknown5 }},
	{"hasPal", func(h *Header) *uint32 { return &h.HasPal }},
	{"bitsPerIndex", func(h *Header) *uint32 { return &h.BitsPerIndex }},
	{"indexedTo8bit", func(h *Header) *uint32 { return &h.IndexedTo8bit }},
	{"paletteSize", func(h *Header) *uint32 { return &h.PaletteSize }},
	{"nbColorsPerPalette2", func(h *Header) *uint32 { return &h.NbColorsPerPalette2 }},
	{"runtimeData1", func(h *Header) *uint32 { return &h.RuntimeData1 }},
	{"bitsPerPixel", func(h *Header) *uint32 { return &h.BitsPerPixel }},
	{"bytesPerPixel", func(h *Header) *uint32 { return &h.BytesPerPixel }},
	{"nbRedBits1", func(h *Header) *uint32 { return &h.NbRedBits1 }},
	{"nbGreenBits1", func(h *Header) *uint32 { return &h.NbGreenBits1 }},
	{"nbBlueBits1", func(h *Header) *uint32 { return &h.NbBlueBits1 }},
	{"nbAlphaBits1", func(h *Header) *uint32 { return &h.NbAlphaBits1 }},
	{"redBitmask", func(h *Header) *uint32 { return &h.RedBitmask }},
	{"greenBitmask", func(h *Header) *uint32 { return &h.GreenBitmask }},
	{"blueBitmask", func(h *Header) *uint32 { return &h.BlueBitmask }},
	{"alphaBitmask", func(h *Header) *uint32 { return &h.AlphaBitmask }},
	{"redShift", func(h *Header) *uint32 { return &h.RedShift }},
	{"greenShift", func(h *Header) *uint32 { return &h.GreenShift }},
	{"blueShift", func(h *Header) *uint32 { return &h.BlueShift }},
	{"alphaShift", func(h *Header) *uint32 { return &h.AlphaShift }},
	{"nbRedBits2", func(h *Header) *uint32 { return &h.NbRedBits2 }},
	{"nbGreenBits2", func(h *Header) *uint32 { return &h.NbGreenBits2 }},
	{"nbBlueBits2", func(h *Header) *uint32 { return &h.NbBlueBits2 }},
	{"nbAlphaBits2", func(h *Header) *uint32 { return &h.NbAlphaBits2 }},
	{"redMax", func(h *Header) *uint32 { return &h.RedMax }},
	{"greenMax", func(h *Header) *uint32 { return &h.GreenMax }},
	{"blueMax", func(h *Header) *uint32 { return &h.BlueMax }},
	{"alphaMax", func(h *Header) *uint32 { return &h.AlphaMax }},
	{"hasColorKeyArray", func(h *Header) *uint32 { return &h.HasColorKeyArray }},
	{"runtimeData2", func(h *Header) *uint32 { return &h.RuntimeData2 }},
	{"referenceAlpha", func(h *Header) *uint32 { return &h.ReferenceAlpha }},
	{"runtimeData3", func(h *Header) *uint32 { return &h.RuntimeData3 }},
	{"unknown6", func(h *Header) *uint32 { return &h.Unknown6 }},
	{"paletteIndex", func(h *Header) *uint32 { return &h.PaletteIndex }},
	{"runtimeData4", func(h *Header) *uint32 { return &h.RuntimeData4 }},
	{"runtimeData5", func(h *Header) *uint32 { return &h.RuntimeData5 }},
	{"unknown7", func(h *Header) *uint32 { return &h.Unknown7 }},
	{"unknown8", func(h *Header) *uint32 { return &h.Unknown8 }},
	{"unknown9", func(h *Header) *uint32 { return &h.Unknown9 }},
	{"unknown10", func(h *Header) *uint32 { return &h.Unknown10 }},
}

var unknown11 = field{"unknown11", func(h *Header) *uint32 { return &h.Unknown11 }}

// NewHeader derives a complete header from the version, whether the
// texture carries alpha, whether palettes use 4-bit indices, the image
// dimensions, the number of palettes and whether a colour key array is
// present. A palette count of zero means direct colour.
func NewHeader(version uint32, hasAlpha, fourBitsPerIndex bool, width, height, nbPalettes int, hasColorKey bool) Header {
	paletted := nbPalettes > 0

	h := Header{
		Version:         version,
		HasColorKey:     b2u(hasColorKey),
		Unknown2:        b2u(hasAlpha),
		MinBitsPerColor: 4,
		MaxBitsPerColor: 8,
		MaxAlphaBits:    8,
		MinBitsPerPixel: 8,
		MaxBitsPerPixel: 32,
		NbPalettes:      uint32(nbPalettes),
		ImageWidth:      uint32(width),
		ImageHeight:     uint32(height),
		HasPal:          b2u(paletted),
		IndexedTo8bit:   b2u(paletted),
		BitsPerPixel:    8,
		BytesPerPixel:   1,
		ReferenceAlpha:  255,
		RuntimeData3:    4,
	}

	if hasAlpha {
		h.MinAlphaBits = 4
	}

	if paletted {
		h.NbColorsPerPalette1 = 256
		h.BitDepth = 8
		if fourBitsPerIndex {
			h.NbColorsPerPalette1 = 16
			h.BitDepth = 4
		}
		h.BitsPerIndex = 8
	} else {
		h.MinBitsPerPixel = 32
		h.BitDepth = 16
		h.BitsPerPixel = 16
		h.BytesPerPixel = 2

		h.NbRedBits1 = 5
		h.NbGreenBits1 = 5
		h.NbBlueBits1 = 5
		h.NbAlphaBits1 = 1
		h.RedBitmask = 0x1f
		h.GreenBitmask = 0x3e0
		h.BlueBitmask = 0x7c00
		h.AlphaBitmask = 0x8000
		h.RedShift = 0
		h.GreenShift = 5
		h.BlueShift = 10
		h.AlphaShift = 15
		h.NbRedBits2 = 3
		h.NbGreenBits2 = 3
		h.NbBlueBits2 = 3
		h.NbAlphaBits2 = 7
		h.RedMax = 31
		h.GreenMax = 31
		h.BlueMax = 31
		h.AlphaMax = 1
	}

	h.PaletteSize = uint32(nbPalettes) * h.NbColorsPerPalette1
	h.NbColorsPerPalette2 = h.NbColorsPerPalette1

	return h
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
