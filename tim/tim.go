/*
Package tim implements a decoder and encoder for the PlayStation TIM
texture format.

A file starts with the tag 10 00 00 00 and a flag word holding the pixel
mode in its low two bits (4, 8, 16 or 24 bits per pixel) and a palette flag
in bit 3. An optional palette block and the image block follow, each with a
12 byte header: block size, VRAM origin and size in 16-bit units. Palettes
are runs of 16 or 256 packed 16-bit colours.

The top bit of each 16-bit colour marks it as semi-transparent. That flag
has no equivalent in an RGBA colour so it is kept in separate bit vectors:
one per palette, or one for the whole image at 16 bits per pixel.
*/
package tim

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/myst6re/vincent-tim/metadata"
	"github.com/myst6re/vincent-tim/pscolor"
	"github.com/myst6re/vincent-tim/texture"
)

// Tag is the magic number at the start of every TIM file
const Tag = "\x10\x00\x00\x00"

// Pixel modes stored in the low bits of the flag word
const (
	Mode4Bit uint8 = iota
	Mode8Bit
	Mode16Bit
	Mode24Bit
)

const (
	flagHasPalette  = 0x08
	blockHeaderSize = 12
)

var (
	errHeader       = fmt.Errorf("tim: invalid header: %w", texture.ErrFormat)
	errShort        = fmt.Errorf("tim: file too short: %w", texture.ErrFormat)
	errPaletteDepth = fmt.Errorf("tim: palettes are invalid at 16 or 24 bits per pixel: %w", texture.ErrFormat)
	errNoPalette    = fmt.Errorf("tim: indexed image without palette: %w", texture.ErrFormat)
	errPaletteCount = fmt.Errorf("tim: no palette in palette section: %w", texture.ErrFormat)
	errNotIndexed   = fmt.Errorf("tim: image is not indexed: %w", texture.ErrConversion)
	errNeedPalette  = fmt.Errorf("tim: 4 and 8 bits per pixel need a palette: %w", texture.ErrConversion)
	errNoTableSize  = fmt.Errorf("tim: no palette at 16 or 24 bits per pixel: %w", texture.ErrConversion)
	errInvalidField = fmt.Errorf("tim: invalid field: %w", texture.ErrConversion)
	errIndexRange   = fmt.Errorf("tim: colour index beyond palette length: %w", texture.ErrConversion)
)

func init() {
	image.RegisterFormat("tim", Tag, DecodeImage, DecodeConfig)
}

// File is a TIM texture
type File struct {
	texture *texture.Texture

	bpp        uint8
	palX, palY uint16
	palW, palH uint16
	imgX, imgY uint16

	// alphaBits has one vector per colour table, or a single vector
	// covering every pixel at 16 bits per pixel.
	alphaBits [][]bool
}

// New returns an empty 8 bits per pixel texture
func New() *File {
	return &File{
		texture: new(texture.Texture),
		bpp:     Mode8Bit,
	}
}

// Decode reads a TIM file from r
func Decode(r io.Reader) (*File, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f := new(File)
	if err := f.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return f, nil
}

// DecodeImage reads a TIM file from r and returns its image bound to the
// first palette, with semi-transparent palette colours at half alpha.
func DecodeImage(r io.Reader) (image.Image, error) {
	f, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return f.Export().Image(), nil
}

// DecodeConfig returns the colour model and dimensions of a TIM file
func DecodeConfig(r io.Reader) (image.Config, error) {
	f, err := Decode(r)
	if err != nil {
		return image.Config{}, err
	}
	m := f.Export().Image()
	return image.Config{
		ColorModel: m.ColorModel(),
		Width:      m.Bounds().Dx(),
		Height:     m.Bounds().Dy(),
	}, nil
}

// Encode writes f to w
func Encode(w io.Writer, f *File) error {
	b, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Texture returns the decoded texture
func (f *File) Texture() *texture.Texture {
	return f.texture
}

// Export returns a copy of the texture with the colour tables remapped for
// generic image consumers, see ExportColorTables.
func (f *File) Export() *texture.Texture {
	t := f.texture.Clone()
	if t.IsPaletted() {
		if err := t.SetColorTables(f.ExportColorTables()); err != nil {
			panic(err)
		}
	}
	return t
}

// Depth returns the number of bits per pixel
func (f *File) Depth() int {
	if f.bpp == Mode4Bit {
		return 4
	}
	return int(f.bpp) * 8
}

// SetDepth switches to the pixel mode closest to depth bits per pixel, see
// mode. Colour tables and their alpha bits are resized to the new palette
// length, and a paletted raster becomes direct colour at 16 or 24 bits per
// pixel. A direct colour raster cannot gain a palette this way and indices
// beyond the new palette length are rejected. The file is left untouched
// on error.
func (f *File) SetDepth(depth int) error {
	return f.convert(mode(depth))
}

// mode returns the pixel mode for depth bits per pixel. Depths other than
// 4, 8 and 24 map to 16 bits per pixel.
func mode(depth int) uint8 {
	switch {
	case depth <= 4:
		return Mode4Bit
	case depth <= 8:
		return Mode8Bit
	case depth == 24:
		return Mode24Bit
	}
	return Mode16Bit
}

func colorsPerPalette(bpp uint8) int {
	switch bpp {
	case Mode4Bit:
		return 16
	case Mode8Bit:
		return 256
	}
	return 0
}

// ColorsPerPalette returns the palette length for the pixel mode, or 0 when
// the mode cannot have palettes.
func (f *File) ColorsPerPalette() int {
	return colorsPerPalette(f.bpp)
}

func (f *File) convert(bpp uint8) error {
	if bpp == f.bpp {
		return nil
	}
	if !f.texture.IsValid() {
		f.bpp = bpp
		return nil
	}

	t := f.texture.Clone()
	n := colorsPerPalette(bpp)

	var bits [][]bool
	switch {
	case n > 0:
		m := t.Paletted()
		if m == nil {
			return errNeedPalette
		}
		for _, i := range m.Pix {
			if int(i) >= n {
				return errIndexRange
			}
		}
		tables := make([]color.Palette, t.ColorTableCount())
		bits = make([][]bool, len(tables))
		for i := range tables {
			tables[i] = texture.Resize(t.ColorTable(i), n)
			bits[i] = make([]bool, n)
			if i < len(f.alphaBits) {
				copy(bits[i], f.alphaBits[i])
			}
		}
		if err := t.SetColorTables(tables); err != nil {
			return err
		}
	case t.IsPaletted():
		m := t.Paletted()
		if m == nil {
			return errNotIndexed
		}
		if bpp == Mode16Bit {
			var tableBits []bool
			if id := t.CurrentColorTable(); id < len(f.alphaBits) {
				tableBits = f.alphaBits[id]
			}
			b := m.Bounds()
			pixelBits := make([]bool, b.Dx()*b.Dy())
			for y := 0; y < b.Dy(); y++ {
				for x := 0; x < b.Dx(); x++ {
					i := int(m.ColorIndexAt(b.Min.X+x, b.Min.Y+y))
					pixelBits[y*b.Dx()+x] = i < len(tableBits) && tableBits[i]
				}
			}
			bits = [][]bool{pixelBits}
		}
		t.ToDirect()
	case bpp == Mode16Bit:
		b := t.Bounds()
		bits = [][]bool{make([]bool, b.Dx()*b.Dy())}
	}

	f.texture = t
	f.bpp = bpp
	f.alphaBits = bits
	if n > 0 {
		f.setPaletteSize(t.PaletteSize())
	} else {
		f.setPaletteSize(image.Point{})
	}
	return nil
}

// PaletteX returns the VRAM x origin of the palette block
func (f *File) PaletteX() uint16 { return f.palX }

// PaletteY returns the VRAM y origin of the palette block
func (f *File) PaletteY() uint16 { return f.palY }

// ImageX returns the VRAM x origin of the image block
func (f *File) ImageX() uint16 { return f.imgX }

// ImageY returns the VRAM y origin of the image block
func (f *File) ImageY() uint16 { return f.imgY }

// PaletteSize returns the size of the palette block in colours
func (f *File) PaletteSize() image.Point {
	return image.Pt(int(f.palW), int(f.palH))
}

func (f *File) setPaletteSize(p image.Point) {
	f.palW, f.palH = uint16(p.X), uint16(p.Y)
}

// AlphaBits returns the semi-transparency flags: one vector per colour
// table, or a single vector over every pixel at 16 bits per pixel.
func (f *File) AlphaBits() [][]bool {
	return f.alphaBits
}

// Palette returns every exported colour table laid out as an image of
// PaletteSize(), or nil when there are no palettes.
func (f *File) Palette() image.Image {
	if !f.texture.IsPaletted() {
		return nil
	}
	size := f.PaletteSize()
	if size.X == 0 || size.Y == 0 {
		size = f.texture.PaletteSize()
	}
	return texture.PaletteImage(f.ExportColorTables(), size)
}

func (f *File) UnmarshalBinary(b []byte) error {
	if len(b) < 8 || !bytes.HasPrefix(b, []byte(Tag)) {
		return errHeader
	}

	bpp := b[4] & 3
	hasPal := b[4]&flagHasPalette != 0

	if hasPal && bpp > Mode8Bit {
		return errPaletteDepth
	}
	if !hasPal && bpp <= Mode8Bit {
		return errNoPalette
	}

	d := decoder{
		b:   b,
		bpp: bpp,
	}

	var palSize int
	if hasPal {
		if err := d.readPalettes(); err != nil {
			return err
		}
		palSize = int(d.palSize)
	}

	if err := d.readImage(8 + palSize); err != nil {
		return err
	}

	*f = File{
		texture:   d.texture,
		bpp:       bpp,
		palX:      d.palX,
		palY:      d.palY,
		palW:      d.palW,
		palH:      d.palH,
		imgX:      d.imgX,
		imgY:      d.imgY,
		alphaBits: d.alphaBits,
	}
	return nil
}

type decoder struct {
	b   []byte
	bpp uint8

	palSize    uint32
	palX, palY uint16
	palW, palH uint16
	imgX, imgY uint16

	tables    []color.Palette
	alphaBits [][]bool
	texture   *texture.Texture
}

func (d *decoder) u16(off int) uint16 {
	return binary.LittleEndian.Uint16(d.b[off:])
}

func (d *decoder) readPalettes() error {
	if len(d.b) < 8+blockHeaderSize {
		return errShort
	}

	d.palSize = binary.LittleEndian.Uint32(d.b[8:])
	d.palX = d.u16(12)
	d.palY = d.u16(14)
	d.palW = d.u16(16)
	d.palH = d.u16(18)

	if d.palSize < blockHeaderSize || uint64(len(d.b)) < 8+uint64(d.palSize) {
		return errShort
	}

	colors := 256
	if d.bpp == Mode4Bit {
		colors = 16
	}
	nbPal := int((d.palSize - blockHeaderSize) / uint32(colors*2))

	// Some producers wrote palette sections twice as large as their
	// width suggests.
	if (d.palSize-blockHeaderSize)%uint32(colors*2) != 0 && d.palSize == uint32(blockHeaderSize+colors*nbPal*4) {
		nbPal *= 2
	}

	if nbPal <= 0 {
		return errPaletteCount
	}
	if 8+blockHeaderSize+nbPal*colors*2 > len(d.b) {
		return errShort
	}

	d.tables = make([]color.Palette, nbPal)
	d.alphaBits = make([][]bool, nbPal)
	for i := range d.tables {
		table := make(color.Palette, colors)
		bits := make([]bool, colors)
		for j := range table {
			w := d.u16(8 + blockHeaderSize + (i*colors+j)*2)
			table[j] = pscolor.ToColor(w)
			bits[j] = pscolor.AlphaBit(w)
		}
		d.tables[i] = table
		d.alphaBits[i] = bits
	}

	return nil
}

func (d *decoder) readImage(start int) error {
	if len(d.b) < start+blockHeaderSize {
		return errShort
	}

	d.imgX = d.u16(start + 4)
	d.imgY = d.u16(start + 6)
	width := int(d.u16(start + 8))
	height := int(d.u16(start + 10))

	var size int
	switch d.bpp {
	case Mode4Bit:
		width *= 4
		size = width / 2 * height
	case Mode8Bit:
		width *= 2
		size = width * height
	case Mode16Bit:
		size = width * height * 2
	case Mode24Bit:
		size = width * height * 3
	}

	// Truncated pixel data is not an error, decode what is there
	data := d.b[start+blockHeaderSize:]
	if len(data) > size {
		data = data[:size]
	}

	r := image.Rect(0, 0, width, height)

	switch d.bpp {
	case Mode4Bit:
		m := image.NewPaletted(r, d.tables[0])
		for i, p := range data {
			m.Pix[i*2] = p & 0x0f
			m.Pix[i*2+1] = p >> 4
		}
		d.texture = texture.NewPaletted(m, d.tables)
	case Mode8Bit:
		m := image.NewPaletted(r, d.tables[0])
		copy(m.Pix, data)
		d.texture = texture.NewPaletted(m, d.tables)
	case Mode16Bit:
		m := image.NewNRGBA(r)
		bits := make([]bool, width*height)
		for i := 0; i+1 < len(data); i += 2 {
			w := binary.LittleEndian.Uint16(data[i:])
			c := pscolor.ToColor(w)
			copy(m.Pix[i*2:], []byte{c.R, c.G, c.B, c.A})
			bits[i/2] = pscolor.AlphaBit(w)
		}
		d.alphaBits = [][]bool{bits}
		d.texture = texture.New(m)
	case Mode24Bit:
		m := image.NewNRGBA(r)
		for i := 0; i+2 < len(data); i += 3 {
			copy(m.Pix[i/3*4:], []byte{data[i], data[i+1], data[i+2], 0xff})
		}
		d.texture = texture.New(m)
	}

	return nil
}

func (f *File) MarshalBinary() ([]byte, error) {
	b := new(bytes.Buffer)
	e := encoder{w: b}

	hasPal := f.texture.IsPaletted()
	flag := uint32(f.bpp & 3)
	if hasPal {
		flag |= flagHasPalette
	}

	b.WriteString(Tag)
	e.u32(flag)

	var err error
	if hasPal {
		err = e.encodePaletted(f)
	} else {
		err = e.encodeDirect(f)
	}
	if err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

type encoder struct {
	w *bytes.Buffer
}

func (e *encoder) u16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	e.w.Write(tmp[:])
}

func (e *encoder) u32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	e.w.Write(tmp[:])
}

func (e *encoder) encodePaletted(f *File) error {
	colors := f.ColorsPerPalette()
	if colors == 0 {
		return errNoTableSize
	}

	tables := f.texture.ColorTables()
	if len(tables) != len(f.alphaBits) {
		panic(fmt.Sprintf("tim: %d colour tables but %d alpha bit vectors", len(tables), len(f.alphaBits)))
	}

	m := f.texture.Paletted()
	if m == nil {
		return errNotIndexed
	}

	e.u32(uint32(blockHeaderSize + len(tables)*colors*2))
	e.u16(f.palX)
	e.u16(f.palY)
	e.u16(f.palW)
	e.u16(f.palH)

	for i, table := range tables {
		bits := f.alphaBits[i]
		if len(table) != colors || len(bits) != colors {
			panic(fmt.Sprintf("tim: colour table %d has %d colours and %d alpha bits, expected %d", i, len(table), len(bits), colors))
		}
		for j, c := range table {
			e.u16(pscolor.SetAlphaBit(pscolor.FromColor(c), bits[j]))
		}
	}

	// Widths are padded up to a whole number of 16-bit units
	bounds := m.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	pixelsPerUnit := 2
	if f.bpp == Mode4Bit {
		pixelsPerUnit = 4
	}
	units := (width + pixelsPerUnit - 1) / pixelsPerUnit
	rowBytes := units * 2

	e.u32(uint32(blockHeaderSize + rowBytes*height))
	e.u16(f.imgX)
	e.u16(f.imgY)
	e.u16(uint16(units))
	e.u16(uint16(height))

	index := func(x, y int) uint8 {
		if x >= width {
			return 0
		}
		return m.ColorIndexAt(bounds.Min.X+x, bounds.Min.Y+y)
	}

	for y := 0; y < height; y++ {
		for x := 0; x < rowBytes; x++ {
			if f.bpp == Mode4Bit {
				e.w.WriteByte(index(x*2, y)&0x0f | index(x*2+1, y)&0x0f<<4)
			} else {
				e.w.WriteByte(index(x, y))
			}
		}
	}

	return nil
}

func (e *encoder) encodeDirect(f *File) error {
	var bytesPerPixel int
	switch f.bpp {
	case Mode16Bit:
		bytesPerPixel = 2
	case Mode24Bit:
		bytesPerPixel = 3
	default:
		return errNeedPalette
	}

	m := f.texture.Image()
	bounds := m.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var bits []bool
	if f.bpp == Mode16Bit && len(f.alphaBits) > 0 {
		bits = f.alphaBits[0]
		if len(bits) != width*height {
			panic(fmt.Sprintf("tim: %d alpha bits for %d pixels", len(bits), width*height))
		}
	}

	e.u32(uint32(blockHeaderSize + width*bytesPerPixel*height))
	e.u16(f.imgX)
	e.u16(f.imgY)
	e.u16(uint16(width))
	e.u16(uint16(height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(m.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			if f.bpp == Mode24Bit {
				e.w.Write([]byte{c.R, c.G, c.B})
				continue
			}
			w := pscolor.FromColor(c)
			if bits != nil {
				w = pscolor.SetAlphaBit(w, bits[y*width+x])
			}
			e.u16(w)
		}
	}

	return nil
}

// Metadata returns the fields that a generic image cannot carry
func (f *File) Metadata() *metadata.Metadata {
	m := metadata.New()
	m.Set("depth", f.Depth())
	m.Set("paletteX", f.palX)
	m.Set("paletteY", f.palY)
	m.Set("imageX", f.imgX)
	m.Set("imageY", f.imgY)
	return m
}

// SetMetadata applies the depth and VRAM origins found in m, see SetDepth.
// Unknown keys are ignored. The file is left untouched on error.
func (f *File) SetMetadata(m *metadata.Metadata) error {
	saved := *f
	bpp, err := f.readMetadata(m)
	if err != nil {
		return err
	}
	if err := f.convert(bpp); err != nil {
		*f = saved
		return err
	}
	return nil
}

// readMetadata sets the VRAM origins found in m and returns the pixel mode
// it asks for, the current one when it has no depth.
func (f *File) readMetadata(m *metadata.Metadata) (uint8, error) {
	bpp := f.bpp
	depth, ok, err := m.Uint("depth", 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errInvalidField, err)
	}
	if ok {
		bpp = mode(int(depth))
	}

	origins := []struct {
		name string
		ptr  *uint16
	}{
		{"paletteX", &f.palX},
		{"paletteY", &f.palY},
		{"imageX", &f.imgX},
		{"imageY", &f.imgY},
	}
	values := make([]uint16, len(origins))
	for i, fd := range origins {
		v, ok, err := m.Uint(fd.name, 16)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", errInvalidField, err)
		}
		if !ok {
			v = uint64(*fd.ptr)
		}
		values[i] = uint16(v)
	}
	for i, fd := range origins {
		*fd.ptr = values[i]
	}

	return bpp, nil
}
