/*
Package tex implements a decoder and encoder for the TEX texture format used
by the PC releases of Final Fantasy VII and VIII.

A file is a fixed header of little-endian 32-bit fields (236 bytes for
version 1, 240 for version 2), followed by the palettes as B, G, R, A
quadruplets, one byte per pixel when paletted or a packed colour per pixel
otherwise, and finally an optional colour key byte per palette.

Most header fields can be derived from the bit depth, the alpha flag and the
index width. The rest have no known meaning and are carried through
metadata so that a texture can be rebuilt exactly.
*/
package tex

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

// Known header versions
const (
	VersionOne uint32 = 1 // Final Fantasy VII
	VersionTwo uint32 = 2 // Final Fantasy VIII
)

var (
	errShort        = fmt.Errorf("tex: too short: %w", texture.ErrFormat)
	errVersion      = fmt.Errorf("tex: unknown version: %w", texture.ErrFormat)
	errSize         = fmt.Errorf("tex: invalid size: %w", texture.ErrFormat)
	errPalette      = fmt.Errorf("tex: palettes overflow palette section: %w", texture.ErrFormat)
	errIndex        = fmt.Errorf("tex: invalid palette index: %w", texture.ErrFormat)
	errPixelFormat  = fmt.Errorf("tex: unsupported pixel format: %w", texture.ErrFormat)
	errNotIndexed   = fmt.Errorf("tex: header declares palettes but the image is not indexed: %w", texture.ErrConversion)
	errBadVersion   = fmt.Errorf("tex: unsupported version: %w", texture.ErrConversion)
	errInvalidField = fmt.Errorf("tex: invalid field: %w", texture.ErrConversion)
)

// File is a TEX texture
type File struct {
	texture   *texture.Texture
	header    Header
	colorKeys []byte
	meta      *metadata.Metadata

	// alphaBits holds the top bit of every 16-bit direct colour pixel
	alphaBits []bool
	// paletteTail is the palette section past the declared palettes
	paletteTail []byte

	fourBitsPerIndex bool
}

// New returns an empty version 1 texture
func New() *File {
	f := &File{
		texture: new(texture.Texture),
	}
	f.SetHeader(VersionOne, true, false)
	return f
}

// FromTexture returns a version 1 texture with alpha built from a copy of t.
// Palettes use 4-bit indices when t has a depth of 4. A texture with colour
// tables and a direct colour raster is indexed against its first table.
func FromTexture(t *texture.Texture) (*File, error) {
	f := &File{
		texture: t.Clone(),
	}
	if f.texture.IsPaletted() && f.texture.Paletted() == nil {
		if err := f.texture.ConvertToIndexed(0); err != nil {
			return nil, err
		}
	}
	f.SetHeader(VersionOne, true, t.Depth() == 4)
	return f, nil
}

// Decode reads a TEX file from r
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

// Export returns the texture as presented to generic image consumers. TEX
// colours need no remapping so this is the texture itself.
func (f *File) Export() *texture.Texture {
	return f.texture
}

// Header returns a copy of the header
func (f *File) Header() Header {
	return f.header
}

// Depth returns the bit depth declared by the header
func (f *File) Depth() int {
	return int(f.header.BitDepth)
}

// PaletteSize returns the size of the palette image
func (f *File) PaletteSize() image.Point {
	return f.texture.PaletteSize()
}

// ColorsPerPalette returns the number of colours in each palette
func (f *File) ColorsPerPalette() int {
	return int(f.header.NbColorsPerPalette1)
}

// AlphaBits returns the top bit of every pixel of a 16-bit direct colour
// texture, row by row, or nil.
func (f *File) AlphaBits() []bool {
	return f.alphaBits
}

// ColorKeys returns the colour key array, one opacity override per palette
func (f *File) ColorKeys() []byte {
	return f.colorKeys
}

// SetColorKeys replaces the colour key array
func (f *File) SetColorKeys(keys []byte) {
	f.colorKeys = append([]byte(nil), keys...)
}

// SetHeader recomputes every header field from the version, the alpha flag,
// the index width and the shape of the texture.
func (f *File) SetHeader(version uint32, hasAlpha, fourBitsPerIndex bool) {
	b := f.texture.Bounds()
	f.fourBitsPerIndex = fourBitsPerIndex
	f.header = NewHeader(version, hasAlpha, fourBitsPerIndex, b.Dx(), b.Dy(), f.texture.ColorTableCount(), len(f.colorKeys) > 0)
}

// SetPalette replaces the palettes with the colours of the palette image m,
// indexes a direct colour raster against the first of them and derives the
// header again.
func (f *File) SetPalette(m image.Image) error {
	n := f.ColorsPerPalette()
	if n == 0 {
		n = 256
		if f.fourBitsPerIndex {
			n = 16
		}
	}

	t := f.texture.Clone()
	if err := t.SetPalette(m, n); err != nil {
		return err
	}
	if t.Paletted() == nil {
		if err := t.ConvertToIndexed(0); err != nil {
			return err
		}
	}
	f.texture = t

	if f.meta != nil {
		return f.SetMetadata(f.meta)
	}
	f.SetHeader(f.header.Version, f.header.Unknown2 != 0, n == 16)
	return nil
}

func (f *File) UnmarshalBinary(b []byte) error {
	if len(b) < headerSizeV1 {
		return errShort
	}

	var tmp [headerSizeV2]byte
	copy(tmp[:], b)

	var h Header
	if err := binary.Read(bytes.NewReader(tmp[:]), binary.LittleEndian, &h); err != nil {
		return err
	}

	switch h.Version {
	case VersionOne:
		h.Unknown11 = 0
	case VersionTwo:
		if len(b) < headerSizeV2 {
			return errShort
		}
	default:
		return errVersion
	}

	pixels := uint64(h.ImageWidth) * uint64(h.ImageHeight)
	if pixels > uint64(len(b)) {
		return errSize
	}
	size := uint64(h.Size()) + uint64(h.PaletteSectionSize()) + pixels*uint64(h.BytesPerPixel) + uint64(h.ColorKeySectionSize())
	if size != uint64(len(b)) {
		return fmt.Errorf("%w: %d bytes, expected %d", errSize, len(b), size)
	}

	d := decoder{
		b:      b,
		header: &h,
		width:  int(h.ImageWidth),
		height: int(h.ImageHeight),
	}

	var err error
	if h.NbPalettes > 0 {
		err = d.decodePaletted()
	} else {
		err = d.decodeDirect()
	}
	if err != nil {
		return err
	}

	f.header = h
	f.texture = d.texture
	f.colorKeys = d.colorKeys
	f.alphaBits = d.alphaBits
	f.paletteTail = d.paletteTail
	f.meta = nil
	f.fourBitsPerIndex = h.NbColorsPerPalette1 == 16
	return nil
}

type decoder struct {
	b      []byte
	header *Header

	width, height int

	texture     *texture.Texture
	colorKeys   []byte
	alphaBits   []bool
	paletteTail []byte
}

func (d *decoder) decodePaletted() error {
	h := d.header
	start := h.Size()
	colors := int(h.NbColorsPerPalette1)

	if colors == 0 || colors > 256 || h.BytesPerPixel != 1 {
		return errPixelFormat
	}
	if int(h.NbPalettes)*colors*4 > h.PaletteSectionSize() {
		return errPalette
	}

	tables := make([]color.Palette, h.NbPalettes)
	for i := range tables {
		table := make(color.Palette, colors)
		for j := range table {
			p := d.b[start+(i*colors+j)*4:]
			table[j] = color.NRGBA{R: p[2], G: p[1], B: p[0], A: p[3]}
		}
		tables[i] = table
	}

	if used := int(h.NbPalettes) * colors * 4; used < h.PaletteSectionSize() {
		d.paletteTail = append([]byte(nil), d.b[start+used:start+h.PaletteSectionSize()]...)
	}

	imageStart := start + h.PaletteSectionSize()
	m := image.NewPaletted(image.Rect(0, 0, d.width, d.height), tables[0])
	for i, index := range d.b[imageStart : imageStart+d.width*d.height] {
		if int(index) >= colors {
			return errIndex
		}
		m.Pix[i] = index
	}

	if h.HasColorKeyArray != 0 {
		keyStart := imageStart + h.ImageSectionSize()
		d.colorKeys = append([]byte(nil), d.b[keyStart:keyStart+int(h.NbPalettes)]...)
	}

	d.texture = texture.NewPaletted(m, tables)
	return nil
}

func (d *decoder) decodeDirect() error {
	h := d.header
	start := h.Size()
	m := image.NewNRGBA(image.Rect(0, 0, d.width, d.height))

	switch h.BytesPerPixel {
	case 2:
		d.alphaBits = make([]bool, d.width*d.height)
		for i := range d.alphaBits {
			w := binary.LittleEndian.Uint16(d.b[start+i*2:])
			c := pscolor.ToColor(w)
			copy(m.Pix[i*4:], []byte{c.R, c.G, c.B, c.A})
			d.alphaBits[i] = pscolor.AlphaBit(w)
		}
	case 3:
		for i := 0; i < d.width*d.height; i++ {
			p := d.b[start+i*3:]
			copy(m.Pix[i*4:], []byte{p[0], p[1], p[2], 0xff})
		}
	default:
		return errPixelFormat
	}

	d.texture = texture.New(m)
	return nil
}

func (f *File) MarshalBinary() ([]byte, error) {
	h := f.header
	bounds := f.texture.Bounds()
	h.ImageWidth = uint32(bounds.Dx())
	h.ImageHeight = uint32(bounds.Dy())

	b := new(bytes.Buffer)
	if err := binary.Write(b, binary.LittleEndian, &h); err != nil {
		return nil, err
	}
	b.Truncate(h.Size())

	e := encoder{w: b, header: &h}

	var err error
	if h.NbPalettes > 0 {
		err = e.encodePaletted(f.texture, f.colorKeys, f.paletteTail)
	} else {
		var bits []bool
		if len(f.alphaBits) == bounds.Dx()*bounds.Dy() {
			bits = f.alphaBits
		}
		err = e.encodeDirect(f.texture.Image(), bits)
	}
	if err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

type encoder struct {
	w      *bytes.Buffer
	header *Header
}

// encodePaletted writes every declared palette slot, padding missing
// palettes and colours with zeroes. The rest of the palette section is
// filled from tail and then with zeroes.
func (e *encoder) encodePaletted(t *texture.Texture, colorKeys, tail []byte) error {
	h := e.header
	m := t.Paletted()
	if m == nil {
		return errNotIndexed
	}

	tables := t.ColorTables()
	for i := 0; i < int(h.NbPalettes); i++ {
		for j := 0; j < int(h.NbColorsPerPalette1); j++ {
			var c color.NRGBA
			if i < len(tables) && j < len(tables[i]) {
				c = color.NRGBAModel.Convert(tables[i][j]).(color.NRGBA)
			}
			e.w.Write([]byte{c.B, c.G, c.R, c.A})
		}
	}
	if rest := h.PaletteSectionSize() - int(h.NbPalettes)*int(h.NbColorsPerPalette1)*4; rest > 0 {
		pad := make([]byte, rest)
		copy(pad, tail)
		e.w.Write(pad)
	}

	b := m.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		e.w.Write(m.Pix[m.PixOffset(b.Min.X, y):m.PixOffset(b.Max.X, y)])
	}

	if h.HasColorKeyArray != 0 {
		keys := make([]byte, h.NbPalettes)
		copy(keys, colorKeys)
		e.w.Write(keys)
	}

	return nil
}

// encodeDirect writes every pixel, setting the top bit of 16-bit colours
// from bits when it is not nil.
func (e *encoder) encodeDirect(m image.Image, bits []bool) error {
	b := m.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(m.At(x, y)).(color.NRGBA)
			if e.header.BytesPerPixel == 3 {
				e.w.Write([]byte{c.R, c.G, c.B})
				continue
			}
			w := pscolor.FromColor(c)
			if bits != nil {
				w = pscolor.SetAlphaBit(w, bits[(y-b.Min.Y)*b.Dx()+x-b.Min.X])
			}
			var tmp [2]byte
			binary.LittleEndian.PutUint16(tmp[:], w)
			e.w.Write(tmp[:])
		}
	}
	return nil
}

// Metadata returns every header field that cannot be recovered from the
// image alone.
func (f *File) Metadata() *metadata.Metadata {
	m := metadata.New()
	for _, fd := range fields {
		m.Set(fd.name, *fd.ptr(&f.header))
	}
	if f.header.Version >= VersionTwo {
		m.Set(unknown11.name, f.header.Unknown11)
	}
	return m
}

// SetMetadata derives a default header from the version, hasAlpha and
// fourBitsPerIndex keys and then overrides every field present in m.
// Unknown keys are ignored.
func (f *File) SetMetadata(m *metadata.Metadata) error {
	version, err := uintField(m, "version", uint64(VersionOne))
	if err != nil {
		return err
	}
	if version != uint64(VersionOne) && version != uint64(VersionTwo) {
		return fmt.Errorf("%w %d", errBadVersion, version)
	}
	hasAlpha, err := uintField(m, "hasAlpha", 0)
	if err != nil {
		return err
	}
	fourBitsPerIndex, err := uintField(m, "fourBitsPerIndex", 0)
	if err != nil {
		return err
	}

	f.SetHeader(uint32(version), hasAlpha != 0, fourBitsPerIndex != 0)

	set := func(fd field) error {
		v, ok, err := m.Uint(fd.name, 32)
		if err != nil {
			return fmt.Errorf("%w: %v", errInvalidField, err)
		}
		if ok {
			*fd.ptr(&f.header) = uint32(v)
		}
		return nil
	}

	for _, fd := range fields {
		if err := set(fd); err != nil {
			return err
		}
	}
	if f.header.Version >= VersionTwo {
		if err := set(unknown11); err != nil {
			return err
		}
	}

	f.meta = m
	return nil
}

func uintField(m *metadata.Metadata, key string, def uint64) (uint64, error) {
	v, ok, err := m.Uint(key, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errInvalidField, err)
	}
	if !ok {
		return def, nil
	}
	return v, nil
}
