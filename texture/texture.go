/*
Package texture implements the format-agnostic texture shared by the
container codecs: a raster image plus zero or more equal-length colour
tables, one of which is bound to the raster at any time.

A texture with colour tables is paletted and, once indexed, its raster is
an *image.Paletted whose palette is the current table. A texture without
colour tables holds an *image.NRGBA. Giving tables to a direct colour
texture through SetColorTables or SetPalette leaves it paletted but not
indexed, Paletted returns nil, until ConvertToIndexed maps its pixels. Colours are kept non-premultiplied so
that the RGB of transparent and semi-transparent entries survives.
*/
package texture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

var (
	// ErrFormat is returned when binary input is malformed, short or
	// inconsistent.
	ErrFormat = errors.New("invalid format")

	// ErrConversion is returned when an operation is not valid for
	// otherwise valid data.
	ErrConversion = errors.New("conversion failed")
)

var (
	errNoTables      = fmt.Errorf("texture: no colour tables: %w", ErrConversion)
	errUnequalTables = fmt.Errorf("texture: colour tables differ in length: %w", ErrConversion)
	errIndexRange    = fmt.Errorf("texture: colour index out of range: %w", ErrConversion)
	errDirectColor   = fmt.Errorf("texture: direct colour texture: %w", ErrConversion)
)

var transparent = color.NRGBA{}

// Texture is a decoded texture. The zero value is an empty texture.
type Texture struct {
	img         image.Image
	colorTables []color.Palette
	current     int
}

// New returns a texture holding a copy of m. A paletted image becomes a
// paletted texture with a single colour table.
func New(m image.Image) *Texture {
	if pm, ok := m.(*image.Paletted); ok && len(pm.Palette) > 0 {
		table := toNRGBA(pm.Palette)
		return NewPaletted(pm, []color.Palette{table})
	}

	return &Texture{
		img: toImageNRGBA(m),
	}
}

// NewPaletted returns a texture with the given colour tables bound to a
// copy of m. The first table becomes current.
func NewPaletted(m *image.Paletted, colorTables []color.Palette) *Texture {
	t := &Texture{
		colorTables: colorTables,
	}

	b := m.Bounds()
	pm := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), nil)
	for y := 0; y < b.Dy(); y++ {
		copy(pm.Pix[y*pm.Stride:y*pm.Stride+b.Dx()], m.Pix[m.PixOffset(b.Min.X, b.Min.Y+y):])
	}
	if len(colorTables) > 0 {
		pm.Palette = colorTables[0]
	}
	t.img = pm

	return t
}

func toNRGBA(p color.Palette) color.Palette {
	out := make(color.Palette, len(p))
	for i, c := range p {
		out[i] = color.NRGBAModel.Convert(c)
	}
	return out
}

func toImageNRGBA(m image.Image) *image.NRGBA {
	b := m.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(m.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			copy(dst.Pix[dst.PixOffset(x, y):], []byte{c.R, c.G, c.B, c.A})
		}
	}
	return dst
}

// ToDirect replaces the raster by its colours under the current table and
// drops every colour table.
func (t *Texture) ToDirect() {
	if t.img != nil {
		t.img = toImageNRGBA(t.img)
	}
	t.colorTables = nil
	t.current = 0
}

// Image returns the raster. It is an *image.Paletted bound to the current
// colour table when the texture is paletted and has been indexed.
func (t *Texture) Image() image.Image {
	return t.img
}

// Paletted returns the indexed raster or nil when the raster holds direct
// colour.
func (t *Texture) Paletted() *image.Paletted {
	pm, _ := t.img.(*image.Paletted)
	return pm
}

// Bounds returns the raster bounds, always anchored at the origin
func (t *Texture) Bounds() image.Rectangle {
	if t.img == nil {
		return image.Rectangle{}
	}
	return t.img.Bounds()
}

// IsValid reports whether the texture holds a raster
func (t *Texture) IsValid() bool {
	return t.img != nil && !t.img.Bounds().Empty()
}

// IsPaletted reports whether the texture has at least one colour table
func (t *Texture) IsPaletted() bool {
	return len(t.colorTables) > 0
}

// Depth returns the bit depth of the raster: 4 or 8 for paletted textures
// depending on the table length, 32 otherwise.
func (t *Texture) Depth() int {
	if !t.IsPaletted() {
		return 32
	}
	if len(t.colorTables[0]) <= 16 {
		return 4
	}
	return 8
}

// ColorTables returns the colour tables
func (t *Texture) ColorTables() []color.Palette {
	return t.colorTables
}

// ColorTable returns the table with the given id, or nil
func (t *Texture) ColorTable(id int) color.Palette {
	if id < 0 || id >= len(t.colorTables) {
		return nil
	}
	return t.colorTables[id]
}

// ColorTableCount returns the number of colour tables
func (t *Texture) ColorTableCount() int {
	return len(t.colorTables)
}

// CurrentColorTable returns the id of the table bound to the raster
func (t *Texture) CurrentColorTable() int {
	return t.current
}

// SetCurrentColorTable binds the table with the given id to the raster.
// Unknown ids are ignored.
func (t *Texture) SetCurrentColorTable(id int) {
	if id < 0 || id >= len(t.colorTables) {
		return
	}
	t.current = id
	t.bind()
}

func (t *Texture) bind() {
	if pm := t.Paletted(); pm != nil && len(t.colorTables) > 0 {
		pm.Palette = t.colorTables[t.current]
	}
}

// SetColorTable replaces the table with the given id. The replacement is
// normalized to the existing length: extra colours are dropped and missing
// ones are filled with transparent black. Unknown ids are ignored.
func (t *Texture) SetColorTable(id int, table color.Palette) {
	if id < 0 || id >= len(t.colorTables) {
		return
	}
	t.colorTables[id] = Resize(table, len(t.colorTables[id]))
	t.bind()
}

// AppendColorTable adds a table, normalized to the length of the existing
// ones, to a paletted texture.
func (t *Texture) AppendColorTable(table color.Palette) error {
	if !t.IsPaletted() {
		return errDirectColor
	}
	t.colorTables = append(t.colorTables, Resize(table, len(t.colorTables[0])))
	return nil
}

// SetColorTables replaces every colour table. All tables must have the
// same length and that length must cover every index in the raster. A
// direct colour raster is kept as is: the texture is then paletted but not
// indexed until ConvertToIndexed is called.
func (t *Texture) SetColorTables(tables []color.Palette) error {
	for _, table := range tables {
		if len(table) != len(tables[0]) {
			return errUnequalTables
		}
	}
	if pm := t.Paletted(); pm != nil {
		if len(tables) == 0 {
			return errNoTables
		}
		if int(maxIndex(pm)) >= len(tables[0]) {
			return errIndexRange
		}
	}

	t.colorTables = tables
	if t.current >= len(tables) {
		t.current = 0
	}
	t.bind()
	return nil
}

// Resize returns a copy of table with exactly n colours
func Resize(table color.Palette, n int) color.Palette {
	out := make(color.Palette, n)
	for i := range out {
		if i < len(table) {
			out[i] = color.NRGBAModel.Convert(table[i])
		} else {
			out[i] = transparent
		}
	}
	return out
}

func maxIndex(pm *image.Paletted) uint8 {
	var max uint8
	b := pm.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if i := pm.ColorIndexAt(x, y); i > max {
				max = i
			}
		}
	}
	return max
}

// Clone returns a deep copy of t
func (t *Texture) Clone() *Texture {
	c := &Texture{
		current: t.current,
	}
	for _, table := range t.colorTables {
		c.colorTables = append(c.colorTables, append(color.Palette(nil), table...))
	}

	switch m := t.img.(type) {
	case nil:
	case *image.Paletted:
		pm := image.NewPaletted(m.Rect, nil)
		copy(pm.Pix, m.Pix)
		c.img = pm
		c.bind()
	case *image.NRGBA:
		nm := image.NewNRGBA(m.Rect)
		copy(nm.Pix, m.Pix)
		c.img = nm
	default:
		c.img = toImageNRGBA(m)
	}

	return c
}
