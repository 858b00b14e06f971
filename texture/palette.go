package texture

import (
	"fmt"
	"image"
	"image/color"
)

// paletteWidth is the number of colours per row in a palette image
const paletteWidth = 16

// PaletteSize returns the size of the palette image: 16 colours wide with
// one row per 16 colours of every table.
func (t *Texture) PaletteSize() image.Point {
	if !t.IsPaletted() {
		return image.Point{}
	}
	return image.Pt(paletteWidth, len(t.colorTables[0])/paletteWidth*len(t.colorTables))
}

// Palette returns every colour table laid out as an image of
// PaletteSize(), or nil for a direct colour texture.
func (t *Texture) Palette() image.Image {
	if !t.IsPaletted() {
		return nil
	}
	return PaletteImage(t.colorTables, t.PaletteSize())
}

// PaletteImage lays the colours of tables out left to right, top to bottom
// in an image of the given size. Unused pixels are opaque black and colours
// that do not fit are dropped.
func PaletteImage(tables []color.Palette, size image.Point) *image.NRGBA {
	m := image.NewNRGBA(image.Rectangle{Max: size})
	if size.X <= 0 || size.Y <= 0 {
		return m
	}

	for i := 0; i < len(m.Pix); i += 4 {
		m.Pix[i+3] = 0xff
	}

	x, y := 0, 0
	for _, table := range tables {
		for _, c := range table {
			if y >= size.Y {
				return m
			}
			m.Set(x, y, c)
			if x++; x == size.X {
				x = 0
				y++
			}
		}
	}

	return m
}

// SetPalette replaces the colour tables by slicing the pixels of m, read
// left to right and top to bottom, into runs of colorsPerPalette colours.
// A trailing partial run is padded with transparent black. As with
// SetColorTables a direct colour raster stays unindexed until
// ConvertToIndexed is called.
func (t *Texture) SetPalette(m image.Image, colorsPerPalette int) error {
	if colorsPerPalette != 16 && colorsPerPalette != 256 {
		return fmt.Errorf("texture: %d colours per palette: %w", colorsPerPalette, ErrConversion)
	}

	var tables []color.Palette
	var table color.Palette

	b := m.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			table = append(table, color.NRGBAModel.Convert(m.At(x, y)))
			if len(table) == colorsPerPalette {
				tables = append(tables, table)
				table = nil
			}
		}
	}
	if len(table) > 0 {
		tables = append(tables, Resize(table, colorsPerPalette))
	}

	return t.SetColorTables(tables)
}

// ConvertToIndexed maps every pixel of the raster to its exact match in the
// colour table paletteID and binds that table. Colours with zero alpha are
// first folded to transparent black, in the table and in the raster, so
// there is a single transparent key. The texture is left untouched when a
// pixel has no match.
func (t *Texture) ConvertToIndexed(paletteID int) error {
	if paletteID < 0 || paletteID >= len(t.colorTables) {
		return fmt.Errorf("texture: no colour table %d: %w", paletteID, ErrConversion)
	}
	if t.img == nil {
		return fmt.Errorf("texture: no image: %w", ErrConversion)
	}

	table := make(color.Palette, len(t.colorTables[paletteID]))
	index := make(map[color.NRGBA]uint8, len(table))
	for i, c := range t.colorTables[paletteID] {
		n := canonical(c)
		table[i] = n
		if _, ok := index[n]; !ok && i < 256 {
			index[n] = uint8(i)
		}
	}

	b := t.img.Bounds()
	pm := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), table)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := canonical(t.img.At(x, y))
			i, ok := index[c]
			if !ok {
				return fmt.Errorf("texture: palette %d does not contain %v at (%d, %d): %w", paletteID, c, x, y, ErrConversion)
			}
			pm.SetColorIndex(x-b.Min.X, y-b.Min.Y, i)
		}
	}

	t.colorTables[paletteID] = table
	t.current = paletteID
	t.img = pm
	return nil
}

func canonical(c color.Color) color.NRGBA {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	if n.A == 0 {
		return transparent
	}
	return n
}
