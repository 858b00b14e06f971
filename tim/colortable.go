package tim

import (
	"image"
	"image/color"

	"github.com/myst6re/vincent-tim/metadata"
	"github.com/myst6re/vincent-tim/texture"
)

// Alpha values used to carry the semi-transparency flag through generic
// images. Every other alpha imports as opaque.
const (
	alphaTransparent     = 0x00
	alphaSemiTransparent = 0x7f
	alphaOpaque          = 0xff
)

// ExportColorTables returns the colour tables with every opaque colour
// whose semi-transparency flag is set given an alpha of 127.
func (f *File) ExportColorTables() []color.Palette {
	tables := f.texture.ColorTables()
	out := make([]color.Palette, len(tables))
	for i, table := range tables {
		var bits []bool
		if i < len(f.alphaBits) {
			bits = f.alphaBits[i]
		}
		out[i] = make(color.Palette, len(table))
		for j, c := range table {
			n := color.NRGBAModel.Convert(c).(color.NRGBA)
			if n.A == alphaOpaque && j < len(bits) && bits[j] {
				n.A = alphaSemiTransparent
			}
			out[i][j] = n
		}
	}
	return out
}

// importTable maps alpha 0 to transparent black, alpha 127 to an opaque
// colour with the semi-transparency flag set and anything else to an
// opaque colour.
func importTable(table color.Palette) (color.Palette, []bool) {
	out := make(color.Palette, len(table))
	bits := make([]bool, len(table))
	for i, c := range table {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		switch n.A {
		case alphaTransparent:
			n = color.NRGBA{}
		case alphaSemiTransparent:
			n.A = alphaOpaque
			bits[i] = true
		default:
			n.A = alphaOpaque
		}
		out[i] = n
	}
	return out, bits
}

// ImportColorTables replaces the colour tables from tables in their
// exported form, see ExportColorTables. Tables are resized to the length
// the depth allows. A direct colour raster is first indexed against the
// first table. The file is left untouched on error.
func (f *File) ImportColorTables(tables []color.Palette) error {
	n := f.ColorsPerPalette()
	if n == 0 {
		return errNoTableSize
	}

	t := f.texture.Clone()

	raw := make([]color.Palette, len(tables))
	for i, table := range tables {
		raw[i] = texture.Resize(table, n)
	}

	if t.Paletted() == nil {
		if err := t.SetColorTables(raw); err != nil {
			return err
		}
		if err := t.ConvertToIndexed(0); err != nil {
			return err
		}
		raw = t.ColorTables()
	}

	imported := make([]color.Palette, len(raw))
	bits := make([][]bool, len(raw))
	for i, table := range raw {
		imported[i], bits[i] = importTable(table)
	}

	if err := t.SetColorTables(imported); err != nil {
		return err
	}

	f.texture = t
	f.alphaBits = bits
	return nil
}

// SetColorTable replaces one colour table from its exported form. Unknown
// ids are ignored.
func (f *File) SetColorTable(id int, table color.Palette) {
	if id < 0 || id >= f.texture.ColorTableCount() || id >= len(f.alphaBits) {
		return
	}
	imported, bits := importTable(texture.Resize(table, len(f.texture.ColorTable(id))))
	f.texture.SetColorTable(id, imported)
	f.alphaBits[id] = bits
}

// SetPalette replaces the colour tables by slicing the palette image m,
// in exported form, into runs of ColorsPerPalette() colours. The palette
// block takes the size of m.
func (f *File) SetPalette(m image.Image) error {
	n := f.ColorsPerPalette()
	if n == 0 {
		return errNoTableSize
	}

	scratch := new(texture.Texture)
	if err := scratch.SetPalette(m, n); err != nil {
		return err
	}
	if err := f.ImportColorTables(scratch.ColorTables()); err != nil {
		return err
	}

	f.setPaletteSize(m.Bounds().Size())
	return nil
}

// FromTexture builds a TIM file from a texture in exported form. The depth
// follows the texture unless meta overrides it. When palette is not nil it
// replaces the colour tables of the texture.
func FromTexture(t *texture.Texture, meta *metadata.Metadata, palette image.Image) (*File, error) {
	f := &File{
		texture: t.Clone(),
	}
	f.bpp = mode(t.Depth())
	f.setPaletteSize(t.PaletteSize())

	// The tables are still in exported form, ImportColorTables below
	// resizes them to the requested depth.
	if meta != nil {
		bpp, err := f.readMetadata(meta)
		if err != nil {
			return nil, err
		}
		f.bpp = bpp
	}

	if palette != nil {
		if err := f.SetPalette(palette); err != nil {
			return nil, err
		}
		return f, nil
	}

	if f.ColorsPerPalette() == 0 {
		f.texture.ToDirect()
		f.setPaletteSize(image.Point{})
		return f, nil
	}

	if !f.texture.IsPaletted() {
		return nil, errNeedPalette
	}

	if err := f.ImportColorTables(f.texture.ColorTables()); err != nil {
		return nil, err
	}

	return f, nil
}
