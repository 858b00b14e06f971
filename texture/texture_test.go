package texture

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red   = color.NRGBA{R: 0xff, A: 0xff}
	green = color.NRGBA{G: 0xff, A: 0xff}
	blue  = color.NRGBA{B: 0xff, A: 0xff}
)

func paletted(t *testing.T) *Texture {
	t.Helper()

	m := image.NewPaletted(image.Rect(0, 0, 2, 2), nil)
	copy(m.Pix, []uint8{0, 1, 2, 1})
	return NewPaletted(m, []color.Palette{
		{red, green, blue, color.NRGBA{}},
		{blue, red, green, color.NRGBA{}},
	})
}

func TestNew(t *testing.T) {
	m := image.NewNRGBA(image.Rect(3, 3, 5, 5))
	m.SetNRGBA(3, 3, color.NRGBA{R: 10, G: 20, B: 30, A: 0x7f})

	tx := New(m)
	assert.True(t, tx.IsValid())
	assert.False(t, tx.IsPaletted())
	assert.Equal(t, 32, tx.Depth())
	assert.Equal(t, image.Rect(0, 0, 2, 2), tx.Bounds())
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 0x7f}, tx.Image().At(0, 0))
	assert.Nil(t, tx.Paletted())
	assert.Nil(t, tx.Palette())
	assert.Equal(t, image.Point{}, tx.PaletteSize())

	pm := image.NewPaletted(image.Rect(0, 0, 1, 1), color.Palette{color.RGBA{R: 0xff, A: 0xff}})
	tx = New(pm)
	assert.True(t, tx.IsPaletted())
	assert.Equal(t, 1, tx.ColorTableCount())
	assert.Equal(t, red, tx.ColorTable(0)[0])
	assert.Equal(t, 4, tx.Depth())

	var empty Texture
	assert.False(t, empty.IsValid())
	assert.False(t, empty.IsPaletted())
}

func TestDepth(t *testing.T) {
	m := image.NewPaletted(image.Rect(0, 0, 1, 1), nil)

	assert.Equal(t, 4, NewPaletted(m, []color.Palette{make(color.Palette, 16)}).Depth())
	assert.Equal(t, 8, NewPaletted(m, []color.Palette{make(color.Palette, 17)}).Depth())
	assert.Equal(t, 8, NewPaletted(m, []color.Palette{make(color.Palette, 256)}).Depth())
}

func TestCurrentColorTable(t *testing.T) {
	tx := paletted(t)

	assert.Equal(t, 0, tx.CurrentColorTable())
	assert.Equal(t, green, tx.Image().At(1, 0))

	tx.SetCurrentColorTable(1)
	assert.Equal(t, 1, tx.CurrentColorTable())
	assert.Equal(t, red, tx.Image().At(1, 0))

	tx.SetCurrentColorTable(5)
	assert.Equal(t, 1, tx.CurrentColorTable())
}

func TestSetColorTable(t *testing.T) {
	tx := paletted(t)

	tx.SetColorTable(0, color.Palette{green})
	assert.Equal(t, color.Palette{green, color.NRGBA{}, color.NRGBA{}, color.NRGBA{}}, tx.ColorTable(0))

	tx.SetColorTable(1, color.Palette{red, red, red, red, red, red})
	assert.Len(t, tx.ColorTable(1), 4)

	tx.SetColorTable(2, color.Palette{red})
	tx.SetColorTable(-1, color.Palette{red})
	assert.Equal(t, 2, tx.ColorTableCount())

	assert.Equal(t, green, tx.Image().At(0, 0))
}

func TestAppendColorTable(t *testing.T) {
	tx := paletted(t)
	require.NoError(t, tx.AppendColorTable(color.Palette{red}))
	assert.Equal(t, 3, tx.ColorTableCount())
	assert.Len(t, tx.ColorTable(2), 4)

	err := New(image.NewNRGBA(image.Rect(0, 0, 1, 1))).AppendColorTable(color.Palette{red})
	assert.True(t, errors.Is(err, ErrConversion))
}

func TestSetColorTables(t *testing.T) {
	tx := paletted(t)

	err := tx.SetColorTables([]color.Palette{{red, green, blue}, {red}})
	assert.True(t, errors.Is(err, ErrConversion), "unequal lengths")

	err = tx.SetColorTables([]color.Palette{{red, green}})
	assert.True(t, errors.Is(err, ErrConversion), "index 2 out of range")

	err = tx.SetColorTables(nil)
	assert.True(t, errors.Is(err, ErrConversion), "paletted raster needs a table")

	require.NoError(t, tx.SetColorTables([]color.Palette{{blue, blue, blue}}))
	assert.Equal(t, blue, tx.Image().At(1, 1))
}

func TestClone(t *testing.T) {
	tx := paletted(t)
	c := tx.Clone()

	c.SetColorTable(0, color.Palette{blue, blue})
	c.Paletted().SetColorIndex(0, 0, 3)

	assert.Equal(t, red, tx.ColorTable(0)[0])
	assert.Equal(t, uint8(0), tx.Paletted().ColorIndexAt(0, 0))
	assert.Equal(t, blue, c.Image().At(1, 0))
	assert.Equal(t, color.NRGBA{}, c.Image().At(0, 0))
}

func TestToDirect(t *testing.T) {
	tx := paletted(t)
	tx.SetCurrentColorTable(1)
	tx.ToDirect()

	assert.False(t, tx.IsPaletted())
	assert.Nil(t, tx.Paletted())
	assert.Equal(t, blue, tx.Image().At(0, 0))
	assert.Equal(t, green, tx.Image().At(0, 1))
}

func TestPalette(t *testing.T) {
	m := image.NewPaletted(image.Rect(0, 0, 1, 1), nil)
	tables := []color.Palette{make(color.Palette, 16), make(color.Palette, 16)}
	for i := range tables[0] {
		tables[0][i] = color.NRGBA{R: uint8(i), A: 0xff}
		tables[1][i] = color.NRGBA{G: uint8(i), A: 0x7f}
	}
	tx := NewPaletted(m, tables)

	assert.Equal(t, image.Pt(16, 2), tx.PaletteSize())

	p := tx.Palette()
	require.NotNil(t, p)
	assert.Equal(t, image.Rect(0, 0, 16, 2), p.Bounds())
	assert.Equal(t, color.NRGBA{R: 5, A: 0xff}, p.At(5, 0))
	assert.Equal(t, color.NRGBA{G: 9, A: 0x7f}, p.At(9, 1))
}

func TestPaletteImage(t *testing.T) {
	tables := []color.Palette{{red, green, blue}}

	p := PaletteImage(tables, image.Pt(2, 3))
	assert.Equal(t, red, p.At(0, 0))
	assert.Equal(t, green, p.At(1, 0))
	assert.Equal(t, blue, p.At(0, 1))
	assert.Equal(t, color.NRGBA{A: 0xff}, p.At(1, 2), "unused pixels are opaque black")

	p = PaletteImage(tables, image.Pt(1, 1))
	assert.Equal(t, red, p.At(0, 0))
}

func TestSetPalette(t *testing.T) {
	p := image.NewNRGBA(image.Rect(0, 0, 16, 3))
	for x := 0; x < 16; x++ {
		for y := 0; y < 3; y++ {
			p.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), A: 0xff})
		}
	}

	var tx Texture
	require.NoError(t, tx.SetPalette(p, 16))
	require.Equal(t, 3, tx.ColorTableCount())
	assert.Equal(t, color.NRGBA{R: 4, G: 2, A: 0xff}, tx.ColorTable(2)[4])

	require.NoError(t, tx.SetPalette(p, 256))
	require.Equal(t, 1, tx.ColorTableCount())
	assert.Len(t, tx.ColorTable(0), 256)
	assert.Equal(t, color.NRGBA{R: 15, G: 2, A: 0xff}, tx.ColorTable(0)[47])
	assert.Equal(t, color.NRGBA{}, tx.ColorTable(0)[48])

	err := tx.SetPalette(p, 32)
	assert.True(t, errors.Is(err, ErrConversion))
}

func TestConvertToIndexed(t *testing.T) {
	m := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	m.SetNRGBA(0, 0, red)
	m.SetNRGBA(1, 0, color.NRGBA{R: 9, G: 9, B: 9, A: 0})
	m.SetNRGBA(0, 1, blue)
	m.SetNRGBA(1, 1, red)

	tx := New(m)
	require.NoError(t, tx.SetColorTables([]color.Palette{
		{color.NRGBA{R: 1, A: 0}, red, blue, red},
	}))

	// Paletted but not yet indexed
	assert.True(t, tx.IsPaletted())
	assert.Nil(t, tx.Paletted())
	assert.IsType(t, &image.NRGBA{}, tx.Image())

	require.NoError(t, tx.ConvertToIndexed(0))

	pm := tx.Paletted()
	require.NotNil(t, pm)
	assert.Equal(t, []uint8{1, 0, 2, 1}, pm.Pix)
	assert.Equal(t, color.NRGBA{}, tx.ColorTable(0)[0], "transparent colours fold to transparent black")
	assert.Equal(t, 4, tx.Depth())
}

func TestSetPaletteDirect(t *testing.T) {
	m := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	m.SetNRGBA(0, 0, blue)
	m.SetNRGBA(1, 0, red)

	p := image.NewNRGBA(image.Rect(0, 0, 16, 1))
	p.SetNRGBA(0, 0, red)
	p.SetNRGBA(1, 0, blue)

	tx := New(m)
	require.NoError(t, tx.SetPalette(p, 16))
	assert.True(t, tx.IsPaletted())
	assert.Nil(t, tx.Paletted())

	require.NoError(t, tx.ConvertToIndexed(0))
	require.NotNil(t, tx.Paletted())
	assert.Equal(t, []uint8{1, 0}, tx.Paletted().Pix)
}

func TestConvertToIndexedMissingColor(t *testing.T) {
	m := image.NewNRGBA(image.Rect(0, 0, 1, 2))
	m.SetNRGBA(0, 0, red)
	m.SetNRGBA(0, 1, green)

	tx := New(m)
	require.NoError(t, tx.SetColorTables([]color.Palette{{color.NRGBA{R: 0xff, A: 0}, red}}))

	err := tx.ConvertToIndexed(0)
	assert.True(t, errors.Is(err, ErrConversion))

	assert.Nil(t, tx.Paletted())
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0}, tx.ColorTable(0)[0], "left untouched")

	err = tx.ConvertToIndexed(3)
	assert.True(t, errors.Is(err, ErrConversion))
}
