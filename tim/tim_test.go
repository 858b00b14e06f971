package tim

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/myst6re/vincent-tim/metadata"
	"github.com/myst6re/vincent-tim/texture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type block struct {
	x, y, w, h uint16
	data       []byte
}

func build(flag uint32, blocks ...block) []byte {
	b := new(bytes.Buffer)
	b.WriteString(Tag)
	binary.Write(b, binary.LittleEndian, flag)
	for _, blk := range blocks {
		binary.Write(b, binary.LittleEndian, uint32(blockHeaderSize+len(blk.data)))
		binary.Write(b, binary.LittleEndian, [4]uint16{blk.x, blk.y, blk.w, blk.h})
		b.Write(blk.data)
	}
	return b.Bytes()
}

func words(ws ...uint16) []byte {
	b := make([]byte, len(ws)*2)
	for i, w := range ws {
		binary.LittleEndian.PutUint16(b[i*2:], w)
	}
	return b
}

func container4() []byte {
	table0 := []uint16{
		0x0000, 0x801f, 0x7fff, 0x8000, 0x03e0, 0x7c00, 0x0421, 0x0842,
		0x0c63, 0x1084, 0x14a5, 0x18c6, 0x1ce7, 0x2108, 0x2529, 0x294a,
	}
	table1 := make([]uint16, 16)
	for i := range table1 {
		table1[i] = uint16(i) * 0x0421
		if i%2 == 1 {
			table1[i] |= 0x8000
		}
	}

	return build(0x08,
		block{y: 480, w: 16, h: 2, data: append(words(table0...), words(table1...)...)},
		block{x: 320, w: 2, h: 2, data: []byte{0x21, 0x43, 0x65, 0x87, 0x10, 0x32, 0x54, 0x76}},
	)
}

func container8() []byte {
	table := make([]uint16, 256)
	for i := range table {
		table[i] = uint16(i) * 0x0101
	}

	return build(0x09,
		block{x: 768, y: 256, w: 256, h: 1, data: words(table...)},
		block{x: 640, y: 16, w: 2, h: 2, data: []byte{0, 1, 128, 255, 7, 8, 9, 200}},
	)
}

func container16() []byte {
	return build(0x02,
		block{x: 512, w: 3, h: 2, data: words(0x0000, 0x8000, 0x801f, 0x7fff, 0x03e0, 0x83e0)},
	)
}

func container24() []byte {
	return build(0x03,
		block{w: 2, h: 2, data: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}},
	)
}

func TestDecode4Bit(t *testing.T) {
	f, err := Decode(bytes.NewReader(container4()))
	require.NoError(t, err)

	assert.Equal(t, 4, f.Depth())
	assert.Equal(t, 16, f.ColorsPerPalette())
	assert.Equal(t, image.Pt(16, 2), f.PaletteSize())
	assert.Equal(t, uint16(480), f.PaletteY())
	assert.Equal(t, uint16(320), f.ImageX())

	tx := f.Texture()
	require.Equal(t, 2, tx.ColorTableCount())
	assert.Equal(t, image.Rect(0, 0, 8, 2), tx.Bounds())

	pm := tx.Paletted()
	require.NotNil(t, pm)
	assert.Equal(t, []uint8{1, 2, 3, 4, 5, 6, 7, 8}, pm.Pix[0:8])
	assert.Equal(t, []uint8{0, 1, 2, 3, 4, 5, 6, 7}, pm.Pix[8:16])

	assert.Equal(t, color.NRGBA{R: 0xff, A: 0xff}, tx.ColorTable(0)[1])
	assert.Equal(t, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, tx.ColorTable(0)[2])
	assert.Equal(t, color.NRGBA{}, tx.ColorTable(0)[3])

	require.Len(t, f.AlphaBits(), 2)
	assert.False(t, f.AlphaBits()[0][0])
	assert.True(t, f.AlphaBits()[0][1])
	assert.True(t, f.AlphaBits()[0][3])
	assert.True(t, f.AlphaBits()[1][1])
}

func TestDecode16Bit(t *testing.T) {
	f, err := Decode(bytes.NewReader(container16()))
	require.NoError(t, err)

	assert.Equal(t, 16, f.Depth())
	assert.False(t, f.Texture().IsPaletted())
	assert.Equal(t, image.Rect(0, 0, 3, 2), f.Texture().Bounds())

	m := f.Texture().Image()
	assert.Equal(t, color.NRGBA{}, m.At(0, 0))
	assert.Equal(t, color.NRGBA{}, m.At(1, 0))
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0xff}, m.At(2, 0))
	assert.Equal(t, color.NRGBA{G: 0xff, A: 0xff}, m.At(2, 1))

	assert.Equal(t, [][]bool{{false, true, true, false, false, true}}, f.AlphaBits())
}

func TestDecode24Bit(t *testing.T) {
	f, err := Decode(bytes.NewReader(container24()))
	require.NoError(t, err)

	assert.Equal(t, 24, f.Depth())
	assert.Equal(t, color.NRGBA{R: 4, G: 5, B: 6, A: 0xff}, f.Texture().Image().At(1, 0))
	assert.Equal(t, color.NRGBA{R: 10, G: 11, B: 12, A: 0xff}, f.Texture().Image().At(1, 1))
}

func TestDecodeTruncated(t *testing.T) {
	b := container8()
	b = b[:len(b)-3]

	f := new(File)
	require.NoError(t, f.UnmarshalBinary(b))

	pm := f.Texture().Paletted()
	require.NotNil(t, pm)
	assert.Equal(t, image.Rect(0, 0, 4, 2), pm.Bounds())
	assert.Equal(t, []uint8{0, 1, 128, 255, 7, 0, 0, 0}, pm.Pix)
}

func TestDecodeErrors(t *testing.T) {
	tables := []struct {
		name string
		data []byte
	}{
		{
			name: "bad tag",
			data: []byte{0x11, 0, 0, 0, 0x08, 0, 0, 0},
		},
		{
			name: "short",
			data: []byte{0x10, 0, 0},
		},
		{
			name: "palette at 16 bits",
			data: build(0x0a, block{w: 16, h: 1, data: make([]byte, 32)}, block{w: 1, h: 1, data: make([]byte, 2)}),
		},
		{
			name: "8 bits without palette",
			data: build(0x01, block{w: 2, h: 2, data: make([]byte, 8)}),
		},
		{
			name: "palette header truncated",
			data: append([]byte(Tag), 0x08, 0, 0, 0, 44, 0, 0, 0),
		},
		{
			name: "palette size below header",
			data: append([]byte(Tag), 0x08, 0, 0, 0, 4, 0, 0, 0, 0, 0, 0, 0, 16, 0, 1, 0),
		},
		{
			name: "palette past end",
			data: append([]byte(Tag), 0x08, 0, 0, 0, 0xe8, 0x03, 0, 0, 0, 0, 0, 0, 16, 0, 1, 0),
		},
		{
			name: "no palette",
			data: build(0x08, block{}, block{w: 1, h: 1, data: make([]byte, 2)}),
		},
		{
			name: "image header missing",
			data: build(0x08, block{w: 16, h: 1, data: make([]byte, 32)}),
		},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			f := new(File)
			err := f.UnmarshalBinary(table.data)
			assert.True(t, errors.Is(err, texture.ErrFormat), err)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	tables := []struct {
		name string
		data []byte
	}{
		{"4 bits", container4()},
		{"8 bits", container8()},
		{"16 bits", container16()},
		{"24 bits", container24()},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			f, err := Decode(bytes.NewReader(table.data))
			require.NoError(t, err)

			b := new(bytes.Buffer)
			require.NoError(t, Encode(b, f))
			assert.Equal(t, table.data, b.Bytes())
		})
	}
}

func TestEncodePadsWidth(t *testing.T) {
	m := image.NewPaletted(image.Rect(0, 0, 5, 1), nil)
	copy(m.Pix, []uint8{1, 2, 3, 4, 5})
	palette := make(color.Palette, 16)
	for i := range palette {
		palette[i] = color.NRGBA{R: uint8(i * 8), A: 0xff}
	}

	f, err := FromTexture(texture.NewPaletted(m, []color.Palette{palette}), nil, nil)
	require.NoError(t, err)
	require.Equal(t, 4, f.Depth())

	b, err := f.MarshalBinary()
	require.NoError(t, err)

	g := new(File)
	require.NoError(t, g.UnmarshalBinary(b))
	pm := g.Texture().Paletted()
	require.NotNil(t, pm)
	assert.Equal(t, image.Rect(0, 0, 8, 1), pm.Bounds())
	assert.Equal(t, []uint8{1, 2, 3, 4, 5, 0, 0, 0}, pm.Pix)
}

func TestEncodeContractPanics(t *testing.T) {
	f, err := Decode(bytes.NewReader(container4()))
	require.NoError(t, err)

	f.alphaBits = f.alphaBits[:1]
	assert.Panics(t, func() {
		f.MarshalBinary()
	})

	f, err = Decode(bytes.NewReader(container16()))
	require.NoError(t, err)

	f.alphaBits = [][]bool{{true}}
	assert.Panics(t, func() {
		f.MarshalBinary()
	})
}

func TestEncodeNeedsPalette(t *testing.T) {
	f, err := FromTexture(texture.New(image.NewNRGBA(image.Rect(0, 0, 2, 2))), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 16, f.Depth())

	err = f.SetDepth(8)
	assert.True(t, errors.Is(err, texture.ErrConversion))
	assert.Equal(t, 16, f.Depth())

	_, err = f.MarshalBinary()
	assert.NoError(t, err)
}

func TestExportColorTables(t *testing.T) {
	f, err := Decode(bytes.NewReader(container4()))
	require.NoError(t, err)

	tables := f.ExportColorTables()
	require.Len(t, tables, 2)
	assert.Equal(t, color.NRGBA{}, tables[0][0])
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0x7f}, tables[0][1])
	assert.Equal(t, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, tables[0][2])
	// Flagged black has no colour to carry the flag
	assert.Equal(t, color.NRGBA{}, tables[0][3])

	// The texture itself is untouched
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0xff}, f.Texture().ColorTable(0)[1])
	assert.Equal(t, uint8(0x7f), f.Export().ColorTable(0)[1].(color.NRGBA).A)
}

func TestImportColorTables(t *testing.T) {
	f, err := Decode(bytes.NewReader(container4()))
	require.NoError(t, err)

	table := make(color.Palette, 16)
	for i := range table {
		table[i] = color.NRGBA{A: 0xff}
	}
	table[0] = color.NRGBA{R: 10, G: 20, B: 30, A: 0}
	table[1] = color.NRGBA{R: 0xff, A: 0x7f}
	table[2] = color.NRGBA{G: 0xff, A: 200}

	require.NoError(t, f.ImportColorTables([]color.Palette{table, table}))

	imported := f.Texture().ColorTable(0)
	assert.Equal(t, color.NRGBA{}, imported[0])
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0xff}, imported[1])
	assert.Equal(t, color.NRGBA{G: 0xff, A: 0xff}, imported[2])
	assert.Equal(t, []bool{false, true, false}, f.AlphaBits()[0][:3])

	_, err = f.MarshalBinary()
	assert.NoError(t, err)
}

func TestImportColorTablesResizes(t *testing.T) {
	f, err := Decode(bytes.NewReader(container4()))
	require.NoError(t, err)

	require.Error(t, f.ImportColorTables(nil))
	assert.Equal(t, 2, f.Texture().ColorTableCount())

	short := color.Palette{color.NRGBA{A: 0xff}, color.NRGBA{R: 0xff, A: 0xff}, color.NRGBA{B: 0xff, A: 0xff}}
	long := make(color.Palette, 40)
	for i := range long {
		long[i] = color.NRGBA{R: uint8(i), A: 0xff}
	}
	require.NoError(t, f.ImportColorTables([]color.Palette{short, long}))

	require.Equal(t, 2, f.Texture().ColorTableCount())
	assert.Len(t, f.Texture().ColorTable(0), 16)
	assert.Len(t, f.Texture().ColorTable(1), 16)
	assert.Equal(t, color.NRGBA{}, f.Texture().ColorTable(0)[5])
	assert.Equal(t, color.NRGBA{R: 3, A: 0xff}, f.Texture().ColorTable(1)[3])
	assert.Len(t, f.AlphaBits()[1], 16)
}

func TestSentinelRoundTrip(t *testing.T) {
	data := container4()

	f, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)

	g, err := FromTexture(f.Export(), f.Metadata(), f.Palette())
	require.NoError(t, err)

	b, err := g.MarshalBinary()
	require.NoError(t, err)

	// Only the flag of 0x8000 is lost
	expected := append([]byte(nil), data...)
	binary.LittleEndian.PutUint16(expected[8+blockHeaderSize+3*2:], 0x0000)
	assert.Equal(t, expected, b)
}

func TestFromTextureDirect(t *testing.T) {
	m := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	m.SetNRGBA(0, 0, color.NRGBA{R: 0xff, A: 0x7f})
	m.SetNRGBA(1, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 0})
	m.SetNRGBA(0, 1, color.NRGBA{G: 0xff, A: 0xff})
	m.SetNRGBA(1, 1, color.NRGBA{G: 0xff, A: 0xff})

	pal := image.NewNRGBA(image.Rect(0, 0, 16, 1))
	pal.SetNRGBA(1, 0, color.NRGBA{R: 0xff, A: 0x7f})
	pal.SetNRGBA(2, 0, color.NRGBA{G: 0xff, A: 0xff})

	meta := metadata.New()
	meta.Set("depth", 4)
	meta.Set("imageX", 320)

	f, err := FromTexture(texture.New(m), meta, pal)
	require.NoError(t, err)

	assert.Equal(t, 4, f.Depth())
	assert.Equal(t, uint16(320), f.ImageX())
	assert.Equal(t, image.Pt(16, 1), f.PaletteSize())

	pm := f.Texture().Paletted()
	require.NotNil(t, pm)
	assert.Equal(t, []uint8{1, 0, 2, 2}, pm.Pix)
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0xff}, f.Texture().ColorTable(0)[1])
	assert.True(t, f.AlphaBits()[0][1])

	b, err := f.MarshalBinary()
	require.NoError(t, err)

	g := new(File)
	require.NoError(t, g.UnmarshalBinary(b))
	exported := g.Export().Image()
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0x7f}, exported.At(0, 0))
	assert.Equal(t, color.NRGBA{}, exported.At(1, 0))
	assert.Equal(t, color.NRGBA{G: 0xff, A: 0xff}, exported.At(1, 1))
}

func TestFromTextureErrors(t *testing.T) {
	m := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	m.SetNRGBA(0, 0, color.NRGBA{B: 0xff, A: 0xff})

	meta := metadata.New()
	meta.Set("depth", 8)

	_, err := FromTexture(texture.New(m), meta, nil)
	assert.True(t, errors.Is(err, texture.ErrConversion), "direct colour at 8 bits needs a palette")

	_, err = FromTexture(texture.New(m), meta, image.NewNRGBA(image.Rect(0, 0, 16, 16)))
	assert.True(t, errors.Is(err, texture.ErrConversion), "blue is not in the palette")

	meta.Set("depth", 16)
	_, err = FromTexture(texture.New(m), meta, image.NewNRGBA(image.Rect(0, 0, 16, 1)))
	assert.True(t, errors.Is(err, texture.ErrConversion), "no palette at 16 bits")

	bad := metadata.New()
	bad.Set("paletteX", 70000)
	_, err = FromTexture(texture.New(m), bad, nil)
	assert.True(t, errors.Is(err, texture.ErrConversion))
}

func TestFromTextureDropsPalette(t *testing.T) {
	f, err := Decode(bytes.NewReader(container8()))
	require.NoError(t, err)

	meta := metadata.New()
	meta.Set("depth", 16)

	g, err := FromTexture(f.Texture(), meta, nil)
	require.NoError(t, err)

	assert.Equal(t, 16, g.Depth())
	assert.False(t, g.Texture().IsPaletted())
	assert.Equal(t, f.Texture().Image().At(2, 0), g.Texture().Image().At(2, 0))

	_, err = g.MarshalBinary()
	assert.NoError(t, err)
}

func TestMetadata(t *testing.T) {
	f, err := Decode(bytes.NewReader(container8()))
	require.NoError(t, err)

	m := f.Metadata()
	assert.Equal(t, []string{"depth", "imageX", "imageY", "paletteX", "paletteY"}, m.Keys())

	text, err := m.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "depth=8\nimageX=640\nimageY=16\npaletteX=768\npaletteY=256\n", string(text))

	g := New()
	require.NoError(t, g.SetDepth(4))
	require.NoError(t, g.SetMetadata(m))
	assert.Equal(t, 8, g.Depth())
	assert.Equal(t, uint16(768), g.PaletteX())
	assert.Equal(t, uint16(256), g.PaletteY())
	assert.Equal(t, uint16(640), g.ImageX())
	assert.Equal(t, uint16(16), g.ImageY())
}

func TestSetDepth(t *testing.T) {
	tables := []struct {
		depth int
		want  int
	}{
		{1, 4},
		{4, 4},
		{8, 8},
		{16, 16},
		{24, 24},
		{32, 16},
	}

	for _, table := range tables {
		f := New()
		require.NoError(t, f.SetDepth(table.depth))
		assert.Equal(t, table.want, f.Depth(), table.depth)
	}
}

func TestSetDepthResizesTables(t *testing.T) {
	f, err := Decode(bytes.NewReader(container4()))
	require.NoError(t, err)

	require.NoError(t, f.SetDepth(8))
	assert.Equal(t, 256, f.ColorsPerPalette())
	assert.Equal(t, image.Pt(16, 32), f.PaletteSize())

	b, err := f.MarshalBinary()
	require.NoError(t, err)

	g, err := Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, 8, g.Depth())
	require.Equal(t, 2, g.Texture().ColorTableCount())
	assert.Len(t, g.Texture().ColorTable(0), 256)
	assert.Equal(t, f.Texture().ColorTable(1)[:16], g.Texture().ColorTable(1)[:16])
	assert.True(t, g.AlphaBits()[0][1])
	assert.False(t, g.AlphaBits()[0][16])
	assert.Equal(t, f.Texture().Image().At(3, 1), g.Texture().Image().At(3, 1))

	require.NoError(t, g.SetDepth(4))
	b, err = g.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, container4(), b)
}

func TestSetDepthRejectsIndices(t *testing.T) {
	f, err := Decode(bytes.NewReader(container8()))
	require.NoError(t, err)

	m := metadata.New()
	m.Set("depth", 4)
	m.Set("imageX", 1)

	err = f.SetMetadata(m)
	assert.True(t, errors.Is(err, texture.ErrConversion))
	assert.Equal(t, 8, f.Depth())
	assert.Equal(t, uint16(640), f.ImageX())

	b, err := f.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, container8(), b)
}

func TestSetDepthDirect(t *testing.T) {
	f, err := Decode(bytes.NewReader(container4()))
	require.NoError(t, err)

	require.NoError(t, f.SetDepth(16))
	assert.False(t, f.Texture().IsPaletted())
	assert.Equal(t, image.Point{}, f.PaletteSize())

	b, err := f.MarshalBinary()
	require.NoError(t, err)

	g, err := Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, 16, g.Depth())
	// Pixel 0 uses colour 1 of the first table, 0x801f
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0xff}, g.Texture().Image().At(0, 0))
	assert.True(t, g.AlphaBits()[0][0])
	assert.False(t, g.AlphaBits()[0][1])

	require.NoError(t, g.SetDepth(24))
	b, err = g.MarshalBinary()
	require.NoError(t, err)

	h, err := Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, 24, h.Depth())
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0xff}, h.Texture().Image().At(0, 0))
}

func TestImageDecode(t *testing.T) {
	m, format, err := image.Decode(bytes.NewReader(container4()))
	require.NoError(t, err)
	assert.Equal(t, "tim", format)
	assert.Equal(t, image.Rect(0, 0, 8, 2), m.Bounds())
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0x7f}, m.At(0, 0))

	config, format, err := image.DecodeConfig(bytes.NewReader(container16()))
	require.NoError(t, err)
	assert.Equal(t, "tim", format)
	assert.Equal(t, 3, config.Width)
	assert.Equal(t, 2, config.Height)
}
