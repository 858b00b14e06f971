/*
Package raster adapts common image formats to textures so they can stand in
for a texture container on either side of a conversion.

Decoding goes through image.Decode and accepts any registered format.
Encoding is chosen by format name. A direct colour texture written as GIF
is quantized with a median cut quantizer first.
*/
package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/ericpauley/go-quantize/quantize"
	"github.com/myst6re/vincent-tim/metadata"
	"github.com/myst6re/vincent-tim/texture"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

const jpegQuality = 90

var formats = map[string]func(io.Writer, image.Image) error{
	"png":  png.Encode,
	"jpg":  encodeJPEG,
	"jpeg": encodeJPEG,
	"gif":  encodeGIF,
	"bmp":  bmp.Encode,
	"tif":  encodeTIFF,
	"tiff": encodeTIFF,
}

func encodeJPEG(w io.Writer, m image.Image) error {
	return jpeg.Encode(w, m, &jpeg.Options{Quality: jpegQuality})
}

func encodeGIF(w io.Writer, m image.Image) error {
	return gif.Encode(w, m, &gif.Options{
		NumColors: 256,
		Quantizer: &quantize.MedianCutQuantizer{},
	})
}

func encodeTIFF(w io.Writer, m image.Image) error {
	return tiff.Encode(w, m, &tiff.Options{Compression: tiff.Deflate})
}

// Supported reports whether textures can be written in format
func Supported(format string) bool {
	_, ok := formats[strings.ToLower(format)]
	return ok
}

// File is a texture stored in a common image format
type File struct {
	format  string
	texture *texture.Texture
}

// New returns an empty file that will be written as format
func New(format string) *File {
	return &File{
		format:  strings.ToLower(format),
		texture: new(texture.Texture),
	}
}

// FromTexture returns a file holding t, written as format
func FromTexture(format string, t *texture.Texture) *File {
	f := New(format)
	f.texture = t
	return f
}

// Format returns the lower case format name
func (f *File) Format() string {
	return f.format
}

// Texture returns the decoded texture
func (f *File) Texture() *texture.Texture {
	return f.texture
}

// Export returns the texture as is, common images need no remapping
func (f *File) Export() *texture.Texture {
	return f.texture
}

// Depth returns the bit depth of the texture
func (f *File) Depth() int {
	return f.texture.Depth()
}

// PaletteSize returns the size of the palette image of the texture
func (f *File) PaletteSize() image.Point {
	return f.texture.PaletteSize()
}

// Metadata returns an empty store, common images carry nothing extra
func (f *File) Metadata() *metadata.Metadata {
	return metadata.New()
}

// SetMetadata does nothing
func (f *File) SetMetadata(*metadata.Metadata) error {
	return nil
}

func (f *File) UnmarshalBinary(b []byte) error {
	m, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("raster: %v: %w", err, texture.ErrFormat)
	}
	f.texture = texture.New(m)
	return nil
}

func (f *File) MarshalBinary() ([]byte, error) {
	encode, ok := formats[f.format]
	if !ok {
		return nil, fmt.Errorf("raster: unsupported format %q: %w", f.format, texture.ErrConversion)
	}
	if !f.texture.IsValid() {
		return nil, fmt.Errorf("raster: empty image: %w", texture.ErrConversion)
	}

	b := new(bytes.Buffer)
	if err := encode(b, f.texture.Image()); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
