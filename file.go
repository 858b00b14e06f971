package vincent

import (
	"encoding"
	"image"
	"strings"

	"github.com/myst6re/vincent-tim/metadata"
	"github.com/myst6re/vincent-tim/raster"
	"github.com/myst6re/vincent-tim/tex"
	"github.com/myst6re/vincent-tim/texture"
	"github.com/myst6re/vincent-tim/tim"
)

// File is a texture in some on-disk format
type File interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler

	// Texture returns the texture as decoded
	Texture() *texture.Texture
	// Export returns the texture as presented to generic image consumers
	Export() *texture.Texture
	Depth() int
	PaletteSize() image.Point
	Metadata() *metadata.Metadata
	SetMetadata(*metadata.Metadata) error
}

var (
	_ File = (*tim.File)(nil)
	_ File = (*tex.File)(nil)
	_ File = (*raster.File)(nil)
)

var textureFormats = []string{"tim", "tex"}

// Factory returns an empty file for format. Anything that is not a texture
// container format is handled as a common image format.
func Factory(format string) File {
	switch strings.ToLower(format) {
	case "tim":
		return tim.New()
	case "tex":
		return tex.New()
	default:
		return raster.New(format)
	}
}

// SupportedTextureFormats returns the names of the texture container
// formats
func SupportedTextureFormats() []string {
	return append([]string(nil), textureFormats...)
}

// IsTextureFormat reports whether format names a texture container format
func IsTextureFormat(format string) bool {
	for _, f := range textureFormats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

// FromTexture builds a texture container of the given format from t in
// exported form. meta overrides the derived header and palette, when not
// nil, replaces the colour tables.
func FromTexture(format string, t *texture.Texture, meta *metadata.Metadata, palette image.Image) (File, error) {
	switch strings.ToLower(format) {
	case "tim":
		return tim.FromTexture(t, meta, palette)
	case "tex":
		f, err := tex.FromTexture(t)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			if err := f.SetMetadata(meta); err != nil {
				return nil, err
			}
		}
		if palette != nil {
			if err := f.SetPalette(palette); err != nil {
				return nil, err
			}
		}
		return f, nil
	default:
		return nil, errNotTexture
	}
}

type paletter interface {
	Palette() image.Image
}

// palette returns the palette image of f, or nil for direct colour
func palette(f File) image.Image {
	if p, ok := f.(paletter); ok {
		return p.Palette()
	}
	return f.Export().Palette()
}
