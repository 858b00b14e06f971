/*
Package vincent converts PlayStation TIM and TEX textures to and from common
image formats.

Exporting writes one image per palette along with an optional metadata file
holding what the image format cannot carry, and an optional palette image.
Importing rebuilds a texture container from an image, that metadata file and
optionally a palette image. Analysis mode extracts every TIM file embedded
in arbitrary data such as archives or disc images.
*/
package vincent

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/myst6re/vincent-tim/texture"
)

// DefaultOutputFormat is used when no output format is given
const DefaultOutputFormat = "png"

var (
	errNotTexture   = fmt.Errorf("vincent: input or output format must be one of %v: %w", textureFormats, texture.ErrConversion)
	errMetaRequired = errors.New("vincent: a metadata file is required to build a texture")
	errNoPalette    = errors.New("vincent: no palette to export")
	errNoCatalog    = errors.New("vincent: no catalog")
)

// Options control a conversion
type Options struct {
	// InputFormat overrides the format guessed from each file extension
	InputFormat string
	// OutputFormat defaults to DefaultOutputFormat
	OutputFormat string
	// SelectPalette exports only the palette numbered Palette, all
	// palettes are exported otherwise or when Palette is out of range
	SelectPalette bool
	Palette       int
	// PalettePath and MetaPath are read when building a texture
	PalettePath string
	MetaPath    string
	// Destination is the output directory, the current directory when
	// empty
	Destination   string
	ExportPalette bool
	ExportMeta    bool
	// Analysis searches the input for embedded TIM files
	Analysis bool
	// Output receives the path of every file written, os.Stdout when nil
	Output io.Writer
}

// Converter converts textures according to its options
type Converter struct {
	opts    Options
	catalog *Catalog
	logger  *log.Logger
}

// New returns a converter. The catalog is optional, when set analysis mode
// records every container it finds.
func New(opts Options, catalog *Catalog, logger *log.Logger) *Converter {
	if opts.OutputFormat == "" {
		opts.OutputFormat = DefaultOutputFormat
	}
	opts.OutputFormat = strings.ToLower(opts.OutputFormat)
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Converter{
		opts:    opts,
		catalog: catalog,
		logger:  logger,
	}
}

func (c *Converter) inputFormat(path string) string {
	if c.opts.InputFormat != "" {
		return strings.ToLower(c.opts.InputFormat)
	}
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// destination returns the output path for path without any suffix
func (c *Converter) destination(path string) string {
	return filepath.Join(c.opts.Destination, filepath.Base(path))
}

func (c *Converter) written(path string) {
	fmt.Fprintln(c.opts.Output, path)
}

func (c *Converter) writeFile(path string, b []byte) error {
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return err
	}
	c.written(path)
	return nil
}
