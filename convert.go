package vincent

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/myst6re/vincent-tim/metadata"
	"github.com/myst6re/vincent-tim/raster"
	"github.com/myst6re/vincent-tim/texture"
	"github.com/myst6re/vincent-tim/tim"
)

// ConvertAll converts every path. A failure is logged and the remaining
// paths are still converted.
func (c *Converter) ConvertAll(paths []string) error {
	var failed int
	for _, path := range paths {
		if err := c.Convert(path); err != nil {
			c.logger.Println(err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("vincent: %d of %d files failed", failed, len(paths))
	}
	return nil
}

// Convert converts a single file. A texture container is exported to the
// output format, anything is imported when the output format is a texture
// container format.
func (c *Converter) Convert(path string) error {
	if c.opts.Analysis {
		return c.Analyse(path)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	format := c.inputFormat(path)
	f := Factory(format)
	if err := f.UnmarshalBinary(b); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	switch {
	case IsTextureFormat(c.opts.OutputFormat):
		err = c.toTexture(f, path)
	case IsTextureFormat(format):
		err = c.fromTexture(f, path, -1)
	default:
		err = errNotTexture
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// outputFilename appends the container number and palette number, when
// not negative, and the format extension to name.
func outputFilename(name, format string, num, palette int) string {
	if num >= 0 {
		name += fmt.Sprintf(".%d", num)
	}
	if palette >= 0 {
		name += fmt.Sprintf(".%d", palette)
	}
	return name + "." + format
}

func (c *Converter) saveTexture(t *texture.Texture, path string) error {
	b, err := raster.FromTexture(c.opts.OutputFormat, t).MarshalBinary()
	if err != nil {
		return err
	}
	return c.writeFile(path, b)
}

// fromTexture exports f as one image per palette, or the selected one,
// followed by its metadata and palette image when asked. num numbers the
// outputs of analysis mode.
func (c *Converter) fromTexture(f File, path string, num int) error {
	dest := c.destination(path)
	format := c.opts.OutputFormat

	t := f.Export()
	count := t.ColorTableCount()

	switch p := c.opts.Palette; {
	case c.opts.SelectPalette && p >= 0 && p < count:
		t.SetCurrentColorTable(p)
		if err := c.saveTexture(t, outputFilename(dest, format, num, -1)); err != nil {
			return err
		}
	case count == 0:
		if err := c.saveTexture(t, outputFilename(dest, format, num, -1)); err != nil {
			return err
		}
	default:
		for id := 0; id < count; id++ {
			t.SetCurrentColorTable(id)
			if err := c.saveTexture(t, outputFilename(dest, format, num, id)); err != nil {
				return err
			}
		}
	}

	var suffix string
	if num >= 0 {
		suffix = fmt.Sprintf(".%d", num)
	}

	if c.opts.ExportMeta {
		if meta := f.Metadata(); meta.Len() > 0 {
			p := dest + suffix + metadata.Extension
			if err := meta.Save(p); err != nil {
				return err
			}
			c.written(p)
		}
	}

	if c.opts.ExportPalette && f.Depth() < 16 {
		pal := palette(f)
		if pal == nil {
			return errNoPalette
		}
		if err := c.saveTexture(texture.New(pal), dest+suffix+".palette."+format); err != nil {
			return err
		}
	}

	return nil
}

// readImage decodes the common image at path
func readImage(path string) (image.Image, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f := raster.New(strings.TrimPrefix(filepath.Ext(path), "."))
	if err := f.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f.Texture().Image(), nil
}

// toTexture builds a texture container from f, the metadata file and the
// optional palette image.
func (c *Converter) toTexture(f File, path string) error {
	if c.opts.MetaPath == "" {
		return errMetaRequired
	}

	meta, err := metadata.Open(c.opts.MetaPath)
	if err != nil {
		return err
	}

	var pal image.Image
	if c.opts.PalettePath != "" {
		if pal, err = readImage(c.opts.PalettePath); err != nil {
			return err
		}
	}

	out, err := FromTexture(c.opts.OutputFormat, f.Export(), meta, pal)
	if err != nil {
		return err
	}

	b, err := out.MarshalBinary()
	if err != nil {
		return err
	}

	return c.writeFile(c.destination(path)+"."+c.opts.OutputFormat, b)
}

func openSource(path string) (io.ReadSeekCloser, error) {
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		d, err := OpenDisc(path)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return os.Open(path)
}

// readContainer reads the bytes at p, a container cut short by the end of
// the stream is returned as is
func readContainer(r io.ReadSeeker, p tim.Position) ([]byte, error) {
	if _, err := r.Seek(p.Offset, io.SeekStart); err != nil {
		return nil, err
	}
	b := make([]byte, p.Size)
	n, err := io.ReadFull(r, b)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return b[:n], nil
}

// Analyse searches the file at path, or the first data track of a cue
// sheet, for TIM files and exports each of them numbered in the order
// found. With a TIM output format the files are extracted as is.
func (c *Converter) Analyse(path string) error {
	r, err := openSource(path)
	if err != nil {
		return err
	}
	defer r.Close()

	positions, err := tim.FindContainers(r, 0)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	c.logger.Printf("%s: %d candidates\n", path, len(positions))

	var num int
	for _, p := range positions {
		data, err := readContainer(r, p)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		f := tim.New()
		if err := f.UnmarshalBinary(data); err != nil {
			c.logger.Printf("%s: offset %d: %v\n", path, p.Offset, err)
			continue
		}

		if c.catalog != nil {
			if err := c.catalog.AddContainer(path, p, data, f); err != nil {
				return err
			}
		}

		if c.opts.OutputFormat == "tim" {
			err = c.writeFile(outputFilename(c.destination(path), "tim", num, -1), data)
		} else {
			err = c.fromTexture(f, path, num)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		num++
	}

	return nil
}
