package vincent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const collectWorkers = 10

func (c *Converter) findFiles(ctx context.Context, base, format string) (<-chan string, <-chan error, error) {
	out := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		errc <- filepath.Walk(base, func(file string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			// Ignore any hidden files or directories
			if info.Name()[0] == '.' && file != base {
				if info.Mode().IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if !info.Mode().IsRegular() {
				return nil
			}

			if !strings.EqualFold(filepath.Ext(file), "."+format) {
				return nil
			}

			select {
			case out <- file:
			case <-ctx.Done():
				return errors.New("walk cancelled")
			}

			return nil
		})
	}()
	return out, errc, nil
}

func (c *Converter) fileWorker(ctx context.Context, in <-chan string, format string, depth int) (<-chan error, error) {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for file := range in {
			b, err := os.ReadFile(file)
			if err != nil {
				errc <- err
				return
			}

			f := Factory(format)
			if err := f.UnmarshalBinary(b); err != nil {
				c.logger.Printf("%s: %v\n", file, err)
				continue
			}

			if depth > 0 && f.Depth() != depth {
				continue
			}

			if err := c.catalog.AddFields(format, f.Metadata()); err != nil {
				errc <- err
				return
			}
		}
	}()
	return errc, nil
}

func waitForPipeline(errs ...<-chan error) error {
	errc := mergeErrors(errs...)
	for err := range errc {
		if err != nil {
			return err
		}
	}
	return nil
}

func mergeErrors(cs ...<-chan error) <-chan error {
	var wg sync.WaitGroup
	out := make(chan error, len(cs))
	wg.Add(len(cs))
	for _, c := range cs {
		go func(c <-chan error) {
			for n := range c {
				out <- n
			}
			wg.Done()
		}(c)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Collect decodes every texture of the given format under path and counts
// the values of their metadata fields in the catalog. Only textures of the
// given depth are counted when depth is positive. Files that fail to
// decode are logged and skipped.
func (c *Converter) Collect(path, format string, depth int) error {
	if c.catalog == nil {
		return errNoCatalog
	}

	dir, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	var errcList []<-chan error

	files, errc, err := c.findFiles(ctx, dir, format)
	if err != nil {
		return err
	}
	errcList = append(errcList, errc)

	for i := 0; i < collectWorkers; i++ {
		errc, err := c.fileWorker(ctx, files, strings.ToLower(format), depth)
		if err != nil {
			return err
		}
		errcList = append(errcList, errc)
	}

	return waitForPipeline(errcList...)
}
