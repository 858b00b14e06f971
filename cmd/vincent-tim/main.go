package main

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"strings"

	vincent "github.com/myst6re/vincent-tim"
	"github.com/urfave/cli/v2"
)

const defaultDB = "vincent-tim.db"

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func newLogger(c *cli.Context) *log.Logger {
	logger := log.New(ioutil.Discard, "", 0)
	if c.Bool("verbose") {
		logger.SetOutput(os.Stderr)
	}
	return logger
}

// expandPaths expands shell wildcards the shell left alone
func expandPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[") {
			paths = append(paths, arg)
			continue
		}
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}

var exportFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "output-format",
		Aliases: []string{"of"},
		EnvVars: []string{"VINCENT_TIM_OUTPUT_FORMAT"},
		Value:   vincent.DefaultOutputFormat,
		Usage:   "output format (tim, tex, png, jpg, gif, bmp, tif)",
	},
	&cli.IntFlag{
		Name:    "palette",
		Aliases: []string{"p"},
		EnvVars: []string{"VINCENT_TIM_PALETTE"},
		Value:   -1,
		Usage:   "palette to extract from a texture, all when unset",
	},
	&cli.StringFlag{
		Name:    "destination",
		Aliases: []string{"d"},
		EnvVars: []string{"VINCENT_TIM_DESTINATION"},
		Usage:   "destination directory",
	},
	&cli.BoolFlag{
		Name:    "export-palette",
		Aliases: []string{"ep"},
		Usage:   "save palette colors into an output format file",
	},
	&cli.BoolFlag{
		Name:    "export-meta",
		Aliases: []string{"em"},
		Usage:   "save metadata in a text file",
	},
	&cli.BoolFlag{
		Name:    "export-all",
		Aliases: []string{"ea"},
		Usage:   "alias for --export-palette --export-meta",
	},
}

func options(c *cli.Context) vincent.Options {
	return vincent.Options{
		InputFormat:   c.String("input-format"),
		OutputFormat:  c.String("output-format"),
		SelectPalette: c.Int("palette") >= 0,
		Palette:       c.Int("palette"),
		PalettePath:   c.String("input-path-palette"),
		MetaPath:      c.String("input-path-meta"),
		Destination:   c.String("destination"),
		ExportPalette: c.Bool("export-palette") || c.Bool("export-all"),
		ExportMeta:    c.Bool("export-meta") || c.Bool("export-all"),
	}
}

func main() {
	app := cli.NewApp()

	app.Name = "vincent-tim"
	app.Usage = "PlayStation TIM and TEX texture converter"
	app.Version = "1.0.0"

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			EnvVars: []string{"VINCENT_TIM_DB"},
			Value:   filepath.Join(cwd, defaultDB),
			Usage:   "path to catalog database",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:        "convert",
			Usage:       "Convert textures to images or images to textures",
			Description: "Either the input format or the output format must be tim or tex.",
			ArgsUsage:   "FILE...",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:    "input-format",
					Aliases: []string{"if"},
					EnvVars: []string{"VINCENT_TIM_INPUT_FORMAT"},
					Usage:   "input format, guessed from the file extension when unset",
				},
				&cli.StringFlag{
					Name:    "input-path-palette",
					EnvVars: []string{"VINCENT_TIM_INPUT_PATH_PALETTE"},
					Usage:   "palette image used when the output format is a texture",
				},
				&cli.StringFlag{
					Name:    "input-path-meta",
					EnvVars: []string{"VINCENT_TIM_INPUT_PATH_META"},
					Usage:   "metadata file used when the output format is a texture",
				},
			}, exportFlags...),
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				paths, err := expandPaths(c.Args().Slice())
				if err != nil {
					return cli.NewExitError(err, 1)
				}

				v := vincent.New(options(c), nil, newLogger(c))
				if err := v.ConvertAll(paths); err != nil {
					return cli.NewExitError(err, 1)
				}

				return nil
			},
		},
		{
			Name:        "analyse",
			Aliases:     []string{"analysis"},
			Usage:       "Search files or cue sheets for TIM textures",
			Description: "",
			ArgsUsage:   "FILE...",
			Flags: append([]cli.Flag{
				&cli.BoolFlag{
					Name:    "record",
					EnvVars: []string{"VINCENT_TIM_RECORD"},
					Usage:   "record every TIM found in the catalog",
				},
			}, exportFlags...),
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				paths, err := expandPaths(c.Args().Slice())
				if err != nil {
					return cli.NewExitError(err, 1)
				}

				var catalog *vincent.Catalog
				if c.Bool("record") {
					if catalog, err = vincent.NewCatalog(c.String("db")); err != nil {
						return cli.NewExitError(err, 1)
					}
					defer catalog.Close()
				}

				opts := options(c)
				opts.Analysis = true

				v := vincent.New(opts, catalog, newLogger(c))
				if err := v.ConvertAll(paths); err != nil {
					return cli.NewExitError(err, 1)
				}

				return nil
			},
		},
		{
			Name:        "collect",
			Usage:       "Count metadata field values of every texture in a directory",
			Description: "",
			ArgsUsage:   "DIRECTORY",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "format",
					EnvVars: []string{"VINCENT_TIM_FORMAT"},
					Value:   "tex",
					Usage:   "texture format to collect",
				},
				&cli.IntFlag{
					Name:    "depth",
					EnvVars: []string{"VINCENT_TIM_DEPTH"},
					Usage:   "only collect textures of this bit depth",
				},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				catalog, err := vincent.NewCatalog(c.String("db"))
				if err != nil {
					return cli.NewExitError(err, 1)
				}
				defer catalog.Close()

				v := vincent.New(vincent.Options{}, catalog, newLogger(c))
				if err := v.Collect(c.Args().First(), c.String("format"), c.Int("depth")); err != nil {
					return cli.NewExitError(err, 1)
				}

				return nil
			},
		},
		{
			Name:        "stats",
			Usage:       "Print collected field values or recorded TIM files",
			Description: "",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "format",
					EnvVars: []string{"VINCENT_TIM_FORMAT"},
					Value:   "tex",
					Usage:   "texture format to print",
				},
				&cli.BoolFlag{
					Name:  "containers",
					Usage: "print recorded TIM files instead",
				},
			},
			Action: func(c *cli.Context) error {
				catalog, err := vincent.NewCatalog(c.String("db"))
				if err != nil {
					return cli.NewExitError(err, 1)
				}
				defer catalog.Close()

				if c.Bool("containers") {
					containers, err := catalog.Containers()
					if err != nil {
						return cli.NewExitError(err, 1)
					}
					for _, ct := range containers {
						fmt.Printf("%s\t%d bpp\t%dx%d\t%d palettes\tx%d\n", ct.Hash, ct.Depth, ct.Width, ct.Height, ct.Palettes, ct.Occurrences)
					}
					return nil
				}

				fields, err := catalog.Fields(c.String("format"))
				if err != nil {
					return cli.NewExitError(err, 1)
				}

				var last string
				for _, fc := range fields {
					if fc.Name != last {
						fmt.Println(fc.Name)
						last = fc.Name
					}
					fmt.Printf("\t%d -> x%d\n", fc.Value, fc.Count)
				}

				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
