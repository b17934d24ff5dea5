// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
)

const (
	// ExitCodeSuccess is successful error code.
	ExitCodeSuccess int = iota

	// ExitCodeFlagParseError is the exit code for a flag parsing error.
	ExitCodeFlagParseError

	// ExitCodeUnknownError is the exit code for an unknown error.
	ExitCodeUnknownError
)

// ErrFlagParse is a flag parsing error.
var ErrFlagParse = errors.New("parsing flags")

// ErrCLI is the base error for all gzstream CLI errors.
var ErrCLI = errors.New("gzstream")

func init() {
	// Set the HelpFlag to a random name so that it isn't used. `cli` handles
	// the flag with the root command such that it takes a command name
	// argument but we don't use commands.
	//
	// This is done because `gzstream --help foo` will display a
	// "command foo not found" error instead of the help.
	//
	// This flag is hidden by the help output.
	// See: github.com/urfave/cli/issues/1809
	cli.HelpFlag = &cli.BoolFlag{
		// NOTE: Use a random name no one would guess.
		Name:               "d41d8cd98f00b204e980",
		DisableDefaultText: true,
	}
}

// check checks the error and panics if not nil.
func check(err error) {
	if err != nil {
		panic(err)
	}
}

// must checks the error and panics if not nil.
func must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

func newGzstreamApp() *cli.App {
	return &cli.App{
		Name:  filepath.Base(os.Args[0]),
		Usage: "Compress or decompress gzip streams.",
		Description: strings.Join([]string{
			"gzip(1)-like streaming compressor/decompressor written in Go.",
			"http://github.com/ianlewis/go-gzstream",
		}, "\n"),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:               "decompress",
				Usage:              "decompress a gzip stream",
				Aliases:            []string{"d"},
				DisableDefaultText: true,
			},
			&cli.BoolFlag{
				Name:               "stdout",
				Usage:              "write to stdout, keep the original file",
				Aliases:            []string{"c"},
				DisableDefaultText: true,
			},
			&cli.BoolFlag{
				Name:               "force",
				Usage:              "force overwrite of output file",
				Aliases:            []string{"f"},
				DisableDefaultText: true,
			},
			&cli.BoolFlag{
				Name:               "keep",
				Usage:              "do not delete the input file",
				Aliases:            []string{"k"},
				DisableDefaultText: true,
			},
			&cli.BoolFlag{
				Name:               "multi",
				Usage:              "decompress every concatenated member, not just the first",
				Aliases:            []string{"m"},
				DisableDefaultText: true,
			},
			&cli.IntFlag{
				Name:  "level",
				Usage: "compression level, -1 (default) through 9, or 0 for none",
				Value: -1,
			},
			&cli.BoolFlag{
				Name:               "no-name",
				Usage:              "don't store the original file name or modification time",
				DisableDefaultText: true,
			},

			// TODO(#1): -t --test   test compressed file integrity without writing output
			// TODO(#1): -r --recursive   recurse into directories

			// Special flags are shown at the end.
			&cli.BoolFlag{
				Name:               "help",
				Usage:              "print this help text and exit",
				Aliases:            []string{"h"},
				DisableDefaultText: true,
			},
			&cli.BoolFlag{
				Name:               "version",
				Usage:              "print version information and exit",
				Aliases:            []string{"v"},
				DisableDefaultText: true,
			},
			&cli.BoolFlag{
				Name:               "license",
				Usage:              "print license information and exit",
				DisableDefaultText: true,
			},
		},
		ArgsUsage:       "[PATH]...",
		Copyright:       "Google LLC",
		HideHelp:        true,
		HideHelpCommand: true,
		Action: func(c *cli.Context) error {
			if c.Bool("help") {
				check(cli.ShowAppHelp(c))
				return nil
			}

			if c.Bool("version") {
				return printVersion(c)
			}

			if c.Bool("license") {
				return printLicense(c)
			}

			paths := c.Args().Slice()
			if len(paths) == 0 {
				return fmt.Errorf("%w: no input files", ErrFlagParse)
			}

			for _, path := range paths {
				if c.Bool("decompress") {
					d := decompress{
						path:   path,
						force:  c.Bool("force"),
						keep:   c.Bool("keep") || c.Bool("stdout"),
						stdout: c.Bool("stdout"),
						multi:  c.Bool("multi"),
					}
					if err := d.Run(c.App.Writer); err != nil {
						return err
					}
					continue
				}

				comp := compress{
					path:   path,
					force:  c.Bool("force"),
					keep:   c.Bool("keep") || c.Bool("stdout"),
					stdout: c.Bool("stdout"),
					level:  c.Int("level"),
					noName: c.Bool("no-name"),
				}
				if err := comp.Run(c.App.Writer); err != nil {
					return err
				}
			}

			return nil
		},
		ExitErrHandler: func(c *cli.Context, err error) {
			if err == nil {
				return
			}

			_ = must(fmt.Fprintf(c.App.ErrWriter, "%s: %v\n", c.App.Name, err))
			if errors.Is(err, ErrFlagParse) {
				cli.OsExiter(ExitCodeFlagParseError)
				return
			}

			cli.OsExiter(ExitCodeUnknownError)
		},
	}
}
