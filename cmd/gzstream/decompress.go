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
	"io"
	"os"
	"strings"

	"github.com/ianlewis/go-gzstream"
)

// errSuffix indicates the input file does not carry the expected suffix
// needed to derive an output filename.
var errSuffix = errors.New("filename doesn't end in .gz")

type decompress struct {
	path   string
	force  bool
	keep   bool
	stdout bool
	multi  bool
}

func (d *decompress) Run(stdout io.Writer) error {
	from, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("%w: opening file: %w", ErrCLI, err)
	}
	defer from.Close()

	var z io.Reader
	if d.multi {
		z = gzstream.NewMultiReader(from)
	} else {
		z = gzstream.NewReader(from)
	}

	if d.stdout {
		if _, err := io.Copy(stdout, z); err != nil {
			return fmt.Errorf("%w: decompressing file %q: %w", ErrCLI, d.path, err)
		}
		return nil
	}

	newPath, ok := strings.CutSuffix(d.path, ".gz")
	if !ok {
		return fmt.Errorf("%w: %q", errSuffix, d.path)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if !d.force {
		flags |= os.O_EXCL
	}
	dst, err := os.OpenFile(newPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening target file: %w", ErrCLI, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, z); err != nil {
		return fmt.Errorf("%w: decompressing file %q: %w", ErrCLI, d.path, err)
	}

	if !d.keep {
		if err := os.Remove(d.path); err != nil {
			return fmt.Errorf("%w: removing file: %w", ErrCLI, err)
		}
	}

	return nil
}
