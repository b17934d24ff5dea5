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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ianlewis/go-gzstream"
)

type compress struct {
	path   string
	force  bool
	keep   bool
	stdout bool
	level  int
	noName bool
}

func (c *compress) Run(stdout io.Writer) error {
	from, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("%w: opening file: %w", ErrCLI, err)
	}
	defer from.Close()

	builder := gzstream.NewBuilder()
	if !c.noName {
		fInfo, err := from.Stat()
		if err != nil {
			return fmt.Errorf("%w: stat %q: %w", ErrCLI, from.Name(), err)
		}
		builder.ModTime = fInfo.ModTime()
		builder.Name = filepath.Base(from.Name())
	} else {
		builder.ModTime = time.Unix(0, 0)
	}

	z, err := gzstream.NewEncoderHeader(from, c.level, builder)
	if err != nil {
		return fmt.Errorf("%w: creating encoder: %w", ErrCLI, err)
	}

	if c.stdout {
		if _, err := io.Copy(stdout, z); err != nil {
			return fmt.Errorf("%w: compressing file %q: %w", ErrCLI, c.path, err)
		}
		return nil
	}

	newPath := c.path + ".gz"
	flags := os.O_CREATE | os.O_WRONLY
	if !c.force {
		flags |= os.O_EXCL
	}
	dst, err := os.OpenFile(newPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening target file: %w", ErrCLI, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, z); err != nil {
		return fmt.Errorf("%w: compressing file %q: %w", ErrCLI, c.path, err)
	}

	if !c.keep {
		if err := os.Remove(c.path); err != nil {
			return fmt.Errorf("%w: removing file: %w", ErrCLI, err)
		}
	}

	return nil
}
