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

package gzstream

import (
	"bytes"
	"compress/flate"
	"errors"
	"fmt"
	"io"
)

// bodyChunkSize is how much of the source Encoder pulls per internal
// fill.
const bodyChunkSize = 32 * 1024

// Encoder is a pull-style io.Reader that wraps a source reader and
// yields a complete gzip member: header bytes, then the DEFLATE-
// compressed payload, then the 8-byte trailer (CRC-32 and ISIZE of the
// uncompressed source), in that order and never interleaved.
//
// Encoder never emits FHCRC.
type Encoder struct {
	source io.Reader
	crc    *crcReader

	headerBytes []byte
	pos         int // header-prefix cursor while !eof, trailer-suffix cursor while eof
	eof         bool

	deflate  *flate.Writer
	buf      *bytes.Buffer
	bodyDone bool
	scratch  [bodyChunkSize]byte
}

// NewEncoder wraps source, compressing it at the given compress/flate
// level with a bare header (no name, comment, extra, or mtime).
func NewEncoder(source io.Reader, level int) (*Encoder, error) {
	return NewEncoderHeader(source, level, NewBuilder())
}

// NewEncoderHeader wraps source like NewEncoder but uses header to
// build the gzip header's optional fields.
func NewEncoderHeader(source io.Reader, level int, header *Builder) (*Encoder, error) {
	headerBytes, err := header.Build(level)
	if err != nil {
		return nil, err
	}

	crc := newCRCReader(source)
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("%w: initializing deflate writer: %w", errGzstream, err)
	}

	return &Encoder{
		source:      source,
		crc:         crc,
		headerBytes: headerBytes,
		deflate:     fw,
		buf:         &buf,
	}, nil
}

// Read implements io.Reader, yielding the next slice of the gzip stream.
func (e *Encoder) Read(dst []byte) (int, error) {
	if e.eof {
		return e.readFooter(dst)
	}

	var headerCopied int
	if e.pos < len(e.headerBytes) {
		headerCopied = copyBuf(dst, e.headerBytes, &e.pos)
		if headerCopied == len(dst) {
			return headerCopied, nil
		}
		dst = dst[headerCopied:]
	}

	if e.buf.Len() == 0 && !e.bodyDone {
		if err := e.fillBody(); err != nil {
			return headerCopied, err
		}
	}

	n, _ := e.buf.Read(dst)
	if n == 0 && e.bodyDone {
		e.eof = true
		e.pos = 0
		fn, err := e.readFooter(dst)
		return headerCopied + fn, err
	}
	return headerCopied + n, nil
}

// fillBody pulls one chunk from the CRC-counting source wrapper into the
// DEFLATE writer, flushing so the compressed bytes land in e.buf
// immediately. Once the source is exhausted it closes the DEFLATE
// writer (emitting the final block) and marks the body done.
func (e *Encoder) fillBody() error {
	n, err := e.crc.Read(e.scratch[:])
	if n > 0 {
		if _, werr := e.deflate.Write(e.scratch[:n]); werr != nil {
			return fmt.Errorf("%w: compressing: %w", errGzstream, werr)
		}
		if ferr := e.deflate.Flush(); ferr != nil {
			return fmt.Errorf("%w: compressing: %w", errGzstream, ferr)
		}
	}
	if err != nil {
		if err == io.EOF {
			if cerr := e.deflate.Close(); cerr != nil {
				return fmt.Errorf("%w: compressing: %w", errGzstream, cerr)
			}
			e.bodyDone = true
			return nil
		}
		if errors.Is(err, ErrWouldBlock) {
			return err
		}
		return fmt.Errorf("%w: reading source: %w", errGzstream, err)
	}
	return nil
}

// readFooter yields the 8-byte trailer across however many Read calls
// it takes to drain it, then 0 bytes forever after.
func (e *Encoder) readFooter(dst []byte) (int, error) {
	if e.pos == 8 {
		return 0, io.EOF
	}
	var trailer [8]byte
	putUint32(trailer[0:4], e.crc.crc())
	putUint32(trailer[4:8], e.crc.count())
	return copyBuf(dst, trailer[:], &e.pos), nil
}

// UnderlyingReader returns the source reader passed to NewEncoder(Header).
func (e *Encoder) UnderlyingReader() io.Reader {
	return e.source
}
