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
	"compress/flate"
	"fmt"
	"time"
)

// Builder composes the metadata for a gzip member into the exact header
// byte sequence described by RFC 1952 §2.3.1 (everything up to, but not
// including, the DEFLATE payload).
//
// Builder never emits FHCRC; the header-CRC is validated on decode only.
type Builder struct {
	// Name becomes the NAME field (FNAME set) if non-empty.
	Name string

	// Comment becomes the COMMENT field (FCOMMENT set) if non-empty.
	Comment string

	// Extra becomes the EXTRA field (FEXTRA set) if non-nil. A non-nil,
	// zero-length Extra still sets FEXTRA with XLEN 0.
	Extra []byte

	// ModTime becomes the MTIME field. The zero value (or any time at
	// or before the Unix epoch) is encoded as 0, "not set".
	ModTime time.Time

	// OS becomes the OS field. The zero value of byte is OSFAT, not
	// OSUnknown, so callers constructing a Builder directly (rather than
	// via NewBuilder) that care about this field should set it explicitly.
	OS byte
}

// NewBuilder returns a Builder with OS defaulted to OSUnknown rather
// than guessing the host OS.
func NewBuilder() *Builder {
	return &Builder{OS: OSUnknown}
}

// Build encodes the header bytes for the given compression level. Level
// only affects the advisory XFL byte (RFC 1952 §2.3.1): BestCompression
// encodes XFL 2, BestSpeed encodes XFL 4, anything else encodes XFL 0.
func (b *Builder) Build(level int) ([]byte, error) {
	flg := byte(0)
	if b.Extra != nil {
		flg |= flgEXTRA
	}
	if b.Name != "" {
		flg |= flgNAME
	}
	if b.Comment != "" {
		flg |= flgCOMMENT
	}

	header := make([]byte, 10)
	header[0] = hdrGzipID1
	header[1] = hdrGzipID2
	header[2] = hdrDeflateCM
	header[3] = flg
	putUint32(header[4:8], mtimeUint32(b.ModTime))
	switch level {
	case flate.BestCompression:
		header[8] = 2
	case flate.BestSpeed:
		header[8] = 4
	}
	header[9] = b.OS

	if b.Extra != nil {
		if len(b.Extra) > 0xffff {
			return nil, fmt.Errorf("%w: extra field too long: %d bytes", ErrHeader, len(b.Extra))
		}
		xlen := make([]byte, 2)
		putUint16(xlen, uint16(len(b.Extra)))
		header = append(header, xlen...)
		header = append(header, b.Extra...)
	}

	if b.Name != "" {
		name, err := latin1Bytes(b.Name)
		if err != nil {
			return nil, err
		}
		header = append(header, name...)
		header = append(header, 0)
	}

	if b.Comment != "" {
		comment, err := latin1Bytes(b.Comment)
		if err != nil {
			return nil, err
		}
		header = append(header, comment...)
		header = append(header, 0)
	}

	return header, nil
}

// latin1Bytes encodes s as ISO 8859-1, as RFC 1952 §2.3.1 requires for
// NAME and COMMENT, rejecting runes outside U+0001..U+00FF and any
// embedded NUL (which would truncate the field on decode).
func latin1Bytes(s string) ([]byte, error) {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		if r == 0 || r > 0xff {
			return nil, fmt.Errorf("%w: non-Latin-1 header string", ErrHeader)
		}
		b = append(b, byte(r))
	}
	return b, nil
}
