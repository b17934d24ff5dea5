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

import "hash/crc32"

// crcReader wraps an io.Reader, accumulating a running CRC-32 (IEEE
// polynomial, RFC 1952 §2.3.1) and a byte count over everything read
// through it. The encoder wraps its source with one to compute the
// trailer, and the decoder wraps its DEFLATE output with one to
// validate it.
type crcReader struct {
	r      byteReader
	digest uint32
	amount uint32
}

// byteReader is the minimal interface crcReader needs from whatever it
// wraps: just Read.
type byteReader interface {
	Read(p []byte) (int, error)
}

func newCRCReader(r byteReader) *crcReader {
	return &crcReader{r: r}
}

func (c *crcReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.update(p[:n])
	}
	return n, err
}

// update feeds p into the running CRC-32 and byte count directly,
// without reading it from anywhere. Used by the body-replay fallback in
// bodyreplay.go, which decodes bytes through a throwaway flate.Reader
// rather than through this crcReader's own Read.
func (c *crcReader) update(p []byte) {
	if len(p) == 0 {
		return
	}
	c.digest = crc32.Update(c.digest, crc32.IEEETable, p)
	//nolint:gosec // wraps intentionally; ISIZE is defined modulo 2^32.
	c.amount += uint32(len(p))
}

// crc returns the running CRC-32 of everything read so far.
func (c *crcReader) crc() uint32 {
	return c.digest
}

// count returns the number of bytes read so far, modulo 2^32.
func (c *crcReader) count() uint32 {
	return c.amount
}

// reset clears the running CRC-32 and byte count, without touching the
// wrapped reader. Used by the multi-member decoder when it crosses into
// a new member.
func (c *crcReader) reset() {
	c.digest = 0
	c.amount = 0
}
