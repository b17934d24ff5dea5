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

import "encoding/binary"

// copyBuf copies min(len(dst), len(src)-*pos) bytes from src[*pos:] into
// dst, advances *pos by the number of bytes copied, and returns that
// count. It is used to stream a fixed-size framing buffer (a header or
// trailer) into caller-sized slices across however many Read calls it
// takes to drain it.
func copyBuf(dst, src []byte, pos *int) int {
	n := copy(dst, src[*pos:])
	*pos += n
	return n
}

// putUint16 writes v to b[0:2] in little-endian order.
func putUint16(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b, v)
}

// putUint32 writes v to b[0:4] in little-endian order.
func putUint32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

// getUint16 reads a little-endian uint16 from b[0:2].
func getUint16(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b)
}

// getUint32 reads a little-endian uint32 from b[0:4].
func getUint32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// finishTrailer decodes the 8-byte gzip trailer: a little-endian CRC-32
// of the uncompressed data followed by a little-endian ISIZE (the
// uncompressed length modulo 2^32).
func finishTrailer(buf [8]byte) (crc32, isize uint32) {
	return getUint32(buf[0:4]), getUint32(buf[4:8])
}
