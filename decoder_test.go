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
	"hash/crc32"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func encodeBytes(t *testing.T, payload []byte) []byte {
	t.Helper()
	enc, err := NewEncoder(bytes.NewReader(payload), flate.DefaultCompression)
	if err != nil {
		t.Fatalf("NewEncoder() error = %v", err)
	}
	out, err := io.ReadAll(enc)
	if err != nil {
		t.Fatalf("encode ReadAll() error = %v", err)
	}
	return out
}

// TestReader_EmptyMember decodes a precomputed member with an empty
// payload.
func TestReader_EmptyMember(t *testing.T) {
	t.Parallel()

	data := []byte{
		hdrGzipID1, hdrGzipID2, hdrDeflateCM, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00,
	}
	data = append(data, 0x03, 0x00, 0x00) // DEFLATE-of-empty: final fixed-Huffman block (0x03 0x00), then a zero byte.
	data = append(data, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00)

	dec := NewReader(bytes.NewReader(data))
	decoded, err := io.ReadAll(dec)
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("ReadAll() error diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte{}, decoded); diff != "" {
		t.Errorf("decoded payload diff (-want +got):\n%s", diff)
	}
}

// TestReader_InvalidCompressionMethod decodes a header whose CM byte is
// not DEFLATE.
func TestReader_InvalidCompressionMethod(t *testing.T) {
	t.Parallel()

	data := []byte{
		hdrGzipID1, hdrGzipID2, 0x09, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00,
	}

	dec := NewReader(bytes.NewReader(data))
	_, err := io.ReadAll(dec)
	if diff := cmp.Diff(ErrHeader, err, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("error diff (-want +got):\n%s", diff)
	}
}

// TestReader_BadMagic checks the other half of header validation.
func TestReader_BadMagic(t *testing.T) {
	t.Parallel()

	data := []byte{0x00, 0x00, hdrDeflateCM, 0x00, 0, 0, 0, 0, 0, 0}
	dec := NewReader(bytes.NewReader(data))
	_, err := io.ReadAll(dec)
	if diff := cmp.Diff(ErrHeader, err, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("error diff (-want +got):\n%s", diff)
	}
}

// TestReader_MutatedHeaderCRC decodes a member with FHCRC set and a
// corrupted stored header CRC16.
func TestReader_MutatedHeaderCRC(t *testing.T) {
	t.Parallel()

	builder := NewBuilder()
	builder.Name = "x"
	headerBytes, err := builder.Build(flate.DefaultCompression)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	data := make([]byte, len(headerBytes))
	copy(data, headerBytes)
	data[3] |= flgCRC

	hasher := crc32.NewIEEE()
	hasher.Write(data)
	//nolint:gosec // intentionally comparing against the low 16 bits of the CRC-32.
	wrongHCRC := uint16(hasher.Sum32()) ^ 0xffff

	var hcrcBuf [2]byte
	putUint16(hcrcBuf[:], wrongHCRC)
	data = append(data, hcrcBuf[:]...)
	data = append(data, 0x03, 0x00, 0x00) // DEFLATE-of-empty
	data = append(data, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00)

	dec := NewReader(bytes.NewReader(data))
	_, err = io.ReadAll(dec)
	if diff := cmp.Diff(ErrChecksum, err, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("error diff (-want +got):\n%s", diff)
	}
}

// TestMultiReader feeds two concatenated members to both the multi- and
// single-member decoders.
func TestMultiReader(t *testing.T) {
	t.Parallel()

	data := append(encodeBytes(t, []byte("foo")), encodeBytes(t, []byte("bar"))...)

	multi := NewMultiReader(bytes.NewReader(data))
	decoded, err := io.ReadAll(multi)
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("multi ReadAll() error diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte("foobar"), decoded); diff != "" {
		t.Errorf("multi decoded payload diff (-want +got):\n%s", diff)
	}

	single := NewReader(bytes.NewReader(data))
	decoded, err = io.ReadAll(single)
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("single ReadAll() error diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte("foo"), decoded); diff != "" {
		t.Errorf("single decoded payload diff (-want +got):\n%s", diff)
	}
}

// stepReader releases exactly one byte per call, alternating with
// ErrWouldBlock, simulating a non-blocking source.
type stepReader struct {
	data      []byte
	pos       int
	blockNext bool
}

func (r *stepReader) Read(p []byte) (int, error) {
	if r.blockNext {
		r.blockNext = false
		return 0, ErrWouldBlock
	}
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:r.pos+1])
	r.pos += n
	r.blockNext = true
	return n, nil
}

// drainNonBlocking reads from r until io.EOF, retrying on ErrWouldBlock,
// the way a non-blocking host's event loop would.
func drainNonBlocking(t *testing.T, r io.Reader) []byte {
	t.Helper()
	var out bytes.Buffer
	buf := make([]byte, 16)
	for {
		n, err := r.Read(buf)
		out.Write(buf[:n])
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out.Bytes()
			}
			if errors.Is(err, ErrWouldBlock) {
				continue
			}
			t.Fatalf("Read() error = %v", err)
		}
	}
}

// TestReader_WouldBlock decodes from a source that releases one byte
// per call with ErrWouldBlock in between.
func TestReader_WouldBlock(t *testing.T) {
	t.Parallel()

	data := encodeBytes(t, []byte("the quick brown fox"))
	dec := NewLazyReader(&stepReader{data: data})
	decoded := drainNonBlocking(t, dec)
	if diff := cmp.Diff([]byte("the quick brown fox"), decoded); diff != "" {
		t.Errorf("decoded payload diff (-want +got):\n%s", diff)
	}
}

func TestEncoder_WouldBlockSource(t *testing.T) {
	t.Parallel()

	payload := []byte("resumable")
	enc, err := NewEncoder(&stepReader{data: payload}, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("NewEncoder() error = %v", err)
	}
	out := drainNonBlocking(t, enc)

	dec := NewReader(bytes.NewReader(out))
	decoded, err := io.ReadAll(dec)
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("decode error diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(payload, decoded); diff != "" {
		t.Errorf("decoded payload diff (-want +got):\n%s", diff)
	}
}

func TestReader_StickyFailure(t *testing.T) {
	t.Parallel()

	data := []byte{0x00, 0x00, hdrDeflateCM, 0x00, 0, 0, 0, 0, 0, 0}
	dec := NewReader(bytes.NewReader(data))

	_, err := dec.Read(make([]byte, 16))
	if diff := cmp.Diff(ErrHeader, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("first Read() error diff (-want +got):\n%s", diff)
	}

	n, err := dec.Read(make([]byte, 16))
	if diff := cmp.Diff(0, n); diff != "" {
		t.Errorf("second Read() n diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(io.EOF, err, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("second Read() error diff (-want +got):\n%s", diff)
	}
}

func TestReader_TruncatedHeader(t *testing.T) {
	t.Parallel()

	data := []byte{hdrGzipID1, hdrGzipID2, hdrDeflateCM}
	dec := NewReader(bytes.NewReader(data))
	_, err := io.ReadAll(dec)
	if diff := cmp.Diff(io.ErrUnexpectedEOF, err, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("error diff (-want +got):\n%s", diff)
	}
}

func TestReader_TruncatedTrailer(t *testing.T) {
	t.Parallel()

	data := encodeBytes(t, []byte("hello"))
	dec := NewReader(bytes.NewReader(data[:len(data)-2]))
	_, err := io.ReadAll(dec)
	if diff := cmp.Diff(io.ErrUnexpectedEOF, err, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("error diff (-want +got):\n%s", diff)
	}
}

func TestReader_Header_NotReadyDuringParse(t *testing.T) {
	t.Parallel()

	data := encodeBytes(t, []byte("x"))
	dec := NewLazyReader(&stepReader{data: data})
	if h := dec.Header(); h != nil {
		t.Errorf("Header() before any Read = %+v, want nil", h)
	}
	_ = drainNonBlocking(t, dec)
	if h := dec.Header(); h == nil {
		t.Errorf("Header() after full decode = nil, want non-nil")
	}
}

// TestMultiReader_WouldBlock drives the multi-member decoder through a
// source that releases one byte per call, crossing a member boundary
// while the body-replay fallback is engaged.
func TestMultiReader_WouldBlock(t *testing.T) {
	t.Parallel()

	data := append(encodeBytes(t, []byte("foo")), encodeBytes(t, []byte("bar"))...)
	dec := NewLazyMultiReader(&stepReader{data: data})
	decoded := drainNonBlocking(t, dec)
	if diff := cmp.Diff([]byte("foobar"), decoded); diff != "" {
		t.Errorf("decoded payload diff (-want +got):\n%s", diff)
	}
}

// chunkReader yields the underlying data in a repeating cycle of chunk
// sizes, exercising decode over arbitrary read boundaries.
type chunkReader struct {
	data  []byte
	pos   int
	sizes []int
	calls int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	limit := r.sizes[r.calls%len(r.sizes)]
	r.calls++
	if limit > len(p) {
		limit = len(p)
	}
	if limit > len(r.data)-r.pos {
		limit = len(r.data) - r.pos
	}
	n := copy(p[:limit], r.data[r.pos:])
	r.pos += n
	return n, nil
}

// TestReader_SegmentedInput checks that decoding is independent of how
// the encoded stream is segmented into chunks.
func TestReader_SegmentedInput(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("segmentation should not matter "), 50)
	data := encodeBytes(t, payload)

	want, err := io.ReadAll(NewReader(bytes.NewReader(data)))
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("whole-buffer ReadAll() error diff (-want +got):\n%s", diff)
	}

	dec := NewReader(&chunkReader{data: data, sizes: []int{1, 7, 2, 5, 3, 1, 4}})
	got, err := io.ReadAll(dec)
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("chunked ReadAll() error diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded payload diff (-want +got):\n%s", diff)
	}
}

// TestReader_Truncation truncates a valid stream at every byte offset;
// every prefix must fail rather than decode cleanly.
func TestReader_Truncation(t *testing.T) {
	t.Parallel()

	data := encodeBytes(t, []byte("Hello World"))
	for cut := 0; cut < len(data); cut++ {
		dec := NewReader(bytes.NewReader(data[:cut]))
		if _, err := io.ReadAll(dec); err == nil {
			t.Errorf("ReadAll() with %d of %d bytes error = nil, want a decode failure", cut, len(data))
		}
	}
}

func TestReader_CorruptTrailer(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		// offset is counted back from the end of the stream: 8 lands in
		// the stored CRC-32, 4 in the stored ISIZE.
		offset int
	}{
		{name: "crc mismatch", offset: 8},
		{name: "isize mismatch", offset: 4},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			data := encodeBytes(t, []byte("Hello World"))
			data[len(data)-tc.offset] ^= 0xff

			dec := NewReader(bytes.NewReader(data))
			_, err := io.ReadAll(dec)
			if diff := cmp.Diff(ErrChecksum, err, cmpopts.EquateErrors()); diff != "" {
				t.Errorf("error diff (-want +got):\n%s", diff)
			}
		})
	}
}

// TestReader_EmptyDst checks that a zero-length destination returns
// immediately without touching the DEFLATE engine.
func TestReader_EmptyDst(t *testing.T) {
	t.Parallel()

	data := encodeBytes(t, []byte("payload"))
	dec := NewReader(bytes.NewReader(data))

	n, err := dec.Read(nil)
	if diff := cmp.Diff(0, n); diff != "" {
		t.Errorf("Read(nil) n diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("Read(nil) error diff (-want +got):\n%s", diff)
	}

	decoded, err := io.ReadAll(dec)
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("ReadAll() error diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte("payload"), decoded); diff != "" {
		t.Errorf("decoded payload diff (-want +got):\n%s", diff)
	}
}

// TestReader_Header_NilAfterFailure checks that a failure discovered
// after the header parsed cleanly still drops the header.
func TestReader_Header_NilAfterFailure(t *testing.T) {
	t.Parallel()

	data := encodeBytes(t, []byte("Hello World"))
	// Corrupt the stored trailer CRC; the header itself stays valid.
	data[len(data)-8] ^= 0xff

	dec := NewReader(bytes.NewReader(data))

	_, err := dec.Read(make([]byte, len(data)))
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("body Read() error diff (-want +got):\n%s", diff)
	}
	if h := dec.Header(); h == nil {
		t.Errorf("Header() during body = nil, want non-nil")
	}

	_, err = io.ReadAll(dec)
	if diff := cmp.Diff(ErrChecksum, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("ReadAll() error diff (-want +got):\n%s", diff)
	}
	if h := dec.Header(); h != nil {
		t.Errorf("Header() after checksum failure = %+v, want nil", h)
	}
}

func TestReader_CorruptBody(t *testing.T) {
	t.Parallel()

	data := encodeBytes(t, []byte("some reasonably long payload to compress"))
	// Flip every bit of one byte inside the DEFLATE body, past the 10-byte header.
	data[15] ^= 0xff

	dec := NewReader(bytes.NewReader(data))
	_, err := io.ReadAll(dec)
	if err == nil {
		t.Fatalf("ReadAll() error = nil, want a decode failure from the flipped body byte")
	}
}
