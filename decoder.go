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
	"bufio"
	"compress/flate"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
)

// memberStateKind tags the five states of the member state machine.
// The zero value is stateParsingHeader, matching the lifecycle rule that
// a decoder is created in that state.
type memberStateKind int

const (
	stateParsingHeader memberStateKind = iota
	stateBody
	stateParsingTrailer
	stateFailed
	stateEnded
)

// peekReader is the lookahead capability the multi-member decoder needs
// to distinguish a clean end of stream from the start of another member
// without consuming bytes it can't put back. *bufio.Reader satisfies it.
type peekReader interface {
	io.Reader
	Peek(n int) ([]byte, error)
}

// wrapPeek returns r unchanged if it already supports Peek, or wraps it
// in a *bufio.Reader otherwise, so a raw byte reader still gets the
// lookahead multi-member detection needs.
func wrapPeek(r io.Reader) peekReader {
	if pr, ok := r.(peekReader); ok {
		return pr
	}
	return bufio.NewReader(r)
}

// readCloseResetter is the interface compress/flate's decompressor
// actually implements, even though flate.NewReader's declared return
// type is only io.ReadCloser. Asserting it is what lets the multi-member
// decoder reuse one DEFLATE decoder across members instead of allocating
// a fresh one each time.
type readCloseResetter interface {
	io.ReadCloser
	flate.Resetter
}

// Reader is a streaming gzip decoder implementing io.Reader. It drives
// a per-member state machine: header parsing, DEFLATE body decoding,
// CRC-32 accumulation, and trailer validation, optionally followed by
// re-entering header parsing for a subsequent member.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	source io.Reader
	r      peekReader
	multi  bool

	kind memberStateKind

	hState      *headerParserState
	flag        byte
	hasher      hash.Hash32
	header      Header
	headerValid bool

	flate readCloseResetter
	crc   *crcReader

	// bodyBuf mirrors every compressed byte consumed for the current
	// member's DEFLATE body, teed off as it's read (see bodyTee). It is
	// the replay prefix if the persistent flate reader above ever gets
	// poisoned by an ErrWouldBlock partway through the body.
	bodyBuf []byte

	// bodyReplaying is set the first time stateBody sees ErrWouldBlock.
	// From then on, for the rest of this member's body, decoding goes
	// through readBodyReplay instead of d.flate/d.crc, since stdlib
	// compress/flate's decompressor caches its first non-EOF read error
	// forever and never resumes.
	bodyReplaying  bool
	bodyReplayDone bool
	bodyEmitted    int
	bodyPending    []byte

	trailerBuf [8]byte
	trailerPos int

	failedErr error
}

func newReader(source io.Reader, multi bool) *Reader {
	return &Reader{
		source: source,
		r:      wrapPeek(source),
		multi:  multi,
		hState: newHeaderParserState(),
		hasher: crc32.NewIEEE(),
	}
}

// NewReader constructs a Reader and immediately attempts to parse the
// gzip header. If that attempt only gets as far as ErrWouldBlock, no
// progress is lost: the unfinished parse state is kept and the first
// call to Read resumes it. Any other header error puts the Reader into
// its sticky Failed state, reported on the first call to Read.
//
// Prefer NewLazyReader when source may report ErrWouldBlock: NewReader
// still performs the first parse attempt inline, so a caller that wants
// to guarantee zero I/O happens before their first explicit Read should
// use NewLazyReader instead.
func NewReader(source io.Reader) *Reader {
	d := newReader(source, false)
	d.parseEager()
	return d
}

// NewLazyReader constructs a Reader without attempting to parse
// anything yet; the header parse begins on the first call to Read. Use
// it with non-blocking readers, where NewReader's eager attempt has no
// caller positioned to retry it.
func NewLazyReader(source io.Reader) *Reader {
	return newReader(source, false)
}

// MultiReader decodes every consecutive gzip member in source, the way
// RFC 1952 permits: the concatenation of valid gzip streams is itself a
// valid gzip stream. It is a thin wrapper around Reader with multi-member
// mode enabled, not a second state machine.
type MultiReader struct {
	*Reader
}

// NewMultiReader is NewReader with multi-member mode enabled.
func NewMultiReader(source io.Reader) *MultiReader {
	d := newReader(source, true)
	d.parseEager()
	return &MultiReader{d}
}

// NewLazyMultiReader is NewLazyReader with multi-member mode enabled.
func NewLazyMultiReader(source io.Reader) *MultiReader {
	return &MultiReader{newReader(source, true)}
}

// parseEager attempts the first header parse inline. A WouldBlock leaves
// the Reader in stateParsingHeader with its state preserved so the next
// Read resumes exactly there; any other error goes sticky.
func (d *Reader) parseEager() {
	err := parseHeader(d.r, d.hState, &d.header, &d.flag, d.hasher)
	if err != nil {
		if errors.Is(err, ErrWouldBlock) {
			return
		}
		d.fail(err)
		return
	}
	d.headerValid = true
	if ferr := d.initFlate(); ferr != nil {
		d.fail(ferr)
		return
	}
	d.kind = stateBody
}

func (d *Reader) fail(err error) {
	d.kind = stateFailed
	d.failedErr = err
	// A failed member has no usable header, even if one had already
	// parsed before the body or trailer went bad.
	d.headerValid = false
}

// initFlate creates the DEFLATE decoder on first use, or resets it (and
// the CRC counter) in place for a subsequent member.
func (d *Reader) initFlate() error {
	if d.flate == nil {
		fr := flate.NewReader(&bodyTee{r: d.r, buf: &d.bodyBuf})
		rc, ok := fr.(readCloseResetter)
		if !ok {
			return fmt.Errorf("%w: deflate reader does not support reset", errGzstream)
		}
		d.flate = rc
		d.crc = newCRCReader(d.flate)
		return nil
	}
	if err := d.flate.Reset(&bodyTee{r: d.r, buf: &d.bodyBuf}, nil); err != nil {
		return fmt.Errorf("%w: resetting deflate reader: %w", errGzstream, err)
	}
	d.crc.reset()
	return nil
}

// resetForNextMember clears per-member state and re-enters header
// parsing, used only by the multi-member path.
func (d *Reader) resetForNextMember() {
	d.header = Header{}
	d.headerValid = false
	d.flag = 0
	d.hasher = crc32.NewIEEE()
	d.hState = newHeaderParserState()
	d.kind = stateParsingHeader
	d.bodyBuf = nil
	d.bodyReplaying = false
	d.bodyReplayDone = false
	d.bodyEmitted = 0
	d.bodyPending = nil
}

// Header returns the parsed header of the current member, or nil if
// header parsing hasn't completed yet. Once the Reader has failed it
// returns nil again, even when the failure (a body checksum mismatch, a
// corrupt DEFLATE block) arrived long after the header parsed cleanly.
func (d *Reader) Header() *Header {
	if !d.headerValid {
		return nil
	}
	h := d.header
	return &h
}

// UnderlyingReader returns the reader passed to NewReader/NewLazyReader.
// Mutating it while the Reader is in use produces undefined decoded
// output but is otherwise safe.
func (d *Reader) UnderlyingReader() io.Reader {
	return d.source
}

// Close closes the underlying DEFLATE decoder, if one has been created.
// It does not close the underlying reader.
func (d *Reader) Close() error {
	if d.flate != nil {
		return d.flate.Close()
	}
	return nil
}

// Read implements io.Reader, advancing the member state machine until
// at least one decompressed byte is available, the stream ends, or an
// error occurs.
func (d *Reader) Read(dst []byte) (int, error) {
	for {
		switch d.kind {
		case stateParsingHeader:
			err := parseHeader(d.r, d.hState, &d.header, &d.flag, d.hasher)
			if err != nil {
				if errors.Is(err, ErrWouldBlock) {
					return 0, err
				}
				d.fail(err)
				continue
			}
			d.headerValid = true
			if ferr := d.initFlate(); ferr != nil {
				d.fail(ferr)
				continue
			}
			d.kind = stateBody
			continue

		case stateBody:
			if len(dst) == 0 {
				return 0, nil
			}
			if d.bodyReplaying {
				n, done, err := d.readBodyReplay(dst)
				if err != nil {
					if errors.Is(err, ErrWouldBlock) {
						return 0, err
					}
					d.fail(err)
					continue
				}
				if n > 0 {
					return n, nil
				}
				if done {
					d.kind = stateParsingTrailer
					d.trailerPos = 0
					continue
				}
				return 0, io.ErrNoProgress
			}

			n, err := d.crc.Read(dst)
			if n > 0 {
				return n, nil
			}
			if err == nil {
				return 0, io.ErrNoProgress
			}
			if err == io.EOF {
				d.kind = stateParsingTrailer
				d.trailerPos = 0
				continue
			}
			if errors.Is(err, ErrWouldBlock) {
				d.beginBodyReplay()
				continue
			}
			d.fail(err)
			continue

		case stateParsingTrailer:
			if d.trailerPos < len(d.trailerBuf) {
				if err := readStep(d.r, d.trailerBuf[:], &d.trailerPos); err != nil {
					if errors.Is(err, ErrWouldBlock) {
						return 0, err
					}
					d.fail(err)
					continue
				}
				continue
			}

			storedCRC, storedISize := finishTrailer(d.trailerBuf)
			if storedCRC != d.crc.crc() || storedISize != d.crc.count() {
				d.fail(ErrChecksum)
				continue
			}
			if !d.multi {
				d.kind = stateEnded
				continue
			}

			peeked, perr := d.r.Peek(1)
			if len(peeked) == 0 {
				if perr == nil {
					return 0, io.ErrNoProgress
				}
				if errors.Is(perr, io.EOF) {
					d.kind = stateEnded
					continue
				}
				if errors.Is(perr, ErrWouldBlock) {
					return 0, perr
				}
				d.fail(perr)
				continue
			}
			d.resetForNextMember()
			continue

		case stateFailed:
			err := d.failedErr
			d.failedErr = nil
			d.kind = stateEnded
			return 0, err

		case stateEnded:
			return 0, io.EOF
		}
	}
}
