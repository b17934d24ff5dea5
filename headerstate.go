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
	"errors"
	"hash"
	"io"
)

// headerStateKind tags which of the six header sub-states a
// headerParserState is currently in. Go has no sum types, so each state's
// payload lives as dedicated fields on headerParserState instead of in a
// variant; only the fields belonging to the current kind (and the ones
// already-completed states wrote into h/*flag) are meaningful.
type headerStateKind int

const (
	stateFixedHeader headerStateKind = iota
	stateExtraLen
	stateExtra
	stateName
	stateComment
	stateHeaderCRC
)

// headerParserState is the resumable state of an in-progress gzip header
// parse. A zero-value headerParserState (via newHeaderParserState) starts
// at stateFixedHeader; parseHeader mutates it in place and it is safe to
// call parseHeader again with the same state, header, flag, and hasher
// after any error other than a fatal one to resume exactly where parsing
// left off.
type headerParserState struct {
	kind headerStateKind

	fixedBuf [10]byte
	fixedPos int

	extraLenBuf [2]byte
	extraLenPos int

	extraPos int

	nameBuf    []byte
	commentBuf []byte

	crcBuf [2]byte
	crcPos int
}

func newHeaderParserState() *headerParserState {
	return &headerParserState{kind: stateFixedHeader}
}

// readStep performs a single Read into buf[*pos:], advancing *pos by
// however many bytes arrived. It reports io.ErrUnexpectedEOF if the
// reader signals end-of-stream before buf is full, io.ErrNoProgress if
// the reader violates the io.Reader contract by returning (0, nil), and
// any other error (including ErrWouldBlock) verbatim.
func readStep(r io.Reader, buf []byte, pos *int) error {
	n, err := r.Read(buf[*pos:])
	*pos += n
	if n == 0 && err == nil {
		return io.ErrNoProgress
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			if *pos == len(buf) {
				return nil
			}
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

// wrapFramingErr classifies a framing I/O error: ErrWouldBlock passes
// through completely unwrapped (it is not a framing failure, just a
// "not yet" signal), everything else is wrapped with the package's base
// sentinel so callers can tell a framing error apart from, say, a bug in
// caller code.
func wrapFramingErr(err error) error {
	if errors.Is(err, ErrWouldBlock) {
		return err
	}
	return headerErr(err)
}

// readTerminated reads bytes from r into *acc one at a time until a NUL
// byte is read (inclusive) or an error occurs. On a successful
// termination it returns nil with *acc holding all bytes read, including
// the trailing NUL; callers strip it before converting to a string.
// Already-accumulated bytes in *acc survive a returned error so the next
// call resumes the scan rather than restarting it.
func readTerminated(r io.Reader, acc *[]byte) error {
	for {
		var b [1]byte
		n, err := r.Read(b[:])
		if n > 0 {
			*acc = append(*acc, b[0])
			if b[0] == 0 {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return wrapFramingErr(io.ErrUnexpectedEOF)
			}
			return wrapFramingErr(err)
		}
		if n == 0 {
			return wrapFramingErr(io.ErrNoProgress)
		}
	}
}

// latin1ToString converts raw header bytes to a string the way RFC 1952
// mandates: each byte is one Unicode code point U+0000..U+00FF, not
// UTF-8 decoded.
func latin1ToString(b []byte) string {
	rs := make([]rune, len(b))
	for i, v := range b {
		rs[i] = rune(v)
	}
	return string(rs)
}

// parseHeader advances state through as much of the gzip header as r
// will currently yield, filling in header and flag as fields complete
// and feeding every consumed header byte to hasher. It returns nil once
// the header (including the optional HCRC check) is fully parsed,
// leaving r positioned at the first DEFLATE byte. On any error, state is
// preserved exactly so the same call can be repeated to resume; fatal
// errors (ErrHeader, ErrChecksum, io.ErrUnexpectedEOF) are not safe to
// resume from since they've already been reported, but repeating the
// call is harmless other than returning the same error again.
func parseHeader(r io.Reader, state *headerParserState, header *Header, flag *byte, hasher hash.Hash32) error {
	for {
		switch state.kind {
		case stateFixedHeader:
			if state.fixedPos < len(state.fixedBuf) {
				if err := readStep(r, state.fixedBuf[:], &state.fixedPos); err != nil {
					return wrapFramingErr(err)
				}
				continue
			}

			hasher.Write(state.fixedBuf[:])

			if state.fixedBuf[0] != hdrGzipID1 || state.fixedBuf[1] != hdrGzipID2 {
				return ErrHeader
			}
			if state.fixedBuf[2] != hdrDeflateCM {
				return ErrHeader
			}

			*flag = state.fixedBuf[3]
			if mtime := getUint32(state.fixedBuf[4:8]); mtime != 0 {
				header.ModTime = unixTime(mtime)
			}
			// state.fixedBuf[8] (XFL) is ignored on read.
			header.OS = state.fixedBuf[9]

			state.kind = stateExtraLen
			continue

		case stateExtraLen:
			if *flag&flgEXTRA == 0 {
				state.kind = stateName
				continue
			}
			if state.extraLenPos < len(state.extraLenBuf) {
				if err := readStep(r, state.extraLenBuf[:], &state.extraLenPos); err != nil {
					return wrapFramingErr(err)
				}
				continue
			}

			hasher.Write(state.extraLenBuf[:])
			xlen := getUint16(state.extraLenBuf[:])
			header.Extra = make([]byte, xlen)
			state.extraPos = 0
			state.kind = stateExtra
			continue

		case stateExtra:
			if state.extraPos < len(header.Extra) {
				if err := readStep(r, header.Extra, &state.extraPos); err != nil {
					return wrapFramingErr(err)
				}
				continue
			}

			hasher.Write(header.Extra)
			state.kind = stateName
			continue

		case stateName:
			if *flag&flgNAME == 0 {
				state.kind = stateComment
				continue
			}
			if err := readTerminated(r, &state.nameBuf); err != nil {
				return err
			}

			hasher.Write(state.nameBuf)
			header.Name = latin1ToString(state.nameBuf[:len(state.nameBuf)-1])
			state.nameBuf = nil
			state.kind = stateComment
			continue

		case stateComment:
			if *flag&flgCOMMENT == 0 {
				state.kind = stateHeaderCRC
				continue
			}
			if err := readTerminated(r, &state.commentBuf); err != nil {
				return err
			}

			hasher.Write(state.commentBuf)
			header.Comment = latin1ToString(state.commentBuf[:len(state.commentBuf)-1])
			state.commentBuf = nil
			state.kind = stateHeaderCRC
			continue

		case stateHeaderCRC:
			if *flag&flgCRC == 0 {
				return nil
			}
			if state.crcPos < len(state.crcBuf) {
				if err := readStep(r, state.crcBuf[:], &state.crcPos); err != nil {
					return wrapFramingErr(err)
				}
				continue
			}

			stored := getUint16(state.crcBuf[:])
			//nolint:gosec // intentionally comparing against the low 16 bits of the CRC-32.
			if stored != uint16(hasher.Sum32()) {
				return ErrChecksum
			}
			return nil
		}
	}
}
