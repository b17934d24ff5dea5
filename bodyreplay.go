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
	"errors"
	"io"
)

// bodyTee sits between a member's DEFLATE body and the persistent flate
// reader, recording every byte actually consumed into *buf. It forwards
// Read and ReadByte straight through to r, so it adds no buffering of
// its own: any lookahead r itself performs (e.g. a *bufio.Reader filling
// its internal buffer) stays inside r, exactly as if bodyTee weren't
// there, and the mirrored copy in *buf is what lets readBodyReplay
// rebuild the same input from scratch if d.flate ever gets poisoned by
// an ErrWouldBlock mid-body.
//
// It implements compress/flate's flate.Reader interface (Read plus
// ReadByte) on purpose: if it only implemented io.Reader, flate.NewReader
// would wrap it in a private bufio.Reader of its own, which can read
// ahead past the end of the DEFLATE stream into trailer bytes that
// bodyTee would never see, let alone mirror.
type bodyTee struct {
	r   peekReader
	buf *[]byte
}

func (t *bodyTee) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		*t.buf = append(*t.buf, p[:n]...)
	}
	return n, err
}

func (t *bodyTee) ReadByte() (byte, error) {
	var b [1]byte
	n, err := t.r.Read(b[:])
	if n > 0 {
		*t.buf = append(*t.buf, b[0])
		return b[0], nil
	}
	return 0, err
}

// replaySource feeds a fresh, throwaway flate.Reader the bytes already
// captured in prefix, then continues straight from r, mirroring anything
// newly consumed into *buf (the same slice prefix came from) for the
// next replay attempt. Like bodyTee, it implements ReadByte so flate
// never introduces a second buffering layer that could swallow bytes
// past the body's end.
type replaySource struct {
	prefix []byte
	pos    int
	r      peekReader
	buf    *[]byte
}

func (s *replaySource) Read(p []byte) (int, error) {
	if s.pos < len(s.prefix) {
		n := copy(p, s.prefix[s.pos:])
		s.pos += n
		return n, nil
	}
	n, err := s.r.Read(p)
	if n > 0 {
		*s.buf = append(*s.buf, p[:n]...)
	}
	return n, err
}

func (s *replaySource) ReadByte() (byte, error) {
	if s.pos < len(s.prefix) {
		b := s.prefix[s.pos]
		s.pos++
		return b, nil
	}
	var b [1]byte
	n, err := s.r.Read(b[:])
	if n > 0 {
		*s.buf = append(*s.buf, b[0])
		return b[0], nil
	}
	return 0, err
}

// beginBodyReplay switches the current member's body decoding from the
// (now permanently poisoned) persistent flate reader to the replay path.
// bodyEmitted is seeded from the CRC reader's count so the next replay
// attempt only re-delivers and re-hashes the bytes the fast path hasn't
// already handed the caller.
func (d *Reader) beginBodyReplay() {
	d.bodyReplaying = true
	//nolint:gosec // count() is a byte count well within int range in practice.
	d.bodyEmitted = int(d.crc.count())
}

// readBodyReplay decodes the current member's body by re-running a fresh
// flate.Reader over everything consumed so far (d.bodyBuf) plus whatever
// new bytes r yields, every time it's called. This is the fallback for
// compress/flate's lack of resumability: a persistent flate.Reader caches
// its first non-EOF read error, including ErrWouldBlock, and never
// retries, so the only way to "retry" past a WouldBlock is to decode the
// member from the start again once more input is available. It reports
// only the bytes newly decoded since the last attempt, so the caller
// never sees the same output twice.
func (d *Reader) readBodyReplay(dst []byte) (n int, done bool, err error) {
	if len(d.bodyPending) > 0 {
		n := copy(dst, d.bodyPending)
		d.bodyPending = d.bodyPending[n:]
		return n, d.bodyReplayDone && len(d.bodyPending) == 0, nil
	}
	if d.bodyReplayDone {
		return 0, true, nil
	}

	src := &replaySource{prefix: d.bodyBuf, r: d.r, buf: &d.bodyBuf}
	fr := flate.NewReader(src)
	out, rerr := io.ReadAll(fr)
	_ = fr.Close()

	var newBytes []byte
	if len(out) > d.bodyEmitted {
		newBytes = out[d.bodyEmitted:]
		d.crc.update(newBytes)
		d.bodyEmitted += len(newBytes)
	}

	switch {
	case rerr == nil:
		d.bodyReplayDone = true
	case errors.Is(rerr, ErrWouldBlock):
		if len(newBytes) == 0 {
			return 0, false, ErrWouldBlock
		}
	default:
		return 0, false, rerr
	}

	if len(newBytes) == 0 {
		return 0, d.bodyReplayDone, nil
	}
	n = copy(dst, newBytes)
	d.bodyPending = append([]byte(nil), newBytes[n:]...)
	return n, d.bodyReplayDone && len(d.bodyPending) == 0, nil
}
