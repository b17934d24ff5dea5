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
	"fmt"
)

var (
	// errGzstream is the base error for all gzstream errors.
	errGzstream = errors.New("gzstream")

	// ErrHeader indicates bad magic bytes or an unsupported compression
	// method in a gzip header.
	ErrHeader = fmt.Errorf("%w: invalid gzip header", errGzstream)

	// ErrChecksum indicates a header-CRC, body-CRC, or ISIZE mismatch.
	ErrChecksum = fmt.Errorf("%w: corrupt gzip stream does not have a matching checksum", errGzstream)

	// ErrWouldBlock is returned by a non-blocking source reader to signal
	// that no bytes are available right now and the caller should retry
	// later. It is never sticky: unlike every other error, a decoder or
	// header parser that observes ErrWouldBlock preserves its state
	// exactly and reports the same error again verbatim on the next call
	// if the source still has nothing to offer.
	ErrWouldBlock = errors.New("gzstream: would block")
)

// headerErr wraps a framing I/O error with errGzstream while leaving err
// itself unwrapped underneath, so callers can still classify it with
// errors.Is(err, io.ErrUnexpectedEOF) or errors.Is(err, ErrWouldBlock).
func headerErr(err error) error {
	return fmt.Errorf("%w: %w", errGzstream, err)
}
