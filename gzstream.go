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

// Package gzstream implements an incremental, resumable gzip codec over
// RFC 1951 DEFLATE, compliant with RFC 1952.
//
// Unlike compress/gzip, the decoder is built to be driven by readers that
// may return only a handful of bytes per call, including readers that
// signal "not ready yet" with ErrWouldBlock instead of blocking. Every
// operation consumes as much input as is available and makes as much
// progress as it can before returning; no operation loops internally
// waiting for more data.
//
// See: https://datatracker.ietf.org/doc/html/rfc1952
// See: https://datatracker.ietf.org/doc/html/rfc1951
//
// Unless otherwise informed clients should not assume implementations in
// this package are safe for parallel execution on the same value.
package gzstream
