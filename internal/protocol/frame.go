// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package protocol implements the incremental, frame-oriented wire
// codec of §4.1: a line-delimited, CRLF-terminated protocol covering
// simple strings, errors, integers, doubles, booleans, null, bulk
// byte strings, and homogeneous/heterogeneous aggregates.
//
// No third-party parser in the example corpus speaks this exact,
// byte-for-byte specified format (the closest analog,
// influxdata/line-protocol, parses an unrelated metrics line format),
// so Decode/Encode are hand-rolled recursive-descent, the way
// cc-backend's own line-protocol handling in
// internal/memorystore/lineprotocol.go threads a byte cursor through
// nested parsing without copying the input buffer.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
)

// Kind identifies the type byte leading a Frame.
type Kind byte

const (
	KindSimpleString Kind = '+'
	KindError        Kind = '-'
	KindInteger      Kind = ':'
	KindDouble       Kind = ','
	KindBoolean      Kind = '#'
	KindNull         Kind = '_'
	KindBulkString   Kind = '$'
	KindArray        Kind = '*'
	KindSet          Kind = '~'
	KindMap          Kind = '%'
	KindPush         Kind = '>'
)

// Frame is one self-delimiting protocol unit. Exactly one of the
// typed fields is meaningful, selected by Kind; IsNull additionally
// marks a null bulk string, null array or null set.
type Frame struct {
	Kind Kind

	Str   string  // SimpleString, Error
	Int   int64   // Integer
	Dbl   float64 // Double
	Bool  bool    // Boolean
	Bulk  []byte  // BulkString payload (nil when IsNull)
	Elems []Frame // Array, Set, Push, and Map (flattened key/value pairs)

	IsNull bool // BulkString, Array or Set: true for the `-1` null form
}

// ErrProtocol marks a malformed frame: the caller must close the
// connection rather than retry (§4.1, §4.6).
var ErrProtocol = errors.New("protocol error")

func protoErrf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

// errNeedMore signals that buf does not yet contain a complete frame;
// the caller must wait for more bytes and retry the same call with the
// same buf plus whatever arrived.
var errNeedMore = errors.New("need more bytes")

// NeedMore reports whether err indicates an incomplete frame (as
// opposed to malformed input).
func NeedMore(err error) bool { return errors.Is(err, errNeedMore) }

// Simple string / error / integer / double / boolean / null constructors.

func SimpleString(s string) Frame { return Frame{Kind: KindSimpleString, Str: s} }
func Error(s string) Frame        { return Frame{Kind: KindError, Str: s} }
func Integer(i int64) Frame       { return Frame{Kind: KindInteger, Int: i} }
func Double(f float64) Frame      { return Frame{Kind: KindDouble, Dbl: f} }
func Boolean(b bool) Frame        { return Frame{Kind: KindBoolean, Bool: b} }
func Null() Frame                 { return Frame{Kind: KindNull} }

// BulkString wraps b as a non-null bulk string. A nil b is a valid,
// zero-length bulk string — use NullBulkString for the `$-1` form.
func BulkString(b []byte) Frame { return Frame{Kind: KindBulkString, Bulk: b} }

func NullBulkString() Frame { return Frame{Kind: KindBulkString, IsNull: true} }

func Array(elems ...Frame) Frame { return Frame{Kind: KindArray, Elems: elems} }

func NullArray() Frame { return Frame{Kind: KindArray, IsNull: true} }

func SetFrame(elems ...Frame) Frame { return Frame{Kind: KindSet, Elems: elems} }

func Push(elems ...Frame) Frame { return Frame{Kind: KindPush, Elems: elems} }

// MapFrame builds a %-frame from flattened key/value Elems (len must
// be even); pairs are presented to the wire in the order given.
func MapFrame(pairs ...Frame) Frame { return Frame{Kind: KindMap, Elems: pairs} }

// parseInt64Line parses the signed decimal between buf[0] and the
// first CRLF, returning the value and the number of bytes consumed
// (including the CRLF).
func parseInt64Line(buf []byte) (int64, int, error) {
	i := 0
	for {
		if i+1 >= len(buf) {
			return 0, 0, errNeedMore
		}
		if buf[i] == '\r' && buf[i+1] == '\n' {
			break
		}
		i++
	}
	n, err := strconv.ParseInt(string(buf[:i]), 10, 64)
	if err != nil {
		return 0, 0, protoErrf("invalid integer line %q", buf[:i])
	}
	return n, i + 2, nil
}

// findLine locates the next CRLF starting at buf[0], returning the
// line (excluding CRLF) and total bytes consumed.
func findLine(buf []byte) ([]byte, int, error) {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' {
			return buf[:i], i + 2, nil
		}
	}
	return nil, 0, errNeedMore
}
