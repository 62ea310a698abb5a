// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import "strconv"

// Decode attempts to parse one Frame from the start of buf. It
// returns the parsed frame and the number of bytes it consumed. If
// buf does not yet hold a complete frame, it returns NeedMore(err) ==
// true and the caller should retry once more bytes have arrived — buf
// itself is never mutated or partially consumed on that path. Any
// other non-nil error is a protocol error (§4.1): the connection must
// be closed, not resynced.
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) == 0 {
		return Frame{}, 0, errNeedMore
	}

	kind := Kind(buf[0])
	switch kind {
	case KindSimpleString:
		return decodeLineFrame(kind, buf)
	case KindError:
		return decodeLineFrame(kind, buf)
	case KindInteger:
		return decodeIntegerFrame(buf)
	case KindDouble:
		return decodeDoubleFrame(buf)
	case KindBoolean:
		return decodeBooleanFrame(buf)
	case KindNull:
		return decodeNullFrame(buf)
	case KindBulkString:
		return decodeBulkStringFrame(buf)
	case KindArray, KindSet, KindPush:
		return decodeAggregateFrame(kind, buf)
	case KindMap:
		return decodeMapFrame(buf)
	default:
		return Frame{}, 0, protoErrf("unknown type byte %q", buf[0])
	}
}

func decodeLineFrame(kind Kind, buf []byte) (Frame, int, error) {
	line, n, err := findLine(buf[1:])
	if err != nil {
		return Frame{}, 0, err
	}
	return Frame{Kind: kind, Str: string(line)}, 1 + n, nil
}

func decodeIntegerFrame(buf []byte) (Frame, int, error) {
	v, n, err := parseInt64Line(buf[1:])
	if err != nil {
		return Frame{}, 0, err
	}
	return Frame{Kind: KindInteger, Int: v}, 1 + n, nil
}

func decodeDoubleFrame(buf []byte) (Frame, int, error) {
	line, n, err := findLine(buf[1:])
	if err != nil {
		return Frame{}, 0, err
	}
	f, perr := strconv.ParseFloat(string(line), 64)
	if perr != nil {
		return Frame{}, 0, protoErrf("invalid double %q", line)
	}
	return Frame{Kind: KindDouble, Dbl: f}, 1 + n, nil
}

func decodeBooleanFrame(buf []byte) (Frame, int, error) {
	line, n, err := findLine(buf[1:])
	if err != nil {
		return Frame{}, 0, err
	}
	switch string(line) {
	case "t":
		return Frame{Kind: KindBoolean, Bool: true}, 1 + n, nil
	case "f":
		return Frame{Kind: KindBoolean, Bool: false}, 1 + n, nil
	default:
		return Frame{}, 0, protoErrf("invalid boolean %q", line)
	}
}

func decodeNullFrame(buf []byte) (Frame, int, error) {
	_, n, err := findLine(buf[1:])
	if err != nil {
		return Frame{}, 0, err
	}
	return Frame{Kind: KindNull}, 1 + n, nil
}

func decodeBulkStringFrame(buf []byte) (Frame, int, error) {
	length, headerLen, err := parseInt64Line(buf[1:])
	if err != nil {
		return Frame{}, 0, err
	}
	consumed := 1 + headerLen

	if length == -1 {
		return Frame{Kind: KindBulkString, IsNull: true}, consumed, nil
	}
	if length < -1 {
		return Frame{}, 0, protoErrf("negative bulk length %d", length)
	}

	total := consumed + int(length) + 2
	if len(buf) < total {
		return Frame{}, 0, errNeedMore
	}
	payload := buf[consumed : consumed+int(length)]
	if buf[consumed+int(length)] != '\r' || buf[consumed+int(length)+1] != '\n' {
		return Frame{}, 0, protoErrf("bulk string missing trailing CRLF")
	}

	out := make([]byte, length)
	copy(out, payload)
	return Frame{Kind: KindBulkString, Bulk: out}, total, nil
}

func decodeAggregateFrame(kind Kind, buf []byte) (Frame, int, error) {
	count, headerLen, err := parseInt64Line(buf[1:])
	if err != nil {
		return Frame{}, 0, err
	}
	consumed := 1 + headerLen

	if count == -1 {
		if kind == KindPush {
			return Frame{}, 0, protoErrf("push frames have no null form")
		}
		return Frame{Kind: kind, IsNull: true}, consumed, nil
	}
	if count < -1 {
		return Frame{}, 0, protoErrf("negative aggregate count %d", count)
	}

	elems := make([]Frame, 0, count)
	for i := int64(0); i < count; i++ {
		elem, n, err := Decode(buf[consumed:])
		if err != nil {
			return Frame{}, 0, err
		}
		elems = append(elems, elem)
		consumed += n
	}
	return Frame{Kind: kind, Elems: elems}, consumed, nil
}

func decodeMapFrame(buf []byte) (Frame, int, error) {
	count, headerLen, err := parseInt64Line(buf[1:])
	if err != nil {
		return Frame{}, 0, err
	}
	consumed := 1 + headerLen
	if count < 0 {
		return Frame{}, 0, protoErrf("negative map count %d", count)
	}

	elems := make([]Frame, 0, count*2)
	for i := int64(0); i < count; i++ {
		key, n, err := Decode(buf[consumed:])
		if err != nil {
			return Frame{}, 0, err
		}
		consumed += n

		val, n, err := Decode(buf[consumed:])
		if err != nil {
			return Frame{}, 0, err
		}
		consumed += n

		elems = append(elems, key, val)
	}
	return Frame{Kind: KindMap, Elems: elems}, consumed, nil
}
