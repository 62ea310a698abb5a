// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import (
	"strconv"
)

// Encode appends the wire representation of f to dst and returns the
// extended slice. Encoding is total: every well-formed Frame has
// exactly one encoding, the inverse of Decode.
func Encode(dst []byte, f Frame) []byte {
	switch f.Kind {
	case KindSimpleString, KindError:
		dst = append(dst, byte(f.Kind))
		dst = append(dst, f.Str...)
		return append(dst, '\r', '\n')

	case KindInteger:
		dst = append(dst, byte(f.Kind))
		dst = strconv.AppendInt(dst, f.Int, 10)
		return append(dst, '\r', '\n')

	case KindDouble:
		dst = append(dst, byte(f.Kind))
		dst = strconv.AppendFloat(dst, f.Dbl, 'g', -1, 64)
		return append(dst, '\r', '\n')

	case KindBoolean:
		dst = append(dst, byte(f.Kind))
		if f.Bool {
			dst = append(dst, 't')
		} else {
			dst = append(dst, 'f')
		}
		return append(dst, '\r', '\n')

	case KindNull:
		return append(dst, byte(f.Kind), '\r', '\n')

	case KindBulkString:
		dst = append(dst, byte(f.Kind))
		if f.IsNull {
			return append(dst, '-', '1', '\r', '\n')
		}
		dst = strconv.AppendInt(dst, int64(len(f.Bulk)), 10)
		dst = append(dst, '\r', '\n')
		dst = append(dst, f.Bulk...)
		return append(dst, '\r', '\n')

	case KindArray, KindSet, KindPush:
		dst = append(dst, byte(f.Kind))
		if f.IsNull {
			return append(dst, '-', '1', '\r', '\n')
		}
		dst = strconv.AppendInt(dst, int64(len(f.Elems)), 10)
		dst = append(dst, '\r', '\n')
		for _, elem := range f.Elems {
			dst = Encode(dst, elem)
		}
		return dst

	case KindMap:
		dst = append(dst, byte(f.Kind))
		dst = strconv.AppendInt(dst, int64(len(f.Elems)/2), 10)
		dst = append(dst, '\r', '\n')
		for _, elem := range f.Elems {
			dst = Encode(dst, elem)
		}
		return dst

	default:
		return dst
	}
}

// EncodeBytes is a convenience wrapper returning a fresh slice.
func EncodeBytes(f Frame) []byte {
	return Encode(nil, f)
}
