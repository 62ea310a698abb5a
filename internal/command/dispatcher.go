// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package command implements the command dispatcher of §4.4: it turns
// one decoded top-level frame into a typed call against the keyspace
// engine, validates arity and argument coercion, optionally journals
// the mutation's canonical form, and builds the reply frame.
package command

import (
	"strconv"
	"strings"

	"github.com/rfs-go/rfs-go/internal/protocol"
	"github.com/rfs-go/rfs-go/internal/store"
	"github.com/rfs-go/rfs-go/log"
)

// LogEntry is one canonical command row to append to the durability
// log: the command name followed by its argument bytes (§4.4's
// persistence hook, §4.5's entry format).
type LogEntry [][]byte

// Appender is the subset of the AOF writer the dispatcher needs. It is
// declared here, not in package aof, so that command has no import-time
// dependency on the durability log — a Dispatcher with a nil Appender
// simply runs without persistence (§6: "enables durability if present").
type Appender interface {
	Append(entry [][]byte) error
}

// Dispatcher routes request frames into store operations and produces
// reply frames, per §4.4.
type Dispatcher struct {
	Store    *store.Store
	Appender Appender // nil disables the persistence hook
}

func New(s *store.Store, appender Appender) *Dispatcher {
	return &Dispatcher{Store: s, Appender: appender}
}

// Dispatch implements the full contract of §4.4 for one request frame.
func (d *Dispatcher) Dispatch(req protocol.Frame) protocol.Frame {
	argv, err := requestArgv(req)
	if err != nil {
		return protocol.Error(err.Error())
	}
	if len(argv) == 0 {
		return protocol.Error("ERR empty command")
	}

	name := strings.ToUpper(string(argv[0]))
	h, ok := commandTable[name]
	if !ok {
		return protocol.Error("ERR unknown command '" + string(argv[0]) + "'")
	}

	args := argv[1:]
	if !h.arity(len(args)) {
		return protocol.Error("ERR wrong number of arguments for '" + strings.ToLower(name) + "' command")
	}

	result := h.run(d.Store, args)
	if d.Appender != nil {
		for _, entry := range result.log {
			full := make([][]byte, 0, len(entry)+1)
			full = append(full, []byte(name))
			full = append(full, entry...)
			// best-effort: §7, log I/O never unwinds an applied mutation
			if err := d.Appender.Append(full); err != nil {
				log.Errorf("aof: append of %s failed: %s", name, err.Error())
			}
		}
	}
	return result.reply
}

// requestArgv validates that req is an array of (non-null) bulk
// strings and extracts their payloads, per §4.4's framing contract.
func requestArgv(req protocol.Frame) ([][]byte, error) {
	if req.Kind != protocol.KindArray || req.IsNull {
		return nil, errProto("ERR expected request array")
	}
	argv := make([][]byte, len(req.Elems))
	for i, elem := range req.Elems {
		if elem.Kind != protocol.KindBulkString || elem.IsNull {
			return nil, errProto("ERR expected bulk string arguments")
		}
		argv[i] = elem.Bulk
	}
	return argv, nil
}

type protoErr struct{ msg string }

func (e *protoErr) Error() string { return e.msg }

func errProto(msg string) error { return &protoErr{msg: msg} }

// result is what each command handler produces: the reply frame, plus
// zero or more canonical log rows to append on success (§4.4).
type result struct {
	reply protocol.Frame
	log   [][][]byte
}

func ok(reply protocol.Frame) result { return result{reply: reply} }

func okLogged(reply protocol.Frame, entry [][]byte) result {
	return result{reply: reply, log: [][][]byte{entry}}
}

// parseInt parses a command argument as a signed 64-bit integer, the
// "not-an-integer" coercion error of §4.4.
func parseInt(b []byte) (int64, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, errProto("ERR value is not an integer or out of range")
	}
	return n, nil
}

// parseFloat parses a command argument as a float64; non-finite
// inputs are coerced fine here and rejected downstream by the store
// (§4.2's "reject at ingest"), matching the spec's layering of
// "not-a-valid-float" (syntax) vs "non-finite score" (semantic).
func parseFloat(b []byte) (float64, error) {
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0, errProto("ERR value is not a valid float")
	}
	return f, nil
}

func wrongType() protocol.Frame { return protocol.Error(store.ErrWrongType.Error()) }

// replyFromErr maps a store error to a reply frame. Both of the
// store's sentinel errors already carry their full wire tag text
// (WRONGTYPE / ERR), so this is a direct pass-through.
func replyFromErr(err error) protocol.Frame {
	return protocol.Error(err.Error())
}
