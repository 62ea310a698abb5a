// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfs-go/rfs-go/internal/protocol"
	"github.com/rfs-go/rfs-go/internal/store"
)

func request(args ...string) protocol.Frame {
	elems := make([]protocol.Frame, len(args))
	for i, a := range args {
		elems[i] = protocol.BulkString([]byte(a))
	}
	return protocol.Array(elems...)
}

// recordingAppender captures every log row handed to it, so tests can
// assert on the canonical form written to the durability log without
// standing up a real aof.Writer.
type recordingAppender struct {
	entries [][][]byte
}

func (a *recordingAppender) Append(entry [][]byte) error {
	a.entries = append(a.entries, entry)
	return nil
}

func TestDispatchPingPong(t *testing.T) {
	d := New(store.New(), nil)
	reply := d.Dispatch(request("PING"))
	require.Equal(t, protocol.KindSimpleString, reply.Kind)
	assert.Equal(t, "PONG", reply.Str)
}

func TestDispatchUnknownCommand(t *testing.T) {
	d := New(store.New(), nil)
	reply := d.Dispatch(request("FROBNICATE", "a"))
	require.Equal(t, protocol.KindError, reply.Kind)
	assert.Contains(t, reply.Str, "unknown command")
}

func TestDispatchWrongArity(t *testing.T) {
	d := New(store.New(), nil)
	reply := d.Dispatch(request("GET"))
	require.Equal(t, protocol.KindError, reply.Kind)
	assert.Contains(t, reply.Str, "wrong number of arguments")
}

func TestDispatchRejectsNonArrayRequest(t *testing.T) {
	d := New(store.New(), nil)
	reply := d.Dispatch(protocol.BulkString([]byte("PING")))
	require.Equal(t, protocol.KindError, reply.Kind)
	assert.Contains(t, reply.Str, "expected request array")
}

func TestDispatchWrongTypePropagates(t *testing.T) {
	d := New(store.New(), nil)
	require.Equal(t, protocol.KindSimpleString, d.Dispatch(request("SET", "k", "v")).Kind)

	reply := d.Dispatch(request("LPUSH", "k", "x"))
	require.Equal(t, protocol.KindError, reply.Kind)
	assert.Contains(t, reply.Str, "WRONGTYPE")
}

func TestDispatchAppendsCanonicalLogOnMutation(t *testing.T) {
	app := &recordingAppender{}
	d := New(store.New(), app)

	reply := d.Dispatch(request("SET", "k", "v", "EX", "10"))
	require.Equal(t, protocol.KindSimpleString, reply.Kind)
	require.Len(t, app.entries, 1)

	got := app.entries[0]
	require.Len(t, got, 5)
	assert.Equal(t, "SET", string(got[0]))
	assert.Equal(t, "k", string(got[1]))
	assert.Equal(t, "v", string(got[2]))
	assert.Equal(t, "PX", string(got[3]), "SET ... EX is canonicalized to PX milliseconds for the log")
	assert.Equal(t, "10000", string(got[4]))
}

func TestDispatchDoesNotLogNoopMutation(t *testing.T) {
	app := &recordingAppender{}
	d := New(store.New(), app)

	d.Dispatch(request("SADD", "s", "a"))
	require.Len(t, app.entries, 1)

	// Adding the same member again changes nothing; no new log row.
	reply := d.Dispatch(request("SADD", "s", "a"))
	require.Equal(t, protocol.KindInteger, reply.Kind)
	assert.EqualValues(t, 0, reply.Int)
	assert.Len(t, app.entries, 1)
}

func TestDispatchReadOnlyCommandNeverLogs(t *testing.T) {
	app := &recordingAppender{}
	d := New(store.New(), app)

	d.Dispatch(request("SET", "k", "v"))
	app.entries = nil

	reply := d.Dispatch(request("GET", "k"))
	require.Equal(t, protocol.KindBulkString, reply.Kind)
	assert.Equal(t, "v", string(reply.Bulk))
	assert.Empty(t, app.entries)
}

func TestDispatchNilAppenderIsSafe(t *testing.T) {
	d := New(store.New(), nil)
	require.NotPanics(t, func() {
		d.Dispatch(request("SET", "k", "v"))
		d.Dispatch(request("DEL", "k"))
	})
}
