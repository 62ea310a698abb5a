// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfs-go/rfs-go/internal/command"
	"github.com/rfs-go/rfs-go/internal/protocol"
	"github.com/rfs-go/rfs-go/internal/store"
)

func startTestServer(t *testing.T) (*Server, net.Conn) {
	t.Helper()

	s, err := New("127.0.0.1:0", 8, command.New(store.New(), nil))
	require.NoError(t, err)

	go s.Serve()
	t.Cleanup(s.Shutdown)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return s, conn
}

func sendRequest(t *testing.T, conn net.Conn, args ...string) protocol.Frame {
	t.Helper()

	elems := make([]protocol.Frame, len(args))
	for i, a := range args {
		elems[i] = protocol.BulkString([]byte(a))
	}
	_, err := conn.Write(protocol.EncodeBytes(protocol.Array(elems...)))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	frame, consumed, err := protocol.Decode(buf[:n])
	require.NoError(t, err)
	require.Equal(t, n, consumed)
	return frame
}

func TestServerPingPong(t *testing.T) {
	_, conn := startTestServer(t)

	reply := sendRequest(t, conn, "PING")
	assert.Equal(t, protocol.KindSimpleString, reply.Kind)
	assert.Equal(t, "PONG", reply.Str)
}

func TestServerSetGetRoundTrip(t *testing.T) {
	_, conn := startTestServer(t)

	reply := sendRequest(t, conn, "SET", "greeting", "hello")
	assert.Equal(t, "OK", reply.Str)

	reply = sendRequest(t, conn, "GET", "greeting")
	assert.Equal(t, protocol.KindBulkString, reply.Kind)
	assert.Equal(t, "hello", string(reply.Bulk))
}

func TestServerClosesConnectionOnProtocolError(t *testing.T) {
	_, conn := startTestServer(t)

	_, err := conn.Write([]byte("@garbage\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	assert.Equal(t, 0, n)
	assert.Error(t, err) // EOF: server closed the connection
}
