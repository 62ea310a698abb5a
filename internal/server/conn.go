// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package server

import (
	"net"

	"github.com/rfs-go/rfs-go/internal/command"
	"github.com/rfs-go/rfs-go/internal/protocol"
	"github.com/rfs-go/rfs-go/log"
)

const readChunkSize = 4096

// handleConn runs the read/decode/dispatch/write loop for one
// connection until the peer disconnects or a protocol error occurs, at
// which point (§4.1, §4.6) the connection is closed without attempting
// to resync.
func handleConn(conn net.Conn, d *command.Dispatcher) {
	defer conn.Close()

	var buf []byte
	chunk := make([]byte, readChunkSize)

	for {
		frame, consumed, decodeErr := protocol.Decode(buf)
		if decodeErr == nil {
			buf = buf[consumed:]
			reply := d.Dispatch(frame)
			if _, err := conn.Write(protocol.EncodeBytes(reply)); err != nil {
				return
			}
			continue
		}
		if !protocol.NeedMore(decodeErr) {
			log.Debugf("closing connection from %s after protocol error: %s", conn.RemoteAddr(), decodeErr.Error())
			return
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			return
		}
	}
}
