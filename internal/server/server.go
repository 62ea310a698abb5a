// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package server implements the TCP front end of §4/§6: an accept
// loop bounded by a connection-count semaphore, one goroutine per
// connection running a read/dispatch/write loop, and graceful
// shutdown that mirrors cc-backend's own http.Server/WaitGroup
// pattern in cmd/cc-backend/main.go.
package server

import (
	"context"
	"net"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/rfs-go/rfs-go/internal/command"
	"github.com/rfs-go/rfs-go/log"
)

// Server accepts client connections and dispatches their requests
// against a shared command.Dispatcher.
type Server struct {
	Dispatcher *command.Dispatcher

	listener net.Listener
	sem      *semaphore.Weighted

	wg       sync.WaitGroup
	quit     chan struct{}
	quitOnce sync.Once
}

// New binds addr and prepares a Server that will admit at most
// maxConnections concurrent clients.
func New(addr string, maxConnections int, dispatcher *command.Dispatcher) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	return &Server{
		Dispatcher: dispatcher,
		listener:   ln,
		sem:        semaphore.NewWeighted(int64(maxConnections)),
		quit:       make(chan struct{}),
	}, nil
}

// Addr returns the address the listener is actually bound to (useful
// when addr was "127.0.0.1:0" and the OS picked a port).
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve runs the accept loop until Shutdown is called. It returns nil
// when the listener was closed by Shutdown, and the accept error
// otherwise. A connection permit is taken before each Accept, so while
// all permits are held no further connection is accepted.
func (s *Server) Serve() error {
	log.Printf("key-value server listening at %s...", s.listener.Addr())

	for {
		if err := s.sem.Acquire(context.Background(), 1); err != nil {
			return err
		}

		conn, err := s.listener.Accept()
		if err != nil {
			s.sem.Release(1)
			select {
			case <-s.quit:
				return nil
			default:
				return err
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sem.Release(1)
			handleConn(conn, s.Dispatcher)
		}()
	}
}

// Shutdown stops accepting new connections and waits for every
// connection handler to return. Open connections are not closed: a
// handler returns only once its peer disconnects or sends a malformed
// frame, so Shutdown blocks until then. This mirrors the
// server.Shutdown(context.Background()) call cc-backend's main()
// makes before waiting on its own WaitGroup.
func (s *Server) Shutdown() {
	s.quitOnce.Do(func() { close(s.quit) })
	s.listener.Close()
	s.wg.Wait()
}
