// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package aof implements the append-only durability log of §6/§7: a
// command journal that can be replayed to reconstruct a keyspace, with
// three fsync policies trading off durability against write latency.
package aof

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rfs-go/rfs-go/internal/protocol"
	"github.com/rfs-go/rfs-go/log"
)

// FsyncPolicy selects when Append forces the entry to stable storage,
// per §6: the same three-way choice every real append-only log
// (redis, etcd's WAL, postgres' wal_sync_method) offers.
type FsyncPolicy string

const (
	// FsyncAlways calls fsync after every single Append.
	FsyncAlways FsyncPolicy = "always"
	// FsyncEverySecond batches fsyncs to at most once per second.
	FsyncEverySecond FsyncPolicy = "everysec"
	// FsyncNever leaves fsync scheduling entirely to the OS.
	FsyncNever FsyncPolicy = "no"
)

// ParsePolicy normalizes a policy string from config. "never" is
// accepted as an alias of "no" (§6), and any value this server
// doesn't recognize falls back to "everysec" (§6: "unknown values
// fall back to everysec") rather than failing configuration outright.
func ParsePolicy(s string) (FsyncPolicy, error) {
	switch FsyncPolicy(s) {
	case FsyncAlways, FsyncEverySecond, FsyncNever:
		return FsyncPolicy(s), nil
	case "never":
		return FsyncNever, nil
	default:
		log.Warnf("aof: unknown fsync policy %q, falling back to %q", s, FsyncEverySecond)
		return FsyncEverySecond, nil
	}
}

// Writer appends canonical command rows to an on-disk log, encoding
// each row as a protocol.KindArray of bulk strings so that Replay can
// read the file back with the exact same decoder a client connection
// uses (§7's "the log is just wire frames on disk").
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	policy FsyncPolicy

	// limiter paces fsyncs under FsyncEverySecond: one token per
	// second, refilled continuously, so a burst of writes still only
	// pays for a single fsync call per second rather than one per
	// command (the rate.Limiter pattern cc-backend's corpus siblings
	// use for other per-second budgets, e.g. tailscale/derp's
	// send-rate limiter).
	limiter *rate.Limiter
}

// Open appends to (or creates) the log file at path under policy.
func Open(path string, policy FsyncPolicy) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("aof: opening %q: %w", path, err)
	}

	w := &Writer{file: f, policy: policy}
	if policy == FsyncEverySecond {
		w.limiter = rate.NewLimiter(rate.Every(time.Second), 1)
	}
	return w, nil
}

// Append writes one canonical command row (command name followed by
// its argument bytes) and applies the configured fsync policy. It is
// best-effort per §7: a failure here is logged but never unwinds the
// mutation that was already applied to the in-memory keyspace.
func (w *Writer) Append(entry [][]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	elems := make([]protocol.Frame, len(entry))
	for i, e := range entry {
		elems[i] = protocol.BulkString(e)
	}
	buf := protocol.EncodeBytes(protocol.Array(elems...))

	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("aof: write: %w", err)
	}

	switch w.policy {
	case FsyncAlways:
		return w.file.Sync()
	case FsyncEverySecond:
		if w.limiter.Allow() {
			return w.file.Sync()
		}
		return nil
	default:
		return nil
	}
}

// Flush forces a sync regardless of policy; used on graceful shutdown
// so a "no"/"everysec" log doesn't lose its final buffered writes.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Path reports the file path this writer was opened against, so a
// caller can close it, Rotate it, and reopen a fresh segment under the
// same name (§6's log-compaction path).
func (w *Writer) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Name()
}

// Rotate closes the current segment, compacts it via Rotate(path) into
// a gzip archive, and reopens a fresh segment at the same path under
// the same policy. Intended to be called periodically (§6's log
// compaction) by a scheduled job, e.g. internal/server.Scheduler's
// RegisterCompaction, so the live log doesn't grow without bound.
func (w *Writer) Rotate() error {
	w.mu.Lock()
	path := w.file.Name()
	if err := w.file.Close(); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("aof: rotate: closing current segment: %w", err)
	}
	w.mu.Unlock()

	if err := Rotate(path); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("aof: rotate: reopening %q: %w", path, err)
	}

	w.mu.Lock()
	w.file = f
	w.mu.Unlock()
	return nil
}

// RunPeriodicFsync is a fallback ticker for the "no" and "everysec"
// policies: even if no new commands arrive, previously buffered writes
// get flushed to disk on a schedule instead of waiting indefinitely.
// Returns when ctx is cancelled.
func (w *Writer) RunPeriodicFsync(ctx context.Context, interval time.Duration) {
	if w.policy == FsyncAlways {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				log.Errorf("aof: periodic fsync failed: %s", err.Error())
			}
		}
	}
}
