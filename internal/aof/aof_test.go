// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aof

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rfs-go/rfs-go/internal/store"
)

func TestParsePolicy(t *testing.T) {
	for _, good := range []string{"always", "everysec", "no"} {
		p, err := ParsePolicy(good)
		if err != nil {
			t.Errorf("ParsePolicy(%q) unexpected error: %v", good, err)
		}
		if string(p) != good {
			t.Errorf("ParsePolicy(%q) = %q; want %q", good, p, good)
		}
	}
}

func TestParsePolicyNeverAliasesNo(t *testing.T) {
	p, err := ParsePolicy("never")
	if err != nil {
		t.Fatalf("ParsePolicy(never) unexpected error: %v", err)
	}
	if p != FsyncNever {
		t.Errorf("ParsePolicy(never) = %q; want %q", p, FsyncNever)
	}
}

func TestParsePolicyUnknownFallsBackToEverySecond(t *testing.T) {
	p, err := ParsePolicy("sometimes")
	if err != nil {
		t.Fatalf("ParsePolicy(sometimes) unexpected error: %v", err)
	}
	if p != FsyncEverySecond {
		t.Errorf("ParsePolicy(sometimes) = %q; want fallback %q", p, FsyncEverySecond)
	}
}

func TestWriteAndReplay(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "server.aof")

	w, err := Open(logPath, FsyncAlways)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	entries := [][][]byte{
		{[]byte("SET"), []byte("a"), []byte("1")},
		{[]byte("SET"), []byte("b"), []byte("2")},
		{[]byte("DEL"), []byte("a")},
	}
	for _, e := range entries {
		if err := w.Append(e); err != nil {
			t.Fatalf("Append(%v): %v", e, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s := store.New()
	n, err := Replay(logPath, s)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n != len(entries) {
		t.Fatalf("Replay applied %d entries; want %d", n, len(entries))
	}

	if _, found, _ := s.Get("a"); found {
		t.Errorf("key %q should have been deleted by replay", "a")
	}
	v, found, err := s.Get("b")
	if err != nil || !found || string(v) != "2" {
		t.Errorf("Get(b) = %q, %v, %v; want \"2\", true, nil", v, found, err)
	}
}

func TestReplaySkipsUnknownCommandsAndContinues(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "server.aof")

	w, err := Open(logPath, FsyncAlways)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	entries := [][][]byte{
		{[]byte("SET"), []byte("a"), []byte("1")},
		{[]byte("FROBNICATE"), []byte("whatever")}, // written by a hypothetical other version
		{[]byte("SET"), []byte("b"), []byte("2")},
	}
	for _, e := range entries {
		if err := w.Append(e); err != nil {
			t.Fatalf("Append(%v): %v", e, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s := store.New()
	n, err := Replay(logPath, s)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n != 2 {
		t.Fatalf("Replay applied %d entries; want 2 (unknown command should be skipped, not fatal)", n)
	}

	for key, want := range map[string]string{"a": "1", "b": "2"} {
		v, found, err := s.Get(key)
		if err != nil || !found || string(v) != want {
			t.Errorf("Get(%q) = %q, %v, %v; want %q, true, nil", key, v, found, err, want)
		}
	}
}

func TestWriterRotateReopensFreshSegment(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "server.aof")

	w, err := Open(logPath, FsyncAlways)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.Append([][]byte{[]byte("SET"), []byte("a"), []byte("1")}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := w.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	if _, err := os.Stat(logPath + ".1.gz"); err != nil {
		t.Fatalf("rotated gzip file should exist: %v", err)
	}
	if err := w.Append([][]byte{[]byte("SET"), []byte("b"), []byte("2")}); err != nil {
		t.Fatalf("Append after Rotate: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s := store.New()
	n, err := Replay(logPath, s)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n != 1 {
		t.Fatalf("Replay applied %d entries; want 1 (only the post-rotate segment survives at logPath)", n)
	}
	if _, found, _ := s.Get("a"); found {
		t.Errorf("key %q was compacted away; should not reappear after Rotate", "a")
	}
}

func TestRotateCompressesAndRemovesOriginal(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "server.aof")

	w, err := Open(logPath, FsyncAlways)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.Append([][]byte{[]byte("SET"), []byte("a"), []byte("1")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	path := w.Path()
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := Rotate(path); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("original log %q should no longer exist after Rotate", path)
	}
	if _, err := os.Stat(path + ".1.gz"); err != nil {
		t.Fatalf("rotated gzip file should exist: %v", err)
	}
}

func TestReplayMissingFileIsNotAnError(t *testing.T) {
	s := store.New()
	n, err := Replay(filepath.Join(t.TempDir(), "does-not-exist.aof"), s)
	if err != nil || n != 0 {
		t.Fatalf("Replay(missing) = %d, %v; want 0, nil", n, err)
	}
}
