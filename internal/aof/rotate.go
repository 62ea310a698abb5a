// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aof

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
)

// Rotate moves the (already closed) log at path aside to path+".1", and gzips
// it to path+".1.gz" so a long-lived server doesn't accumulate
// unbounded plaintext history. Adapted from cc-backend's
// internal/util.CompressFile: open source, gzip.Writer to destination,
// io.Copy, remove the source once compressed.
func Rotate(path string) error {
	rotated := path + ".1"
	if err := os.Rename(path, rotated); err != nil {
		return fmt.Errorf("aof: rotate: rename %q: %w", path, err)
	}
	return compressFile(rotated, rotated+".gz")
}

func compressFile(fileIn, fileOut string) error {
	in, err := os.Open(fileIn)
	if err != nil {
		return fmt.Errorf("aof: compress: open %q: %w", fileIn, err)
	}
	defer in.Close()

	out, err := os.Create(fileOut)
	if err != nil {
		return fmt.Errorf("aof: compress: create %q: %w", fileOut, err)
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		return fmt.Errorf("aof: compress: copy: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("aof: compress: close gzip writer: %w", err)
	}

	return os.Remove(fileIn)
}
