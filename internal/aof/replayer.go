// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aof

import (
	"fmt"
	"os"

	"github.com/rfs-go/rfs-go/internal/command"
	"github.com/rfs-go/rfs-go/internal/protocol"
	"github.com/rfs-go/rfs-go/internal/store"
	"github.com/rfs-go/rfs-go/log"
)

// Replay reads the log at path frame by frame, using the exact same
// protocol.Decode a live connection uses, and re-applies each command
// against s through a Dispatcher with no Appender — so replay itself
// never re-journals what it is reconstructing (§7's bootstrap path).
// A missing file is not an error: it just means there is nothing to
// restore yet.
//
// Per §4.5, unknown command names (the forward/backward-compatibility
// case: a log written by a newer or older version) and any other
// entry that fails to apply are logged and skipped rather than
// aborting the whole reconstruction — only successfully applied
// entries count toward the returned total. A corrupt frame (one
// protocol.Decode itself cannot parse) still stops replay: unlike a
// live connection there is no peer to resync with, and no reliable
// way to know how many bytes the broken entry occupied.
func Replay(path string, s *store.Store) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("aof: reading %q: %w", path, err)
	}

	d := command.New(s, nil)

	applied, skipped := 0, 0
	buf := raw
	for len(buf) > 0 {
		frame, n, err := protocol.Decode(buf)
		if err != nil {
			return applied, fmt.Errorf("aof: decoding entry %d in %q: %w", applied+skipped, path, err)
		}
		buf = buf[n:]

		reply := d.Dispatch(frame)
		if reply.Kind == protocol.KindError {
			log.Warnf("aof: skipping unreplayable entry %d in %q: %s", applied+skipped, path, reply.Str)
			skipped++
			continue
		}
		applied++
	}
	return applied, nil
}
