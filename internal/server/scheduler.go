// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package server

import (
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/rfs-go/rfs-go/internal/aof"
	"github.com/rfs-go/rfs-go/internal/store"
	"github.com/rfs-go/rfs-go/log"
)

// Scheduler runs the background sweeps of §4.2/§4.3 (periodic expired-
// key eviction) on a gocron scheduler, the same library and registration
// shape cc-backend's internal/taskManager uses for its own periodic
// services (RegisterLdapSyncService's gocron.DurationJob).
type Scheduler struct {
	sched gocron.Scheduler
}

// NewScheduler creates the scheduler but does not start it.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{sched: s}, nil
}

// RegisterEviction installs the periodic EvictExpired sweep at the
// given interval.
func (sc *Scheduler) RegisterEviction(st *store.Store, interval time.Duration) error {
	_, err := sc.sched.NewJob(gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if n := st.EvictExpired(); n > 0 {
				log.Debugf("evicted %d expired key(s)", n)
			}
		}))
	return err
}

// RegisterCompaction installs a periodic job that rotates and gzips
// the durability log (§6's log compaction), keeping the live segment
// bounded instead of growing forever.
func (sc *Scheduler) RegisterCompaction(w *aof.Writer, interval time.Duration) error {
	_, err := sc.sched.NewJob(gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := w.Rotate(); err != nil {
				log.Errorf("aof: scheduled compaction failed: %s", err.Error())
			} else {
				log.Infof("aof: rotated durability log")
			}
		}))
	return err
}

func (sc *Scheduler) Start() { sc.sched.Start() }

func (sc *Scheduler) Shutdown() error { return sc.sched.Shutdown() }
