// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import "container/heap"

// expiryIndex is the deadline index of §4.3: an authoritative map from
// key to deadline plus a min-ordered priority queue of (deadline, key)
// pairs used for cheap batch draining. The queue may accumulate stale
// entries (a key whose deadline moved on); drain reconciles against the
// map and discards them. No third-party priority-queue library appears
// anywhere in the example corpus, so the queue is built on the standard
// library's container/heap, same as any other idiomatic Go scheduler
// would reach for absent a domain-specific dependency.
type expiryIndex struct {
	deadlines map[string]int64
	pq        deadlineHeap
}

type deadlinePair struct {
	deadline int64
	key      string
}

type deadlineHeap []deadlinePair

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].deadline < h[j].deadline }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x interface{}) { *h = append(*h, x.(deadlinePair)) }
func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func newExpiryIndex() *expiryIndex {
	return &expiryIndex{deadlines: make(map[string]int64)}
}

// set installs (replacing any prior) a deadline for key.
func (e *expiryIndex) set(key string, deadline int64) {
	e.deadlines[key] = deadline
	heap.Push(&e.pq, deadlinePair{deadline: deadline, key: key})
}

// clear removes key's deadline, if any. The stale queue entry (if one
// exists) is reconciled away lazily at drain time.
func (e *expiryIndex) clear(key string) {
	delete(e.deadlines, key)
}

// check reports whether key has a deadline at or before now.
func (e *expiryIndex) check(key string, now int64) bool {
	d, ok := e.deadlines[key]
	return ok && d <= now
}

// peek returns key's current deadline, if any.
func (e *expiryIndex) peek(key string) (int64, bool) {
	d, ok := e.deadlines[key]
	return d, ok
}

// drain pops due entries off the queue, reconciling each against the
// authoritative map, and returns the keys that are genuinely expired
// as of now. Stale heap entries (deadline changed or key already gone)
// are discarded without being returned. Stops at the first head whose
// deadline is still in the future.
func (e *expiryIndex) drain(now int64) []string {
	var expired []string
	for e.pq.Len() > 0 {
		head := e.pq[0]
		if head.deadline > now {
			break
		}
		heap.Pop(&e.pq)

		current, ok := e.deadlines[head.key]
		if !ok || current != head.deadline {
			continue // stale: key gone, or superseded by a later SET
		}
		delete(e.deadlines, head.key)
		expired = append(expired, head.key)
	}
	return expired
}
