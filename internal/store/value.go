// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store implements the typed, in-memory keyspace: the tagged
// value union of §3, the per-key type exclusivity rules of §4.2, and
// the expiry index of §4.3. Every operation runs under the keyspace's
// single exclusive mutex (§5); nothing in this package talks to a
// socket or a log file.
package store

import (
	"bytes"
	"sort"
)

// Kind identifies which of the five container shapes a Value holds.
type Kind int

const (
	KindNone Kind = iota
	KindBytes
	KindDeque
	KindSet
	KindHash
	KindZSet
)

func (k Kind) String() string {
	switch k {
	case KindBytes:
		return "string"
	case KindDeque:
		return "list"
	case KindSet:
		return "set"
	case KindHash:
		return "hash"
	case KindZSet:
		return "zset"
	default:
		return "none"
	}
}

// zsetEntry is one (member, score) pair of a Ranked value. Entries are
// kept sorted ascending by score, ties broken by byte-lexicographic
// comparison of the member, per §3's sort invariant.
type zsetEntry struct {
	member []byte
	score  float64
}

// value is the tagged union described in §3. Only one of the fields
// is meaningful for a given kind; callers must check kind before
// touching a field.
type value struct {
	kind Kind

	bytes []byte

	deque [][]byte

	set map[string]struct{}

	hash map[string][]byte

	zmembers map[string]int // member -> index into zorder
	zorder   []zsetEntry
}

func newBytesValue(b []byte) *value {
	return &value{kind: KindBytes, bytes: b}
}

func newDequeValue() *value {
	return &value{kind: KindDeque}
}

func newSetValue() *value {
	return &value{kind: KindSet, set: make(map[string]struct{})}
}

func newHashValue() *value {
	return &value{kind: KindHash, hash: make(map[string][]byte)}
}

func newZSetValue() *value {
	return &value{kind: KindZSet, zmembers: make(map[string]int)}
}

// empty reports whether the container backing v has become empty and
// must therefore be deleted from the keyspace, per §3's invariant that
// no key maps to an empty container once an operation returns.
func (v *value) empty() bool {
	switch v.kind {
	case KindBytes:
		return false // an empty byte string is still a value
	case KindDeque:
		return len(v.deque) == 0
	case KindSet:
		return len(v.set) == 0
	case KindHash:
		return len(v.hash) == 0
	case KindZSet:
		return len(v.zorder) == 0
	default:
		return true
	}
}

// zsetLess implements the §3 sort invariant: ascending by score, ties
// broken by lexicographic byte comparison of the member.
func zsetLess(a, b zsetEntry) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return bytes.Compare(a.member, b.member) < 0
}

// zsetInsertionPoint returns the index at which e belongs in order,
// using the same comparator as zsetLess.
func (v *value) zsetInsertionPoint(e zsetEntry) int {
	return sort.Search(len(v.zorder), func(i int) bool {
		return !zsetLess(v.zorder[i], e)
	})
}

// zsetReindex rebuilds the member->index map after zorder has shifted.
func (v *value) zsetReindex(from int) {
	for i := from; i < len(v.zorder); i++ {
		v.zmembers[string(v.zorder[i].member)] = i
	}
}

// zsetUpsert inserts member at the correct sorted position or updates
// its score in place, returning true if member was newly inserted.
func (v *value) zsetUpsert(member []byte, score float64) bool {
	key := string(member)
	if idx, ok := v.zmembers[key]; ok {
		old := v.zorder[idx]
		if old.score == score {
			return false
		}
		v.zorder = append(v.zorder[:idx], v.zorder[idx+1:]...)
		delete(v.zmembers, key)
		v.zsetReindex(idx)
		e := zsetEntry{member: old.member, score: score}
		at := v.zsetInsertionPoint(e)
		v.zorder = append(v.zorder, zsetEntry{})
		copy(v.zorder[at+1:], v.zorder[at:])
		v.zorder[at] = e
		v.zsetReindex(at)
		return false
	}

	e := zsetEntry{member: append([]byte(nil), member...), score: score}
	at := v.zsetInsertionPoint(e)
	v.zorder = append(v.zorder, zsetEntry{})
	copy(v.zorder[at+1:], v.zorder[at:])
	v.zorder[at] = e
	v.zsetReindex(at)
	return true
}

// zsetRemove deletes member if present, reporting whether it was removed.
func (v *value) zsetRemove(member []byte) bool {
	key := string(member)
	idx, ok := v.zmembers[key]
	if !ok {
		return false
	}
	v.zorder = append(v.zorder[:idx], v.zorder[idx+1:]...)
	delete(v.zmembers, key)
	v.zsetReindex(idx)
	return true
}
