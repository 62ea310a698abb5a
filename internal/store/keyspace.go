// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
)

// ErrWrongType is returned whenever a command addresses a key that
// already holds a value of a different shape (§4.2's type exclusivity).
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// ZEntry pairs a member with its score, the unit Ranked-set operations
// exchange with callers.
type ZEntry struct {
	Member []byte
	Score  float64
}

// Store is the keyspace engine of §4.2: a concurrent map from key to
// one of the five value shapes, plus the expiry index of §4.3. All of
// it lives behind a single lock (§5). The spec's own design note (§9)
// observes that nominally read-only commands still perform lazy
// expiry, which mutates the map and the index — so in practice every
// operation needs the exclusive hold. Rather than dress that up with
// an RWMutex whose RLock path is never actually reachable, this uses a
// plain Mutex, matching what the spec's "open question" resolves to.
type Store struct {
	mu     sync.Mutex
	data   map[string]*value
	expiry *expiryIndex
	clock  clockwork.Clock
}

// New returns an empty Store using the real wall clock.
func New() *Store {
	return NewWithClock(clockwork.NewRealClock())
}

// NewWithClock returns an empty Store driven by clock, so tests can
// control expiry deterministically without sleeping.
func NewWithClock(clock clockwork.Clock) *Store {
	return &Store{
		data:   make(map[string]*value),
		expiry: newExpiryIndex(),
		clock:  clock,
	}
}

func (s *Store) lock()   { s.mu.Lock() }
func (s *Store) unlock() { s.mu.Unlock() }

func (s *Store) nowMillis() int64 {
	return s.clock.Now().UnixMilli()
}

// expireIfDue performs the lazy-expiry point check of §4.2: if key's
// deadline has passed, both the value and the deadline are removed
// before the caller proceeds. Must be called with the lock held.
func (s *Store) expireIfDue(key string) {
	if s.expiry.check(key, s.nowMillis()) {
		delete(s.data, key)
		s.expiry.clear(key)
	}
}

// lookup fetches key after a lazy expiry check. Must be called locked.
func (s *Store) lookup(key string) (*value, bool) {
	s.expireIfDue(key)
	v, ok := s.data[key]
	return v, ok
}

// typed fetches key, failing with ErrWrongType if it exists under a
// different kind. A missing key is reported as (nil, false, nil): §4.2
// says absence is compatible with any shape.
func (s *Store) typed(key string, kind Kind) (*value, bool, error) {
	v, ok := s.lookup(key)
	if !ok {
		return nil, false, nil
	}
	if v.kind != kind {
		return nil, false, ErrWrongType
	}
	return v, true, nil
}

// deleteIfEmpty removes key from the keyspace (and its expiry) if its
// container is now empty, per §3's no-empty-container invariant.
func (s *Store) deleteIfEmpty(key string, v *value) {
	if v.empty() {
		delete(s.data, key)
		s.expiry.clear(key)
	}
}

// ---- bytes ----

// Set implements set(key, bytes, ttl?): ttlMillis == nil means
// persistent, otherwise it is the number of milliseconds from now
// until expiry.
func (s *Store) Set(key string, val []byte, ttlMillis *int64) {
	s.lock()
	defer s.unlock()

	s.data[key] = newBytesValue(val)
	s.expiry.clear(key)
	if ttlMillis != nil {
		s.expiry.set(key, s.nowMillis()+*ttlMillis)
	}
}

// Get implements get(key).
func (s *Store) Get(key string) ([]byte, bool, error) {
	s.lock()
	defer s.unlock()

	v, ok, err := s.typed(key, KindBytes)
	if err != nil || !ok {
		return nil, false, err
	}
	return v.bytes, true, nil
}

// Del implements del(keys...): returns the count actually removed.
func (s *Store) Del(keys ...string) int {
	s.lock()
	defer s.unlock()

	n := 0
	for _, k := range keys {
		s.expireIfDue(k)
		if _, ok := s.data[k]; ok {
			delete(s.data, k)
			s.expiry.clear(k)
			n++
		}
	}
	return n
}

// Exists implements exists(keys...): duplicates count multiple times.
func (s *Store) Exists(keys ...string) int {
	s.lock()
	defer s.unlock()

	n := 0
	for _, k := range keys {
		if _, ok := s.lookup(k); ok {
			n++
		}
	}
	return n
}

// PTTL implements ttl_ms(key): milliseconds remaining, -1 persistent,
// -2 absent.
func (s *Store) PTTL(key string) int64 {
	s.lock()
	defer s.unlock()

	if _, ok := s.lookup(key); !ok {
		return -2
	}
	d, ok := s.expiry.peek(key)
	if !ok {
		return -1
	}
	remaining := d - s.nowMillis()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expire implements EXPIRE/PEXPIRE: installs a deadline on an already
// existing key without touching its value. Returns false if the key
// is absent.
func (s *Store) Expire(key string, ttlMillis int64) bool {
	s.lock()
	defer s.unlock()

	if _, ok := s.lookup(key); !ok {
		return false
	}
	s.expiry.set(key, s.nowMillis()+ttlMillis)
	return true
}

// Persist implements PERSIST: clears key's deadline if one exists.
func (s *Store) Persist(key string) bool {
	s.lock()
	defer s.unlock()

	if _, ok := s.lookup(key); !ok {
		return false
	}
	_, hadDeadline := s.expiry.peek(key)
	s.expiry.clear(key)
	return hadDeadline
}

// Type implements TYPE: the name of the value's kind, or "none".
func (s *Store) Type(key string) Kind {
	s.lock()
	defer s.unlock()

	v, ok := s.lookup(key)
	if !ok {
		return KindNone
	}
	return v.kind
}

// DBSize implements DBSIZE: the count of currently live top-level keys.
func (s *Store) DBSize() int {
	s.lock()
	defer s.unlock()

	now := s.nowMillis()
	n := 0
	for k := range s.data {
		if s.expiry.check(k, now) {
			continue
		}
		n++
	}
	return n
}

// FlushAll implements FLUSHALL: clears the entire keyspace.
func (s *Store) FlushAll() {
	s.lock()
	defer s.unlock()

	s.data = make(map[string]*value)
	s.expiry = newExpiryIndex()
}

// ---- deque ----

func normalizeIndex(i, n int) int {
	if i < 0 {
		i = n + i
	}
	return i
}

// clampRange implements the Range index semantics shared by Deque and
// Ranked: negative indices count from the end, out-of-range indices
// clamp, and start > stop collapses to an empty result.
func clampRange(start, stop, n int) (int, int) {
	start = normalizeIndex(start, n)
	stop = normalizeIndex(stop, n)
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return 0, -1
	}
	return start, stop
}

func (s *Store) dequeFindOrCreate(key string) (*value, error) {
	v, ok, err := s.typed(key, KindDeque)
	if err != nil {
		return nil, err
	}
	if !ok {
		v = newDequeValue()
		s.data[key] = v
		s.expiry.clear(key)
	}
	return v, nil
}

// PushFront implements push_front(key, values...).
func (s *Store) PushFront(key string, values ...[]byte) (int, error) {
	s.lock()
	defer s.unlock()

	v, err := s.dequeFindOrCreate(key)
	if err != nil {
		return 0, err
	}
	for _, val := range values {
		v.deque = append([][]byte{append([]byte(nil), val...)}, v.deque...)
	}
	return len(v.deque), nil
}

// PushBack implements push_back(key, values...).
func (s *Store) PushBack(key string, values ...[]byte) (int, error) {
	s.lock()
	defer s.unlock()

	v, err := s.dequeFindOrCreate(key)
	if err != nil {
		return 0, err
	}
	for _, val := range values {
		v.deque = append(v.deque, append([]byte(nil), val...))
	}
	return len(v.deque), nil
}

// PopFront implements pop_front(key), optionally popping up to count
// items, stopping early if the deque empties first.
func (s *Store) PopFront(key string, count int) ([][]byte, error) {
	s.lock()
	defer s.unlock()

	v, ok, err := s.typed(key, KindDeque)
	if err != nil || !ok {
		return nil, err
	}

	n := count
	if n > len(v.deque) {
		n = len(v.deque)
	}
	popped := v.deque[:n]
	v.deque = v.deque[n:]
	s.deleteIfEmpty(key, v)
	return popped, nil
}

// PopBack implements pop_back(key).
func (s *Store) PopBack(key string, count int) ([][]byte, error) {
	s.lock()
	defer s.unlock()

	v, ok, err := s.typed(key, KindDeque)
	if err != nil || !ok {
		return nil, err
	}

	n := count
	if n > len(v.deque) {
		n = len(v.deque)
	}
	tail := len(v.deque) - n
	popped := make([][]byte, n)
	for i := 0; i < n; i++ {
		popped[i] = v.deque[len(v.deque)-1-i]
	}
	v.deque = v.deque[:tail]
	s.deleteIfEmpty(key, v)
	return popped, nil
}

// DequeRange implements Deque range(key, start, stop).
func (s *Store) DequeRange(key string, start, stop int) ([][]byte, error) {
	s.lock()
	defer s.unlock()

	v, ok, err := s.typed(key, KindDeque)
	if err != nil || !ok {
		return nil, err
	}

	a, b := clampRange(start, stop, len(v.deque))
	if a > b {
		return nil, nil
	}
	out := make([][]byte, b-a+1)
	copy(out, v.deque[a:b+1])
	return out, nil
}

// DequeLen implements LLEN.
func (s *Store) DequeLen(key string) (int, error) {
	s.lock()
	defer s.unlock()

	v, ok, err := s.typed(key, KindDeque)
	if err != nil || !ok {
		return 0, err
	}
	return len(v.deque), nil
}

// ---- set ----

// SAdd implements add(key, members...): returns the count newly inserted.
func (s *Store) SAdd(key string, members ...[]byte) (int, error) {
	s.lock()
	defer s.unlock()

	v, ok, err := s.typed(key, KindSet)
	if err != nil {
		return 0, err
	}
	if !ok {
		v = newSetValue()
		s.data[key] = v
		s.expiry.clear(key)
	}

	n := 0
	for _, m := range members {
		k := string(m)
		if _, exists := v.set[k]; !exists {
			v.set[k] = struct{}{}
			n++
		}
	}
	return n, nil
}

// SRem implements remove(key, members...).
func (s *Store) SRem(key string, members ...[]byte) (int, error) {
	s.lock()
	defer s.unlock()

	v, ok, err := s.typed(key, KindSet)
	if err != nil || !ok {
		return 0, err
	}

	n := 0
	for _, m := range members {
		k := string(m)
		if _, exists := v.set[k]; exists {
			delete(v.set, k)
			n++
		}
	}
	s.deleteIfEmpty(key, v)
	return n, nil
}

// SMembers implements members(key).
func (s *Store) SMembers(key string) ([][]byte, error) {
	s.lock()
	defer s.unlock()

	v, ok, err := s.typed(key, KindSet)
	if err != nil || !ok {
		return nil, err
	}

	out := make([][]byte, 0, len(v.set))
	for m := range v.set {
		out = append(out, []byte(m))
	}
	return out, nil
}

// ---- hash ----

// HSet implements set_fields(key, (field,value)...): returns the count
// of fields newly inserted.
func (s *Store) HSet(key string, fields [][2][]byte) (int, error) {
	s.lock()
	defer s.unlock()

	v, ok, err := s.typed(key, KindHash)
	if err != nil {
		return 0, err
	}
	if !ok {
		v = newHashValue()
		s.data[key] = v
		s.expiry.clear(key)
	}

	n := 0
	for _, fv := range fields {
		field, val := string(fv[0]), fv[1]
		if _, exists := v.hash[field]; !exists {
			n++
		}
		v.hash[field] = append([]byte(nil), val...)
	}
	return n, nil
}

// HGet implements get_field(key, field).
func (s *Store) HGet(key string, field []byte) ([]byte, bool, error) {
	s.lock()
	defer s.unlock()

	v, ok, err := s.typed(key, KindHash)
	if err != nil || !ok {
		return nil, false, err
	}

	val, exists := v.hash[string(field)]
	return val, exists, nil
}

// HGetAll implements get_all(key).
func (s *Store) HGetAll(key string) ([][2][]byte, error) {
	s.lock()
	defer s.unlock()

	v, ok, err := s.typed(key, KindHash)
	if err != nil || !ok {
		return nil, err
	}

	out := make([][2][]byte, 0, len(v.hash))
	for f, val := range v.hash {
		out = append(out, [2][]byte{[]byte(f), val})
	}
	return out, nil
}

// ---- zset ----

// ErrNotFinite rejects a non-finite (NaN/Inf) score at ingest, per §4.2.
var ErrNotFinite = errors.New("ERR score is not a finite number")

func (s *Store) zsetFindOrCreate(key string) (*value, error) {
	v, ok, err := s.typed(key, KindZSet)
	if err != nil {
		return nil, err
	}
	if !ok {
		v = newZSetValue()
		s.data[key] = v
		s.expiry.clear(key)
	}
	return v, nil
}

// ZAdd implements add(key, (member, score)...): returns the count of
// newly inserted members (updates do not count).
func (s *Store) ZAdd(key string, entries []ZEntry) (int, error) {
	for _, e := range entries {
		if math.IsNaN(e.Score) || math.IsInf(e.Score, 0) {
			return 0, ErrNotFinite
		}
	}

	s.lock()
	defer s.unlock()

	v, err := s.zsetFindOrCreate(key)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, e := range entries {
		if v.zsetUpsert(e.Member, e.Score) {
			n++
		}
	}
	return n, nil
}

// ZIncrBy implements ZINCRBY: adds increment to member's score
// (treating a missing member as score 0) and returns the new score.
func (s *Store) ZIncrBy(key string, member []byte, increment float64) (float64, error) {
	s.lock()
	defer s.unlock()

	v, err := s.zsetFindOrCreate(key)
	if err != nil {
		return 0, err
	}

	current := 0.0
	if idx, ok := v.zmembers[string(member)]; ok {
		current = v.zorder[idx].score
	}
	newScore := current + increment
	if math.IsNaN(newScore) || math.IsInf(newScore, 0) {
		s.deleteIfEmpty(key, v)
		return 0, ErrNotFinite
	}
	v.zsetUpsert(member, newScore)
	return newScore, nil
}

// ZScore implements score(key, member).
func (s *Store) ZScore(key string, member []byte) (float64, bool, error) {
	s.lock()
	defer s.unlock()

	v, ok, err := s.typed(key, KindZSet)
	if err != nil || !ok {
		return 0, false, err
	}

	idx, exists := v.zmembers[string(member)]
	if !exists {
		return 0, false, nil
	}
	return v.zorder[idx].score, true, nil
}

// ZRank implements rank(key, member): zero-based position in sort order.
func (s *Store) ZRank(key string, member []byte) (int, bool, error) {
	s.lock()
	defer s.unlock()

	v, ok, err := s.typed(key, KindZSet)
	if err != nil || !ok {
		return 0, false, err
	}

	idx, exists := v.zmembers[string(member)]
	return idx, exists, nil
}

// ZCard implements cardinality(key).
func (s *Store) ZCard(key string) (int, error) {
	s.lock()
	defer s.unlock()

	v, ok, err := s.typed(key, KindZSet)
	if err != nil || !ok {
		return 0, err
	}
	return len(v.zorder), nil
}

// ZRem implements remove(key, members...).
func (s *Store) ZRem(key string, members ...[]byte) (int, error) {
	s.lock()
	defer s.unlock()

	v, ok, err := s.typed(key, KindZSet)
	if err != nil || !ok {
		return 0, err
	}

	n := 0
	for _, m := range members {
		if v.zsetRemove(m) {
			n++
		}
	}
	s.deleteIfEmpty(key, v)
	return n, nil
}

// ZCount implements count(key, min, max): members with min <= score <= max.
func (s *Store) ZCount(key string, min, max float64) (int, error) {
	s.lock()
	defer s.unlock()

	v, ok, err := s.typed(key, KindZSet)
	if err != nil || !ok {
		return 0, err
	}

	n := 0
	for _, e := range v.zorder {
		if e.score >= min && e.score <= max {
			n++
		}
	}
	return n, nil
}

// ZRange implements range(key, start, stop, with_scores?): the Ranked
// counterpart of Deque's range, same index semantics.
func (s *Store) ZRange(key string, start, stop int) ([]ZEntry, error) {
	s.lock()
	defer s.unlock()

	v, ok, err := s.typed(key, KindZSet)
	if err != nil || !ok {
		return nil, err
	}

	a, b := clampRange(start, stop, len(v.zorder))
	if a > b {
		return nil, nil
	}
	out := make([]ZEntry, 0, b-a+1)
	for i := a; i <= b; i++ {
		out = append(out, ZEntry{Member: v.zorder[i].member, Score: v.zorder[i].score})
	}
	return out, nil
}

// ZRangeByScore implements the supplemented ZRANGEBYSCORE: members
// with min <= score <= max, in ascending sort order.
func (s *Store) ZRangeByScore(key string, min, max float64) ([]ZEntry, error) {
	s.lock()
	defer s.unlock()

	v, ok, err := s.typed(key, KindZSet)
	if err != nil || !ok {
		return nil, err
	}

	out := make([]ZEntry, 0)
	for _, e := range v.zorder {
		if e.score >= min && e.score <= max {
			out = append(out, ZEntry{Member: e.member, Score: e.score})
		}
	}
	return out, nil
}

// ---- eviction ----

// EvictExpired implements the periodic-eviction path of §4.2: it
// drains the expiry index and deletes each returned key from the
// keyspace, returning the count evicted.
func (s *Store) EvictExpired() int {
	s.lock()
	defer s.unlock()

	keys := s.expiry.drain(s.nowMillis())
	for _, k := range keys {
		delete(s.data, k)
	}
	return len(keys)
}

// sortedKeys is a small test/debug helper; not part of the command surface.
func (s *Store) sortedKeys() []string {
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
