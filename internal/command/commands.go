// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package command

import (
	"strconv"
	"strings"

	"github.com/rfs-go/rfs-go/internal/protocol"
	"github.com/rfs-go/rfs-go/internal/store"
)

type cmdHandler struct {
	arity func(n int) bool
	run   func(s *store.Store, args [][]byte) result
}

func atLeast(n int) func(int) bool { return func(got int) bool { return got >= n } }
func exactly(n int) func(int) bool { return func(got int) bool { return got == n } }
func between(lo, hi int) func(int) bool {
	return func(got int) bool { return got >= lo && got <= hi }
}

var commandTable map[string]cmdHandler

func init() {
	commandTable = map[string]cmdHandler{
		"PING":    {arity: between(0, 1), run: cmdPing},
		"ECHO":    {arity: exactly(1), run: cmdEcho},
		"SET":     {arity: atLeast(2), run: cmdSet},
		"GET":     {arity: exactly(1), run: cmdGet},
		"DEL":     {arity: atLeast(1), run: cmdDel},
		"EXISTS":  {arity: atLeast(1), run: cmdExists},
		"TTL":     {arity: exactly(1), run: cmdTTL},
		"PTTL":    {arity: exactly(1), run: cmdPTTL},
		"EXPIRE":  {arity: exactly(2), run: cmdExpire},
		"PEXPIRE": {arity: exactly(2), run: cmdPExpire},
		"PERSIST": {arity: exactly(1), run: cmdPersist},
		"TYPE":    {arity: exactly(1), run: cmdType},
		"DBSIZE":  {arity: exactly(0), run: cmdDBSize},
		"FLUSHALL": {arity: exactly(0), run: cmdFlushAll},

		"LPUSH":  {arity: atLeast(2), run: cmdLPush},
		"RPUSH":  {arity: atLeast(2), run: cmdRPush},
		"LPOP":   {arity: between(1, 2), run: cmdLPop},
		"RPOP":   {arity: between(1, 2), run: cmdRPop},
		"LRANGE": {arity: exactly(3), run: cmdLRange},
		"LLEN":   {arity: exactly(1), run: cmdLLen},

		"SADD":     {arity: atLeast(2), run: cmdSAdd},
		"SREM":     {arity: atLeast(2), run: cmdSRem},
		"SMEMBERS": {arity: exactly(1), run: cmdSMembers},

		"HSET":    {arity: func(n int) bool { return n >= 3 && n%2 == 1 }, run: cmdHSet},
		"HGET":    {arity: exactly(2), run: cmdHGet},
		"HGETALL": {arity: exactly(1), run: cmdHGetAll},

		"ZADD":          {arity: func(n int) bool { return n >= 3 && n%2 == 1 }, run: cmdZAdd},
		"ZRANGE":        {arity: between(3, 4), run: cmdZRange},
		"ZRANGEBYSCORE": {arity: between(3, 4), run: cmdZRangeByScore},
		"ZSCORE":        {arity: exactly(2), run: cmdZScore},
		"ZRANK":         {arity: exactly(2), run: cmdZRank},
		"ZCARD":         {arity: exactly(1), run: cmdZCard},
		"ZREM":          {arity: atLeast(2), run: cmdZRem},
		"ZCOUNT":        {arity: exactly(3), run: cmdZCount},
		"ZINCRBY":       {arity: exactly(3), run: cmdZIncrBy},
	}
}

// ---- connection-level ----

func cmdPing(s *store.Store, args [][]byte) result {
	if len(args) == 1 {
		return ok(protocol.BulkString(args[0]))
	}
	return ok(protocol.SimpleString("PONG"))
}

func cmdEcho(s *store.Store, args [][]byte) result {
	return ok(protocol.BulkString(args[0]))
}

// ---- bytes ----

func cmdSet(s *store.Store, args [][]byte) result {
	key, val := string(args[0]), args[1]
	rest := args[2:]

	var ttlMillis *int64
	var canonicalTTL []byte // the re-encoded "PX <ms>" form for the log

	if len(rest) > 0 {
		if len(rest) != 2 {
			return ok(protocol.Error("ERR syntax error"))
		}
		flag := strings.ToUpper(string(rest[0]))
		n, err := parseInt(rest[1])
		if err != nil {
			return ok(protocol.Error(err.Error()))
		}

		var ms int64
		switch flag {
		case "EX":
			ms = n * 1000
		case "PX":
			ms = n
		default:
			return ok(protocol.Error("ERR syntax error"))
		}
		if ms <= 0 {
			return ok(protocol.Error("ERR invalid expire time in 'set' command"))
		}
		ttlMillis = &ms
		canonicalTTL = []byte(strconv.FormatInt(ms, 10))
	}

	s.Set(key, val, ttlMillis)

	entry := [][]byte{args[0], val}
	if canonicalTTL != nil {
		entry = append(entry, []byte("PX"), canonicalTTL)
	}
	return okLogged(protocol.SimpleString("OK"), entry)
}

func cmdGet(s *store.Store, args [][]byte) result {
	v, found, err := s.Get(string(args[0]))
	if err != nil {
		return ok(replyFromErr(err))
	}
	if !found {
		return ok(protocol.NullBulkString())
	}
	return ok(protocol.BulkString(v))
}

func cmdDel(s *store.Store, args [][]byte) result {
	keys := toStrings(args)
	n := s.Del(keys...)
	if n == 0 {
		return ok(protocol.Integer(0))
	}
	return okLogged(protocol.Integer(int64(n)), args)
}

func cmdExists(s *store.Store, args [][]byte) result {
	n := s.Exists(toStrings(args)...)
	return ok(protocol.Integer(int64(n)))
}

func cmdTTL(s *store.Store, args [][]byte) result {
	ms := s.PTTL(string(args[0]))
	if ms < 0 {
		return ok(protocol.Integer(ms))
	}
	return ok(protocol.Integer((ms + 999) / 1000))
}

func cmdPTTL(s *store.Store, args [][]byte) result {
	return ok(protocol.Integer(s.PTTL(string(args[0]))))
}

func cmdExpire(s *store.Store, args [][]byte) result {
	secs, err := parseInt(args[1])
	if err != nil {
		return ok(protocol.Error(err.Error()))
	}
	if secs <= 0 {
		return ok(protocol.Error("ERR invalid expire time in 'expire' command"))
	}
	if !s.Expire(string(args[0]), secs*1000) {
		return ok(protocol.Integer(0))
	}
	return okLogged(protocol.Integer(1), args)
}

func cmdPExpire(s *store.Store, args [][]byte) result {
	ms, err := parseInt(args[1])
	if err != nil {
		return ok(protocol.Error(err.Error()))
	}
	if ms <= 0 {
		return ok(protocol.Error("ERR invalid expire time in 'pexpire' command"))
	}
	if !s.Expire(string(args[0]), ms) {
		return ok(protocol.Integer(0))
	}
	return okLogged(protocol.Integer(1), args)
}

func cmdPersist(s *store.Store, args [][]byte) result {
	if !s.Persist(string(args[0])) {
		return ok(protocol.Integer(0))
	}
	return okLogged(protocol.Integer(1), args)
}

func cmdType(s *store.Store, args [][]byte) result {
	return ok(protocol.SimpleString(s.Type(string(args[0])).String()))
}

func cmdDBSize(s *store.Store, args [][]byte) result {
	return ok(protocol.Integer(int64(s.DBSize())))
}

func cmdFlushAll(s *store.Store, args [][]byte) result {
	s.FlushAll()
	return okLogged(protocol.SimpleString("OK"), nil)
}

// ---- deque ----

func cmdLPush(s *store.Store, args [][]byte) result {
	n, err := s.PushFront(string(args[0]), args[1:]...)
	if err != nil {
		return ok(replyFromErr(err))
	}
	return okLogged(protocol.Integer(int64(n)), args)
}

func cmdRPush(s *store.Store, args [][]byte) result {
	n, err := s.PushBack(string(args[0]), args[1:]...)
	if err != nil {
		return ok(replyFromErr(err))
	}
	return okLogged(protocol.Integer(int64(n)), args)
}

func popArity(args [][]byte) (count int, explicit bool, perr error) {
	if len(args) == 1 {
		return 1, false, nil
	}
	n, err := parseInt(args[1])
	if err != nil {
		return 0, false, err
	}
	if n < 0 {
		return 0, false, errProto("ERR value is out of range, must be positive")
	}
	return int(n), true, nil
}

func cmdLPop(s *store.Store, args [][]byte) result {
	count, explicit, err := popArity(args)
	if err != nil {
		return ok(protocol.Error(err.Error()))
	}
	popped, serr := s.PopFront(string(args[0]), count)
	if serr != nil {
		return ok(replyFromErr(serr))
	}
	return popReply(args[0], popped, explicit, "LPOP")
}

func cmdRPop(s *store.Store, args [][]byte) result {
	count, explicit, err := popArity(args)
	if err != nil {
		return ok(protocol.Error(err.Error()))
	}
	popped, serr := s.PopBack(string(args[0]), count)
	if serr != nil {
		return ok(replyFromErr(serr))
	}
	return popReply(args[0], popped, explicit, "RPOP")
}

// popReply shapes the reply per §4.4 (bare pop returns a single bulk
// or null; pop-with-count returns an array) and logs one entry per
// item actually popped (§4.4's persistence hook), so replay stays
// idempotent without needing to know the original batch shape.
func popReply(key []byte, popped [][]byte, explicit bool, cmdName string) result {
	var r result
	if !explicit {
		if len(popped) == 0 {
			r.reply = protocol.NullBulkString()
		} else {
			r.reply = protocol.BulkString(popped[0])
		}
	} else {
		elems := make([]protocol.Frame, len(popped))
		for i, p := range popped {
			elems[i] = protocol.BulkString(p)
		}
		if len(popped) == 0 {
			r.reply = protocol.NullArray()
		} else {
			r.reply = protocol.Array(elems...)
		}
	}
	for range popped {
		r.log = append(r.log, [][]byte{key})
	}
	return r
}

func cmdLRange(s *store.Store, args [][]byte) result {
	start, err := parseInt(args[1])
	if err != nil {
		return ok(protocol.Error(err.Error()))
	}
	stop, err := parseInt(args[2])
	if err != nil {
		return ok(protocol.Error(err.Error()))
	}
	elems, serr := s.DequeRange(string(args[0]), int(start), int(stop))
	if serr != nil {
		return ok(replyFromErr(serr))
	}
	return ok(bulkArray(elems))
}

func cmdLLen(s *store.Store, args [][]byte) result {
	n, err := s.DequeLen(string(args[0]))
	if err != nil {
		return ok(replyFromErr(err))
	}
	return ok(protocol.Integer(int64(n)))
}

// ---- set ----

func cmdSAdd(s *store.Store, args [][]byte) result {
	n, err := s.SAdd(string(args[0]), args[1:]...)
	if err != nil {
		return ok(replyFromErr(err))
	}
	if n == 0 {
		return ok(protocol.Integer(0))
	}
	return okLogged(protocol.Integer(int64(n)), args)
}

func cmdSRem(s *store.Store, args [][]byte) result {
	n, err := s.SRem(string(args[0]), args[1:]...)
	if err != nil {
		return ok(replyFromErr(err))
	}
	if n == 0 {
		return ok(protocol.Integer(0))
	}
	return okLogged(protocol.Integer(int64(n)), args)
}

func cmdSMembers(s *store.Store, args [][]byte) result {
	members, err := s.SMembers(string(args[0]))
	if err != nil {
		return ok(replyFromErr(err))
	}
	return ok(bulkArray(members))
}

// ---- hash ----

func cmdHSet(s *store.Store, args [][]byte) result {
	pairs := args[1:]
	fields := make([][2][]byte, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		fields = append(fields, [2][]byte{pairs[i], pairs[i+1]})
	}
	n, err := s.HSet(string(args[0]), fields)
	if err != nil {
		return ok(replyFromErr(err))
	}
	return okLogged(protocol.Integer(int64(n)), args)
}

func cmdHGet(s *store.Store, args [][]byte) result {
	v, found, err := s.HGet(string(args[0]), args[1])
	if err != nil {
		return ok(replyFromErr(err))
	}
	if !found {
		return ok(protocol.NullBulkString())
	}
	return ok(protocol.BulkString(v))
}

func cmdHGetAll(s *store.Store, args [][]byte) result {
	pairs, err := s.HGetAll(string(args[0]))
	if err != nil {
		return ok(replyFromErr(err))
	}
	elems := make([]protocol.Frame, 0, len(pairs)*2)
	for _, p := range pairs {
		elems = append(elems, protocol.BulkString(p[0]), protocol.BulkString(p[1]))
	}
	return ok(protocol.Array(elems...))
}

// ---- zset ----

func cmdZAdd(s *store.Store, args [][]byte) result {
	pairs := args[1:]
	entries := make([]store.ZEntry, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		score, err := parseFloat(pairs[i])
		if err != nil {
			return ok(protocol.Error(err.Error()))
		}
		entries = append(entries, store.ZEntry{Member: pairs[i+1], Score: score})
	}
	n, err := s.ZAdd(string(args[0]), entries)
	if err != nil {
		return ok(replyFromErr(err))
	}
	return okLogged(protocol.Integer(int64(n)), args)
}

func cmdZIncrBy(s *store.Store, args [][]byte) result {
	incr, err := parseFloat(args[1])
	if err != nil {
		return ok(protocol.Error(err.Error()))
	}
	newScore, serr := s.ZIncrBy(string(args[0]), args[2], incr)
	if serr != nil {
		return ok(replyFromErr(serr))
	}
	return okLogged(protocol.BulkString(formatScore(newScore)), args)
}

func cmdZScore(s *store.Store, args [][]byte) result {
	score, found, err := s.ZScore(string(args[0]), args[1])
	if err != nil {
		return ok(replyFromErr(err))
	}
	if !found {
		return ok(protocol.NullBulkString())
	}
	return ok(protocol.BulkString(formatScore(score)))
}

func cmdZRank(s *store.Store, args [][]byte) result {
	rank, found, err := s.ZRank(string(args[0]), args[1])
	if err != nil {
		return ok(replyFromErr(err))
	}
	if !found {
		return ok(protocol.NullBulkString())
	}
	return ok(protocol.Integer(int64(rank)))
}

func cmdZCard(s *store.Store, args [][]byte) result {
	n, err := s.ZCard(string(args[0]))
	if err != nil {
		return ok(replyFromErr(err))
	}
	return ok(protocol.Integer(int64(n)))
}

func cmdZRem(s *store.Store, args [][]byte) result {
	n, err := s.ZRem(string(args[0]), args[1:]...)
	if err != nil {
		return ok(replyFromErr(err))
	}
	if n == 0 {
		return ok(protocol.Integer(0))
	}
	return okLogged(protocol.Integer(int64(n)), args)
}

func cmdZCount(s *store.Store, args [][]byte) result {
	min, err := parseFloat(args[1])
	if err != nil {
		return ok(protocol.Error(err.Error()))
	}
	max, err := parseFloat(args[2])
	if err != nil {
		return ok(protocol.Error(err.Error()))
	}
	n, serr := s.ZCount(string(args[0]), min, max)
	if serr != nil {
		return ok(replyFromErr(serr))
	}
	return ok(protocol.Integer(int64(n)))
}

func cmdZRange(s *store.Store, args [][]byte) result {
	start, err := parseInt(args[1])
	if err != nil {
		return ok(protocol.Error(err.Error()))
	}
	stop, err := parseInt(args[2])
	if err != nil {
		return ok(protocol.Error(err.Error()))
	}
	withScores, err := zRangeFlag(args[3:])
	if err != nil {
		return ok(protocol.Error(err.Error()))
	}

	entries, serr := s.ZRange(string(args[0]), int(start), int(stop))
	if serr != nil {
		return ok(replyFromErr(serr))
	}
	return ok(zEntryArray(entries, withScores))
}

func cmdZRangeByScore(s *store.Store, args [][]byte) result {
	min, err := parseFloat(args[1])
	if err != nil {
		return ok(protocol.Error(err.Error()))
	}
	max, err := parseFloat(args[2])
	if err != nil {
		return ok(protocol.Error(err.Error()))
	}
	withScores, err := zRangeFlag(args[3:])
	if err != nil {
		return ok(protocol.Error(err.Error()))
	}

	entries, serr := s.ZRangeByScore(string(args[0]), min, max)
	if serr != nil {
		return ok(replyFromErr(serr))
	}
	return ok(zEntryArray(entries, withScores))
}

func zRangeFlag(rest [][]byte) (bool, error) {
	if len(rest) == 0 {
		return false, nil
	}
	if len(rest) == 1 && strings.ToUpper(string(rest[0])) == "WITHSCORES" {
		return true, nil
	}
	return false, errProto("ERR syntax error")
}

func zEntryArray(entries []store.ZEntry, withScores bool) protocol.Frame {
	var elems []protocol.Frame
	for _, e := range entries {
		elems = append(elems, protocol.BulkString(e.Member))
		if withScores {
			elems = append(elems, protocol.BulkString(formatScore(e.Score)))
		}
	}
	return protocol.Array(elems...)
}

// ---- shared helpers ----

func toStrings(args [][]byte) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = string(a)
	}
	return out
}

func bulkArray(items [][]byte) protocol.Frame {
	elems := make([]protocol.Frame, len(items))
	for i, it := range items {
		elems[i] = protocol.BulkString(it)
	}
	return protocol.Array(elems...)
}

// formatScore renders a score the way ZRANGE ... WITHSCORES does in
// §8's scenario 5: "1", "2.5", "3" — shortest round-tripping decimal,
// no redundant ".0".
func formatScore(f float64) []byte {
	return []byte(strconv.FormatFloat(f, 'g', -1, 64))
}
