package redistest

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/tidwall/match"
)

type kind int

const (
	kindString kind = iota
	kindHash
	kindList
	kindSet
	kindZSet
)

func (k kind) String() string {
	return [...]string{"string", "hash", "list", "set", "zset"}[k]
}

type value struct {
	kind kind
	str  []byte
	hash *linkedhashmap.Map // field -> []byte
	list [][]byte
	set  map[string]struct{}
	zset map[string]float64
}

func newValue(k kind) *value {
	v := &value{kind: k}
	switch k {
	case kindHash:
		v.hash = linkedhashmap.New()
	case kindSet:
		v.set = map[string]struct{}{}
	case kindZSet:
		v.zset = map[string]float64{}
	case kindString, kindList:
	}
	return v
}

func (s *Server) lookup(key []byte) (*value, bool) {
	v, ok := s.keys.Get(string(key))
	if !ok {
		return nil, false
	}
	return v.(*value), true //nolint:forcetypeassert
}

// load returns the value at key, creating it with kind k when create is set.
// wrong is true when the key holds another type.
func (s *Server) load(key []byte, k kind, create bool) (v *value, wrong bool) {
	v, ok := s.lookup(key)
	switch {
	case ok && v.kind != k:
		return nil, true
	case ok:
		return v, false
	case create:
		v = newValue(k)
		s.keys.Put(string(key), v)
		return v, false
	default:
		return nil, false
	}
}

func (s *Server) dropIfEmpty(key []byte, v *value) {
	empty := false
	switch v.kind {
	case kindList:
		empty = len(v.list) == 0
	case kindHash:
		empty = v.hash.Empty()
	case kindSet:
		empty = len(v.set) == 0
	case kindZSet:
		empty = len(v.zset) == 0
	case kindString:
	}
	if empty {
		s.keys.Remove(string(key))
	}
}

func (s *Server) ping(args [][]byte) result {
	if len(args) > 1 {
		return bulkResult(args[1])
	}
	return result{typ: resultString, str: "PONG"}
}

func (s *Server) dbsize(_ [][]byte) result {
	return intResult(int64(s.keys.Size()))
}

func (s *Server) get(args [][]byte) result {
	v, wrong := s.load(args[1], kindString, false)
	if wrong {
		return errResult(errWrongType)
	}
	if v == nil {
		return result{typ: resultNil}
	}
	return bulkResult(v.str)
}

// set ignores expiry options; the server has no clock.
func (s *Server) set(args [][]byte) result {
	v := newValue(kindString)
	v.str = args[2]
	s.keys.Put(string(args[1]), v)
	return okResult()
}

func (s *Server) mget(args [][]byte) result {
	out := make([][]byte, 0, len(args)-1)
	for _, k := range args[1:] {
		v, ok := s.lookup(k)
		if !ok || v.kind != kindString {
			out = append(out, nil)
			continue
		}
		out = append(out, v.str)
	}
	return bulkArray(out)
}

func (s *Server) mset(args [][]byte) result {
	if len(args)%2 != 1 {
		return errResult("ERR wrong number of arguments for 'mset' command")
	}
	for i := 1; i < len(args); i += 2 {
		v := newValue(kindString)
		v.str = args[i+1]
		s.keys.Put(string(args[i]), v)
	}
	return okResult()
}

func (s *Server) del(args [][]byte) result {
	var n int64
	for _, k := range args[1:] {
		if _, ok := s.keys.Get(string(k)); ok {
			s.keys.Remove(string(k))
			n++
		}
	}
	return intResult(n)
}

func (s *Server) exists(args [][]byte) result {
	var n int64
	for _, k := range args[1:] {
		if _, ok := s.keys.Get(string(k)); ok {
			n++
		}
	}
	return intResult(n)
}

func (s *Server) typ(args [][]byte) result {
	v, ok := s.lookup(args[1])
	if !ok {
		return result{typ: resultString, str: "none"}
	}
	return result{typ: resultString, str: v.kind.String()}
}

func (s *Server) incr(args [][]byte) result {
	v, wrong := s.load(args[1], kindString, true)
	if wrong {
		return errResult(errWrongType)
	}
	n := 0
	if len(v.str) > 0 {
		var ok bool
		if n, ok = parseInt(v.str); !ok {
			return errResult(errNotInt)
		}
	}
	n++
	v.str = []byte(strconv.Itoa(n))
	return intResult(int64(n))
}

// scan walks the sorted keyspace. A cursor resumes after the last key the
// previous page visited.
func (s *Server) scan(args [][]byte) result {
	cursor, ok := parseInt(args[1])
	if !ok || cursor < 0 {
		return errResult("ERR invalid cursor")
	}
	pattern, count := "*", 10
	for i := 2; i < len(args); i += 2 {
		if i+1 >= len(args) {
			return errResult(errSyntax)
		}
		switch strings.ToUpper(string(args[i])) {
		case "MATCH":
			pattern = string(args[i+1])
		case "COUNT":
			if count, ok = parseInt(args[i+1]); !ok || count < 1 {
				return errResult(errSyntax)
			}
		default:
			return errResult(errSyntax)
		}
	}

	var after string
	if cursor != 0 {
		if after, ok = s.cursors[cursor]; !ok {
			return errResult("ERR invalid cursor")
		}
		delete(s.cursors, cursor)
	}

	var (
		found [][]byte
		last  string
		seen  int
		more  bool
	)
	it := s.keys.Iterator()
	for it.Next() {
		k := it.Key().(string) //nolint:forcetypeassert
		if cursor != 0 && k <= after {
			continue
		}
		if seen == count {
			more = true
			break
		}
		seen++
		last = k
		if match.Match(k, pattern) {
			found = append(found, []byte(k))
		}
	}

	next := 0
	if more {
		s.nextCursor++
		next = s.nextCursor
		s.cursors[next] = last
	}
	return arrayResult([]result{
		bulkResult([]byte(strconv.Itoa(next))),
		bulkArray(found),
	})
}

func (s *Server) hset(args [][]byte) result {
	if len(args)%2 != 0 {
		return errResult("ERR wrong number of arguments for 'hset' command")
	}
	v, wrong := s.load(args[1], kindHash, true)
	if wrong {
		return errResult(errWrongType)
	}
	var added int64
	for i := 2; i < len(args); i += 2 {
		field := string(args[i])
		if _, ok := v.hash.Get(field); !ok {
			added++
		}
		v.hash.Put(field, args[i+1])
	}
	return intResult(added)
}

func (s *Server) hmset(args [][]byte) result {
	res := s.hset(args)
	if res.typ == resultError {
		return res
	}
	return okResult()
}

func (s *Server) hget(args [][]byte) result {
	v, wrong := s.load(args[1], kindHash, false)
	if wrong {
		return errResult(errWrongType)
	}
	if v == nil {
		return result{typ: resultNil}
	}
	f, ok := v.hash.Get(string(args[2]))
	if !ok {
		return result{typ: resultNil}
	}
	return bulkResult(f.([]byte)) //nolint:forcetypeassert
}

func (s *Server) hmget(args [][]byte) result {
	v, wrong := s.load(args[1], kindHash, false)
	if wrong {
		return errResult(errWrongType)
	}
	out := make([][]byte, len(args)-2)
	if v != nil {
		for i, field := range args[2:] {
			if f, ok := v.hash.Get(string(field)); ok {
				out[i] = f.([]byte) //nolint:forcetypeassert
			}
		}
	}
	return bulkArray(out)
}

func (s *Server) hgetall(args [][]byte) result {
	v, wrong := s.load(args[1], kindHash, false)
	if wrong {
		return errResult(errWrongType)
	}
	if v == nil {
		return mapResult(nil)
	}
	out := make([][]byte, 0, v.hash.Size()*2)
	it := v.hash.Iterator()
	for it.Next() {
		out = append(out, []byte(it.Key().(string)), it.Value().([]byte)) //nolint:forcetypeassert
	}
	return mapResult(bulkArray(out).arr)
}

func (s *Server) hvals(args [][]byte) result {
	v, wrong := s.load(args[1], kindHash, false)
	if wrong {
		return errResult(errWrongType)
	}
	if v == nil {
		return arrayResult([]result{})
	}
	out := make([][]byte, 0, v.hash.Size())
	it := v.hash.Iterator()
	for it.Next() {
		out = append(out, it.Value().([]byte)) //nolint:forcetypeassert
	}
	return bulkArray(out)
}

func (s *Server) lpush(args [][]byte) result {
	v, wrong := s.load(args[1], kindList, true)
	if wrong {
		return errResult(errWrongType)
	}
	for _, e := range args[2:] {
		v.list = append([][]byte{e}, v.list...)
	}
	return intResult(int64(len(v.list)))
}

func (s *Server) rpush(args [][]byte) result {
	v, wrong := s.load(args[1], kindList, true)
	if wrong {
		return errResult(errWrongType)
	}
	v.list = append(v.list, args[2:]...)
	return intResult(int64(len(v.list)))
}

func (s *Server) lpop(args [][]byte) result {
	v, wrong := s.load(args[1], kindList, false)
	if wrong {
		return errResult(errWrongType)
	}
	if len(args) == 2 {
		if v == nil {
			return result{typ: resultNil}
		}
		head := v.list[0]
		v.list = v.list[1:]
		s.dropIfEmpty(args[1], v)
		return bulkResult(head)
	}

	n, ok := parseInt(args[2])
	if !ok || n < 0 {
		return errResult(errNotInt)
	}
	if v == nil {
		return result{typ: resultNil}
	}
	if n > len(v.list) {
		n = len(v.list)
	}
	out := v.list[:n]
	v.list = v.list[n:]
	s.dropIfEmpty(args[1], v)
	return bulkArray(out)
}

func (s *Server) lrange(args [][]byte) result {
	v, wrong := s.load(args[1], kindList, false)
	if wrong {
		return errResult(errWrongType)
	}
	start, ok1 := parseInt(args[2])
	end, ok2 := parseInt(args[3])
	if !ok1 || !ok2 {
		return errResult(errNotInt)
	}
	if v == nil {
		return arrayResult([]result{})
	}
	st, e := clampRange(start, end, len(v.list))
	if e < st {
		return arrayResult([]result{})
	}
	return bulkArray(v.list[st : e+1])
}

func (s *Server) sadd(args [][]byte) result {
	v, wrong := s.load(args[1], kindSet, true)
	if wrong {
		return errResult(errWrongType)
	}
	var added int64
	for _, m := range args[2:] {
		if _, ok := v.set[string(m)]; !ok {
			v.set[string(m)] = struct{}{}
			added++
		}
	}
	return intResult(added)
}

// smembers replies in sorted order to keep tests deterministic.
func (s *Server) smembers(args [][]byte) result {
	v, wrong := s.load(args[1], kindSet, false)
	if wrong {
		return errResult(errWrongType)
	}
	if v == nil {
		return arrayResult([]result{})
	}
	members := make([]string, 0, len(v.set))
	for m := range v.set {
		members = append(members, m)
	}
	sort.Strings(members)
	out := make([][]byte, len(members))
	for i, m := range members {
		out[i] = []byte(m)
	}
	return bulkArray(out)
}

func (s *Server) zadd(args [][]byte) result {
	if len(args)%2 != 0 {
		return errResult(errSyntax)
	}
	scores := make([]float64, 0, (len(args)-2)/2)
	for i := 2; i < len(args); i += 2 {
		f, ok := parseFloat(args[i])
		if !ok {
			return errResult(errNotFloat)
		}
		scores = append(scores, f)
	}

	v, wrong := s.load(args[1], kindZSet, true)
	if wrong {
		return errResult(errWrongType)
	}
	var added int64
	for i, score := range scores {
		member := string(args[3+2*i])
		if _, ok := v.zset[member]; !ok {
			added++
		}
		v.zset[member] = score
	}
	return intResult(added)
}

func (s *Server) zrange(args [][]byte) result {
	withScores := false
	for _, opt := range args[4:] {
		if !bytes.EqualFold(opt, []byte("WITHSCORES")) {
			return errResult(errSyntax)
		}
		withScores = true
	}
	v, wrong := s.load(args[1], kindZSet, false)
	if wrong {
		return errResult(errWrongType)
	}
	start, ok1 := parseInt(args[2])
	end, ok2 := parseInt(args[3])
	if !ok1 || !ok2 {
		return errResult(errNotInt)
	}
	if v == nil {
		return arrayResult([]result{})
	}

	members := make([]string, 0, len(v.zset))
	for m := range v.zset {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		a, b := v.zset[members[i]], v.zset[members[j]]
		if a != b {
			return a < b
		}
		return members[i] < members[j]
	})

	st, e := clampRange(start, end, len(members))
	if e < st {
		return arrayResult([]result{})
	}
	out := make([]result, 0, e+1-st)
	for _, m := range members[st : e+1] {
		if withScores {
			out = append(out, arrayResult([]result{bulkResult([]byte(m)), doubleResult(v.zset[m])}))
			continue
		}
		out = append(out, bulkResult([]byte(m)))
	}
	if withScores {
		return pairsResult(out)
	}
	return arrayResult(out)
}

func (s *Server) zscore(args [][]byte) result {
	v, wrong := s.load(args[1], kindZSet, false)
	if wrong {
		return errResult(errWrongType)
	}
	if v == nil {
		return result{typ: resultNil}
	}
	score, ok := v.zset[string(args[2])]
	if !ok {
		return result{typ: resultNil}
	}
	return doubleResult(score)
}
