package command

import (
	"sort"
	"strings"
)

const withScores = "WITHSCORES"

// specs is pinned to the Redis 7 command grammar. ZADD assumes no NX/XX/GT/
// LT/CH/INCR options precede the first score.
//
//nolint:mnd
var specs = []Spec{
	// keys
	{Name: "del"},
	{Name: "unlink"},
	{Name: "exists"},
	{Name: "expire"},
	{Name: "pexpire"},
	{Name: "expireat"},
	{Name: "persist"},
	{Name: "ttl"},
	{Name: "pttl"},
	{Name: "type"},
	{Name: "rename"},
	{Name: "renamenx"},
	{Name: "keys"},
	{Name: "scan"},
	{Name: "dbsize"},
	{Name: "ping"},

	// strings
	{Name: "get", Parse: ParseScalar},
	{Name: "set", Stringify: []int{2}, Parse: ParseScalar},
	{Name: "setnx", Stringify: []int{2}},
	{Name: "setex", Stringify: []int{3}},
	{Name: "psetex", Stringify: []int{3}},
	{Name: "getset", Stringify: []int{2}, Parse: ParseScalar},
	{Name: "getdel", Parse: ParseScalar},
	{Name: "getex", Parse: ParseScalar},
	{Name: "mget", Parse: ParseList},
	{Name: "mset", Stringify: []int{2}, Variadic: true, Step: 2, ObjectAt: 1, MapAt: 1},
	{Name: "msetnx", Stringify: []int{2}, Variadic: true, Step: 2, ObjectAt: 1, MapAt: 1},
	{Name: "incr"},
	{Name: "incrby"},
	{Name: "incrbyfloat"},
	{Name: "decr"},
	{Name: "decrby"},
	{Name: "strlen"},

	// hashes
	{Name: "hset", Stringify: []int{3}, Variadic: true, Step: 2, ObjectAt: 2, MapAt: 2},
	{Name: "hmset", Stringify: []int{3}, Variadic: true, Step: 2, ObjectAt: 2, MapAt: 2},
	{Name: "hsetnx", Stringify: []int{3}},
	{Name: "hget", Parse: ParseScalar},
	{Name: "hmget", Parse: ParseList},
	{Name: "hgetall", Parse: ParseKeyedMap},
	{Name: "hvals", Parse: ParseList},
	{Name: "hkeys"},
	{Name: "hdel"},
	{Name: "hexists"},
	{Name: "hlen"},
	{Name: "hincrby"},
	{Name: "hincrbyfloat"},
	{Name: "hstrlen"},
	{Name: "hscan"},

	// lists
	{Name: "lpush", Stringify: []int{2}, Variadic: true},
	{Name: "rpush", Stringify: []int{2}, Variadic: true},
	{Name: "lpushx", Stringify: []int{2}, Variadic: true},
	{Name: "rpushx", Stringify: []int{2}, Variadic: true},
	{Name: "lset", Stringify: []int{3}},
	{Name: "linsert", Stringify: []int{3, 4}},
	{Name: "lrem", Stringify: []int{3}},
	{Name: "lpos", Stringify: []int{2}},
	{Name: "lpop", Parse: ParseList},
	{Name: "rpop", Parse: ParseList},
	{Name: "lindex", Parse: ParseScalar},
	{Name: "lrange", Parse: ParseList},
	{Name: "rpoplpush", Parse: ParseScalar},
	{Name: "brpoplpush", Parse: ParseScalar},
	{Name: "lmove", Parse: ParseScalar},
	{Name: "blmove", Parse: ParseScalar},
	{Name: "blpop", Parse: ParseList, ParseOffset: 1, ParseStep: 2},
	{Name: "brpop", Parse: ParseList, ParseOffset: 1, ParseStep: 2},
	{Name: "llen"},
	{Name: "ltrim"},

	// sets
	{Name: "sadd", Stringify: []int{2}, Variadic: true},
	{Name: "srem", Stringify: []int{2}, Variadic: true},
	{Name: "sismember", Stringify: []int{2}},
	{Name: "smismember", Stringify: []int{2}, Variadic: true},
	{Name: "smove", Stringify: []int{3}},
	{Name: "smembers", Parse: ParseList},
	{Name: "spop", Parse: ParseList},
	{Name: "srandmember", Parse: ParseList},
	{Name: "sunion", Parse: ParseList},
	{Name: "sinter", Parse: ParseList},
	{Name: "sdiff", Parse: ParseList},
	{Name: "scard"},
	{Name: "sunionstore"},
	{Name: "sinterstore"},
	{Name: "sdiffstore"},
	{Name: "sscan"},

	// sorted sets
	{Name: "zadd", Stringify: []int{3}, Variadic: true, Step: 2},
	{Name: "zincrby", Stringify: []int{3}},
	{Name: "zrem", Stringify: []int{2}, Variadic: true},
	{Name: "zscore", Stringify: []int{2}},
	{Name: "zmscore", Stringify: []int{2}, Variadic: true},
	{Name: "zrank", Stringify: []int{2}},
	{Name: "zrevrank", Stringify: []int{2}},
	{Name: "zrange", Parse: ParseList, ParseCheck: withScores, AltStep: 2},
	{Name: "zrevrange", Parse: ParseList, ParseCheck: withScores, AltStep: 2},
	{Name: "zrangebyscore", Parse: ParseList, ParseCheck: withScores, AltStep: 2},
	{Name: "zrevrangebyscore", Parse: ParseList, ParseCheck: withScores, AltStep: 2},
	{Name: "zrangebylex", Parse: ParseList},
	{Name: "zrevrangebylex", Parse: ParseList},
	{Name: "zrandmember", Parse: ParseList, ParseCheck: withScores, AltStep: 2},
	{Name: "zpopmin", Parse: ParseList, ParseStep: 2},
	{Name: "zpopmax", Parse: ParseList, ParseStep: 2},
	{Name: "bzpopmin", Parse: ParseList, ParseOffset: 1, ParseStep: 3},
	{Name: "bzpopmax", Parse: ParseList, ParseOffset: 1, ParseStep: 3},
	{Name: "zcard"},
	{Name: "zcount"},
	{Name: "zremrangebyrank"},
	{Name: "zremrangebyscore"},
	{Name: "zscan"},
}

var table = buildTable(specs)

func buildTable(list []Spec) map[string]Spec {
	t := make(map[string]Spec, len(list))
	for _, s := range list {
		if _, ok := t[s.Name]; ok {
			panic("command: duplicate spec for " + s.Name)
		}
		t[s.Name] = s
	}
	return t
}

// Lookup returns the spec registered for name. Names are case-insensitive.
func Lookup(name string) (Spec, bool) {
	s, ok := table[strings.ToLower(name)]
	if !ok {
		return Spec{}, false
	}
	s.Stringify = append([]int(nil), s.Stringify...)
	return s, true
}

// Names returns every command in the table in sorted order.
func Names() []string {
	out := make([]string, 0, len(table))
	for name := range table {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// WireName is the name sent to the server.
func (s Spec) WireName() string {
	return strings.ToUpper(s.Name)
}
