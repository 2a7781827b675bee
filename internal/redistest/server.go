// Package redistest runs an in-memory server speaking the Redis protocol,
// for tests of code built on go-redis. It keeps strings, hashes, lists, sets
// and sorted sets, enforces WRONGTYPE, and implements MULTI/EXEC/DISCARD with
// EXECABORT on queue-time errors. Connections start in RESP2 and switch to
// RESP3 with HELLO 3, which go-redis v9 sends by default.
package redistest

import (
	"bytes"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/hashicorp/go-hclog"
	"github.com/tidwall/redcon"
	"golang.org/x/sync/errgroup"
)

//nolint:mnd
var argsLen = map[string]int{
	"PING":     -1,
	"DBSIZE":   1,
	"GET":      2,
	"SET":      -3,
	"MGET":     -2,
	"MSET":     -3,
	"DEL":      -2,
	"EXISTS":   -2,
	"INCR":     2,
	"TYPE":     2,
	"SCAN":     -2,
	"HSET":     -4,
	"HMSET":    -4,
	"HGET":     3,
	"HMGET":    -3,
	"HGETALL":  2,
	"HVALS":    2,
	"LPUSH":    -3,
	"RPUSH":    -3,
	"LPOP":     -2,
	"LRANGE":   4,
	"SADD":     -3,
	"SMEMBERS": 2,
	"ZADD":     -4,
	"ZRANGE":   -4,
	"ZSCORE":   3,
	"MULTI":    1,
	"EXEC":     1,
	"DISCARD":  1,
}

type cmdFunc func(args [][]byte) result

type Server struct {
	listen net.Listener
	log    hclog.Logger

	mu   sync.Mutex
	keys *treemap.Map // string -> *value
	// cursors maps a SCAN cursor to the last key it returned, so keys
	// deleted between pages do not shift the walk.
	cursors    map[int]string
	nextCursor int

	route map[string]cmdFunc
	eg    errgroup.Group
}

type connState struct {
	proto   int
	inTxn   bool
	aborted bool
	queue   [][][]byte
}

func NewServer(listen net.Listener) *Server {
	s := &Server{
		listen: listen,
		log: hclog.New(&hclog.LoggerOptions{
			Name:  "redistest",
			Level: hclog.LevelFromString("WARN"),
		}),
		keys:    treemap.NewWithStringComparator(),
		cursors: map[int]string{},
	}

	s.route = map[string]cmdFunc{
		"PING":     s.ping,
		"DBSIZE":   s.dbsize,
		"GET":      s.get,
		"SET":      s.set,
		"MGET":     s.mget,
		"MSET":     s.mset,
		"DEL":      s.del,
		"EXISTS":   s.exists,
		"INCR":     s.incr,
		"TYPE":     s.typ,
		"SCAN":     s.scan,
		"HSET":     s.hset,
		"HMSET":    s.hmset,
		"HGET":     s.hget,
		"HMGET":    s.hmget,
		"HGETALL":  s.hgetall,
		"HVALS":    s.hvals,
		"LPUSH":    s.lpush,
		"RPUSH":    s.rpush,
		"LPOP":     s.lpop,
		"LRANGE":   s.lrange,
		"SADD":     s.sadd,
		"SMEMBERS": s.smembers,
		"ZADD":     s.zadd,
		"ZRANGE":   s.zrange,
		"ZSCORE":   s.zscore,
	}

	return s
}

// Start serves on a loopback port until the test ends.
func Start(tb testing.TB) *Server {
	tb.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("listen: %v", err)
	}
	s := NewServer(l)
	s.eg.Go(s.Run)
	tb.Cleanup(func() {
		s.Stop()
		_ = s.eg.Wait()
	})
	return s
}

func (s *Server) Addr() string {
	return s.listen.Addr().String()
}

func getConnState(conn redcon.Conn) *connState {
	if ctx := conn.Context(); ctx != nil {
		if st, ok := ctx.(*connState); ok {
			return st
		}
	}
	st := &connState{proto: resp2}
	conn.SetContext(st)
	return st
}

func (s *Server) Run() error {
	err := redcon.Serve(s.listen,
		s.handle,
		func(conn redcon.Conn) bool {
			return true
		},
		func(conn redcon.Conn, err error) {
			if err != nil {
				s.log.Debug("connection closed", "addr", conn.RemoteAddr(), "err", err)
			}
		})
	if err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Warn("serve stopped", "err", err)
	}
	return errors.WithStack(err)
}

func (s *Server) Stop() {
	_ = s.listen.Close()
}

func (s *Server) handle(conn redcon.Conn, cmd redcon.Command) {
	state := getConnState(conn)
	name := strings.ToUpper(string(cmd.Args[0]))

	if err := validateCmd(name, cmd.Args); err != "" {
		if state.inTxn {
			state.aborted = true
		}
		conn.WriteError(err)
		return
	}

	switch name {
	case "HELLO":
		s.hello(conn, state, cmd.Args)
		return
	case "MULTI":
		s.multi(conn, state)
		return
	case "EXEC":
		s.exec(conn, state)
		return
	case "DISCARD":
		s.discard(conn, state)
		return
	}

	f, ok := s.route[name]
	if !ok {
		if state.inTxn {
			state.aborted = true
		}
		conn.WriteError("ERR unknown command '" + string(cmd.Args[0]) + "'")
		return
	}

	// redcon reuses the argument buffers once the handler returns
	args := make([][]byte, len(cmd.Args))
	for i, a := range cmd.Args {
		args[i] = bytes.Clone(a)
	}

	if state.inTxn {
		state.queue = append(state.queue, args)
		conn.WriteString("QUEUED")
		return
	}

	s.mu.Lock()
	res := f(args)
	s.mu.Unlock()
	writeResult(conn, res, state.proto)
}

// hello switches the connection between RESP2 and RESP3. AUTH and SETNAME
// options are accepted and ignored.
func (s *Server) hello(conn redcon.Conn, state *connState, args [][]byte) {
	proto := state.proto
	if len(args) > 1 {
		v, ok := parseInt(args[1])
		if !ok {
			conn.WriteError("ERR Protocol version is not an integer or out of range")
			return
		}
		if v != resp2 && v != resp3 {
			conn.WriteError("NOPROTO unsupported protocol version")
			return
		}
		proto = v
	}
	state.proto = proto

	str := func(v string) result { return bulkResult([]byte(v)) }
	writeResult(conn, mapResult([]result{
		str("server"), str("redistest"),
		str("version"), str("7.2.0"),
		str("proto"), intResult(int64(proto)),
		str("id"), intResult(1),
		str("mode"), str("standalone"),
		str("role"), str("master"),
		str("modules"), arrayResult([]result{}),
	}), proto)
}

func validateCmd(name string, args [][]byte) string {
	expected, ok := argsLen[name]
	if !ok {
		return ""
	}
	switch {
	case expected > 0 && len(args) != expected,
		expected < 0 && len(args) < -expected:
		return "ERR wrong number of arguments for '" + strings.ToLower(name) + "' command"
	}
	return ""
}

func (s *Server) multi(conn redcon.Conn, state *connState) {
	if state.inTxn {
		conn.WriteError("ERR MULTI calls can not be nested")
		return
	}
	state.inTxn = true
	state.aborted = false
	state.queue = nil
	conn.WriteString("OK")
}

func (s *Server) discard(conn redcon.Conn, state *connState) {
	if !state.inTxn {
		conn.WriteError("ERR DISCARD without MULTI")
		return
	}
	state.inTxn = false
	state.aborted = false
	state.queue = nil
	conn.WriteString("OK")
}

// exec runs the queue under one lock hold, so no other connection observes a
// partially applied transaction. Errors of single commands are written in
// place and do not stop the others.
func (s *Server) exec(conn redcon.Conn, state *connState) {
	if !state.inTxn {
		conn.WriteError("ERR EXEC without MULTI")
		return
	}
	queue, aborted := state.queue, state.aborted
	state.inTxn = false
	state.aborted = false
	state.queue = nil

	if aborted {
		conn.WriteError("EXECABORT Transaction discarded because of previous errors.")
		return
	}

	s.mu.Lock()
	results := make([]result, 0, len(queue))
	for _, args := range queue {
		results = append(results, s.route[strings.ToUpper(string(args[0]))](args))
	}
	s.mu.Unlock()

	writeResult(conn, arrayResult(results), state.proto)
}
