package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"testing"

	"github.com/bootjp/redisjson/codec"
	"github.com/bootjp/redisjson/internal/redistest"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient connects with the go-redis default protocol, RESP3.
func newTestClient(t *testing.T, opts ...Option) (*Client, *redis.Client) {
	t.Helper()
	return newTestClientProto(t, 0, opts...)
}

func newTestClientProto(t *testing.T, proto int, opts ...Option) (*Client, *redis.Client) {
	t.Helper()
	srv := redistest.Start(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr(), Protocol: proto})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, append([]Option{WithLogger(discardLogger())}, opts...)...), rdb
}

// closedAddr returns an address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestClient_SetGetRoundTrip(t *testing.T) {
	t.Parallel()
	c, rdb := newTestClient(t)
	ctx := context.Background()

	profile := map[string]any{"name": "alice", "roles": []any{"admin"}, "age": float64(31)}
	res, err := c.Set(ctx, "user:1", profile)
	require.NoError(t, err)
	require.Equal(t, "OK", res)

	// what reached the server is plain JSON
	raw, err := rdb.Get(ctx, "user:1").Result()
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"alice","roles":["admin"],"age":31}`, raw)

	got, err := c.Get(ctx, "user:1")
	require.NoError(t, err)
	require.Equal(t, profile, got)
}

func TestClient_StringsStayStrings(t *testing.T) {
	t.Parallel()
	c, rdb := newTestClient(t)
	ctx := context.Background()

	_, err := c.Set(ctx, "greeting", "hello")
	require.NoError(t, err)
	require.Equal(t, `"hello"`, rdb.Get(ctx, "greeting").Val())

	// text that looks like an object is stored as a JSON string
	_, err = c.Set(ctx, "doc", `{"a":1}`)
	require.NoError(t, err)
	got, err := c.Get(ctx, "doc")
	require.NoError(t, err)
	require.IsType(t, "", got)

	var s string
	require.NoError(t, c.CallInto(ctx, &s, "get", "doc"))
	require.Equal(t, `{"a":1}`, s)
	require.NoError(t, c.CallInto(ctx, &s, "get", "greeting"))
	require.Equal(t, "hello", s)
}

func TestClient_RawValues(t *testing.T) {
	t.Parallel()
	c, rdb := newTestClient(t)
	ctx := context.Background()

	_, err := c.Set(ctx, "greeting", codec.Raw("hello"))
	require.NoError(t, err)
	require.Equal(t, "hello", rdb.Get(ctx, "greeting").Val())

	got, err := c.Get(ctx, "greeting")
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	_, err = c.Set(ctx, "counter", codec.Raw("41"))
	require.NoError(t, err)
	require.Equal(t, int64(42), rdb.Incr(ctx, "counter").Val())

	// scalar-looking JSON is not decoded
	require.NoError(t, rdb.Set(ctx, "num", "123", 0).Err())
	got, err = c.Get(ctx, "num")
	require.NoError(t, err)
	require.Equal(t, "123", got)
}

func TestClient_GetMissingKey(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)

	got, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestClient_HashObjectExpansion(t *testing.T) {
	t.Parallel()
	c, rdb := newTestClient(t)
	ctx := context.Background()

	n, err := c.HSet(ctx, "h", map[string]any{
		"profile": map[string]any{"city": "Tokyo"},
		"plain":   "text",
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	require.JSONEq(t, `{"city":"Tokyo"}`, rdb.HGet(ctx, "h", "profile").Val())
	require.Equal(t, `"text"`, rdb.HGet(ctx, "h", "plain").Val())

	all, err := c.HGetAll(ctx, "h")
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"profile": map[string]any{"city": "Tokyo"},
		"plain":   `"text"`,
	}, all)

	one, err := c.HGet(ctx, "h", "profile")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"city": "Tokyo"}, one)
}

func TestClient_HashOrderedExpansion(t *testing.T) {
	t.Parallel()
	c, rdb := newTestClient(t)
	ctx := context.Background()

	fields := codec.Pairs{}.Add("z", []any{1}).Add("a", map[string]any{"k": "v"})
	_, err := c.HSet(ctx, "h", fields)
	require.NoError(t, err)

	raw, err := rdb.Do(ctx, "HVALS", "h").Result()
	require.NoError(t, err)
	require.Equal(t, []any{"[1]", `{"k":"v"}`}, raw)

	vals, err := c.Call(ctx, "hvals", "h")
	require.NoError(t, err)
	require.Equal(t, []any{[]any{float64(1)}, map[string]any{"k": "v"}}, vals)
}

func TestClient_HashVariadicPairs(t *testing.T) {
	t.Parallel()
	c, rdb := newTestClient(t)
	ctx := context.Background()

	_, err := c.HSet(ctx, "h", "a", []int{1, 2}, "b", "x", "c", map[string]bool{"ok": true})
	require.NoError(t, err)
	require.Equal(t, "[1,2]", rdb.HGet(ctx, "h", "a").Val())
	require.Equal(t, `"x"`, rdb.HGet(ctx, "h", "b").Val())
	require.Equal(t, `{"ok":true}`, rdb.HGet(ctx, "h", "c").Val())

	got, err := c.Call(ctx, "hmget", "h", "a", "missing", "c")
	require.NoError(t, err)
	require.Equal(t, []any{[]any{float64(1), float64(2)}, nil, map[string]any{"ok": true}}, got)
}

func TestClient_Lists(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)
	ctx := context.Background()

	n, err := c.RPush(ctx, "jobs", map[string]any{"id": float64(1)}, map[string]any{"id": float64(2)}, "raw")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	items, err := c.LRange(ctx, "jobs", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []any{map[string]any{"id": float64(1)}, map[string]any{"id": float64(2)}, `"raw"`}, items)

	head, err := c.Call(ctx, "lpop", "jobs")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"id": float64(1)}, head)

	rest, err := c.Call(ctx, "lpop", "jobs", 5)
	require.NoError(t, err)
	require.Equal(t, []any{map[string]any{"id": float64(2)}, `"raw"`}, rest)
}

func TestClient_SetsAndSortedSets(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.SAdd(ctx, "s", []any{"b"}, []any{"a"})
	require.NoError(t, err)
	members, err := c.SMembers(ctx, "s")
	require.NoError(t, err)
	require.Equal(t, []any{[]any{"a"}, []any{"b"}}, members)

	_, err = c.ZAdd(ctx, "z", 2, map[string]any{"n": "two"}, 1, map[string]any{"n": "one"})
	require.NoError(t, err)

	plain, err := c.ZRange(ctx, "z", 0, -1, false)
	require.NoError(t, err)
	require.Equal(t, []any{map[string]any{"n": "one"}, map[string]any{"n": "two"}}, plain)

	// RESP3 pairs each member with its score
	scored, err := c.ZRange(ctx, "z", 0, -1, true)
	require.NoError(t, err)
	require.Equal(t, []any{
		[]any{map[string]any{"n": "one"}, float64(1)},
		[]any{map[string]any{"n": "two"}, float64(2)},
	}, scored)

	score, err := c.Call(ctx, "zscore", "z", map[string]any{"n": "two"})
	require.NoError(t, err)
	require.InDelta(t, 2, score, 0)
}

func TestClient_SortedSetsRESP2(t *testing.T) {
	t.Parallel()
	c, _ := newTestClientProto(t, 2)
	ctx := context.Background()

	_, err := c.ZAdd(ctx, "z", 2, map[string]any{"n": "two"}, 1, map[string]any{"n": "one"})
	require.NoError(t, err)

	scored, err := c.ZRange(ctx, "z", 0, -1, true)
	require.NoError(t, err)
	require.Equal(t, []any{map[string]any{"n": "one"}, "1", map[string]any{"n": "two"}, "2"}, scored)

	all, err := c.HGetAll(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, all)
}

// replyConn answers every command with the same reply.
type replyConn struct {
	reply any
	err   error
	argv  []any
}

func (r *replyConn) Do(_ context.Context, args ...any) *redis.Cmd {
	r.argv = args
	return redis.NewCmdResult(r.reply, r.err)
}

func (r *replyConn) TxPipeline() redis.Pipeliner { return nil }

func TestClient_NestedScoreReplies(t *testing.T) {
	t.Parallel()

	conn := &replyConn{reply: []any{
		[]any{`{"a":1}`, float64(1)},
		[]any{`{"b":2}`, float64(2)},
	}}
	c := New(conn, WithLogger(discardLogger()))
	ctx := context.Background()

	got, err := c.ZRange(ctx, "z", 0, -1, true)
	require.NoError(t, err)
	require.Equal(t, []any{
		[]any{map[string]any{"a": float64(1)}, float64(1)},
		[]any{map[string]any{"b": float64(2)}, float64(2)},
	}, got)
	require.Equal(t, []any{"ZRANGE", "z", int64(0), int64(-1), "WITHSCORES"}, conn.argv)

	got, err = asSlice(c.Call(ctx, "zpopmin", "z", 2))
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": float64(1)}, got[0].([]any)[0])
}

func TestClient_UnknownCommand(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)

	_, err := c.Call(context.Background(), "eval", "return 1", 0)
	require.ErrorIs(t, err, ErrUnknownCommand)

	_, ok := c.Handler("EVAL")
	require.False(t, ok)
	_, ok = c.Handler("HSET")
	require.True(t, ok)
}

func TestClient_SerializationErrorBeforeIO(t *testing.T) {
	t.Parallel()
	c, rdb := newTestClient(t)
	ctx := context.Background()

	_, err := c.RPush(ctx, "l", "ok", make(chan int))
	require.Error(t, err)

	var se *SerializationError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "rpush", se.Command)
	require.Equal(t, 3, se.Position)

	require.Equal(t, int64(0), rdb.Exists(ctx, "l").Val())
}

func TestClient_TransportError(t *testing.T) {
	t.Parallel()

	rdb := redis.NewClient(&redis.Options{Addr: closedAddr(t), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	c := New(rdb, WithLogger(discardLogger()))

	_, err := c.Get(context.Background(), "k")
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, "get", te.Command)
	var ne net.Error
	require.True(t, errors.As(err, &ne))
}

func TestClient_ServerErrorIsTransportError(t *testing.T) {
	t.Parallel()
	c, rdb := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, rdb.Set(ctx, "str", "v", 0).Err())
	_, err := c.HSet(ctx, "str", "f", "v")

	var te *TransportError
	require.True(t, errors.As(err, &te))
	var rerr redis.Error
	require.True(t, errors.As(err, &rerr))
	require.Contains(t, rerr.Error(), "WRONGTYPE")
}

func TestClient_CallInto(t *testing.T) {
	t.Parallel()
	c, rdb := newTestClient(t)
	ctx := context.Background()

	type account struct {
		ID      int      `json:"id"`
		Tags    []string `json:"tags"`
		Balance float64  `json:"balance"`
	}

	_, err := c.Set(ctx, "acct", account{ID: 9, Tags: []string{"vip"}, Balance: 1.5})
	require.NoError(t, err)

	var got account
	require.NoError(t, c.CallInto(ctx, &got, "get", "acct"))
	require.Equal(t, account{ID: 9, Tags: []string{"vip"}, Balance: 1.5}, got)

	var s string
	require.NoError(t, rdb.Set(ctx, "plain", "hello", 0).Err())
	require.NoError(t, c.CallInto(ctx, &s, "get", "plain"))
	require.Equal(t, "hello", s)

	// valid JSON of the wrong shape is a decode error, not a pass-through
	err = c.CallInto(ctx, &s, "get", "acct")
	var de *DecodeError
	require.True(t, errors.As(err, &de))

	err = c.CallInto(ctx, &got, "get", "missing")
	require.ErrorIs(t, err, redis.Nil)

	var items []account
	_, err = c.RPush(ctx, "accts", account{ID: 1}, account{ID: 2})
	require.NoError(t, err)
	require.NoError(t, c.CallInto(ctx, &items, "lrange", "accts", 0, -1))
	require.Equal(t, []account{{ID: 1}, {ID: 2}}, items)
}

func TestClient_ConcurrentCalls(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)
	ctx := context.Background()

	var eg errgroup.Group
	for i := 0; i < 16; i++ {
		i := i
		eg.Go(func() error {
			key := fmt.Sprintf("k%d", i)
			if _, err := c.Set(ctx, key, map[string]any{"i": float64(i)}); err != nil {
				return err
			}
			got, err := c.Get(ctx, key)
			if err != nil {
				return err
			}
			if want := map[string]any{"i": float64(i)}; fmt.Sprint(got) != fmt.Sprint(want) {
				return errors.Newf("key %s: got %v", key, got)
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
}

func TestClient_Metrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	c, _ := newTestClient(t, WithRegisterer(reg))
	ctx := context.Background()

	_, err := c.Set(ctx, "k", "v")
	require.NoError(t, err)
	_, err = c.Set(ctx, "k", make(chan int))
	require.Error(t, err)

	require.InDelta(t, 1, testutil.ToFloat64(c.metrics.commands.WithLabelValues("set", outcomeOK)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(c.metrics.commands.WithLabelValues("set", outcomeSerialization)), 0)

	// a second client on the same registry shares the counters
	other := New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), WithRegisterer(reg), WithLogger(discardLogger()))
	require.Same(t, c.metrics.commands, other.metrics.commands)
}

func TestClient_CommandsIncludeExtensions(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)

	names := c.Commands()
	require.Contains(t, names, "delpattern")
	require.Contains(t, names, "hgetall")
}

// TestClient_DefaultLoggerUsesStderr swaps os.Stderr and so does not run in
// parallel.
func TestClient_DefaultLoggerUsesStderr(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stderr
	os.Stderr = w
	t.Cleanup(func() { os.Stderr = orig })

	c := New(&replyConn{err: errors.New("boom")})
	os.Stderr = orig

	_, err = c.Get(context.Background(), "k")
	require.Error(t, err)
	require.NoError(t, w.Close())

	logged, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Contains(t, string(logged), `"msg":"command failed"`)
	require.Contains(t, string(logged), `"err":"boom"`)
}
