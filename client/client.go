package client

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/bootjp/redisjson/codec"
	"github.com/bootjp/redisjson/command"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Conn is the subset of a go-redis client the layer needs. *redis.Client,
// *redis.ClusterClient, *redis.Ring and redis.UniversalClient satisfy it.
// Both RESP2 and RESP3 replies are decoded, so Options.Protocol may be left
// at the go-redis default.
type Conn interface {
	Do(ctx context.Context, args ...any) *redis.Cmd
	TxPipeline() redis.Pipeliner
}

// Handler runs one command with the caller's arguments.
type Handler func(ctx context.Context, args ...any) (any, error)

// Caller is what extensions see of a Client.
type Caller interface {
	Call(ctx context.Context, name string, args ...any) (any, error)
}

// Client sends commands from the command table with JSON-encoded arguments
// and decoded replies. It is safe for concurrent use.
type Client struct {
	conn       Conn
	handlers   map[string]Handler
	log        *slog.Logger
	metrics    *metrics
	registerer prometheus.Registerer
	scanCount  int64
}

var _ Caller = (*Client)(nil)

// New wraps conn. Without WithLogger, warnings are written to stderr as JSON.
func New(conn Conn, opts ...Option) *Client {
	c := &Client{
		conn: conn,
		log: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		})),
		metrics:   newMetrics(),
		scanCount: defaultScanCount,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.registerer != nil {
		if err := c.metrics.register(c.registerer); err != nil {
			c.log.Warn("metrics registration failed", slog.String("err", err.Error()))
		}
	}

	names := command.Names()
	c.handlers = make(map[string]Handler, len(names))
	for _, name := range names {
		spec, _ := command.Lookup(name)
		c.handlers[name] = c.handler(spec)
	}
	for name, build := range registeredExtensions() {
		c.handlers[name] = build(c)
	}

	return c
}

func (c *Client) handler(spec command.Spec) Handler {
	return func(ctx context.Context, args ...any) (any, error) {
		raw, err := c.do(ctx, spec, args)
		if err != nil || raw == nil {
			return nil, err
		}
		return spec.Decode(args, raw), nil
	}
}

// do encodes args, performs the round trip and returns the undecoded reply.
// A nil reply is returned as nil without error.
func (c *Client) do(ctx context.Context, spec command.Spec, args []any) (any, error) {
	argv, err := encodeArgs(spec, args)
	if err != nil {
		c.metrics.command(spec.Name, outcomeSerialization)
		return nil, err
	}

	raw, err := c.conn.Do(ctx, argv...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.metrics.command(spec.Name, outcomeOK)
			return nil, nil
		}
		c.metrics.command(spec.Name, outcomeTransport)
		c.log.WarnContext(ctx, "command failed",
			slog.String("command", spec.Name),
			slog.String("err", err.Error()))
		return nil, errors.WithStack(&TransportError{Command: spec.Name, Err: err})
	}

	c.metrics.command(spec.Name, outcomeOK)
	return raw, nil
}

// encodeArgs returns the full argv, wire name first.
func encodeArgs(spec command.Spec, args []any) ([]any, error) {
	final, err := spec.Encode(args)
	if err != nil {
		se := &SerializationError{Command: spec.Name, Err: err}
		var ee *command.EncodeError
		if errors.As(err, &ee) {
			se.Position = ee.Position
			se.Err = ee.Err
		}
		return nil, errors.WithStack(se)
	}
	argv := make([]any, 0, len(final)+1)
	argv = append(argv, spec.WireName())
	return append(argv, final...), nil
}

// Call runs the named command. Commands outside the table and unregistered
// extensions are rejected with ErrUnknownCommand.
func (c *Client) Call(ctx context.Context, name string, args ...any) (any, error) {
	h, ok := c.Handler(name)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCommand, "%q", name)
	}
	return h(ctx, args...)
}

// Handler returns the handler registered for name.
func (c *Client) Handler(name string) (Handler, bool) {
	h, ok := c.handlers[strings.ToLower(name)]
	return h, ok
}

// Commands lists every command and extension the client exposes.
func (c *Client) Commands() []string {
	out := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CallInto runs a table command and decodes its reply into dst. Unlike Call
// it fails with a DecodeError when a JSON reply does not fit dst. A nil
// reply is reported as redis.Nil and leaves dst untouched.
func (c *Client) CallInto(ctx context.Context, dst any, name string, args ...any) error {
	spec, ok := command.Lookup(name)
	if !ok {
		return errors.Wrapf(ErrUnknownCommand, "%q", name)
	}

	raw, err := c.do(ctx, spec, args)
	if err != nil {
		return err
	}
	if raw == nil {
		return errors.WithStack(redis.Nil)
	}

	if spec.Parse != command.ParseScalar {
		raw = spec.Decode(args, raw)
	}
	if err := codec.DecodeInto(raw, dst); err != nil {
		return errors.WithStack(&DecodeError{Command: spec.Name, Err: err})
	}
	return nil
}
