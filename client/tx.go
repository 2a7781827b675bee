package client

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bootjp/redisjson/command"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// Report is the outcome of a committed transaction. Results[i] belongs to
// the i-th queued operation; a failed operation contributes its
// *OperationError both there and in Errors.
type Report struct {
	ErrorCount int
	Errors     []error
	Results    []any
}

type operation struct {
	spec command.Spec
	args []any // as given by the caller, used for decoding
	argv []any // as sent
	cmd  *redis.Cmd
}

// Tx queues commands for a single MULTI/EXEC round trip. A Tx is owned by one
// goroutine and can be committed once.
type Tx struct {
	client *Client
	pipe   redis.Pipeliner
	ops    []operation
	err    error
	closed bool
}

// Tx starts a new transaction batch on the client's connection.
func (c *Client) Tx() *Tx {
	return &Tx{client: c, pipe: c.conn.TxPipeline()}
}

// Queue encodes the arguments exactly like Call and appends the command to
// the batch. It returns t for chaining. The first failure is kept and
// reported by Err and Commit; after it, Queue does nothing.
func (t *Tx) Queue(name string, args ...any) *Tx {
	if t.closed {
		if t.err == nil {
			t.err = errors.WithStack(ErrTxClosed)
		}
		return t
	}
	if t.err != nil {
		return t
	}

	spec, ok := command.Lookup(name)
	if !ok {
		t.err = errors.Wrapf(ErrUnknownCommand, "%q", name)
		return t
	}
	argv, err := encodeArgs(spec, args)
	if err != nil {
		t.client.metrics.command(spec.Name, outcomeSerialization)
		t.err = err
		return t
	}

	// The pipeline only buffers; the deadline that matters is Commit's.
	cmd := t.pipe.Do(context.Background(), argv...)
	t.ops = append(t.ops, operation{spec: spec, args: args, argv: argv, cmd: cmd})
	return t
}

// Err returns the first error recorded by Queue.
func (t *Tx) Err() error {
	return t.err
}

// Len returns the number of queued operations.
func (t *Tx) Len() int {
	return len(t.ops)
}

// Discard drops the batch without sending anything.
func (t *Tx) Discard() {
	if t.closed {
		return
	}
	t.closed = true
	t.pipe.Discard()
	t.ops = nil
}

// Commit sends every queued operation in one atomic MULTI/EXEC and decodes the
// replies in submission order. It fails with a TransportError only when the
// transaction as a whole was not applied; rejected operations are reported in
// the Report. The Tx cannot be used afterwards.
func (t *Tx) Commit(ctx context.Context) (*Report, error) {
	if t.closed {
		return nil, errors.WithStack(ErrTxClosed)
	}
	t.closed = true
	if t.err != nil {
		t.pipe.Discard()
		return nil, t.err
	}

	ops := t.ops
	t.ops = nil
	if len(ops) == 0 {
		return &Report{Results: []any{}}, nil
	}

	_, execErr := t.pipe.Exec(ctx)
	if failed, cause := commitFailed(execErr, ops); failed {
		t.client.metrics.txOperations(outcomeTransport, len(ops))
		t.client.log.WarnContext(ctx, "transaction failed",
			slog.Int("operations", len(ops)),
			slog.String("err", cause.Error()))
		return nil, errors.WithStack(&TransportError{Command: "exec", Err: cause})
	}

	report := &Report{Results: make([]any, len(ops))}
	for i, op := range ops {
		raw, err := op.cmd.Result()
		switch {
		case err == nil:
			report.Results[i] = op.spec.Decode(op.args, raw)
		case errors.Is(err, redis.Nil):
			report.Results[i] = nil
		default:
			oe := &OperationError{Index: i, Command: op.spec.Name, Err: err}
			report.Results[i] = oe
			report.Errors = append(report.Errors, oe)
			report.ErrorCount++
		}
	}

	t.client.metrics.txOperations(outcomeOK, len(ops)-report.ErrorCount)
	t.client.metrics.txOperations(outcomeOperation, report.ErrorCount)
	if report.ErrorCount > 0 {
		t.client.log.InfoContext(ctx, "transaction applied with operation errors",
			slog.Int("operations", len(ops)),
			slog.Int("errors", report.ErrorCount))
	}
	return report, nil
}

// commitFailed tells a transaction that was not applied at all apart from one
// where single operations were rejected. The former is a connection failure,
// an EXECABORT caused by a queue-time error, or an aborted WATCH.
func commitFailed(execErr error, ops []operation) (bool, error) {
	if execErr == nil {
		return false, nil
	}
	var rerr redis.Error
	if !errors.As(execErr, &rerr) {
		return true, execErr
	}
	if isAbort(execErr) {
		return true, execErr
	}
	for _, op := range ops {
		if err := op.cmd.Err(); err != nil && isAbort(err) {
			return true, err
		}
	}
	return false, nil
}

func isAbort(err error) bool {
	return errors.Is(err, redis.TxFailedErr) || strings.HasPrefix(err.Error(), "EXECABORT")
}
