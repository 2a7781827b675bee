package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/bootjp/redisjson/client"
	"github.com/bootjp/redisjson/codec"
	"github.com/bootjp/redisjson/command"
	"github.com/bootjp/redisjson/internal"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var (
	doCmd = &cobra.Command{
		Use:   "do NAME [ARG...]",
		Short: "Run a single command",
		Long: `Run a single command. Arguments that are JSON objects or arrays are
passed as values, so

  redisjson do hset user:1 '{"profile":{"city":"Tokyo"}}'

expands the object into fields and stores each value as JSON.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, done := connect(cmd.Context())
			defer done()

			res, err := c.Call(ctx, args[0], parseArgs(args[1:])...)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	txCmd = &cobra.Command{
		Use:   "tx FILE",
		Short: "Run a JSON batch file as one transaction",
		Long: `Run every command of FILE in one MULTI/EXEC. FILE holds a JSON array of
[name, args...] arrays; "-" reads standard input. Strings in FILE are JSON
values and are stored quoted.

  [["set", "cfg", {"debug": true}], ["get", "cfg"]]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := readBatch(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			c, ctx, done := connect(cmd.Context())
			defer done()

			tx := c.Tx()
			for _, op := range batch {
				tx.Queue(op.name, op.args...)
			}
			report, err := tx.Commit(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), reportView(report))
		},
	}

	commandsCmd = &cobra.Command{
		Use:   "commands",
		Short: "List the supported commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			for _, name := range command.Names() {
				spec, _ := command.Lookup(name)
				if _, err := fmt.Fprintf(w, "%-18s stringify=%v parse=%s\n", name, spec.Stringify, spec.Parse); err != nil {
					return errors.WithStack(err)
				}
			}
			return nil
		},
	}
)

// parseArgs turns JSON object and array arguments into values. Everything
// else is sent as typed, without JSON quoting.
func parseArgs(raw []string) []any {
	out := make([]any, len(raw))
	for i, s := range raw {
		out[i] = codec.Raw(s)
		if !codec.IsJSON(s) {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			out[i] = v
		}
	}
	return out
}

type batchOp struct {
	name string
	args []any
}

func readBatch(stdin io.Reader, path string) ([]batchOp, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = internal.WithStacks(io.ReadAll(stdin))
	} else {
		data, err = internal.WithStacks(os.ReadFile(path))
	}
	if err != nil {
		return nil, err
	}

	var rows [][]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, errors.Wrapf(err, "%s: want a JSON array of [name, args...]", path)
	}
	ops := make([]batchOp, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 {
			return nil, errors.Newf("%s: entry %d is empty", path, i)
		}
		name, ok := row[0].(string)
		if !ok {
			return nil, errors.Newf("%s: entry %d: command name must be a string", path, i)
		}
		ops = append(ops, batchOp{name: name, args: row[1:]})
	}
	return ops, nil
}

type reportJSON struct {
	ErrorCount int   `json:"error_count"`
	Results    []any `json:"results"`
}

// reportView replaces operation errors with {"error": message} so the
// report can be printed as JSON.
func reportView(r *client.Report) reportJSON {
	out := reportJSON{ErrorCount: r.ErrorCount, Results: make([]any, len(r.Results))}
	for i, res := range r.Results {
		if err, ok := res.(error); ok {
			out.Results[i] = map[string]string{"error": err.Error()}
			continue
		}
		out.Results[i] = res
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.WithStack(enc.Encode(v))
}
