package client

import (
	"context"
	"strings"
	"sync"

	"github.com/bootjp/redisjson/command"
	"github.com/cockroachdb/errors"
)

// Extension builds a handler from already wrapped commands. It only gets a
// Caller, so everything it sends goes through the encode/decode pipeline.
type Extension func(c Caller) Handler

var (
	extMu      sync.RWMutex
	extensions = map[string]Extension{}
)

// RegisterExtension makes an extension available to clients created after
// the call. Names are case-insensitive and must not collide with a table
// command or another extension.
func RegisterExtension(name string, ext Extension) error {
	name = strings.ToLower(name)
	if name == "" || ext == nil {
		return errors.New("extension name and constructor are required")
	}
	if _, ok := command.Lookup(name); ok {
		return errors.Newf("extension %q shadows a table command", name)
	}

	extMu.Lock()
	defer extMu.Unlock()
	if _, ok := extensions[name]; ok {
		return errors.Newf("extension %q already registered", name)
	}
	extensions[name] = ext
	return nil
}

func registeredExtensions() map[string]Extension {
	extMu.RLock()
	defer extMu.RUnlock()
	out := make(map[string]Extension, len(extensions))
	for k, v := range extensions {
		out[k] = v
	}
	return out
}

func init() {
	if err := RegisterExtension("delpattern", delPattern); err != nil {
		panic(err)
	}
}

// delPattern walks the keyspace with SCAN ... MATCH and deletes every page
// of matches with a single DEL. Arguments: pattern [count].
func delPattern(c Caller) Handler {
	return func(ctx context.Context, args ...any) (any, error) {
		if len(args) == 0 || len(args) > 2 {
			return nil, errors.New("delpattern: want pattern [count]")
		}
		var count any = defaultScanCount
		if len(args) == 2 {
			count = args[1]
		}

		var deleted int64
		var cursor any = "0"
		for {
			res, err := c.Call(ctx, "scan", cursor, "MATCH", args[0], "COUNT", count)
			if err != nil {
				return deleted, err
			}
			next, keys, err := scanPage(res)
			if err != nil {
				return deleted, err
			}

			if len(keys) > 0 {
				n, err := asInt64(c.Call(ctx, "del", keys...))
				if err != nil {
					return deleted, err
				}
				deleted += n
			}

			if next == "0" {
				return deleted, nil
			}
			cursor = next
		}
	}
}

func scanPage(res any) (string, []any, error) {
	page, ok := res.([]any)
	if !ok || len(page) != 2 { //nolint:mnd
		return "", nil, errors.Newf("scan: unexpected reply %v", res)
	}
	cursor, ok := page[0].(string)
	if !ok {
		return "", nil, errors.Newf("scan: unexpected cursor %T", page[0])
	}
	keys, ok := page[1].([]any)
	if !ok {
		return "", nil, errors.Newf("scan: unexpected keys %T", page[1])
	}
	return cursor, keys, nil
}
