package client

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Get returns the decoded value at key, or nil when it does not exist.
func (c *Client) Get(ctx context.Context, key string) (any, error) {
	return c.Call(ctx, "get", key)
}

// Set stores value under key. Extra arguments such as "EX", 10 are passed
// through untouched.
func (c *Client) Set(ctx context.Context, key string, value any, args ...any) (any, error) {
	return c.Call(ctx, "set", append([]any{key, value}, args...)...)
}

// Del removes keys and returns how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return asInt64(c.Call(ctx, "del", args...))
}

// HSet accepts either field, value pairs or a single map / ordered
// collection of fields.
func (c *Client) HSet(ctx context.Context, key string, values ...any) (int64, error) {
	return asInt64(c.Call(ctx, "hset", append([]any{key}, values...)...))
}

// HGet returns the decoded value of a hash field.
func (c *Client) HGet(ctx context.Context, key, field string) (any, error) {
	return c.Call(ctx, "hget", key, field)
}

// HGetAll returns every field of the hash with decoded values.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]any, error) {
	v, err := c.Call(ctx, "hgetall", key)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.Newf("hgetall: unexpected reply %T", v)
	}
	return m, nil
}

// LPush prepends JSON encoded values and returns the new length.
func (c *Client) LPush(ctx context.Context, key string, values ...any) (int64, error) {
	return asInt64(c.Call(ctx, "lpush", append([]any{key}, values...)...))
}

// RPush appends JSON encoded values and returns the new length.
func (c *Client) RPush(ctx context.Context, key string, values ...any) (int64, error) {
	return asInt64(c.Call(ctx, "rpush", append([]any{key}, values...)...))
}

// LRange returns the decoded elements between start and stop inclusive.
func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]any, error) {
	return asSlice(c.Call(ctx, "lrange", key, start, stop))
}

// SAdd adds JSON encoded members and returns how many were new.
func (c *Client) SAdd(ctx context.Context, key string, members ...any) (int64, error) {
	return asInt64(c.Call(ctx, "sadd", append([]any{key}, members...)...))
}

// SMembers returns every decoded member of the set.
func (c *Client) SMembers(ctx context.Context, key string) ([]any, error) {
	return asSlice(c.Call(ctx, "smembers", key))
}

// ZAdd takes score, member pairs.
func (c *Client) ZAdd(ctx context.Context, key string, scoreMembers ...any) (int64, error) {
	return asInt64(c.Call(ctx, "zadd", append([]any{key}, scoreMembers...)...))
}

// ZRange returns decoded members. With scores, RESP2 replies alternate
// member, score and RESP3 replies hold [member, score] pairs; only members
// are decoded in either shape.
func (c *Client) ZRange(ctx context.Context, key string, start, stop int64, withScores bool) ([]any, error) {
	args := []any{key, start, stop}
	if withScores {
		args = append(args, "WITHSCORES")
	}
	return asSlice(c.Call(ctx, "zrange", args...))
}

// DelPattern deletes every key matching pattern and returns how many were
// removed. It runs the delpattern extension.
func (c *Client) DelPattern(ctx context.Context, pattern string) (int64, error) {
	return asInt64(c.Call(ctx, "delpattern", pattern, c.scanCount))
}

func asInt64(v any, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, errors.Newf("unexpected reply %T, want integer", v)
	}
	return n, nil
}

func asSlice(v any, err error) ([]any, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return []any{}, nil
	}
	s, ok := v.([]any)
	if !ok {
		return nil, errors.Newf("unexpected reply %T, want array", v)
	}
	return s, nil
}
