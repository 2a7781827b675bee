package command

import (
	"fmt"

	"github.com/bootjp/redisjson/codec"
	"github.com/cockroachdb/errors"
)

// ParseMode selects how a command reply is decoded.
type ParseMode int

const (
	ParseNone ParseMode = iota
	ParseScalar
	ParseList
	ParseKeyedMap
)

func (m ParseMode) String() string {
	switch m {
	case ParseNone:
		return "none"
	case ParseScalar:
		return "scalar"
	case ParseList:
		return "list"
	case ParseKeyedMap:
		return "map"
	default:
		return fmt.Sprintf("ParseMode(%d)", int(m))
	}
}

// Spec describes which arguments of a command are JSON encoded and how its
// reply is decoded. Positions are 1-based and relative to the argument list,
// the command name itself is not counted.
type Spec struct {
	Name string

	// Stringify lists the argument positions encoded before transmission.
	Stringify []int
	// Variadic extends Stringify to every Step-th argument after the last
	// listed position.
	Variadic bool
	Step     int

	// ObjectAt and MapAt name a position whose Go map (ObjectAt) or ordered
	// collection (MapAt) is spliced in as field, value, ... before encoding.
	ObjectAt int
	MapAt    int

	Parse       ParseMode
	ParseOffset int
	ParseStep   int
	// ParseCheck switches list decoding to AltOffset/AltStep when the token
	// appears verbatim among the caller's arguments.
	ParseCheck string
	AltOffset  int
	AltStep    int
}

// EncodeError reports an argument that could not be JSON encoded.
type EncodeError struct {
	Position int
	Err      error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("argument %d: %v", e.Position, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Encode returns the argument list to put on the wire. args is not modified.
func (s Spec) Encode(args []any) ([]any, error) {
	out := make([]any, len(args))
	copy(out, args)

	out = splice(out, s.ObjectAt, codec.FlattenMap)
	out = splice(out, s.MapAt, codec.FlattenOrdered)

	for _, p := range s.Positions(len(out)) {
		enc, err := codec.Encode(out[p-1])
		if err != nil {
			return nil, errors.WithStack(&EncodeError{Position: p, Err: err})
		}
		out[p-1] = enc
	}
	// go-redis only accepts plain strings
	for i, a := range out {
		if r, ok := a.(codec.Raw); ok {
			out[i] = string(r)
		}
	}
	return out, nil
}

// Positions returns every 1-based position that is encoded for an argument
// list of length n.
func (s Spec) Positions(n int) []int {
	if len(s.Stringify) == 0 {
		return nil
	}
	out := make([]int, 0, len(s.Stringify))
	for _, p := range s.Stringify {
		if p >= 1 && p <= n {
			out = append(out, p)
		}
	}
	if !s.Variadic {
		return out
	}
	step := s.Step
	if step < 1 {
		step = 1
	}
	for p := s.Stringify[len(s.Stringify)-1] + step; p <= n; p += step {
		out = append(out, p)
	}
	return out
}

func splice(args []any, pos int, flatten func(any) ([]any, bool)) []any {
	if pos < 1 || pos > len(args) {
		return args
	}
	flat, ok := flatten(args[pos-1])
	if !ok {
		return args
	}
	out := make([]any, 0, len(args)-1+len(flat))
	out = append(out, args[:pos-1]...)
	out = append(out, flat...)
	return append(out, args[pos:]...)
}

// Decode applies the parse mode to a raw reply. args must be the caller's
// original arguments, before Encode ran. Decoding never fails: elements that
// are not JSON are returned as received.
func (s Spec) Decode(args []any, raw any) any {
	switch s.Parse {
	case ParseScalar:
		return codec.Decode(raw)
	case ParseList:
		return s.decodeList(args, raw)
	case ParseKeyedMap:
		return decodeKeyedMap(raw)
	default:
		return raw
	}
}

func (s Spec) stride(args []any) (int, int) {
	offset, step := s.ParseOffset, s.ParseStep
	if s.ParseCheck != "" && hasToken(args, s.ParseCheck) {
		offset, step = s.AltOffset, s.AltStep
	}
	if step < 1 {
		step = 1
	}
	return offset, step
}

func hasToken(args []any, token string) bool {
	for _, a := range args {
		switch v := a.(type) {
		case string:
			if v == token {
				return true
			}
		case codec.Raw:
			if string(v) == token {
				return true
			}
		case []byte:
			if string(v) == token {
				return true
			}
		}
	}
	return false
}

func (s Spec) decodeList(args []any, raw any) any {
	arr, ok := raw.([]any)
	if !ok {
		// LPOP and SPOP without a count reply with a single element.
		return codec.Decode(raw)
	}
	offset, step := s.stride(args)
	out := make([]any, len(arr))
	copy(out, arr)
	if step > 1 && len(out) > 0 {
		if _, nested := out[0].([]any); nested {
			// RESP3 groups each entry with its metadata, e.g. [[member, score], ...]
			for i, e := range out {
				out[i] = decodeGroup(e, offset)
			}
			return out
		}
	}
	for i := offset; i < len(out); i += step {
		out[i] = codec.Decode(out[i])
	}
	return out
}

func decodeGroup(e any, at int) any {
	group, ok := e.([]any)
	if !ok || at >= len(group) {
		return e
	}
	out := make([]any, len(group))
	copy(out, group)
	out[at] = codec.Decode(out[at])
	return out
}

func decodeKeyedMap(raw any) any {
	switch m := raw.(type) {
	case []any:
		// RESP2 replies are a flat field, value, ... array.
		out := make(map[string]any, len(m)/2)
		for i := 0; i+1 < len(m); i += 2 {
			out[fmt.Sprint(m[i])] = codec.Decode(m[i+1])
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = codec.Decode(v)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = codec.Decode(v)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = codec.Decode(v)
		}
		return out
	default:
		return raw
	}
}
