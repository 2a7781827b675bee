package codec

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// Pair is one field/value entry of an ordered collection.
type Pair struct {
	Key   string
	Value any
}

// Pairs is an ordered field/value collection. It flattens in slice order.
type Pairs []Pair

// Add appends a pair and returns the extended collection.
func (p Pairs) Add(key string, value any) Pairs {
	return append(p, Pair{Key: key, Value: value})
}

// FlattenMap turns any Go map into an alternating key, value, key, value
// sequence. Keys are emitted sorted by their string form so the output is
// stable across runs. ok is false when v is not a map.
func FlattenMap(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, false
	}

	keys := rv.MapKeys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = fmt.Sprint(k.Interface())
	}
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return names[idx[a]] < names[idx[b]] })

	out := make([]any, 0, len(keys)*2)
	for _, i := range idx {
		out = append(out, keys[i].Interface(), rv.MapIndex(keys[i]).Interface())
	}
	return out, true
}

// FlattenOrdered turns an ordered collection (Pairs or a gods linked hash
// map) into an alternating sequence, preserving insertion order exactly.
func FlattenOrdered(v any) ([]any, bool) {
	switch m := v.(type) {
	case Pairs:
		out := make([]any, 0, len(m)*2)
		for _, p := range m {
			out = append(out, p.Key, p.Value)
		}
		return out, true
	case *linkedhashmap.Map:
		if m == nil {
			return []any{}, true
		}
		out := make([]any, 0, m.Size()*2)
		it := m.Iterator()
		for it.Next() {
			out = append(out, it.Key(), it.Value())
		}
		return out, true
	default:
		return nil, false
	}
}
