package dm

import (
	"fmt"
	"math"
	"sort"

	"github.com/robert-malhotra/go-dm4/internal/tagfile"
)

// Tuple is an ordered fixed-length metadata value, stored as a tag struct.
// Four-scalar structs read back folded as a pair of pairs
// ((top, left), (height, width)); a Tuple whose elements are all Tuples is
// flattened one level on write, so the fold round-trips.
type Tuple []any

// nodeToValue converts a decoded tag node to a plain metadata value.
// Scalars are normalized: all integer widths to int64 (uint64 values over
// the int64 range keep their type), both float widths to float64. Arrays of
// 16-bit unsigned elements decode as text, the convention writers use for
// strings; other arrays become element slices.
func nodeToValue(n tagfile.Node) any {
	switch v := n.(type) {
	case *tagfile.Group:
		if v.Dict {
			m := make(map[string]any)
			for _, e := range v.Entries {
				if e.Value == nil {
					continue
				}
				m[e.Name] = nodeToValue(e.Value)
			}
			return m
		}
		l := make([]any, 0, len(v.Entries))
		for _, e := range v.Entries {
			if e.Value == nil {
				continue
			}
			l = append(l, nodeToValue(e.Value))
		}
		return l
	case tagfile.Scalar:
		return normalizeScalar(v)
	case tagfile.String:
		return v.Text
	case *tagfile.Array:
		return arrayToValue(v)
	case *tagfile.StructValue:
		t := make(Tuple, 0, len(v.Fields))
		for _, f := range v.Fields {
			t = append(t, normalizeScalar(f))
		}
		if len(t) == 4 {
			// Rectangles are stored flat as (top, left, height, width) but
			// handled as ((top, left), (height, width)).
			return Tuple{Tuple{t[0], t[1]}, Tuple{t[2], t[3]}}
		}
		return t
	case *tagfile.StructArray:
		// Tuple arrays other than complex pixel buffers do not appear in
		// metadata; surface the raw form rather than inventing one.
		return v
	default:
		return nil
	}
}

func normalizeScalar(s tagfile.Scalar) any {
	switch x := s.Value.(type) {
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x <= 1<<63-1 {
			return int64(x)
		}
		return x
	case float32:
		return float64(x)
	default:
		return x // float64, bool
	}
}

func arrayToValue(a *tagfile.Array) any {
	if a.ElemType == tagfile.TypeUShort {
		if s, err := a.Text(); err == nil {
			return s
		}
	}
	switch a.ElemType {
	case tagfile.TypeFloat:
		out := make([]any, 0, a.Count())
		for i := 0; i < a.Count(); i++ {
			bits := uint32(a.Raw[i*4]) | uint32(a.Raw[i*4+1])<<8 | uint32(a.Raw[i*4+2])<<16 | uint32(a.Raw[i*4+3])<<24
			out = append(out, float64(math.Float32frombits(bits)))
		}
		return out
	case tagfile.TypeDouble:
		out := make([]any, 0, a.Count())
		for i := 0; i < a.Count(); i++ {
			var bits uint64
			for j := 7; j >= 0; j-- {
				bits = bits<<8 | uint64(a.Raw[i*8+j])
			}
			out = append(out, math.Float64frombits(bits))
		}
		return out
	default:
		vals := a.IntValues()
		out := make([]any, 0, len(vals))
		for _, v := range vals {
			out = append(out, v)
		}
		return out
	}
}

// valueToNode converts a plain metadata value to a tag node. A nil value
// converts to a nil node, which write skips. Map keys are emitted sorted
// for deterministic output. tagfile.Node values pass through untouched so
// prepared image buffers can sit inside plain containers.
func valueToNode(v any) (tagfile.Node, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case tagfile.Node:
		return x, nil
	case string:
		return tagfile.String{Text: x}, nil
	case Tuple:
		return tupleToStruct(x)
	case map[string]any:
		g := tagfile.NewDictGroup()
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			node, err := valueToNode(x[k])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			g.Set(k, node)
		}
		return g, nil
	case []any:
		g := tagfile.NewListGroup()
		for i, item := range x {
			node, err := valueToNode(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			g.Append(node)
		}
		return g, nil
	default:
		return tagfile.ScalarOf(v)
	}
}

func tupleToStruct(t Tuple) (tagfile.Node, error) {
	flat := t
	if len(t) > 1 {
		allTuples := true
		for _, e := range t {
			if _, ok := e.(Tuple); !ok {
				allTuples = false
				break
			}
		}
		if allTuples {
			flat = nil
			for _, e := range t {
				flat = append(flat, e.(Tuple)...)
			}
		}
	}
	fields := make([]tagfile.Scalar, 0, len(flat))
	for i, e := range flat {
		s, err := tagfile.ScalarOf(e)
		if err != nil {
			return nil, fmt.Errorf("tuple element %d: %w", i, err)
		}
		fields = append(fields, s)
	}
	return &tagfile.StructValue{Fields: fields}, nil
}

// cloneValue deep-copies a metadata value so save can graft entries onto
// the caller's tree without mutating it.
func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		l := make([]any, 0, len(x))
		for _, e := range x {
			l = append(l, cloneValue(e))
		}
		return l
	case Tuple:
		t := make(Tuple, 0, len(x))
		for _, e := range x {
			t = append(t, cloneValue(e))
		}
		return t
	default:
		return x
	}
}
