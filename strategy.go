package layeredconfig

import (
	"fmt"
	"reflect"
)

// Accumulator carries a strategy's running result. Present distinguishes
// "no value yet" from a zero value (0, "", false) already accumulated —
// a bare nil/zero sentinel would conflate the two, per SPEC_FULL.md
// §4.6's note on the reference implementation's truthiness bug.
type Accumulator struct {
	Value   interface{}
	Present bool
}

// Strategy folds a newly-walked value into the running accumulator for
// a key. It is called once per source that contributes a scalar for
// that key, walked from highest to lowest priority, so the
// highest-priority value enters the accumulator first (SPEC_FULL.md §4.6).
type Strategy func(newValue interface{}, acc Accumulator) Accumulator

// AddStrategy sums homogeneous additive values: numbers add, strings
// concatenate. The first call (acc absent) simply seeds the result.
func AddStrategy(newValue interface{}, acc Accumulator) Accumulator {
	if !acc.Present {
		return Accumulator{Value: newValue, Present: true}
	}
	sum, err := addValues(acc.Value, newValue)
	if err != nil {
		panic(err)
	}
	return Accumulator{Value: sum, Present: true}
}

// CollectStrategy appends each new value onto a growing list.
func CollectStrategy(newValue interface{}, acc Accumulator) Accumulator {
	if !acc.Present {
		return Accumulator{Value: []interface{}{newValue}, Present: true}
	}
	list, _ := acc.Value.([]interface{})
	return Accumulator{Value: append(list, newValue), Present: true}
}

// MergeStrategy concatenates list-valued contributions; it behaves
// exactly like AddStrategy when the accumulated and new values are
// both slices (the common case it's used for).
func MergeStrategy(newValue interface{}, acc Accumulator) Accumulator {
	return AddStrategy(newValue, acc)
}

func addValues(a, b interface{}) (interface{}, error) {
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)

	if av.Kind() == reflect.Slice && bv.Kind() == reflect.Slice {
		out := reflect.MakeSlice(reflect.SliceOf(reflect.TypeOf((*interface{})(nil)).Elem()), 0, av.Len()+bv.Len())
		for i := 0; i < av.Len(); i++ {
			out = reflect.Append(out, reflect.ValueOf(av.Index(i).Interface()))
		}
		for i := 0; i < bv.Len(); i++ {
			out = reflect.Append(out, reflect.ValueOf(bv.Index(i).Interface()))
		}
		return out.Interface(), nil
	}

	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return nil, fmt.Errorf("add strategy: cannot combine string with %T", b)
		}
		return as + bs, nil
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		if ai, isInt := a.(int); isInt {
			if bi, isInt2 := b.(int); isInt2 {
				return ai + bi, nil
			}
		}
		return af + bf, nil
	}

	return nil, fmt.Errorf("add strategy: cannot combine %T with %T", a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
