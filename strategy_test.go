package layeredconfig

import (
	"reflect"
	"testing"
)

func TestAddStrategy(t *testing.T) {
	tests := []struct {
		name   string
		values []interface{}
		want   interface{}
	}{
		{name: "ints", values: []interface{}{1, 2, 3}, want: 6},
		{name: "strings", values: []interface{}{"a", "b"}, want: "ab"},
		{name: "first call seeds", values: []interface{}{5}, want: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var acc Accumulator
			for _, v := range tt.values {
				acc = AddStrategy(v, acc)
			}
			if !reflect.DeepEqual(acc.Value, tt.want) {
				t.Errorf("AddStrategy() = %v, want %v", acc.Value, tt.want)
			}
		})
	}
}

func TestCollectStrategy(t *testing.T) {
	var acc Accumulator
	acc = CollectStrategy("a", acc)
	acc = CollectStrategy("b", acc)
	want := []interface{}{"a", "b"}
	if !reflect.DeepEqual(acc.Value, want) {
		t.Fatalf("CollectStrategy() = %v, want %v", acc.Value, want)
	}
}

func TestMergeStrategy_concatenatesSlices(t *testing.T) {
	var acc Accumulator
	acc = MergeStrategy([]interface{}{"a", "b"}, acc)
	acc = MergeStrategy([]interface{}{"c"}, acc)
	want := []interface{}{"a", "b", "c"}
	if !reflect.DeepEqual(acc.Value, want) {
		t.Fatalf("MergeStrategy() = %v, want %v", acc.Value, want)
	}
}

func TestAccumulator_presentDistinguishesZeroValue(t *testing.T) {
	var acc Accumulator
	if acc.Present {
		t.Fatalf("zero-value Accumulator should report Present = false")
	}
	acc = AddStrategy(0, acc)
	if !acc.Present {
		t.Fatalf("Accumulator should report Present = true after accumulating a zero value")
	}
	if acc.Value != 0 {
		t.Fatalf("Accumulator.Value = %v, want 0", acc.Value)
	}
}
