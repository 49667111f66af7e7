package layeredconfig

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

func TestLayeredConfig_basicTwoLayerRead(t *testing.T) {
	ctx := context.Background()
	s1 := NewDictSource(map[string]interface{}{"a": 1, "b": map[string]interface{}{"c": 2}})
	s2 := NewDictSource(map[string]interface{}{"x": 6, "b": map[string]interface{}{"y": 7}})
	cfg := NewLayeredConfig(nil, s1, s2)

	if v, err := cfg.Get(ctx, "a"); err != nil || v != 1 {
		t.Fatalf("cfg.Get(a) = %v, %v, want 1, nil", v, err)
	}
	b, err := cfg.Get(ctx, "b")
	if err != nil {
		t.Fatalf("cfg.Get(b) error = %v", err)
	}
	bView, ok := b.(*LayeredConfig)
	if !ok {
		t.Fatalf("cfg.Get(b) = %T, want *LayeredConfig", b)
	}
	if v, err := bView.Get(ctx, "c"); err != nil || v != 2 {
		t.Fatalf("cfg.b.Get(c) = %v, %v, want 2, nil", v, err)
	}
	if v, err := bView.Get(ctx, "y"); err != nil || v != 7 {
		t.Fatalf("cfg.b.Get(y) = %v, %v, want 7, nil", v, err)
	}

	n, err := cfg.Len(ctx)
	if err != nil || n != 3 {
		t.Fatalf("cfg.Len() = %v, %v, want 3, nil", n, err)
	}

	dump, err := cfg.Dump(ctx)
	if err != nil {
		t.Fatalf("cfg.Dump() error = %v", err)
	}
	want := map[string]interface{}{
		"a": 1,
		"b": map[string]interface{}{"c": 2, "y": 7},
		"x": 6,
	}
	if !reflect.DeepEqual(dump, want) {
		t.Fatalf("cfg.Dump() = %v, want %v", dump, want)
	}
}

func TestLayeredConfig_typedShadowingByUntyped(t *testing.T) {
	ctx := context.Background()
	typedSource := NewDictSource(map[string]interface{}{
		"a": 1,
		"b": map[string]interface{}{"c": 2},
	})
	ini := strings.NewReader("[__root__]\na = 10\n[b]\nc = 20\n[b.d]\ne = 30\n")
	untypedSource := NewINISource(ini, ".")
	cfg := NewLayeredConfig(nil, typedSource, untypedSource)

	if v, err := cfg.Get(ctx, "a"); err != nil || v != 10 {
		t.Fatalf("cfg.Get(a) = %v, %v, want 10 (int), nil", v, err)
	}
	b, err := cfg.Get(ctx, "b")
	if err != nil {
		t.Fatalf("cfg.Get(b) error = %v", err)
	}
	bView := b.(*LayeredConfig)
	if v, err := bView.Get(ctx, "c"); err != nil || v != 20 {
		t.Fatalf("cfg.b.Get(c) = %v, %v, want 20 (int), nil", v, err)
	}
	d, err := bView.Get(ctx, "d")
	if err != nil {
		t.Fatalf("cfg.b.Get(d) error = %v", err)
	}
	dView := d.(*LayeredConfig)
	if v, err := dView.Get(ctx, "e"); err != nil || v != "30" {
		t.Fatalf("cfg.b.d.Get(e) = %v, %v, want \"30\" (string), nil", v, err)
	}
}

func TestLayeredConfig_strategies(t *testing.T) {
	ctx := context.Background()
	low := NewDictSource(map[string]interface{}{
		"a": 1,
		"x": []int{5, 6},
		"b": map[string]interface{}{"c": 2, "d": []int{3, 4}},
	})
	high := NewDictSource(map[string]interface{}{
		"a": 10,
		"x": []int{50, 60},
		"b": map[string]interface{}{"c": 20, "d": []int{30, 40}},
	})
	strategies := map[string]Strategy{
		"a": AddStrategy,
		"x": CollectStrategy,
		"c": CollectStrategy,
		"d": MergeStrategy,
	}
	cfg := NewLayeredConfig(strategies, low, high)

	if v, err := cfg.Get(ctx, "a"); err != nil || v != 11 {
		t.Fatalf("cfg.Get(a) = %v, %v, want 11, nil", v, err)
	}
	x, err := cfg.Get(ctx, "x")
	if err != nil {
		t.Fatalf("cfg.Get(x) error = %v", err)
	}
	wantX := []interface{}{[]int{50, 60}, []int{5, 6}}
	if !reflect.DeepEqual(x, wantX) {
		t.Fatalf("cfg.Get(x) = %v, want %v", x, wantX)
	}

	b, err := cfg.Get(ctx, "b")
	if err != nil {
		t.Fatalf("cfg.Get(b) error = %v", err)
	}
	bView := b.(*LayeredConfig)
	c, err := bView.Get(ctx, "c")
	if err != nil {
		t.Fatalf("cfg.b.Get(c) error = %v", err)
	}
	wantC := []interface{}{20, 2}
	if !reflect.DeepEqual(c, wantC) {
		t.Fatalf("cfg.b.Get(c) = %v, want %v", c, wantC)
	}
	d, err := bView.Get(ctx, "d")
	if err != nil {
		t.Fatalf("cfg.b.Get(d) error = %v", err)
	}
	wantD := []interface{}{30, 40, 3, 4}
	if !reflect.DeepEqual(d, wantD) {
		t.Fatalf("cfg.b.Get(d) = %v, want %v", d, wantD)
	}
}

func TestLayeredConfig_writeRouting(t *testing.T) {
	ctx := context.Background()
	s1 := NewDictSource(map[string]interface{}{"a": 1, "b": map[string]interface{}{"c": 2}})
	s2 := NewDictSource(map[string]interface{}{"x": 6, "b": map[string]interface{}{"y": 7}})
	cfg := NewLayeredConfig(nil, s1, s2)

	if err := cfg.Set(ctx, "a", 10); err != nil {
		t.Fatalf("cfg.Set(a, 10) error = %v", err)
	}
	if err := cfg.Set(ctx, "x", 60); err != nil {
		t.Fatalf("cfg.Set(x, 60) error = %v", err)
	}
	b, err := cfg.Get(ctx, "b")
	if err != nil {
		t.Fatalf("cfg.Get(b) error = %v", err)
	}
	bView := b.(*LayeredConfig)
	if err := bView.Set(ctx, "m", "n"); err != nil {
		t.Fatalf("cfg.b.Set(m, n) error = %v", err)
	}

	d1, err := s1.Dump(ctx, false)
	if err != nil {
		t.Fatalf("s1.Dump() error = %v", err)
	}
	if d1["a"] != 10 {
		t.Fatalf("s1.a = %v, want 10 (write should land on the source that already held the key)", d1["a"])
	}

	d2, err := s2.Dump(ctx, false)
	if err != nil {
		t.Fatalf("s2.Dump() error = %v", err)
	}
	if d2["x"] != 60 {
		t.Fatalf("s2.x = %v, want 60", d2["x"])
	}
	bMap, ok := d2["b"].(map[string]interface{})
	if !ok || bMap["m"] != "n" {
		t.Fatalf("s2.b.m = %v, want n (the highest-priority writable contributor to cfg.b)", d2["b"])
	}
}

func TestLayeredConfig_lockedAndReadOnlyWrites(t *testing.T) {
	ctx := context.Background()
	locked := NewDictSource(map[string]interface{}{"a": 1}, WithLocked(true))
	cfg := NewLayeredConfig(nil, locked)
	if err := cfg.Set(ctx, "a", 2); err == nil {
		t.Fatalf("Set() on a locked-only config should fail")
	} else if _, ok := err.(*LockedError); !ok {
		t.Fatalf("Set() error = %T, want *LockedError", err)
	}

	readOnly := NewINISource(strings.NewReader("[__root__]\na = 1\n"), "")
	cfg2 := NewLayeredConfig(nil, readOnly)
	if err := cfg2.Set(ctx, "a", "2"); err == nil {
		t.Fatalf("Set() on a read-only-only config should fail")
	} else if _, ok := err.(*NotWritableError); !ok {
		t.Fatalf("Set() error = %T, want *NotWritableError", err)
	}
}

func TestLayeredConfig_iniSubsectionToken(t *testing.T) {
	ctx := context.Background()

	withToken := NewINISource(strings.NewReader("[__root__]\na=1\n[b]\nc=2\n[b.d]\ne=3\n"), ".")
	cfg := NewLayeredConfig(nil, withToken)
	dump, err := cfg.Dump(ctx)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	want := map[string]interface{}{
		"a": "1",
		"b": map[string]interface{}{"c": "2", "d": map[string]interface{}{"e": "3"}},
	}
	if !reflect.DeepEqual(dump, want) {
		t.Fatalf("Dump() with subsection token = %v, want %v", dump, want)
	}

	withoutToken := NewINISource(strings.NewReader("[__root__]\na=1\n[b]\nc=2\n[b.d]\ne=3\n"), "")
	cfg2 := NewLayeredConfig(nil, withoutToken)
	dump2, err := cfg2.Dump(ctx)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	want2 := map[string]interface{}{
		"a":   "1",
		"b":   map[string]interface{}{"c": "2"},
		"b.d": map[string]interface{}{"e": "3"},
	}
	if !reflect.DeepEqual(dump2, want2) {
		t.Fatalf("Dump() without subsection token = %v, want %v", dump2, want2)
	}
}

func TestLayeredConfig_itemsConflictIsStructural(t *testing.T) {
	ctx := context.Background()
	low := NewDictSource(map[string]interface{}{"a": map[string]interface{}{"x": 1}})
	high := NewDictSource(map[string]interface{}{"a": "scalar"})
	cfg := NewLayeredConfig(nil, low, high)

	if _, err := cfg.Items(ctx); err == nil {
		t.Fatalf("Items() should fail when a key is a scalar in one source and a subtree in another")
	} else if _, ok := err.(*ConflictError); !ok {
		t.Fatalf("Items() error = %T, want *ConflictError", err)
	}

	// Point lookup, by contrast, lets the higher-priority scalar win silently.
	if v, err := cfg.Get(ctx, "a"); err != nil || v != "scalar" {
		t.Fatalf("cfg.Get(a) = %v, %v, want \"scalar\", nil", v, err)
	}
}

func TestLayeredConfig_notFound(t *testing.T) {
	ctx := context.Background()
	cfg := NewLayeredConfig(nil, NewDictSource(map[string]interface{}{}))
	if _, err := cfg.Get(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("cfg.Get(missing) error = %v, want NotFoundError", err)
	}
	v, err := cfg.GetOrDefault(ctx, "missing", "fallback")
	if err != nil || v != "fallback" {
		t.Fatalf("cfg.GetOrDefault(missing) = %v, %v, want fallback, nil", v, err)
	}
}

func TestLayeredConfig_deleteRemovesFromEveryContributingSource(t *testing.T) {
	ctx := context.Background()
	s1 := NewDictSource(map[string]interface{}{"a": 1})
	s2 := NewDictSource(map[string]interface{}{"a": 2})
	cfg := NewLayeredConfig(nil, s1, s2)

	if err := cfg.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	d1, _ := s1.Dump(ctx, false)
	d2, _ := s2.Dump(ctx, false)
	if _, ok := d1["a"]; ok {
		t.Fatalf("Delete() left a in s1")
	}
	if _, ok := d2["a"]; ok {
		t.Fatalf("Delete() left a in s2")
	}
}

func TestLayeredConfig_equals(t *testing.T) {
	ctx := context.Background()
	cfgA := NewLayeredConfig(nil, NewDictSource(map[string]interface{}{"a": 1}))
	cfgB := NewLayeredConfig(nil, NewDictSource(map[string]interface{}{"a": 1}))
	cfgC := NewLayeredConfig(nil, NewDictSource(map[string]interface{}{"a": 2}))

	eq, err := cfgA.Equals(ctx, cfgB)
	if err != nil || !eq {
		t.Fatalf("cfgA.Equals(cfgB) = %v, %v, want true, nil", eq, err)
	}
	eq, err = cfgA.Equals(ctx, cfgC)
	if err != nil || eq {
		t.Fatalf("cfgA.Equals(cfgC) = %v, %v, want false, nil", eq, err)
	}
}
