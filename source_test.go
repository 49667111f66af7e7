package layeredconfig

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

func TestSource_Get(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		data  map[string]interface{}
		key   string
		want  interface{}
		found bool
	}{
		{
			name:  "missing key",
			data:  map[string]interface{}{},
			key:   "a",
			found: false,
		},
		{
			name:  "scalar",
			data:  map[string]interface{}{"a": "b"},
			key:   "a",
			want:  "b",
			found: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewDictSource(tt.data)
			got, found, err := s.Get(ctx, tt.key)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if found != tt.found {
				t.Fatalf("Get() found = %v, want %v", found, tt.found)
			}
			if found && !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Get() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSource_Get_subtree(t *testing.T) {
	ctx := context.Background()
	s := NewDictSource(map[string]interface{}{
		"a": map[string]interface{}{"b": "c"},
	})
	got, found, err := s.Get(ctx, "a")
	if err != nil || !found {
		t.Fatalf("Get() error = %v, found = %v", err, found)
	}
	sub, ok := got.(*Source)
	if !ok {
		t.Fatalf("Get() on a map-valued key = %T, want *Source", got)
	}
	v, found, err := sub.Get(ctx, "b")
	if err != nil || !found || v != "c" {
		t.Fatalf("sub.Get(b) = %v, %v, %v, want c, true, nil", v, found, err)
	}
}

func TestSource_Set_readOnly(t *testing.T) {
	ctx := context.Background()
	s := NewINISource(strings.NewReader("[a]\nb = c\n"), "")
	if err := s.Set(ctx, "a", "b"); err == nil {
		t.Fatalf("Set() on a read-only source should fail")
	} else if _, ok := err.(*NotWritableError); !ok {
		t.Fatalf("Set() error = %T, want *NotWritableError", err)
	}
}

func TestSource_Set_locked(t *testing.T) {
	ctx := context.Background()
	s := NewDictSource(map[string]interface{}{}, WithLocked(true))
	if err := s.Set(ctx, "a", "b"); err == nil {
		t.Fatalf("Set() on a locked source should fail")
	} else if _, ok := err.(*LockedError); !ok {
		t.Fatalf("Set() error = %T, want *LockedError", err)
	}
}

func TestSource_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewDictSource(map[string]interface{}{"a": 1, "b": 2})
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if ok, _ := s.Contains(ctx, "a"); ok {
		t.Fatalf("Delete() did not remove key")
	}
	if err := s.Delete(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("Delete() of a missing key error = %v, want NotFoundError", err)
	}
}

func TestSource_Update_deepMerges(t *testing.T) {
	ctx := context.Background()
	s := NewDictSource(map[string]interface{}{
		"a": map[string]interface{}{"x": 1, "y": 2},
	})
	if err := s.Update(ctx, map[string]interface{}{
		"a": map[string]interface{}{"y": 3, "z": 4},
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, err := s.Dump(ctx, false)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	want := map[string]interface{}{"a": map[string]interface{}{"x": 1, "y": 3, "z": 4}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Dump() after Update() = %v, want %v", got, want)
	}
}

func TestSource_CustomTypes_roundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewDictSource(map[string]interface{}{}, WithCustomTypes(map[string]CustomType{
		"token": {
			Encode: func(v interface{}) interface{} { return "decrypted:" + v.(string) },
			Decode: func(v interface{}) interface{} { return "encrypted:" + v.(string) },
		},
	}))
	if err := s.Set(ctx, "token", "secret"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, _, err := s.Get(ctx, "token")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "decrypted:encrypted:secret" {
		t.Fatalf("Get() = %v, want round-tripped custom type value", got)
	}
}

func TestSource_Cached_deferredWrite(t *testing.T) {
	ctx := context.Background()
	backend := &dictBackend{data: map[string]interface{}{"a": 1}}
	s := newSource("DictSource", backend, WithCached(true))
	if err := s.Set(ctx, "a", 2); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if backend.data["a"] != 1 {
		t.Fatalf("cached Set() leaked into backing store before FlushCache")
	}
	if err := s.FlushCache(ctx); err != nil {
		t.Fatalf("FlushCache() error = %v", err)
	}
	if backend.data["a"] != 2 {
		t.Fatalf("FlushCache() did not push the cached value to the backend")
	}
}

func TestSource_Lock_transitiveThroughSubSource(t *testing.T) {
	ctx := context.Background()
	s := NewDictSource(map[string]interface{}{
		"section": map[string]interface{}{"a": 1},
	})
	s.Lock()

	sub, found, err := s.Get(ctx, "section")
	if err != nil || !found {
		t.Fatalf("Get() error = %v, found = %v", err, found)
	}
	subSource := sub.(*Source)
	if err := subSource.Set(ctx, "a", 2); err == nil {
		t.Fatalf("Set() on a sub-source of a locked parent should fail")
	} else if _, ok := err.(*LockedError); !ok {
		t.Fatalf("Set() error = %T, want *LockedError", err)
	}
}
