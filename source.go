// Package layeredconfig presents any number of independently-owned
// configuration backends — in-memory defaults, JSON/YAML/INI files, the
// OS environment, an etcd-like remote store — as one navigable tree. See
// LayeredConfig for the merge engine and Source for the backend contract.
package layeredconfig

import "context"

// Meta carries the static facts about a Source that the merge engine and
// callers need in order to reason about it without touching its storage.
type Meta struct {
	Name     string // diagnostic name, e.g. "DictSource"
	ReadOnly bool   // true if the backend never supports write()
	Typed    bool   // false if every scalar this source produces is a string
}

// CustomType is a per-key encode/decode pair. Encode runs on read (raw
// storage value -> value handed to the caller); Decode runs on write
// (value handed in by the caller -> value persisted to storage). A well
// behaved pair round-trips: Decode(Encode(x)) == x.
type CustomType struct {
	Encode func(interface{}) interface{}
	Decode func(interface{}) interface{}
}

// backend is the minimal contract every storage adapter satisfies. The
// Python reference enforces "must implement read" with a metaclass check
// at class-definition time; Go enforces the same rule at compile time
// via interface satisfaction, so there is nothing left to check at
// runtime beyond guarding against a nil backend.
type backend interface {
	read(ctx context.Context) (map[string]interface{}, error)
}

// writableBackend is satisfied by backends that additionally support
// persisting a replacement tree. A backend's absence of write() is what
// makes a Source read-only.
type writableBackend interface {
	backend
	write(ctx context.Context, data map[string]interface{}) error
}

// Item is a single (key, value) pair as produced by Source.Items and
// LayeredConfig.Items. From Source.Items, Value is the raw tree value: a
// nested map[string]interface{} for a subtree, or a scalar — never a
// *Source (that wrapping only happens for Get, which needs to hand the
// caller something navigable). From LayeredConfig.Items, a subtree is a
// *LayeredConfig sub-view and a scalar is the resolved value.
type Item struct {
	Key   string
	Value interface{}
}

// Source is the orthogonal-behaviors-as-flags embodiment of the
// lock/cache/custom-type mixins described in SPEC_FULL.md §4.1.1: rather
// than multiple inheritance (unavailable in Go) or a stack of wrapping
// decorators, every Source is this one struct and the mixins are
// configuration on it. A Source with a non-nil parent is a sub-source:
// a transient view rooted at a map-valued key of another Source, valid
// only while that key continues to hold a map (see readFromParent).
type Source struct {
	meta        Meta
	store       backend
	parent      *Source
	parentKey   string
	customTypes map[string]CustomType
	locked      bool
	cached      bool
	hasCache    bool
	cache       map[string]interface{}
}

// Option configures a Source at construction time.
type Option func(*Source)

// WithLocked sets the user-settable write ban. A locked source refuses
// writes with a LockedError, distinguished from a structurally
// read-only backend which refuses with NotWritableError.
func WithLocked(locked bool) Option {
	return func(s *Source) { s.locked = locked }
}

// WithCached enables the read-once/mutate-in-memory/flush-on-demand
// behavior described in SPEC_FULL.md §4.1.1.
func WithCached(cached bool) Option {
	return func(s *Source) { s.cached = cached }
}

// WithCustomTypes installs the per-key encode/decode map.
func WithCustomTypes(types map[string]CustomType) Option {
	return func(s *Source) { s.customTypes = types }
}

// withTyped overrides the default Typed=true meta flag; used by the
// Environment and INI backends, which only ever produce strings.
func withTyped(typed bool) Option {
	return func(s *Source) { s.meta.Typed = typed }
}

func newSource(name string, store backend, opts ...Option) *Source {
	_, writable := store.(writableBackend)
	s := &Source{
		meta:  Meta{Name: name, ReadOnly: !writable, Typed: true},
		store: store,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Meta returns the source's static metadata.
func (s *Source) Meta() Meta { return s.meta }

// Writable reports whether a write would currently be accepted: the
// backend must support writing and the source must not be locked.
func (s *Source) Writable() bool {
	return !s.meta.ReadOnly && !s.locked
}

// Lock sets the user write ban. Unlike ReadOnly, Locked is settable on
// any writable source at any time.
func (s *Source) Lock() { s.locked = true }

// Unlock clears the user write ban.
func (s *Source) Unlock() { s.locked = false }

// Locked reports the current user write ban, independent of whether
// the backend is structurally read-only.
func (s *Source) Locked() bool { return s.locked }

func (s *Source) checkWritable() error {
	if s.meta.ReadOnly {
		return &NotWritableError{Source: s.meta.Name}
	}
	if s.locked {
		return &LockedError{Source: s.meta.Name}
	}
	return nil
}

func (s *Source) wrapErr(err error) error {
	switch err.(type) {
	case *NotFoundError, *NotWritableError, *LockedError, *ConflictError,
		*StructureError, *MissingDependencyError, *BackendError:
		return err
	default:
		return newBackendError(s.meta.Name, err)
	}
}

// Read produces the current full tree at this source's level. Reads
// are lazy (each call reflects current backing storage) unless caching
// is enabled, in which case the first read populates a snapshot and
// every later call returns a copy of it. A sub-source of a cached
// source is never independently cached — it always delegates to its
// parent, which applies its own cache policy.
func (s *Source) Read(ctx context.Context) (map[string]interface{}, error) {
	if s.parent != nil {
		return s.readFromParent(ctx)
	}
	if s.cached {
		if !s.hasCache {
			m, err := s.store.read(ctx)
			if err != nil {
				return nil, s.wrapErr(err)
			}
			s.cache = deepCopyMap(m)
			s.hasCache = true
		}
		return deepCopyMap(s.cache), nil
	}
	m, err := s.store.read(ctx)
	if err != nil {
		return nil, s.wrapErr(err)
	}
	return m, nil
}

func (s *Source) readFromParent(ctx context.Context) (map[string]interface{}, error) {
	parentData, err := s.parent.Read(ctx)
	if err != nil {
		return nil, err
	}
	v, ok := parentData[s.parentKey]
	if !ok {
		return nil, &NotFoundError{Key: s.parentKey}
	}
	m, ok := asMap(v)
	if !ok {
		// The key was replaced by a scalar (or removed and recreated as
		// one) since this sub-source was materialized. It is invalid.
		return nil, &NotFoundError{Key: s.parentKey}
	}
	return m, nil
}

// Write replaces the full tree at this source's level. It fails if the
// source is read-only or locked. Writes against a sub-source round trip
// through the parent's storage, as described in SPEC_FULL.md §9
// ("sub-source back-reference is a weak relation").
func (s *Source) Write(ctx context.Context, data map[string]interface{}) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if s.parent != nil {
		parentData, err := s.parent.Read(ctx)
		if err != nil {
			return err
		}
		parentData[s.parentKey] = data
		return s.parent.Write(ctx, parentData)
	}
	if s.cached {
		s.cache = deepCopyMap(data)
		s.hasCache = true
		return nil
	}
	wb, ok := s.store.(writableBackend)
	if !ok {
		return &NotWritableError{Source: s.meta.Name}
	}
	if err := wb.write(ctx, data); err != nil {
		return s.wrapErr(err)
	}
	return nil
}

// FlushCache pushes a cached snapshot back through the backend's
// uncached write path. It is a no-op for sources that aren't cached or
// have never been read. A sub-source delegates entirely to its parent.
func (s *Source) FlushCache(ctx context.Context) error {
	if s.parent != nil {
		return s.parent.FlushCache(ctx)
	}
	if !s.cached || !s.hasCache {
		return nil
	}
	wb, ok := s.store.(writableBackend)
	if !ok {
		return &NotWritableError{Source: s.meta.Name}
	}
	if err := wb.write(ctx, s.cache); err != nil {
		return s.wrapErr(err)
	}
	return nil
}

func (s *Source) subSource(key string) *Source {
	return &Source{
		meta:        s.meta,
		parent:      s,
		parentKey:   key,
		customTypes: s.customTypes,
	}
}

func (s *Source) encode(key string, raw interface{}) interface{} {
	ct, ok := s.customTypes[key]
	if !ok || ct.Encode == nil {
		return raw
	}
	return ct.Encode(raw)
}

func (s *Source) decode(key string, value interface{}) interface{} {
	ct, ok := s.customTypes[key]
	if !ok || ct.Decode == nil {
		return value
	}
	return ct.Decode(value)
}

// Get returns the value at key in the current tree. A map-valued key
// materializes a sub-source (not a plain map) so the caller can keep
// navigating or writing through it. The second return value reports
// whether key was present; a missing key is not an error.
func (s *Source) Get(ctx context.Context, key string) (interface{}, bool, error) {
	data, err := s.Read(ctx)
	if err != nil {
		if IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	raw, found := data[key]
	if !found {
		return nil, false, nil
	}
	if _, ok := asMap(raw); ok {
		return s.subSource(key), true, nil
	}
	return s.encode(key, raw), true, nil
}

// GetOrDefault returns the value at key, or def if it is absent.
func (s *Source) GetOrDefault(ctx context.Context, key string, def interface{}) (interface{}, error) {
	v, found, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return def, nil
	}
	return v, nil
}

// Set stores value at key, failing if the source is read-only or
// locked.
func (s *Source) Set(ctx context.Context, key string, value interface{}) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	data, err := s.Read(ctx)
	if err != nil {
		if !IsNotFound(err) {
			return err
		}
		data = map[string]interface{}{}
	}
	data[key] = s.decode(key, value)
	return s.Write(ctx, data)
}

// SetDefault returns the current value at key, setting it to value
// first if it was absent.
func (s *Source) SetDefault(ctx context.Context, key string, value interface{}) (interface{}, error) {
	v, found, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if found {
		return v, nil
	}
	if err := s.Set(ctx, key, value); err != nil {
		return nil, err
	}
	return value, nil
}

// Delete removes key from the current level.
func (s *Source) Delete(ctx context.Context, key string) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	data, err := s.Read(ctx)
	if err != nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return &NotFoundError{Key: key}
	}
	delete(data, key)
	return s.Write(ctx, data)
}

// Contains reports whether key exists at the current level.
func (s *Source) Contains(ctx context.Context, key string) (bool, error) {
	data, err := s.Read(ctx)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	_, ok := data[key]
	return ok, nil
}

// Iterate returns the keys at the current level, sorted for
// determinism (Go maps carry no insertion order — see SPEC_FULL.md §3).
func (s *Source) Iterate(ctx context.Context) ([]string, error) {
	data, err := s.Read(ctx)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return sortedKeys(data), nil
}

// Len is the number of distinct keys at the current level.
func (s *Source) Len(ctx context.Context) (int, error) {
	keys, err := s.Iterate(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Items returns (key, value) pairs for the current level. Unlike Get,
// map-valued entries come back as plain map[string]interface{}, not a
// sub-source — callers that need to navigate or write should use Get.
func (s *Source) Items(ctx context.Context) ([]Item, error) {
	data, err := s.Read(ctx)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	keys := sortedKeys(data)
	items := make([]Item, 0, len(keys))
	for _, k := range keys {
		items = append(items, Item{Key: k, Value: data[k]})
	}
	return items, nil
}

// Update deep-merges the given maps and Sources over the current tree;
// later arguments win on key conflicts.
func (s *Source) Update(ctx context.Context, others ...interface{}) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	data, err := s.Read(ctx)
	if err != nil {
		if !IsNotFound(err) {
			return err
		}
		data = map[string]interface{}{}
	}
	for _, other := range others {
		var otherData map[string]interface{}
		switch o := other.(type) {
		case *Source:
			otherData, err = o.Dump(ctx, false)
			if err != nil {
				return err
			}
		case map[string]interface{}:
			otherData = o
		default:
			return &StructureError{Reason: "Update: unsupported argument type"}
		}
		data = deepMerge(data, otherData)
	}
	return s.Write(ctx, data)
}

// Dump recursively materializes the current tree into a plain nested
// map, in the source's native typing. With withCustomTypes, scalars
// under a recognized key are passed through their Encode function.
func (s *Source) Dump(ctx context.Context, withCustomTypes bool) (map[string]interface{}, error) {
	data, err := s.Read(ctx)
	if err != nil {
		if IsNotFound(err) {
			return map[string]interface{}{}, nil
		}
		return nil, err
	}
	cp := deepCopyMap(data)
	if !withCustomTypes || len(s.customTypes) == 0 {
		return cp, nil
	}
	return s.applyCustomTypes(cp), nil
}

func (s *Source) applyCustomTypes(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		if sub, ok := asMap(v); ok {
			out[k] = s.applyCustomTypes(sub)
			continue
		}
		out[k] = s.encode(k, v)
	}
	return out
}

// Equals reports whether this source's current tree matches other.
func (s *Source) Equals(ctx context.Context, other map[string]interface{}) (bool, error) {
	data, err := s.Read(ctx)
	if err != nil {
		return false, err
	}
	return mapsEqual(data, other), nil
}
