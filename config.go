package layeredconfig

import (
	"context"
	"sort"

	"github.com/spf13/cast"
)

// LayeredConfig presents an ordered list of Sources as a single tree.
// Sources are ordered low-to-high priority: index 0 shadows nothing,
// the last source shadows everything below it. A LayeredConfig built
// by navigating into a map-valued key (a "sub-view") carries a
// keychain recording the path that produced it and shares its parent's
// strategy map, per SPEC_FULL.md §4.6.
type LayeredConfig struct {
	sources    []*Source
	strategies map[string]Strategy
	keychain   []string
}

// NewLayeredConfig builds the top-level view over sources (low-to-high
// priority) using the given per-key strategy map. strategies may be nil.
func NewLayeredConfig(strategies map[string]Strategy, sources ...*Source) *LayeredConfig {
	if strategies == nil {
		strategies = map[string]Strategy{}
	}
	return &LayeredConfig{sources: sources, strategies: strategies}
}

func (cfg *LayeredConfig) subView(sources []*Source, key string) *LayeredConfig {
	keychain := make([]string, len(cfg.keychain)+1)
	copy(keychain, cfg.keychain)
	keychain[len(cfg.keychain)] = key
	return &LayeredConfig{sources: sources, strategies: cfg.strategies, keychain: keychain}
}

// navigate walks root down keychain via Get, one path segment at a
// time. ok is false if any segment is absent or stops being a subtree
// at this source — the caller should then skip this source entirely
// rather than treat it as an error.
func navigate(ctx context.Context, root *Source, keychain []string) (*Source, bool, error) {
	cur := root
	for _, segment := range keychain {
		v, found, err := cur.Get(ctx, segment)
		if err != nil {
			return nil, false, err
		}
		if !found {
			return nil, false, nil
		}
		sub, ok := v.(*Source)
		if !ok {
			return nil, false, nil
		}
		cur = sub
	}
	return cur, true, nil
}

func reverseSources(sources []*Source) []*Source {
	out := make([]*Source, len(sources))
	for i, s := range sources {
		out[len(sources)-1-i] = s
	}
	return out
}

// Get resolves key against the current view, walking sources from
// highest to lowest priority. See SPEC_FULL.md §4.6 for the full walk
// algorithm (subtree subqueues, strategy accumulation, type coercion).
func (cfg *LayeredConfig) Get(ctx context.Context, key string) (interface{}, error) {
	var subqueue []*Source
	strategy, hasStrategy := cfg.strategies[key]
	var acc Accumulator

	for i := len(cfg.sources) - 1; i >= 0; i-- {
		root := cfg.sources[i]
		navigated, ok, err := navigate(ctx, root, cfg.keychain)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		value, found, err := navigated.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		if _, isSub := value.(*Source); isSub {
			subqueue = append(subqueue, root)
			continue
		}

		if !navigated.Meta().Typed {
			value = cfg.coerceType(ctx, key, value)
		}

		if hasStrategy {
			acc = strategy(value, acc)
			continue
		}
		return value, nil
	}

	if acc.Present {
		return acc.Value, nil
	}
	if len(subqueue) > 0 {
		return cfg.subView(reverseSources(subqueue), key), nil
	}
	return nil, &NotFoundError{Key: key}
}

// GetOrDefault returns the value at key, or def if it's absent anywhere
// in the walk.
func (cfg *LayeredConfig) GetOrDefault(ctx context.Context, key string, def interface{}) (interface{}, error) {
	v, err := cfg.Get(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			return def, nil
		}
		return nil, err
	}
	return v, nil
}

// coerceType scans typed sources at the current keychain (highest
// priority first, independent of where the untyped hit occurred in
// the outer walk) for key; the first one found lends its runtime type
// to coerce value. If no typed source has the key, value is returned
// unchanged.
func (cfg *LayeredConfig) coerceType(ctx context.Context, key string, value interface{}) interface{} {
	for i := len(cfg.sources) - 1; i >= 0; i-- {
		root := cfg.sources[i]
		if !root.Meta().Typed {
			continue
		}
		navigated, ok, err := navigate(ctx, root, cfg.keychain)
		if err != nil || !ok {
			continue
		}
		typedValue, found, err := navigated.Get(ctx, key)
		if err != nil || !found {
			continue
		}
		if _, isSub := typedValue.(*Source); isSub {
			continue
		}
		return coerceTo(value, typedValue)
	}
	return value
}

// coerceTo converts value (always a string, since it came from an
// untyped source) to the Go type of typed, using spf13/cast, for typed
// values of kind int, int64, float64/float32 (both yield a float64),
// bool and string. value is returned unconverted if the cast fails or
// typed is of any other type.
func coerceTo(value interface{}, typed interface{}) interface{} {
	switch typed.(type) {
	case int:
		if v, err := cast.ToIntE(value); err == nil {
			return v
		}
	case int64:
		if v, err := cast.ToInt64E(value); err == nil {
			return v
		}
	case float64, float32:
		if v, err := cast.ToFloat64E(value); err == nil {
			return v
		}
	case bool:
		if v, err := cast.ToBoolE(value); err == nil {
			return v
		}
	case string:
		return cast.ToString(value)
	}
	return value
}

// Contains reports whether key resolves anywhere in the walk.
func (cfg *LayeredConfig) Contains(ctx context.Context, key string) (bool, error) {
	_, err := cfg.Get(ctx, key)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Iterate yields each key present at the top level of any source,
// once, in first-seen order walking highest priority first.
func (cfg *LayeredConfig) Iterate(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var keys []string
	for i := len(cfg.sources) - 1; i >= 0; i-- {
		navigated, ok, err := navigate(ctx, cfg.sources[i], cfg.keychain)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ks, err := navigated.Iterate(ctx)
		if err != nil {
			return nil, err
		}
		for _, k := range ks {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

// Len is the number of distinct top-level keys.
func (cfg *LayeredConfig) Len(ctx context.Context) (int, error) {
	keys, err := cfg.Iterate(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Items resolves every top-level key to a value: scalars (subject to
// strategy accumulation and type coercion) and sub-views for keys that
// are a subtree in at least one source. A key that is a scalar in one
// source and a subtree in another, with no strategy registered, is a
// ConflictError — bulk enumeration must commit to one shape per key,
// unlike Get, which silently returns the first scalar its walk meets
// and drops any subtree contributions for that key.
func (cfg *LayeredConfig) Items(ctx context.Context) ([]Item, error) {
	scalars := map[string]interface{}{}
	yielded := map[string]bool{}
	results := map[string]Accumulator{}
	subqueues := map[string][]*Source{}

	for i := len(cfg.sources) - 1; i >= 0; i-- {
		root := cfg.sources[i]
		navigated, ok, err := navigate(ctx, root, cfg.keychain)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		items, err := navigated.Items(ctx)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			key, value := it.Key, it.Value

			if _, isMap := asMap(value); isMap {
				if yielded[key] {
					return nil, &ConflictError{Key: key, Source: root.Meta().Name}
				}
				subqueues[key] = append(subqueues[key], root)
				continue
			}

			if _, queued := subqueues[key]; queued {
				return nil, &ConflictError{Key: key, Source: root.Meta().Name}
			}

			if !navigated.Meta().Typed {
				value = cfg.coerceType(ctx, key, value)
			}

			if strategy, hasStrategy := cfg.strategies[key]; hasStrategy {
				results[key] = strategy(value, results[key])
				continue
			}
			if yielded[key] {
				continue
			}
			scalars[key] = value
			yielded[key] = true
		}
	}

	out := make(map[string]interface{}, len(scalars)+len(results)+len(subqueues))
	for k, v := range scalars {
		out[k] = v
	}
	for k, acc := range results {
		out[k] = acc.Value
	}
	for k, sq := range subqueues {
		out[k] = cfg.subView(reverseSources(sq), k)
	}

	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := make([]Item, 0, len(keys))
	for _, k := range keys {
		result = append(result, Item{Key: k, Value: out[k]})
	}
	return result, nil
}

// Set traverses sources from highest to lowest priority: a source
// already holding key at this level receives the write (its original
// home is preserved); otherwise the first writable source encountered
// becomes the fallback sink. A source holding key receives the write
// even if it is read-only or locked, and its NotWritableError or
// LockedError is returned without trying other sources. Fails with
// NotWritableError if no source holds key and nothing along the walk
// can accept a write.
func (cfg *LayeredConfig) Set(ctx context.Context, key string, value interface{}) error {
	var sink *Source
	for i := len(cfg.sources) - 1; i >= 0; i-- {
		navigated, ok, err := navigate(ctx, cfg.sources[i], cfg.keychain)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if sink == nil && navigated.Writable() {
			sink = navigated
		}
		contains, err := navigated.Contains(ctx, key)
		if err != nil {
			return err
		}
		if contains {
			return navigated.Set(ctx, key, value)
		}
	}
	if sink != nil {
		return sink.Set(ctx, key, value)
	}
	return &NotWritableError{Source: "LayeredConfig"}
}

// SetDefault returns the current value at key, setting it to value
// first if it was absent anywhere in the walk.
func (cfg *LayeredConfig) SetDefault(ctx context.Context, key string, value interface{}) (interface{}, error) {
	v, err := cfg.Get(ctx, key)
	if err == nil {
		return v, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}
	if err := cfg.Set(ctx, key, value); err != nil {
		return nil, err
	}
	return value, nil
}

// Delete removes key from every source that holds it at this level.
func (cfg *LayeredConfig) Delete(ctx context.Context, key string) error {
	deleted := false
	for i := len(cfg.sources) - 1; i >= 0; i-- {
		navigated, ok, err := navigate(ctx, cfg.sources[i], cfg.keychain)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		contains, err := navigated.Contains(ctx, key)
		if err != nil {
			return err
		}
		if !contains {
			continue
		}
		if err := navigated.Delete(ctx, key); err != nil {
			return err
		}
		deleted = true
	}
	if !deleted {
		return &NotFoundError{Key: key}
	}
	return nil
}

// Update applies Set for every key in each of others, which may be a
// map[string]interface{} or another *LayeredConfig (dumped first).
func (cfg *LayeredConfig) Update(ctx context.Context, others ...interface{}) error {
	for _, other := range others {
		var data map[string]interface{}
		switch o := other.(type) {
		case *LayeredConfig:
			d, err := o.Dump(ctx)
			if err != nil {
				return err
			}
			data = d
		case map[string]interface{}:
			data = o
		default:
			return &StructureError{Reason: "Update: unsupported argument type"}
		}
		for _, k := range sortedKeys(data) {
			if err := cfg.Set(ctx, k, data[k]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Dump recursively materializes the view into a plain nested map.
func (cfg *LayeredConfig) Dump(ctx context.Context) (map[string]interface{}, error) {
	items, err := cfg.Items(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(items))
	for _, it := range items {
		if sub, ok := it.Value.(*LayeredConfig); ok {
			d, err := sub.Dump(ctx)
			if err != nil {
				return nil, err
			}
			out[it.Key] = d
			continue
		}
		out[it.Key] = it.Value
	}
	return out, nil
}

// Equals reports whether this view and other dump to the same tree.
func (cfg *LayeredConfig) Equals(ctx context.Context, other *LayeredConfig) (bool, error) {
	a, err := cfg.Dump(ctx)
	if err != nil {
		return false, err
	}
	b, err := other.Dump(ctx)
	if err != nil {
		return false, err
	}
	return mapsEqual(a, b), nil
}
