package layeredconfig

import "context"

// dictBackend is the in-memory reference backend: the simplest possible
// Source, used throughout the test suite the way the teacher's
// MapSource anchors asecurityteam/settings' own tests.
type dictBackend struct {
	data map[string]interface{}
}

func (b *dictBackend) read(_ context.Context) (map[string]interface{}, error) {
	return deepCopyMap(b.data), nil
}

func (b *dictBackend) write(_ context.Context, data map[string]interface{}) error {
	b.data = deepCopyMap(data)
	return nil
}

// NewDictSource wraps a plain map as a writable, typed Source. The map
// is deep-copied on construction so later external mutation of m can't
// contaminate the source (SPEC_FULL.md §4.2).
func NewDictSource(m map[string]interface{}, opts ...Option) *Source {
	if m == nil {
		m = map[string]interface{}{}
	}
	return newSource("DictSource", &dictBackend{data: deepCopyMap(m)}, opts...)
}
