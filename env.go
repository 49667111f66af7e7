package layeredconfig

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// envBackend scans the OS environment for variables under a prefix and
// maps the remainder of each name to a tree path. It is untyped: every
// scalar it produces is a string (SPEC_FULL.md §4.3).
type envBackend struct {
	prefix string
	token  string
}

func (b *envBackend) read(_ context.Context) (map[string]interface{}, error) {
	data := map[string]interface{}{}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, b.prefix) {
			continue
		}
		rest := strings.ToLower(strings.TrimPrefix(name, b.prefix))
		path := strings.Split(rest, b.token)

		cur := data
		conflict := false
		for _, segment := range path[:len(path)-1] {
			next, exists := cur[segment]
			if !exists {
				m := map[string]interface{}{}
				cur[segment] = m
				cur = m
				continue
			}
			m, isMap := asMap(next)
			if !isMap {
				// An earlier variable already claimed this segment as a
				// scalar leaf; naive key/value stores like environment
				// variables carry no inherent hierarchy, so this
				// conflict is simply ignored rather than rejected.
				conflict = true
				break
			}
			cur = m
		}
		if conflict {
			continue
		}
		cur[path[len(path)-1]] = value
	}
	return data, nil
}

func (b *envBackend) write(_ context.Context, data map[string]interface{}) error {
	return b.writePath(data, nil)
}

func (b *envBackend) writePath(section map[string]interface{}, keychain []string) error {
	for key, value := range section {
		if sub, ok := asMap(value); ok {
			if err := b.writePath(sub, append(keychain, key)); err != nil {
				return err
			}
			continue
		}
		full := strings.ToUpper(strings.Join(append(keychain, key), b.token))
		if err := os.Setenv(b.prefix+full, fmt.Sprintf("%v", value)); err != nil {
			return err
		}
	}
	return nil
}

// NewEnvironmentSource scans process environment variables whose name
// starts with prefix, mapping the remainder split on token into a tree.
// token defaults to "_".
func NewEnvironmentSource(prefix, token string, opts ...Option) *Source {
	if token == "" {
		token = "_"
	}
	opts = append([]Option{withTyped(false)}, opts...)
	return newSource("Environment", &envBackend{prefix: prefix, token: token}, opts...)
}
