package layeredconfig

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/ini.v1"
)

const iniRootSection = "__root__"

// iniBackend maps an INI document's flat sections onto a tree, per
// SPEC_FULL.md §4.4. It is untyped and read-only: ini.v1 handles the
// byte-level parsing, this backend only owns the section-to-tree shape.
type iniBackend struct {
	r               io.Reader
	subsectionToken string
}

func (b *iniBackend) read(_ context.Context) (map[string]interface{}, error) {
	raw, err := io.ReadAll(b.r)
	if err != nil {
		return nil, err
	}
	// The input reader can only be drained once; keep its bytes behind a
	// fresh reader so every later read parses the same document.
	b.r = strings.NewReader(string(raw))
	file, err := ini.Load(raw)
	if err != nil {
		return nil, newBackendError("INIFile", err)
	}

	data := map[string]interface{}{}
	for _, section := range file.Sections() {
		name := section.Name()
		if name == ini.DefaultSection {
			continue
		}
		body := sectionBody(section)

		switch {
		case name == iniRootSection:
			if err := mergeLeaves(data, body); err != nil {
				return nil, err
			}
		case b.subsectionToken != "" && strings.Contains(name, b.subsectionToken):
			path := strings.Split(name, b.subsectionToken)
			if err := insertAtPath(data, path, body); err != nil {
				return nil, err
			}
		default:
			if err := insertAtPath(data, []string{name}, body); err != nil {
				return nil, err
			}
		}
	}
	return data, nil
}

func sectionBody(section *ini.Section) map[string]interface{} {
	body := map[string]interface{}{}
	for _, key := range section.Keys() {
		body[key.Name()] = key.Value()
	}
	return body
}

// mergeLeaves merges src's scalar key/values into dst, erroring if a
// key already names a subtree.
func mergeLeaves(dst, src map[string]interface{}) error {
	for k, v := range src {
		if existing, ok := dst[k]; ok {
			if _, isMap := asMap(existing); isMap {
				return &StructureError{Reason: fmt.Sprintf("ini key %q collides with an existing section", k)}
			}
		}
		dst[k] = v
	}
	return nil
}

// insertAtPath walks (creating as needed) path within dst and, at the
// final component, merges body as that node's map — erroring if any
// step along the path has already been claimed by a scalar value.
func insertAtPath(dst map[string]interface{}, path []string, body map[string]interface{}) error {
	cur := dst
	for _, segment := range path[:len(path)-1] {
		existing, ok := cur[segment]
		if !ok {
			next := map[string]interface{}{}
			cur[segment] = next
			cur = next
			continue
		}
		next, isMap := asMap(existing)
		if !isMap {
			return &StructureError{Reason: fmt.Sprintf("ini section path %q collides with an existing scalar", strings.Join(path, "/"))}
		}
		cur = next
	}

	leaf := path[len(path)-1]
	existing, ok := cur[leaf]
	if !ok {
		cur[leaf] = body
		return nil
	}
	existingMap, isMap := asMap(existing)
	if !isMap {
		return &StructureError{Reason: fmt.Sprintf("ini section %q collides with an existing scalar", strings.Join(path, "/"))}
	}
	return mergeLeaves(existingMap, body)
}

// NewINISource parses r as an INI document. subsectionToken, when
// non-empty, lets section names encode nested paths (e.g. "db::prod").
func NewINISource(r io.Reader, subsectionToken string, opts ...Option) *Source {
	opts = append([]Option{withTyped(false)}, opts...)
	return newSource("INIFile", &iniBackend{r: r, subsectionToken: subsectionToken}, opts...)
}
