package layeredconfig

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"
)

func typeHint(v interface{}) string {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Slice {
		return fmt.Sprintf("[]%s", t.Elem().String())
	}
	return t.String()
}

func yamlTypeDisplay(v interface{}) string {
	t := reflect.TypeOf(v)
	vv := reflect.ValueOf(v)
	display := fmt.Sprintf("%v", v)
	if t.Kind() == reflect.Slice {
		var b bytes.Buffer
		b.WriteString("\n")
		for i := 0; i < vv.Len(); i++ {
			b.WriteString(fmt.Sprintf("  - %s\n", yamlTypeDisplay(vv.Index(i).Interface())))
		}
		return b.String()
	}
	if t.Kind() == reflect.String {
		return `"` + display + `"`
	}
	if t.String() == durationTypeName || t.String() == timeTypeName {
		return fmt.Sprintf("%q", display)
	}
	return display
}

func removeExtraLines(s string) string {
	var b bytes.Buffer
	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		trimmed := strings.TrimSpace(scanner.Text())
		if len(trimmed) != strings.Count(trimmed, "\n") {
			b.WriteString(scanner.Text())
			b.WriteString("\n")
		}
	}
	return b.String()
}

// RenderYAMLGroups renders a Group tree as an annotated YAML document,
// one section per group and one commented line per setting.
func RenderYAMLGroups(groups []Group) string {
	var b bytes.Buffer
	for _, g := range groups {
		if len(g.Settings()) > 0 || len(g.Groups()) > 0 {
			b.WriteString(fmt.Sprintf("%s:\n", strings.ToLower(g.Name())))
		}
		if len(g.Settings()) > 0 {
			indent(&b, RenderYAMLSettings(g.Settings()))
		}
		if len(g.Groups()) > 0 {
			indent(&b, RenderYAMLGroups(g.Groups()))
		}
	}
	return removeExtraLines(b.String())
}

func indent(b *bytes.Buffer, text string) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		b.WriteString("  " + scanner.Text() + "\n")
	}
}

// RenderYAMLSettings renders a flat list of settings as YAML text.
func RenderYAMLSettings(settings []Setting) string {
	var b bytes.Buffer
	for _, s := range settings {
		hint := typeHint(s.Value())
		display := yamlTypeDisplay(s.Value())
		b.WriteString(fmt.Sprintf("# (%s) %s\n", hint, s.Description()))
		name := strings.ToLower(s.Name())
		if display != "" && display[0] == '\n' {
			b.WriteString(fmt.Sprintf("%s:%v\n", name, display))
			continue
		}
		b.WriteString(fmt.Sprintf("%s: %v\n", name, display))
	}
	return removeExtraLines(b.String())
}

func envTypeDisplay(v interface{}) string {
	t := reflect.TypeOf(v)
	vv := reflect.ValueOf(v)
	if t.Kind() == reflect.Slice {
		var b bytes.Buffer
		b.WriteString(`"`)
		for i := 0; i < vv.Len(); i++ {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(strings.Trim(envTypeDisplay(vv.Index(i).Interface()), `"`))
		}
		b.WriteString(`"`)
		return b.String()
	}
	if t.String() == durationTypeName {
		return fmt.Sprintf("%q", v)
	}
	if t.String() == timeTypeName {
		return `"` + vv.Interface().(time.Time).Format(time.RFC3339Nano) + `"`
	}
	return fmt.Sprintf(`"%v"`, v)
}

// RenderEnvGroups renders a Group tree as annotated environment
// variable assignments, with nested group names folded into the
// variable name prefix.
func RenderEnvGroups(groups []Group) string {
	var b bytes.Buffer
	stack := make([]Group, len(groups))
	copy(stack, groups)
	for len(stack) > 0 {
		var current Group
		current, stack = stack[len(stack)-1], stack[:len(stack)-1]
		for _, sub := range current.Groups() {
			stack = append(stack, &SettingGroup{
				NameValue:     strings.ToUpper(current.Name() + "_" + sub.Name()),
				GroupValues:   sub.Groups(),
				SettingValues: sub.Settings(),
			})
		}
		rendered := RenderEnvSettings(current.Settings())
		scanner := bufio.NewScanner(strings.NewReader(rendered))
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "#") {
				b.WriteString(line + "\n")
				continue
			}
			b.WriteString(strings.ToUpper(current.Name()) + "_" + line + "\n")
		}
	}
	return removeExtraLines(b.String())
}

// RenderEnvSettings renders a flat list of settings as environment
// variable assignments.
func RenderEnvSettings(settings []Setting) string {
	var b bytes.Buffer
	for _, s := range settings {
		hint := typeHint(s.Value())
		display := envTypeDisplay(s.Value())
		b.WriteString(fmt.Sprintf("# (%s) %s\n", hint, s.Description()))
		b.WriteString(fmt.Sprintf("%s=%s\n", strings.ToUpper(s.Name()), display))
	}
	return removeExtraLines(b.String())
}

// RenderYAMLFromConfig renders groups the same way RenderYAMLGroups
// does, but first overwrites every Setting's value with whatever cfg
// currently resolves for it (across every layer, with strategies and
// type coercion already applied), keeping the Setting's current value
// for keys absent from every layer. Where RenderYAMLGroups/
// RenderEnvGroups only show each Setting's value as it already stands,
// this produces a "what would actually load right now" document —
// useful for operators inspecting a running merge.
func RenderYAMLFromConfig(ctx context.Context, cfg *LayeredConfig, groups []Group) (string, error) {
	if err := syncGroupsFromConfig(ctx, cfg, groups); err != nil {
		return "", err
	}
	return RenderYAMLGroups(groups), nil
}

// RenderEnvFromConfig is RenderYAMLFromConfig's counterpart for the
// environment-variable renderer.
func RenderEnvFromConfig(ctx context.Context, cfg *LayeredConfig, groups []Group) (string, error) {
	if err := syncGroupsFromConfig(ctx, cfg, groups); err != nil {
		return "", err
	}
	return RenderEnvGroups(groups), nil
}

// syncGroupsFromConfig walks groups, pulling each setting's live value
// out of cfg (falling back to the setting's existing value when cfg
// doesn't resolve the key) and recursing into nested groups through
// cfg's own sub-view navigation.
func syncGroupsFromConfig(ctx context.Context, cfg *LayeredConfig, groups []Group) error {
	for _, g := range groups {
		for _, s := range g.Settings() {
			v, err := cfg.GetOrDefault(ctx, s.Name(), s.Value())
			if err != nil {
				return fmt.Errorf("resolving %s from config: %w", s.Name(), err)
			}
			if err := s.SetValue(v); err != nil {
				return fmt.Errorf("applying resolved value for %s: %w", s.Name(), err)
			}
		}
		for _, sub := range g.Groups() {
			subValue, err := cfg.GetOrDefault(ctx, sub.Name(), nil)
			if err != nil {
				return fmt.Errorf("resolving group %s from config: %w", sub.Name(), err)
			}
			subCfg, ok := subValue.(*LayeredConfig)
			if !ok {
				// Not present in this config (or shadowed by a scalar) —
				// leave the group's defaults as they were.
				continue
			}
			if err := syncGroupsFromConfig(ctx, subCfg, []Group{sub}); err != nil {
				return err
			}
		}
	}
	return nil
}
