package layeredconfig

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"
)

const (
	timeTypeName     = "time.Time"
	durationTypeName = "time.Duration"
)

type namer interface{ Name() string }
type describer interface{ Description() string }

type fieldAndValue struct {
	Field reflect.StructField
	Value reflect.Value
}

// ConvertStruct walks a pointer to struct and builds the Group tree
// describing its settings, recursing into nested (non-anonymous)
// structs as sub-groups and flattening embedded ones, the way the
// teacher's Convert does for the flat Source world.
func ConvertStruct(v interface{}) (Group, error) {
	if v == nil {
		return nil, errors.New("nil value given to ConvertStruct")
	}
	vv := reflect.Indirect(reflect.ValueOf(v))
	if vv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("non-struct value %s given to ConvertStruct", vv.Type().String())
	}
	if !vv.CanAddr() {
		return nil, fmt.Errorf("unaddressable value %s given to ConvertStruct", vv.Type().String())
	}

	nameParts := strings.Split(vv.Type().Name(), ".")
	name := nameParts[len(nameParts)-1]
	if nr, ok := vv.Addr().Interface().(namer); ok {
		name = nr.Name()
	}
	desc := ""
	if nd, ok := vv.Addr().Interface().(describer); ok {
		desc = nd.Description()
	}
	g := &SettingGroup{NameValue: name, DescriptionValue: desc}

	stack := make([]fieldAndValue, 0, vv.NumField())
	for i := 0; i < vv.NumField(); i++ {
		stack = append(stack, fieldAndValue{Value: vv.Field(i), Field: vv.Type().Field(i)})
	}
	for len(stack) > 0 {
		var current fieldAndValue
		current, stack = stack[len(stack)-1], stack[:len(stack)-1]
		field, value := current.Field, current.Value
		indirect := reflect.Indirect(value)
		desc := field.Tag.Get("description")

		if indirect.Kind() == reflect.Struct && field.Anonymous {
			for i := 0; i < indirect.NumField(); i++ {
				stack = append(stack, fieldAndValue{Value: indirect.Field(i), Field: indirect.Type().Field(i)})
			}
			continue
		}
		if !indirect.CanAddr() {
			return nil, fmt.Errorf("%s field %s.%s must be a pointer type", value.Type(), name, field.Name)
		}
		if indirect.Kind() != reflect.Struct || indirect.Type().String() == timeTypeName {
			s, err := settingFromValue(field.Name, desc, indirect)
			if err != nil {
				return nil, fmt.Errorf("failed to convert %s.%s due to: %w", g.NameValue, field.Name, err)
			}
			g.SettingValues = append(g.SettingValues, s)
			continue
		}

		sub, err := ConvertStruct(indirect.Addr().Interface())
		if err != nil {
			return nil, err
		}
		// A nested group is named after its field (the key it is loaded
		// from) unless its type supplies its own Name().
		if sg, ok := sub.(*SettingGroup); ok {
			if _, named := indirect.Addr().Interface().(namer); !named {
				sg.NameValue = field.Name
			}
		}
		g.GroupValues = append(g.GroupValues, sub)
	}
	return g, nil
}

func settingFromValue(name, description string, v reflect.Value) (Setting, error) {
	switch v.Type().String() {
	case timeTypeName:
		return &setting[time.Time]{NameValue: name, DescriptionValue: description,
			ptr: v.Addr().Interface().(*time.Time), cast: cast.ToTimeE}, nil
	case durationTypeName:
		return &setting[time.Duration]{NameValue: name, DescriptionValue: description,
			ptr: v.Addr().Interface().(*time.Duration), cast: cast.ToDurationE}, nil
	}

	switch v.Kind() {
	case reflect.Bool:
		return &setting[bool]{NameValue: name, DescriptionValue: description,
			ptr: v.Addr().Interface().(*bool), cast: cast.ToBoolE}, nil
	case reflect.String:
		return &setting[string]{NameValue: name, DescriptionValue: description,
			ptr: v.Addr().Interface().(*string), cast: cast.ToStringE}, nil
	case reflect.Int:
		return &setting[int]{NameValue: name, DescriptionValue: description,
			ptr: v.Addr().Interface().(*int), cast: cast.ToIntE}, nil
	case reflect.Int64:
		return &setting[int64]{NameValue: name, DescriptionValue: description,
			ptr: v.Addr().Interface().(*int64), cast: cast.ToInt64E}, nil
	case reflect.Float64:
		return &setting[float64]{NameValue: name, DescriptionValue: description,
			ptr: v.Addr().Interface().(*float64), cast: cast.ToFloat64E}, nil
	case reflect.Slice:
		if v.Type().Elem().String() == durationTypeName {
			return &setting[[]time.Duration]{NameValue: name, DescriptionValue: description,
				ptr: v.Addr().Interface().(*[]time.Duration), cast: func(raw interface{}) ([]time.Duration, error) {
					strs, err := cast.ToStringSliceE(raw)
					if err != nil {
						return nil, err
					}
					return cast.ToDurationSliceE(strs)
				}}, nil
		}
		switch v.Type().Elem().Kind() {
		case reflect.String:
			return &setting[[]string]{NameValue: name, DescriptionValue: description,
				ptr: v.Addr().Interface().(*[]string), cast: cast.ToStringSliceE}, nil
		case reflect.Int:
			return &setting[[]int]{NameValue: name, DescriptionValue: description,
				ptr: v.Addr().Interface().(*[]int), cast: cast.ToIntSliceE}, nil
		default:
			return nil, fmt.Errorf("unknown setting type []%s", v.Type().Elem().Kind())
		}
	default:
		return nil, fmt.Errorf("unknown setting type %s", v.Kind())
	}
}

// LoadStruct converts v's struct shape into a Group and populates it
// from cfg, recursing into sub-groups via LayeredConfig's own sub-view
// navigation (no PrefixSource is needed here — a LayeredConfig key
// that resolves to a subtree already hands back a scoped view).
func LoadStruct(ctx context.Context, cfg *LayeredConfig, v interface{}) (Group, error) {
	g, err := ConvertStruct(v)
	if err != nil {
		return nil, err
	}
	if err := loadGroup(ctx, cfg, g); err != nil {
		return nil, err
	}
	return g, nil
}

func loadGroup(ctx context.Context, view *LayeredConfig, g Group) error {
	for _, s := range g.Settings() {
		value, err := view.Get(ctx, s.Name())
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return fmt.Errorf("failed to load setting %s due to: %w", s.Name(), err)
		}
		if err := s.SetValue(value); err != nil {
			return fmt.Errorf("failed to load setting %s due to: %w", s.Name(), err)
		}
	}
	for _, sub := range g.Groups() {
		value, err := view.Get(ctx, sub.Name())
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return fmt.Errorf("failed to load group %s due to: %w", sub.Name(), err)
		}
		subView, ok := value.(*LayeredConfig)
		if !ok {
			return fmt.Errorf("group %s expects a subsection but found a scalar value", sub.Name())
		}
		if err := loadGroup(ctx, subView, sub); err != nil {
			return err
		}
	}
	return nil
}

// Component is the factory contract BindComponent enforces via
// reflection, adapted from the teacher's NewComponent: a type exposing
// Settings() C and New(context.Context, C) (T, error) can be populated
// from a LayeredConfig and turned into a T in one call.
//
//	type Config struct{ Host string }
//	type Component struct{}
//	func (*Component) Settings() *Config { return &Config{Host: "localhost"} }
//	func (*Component) New(_ context.Context, c *Config) (*Client, error) { ... }
//
//	client := new(Client)
//	err := BindComponent(ctx, cfg, &Component{}, client)
func BindComponent(ctx context.Context, cfg *LayeredConfig, component interface{}, destination interface{}) error {
	dv := reflect.ValueOf(destination)
	if dv.Kind() != reflect.Ptr {
		return fmt.Errorf("destination %s must be a pointer type", dv.Type())
	}
	if dv.IsNil() {
		return fmt.Errorf("destination %s cannot be nil, use new(T)", dv.Type())
	}
	if err := VerifyComponent(component); err != nil {
		return err
	}

	cv := reflect.ValueOf(component)
	settingsOut := cv.MethodByName("Settings").Call(nil)[0]

	if _, err := LoadStruct(ctx, cfg, settingsOut.Interface()); err != nil {
		return err
	}

	newOuts := cv.MethodByName("New").Call([]reflect.Value{
		reflect.ValueOf(ctx),
		settingsOut,
	})
	result, errOut := reflect.Indirect(newOuts[0]), newOuts[1]
	if !errOut.IsNil() {
		return errOut.Interface().(error)
	}
	if !result.Type().ConvertibleTo(dv.Elem().Type()) {
		return fmt.Errorf("cannot convert %s into %s", result.Type(), dv.Elem().Type())
	}
	dv.Elem().Set(result.Convert(dv.Elem().Type()))
	return nil
}

// VerifyComponent reports whether v satisfies the Component contract.
func VerifyComponent(v interface{}) error {
	vv := reflect.ValueOf(v)
	var hasSettings, hasNew bool
	for i := 0; i < vv.Type().NumMethod(); i++ {
		switch vv.Type().Method(i).Name {
		case "Settings":
			hasSettings = true
		case "New":
			hasNew = true
		}
	}
	if !hasSettings {
		return fmt.Errorf("type %s does not have a `Settings() T` method", vv.Type())
	}
	if !hasNew {
		return fmt.Errorf("type %s does not have a `New(ctx, T) (T2, error)` method", vv.Type())
	}

	sm := vv.MethodByName("Settings")
	nm := vv.MethodByName("New")
	if sm.Type().NumIn() != 0 || sm.Type().NumOut() != 1 {
		return fmt.Errorf("method Settings for %s must take no arguments and return exactly one value", vv.Type())
	}
	smOut := sm.Type().Out(0)
	if nm.Type().NumIn() != 2 || nm.Type().NumOut() != 2 {
		return fmt.Errorf("method New for %s must take exactly two arguments and return exactly two values", vv.Type())
	}
	ctxType := reflect.TypeOf((*context.Context)(nil)).Elem()
	if !nm.Type().In(0).Implements(ctxType) && nm.Type().In(0) != ctxType {
		return fmt.Errorf("method New for %s must accept a context.Context as its first argument", vv.Type())
	}
	if !smOut.ConvertibleTo(nm.Type().In(1)) {
		return fmt.Errorf("method New for %s must accept Settings()'s return value as its second argument", vv.Type())
	}
	if nm.Type().Out(1).Name() != "error" {
		return fmt.Errorf("method New for %s must return an error as its second value", vv.Type())
	}
	return nil
}
