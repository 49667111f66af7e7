package layeredconfig

import (
	"time"

	"github.com/spf13/cast"
)

// Setting is a named, typed configuration value that can be populated
// from a LayeredConfig view. Group nests Settings into the same
// sub-tree shape a struct or a Source exposes.
type Setting interface {
	Name() string
	Description() string
	Value() interface{}
	SetValue(v interface{}) error
}

// Group is a container for a collection of settings, with any number
// of nested sub-trees.
type Group interface {
	Name() string
	Description() string
	Groups() []Group
	Settings() []Setting
}

// SettingGroup is the concrete Group the struct binder in binding.go
// builds.
type SettingGroup struct {
	NameValue        string
	DescriptionValue string
	GroupValues      []Group
	SettingValues    []Setting
}

func (g *SettingGroup) Name() string        { return g.NameValue }
func (g *SettingGroup) Description() string { return g.DescriptionValue }
func (g *SettingGroup) Groups() []Group     { return g.GroupValues }
func (g *SettingGroup) Settings() []Setting { return g.SettingValues }

// setting is generic over the value's Go type, replacing what would
// otherwise be one hand-written Xxx­Setting struct per supported kind:
// the type parameter plus a cast function cover every kind a single
// concrete struct would. ptr may alias a struct field's address (see
// binding.go) so that SetValue mutates the bound struct directly.
type setting[T any] struct {
	NameValue        string
	DescriptionValue string
	ptr              *T
	cast             func(interface{}) (T, error)
}

func newSetting[T any](name, description string, fallback T, cast func(interface{}) (T, error)) *setting[T] {
	v := fallback
	return &setting[T]{NameValue: name, DescriptionValue: description, ptr: &v, cast: cast}
}

func (s *setting[T]) Name() string        { return s.NameValue }
func (s *setting[T]) Description() string { return s.DescriptionValue }
func (s *setting[T]) Value() interface{}  { return *s.ptr }

func (s *setting[T]) SetValue(v interface{}) error {
	val, err := s.cast(v)
	if err != nil {
		return err
	}
	*s.ptr = val
	return nil
}

// NewStringSetting creates a string-valued Setting with the given default.
func NewStringSetting(name, description, fallback string) Setting {
	return newSetting(name, description, fallback, cast.ToStringE)
}

// NewBoolSetting creates a bool-valued Setting with the given default.
func NewBoolSetting(name, description string, fallback bool) Setting {
	return newSetting(name, description, fallback, cast.ToBoolE)
}

// NewIntSetting creates an int-valued Setting with the given default.
func NewIntSetting(name, description string, fallback int) Setting {
	return newSetting(name, description, fallback, cast.ToIntE)
}

// NewInt64Setting creates an int64-valued Setting with the given default.
func NewInt64Setting(name, description string, fallback int64) Setting {
	return newSetting(name, description, fallback, cast.ToInt64E)
}

// NewFloat64Setting creates a float64-valued Setting with the given default.
func NewFloat64Setting(name, description string, fallback float64) Setting {
	return newSetting(name, description, fallback, cast.ToFloat64E)
}

// NewTimeSetting creates a time.Time-valued Setting with the given default.
func NewTimeSetting(name, description string, fallback time.Time) Setting {
	return newSetting(name, description, fallback, cast.ToTimeE)
}

// NewDurationSetting creates a time.Duration-valued Setting with the
// given default.
func NewDurationSetting(name, description string, fallback time.Duration) Setting {
	return newSetting(name, description, fallback, cast.ToDurationE)
}

// NewStringSliceSetting creates a []string-valued Setting with the
// given default.
func NewStringSliceSetting(name, description string, fallback []string) Setting {
	return newSetting(name, description, fallback, cast.ToStringSliceE)
}

// NewIntSliceSetting creates an []int-valued Setting with the given default.
func NewIntSliceSetting(name, description string, fallback []int) Setting {
	return newSetting(name, description, fallback, cast.ToIntSliceE)
}

// NewDurationSliceSetting creates a []time.Duration-valued Setting,
// parsing through an interim []string step the way the teacher's
// DurationSliceSetting.SetValue does.
func NewDurationSliceSetting(name, description string, fallback []time.Duration) Setting {
	return newSetting(name, description, fallback, func(v interface{}) ([]time.Duration, error) {
		strs, err := cast.ToStringSliceE(v)
		if err != nil {
			return nil, err
		}
		return cast.ToDurationSliceE(strs)
	})
}
