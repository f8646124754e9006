// Package configbinder binds loosely typed property maps (step properties from YAML or
// environment) onto typed configuration structs.
package configbinder

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// BindProperties decodes props into target using the `yaml` struct tags.
// Values are weakly typed so "10" binds to an int field and "true" to a bool field. Fields absent
// from props keep their value; a list present in props replaces the list already in target.
func BindProperties(props map[string]interface{}, target interface{}) error {
	if len(props) == 0 {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ZeroFields:       true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(props); err != nil {
		targetType := reflect.TypeOf(target)
		if targetType.Kind() == reflect.Ptr {
			targetType = targetType.Elem()
		}
		return fmt.Errorf("failed to bind properties to struct %s: %w", targetType.Name(), err)
	}
	return nil
}

// BindStringProperties is BindProperties for plain string maps.
func BindStringProperties(props map[string]string, target interface{}) error {
	converted := make(map[string]interface{}, len(props))
	for k, v := range props {
		converted[k] = v
	}
	return BindProperties(converted, target)
}
