package config

import (
	"reflect"

	"gopkg.in/yaml.v3"
)

const redactedValue = "***"

// Redacted returns a copy of the configuration with secrets masked. Fields
// tagged secret:"true" are always masked when set; string fields that carry a
// value in secrets (the values read from the secrets file) are masked too.
func (c *Config) Redacted(secrets *Config) *Config {
	out := *c
	var mask reflect.Value
	if secrets != nil {
		mask = reflect.ValueOf(secrets).Elem()
	}
	redactStruct(reflect.ValueOf(&out).Elem(), mask)
	return &out
}

// YAML renders the configuration with secrets masked.
func (c *Config) YAML(secrets *Config) ([]byte, error) {
	return yaml.Marshal(c.Redacted(secrets))
}

func redactStruct(v, mask reflect.Value) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		var maskField reflect.Value
		if mask.IsValid() {
			maskField = mask.Field(i)
		}

		switch field.Kind() {
		case reflect.Struct:
			redactStruct(field, maskField)
		case reflect.String:
			if field.String() == "" {
				continue
			}
			if t.Field(i).Tag.Get("secret") == "true" || (maskField.IsValid() && maskField.String() != "") {
				field.SetString(redactedValue)
			}
		}
	}
}
