// Package configschema generates the JSON Schema of the configuration file.
package configschema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/nimburion/adapter-registry/pkg/config"
)

var durationType = reflect.TypeOf(time.Duration(0))

// BuildSchema returns the JSON Schema of config.Config with property names as
// they appear in the configuration file, defaults taken from
// config.DefaultConfig and the range checks enforced at load time.
func BuildSchema() (*jsonschema.Schema, error) {
	opts := &jsonschema.ForOptions{
		IgnoreInvalidTypes: true,
		TypeSchemas: map[reflect.Type]*jsonschema.Schema{
			durationType: {Type: "string"},
		},
	}

	t := reflect.TypeOf(config.Config{})
	schema, err := jsonschema.ForType(t, opts)
	if err != nil {
		return nil, fmt.Errorf("build config schema: %w", err)
	}
	applyFieldNames(schema, t)

	defaults := config.DefaultConfig()
	injectDefaults(schema, reflect.ValueOf(defaults))
	pruneRequiredWithDefaults(schema)
	applyConstraints(schema)

	schema.Title = defaults.Service.Name + " Configuration"
	schema.Description = "Schema for " + defaults.Service.Name + " configuration. Durations are Go duration strings such as \"30s\"."
	schema.Schema = "https://json-schema.org/draft/2020-12/schema"
	return schema, nil
}

type constraint struct {
	min, max *float64
	enum     []any
}

func bounds(lo, hi float64) constraint { return constraint{min: &lo, max: &hi} }

func atLeast(lo float64) constraint { return constraint{min: &lo} }

var constraints = map[string]constraint{
	"http.port":                         bounds(1, 65535),
	"management.port":                   bounds(1, 65535),
	"dynamodb.batch_max_tries":          atLeast(1),
	"sqs.wait_time_seconds":             bounds(0, 20),
	"sqs.max_messages":                  bounds(1, 10),
	"sqs.visibility_timeout":            bounds(0, 43200),
	"observability.tracing_sample_rate": bounds(0, 1),
	"observability.log_level":           {enum: []any{"debug", "info", "warn", "error"}},
	"observability.log_format":          {enum: []any{"json", "text"}},
}

func applyConstraints(schema *jsonschema.Schema) {
	for path, c := range constraints {
		prop := lookup(schema, path)
		if prop == nil {
			continue
		}
		prop.Minimum = c.min
		prop.Maximum = c.max
		if len(c.enum) > 0 {
			prop.Enum = c.enum
		}
	}
	markSecrets(schema, reflect.TypeOf(config.Config{}))
}

func lookup(schema *jsonschema.Schema, path string) *jsonschema.Schema {
	for _, name := range strings.Split(path, ".") {
		if schema == nil {
			return nil
		}
		schema = schema.Properties[name]
	}
	return schema
}

// markSecrets flags secret:"true" fields as write-only.
func markSecrets(schema *jsonschema.Schema, t reflect.Type) {
	if schema == nil || t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		prop := schema.Properties[fieldKeyName(field)]
		if prop == nil {
			continue
		}
		if field.Tag.Get("secret") == "true" {
			prop.WriteOnly = true
			prop.Default = nil
		}
		markSecrets(prop, field.Type)
	}
}

func applyFieldNames(schema *jsonschema.Schema, t reflect.Type) {
	if schema == nil || t == nil {
		return
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || len(schema.Properties) == 0 {
		return
	}

	nameMap := make(map[string]string)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		desired := fieldKeyName(field)
		nameMap[field.Name] = desired
		if prop, ok := schema.Properties[field.Name]; ok {
			delete(schema.Properties, field.Name)
			schema.Properties[desired] = prop
			applyFieldNames(prop, field.Type)
		}
	}

	schema.Required = renamed(schema.Required, nameMap)
	schema.PropertyOrder = renamed(schema.PropertyOrder, nameMap)
}

func renamed(names []string, nameMap map[string]string) []string {
	if len(names) == 0 {
		return names
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if mapped, ok := nameMap[name]; ok {
			name = mapped
		}
		out = append(out, name)
	}
	return out
}

func injectDefaults(schema *jsonschema.Schema, value reflect.Value) {
	if schema == nil || !value.IsValid() {
		return
	}
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return
		}
		value = value.Elem()
	}

	if value.Kind() != reflect.Struct {
		if schema.Default == nil {
			if raw, ok := marshalDefault(value); ok {
				schema.Default = raw
			}
		}
		return
	}

	t := value.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		key := fieldKeyName(field)
		prop, ok := schema.Properties[key]
		if !ok {
			continue
		}
		if field.Type == durationType {
			// the type schema may be shared between duration fields
			schema.Properties[key] = &jsonschema.Schema{
				Type:    "string",
				Default: json.RawMessage(fmt.Sprintf("%q", time.Duration(value.Field(i).Int()).String())),
			}
			continue
		}
		injectDefaults(prop, value.Field(i))
	}
}

func pruneRequiredWithDefaults(schema *jsonschema.Schema) {
	if schema == nil {
		return
	}
	for _, prop := range schema.Properties {
		pruneRequiredWithDefaults(prop)
	}
	if len(schema.Required) == 0 || len(schema.Properties) == 0 {
		return
	}
	kept := make([]string, 0, len(schema.Required))
	for _, name := range schema.Required {
		prop := schema.Properties[name]
		if prop == nil || (prop.Default == nil && len(prop.Properties) == 0) {
			kept = append(kept, name)
		}
	}
	schema.Required = kept
}

func marshalDefault(value reflect.Value) (json.RawMessage, bool) {
	payload, err := json.Marshal(value.Interface())
	return payload, err == nil
}

func fieldKeyName(field reflect.StructField) string {
	for _, key := range []string{"mapstructure", "yaml"} {
		if name, _, _ := strings.Cut(field.Tag.Get(key), ","); name != "" && name != "-" {
			return name
		}
	}
	return strings.ToLower(field.Name)
}
