package adaptertype

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nimburion/adapter-registry/pkg/observability/logger"
)

var (
	// ErrEmptyContent is returned for absent or empty descriptor files.
	ErrEmptyContent = errors.New("adapter data is empty")
	// ErrMalformed is returned when the content is not a JSON object.
	ErrMalformed = errors.New("adapter data is not a JSON object")
	// ErrMissingName is returned when the name field is absent or empty.
	ErrMissingName = errors.New("adapter name is missing")
	// ErrMissingVersion is returned when the version field is absent or empty.
	ErrMissingVersion = errors.New("adapter version is missing")
)

// Parse turns raw descriptor content into a Descriptor loaded from key.
// It never fails loudly: every rejection is logged and yields nil.
func Parse(key string, raw []byte, log logger.Logger) *Descriptor {
	d, err := Decode(key, raw)
	if err != nil {
		if log != nil {
			log.Error("adapter type file rejected", "key", key, "error", err)
		}
		return nil
	}
	return d
}

// Decode is Parse with the rejection reason returned instead of logged.
func Decode(key string, raw []byte) (*Descriptor, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyContent
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc == nil {
		return nil, ErrEmptyContent
	}

	name, ok := stringField(doc, "name")
	if !ok {
		return nil, ErrMissingName
	}
	ver, ok := stringField(doc, "version")
	if !ok {
		return nil, ErrMissingVersion
	}
	display, _ := stringField(doc, "display")

	return &Descriptor{
		Name:     name,
		Version:  ver,
		Display:  display,
		Image:    imageData(doc["image"]),
		FilePath: key,
	}, nil
}

func stringField(doc map[string]json.RawMessage, field string) (string, bool) {
	raw, ok := doc[field]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

// imageData extracts image.data when it holds a truthy JSON value.
func imageData(raw json.RawMessage) Image {
	if len(raw) == 0 {
		return nil
	}
	var image map[string]json.RawMessage
	if err := json.Unmarshal(raw, &image); err != nil {
		return nil
	}
	data, ok := image["data"]
	if !ok || !truthy(data) {
		return nil
	}
	return append(Image(nil), data...)
}

func truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}
