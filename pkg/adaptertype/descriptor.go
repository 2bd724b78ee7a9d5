// Package adaptertype defines the adapter type descriptor and its parser.
package adaptertype

import "fmt"

// KeyPrefix is the object-store prefix under which descriptors are uploaded.
const KeyPrefix = "adapterTypes/"

// Descriptor is a parsed adapter type file. The same shape is stored as the
// index entry, keyed by Name; a newer version replaces the whole item.
type Descriptor struct {
	Name     string `json:"name" dynamodbav:"name"`
	Version  string `json:"version" dynamodbav:"version"`
	Display  string `json:"display,omitempty" dynamodbav:"display,omitempty"`
	Image    Image  `json:"image,omitempty" dynamodbav:"image,omitempty"`
	FilePath string `json:"filePath" dynamodbav:"filePath"`
}

// Key is the key-only projection of an index entry.
type Key struct {
	Name string `json:"name" dynamodbav:"name"`
}

// Key returns the index key of the descriptor.
func (d Descriptor) Key() Key {
	return Key{Name: d.Name}
}

// ObjectKey returns the object-store key an uploaded descriptor is written to.
func ObjectKey(name, version string) string {
	return fmt.Sprintf("%s%s/%s/adapterType-%s.json", KeyPrefix, name, version, name)
}
