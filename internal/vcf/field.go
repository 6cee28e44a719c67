// Package vcf provides VCF file parsing functionality.
package vcf

import (
	"encoding/json"
	"maps"
	"strconv"
	"strings"
)

// FieldType is the declared Type of an INFO or ALT field.
type FieldType uint8

// Field types. Unknown covers anything not recognized and is coerced as a string.
const (
	Unknown FieldType = iota
	Integer
	Float
	String
	Flag
)

var fieldTypeNames = [...]string{"Unknown", "Integer", "Float", "String", "Flag"}

func (t FieldType) String() string {
	if int(t) < len(fieldTypeNames) {
		return fieldTypeNames[t]
	}
	return "Unknown"
}

// ParseFieldType normalizes a declared Type value. Matching is case-insensitive
// and Double is accepted as an alias for Float.
func ParseFieldType(s string) FieldType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer":
		return Integer
	case "float", "double":
		return Float
	case "string", "character":
		return String
	case "flag":
		return Flag
	default:
		return Unknown
	}
}

// FieldDescriptor is the declared metadata for one INFO or ALT field.
//
// Attributes holds every key of the directive except ID, lower-cased, with
// quotes removed from the value. Type and Number are derived from the "type"
// and "number" attributes.
type FieldDescriptor struct {
	ID         string
	Type       FieldType
	Number     string
	Attributes map[string]string
}

// NewFieldDescriptor creates an empty descriptor for id.
func NewFieldDescriptor(id string) *FieldDescriptor {
	return &FieldDescriptor{ID: id, Attributes: make(map[string]string)}
}

// Set assigns an attribute, keeping Type and Number in sync.
func (d *FieldDescriptor) Set(key, value string) {
	key = strings.ToLower(key)
	d.Attributes[key] = value
	switch key {
	case "type":
		d.Type = ParseFieldType(value)
	case "number":
		d.Number = value
	}
}

// Description returns the Description attribute, if any.
func (d *FieldDescriptor) Description() string {
	return d.Attributes["description"]
}

// FixedNumber reports the declared arity when it is a fixed integer.
// Number=A, R, G and . are not fixed.
func (d *FieldDescriptor) FixedNumber() (int, bool) {
	n, err := strconv.Atoi(d.Number)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Clone returns a deep copy. Variants attach clones, never the registered
// descriptor itself.
func (d *FieldDescriptor) Clone() *FieldDescriptor {
	if d == nil {
		return nil
	}
	c := *d
	c.Attributes = maps.Clone(d.Attributes)
	if c.Attributes == nil {
		c.Attributes = make(map[string]string)
	}
	return &c
}

// MarshalJSON encodes the descriptor as its attribute map.
func (d *FieldDescriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Attributes)
}
