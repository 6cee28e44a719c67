// Package vcf provides VCF file parsing functionality.
package vcf

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a typed INFO value list. Type selects which slice is populated:
// Ints for Integer, Floats for Float, Strings for everything else. Flag values
// carry no elements.
type Value struct {
	Type    FieldType
	Ints    []int64
	Floats  []float64
	Strings []string
}

// Len returns the number of elements.
func (v Value) Len() int {
	switch v.Type {
	case Integer:
		return len(v.Ints)
	case Float:
		return len(v.Floats)
	default:
		return len(v.Strings)
	}
}

// Elements returns the values as a generic slice, never nil.
func (v Value) Elements() []any {
	out := make([]any, 0, v.Len())
	switch v.Type {
	case Integer:
		for _, x := range v.Ints {
			out = append(out, x)
		}
	case Float:
		for _, x := range v.Floats {
			out = append(out, x)
		}
	default:
		for _, x := range v.Strings {
			out = append(out, x)
		}
	}
	return out
}

// MarshalJSON encodes the value as a plain JSON array.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Elements())
}

// Coerce converts a raw, possibly comma-delimited INFO value according to the
// descriptor's declared type.
//
// NaN and infinities are rejected since no store can encode them.
//
// Coercion is all-or-nothing: if any token fails to parse, Coerce returns an
// empty Value and an ErrMalformedValue error naming the token. Declared arity
// is not checked against the token count.
func Coerce(d *FieldDescriptor, raw string) (Value, error) {
	v := Value{Type: d.Type}
	if v.Type == Unknown {
		v.Type = String
	}
	tokens := strings.Split(raw, ",")

	switch v.Type {
	case Integer:
		v.Ints = make([]int64, 0, len(tokens))
		for _, tok := range tokens {
			n, err := strconv.ParseInt(tok, 10, 64)
			if err != nil {
				return Value{}, malformedValue(d.ID, tok, "integer")
			}
			v.Ints = append(v.Ints, n)
		}
	case Float:
		v.Floats = make([]float64, 0, len(tokens))
		for _, tok := range tokens {
			f, err := strconv.ParseFloat(tok, 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return Value{}, malformedValue(d.ID, tok, "finite float")
			}
			v.Floats = append(v.Floats, f)
		}
	default:
		v.Strings = tokens
	}
	return v, nil
}

// FlagValue is the value of an INFO entry present without '='.
func FlagValue() Value {
	return Value{Type: Flag}
}

func malformedValue(field, token, want string) error {
	return &ParseError{
		Kind:    ErrMalformedValue,
		Field:   field,
		Message: fmt.Sprintf("token %q is not a valid %s", token, want),
	}
}
