// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sample

import "time"

// Field is one named measurement inside a Sample. On the wire it is a
// two-element CBOR array.
type Field struct {
	_     struct{} `cbor:",toarray"`
	Name  string
	Value float64
}

// Sample is one record received from the instrument. Samples are
// treated as immutable once decoded: consumers must not modify Fields.
type Sample struct {
	// Arrival is when the ingest server received the frame.
	Arrival time.Time

	// Fields holds the measurements in wire order. Names are unique
	// within a sample.
	Fields []Field
}

// New builds a Sample from fields. It exists for
// producers and tests; decoded samples come from the codec.
func New(arrival time.Time, fields ...Field) Sample {
	return Sample{Arrival: arrival, Fields: fields}
}

// F is shorthand for a Field literal.
func F(name string, value float64) Field {
	return Field{Name: name, Value: value}
}

// Value returns the named field's value.
func (s Sample) Value(name string) (float64, bool) {
	for _, field := range s.Fields {
		if field.Name == name {
			return field.Value, true
		}
	}
	return 0, false
}

// Names returns the field names in wire order.
func (s Sample) Names() []string {
	names := make([]string, len(s.Fields))
	for i, field := range s.Fields {
		names[i] = field.Name
	}
	return names
}
