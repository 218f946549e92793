// Package models defines the data structures shared by the storage backends,
// the query engine and the HTTP layer.
//
// Log records are schemaless: a Record is an ordered list of named Values
// plus the identifier the document store assigned on insertion.
package models

import (
	"fmt"
)

// IDField is the name under which a record identifier is rendered.
const IDField = "_id"

// Record is one log document. Field order is preserved from the store.
// The identifier is opaque outside the backend that produced it.
type Record struct {
	ID     string
	fields []Field
}

// NewRecord creates a record with the given identifier and fields.
func NewRecord(id string, fields ...Field) *Record {
	r := &Record{ID: id, fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		r.Set(f.Name, f.Value)
	}
	return r
}

// Len returns the number of fields, excluding the identifier.
func (r *Record) Len() int { return len(r.fields) }

// Fields returns the fields in order. The slice must not be modified.
func (r *Record) Fields() []Field { return r.fields }

// Keys returns the field names in order, excluding the identifier.
func (r *Record) Keys() []string {
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.Name
	}
	return keys
}

// Get returns the value of the named field.
func (r *Record) Get(name string) (Value, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Set replaces the named field in place, or appends it.
func (r *Record) Set(name string, v Value) {
	for i := range r.fields {
		if r.fields[i].Name == name {
			r.fields[i].Value = v
			return
		}
	}
	r.fields = append(r.fields, Field{Name: name, Value: v})
}

// Delete removes the named field, reporting whether it existed.
func (r *Record) Delete(name string) bool {
	for i := range r.fields {
		if r.fields[i].Name == name {
			r.fields = append(r.fields[:i], r.fields[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a copy that can be modified independently at the top level.
func (r *Record) Clone() *Record {
	fields := make([]Field, len(r.fields))
	copy(fields, r.fields)
	return &Record{ID: r.ID, fields: fields}
}

// Equal reports whether two records have the same identifier and fields.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.ID == other.ID && equalFields(r.fields, other.fields)
}

// MarshalJSON renders the record as an object with the identifier first.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r.ID == "" {
		return appendFields(nil, "", nil, r.fields), nil
	}
	return appendFields(nil, IDField, &r.ID, r.fields), nil
}

// UnmarshalJSON parses an object, taking the identifier from IDField.
func (r *Record) UnmarshalJSON(data []byte) error {
	v, err := ParseJSON(data)
	if err != nil {
		return err
	}
	rec, err := RecordFromValue(v)
	if err != nil {
		return err
	}
	*r = *rec
	return nil
}

// RecordFromValue converts an object value into a record. A string or
// number IDField becomes the identifier; other shapes are rejected.
func RecordFromValue(v Value) (*Record, error) {
	if v.Kind() != KindObject {
		return nil, fmt.Errorf("record must be an object, got %s", v.Kind())
	}
	r := &Record{fields: make([]Field, 0, len(v.fields))}
	for _, f := range v.fields {
		if f.Name == IDField {
			switch f.Value.Kind() {
			case KindString, KindNumber:
				r.ID = f.Value.s
			default:
				return nil, fmt.Errorf("record %s must be a string or number, got %s", IDField, f.Value.Kind())
			}
			continue
		}
		r.Set(f.Name, f.Value)
	}
	return r, nil
}
