package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Field is one named entry of an object or record. Order is significant.
type Field struct {
	Name  string
	Value Value
}

// Value is a dynamically typed document value.
// The zero Value is null.
type Value struct {
	kind   Kind
	b      bool
	s      string // string contents, or the literal of a number
	fields []Field
	items  []Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number returns a number value from its JSON literal (e.g. "42", "1.5e3").
func Number(literal string) Value { return Value{kind: KindNumber, s: literal} }

// Int returns a number value holding n.
func Int(n int64) Value { return Number(strconv.FormatInt(n, 10)) }

// Float returns a number value holding f. NaN and infinities have no JSON
// number form and are kept as strings.
func Float(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return String(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return Number(strconv.FormatFloat(f, 'g', -1, 64))
}

// Object returns an object value with the given fields in order.
func Object(fields ...Field) Value {
	if fields == nil {
		fields = []Field{}
	}
	return Value{kind: KindObject, fields: fields}
}

// Array returns an array value.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, items: items}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsFloat returns the number held by v as a float64.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Fields returns the fields of an object value, nil otherwise.
func (v Value) Fields() []Field { return v.fields }

// Items returns the elements of an array value, nil otherwise.
func (v Value) Items() []Value { return v.items }

// Text returns the textual rendering used for substring matching:
// strings as-is, numbers as their literal, booleans as true/false,
// nested values as compact JSON and null as the empty string.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber, KindString:
		return v.s
	default:
		return string(v.AppendJSON(nil))
	}
}

// AppendJSON appends the JSON encoding of v to dst.
func (v Value) AppendJSON(dst []byte) []byte {
	switch v.kind {
	case KindNull:
		return append(dst, "null"...)
	case KindBool:
		return strconv.AppendBool(dst, v.b)
	case KindNumber:
		return append(dst, v.s...)
	case KindString:
		return appendQuoted(dst, v.s)
	case KindObject:
		return appendFields(dst, "", nil, v.fields)
	case KindArray:
		dst = append(dst, '[')
		for i, item := range v.items {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = item.AppendJSON(dst)
		}
		return append(dst, ']')
	}
	return dst
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.AppendJSON(nil), nil
}

// UnmarshalJSON implements json.Unmarshaler, keeping object key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

var parserPool fastjson.ParserPool

// ParseJSON decodes a JSON document into a Value.
func ParseJSON(data []byte) (Value, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	fv, err := p.ParseBytes(data)
	if err != nil {
		return Value{}, err
	}
	if err := CheckNumbers(fv); err != nil {
		return Value{}, err
	}
	return FromFastJSON(fv), nil
}

// CheckNumbers rejects number literals that are not valid JSON. fastjson
// accepts any run of number characters, and nan/inf, as a number.
func CheckNumbers(fv *fastjson.Value) error {
	switch fv.Type() {
	case fastjson.TypeNumber:
		if lit := fv.String(); !ValidNumber(lit) {
			return fmt.Errorf("invalid number literal %q", lit)
		}
	case fastjson.TypeObject:
		o, _ := fv.Object()
		var err error
		o.Visit(func(_ []byte, item *fastjson.Value) {
			if err == nil {
				err = CheckNumbers(item)
			}
		})
		return err
	case fastjson.TypeArray:
		arr, _ := fv.Array()
		for _, item := range arr {
			if err := CheckNumbers(item); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidNumber reports whether lit is a JSON number literal.
func ValidNumber(lit string) bool {
	if lit == "" {
		return false
	}
	// Valid JSON starting with '-' or a digit can only be a number.
	if c := lit[0]; c != '-' && (c < '0' || c > '9') {
		return false
	}
	return json.Valid([]byte(lit))
}

// FromFastJSON converts a parsed fastjson value. The result does not alias
// parser memory and stays valid after the parser is reused.
func FromFastJSON(fv *fastjson.Value) Value {
	switch fv.Type() {
	case fastjson.TypeNull:
		return Null()
	case fastjson.TypeTrue:
		return Bool(true)
	case fastjson.TypeFalse:
		return Bool(false)
	case fastjson.TypeNumber:
		return Number(fv.String())
	case fastjson.TypeString:
		b, _ := fv.StringBytes()
		return String(string(b))
	case fastjson.TypeObject:
		o, _ := fv.Object()
		fields := make([]Field, 0, o.Len())
		o.Visit(func(key []byte, item *fastjson.Value) {
			fields = append(fields, Field{Name: string(key), Value: FromFastJSON(item)})
		})
		return Object(fields...)
	case fastjson.TypeArray:
		arr, _ := fv.Array()
		items := make([]Value, len(arr))
		for i, item := range arr {
			items[i] = FromFastJSON(item)
		}
		return Array(items...)
	}
	return Null()
}

// FromAny converts a decoded Go value (as produced by encoding/json or
// built by hand) into a Value. Map keys are sorted since Go maps have no order.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		if !ValidNumber(t.String()) {
			return Value{}, fmt.Errorf("invalid number literal %q", t.String())
		}
		return Number(t.String()), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return Number(strconv.FormatUint(t, 10)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case []Field:
		return Object(t...), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			fv, err := FromAny(t[k])
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			fields = append(fields, Field{Name: k, Value: fv})
		}
		return Object(fields...), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			iv, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = iv
		}
		return Array(items...), nil
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = String(s)
		}
		return Array(items...), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", x)
	}
}

// Equal reports whether a and b hold the same value. Numbers compare by
// numeric value, objects by ordered fields.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindNumber:
		if a.s == b.s {
			return true
		}
		af, aok := a.AsFloat()
		bf, bok := b.AsFloat()
		return aok && bok && af == bf
	case KindObject:
		return equalFields(a.fields, b.fields)
	case KindArray:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func equalFields(a, b []Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || !Equal(a[i].Value, b[i].Value) {
			return false
		}
	}
	return true
}

// sortRank follows the document store convention for ordering values of
// different kinds: null < numbers < strings < objects < arrays < booleans.
func sortRank(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindNumber:
		return 1
	case KindString:
		return 2
	case KindObject:
		return 3
	case KindArray:
		return 4
	case KindBool:
		return 5
	}
	return 6
}

// Compare orders two values, returning -1, 0 or +1.
func Compare(a, b Value) int {
	if ra, rb := sortRank(a.kind), sortRank(b.kind); ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNumber:
		af, _ := a.AsFloat()
		bf, _ := b.AsFloat()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case KindString:
		return strings.Compare(a.s, b.s)
	case KindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		}
		return 1
	case KindObject:
		for i := 0; i < len(a.fields) && i < len(b.fields); i++ {
			if c := strings.Compare(a.fields[i].Name, b.fields[i].Name); c != 0 {
				return c
			}
			if c := Compare(a.fields[i].Value, b.fields[i].Value); c != 0 {
				return c
			}
		}
		return compareLen(len(a.fields), len(b.fields))
	case KindArray:
		for i := 0; i < len(a.items) && i < len(b.items); i++ {
			if c := Compare(a.items[i], b.items[i]); c != 0 {
				return c
			}
		}
		return compareLen(len(a.items), len(b.items))
	}
	return 0
}

func compareLen(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func appendQuoted(dst []byte, s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return append(dst, bytes.TrimRight(buf.Bytes(), "\n")...)
}

// appendFields writes an object. When idName is non-empty, the identifier
// is written first as a string member.
func appendFields(dst []byte, idName string, id *string, fields []Field) []byte {
	dst = append(dst, '{')
	first := true
	if idName != "" && id != nil {
		dst = appendQuoted(dst, idName)
		dst = append(dst, ':')
		dst = appendQuoted(dst, *id)
		first = false
	}
	for _, f := range fields {
		if !first {
			dst = append(dst, ',')
		}
		first = false
		dst = appendQuoted(dst, f.Name)
		dst = append(dst, ':')
		dst = f.Value.AppendJSON(dst)
	}
	return append(dst, '}')
}
