package param

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface representing parameter tree values.
// Only String, Int, Float, Bool, Array and Object implement it.
type Value interface {
	paramValue() // Sealed - only these types implement it
}

// String is a string leaf.
type String string

func (String) paramValue() {}

// Int is an integer leaf.
type Int int64

func (Int) paramValue() {}

// Float is a floating-point leaf. NaN and infinities are rejected at
// serialization time.
type Float float64

func (Float) paramValue() {}

// Bool is a boolean leaf.
type Bool bool

func (Bool) paramValue() {}

// Array is an ordered list of values.
type Array []Value

func (Array) paramValue() {}

// Object is a mapping of string keys to values.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) paramValue() {}

// Pair is a key-value pair for Object construction.
type Pair struct {
	Key   string
	Value Value
}

// O is a shorthand for Pair.
// Example: NewObject(O("N_scaling", Float(0.004)), O("policy", String("sqrt")))
func O(key string, value Value) Pair {
	return Pair{Key: key, Value: value}
}

// NewObject creates an Object from key-value pairs.
func NewObject(pairs ...Pair) Object {
	obj := make(Object, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings compares UTF-8 bytes, which orders some keys differently.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// Clone returns a deep copy of obj.
func (obj Object) Clone() Object {
	if obj == nil {
		return nil
	}
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v Value) Value {
	switch val := v.(type) {
	case Object:
		return val.Clone()
	case Array:
		arr := make(Array, len(val))
		for i, elem := range val {
			arr[i] = cloneValue(elem)
		}
		return arr
	default:
		return v
	}
}

// Sub returns the sub-mapping stored under key.
// A missing key yields an empty Object; a non-object value is an error.
func (obj Object) Sub(key string) (Object, error) {
	v, ok := obj[key]
	if !ok {
		return Object{}, nil
	}
	sub, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("%q: expected mapping, got %s", key, TypeName(v))
	}
	return sub, nil
}

// Number returns the numeric value stored under key, accepting Int or Float.
// def is returned when the key is absent.
func (obj Object) Number(key string, def float64) (float64, error) {
	v, ok := obj[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case Int:
		return float64(n), nil
	case Float:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%q: expected number, got %s", key, TypeName(v))
	}
}

// Integer returns the integer stored under key. Integral floats are accepted.
func (obj Object) Integer(key string, def int64) (int64, error) {
	v, ok := obj[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case Int:
		return int64(n), nil
	case Float:
		f := float64(n)
		if f != math.Trunc(f) || math.Abs(f) >= maxExactInt {
			return 0, fmt.Errorf("%q: expected integer, got %v", key, f)
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("%q: expected integer, got %s", key, TypeName(v))
	}
}

// Str returns the string stored under key.
func (obj Object) Str(key, def string) (string, error) {
	v, ok := obj[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(String)
	if !ok {
		return "", fmt.Errorf("%q: expected string, got %s", key, TypeName(v))
	}
	return string(s), nil
}

// Flag returns the boolean stored under key.
func (obj Object) Flag(key string, def bool) (bool, error) {
	v, ok := obj[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(Bool)
	if !ok {
		return false, fmt.Errorf("%q: expected bool, got %s", key, TypeName(v))
	}
	return bool(b), nil
}

// Strings returns the list of strings stored under key.
func (obj Object) Strings(key string) ([]string, error) {
	v, ok := obj[key]
	if !ok {
		return nil, nil
	}
	arr, ok := v.(Array)
	if !ok {
		return nil, fmt.Errorf("%q: expected list, got %s", key, TypeName(v))
	}
	out := make([]string, len(arr))
	for i, elem := range arr {
		s, ok := elem.(String)
		if !ok {
			return nil, fmt.Errorf("%q[%d]: expected string, got %s", key, i, TypeName(elem))
		}
		out[i] = string(s)
	}
	return out, nil
}

// TypeName returns a short name for the dynamic type of v.
func TypeName(v Value) string {
	switch v.(type) {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Array:
		return "list"
	case Object:
		return "mapping"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// MarshalJSON implements json.Marshaler with canonical key order.
func (obj Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(obj)
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (obj *Object) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalJSONValue(data)
	if err != nil {
		return err
	}
	o, ok := v.(Object)
	if !ok {
		return fmt.Errorf("expected JSON object, got %s", TypeName(v))
	}
	*obj = o
	return nil
}

// UnmarshalJSONValue decodes JSON into a Value.
// Numbers written without fraction or exponent become Int, all others Float.
// JSON null is rejected.
func UnmarshalJSONValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromAny(raw)
}

// FromAny converts a decoded Go value (from encoding/json, yaml.v3 or
// hand-written literals) into a Value. nil is rejected.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a parameter value")
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of range: %d", val)
		}
		return Int(val), nil
	case float64:
		return Float(val), nil
	case float32:
		return Float(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			f, err := val.Float64()
			if err != nil {
				return nil, fmt.Errorf("invalid number %s: %w", s, err)
			}
			return Float(f), nil
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(n), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			pv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = pv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			pv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			obj[k] = pv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// CheckKeys returns an error naming the first key of obj (in canonical
// order) that is not in allowed.
func (obj Object) CheckKeys(allowed ...string) error {
	for _, k := range obj.SortedKeys() {
		if !slices.Contains(allowed, k) {
			return fmt.Errorf("unknown key %q (allowed: %s)", k, strings.Join(allowed, ", "))
		}
	}
	return nil
}
