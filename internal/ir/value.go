package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf16"
)

// IRValue is a sealed interface representing comparison values and record fields.
// Only IRNull, IRString, IRInt, IRFloat, IRBool, IRTime, IRKeyPath, IRArray
// and IRObject implement this.
type IRValue interface {
	irValue() // Sealed - only these types implement it
	Kind() Kind
}

// Kind identifies the concrete type behind an IRValue.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
	KindKeyPath
	KindArray
	KindObject
)

var kindNames = [...]string{"null", "string", "int", "float", "bool", "time", "keypath", "array", "object"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IRNull represents an absent value.
// Using an explicit type ensures all IRValues satisfy the sealed interface.
type IRNull struct{}

func (IRNull) irValue()   {}
func (IRNull) Kind() Kind { return KindNull }

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString represents a string value.
type IRString string

func (IRString) irValue()   {}
func (IRString) Kind() Kind { return KindString }

// IRInt represents an integer value.
type IRInt int64

func (IRInt) irValue()   {}
func (IRInt) Kind() Kind { return KindInt }

// IRFloat represents a floating point value.
// NaN and infinities are rejected by the canonical encoder.
type IRFloat float64

func (IRFloat) irValue()   {}
func (IRFloat) Kind() Kind { return KindFloat }

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue()   {}
func (IRBool) Kind() Kind { return KindBool }

// IRTime represents an instant. Always constructed in UTC via NewIRTime.
type IRTime time.Time

func (IRTime) irValue()   {}
func (IRTime) Kind() Kind { return KindTime }

// Time returns the wrapped time.Time.
func (t IRTime) Time() time.Time { return time.Time(t) }

// IRKeyPath references another attribute of the same record.
// Comparing a field against an IRKeyPath compares two fields of one record.
type IRKeyPath string

func (IRKeyPath) irValue()   {}
func (IRKeyPath) Kind() Kind { return KindKeyPath }

// IRArray is a finite ordered container of values.
// Used for In sets and Between bounds.
type IRArray []IRValue

func (IRArray) irValue()   {}
func (IRArray) Kind() Kind { return KindArray }

// IRObject represents a map of string keys to IRValue elements.
// The bundled backends use it as their record type.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue()   {}
func (IRObject) Kind() Kind { return KindObject }

// NewIRString creates an IRString value.
func NewIRString(s string) IRString {
	return IRString(s)
}

// NewIRInt creates an IRInt value.
func NewIRInt(n int64) IRInt {
	return IRInt(n)
}

// NewIRFloat creates an IRFloat value.
func NewIRFloat(f float64) IRFloat {
	return IRFloat(f)
}

// NewIRBool creates an IRBool value.
func NewIRBool(b bool) IRBool {
	return IRBool(b)
}

// NewIRTime creates an IRTime normalized to UTC.
func NewIRTime(t time.Time) IRTime {
	return IRTime(t.UTC())
}

// NewIRArray creates an IRArray from values.
func NewIRArray(vals ...IRValue) IRArray {
	return IRArray(vals)
}

// IRPair represents a key-value pair for typed IRObject construction.
type IRPair struct {
	Key   string
	Value IRValue
}

// NewIRObjectFromPairs creates an IRObject from typed key-value pairs.
// Example: NewIRObjectFromPairs(O("name", NewIRString("a")), O("age", NewIRInt(1)))
func NewIRObjectFromPairs(pairs ...IRPair) IRObject {
	obj := make(IRObject, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// O is a shorthand for IRPair for ergonomic construction.
func O(key string, value IRValue) IRPair {
	return IRPair{Key: key, Value: value}
}

// IsNull reports whether v is nil or IRNull.
func IsNull(v IRValue) bool {
	if v == nil {
		return true
	}
	_, ok := v.(IRNull)
	return ok
}

// Lookup resolves a dotted path inside an object.
// Each segment except the last must resolve to a nested IRObject.
// Returns false if any segment is missing.
func (obj IRObject) Lookup(path string) (IRValue, bool) {
	segments := strings.Split(path, ".")
	var cur IRValue = obj
	for _, seg := range segments {
		o, ok := cur.(IRObject)
		if !ok {
			return nil, false
		}
		next, exists := o[seg]
		if !exists {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	// If all compared units are equal, shorter string comes first
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// FromGo converts a native Go value to an IRValue.
// IRValues pass through unchanged. Unsupported types return an error.
func FromGo(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case []byte:
		return IRString(string(val)), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int8:
		return IRInt(val), nil
	case int16:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint8:
		return IRInt(val), nil
	case uint16:
		return IRInt(val), nil
	case uint32:
		return IRInt(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("uint %d overflows int64", val)
		}
		return IRInt(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("uint64 %d overflows int64", val)
		}
		return IRInt(val), nil
	case float32:
		return IRFloat(val), nil
	case float64:
		return IRFloat(val), nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return IRInt(n), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return IRFloat(f), nil
	case time.Time:
		return NewIRTime(val), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// MustFromGo is like FromGo but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFromGo(v any) IRValue {
	irv, err := FromGo(v)
	if err != nil {
		panic(err)
	}
	return irv
}

// ToGo converts an IRValue back into a plain Go value suitable for
// database/sql parameters and JSON output.
func ToGo(v IRValue) any {
	switch val := v.(type) {
	case nil, IRNull:
		return nil
	case IRString:
		return string(val)
	case IRInt:
		return int64(val)
	case IRFloat:
		return float64(val)
	case IRBool:
		return bool(val)
	case IRTime:
		return val.Time()
	case IRKeyPath:
		return string(val)
	case IRArray:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case IRObject:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}

// UnmarshalJSON implements json.Unmarshaler for IRObject.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*obj = make(IRObject, len(raw))
	for k, v := range raw {
		val, err := UnmarshalIRValue(v)
		if err != nil {
			return fmt.Errorf("IRObject key %q: %w", k, err)
		}
		(*obj)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for IRArray.
func (arr *IRArray) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*arr = make(IRArray, len(raw))
	for i, v := range raw {
		val, err := UnmarshalIRValue(v)
		if err != nil {
			return fmt.Errorf("IRArray index %d: %w", i, err)
		}
		(*arr)[i] = val
	}
	return nil
}

// UnmarshalIRValue decodes a JSON value into the appropriate IRValue type.
// Integers stay IRInt (no float64 precision loss); other numbers become IRFloat.
// null becomes IRNull (not nil) to satisfy the sealed interface.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromGo(raw)
}

// MarshalJSON implements json.Marshaler for IRObject with sorted keys (RFC 8785 ordering).
// NOTE: This is NOT canonical marshaling. Use MarshalCanonical for equality and hashing.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	keys := obj.SortedKeys()
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for IRArray.
func (arr IRArray) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := MarshalIRValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalIRValue marshals an IRValue to plain JSON bytes.
// Time becomes an RFC 3339 string and key paths become their path string,
// so the output is lossy on type. Use MarshalCanonical when type matters.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRFloat:
		return json.Marshal(float64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRTime:
		return json.Marshal(val.Time().Format(time.RFC3339Nano))
	case IRKeyPath:
		return json.Marshal(string(val))
	case IRArray:
		return val.MarshalJSON()
	case IRObject:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}
