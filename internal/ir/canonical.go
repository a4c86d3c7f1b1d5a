package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Reserved object keys used to tag non-JSON kinds in canonical form.
const (
	canonicalTimeKey    = "$time"
	canonicalKeyPathKey = "$keypath"
)

// MarshalCanonical produces RFC 8785 style canonical JSON.
// CRITICAL: This is the ONLY serialization that should be used for
// structural equality and fingerprint computation.
//
// Key differences from standard json.Marshal:
// 1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
// 2. No HTML escaping (< > & are NOT escaped)
// 3. Strings are NFC normalized
// 4. Floats always carry a fraction or exponent, so IRFloat(1) != IRInt(1)
// 5. IRTime and IRKeyPath are tagged objects ({"$time":...}, {"$keypath":...})
func MarshalCanonical(v any) ([]byte, error) {
	return marshalCanonical(v)
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return []byte("null"), nil
	case IRString:
		return marshalCanonicalString(string(val))
	case IRInt:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case IRFloat:
		return marshalCanonicalFloat(float64(val))
	case IRBool:
		return marshalCanonicalBool(bool(val)), nil
	case IRTime:
		return marshalCanonicalTagged(canonicalTimeKey, val.Time().UTC().Format(time.RFC3339Nano))
	case IRKeyPath:
		return marshalCanonicalTagged(canonicalKeyPathKey, string(val))
	case IRArray:
		return marshalCanonicalArray(val)
	case IRObject:
		return marshalCanonicalObject(val)
	case string:
		return marshalCanonicalString(val)
	case int64:
		return []byte(strconv.FormatInt(val, 10)), nil
	case int:
		return []byte(strconv.Itoa(val)), nil
	case bool:
		return marshalCanonicalBool(val), nil
	case float64:
		return marshalCanonicalFloat(val)
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return marshalCanonicalArray(arr)
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return marshalCanonicalObject(obj)
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

func marshalCanonicalBool(b bool) []byte {
	if b {
		return []byte("true")
	}
	return []byte("false")
}

// marshalCanonicalFloat rejects NaN and infinities, which have no JSON form.
func marshalCanonicalFloat(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite float is forbidden in canonical JSON: %v", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return []byte(s), nil
}

func marshalCanonicalTagged(key, value string) ([]byte, error) {
	keyBytes, err := marshalCanonicalString(key)
	if err != nil {
		return nil, err
	}
	valBytes, err := marshalCanonicalString(value)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.Write(keyBytes)
	buf.WriteByte(':')
	buf.Write(valBytes)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalCanonicalString produces canonical JSON string with NFC normalization.
// RFC 8785 compliance:
// - No HTML escaping (<, >, & are NOT escaped)
// - U+2028 and U+2029 are NOT escaped
// - Only control characters (U+0000-U+001F), backslash, and quote are escaped
func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // CRITICAL: <, >, & must NOT be escaped
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder adds trailing newline, remove it
	result := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	// Go's json.Encoder escapes U+2028/U+2029 for JavaScript; RFC 8785 does not.
	return unescapeU2028U2029(result), nil
}

// unescapeU2028U2029 converts \u2028 and \u2029 escape sequences to literal
// characters, but preserves \\u2028/\\u2029 (escaped backslash followed by text).
func unescapeU2028U2029(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	result := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+1 < len(data) && data[i+1] == '\\' {
			// Escaped backslash: copy both bytes and skip past them.
			result = append(result, '\\', '\\')
			i++
			continue
		}
		if i+6 <= len(data) && bytes.HasPrefix(data[i:], []byte(`\u202`)) && (data[i+5] == '8' || data[i+5] == '9') {
			if data[i+5] == '8' {
				result = append(result, "\u2028"...)
			} else {
				result = append(result, "\u2029"...)
			}
			i += 5
			continue
		}
		result = append(result, data[i])
	}
	return result
}

// marshalCanonicalArray marshals an array to canonical JSON.
func marshalCanonicalArray(arr IRArray) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := marshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// marshalCanonicalObject marshals an object to canonical JSON with RFC 8785 key ordering.
func marshalCanonicalObject(obj IRObject) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyBytes, err := marshalCanonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := marshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalCanonical is the inverse of MarshalCanonical: it decodes JSON
// like UnmarshalIRValue and restores tagged {"$time"} and {"$keypath"}
// objects to IRTime and IRKeyPath.
func UnmarshalCanonical(data []byte) (IRValue, error) {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return nil, err
	}
	return Untag(v)
}

// Untag replaces tagged objects ({"$time": ...}, {"$keypath": ...}) in v
// with the IRTime and IRKeyPath values they stand for. v is modified in place.
func Untag(v IRValue) (IRValue, error) {
	switch val := v.(type) {
	case IRArray:
		for i, elem := range val {
			u, err := Untag(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			val[i] = u
		}
		return val, nil
	case IRObject:
		if len(val) == 1 {
			if s, ok := val[canonicalTimeKey].(IRString); ok {
				t, err := time.Parse(time.RFC3339Nano, string(s))
				if err != nil {
					return nil, fmt.Errorf("tagged time: %w", err)
				}
				return NewIRTime(t), nil
			}
			if s, ok := val[canonicalKeyPathKey].(IRString); ok {
				return IRKeyPath(s), nil
			}
		}
		for k, elem := range val {
			u, err := Untag(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			val[k] = u
		}
		return val, nil
	}
	return v, nil
}
