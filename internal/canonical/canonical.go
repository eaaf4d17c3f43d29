// Package canonical produces deterministic JSON for trace payloads.
//
// Output differs from encoding/json in three ways:
//  1. Object keys are sorted by UTF-16 code units (RFC 8785 ordering)
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized
//
// Marshal rejects values with no JSON form. Stringify never fails: such
// values are rendered with fmt's %v and encoded as strings, which is what
// diagnostics about broken messages need.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Marshal produces canonical JSON for v.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	e := encoder{buf: &buf}
	if err := e.encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Stringify produces canonical JSON for v, substituting a quoted %v
// rendering for anything that cannot be encoded.
func Stringify(v any) string {
	var buf bytes.Buffer
	e := encoder{buf: &buf, lenient: true}
	if err := e.encode(v); err != nil {
		// Lenient encoding only fails on string encoding, which cannot fail.
		return fmt.Sprintf("%q", fmt.Sprintf("%v", v))
	}
	return buf.String()
}

type encoder struct {
	buf     *bytes.Buffer
	lenient bool
}

func (e *encoder) unsupported(v any, reason string) error {
	if e.lenient {
		return e.encodeString(fmt.Sprintf("%v", v))
	}
	return fmt.Errorf("%s: %T", reason, v)
}

func (e *encoder) encode(v any) error {
	switch val := v.(type) {
	case nil:
		e.buf.WriteString("null")
		return nil
	case string:
		return e.encodeString(val)
	case bool:
		e.buf.WriteString(strconv.FormatBool(val))
		return nil
	case json.Number:
		e.buf.WriteString(val.String())
		return nil
	case float64:
		return e.encodeFloat(v, val)
	case float32:
		return e.encodeFloat(v, float64(val))
	case error:
		return e.encodeString(val.Error())
	case json.Marshaler:
		data, err := val.MarshalJSON()
		if err != nil {
			return e.unsupported(v, "marshal failed")
		}
		// Re-encode so nested objects get canonical key order.
		var decoded any
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err != nil {
			return e.unsupported(v, "invalid marshaler output")
		}
		return e.encode(decoded)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		return e.encodeFloat(v, rv.Float())
	case reflect.Bool:
		e.buf.WriteString(strconv.FormatBool(rv.Bool()))
		return nil
	case reflect.String:
		return e.encodeString(rv.String())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		return e.encodeArray(rv)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return e.unsupported(v, "map keys must be strings")
		}
		if rv.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		return e.encodeObject(rv)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		return e.encode(rv.Elem().Interface())
	}
	return e.unsupported(v, "unsupported type for canonical JSON")
}

func (e *encoder) encodeFloat(v any, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return e.unsupported(v, "non-finite number")
	}
	// encoding/json formats floats the way ECMAScript does, as RFC 8785 asks.
	data, err := json.Marshal(f)
	if err != nil {
		return e.unsupported(v, "unencodable number")
	}
	e.buf.Write(data)
	return nil
}

// encodeString writes a JSON string with NFC normalization and without HTML
// escaping.
func (e *encoder) encodeString(s string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	// json.Encoder adds trailing newline, remove it
	e.buf.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return nil
}

func (e *encoder) encodeArray(rv reflect.Value) error {
	e.buf.WriteByte('[')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encode(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func (e *encoder) encodeObject(rv reflect.Value) error {
	keys := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, k.String())
	}
	slices.SortFunc(keys, CompareKeys)

	e.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encodeString(k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		e.buf.WriteByte(':')
		val := rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key()))
		if err := e.encode(val.Interface()); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	e.buf.WriteByte('}')
	return nil
}

// CompareKeys compares strings using UTF-16 code unit ordering as required
// by RFC 8785. Go's default string comparison uses UTF-8 bytes, which orders
// characters outside the Basic Multilingual Plane differently.
func CompareKeys(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}
