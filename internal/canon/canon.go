// Copyright 2025 James Ross
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// Canonicalize renders any JSON-shaped Go value (map[string]interface{},
// []interface{}, string, float64, bool, nil, json.Number) into its
// canonical byte form: every string NFC-normalized, every map's keys sorted
// lexicographically at every level, list order preserved, minimum
// whitespace. Calling Canonicalize on its own output is a no-op.
func Canonicalize(v interface{}) ([]byte, error) {
	normalized := normalizeValue(v)
	var buf bytes.Buffer
	if err := encodeValue(&buf, normalized); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromJSON parses raw JSON and canonicalizes it.
func FromJSON(raw []byte) ([]byte, error) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canon: decode json: %w", err)
	}
	return Canonicalize(v)
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return norm.NFC.String(t)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[norm.NFC.String(k)] = normalizeValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalizeValue(val)
		}
		return out
	default:
		return v
	}
}

func encodeValue(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	case json.Number:
		buf.WriteString(canonicalNumber(string(t)))
	case float64:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	case map[string]interface{}:
		return encodeMap(buf, t)
	case []interface{}:
		return encodeSlice(buf, t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("canon: unsupported value %T: %w", v, err)
		}
		buf.Write(b)
	}
	return nil
}

func encodeMap(buf *bytes.Buffer, m map[string]interface{}) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if err := encodeValue(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeSlice(buf *bytes.Buffer, s []interface{}) error {
	buf.WriteByte('[')
	for i, v := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(buf, v); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// canonicalNumber strips insignificant trailing zeros/plus-signs from a
// json.Number's literal text while keeping it a valid JSON number.
func canonicalNumber(s string) string {
	var f float64
	if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
		return s
	}
	if f == float64(int64(f)) && !bytes.ContainsAny([]byte(s), "eE") {
		return fmt.Sprintf("%d", int64(f))
	}
	b, err := json.Marshal(f)
	if err != nil {
		return s
	}
	return string(b)
}
