package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotObject is returned when a snapshot document is not a JSON object.
var ErrNotObject = errors.New("dashboard snapshot must be a JSON object")

// Format identifies the encoding of a snapshot document.
type Format string

const (
	// FormatJSON is the format dashboards are persisted in
	FormatJSON Format = "json"
	// FormatYAML is accepted for hand written fixtures and provisioning files
	FormatYAML Format = "yaml"
)

// FormatFromPath guesses the document format from a file name.
func FormatFromPath(path string) Format {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return FormatYAML
	}
	return FormatJSON
}

// Parse decodes a dashboard snapshot. Documents in the HTTP API shape
// ({"dashboard": {...}, "meta": {...}}) are unwrapped.
func Parse(data []byte, format Format) (*Dashboard, error) {
	if format == FormatYAML {
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, err
		}
		data = converted
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, ErrNotObject
	}

	if inner, ok := unwrapAPIResponse(data); ok {
		data = inner
	}

	var d Dashboard
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decoding dashboard: %w", err)
	}
	return &d, nil
}

// Decode reads a JSON snapshot from r.
func Decode(r io.Reader) (*Dashboard, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading dashboard: %w", err)
	}
	return Parse(data, FormatJSON)
}

// ParsePanel decodes a single panel document.
func ParsePanel(data []byte, format Format) (Panel, error) {
	if format == FormatYAML {
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, err
		}
		data = converted
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, ErrNotObject
	}

	var p Panel
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding panel: %w", err)
	}
	return p, nil
}

// ToTree converts a snapshot, panel or any JSON encodable value into the
// generic tree (map[string]any, []any, string, json.Number, bool, nil)
// compared by the detector.
func ToTree(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding tree: %w", err)
	}
	var out any
	if err := decodeNumbers(data, &out); err != nil {
		return nil, fmt.Errorf("decoding tree: %w", err)
	}
	return out, nil
}

func unwrapAPIResponse(data []byte) ([]byte, bool) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, false
	}
	inner, hasDashboard := envelope["dashboard"]
	_, hasMeta := envelope["meta"]
	if !hasDashboard || !hasMeta {
		return nil, false
	}
	inner = bytes.TrimSpace(inner)
	if len(inner) == 0 || inner[0] != '{' {
		return nil, false
	}
	return inner, true
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, ErrNotObject
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("converting yaml to json: %w", err)
	}
	return out, nil
}

// extras holds the object keys a struct does not model so that they survive
// a decode/encode round trip.
type extras map[string]json.RawMessage

var valueType = reflect.TypeOf((*Value)(nil))

// decodeObject fills known (a pointer to an alias of the modelled struct)
// from the keys that match its json tags exactly and returns every other
// key. A modelled key whose value is null or of the wrong type is returned
// with the others and its field stays nil, except for *Value fields, which
// take any JSON value.
func decodeObject(data []byte, known any) (extras, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	if all == nil {
		return nil, ErrNotObject
	}

	v := reflect.ValueOf(known).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name, ok := jsonName(t.Field(i))
		if !ok {
			continue
		}
		raw, present := all[name]
		if !present {
			continue
		}

		field := v.Field(i)
		if isNull(raw) {
			if field.Type() != valueType {
				continue
			}
			field.Set(reflect.ValueOf(NewValue(nil)))
			delete(all, name)
			continue
		}
		if err := json.Unmarshal(raw, field.Addr().Interface()); err != nil {
			field.Set(reflect.Zero(field.Type()))
			continue
		}
		delete(all, name)
	}

	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// encodeObject encodes known and merges the extra keys back in. Modelled
// fields win over extras with the same name.
func encodeObject(known any, extra extras) ([]byte, error) {
	data, err := json.Marshal(known)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := all[k]; !ok {
			all[k] = v
		}
	}
	return json.Marshal(all)
}

func jsonName(f reflect.StructField) (string, bool) {
	if !f.IsExported() {
		return "", false
	}
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	return name, true
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// mirror makes key in e a copy of key in src, removing it when src has none.
func (e extras) mirror(src extras, key string) extras {
	raw, ok := src[key]
	if !ok {
		delete(e, key)
		return e
	}
	if e == nil {
		e = extras{}
	}
	e[key] = append(json.RawMessage(nil), raw...)
	return e
}

func (e extras) string(key string) string {
	raw, ok := e[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
