package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/yourusername/dashdiff/internal/detector"
)

// Value holds a JSON value whose type is not fixed by the dashboard schema.
// Variable text/value fields are either a string or a list of strings, and
// refresh is a duration string in current dashboards but false in old ones.
// A nil *Value means the field was absent; a Value holding nil is an
// explicit null.
type Value struct {
	v any
}

// NewValue wraps an already decoded JSON value.
func NewValue(v any) *Value {
	return &Value{v: v}
}

// StringValue returns a Value holding s.
func StringValue(s string) *Value {
	return &Value{v: s}
}

// ListValue returns a Value holding a list of strings.
func ListValue(items ...string) *Value {
	list := make([]any, len(items))
	for i, s := range items {
		list[i] = s
	}
	return &Value{v: list}
}

// Raw returns the decoded JSON value. Numbers are json.Number.
func (v *Value) Raw() any {
	if v == nil {
		return nil
	}
	return v.v
}

// AsString returns the value if it is a string.
func (v *Value) AsString() (string, bool) {
	if v == nil {
		return "", false
	}
	s, ok := v.v.(string)
	return s, ok
}

// AsList returns the value if it is a list. Elements keep their JSON types.
func (v *Value) AsList() ([]any, bool) {
	if v == nil {
		return nil, false
	}
	l, ok := v.v.([]any)
	return l, ok
}

// IsList reports whether the value is a JSON array.
func (v *Value) IsList() bool {
	_, ok := v.AsList()
	return ok
}

// Equal reports whether v and other hold the same scalar. Absent equals
// only absent and null equals only null. Objects and lists are never equal.
func (v *Value) Equal(other *Value) bool {
	if v == nil || other == nil {
		return v == other
	}
	return detector.StrictEqual(v.v, other.v)
}

// Copy returns a deep copy of v.
func (v *Value) Copy() *Value {
	if v == nil {
		return nil
	}
	return &Value{v: copyTree(v.v)}
}

func copyTree(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = copyTree(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = copyTree(e)
		}
		return out
	default:
		return v
	}
}

func (v *Value) String() string {
	if v == nil {
		return "<absent>"
	}
	return fmt.Sprintf("%v", v.v)
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Value) UnmarshalJSON(data []byte) error {
	var out any
	if err := decodeNumbers(data, &out); err != nil {
		return err
	}
	v.v = out
	return nil
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.v)
}

func decodeNumbers(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}
