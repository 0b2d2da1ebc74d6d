// Package dashboard models the persisted dashboard document that change
// detection consumes.
//
// Only the fields the change detector reads or rewrites are modelled: time
// range, refresh, templating variables, version and panels. Every other key
// is carried through untouched so that encoding a decoded snapshot yields the
// same tree.
package dashboard

import (
	"encoding/json"
	"fmt"
)

// VariableTypeAdHoc is the variable type whose value is a list of filters.
const VariableTypeAdHoc = "adhoc"

// Dashboard is one snapshot of a dashboard's saved configuration.
//
// Scalars are held as *Value so that any JSON type, including an explicit
// null, survives decoding. Objects and lists that are null or of an
// unexpected type are left nil and kept verbatim with the unmodelled keys.
type Dashboard struct {
	Version    *Value      `json:"version,omitzero"`
	Time       *TimeRange  `json:"time,omitzero"`
	Refresh    *Value      `json:"refresh,omitzero"`
	Templating *Templating `json:"templating,omitzero"`
	Panels     []Panel     `json:"panels,omitzero"`

	extra extras
}

// TimeRange is the dashboard's default time range, e.g. now-6h to now.
type TimeRange struct {
	From *Value `json:"from,omitzero"`
	To   *Value `json:"to,omitzero"`

	extra extras
}

// Templating wraps the dashboard variables.
type Templating struct {
	List []Variable `json:"list,omitzero"`

	extra extras
}

// Variable is a template variable. Variables are identified by name and type.
type Variable struct {
	Name    *Value           `json:"name,omitzero"`
	Type    *Value           `json:"type,omitzero"`
	Current *VariableOption  `json:"current,omitzero"`
	Options []VariableOption `json:"options,omitzero"`
	Filters []AdHocFilter    `json:"filters,omitzero"`

	extra extras
}

// VariableOption is a selectable (or selected) variable value.
type VariableOption struct {
	// Selected is a legacy flag that should never be persisted on current
	Selected *Value `json:"selected,omitzero"`
	Text     *Value `json:"text,omitzero"`
	Value    *Value `json:"value,omitzero"`

	extra extras
}

// AdHocFilter is one key/operator/value predicate of an adhoc variable.
type AdHocFilter struct {
	Key      *Value `json:"key,omitzero"`
	Operator *Value `json:"operator,omitzero"`
	Value    *Value `json:"value,omitzero"`

	extra extras
}

// Panel is kept as a free form object; nothing in change detection looks
// inside it.
type Panel map[string]any

// UID returns the dashboard uid, or "" when it has none.
func (d *Dashboard) UID() string {
	return d.extra.string("uid")
}

// Title returns the dashboard title.
func (d *Dashboard) Title() string {
	return d.extra.string("title")
}

// Variables returns the templating list, nil when there is none.
func (d *Dashboard) Variables() []Variable {
	if d.Templating == nil {
		return nil
	}
	return d.Templating.List
}

// IsAdHoc reports whether v is an adhoc filter variable.
func (v *Variable) IsAdHoc() bool {
	t, ok := v.Type.AsString()
	return ok && t == VariableTypeAdHoc
}

// Matches reports whether v and other have the same name and type. Absent
// fields match only absent fields.
func (v *Variable) Matches(other *Variable) bool {
	return v.Name.Equal(other.Name) && v.Type.Equal(other.Type)
}

// DisplayName is used in logs and errors.
func (v *Variable) DisplayName() string {
	if v.Name == nil {
		return "<unnamed>"
	}
	if name, ok := v.Name.AsString(); ok {
		return name
	}
	return v.Name.String()
}

// RestoreTime replaces the time range of d with a copy of the one in src,
// whatever its shape, so both encode the same "time" key.
func (d *Dashboard) RestoreTime(src *Dashboard) error {
	t, err := clone(src.Time)
	if err != nil {
		return err
	}
	d.Time = t
	d.extra = d.extra.mirror(src.extra, "time")
	return nil
}

// RestoreRefresh replaces the refresh of d with a copy of the one in src.
func (d *Dashboard) RestoreRefresh(src *Dashboard) {
	d.Refresh = src.Refresh.Copy()
}

// RestoreCurrent replaces current and options of v with copies of those in
// src.
func (v *Variable) RestoreCurrent(src *Variable) error {
	current, err := clone(src.Current)
	if err != nil {
		return err
	}
	options, err := clone(src.Options)
	if err != nil {
		return err
	}
	v.Current, v.Options = current, options
	v.extra = v.extra.mirror(src.extra, "current")
	v.extra = v.extra.mirror(src.extra, "options")
	return nil
}

// RestoreFilters replaces the adhoc filters of v with a copy of those in src.
func (v *Variable) RestoreFilters(src *Variable) error {
	filters, err := clone(src.Filters)
	if err != nil {
		return err
	}
	v.Filters = filters
	v.extra = v.extra.mirror(src.extra, "filters")
	return nil
}

// ClearSelected removes the legacy selected flag, whatever its value.
func (o *VariableOption) ClearSelected() {
	o.Selected = nil
	delete(o.extra, "selected")
}

// Clone returns a deep copy of d.
func (d *Dashboard) Clone() (*Dashboard, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("cloning dashboard: %w", err)
	}
	var out Dashboard
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cloning dashboard: %w", err)
	}
	return &out, nil
}

// Tree returns the generic JSON tree of d.
func (d *Dashboard) Tree() (any, error) {
	return ToTree(d)
}

// clone deep copies v through its JSON encoding.
func clone[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("copying %T: %w", v, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("copying %T: %w", v, err)
	}
	return out, nil
}

type dashboardAlias Dashboard

// UnmarshalJSON implements json.Unmarshaler
func (d *Dashboard) UnmarshalJSON(data []byte) error {
	var a dashboardAlias
	extra, err := decodeObject(data, &a)
	if err != nil {
		return err
	}
	*d = Dashboard(a)
	d.extra = extra
	return nil
}

// MarshalJSON implements json.Marshaler
func (d Dashboard) MarshalJSON() ([]byte, error) {
	return encodeObject(dashboardAlias(d), d.extra)
}

type timeRangeAlias TimeRange

// UnmarshalJSON implements json.Unmarshaler
func (t *TimeRange) UnmarshalJSON(data []byte) error {
	var a timeRangeAlias
	extra, err := decodeObject(data, &a)
	if err != nil {
		return err
	}
	*t = TimeRange(a)
	t.extra = extra
	return nil
}

// MarshalJSON implements json.Marshaler
func (t TimeRange) MarshalJSON() ([]byte, error) {
	return encodeObject(timeRangeAlias(t), t.extra)
}

type templatingAlias Templating

// UnmarshalJSON implements json.Unmarshaler
func (t *Templating) UnmarshalJSON(data []byte) error {
	var a templatingAlias
	extra, err := decodeObject(data, &a)
	if err != nil {
		return err
	}
	*t = Templating(a)
	t.extra = extra
	return nil
}

// MarshalJSON implements json.Marshaler
func (t Templating) MarshalJSON() ([]byte, error) {
	return encodeObject(templatingAlias(t), t.extra)
}

type variableAlias Variable

// UnmarshalJSON implements json.Unmarshaler
func (v *Variable) UnmarshalJSON(data []byte) error {
	var a variableAlias
	extra, err := decodeObject(data, &a)
	if err != nil {
		return err
	}
	*v = Variable(a)
	v.extra = extra
	return nil
}

// MarshalJSON implements json.Marshaler
func (v Variable) MarshalJSON() ([]byte, error) {
	return encodeObject(variableAlias(v), v.extra)
}

type variableOptionAlias VariableOption

// UnmarshalJSON implements json.Unmarshaler
func (o *VariableOption) UnmarshalJSON(data []byte) error {
	var a variableOptionAlias
	extra, err := decodeObject(data, &a)
	if err != nil {
		return err
	}
	*o = VariableOption(a)
	o.extra = extra
	return nil
}

// MarshalJSON implements json.Marshaler
func (o VariableOption) MarshalJSON() ([]byte, error) {
	return encodeObject(variableOptionAlias(o), o.extra)
}

type adHocFilterAlias AdHocFilter

// UnmarshalJSON implements json.Unmarshaler
func (f *AdHocFilter) UnmarshalJSON(data []byte) error {
	var a adHocFilterAlias
	extra, err := decodeObject(data, &a)
	if err != nil {
		return err
	}
	*f = AdHocFilter(a)
	f.extra = extra
	return nil
}

// MarshalJSON implements json.Marshaler
func (f AdHocFilter) MarshalJSON() ([]byte, error) {
	return encodeObject(adHocFilterAlias(f), f.extra)
}

// UnmarshalJSON keeps panel numbers exact.
func (p *Panel) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := decodeNumbers(data, &m); err != nil {
		return err
	}
	*p = m
	return nil
}
