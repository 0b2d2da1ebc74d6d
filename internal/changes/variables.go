package changes

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yourusername/dashdiff/internal/dashboard"
	"github.com/yourusername/dashdiff/internal/detector"
)

// ErrAdHocMissingFilters is returned when a matched adhoc variable has no
// filters list. Such a record is malformed and is never read as "no change".
var ErrAdHocMissingFilters = errors.New("adhoc variable missing filters property")

// Reconciliation is the outcome of comparing the edited variables with the
// migrated ones.
type Reconciliation struct {
	// Edited is the edited list, reverted to migrated values when variables
	// are not saved
	Edited []dashboard.Variable
	// Migrated is the migrated list with the legacy current.selected removed
	// from every matched variable
	Migrated        []dashboard.Variable
	HasValueChanges bool
}

// ApplyVariableChanges compares every edited variable with the migrated
// variable of the same name and type and reports whether any value changed.
// Variables without a counterpart are skipped. When saveVariables is false
// the edited values are replaced by the migrated ones: filters for adhoc
// variables, current and options for the rest.
//
// The inputs are not modified.
func ApplyVariableChanges(edited, migrated []dashboard.Variable, saveVariables bool) (*Reconciliation, error) {
	editedCopy, err := cloneJSON(edited)
	if err != nil {
		return nil, err
	}
	migratedCopy, err := cloneJSON(migrated)
	if err != nil {
		return nil, err
	}

	changed, err := reconcileVariables(editedCopy, migratedCopy, saveVariables)
	if err != nil {
		return nil, err
	}

	return &Reconciliation{
		Edited:          editedCopy,
		Migrated:        migratedCopy,
		HasValueChanges: changed,
	}, nil
}

// reconcileVariables does the work of ApplyVariableChanges in place. Both
// slices must be owned by the caller.
func reconcileVariables(edited, migrated []dashboard.Variable, saveVariables bool) (bool, error) {
	changed := false

	for i := range edited {
		variable := &edited[i]
		original := findVariable(migrated, variable)
		if original == nil {
			continue
		}

		if original.Current != nil {
			original.Current.ClearSelected()
		}

		if !OptionsEqual(variable.Current, original.Current) {
			changed = true
		}
		if variable.IsAdHoc() {
			equal, err := AdHocFiltersEqual(variable, original)
			if err != nil {
				return false, err
			}
			if !equal {
				changed = true
			}
		}

		if saveVariables {
			continue
		}
		if err := revertVariable(variable, original); err != nil {
			return false, fmt.Errorf("reverting %s: %w", variable.DisplayName(), err)
		}
	}

	return changed, nil
}

func findVariable(list []dashboard.Variable, v *dashboard.Variable) *dashboard.Variable {
	for i := range list {
		if list[i].Matches(v) {
			return &list[i]
		}
	}
	return nil
}

// revertVariable copies the persisted value of original into variable so
// the two snapshots never share memory.
func revertVariable(variable, original *dashboard.Variable) error {
	if variable.IsAdHoc() {
		return variable.RestoreFilters(original)
	}
	return variable.RestoreCurrent(original)
}

// OptionsEqual reports whether two current selections are the same. Two
// absent selections are equal; otherwise the selected flags must match and
// text and value must be ValuesEqual.
func OptionsEqual(a, b *dashboard.VariableOption) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Selected.Equal(b.Selected) &&
		ValuesEqual(a.Text, b.Text) &&
		ValuesEqual(a.Value, b.Value)
}

// ValuesEqual compares variable text or value fields. Scalars compare
// strictly and lists element by element. An absent value is not equal to
// anything, including another absent value.
//
// Numbers, booleans and null are compared like strings: two text fields
// holding true are equal, and so are 2 and 2.0. Objects never are.
func ValuesEqual(a, b *dashboard.Value) bool {
	if a == nil || b == nil {
		return false
	}

	la, aList := a.AsList()
	lb, bList := b.AsList()
	if aList != bList {
		return false
	}
	if !aList {
		return detector.StrictEqual(a.Raw(), b.Raw())
	}

	if len(la) != len(lb) {
		return false
	}
	for i := range la {
		if !detector.StrictEqual(la[i], lb[i]) {
			return false
		}
	}
	return true
}

// AdHocFiltersEqual compares the filters of two adhoc variables position by
// position.
func AdHocFiltersEqual(a, b *dashboard.Variable) (bool, error) {
	if a.Filters == nil {
		return false, fmt.Errorf("%w: %s", ErrAdHocMissingFilters, a.DisplayName())
	}
	if b.Filters == nil {
		return false, fmt.Errorf("%w: %s", ErrAdHocMissingFilters, b.DisplayName())
	}

	if len(a.Filters) != len(b.Filters) {
		return false, nil
	}
	for i := range a.Filters {
		fa, fb := a.Filters[i], b.Filters[i]
		if !fa.Key.Equal(fb.Key) ||
			!fa.Operator.Equal(fb.Operator) ||
			!fa.Value.Equal(fb.Value) {
			return false, nil
		}
	}
	return true, nil
}

// HasTimeChanged reports whether the time range of edited differs from the
// one of migrated. Bounds compare strictly; a missing bound only equals
// another missing bound. A time range that is null or not an object has no
// bounds.
func HasTimeChanged(edited, migrated *dashboard.Dashboard) bool {
	from, to := timeBounds(edited)
	mFrom, mTo := timeBounds(migrated)
	return !from.Equal(mFrom) || !to.Equal(mTo)
}

func timeBounds(d *dashboard.Dashboard) (from, to *dashboard.Value) {
	if d.Time == nil {
		return nil, nil
	}
	return d.Time.From, d.Time.To
}

// cloneJSON deep copies v through its JSON encoding.
func cloneJSON[T any](v T) (T, error) {
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
