package detector

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ChangeKind represents the kind of change detected
type ChangeKind string

const (
	// ChangeAdded indicates a key or index exists in the new tree only
	ChangeAdded ChangeKind = "added"
	// ChangeRemoved indicates a key or index exists in the old tree only
	ChangeRemoved ChangeKind = "removed"
	// ChangeUpdated indicates a value exists in both trees but differs
	ChangeUpdated ChangeKind = "updated"
)

// Kinds lists every change kind in report order.
var Kinds = []ChangeKind{ChangeAdded, ChangeRemoved, ChangeUpdated}

// Path addresses a value from the root of a tree: object keys and array
// indices, in order.
type Path []string

// String renders the path with dots, e.g. templating.list.0.current
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Pointer renders the path as an RFC 6901 JSON pointer.
func (p Path) Pointer() string {
	if len(p) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, seg := range p {
		sb.WriteByte('/')
		seg = strings.ReplaceAll(seg, "~", "~0")
		sb.WriteString(strings.ReplaceAll(seg, "/", "~1"))
	}
	return sb.String()
}

// ParsePath accepts either a JSON pointer ("/time/from") or a dotted path
// ("time.from").
func ParsePath(s string) Path {
	if s == "" {
		return Path{}
	}
	if strings.HasPrefix(s, "/") {
		segs := strings.Split(s[1:], "/")
		for i, seg := range segs {
			seg = strings.ReplaceAll(seg, "~1", "/")
			segs[i] = strings.ReplaceAll(seg, "~0", "~")
		}
		return segs
	}
	return strings.Split(s, ".")
}

// Change represents a single difference between two trees
type Change struct {
	Kind          ChangeKind `json:"kind" yaml:"kind"`
	Path          Path       `json:"path" yaml:"path"`
	OriginalValue any        `json:"originalValue,omitempty" yaml:"originalValue,omitempty"`
	Value         any        `json:"value,omitempty" yaml:"value,omitempty"`
}

// Description renders the change for humans.
func (c Change) Description() string {
	switch c.Kind {
	case ChangeAdded:
		return fmt.Sprintf("%s was added", c.Path)
	case ChangeRemoved:
		return fmt.Sprintf("%s was removed", c.Path)
	default:
		return fmt.Sprintf("%s changed from %v to %v", c.Path, c.OriginalValue, c.Value)
	}
}

// Diffs maps each change kind to its changes in document order.
type Diffs map[ChangeKind][]Change

// Count returns the number of changes across all kinds.
func (d Diffs) Count() int {
	n := 0
	for _, changes := range d {
		n += len(changes)
	}
	return n
}

// Changes returns every change in document order.
func (d Diffs) Changes() []Change {
	all := make([]Change, 0, d.Count())
	for _, kind := range Kinds {
		all = append(all, d[kind]...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return comparePaths(all[i].Path, all[j].Path) < 0
	})
	return all
}

// ByTopLevelKey groups changes by the first path segment (time, panels,
// templating, ...), the way version history presents them.
func (d Diffs) ByTopLevelKey() map[string][]Change {
	groups := make(map[string][]Change)
	for _, c := range d.Changes() {
		key := ""
		if len(c.Path) > 0 {
			key = c.Path[0]
		}
		groups[key] = append(groups[key], c)
	}
	return groups
}

// Differ compares two JSON trees
type Differ struct {
	// Paths (as JSON pointers) that are skipped together with their subtrees
	ignored map[string]bool
}

// Option configures a Differ
type Option func(*Differ)

// WithIgnoredPaths skips the given paths and everything below them. Paths
// may be JSON pointers or dotted.
func WithIgnoredPaths(paths ...string) Option {
	return func(d *Differ) {
		for _, p := range paths {
			if p == "" {
				continue
			}
			d.ignored[ParsePath(p).Pointer()] = true
		}
	}
}

// NewDiffer creates a new tree differ
func NewDiffer(opts ...Option) *Differ {
	d := &Differ{
		ignored: map[string]bool{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Diff compares lhs and rhs with a default Differ.
func Diff(lhs, rhs any) Diffs {
	return NewDiffer().Diff(lhs, rhs)
}

// Diff compares lhs and rhs and groups the changes by kind.
func (d *Differ) Diff(lhs, rhs any) Diffs {
	diffs := Diffs{}
	for _, c := range d.Compare(lhs, rhs) {
		diffs[c.Kind] = append(diffs[c.Kind], c)
	}
	return diffs
}

// Compare walks both trees and returns their differences in document
// order. Objects are walked key by key in sorted order and arrays index by
// index; anything else is compared with StrictEqual.
func (d *Differ) Compare(lhs, rhs any) []Change {
	var changes []Change
	d.compareValue(Path{}, lhs, rhs, &changes)
	return changes
}

func (d *Differ) compareValue(path Path, lhs, rhs any, changes *[]Change) {
	if d.ignored[path.Pointer()] {
		return
	}

	switch l := lhs.(type) {
	case map[string]any:
		if r, ok := rhs.(map[string]any); ok {
			d.compareObjects(path, l, r, changes)
			return
		}
	case []any:
		if r, ok := rhs.([]any); ok {
			d.compareArrays(path, l, r, changes)
			return
		}
	}

	if !StrictEqual(lhs, rhs) {
		*changes = append(*changes, Change{
			Kind:          ChangeUpdated,
			Path:          path,
			OriginalValue: lhs,
			Value:         rhs,
		})
	}
}

func (d *Differ) compareObjects(path Path, lhs, rhs map[string]any, changes *[]Change) {
	keys := make([]string, 0, len(lhs)+len(rhs))
	for k := range lhs {
		keys = append(keys, k)
	}
	for k := range rhs {
		if _, ok := lhs[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		oldVal, inOld := lhs[k]
		newVal, inNew := rhs[k]
		d.compareEntry(child(path, k), oldVal, inOld, newVal, inNew, changes)
	}
}

func (d *Differ) compareArrays(path Path, lhs, rhs []any, changes *[]Change) {
	n := max(len(lhs), len(rhs))
	for i := 0; i < n; i++ {
		var oldVal, newVal any
		inOld, inNew := i < len(lhs), i < len(rhs)
		if inOld {
			oldVal = lhs[i]
		}
		if inNew {
			newVal = rhs[i]
		}
		d.compareEntry(child(path, strconv.Itoa(i)), oldVal, inOld, newVal, inNew, changes)
	}
}

func (d *Differ) compareEntry(path Path, oldVal any, inOld bool, newVal any, inNew bool, changes *[]Change) {
	switch {
	case inOld && inNew:
		d.compareValue(path, oldVal, newVal, changes)
	case d.ignored[path.Pointer()]:
	case inOld:
		*changes = append(*changes, Change{
			Kind:          ChangeRemoved,
			Path:          path,
			OriginalValue: oldVal,
		})
	default:
		*changes = append(*changes, Change{
			Kind:  ChangeAdded,
			Path:  path,
			Value: newVal,
		})
	}
}

func child(path Path, seg string) Path {
	out := make(Path, len(path)+1)
	copy(out, path)
	out[len(path)] = seg
	return out
}

// StrictEqual compares two decoded JSON values the way the dashboard
// front end compares them: scalars by value, numbers numerically, and
// objects or arrays never equal (they are distinct references there).
func StrictEqual(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case map[string]any, []any:
		return false
	}

	xf, ok := toFloat(a)
	if !ok {
		return false
	}
	yf, ok := toFloat(b)
	return ok && xf == yf
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// comparePaths orders paths as they appear in the encoded document.
func comparePaths(a, b Path) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] == b[i] {
			continue
		}
		ai, aErr := strconv.Atoi(a[i])
		bi, bErr := strconv.Atoi(b[i])
		if aErr == nil && bErr == nil {
			if ai < bi {
				return -1
			}
			return 1
		}
		if a[i] < b[i] {
			return -1
		}
		return 1
	}
	return len(a) - len(b)
}
