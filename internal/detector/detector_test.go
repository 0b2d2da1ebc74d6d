package detector_test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/dashdiff/internal/detector"
)

func tree(t *testing.T, src string) any {
	t.Helper()
	var out any
	require.NoError(t, json.Unmarshal([]byte(src), &out))
	return out
}

func TestDiff_NoChanges(t *testing.T) {
	tests := []struct {
		name string
		lhs  string
		rhs  string
	}{
		{name: "empty objects", lhs: `{}`, rhs: `{}`},
		{name: "null roots", lhs: `null`, rhs: `null`},
		{
			name: "identical dashboards",
			lhs:  `{"time":{"from":"now-6h","to":"now"},"refresh":"5s","panels":[{"id":1}]}`,
			rhs:  `{"panels":[{"id":1}],"refresh":"5s","time":{"to":"now","from":"now-6h"}}`,
		},
		{name: "numbers compare numerically", lhs: `{"v":1}`, rhs: `{"v":1.0}`},
	}

	differ := detector.NewDiffer()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diffs := differ.Diff(tree(t, tt.lhs), tree(t, tt.rhs))
			assert.Equal(t, 0, diffs.Count())
			assert.Empty(t, diffs.Changes())
		})
	}
}

func TestDiff_Updated(t *testing.T) {
	lhs := tree(t, `{"time":{"from":"now-6h","to":"now"},"refresh":"5s"}`)
	rhs := tree(t, `{"time":{"from":"now-1h","to":"now"},"refresh":"5s"}`)

	diffs := detector.Diff(lhs, rhs)

	require.Equal(t, 1, diffs.Count())
	change := diffs[detector.ChangeUpdated][0]
	assert.Equal(t, detector.Path{"time", "from"}, change.Path)
	assert.Equal(t, "now-6h", change.OriginalValue)
	assert.Equal(t, "now-1h", change.Value)
	assert.Equal(t, "/time/from", change.Path.Pointer())
}

func TestDiff_AddedRemoved(t *testing.T) {
	lhs := tree(t, `{"title":"a","tags":["x","y"],"editable":true}`)
	rhs := tree(t, `{"title":"a","tags":["x"],"graphTooltip":1}`)

	changes := detector.NewDiffer().Compare(lhs, rhs)

	want := []detector.Change{
		{Kind: detector.ChangeRemoved, Path: detector.Path{"editable"}, OriginalValue: true},
		{Kind: detector.ChangeAdded, Path: detector.Path{"graphTooltip"}, Value: float64(1)},
		{Kind: detector.ChangeRemoved, Path: detector.Path{"tags", "1"}, OriginalValue: "y"},
	}
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Errorf("Compare() mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_TypeSwitch(t *testing.T) {
	tests := []struct {
		name string
		lhs  string
		rhs  string
		path detector.Path
	}{
		{name: "object to array", lhs: `{"a":{}}`, rhs: `{"a":[]}`, path: detector.Path{"a"}},
		{name: "string to bool", lhs: `{"refresh":"5s"}`, rhs: `{"refresh":false}`, path: detector.Path{"refresh"}},
		{name: "object to null", lhs: `{"a":{"b":1}}`, rhs: `{"a":null}`, path: detector.Path{"a"}},
		{name: "root scalar", lhs: `1`, rhs: `"1"`, path: detector.Path{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diffs := detector.Diff(tree(t, tt.lhs), tree(t, tt.rhs))
			require.Len(t, diffs[detector.ChangeUpdated], 1)
			assert.Equal(t, 1, diffs.Count())
			assert.Equal(t, tt.path, diffs[detector.ChangeUpdated][0].Path)
		})
	}
}

func TestDiff_IgnoredPaths(t *testing.T) {
	lhs := tree(t, `{"id":1,"version":3,"time":{"from":"now-6h","to":"now"}}`)
	rhs := tree(t, `{"id":2,"version":4,"time":{"from":"now-1h","to":"now"}}`)

	differ := detector.NewDiffer(detector.WithIgnoredPaths("/id", "version", "time.from", ""))
	assert.Equal(t, 0, differ.Diff(lhs, rhs).Count())

	differ = detector.NewDiffer(detector.WithIgnoredPaths("/time"))
	assert.Equal(t, 2, differ.Diff(lhs, rhs).Count())
}

func TestDiffs_ChangesInDocumentOrder(t *testing.T) {
	lhs := tree(t, `{"panels":[{"id":1},{"id":2}],"time":{"from":"now-6h"}}`)
	rhs := tree(t, `{"panels":[{"id":1},{"id":3},{"id":4}],"time":{"from":"now-6h","to":"now"},"annotations":{}}`)

	changes := detector.Diff(lhs, rhs).Changes()

	paths := make([]string, len(changes))
	for i, c := range changes {
		paths[i] = c.Path.String()
	}
	assert.Equal(t, []string{"annotations", "panels.1.id", "panels.2", "time.to"}, paths)
}

func TestDiffs_ArrayIndexOrder(t *testing.T) {
	lhs := tree(t, `{"list":[]}`)
	rhs := tree(t, `{"list":[0,1,2,3,4,5,6,7,8,9,10,11]}`)

	changes := detector.Diff(lhs, rhs).Changes()
	require.Len(t, changes, 12)
	assert.Equal(t, detector.Path{"list", "2"}, changes[2].Path)
	assert.Equal(t, detector.Path{"list", "10"}, changes[10].Path)
}

func TestDiffs_ByTopLevelKey(t *testing.T) {
	lhs := tree(t, `{"time":{"from":"now-6h","to":"now"},"refresh":"5s","title":"a"}`)
	rhs := tree(t, `{"time":{"from":"now-1h","to":"now-5m"},"refresh":"1m","title":"a"}`)

	groups := detector.Diff(lhs, rhs).ByTopLevelKey()

	assert.Len(t, groups, 2)
	assert.Len(t, groups["time"], 2)
	assert.Len(t, groups["refresh"], 1)
	assert.NotContains(t, groups, "title")
}

func TestStrictEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"equal strings", "a", "a", true},
		{"different strings", "a", "b", false},
		{"string and number", "1", json.Number("1"), false},
		{"json numbers", json.Number("1"), json.Number("1.0"), true},
		{"json number and float", json.Number("2"), float64(2), true},
		{"bools", true, true, true},
		{"bool and string", false, "", false},
		{"nil and nil", nil, nil, true},
		{"nil and string", nil, "", false},
		{"objects are never equal", map[string]any{}, map[string]any{}, false},
		{"arrays are never equal", []any{}, []any{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detector.StrictEqual(tt.a, tt.b))
		})
	}
}

func TestParsePath(t *testing.T) {
	assert.Equal(t, detector.Path{"time", "from"}, detector.ParsePath("/time/from"))
	assert.Equal(t, detector.Path{"time", "from"}, detector.ParsePath("time.from"))
	assert.Equal(t, detector.Path{"a/b", "c~d"}, detector.ParsePath("/a~1b/c~0d"))
	assert.Equal(t, "/a~1b/c~0d", detector.Path{"a/b", "c~d"}.Pointer())
	assert.Equal(t, "", detector.Path{}.Pointer())
}

func TestChange_Description(t *testing.T) {
	c := detector.Change{Kind: detector.ChangeUpdated, Path: detector.Path{"refresh"}, OriginalValue: "5s", Value: "1m"}
	assert.Equal(t, "refresh changed from 5s to 1m", c.Description())

	c = detector.Change{Kind: detector.ChangeAdded, Path: detector.Path{"panels", "0"}}
	assert.Equal(t, "panels.0 was added", c.Description())
}
