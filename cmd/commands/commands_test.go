package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/dashdiff/internal/aws"
	"github.com/yourusername/dashdiff/internal/aws/testutils"
	"github.com/yourusername/dashdiff/internal/source"
)

const (
	savedDashboard = `{"uid":"cpu","title":"CPU","version":3,"refresh":"5s",
		"time":{"from":"now-6h","to":"now"},"panels":[{"id":1,"type":"graph"}]}`
	editedDashboard = `{"uid":"cpu","title":"CPU usage","version":3,"refresh":"5s",
		"time":{"from":"now-1h","to":"now"},"panels":[{"id":1,"type":"graph"}]}`
)

// fakeStore serves snapshots from memory by object key.
type fakeStore map[string]string

func (f fakeStore) GetSnapshot(_ context.Context, loc aws.Location) ([]byte, error) {
	body, ok := f[loc.Key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", aws.ErrSnapshotNotFound, loc)
	}
	return []byte(body), nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, opts *rootOptions, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	if opts == nil {
		opts = &rootOptions{}
	}
	root := newRootCmd(opts)

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append(args, "--log-level", "error"))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeReport(t *testing.T, out string) map[string]interface{} {
	t.Helper()
	var rep map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	return rep
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, nil, "", "version")
	require.NoError(t, err)
	assert.Equal(t, GetVersion()+"\n", out)
	assert.Contains(t, out, "dashdiff version dev")
}

func TestChangesCmd(t *testing.T) {
	dir := t.TempDir()
	original := writeFile(t, dir, "saved.json", savedDashboard)
	edited := writeFile(t, dir, "edited.json", editedDashboard)

	tests := []struct {
		name          string
		args          []string
		wantDiffCount float64
		wantTime      bool
	}{
		{
			name:          "time range reverted",
			args:          []string{"--original", original, "--edited", edited},
			wantDiffCount: 1,
			wantTime:      true,
		},
		{
			name:          "time range saved",
			args:          []string{"--original", original, "--edited", edited, "--save-time-range"},
			wantDiffCount: 2,
			wantTime:      true,
		},
		{
			name:          "no edits",
			args:          []string{"--original", original, "--edited", original},
			wantDiffCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, nil, "", append([]string{"changes", "-o", "json"}, tt.args...)...)
			require.NoError(t, err)

			rep := decodeReport(t, out)
			assert.Equal(t, tt.wantDiffCount, rep["diff_count"])
			assert.Equal(t, tt.wantDiffCount > 0, rep["has_changes"])
			assert.Equal(t, original, rep["source"])

			flags := rep["flags"].(map[string]interface{})
			assert.Equal(t, tt.wantTime, flags["time_changed"])
			assert.Equal(t, false, flags["is_new"])
		})
	}
}

func TestChangesCmd_SaveOptionsFromConfig(t *testing.T) {
	dir := t.TempDir()
	original := writeFile(t, dir, "saved.json", savedDashboard)
	edited := writeFile(t, dir, "edited.json", editedDashboard)
	cfg := writeFile(t, dir, "config.yaml", "save:\n  time_range: true\noutput:\n  format: json\n")

	out, err := execute(t, nil, "", "changes", "--config", cfg, "--original", original, "--edited", edited)
	require.NoError(t, err)
	assert.Equal(t, float64(2), decodeReport(t, out)["diff_count"])

	// explicit flag wins over the config file
	out, err = execute(t, nil, "", "changes", "--config", cfg, "--original", original, "--edited", edited, "--save-time-range=false")
	require.NoError(t, err)
	assert.Equal(t, float64(1), decodeReport(t, out)["diff_count"])
}

func TestChangesCmd_Normalized(t *testing.T) {
	dir := t.TempDir()
	original := writeFile(t, dir, "saved.json", savedDashboard)
	normalized := filepath.Join(dir, "normalized.json")

	out, err := execute(t, nil, editedDashboard, "changes", "--original", original, "--edited", "-", "--normalized", normalized)
	require.NoError(t, err)
	assert.Contains(t, out, "Dashboard Change Report")
	assert.Contains(t, out, "Time Range Changed: true")
	assert.Contains(t, out, "Found 1 change(s):")

	data, err := os.ReadFile(normalized)
	require.NoError(t, err)

	var saved map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, "CPU usage", saved["title"])
	assert.Equal(t, "now-6h", saved["time"].(map[string]interface{})["from"], "time range is reverted")
}

func TestChangesCmd_FailOnChange(t *testing.T) {
	dir := t.TempDir()
	original := writeFile(t, dir, "saved.json", savedDashboard)
	edited := writeFile(t, dir, "edited.json", editedDashboard)

	_, err := execute(t, nil, "", "changes", "--original", original, "--edited", edited, "--fail-on-change")
	assert.ErrorIs(t, err, ErrChangesDetected)

	_, err = execute(t, nil, "", "changes", "--original", original, "--edited", original, "--fail-on-change")
	assert.NoError(t, err)
}

func TestChangesCmd_Errors(t *testing.T) {
	dir := t.TempDir()
	original := writeFile(t, dir, "saved.json", savedDashboard)
	adhocSaved := writeFile(t, dir, "adhoc-saved.json",
		`{"templating":{"list":[{"name":"f","type":"adhoc","current":{},"filters":[]}]}}`)
	adhocEdited := writeFile(t, dir, "adhoc-edited.json",
		`{"templating":{"list":[{"name":"f","type":"adhoc","current":{}}]}}`)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "missing edited flag",
			args:    []string{"changes", "--original", original},
			wantErr: `required flag(s) "edited" not set`,
		},
		{
			name:    "missing file",
			args:    []string{"changes", "--original", original, "--edited", filepath.Join(dir, "nope.json")},
			wantErr: "failed to load edited dashboard",
		},
		{
			name:    "adhoc variable without filters",
			args:    []string{"changes", "--original", adhocSaved, "--edited", adhocEdited},
			wantErr: "adhoc variable missing filters property",
		},
		{
			name:    "unsupported output",
			args:    []string{"changes", "--original", original, "--edited", original, "-o", "xml"},
			wantErr: "unsupported format: xml",
		},
		{
			name:    "s3 without region",
			args:    []string{"changes", "--original", "s3://dashboards/cpu.json", "--edited", original},
			wantErr: "failed to load original dashboard",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AWS_REGION", "")
			_, err := execute(t, nil, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestChangesCmd_RemoteSnapshots(t *testing.T) {
	store := fakeStore{
		"prod/cpu.json":        savedDashboard,
		"prod/cpu-edited.json": editedDashboard,
	}
	opts := &rootOptions{newStore: func(context.Context) (source.Fetcher, error) { return store, nil }}

	out, err := execute(t, opts, "", "changes", "-o", "json", "--save-time-range",
		"--original", "s3://dashboards/prod/cpu.json",
		"--edited", "s3://dashboards/prod/cpu-edited.json")
	require.NoError(t, err)

	rep := decodeReport(t, out)
	assert.Equal(t, float64(2), rep["diff_count"])
	assert.Equal(t, "s3://dashboards/prod/cpu-edited.json", rep["target"])
}

func TestPanelCmd(t *testing.T) {
	dir := t.TempDir()
	original := writeFile(t, dir, "a.json", `{"id":1,"type":"graph","title":"CPU","targets":[{"expr":"up"}]}`)
	edited := writeFile(t, dir, "b.yaml", "id: 1\ntype: timeseries\ntitle: CPU\ntargets:\n  - expr: up\n")

	out, err := execute(t, nil, "", "panel", original, edited, "-o", "json")
	require.NoError(t, err)

	rep := decodeReport(t, out)
	assert.Equal(t, float64(1), rep["diff_count"])
	assert.Equal(t, "CPU", rep["title"])

	_, err = execute(t, nil, "", "panel", original)
	assert.Error(t, err)
}

func TestCompareCmd(t *testing.T) {
	dir := t.TempDir()
	v1 := writeFile(t, dir, "v1.json", savedDashboard)
	v2 := writeFile(t, dir, "v2.json", editedDashboard)

	out, err := execute(t, nil, "", "compare", v1, v2, "-o", "patch")
	require.NoError(t, err)
	assert.Contains(t, out, `"op": "replace"`)
	assert.Contains(t, out, `"path": "/title"`)
	assert.Contains(t, out, `"path": "/time/from"`)

	out, err = execute(t, nil, "", "compare", v1, v2, "--ignore", "/title")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 change(s):")
	assert.Contains(t, out, "\ntime\n")
}

const stateFile = `{
  "format_version": "1.0",
  "terraform_version": "1.8.5",
  "values": {
    "root_module": {
      "resources": [
        {
          "address": "grafana_dashboard.cpu",
          "mode": "managed",
          "type": "grafana_dashboard",
          "name": "cpu",
          "provider_name": "registry.terraform.io/grafana/grafana",
          "schema_version": 1,
          "values": {"uid": "cpu", "folder": "team", "config_json": "{\"uid\":\"cpu\",\"title\":\"CPU\"}"}
        },
        {
          "address": "grafana_dashboard.mem",
          "mode": "managed",
          "type": "grafana_dashboard",
          "name": "mem",
          "provider_name": "registry.terraform.io/grafana/grafana",
          "schema_version": 1,
          "values": {"uid": "mem", "config_json": "{\"uid\":\"mem\",\"title\":\"Memory\"}"}
        }
      ]
    }
  }
}`

func TestListCmd(t *testing.T) {
	dir := t.TempDir()
	state := writeFile(t, dir, "state.json", stateFile)

	out, err := execute(t, nil, "", "list", "--tf-state", state)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"ADDRESS", "UID", "FOLDER", "SOURCE"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"grafana_dashboard.cpu", "cpu", "team", state}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"grafana_dashboard.mem", "mem", "-", state}, strings.Fields(lines[2]))

	out, err = execute(t, nil, "", "list", "--tf-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No grafana_dashboard resources found")

	_, err = execute(t, nil, "", "list", "--tf-state", state, "--tf-dir", dir)
	assert.Error(t, err)
}

func TestListCmd_HCL(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.tf", `
resource "grafana_dashboard" "cpu" {
  folder      = "team"
  config_json = file("${path.module}/cpu.json")
}
`)
	writeFile(t, dir, "cpu.json", `{"uid":"cpu","title":"CPU"}`)

	out, err := execute(t, nil, "", "list", "--tf-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "grafana_dashboard.cpu")
	assert.Contains(t, out, "team")
}

func TestDetectCmd(t *testing.T) {
	dir := t.TempDir()
	state := writeFile(t, dir, "state.json", stateFile)
	writeFile(t, dir, "live/cpu.json", `{"uid":"cpu","title":"CPU"}`)
	writeFile(t, dir, "live/mem.json", `{"uid":"mem","title":"Memory (edited)"}`)
	live := filepath.Join(dir, "live", "{uid}.json")

	out, err := execute(t, nil, "", "detect", "--tf-state", state, "--live", live, "-o", "yaml")
	require.NoError(t, err)

	docs := strings.Split(out, "---\n")
	require.Len(t, docs, 2)
	assert.Contains(t, docs[0], "uid: cpu")
	assert.Contains(t, docs[0], "has_changes: false")
	assert.Contains(t, docs[1], "uid: mem")
	assert.Contains(t, docs[1], "has_changes: true")
	assert.Contains(t, docs[1], "source: grafana_dashboard.mem")

	_, err = execute(t, nil, "", "detect", "--tf-state", state, "--live", live, "--fail-on-drift")
	assert.ErrorIs(t, err, ErrChangesDetected)

	_, err = execute(t, nil, "", "detect", "--tf-state", state, "--live", live, "--dashboard", "cpu", "--fail-on-drift")
	assert.NoError(t, err)
}

func TestDetectCmd_Remote(t *testing.T) {
	dir := t.TempDir()
	state := writeFile(t, dir, "state.json", stateFile)
	store := fakeStore{
		"prod/cpu.json": `{"uid":"cpu","title":"CPU"}`,
		"prod/mem.json": `{"uid":"mem","title":"Memory"}`,
	}
	opts := &rootOptions{newStore: func(context.Context) (source.Fetcher, error) { return store, nil }}

	out, err := execute(t, opts, "", "detect", "--tf-state", state, "--live", "s3://backups/prod/{uid}.json", "-o", "text")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "No changes detected."))
	assert.Contains(t, out, "Target: s3://backups/prod/mem.json")
}

func TestDetectCmd_RemoteBatch(t *testing.T) {
	dir := t.TempDir()
	state := writeFile(t, dir, "state.json", stateFile)

	mockS3 := &testutils.MockS3API{}
	mockS3.ServeObject("prod/cpu.json", `{"uid":"cpu","title":"CPU"}`)
	mockS3.ServeObject("prod/mem.json", `{"uid":"mem","title":"Memory (edited)"}`)
	store := aws.NewSnapshotStoreWithClient(mockS3, nil)
	opts := &rootOptions{newStore: func(context.Context) (source.Fetcher, error) { return store, nil }}

	out, err := execute(t, opts, "", "detect", "--tf-state", state, "--live", "s3://backups/prod/{uid}.json", "-o", "yaml")
	require.NoError(t, err)

	docs := strings.Split(out, "---\n")
	require.Len(t, docs, 2)
	assert.Contains(t, docs[0], "has_changes: false")
	assert.Contains(t, docs[1], "has_changes: true")
	assert.Contains(t, docs[1], "s3://backups/prod/mem.json")
	mockS3.AssertExpectations(t)
}

func TestDetectCmd_Errors(t *testing.T) {
	dir := t.TempDir()
	state := writeFile(t, dir, "state.json", stateFile)
	writeFile(t, dir, "live/cpu.json", `{"uid":"cpu"}`)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "live without placeholder",
			args:    []string{"--tf-state", state, "--live", filepath.Join(dir, "live", "cpu.json")},
			wantErr: "--live must contain {uid}",
		},
		{
			name:    "unknown dashboard",
			args:    []string{"--tf-state", state, "--live", filepath.Join(dir, "live", "{uid}.json"), "--dashboard", "disk"},
			wantErr: "grafana_dashboard not found: disk",
		},
		{
			name:    "missing live snapshot",
			args:    []string{"--tf-state", state, "--live", filepath.Join(dir, "live", "{uid}.json")},
			wantErr: "failed to load live dashboards",
		},
		{
			name:    "missing state",
			args:    []string{"--tf-state", filepath.Join(dir, "nope.json"), "--live", "x"},
			wantErr: "failed to load managed dashboards",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, nil, "", append([]string{"detect"}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
